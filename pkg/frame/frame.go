package frame

import (
	"log/slog"
)

const (
	// Marker is the byte value that, seen twice in a row, terminates a frame.
	Marker = 0xFF

	// PayloadSize is the number of meaningful bytes per frame: 8 channel bytes + checksum.
	PayloadSize = 9

	// scratchSize is the circular buffer size; the cursor wraps here when no terminator shows up.
	scratchSize = 11
)

// Frame is one validated set of 4 channel values.
type Frame [4]uint16

// Checksum returns the XOR of the 8 channel bytes.
func Checksum(b []byte) byte {
	var sum byte
	for i := 0; i < 8 && i < len(b); i++ {
		sum ^= b[i]
	}
	return sum
}

// Encode builds the wire form of f: 4 big-endian uint16 values, the checksum byte and
// the FF FF terminator.
func Encode(f Frame) []byte {
	buf := make([]byte, PayloadSize+2)
	for n, v := range f {
		buf[2*n] = byte(v >> 8)
		buf[2*n+1] = byte(v)
	}
	buf[8] = Checksum(buf[:8])
	buf[9] = Marker
	buf[10] = Marker
	return buf
}

// Decoder synchronizes on the double 0xFF marker and validates frames one byte at a time.
// It is not safe for concurrent use.
type Decoder struct {
	buf  [scratchSize]byte
	pos  int
	prev byte

	frames    uint64
	badFrames uint64
	short     uint64

	log *slog.Logger
}

// NewDecoder returns a decoder with an empty scratch buffer. A nil logger discards output.
func NewDecoder(logger *slog.Logger) *Decoder {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Decoder{log: logger}
}

// Push advances the state machine by one byte. It returns the decoded frame and true
// when b completed a frame whose checksum matched.
func (d *Decoder) Push(b byte) (Frame, bool) {
	d.buf[d.pos] = b
	if b == Marker && d.prev == Marker {
		// A checksum byte of FF overlaps the terminator, so cursor 9 is also a full frame.
		complete := d.pos >= PayloadSize
		d.pos = 0
		// prev stays FF: a third FF in a row terminates again.
		if !complete {
			d.short++
			return Frame{}, false
		}
		return d.validate()
	}
	d.prev = b
	d.pos++
	if d.pos >= scratchSize {
		d.pos = 0
	}
	return Frame{}, false
}

func (d *Decoder) validate() (Frame, bool) {
	if Checksum(d.buf[:8]) != d.buf[8] {
		d.badFrames++
		d.log.Debug("wrong checksum",
			slog.Int("expected", int(d.buf[8])),
			slog.Int("computed", int(Checksum(d.buf[:8]))))
		return Frame{}, false
	}
	var f Frame
	for n := range f {
		f[n] = uint16(d.buf[2*n])<<8 | uint16(d.buf[2*n+1])
	}
	d.frames++
	return f, true
}

// Feed pushes a chunk through the decoder and calls emit for every valid frame, in order.
func (d *Decoder) Feed(chunk []byte, emit func(Frame)) {
	for _, b := range chunk {
		if f, ok := d.Push(b); ok {
			emit(f)
		}
	}
}

// Frames reports how many valid frames have been decoded.
func (d *Decoder) Frames() uint64 { return d.frames }

// ShortFrames reports how many terminators arrived before a full payload and were
// treated as resynchronization points.
func (d *Decoder) ShortFrames() uint64 { return d.short }

// ChecksumErrors reports how many terminated frames failed validation.
func (d *Decoder) ChecksumErrors() uint64 { return d.badFrames }
