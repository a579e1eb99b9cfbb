package frame

import (
	"bytes"
	"math/bits"
	"math/rand/v2"
	"testing"
)

func collect(d *Decoder, stream []byte) []Frame {
	var out []Frame
	d.Feed(stream, func(f Frame) { out = append(out, f) })
	return out
}

func TestDecodeKnownStream(t *testing.T) {
	stream := []byte{0xFF, 0xFF, 0x00, 0x0A, 0x00, 0x14, 0x00, 0x1E, 0x00, 0x28, 0x3C, 0xFF, 0xFF}

	d := NewDecoder(nil)
	frames := collect(d, stream)
	if len(frames) != 1 {
		t.Fatalf("Expected exactly 1 frame, got %d: %v", len(frames), frames)
	}
	want := Frame{10, 20, 30, 40}
	if frames[0] != want {
		t.Errorf("Expected %v, got %v", want, frames[0])
	}
	if d.ChecksumErrors() != 0 {
		t.Errorf("Expected no checksum errors, got %d", d.ChecksumErrors())
	}
}

func TestEncodeMatchesWireFormat(t *testing.T) {
	got := Encode(Frame{10, 20, 30, 40})
	want := []byte{0x00, 0x0A, 0x00, 0x14, 0x00, 0x1E, 0x00, 0x28, 0x3C, 0xFF, 0xFF}
	if !bytes.Equal(got, want) {
		t.Fatalf("Encode mismatch:\n got  % X\n want % X", got, want)
	}
}

// decodable reports whether the encoded payload can be told apart from the terminator:
// no FF pair inside it and no leading FF right after a previous terminator.
func decodable(f Frame) bool {
	p := Encode(f)[:PayloadSize]
	if p[0] == Marker {
		return false
	}
	for i := 0; i+1 < len(p); i++ {
		if p[i] == Marker && p[i+1] == Marker {
			return false
		}
	}
	return true
}

func TestRoundTripRandomFrames(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	d := NewDecoder(nil)
	// Prime synchronization.
	collect(d, []byte{Marker, Marker})

	checked := 0
	for i := 0; i < 5000; i++ {
		f := Frame{uint16(rng.UintN(65536)), uint16(rng.UintN(65536)), uint16(rng.UintN(65536)), uint16(rng.UintN(65536))}
		if !decodable(f) {
			continue
		}
		got := collect(d, Encode(f))
		if len(got) != 1 || got[0] != f {
			t.Fatalf("Round trip failed for %v: got %v", f, got)
		}
		checked++
	}
	if checked < 4000 {
		t.Fatalf("Too few frames checked: %d", checked)
	}
}

func TestChecksumFFOverlapsTerminator(t *testing.T) {
	// XOR of the payload is 0xFF, so the checksum byte doubles as the first marker byte.
	f := Frame{0x00FF, 0, 0, 0}
	enc := Encode(f)
	if enc[8] != 0xFF {
		t.Fatalf("Test frame should have checksum FF, got %02X", enc[8])
	}

	d := NewDecoder(nil)
	stream := append([]byte{Marker, Marker}, enc...)
	stream = append(stream, Encode(Frame{1, 2, 3, 4})...)
	got := collect(d, stream)
	if len(got) != 2 || got[0] != f || got[1] != (Frame{1, 2, 3, 4}) {
		t.Fatalf("Unexpected frames: %v", got)
	}
}

func TestNoMarkerNeverEmits(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 7))
	for trial := 0; trial < 200; trial++ {
		buf := make([]byte, 1+rng.IntN(500))
		for i := range buf {
			buf[i] = byte(rng.UintN(256))
			if i > 0 && buf[i] == Marker && buf[i-1] == Marker {
				buf[i] = 0xFE
			}
		}
		d := NewDecoder(nil)
		if got := collect(d, buf); len(got) != 0 {
			t.Fatalf("Trial %d: expected no frames without a marker, got %v", trial, got)
		}
	}
}

func TestSingleBitFlipRejected(t *testing.T) {
	frames := []Frame{{10, 20, 30, 40}, {0x0123, 0x0456, 0x0789, 0x0ABC}, {0, 0, 0, 0}}
	for _, f := range frames {
		enc := Encode(f)
		for i := 0; i < PayloadSize; i++ {
			if bits.OnesCount8(enc[i]) > 6 {
				t.Fatalf("Test frame %v byte %d could flip into a marker", f, i)
			}
			for bit := 0; bit < 8; bit++ {
				corrupted := append([]byte(nil), enc...)
				corrupted[i] ^= 1 << bit

				d := NewDecoder(nil)
				stream := append([]byte{Marker, Marker}, corrupted...)
				if got := collect(d, stream); len(got) != 0 {
					t.Errorf("Frame %v byte %d bit %d: corrupted frame accepted: %v", f, i, bit, got)
				}
				if d.ChecksumErrors() != 1 {
					t.Errorf("Frame %v byte %d bit %d: expected 1 checksum error, got %d", f, i, bit, d.ChecksumErrors())
				}
			}
		}
	}
}

func TestDecoderResumesAfterBadFrame(t *testing.T) {
	bad := Encode(Frame{1, 2, 3, 4})
	bad[3] ^= 0x01

	var stream []byte
	stream = append(stream, Marker, Marker)
	stream = append(stream, bad...)
	stream = append(stream, Encode(Frame{5, 6, 7, 8})...)

	d := NewDecoder(nil)
	got := collect(d, stream)
	if len(got) != 1 || got[0] != (Frame{5, 6, 7, 8}) {
		t.Fatalf("Expected only the good frame, got %v", got)
	}
	if d.ChecksumErrors() != 1 || d.Frames() != 1 {
		t.Errorf("Counters: frames=%d checksum=%d", d.Frames(), d.ChecksumErrors())
	}
}

func TestTruncatedFrameResynchronizes(t *testing.T) {
	full := Encode(Frame{100, 200, 300, 400})

	var stream []byte
	stream = append(stream, Marker, Marker)
	stream = append(stream, full[:4]...) // truncated
	stream = append(stream, Marker, Marker)
	stream = append(stream, full...)

	d := NewDecoder(nil)
	got := collect(d, stream)
	if len(got) != 1 || got[0] != (Frame{100, 200, 300, 400}) {
		t.Fatalf("Expected decoder to resync on the next frame, got %v", got)
	}
	if d.ShortFrames() == 0 {
		t.Errorf("Expected the truncated frame to be counted as short")
	}
}

func TestChunkBoundariesDoNotMatter(t *testing.T) {
	var stream []byte
	stream = append(stream, Marker, Marker)
	for i := uint16(0); i < 20; i++ {
		stream = append(stream, Encode(Frame{i, i + 1, i + 2, i + 3})...)
	}

	whole := collect(NewDecoder(nil), stream)

	d := NewDecoder(nil)
	var split []Frame
	for i := 0; i < len(stream); i += 3 {
		end := min(i+3, len(stream))
		d.Feed(stream[i:end], func(f Frame) { split = append(split, f) })
	}
	if len(whole) != 20 || len(split) != 20 {
		t.Fatalf("Expected 20 frames both ways, got %d and %d", len(whole), len(split))
	}
	for i := range whole {
		if whole[i] != split[i] {
			t.Fatalf("Frame %d differs: %v vs %v", i, whole[i], split[i])
		}
	}
}
