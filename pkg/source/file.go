package source

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// FileSource replays a comma-delimited recording of (timestamp_ms, ch1, ch2, ch3, ch4)
// rows without a header. Paths ending in .gz are decompressed on the fly.
type FileSource struct {
	f    *os.File
	gz   *gzip.Reader
	r    *csv.Reader
	path string
	log  *slog.Logger

	speed float64
}

// OpenFile opens a recording for replay.
func OpenFile(path string, logger *slog.Logger) (*FileSource, error) {
	logger = orDiscard(logger)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: replay file: %w", ErrOpen, err)
	}

	src := &FileSource{f: f, path: path, log: logger}
	var rd io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("%w: replay file %s: %w", ErrOpen, path, err)
		}
		src.gz = gz
		rd = gz
	}

	r := csv.NewReader(rd)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	r.ReuseRecord = true
	src.r = r

	logger.Info("replay file opened", slog.String("path", path))
	return src, nil
}

// Next returns the next row in file order, or io.EOF after the last one.
func (s *FileSource) Next() (Row, error) {
	rec, err := s.r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Row{}, io.EOF
		}
		return Row{}, fmt.Errorf("%w: %v", ErrBadRow, err)
	}
	line, _ := s.r.FieldPos(0)
	return parseRow(rec, line)
}

func parseRow(rec []string, line int) (Row, error) {
	if len(rec) < 5 {
		return Row{}, fmt.Errorf("%w: line %d: want 5 fields, got %d", ErrBadRow, line, len(rec))
	}
	var row Row
	ts, err := truncInt(rec[0])
	if err != nil {
		return Row{}, fmt.Errorf("%w: line %d: timestamp %q", ErrBadRow, line, rec[0])
	}
	row.TimestampMS = ts
	for i := range row.Ch {
		v, err := truncInt(rec[i+1])
		if err != nil {
			return Row{}, fmt.Errorf("%w: line %d: ch%d %q", ErrBadRow, line, i+1, rec[i+1])
		}
		row.Ch[i] = v
	}
	return row, nil
}

// truncInt parses an integer or decimal field and truncates it toward zero.
func truncInt(field string) (int64, error) {
	field = strings.TrimSpace(field)
	if v, err := strconv.ParseInt(field, 10, 64); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(field, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errors.New("not a number")
	}
	return int64(math.Trunc(f)), nil
}

// Close releases the file. Closing twice is harmless.
func (s *FileSource) Close() error {
	if s.gz != nil {
		s.gz.Close()
	}
	err := s.f.Close()
	if errors.Is(err, os.ErrClosed) {
		return nil
	}
	return err
}

func (s *FileSource) Kind() Kind { return KindFile }

// Speed is the playback rate configured for this replay; zero means real time.
func (s *FileSource) Speed() float64 { return s.speed }
