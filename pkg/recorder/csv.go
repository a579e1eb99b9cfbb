package recorder

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"

	"github.com/klauspost/compress/gzip"

	"github.com/scopeview/pkg/sample"
)

const csvFlushEvery = 64

type csvSink struct {
	f       *os.File
	gz      *gzip.Writer
	w       *csv.Writer
	rec     []string
	pending int
}

func newCSVSink(f *os.File, compress bool) *csvSink {
	s := &csvSink{f: f, rec: make([]string, 1+sample.NumChannels)}
	var out io.Writer = f
	if compress {
		s.gz = gzip.NewWriter(f)
		out = s.gz
	}
	s.w = csv.NewWriter(out)
	return s
}

func (s *csvSink) WriteSample(smp sample.Sample) error {
	s.rec[0] = strconv.FormatInt(smp.TimestampMS, 10)
	for i, v := range smp.Ch {
		s.rec[i+1] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	if err := s.w.Write(s.rec); err != nil {
		return err
	}
	s.pending++
	if s.pending >= csvFlushEvery {
		s.pending = 0
		s.w.Flush()
		return s.w.Error()
	}
	return nil
}

func (s *csvSink) Close() error {
	s.w.Flush()
	err := s.w.Error()
	if s.gz != nil {
		if gzErr := s.gz.Close(); err == nil {
			err = gzErr
		}
	}
	if closeErr := s.f.Close(); err == nil {
		err = closeErr
	}
	return err
}
