package recorder

import (
	"io"

	"github.com/segmentio/parquet-go"

	"github.com/scopeview/pkg/sample"
)

// Row is the parquet schema of a recorded sample.
type Row struct {
	TimestampMS int64   `parquet:"timestamp_ms"`
	Ch1         float64 `parquet:"ch1"`
	Ch2         float64 `parquet:"ch2"`
	Ch3         float64 `parquet:"ch3"`
	Ch4         float64 `parquet:"ch4"`
}

// NewParquetWriter creates a generic parquet writer with the sample schema and the
// given footer metadata.
func NewParquetWriter(w io.Writer, metadata map[string]string) *parquet.GenericWriter[Row] {
	opts := make([]parquet.WriterOption, 0, len(metadata))
	for k, v := range metadata {
		opts = append(opts, parquet.KeyValueMetadata(k, v))
	}
	return parquet.NewGenericWriter[Row](w, opts...)
}

type parquetSink struct {
	file   io.Closer
	writer *parquet.GenericWriter[Row]
	row    [1]Row
}

func newParquetSink(f io.WriteCloser, metadata map[string]string) *parquetSink {
	return &parquetSink{file: f, writer: NewParquetWriter(f, metadata)}
}

func (p *parquetSink) WriteSample(smp sample.Sample) error {
	p.row[0] = Row{
		TimestampMS: smp.TimestampMS,
		Ch1:         smp.Ch[0],
		Ch2:         smp.Ch[1],
		Ch3:         smp.Ch[2],
		Ch4:         smp.Ch[3],
	}
	_, err := p.writer.Write(p.row[:])
	return err
}

func (p *parquetSink) Close() error {
	if err := p.writer.Close(); err != nil {
		p.file.Close()
		return err
	}
	return p.file.Close()
}
