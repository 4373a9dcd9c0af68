package parquetfile

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/parquet-go/parquet-go/encoding/thrift"
	"github.com/parquet-go/parquet-go/format"
	"github.com/pkg/errors"
)

const magic = "PAR1"

// sink is the output of a Writer. It tracks the file offset and serializes
// thrift metadata records with the compact protocol.
type sink struct {
	w       *bufio.Writer
	offset  int64
	encoder *thrift.Encoder
}

func newSink(w io.Writer, bufferSize int) *sink {
	s := &sink{w: bufio.NewWriterSize(w, bufferSize)}
	s.encoder = thrift.NewEncoder(new(thrift.CompactProtocol).NewWriter(s))
	return s
}

func (s *sink) Write(b []byte) (int, error) {
	n, err := s.w.Write(b)
	s.offset += int64(n)
	if err == nil && n != len(b) {
		err = io.ErrShortWrite
	}
	return n, err
}

// Offset returns the number of bytes written so far.
func (s *sink) Offset() int64 { return s.offset }

// WriteMetadata serializes v and returns the number of bytes it took.
func (s *sink) WriteMetadata(v interface{}) (int64, error) {
	start := s.offset
	if err := s.encoder.Encode(v); err != nil {
		return s.offset - start, errors.Wrap(err, "encoding metadata")
	}
	return s.offset - start, nil
}

// WriteFooter writes the file metadata, its length and the trailing magic.
func (s *sink) WriteFooter(md *format.FileMetaData) error {
	footer, err := thrift.Marshal(new(thrift.CompactProtocol), md)
	if err != nil {
		return errors.Wrap(err, "encoding footer")
	}
	length := len(footer)
	footer = binary.LittleEndian.AppendUint32(footer, uint32(length))
	footer = append(footer, magic...)
	_, err = s.Write(footer)
	return errors.Wrap(err, "writing footer")
}

func (s *sink) Flush() error {
	return errors.Wrap(s.w.Flush(), "flushing output")
}
