package recordio

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/pkg/errors"
)

// Writer emits a tagged stream.
type Writer struct {
	w   io.Writer
	hdr [5]byte
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteHeader writes the descriptor and root message frames.
func (w *Writer) WriteHeader(h Header) error {
	if err := w.WriteFrame(TagDescriptors, h.Descriptors); err != nil {
		return err
	}
	return w.WriteFrame(TagRootMessage, []byte(h.RootMessage))
}

// WriteRecord writes one serialized record.
func (w *Writer) WriteRecord(payload []byte) error {
	return w.WriteFrame(TagRecord, payload)
}

func (w *Writer) WriteFrame(tag byte, payload []byte) error {
	if uint64(len(payload)) > math.MaxUint32 {
		return errors.Errorf("frame payload of %d bytes does not fit a frame", len(payload))
	}
	w.hdr[0] = tag
	binary.LittleEndian.PutUint32(w.hdr[1:], uint32(len(payload)))
	if _, err := w.w.Write(w.hdr[:]); err != nil {
		return errors.Wrap(err, "write frame header")
	}
	if _, err := w.w.Write(payload); err != nil {
		return errors.Wrap(err, "write frame payload")
	}
	return nil
}

// AppendLegacyFrame appends a legacy record frame to dst.
func AppendLegacyFrame(dst []byte, proto int16, typ int8, payload []byte) []byte {
	dst = binary.LittleEndian.AppendUint16(dst, uint16(proto))
	dst = append(dst, byte(typ))
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(payload)))
	return append(dst, payload...)
}
