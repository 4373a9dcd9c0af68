// Package recordio reads and writes the framed record streams the converter
// consumes.
//
// A tagged stream is self-describing: a sequence of frames, each a one-byte
// tag, a little-endian uint32 payload length and the payload. It opens with a
// FileDescriptorSet frame (tag 0) and the root message name (tag 1), followed
// by one frame per serialized record (tag 2).
//
// A legacy stream carries only records, each behind a little-endian header of
// an int16 protocol number, an int8 record type and an int32 payload length.
// The schema comes from a .proto file given separately.
package recordio

import (
	"io"

	"github.com/kaitai-io/kaitai_struct_go_runtime/kaitai"
	"github.com/pkg/errors"
)

var ErrMalformed = errors.New("malformed record stream")

// Framing selects the frame layout of a stream.
type Framing int

const (
	Tagged Framing = iota
	Legacy
)

// Frame tags of a tagged stream.
const (
	TagDescriptors byte = 0
	TagRootMessage byte = 1
	TagRecord      byte = 2
)

// Header is the preamble of a tagged stream.
type Header struct {
	// Descriptors is a serialized FileDescriptorSet.
	Descriptors []byte
	RootMessage string
}

// Reader iterates over the records of a stream.
type Reader struct {
	ks      *kaitai.Stream
	framing Framing
	records int
}

// NewReader reads frames from r. Input that cannot seek, such as a pipe, has
// to be buffered by the caller first.
func NewReader(r io.ReadSeeker, framing Framing) *Reader {
	return &Reader{ks: kaitai.NewStream(r), framing: framing}
}

// Records returns the number of records returned by Next so far.
func (r *Reader) Records() int { return r.records }

// ReadHeader consumes the descriptor and root message frames that open a
// tagged stream.
func (r *Reader) ReadHeader() (Header, error) {
	if r.framing != Tagged {
		return Header{}, errors.New("legacy streams have no header")
	}

	var h Header
	tag, payload, err := r.readTagged()
	if err != nil {
		return h, headerError(err)
	}
	if tag != TagDescriptors {
		return h, errors.Wrapf(ErrMalformed, "expecting FileDescriptorSet (%d), saw %d", TagDescriptors, tag)
	}
	h.Descriptors = payload

	tag, payload, err = r.readTagged()
	if err != nil {
		return h, headerError(err)
	}
	if tag != TagRootMessage {
		return h, errors.Wrapf(ErrMalformed, "expecting root message name (%d), saw %d", TagRootMessage, tag)
	}
	h.RootMessage = string(payload)
	return h, nil
}

func headerError(err error) error {
	if err == io.EOF {
		return errors.Wrap(ErrMalformed, "stream ends before its header")
	}
	return err
}

// Next returns the payload of the next record, or io.EOF once the stream
// ends on a frame boundary. Descriptor and root message frames met after the
// header are skipped.
func (r *Reader) Next() ([]byte, error) {
	for {
		var (
			tag     = TagRecord
			payload []byte
			err     error
		)
		switch r.framing {
		case Tagged:
			tag, payload, err = r.readTagged()
		case Legacy:
			payload, err = r.readLegacy()
		default:
			return nil, errors.Errorf("unknown framing %d", r.framing)
		}
		if err != nil {
			return nil, err
		}

		switch tag {
		case TagDescriptors, TagRootMessage:
			continue
		case TagRecord:
			r.records++
			return payload, nil
		default:
			return nil, errors.Wrapf(ErrMalformed, "expecting data record (%d), saw %d", TagRecord, tag)
		}
	}
}

func (r *Reader) readTagged() (byte, []byte, error) {
	start, err := r.atEOF()
	if err != nil {
		return 0, nil, err
	}
	tag, err := r.ks.ReadU1()
	if err != nil {
		return 0, nil, truncated(err, start)
	}
	size, err := r.ks.ReadU4le()
	if err != nil {
		return 0, nil, truncated(err, start)
	}
	payload, err := r.readPayload(int64(size), start)
	return tag, payload, err
}

func (r *Reader) readLegacy() ([]byte, error) {
	start, err := r.atEOF()
	if err != nil {
		return nil, err
	}
	// Protocol number and record type are not interpreted.
	if _, err := r.ks.ReadS2le(); err != nil {
		return nil, truncated(err, start)
	}
	if _, err := r.ks.ReadS1(); err != nil {
		return nil, truncated(err, start)
	}
	size, err := r.ks.ReadS4le()
	if err != nil {
		return nil, truncated(err, start)
	}
	if size < 0 {
		return nil, errors.Wrapf(ErrMalformed, "frame at offset %d has negative size %d", start, size)
	}
	return r.readPayload(int64(size), start)
}

// atEOF returns the offset of the next frame, or io.EOF when the stream is
// exhausted.
func (r *Reader) atEOF() (int64, error) {
	eof, err := r.ks.EOF()
	if err != nil {
		return 0, errors.Wrap(err, "read record stream")
	}
	if eof {
		return 0, io.EOF
	}
	pos, err := r.ks.Pos()
	if err != nil {
		return 0, errors.Wrap(err, "read record stream")
	}
	return pos, nil
}

func (r *Reader) readPayload(size, start int64) ([]byte, error) {
	total, err := r.ks.Size()
	if err != nil {
		return nil, errors.Wrap(err, "read record stream")
	}
	pos, err := r.ks.Pos()
	if err != nil {
		return nil, errors.Wrap(err, "read record stream")
	}
	if size > total-pos {
		return nil, errors.Wrapf(ErrMalformed, "frame at offset %d needs %d payload bytes, %d left", start, size, total-pos)
	}
	payload, err := r.ks.ReadBytes(int(size))
	if err != nil {
		return nil, truncated(err, start)
	}
	return payload, nil
}

func truncated(err error, start int64) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return errors.Wrapf(ErrMalformed, "truncated frame at offset %d", start)
	}
	return errors.Wrapf(err, "read frame at offset %d", start)
}
