package parquetfile

import (
	"bytes"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/snappy"
	"github.com/parquet-go/parquet-go/format"
	"github.com/pkg/errors"
)

// Codec compresses page bodies for one column. It keeps scratch buffers
// between calls and is not safe for concurrent use.
type Codec struct {
	codec   format.CompressionCodec
	scratch []byte
	buf     bytes.Buffer
	gz      *gzip.Writer
}

// NewCodec returns a codec for one of UNCOMPRESSED, SNAPPY or GZIP.
func NewCodec(codec format.CompressionCodec) (*Codec, error) {
	switch codec {
	case format.Uncompressed, format.Snappy, format.Gzip:
		return &Codec{codec: codec}, nil
	default:
		return nil, errors.Wrapf(ErrUnsupportedCodec, "%d", codec)
	}
}

// CompressionCodec returns the codec tag recorded in column metadata.
func (c *Codec) CompressionCodec() format.CompressionCodec { return c.codec }

// Compress returns the compressed form of in. For UNCOMPRESSED the input
// itself is returned and the caller gives up ownership of it; the other
// codecs return a freshly allocated slice of the exact compressed size.
func (c *Codec) Compress(in []byte) ([]byte, error) {
	switch c.codec {
	case format.Uncompressed:
		return in, nil

	case format.Snappy:
		n := snappy.MaxEncodedLen(len(in))
		if n < 0 {
			return nil, errors.Errorf("snappy: block of %d bytes is too large", len(in))
		}
		if cap(c.scratch) < n {
			c.scratch = make([]byte, n)
		}
		enc := snappy.Encode(c.scratch[:n], in)
		out := make([]byte, len(enc))
		copy(out, enc)
		return out, nil

	case format.Gzip:
		c.buf.Reset()
		if c.gz == nil {
			gz, err := gzip.NewWriterLevel(&c.buf, gzip.DefaultCompression)
			if err != nil {
				return nil, errors.Wrap(err, "gzip")
			}
			c.gz = gz
		} else {
			c.gz.Reset(&c.buf)
		}
		if _, err := c.gz.Write(in); err != nil {
			return nil, errors.Wrap(err, "gzip deflate")
		}
		if err := c.gz.Close(); err != nil {
			return nil, errors.Wrap(err, "gzip deflate")
		}
		out := make([]byte, c.buf.Len())
		copy(out, c.buf.Bytes())
		return out, nil

	default:
		return nil, errors.Wrapf(ErrUnsupportedCodec, "%d", c.codec)
	}
}

// ParseCompression maps a codec name to its tag.
func ParseCompression(name string) (format.CompressionCodec, error) {
	switch strings.ToLower(name) {
	case "none", "uncompressed", "":
		return format.Uncompressed, nil
	case "snappy":
		return format.Snappy, nil
	case "gzip":
		return format.Gzip, nil
	default:
		return 0, errors.Wrapf(ErrUnsupportedCodec, "%q", name)
	}
}

// CompressionNames lists the names accepted by ParseCompression.
var CompressionNames = []string{"none", "snappy", "gzip"}
