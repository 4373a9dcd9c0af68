package parquetfile

import (
	"bytes"
	"io"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/parquet-go/parquet-go/format"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodecRoundTrip(t *testing.T) {
	input := bytes.Repeat([]byte("http://A http://B http://C "), 200)

	for name, codec := range map[string]format.CompressionCodec{
		"uncompressed": format.Uncompressed,
		"snappy":       format.Snappy,
		"gzip":         format.Gzip,
	} {
		t.Run(name, func(t *testing.T) {
			c, err := NewCodec(codec)
			require.NoError(t, err)
			assert.Equal(t, codec, c.CompressionCodec())

			// Twice, so scratch reuse is exercised.
			for i := 0; i < 2; i++ {
				in := append([]byte(nil), input...)
				out, err := c.Compress(in)
				require.NoError(t, err)

				got, err := decompressData(out, codec)
				require.NoError(t, err)
				assert.Equal(t, input, got)
			}
		})
	}
}

func TestCodecUncompressedTransfersOwnership(t *testing.T) {
	c, err := NewCodec(format.Uncompressed)
	require.NoError(t, err)

	in := []byte{1, 2, 3}
	out, err := c.Compress(in)
	require.NoError(t, err)
	assert.Same(t, &in[0], &out[0])
}

func TestCodecCompressedOutputIsExactSize(t *testing.T) {
	c, err := NewCodec(format.Snappy)
	require.NoError(t, err)

	out, err := c.Compress(bytes.Repeat([]byte{7}, 4096))
	require.NoError(t, err)
	assert.Equal(t, len(out), cap(out))
	assert.Less(t, len(out), 4096)
}

func TestNewCodecRejectsUnknownCodec(t *testing.T) {
	_, err := NewCodec(format.CompressionCodec(99))
	require.ErrorIs(t, err, ErrUnsupportedCodec)
}

func TestParseCompression(t *testing.T) {
	for name, want := range map[string]format.CompressionCodec{
		"none":         format.Uncompressed,
		"uncompressed": format.Uncompressed,
		"snappy":       format.Snappy,
		"SNAPPY":       format.Snappy,
		"gzip":         format.Gzip,
	} {
		got, err := ParseCompression(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}

	_, err := ParseCompression("lz4")
	require.ErrorIs(t, err, ErrUnsupportedCodec)
}

func TestGzipOutputIsGzipFramed(t *testing.T) {
	c, err := NewCodec(format.Gzip)
	require.NoError(t, err)

	out, err := c.Compress([]byte("en-us"))
	require.NoError(t, err)

	r, err := gzip.NewReader(bytes.NewReader(out))
	require.NoError(t, err)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "en-us", string(got))
}
