package parquetfile

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"testing"

	"github.com/kaitai-io/kaitai_struct_go_runtime/kaitai"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/snappy"
	"github.com/parquet-go/parquet-go/encoding/thrift"
	"github.com/parquet-go/parquet-go/format"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

// Decoders for verifying written files. Nothing outside the tests reads
// Parquet.

func decompressData(data []byte, codec format.CompressionCodec) ([]byte, error) {
	switch codec {
	case format.Uncompressed:
		return data, nil
	case format.Snappy:
		return snappy.Decode(nil, data)
	case format.Gzip:
		r, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	default:
		return nil, errors.Errorf("unsupported compression codec: %d", codec)
	}
}

func decodePlainValues(data []byte, typ format.Type, numValues int) ([]interface{}, error) {
	values := make([]interface{}, 0, numValues)
	offset := 0

	for i := 0; i < numValues; i++ {
		switch typ {
		case format.Boolean:
			if i/8 >= len(data) {
				return values, io.ErrUnexpectedEOF
			}
			values = append(values, data[i/8]&(1<<(i%8)) != 0)
			continue
		case format.Int32:
			if offset+4 > len(data) {
				return values, io.ErrUnexpectedEOF
			}
			values = append(values, int32(binary.LittleEndian.Uint32(data[offset:])))
			offset += 4
		case format.Int64:
			if offset+8 > len(data) {
				return values, io.ErrUnexpectedEOF
			}
			values = append(values, int64(binary.LittleEndian.Uint64(data[offset:])))
			offset += 8
		case format.Float:
			if offset+4 > len(data) {
				return values, io.ErrUnexpectedEOF
			}
			values = append(values, math.Float32frombits(binary.LittleEndian.Uint32(data[offset:])))
			offset += 4
		case format.Double:
			if offset+8 > len(data) {
				return values, io.ErrUnexpectedEOF
			}
			values = append(values, math.Float64frombits(binary.LittleEndian.Uint64(data[offset:])))
			offset += 8
		case format.ByteArray:
			if offset+4 > len(data) {
				return values, io.ErrUnexpectedEOF
			}
			length := int(binary.LittleEndian.Uint32(data[offset:]))
			offset += 4
			if offset+length > len(data) {
				return values, io.ErrUnexpectedEOF
			}
			values = append(values, string(data[offset:offset+length]))
			offset += length
		default:
			return values, errors.Errorf("unsupported data type: %d", typ)
		}
	}
	return values, nil
}

// decodeRLE decodes numValues values of the RLE/bit-packed hybrid encoding
// and returns them with the number of bytes consumed.
func decodeRLE(src []byte, numValues int, bitWidth int) ([]uint32, int, error) {
	dst := make([]uint32, 0, numValues)
	valueBytes := (bitWidth + 7) / 8

	i := 0
	for i < len(src) && len(dst) < numValues {
		u, n := binary.Uvarint(src[i:])
		if n <= 0 {
			return dst, i, errors.Errorf("bad run header at byte %d", i)
		}
		i += n
		count := int(u >> 1)

		if u&1 != 0 {
			count *= 8
			byteCount := count * bitWidth / 8
			if i+byteCount > len(src) {
				return dst, i, errors.Wrapf(io.ErrUnexpectedEOF, "bit-packed run of %d values", count)
			}
			dst = append(dst, decodeBitPacked(src[i:i+byteCount], count, bitWidth)...)
			i += byteCount
		} else {
			if i+valueBytes > len(src) {
				return dst, i, errors.Wrapf(io.ErrUnexpectedEOF, "RLE run of %d values", count)
			}
			var v uint32
			for k := 0; k < valueBytes; k++ {
				v |= uint32(src[i+k]) << (8 * k)
			}
			i += valueBytes
			for k := 0; k < count; k++ {
				dst = append(dst, v)
			}
		}
	}
	if len(dst) < numValues {
		return dst, i, errors.Wrapf(io.ErrUnexpectedEOF, "decoded %d of %d values", len(dst), numValues)
	}
	return dst[:numValues], i, nil
}

func decodeBitPacked(src []byte, count int, bitWidth int) []uint32 {
	dst := make([]uint32, count)
	for i := range dst {
		var v uint32
		for b := 0; b < bitWidth; b++ {
			bit := i*bitWidth + b
			if src[bit/8]&(1<<(bit%8)) != 0 {
				v |= 1 << b
			}
		}
		dst[i] = v
	}
	return dst
}

// decodeLevels reads a length-prefixed level stream.
func decodeLevels(data []byte, numValues int, maxLevel int) ([]uint32, []byte, error) {
	if len(data) < 4 {
		return nil, data, io.ErrUnexpectedEOF
	}
	length := int(binary.LittleEndian.Uint32(data))
	if 4+length > len(data) {
		return nil, data, errors.Errorf("invalid level stream length: %d", length)
	}
	levels, _, err := decodeRLE(data[4:4+length], numValues, levelBitWidth(maxLevel))
	return levels, data[4+length:], err
}

type parquetFile struct {
	data     []byte
	metadata format.FileMetaData
}

// readFile checks the magic markers with a kaitai stream and decodes the
// footer.
func readFile(t *testing.T, data []byte) *parquetFile {
	t.Helper()

	ks := kaitai.NewStream(bytes.NewReader(data))
	head, err := ks.ReadBytes(4)
	require.NoError(t, err)
	require.Equal(t, magic, string(head))

	size, err := ks.Size()
	require.NoError(t, err)
	require.GreaterOrEqual(t, size, int64(12))
	_, err = ks.Seek(size-8, io.SeekStart)
	require.NoError(t, err)
	footerLen, err := ks.ReadU4le()
	require.NoError(t, err)
	tail, err := ks.ReadBytes(4)
	require.NoError(t, err)
	require.Equal(t, magic, string(tail))

	footerStart := size - 8 - int64(footerLen)
	require.GreaterOrEqual(t, footerStart, int64(4))

	f := &parquetFile{data: data}
	err = thrift.Unmarshal(new(thrift.CompactProtocol), data[footerStart:size-8], &f.metadata)
	require.NoError(t, err)
	return f
}

type readPage struct {
	offset int64
	header format.PageHeader
	body   []byte // decompressed
}

// readChunk decodes every page of a column chunk.
func (f *parquetFile) readChunk(t *testing.T, chunk *format.ColumnChunk) []readPage {
	t.Helper()

	md := &chunk.MetaData
	start := md.DataPageOffset
	if md.DictionaryPageOffset != 0 {
		start = md.DictionaryPageOffset
	}
	r := bytes.NewReader(f.data[start : start+md.TotalCompressedSize])
	decoder := thrift.NewDecoder(new(thrift.CompactProtocol).NewReader(r))

	var pages []readPage
	for r.Len() > 0 {
		offset := start + md.TotalCompressedSize - int64(r.Len())
		p := readPage{offset: offset}
		require.NoError(t, decoder.Decode(&p.header))

		body := make([]byte, p.header.CompressedPageSize)
		_, err := io.ReadFull(r, body)
		require.NoError(t, err)
		p.body, err = decompressData(body, md.Codec)
		require.NoError(t, err)
		require.Len(t, p.body, int(p.header.UncompressedPageSize))
		pages = append(pages, p)
	}
	return pages
}

type pageValues struct {
	rep, def []uint32
	values   []interface{}
}

// decodeDataPage splits a decompressed data page into its level streams and
// values, resolving dictionary indices against dict.
func decodeDataPage(t *testing.T, p readPage, typ format.Type, maxRep, maxDef int, dict []interface{}) pageValues {
	t.Helper()
	require.Equal(t, format.DataPage, p.header.Type)
	h := p.header.DataPageHeader
	require.NotNil(t, h)
	n := int(h.NumValues)

	var out pageValues
	var err error
	data := p.body
	if maxRep > 0 {
		out.rep, data, err = decodeLevels(data, n, maxRep)
		require.NoError(t, err)
	}
	if maxDef > 0 {
		out.def, data, err = decodeLevels(data, n, maxDef)
		require.NoError(t, err)
	}

	present := n
	if maxDef > 0 {
		present = 0
		for _, d := range out.def {
			if int(d) == maxDef {
				present++
			}
		}
	}

	switch h.Encoding {
	case format.Plain:
		out.values, err = decodePlainValues(data, typ, present)
		require.NoError(t, err)
	case format.PlainDictionary:
		require.NotEmpty(t, data)
		indices, _, err := decodeRLE(data[1:], present, int(data[0]))
		require.NoError(t, err)
		for _, idx := range indices {
			require.Less(t, int(idx), len(dict))
			out.values = append(out.values, dict[idx])
		}
	default:
		t.Fatalf("unexpected encoding %d", h.Encoding)
	}
	return out
}

type columnValues struct {
	rep, def  []uint32
	values    []interface{}
	encodings []format.Encoding // per data page
}

// readColumn decodes every value of a column chunk.
func (f *parquetFile) readColumn(t *testing.T, chunk *format.ColumnChunk, maxRep, maxDef int) columnValues {
	t.Helper()

	var dict []interface{}
	var out columnValues
	for i, p := range f.readChunk(t, chunk) {
		if p.header.Type == format.DictionaryPage {
			require.Zero(t, i, "dictionary page must come first")
			var err error
			dict, err = decodePlainValues(p.body, chunk.MetaData.Type, int(p.header.DictionaryPageHeader.NumValues))
			require.NoError(t, err)
			continue
		}
		v := decodeDataPage(t, p, chunk.MetaData.Type, maxRep, maxDef, dict)
		out.rep = append(out.rep, v.rep...)
		out.def = append(out.def, v.def...)
		out.values = append(out.values, v.values...)
		out.encodings = append(out.encodings, p.header.DataPageHeader.Encoding)
	}
	return out
}
