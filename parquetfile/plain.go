package parquetfile

import (
	"encoding/binary"
	"math"
)

// PLAIN encoding of single values, as handed to Column.Append. Fixed-width
// values are little-endian. Variable-length values are passed raw; the
// 4-byte length prefix is added when the value lands in a page or a
// dictionary.

func AppendInt32(b []byte, v int32) []byte {
	return binary.LittleEndian.AppendUint32(b, uint32(v))
}

func AppendInt64(b []byte, v int64) []byte {
	return binary.LittleEndian.AppendUint64(b, uint64(v))
}

func AppendFloat(b []byte, v float32) []byte {
	return binary.LittleEndian.AppendUint32(b, math.Float32bits(v))
}

func AppendDouble(b []byte, v float64) []byte {
	return binary.LittleEndian.AppendUint64(b, math.Float64bits(v))
}

func appendPlain(b, value []byte, varlen bool) []byte {
	if varlen {
		b = binary.LittleEndian.AppendUint32(b, uint32(len(value)))
	}
	return append(b, value...)
}

func plainSize(value []byte, varlen bool) int {
	if varlen {
		return 4 + len(value)
	}
	return len(value)
}

// boolPacker packs booleans one bit per value, LSB first.
type boolPacker struct {
	cur byte
	n   int
}

func (p *boolPacker) put(dst []byte, v bool) []byte {
	if v {
		p.cur |= 1 << p.n
	}
	p.n++
	if p.n == 8 {
		dst = append(dst, p.cur)
		p.cur, p.n = 0, 0
	}
	return dst
}

// flush writes a partially filled byte, if any.
func (p *boolPacker) flush(dst []byte) []byte {
	if p.n > 0 {
		dst = append(dst, p.cur)
	}
	p.cur, p.n = 0, 0
	return dst
}
