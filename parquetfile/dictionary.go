package parquetfile

import (
	"encoding/binary"

	"github.com/dolthub/swiss"
	"github.com/pkg/errors"
)

// DefaultDictionaryMaxEntries bounds the number of distinct values a column
// dictionary holds within one row group.
const DefaultDictionaryMaxEntries = 40 * 1000

// Dictionary interns values to dense indices in first-seen order. Data holds
// the PLAIN encoding of every interned value, which is the dictionary page
// body.
type Dictionary struct {
	maxEntries int
	index      *swiss.Map[string, uint32]
	data       []byte
}

// NewDictionary returns an empty dictionary holding at most maxEntries values.
func NewDictionary(maxEntries int) *Dictionary {
	return &Dictionary{
		maxEntries: maxEntries,
		index:      swiss.NewMap[string, uint32](uint32(min(maxEntries, 1024))),
	}
}

// Encode returns the index of value, interning it if it was not seen since
// the last Reset. When the table is full, ErrDictionaryOverflow is returned
// and the dictionary is left unchanged.
func (d *Dictionary) Encode(value []byte, varlen bool) (uint32, error) {
	if idx, ok := d.index.Get(string(value)); ok {
		return idx, nil
	}
	n := d.index.Count()
	if n >= d.maxEntries {
		return 0, errors.Wrapf(ErrDictionaryOverflow, "%d entries", n)
	}
	if varlen {
		d.data = binary.LittleEndian.AppendUint32(d.data, uint32(len(value)))
	}
	d.data = append(d.data, value...)
	idx := uint32(n)
	d.index.Put(string(value), idx)
	return idx, nil
}

// Len returns the number of interned values.
func (d *Dictionary) Len() int { return d.index.Count() }

// Bytes returns the PLAIN-encoded values in index order. The slice is only
// valid until the next Encode or Reset.
func (d *Dictionary) Bytes() []byte { return d.data }

// Size returns the length of the encoded values in bytes.
func (d *Dictionary) Size() int { return len(d.data) }

// Reset empties the dictionary. Only called at row-group boundaries.
func (d *Dictionary) Reset() {
	d.index.Clear()
	d.data = d.data[:0]
}
