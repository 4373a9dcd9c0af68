package parquetfile

import (
	"math/bits"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/parquet-go/parquet-go/format"
	"github.com/pkg/errors"

	"proto2parquet/schema"
)

// Column buffers the values of one leaf column. Values accumulate into a
// page until it is full, finalized pages accumulate into the column chunk of
// the open row group, and the chunk is written when the row group is
// flushed.
type Column struct {
	node   *schema.Node
	path   string
	logger log.Logger

	metrics  *Metrics
	codec    *Codec
	pageSize int

	// The encoding a row group starts with, the one in effect, and the ones
	// used so far in this row group. Only ever narrows from PLAIN_DICTIONARY
	// to PLAIN until the row group is written.
	initialEncoding format.Encoding
	encoding        format.Encoding
	encodings       []format.Encoding

	dict          *Dictionary
	indexBitWidth int

	// Page state.
	rep, def, indices *rleEncoder
	data              []byte
	bools             boolPacker
	numPageValues     int
	buf               []byte

	// Row group state.
	pages            []page
	numRecords       int64
	numValues        int64
	uncompressedSize int64
	compressedSize   int64
}

// NewColumn returns the writer of a leaf column.
func NewColumn(node *schema.Node, cfg Config, logger log.Logger, metrics *Metrics) (*Column, error) {
	if !node.Leaf() {
		return nil, errors.Errorf("%s is not a leaf", node.PathString())
	}
	codecType, err := ParseCompression(cfg.Compression)
	if err != nil {
		return nil, err
	}
	codec, err := NewCodec(codecType)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}

	pageSize := int(cfg.PageSize)
	c := &Column{
		node:     node,
		path:     node.PathString(),
		logger:   logger,
		metrics:  metrics,
		codec:    codec,
		pageSize: pageSize,
		rep:      newRLEEncoder(levelBitWidth(node.MaxRep), pageSize),
		def:      newRLEEncoder(levelBitWidth(node.MaxDef), pageSize),
	}

	c.initialEncoding = format.PlainDictionary
	if node.Type == format.Boolean || !cfg.Dictionary {
		c.initialEncoding = format.Plain
	}
	if c.initialEncoding == format.PlainDictionary {
		c.dict = NewDictionary(cfg.DictionaryMaxEntries)
		c.indexBitWidth = max(1, bits.Len(uint(cfg.DictionaryMaxEntries-1)))
		c.indices = newRLEEncoder(c.indexBitWidth, pageSize)
	}
	c.resetRowGroup()
	return c, nil
}

// Node returns the schema node the column writes.
func (c *Column) Node() *schema.Node { return c.node }

// Append adds one value, or an absent value when value is nil, with its
// levels. Variable-length values are passed without their length prefix.
func (c *Column) Append(value []byte, varlen bool, rep, def int) error {
	if err := c.checkLevels(rep, def); err != nil {
		return err
	}
	if (value != nil) != (def == c.node.MaxDef) {
		return errors.Wrapf(ErrValueType, "column %s: present=%v at D=%d, max D=%d", c.path, value != nil, def, c.node.MaxDef)
	}
	if value != nil {
		if err := c.checkValue(value, varlen); err != nil {
			return err
		}
	}

	var (
		index   uint32
		pending int
	)
	if value != nil {
		switch c.encoding {
		case format.Plain:
			pending = plainSize(value, varlen)

		case format.PlainDictionary:
			i, err := c.dict.Encode(value, varlen)
			switch {
			case err == nil:
				index = i
			case errors.Is(err, ErrDictionaryOverflow):
				if err := c.fallbackToPlain(); err != nil {
					return err
				}
				pending = plainSize(value, varlen)
			default:
				return errors.Wrapf(err, "column %s", c.path)
			}

		default:
			return errors.Wrapf(ErrUnsupportedEncoding, "column %s: encoding %d", c.path, c.encoding)
		}
	}

	if err := c.checkFull(pending); err != nil {
		return err
	}
	c.addLevels(rep, def)

	if value != nil {
		switch c.encoding {
		case format.Plain:
			c.data = appendPlain(c.data, value, varlen)
		case format.PlainDictionary:
			c.indices.Put(index)
		}
	}
	return nil
}

// AppendBool adds one present boolean value. Absent booleans go through
// Append with a nil value.
func (c *Column) AppendBool(v bool, rep, def int) error {
	if c.node.Type != format.Boolean {
		return errors.Wrapf(ErrValueType, "column %s: boolean value for %s", c.path, schema.TypeName(c.node.Type))
	}
	if err := c.checkLevels(rep, def); err != nil {
		return err
	}
	if def != c.node.MaxDef {
		return errors.Wrapf(ErrValueType, "column %s: present=true at D=%d, max D=%d", c.path, def, c.node.MaxDef)
	}
	if err := c.checkFull(1); err != nil {
		return err
	}
	c.addLevels(rep, def)
	c.data = c.bools.put(c.data, v)
	return nil
}

func (c *Column) checkLevels(rep, def int) error {
	if rep < 0 || rep > c.node.MaxRep || def < 0 || def > c.node.MaxDef {
		return errors.Wrapf(ErrInvalidLevel, "column %s: R=%d D=%d, max R=%d D=%d",
			c.path, rep, def, c.node.MaxRep, c.node.MaxDef)
	}
	return nil
}

func (c *Column) checkValue(value []byte, varlen bool) error {
	var ok bool
	switch c.node.Type {
	case format.Int32, format.Float:
		ok = !varlen && len(value) == 4
	case format.Int64, format.Double:
		ok = !varlen && len(value) == 8
	case format.ByteArray:
		ok = varlen
	}
	if !ok {
		return errors.Wrapf(ErrValueType, "column %s: %d byte value for %s", c.path, len(value), schema.TypeName(c.node.Type))
	}
	return nil
}

func (c *Column) addLevels(rep, def int) {
	if c.node.MaxRep > 0 {
		c.rep.Put(uint32(rep))
	}
	if c.node.MaxDef > 0 {
		c.def.Put(uint32(def))
	}
	c.numPageValues++
	if rep == 0 {
		c.numRecords++
	}
}

// isFull reports whether pending more value bytes would overflow the page,
// or whether any of the bit-packed encoders is out of room.
func (c *Column) isFull(pending int) bool {
	switch {
	case len(c.data)+pending > c.pageSize:
		return true
	case c.node.MaxRep > 0 && c.rep.Full():
		return true
	case c.node.MaxDef > 0 && c.def.Full():
		return true
	case c.encoding == format.PlainDictionary && c.indices.Full():
		return true
	}
	return false
}

func (c *Column) checkFull(pending int) error {
	if c.numPageValues > 0 && c.isFull(pending) {
		return c.finalizePage()
	}
	return nil
}

func (c *Column) fallbackToPlain() error {
	if c.numPageValues > 0 {
		if err := c.finalizePage(); err != nil {
			return err
		}
	}
	c.encoding = format.Plain
	c.encodings = append(c.encodings, format.Plain)
	c.metrics.dictionaryFallbacks.Inc()
	level.Debug(c.logger).Log("msg", "dictionary full, falling back to plain encoding", "column", c.path, "entries", c.dict.Len())
	return nil
}

// finalizePage encodes and compresses the open page and appends it to the
// row group's page list.
func (c *Column) finalizePage() error {
	var rep, def []byte
	if c.node.MaxRep > 0 {
		c.rep.Flush()
		rep = c.rep.Bytes()
	}
	if c.node.MaxDef > 0 {
		c.def.Flush()
		def = c.def.Bytes()
	}
	c.data = c.bools.flush(c.data)

	buf := c.buf[:0]
	buf = appendLevelStream(buf, rep)
	buf = appendLevelStream(buf, def)
	switch c.encoding {
	case format.Plain:
		buf = append(buf, c.data...)
	case format.PlainDictionary:
		c.indices.Flush()
		buf = append(buf, byte(c.indexBitWidth))
		buf = append(buf, c.indices.Bytes()...)
	default:
		return errors.Wrapf(ErrUnsupportedEncoding, "column %s: encoding %d", c.path, c.encoding)
	}

	uncompressed := len(buf)
	body, err := c.codec.Compress(buf)
	if err != nil {
		return errors.Wrapf(err, "column %s", c.path)
	}
	if c.codec.CompressionCodec() == format.Uncompressed {
		// The page owns buf now.
		c.buf = nil
	} else {
		c.buf = buf
	}

	c.pages = append(c.pages, newDataPage(c.numPageValues, c.encoding, uncompressed, body))
	c.numValues += int64(c.numPageValues)
	c.uncompressedSize += int64(uncompressed)
	c.compressedSize += int64(len(body))
	c.metrics.pages.WithLabelValues("data").Inc()
	level.Debug(c.logger).Log("msg", "finalized page", "column", c.path, "page", len(c.pages)-1,
		"values", c.numPageValues, "uncompressed", uncompressed, "compressed", len(body))

	c.resetPage()
	return nil
}

// writeRowGroup writes the column chunk of the open row group: the
// dictionary page, if the row group started dictionary encoded, then every
// data page. Row group state is reset afterwards.
func (c *Column) writeRowGroup(s *sink) (format.ColumnChunk, error) {
	if c.numPageValues > 0 {
		if err := c.finalizePage(); err != nil {
			return format.ColumnChunk{}, err
		}
	}

	md := format.ColumnMetaData{
		Type:         c.node.Type,
		Encoding:     append([]format.Encoding(nil), c.encodings...),
		PathInSchema: c.node.Path[1:],
		Codec:        c.codec.CompressionCodec(),
		NumValues:    c.numValues,
	}
	chunkOffset := s.Offset()
	uncompressed, compressed := c.uncompressedSize, c.compressedSize

	if c.initialEncoding == format.PlainDictionary {
		data := c.dict.Bytes()
		body, err := c.codec.Compress(data)
		if err != nil {
			return format.ColumnChunk{}, errors.Wrapf(err, "column %s: dictionary", c.path)
		}
		p := newDictionaryPage(c.dict.Len(), len(data), body)
		md.DictionaryPageOffset = s.Offset()
		n, err := p.writeTo(s)
		if err != nil {
			return format.ColumnChunk{}, errors.Wrapf(err, "column %s: dictionary", c.path)
		}
		uncompressed += n + int64(len(data))
		compressed += n + int64(len(body))
		c.metrics.pages.WithLabelValues("dictionary").Inc()
	}

	md.DataPageOffset = s.Offset()
	for i := range c.pages {
		n, err := c.pages[i].writeTo(s)
		if err != nil {
			return format.ColumnChunk{}, errors.Wrapf(err, "column %s: page %d", c.path, i)
		}
		uncompressed += n
		compressed += n
	}
	md.TotalUncompressedSize = uncompressed
	md.TotalCompressedSize = compressed

	c.resetRowGroup()
	return format.ColumnChunk{FileOffset: chunkOffset, MetaData: md}, nil
}

// EstimatedRowGroupSize roughly sizes the open row group, assuming the
// dictionary compresses 3:1 and 100 bytes of header per page. It is only
// used to decide when to flush.
func (c *Column) EstimatedRowGroupSize() int64 {
	var dict int
	if c.dict != nil {
		dict = c.dict.Size()
	}
	return int64(dict/3+100+len(c.pages)*100) + c.compressedSize
}

// NumRecords returns the records buffered in the open row group.
func (c *Column) NumRecords() int64 { return c.numRecords }

func (c *Column) resetPage() {
	c.data = c.data[:0]
	c.numPageValues = 0
	c.rep.Reset()
	c.def.Reset()
	if c.indices != nil {
		c.indices.Reset()
	}
	c.bools = boolPacker{}
}

func (c *Column) resetRowGroup() {
	c.resetPage()
	c.encoding = c.initialEncoding
	c.encodings = append(c.encodings[:0], c.initialEncoding)
	c.pages = c.pages[:0]
	c.numRecords = 0
	c.numValues = 0
	c.uncompressedSize = 0
	c.compressedSize = 0
	if c.dict != nil {
		c.dict.Reset()
	}
}
