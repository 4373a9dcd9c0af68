// Package parquetfile writes Parquet files from shredded column values:
// format version 1, data page v1, PLAIN or PLAIN_DICTIONARY encoded values,
// RLE/bit-packed levels, and UNCOMPRESSED, SNAPPY or GZIP pages.
package parquetfile

import (
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/parquet-go/parquet-go/format"
	"github.com/pkg/errors"

	"proto2parquet/schema"
)

// Writer assembles a Parquet file. It owns the output and the leaf columns,
// decides when to flush row groups, and writes the footer on Close.
//
// A Writer is not safe for concurrent use.
type Writer struct {
	cfg     Config
	logger  log.Logger
	metrics *Metrics

	out    *sink
	closer io.Closer
	closed bool

	schema *schema.Schema
	// columns is indexed by schema node; internal nodes have no column.
	columns []*Column
	leaves  []*Column

	metadata  format.FileMetaData
	records   int64
	sinceSize int
}

// NewWriter writes the leading magic to w and returns a Writer. The schema
// has to be set with SetRoot before any value is appended.
func NewWriter(w io.Writer, cfg Config, logger log.Logger, metrics *Metrics) (*Writer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid writer config")
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}

	fw := &Writer{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		out:     newSink(w, int(cfg.WriteBufferSize)),
		metadata: format.FileMetaData{
			Version:   1,
			CreatedBy: cfg.CreatedBy,
		},
	}
	if _, err := fw.out.Write([]byte(magic)); err != nil {
		return nil, errors.Wrap(err, "writing magic")
	}
	return fw, nil
}

// Create creates the file at path, which must not exist yet, and returns a
// Writer for it. The file is closed by Writer.Close.
func Create(path string, cfg Config, logger log.Logger, metrics *Metrics) (*Writer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid writer config")
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o664)
	if err != nil {
		return nil, errors.Wrap(err, "creating output file")
	}
	w, err := NewWriter(f, cfg, logger, metrics)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	w.closer = f
	return w, nil
}

// SetRoot sets the schema: it builds the footer's schema elements in
// pre-order and one column per leaf, in the same order.
func (w *Writer) SetRoot(s *schema.Schema) error {
	if w.schema != nil {
		return errors.New("schema root already set")
	}

	columns := make([]*Column, len(s.Nodes))
	var leaves []*Column
	var elements []format.SchemaElement
	err := s.Walk(func(n *schema.Node) error {
		elements = append(elements, schemaElement(n))
		if n.Index == schema.Root || !n.Leaf() {
			return nil
		}
		c, err := NewColumn(n, w.cfg, w.logger, w.metrics)
		if err != nil {
			return err
		}
		columns[n.Index] = c
		leaves = append(leaves, c)
		return nil
	})
	if err != nil {
		return err
	}

	w.schema = s
	w.columns = columns
	w.leaves = leaves
	w.metadata.Schema = elements
	return nil
}

// schemaElement describes n in the footer. Internal elements carry a child
// count, leaves a physical type; never both.
func schemaElement(n *schema.Node) format.SchemaElement {
	elem := format.SchemaElement{Name: n.Name()}
	if n.Index != schema.Root {
		repetition := n.Repetition
		elem.RepetitionType = &repetition
	}
	if !n.Leaf() {
		elem.NumChildren = int32(len(n.Children))
		return elem
	}
	typ := n.Type
	elem.Type = &typ
	if n.Converted != nil {
		converted := *n.Converted
		elem.ConvertedType = &converted
	}
	return elem
}

func (w *Writer) column(node int) (*Column, error) {
	if w.closed {
		return nil, ErrClosed
	}
	if w.schema == nil {
		return nil, ErrNoRoot
	}
	if node < 0 || node >= len(w.columns) || w.columns[node] == nil {
		return nil, errors.Errorf("node %d is not a leaf column", node)
	}
	return w.columns[node], nil
}

// Append adds a value, or an absent value when value is nil, to the column
// of the leaf node.
func (w *Writer) Append(node int, value []byte, varlen bool, rep, def int) error {
	c, err := w.column(node)
	if err != nil {
		return err
	}
	return c.Append(value, varlen, rep, def)
}

// AppendBool adds a present boolean to the column of the leaf node.
func (w *Writer) AppendBool(node int, v bool, rep, def int) error {
	c, err := w.column(node)
	if err != nil {
		return err
	}
	return c.AppendBool(v, rep, def)
}

// EndRecord marks a record boundary. Every SizeCheckInterval records the
// open row group is sized, and flushed once it reaches RowGroupSize.
func (w *Writer) EndRecord() error {
	if w.closed {
		return ErrClosed
	}
	w.records++
	w.metrics.records.Inc()

	w.sinceSize++
	if w.sinceSize < w.cfg.SizeCheckInterval {
		return nil
	}
	w.sinceSize = 0

	if w.EstimatedRowGroupSize() >= int64(w.cfg.RowGroupSize) {
		return w.FlushRowGroup()
	}
	return nil
}

// EstimatedRowGroupSize sums the estimates of all leaf columns.
func (w *Writer) EstimatedRowGroupSize() int64 {
	var size int64
	for _, c := range w.leaves {
		size += c.EstimatedRowGroupSize()
	}
	return size
}

// NumRecords returns the number of records ended so far.
func (w *Writer) NumRecords() int64 { return w.records }

// FlushRowGroup writes the open row group. All leaf columns must hold the
// same number of records; a row group without records is skipped.
func (w *Writer) FlushRowGroup() error {
	if w.closed {
		return ErrClosed
	}
	if w.schema == nil {
		return ErrNoRoot
	}
	if len(w.leaves) == 0 {
		return nil
	}

	first := w.leaves[0]
	numRows := first.NumRecords()
	for _, c := range w.leaves[1:] {
		if c.NumRecords() != numRows {
			return errors.Wrapf(ErrRecordCountMismatch, "%s has %d, %s has %d",
				first.path, numRows, c.path, c.NumRecords())
		}
	}
	if numRows == 0 {
		return nil
	}

	start := w.out.Offset()
	rg := format.RowGroup{
		NumRows:    numRows,
		FileOffset: start,
		Ordinal:    int16(len(w.metadata.RowGroups)),
	}
	for _, c := range w.leaves {
		chunk, err := c.writeRowGroup(w.out)
		if err != nil {
			return errors.Wrapf(err, "row group %d", rg.Ordinal)
		}
		rg.TotalByteSize += chunk.MetaData.TotalUncompressedSize
		rg.TotalCompressedSize += chunk.MetaData.TotalCompressedSize
		rg.Columns = append(rg.Columns, chunk)
	}

	w.metadata.NumRows += numRows
	w.metadata.RowGroups = append(w.metadata.RowGroups, rg)
	w.metrics.rowGroups.Inc()
	level.Info(w.logger).Log("msg", "wrote row group", "ordinal", rg.Ordinal, "records", numRows,
		"size", humanize.IBytes(uint64(w.out.Offset()-start)))
	return nil
}

// Close flushes the open row group, writes the footer and closes the file
// opened by Create.
func (w *Writer) Close() error {
	if w.closed {
		return ErrClosed
	}
	err := w.close()
	w.closed = true
	if w.closer != nil {
		if cerr := w.closer.Close(); err == nil && cerr != nil {
			err = errors.Wrap(cerr, "closing output file")
		}
	}
	return err
}

func (w *Writer) close() error {
	if w.schema == nil {
		return ErrNoRoot
	}
	if err := w.FlushRowGroup(); err != nil {
		return err
	}
	if err := w.out.WriteFooter(&w.metadata); err != nil {
		return err
	}
	if err := w.out.Flush(); err != nil {
		return err
	}
	w.metrics.bytesWritten.Add(float64(w.out.Offset()))
	level.Debug(w.logger).Log("msg", "wrote footer", "row_groups", len(w.metadata.RowGroups),
		"rows", w.metadata.NumRows, "size", humanize.IBytes(uint64(w.out.Offset())))
	return nil
}
