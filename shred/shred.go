// Package shred flattens nested records into leaf column values, computing
// the repetition and definition level of every value as described in the
// Dremel paper.
package shred

import (
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/parquet-go/parquet-go/format"
	"github.com/pkg/errors"

	"proto2parquet/parquetfile"
	"proto2parquet/schema"
)

var ErrUnsupportedValue = errors.New("unsupported value type")

// Record gives access to the fields of one record by their ordinal in the
// schema node's parent. A nil Record is an absent record.
type Record interface {
	// Has reports whether a singular field is set.
	Has(field int) bool
	// Len returns the number of elements of a repeated field.
	Len(field int) int
	// Get returns a scalar field, or element index of a repeated one when
	// index >= 0. Values are bool, int32, uint32, int64, uint64, float32,
	// float64, string or []byte.
	Get(field, index int) any
	// Message returns a nested record the same way Get returns scalars,
	// or nil when it is not set.
	Message(field, index int) Record
}

// Sink receives the values of every leaf column, addressed by schema node
// index. A nil value is an absent value.
type Sink interface {
	Append(node int, value []byte, varlen bool, rep, def int) error
	AppendBool(node int, v bool, rep, def int) error
	EndRecord() error
}

// Shredder walks a schema against records and pushes leaf values into a
// Sink. It is not safe for concurrent use.
type Shredder struct {
	schema *schema.Schema
	sink   Sink
	logger log.Logger
	trace  bool

	scratch []byte
}

// New returns a Shredder. When trace is set every emitted value is logged at
// debug level.
func New(s *schema.Schema, sink Sink, logger log.Logger, trace bool) *Shredder {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Shredder{
		schema:  s,
		sink:    sink,
		logger:  logger,
		trace:   trace,
		scratch: make([]byte, 0, 64),
	}
}

// Shred emits exactly one value or placeholder per leaf for every path
// through rec, then ends the record.
func (s *Shredder) Shred(rec Record) error {
	for _, c := range s.schema.Root().Children {
		if err := s.propagate(c, rec, 0, 0); err != nil {
			return err
		}
	}
	return s.sink.EndRecord()
}

// propagate emits field i of parent. Only a present value raises the
// definition level, and only elements after the first of a repeated field
// take the field's own repetition level.
func (s *Shredder) propagate(i int, parent Record, rep, def int) error {
	n := s.schema.Node(i)
	switch n.Repetition {
	case format.Required:
		if parent == nil {
			return s.absent(n, rep, def)
		}
		return s.present(n, parent, -1, rep, def)

	case format.Optional:
		if parent == nil || !parent.Has(n.Field) {
			return s.absent(n, rep, def)
		}
		return s.present(n, parent, -1, rep, def+1)

	case format.Repeated:
		count := 0
		if parent != nil {
			count = parent.Len(n.Field)
		}
		if count == 0 {
			return s.absent(n, rep, def)
		}
		for idx := 0; idx < count; idx++ {
			r := rep
			if idx > 0 {
				r = n.MaxRep
			}
			if err := s.present(n, parent, idx, r, def+1); err != nil {
				return err
			}
		}
		return nil

	default:
		return errors.Errorf("%s: unknown repetition %d", n.PathString(), n.Repetition)
	}
}

// absent emits a placeholder at every leaf under n.
func (s *Shredder) absent(n *schema.Node, rep, def int) error {
	if !n.Leaf() {
		for _, c := range n.Children {
			if err := s.propagate(c, nil, rep, def); err != nil {
				return err
			}
		}
		return nil
	}
	if s.trace {
		level.Debug(s.logger).Log("path", n.PathString(), "value", "NULL", "R", rep, "D", def)
	}
	return s.sink.Append(n.Index, nil, n.VarLen(), rep, def)
}

func (s *Shredder) present(n *schema.Node, parent Record, index, rep, def int) error {
	if !n.Leaf() {
		child := parent.Message(n.Field, index)
		for _, c := range n.Children {
			if err := s.propagate(c, child, rep, def); err != nil {
				return err
			}
		}
		return nil
	}

	v := parent.Get(n.Field, index)
	if s.trace {
		level.Debug(s.logger).Log("path", n.PathString(), "value", v, "R", rep, "D", def)
	}
	return s.emit(n, v, rep, def)
}

// emit encodes v by the leaf's physical type and hands it to the sink.
func (s *Shredder) emit(n *schema.Node, v any, rep, def int) error {
	b := s.scratch[:0]
	switch n.Type {
	case format.Boolean:
		if x, ok := v.(bool); ok {
			return s.sink.AppendBool(n.Index, x, rep, def)
		}
		return s.unsupported(n, v)

	case format.Int32:
		switch x := v.(type) {
		case int32:
			b = parquetfile.AppendInt32(b, x)
		case uint32:
			b = parquetfile.AppendInt32(b, int32(x))
		default:
			return s.unsupported(n, v)
		}

	case format.Int64:
		switch x := v.(type) {
		case int64:
			b = parquetfile.AppendInt64(b, x)
		case uint64:
			b = parquetfile.AppendInt64(b, int64(x))
		default:
			return s.unsupported(n, v)
		}

	case format.Float:
		x, ok := v.(float32)
		if !ok {
			return s.unsupported(n, v)
		}
		b = parquetfile.AppendFloat(b, x)

	case format.Double:
		x, ok := v.(float64)
		if !ok {
			return s.unsupported(n, v)
		}
		b = parquetfile.AppendDouble(b, x)

	case format.ByteArray:
		switch x := v.(type) {
		case string:
			b = append(b, x...)
		case []byte:
			b = append(b, x...)
		default:
			return s.unsupported(n, v)
		}

	default:
		return errors.Wrapf(schema.ErrUnsupportedType, "%s: %s", n.PathString(), schema.TypeName(n.Type))
	}
	s.scratch = b
	return s.sink.Append(n.Index, b, n.VarLen(), rep, def)
}

func (s *Shredder) unsupported(n *schema.Node, v any) error {
	return errors.Wrapf(ErrUnsupportedValue, "%s: %T for %s column", n.PathString(), v, schema.TypeName(n.Type))
}
