// Package schema holds the resolved schema tree the writer shreds records
// against. Nodes live in a flat arena and refer to each other by index.
package schema

import (
	"fmt"
	"io"
	"strings"

	"github.com/parquet-go/parquet-go/deprecated"
	"github.com/parquet-go/parquet-go/format"
	"github.com/pkg/errors"
)

// Root is the arena index of the record root.
const Root = 0

var (
	ErrUnsupportedType = errors.New("unsupported physical type")
	ErrInvalidField    = errors.New("invalid field")
)

// Node is one field of the schema, or the record root.
type Node struct {
	Index  int
	Parent int

	// Path holds the field names from the root, root name first.
	Path []string

	// Field is the ordinal of this field within its parent record.
	Field int

	Type       format.Type
	Converted  *deprecated.ConvertedType
	Repetition format.FieldRepetitionType
	Source     string

	MaxRep int
	MaxDef int

	Children []int
}

// Name returns the last path element.
func (n *Node) Name() string { return n.Path[len(n.Path)-1] }

// PathString returns the dotted path, root included.
func (n *Node) PathString() string { return strings.Join(n.Path, ".") }

// Leaf reports whether the node carries values.
func (n *Node) Leaf() bool { return len(n.Children) == 0 }

// VarLen reports whether values of this node are length-prefixed.
func (n *Node) VarLen() bool { return n.Type == format.ByteArray }

// Schema is an immutable arena of nodes. Nodes[Root] is the record root and
// the remaining nodes follow in pre-order, which is also the column order.
type Schema struct {
	Nodes  []Node
	leaves []int
}

// New resolves a schema tree rooted at a record named name.
func New(name string, fields []Field) (*Schema, error) {
	if name == "" {
		return nil, errors.Wrap(ErrInvalidField, "root has no name")
	}
	if len(fields) == 0 {
		return nil, errors.Wrapf(ErrInvalidField, "root %s has no fields", name)
	}

	s := &Schema{}
	s.Nodes = append(s.Nodes, Node{
		Index:      Root,
		Parent:     -1,
		Path:       []string{name},
		Field:      -1,
		Repetition: format.Required,
		Source:     "message",
	})
	if err := s.addChildren(Root, fields); err != nil {
		return nil, err
	}
	for i := range s.Nodes {
		if i != Root && s.Nodes[i].Leaf() {
			s.leaves = append(s.leaves, i)
		}
	}
	return s, nil
}

func (s *Schema) addChildren(parent int, fields []Field) error {
	seen := make(map[string]struct{}, len(fields))
	for ordinal := range fields {
		f := &fields[ordinal]
		p := &s.Nodes[parent]
		path := make([]string, len(p.Path), len(p.Path)+1)
		copy(path, p.Path)
		path = append(path, f.Name)

		if f.Name == "" {
			return errors.Wrapf(ErrInvalidField, "field %d of %s has no name", ordinal, p.PathString())
		}
		if _, ok := seen[f.Name]; ok {
			return errors.Wrapf(ErrInvalidField, "duplicate field %s", strings.Join(path, "."))
		}
		seen[f.Name] = struct{}{}

		n := Node{
			Index:      len(s.Nodes),
			Parent:     parent,
			Path:       path,
			Field:      ordinal,
			Converted:  f.Converted,
			Repetition: f.Repetition,
			Source:     f.Source,
			MaxRep:     p.MaxRep,
			MaxDef:     p.MaxDef,
		}
		switch f.Repetition {
		case format.Required:
		case format.Optional:
			n.MaxDef++
		case format.Repeated:
			n.MaxRep++
			n.MaxDef++
		default:
			return errors.Wrapf(ErrInvalidField, "field %s has repetition %d", n.PathString(), f.Repetition)
		}
		if !f.Group() {
			if !supportedType(f.Type) {
				return errors.Wrapf(ErrUnsupportedType, "field %s: %s", n.PathString(), TypeName(f.Type))
			}
			n.Type = f.Type
		}

		s.Nodes = append(s.Nodes, n)
		s.Nodes[parent].Children = append(s.Nodes[parent].Children, n.Index)

		if f.Group() {
			if err := s.addChildren(n.Index, f.Fields); err != nil {
				return err
			}
		}
	}
	return nil
}

// Root returns the record root.
func (s *Schema) Root() *Node { return &s.Nodes[Root] }

// Node returns the node at index i.
func (s *Schema) Node(i int) *Node { return &s.Nodes[i] }

// Leaves returns the leaf node indices in column order.
func (s *Schema) Leaves() []int { return s.leaves }

// Walk visits every node in pre-order, root first.
func (s *Schema) Walk(fn func(n *Node) error) error {
	return s.walk(Root, fn)
}

func (s *Schema) walk(i int, fn func(n *Node) error) error {
	if err := fn(&s.Nodes[i]); err != nil {
		return err
	}
	for _, c := range s.Nodes[i].Children {
		if err := s.walk(c, fn); err != nil {
			return err
		}
	}
	return nil
}

// Dump writes one line per field: dotted path, source kind and repetition.
func (s *Schema) Dump(w io.Writer) error {
	err := s.Walk(func(n *Node) error {
		if n.Index == Root {
			return nil
		}
		_, err := fmt.Fprintf(w, "%s %s %s\n", n.PathString(), n.Source, RepetitionName(n.Repetition))
		return err
	})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w)
	return err
}
