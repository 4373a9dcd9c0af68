package protoschema

import (
	"google.golang.org/protobuf/reflect/protoreflect"

	"proto2parquet/shred"
)

// record adapts a protobuf message to shred.Record. Field ordinals are
// declaration order, the same order FromDescriptor gives schema children.
type record struct {
	m      protoreflect.Message
	fields protoreflect.FieldDescriptors
}

// NewRecord wraps m for shredding against the schema of its descriptor.
func NewRecord(m protoreflect.Message) shred.Record {
	if m == nil || !m.IsValid() {
		return nil
	}
	return record{m: m, fields: m.Descriptor().Fields()}
}

// Has follows protobuf presence: proto3 scalars without explicit presence
// read as unset at their zero value.
func (r record) Has(field int) bool {
	return r.m.Has(r.fields.Get(field))
}

func (r record) Len(field int) int {
	fd := r.fields.Get(field)
	if !r.m.Has(fd) {
		return 0
	}
	return r.m.Get(fd).List().Len()
}

func (r record) Get(field, index int) any {
	fd := r.fields.Get(field)
	v := r.m.Get(fd)
	if index >= 0 {
		v = v.List().Get(index)
	}

	switch fd.Kind() {
	case protoreflect.BoolKind:
		return v.Bool()
	case protoreflect.Int32Kind, protoreflect.Sint32Kind, protoreflect.Sfixed32Kind:
		return int32(v.Int())
	case protoreflect.Uint32Kind, protoreflect.Fixed32Kind:
		return uint32(v.Uint())
	case protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind:
		return v.Int()
	case protoreflect.Uint64Kind, protoreflect.Fixed64Kind:
		return v.Uint()
	case protoreflect.FloatKind:
		return float32(v.Float())
	case protoreflect.DoubleKind:
		return v.Float()
	case protoreflect.StringKind:
		return v.String()
	case protoreflect.BytesKind:
		return v.Bytes()
	case protoreflect.EnumKind:
		return v.Enum()
	default:
		return v.Interface()
	}
}

func (r record) Message(field, index int) shred.Record {
	fd := r.fields.Get(field)
	if index < 0 {
		if !r.m.Has(fd) {
			return nil
		}
		return NewRecord(r.m.Get(fd).Message())
	}
	return NewRecord(r.m.Get(fd).List().Get(index).Message())
}
