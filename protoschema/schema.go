// Package protoschema maps protobuf message descriptors onto the writer's
// schema tree and exposes protobuf messages as shreddable records.
package protoschema

import (
	"github.com/parquet-go/parquet-go/format"
	"github.com/pkg/errors"
	"google.golang.org/protobuf/reflect/protoreflect"

	"proto2parquet/schema"
)

var ErrUnsupportedField = errors.New("unsupported field")

// FromDescriptor builds the schema of md. The root is named after the
// message's full name and fields keep their declaration order.
func FromDescriptor(md protoreflect.MessageDescriptor) (*schema.Schema, error) {
	fields, err := messageFields(md, []protoreflect.FullName{md.FullName()})
	if err != nil {
		return nil, err
	}
	return schema.New(string(md.FullName()), fields)
}

func messageFields(md protoreflect.MessageDescriptor, stack []protoreflect.FullName) ([]schema.Field, error) {
	fds := md.Fields()
	if fds.Len() == 0 {
		return nil, errors.Wrapf(ErrUnsupportedField, "message %s has no fields", md.FullName())
	}

	fields := make([]schema.Field, 0, fds.Len())
	for i := 0; i < fds.Len(); i++ {
		fd := fds.Get(i)
		if fd.IsMap() {
			return nil, errors.Wrapf(ErrUnsupportedField, "%s: map fields are not supported", fd.FullName())
		}
		f := schema.Field{
			Name:       string(fd.Name()),
			Repetition: repetition(fd),
			Source:     KindName(fd.Kind()),
		}

		switch fd.Kind() {
		case protoreflect.DoubleKind:
			f.Type = format.Double
		case protoreflect.FloatKind:
			f.Type = format.Float
		case protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind:
			f.Type = format.Int64
		case protoreflect.Uint64Kind, protoreflect.Fixed64Kind:
			f.Type, f.Converted = format.Int64, schema.Uint64
		case protoreflect.Int32Kind, protoreflect.Sint32Kind, protoreflect.Sfixed32Kind:
			f.Type = format.Int32
		case protoreflect.Uint32Kind, protoreflect.Fixed32Kind:
			f.Type, f.Converted = format.Int32, schema.Uint32
		case protoreflect.BoolKind:
			f.Type = format.Boolean
		case protoreflect.StringKind:
			f.Type, f.Converted = format.ByteArray, schema.UTF8
		case protoreflect.BytesKind:
			f.Type = format.ByteArray

		case protoreflect.MessageKind, protoreflect.GroupKind:
			child := fd.Message()
			for _, name := range stack {
				if name == child.FullName() {
					return nil, errors.Wrapf(ErrUnsupportedField, "%s: recursive message %s", fd.FullName(), child.FullName())
				}
			}
			children, err := messageFields(child, append(stack, child.FullName()))
			if err != nil {
				return nil, err
			}
			f.Fields = children

		default:
			return nil, errors.Wrapf(ErrUnsupportedField, "%s: %s fields are not supported", fd.FullName(), KindName(fd.Kind()))
		}
		fields = append(fields, f)
	}
	return fields, nil
}

func repetition(fd protoreflect.FieldDescriptor) format.FieldRepetitionType {
	switch fd.Cardinality() {
	case protoreflect.Required:
		return format.Required
	case protoreflect.Repeated:
		return format.Repeated
	default:
		return format.Optional
	}
}

// KindName returns the name a schema dump shows for a protobuf kind. Kinds
// that share a wire representation share a name.
func KindName(k protoreflect.Kind) string {
	switch k {
	case protoreflect.Int32Kind, protoreflect.Sint32Kind, protoreflect.Sfixed32Kind:
		return "int32"
	case protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind:
		return "int64"
	case protoreflect.Uint32Kind, protoreflect.Fixed32Kind:
		return "uint32"
	case protoreflect.Uint64Kind, protoreflect.Fixed64Kind:
		return "uint64"
	case protoreflect.DoubleKind:
		return "double"
	case protoreflect.FloatKind:
		return "float"
	case protoreflect.BoolKind:
		return "bool"
	case protoreflect.EnumKind:
		return "enum"
	case protoreflect.StringKind, protoreflect.BytesKind:
		return "string"
	case protoreflect.MessageKind, protoreflect.GroupKind:
		return "message"
	default:
		return k.String()
	}
}
