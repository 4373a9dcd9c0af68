package schema

import (
	"github.com/parquet-go/parquet-go/deprecated"
	"github.com/parquet-go/parquet-go/format"
)

// Field is one field of a record type, as handed over by a schema provider.
// Fields of message type carry their children in Fields and leave Type unset.
type Field struct {
	Name       string
	Type       format.Type
	Converted  *deprecated.ConvertedType
	Repetition format.FieldRepetitionType
	Fields     []Field

	// Source is a free-form description of the field in the provider's own
	// terms (for example the protobuf kind), used when dumping the schema.
	Source string
}

// Group reports whether the field is a nested record.
func (f *Field) Group() bool { return len(f.Fields) > 0 }

// Converted type tags attached to leaves.
var (
	UTF8   = convertedType(deprecated.UTF8)
	Uint32 = convertedType(deprecated.Uint32)
	Uint64 = convertedType(deprecated.Uint64)
)

func convertedType(t deprecated.ConvertedType) *deprecated.ConvertedType { return &t }

// supportedType reports whether t is a physical type the writer can encode.
func supportedType(t format.Type) bool {
	switch t {
	case format.Boolean, format.Int32, format.Int64, format.Float, format.Double, format.ByteArray:
		return true
	default:
		return false
	}
}

// TypeName returns a human-readable name for a physical type.
func TypeName(t format.Type) string {
	switch t {
	case format.Boolean:
		return "BOOLEAN"
	case format.Int32:
		return "INT32"
	case format.Int64:
		return "INT64"
	case format.Int96:
		return "INT96"
	case format.Float:
		return "FLOAT"
	case format.Double:
		return "DOUBLE"
	case format.ByteArray:
		return "BYTE_ARRAY"
	case format.FixedLenByteArray:
		return "FIXED_LEN_BYTE_ARRAY"
	default:
		return "UNKNOWN"
	}
}

// RepetitionName returns the short tag used in schema dumps.
func RepetitionName(r format.FieldRepetitionType) string {
	switch r {
	case format.Required:
		return "REQ"
	case format.Optional:
		return "OPT"
	case format.Repeated:
		return "RPT"
	default:
		return "???"
	}
}
