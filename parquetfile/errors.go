package parquetfile

import "github.com/pkg/errors"

var (
	// ErrDictionaryOverflow is returned by Dictionary.Encode when a new value
	// would exceed the table capacity. Columns recover from it by falling back
	// to PLAIN encoding.
	ErrDictionaryOverflow = errors.New("too many dictionary values")

	ErrRecordCountMismatch = errors.New("leaf columns disagree on record count")
	ErrUnsupportedEncoding = errors.New("unsupported encoding")
	ErrUnsupportedCodec    = errors.New("unsupported compression codec")
	ErrInvalidLevel        = errors.New("level out of range")
	ErrValueType           = errors.New("value does not match column type")
	ErrNoRoot              = errors.New("schema root not set")
	ErrClosed              = errors.New("writer closed")
)
