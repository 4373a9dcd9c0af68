package parquetfile

import (
	"strconv"

	"github.com/alecthomas/kingpin/v2"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	DefaultRowGroupSize      = 256 << 20
	DefaultPageSize          = 64 << 10
	DefaultSizeCheckInterval = 100
	DefaultCreatedBy         = "proto2parquet"

	// Every level or index encoder needs room for at least one full
	// bit-packed run of 16-bit values.
	minPageSize = 4 << 10
)

// Config controls how a Writer lays out the file.
type Config struct {
	RowGroupSize         Bytes  `yaml:"row_group_size"`
	PageSize             Bytes  `yaml:"page_size"`
	DictionaryMaxEntries int    `yaml:"dictionary_max_entries"`
	Dictionary           bool   `yaml:"dictionary"`
	Compression          string `yaml:"compression"`
	SizeCheckInterval    int    `yaml:"size_check_interval"`
	WriteBufferSize      Bytes  `yaml:"write_buffer_size"`
	CreatedBy            string `yaml:"created_by"`
}

func DefaultConfig() Config {
	return Config{
		RowGroupSize:         DefaultRowGroupSize,
		PageSize:             DefaultPageSize,
		DictionaryMaxEntries: DefaultDictionaryMaxEntries,
		Dictionary:           true,
		Compression:          "snappy",
		SizeCheckInterval:    DefaultSizeCheckInterval,
		WriteBufferSize:      1 << 20,
		CreatedBy:            DefaultCreatedBy,
	}
}

// RegisterFlags binds the config to cmd, using the current values as
// defaults.
func (cfg *Config) RegisterFlags(cmd *kingpin.CmdClause) {
	cmd.Flag("row-group-size", "Flush a row group once its estimated size reaches this, e.g. 256MiB.").
		Default(cfg.RowGroupSize.String()).SetValue(&cfg.RowGroupSize)
	cmd.Flag("page-size", "Target uncompressed size of a data page.").
		Default(cfg.PageSize.String()).SetValue(&cfg.PageSize)
	cmd.Flag("dictionary", "Dictionary-encode non-boolean columns.").
		Default(strconv.FormatBool(cfg.Dictionary)).BoolVar(&cfg.Dictionary)
	cmd.Flag("dictionary.max-entries", "Distinct values per column chunk before falling back to plain encoding.").
		Default(strconv.Itoa(cfg.DictionaryMaxEntries)).IntVar(&cfg.DictionaryMaxEntries)
	cmd.Flag("compression", "Page compression codec: none, snappy or gzip.").
		Default(cfg.Compression).StringVar(&cfg.Compression)
	cmd.Flag("size-check-interval", "Records between row group size checks.").
		Default(strconv.Itoa(cfg.SizeCheckInterval)).IntVar(&cfg.SizeCheckInterval)
	cmd.Flag("created-by", "Value of the created_by footer field.").
		Default(cfg.CreatedBy).StringVar(&cfg.CreatedBy)
}

func (cfg *Config) Validate() error {
	if cfg.RowGroupSize == 0 {
		return errors.New("row group size must be positive")
	}
	if cfg.PageSize < minPageSize {
		return errors.Errorf("page size must be at least %s", humanize.IBytes(minPageSize))
	}
	if cfg.DictionaryMaxEntries < 1 || cfg.DictionaryMaxEntries > 1<<31-1 {
		return errors.Errorf("dictionary max entries out of range: %d", cfg.DictionaryMaxEntries)
	}
	if cfg.SizeCheckInterval < 1 {
		return errors.Errorf("size check interval must be positive, got %d", cfg.SizeCheckInterval)
	}
	if _, err := ParseCompression(cfg.Compression); err != nil {
		return err
	}
	return nil
}

// Bytes is a byte size read from humanized strings such as "64KiB".
type Bytes uint64

// String returns the humanized size when it parses back exactly, and the
// plain byte count otherwise.
func (b Bytes) String() string {
	s := humanize.IBytes(uint64(b))
	if v, err := humanize.ParseBytes(s); err == nil && v == uint64(b) {
		return s
	}
	return strconv.FormatUint(uint64(b), 10)
}

func (b *Bytes) Set(s string) error {
	v, err := humanize.ParseBytes(s)
	if err != nil {
		return errors.Wrapf(err, "invalid size %q", s)
	}
	*b = Bytes(v)
	return nil
}

func (b *Bytes) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	return b.Set(s)
}

func (b Bytes) MarshalYAML() (interface{}, error) {
	return b.String(), nil
}
