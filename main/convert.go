package main

import (
	"bytes"
	"io"
	"os"

	"github.com/alecthomas/kingpin/v2"
	"github.com/dustin/go-humanize"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/protobuf/encoding/prototext"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/dynamicpb"

	"proto2parquet/parquetfile"
	"proto2parquet/protoschema"
	"proto2parquet/recordio"
	"proto2parquet/schema"
	"proto2parquet/shred"
)

// ConvertCommand turns a framed record stream into a Parquet file.
type ConvertCommand struct {
	protoDir        string
	protoFile       string
	rootMessage     string
	descriptorSet   string
	input           string
	output          string
	dump            bool
	trace           bool
	metricsTextfile string

	cfg    parquetfile.Config
	stdin  io.Reader
	stderr io.Writer
}

// Register is used to register the command to a parent command.
func (c *ConvertCommand) Register(app *kingpin.Application) {
	cmd := app.Command("convert", "Convert protobuf records to Parquet.").Default()
	cmd.Flag("proto.dir", "Directory .proto imports are resolved against.").Short('d').Default("./").StringVar(&c.protoDir)
	cmd.Flag("proto.file", "Schema .proto file. Selects the legacy record framing.").Short('p').StringVar(&c.protoFile)
	cmd.Flag("root-message", "Root message name. Required with --proto.file or --descriptor-set, overrides the stream header otherwise.").Short('m').StringVar(&c.rootMessage)
	cmd.Flag("descriptor-set", "Serialized FileDescriptorSet to take the schema from instead of the stream header.").StringVar(&c.descriptorSet)
	cmd.Flag("input", "Record stream to read, - for stdin.").Short('i').Default("-").StringVar(&c.input)
	cmd.Flag("output", "Parquet file to write. An existing file is replaced.").Short('o').Required().StringVar(&c.output)
	cmd.Flag("dump", "Print the schema to stderr.").Short('u').BoolVar(&c.dump)
	cmd.Flag("trace", "Log every record and every value emitted while shredding.").Short('t').BoolVar(&c.trace)
	cmd.Flag("metrics.textfile", "Write conversion metrics to this file in the Prometheus text format.").StringVar(&c.metricsTextfile)
	c.cfg.RegisterFlags(cmd)
}

func (c *ConvertCommand) run(logger, traceLogger log.Logger) error {
	if err := c.cfg.Validate(); err != nil {
		return err
	}

	in, closeInput, err := c.openInput()
	if err != nil {
		return err
	}
	defer closeInput()

	reader, md, err := c.resolve(in)
	if err != nil {
		return err
	}
	s, err := protoschema.FromDescriptor(md)
	if err != nil {
		return err
	}
	if c.dump {
		if err := s.Dump(c.stderr); err != nil {
			return errors.Wrap(err, "dump schema")
		}
	}

	if err := os.Remove(c.output); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "remove previous output")
	}
	reg := prometheus.NewRegistry()
	w, err := parquetfile.Create(c.output, c.cfg, logger, parquetfile.NewMetrics(reg))
	if err != nil {
		return err
	}
	if err := c.convert(reader, md, s, w, traceLogger); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	level.Info(logger).Log("msg", "conversion complete", "records", reader.Records(), "output", c.output, "size", humanize.IBytes(uint64(fileSize(c.output))))

	if c.metricsTextfile != "" {
		if err := prometheus.WriteToTextfile(c.metricsTextfile, reg); err != nil {
			return errors.Wrap(err, "write metrics textfile")
		}
	}
	return nil
}

func (c *ConvertCommand) convert(reader *recordio.Reader, md protoreflect.MessageDescriptor, s *schema.Schema, w *parquetfile.Writer, traceLogger log.Logger) error {
	if err := w.SetRoot(s); err != nil {
		return err
	}
	shredder := shred.New(s, w, traceLogger, c.trace)
	for {
		payload, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		msg := dynamicpb.NewMessage(md)
		if err := proto.Unmarshal(payload, msg); err != nil {
			return errors.Wrapf(err, "decode record %d", reader.Records())
		}
		if c.trace {
			level.Debug(traceLogger).Log("msg", "record", "record", reader.Records(), "message", prototext.Format(msg))
		}
		if err := shredder.Shred(protoschema.NewRecord(msg)); err != nil {
			return errors.Wrapf(err, "record %d", reader.Records())
		}
	}
}

// openInput returns a seekable view of the input. Stdin is read into memory.
func (c *ConvertCommand) openInput() (io.ReadSeeker, func(), error) {
	if c.input == "-" {
		buf, err := io.ReadAll(c.stdin)
		if err != nil {
			return nil, nil, errors.Wrap(err, "read stdin")
		}
		return bytes.NewReader(buf), func() {}, nil
	}
	f, err := os.Open(c.input)
	if err != nil {
		return nil, nil, errors.Wrap(err, "open input")
	}
	return f, func() { _ = f.Close() }, nil
}

// resolve picks the framing and the root message descriptor. An explicit
// .proto file means a legacy stream; otherwise the stream is tagged and the
// descriptors come from --descriptor-set or from the stream header.
func (c *ConvertCommand) resolve(in io.ReadSeeker) (*recordio.Reader, protoreflect.MessageDescriptor, error) {
	var (
		reader *recordio.Reader
		files  *protoregistry.Files
		root   = c.rootMessage
		err    error
	)
	switch {
	case c.protoFile != "":
		if root == "" {
			return nil, nil, errors.New("--root-message is required with --proto.file")
		}
		reader = recordio.NewReader(in, recordio.Legacy)
		files, err = protoschema.ParseFiles([]string{c.protoDir}, c.protoFile)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "trouble opening proto file %s in directory %s", c.protoFile, c.protoDir)
		}

	case c.descriptorSet != "":
		if root == "" {
			return nil, nil, errors.New("--root-message is required with --descriptor-set")
		}
		reader = recordio.NewReader(in, recordio.Tagged)
		b, err := os.ReadFile(c.descriptorSet)
		if err != nil {
			return nil, nil, errors.Wrap(err, "read descriptor set")
		}
		if files, err = protoschema.ParseDescriptorSet(b); err != nil {
			return nil, nil, err
		}

	default:
		reader = recordio.NewReader(in, recordio.Tagged)
		h, err := reader.ReadHeader()
		if err != nil {
			return nil, nil, err
		}
		if files, err = protoschema.ParseDescriptorSet(h.Descriptors); err != nil {
			return nil, nil, err
		}
		if root == "" {
			root = h.RootMessage
		}
	}

	md, err := protoschema.FindMessage(files, root)
	if err != nil {
		return nil, nil, err
	}
	return reader, md, nil
}

func fileSize(path string) int64 {
	fi, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return fi.Size()
}
