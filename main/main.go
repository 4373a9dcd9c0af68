package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/alecthomas/kingpin/v2"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"proto2parquet/parquetfile"
)

const configFileOption = "config.file"

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	cfg := parquetfile.DefaultConfig()
	if configFile := parseConfigFileParameter(args); configFile != "" {
		if err := loadConfig(configFile, &cfg); err != nil {
			fmt.Fprintf(stderr, "error loading config from %s: %v\n", configFile, err)
			return 1
		}
	}

	app := kingpin.New("proto2parquet", "Convert a stream of protobuf records into a Parquet file.")
	app.HelpFlag.Short('h')
	app.UsageWriter(stderr)
	app.ErrorWriter(stderr)
	app.Flag(configFileOption, "YAML file with writer settings. Command line flags take precedence.").String()
	logLevel := app.Flag("log.level", "Only log messages with the given severity or above.").
		Default("info").Enum("debug", "info", "warn", "error")

	convert := &ConvertCommand{cfg: cfg, stdin: stdin, stderr: stderr}
	convert.Register(app)
	sampleCmd := &SampleCommand{stdout: stdout}
	sampleCmd.Register(app)

	command, err := app.Parse(args)
	if err != nil {
		fmt.Fprintf(stderr, "proto2parquet: %v\n", err)
		return 1
	}

	logger := newLogger(stderr)
	filtered := level.NewFilter(logger, level.Allow(level.ParseDefault(*logLevel, level.InfoValue())))

	switch command {
	case "convert":
		err = convert.run(filtered, logger)
	case "sample":
		err = sampleCmd.run()
	default:
		err = errors.Errorf("unknown command %q", command)
	}
	if err != nil {
		level.Error(filtered).Log("msg", command+" failed", "err", err)
		return 1
	}
	return 0
}

func newLogger(w io.Writer) log.Logger {
	logger := log.NewLogfmtLogger(log.NewSyncWriter(w))
	return log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)
}

// parseConfigFileParameter finds --config.file among args before the real
// flag parsing, so the file can provide the defaults flags override.
func parseConfigFileParameter(args []string) (configFile string) {
	fs := flag.NewFlagSet("", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&configFile, configFileOption, "", "")

	// Parsing stops at the first unknown flag or positional argument, so
	// retry from every position until the option turns up.
	for len(args) > 0 {
		_ = fs.Parse(args)
		args = args[1:]
	}
	return
}

// loadConfig reads YAML writer settings over cfg.
func loadConfig(filename string, cfg *parquetfile.Config) error {
	buf, err := os.ReadFile(filename)
	if err != nil {
		return errors.Wrap(err, "error reading config file")
	}
	dec := yaml.NewDecoder(bytes.NewReader(buf))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return errors.Wrap(err, "error parsing config file")
	}
	return nil
}
