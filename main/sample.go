package main

import (
	"io"
	"os"

	"github.com/alecthomas/kingpin/v2"
	"github.com/pkg/errors"

	"proto2parquet/sample"
)

// SampleCommand writes the Dremel paper documents as a tagged record stream.
type SampleCommand struct {
	output string
	stdout io.Writer
}

// Register is used to register the command to a parent command.
func (c *SampleCommand) Register(app *kingpin.Application) {
	cmd := app.Command("sample", "Write the Dremel paper sample documents as a record stream.")
	cmd.Flag("output", "File to write, - for stdout.").Short('o').Default("-").StringVar(&c.output)
}

func (c *SampleCommand) run() error {
	if c.output == "-" {
		return sample.Write(c.stdout)
	}
	f, err := os.Create(c.output)
	if err != nil {
		return errors.Wrap(err, "create sample output")
	}
	if err := sample.Write(f); err != nil {
		_ = f.Close()
		return err
	}
	return errors.Wrap(f.Close(), "close sample output")
}
