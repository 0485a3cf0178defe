package cli

import (
	"context"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/gclib/pkg/gc"
)

// PrintConfigCmd prints the effective, fully-resolved configuration.
func PrintConfigCmd(cfg gc.Config) *Command {
	return &Command{
		Flags: flag.NewFlagSet("print-config", flag.ContinueOnError),
		Usage: "print-config",
		Short: "print the effective configuration",
		Exec: func(_ context.Context, o *IO, _ []string) error {
			out, err := gc.FormatConfig(cfg)
			if err != nil {
				return err
			}

			o.Println(out)

			return nil
		},
	}
}
