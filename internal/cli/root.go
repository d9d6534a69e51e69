package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/permaweb/cu-core/internal/engine"
	"github.com/permaweb/cu-core/internal/evaluator"
)

// RootOptions holds global flags shared by every subcommand.
type RootOptions struct {
	Verbose bool
	Format  string // "text" | "json"
}

// ValidFormats lists the accepted --format values.
var ValidFormats = []string{"text", "json"}

// Deps wires the Evaluator and its collaborators into the command
// tree. main constructs these from internal/config and passes them in
// rather than each subcommand reaching for globals.
type Deps struct {
	Evaluator *evaluator.Evaluator
	Cache     engine.Cache
	Writer    engine.Writer
	Log       engine.Logger
}

// NewRootCommand builds the cu command tree.
func NewRootCommand(deps Deps) *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "cu",
		Short: "cu - deterministic AO process state evaluator",
		Long:  "cu replays a process's interactions through its WASM handler and serves the resulting state, caching one record per evaluated step.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json)")

	cmd.AddCommand(newReadCommand(opts, deps))
	cmd.AddCommand(newWriteCommand(opts, deps))
	cmd.AddCommand(newCacheCommand(opts, deps))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
