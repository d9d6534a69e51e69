package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/permaweb/cu-core/internal/engine"
)

// readOptions holds flags for the read command.
type readOptions struct {
	*RootOptions
	ProcessID string
	To        string // sort key to read up to; empty means latest
}

func newReadCommand(root *RootOptions, deps Deps) *cobra.Command {
	opts := &readOptions{RootOptions: root}

	cmd := &cobra.Command{
		Use:   "read",
		Short: "Evaluate a process and print its state",
		Long: `read folds a process's interactions through its WASM handler up to
the given sort key (or the latest known interaction if --to is
omitted), resuming from the evaluation cache's closest prior record.

Exit codes:
  0 - evaluation completed, last step succeeded
  1 - evaluation completed, last step's output carries an error
  2 - the engine itself could not run the evaluation`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRead(cmd, opts, deps)
		},
	}

	cmd.Flags().StringVar(&opts.ProcessID, "process", "", "process id (required)")
	cmd.Flags().StringVar(&opts.To, "to", "", "sort key to read up to (default: latest)")
	_ = cmd.MarkFlagRequired("process")

	return cmd
}

func runRead(cmd *cobra.Command, opts *readOptions, deps Deps) error {
	if deps.Evaluator == nil {
		return NewExitError(ExitCommandError, "no evaluator configured")
	}

	to := engine.Latest
	if opts.To != "" {
		to = engine.SortKey(opts.To)
	}

	result, err := deps.Evaluator.ReadState(cmd.Context(), opts.ProcessID, to)
	if err != nil {
		return WrapExitError(ExitCommandError, "read failed", err)
	}

	if opts.Format == "json" {
		if err := writeJSON(cmd.OutOrStdout(), result); err != nil {
			return WrapExitError(ExitCommandError, "encode result", err)
		}
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "process:      %s\n", opts.ProcessID)
		fmt.Fprintf(cmd.OutOrStdout(), "lastSortKey:  %s\n", result.LastSortKey)
		fmt.Fprintf(cmd.OutOrStdout(), "state:        %s\n", string(result.State))
		if result.Output.Failed() {
			fmt.Fprintf(cmd.OutOrStdout(), "error:        %s\n", result.Output.Result.Error)
		}
	}

	if result.Output.Failed() {
		return NewExitError(ExitFailure, "last step failed")
	}
	return nil
}
