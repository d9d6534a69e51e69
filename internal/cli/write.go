package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/permaweb/cu-core/internal/engine"
)

// writeOptions holds flags for the write command.
type writeOptions struct {
	*RootOptions
	ProcessID string
	Action    string
}

func newWriteCommand(root *RootOptions, deps Deps) *cobra.Command {
	opts := &writeOptions{RootOptions: root}

	cmd := &cobra.Command{
		Use:   "write",
		Short: "Submit a new interaction to a process",
		Long: `write appends one interaction to a process's interaction stream
and prints the sort key the Scheduler Unit assigned to it.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWrite(cmd, opts, deps)
		},
	}

	cmd.Flags().StringVar(&opts.ProcessID, "process", "", "process id (required)")
	cmd.Flags().StringVar(&opts.Action, "action", "{}", "action JSON payload")
	_ = cmd.MarkFlagRequired("process")

	return cmd
}

func runWrite(cmd *cobra.Command, opts *writeOptions, deps Deps) error {
	if deps.Writer == nil {
		return NewExitError(ExitCommandError, "no interaction writer configured")
	}
	if !json.Valid([]byte(opts.Action)) {
		return NewExitError(ExitCommandError, "--action is not valid JSON")
	}

	sortKey, err := deps.Writer.WriteInteraction(cmd.Context(), opts.ProcessID, []byte(opts.Action))
	if err != nil {
		return WrapExitError(ExitCommandError, "write failed", err)
	}

	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), struct {
			SortKey engine.SortKey `json:"sortKey"`
		}{sortKey})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "sortKey: %s\n", sortKey)
	return nil
}
