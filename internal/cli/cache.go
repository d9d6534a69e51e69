package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/permaweb/cu-core/internal/engine"
)

// cacheOptions holds flags for the cache command.
type cacheOptions struct {
	*RootOptions
	ProcessID string
	From      string
	To        string
	CronOnly  bool
}

func newCacheCommand(root *RootOptions, deps Deps) *cobra.Command {
	opts := &cacheOptions{RootOptions: root}

	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect cached evaluation records for a process",
		Long: `cache lists the persisted evaluation records for a process between
--from (inclusive) and --to (exclusive), defaulting to the whole
recorded history.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCache(cmd, opts, deps)
		},
	}

	cmd.Flags().StringVar(&opts.ProcessID, "process", "", "process id (required)")
	cmd.Flags().StringVar(&opts.From, "from", "", "sort key to start at, inclusive (default: genesis)")
	cmd.Flags().StringVar(&opts.To, "to", "", "sort key to stop before (default: latest)")
	cmd.Flags().BoolVar(&opts.CronOnly, "cron-only", false, "show only self-triggered cron ticks")
	_ = cmd.MarkFlagRequired("process")

	return cmd
}

func runCache(cmd *cobra.Command, opts *cacheOptions, deps Deps) error {
	if deps.Cache == nil {
		return NewExitError(ExitCommandError, "no cache configured")
	}

	from := engine.Genesis
	if opts.From != "" {
		from = engine.SortKey(opts.From)
	}
	to := engine.Latest
	if opts.To != "" {
		to = engine.SortKey(opts.To)
	}

	recs, err := deps.Cache.Range(cmd.Context(), opts.ProcessID, from, to)
	if err != nil {
		return WrapExitError(ExitCommandError, "range failed", err)
	}
	if opts.CronOnly {
		recs = filterCron(recs)
	}

	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), recs)
	}

	for _, r := range recs {
		status := "ok"
		if r.Output.Failed() {
			status = "failed"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s  %-6s cachedAt=%s\n", r.SortKey, status, r.CachedAt.Format("2006-01-02T15:04:05Z"))
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d record(s)\n", len(recs))
	return nil
}

// filterCron keeps only records produced by a self-triggered cron tick,
// mirroring the original system's find_evaluations(only_cron) filter.
func filterCron(recs []engine.EvaluationRecord) []engine.EvaluationRecord {
	out := make([]engine.EvaluationRecord, 0, len(recs))
	for _, r := range recs {
		if r.Cron {
			out = append(out, r)
		}
	}
	return out
}
