package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/normgraph/normgraph/cache"
	"github.com/normgraph/normgraph/snapshot"
)

// GCOptions holds flags for the gc command.
type GCOptions struct {
	*RootOptions
	DryRun bool // report without rewriting the snapshot
}

// GCReport holds the collection summary for output.
type GCReport struct {
	Before   int      `json:"before"`
	Removed  []string `json:"removed"`
	Dangling []string `json:"dangling,omitempty"`
	DryRun   bool     `json:"dry_run"`
}

// NewGCCommand creates the gc command.
func NewGCCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GCOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "gc <snapshot-file>",
		Short: "Collect unreachable records in a snapshot",
		Long: `Remove records not reachable from the root record.

Loads the snapshot, marks every record reachable from the root by
following references, removes the rest, and rewrites the snapshot.
Also reports slots holding references to absent records.

Examples:
  normgraph gc cache.db
  normgraph gc cache.db --dry-run`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGC(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "report unreachable records without rewriting the snapshot")

	return cmd
}

func runGC(opts *GCOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return NewExitError(ExitCommandError, fmt.Sprintf("snapshot not found: %s", path))
	}

	store, err := snapshot.Open(path)
	if err != nil {
		_ = formatter.Error(ErrCodeSnapshot, "failed to open snapshot", err.Error())
		return WrapExitError(ExitCommandError, "failed to open snapshot", err)
	}
	defer store.Close()

	records, err := store.Load()
	if err != nil {
		_ = formatter.Error(ErrCodeSnapshot, "failed to load snapshot", err.Error())
		return WrapExitError(ExitFailure, "failed to load snapshot", err)
	}

	c := cache.New(cache.Config{})
	c.Restore(records)

	report := GCReport{Before: c.Len(), DryRun: opts.DryRun}
	for _, ref := range c.Dangling() {
		report.Dangling = append(report.Dangling, fmt.Sprintf("%s.%s", ref.Entity, ref.Key))
	}

	removed := c.GC()
	report.Removed = make([]string, len(removed))
	for i, id := range removed {
		report.Removed[i] = string(id)
	}
	formatter.VerboseLog("Collected %d of %d record(s)", len(removed), report.Before)

	if !opts.DryRun && len(removed) > 0 {
		if err := store.Save(c.Export()); err != nil {
			_ = formatter.Error(ErrCodeSnapshot, "failed to rewrite snapshot", err.Error())
			return WrapExitError(ExitFailure, "failed to rewrite snapshot", err)
		}
	}

	if formatter.Format == "json" {
		return formatter.Success(report)
	}

	w := formatter.Writer
	if len(report.Removed) == 0 {
		fmt.Fprintf(w, "✓ All %d record(s) reachable\n", report.Before)
	} else {
		for _, id := range report.Removed {
			fmt.Fprintf(w, "removed %s\n", id)
		}
		verb := "removed"
		if opts.DryRun {
			verb = "unreachable"
		}
		fmt.Fprintf(w, "%d of %d record(s) %s\n", len(report.Removed), report.Before, verb)
	}
	for _, slot := range report.Dangling {
		fmt.Fprintf(w, "dangling: %s\n", slot)
	}
	return nil
}
