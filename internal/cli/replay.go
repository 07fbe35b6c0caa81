package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Gonzo3030/gonzo/internal/journal"
	"github.com/Gonzo3030/gonzo/internal/scenario"
	"github.com/Gonzo3030/gonzo/internal/state"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
	Scenario string
	Cycles   int
}

// ReplaySummary is the replay command's output payload.
type ReplaySummary struct {
	ResumedFrom int64 `json:"resumed_from"`
	RunSummary
}

func (s ReplaySummary) String() string {
	return fmt.Sprintf("Resumed:   cycle %d\n%s", s.ResumedFrom, s.RunSummary.String())
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Resume the loop from the latest checkpoint",
		Long: `Restore the latest checkpoint from a journal and resume the loop.

With --scenario the resumed cycles consume that script; without it they run
against empty feeds. Publish-history dedup carries across the restart: a
resumed run can never repost text published before the checkpoint.

Exit codes:
  0 - replay completed
  1 - loop halted during the resumed cycles
  2 - command error (no checkpoint, broken database)

Examples:
  gonzo replay --db ./gonzo.db --cycles 5
  gonzo replay --db ./gonzo.db --scenario followup.yaml`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Scenario, "scenario", "", "script for the resumed cycles")
	cmd.Flags().IntVar(&opts.Cycles, "cycles", 1, "cycles to run when no scenario is given")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	if _, err := os.Stat(opts.Database); err != nil {
		return WrapExitError(ExitCommandError, "journal not found", err)
	}

	var sc *scenario.Scenario
	if opts.Scenario != "" {
		loaded, err := scenario.Load(opts.Scenario)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to load scenario", err)
		}
		sc = loaded
	} else {
		if opts.Cycles < 1 {
			return WrapExitError(ExitCommandError, "cycles must be at least 1", nil)
		}
		sc = &scenario.Scenario{Name: "replay", Cycles: opts.Cycles}
	}

	j, err := journal.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer func() {
		if closeErr := j.Close(); closeErr != nil {
			slog.Error("error closing journal", "error", closeErr)
		}
	}()

	ctx := cmd.Context()
	cycle, blob, err := j.LatestCheckpoint(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read checkpoint", err)
	}
	if blob == nil {
		return WrapExitError(ExitCommandError, "no checkpoint to resume from", nil)
	}

	restored, err := state.RestoreCheckpoint(blob)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to restore checkpoint", err)
	}

	slog.Info("resuming", "cycle", cycle, "scenario", sc.Name, "cycles", sc.Cycles)
	res, err := sc.RunFrom(ctx, j, &restored)
	if err != nil {
		return WrapExitError(ExitCommandError, "replay failed", err)
	}

	summary := ReplaySummary{ResumedFrom: cycle, RunSummary: summarize(res)}
	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	if err := formatter.Success(summary); err != nil {
		return WrapExitError(ExitCommandError, "failed to write output", err)
	}

	if res.Halted {
		return WrapExitError(ExitFailure, "loop halted", fmt.Errorf("%s", res.HaltErr))
	}
	return nil
}
