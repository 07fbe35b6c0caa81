package cli

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Gonzo3030/gonzo/internal/journal"
	"github.com/Gonzo3030/gonzo/internal/scenario"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Scenario string
	Database string
}

// RunSummary is the run command's output payload.
type RunSummary struct {
	Scenario  string `json:"scenario"`
	Cycles    int    `json:"cycles"`
	Patterns  int    `json:"patterns"`
	Posts     int    `json:"posts"`
	Errors    int    `json:"errors"`
	Halted    bool   `json:"halted"`
	HaltError string `json:"halt_error,omitempty"`
}

func (s RunSummary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Scenario:  %s\n", s.Scenario)
	fmt.Fprintf(&b, "Cycles:    %d\n", s.Cycles)
	fmt.Fprintf(&b, "Patterns:  %d\n", s.Patterns)
	fmt.Fprintf(&b, "Posts:     %d\n", s.Posts)
	fmt.Fprintf(&b, "Errors:    %d", s.Errors)
	if s.Halted {
		fmt.Fprintf(&b, "\nHalted:    %s", s.HaltError)
	}
	return b.String()
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the loop over a scripted scenario",
		Long: `Run the monitoring loop against a scripted scenario file.

Each scenario cycle scripts the feed batches, generation results, and post
results. With --db the run journals its error log, publish history, and a
checkpoint per cycle; without it the run stays in memory.

Exit codes:
  0 - run completed
  1 - loop halted before the scripted cycle count
  2 - command error (bad scenario, broken database)

Examples:
  gonzo run --scenario demo.yaml
  gonzo run --scenario demo.yaml --db ./gonzo.db --verbose`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenario(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Scenario, "scenario", "", "path to scenario YAML (required)")
	_ = cmd.MarkFlagRequired("scenario")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal (omit for in-memory run)")

	return cmd
}

func runScenario(opts *RunOptions, cmd *cobra.Command) error {
	sc, err := scenario.Load(opts.Scenario)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load scenario", err)
	}

	var j *journal.Journal
	if opts.Database != "" {
		j, err = journal.Open(opts.Database)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open journal", err)
		}
		defer func() {
			if closeErr := j.Close(); closeErr != nil {
				slog.Error("error closing journal", "error", closeErr)
			}
		}()
	}

	slog.Info("scenario starting", "name", sc.Name, "cycles", sc.Cycles)
	res, err := sc.Run(cmd.Context(), j)
	if err != nil {
		return WrapExitError(ExitCommandError, "scenario failed", err)
	}

	summary := summarize(res)
	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	if err := formatter.Success(summary); err != nil {
		return WrapExitError(ExitCommandError, "failed to write output", err)
	}

	if res.Halted {
		return WrapExitError(ExitFailure, "loop halted", fmt.Errorf("%s", res.HaltErr))
	}
	return nil
}

func summarize(res *scenario.Result) RunSummary {
	return RunSummary{
		Scenario:  res.Scenario,
		Cycles:    len(res.Cycles),
		Patterns:  len(res.Final.Patterns),
		Posts:     len(res.Final.PublishHistory),
		Errors:    len(res.Final.ErrorLog),
		Halted:    res.Halted,
		HaltError: res.HaltErr,
	}
}
