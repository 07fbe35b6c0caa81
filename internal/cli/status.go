package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Gonzo3030/gonzo/internal/journal"
	"github.com/Gonzo3030/gonzo/internal/state"
)

// errorTail bounds how many recent error records the text report shows.
const errorTail = 10

// StatusOptions holds flags for the status command.
type StatusOptions struct {
	*RootOptions
	Database string
}

// StatusReport is the status command's output payload.
type StatusReport struct {
	Cycle    int64                  `json:"cycle"`
	Pending  int                    `json:"pending_candidates"`
	Posts    []state.PublishOutcome `json:"posts"`
	Errors   []state.ErrorRecord    `json:"errors"`
	ErrTotal int                    `json:"error_total"`
}

func (r StatusReport) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Cycle:    %d\n", r.Cycle)
	fmt.Fprintf(&b, "Pending:  %d\n", r.Pending)

	fmt.Fprintf(&b, "Posts:    %d\n", len(r.Posts))
	for _, p := range r.Posts {
		fmt.Fprintf(&b, "  cycle %-4d %s  %s  %s\n",
			p.Cycle, p.Timestamp.Format(time.RFC3339), p.PostID, p.CandidateID)
	}

	fmt.Fprintf(&b, "Errors:   %d", r.ErrTotal)
	for _, e := range r.Errors {
		fmt.Fprintf(&b, "\n  cycle %-4d %-10s %s", e.Cycle, e.Stage, e.Kind)
	}
	return b.String()
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatusOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Inspect a journal without mutating it",
		Long: `Report the loop's observable state from its journal: current cycle,
pending candidates, publish history, and recent errors.

Examples:
  gonzo status --db ./gonzo.db
  gonzo status --db ./gonzo.db --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runStatus(opts *StatusOptions, cmd *cobra.Command) error {
	// Opening a journal creates one; a read-only status check must not.
	if _, err := os.Stat(opts.Database); err != nil {
		return WrapExitError(ExitCommandError, "journal not found", err)
	}

	j, err := journal.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer j.Close()

	ctx := cmd.Context()
	report, err := buildStatus(ctx, j)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read journal", err)
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	if err := formatter.Success(report); err != nil {
		return WrapExitError(ExitCommandError, "failed to write output", err)
	}
	return nil
}

func buildStatus(ctx context.Context, j *journal.Journal) (StatusReport, error) {
	cycle, blob, err := j.LatestCheckpoint(ctx)
	if err != nil {
		return StatusReport{}, err
	}

	pending := 0
	if blob != nil {
		snap, err := state.RestoreCheckpoint(blob)
		if err != nil {
			return StatusReport{}, err
		}
		pending = len(snap.Pending())
	}

	posts, err := j.ReadPublishHistory(ctx)
	if err != nil {
		return StatusReport{}, err
	}
	errs, err := j.ReadErrorLog(ctx)
	if err != nil {
		return StatusReport{}, err
	}

	report := StatusReport{
		Cycle:    cycle,
		Pending:  pending,
		Posts:    posts,
		Errors:   errs,
		ErrTotal: len(errs),
	}
	if len(report.Errors) > errorTail {
		report.Errors = report.Errors[len(report.Errors)-errorTail:]
	}
	return report, nil
}
