package scenario

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Gonzo3030/gonzo/internal/feed"
	"github.com/Gonzo3030/gonzo/internal/journal"
	"github.com/Gonzo3030/gonzo/internal/orchestrator"
	"github.com/Gonzo3030/gonzo/internal/state"
)

// clockEpoch is the fixed wall clock every scenario runs under.
var clockEpoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// CycleTrace is the observable outcome of one cycle.
type CycleTrace struct {
	Cycle      int64                  `json:"cycle"`
	State      string                 `json:"state"`
	Patterns   []state.Pattern        `json:"patterns"`
	Candidates []state.PostCandidate  `json:"candidates"`
	Publishes  []state.PublishOutcome `json:"publishes"`
	Errors     []state.ErrorRecord    `json:"errors"`
}

// Result is a full scenario run: one trace entry per completed or halted
// cycle plus the final state.
type Result struct {
	Scenario string       `json:"scenario"`
	Halted   bool         `json:"halted,omitempty"`
	HaltErr  string       `json:"halt_error,omitempty"`
	Cycles   []CycleTrace `json:"cycles"`

	Final state.UnifiedState `json:"-"`
}

// Run executes the scenario against a real engine. The journal may be nil
// for in-memory runs; golden tests pass nil.
func (sc *Scenario) Run(ctx context.Context, j *journal.Journal) (*Result, error) {
	return sc.RunFrom(ctx, j, nil)
}

// RunFrom executes the scenario starting from a restored checkpoint state.
// Feed entries are keyed by the cycle of this run, not the absolute cycle
// counter, so the same script resumes cleanly from any checkpoint.
func (sc *Scenario) RunFrom(ctx context.Context, j *journal.Journal, resume *state.UnifiedState) (*Result, error) {
	cfg, err := sc.BuildConfig()
	if err != nil {
		return nil, err
	}

	s := &script{}
	ids := &seqIDs{}
	if resume != nil {
		ids.prefix = fmt.Sprintf("c%d-", resume.Cycle)
	}
	eng := orchestrator.New(orchestrator.Options{
		Config: cfg,
		Feeds: feed.Sources{
			Market: &marketFeed{s: s},
			News:   &newsFeed{s: s},
			Social: &socialFeed{s: s},
		},
		Generator: &scriptedGenerator{steps: sc.Generator},
		Poster:    &scriptedPoster{steps: sc.Poster},
		IDs:       ids,
		Journal:   j,
		Resume:    resume,
		Now:       func() time.Time { return clockEpoch },
	})

	byCycle := make(map[int]CycleFeed, len(sc.Feeds))
	for _, f := range sc.Feeds {
		byCycle[f.Cycle] = f
	}

	res := &Result{Scenario: sc.Name, Cycles: make([]CycleTrace, 0, sc.Cycles)}
	for c := 1; c <= sc.Cycles; c++ {
		s.set(byCycle[c])

		stepErr := eng.Step(ctx)
		snap := eng.Snapshot()
		res.Cycles = append(res.Cycles, buildCycleTrace(eng.Cycle(), eng.State(), snap))
		res.Final = snap

		if stepErr != nil {
			res.Halted = true
			res.HaltErr = stepErr.Error()
			break
		}
	}
	return res, nil
}

// buildCycleTrace projects a snapshot onto the trace entry for one cycle.
// Slices are always non-nil so traces serialize stably.
func buildCycleTrace(cycle int64, machineState string, snap state.UnifiedState) CycleTrace {
	t := CycleTrace{
		Cycle:      cycle,
		State:      machineState,
		Patterns:   make([]state.Pattern, 0, len(snap.Patterns)),
		Candidates: make([]state.PostCandidate, 0, len(snap.Candidates)),
		Publishes:  make([]state.PublishOutcome, 0),
		Errors:     make([]state.ErrorRecord, 0),
	}

	for _, p := range snap.Patterns {
		t.Patterns = append(t.Patterns, p)
	}
	sort.Slice(t.Patterns, func(i, j int) bool { return t.Patterns[i].ID < t.Patterns[j].ID })

	t.Candidates = append(t.Candidates, snap.Candidates...)

	for _, out := range snap.PublishHistory {
		if out.Cycle == cycle {
			t.Publishes = append(t.Publishes, out)
		}
	}
	for _, rec := range snap.ErrorLog {
		if rec.Cycle == cycle {
			t.Errors = append(t.Errors, rec)
		}
	}
	return t
}
