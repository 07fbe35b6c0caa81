package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gammazero/workerpool"
	"github.com/looplab/fsm"

	"github.com/Gonzo3030/gonzo/internal/analyzer"
	"github.com/Gonzo3030/gonzo/internal/config"
	"github.com/Gonzo3030/gonzo/internal/feed"
	"github.com/Gonzo3030/gonzo/internal/journal"
	"github.com/Gonzo3030/gonzo/internal/monitor"
	"github.com/Gonzo3030/gonzo/internal/narrative"
	"github.com/Gonzo3030/gonzo/internal/publish"
	"github.com/Gonzo3030/gonzo/internal/ratelimit"
	"github.com/Gonzo3030/gonzo/internal/recovery"
	"github.com/Gonzo3030/gonzo/internal/state"
)

// Stage names for the serial phases. Monitor stages name themselves.
const (
	stageAnalyzer  = "analyzer"
	stageNarrative = "narrative"
	stagePublisher = "publisher"
)

// ErrHalted is returned by Step and Run after the loop has halted.
var ErrHalted = errors.New("loop halted")

// Options wires an Engine. Config, Feeds, Generator, Poster, and IDs are
// required; the rest default.
type Options struct {
	Config    config.Config
	Feeds     feed.Sources
	Generator feed.Generator
	Poster    feed.Poster
	IDs       narrative.IDGenerator

	// Journal persists the audit trail and checkpoints. Nil runs the loop
	// in memory only.
	Journal *journal.Journal

	// Resume seeds the store from a restored checkpoint instead of an
	// empty state.
	Resume *state.UnifiedState

	// Now supplies timestamps; tests pass a fixed clock.
	Now func() time.Time
}

// Engine owns one full cycle: monitors fan out on the pool, every merge
// and every serial stage runs on the caller's goroutine.
type Engine struct {
	cfg       config.Config
	store     *state.Store
	monitors  []monitor.Stage
	analyzer  *analyzer.Analyzer
	narrative *narrative.Stage
	publisher *publish.Publisher
	limiter   *ratelimit.Limiter
	recovery  *recovery.Coordinator
	journal   *journal.Journal
	machine   *fsm.FSM
	now       func() time.Time

	haltErr error
}

// New assembles an Engine from Options.
func New(opts Options) *Engine {
	cfg := opts.Config
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	st := state.NewStore()
	if opts.Resume != nil {
		st = state.NewStoreFrom(*opts.Resume)
	}

	limiter := ratelimit.New(cfg.RateLimit.Capacity, cfg.RateLimit.RefillPerCycle)

	e := &Engine{
		cfg:   cfg,
		store: st,
		monitors: []monitor.Stage{
			&monitor.MarketStage{
				Feed:         opts.Feeds.Market,
				MoveFloorPct: cfg.Monitor.MoveThresholdPct,
				Timeout:      cfg.Monitor.FetchTimeout.Std(),
			},
			&monitor.SocialStage{
				Feed:          opts.Feeds.Social,
				MinEngagement: cfg.Monitor.MinEngagement,
				Timeout:       cfg.Monitor.FetchTimeout.Std(),
			},
			&monitor.NewsStage{
				Feed:     opts.Feeds.News,
				Interval: cfg.Monitor.NewsInterval,
				Keywords: cfg.Monitor.NewsKeywords,
				Timeout:  cfg.Monitor.FetchTimeout.Std(),
			},
		},
		analyzer: &analyzer.Analyzer{
			Floor:          cfg.Analyzer.Floor,
			Window:         cfg.Analyzer.CorrelationWindow.Std(),
			SigmaThreshold: cfg.Analyzer.SigmaThreshold,
			TrendLength:    cfg.Analyzer.TrendLength,
		},
		narrative: &narrative.Stage{
			Generator:   opts.Generator,
			IDs:         opts.IDs,
			Threshold:   cfg.Narrative.Threshold,
			MaxPerCycle: cfg.Narrative.MaxPerCycle,
			Timeout:     cfg.Narrative.GenerateTimeout.Std(),
		},
		publisher: &publish.Publisher{
			Poster:          opts.Poster,
			Limiter:         limiter,
			ConfidenceFloor: cfg.Publish.ConfidenceFloor,
			MaxAge:          cfg.Publish.MaxCandidateAge,
			MinLength:       cfg.Publish.MinLength,
			MaxLength:       cfg.Publish.MaxLength,
			Timeout:         cfg.Publish.PostTimeout.Std(),
			Now:             now,
		},
		limiter:  limiter,
		recovery: recovery.New(cfg.Recovery, now),
		journal:  opts.Journal,
		machine:  newMachine(),
		now:      now,
	}
	if opts.Resume != nil {
		e.restore(*opts.Resume)
	}
	return e
}

// restore rebuilds the side state a checkpoint does not carry directly:
// the recovery coordinator's parking history from the error log, and the
// limiter's token balance from the publish history. A resumed run must
// follow the same next-cycle trajectory as the uninterrupted one.
func (e *Engine) restore(snap state.UnifiedState) {
	posts := make(map[int64]int, len(snap.PublishHistory))
	for _, out := range snap.PublishHistory {
		posts[out.Cycle]++
	}
	e.limiter.Restore(snap.Cycle, posts)

	// A serial-stage failure skips the serial stages after it for that
	// cycle, so a quiet cycle is not evidence those stages ran clean.
	order := map[string]int{stageAnalyzer: 0, stageNarrative: 1, stagePublisher: 2}
	reached := func(stage string, cycle int64) bool {
		rank, serial := order[stage]
		if !serial {
			return true
		}
		for _, rec := range snap.ErrorLog {
			if rec.Cycle != cycle {
				continue
			}
			if r, ok := order[rec.Stage]; ok && r < rank {
				return false
			}
		}
		return true
	}
	e.recovery.Replay(snap.ErrorLog, snap.Cycle, reached)
}

// State returns the machine's current state.
func (e *Engine) State() string {
	return e.machine.Current()
}

// Cycle returns the store's current cycle number.
func (e *Engine) Cycle() int64 {
	return e.store.Cycle()
}

// Snapshot returns a deep copy of the unified state.
func (e *Engine) Snapshot() state.UnifiedState {
	return e.store.Snapshot()
}

// monitorResult carries one monitor stage's output back to the merge loop.
type monitorResult struct {
	stage string
	delta state.Delta
	err   error
}

// Step runs exactly one cycle. Returns ErrHalted once the loop has halted;
// every other return is a completed cycle.
func (e *Engine) Step(ctx context.Context) error {
	if e.machine.Current() == StateHalted {
		return e.haltErr
	}

	cycle := e.store.BeginCycle()
	e.limiter.Refill(e.now())
	slog.Info("cycle begin", "cycle", cycle)

	step(ctx, e.machine, eventBegin)
	e.runMonitors(ctx, cycle)
	if e.machine.Current() == StateHalted {
		return e.haltErr
	}

	step(ctx, e.machine, eventAnalyze)
	ok := e.runAnalyzer(ctx, cycle)

	if ok {
		step(ctx, e.machine, eventNarrate)
		ok = e.serial(ctx, cycle, stageNarrative, e.narrative.Run)
	}
	if ok {
		step(ctx, e.machine, eventPublish)
		e.serial(ctx, cycle, stagePublisher, e.publisher.Run)
	}

	switch e.machine.Current() {
	case StateHalted:
		return e.haltErr
	case StateRecovering:
		step(ctx, e.machine, eventResume)
	default:
		step(ctx, e.machine, eventComplete)
	}

	e.finishCycle(ctx, cycle)
	step(ctx, e.machine, eventIdle)
	return nil
}

// Run steps cycles until ctx is cancelled or the loop halts. Cancellation
// is observed only at cycle boundaries.
func (e *Engine) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := e.Step(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunCycles steps a fixed number of cycles back to back. Used by scripted
// runs and replay.
func (e *Engine) RunCycles(ctx context.Context, n int) error {
	for i := 0; i < n; i++ {
		if err := e.Step(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
	return nil
}

// runMonitors fans the monitor stages out on a worker pool and merges
// their deltas on this goroutine in completion order. A stage that fails
// has its whole delta discarded; it refetches from its marker next cycle.
func (e *Engine) runMonitors(ctx context.Context, cycle int64) {
	snap := e.store.Snapshot()
	results := make(chan monitorResult, len(e.monitors))

	wp := workerpool.New(len(e.monitors))
	for _, stage := range e.monitors {
		if !e.recovery.ShouldRun(stage.Name(), cycle) {
			slog.Info("stage parked", "stage", stage.Name(), "cycle", cycle)
			continue
		}
		stage := stage
		wp.Submit(func() {
			d, err := stage.Run(ctx, snap)
			results <- monitorResult{stage: stage.Name(), delta: d, err: err}
		})
	}
	wp.StopWait()
	close(results)

	// Monitor failures never detour the machine; the cycle proceeds on
	// whatever the merge produced.
	for res := range results {
		if e.machine.Current() == StateHalted {
			return
		}
		if res.err != nil {
			if e.handleFailure(ctx, res.stage, cycle, res.err) {
				// Retry once within the cycle against a fresh snapshot.
				d, err := e.monitorByName(res.stage).Run(ctx, e.store.Snapshot())
				if err != nil {
					e.handleFailure(ctx, res.stage, cycle, err)
					continue
				}
				res.delta = d
			} else {
				continue
			}
		}
		if err := e.store.ApplyDelta(res.delta); err != nil {
			e.handleFailure(ctx, res.stage, cycle, err)
			continue
		}
		e.recovery.NoteSuccess(res.stage)
	}
}

// runAnalyzer rebuilds the pattern set from the merged snapshot. Analysis
// is pure; only the merge itself can fail. Returns false when the failure
// detoured the machine.
func (e *Engine) runAnalyzer(ctx context.Context, cycle int64) bool {
	run := func(ctx context.Context, snap state.UnifiedState) (state.Delta, error) {
		d := state.NewDelta(stageAnalyzer, snap.Cycle)
		d.Patterns = e.analyzer.Analyze(snap)
		d.ReplacePatterns = true
		return d, nil
	}
	return e.serial(ctx, cycle, stageAnalyzer, run)
}

// serial runs one serial stage. The stage's delta is applied even when the
// stage also reports an error: narrative and publish both return partial
// output alongside the first failure. Returns false when the failure
// detoured the machine to recovering or halted; the remaining serial
// phases are then skipped for this cycle.
func (e *Engine) serial(ctx context.Context, cycle int64, name string,
	run func(context.Context, state.UnifiedState) (state.Delta, error)) bool {

	if !e.recovery.ShouldRun(name, cycle) {
		slog.Info("stage parked", "stage", name, "cycle", cycle)
		return true
	}

	err := e.runAndMerge(ctx, name, run)
	if err == nil {
		e.recovery.NoteSuccess(name)
		return true
	}

	if e.handleFailure(ctx, name, cycle, err) {
		// One in-cycle retry against a fresh snapshot.
		rerr := e.runAndMerge(ctx, name, run)
		if rerr == nil {
			e.recovery.NoteSuccess(name)
			return true
		}
		e.handleFailure(ctx, name, cycle, rerr)
	}
	if e.machine.Current() != StateHalted {
		step(ctx, e.machine, eventRecover)
	}
	return false
}

// runAndMerge executes a stage and merges its delta, reporting the stage's
// own error ahead of a merge error.
func (e *Engine) runAndMerge(ctx context.Context, name string,
	run func(context.Context, state.UnifiedState) (state.Delta, error)) error {

	d, err := run(ctx, e.store.Snapshot())
	if aerr := e.store.ApplyDelta(d); aerr != nil && err == nil {
		err = aerr
	}
	return err
}

// handleFailure asks the coordinator for a verdict, records the error in
// state and journal, and applies the verdict. Returns true when the stage
// should retry immediately within this cycle.
func (e *Engine) handleFailure(ctx context.Context, stage string, cycle int64, err error) bool {
	action, rec := e.recovery.Handle(stage, cycle, err)
	slog.Warn("stage failed",
		"stage", stage,
		"cycle", cycle,
		"kind", rec.Kind,
		"action", string(action),
		"error", err,
	)

	d := state.NewDelta(stage, cycle)
	d.Errors = append(d.Errors, rec)
	if aerr := e.store.ApplyDelta(d); aerr != nil {
		slog.Error("error record dropped", "stage", stage, "error", aerr)
	}
	if e.journal != nil {
		if jerr := e.journal.AppendErrorRecord(ctx, rec); jerr != nil {
			slog.Error("journal append failed", "stage", stage, "error", jerr)
		}
	}

	switch action {
	case recovery.ActionHalt:
		e.haltErr = fmt.Errorf("%w: stage %s: %v", ErrHalted, stage, err)
		if e.machine.Current() != StateHalted {
			step(ctx, e.machine, eventHalt)
		}
		return false
	case recovery.ActionRetryNow:
		return true
	default:
		// retry_next_cycle and skip both end the stage's work this cycle;
		// the coordinator already parked it as needed.
		return false
	}
}

// finishCycle persists the cycle's outcomes and prunes terminal candidates
// that have aged past the publish window.
func (e *Engine) finishCycle(ctx context.Context, cycle int64) {
	snap := e.store.Snapshot()

	if e.journal != nil {
		for _, out := range snap.PublishHistory {
			if out.Cycle != cycle {
				continue
			}
			if err := e.journal.AppendPublishOutcome(ctx, out); err != nil {
				slog.Error("journal append failed", "cycle", cycle, "error", err)
			}
		}

		blob, err := state.MarshalCheckpoint(snap)
		if err != nil {
			slog.Error("checkpoint marshal failed", "cycle", cycle, "error", err)
		} else if err := e.journal.SaveCheckpoint(ctx, cycle, blob); err != nil {
			slog.Error("checkpoint save failed", "cycle", cycle, "error", err)
		}
	}

	e.store.PruneCandidates(cycle - e.cfg.Publish.MaxCandidateAge)
	slog.Info("cycle complete",
		"cycle", cycle,
		"patterns", len(snap.Patterns),
		"pending", len(snap.Pending()),
	)
}

// monitorByName returns the monitor stage with the given name.
func (e *Engine) monitorByName(name string) monitor.Stage {
	for _, s := range e.monitors {
		if s.Name() == name {
			return s
		}
	}
	panic("orchestrator: unknown monitor stage " + name)
}

