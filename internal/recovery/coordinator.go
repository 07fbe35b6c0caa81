package recovery

import (
	"sync"
	"time"

	"github.com/Gonzo3030/gonzo/internal/config"
	"github.com/Gonzo3030/gonzo/internal/feed"
	"github.com/Gonzo3030/gonzo/internal/state"
)

// Action is the coordinator's verdict on a stage failure.
type Action string

const (
	// ActionRetryNow re-runs the stage within the same cycle. Reserved for
	// failures known to be instantaneous races; the current policy never
	// emits it, but the orchestrator honors it.
	ActionRetryNow Action = "retry_now"

	// ActionRetryNextCycle parks the stage for its backoff delay and lets
	// the loop continue.
	ActionRetryNextCycle Action = "retry_next_cycle"

	// ActionSkip discards the stage's output for this cycle.
	ActionSkip Action = "skip"

	// ActionHalt stops the loop. Terminal; requires external restart.
	ActionHalt Action = "halt"
)

// Error kinds recorded beyond the adapter taxonomy.
const (
	kindStaleWrite      = "stale_write"
	kindBudgetExhausted = "retry_budget_exhausted"
)

// Coordinator tracks per-stage failure history and answers Handle calls.
// Safe for concurrent use, though the orchestrator calls it from the merge
// goroutine only.
type Coordinator struct {
	mu       sync.Mutex
	budget   int
	window   int64
	backoff  Backoff
	now      func() time.Time
	failures map[string][]int64 // cycles of retryable failures, pruned to window
	retries  map[string]int     // consecutive backoff counter, reset on success
	resumeAt map[string]int64   // stage parked until this cycle
}

// New creates a Coordinator from recovery config. now supplies timestamps
// for error records; tests pass a fixed clock.
func New(cfg config.Recovery, now func() time.Time) *Coordinator {
	if now == nil {
		now = time.Now
	}
	return &Coordinator{
		budget:   cfg.RetryBudget,
		window:   cfg.RetryWindow,
		backoff:  Backoff{Base: cfg.BackoffBase, Max: cfg.BackoffMax},
		now:      now,
		failures: make(map[string][]int64),
		retries:  make(map[string]int),
		resumeAt: make(map[string]int64),
	}
}

// Handle classifies a stage failure and returns the action plus the single
// ErrorRecord this invocation appends.
func (c *Coordinator) Handle(stage string, cycle int64, err error) (Action, state.ErrorRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec := state.ErrorRecord{
		Stage:     stage,
		Cycle:     cycle,
		Timestamp: c.now(),
	}

	if state.IsStaleWrite(err) {
		// Fatal to the stage's output this cycle; a fresh snapshot next
		// cycle resolves it. Not counted against the retry budget.
		rec.Kind = kindStaleWrite
		return ActionSkip, rec
	}

	kind := feed.KindOf(err)
	rec.Kind = string(kind)

	switch kind {
	case feed.KindAuth, feed.KindConfig:
		return ActionHalt, rec

	case feed.KindValidation, feed.KindRejected:
		// Output discarded for the cycle; the inputs will not get better
		// by retrying.
		return ActionSkip, rec

	default: // transient, rate_limited, unclassified
		c.failures[stage] = pruneWindow(append(c.failures[stage], cycle), cycle, c.window)

		if len(c.failures[stage]) > c.budget {
			rec.Kind = kindBudgetExhausted
			rec.Retries = c.retries[stage]
			return ActionSkip, rec
		}

		retry := c.retries[stage]
		c.retries[stage] = retry + 1
		c.resumeAt[stage] = cycle + c.backoff.Delay(retry)
		rec.Retries = retry + 1
		return ActionRetryNextCycle, rec
	}
}

// Replay rebuilds per-stage failure history from a checkpointed error log
// so a resumed loop parks and backs off exactly as the uninterrupted one
// would. Cycles without a record reset a stage's backoff only when the
// stage actually ran clean: reached reports whether the stage was reached
// on that cycle (the orchestrator knows which cycles skipped a serial
// stage because an earlier one failed).
func (c *Coordinator) Replay(log []state.ErrorRecord, cycle int64, reached func(stage string, cycle int64) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	byStage := make(map[string][]state.ErrorRecord)
	for _, rec := range log {
		byStage[rec.Stage] = append(byStage[rec.Stage], rec)
	}

	for stage, recs := range byStage {
		var failures []int64
		retries := 0
		var resumeAt int64

		i := 0
		for x := int64(1); x <= cycle; x++ {
			var cur []state.ErrorRecord
			for i < len(recs) && recs[i].Cycle == x {
				cur = append(cur, recs[i])
				i++
			}

			if len(cur) == 0 {
				eligible := x >= resumeAt &&
					len(pruneWindow(failures, x, c.window)) <= c.budget
				if eligible && reached(stage, x) {
					retries = 0
					resumeAt = 0
				}
				continue
			}

			for _, rec := range cur {
				switch rec.Kind {
				case string(feed.KindTransient), string(feed.KindRateLimited):
					failures = pruneWindow(append(failures, x), x, c.window)
					resumeAt = x + c.backoff.Delay(retries)
					retries++
				case kindBudgetExhausted:
					failures = pruneWindow(append(failures, x), x, c.window)
				}
				// validation, rejected, and stale_write records carry no
				// retry state.
			}
		}

		if len(failures) > 0 {
			c.failures[stage] = failures
		}
		if retries > 0 {
			c.retries[stage] = retries
		}
		if resumeAt > cycle {
			c.resumeAt[stage] = resumeAt
		}
	}
}

// ShouldRun reports whether a stage is eligible this cycle. A stage is
// parked while its backoff delay has not elapsed or while its retryable
// failures still exceed the rolling budget.
func (c *Coordinator) ShouldRun(stage string, cycle int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cycle < c.resumeAt[stage] {
		return false
	}
	c.failures[stage] = pruneWindow(c.failures[stage], cycle, c.window)
	return len(c.failures[stage]) <= c.budget
}

// NoteSuccess resets the backoff counter after a clean stage run. The
// rolling failure window is left alone; the budget is about failures per
// window, not consecutive failures.
func (c *Coordinator) NoteSuccess(stage string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.retries[stage] = 0
	delete(c.resumeAt, stage)
}

// pruneWindow drops failures that fell out of the (cycle-window, cycle]
// range.
func pruneWindow(cycles []int64, cycle, window int64) []int64 {
	cutoff := cycle - window
	i := 0
	for i < len(cycles) && cycles[i] <= cutoff {
		i++
	}
	return cycles[i:]
}
