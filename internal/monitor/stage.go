package monitor

import (
	"context"

	"github.com/Gonzo3030/gonzo/internal/state"
)

// Stage is one unit of work within a cycle. Run receives a read-only
// snapshot and returns the delta to merge. A non-nil error goes to the
// recovery coordinator; any delta returned alongside it is discarded.
type Stage interface {
	Name() string
	Run(ctx context.Context, snap state.UnifiedState) (state.Delta, error)
}
