package recovery

// Backoff computes the exponential retry delay, measured in cycles.
type Backoff struct {
	Base int64 // delay after the first failure
	Max  int64 // delay ceiling
}

// Delay returns the number of cycles to wait after the given retry number
// (0 for the first failure). Doubles per retry, clamped to Max.
func (b Backoff) Delay(retry int) int64 {
	if retry < 0 {
		retry = 0
	}
	// Shift saturates well before overflow territory.
	if retry > 62 {
		return b.Max
	}
	d := b.Base << uint(retry)
	if d > b.Max || d <= 0 {
		return b.Max
	}
	return d
}
