// Package timer drives the simulated clock for the back-test: a monotone
// sequence of tick timestamps from start to end in fixed steps.
package timer

import "fmt"

// Timer holds the simulated clock. It is monotone: Advance never
// rewinds, and the core must reject processing the same timestamp twice.
type Timer struct {
	start int64
	end int64
	step int64
	current int64
	hasLast bool
	last int64
}

// New builds a Timer that begins at start and advances by step until it
// passes end.
func New(start, end, step int64) *Timer {
	return &Timer{start: start, end: end, step: step, current: start}
}

// Now returns the current tick timestamp.
func (t *Timer) Now() int64 {
	return t.current
}

// Advance adds step to current and reports whether the run is done, i.e.
// the new current timestamp is past end.
func (t *Timer) Advance() (done bool) {
	t.current += t.step
	return t.current > t.end
}

// MarkProcessed records that timestamp ts has been run through process().
// It returns an error if ts has already been processed, which is a
// programmer/contract error and should abort the run.
func (t *Timer) MarkProcessed(ts int64) error {
	if t.hasLast && ts <= t.last {
		return fmt.Errorf("timer: timestamp %d already processed (last=%d)", ts, t.last)
	}
	t.last = ts
	t.hasLast = true
	return nil
}
