// Package progress tracks and reconciles execution progress for one run.
package progress

import "sync"

// Snapshot is the reporting surface exposed to the UI layer.
type Snapshot struct {
	Phase   string  `json:"phase"`
	Percent float64 `json:"percent"`
}

// Tracker holds the current phase and percentage for a run. Percent is
// monotonic: Set keeps the maximum of the previous and the new value, so
// concurrent writers with stale estimates can never move progress backwards.
type Tracker struct {
	mu      sync.Mutex
	phase   string
	percent float64
}

func NewTracker(phase string, percent float64) *Tracker {
	t := &Tracker{}
	t.Set(phase, percent)
	return t
}

// Set updates the phase and advances percent if the new value is higher.
// Returns the effective percent after clamping.
func (t *Tracker) Set(phase string, percent float64) float64 {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.phase = phase
	if percent > t.percent {
		t.percent = percent
	}
	return t.percent
}

func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Snapshot{Phase: t.phase, Percent: t.percent}
}
