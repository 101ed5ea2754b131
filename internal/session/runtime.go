// Package session drives the periodic evaluation cycle: it is the sole
// mutator of positions, while other components read state snapshots and
// at most flip the pause flag.
package session

import (
	"sort"
	"sync"
	"time"

	"trailbot/internal/domain"
)

// PairStatus is the last market observation for a pair, published after
// every cycle for the command channel and the operator API.
type PairStatus struct {
	Pair      string        `json:"pair"`
	Price     float64       `json:"price"`
	ATR       float64       `json:"atr"`
	Regime    domain.Regime `json:"regime"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Runtime is the shared in-memory state between the driver, the command
// channel and the HTTP delivery layer. All methods copy on read; no I/O
// happens under the lock.
type Runtime struct {
	mu        sync.RWMutex
	paused    bool
	startedAt time.Time
	status    map[string]PairStatus
	positions map[string]domain.Position
}

// NewRuntime returns an empty runtime.
func NewRuntime() *Runtime {
	return &Runtime{
		startedAt: time.Now(),
		status:    map[string]PairStatus{},
		positions: map[string]domain.Position{},
	}
}

// SetPaused flips the trading gate. A paused cycle only refreshes the
// market snapshot; no candle writes and no position transitions happen
// until trading resumes.
func (r *Runtime) SetPaused(paused bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paused = paused
}

// Paused reports whether new position creation is suspended.
func (r *Runtime) Paused() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.paused
}

// StartedAt returns the session start time.
func (r *Runtime) StartedAt() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.startedAt
}

// PublishStatus records the latest market observation for a pair.
func (r *Runtime) PublishStatus(st PairStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status[st.Pair] = st
}

// Status returns all pair statuses sorted by pair name.
func (r *Runtime) Status() []PairStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]PairStatus, 0, len(r.status))
	for _, st := range r.status {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Pair < out[j].Pair })
	return out
}

// PublishPosition mirrors the persisted active position for a pair. A nil
// position clears the entry after closure.
func (r *Runtime) PublishPosition(pair string, p *domain.Position) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p == nil {
		delete(r.positions, pair)
		return
	}
	r.positions[pair] = *p
}

// Positions returns copies of the mirrored active positions sorted by
// pair name.
func (r *Runtime) Positions() []*domain.Position {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.Position, 0, len(r.positions))
	for _, p := range r.positions {
		p := p
		out = append(out, &p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Pair < out[j].Pair })
	return out
}
