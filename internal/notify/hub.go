// Package notify provides the in-process fan-out that backs job status
// subscriptions. The hub is fed by the Postgres listener and drained by the
// SSE handlers.
package notify

import (
	"sync"

	"sona/internal/domain"
)

// Hub fans job updates out to subscribers keyed by job id. Slow subscribers
// never block publishers: when a subscriber's buffer is full the update is
// dropped, which is acceptable because every update carries the full record
// and a newer one supersedes it.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[chan *domain.Job]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan *domain.Job]struct{})}
}

// Subscribe registers interest in one job id. The returned cancel function
// must be called exactly once; it closes the channel.
func (h *Hub) Subscribe(jobID string) (<-chan *domain.Job, func()) {
	ch := make(chan *domain.Job, 8)

	h.mu.Lock()
	set, ok := h.subs[jobID]
	if !ok {
		set = make(map[chan *domain.Job]struct{})
		h.subs[jobID] = set
	}
	set[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if set, ok := h.subs[jobID]; ok {
			if _, present := set[ch]; present {
				delete(set, ch)
				close(ch)
			}
			if len(set) == 0 {
				delete(h.subs, jobID)
			}
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers the updated record to every subscriber of its job id.
func (h *Hub) Publish(job *domain.Job) {
	if job == nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[job.ID] {
		select {
		case ch <- job:
		default:
		}
	}
}

// Subscribers reports how many channels are registered for a job id.
func (h *Hub) Subscribers(jobID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[jobID])
}
