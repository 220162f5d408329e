package service

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hanwei-dev/VeoBridge/internal/port/transport"
)

// Worker is a connected browser page able to execute one task at a time.
type Worker struct {
	ID            string           `json:"id"`
	PageURL       string           `json:"page_url"`
	DisplayIndex  int              `json:"display_index"`
	Busy          bool             `json:"busy"`
	TaskID        string           `json:"task_id,omitempty"`
	CooldownUntil time.Time        `json:"cooldown_until"`
	Conn          transport.Sender `json:"-"`
	RegisteredAt  time.Time        `json:"registered_at"`
}

// Pool is the in-memory worker registry. A worker is eligible for dispatch
// iff it is present, not busy, and past its cooldown. Iteration for PickIdle
// follows registration order.
type Pool struct {
	mu        sync.Mutex
	workers   map[string]*Worker
	order     []string
	nextIndex int
	cooldown  time.Duration
	seq       int
	now       func() time.Time
}

// NewPool creates an empty worker pool. cooldown is the mandatory rest a
// worker gets after finishing a task.
func NewPool(cooldown time.Duration) *Pool {
	return &Pool{
		workers:   make(map[string]*Worker),
		nextIndex: 1,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// Register adds a worker for the given page. A previous registration for the
// same page URL is evicted first (the same tab reconnecting replaces its
// stale entry); if that stale entry held a task, its id is returned so the
// caller can requeue it. Display indexes increase strictly and are never
// reused.
func (p *Pool) Register(conn transport.Sender, pageURL string) (Worker, string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var orphanedTask string
	for id, w := range p.workers {
		if w.PageURL == pageURL {
			if w.TaskID != "" {
				orphanedTask = w.TaskID
			}
			p.removeLocked(id)
		}
	}

	w := &Worker{
		ID:           fmt.Sprintf("w%d_%s", p.seq, uuid.NewString()[:8]),
		PageURL:      pageURL,
		DisplayIndex: p.nextIndex,
		Conn:         conn,
		RegisteredAt: p.now(),
	}
	p.seq++
	p.nextIndex++
	p.workers[w.ID] = w
	p.order = append(p.order, w.ID)
	return *w, orphanedTask
}

// Unregister removes a worker and returns the id of any task it was holding,
// so the caller can push it back to the queue. Disconnect is a recoverable
// interruption, never a task failure.
func (p *Pool) Unregister(id string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	w, ok := p.workers[id]
	if !ok {
		return "", false
	}
	taskID := w.TaskID
	p.removeLocked(id)
	return taskID, true
}

// PickIdle returns the first worker in registration order that is not busy
// and past its cooldown.
func (p *Pool) PickIdle() (Worker, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	for _, id := range p.order {
		w := p.workers[id]
		if w.Busy || now.Before(w.CooldownUntil) {
			continue
		}
		return *w, true
	}
	return Worker{}, false
}

// MarkBusy binds a task to a worker. It fails if the worker is gone or was
// already claimed by a concurrent dispatch.
func (p *Pool) MarkBusy(id, taskID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	w, ok := p.workers[id]
	if !ok || w.Busy {
		return false
	}
	w.Busy = true
	w.TaskID = taskID
	return true
}

// MarkIdle frees a worker after it finished (or failed) a task and stamps the
// cooldown, so the page gets breathing room before the next assignment.
func (p *Pool) MarkIdle(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	w, ok := p.workers[id]
	if !ok {
		return
	}
	w.Busy = false
	w.TaskID = ""
	w.CooldownUntil = p.now().Add(p.cooldown)
}

// Release frees a worker without a cooldown stamp. Used by the timeout sweep:
// the worker did not finish anything, it just lost its task.
func (p *Pool) Release(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	w, ok := p.workers[id]
	if !ok {
		return
	}
	w.Busy = false
	w.TaskID = ""
}

// Get returns a copy of the worker with the given id.
func (p *Pool) Get(id string) (Worker, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	w, ok := p.workers[id]
	if !ok {
		return Worker{}, false
	}
	return *w, true
}

// Counts returns the total and busy worker counts.
func (p *Pool) Counts() (total, busy int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	total = len(p.workers)
	for _, w := range p.workers {
		if w.Busy {
			busy++
		}
	}
	return total, busy
}

// AnyBusy reports whether at least one worker is mid-task.
func (p *Pool) AnyBusy() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, w := range p.workers {
		if w.Busy {
			return true
		}
	}
	return false
}

// removeLocked drops a worker from the map and the order slice.
// Callers must hold p.mu.
func (p *Pool) removeLocked(id string) {
	delete(p.workers, id)
	for i, oid := range p.order {
		if oid == id {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
}
