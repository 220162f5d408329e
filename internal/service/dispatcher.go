package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"time"

	otelmetrics "github.com/hanwei-dev/VeoBridge/internal/adapter/otel"
	"github.com/hanwei-dev/VeoBridge/internal/config"
	"github.com/hanwei-dev/VeoBridge/internal/domain/task"
	"github.com/hanwei-dev/VeoBridge/internal/imaging"
	"github.com/hanwei-dev/VeoBridge/internal/port/transport"
)

// ImageResolver converts an on-disk reference image to an inline base64
// payload within the protocol size budget.
type ImageResolver interface {
	CompressFileToBase64(path string) (string, error)
}

// Dispatcher runs the matching loop: sweep timeouts, pick the next pending
// task, pick an idle worker, send. At most one loop goroutine runs at a time;
// the loop exits on its own once the queue drains and no worker is busy.
//
// Each loop start bumps a generation counter. A loop stays alive only while
// the running flag is set AND the generation still matches, so a stop
// followed by an immediate restart retires the old goroutine instead of
// letting its exit clear the new loop's flag.
type Dispatcher struct {
	store     *Store
	pool      *Pool
	artifacts *Artifacts
	images    ImageResolver
	cfg       config.Dispatch
	metrics   *otelmetrics.Metrics
	base      context.Context

	mu      sync.Mutex
	running bool
	gen     uint64
}

// NewDispatcher creates a dispatcher. base bounds the lifetime of any loop the
// dispatcher starts; cancelling it stops dispatch for good.
func NewDispatcher(base context.Context, store *Store, pool *Pool, artifacts *Artifacts, images ImageResolver, cfg config.Dispatch, metrics *otelmetrics.Metrics) *Dispatcher {
	return &Dispatcher{
		store:     store,
		pool:      pool,
		artifacts: artifacts,
		images:    images,
		cfg:       cfg,
		metrics:   metrics,
		base:      base,
	}
}

// Running reports whether the dispatch loop is active.
func (d *Dispatcher) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// Stop asks the loop to exit after its current iteration. In-flight tasks are
// untouched; workers keep reporting results while the loop is stopped. The
// generation bump retires the current loop even if the flag is set again
// before it notices.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		d.running = false
		d.gen++
		slog.Info("dispatch loop stop requested")
	}
}

// EnsureRunning starts the loop if it is not already running and there is
// anything to do. Safe to call from every enqueue and worker-connect path.
func (d *Dispatcher) EnsureRunning() {
	if total, _ := d.pool.Counts(); total == 0 {
		slog.Debug("dispatch start skipped, no workers connected")
		return
	}
	if d.store.Len() == 0 {
		return
	}

	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return
	}
	d.running = true
	d.gen++
	gen := d.gen
	d.mu.Unlock()

	go d.run(d.base, gen)
}

// alive reports whether the loop of the given generation should keep going.
func (d *Dispatcher) alive(gen uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running && d.gen == gen
}

// finish clears the running flag on loop exit, unless a newer generation has
// already been started.
func (d *Dispatcher) finish(gen uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gen == gen {
		d.running = false
	}
}

// TryDispatch makes one immediate dispatch attempt for a specific queued task,
// bypassing the queue cursor. Used on the enqueue path so a request does not
// wait for the next loop tick. Reports whether the task was handed off.
func (d *Dispatcher) TryDispatch(ctx context.Context, taskID string) bool {
	t, ok := d.store.Get(taskID)
	if !ok || t.Status != task.StatusQueued {
		return false
	}
	w, ok := d.pool.PickIdle()
	if !ok {
		return false
	}
	return d.dispatchTo(ctx, t, w)
}

func (d *Dispatcher) run(ctx context.Context, gen uint64) {
	defer d.finish(gen)
	slog.Info("dispatch loop started", "queued", d.store.Len())

	for d.alive(gen) && ctx.Err() == nil {
		d.sweep(ctx)

		t, ok := d.store.NextPending()
		if !ok {
			if !d.pool.AnyBusy() {
				slog.Info("queue drained, dispatch loop exiting")
				return
			}
			if !sleepCtx(ctx, d.cfg.IdleWait) {
				return
			}
			continue
		}

		if total, _ := d.pool.Counts(); total == 0 {
			slog.Warn("tasks pending but no workers connected")
			if !sleepCtx(ctx, d.cfg.NoWorkerWait) {
				return
			}
			continue
		}

		w, ok := d.pool.PickIdle()
		if !ok {
			if !sleepCtx(ctx, d.cfg.IdleWait) {
				return
			}
			continue
		}

		if d.artifacts.SkipIfExists(ctx, t) {
			continue
		}

		d.dispatchTo(ctx, t, w)

		if !sleepCtx(ctx, d.cfg.LoopInterval) {
			return
		}
	}
	slog.Info("dispatch loop stopped")
}

// sweep times out overdue assigned tasks and releases their workers without a
// cooldown stamp: the worker did not finish anything, it just lost its task.
func (d *Dispatcher) sweep(ctx context.Context) {
	for _, t := range d.store.SweepTimeouts(d.cfg.TaskTimeout) {
		if t.WorkerID != "" {
			d.pool.Release(t.WorkerID)
		}
		d.metrics.TasksTimedOut.Add(ctx, 1)
		slog.Warn("task timed out", "task_id", t.ID, "worker_id", t.WorkerID, "timeout", d.cfg.TaskTimeout)
	}
}

// dispatchTo claims the worker, then the task, then sends. The worker is
// claimed first so two concurrent dispatch paths cannot both bind it; losing
// either claim aborts cleanly. A failed send requeues the task, it is not a
// task failure.
func (d *Dispatcher) dispatchTo(ctx context.Context, t task.Task, w Worker) bool {
	if !d.pool.MarkBusy(w.ID, t.ID) {
		return false
	}
	if err := d.store.Assign(t.ID, w.ID); err != nil {
		d.pool.Release(w.ID)
		return false
	}

	msg := transport.TaskMessage{
		Type:            transport.TypeTask,
		TaskID:          t.ID,
		Prompt:          t.Prompt,
		TaskType:        string(t.Kind),
		AspectRatio:     t.AspectRatio,
		Resolution:      t.Resolution,
		ReferenceImages: d.resolveImages(t.ReferenceImages),
	}
	data, err := json.Marshal(msg)
	if err == nil {
		err = w.Conn.Send(ctx, data)
	}
	if err != nil {
		slog.Error("task send failed, requeueing", "task_id", t.ID, "worker_id", w.ID, "error", err)
		if rqErr := d.store.Requeue(t.ID); rqErr != nil {
			slog.Error("requeue after failed send", "task_id", t.ID, "error", rqErr)
		}
		d.pool.Release(w.ID)
		return false
	}

	d.metrics.TasksDispatched.Add(ctx, 1)
	slog.Info("task dispatched", "task_id", t.ID, "worker_id", w.ID, "kind", t.Kind)
	return true
}

// resolveImages converts path references to inline base64 payloads. Entries
// already carrying base64 data pass through; paths that fail to compress are
// dropped rather than failing the whole task.
func (d *Dispatcher) resolveImages(refs []string) []string {
	if len(refs) == 0 {
		return nil
	}
	out := make([]string, 0, len(refs))
	for _, ref := range refs {
		if ref == "" {
			continue
		}
		if imaging.IsInlinePayload(ref) {
			out = append(out, ref)
			continue
		}
		if _, err := os.Stat(ref); err == nil {
			b64, err := d.images.CompressFileToBase64(ref)
			if err != nil {
				slog.Warn("reference image skipped", "path", ref, "error", err)
				continue
			}
			out = append(out, b64)
			continue
		}
		out = append(out, ref)
	}
	return out
}

// sleepCtx sleeps for dur unless ctx is cancelled first. Reports whether the
// full sleep completed.
func sleepCtx(ctx context.Context, dur time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(dur):
		return true
	}
}
