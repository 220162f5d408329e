package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	otelmetrics "github.com/hanwei-dev/VeoBridge/internal/adapter/otel"
	"github.com/hanwei-dev/VeoBridge/internal/domain/task"
)

// Preview thumbnails are bounded to this edge length.
const previewEdge = 200

// Thumbnailer renders a saved artifact as a small base64 JPEG.
type Thumbnailer interface {
	ThumbnailBase64(path string, maxW, maxH int) (string, error)
}

// PreviewCache stores rendered thumbnails keyed by task id. Entries may be
// evicted at any time; Artifacts regenerates them from the saved file.
type PreviewCache interface {
	Get(key string) (string, bool)
	Set(key, value string)
	Delete(key string)
}

// Artifacts persists worker results to disk and finishes the task lifecycle:
// decode, name, write, mark succeeded or save_failed, free the worker.
type Artifacts struct {
	store    *Store
	pool     *Pool
	root     string
	thumbs   Thumbnailer
	previews PreviewCache
	metrics  *otelmetrics.Metrics
	now      func() time.Time
}

// NewArtifacts creates the artifact service. root is the base directory for
// tasks with a relative (or empty) output dir.
func NewArtifacts(store *Store, pool *Pool, root string, thumbs Thumbnailer, previews PreviewCache, metrics *otelmetrics.Metrics) *Artifacts {
	return &Artifacts{
		store:    store,
		pool:     pool,
		root:     root,
		thumbs:   thumbs,
		previews: previews,
		metrics:  metrics,
		now:      time.Now,
	}
}

// ResolveOutputDir maps a task's output dir to an absolute-ish path: absolute
// dirs are used as-is, relative ones are nested under the configured root.
func (a *Artifacts) ResolveOutputDir(dir string) string {
	if dir == "" {
		return a.root
	}
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(a.root, dir)
}

// DeterministicPath returns the artifact path a task with a row number will be
// saved to. Tasks without a row number get timestamp names at save time and
// have no path to predict.
func (a *Artifacts) DeterministicPath(t task.Task) (string, bool) {
	if t.RowNumber == "" {
		return "", false
	}
	return filepath.Join(a.ResolveOutputDir(t.OutputDir), t.RowNumber+t.FileExt), true
}

// SkipIfExists completes a row-numbered task without dispatching when its
// deterministic artifact path already holds a file. Reports whether the task
// was skipped.
func (a *Artifacts) SkipIfExists(ctx context.Context, t task.Task) bool {
	path, ok := a.DeterministicPath(t)
	if !ok {
		return false
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}

	if err := a.store.Complete(t.ID, path, filepath.Dir(path), "file already exists, skipped generation"); err != nil {
		slog.Warn("skip-if-exists completion rejected", "task_id", t.ID, "error", err)
		return false
	}
	a.metrics.TasksSucceeded.Add(ctx, 1)
	slog.Info("task skipped, artifact already on disk", "task_id", t.ID, "path", path)
	return true
}

// SaveResult decodes a worker's base64 result payload and writes it to the
// task's output directory, then marks the task succeeded. Decode and write
// errors end the task as save_failed; the generation itself still happened,
// so the state is distinct from failed. The assigned worker is freed either
// way.
func (a *Artifacts) SaveResult(ctx context.Context, taskID, payload string) {
	t, ok := a.store.Get(taskID)
	if !ok {
		slog.Warn("result for unknown task dropped", "task_id", taskID)
		return
	}
	defer a.freeWorker(t.WorkerID)

	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		a.saveFailed(ctx, taskID, fmt.Sprintf("decode result payload: %v", err))
		return
	}

	dir := a.ResolveOutputDir(t.OutputDir)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		a.saveFailed(ctx, taskID, fmt.Sprintf("create output dir: %v", err))
		return
	}

	path := a.artifactPath(dir, t)
	if err := os.WriteFile(path, raw, 0o644); err != nil { //nolint:gosec // G306: artifacts are served over HTTP
		a.saveFailed(ctx, taskID, fmt.Sprintf("write artifact: %v", err))
		return
	}

	if err := a.store.Complete(taskID, path, dir, ""); err != nil {
		slog.Warn("late result ignored", "task_id", taskID, "error", err)
		return
	}
	a.metrics.TasksSucceeded.Add(ctx, 1)
	slog.Info("artifact saved", "task_id", taskID, "path", path, "bytes", len(raw))

	if !t.Kind.IsVideo() {
		a.cachePreview(taskID, path)
	}
}

// FailTask records a worker-reported failure and frees the worker.
func (a *Artifacts) FailTask(ctx context.Context, taskID, detail string) {
	t, ok := a.store.Get(taskID)
	if !ok {
		slog.Warn("failure for unknown task dropped", "task_id", taskID)
		return
	}
	defer a.freeWorker(t.WorkerID)

	if err := a.store.Fail(taskID, detail); err != nil {
		slog.Warn("late failure ignored", "task_id", taskID, "error", err)
		return
	}
	a.metrics.TasksFailed.Add(ctx, 1)
	slog.Info("task failed", "task_id", taskID, "detail", detail)
}

// Preview returns a base64 JPEG thumbnail for a succeeded image task,
// rendering and caching it on a cache miss.
func (a *Artifacts) Preview(t task.Task) (string, bool) {
	if t.Status != task.StatusSucceeded || t.Kind.IsVideo() || t.SavedPath == "" {
		return "", false
	}
	if p, ok := a.previews.Get(t.ID); ok {
		return p, true
	}
	p, err := a.thumbs.ThumbnailBase64(t.SavedPath, previewEdge, previewEdge)
	if err != nil {
		slog.Warn("preview render failed", "task_id", t.ID, "error", err)
		return "", false
	}
	a.previews.Set(t.ID, p)
	return p, true
}

// DropPreviews evicts cached thumbnails for the given tasks.
func (a *Artifacts) DropPreviews(tasks []task.Task) {
	for _, t := range tasks {
		a.previews.Delete(t.ID)
	}
}

// artifactPath picks the on-disk name: row-numbered tasks get {row}{ext},
// API tasks get a timestamp with a _N suffix on collision.
func (a *Artifacts) artifactPath(dir string, t task.Task) string {
	if t.RowNumber != "" {
		return filepath.Join(dir, t.RowNumber+t.FileExt)
	}

	stamp := a.now().Format("2006-01-02_15-04-05")
	path := filepath.Join(dir, stamp+t.FileExt)
	for n := 1; ; n++ {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return path
		}
		path = filepath.Join(dir, fmt.Sprintf("%s_%d%s", stamp, n, t.FileExt))
	}
}

func (a *Artifacts) saveFailed(ctx context.Context, taskID, detail string) {
	if err := a.store.MarkSaveFailed(taskID, detail); err != nil {
		slog.Warn("save failure ignored", "task_id", taskID, "error", err)
		return
	}
	a.metrics.TasksFailed.Add(ctx, 1)
	slog.Error("artifact save failed", "task_id", taskID, "detail", detail)
}

func (a *Artifacts) freeWorker(workerID string) {
	if workerID != "" {
		a.pool.MarkIdle(workerID)
	}
}

func (a *Artifacts) cachePreview(taskID, path string) {
	p, err := a.thumbs.ThumbnailBase64(path, previewEdge, previewEdge)
	if err != nil {
		slog.Warn("preview render failed", "task_id", taskID, "error", err)
		return
	}
	a.previews.Set(taskID, p)
}
