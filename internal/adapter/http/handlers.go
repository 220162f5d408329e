// Package http implements the OpenAI-compatible API surface and the admin
// task routes.
package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"

	otelmetrics "github.com/hanwei-dev/VeoBridge/internal/adapter/otel"
	"github.com/hanwei-dev/VeoBridge/internal/config"
	"github.com/hanwei-dev/VeoBridge/internal/domain"
	"github.com/hanwei-dev/VeoBridge/internal/domain/model"
	"github.com/hanwei-dev/VeoBridge/internal/domain/task"
	"github.com/hanwei-dev/VeoBridge/internal/service"
)

// Handlers serves the OpenAI-compatible surface plus health, artifact
// retrieval, and the admin task routes.
type Handlers struct {
	store      *service.Store
	pool       *service.Pool
	dispatcher *service.Dispatcher
	artifacts  *service.Artifacts
	metrics    *otelmetrics.Metrics

	pollInterval time.Duration
	waitTimeout  time.Duration
	version      string
}

// NewHandlers wires the HTTP surface to the coordination services.
func NewHandlers(store *service.Store, pool *service.Pool, dispatcher *service.Dispatcher, artifacts *service.Artifacts, metrics *otelmetrics.Metrics, cfg config.Dispatch, version string) *Handlers {
	return &Handlers{
		store:        store,
		pool:         pool,
		dispatcher:   dispatcher,
		artifacts:    artifacts,
		metrics:      metrics,
		pollInterval: cfg.PollInterval,
		waitTimeout:  cfg.TaskTimeout,
		version:      version,
	}
}

// ChatCompletions accepts an OpenAI chat request, enqueues a generation task,
// and delivers the result either as one blocking response or as an SSE stream.
func (h *Handlers) ChatCompletions(w http.ResponseWriter, r *http.Request) {
	var req chatCompletionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeOpenAIError(w, http.StatusBadRequest, "Malformed request body", errTypeInvalidRequest)
		return
	}

	modelID := req.Model
	if modelID == "" {
		modelID = model.DefaultID
	}
	capab, ok := model.Lookup(modelID)
	if !ok {
		writeOpenAIError(w, http.StatusBadRequest, fmt.Sprintf("Unsupported model: %s", modelID), errTypeInvalidRequest)
		return
	}

	prompt, images := extractPromptAndImages(req.Messages)
	if len(images) > capab.MaxImages {
		writeOpenAIError(w, http.StatusBadRequest,
			fmt.Sprintf("Model %s accepts at most %d reference images, got %d", modelID, capab.MaxImages, len(images)),
			errTypeInvalidRequest)
		return
	}

	if total, _ := h.pool.Counts(); total == 0 {
		writeOpenAIError(w, http.StatusServiceUnavailable, domain.ErrNoWorkers.Error(), errTypeServer)
		return
	}

	t, err := h.store.Enqueue(task.CreateRequest{
		Prompt:          prompt,
		Kind:            capab.Kind,
		AspectRatio:     capab.AspectRatio,
		Resolution:      capab.Resolution,
		ReferenceImages: images,
	})
	if err != nil {
		if errors.Is(err, domain.ErrEmptyPrompt) {
			writeOpenAIError(w, http.StatusBadRequest, "Prompt must not be empty", errTypeInvalidRequest)
			return
		}
		writeOpenAIError(w, http.StatusInternalServerError, "Failed to enqueue task", errTypeServer)
		return
	}
	h.metrics.TasksEnqueued.Add(r.Context(), 1)
	slog.Info("task enqueued", "task_id", t.ID, "model", modelID, "kind", t.Kind, "images", len(images), "stream", req.Stream)

	// One low-latency attempt before the loop gets to it.
	h.dispatcher.TryDispatch(r.Context(), t.ID)
	h.dispatcher.EnsureRunning()

	if req.Stream {
		h.streamCompletion(w, r, t.ID, modelID)
		return
	}
	h.blockingCompletion(w, r, t.ID, modelID)
}

// blockingCompletion polls until the task is terminal or the wait budget runs
// out. Client disconnect stops the poll without touching task state.
func (h *Handlers) blockingCompletion(w http.ResponseWriter, r *http.Request, taskID, modelID string) {
	deadline := time.Now().Add(h.waitTimeout)
	for {
		t, ok := h.store.Get(taskID)
		if !ok {
			writeOpenAIError(w, http.StatusInternalServerError, "Task vanished", errTypeServer)
			return
		}
		if t.Status.Terminal() {
			writeJSON(w, http.StatusOK, chatCompletion{
				ID:      t.ID,
				Object:  "chat.completion",
				Created: t.CreatedAt.Unix(),
				Model:   modelID,
				Choices: []completionChoice{{
					Message:      completionMessage{Role: "assistant", Content: h.renderResult(r, t)},
					FinishReason: "stop",
				}},
			})
			return
		}
		if time.Now().After(deadline) {
			writeOpenAIError(w, http.StatusGatewayTimeout, "Timed out waiting for task completion", errTypeServer)
			return
		}

		select {
		case <-r.Context().Done():
			return
		case <-time.After(h.pollInterval):
		}
	}
}

// streamCompletion emits OpenAI chunk events: one role acknowledgment, one
// event per status-detail change, a terminal content event with finish_reason
// stop, then the [DONE] marker. Identical progress events are deduplicated.
func (h *Handlers) streamCompletion(w http.ResponseWriter, r *http.Request, taskID, modelID string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeOpenAIError(w, http.StatusInternalServerError, "Streaming unsupported", errTypeServer)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	created := time.Now().Unix()
	emit := func(delta chunkDelta, finish *string) {
		chunk := completionChunk{
			ID:      taskID,
			Object:  "chat.completion.chunk",
			Created: created,
			Model:   modelID,
			Choices: []chunkChoice{{Delta: delta, FinishReason: finish}},
		}
		data, err := json.Marshal(chunk)
		if err != nil {
			return
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}

	emit(chunkDelta{Role: "assistant"}, nil)

	stop := "stop"
	deadline := time.Now().Add(h.waitTimeout)
	lastDetail := ""
	for {
		t, ok := h.store.Get(taskID)
		if !ok {
			break
		}
		if t.Status.Terminal() {
			emit(chunkDelta{Content: h.renderResult(r, t)}, &stop)
			break
		}
		if t.StatusDetail != "" && t.StatusDetail != lastDetail {
			lastDetail = t.StatusDetail
			emit(chunkDelta{Content: fmt.Sprintf("[%s]\n", t.StatusDetail)}, nil)
		}
		if time.Now().After(deadline) {
			emit(chunkDelta{Content: "Generation timed out"}, &stop)
			break
		}

		select {
		case <-r.Context().Done():
			return
		case <-time.After(h.pollInterval):
		}
	}

	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

// renderResult turns a terminal task into the completion content: an
// embeddable artifact reference on success, the failure description otherwise.
func (h *Handlers) renderResult(r *http.Request, t task.Task) string {
	if t.Status != task.StatusSucceeded {
		detail := t.StatusDetail
		if detail == "" {
			detail = string(t.Status)
		}
		return fmt.Sprintf("Generation failed: %s", detail)
	}

	url := h.fileURL(r, t.ID)
	if t.Kind.IsVideo() {
		return fmt.Sprintf("<video src='%s' controls></video>", url)
	}
	return fmt.Sprintf("![Generated Image](%s)", url)
}

func (h *Handlers) fileURL(r *http.Request, taskID string) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/files/%s", scheme, r.Host, taskID)
}

// ListModels returns the capability table as an OpenAI models list.
func (h *Handlers) ListModels(w http.ResponseWriter, _ *http.Request) {
	created := time.Now().Unix()
	list := modelList{Object: "list"}
	for _, id := range model.IDs() {
		capab, _ := model.Lookup(id)
		list.Data = append(list.Data, modelInfo{
			ID:          id,
			Object:      "model",
			Created:     created,
			OwnedBy:     "veobridge",
			TaskType:    string(capab.Kind),
			AspectRatio: capab.AspectRatio,
			Resolution:  capab.Resolution,
			MaxImages:   capab.MaxImages,
		})
	}
	writeJSON(w, http.StatusOK, list)
}

// Health reports worker counts. Unauthenticated so worker pages and load
// balancers can probe it.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	total, busy := h.pool.Counts()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": h.version,
		"workers": map[string]int{
			"total":     total,
			"busy":      busy,
			"available": total - busy,
		},
	})
}

// GetFile streams the saved artifact for a succeeded task.
func (h *Handlers) GetFile(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	t, ok := h.store.Get(taskID)
	if !ok || t.SavedPath == "" {
		writeOpenAIError(w, http.StatusNotFound, "Task or artifact not found", errTypeInvalidRequest)
		return
	}
	if _, err := os.Stat(t.SavedPath); err != nil {
		writeOpenAIError(w, http.StatusNotFound, "Artifact file missing", errTypeInvalidRequest)
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=3600")
	http.ServeFile(w, r, t.SavedPath)
}

// taskView is a task plus its cached preview thumbnail for the admin list.
type taskView struct {
	task.Task
	Preview string `json:"preview,omitempty"`
}

// ListTasks returns every task with status counts and image previews.
func (h *Handlers) ListTasks(w http.ResponseWriter, _ *http.Request) {
	tasks := h.store.List()
	views := make([]taskView, 0, len(tasks))
	counts := map[task.Status]int{}
	for _, t := range tasks {
		v := taskView{Task: t}
		if p, ok := h.artifacts.Preview(t); ok {
			v.Preview = p
		}
		views = append(views, v)
		counts[t.Status]++
	}

	total, busy := h.pool.Counts()
	writeJSON(w, http.StatusOK, map[string]any{
		"tasks":  views,
		"counts": counts,
		"workers": map[string]int{
			"total": total,
			"busy":  busy,
		},
		"dispatch_running": h.dispatcher.Running(),
	})
}

// RetryTask resets one failed/timed_out/save_failed task to queued.
func (h *Handlers) RetryTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	if err := h.store.Retry(taskID); err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeOpenAIError(w, http.StatusNotFound, err.Error(), errTypeInvalidRequest)
		case errors.Is(err, domain.ErrNotRetryable):
			writeOpenAIError(w, http.StatusBadRequest, err.Error(), errTypeInvalidRequest)
		default:
			writeOpenAIError(w, http.StatusInternalServerError, err.Error(), errTypeServer)
		}
		return
	}
	h.dispatcher.EnsureRunning()
	writeJSON(w, http.StatusOK, map[string]any{"retried": taskID})
}

// RetryAllFailed resets every retryable task to queued.
func (h *Handlers) RetryAllFailed(w http.ResponseWriter, _ *http.Request) {
	count := h.store.RetryAllFailed()
	if count > 0 {
		h.dispatcher.EnsureRunning()
	}
	writeJSON(w, http.StatusOK, map[string]any{"retried": count})
}

// ClearTasks empties the task store and drops cached previews. Connected
// workers are untouched.
func (h *Handlers) ClearTasks(w http.ResponseWriter, _ *http.Request) {
	tasks := h.store.List()
	h.artifacts.DropPreviews(tasks)
	h.store.Clear()
	slog.Info("task store cleared", "dropped", len(tasks))
	writeJSON(w, http.StatusOK, map[string]any{"cleared": len(tasks)})
}

// StartDispatch resumes the dispatch loop if there is pending work.
func (h *Handlers) StartDispatch(w http.ResponseWriter, _ *http.Request) {
	h.dispatcher.EnsureRunning()
	writeJSON(w, http.StatusOK, map[string]any{"running": h.dispatcher.Running()})
}

// StopDispatch asks the dispatch loop to pause. In-flight tasks finish
// normally.
func (h *Handlers) StopDispatch(w http.ResponseWriter, _ *http.Request) {
	h.dispatcher.Stop()
	writeJSON(w, http.StatusOK, map[string]any{"running": h.dispatcher.Running()})
}
