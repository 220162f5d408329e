// Package ws implements the worker side of the bridge: a WebSocket endpoint
// where browser pages register, receive task messages, and stream progress,
// chunked payloads, and results back.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"

	otelmetrics "github.com/hanwei-dev/VeoBridge/internal/adapter/otel"
	"github.com/hanwei-dev/VeoBridge/internal/port/transport"
	"github.com/hanwei-dev/VeoBridge/internal/service"
)

const sendTimeout = 10 * time.Second

// Handler upgrades worker connections and runs the per-connection protocol
// loop: register first, then status/chunk/data/result frames until disconnect.
type Handler struct {
	pool       *service.Pool
	store      *service.Store
	artifacts  *service.Artifacts
	dispatcher *service.Dispatcher
	metrics    *otelmetrics.Metrics
}

// NewHandler wires the protocol handler to the coordination services.
func NewHandler(pool *service.Pool, store *service.Store, artifacts *service.Artifacts, dispatcher *service.Dispatcher, metrics *otelmetrics.Metrics) *Handler {
	return &Handler{
		pool:       pool,
		store:      store,
		artifacts:  artifacts,
		dispatcher: dispatcher,
		metrics:    metrics,
	}
}

// ServeHTTP accepts a worker connection. The first frame must be a register
// message; anything else closes the connection without side effects.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Warn("websocket accept failed", "error", err)
		return
	}
	defer c.CloseNow() //nolint:errcheck

	// Workers deliver multi-megabyte base64 payloads in one frame when they
	// do not chunk.
	c.SetReadLimit(64 << 20)

	ctx := r.Context()

	first, err := readFrame(ctx, c)
	if err != nil {
		return
	}
	if first.Type != typeRegister {
		slog.Warn("first frame was not register, closing", "type", first.Type)
		c.Close(websocket.StatusPolicyViolation, "expected register")
		return
	}

	sender := &wsSender{c: c}
	worker, orphanedTask := h.pool.Register(sender, first.PageURL)
	if orphanedTask != "" {
		if err := h.store.Requeue(orphanedTask); err != nil {
			slog.Warn("requeue of orphaned task failed", "task_id", orphanedTask, "error", err)
		} else {
			slog.Info("stale registration evicted, task requeued", "task_id", orphanedTask, "page_url", first.PageURL)
		}
	}
	h.metrics.WorkersConnected.Add(ctx, 1)
	slog.Info("worker registered", "worker_id", worker.ID, "page_url", worker.PageURL, "display_index", worker.DisplayIndex)

	defer func() {
		// The decrement pairs with the increment above, not with registry
		// membership: a same-page reconnect evicts this worker from the pool
		// (and requeues its task) before this connection's read loop ends.
		h.metrics.WorkersConnected.Add(context.WithoutCancel(ctx), -1)
		taskID, ok := h.pool.Unregister(worker.ID)
		if !ok {
			slog.Info("worker connection closed after eviction", "worker_id", worker.ID)
			return
		}
		if taskID != "" {
			if err := h.store.Requeue(taskID); err != nil {
				slog.Warn("requeue on disconnect failed", "task_id", taskID, "error", err)
			} else {
				slog.Info("worker disconnected mid-task, task requeued", "worker_id", worker.ID, "task_id", taskID)
			}
		} else {
			slog.Info("worker disconnected", "worker_id", worker.ID)
		}
	}()

	ack, _ := json.Marshal(transport.RegisterSuccess{
		Type:     transport.TypeRegisterSuccess,
		ClientID: worker.ID,
	})
	if err := sender.Send(ctx, ack); err != nil {
		slog.Warn("register ack failed", "worker_id", worker.ID, "error", err)
		return
	}

	// A fresh worker may unblock a stopped loop with pending tasks.
	h.dispatcher.EnsureRunning()

	h.readLoop(ctx, c, worker.ID)
}

func (h *Handler) readLoop(ctx context.Context, c *websocket.Conn, workerID string) {
	chunks := newChunkBuffer()
	for {
		msg, err := readFrame(ctx, c)
		if err != nil {
			return
		}
		h.handleFrame(ctx, workerID, chunks, msg)
	}
}

// handleFrame routes one worker frame. Malformed frames are logged and
// ignored; only a bad first frame closes the connection.
func (h *Handler) handleFrame(ctx context.Context, workerID string, chunks *chunkBuffer, msg inbound) {
	switch msg.Type {
	case typeStatus:
		w, ok := h.pool.Get(workerID)
		if !ok || w.TaskID == "" {
			return
		}
		h.store.SetDetail(w.TaskID, msg.Message)

	case typeImageChunk:
		payload, done, err := chunks.add(msg.TaskID, msg.ChunkIndex, msg.TotalChunks, msg.Data)
		if err != nil {
			slog.Warn("chunk rejected", "worker_id", workerID, "task_id", msg.TaskID, "error", err)
			chunks.drop(msg.TaskID)
			return
		}
		if done {
			h.artifacts.SaveResult(ctx, msg.TaskID, payload)
		}

	case typeImageData:
		h.artifacts.SaveResult(ctx, msg.TaskID, msg.Data)

	case typeResult:
		if msg.Error != "" {
			h.artifacts.FailTask(ctx, msg.TaskID, msg.Error)
			return
		}
		// Success results arrive as image_data/image_chunk; a bare result
		// frame just signals the worker is done.
		h.pool.MarkIdle(workerID)

	case typeRegister:
		slog.Warn("duplicate register ignored", "worker_id", workerID)

	case "":
		// Undecodable frame, already logged by readFrame.

	default:
		slog.Warn("unknown frame type ignored", "worker_id", workerID, "type", msg.Type)
	}
}

func readFrame(ctx context.Context, c *websocket.Conn) (inbound, error) {
	var msg inbound
	_, data, err := c.Read(ctx)
	if err != nil {
		return msg, err
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		slog.Warn("undecodable frame ignored", "error", err)
		return inbound{}, nil
	}
	return msg, nil
}

// wsSender adapts a websocket connection to the transport.Sender capability.
type wsSender struct {
	c *websocket.Conn
}

// Send writes one text frame with a bounded timeout so a stuck socket cannot
// wedge the dispatch loop.
func (s *wsSender) Send(ctx context.Context, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	return s.c.Write(ctx, websocket.MessageText, data)
}
