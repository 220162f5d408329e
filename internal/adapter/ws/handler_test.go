package ws

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	otelmetrics "github.com/hanwei-dev/VeoBridge/internal/adapter/otel"
	"github.com/hanwei-dev/VeoBridge/internal/config"
	"github.com/hanwei-dev/VeoBridge/internal/domain/task"
	"github.com/hanwei-dev/VeoBridge/internal/port/transport"
	"github.com/hanwei-dev/VeoBridge/internal/service"
)

type stubThumbs struct{}

func (stubThumbs) ThumbnailBase64(string, int, int) (string, error) { return "dGh1bWI=", nil }

type stubPreviews struct{ m map[string]string }

func (s *stubPreviews) Get(k string) (string, bool) { v, ok := s.m[k]; return v, ok }
func (s *stubPreviews) Set(k, v string)             { s.m[k] = v }
func (s *stubPreviews) Delete(k string)             { delete(s.m, k) }

type stubImages struct{}

func (stubImages) CompressFileToBase64(path string) (string, error) { return "compressed:" + path, nil }

type wsEnv struct {
	store *service.Store
	pool  *service.Pool
	url   string
	root  string
}

func newWSEnv(t *testing.T, metrics *otelmetrics.Metrics) *wsEnv {
	t.Helper()
	root := t.TempDir()
	dispatchCfg := config.Dispatch{
		Cooldown:     0,
		TaskTimeout:  time.Minute,
		LoopInterval: 5 * time.Millisecond,
		PollInterval: 5 * time.Millisecond,
		IdleWait:     5 * time.Millisecond,
		NoWorkerWait: 5 * time.Millisecond,
	}

	store := service.NewStore()
	pool := service.NewPool(0)
	artifacts := service.NewArtifacts(store, pool, root, stubThumbs{}, &stubPreviews{m: map[string]string{}}, metrics)
	dispatcher := service.NewDispatcher(t.Context(), store, pool, artifacts, stubImages{}, dispatchCfg, metrics)
	handler := NewHandler(pool, store, artifacts, dispatcher, metrics)

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return &wsEnv{
		store: store,
		pool:  pool,
		url:   "ws" + strings.TrimPrefix(srv.URL, "http"),
		root:  root,
	}
}

func noopMetrics(t *testing.T) *otelmetrics.Metrics {
	t.Helper()
	m, err := otelmetrics.NewMetrics()
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func dialWorker(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.CloseNow() })
	return c
}

func sendFrame(t *testing.T, c *websocket.Conn, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Write(ctx, websocket.MessageText, data); err != nil {
		t.Fatal(err)
	}
}

// registerWorker performs the handshake and returns the assigned client id.
func registerWorker(t *testing.T, c *websocket.Conn, pageURL string) string {
	t.Helper()
	sendFrame(t, c, map[string]string{"type": typeRegister, "page_url": pageURL})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, data, err := c.Read(ctx)
	if err != nil {
		t.Fatal(err)
	}
	var ack transport.RegisterSuccess
	if err := json.Unmarshal(data, &ack); err != nil {
		t.Fatal(err)
	}
	if ack.Type != transport.TypeRegisterSuccess || ack.ClientID == "" {
		t.Fatalf("bad register ack: %+v", ack)
	}
	return ack.ClientID
}

// bindTask enqueues a task and binds it to the worker, as the dispatcher would.
func bindTask(t *testing.T, e *wsEnv, workerID string) task.Task {
	t.Helper()
	created, err := e.store.Enqueue(task.CreateRequest{Prompt: "a cat", Kind: task.KindImage})
	if err != nil {
		t.Fatal(err)
	}
	if !e.pool.MarkBusy(workerID, created.ID) {
		t.Fatal("worker claim failed")
	}
	if err := e.store.Assign(created.ID, workerID); err != nil {
		t.Fatal(err)
	}
	return created
}

func waitFor(t *testing.T, msg string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal(msg)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestFirstFrameMustBeRegister(t *testing.T) {
	e := newWSEnv(t, noopMetrics(t))
	c := dialWorker(t, e.url)

	sendFrame(t, c, map[string]string{"type": typeStatus, "message": "hello"})

	// The server closes the connection; the next read must fail.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, _, err := c.Read(ctx); err == nil {
		t.Fatal("connection must be closed after a non-register first frame")
	}

	if total, _ := e.pool.Counts(); total != 0 {
		t.Errorf("rejected connection must leave no worker behind, got %d", total)
	}
	if e.store.Len() != 0 {
		t.Errorf("rejected connection must not touch the store, got %d tasks", e.store.Len())
	}
}

func TestRegisterThenStatusAndResultRouting(t *testing.T) {
	e := newWSEnv(t, noopMetrics(t))
	c := dialWorker(t, e.url)
	workerID := registerWorker(t, c, "page-1")

	if _, ok := e.pool.Get(workerID); !ok {
		t.Fatal("registered worker missing from pool")
	}

	created := bindTask(t, e, workerID)

	sendFrame(t, c, map[string]string{"type": typeStatus, "message": "rendering 50%"})
	waitFor(t, "status detail never applied", func() bool {
		got, _ := e.store.Get(created.ID)
		return got.StatusDetail == "rendering 50%"
	})

	sendFrame(t, c, map[string]string{"type": typeResult, "task_id": created.ID, "error": "quota exceeded"})
	waitFor(t, "failure result never applied", func() bool {
		got, _ := e.store.Get(created.ID)
		return got.Status == task.StatusFailed && got.StatusDetail == "quota exceeded"
	})

	w, _ := e.pool.Get(workerID)
	if w.Busy {
		t.Error("worker must be freed after the failure result")
	}
}

func TestImageDataSavesArtifact(t *testing.T) {
	e := newWSEnv(t, noopMetrics(t))
	c := dialWorker(t, e.url)
	workerID := registerWorker(t, c, "page-1")
	created := bindTask(t, e, workerID)

	payload := base64.StdEncoding.EncodeToString([]byte("png-bytes"))
	sendFrame(t, c, map[string]string{"type": typeImageData, "task_id": created.ID, "data": payload})

	waitFor(t, "result never saved", func() bool {
		got, _ := e.store.Get(created.ID)
		return got.Status == task.StatusSucceeded
	})

	got, _ := e.store.Get(created.ID)
	data, err := os.ReadFile(got.SavedPath)
	if err != nil || string(data) != "png-bytes" {
		t.Errorf("artifact content mismatch: %q %v", data, err)
	}
}

func TestImageChunksReassembleOverSocket(t *testing.T) {
	e := newWSEnv(t, noopMetrics(t))
	c := dialWorker(t, e.url)
	workerID := registerWorker(t, c, "page-1")
	created := bindTask(t, e, workerID)

	payload := base64.StdEncoding.EncodeToString([]byte("chunked-bytes"))
	half := len(payload) / 2
	// Deliver out of order.
	sendFrame(t, c, map[string]any{"type": typeImageChunk, "task_id": created.ID, "chunk_index": 1, "total_chunks": 2, "data": payload[half:]})
	sendFrame(t, c, map[string]any{"type": typeImageChunk, "task_id": created.ID, "chunk_index": 0, "total_chunks": 2, "data": payload[:half]})

	waitFor(t, "chunked result never saved", func() bool {
		got, _ := e.store.Get(created.ID)
		return got.Status == task.StatusSucceeded
	})

	got, _ := e.store.Get(created.ID)
	data, err := os.ReadFile(got.SavedPath)
	if err != nil || string(data) != "chunked-bytes" {
		t.Errorf("reassembled content mismatch: %q %v", data, err)
	}
	if filepath.Dir(got.SavedPath) != e.root {
		t.Errorf("artifact outside output root: %s", got.SavedPath)
	}
}

func TestMalformedFramesDoNotCloseConnection(t *testing.T) {
	e := newWSEnv(t, noopMetrics(t))
	c := dialWorker(t, e.url)
	workerID := registerWorker(t, c, "page-1")
	created := bindTask(t, e, workerID)

	// Garbage and unknown types are logged and ignored.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Write(ctx, websocket.MessageText, []byte("not json at all")); err != nil {
		t.Fatal(err)
	}
	sendFrame(t, c, map[string]string{"type": "telemetry"})

	// The connection survives: a later valid frame still routes.
	sendFrame(t, c, map[string]string{"type": typeStatus, "message": "still here"})
	waitFor(t, "connection did not survive malformed frames", func() bool {
		got, _ := e.store.Get(created.ID)
		return got.StatusDetail == "still here"
	})
}

func TestDisconnectRequeuesAssignedTask(t *testing.T) {
	e := newWSEnv(t, noopMetrics(t))
	c := dialWorker(t, e.url)
	workerID := registerWorker(t, c, "page-1")
	created := bindTask(t, e, workerID)

	_ = c.CloseNow()

	waitFor(t, "disconnect never requeued the task", func() bool {
		got, _ := e.store.Get(created.ID)
		return got.Status == task.StatusQueued && got.WorkerID == ""
	})
	waitFor(t, "worker never left the pool", func() bool {
		total, _ := e.pool.Counts()
		return total == 0
	})
}

func TestSamePageReconnectRequeuesOrphan(t *testing.T) {
	e := newWSEnv(t, noopMetrics(t))

	c1 := dialWorker(t, e.url)
	w1 := registerWorker(t, c1, "page-1")
	created := bindTask(t, e, w1)

	c2 := dialWorker(t, e.url)
	w2 := registerWorker(t, c2, "page-1")
	if w1 == w2 {
		t.Fatal("reconnect must get a fresh worker id")
	}

	// Eviction returns the held task to the queue without failing it.
	waitFor(t, "orphaned task never requeued", func() bool {
		got, _ := e.store.Get(created.ID)
		return got.Status == task.StatusQueued && got.WorkerID == ""
	})
	if _, ok := e.pool.Get(w1); ok {
		t.Error("stale worker must be evicted")
	}
	if total, _ := e.pool.Counts(); total != 1 {
		t.Errorf("expected 1 worker after reconnect, got %d", total)
	}
}

// workersGauge reads the connected-workers instrument through a manual reader.
func workersGauge(t *testing.T, reader *sdkmetric.ManualReader) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatal(err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "veobridge.workers.connected" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok || len(sum.DataPoints) == 0 {
				return 0
			}
			return sum.DataPoints[0].Value
		}
	}
	return 0
}

func TestConnectedGaugeSurvivesSamePageReconnect(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	prev := otel.GetMeterProvider()
	otel.SetMeterProvider(provider)
	t.Cleanup(func() { otel.SetMeterProvider(prev) })

	e := newWSEnv(t, noopMetrics(t))

	c1 := dialWorker(t, e.url)
	registerWorker(t, c1, "page-1")
	waitFor(t, "gauge never reached 1", func() bool {
		return workersGauge(t, reader) == 1
	})

	// Same page reconnects: the stale entry is evicted inside registration,
	// but the old connection's teardown must still pay back its increment.
	c2 := dialWorker(t, e.url)
	registerWorker(t, c2, "page-1")
	_ = c1.CloseNow()

	waitFor(t, "gauge drifted after same-page reconnect", func() bool {
		return workersGauge(t, reader) == 1
	})
	if total, _ := e.pool.Counts(); total != 1 {
		t.Errorf("expected 1 connected worker, got %d", total)
	}
}
