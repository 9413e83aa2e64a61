package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/featherwatch/featherwatch/internal/audiomatch"
	"github.com/featherwatch/featherwatch/internal/broadcast"
	"github.com/featherwatch/featherwatch/internal/classifier"
	"github.com/featherwatch/featherwatch/internal/datastore"
	"github.com/featherwatch/featherwatch/internal/notify"
	"github.com/featherwatch/featherwatch/internal/observability"
	"github.com/featherwatch/featherwatch/internal/pipeline"
	"github.com/featherwatch/featherwatch/internal/videowait"
)

type staticClassifier struct{}

func (staticClassifier) ClassifyEvent(_ context.Context, ev pipeline.SightingEvent) (classifier.Result, error) {
	return classifier.Result{Label: ev.Sublabel, Score: ev.Score}, nil
}

type testServer struct {
	server      *Server
	store       *datastore.SQLiteStore
	waiter      *videowait.Waiter
	broadcaster *broadcast.Broadcaster
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	metrics, err := observability.NewMetrics()
	require.NoError(t, err)

	store := datastore.NewSQLiteStore(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, store.Open())
	t.Cleanup(func() { _ = store.Close() })

	waiter := videowait.New(time.Minute, 100)
	broadcaster := broadcast.NewBroadcaster(5)
	orchestrator := notify.NewOrchestrator(store, waiter, nil, notify.Config{
		Threshold:   0.7,
		WaitTimeout: 50 * time.Millisecond,
		TitlePrefix: "Test",
	})
	filter := classifier.New(classifier.Config{MinConfidence: 0.4, Threshold: 0.7})
	correlator := audiomatch.NewCorrelator(10*time.Minute, nil)

	pipe := pipeline.New(staticClassifier{}, filter, correlator, store, waiter,
		broadcaster, orchestrator, nil, nil, metrics,
		pipeline.Config{AudioWindowSeconds: 10})

	server := New(Config{
		Port:              "0",
		QueueSize:         16,
		HeartbeatInterval: 20 * time.Millisecond,
	}, pipe, broadcaster, store, metrics)
	return &testServer{server: server, store: store, waiter: waiter, broadcaster: broadcaster}
}

func (ts *testServer) request(method, path string, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, http.NoBody)
	}
	rec := httptest.NewRecorder()
	ts.server.echo.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	rec := ts.request(http.MethodGet, "/healthz", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestIngestAudioAccepted(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	rec := ts.request(http.MethodPost, "/api/v1/audio",
		`{"species":"Blue Jay","confidence":0.8,"sensor_id":"mic-1"}`)

	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestIngestAudioRejectsBadPayload(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	rec := ts.request(http.MethodPost, "/api/v1/audio", `{"confidence":0.8}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVideoResultUpdatesState(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	_, err := ts.store.UpsertIfHigherScore(context.Background(), &datastore.Detection{
		EventID: "ev1", Label: "Blue Jay", Score: 0.5, FrameTime: time.Now(),
	})
	require.NoError(t, err)

	rec := ts.request(http.MethodPost, "/api/v1/video/ev1",
		`{"status":"completed","label":"Steller's Jay","score":0.92}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	state := ts.waiter.Get("ev1")
	assert.Equal(t, videowait.StatusCompleted, state.Status)
	assert.Equal(t, "Steller's Jay", state.Label)

	d, err := ts.store.GetByEventID(context.Background(), "ev1")
	require.NoError(t, err)
	assert.Equal(t, datastore.VideoStatusCompleted, d.VideoStatus)
}

func TestVideoResultRejectsUnknownStatus(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	rec := ts.request(http.MethodPost, "/api/v1/video/ev1", `{"status":"bogus"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecentDetections(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	for i, id := range []string{"ev1", "ev2"} {
		_, err := ts.store.UpsertIfHigherScore(context.Background(), &datastore.Detection{
			EventID:   id,
			Label:     "Blue Jay",
			Score:     0.8,
			FrameTime: time.Now().Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	rec := ts.request(http.MethodGet, "/api/v1/detections/recent", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var payloads []pipeline.DetectionPayload
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payloads))
	require.Len(t, payloads, 2)
	assert.Equal(t, "ev2", payloads[0].EventID, "newest first")
}

func TestStreamLifecycle(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/stream", http.NoBody).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		ts.server.echo.ServeHTTP(rec, req)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return ts.broadcaster.Count() == 1
	}, time.Second, 5*time.Millisecond, "stream handler registers a subscriber")

	detection, err := json.Marshal(map[string]string{"label": "Blue Jay"})
	require.NoError(t, err)
	ts.broadcaster.Broadcast(broadcast.NewMessage("detection", detection))

	// Give the heartbeat ticker at least one firing before disconnecting.
	time.Sleep(60 * time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("stream handler did not return after client disconnect")
	}

	assert.Equal(t, 0, ts.broadcaster.Count(), "subscriber removed on disconnect")

	// Body is only safe to inspect once the handler has returned.
	body := rec.Body.String()
	assert.Contains(t, body, "event: connected\ndata: {\"status\":\"connected\"}\n\n")
	assert.Contains(t, body, "\"label\":\"Blue Jay\"")
	assert.Contains(t, body, ":\n\n", "heartbeat comment keeps the connection alive")
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	rec := ts.request(http.MethodGet, "/metrics", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "featherwatch_active_subscribers")
}
