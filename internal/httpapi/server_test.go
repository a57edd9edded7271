package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/vn-script-translator/internal/config"
	"github.com/MimeLyc/vn-script-translator/internal/jobs"
	"github.com/MimeLyc/vn-script-translator/internal/service"
	"github.com/MimeLyc/vn-script-translator/internal/translator"
	"github.com/MimeLyc/vn-script-translator/pkg/icron"
)

type fakeSettingsStore struct {
	current   config.RuntimeSettings
	updateErr error
}

func (f *fakeSettingsStore) GetRuntimeSettings() (config.RuntimeSettings, error) {
	return f.current, nil
}

func (f *fakeSettingsStore) UpdateRuntimeSettings(next config.RuntimeSettings) (config.RuntimeSettings, error) {
	if f.updateErr != nil {
		return config.RuntimeSettings{}, f.updateErr
	}
	f.current = next
	return f.current, nil
}

type fakeScanner struct {
	queue  *jobs.Queue
	found  []string
	err    error
	calls  int
	config string
}

func (f *fakeScanner) RunOnce(context.Context) (int, error) {
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	f.queue.Enqueue(f.found...)
	return len(f.found), nil
}

func (f *fakeScanner) TriggerInfo() (*icron.TriggerInfo, error) {
	if f.config == "" {
		return nil, service.NewError(service.ErrConfig, "scheduled scans are disabled")
	}
	return icron.GetTriggerInfo(f.config, time.Now())
}

type fakeResults struct {
	runID string
	limit int
	ret   []*jobs.FileResult
}

func (f *fakeResults) ListResults(_ context.Context, runID string, limit int) ([]*jobs.FileResult, error) {
	f.runID = runID
	f.limit = limit
	return f.ret, nil
}

type recordingExecutor struct {
	mu      sync.Mutex
	paths   []string
	release chan struct{}
}

func (e *recordingExecutor) exec(_ context.Context, path string, progress jobs.ProgressFunc) (*jobs.FileResult, error) {
	if e.release != nil {
		<-e.release
	}
	progress(100)
	e.mu.Lock()
	e.paths = append(e.paths, path)
	e.mu.Unlock()
	return &jobs.FileResult{Path: path, Status: jobs.StatusSuccess}, nil
}

func (e *recordingExecutor) processed() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.paths...)
}

func (e *recordingExecutor) factory() service.ExecutorFactory {
	return func() (jobs.Executor, error) {
		return e.exec, nil
	}
}

func newTestQueue() *jobs.Queue {
	return jobs.NewQueue(jobs.WithTickInterval(5 * time.Millisecond))
}

func validRuntimeSettings() config.RuntimeSettings {
	return config.RuntimeSettings{
		TargetLanguage: "es",
		CronExpr:       "0 0 * * *",
		Translation:    translator.DefaultTranslationConfig(),
	}
}

func serve(srv *Server, method, target string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeQueue(t *testing.T, rec *httptest.ResponseRecorder) jobs.Snapshot {
	t.Helper()
	var ret struct {
		Queue jobs.Snapshot `json:"queue"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ret))
	return ret.Queue
}

func TestServer_EnqueueAndList(t *testing.T) {
	queue := newTestQueue()
	srv := NewServer(queue, nil)

	rec := serve(srv, http.MethodPost, "/api/queue", []byte(`{"paths":["game/a.rpy"," ","game/b.rpy"]}`))
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		Added   int           `json:"added"`
		Pending int           `json:"pending"`
		Queue   jobs.Snapshot `json:"queue"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, 2, created.Added)
	assert.Equal(t, 2, created.Pending)

	rec = serve(srv, http.MethodGet, "/api/queue", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var snap jobs.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, jobs.StateIdle, snap.State)
	assert.Equal(t, []string{"game/a.rpy", "game/b.rpy"}, snap.Pending)
}

func TestServer_EnqueueRejectsBadBodies(t *testing.T) {
	srv := NewServer(newTestQueue(), nil)

	rec := serve(srv, http.MethodPost, "/api/queue", []byte(`{"paths":[]}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(srv, http.MethodPost, "/api/queue", []byte(`not json`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(srv, http.MethodDelete, "/api/queue", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServer_ReplaceQueue(t *testing.T) {
	queue := newTestQueue()
	queue.Enqueue("a.rpy", "b.rpy")
	srv := NewServer(queue, nil)

	rec := serve(srv, http.MethodPut, "/api/queue", []byte(`{"paths":["c.rpy"]}`))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"c.rpy"}, queue.Snapshot().Pending)
}

func TestServer_StartRunsQueue(t *testing.T) {
	queue := newTestQueue()
	queue.Enqueue("a.rpy", "b.rpy")
	exec := &recordingExecutor{}
	srv := NewServer(queue, exec.factory())

	rec := serve(srv, http.MethodPost, "/api/queue/start", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var ret struct {
		Started bool `json:"started"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ret))
	assert.True(t, ret.Started)

	require.Eventually(t, func() bool {
		return queue.State() == jobs.StateIdle && len(exec.processed()) == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"a.rpy", "b.rpy"}, exec.processed())
}

func TestServer_StartWithEmptyQueueDoesNotBuildExecutor(t *testing.T) {
	calls := 0
	srv := NewServer(newTestQueue(), func() (jobs.Executor, error) {
		calls++
		return nil, errors.New("unexpected")
	})

	rec := serve(srv, http.MethodPost, "/api/queue/start", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"started":false`)
	assert.Zero(t, calls)
}

func TestServer_StartReportsExecutorConfigError(t *testing.T) {
	queue := newTestQueue()
	queue.Enqueue("a.rpy")
	srv := NewServer(queue, func() (jobs.Executor, error) {
		return nil, service.NewError(service.ErrConfig, "invalid settings")
	})

	rec := serve(srv, http.MethodPost, "/api/queue/start", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, jobs.StateIdle, queue.State())
}

func TestServer_StopAndAcknowledge(t *testing.T) {
	queue := newTestQueue()
	queue.Enqueue("a.rpy", "b.rpy")
	exec := &recordingExecutor{release: make(chan struct{})}
	srv := NewServer(queue, exec.factory())

	rec := serve(srv, http.MethodPost, "/api/queue/start", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Eventually(t, func() bool {
		return queue.Snapshot().Current == "a.rpy"
	}, 2*time.Second, 5*time.Millisecond)

	rec = serve(srv, http.MethodPost, "/api/queue/stop", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"stopped":true`)
	assert.Equal(t, jobs.StateStopped, decodeQueue(t, rec).State)

	// starting while stopped is refused
	rec = serve(srv, http.MethodPost, "/api/queue/start", nil)
	assert.Contains(t, rec.Body.String(), `"started":false`)

	close(exec.release)
	rec = serve(srv, http.MethodPost, "/api/queue/ack", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	snap := decodeQueue(t, rec)
	assert.Equal(t, jobs.StateIdle, snap.State)
	assert.Equal(t, []string{"b.rpy"}, snap.Pending)
	assert.Equal(t, []string{"a.rpy"}, exec.processed())
}

func TestServer_Scan(t *testing.T) {
	queue := newTestQueue()
	sc := &fakeScanner{queue: queue, found: []string{"game/x.rpy"}, config: "*/5 * * * *"}
	srv := NewServer(queue, nil, WithScanner(sc))

	rec := serve(srv, http.MethodPost, "/api/scan", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), `"queued":1`)
	assert.Equal(t, []string{"game/x.rpy"}, queue.Snapshot().Pending)

	rec = serve(srv, http.MethodGet, "/api/scan", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var info icron.TriggerInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, "*/5 * * * *", info.Expression)
	assert.True(t, info.Next.After(info.Last))
}

func TestServer_ScanErrors(t *testing.T) {
	srv := NewServer(newTestQueue(), nil)
	rec := serve(srv, http.MethodPost, "/api/scan", nil)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)

	queue := newTestQueue()
	sc := &fakeScanner{queue: queue, err: service.NewError(service.ErrFileNotFound, "directory game does not exist")}
	srv = NewServer(queue, nil, WithScanner(sc))
	rec = serve(srv, http.MethodPost, "/api/scan", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(srv, http.MethodGet, "/api/scan", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_GetSettings(t *testing.T) {
	store := &fakeSettingsStore{current: validRuntimeSettings()}
	srv := NewServer(newTestQueue(), nil, WithRuntimeSettingsStore(store))

	rec := serve(srv, http.MethodGet, "/api/settings", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got config.RuntimeSettings
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, store.current, got)
}

func TestServer_UpdateSettings(t *testing.T) {
	store := &fakeSettingsStore{current: validRuntimeSettings()}

	var applied config.RuntimeSettings
	var applyCalls int
	srv := NewServer(
		newTestQueue(),
		nil,
		WithRuntimeSettingsStore(store),
		WithRuntimeSettingsApplier(func(next config.RuntimeSettings) error {
			applied = next
			applyCalls++
			return nil
		}),
	)

	body := []byte(`{"target_language":"fr","cron_expr":"*/10 * * * *","translation":{"max_output_length":256,"beam_count":2,"temperature":0.8,"repetition_penalty":1.1,"length_penalty":1,"no_repeat_ngram_size":3}}`)
	rec := serve(srv, http.MethodPut, "/api/settings", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var got config.RuntimeSettings
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "fr", got.TargetLanguage)
	assert.Equal(t, 256, got.Translation.MaxOutputLength)
	assert.Equal(t, 3, got.Translation.NoRepeatNgramSize)
	assert.Equal(t, got, store.current)
	assert.Equal(t, 1, applyCalls)
	assert.Equal(t, got, applied)
}

func TestServer_UpdateSettings_Rejected(t *testing.T) {
	store := &fakeSettingsStore{current: validRuntimeSettings()}
	srv := NewServer(newTestQueue(), nil, WithRuntimeSettingsStore(store))

	body := []byte(`{"target_language":"fr","translation":{"max_output_length":4096,"beam_count":2,"temperature":0.8,"repetition_penalty":1.1,"length_penalty":1}}`)
	rec := serve(srv, http.MethodPut, "/api/settings", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, validRuntimeSettings(), store.current)

	store.updateErr = errors.New("save failed")
	body, err := json.Marshal(validRuntimeSettings())
	require.NoError(t, err)
	rec = serve(srv, http.MethodPut, "/api/settings", body)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	srv = NewServer(newTestQueue(), nil)
	rec = serve(srv, http.MethodGet, "/api/settings", nil)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestServer_Results(t *testing.T) {
	lister := &fakeResults{ret: []*jobs.FileResult{{Path: "a.rpy", Status: jobs.StatusFailed, Error: "boom"}}}
	srv := NewServer(newTestQueue(), nil, WithResults(lister))

	rec := serve(srv, http.MethodGet, "/api/results?run_id=run-1&limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got []*jobs.FileResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "boom", got[0].Error)
	assert.Equal(t, "run-1", lister.runID)
	assert.Equal(t, 5, lister.limit)

	serve(srv, http.MethodGet, "/api/results?limit=abc", nil)
	assert.Equal(t, defaultResultsLimit, lister.limit)

	serve(srv, http.MethodGet, "/api/results?limit=100000", nil)
	assert.Equal(t, maxResultsLimit, lister.limit)
}

func TestServer_ResultsWithoutStoreUsesRecent(t *testing.T) {
	queue := newTestQueue()
	queue.Enqueue("a.rpy")
	exec := &recordingExecutor{}
	require.True(t, queue.Start(exec.exec))
	require.Eventually(t, func() bool {
		return queue.State() == jobs.StateIdle && len(queue.Snapshot().Recent) == 1
	}, 2*time.Second, 10*time.Millisecond)

	srv := NewServer(queue, nil)
	rec := serve(srv, http.MethodGet, "/api/results", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got []*jobs.FileResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "a.rpy", got[0].Path)
}

func TestServer_QueueStream(t *testing.T) {
	queue := newTestQueue()
	queue.Enqueue("a.rpy")
	srv := NewServer(queue, nil, WithStreamInterval(time.Hour))
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/queue/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := make(chan jobs.Snapshot, 16)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var snap jobs.Snapshot
			if json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &snap) == nil {
				events <- snap
			}
		}
		close(events)
	}()

	select {
	case snap := <-events:
		assert.Equal(t, []string{"a.rpy"}, snap.Pending)
	case <-time.After(2 * time.Second):
		t.Fatal("no initial snapshot")
	}

	// a queue event pushes a fresh snapshot
	exec := &recordingExecutor{}
	require.True(t, queue.Start(exec.exec))

	deadline := time.After(2 * time.Second)
	for {
		select {
		case snap, ok := <-events:
			require.True(t, ok)
			if snap.State != jobs.StateIdle || len(snap.Recent) > 0 {
				return
			}
		case <-deadline:
			t.Fatal("no snapshot after queue event")
		}
	}
}
