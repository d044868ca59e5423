package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mohammad-safakhou/researcher/config"
	"github.com/mohammad-safakhou/researcher/internal/research"
	"github.com/mohammad-safakhou/researcher/internal/runtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeOrchestrator struct {
	mu        sync.Mutex
	tasks     map[string]*research.ResearchTask
	startErr  error
	cancelled []string
	nextID    int
}

func newFakeOrchestrator(tasks ...*research.ResearchTask) *fakeOrchestrator {
	f := &fakeOrchestrator{tasks: make(map[string]*research.ResearchTask)}
	for _, t := range tasks {
		f.tasks[t.ID] = t
	}
	return f
}

func (f *fakeOrchestrator) StartResearch(_ context.Context, query string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return "", f.startErr
	}
	if strings.TrimSpace(query) == "" {
		return "", research.ErrEmptyQuery
	}
	f.nextID++
	id := "task-" + string(rune('0'+f.nextID))
	f.tasks[id] = &research.ResearchTask{ID: id, Query: query, Status: research.StatusPending}
	return id, nil
}

func (f *fakeOrchestrator) GetTask(id string) (*research.ResearchTask, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	if !ok {
		return nil, false
	}
	cp := *t
	return &cp, true
}

func (f *fakeOrchestrator) ListTasks() []*research.ResearchTask {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*research.ResearchTask
	for _, t := range f.tasks {
		cp := *t
		out = append(out, &cp)
	}
	return out
}

func (f *fakeOrchestrator) Cancel(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tasks[id]; !ok {
		return research.ErrTaskNotFound
	}
	f.cancelled = append(f.cancelled, id)
	return nil
}

func (f *fakeOrchestrator) setStatus(id string, status research.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks[id].Status = status
}

func newTestServer(t *testing.T, orch Orchestrator, hub *Hub, cfg config.ServerConfig) *Server {
	t.Helper()
	srv, err := New(orch, hub, Options{Server: cfg, Metrics: http.NotFoundHandler()}, zaptest.NewLogger(t))
	require.NoError(t, err)
	return srv
}

func do(t *testing.T, h http.Handler, method, path, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func errorOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body HTTPError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error
}

func TestNewRequiresSecretWhenAuthEnabled(t *testing.T) {
	_, err := New(newFakeOrchestrator(), nil, Options{Server: config.ServerConfig{AuthEnabled: true}}, nil)
	assert.Error(t, err)
	_, err = New(nil, nil, Options{}, nil)
	assert.Error(t, err)
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, newFakeOrchestrator(), nil, config.ServerConfig{})
	rec := do(t, srv.Handler(), http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestStartResearch(t *testing.T) {
	orch := newFakeOrchestrator()
	srv := newTestServer(t, orch, nil, config.ServerConfig{})

	rec := do(t, srv.Handler(), http.MethodPost, "/api/research", `{"query":"rust async runtimes"}`, nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp StartResearchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "task-1", resp.TaskID)

	rec = do(t, srv.Handler(), http.MethodPost, "/api/research", `{"query":"   "}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, research.ErrEmptyQuery.Error(), errorOf(t, rec))

	rec = do(t, srv.Handler(), http.MethodPost, "/api/research", `{"query":`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	orch.startErr = research.ErrClosed
	rec = do(t, srv.Handler(), http.MethodPost, "/api/research", `{"query":"x"}`, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGetListAndCancel(t *testing.T) {
	orch := newFakeOrchestrator(&research.ResearchTask{ID: "t1", Query: "go", Status: research.StatusSearching})
	srv := newTestServer(t, orch, nil, config.ServerConfig{})

	rec := do(t, srv.Handler(), http.MethodGet, "/api/research/t1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var task research.ResearchTask
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &task))
	assert.Equal(t, research.StatusSearching, task.Status)

	rec = do(t, srv.Handler(), http.MethodGet, "/api/research/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, research.ErrTaskNotFound.Error(), errorOf(t, rec))

	rec = do(t, srv.Handler(), http.MethodGet, "/api/research", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list TaskListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list.Tasks, 1)

	rec = do(t, srv.Handler(), http.MethodDelete, "/api/research/t1", "", nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []string{"t1"}, orch.cancelled)

	rec = do(t, srv.Handler(), http.MethodDelete, "/api/research/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListEmptyIsArray(t *testing.T) {
	srv := newTestServer(t, newFakeOrchestrator(), nil, config.ServerConfig{})
	rec := do(t, srv.Handler(), http.MethodGet, "/api/research", "", nil)
	assert.JSONEq(t, `{"tasks":[]}`, rec.Body.String())
}

func TestAuthRequired(t *testing.T) {
	secret := "s3cret"
	srv := newTestServer(t, newFakeOrchestrator(), nil, config.ServerConfig{AuthEnabled: true, JWTSecret: secret})

	rec := do(t, srv.Handler(), http.MethodGet, "/api/research", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, srv.Handler(), http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code, "health is public")

	token, err := runtime.SignJWT("user-1", []byte(secret), time.Minute)
	require.NoError(t, err)
	rec = do(t, srv.Handler(), http.MethodGet, "/api/research", "", http.Header{"Authorization": {"Bearer " + token}})
	assert.Equal(t, http.StatusOK, rec.Code)

	forged, err := runtime.SignJWT("user-1", []byte("other"), time.Minute)
	require.NoError(t, err)
	rec = do(t, srv.Handler(), http.MethodGet, "/api/research", "", http.Header{"Cookie": {"auth=" + forged}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestStreamDisabled(t *testing.T) {
	orch := newFakeOrchestrator(&research.ResearchTask{ID: "t1"})
	srv := newTestServer(t, orch, nil, config.ServerConfig{StreamEnabled: true})
	rec := do(t, srv.Handler(), http.MethodGet, "/api/research/t1/stream", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code, "no hub means no streaming")

	hub := NewHub(nil, nil, 0, nil)
	srv = newTestServer(t, orch, hub, config.ServerConfig{StreamEnabled: false})
	rec = do(t, srv.Handler(), http.MethodGet, "/api/research/t1/stream", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStreamTerminalTask(t *testing.T) {
	orch := newFakeOrchestrator(&research.ResearchTask{ID: "t1", Status: research.StatusCompleted, Conclusion: "done", Degraded: true})
	hub := NewHub(nil, nil, 0, nil)
	srv := newTestServer(t, orch, hub, config.ServerConfig{StreamEnabled: true})

	rec := do(t, srv.Handler(), http.MethodGet, "/api/research/t1/stream", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	frames := parseFrames(t, rec.Body.String())
	require.Len(t, frames, 2)
	assert.Equal(t, eventSnapshot, frames[0].event)
	assert.Equal(t, eventDone, frames[1].event)
	assert.JSONEq(t, `{"task_id":"t1","status":"completed","degraded":true}`, frames[1].data)
	assert.Zero(t, hub.subscribers("t1"))

	rec = do(t, srv.Handler(), http.MethodGet, "/api/research/missing/stream", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type sseFrame struct {
	event string
	data  string
}

func parseFrames(t *testing.T, body string) []sseFrame {
	t.Helper()
	var out []sseFrame
	for _, block := range strings.Split(strings.TrimSpace(body), "\n\n") {
		var f sseFrame
		for _, line := range strings.Split(block, "\n") {
			switch {
			case strings.HasPrefix(line, "event: "):
				f.event = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				f.data = strings.TrimPrefix(line, "data: ")
			}
		}
		if f.event != "" {
			out = append(out, f)
		}
	}
	return out
}
