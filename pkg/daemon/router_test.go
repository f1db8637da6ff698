package daemon

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hack-dev/hack/pkg/registry"
	"github.com/hack-dev/hack/pkg/runtimebackend"
	"github.com/hack-dev/hack/pkg/runtimecache"
	"github.com/hack-dev/hack/pkg/sessions"
	"github.com/hack-dev/hack/pkg/supervisor"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()
	reg := registry.New(filepath.Join(dir, "projects.json"))
	backend := runtimebackend.NewFakeBackend()
	cache := runtimecache.New(backend, reg)
	sup := supervisor.New(2)
	t.Cleanup(sup.Shutdown)

	return NewServer(Config{
		SocketPath: filepath.Join(dir, "hackd.sock"),
		PidPath:    filepath.Join(dir, "hackd.pid"),
		Registry:   reg,
		Cache:      cache,
		Supervisor: sup,
		Sessions:   sessions.NewManagerWithRunner(func(args ...string) ([]byte, error) { return nil, nil }),
	})
}

func TestHandleStatus(t *testing.T) {
	s := newTestServer(t)
	router := s.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/v1/status", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestHandleListProjectsEmpty(t *testing.T) {
	s := newTestServer(t)
	router := s.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/v1/projects", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleCreateAndGetJob(t *testing.T) {
	s := newTestServer(t)
	router := s.buildRouter()

	body, _ := json.Marshal(createJobRequest{Runner: "shell", Command: []string{"true"}})
	req := httptest.NewRequest(http.MethodPost, "/v1/projects/p1/jobs", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var job struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	require.NotEmpty(t, job.ID)

	getReq := httptest.NewRequest(http.MethodGet, "/v1/projects/p1/jobs/"+job.ID, nil)
	getRec := httptest.NewRecorder()
	router.ServeHTTP(getRec, getReq)
	assert.Equal(t, http.StatusOK, getRec.Code)
}

func TestHandleGetJobNotFound(t *testing.T) {
	s := newTestServer(t)
	router := s.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/v1/projects/p1/jobs/does-not-exist", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRequireWriteScopePassesThroughWithoutToken(t *testing.T) {
	called := false
	handler := requireWriteScope(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodPost, "/v1/projects/register", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.True(t, called)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleListSessionsEmpty(t *testing.T) {
	s := newTestServer(t)
	router := s.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestHandleCreateSessionThenStop(t *testing.T) {
	s := newTestServer(t)
	router := s.buildRouter()

	body, _ := json.Marshal(createSessionRequest{Name: "build", Command: []string{"go", "build"}})
	req := httptest.NewRequest(http.MethodPost, "/v1/sessions", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	stopReq := httptest.NewRequest(http.MethodPost, "/v1/sessions/build/stop", nil)
	stopRec := httptest.NewRecorder()
	router.ServeHTTP(stopRec, stopReq)
	assert.Equal(t, http.StatusOK, stopRec.Code)
}

func TestHandleCreateSessionRejectsInvalidName(t *testing.T) {
	s := newTestServer(t)
	router := s.buildRouter()

	body, _ := json.Marshal(createSessionRequest{Name: "bad name!"})
	req := httptest.NewRequest(http.MethodPost, "/v1/sessions", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNotFoundHandler(t *testing.T) {
	s := newTestServer(t)
	router := s.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/v1/nope", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
