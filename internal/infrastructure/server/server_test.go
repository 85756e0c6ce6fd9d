package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/maestro/backend/internal/infrastructure/config"
	"github.com/GriffinCanCode/maestro/backend/internal/shared/types"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("no /bin/sh available")
	}

	cfg := config.Default()
	cfg.Terminal.Shell = "/bin/sh"
	cfg.Terminal.KillGrace = config.Duration{Duration: 300 * time.Millisecond}
	cfg.Terminal.KillPoll = config.Duration{Duration: 20 * time.Millisecond}
	cfg.RateLimit.Enabled = false

	srv, err := NewServer(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return srv
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func TestNewServerRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Orchestrator.MaxSessions = 0

	_, err := NewServer(cfg, nil)
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)

	w := do(t, srv, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.EqualValues(t, 0, body["sessions"])
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestSessionLifecycleOverREST(t *testing.T) {
	srv := newTestServer(t)

	w := do(t, srv, http.MethodPost, "/sessions", "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var spawned struct {
		ID types.SessionID `json:"id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &spawned))
	assert.Equal(t, types.SessionID(1), spawned.ID)

	w = do(t, srv, http.MethodGet, "/sessions", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list []types.SessionMetadata
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, spawned.ID, list[0].ID)

	w = do(t, srv, http.MethodPut, "/sessions/1/status", `{"status":"error"}`)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, srv, http.MethodDelete, "/sessions/1", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, srv.Manager().Count())

	w = do(t, srv, http.MethodDelete, "/sessions/1", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), string(types.CodeSessionNotFound))
}

func TestModeAndBranchOverREST(t *testing.T) {
	srv := newTestServer(t)

	w := do(t, srv, http.MethodPost, "/sessions", `{"mode":"codex"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(t, srv, http.MethodPut, "/sessions/1/branch", `{"branch":"feat/grid","worktree_path":"/tmp/wt-grid"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, srv, http.MethodGet, "/sessions", "")
	var list []types.SessionMetadata
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, types.ModeCodex, list[0].Mode)
	require.NotNil(t, list[0].Branch)
	assert.Equal(t, "feat/grid", *list[0].Branch)
	require.NotNil(t, list[0].WorktreePath)
	assert.Equal(t, "/tmp/wt-grid", *list[0].WorktreePath)

	w = do(t, srv, http.MethodPut, "/sessions/7/branch", `{"branch":"main"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, srv, http.MethodPut, "/sessions/1/branch", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, srv, http.MethodPost, "/sessions", `{"mode":"cobol"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 1, srv.Manager().Count())
}

func TestSpawnRejectsMissingCwd(t *testing.T) {
	srv := newTestServer(t)

	w := do(t, srv, http.MethodPost, "/sessions", `{"cwd":"/definitely/not/here"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), string(types.CodeSpawnFailed))
}

func TestInvoke(t *testing.T) {
	srv := newTestServer(t)

	w := do(t, srv, http.MethodPost, "/invoke/list_sessions", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"result":[]}`, w.Body.String())

	w = do(t, srv, http.MethodPost, "/invoke/format_disk", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, srv, http.MethodPost, "/invoke/resize_pty", `{"session_id":9,"rows":10,"cols":10}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBadSessionID(t *testing.T) {
	srv := newTestServer(t)

	w := do(t, srv, http.MethodDelete, "/sessions/abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t)

	do(t, srv, http.MethodGet, "/health", "")
	w := do(t, srv, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "maestro_http_requests_total")
	assert.Contains(t, w.Body.String(), "go_goroutines")
}
