package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskd/internal/controller"
	"taskd/internal/models"
	"taskd/internal/repository"
	"taskd/internal/service"
)

func newTestRouter(t *testing.T) (*gin.Engine, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	path := filepath.Join(t.TempDir(), "tasks.json")
	fs := repository.NewFileStore(repository.FileOptions{Path: path})
	require.NoError(t, fs.EnsureReady(context.Background()))
	return Router(controller.NewTasks(service.New(fs), nil), nil), path
}

func do(r http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeTask(t *testing.T, w *httptest.ResponseRecorder) models.Task {
	t.Helper()
	var task models.Task
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &task), w.Body.String())
	return task
}

func TestTaskLifecycle(t *testing.T) {
	r, _ := newTestRouter(t)

	w := do(r, http.MethodPost, "/tasks", `{"title":"Buy milk","priority":"high"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decodeTask(t, w)
	assert.Equal(t, int64(1), created.ID)
	assert.Equal(t, models.PriorityHigh, created.Priority)
	assert.Contains(t, w.Body.String(), `"completed_at":null`)

	w = do(r, http.MethodPost, "/tasks", `{"title":"Walk dog","priority":"urgent","due_date":"2030-05-01"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = do(r, http.MethodPatch, "/tasks/1/priority", `{"priority":"urgent"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.PriorityUrgent, decodeTask(t, w).Priority)

	w = do(r, http.MethodGet, "/tasks?priority=urgent", "")
	require.Equal(t, http.StatusOK, w.Code)
	var urgent []models.Task
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &urgent))
	assert.Len(t, urgent, 2)

	w = do(r, http.MethodPost, "/tasks/1/complete", "")
	require.Equal(t, http.StatusOK, w.Code)
	done := decodeTask(t, w)
	assert.True(t, done.Completed)
	assert.NotNil(t, done.CompletedAt)

	w = do(r, http.MethodGet, "/tasks?status=pending", "")
	var pending []models.Task
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pending))
	require.Len(t, pending, 1)
	assert.Equal(t, int64(2), pending[0].ID)

	w = do(r, http.MethodGet, "/tasks/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	var st models.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.Equal(t, 2, st.TotalTasks)
	assert.Equal(t, 50.0, st.CompletionRate)

	w = do(r, http.MethodDelete, "/tasks/1", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = do(r, http.MethodGet, "/tasks/1", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(r, http.MethodPost, "/tasks", `{"title":"Third"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, int64(3), decodeTask(t, w).ID)
}

func TestErrorStatuses(t *testing.T) {
	r, _ := newTestRouter(t)

	cases := []struct {
		method, target, body string
		want                 int
	}{
		{http.MethodPost, "/tasks", `{"title":""}`, http.StatusBadRequest},
		{http.MethodPost, "/tasks", `{"title":"x","priority":"critical"}`, http.StatusBadRequest},
		{http.MethodPost, "/tasks", `{"title":"x","due_date":"soon"}`, http.StatusBadRequest},
		{http.MethodPost, "/tasks", `not json`, http.StatusBadRequest},
		{http.MethodGet, "/tasks?status=archived", "", http.StatusBadRequest},
		{http.MethodGet, "/tasks?priority=someday", "", http.StatusBadRequest},
		{http.MethodGet, "/tasks/abc", "", http.StatusBadRequest},
		{http.MethodGet, "/tasks/9", "", http.StatusNotFound},
		{http.MethodPost, "/tasks/9/complete", "", http.StatusNotFound},
		{http.MethodPatch, "/tasks/9/priority", `{"priority":"low"}`, http.StatusNotFound},
		{http.MethodPatch, "/tasks/9/priority", `{}`, http.StatusBadRequest},
		{http.MethodDelete, "/tasks/9", "", http.StatusNotFound},
	}
	for _, tc := range cases {
		w := do(r, tc.method, tc.target, tc.body)
		assert.Equal(t, tc.want, w.Code, "%s %s %s", tc.method, tc.target, tc.body)
		assert.Contains(t, w.Body.String(), `"error"`)
	}
}

func TestCorruptStoreIs500(t *testing.T) {
	r, path := newTestRouter(t)
	require.NoError(t, os.WriteFile(path, []byte("{{{"), 0o644))

	w := do(r, http.MethodGet, "/tasks", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestHealthAndReady(t *testing.T) {
	r, _ := newTestRouter(t)
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/health", "").Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/ready", "").Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/mcp", "").Code, "MCP is not mounted without a handler")
}
