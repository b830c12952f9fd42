package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"watch-sync-service/internal/config"
	"watch-sync-service/internal/store"
	"watch-sync-service/internal/sync"
)

type fakeService struct {
	result    sync.Result
	syncErr   error
	links     map[string]string
	states    map[string]*store.SyncState
	history   []*store.SyncHistory
	gotToken  string
	gotLimit  int
	gotOffset int
}

func newFakeService() *fakeService {
	return &fakeService{links: map[string]string{}, states: map[string]*store.SyncState{}}
}

func (f *fakeService) Sync(_ context.Context, _ string, token string) (sync.Result, error) {
	f.gotToken = token
	return f.result, f.syncErr
}

func (f *fakeService) SyncLinked(ctx context.Context, userID string) (sync.Result, error) {
	token, ok := f.links[userID]
	if !ok {
		return sync.Result{}, sync.ErrNotLinked
	}
	return f.Sync(ctx, userID, token)
}

func (f *fakeService) Status(_ context.Context, userID string) (*store.SyncState, error) {
	s, ok := f.states[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return s, nil
}

func (f *fakeService) History(_ context.Context, _ string, limit, offset int) ([]*store.SyncHistory, error) {
	f.gotLimit, f.gotOffset = limit, offset
	return f.history, nil
}

func (f *fakeService) Link(_ context.Context, userID, token string) error {
	f.links[userID] = token
	return nil
}

func (f *fakeService) Unlink(_ context.Context, userID string) error {
	delete(f.links, userID)
	return nil
}

func newTestRouter(svc SyncService, authToken string) http.Handler {
	return NewHandler(svc, config.ServerConfig{AuthToken: authToken, CorsOrigins: []string{"*"}}).Routes()
}

func do(t *testing.T, h http.Handler, method, path string, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthCheck(t *testing.T) {
	rec := do(t, newTestRouter(newFakeService(), "secret"), http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestTriggerSyncWithHeaderToken(t *testing.T) {
	svc := newFakeService()
	svc.result = sync.Result{Imported: 2, Errors: []string{"Failed to export Heat: boom"}}
	router := newTestRouter(svc, "")

	rec := do(t, router, http.MethodPost, "/api/v1/users/u1/sync", "", map[string]string{TrackerTokenHeader: "tok"})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "tok", svc.gotToken)
	var got sync.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, svc.result, got)
}

func TestTriggerSyncUsesStoredLink(t *testing.T) {
	svc := newFakeService()
	router := newTestRouter(svc, "")

	rec := do(t, router, http.MethodPost, "/api/v1/users/u1/sync", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	svc.links["u1"] = "stored"
	rec = do(t, router, http.MethodPost, "/api/v1/users/u1/sync", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "stored", svc.gotToken)
}

func TestTriggerSyncConflict(t *testing.T) {
	svc := newFakeService()
	svc.syncErr = sync.ErrSyncInProgress

	rec := do(t, newTestRouter(svc, ""), http.MethodPost, "/api/v1/users/u1/sync", "", map[string]string{TrackerTokenHeader: "tok"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestGetSyncStatus(t *testing.T) {
	svc := newFakeService()
	last := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.states["u1"] = &store.SyncState{UserID: "u1", LastSyncAt: &last, LastResult: &store.SyncResult{Merged: 3, Errors: []string{}}}
	router := newTestRouter(svc, "")

	rec := do(t, router, http.MethodGet, "/api/v1/users/u1/sync/status", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got store.SyncState
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 3, got.LastResult.Merged)

	rec = do(t, router, http.MethodGet, "/api/v1/users/nobody/sync/status", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetSyncHistoryPaging(t *testing.T) {
	svc := newFakeService()
	router := newTestRouter(svc, "")

	rec := do(t, router, http.MethodGet, "/api/v1/users/u1/sync/history", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
	assert.Equal(t, defaultHistoryLimit, svc.gotLimit)

	rec = do(t, router, http.MethodGet, "/api/v1/users/u1/sync/history?limit=500&offset=10", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, maxHistoryLimit, svc.gotLimit)
	assert.Equal(t, 10, svc.gotOffset)

	rec = do(t, router, http.MethodGet, "/api/v1/users/u1/sync/history?limit=abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTrackerLinkLifecycle(t *testing.T) {
	svc := newFakeService()
	router := newTestRouter(svc, "")

	rec := do(t, router, http.MethodPut, "/api/v1/users/u1/tracker-link", `{"accessToken":"abc"}`, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "abc", svc.links["u1"])

	rec = do(t, router, http.MethodPut, "/api/v1/users/u1/tracker-link", `{"accessToken":""}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodPut, "/api/v1/users/u1/tracker-link", `not json`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodDelete, "/api/v1/users/u1/tracker-link", "", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.NotContains(t, svc.links, "u1")
}

func TestAuthMiddleware(t *testing.T) {
	svc := newFakeService()
	svc.states["u1"] = &store.SyncState{UserID: "u1"}
	router := newTestRouter(svc, "secret")

	rec := do(t, router, http.MethodGet, "/api/v1/users/u1/sync/status", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, router, http.MethodGet, "/api/v1/users/u1/sync/status", "", map[string]string{"Authorization": "Bearer wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, router, http.MethodGet, "/api/v1/users/u1/sync/status", "", map[string]string{"Authorization": "Bearer secret"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCorsMiddleware(t *testing.T) {
	router := NewHandler(newFakeService(), config.ServerConfig{CorsOrigins: []string{"https://app.example.com"}}).Routes()

	rec := do(t, router, http.MethodOptions, "/api/v1/users/u1/sync", "", map[string]string{"Origin": "https://app.example.com"})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = do(t, router, http.MethodGet, "/health", "", map[string]string{"Origin": "https://evil.example.com"})
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
