package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"watch-sync-service/internal/config"
	"watch-sync-service/internal/logger"
	"watch-sync-service/internal/store"
	"watch-sync-service/internal/sync"
)

// TrackerTokenHeader carries a caller-supplied tracker token for one sync.
const TrackerTokenHeader = "X-Tracker-Token"

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// SyncService is the part of sync.Manager the HTTP layer drives.
type SyncService interface {
	Sync(ctx context.Context, userID, token string) (sync.Result, error)
	SyncLinked(ctx context.Context, userID string) (sync.Result, error)
	Status(ctx context.Context, userID string) (*store.SyncState, error)
	History(ctx context.Context, userID string, limit, offset int) ([]*store.SyncHistory, error)
	Link(ctx context.Context, userID, token string) error
	Unlink(ctx context.Context, userID string) error
}

type Handler struct {
	syncService SyncService
	cfg         config.ServerConfig
}

func NewHandler(service SyncService, cfg config.ServerConfig) *Handler {
	return &Handler{
		syncService: service,
		cfg:         cfg,
	}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(CorsMiddleware(h.cfg.CorsOrigins))

	r.Get("/health", h.HealthCheck)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(AuthMiddleware(h.cfg.AuthToken))

		r.Route("/users/{userID}", func(r chi.Router) {
			r.Post("/sync", h.TriggerSync)
			r.Get("/sync/status", h.GetSyncStatus)
			r.Get("/sync/history", h.GetSyncHistory)
			r.Put("/tracker-link", h.PutTrackerLink)
			r.Delete("/tracker-link", h.DeleteTrackerLink)
		})
	})

	return r
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// TriggerSync runs a sync pass and answers with its result. The token comes
// from the X-Tracker-Token header, else from the user's stored link.
func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var (
		result sync.Result
		err    error
	)
	if token := strings.TrimSpace(r.Header.Get(TrackerTokenHeader)); token != "" {
		result, err = h.syncService.Sync(r.Context(), userID, token)
	} else {
		result, err = h.syncService.SyncLinked(r.Context(), userID)
	}

	switch {
	case errors.Is(err, sync.ErrSyncInProgress):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, sync.ErrNotLinked):
		writeError(w, http.StatusBadRequest, "tracker token required")
	case err != nil:
		logger.Log.Error("Sync request failed", zap.String("userID", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "sync failed")
	default:
		writeJSON(w, http.StatusOK, result)
	}
}

func (h *Handler) GetSyncStatus(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	state, err := h.syncService.Status(r.Context(), userID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no sync state for user")
		return
	}
	if err != nil {
		logger.Log.Error("Failed to read sync state", zap.String("userID", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to read sync state")
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (h *Handler) GetSyncHistory(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	limit, err := queryInt(r, "limit", defaultHistoryLimit)
	if err != nil || limit < 1 {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		writeError(w, http.StatusBadRequest, "invalid offset")
		return
	}

	history, err := h.syncService.History(r.Context(), userID, limit, offset)
	if err != nil {
		logger.Log.Error("Failed to read sync history", zap.String("userID", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to read sync history")
		return
	}
	if history == nil {
		history = []*store.SyncHistory{}
	}
	writeJSON(w, http.StatusOK, history)
}

type trackerLinkRequest struct {
	AccessToken string `json:"accessToken"`
}

func (h *Handler) PutTrackerLink(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var req trackerLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.AccessToken) == "" {
		writeError(w, http.StatusBadRequest, "accessToken is required")
		return
	}

	if err := h.syncService.Link(r.Context(), userID, req.AccessToken); err != nil {
		logger.Log.Error("Failed to save tracker link", zap.String("userID", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to save tracker link")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) DeleteTrackerLink(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	if err := h.syncService.Unlink(r.Context(), userID); err != nil {
		logger.Log.Error("Failed to delete tracker link", zap.String("userID", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to delete tracker link")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Log.Warn("Failed to write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// CorsMiddleware allows the listed origins; "*" allows any.
func CorsMiddleware(origins []string) func(http.Handler) http.Handler {
	allowAll := false
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			switch {
			case allowAll:
				w.Header().Set("Access-Control-Allow-Origin", "*")
			case origin != "" && allowed[origin]:
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, "+TrackerTokenHeader)

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// AuthMiddleware requires "Authorization: Bearer <token>". An empty token
// disables the check.
func AuthMiddleware(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
