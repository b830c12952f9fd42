package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"watch-sync-service/internal/config"
	"watch-sync-service/internal/logger"
	"watch-sync-service/internal/store"
)

var (
	ErrSyncInProgress = errors.New("sync is already running")
	ErrNotLinked      = errors.New("no tracker account linked")
)

// Manager guards sync passes so a user never has two running at once, and
// keeps each user's sync state and run history.
type Manager struct {
	syncer     *Syncer
	state      StateStore
	staleAfter time.Duration
	now        func() time.Time

	mu      sync.Mutex
	running map[string]bool
}

func NewManager(cfg config.SyncConfig, syncer *Syncer, state StateStore) *Manager {
	staleAfter := cfg.GetStaleAfter()
	if staleAfter <= 0 {
		staleAfter = 30 * time.Minute
	}
	return &Manager{
		syncer:     syncer,
		state:      state,
		staleAfter: staleAfter,
		now:        time.Now,
		running:    make(map[string]bool),
	}
}

func (m *Manager) acquire(userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running[userID] {
		return false
	}
	m.running[userID] = true
	return true
}

func (m *Manager) release(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.running, userID)
}

// IsRunning reports whether this process is syncing userID right now.
func (m *Manager) IsRunning(userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running[userID]
}

// Sync runs one pass for userID with the given tracker token. It returns
// ErrSyncInProgress when another pass for the same user is underway, here or
// (per the persisted flag) in another process.
func (m *Manager) Sync(ctx context.Context, userID, token string) (Result, error) {
	if !m.acquire(userID) {
		return Result{}, ErrSyncInProgress
	}
	defer m.release(userID)

	state, err := m.state.GetSyncState(ctx, userID)
	switch {
	case err == nil:
		// A flag older than staleAfter is left over from a crashed run.
		if state.IsSyncing && m.now().Sub(state.UpdatedAt) < m.staleAfter {
			return Result{}, ErrSyncInProgress
		}
	case !errors.Is(err, store.ErrNotFound):
		logger.Log.Warn("Failed to read sync state", zap.String("userID", userID), zap.Error(err))
	}

	// Bookkeeping must land even if the caller gives up mid-pass.
	bg := context.WithoutCancel(ctx)

	syncing := true
	m.UpdateSyncState(bg, userID, store.SyncStateUpdate{IsSyncing: &syncing})

	history := &store.SyncHistory{
		ID:        uuid.NewString(),
		UserID:    userID,
		StartedAt: m.now(),
		Status:    store.HistoryRunning,
	}
	if err := m.state.CreateSyncHistory(bg, history); err != nil {
		logger.Log.Warn("Failed to record sync start", zap.String("userID", userID), zap.Error(err))
		history = nil
	}

	result := m.syncer.PerformSync(ctx, userID, token)

	finished := m.now()
	syncing = false
	m.UpdateSyncState(bg, userID, store.SyncStateUpdate{
		IsSyncing:  &syncing,
		LastSyncAt: &finished,
		LastResult: &result,
	})

	if history != nil {
		history.CompletedAt = &finished
		history.Imported = result.Imported
		history.Exported = result.Exported
		history.Merged = result.Merged
		history.ErrorCount = len(result.Errors)
		history.Status = runStatus(result)
		history.ErrorMessage = strings.Join(result.Errors, "\n")
		if err := m.state.UpdateSyncHistory(bg, history); err != nil {
			logger.Log.Warn("Failed to record sync completion", zap.String("userID", userID), zap.Error(err))
		}
	}

	return result, nil
}

func runStatus(r Result) string {
	switch {
	case len(r.Errors) == 0:
		return store.HistoryCompleted
	case r.Imported+r.Exported+r.Merged > 0:
		return store.HistoryPartial
	default:
		return store.HistoryFailed
	}
}

// SyncLinked runs a pass with the tracker token stored for userID.
func (m *Manager) SyncLinked(ctx context.Context, userID string) (Result, error) {
	token, err := m.LinkedToken(ctx, userID)
	if err != nil {
		return Result{}, err
	}
	return m.Sync(ctx, userID, token)
}

// UpdateSyncState merges update into the user's sync state. Failures are
// logged, never returned.
func (m *Manager) UpdateSyncState(ctx context.Context, userID string, update store.SyncStateUpdate) {
	if err := m.state.MergeSyncState(ctx, userID, update); err != nil {
		logger.Log.Warn("Failed to update sync state", zap.String("userID", userID), zap.Error(err))
	}
}

func (m *Manager) Status(ctx context.Context, userID string) (*store.SyncState, error) {
	return m.state.GetSyncState(ctx, userID)
}

func (m *Manager) History(ctx context.Context, userID string, limit, offset int) ([]*store.SyncHistory, error) {
	return m.state.GetSyncHistory(ctx, userID, limit, offset)
}

func (m *Manager) Link(ctx context.Context, userID, token string) error {
	if strings.TrimSpace(token) == "" {
		return fmt.Errorf("empty tracker token")
	}
	return m.state.SaveTrackerLink(ctx, store.TrackerLink{UserID: userID, AccessToken: token, UpdatedAt: m.now()})
}

func (m *Manager) Unlink(ctx context.Context, userID string) error {
	return m.state.DeleteTrackerLink(ctx, userID)
}

// LinkedToken returns the stored tracker token, or ErrNotLinked.
func (m *Manager) LinkedToken(ctx context.Context, userID string) (string, error) {
	link, err := m.state.GetTrackerLink(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return "", ErrNotLinked
	}
	if err != nil {
		return "", err
	}
	return link.AccessToken, nil
}

// LinkedUsers lists the users with a stored tracker token.
func (m *Manager) LinkedUsers(ctx context.Context) ([]string, error) {
	links, err := m.state.ListTrackerLinks(ctx)
	if err != nil {
		return nil, err
	}
	users := make([]string, 0, len(links))
	for _, l := range links {
		users = append(users, l.UserID)
	}
	return users, nil
}
