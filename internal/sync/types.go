package sync

import (
	"context"

	"watch-sync-service/internal/metadata"
	"watch-sync-service/internal/store"
	"watch-sync-service/internal/tracker"
)

// Result is the outcome of one sync pass. A non-empty Errors alongside
// non-zero counters is a partial success.
type Result = store.SyncResult

// MergePair is a local record that should take progress from its remote match.
type MergePair struct {
	Remote tracker.Item
	Local  store.WatchRecord
}

// Plan is the classification of both snapshots. The three lists are disjoint.
type Plan struct {
	ToImport []tracker.Item
	ToMerge  []MergePair
	ToExport []store.WatchRecord
}

// EpisodeRef addresses one episode.
type EpisodeRef struct {
	Season  int
	Episode int
}

// RecordStore reads and writes a user's local records.
type RecordStore interface {
	ListRecords(ctx context.Context, userID string, kind store.RecordKind) ([]store.WatchRecord, error)
	UpsertRecord(ctx context.Context, id, userID string, kind store.RecordKind, patch store.RecordPatch) error
}

// Tracker is the remote tracking service.
type Tracker interface {
	ListItems(ctx context.Context, token string, kind tracker.Kind, status tracker.Status) ([]tracker.Item, error)
	CheckIn(ctx context.Context, token string, payload tracker.CheckIn) error
}

// MetadataProvider enriches imported items with display metadata.
type MetadataProvider interface {
	Resolve(ctx context.Context, crossRefID int64, mediaType store.MediaType) (metadata.Details, error)
}

// StateStore persists per-user sync bookkeeping.
type StateStore interface {
	GetSyncState(ctx context.Context, userID string) (*store.SyncState, error)
	MergeSyncState(ctx context.Context, userID string, update store.SyncStateUpdate) error
	CreateSyncHistory(ctx context.Context, history *store.SyncHistory) error
	UpdateSyncHistory(ctx context.Context, history *store.SyncHistory) error
	GetSyncHistory(ctx context.Context, userID string, limit, offset int) ([]*store.SyncHistory, error)
	SaveTrackerLink(ctx context.Context, link store.TrackerLink) error
	GetTrackerLink(ctx context.Context, userID string) (*store.TrackerLink, error)
	ListTrackerLinks(ctx context.Context) ([]store.TrackerLink, error)
	DeleteTrackerLink(ctx context.Context, userID string) error
}
