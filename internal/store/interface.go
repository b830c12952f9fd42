package store

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("not found")

type Store interface {
	// Records
	ListRecords(ctx context.Context, userID string, kind RecordKind) ([]WatchRecord, error)
	GetRecord(ctx context.Context, id string) (*WatchRecord, error)
	UpsertRecord(ctx context.Context, id, userID string, kind RecordKind, patch RecordPatch) error

	// Sync State
	GetSyncState(ctx context.Context, userID string) (*SyncState, error)
	MergeSyncState(ctx context.Context, userID string, update SyncStateUpdate) error

	// History
	CreateSyncHistory(ctx context.Context, history *SyncHistory) error
	UpdateSyncHistory(ctx context.Context, history *SyncHistory) error
	GetSyncHistory(ctx context.Context, userID string, limit, offset int) ([]*SyncHistory, error)

	// Tracker links
	SaveTrackerLink(ctx context.Context, link TrackerLink) error
	GetTrackerLink(ctx context.Context, userID string) (*TrackerLink, error)
	ListTrackerLinks(ctx context.Context) ([]TrackerLink, error)
	DeleteTrackerLink(ctx context.Context, userID string) error

	// General
	Close() error
}
