package store

import (
	"fmt"
	"time"
)

type RecordKind string

const (
	KindHistory   RecordKind = "history"
	KindFavorite  RecordKind = "favorite"
	KindWatchlist RecordKind = "watchlist"
)

type MediaType string

const (
	MediaMovie  MediaType = "movie"
	MediaSeries MediaType = "series"
)

// EpisodeWatch is one watched episode of a series.
type EpisodeWatch struct {
	Season    int       `json:"season"`
	Episode   int       `json:"episode"`
	WatchedAt time.Time `json:"watchedAt"`
}

// WatchRecord is a local history, favorite or watchlist entry. For series,
// RemoteWatchedCount stands in for EpisodesWatched when the tracker reports
// only a flat watched-episode count.
type WatchRecord struct {
	ID                   string         `json:"id"`
	UserID               string         `json:"userId"`
	Kind                 RecordKind     `json:"kind"`
	CrossRefID           int64          `json:"crossRefId,omitempty"` // 0 when absent
	MediaType            MediaType      `json:"mediaType"`
	Title                string         `json:"title"`
	PosterPath           string         `json:"posterPath,omitempty"`
	BackdropPath         string         `json:"backdropPath,omitempty"`
	Overview             string         `json:"overview,omitempty"`
	Rating               float64        `json:"rating,omitempty"`
	WatchPositionSeconds float64        `json:"watchPositionSeconds"`
	DurationSeconds      float64        `json:"durationSeconds"`
	Season               *int           `json:"season,omitempty"`
	Episode              *int           `json:"episode,omitempty"`
	EpisodesWatched      []EpisodeWatch `json:"episodesWatched,omitempty"`
	RemoteWatchedCount   int            `json:"remoteWatchedCount,omitempty"` // tracker count at the last sync
	ReleaseYear          string         `json:"releaseYear,omitempty"`
	ReleaseDate          string         `json:"releaseDate,omitempty"`
	CreatedAt            time.Time      `json:"createdAt"`
	LastWatchedAt        time.Time      `json:"lastWatchedAt"`
}

// RecordID is the deterministic id given to records created by sync, so a
// user holds at most one record per media item.
func RecordID(userID string, mediaType MediaType, crossRefID int64) string {
	return fmt.Sprintf("%s_%s_%d", userID, mediaType, crossRefID)
}

// RecordPatch is a partial update of a WatchRecord. Nil fields are left
// untouched by UpsertRecord.
type RecordPatch struct {
	CrossRefID           *int64
	MediaType            *MediaType
	Title                *string
	PosterPath           *string
	BackdropPath         *string
	Overview             *string
	Rating               *float64
	WatchPositionSeconds *float64
	DurationSeconds      *float64
	Season               *int
	Episode              *int
	EpisodesWatched      []EpisodeWatch
	RemoteWatchedCount   *int
	ReleaseYear          *string
	ReleaseDate          *string
	CreatedAt            *time.Time
	LastWatchedAt        *time.Time
}

// SyncResult mirrors the counters of the last sync run kept in SyncState.
type SyncResult struct {
	Imported int      `json:"imported"`
	Exported int      `json:"exported"`
	Merged   int      `json:"merged"`
	Errors   []string `json:"errors"`
}

type SyncState struct {
	UserID     string      `json:"userId"`
	LastSyncAt *time.Time  `json:"lastSyncAt"`
	IsSyncing  bool        `json:"isSyncing"`
	LastResult *SyncResult `json:"lastResult"`
	UpdatedAt  time.Time   `json:"updatedAt"`
}

// SyncStateUpdate is merged into the stored SyncState; nil fields keep their
// stored value.
type SyncStateUpdate struct {
	LastSyncAt *time.Time
	IsSyncing  *bool
	LastResult *SyncResult
}

const (
	HistoryRunning   = "running"
	HistoryCompleted = "completed"
	HistoryPartial   = "partial"
	HistoryFailed    = "failed"
)

type SyncHistory struct {
	ID           string     `json:"id"`
	UserID       string     `json:"userId"`
	StartedAt    time.Time  `json:"startedAt"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
	Imported     int        `json:"imported"`
	Exported     int        `json:"exported"`
	Merged       int        `json:"merged"`
	ErrorCount   int        `json:"errorCount"`
	Status       string     `json:"status"`
	ErrorMessage string     `json:"errorMessage,omitempty"`
}

// TrackerLink holds the tracker access token used for background syncs.
type TrackerLink struct {
	UserID      string    `json:"userId"`
	AccessToken string    `json:"-"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
