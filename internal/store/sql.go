package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"watch-sync-service/internal/database"
	"watch-sync-service/internal/logger"
)

const recordColumns = `id, user_id, kind, cross_ref_id, media_type, title, poster_path, backdrop_path, overview, rating,
	watch_position_seconds, duration_seconds, season, episode, episodes_watched, remote_watched_count,
	release_year, release_date, created_at, last_watched_at`

// SQLStore persists records and sync bookkeeping in MySQL or SQLite.
type SQLStore struct {
	db      *database.Database
	dialect database.Dialect
}

func NewSQLStore(db *database.Database) *SQLStore {
	return &SQLStore{db: db, dialect: db.Dialect}
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) ListRecords(ctx context.Context, userID string, kind RecordKind) ([]WatchRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM watch_records WHERE user_id = ?`
	args := []any{userID}
	if kind != "" {
		query += ` AND kind = ?`
		args = append(args, string(kind))
	}
	query += ` ORDER BY id`

	rows, err := s.db.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var records []WatchRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

func (s *SQLStore) GetRecord(ctx context.Context, id string) (*WatchRecord, error) {
	row := s.db.DB.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM watch_records WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*WatchRecord, error) {
	var (
		rec           WatchRecord
		kind, media   string
		overview      sql.NullString
		season        sql.NullInt64
		episode       sql.NullInt64
		episodes      sql.NullString
		createdAt     string
		lastWatchedAt string
	)
	err := row.Scan(
		&rec.ID,
		&rec.UserID,
		&kind,
		&rec.CrossRefID,
		&media,
		&rec.Title,
		&rec.PosterPath,
		&rec.BackdropPath,
		&overview,
		&rec.Rating,
		&rec.WatchPositionSeconds,
		&rec.DurationSeconds,
		&season,
		&episode,
		&episodes,
		&rec.RemoteWatchedCount,
		&rec.ReleaseYear,
		&rec.ReleaseDate,
		&createdAt,
		&lastWatchedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Kind = RecordKind(kind)
	rec.MediaType = MediaType(media)
	rec.Overview = overview.String
	if season.Valid {
		v := int(season.Int64)
		rec.Season = &v
	}
	if episode.Valid {
		v := int(episode.Int64)
		rec.Episode = &v
	}
	if episodes.Valid && episodes.String != "" {
		if err := json.Unmarshal([]byte(episodes.String), &rec.EpisodesWatched); err != nil {
			return nil, fmt.Errorf("decode episodes_watched for %s: %w", rec.ID, err)
		}
	}
	rec.CreatedAt = parseTime(createdAt)
	rec.LastWatchedAt = parseTime(lastWatchedAt)
	return &rec, nil
}

func (s *SQLStore) UpsertRecord(ctx context.Context, id, userID string, kind RecordKind, patch RecordPatch) error {
	cols := []string{"id", "user_id", "kind"}
	args := []any{id, userID, string(kind)}
	var updates []string

	set := func(col string, v any) {
		cols = append(cols, col)
		args = append(args, v)
		updates = append(updates, col)
	}

	if patch.CrossRefID != nil {
		set("cross_ref_id", *patch.CrossRefID)
	}
	if patch.MediaType != nil {
		set("media_type", string(*patch.MediaType))
	}
	if patch.Title != nil {
		set("title", *patch.Title)
	}
	if patch.PosterPath != nil {
		set("poster_path", *patch.PosterPath)
	}
	if patch.BackdropPath != nil {
		set("backdrop_path", *patch.BackdropPath)
	}
	if patch.Overview != nil {
		set("overview", *patch.Overview)
	}
	if patch.Rating != nil {
		set("rating", *patch.Rating)
	}
	if patch.WatchPositionSeconds != nil {
		set("watch_position_seconds", *patch.WatchPositionSeconds)
	}
	if patch.DurationSeconds != nil {
		set("duration_seconds", *patch.DurationSeconds)
	}
	if patch.Season != nil {
		set("season", *patch.Season)
	}
	if patch.Episode != nil {
		set("episode", *patch.Episode)
	}
	if patch.EpisodesWatched != nil {
		encoded, err := json.Marshal(patch.EpisodesWatched)
		if err != nil {
			return fmt.Errorf("encode episodes_watched: %w", err)
		}
		set("episodes_watched", string(encoded))
	}
	if patch.RemoteWatchedCount != nil {
		set("remote_watched_count", *patch.RemoteWatchedCount)
	}
	if patch.ReleaseYear != nil {
		set("release_year", *patch.ReleaseYear)
	}
	if patch.ReleaseDate != nil {
		set("release_date", *patch.ReleaseDate)
	}
	if patch.CreatedAt != nil {
		set("created_at", formatTime(*patch.CreatedAt))
	}
	if patch.LastWatchedAt != nil {
		set("last_watched_at", formatTime(*patch.LastWatchedAt))
	}

	query := s.dialect.Upsert("watch_records", []string{"id"}, cols, updates)
	if _, err := s.db.DB.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert record %s: %w", id, err)
	}
	return nil
}

func (s *SQLStore) GetSyncState(ctx context.Context, userID string) (*SyncState, error) {
	query := `SELECT user_id, last_sync_at, is_syncing, last_result, updated_at FROM sync_state WHERE user_id = ?`

	var (
		state      SyncState
		lastSyncAt sql.NullString
		lastResult sql.NullString
		updatedAt  string
	)
	err := s.db.DB.QueryRowContext(ctx, query, userID).Scan(
		&state.UserID,
		&lastSyncAt,
		&state.IsSyncing,
		&lastResult,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if lastSyncAt.Valid && lastSyncAt.String != "" {
		t := parseTime(lastSyncAt.String)
		state.LastSyncAt = &t
	}
	if lastResult.Valid && lastResult.String != "" {
		var res SyncResult
		if err := json.Unmarshal([]byte(lastResult.String), &res); err != nil {
			logger.Log.Warn("Discarding unreadable last sync result", zap.String("userID", userID), zap.Error(err))
		} else {
			state.LastResult = &res
		}
	}
	state.UpdatedAt = parseTime(updatedAt)
	return &state, nil
}

func (s *SQLStore) MergeSyncState(ctx context.Context, userID string, update SyncStateUpdate) error {
	cols := []string{"user_id", "updated_at"}
	args := []any{userID, formatTime(time.Now())}
	updates := []string{"updated_at"}

	if update.LastSyncAt != nil {
		cols = append(cols, "last_sync_at")
		args = append(args, formatTime(*update.LastSyncAt))
		updates = append(updates, "last_sync_at")
	}
	if update.IsSyncing != nil {
		cols = append(cols, "is_syncing")
		args = append(args, *update.IsSyncing)
		updates = append(updates, "is_syncing")
	}
	if update.LastResult != nil {
		encoded, err := json.Marshal(update.LastResult)
		if err != nil {
			return fmt.Errorf("encode last result: %w", err)
		}
		cols = append(cols, "last_result")
		args = append(args, string(encoded))
		updates = append(updates, "last_result")
	}

	query := s.dialect.Upsert("sync_state", []string{"user_id"}, cols, updates)
	_, err := s.db.DB.ExecContext(ctx, query, args...)
	return err
}

func (s *SQLStore) CreateSyncHistory(ctx context.Context, history *SyncHistory) error {
	query := `INSERT INTO sync_history (id, user_id, started_at, completed_at, imported, exported, merged, error_count, status, error_message)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.DB.ExecContext(ctx, query,
		history.ID,
		history.UserID,
		formatTime(history.StartedAt),
		nullTime(history.CompletedAt),
		history.Imported,
		history.Exported,
		history.Merged,
		history.ErrorCount,
		history.Status,
		nullString(history.ErrorMessage),
	)
	return err
}

func (s *SQLStore) UpdateSyncHistory(ctx context.Context, history *SyncHistory) error {
	query := `UPDATE sync_history SET completed_at = ?, imported = ?, exported = ?, merged = ?, error_count = ?, status = ?, error_message = ?
			  WHERE id = ?`

	_, err := s.db.DB.ExecContext(ctx, query,
		nullTime(history.CompletedAt),
		history.Imported,
		history.Exported,
		history.Merged,
		history.ErrorCount,
		history.Status,
		nullString(history.ErrorMessage),
		history.ID,
	)
	return err
}

func (s *SQLStore) GetSyncHistory(ctx context.Context, userID string, limit, offset int) ([]*SyncHistory, error) {
	query := `SELECT id, user_id, started_at, completed_at, imported, exported, merged, error_count, status, error_message
			  FROM sync_history WHERE user_id = ? ORDER BY started_at DESC LIMIT ? OFFSET ?`

	rows, err := s.db.DB.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []*SyncHistory
	for rows.Next() {
		var (
			h           SyncHistory
			startedAt   string
			completedAt sql.NullString
			errMsg      sql.NullString
		)
		err := rows.Scan(
			&h.ID,
			&h.UserID,
			&startedAt,
			&completedAt,
			&h.Imported,
			&h.Exported,
			&h.Merged,
			&h.ErrorCount,
			&h.Status,
			&errMsg,
		)
		if err != nil {
			return nil, err
		}
		h.StartedAt = parseTime(startedAt)
		if completedAt.Valid && completedAt.String != "" {
			t := parseTime(completedAt.String)
			h.CompletedAt = &t
		}
		h.ErrorMessage = errMsg.String
		history = append(history, &h)
	}

	return history, rows.Err()
}

func (s *SQLStore) SaveTrackerLink(ctx context.Context, link TrackerLink) error {
	if link.UpdatedAt.IsZero() {
		link.UpdatedAt = time.Now()
	}
	cols := []string{"user_id", "access_token", "updated_at"}
	query := s.dialect.Upsert("tracker_links", []string{"user_id"}, cols, cols[1:])
	_, err := s.db.DB.ExecContext(ctx, query, link.UserID, link.AccessToken, formatTime(link.UpdatedAt))
	return err
}

func (s *SQLStore) GetTrackerLink(ctx context.Context, userID string) (*TrackerLink, error) {
	var (
		link      TrackerLink
		updatedAt string
	)
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT user_id, access_token, updated_at FROM tracker_links WHERE user_id = ?`, userID,
	).Scan(&link.UserID, &link.AccessToken, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	link.UpdatedAt = parseTime(updatedAt)
	return &link, nil
}

func (s *SQLStore) ListTrackerLinks(ctx context.Context) ([]TrackerLink, error) {
	rows, err := s.db.DB.QueryContext(ctx, `SELECT user_id, access_token, updated_at FROM tracker_links ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var links []TrackerLink
	for rows.Next() {
		var (
			link      TrackerLink
			updatedAt string
		)
		if err := rows.Scan(&link.UserID, &link.AccessToken, &updatedAt); err != nil {
			return nil, err
		}
		link.UpdatedAt = parseTime(updatedAt)
		links = append(links, link)
	}
	return links, rows.Err()
}

func (s *SQLStore) DeleteTrackerLink(ctx context.Context, userID string) error {
	_, err := s.db.DB.ExecContext(ctx, `DELETE FROM tracker_links WHERE user_id = ?`, userID)
	return err
}

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
