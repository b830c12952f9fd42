package sync

import (
	"context"
	"errors"
	gosync "sync"
	"time"

	"watch-sync-service/internal/metadata"
	"watch-sync-service/internal/store"
	"watch-sync-service/internal/tracker"
)

type fakeRecords struct {
	mu      gosync.Mutex
	order   []string
	records map[string]store.WatchRecord
	listErr error
	failOn  map[string]error
	upserts int
}

func newFakeRecords(recs ...store.WatchRecord) *fakeRecords {
	f := &fakeRecords{records: make(map[string]store.WatchRecord), failOn: make(map[string]error)}
	for _, r := range recs {
		f.order = append(f.order, r.ID)
		f.records[r.ID] = r
	}
	return f
}

func (f *fakeRecords) ListRecords(_ context.Context, userID string, kind store.RecordKind) ([]store.WatchRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []store.WatchRecord
	for _, id := range f.order {
		r := f.records[id]
		if r.UserID != userID || (kind != "" && r.Kind != kind) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeRecords) UpsertRecord(_ context.Context, id, userID string, kind store.RecordKind, patch store.RecordPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failOn[id]; err != nil {
		return err
	}
	rec, ok := f.records[id]
	if !ok {
		rec = store.WatchRecord{ID: id, UserID: userID, Kind: kind}
		f.order = append(f.order, id)
	}
	rec.Apply(patch)
	f.records[id] = rec
	f.upserts++
	return nil
}

func (f *fakeRecords) get(id string) (store.WatchRecord, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.records[id]
	return r, ok
}

type fakeTracker struct {
	mu         gosync.Mutex
	items      []tracker.Item
	listErr    map[tracker.Kind]error
	checkInErr func(tracker.CheckIn) error
	checkIns   []tracker.CheckIn
	tokens     []string
	// release, when set, blocks ListItems until closed.
	release chan struct{}
}

func (f *fakeTracker) ListItems(ctx context.Context, token string, kind tracker.Kind, status tracker.Status) ([]tracker.Item, error) {
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens = append(f.tokens, token)
	if err := f.listErr[kind]; err != nil {
		return nil, err
	}
	var out []tracker.Item
	for _, it := range f.items {
		if it.Kind == kind && it.Status == status {
			out = append(out, it)
		}
	}
	return out, nil
}

func (f *fakeTracker) CheckIn(_ context.Context, _ string, payload tracker.CheckIn) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.checkInErr != nil {
		if err := f.checkInErr(payload); err != nil {
			return err
		}
	}
	f.checkIns = append(f.checkIns, payload)
	return nil
}

type fakeMetadata struct {
	details map[int64]metadata.Details
	err     error
}

func (f *fakeMetadata) Resolve(_ context.Context, id int64, _ store.MediaType) (metadata.Details, error) {
	if f.err != nil {
		return metadata.Details{}, f.err
	}
	d, ok := f.details[id]
	if !ok {
		return metadata.Details{}, errors.New("not found")
	}
	return d, nil
}

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return testNow }

func ptr[T any](v T) *T { return &v }

func movieItem(id int64, title string, status tracker.Status) tracker.Item {
	return tracker.Item{
		Kind:   tracker.KindMovie,
		Status: status,
		Media:  tracker.Media{Title: title, IDs: tracker.IDs{TMDB: id}},
	}
}

func showItem(id int64, title string, status tracker.Status, watched int) tracker.Item {
	return tracker.Item{
		Kind:                 tracker.KindShow,
		Status:               status,
		Media:                tracker.Media{Title: title, IDs: tracker.IDs{TMDB: id}},
		WatchedEpisodesCount: watched,
	}
}

func localMovie(userID string, id int64, title string, position, duration float64) store.WatchRecord {
	return store.WatchRecord{
		ID:                   store.RecordID(userID, store.MediaMovie, id),
		UserID:               userID,
		Kind:                 store.KindHistory,
		CrossRefID:           id,
		MediaType:            store.MediaMovie,
		Title:                title,
		WatchPositionSeconds: position,
		DurationSeconds:      duration,
	}
}

func localSeries(userID string, id int64, title string, episodes int) store.WatchRecord {
	rec := store.WatchRecord{
		ID:         store.RecordID(userID, store.MediaSeries, id),
		UserID:     userID,
		Kind:       store.KindHistory,
		CrossRefID: id,
		MediaType:  store.MediaSeries,
		Title:      title,
	}
	for i := 1; i <= episodes; i++ {
		rec.EpisodesWatched = append(rec.EpisodesWatched, store.EpisodeWatch{Season: 1, Episode: i, WatchedAt: testNow})
	}
	return rec
}
