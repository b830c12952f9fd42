package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"watch-sync-service/internal/logger"
	"watch-sync-service/internal/metadata"
	"watch-sync-service/internal/store"
	"watch-sync-service/internal/tracker"
)

// Options tune a Syncer. Zero values fall back to the defaults.
type Options struct {
	Kinds    []tracker.Kind
	Statuses []tracker.Status
	// Workers bounds per-item writes within a pass; 1 processes items
	// one at a time.
	Workers int
	Now     func() time.Time
}

// Syncer runs bidirectional sync passes between the local record store and
// the remote tracker.
type Syncer struct {
	records  RecordStore
	tracker  Tracker
	metadata MetadataProvider
	kinds    []tracker.Kind
	statuses []tracker.Status
	workers  int
	now      func() time.Time
}

// NewSyncer wires the collaborators. metadata may be nil, in which case
// imports use the titles the tracker reports.
func NewSyncer(records RecordStore, remote Tracker, meta MetadataProvider, opts Options) *Syncer {
	s := &Syncer{
		records:  records,
		tracker:  remote,
		metadata: meta,
		kinds:    opts.Kinds,
		statuses: opts.Statuses,
		workers:  opts.Workers,
		now:      opts.Now,
	}
	if len(s.kinds) == 0 {
		s.kinds = tracker.Kinds
	}
	if len(s.statuses) == 0 {
		s.statuses = []tracker.Status{tracker.StatusCompleted, tracker.StatusWatching}
	}
	if s.workers < 1 {
		s.workers = 1
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// PerformSync runs one full pass for userID. It never fails as a whole:
// per-item failures are collected in Result.Errors, and only an unreadable
// snapshot ends the pass early with zero counters.
func (s *Syncer) PerformSync(ctx context.Context, userID, token string) Result {
	result := Result{Errors: []string{}}
	log := logger.Log.With(zap.String("userID", userID))

	var (
		local  []store.WatchRecord
		remote []tracker.Item
	)
	p := pool.New().WithErrors().WithContext(ctx)
	p.Go(func(ctx context.Context) error {
		// Every kind is loaded: favorites and watchlist entries count as
		// present when matching, though only history is exported.
		recs, err := s.records.ListRecords(ctx, userID, "")
		if err != nil {
			return fmt.Errorf("load local records: %w", err)
		}
		local = recs
		return nil
	})
	p.Go(func(ctx context.Context) error {
		items, err := s.fetchRemote(ctx, token)
		if err != nil {
			return fmt.Errorf("load tracker lists: %w", err)
		}
		remote = items
		return nil
	})
	if err := p.Wait(); err != nil {
		log.Error("Sync snapshot failed", zap.Error(err))
		result.Errors = append(result.Errors, fmt.Sprintf("Sync failed: %v", err))
		return result
	}

	plan := Classify(local, remote)
	log.Info("Sync plan",
		zap.Int("local", len(local)),
		zap.Int("remote", len(remote)),
		zap.Int("import", len(plan.ToImport)),
		zap.Int("merge", len(plan.ToMerge)),
		zap.Int("export", len(plan.ToExport)),
	)

	acc := &accumulator{result: &result}

	runPass(ctx, s.workers, plan.ToImport, func(ctx context.Context, item tracker.Item) {
		s.importItem(ctx, userID, item, acc)
	})
	runPass(ctx, s.workers, plan.ToMerge, func(ctx context.Context, pair MergePair) {
		s.mergePair(ctx, userID, pair, acc)
	})
	runPass(ctx, s.workers, plan.ToExport, func(ctx context.Context, rec store.WatchRecord) {
		s.exportRecord(ctx, token, rec, acc)
	})

	log.Info("Sync finished",
		zap.Int("imported", result.Imported),
		zap.Int("merged", result.Merged),
		zap.Int("exported", result.Exported),
		zap.Int("errors", len(result.Errors)),
	)
	return result
}

// fetchRemote loads every configured (kind, status) list concurrently. A
// failing list degrades to empty so one bad list does not blank the others.
func (s *Syncer) fetchRemote(ctx context.Context, token string) ([]tracker.Item, error) {
	type combo struct {
		kind   tracker.Kind
		status tracker.Status
	}
	var combos []combo
	for _, k := range s.kinds {
		for _, st := range s.statuses {
			combos = append(combos, combo{k, st})
		}
	}

	lists := make([][]tracker.Item, len(combos))
	p := pool.New()
	for i, c := range combos {
		p.Go(func() {
			items, err := s.tracker.ListItems(ctx, token, c.kind, c.status)
			if err != nil {
				logger.Log.Warn("Tracker list unavailable, treating as empty",
					zap.String("kind", string(c.kind)),
					zap.String("status", string(c.status)),
					zap.Error(err),
				)
				return
			}
			lists[i] = items
		})
	}
	p.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var all []tracker.Item
	for _, l := range lists {
		all = append(all, l...)
	}
	return all, nil
}

func (s *Syncer) importItem(ctx context.Context, userID string, item tracker.Item, acc *accumulator) {
	var details *metadata.Details
	if s.metadata != nil {
		d, err := s.metadata.Resolve(ctx, item.CrossRefID(), item.MediaType())
		if err != nil {
			logger.Log.Debug("Metadata lookup failed, using tracker title",
				zap.Int64("crossRefID", item.CrossRefID()), zap.Error(err))
		} else {
			details = &d
		}
	}

	rec := ImportRecord(userID, item, details, s.now())
	if err := s.records.UpsertRecord(ctx, rec.ID, userID, rec.Kind, store.PatchFromRecord(rec)); err != nil {
		title := rec.Title
		if title == untitled {
			title = BestTitle(item)
		}
		acc.fail("import", title, err)
		return
	}
	acc.add(func(r *Result) { r.Imported++ })
}

func (s *Syncer) mergePair(ctx context.Context, userID string, pair MergePair, acc *accumulator) {
	patch := MergePatch(pair.Remote, pair.Local, s.now())
	if err := s.records.UpsertRecord(ctx, pair.Local.ID, userID, pair.Local.Kind, patch); err != nil {
		title := recordTitle(pair.Local)
		if title == unknownTitle {
			title = BestTitle(pair.Remote)
		}
		acc.fail("merge", title, err)
		return
	}
	acc.add(func(r *Result) { r.Merged++ })
}

func (s *Syncer) exportRecord(ctx context.Context, token string, rec store.WatchRecord, acc *accumulator) {
	payload := CheckInFor(rec, ExportYear(rec))
	err := s.tracker.CheckIn(ctx, token, payload)
	switch {
	case errors.Is(err, tracker.ErrCheckInInProgress):
		logger.Log.Debug("Check-in already in progress, skipping", zap.String("recordID", rec.ID))
	case err != nil:
		acc.fail("export", recordTitle(rec), err)
	default:
		acc.add(func(r *Result) { r.Exported++ })
	}
}
