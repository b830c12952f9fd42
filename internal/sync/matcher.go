package sync

import (
	"regexp"
	"strconv"

	"watch-sync-service/internal/store"
	"watch-sync-service/internal/tracker"
)

// movieWatchedThreshold is the completion fraction at or above which a local
// movie counts as watched.
const movieWatchedThreshold = 0.9

type matchKey struct {
	crossRefID int64
	mediaType  store.MediaType
}

// Classify pairs local records with remote items by (cross-ref id, media
// type) and sorts every item into import, merge or export. Pairs where the
// local side is at least as advanced are dropped as no-ops.
func Classify(local []store.WatchRecord, remote []tracker.Item) Plan {
	byKey := make(map[matchKey]store.WatchRecord, len(local))
	for _, rec := range local {
		if rec.CrossRefID == 0 {
			continue
		}
		k := matchKey{rec.CrossRefID, rec.MediaType}
		if existing, ok := byKey[k]; ok && (existing.Kind == store.KindHistory || rec.Kind != store.KindHistory) {
			continue
		}
		byKey[k] = rec
	}

	// The same title can come back from several status lists; keep the
	// most advanced entry at the position it was first seen.
	var order []matchKey
	remoteByKey := make(map[matchKey]tracker.Item, len(remote))
	for _, item := range remote {
		id := item.CrossRefID()
		if id == 0 {
			continue
		}
		k := matchKey{id, item.MediaType()}
		existing, ok := remoteByKey[k]
		if !ok {
			order = append(order, k)
			remoteByKey[k] = item
			continue
		}
		if moreAdvanced(item, existing) {
			remoteByKey[k] = item
		}
	}

	var plan Plan
	for _, k := range order {
		item := remoteByKey[k]
		rec, ok := byKey[k]
		if !ok {
			plan.ToImport = append(plan.ToImport, item)
			continue
		}
		if ShouldMerge(item, rec) {
			plan.ToMerge = append(plan.ToMerge, MergePair{Remote: item, Local: rec})
		}
	}

	exported := make(map[matchKey]bool)
	for _, rec := range local {
		if rec.Kind != store.KindHistory || rec.CrossRefID == 0 {
			continue
		}
		k := matchKey{rec.CrossRefID, rec.MediaType}
		if _, ok := remoteByKey[k]; ok || exported[k] {
			continue
		}
		exported[k] = true
		plan.ToExport = append(plan.ToExport, rec)
	}
	return plan
}

// ShouldMerge reports whether the remote item is ahead of the local record.
func ShouldMerge(remote tracker.Item, local store.WatchRecord) bool {
	if remote.MediaType() == store.MediaMovie {
		return remote.Status == tracker.StatusCompleted && CompletionFraction(local) < movieWatchedThreshold
	}
	return RemoteWatchedCount(remote) > LocalWatchedCount(local)
}

// LocalWatchedCount is the larger of the recorded episodes and the tracker
// count stored by the last sync.
func LocalWatchedCount(rec store.WatchRecord) int {
	return max(len(rec.EpisodesWatched), rec.RemoteWatchedCount)
}

// RemoteWatchedCount is the flat watched-episode count, or the size of the
// per-season breakdown when the flat count is missing.
func RemoteWatchedCount(item tracker.Item) int {
	if item.WatchedEpisodesCount > 0 {
		return item.WatchedEpisodesCount
	}
	n := 0
	for _, s := range item.Seasons {
		n += len(s.Episodes)
	}
	return n
}

func moreAdvanced(a, b tracker.Item) bool {
	if a.MediaType() == store.MediaMovie {
		return a.Status == tracker.StatusCompleted && b.Status != tracker.StatusCompleted
	}
	return RemoteWatchedCount(a) > RemoteWatchedCount(b)
}

var (
	seasonEpisodeRe = regexp.MustCompile(`(?i)^S(\d+)E(\d+)$`)
	episodeOnlyRe   = regexp.MustCompile(`(?i)^E(\d+)$`)
)

// LastWatchedEpisode returns the greatest (season, episode) with a watch
// timestamp in the item's breakdown, falling back to the "S1E2"/"E2"
// shorthand. It returns nil when neither yields an episode.
func LastWatchedEpisode(item tracker.Item) *EpisodeRef {
	var best *EpisodeRef
	for _, s := range item.Seasons {
		for _, ep := range s.Episodes {
			if ep.WatchedAt == nil {
				continue
			}
			if best == nil || s.Number > best.Season || (s.Number == best.Season && ep.Number > best.Episode) {
				best = &EpisodeRef{Season: s.Number, Episode: ep.Number}
			}
		}
	}
	if best != nil {
		return best
	}
	return parseEpisodeShorthand(item.LastWatched)
}

func parseEpisodeShorthand(s string) *EpisodeRef {
	if m := seasonEpisodeRe.FindStringSubmatch(s); m != nil {
		season, _ := strconv.Atoi(m[1])
		episode, _ := strconv.Atoi(m[2])
		return &EpisodeRef{Season: season, Episode: episode}
	}
	if m := episodeOnlyRe.FindStringSubmatch(s); m != nil {
		episode, _ := strconv.Atoi(m[1])
		return &EpisodeRef{Season: 1, Episode: episode}
	}
	return nil
}
