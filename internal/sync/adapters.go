package sync

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"watch-sync-service/internal/metadata"
	"watch-sync-service/internal/store"
	"watch-sync-service/internal/tracker"
)

const (
	// defaultMovieSeconds stands in for an unknown movie runtime when a
	// movie is marked fully watched.
	defaultMovieSeconds = 2 * 60 * 60

	minReleaseYear = 1900
	maxReleaseYear = 2100

	unknownTitle = "(unknown title)"
	// untitled is stored when neither the metadata provider nor the tracker
	// supplies a title.
	untitled = "Unknown"
)

// CompletionFraction is watch position over duration, clamped to [0, 1].
// Unknown or non-finite durations count as no progress.
func CompletionFraction(rec store.WatchRecord) float64 {
	if rec.DurationSeconds <= 0 || math.IsNaN(rec.DurationSeconds) || math.IsInf(rec.DurationSeconds, 0) {
		return 0
	}
	f := rec.WatchPositionSeconds / rec.DurationSeconds
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0
	}
	return math.Min(f, 1)
}

// MergePatch computes the fields a remote item overwrites on its local match.
func MergePatch(remote tracker.Item, local store.WatchRecord, now time.Time) store.RecordPatch {
	lastWatched := now
	if remote.LastWatchedAt != nil {
		lastWatched = *remote.LastWatchedAt
	}
	patch := store.RecordPatch{LastWatchedAt: &lastWatched}

	if ep := LastWatchedEpisode(remote); ep != nil {
		patch.Season = &ep.Season
		patch.Episode = &ep.Episode
	}

	if remote.MediaType() == store.MediaMovie {
		duration := local.DurationSeconds
		if duration <= 0 || math.IsNaN(duration) || math.IsInf(duration, 0) {
			duration = defaultMovieSeconds
			patch.DurationSeconds = &duration
		}
		patch.WatchPositionSeconds = &duration
		return patch
	}

	episodes := mergeEpisodes(local.EpisodesWatched, remote, lastWatched)
	if len(episodes) > len(local.EpisodesWatched) {
		patch.EpisodesWatched = episodes
	}
	if count := RemoteWatchedCount(remote); count > local.RemoteWatchedCount {
		patch.RemoteWatchedCount = &count
	}
	return patch
}

// ImportRecord builds the local record for a remote-only item. details may
// be nil when the metadata lookup failed.
func ImportRecord(userID string, item tracker.Item, details *metadata.Details, now time.Time) store.WatchRecord {
	lastWatched := now
	if item.LastWatchedAt != nil {
		lastWatched = *item.LastWatchedAt
	}

	rec := store.WatchRecord{
		ID:            store.RecordID(userID, item.MediaType(), item.CrossRefID()),
		UserID:        userID,
		Kind:          store.KindHistory,
		CrossRefID:    item.CrossRefID(),
		MediaType:     item.MediaType(),
		Title:         item.Media.Title,
		CreatedAt:     now,
		LastWatchedAt: lastWatched,
	}
	if item.Media.Year > 0 {
		rec.ReleaseYear = strconv.Itoa(item.Media.Year)
	}
	if details != nil {
		if details.Title != "" {
			rec.Title = details.Title
		}
		rec.PosterPath = details.PosterPath
		rec.BackdropPath = details.BackdropPath
		rec.Overview = details.Overview
		rec.Rating = details.Rating
		rec.ReleaseDate = details.ReleaseDate
	}
	if rec.Title == "" {
		rec.Title = untitled
	}

	if rec.MediaType == store.MediaMovie {
		if item.Status == tracker.StatusCompleted {
			rec.WatchPositionSeconds = defaultMovieSeconds
			rec.DurationSeconds = defaultMovieSeconds
		}
		return rec
	}

	if ep := LastWatchedEpisode(item); ep != nil {
		season, episode := ep.Season, ep.Episode
		rec.Season = &season
		rec.Episode = &episode
	}
	rec.EpisodesWatched = mergeEpisodes(nil, item, lastWatched)
	rec.RemoteWatchedCount = RemoteWatchedCount(item)
	return rec
}

// mergeEpisodes unions local episodes with the remote breakdown, ordered by
// season then episode. Local entries win on overlap.
func mergeEpisodes(local []store.EpisodeWatch, remote tracker.Item, fallback time.Time) []store.EpisodeWatch {
	seen := make(map[EpisodeRef]bool, len(local))
	merged := make([]store.EpisodeWatch, 0, len(local))
	for _, ep := range local {
		seen[EpisodeRef{ep.Season, ep.Episode}] = true
		merged = append(merged, ep)
	}
	for _, s := range remote.Seasons {
		for _, ep := range s.Episodes {
			ref := EpisodeRef{s.Number, ep.Number}
			if seen[ref] {
				continue
			}
			seen[ref] = true
			watchedAt := fallback
			if ep.WatchedAt != nil {
				watchedAt = *ep.WatchedAt
			}
			merged = append(merged, store.EpisodeWatch{Season: s.Number, Episode: ep.Number, WatchedAt: watchedAt})
		}
	}
	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Season != merged[j].Season {
			return merged[i].Season < merged[j].Season
		}
		return merged[i].Episode < merged[j].Episode
	})
	return merged
}

var releaseDateLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"2006/01/02",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"02 Jan 2006",
}

// ExportYear derives a release year for a check-in: an explicit year first,
// then the 4-digit prefix of the release date, then a full date parse. It
// returns nil rather than an out-of-range or unparseable year.
func ExportYear(rec store.WatchRecord) *int {
	if y, err := strconv.Atoi(strings.TrimSpace(rec.ReleaseYear)); err == nil && validYear(y) {
		return &y
	}

	date := strings.TrimSpace(rec.ReleaseDate)
	if len(date) >= 4 {
		if y, err := strconv.Atoi(date[:4]); err == nil && validYear(y) {
			return &y
		}
	}
	for _, layout := range releaseDateLayouts {
		if t, err := time.Parse(layout, date); err == nil {
			if y := t.Year(); validYear(y) {
				return &y
			}
			break
		}
	}
	return nil
}

func validYear(y int) bool {
	return y >= minReleaseYear && y <= maxReleaseYear
}

// CheckInFor builds the tracker check-in for a local-only history record.
func CheckInFor(rec store.WatchRecord, year *int) tracker.CheckIn {
	ids := tracker.IDs{TMDB: rec.CrossRefID}
	if rec.MediaType == store.MediaMovie {
		return tracker.MovieCheckIn{Title: rec.Title, Year: year, IDs: ids}
	}

	show := tracker.ShowCheckIn{Title: rec.Title, Year: year, IDs: ids}
	if rec.Season != nil && rec.Episode != nil {
		show.Episode = &tracker.EpisodeNumber{Season: *rec.Season, Number: *rec.Episode}
	} else if n := len(rec.EpisodesWatched); n > 0 {
		last := rec.EpisodesWatched[0]
		for _, ep := range rec.EpisodesWatched[1:] {
			if ep.Season > last.Season || (ep.Season == last.Season && ep.Episode > last.Episode) {
				last = ep
			}
		}
		show.Episode = &tracker.EpisodeNumber{Season: last.Season, Number: last.Episode}
	}
	return show
}

// BestTitle is the title used to name a remote item in error messages.
func BestTitle(item tracker.Item) string {
	if t := strings.TrimSpace(item.Media.Title); t != "" {
		return t
	}
	return unknownTitle
}

func recordTitle(rec store.WatchRecord) string {
	if t := strings.TrimSpace(rec.Title); t != "" {
		return t
	}
	return unknownTitle
}
