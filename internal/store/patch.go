package store

// PatchFromRecord returns a patch that writes every field of rec.
func PatchFromRecord(rec WatchRecord) RecordPatch {
	p := RecordPatch{
		CrossRefID:           &rec.CrossRefID,
		MediaType:            &rec.MediaType,
		Title:                &rec.Title,
		PosterPath:           &rec.PosterPath,
		BackdropPath:         &rec.BackdropPath,
		Overview:             &rec.Overview,
		Rating:               &rec.Rating,
		WatchPositionSeconds: &rec.WatchPositionSeconds,
		DurationSeconds:      &rec.DurationSeconds,
		Season:               rec.Season,
		Episode:              rec.Episode,
		EpisodesWatched:      rec.EpisodesWatched,
		RemoteWatchedCount:   &rec.RemoteWatchedCount,
		ReleaseYear:          &rec.ReleaseYear,
		ReleaseDate:          &rec.ReleaseDate,
	}
	if !rec.CreatedAt.IsZero() {
		p.CreatedAt = &rec.CreatedAt
	}
	if !rec.LastWatchedAt.IsZero() {
		p.LastWatchedAt = &rec.LastWatchedAt
	}
	return p
}

// Apply merges the non-nil fields of p into r.
func (r *WatchRecord) Apply(p RecordPatch) {
	if p.CrossRefID != nil {
		r.CrossRefID = *p.CrossRefID
	}
	if p.MediaType != nil {
		r.MediaType = *p.MediaType
	}
	if p.Title != nil {
		r.Title = *p.Title
	}
	if p.PosterPath != nil {
		r.PosterPath = *p.PosterPath
	}
	if p.BackdropPath != nil {
		r.BackdropPath = *p.BackdropPath
	}
	if p.Overview != nil {
		r.Overview = *p.Overview
	}
	if p.Rating != nil {
		r.Rating = *p.Rating
	}
	if p.WatchPositionSeconds != nil {
		r.WatchPositionSeconds = *p.WatchPositionSeconds
	}
	if p.DurationSeconds != nil {
		r.DurationSeconds = *p.DurationSeconds
	}
	if p.Season != nil {
		v := *p.Season
		r.Season = &v
	}
	if p.Episode != nil {
		v := *p.Episode
		r.Episode = &v
	}
	if p.EpisodesWatched != nil {
		r.EpisodesWatched = append([]EpisodeWatch(nil), p.EpisodesWatched...)
	}
	if p.RemoteWatchedCount != nil {
		r.RemoteWatchedCount = *p.RemoteWatchedCount
	}
	if p.ReleaseYear != nil {
		r.ReleaseYear = *p.ReleaseYear
	}
	if p.ReleaseDate != nil {
		r.ReleaseDate = *p.ReleaseDate
	}
	if p.CreatedAt != nil {
		r.CreatedAt = *p.CreatedAt
	}
	if p.LastWatchedAt != nil {
		r.LastWatchedAt = *p.LastWatchedAt
	}
}
