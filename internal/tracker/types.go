package tracker

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"watch-sync-service/internal/store"
)

// Kind tags which media descriptor a tracker item wraps.
type Kind string

const (
	KindMovie Kind = "movie"
	KindShow  Kind = "show"
	KindAnime Kind = "anime"
)

// Kinds lists every media kind the tracker serves.
var Kinds = []Kind{KindMovie, KindShow, KindAnime}

func (k Kind) listPath() string {
	switch k {
	case KindMovie:
		return "movies"
	case KindShow:
		return "shows"
	default:
		return "anime"
	}
}

type Status string

const (
	StatusWatching  Status = "watching"
	StatusCompleted Status = "completed"
	StatusPlanned   Status = "plantowatch"
	StatusOnHold    Status = "hold"
	StatusDropped   Status = "dropped"
)

// ParseStatus accepts both the wire names and their long forms
// ("planned", "onHold").
func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "watching":
		return StatusWatching, nil
	case "completed":
		return StatusCompleted, nil
	case "plantowatch", "planned":
		return StatusPlanned, nil
	case "hold", "onhold":
		return StatusOnHold, nil
	case "dropped":
		return StatusDropped, nil
	default:
		return "", fmt.Errorf("unknown tracker status %q", s)
	}
}

// IDs holds the external identifiers of a media item. TMDB is the
// cross-reference id shared with the metadata provider.
type IDs struct {
	Simkl   int64  `json:"simkl,omitempty"`
	TMDB    int64  `json:"tmdb,omitempty"`
	IMDB    string `json:"imdb,omitempty"`
	TVDB    int64  `json:"tvdb,omitempty"`
	MAL     int64  `json:"mal,omitempty"`
	AniList int64  `json:"anilist,omitempty"`
}

// UnmarshalJSON tolerates ids sent either as numbers or as strings.
func (ids *IDs) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for key, v := range raw {
		switch key {
		case "simkl":
			ids.Simkl = flexInt(v)
		case "tmdb":
			ids.TMDB = flexInt(v)
		case "imdb":
			ids.IMDB = flexString(v)
		case "tvdb":
			ids.TVDB = flexInt(v)
		case "mal":
			ids.MAL = flexInt(v)
		case "anilist":
			ids.AniList = flexInt(v)
		}
	}
	return nil
}

func flexInt(v json.RawMessage) int64 {
	var n int64
	if err := json.Unmarshal(v, &n); err == nil {
		return n
	}
	s := flexString(v)
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func flexString(v json.RawMessage) string {
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(v, &n); err == nil {
		return n.String()
	}
	return ""
}

type Media struct {
	Title string `json:"title"`
	Year  int    `json:"year,omitempty"`
	IDs   IDs    `json:"ids"`
}

type Episode struct {
	Number    int        `json:"number"`
	WatchedAt *time.Time `json:"watched_at,omitempty"`
}

type Season struct {
	Number   int       `json:"number"`
	Episodes []Episode `json:"episodes"`
}

// Item is one entry of a tracker status list. Kind is fixed when the item is
// decoded, so callers never infer it from which descriptor is populated.
type Item struct {
	Kind          Kind
	Status        Status
	Media         Media
	LastWatchedAt *time.Time

	// Shows and anime only.
	WatchedEpisodesCount int
	TotalEpisodesCount   int
	LastWatched          string // shorthand such as "S02E05" or "E7"
	Seasons              []Season
}

// CrossRefID returns the id used to join tracker items with local records;
// 0 means the item carries none.
func (i Item) CrossRefID() int64 {
	return i.Media.IDs.TMDB
}

// MediaType maps the tracker kind onto the local media type.
func (i Item) MediaType() store.MediaType {
	if i.Kind == KindMovie {
		return store.MediaMovie
	}
	return store.MediaSeries
}

type rawItem struct {
	Status               string     `json:"status"`
	LastWatchedAt        *time.Time `json:"last_watched_at"`
	WatchedEpisodesCount int        `json:"watched_episodes_count"`
	TotalEpisodesCount   int        `json:"total_episodes_count"`
	LastWatched          string     `json:"last_watched"`
	Movie                *Media     `json:"movie"`
	Show                 *Media     `json:"show"`
	Anime                *Media     `json:"anime"`
	Seasons              []Season   `json:"seasons"`
}

type listResponse struct {
	Movies []rawItem `json:"movies"`
	Shows  []rawItem `json:"shows"`
	Anime  []rawItem `json:"anime"`
}

// toItem tags a raw entry by its populated descriptor. Anime lists wrap
// their entries in "show", so the list kind breaks that tie.
func (r rawItem) toItem(listKind Kind, fallback Status) (Item, bool) {
	item := Item{
		Status:               fallback,
		LastWatchedAt:        r.LastWatchedAt,
		WatchedEpisodesCount: r.WatchedEpisodesCount,
		TotalEpisodesCount:   r.TotalEpisodesCount,
		LastWatched:          r.LastWatched,
		Seasons:              r.Seasons,
	}
	if s, err := ParseStatus(r.Status); err == nil {
		item.Status = s
	}

	switch {
	case r.Movie != nil:
		item.Kind, item.Media = KindMovie, *r.Movie
	case r.Anime != nil:
		item.Kind, item.Media = KindAnime, *r.Anime
	case r.Show != nil && listKind == KindAnime:
		item.Kind, item.Media = KindAnime, *r.Show
	case r.Show != nil:
		item.Kind, item.Media = KindShow, *r.Show
	default:
		return Item{}, false
	}
	return item, true
}

// CheckIn is a check-in request: either a MovieCheckIn or a ShowCheckIn.
type CheckIn interface {
	checkIn()
}

type MovieCheckIn struct {
	Title string
	Year  *int
	IDs   IDs
}

// EpisodeNumber addresses one episode of a show.
type EpisodeNumber struct {
	Season int `json:"season"`
	Number int `json:"number"`
}

type ShowCheckIn struct {
	Title   string
	Year    *int
	IDs     IDs
	Episode *EpisodeNumber
}

func (MovieCheckIn) checkIn() {}
func (ShowCheckIn) checkIn()  {}

type checkInMedia struct {
	Title string `json:"title,omitempty"`
	Year  *int   `json:"year,omitempty"`
	IDs   IDs    `json:"ids"`
}

type checkInBody struct {
	Movie   *checkInMedia  `json:"movie,omitempty"`
	Show    *checkInMedia  `json:"show,omitempty"`
	Episode *EpisodeNumber `json:"episode,omitempty"`
}

func encodeCheckIn(payload CheckIn) (checkInBody, error) {
	switch p := payload.(type) {
	case MovieCheckIn:
		return checkInBody{Movie: &checkInMedia{Title: p.Title, Year: p.Year, IDs: p.IDs}}, nil
	case ShowCheckIn:
		return checkInBody{Show: &checkInMedia{Title: p.Title, Year: p.Year, IDs: p.IDs}, Episode: p.Episode}, nil
	default:
		return checkInBody{}, fmt.Errorf("unsupported check-in payload %T", payload)
	}
}
