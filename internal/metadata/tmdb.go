package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"watch-sync-service/internal/logger"
	"watch-sync-service/internal/store"
)

const (
	tmdbBaseURL = "https://api.themoviedb.org/3"
	// Use optimized image sizes instead of "original"
	tmdbImageBaseURL = "https://image.tmdb.org/t/p"
	tmdbPosterSize   = "w500"
	tmdbBackdropSize = "w1280"
)

var ErrNotConfigured = errors.New("metadata provider has no api key")

// Details is the display metadata of a title.
type Details struct {
	Title        string
	PosterPath   string
	BackdropPath string
	Overview     string
	Rating       float64
	ReleaseDate  string
}

// TMDBClient resolves TMDB ids to display metadata.
type TMDBClient struct {
	apiKey   string
	language string
	baseURL  string
	httpc    *http.Client
	cache    *lru.Cache[string, Details]
	attempts uint
	backoff  time.Duration
}

func NewTMDBClient(baseURL, apiKey, language string, cacheSize int, timeout time.Duration) (*TMDBClient, error) {
	if baseURL == "" {
		baseURL = tmdbBaseURL
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if cacheSize <= 0 {
		cacheSize = 1024
	}
	cache, err := lru.New[string, Details](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create metadata cache: %w", err)
	}
	return &TMDBClient{
		apiKey:   strings.TrimSpace(apiKey),
		language: language,
		baseURL:  strings.TrimRight(baseURL, "/"),
		httpc:    &http.Client{Timeout: timeout},
		cache:    cache,
		attempts: 3,
		backoff:  300 * time.Millisecond,
	}, nil
}

type tmdbTitle struct {
	Title        string  `json:"title"`
	Name         string  `json:"name"`
	Overview     string  `json:"overview"`
	PosterPath   string  `json:"poster_path"`
	BackdropPath string  `json:"backdrop_path"`
	VoteAverage  float64 `json:"vote_average"`
	ReleaseDate  string  `json:"release_date"`
	FirstAirDate string  `json:"first_air_date"`
}

// Resolve looks up a movie or series by TMDB id.
func (c *TMDBClient) Resolve(ctx context.Context, id int64, mediaType store.MediaType) (Details, error) {
	if c.apiKey == "" {
		return Details{}, ErrNotConfigured
	}

	path := "movie"
	if mediaType == store.MediaSeries {
		path = "tv"
	}
	key := fmt.Sprintf("%s:%d", path, id)
	if d, ok := c.cache.Get(key); ok {
		return d, nil
	}

	q := url.Values{}
	q.Set("api_key", c.apiKey)
	if c.language != "" {
		q.Set("language", c.language)
	}
	endpoint := fmt.Sprintf("%s/%s/%d?%s", c.baseURL, path, id, q.Encode())

	var t tmdbTitle
	if err := c.doGET(ctx, endpoint, &t); err != nil {
		return Details{}, err
	}

	d := Details{
		Title:        t.Title,
		Overview:     t.Overview,
		PosterPath:   imageURL(tmdbPosterSize, t.PosterPath),
		BackdropPath: imageURL(tmdbBackdropSize, t.BackdropPath),
		Rating:       t.VoteAverage,
		ReleaseDate:  t.ReleaseDate,
	}
	if d.Title == "" {
		d.Title = t.Name
	}
	if d.ReleaseDate == "" {
		d.ReleaseDate = t.FirstAirDate
	}
	c.cache.Add(key, d)
	return d, nil
}

// doGET performs an HTTP GET with retry and exponential backoff on
// transport errors, 429 and 5xx.
func (c *TMDBClient) doGET(ctx context.Context, endpoint string, v any) error {
	return retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
			if err != nil {
				return retry.Unrecoverable(err)
			}

			resp, err := c.httpc.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				return fmt.Errorf("tmdb request failed: %s", resp.Status)
			}
			if resp.StatusCode >= 400 {
				return retry.Unrecoverable(fmt.Errorf("tmdb request failed: %s", resp.Status))
			}
			if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
				return retry.Unrecoverable(fmt.Errorf("decode tmdb response: %w", err))
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(c.backoff),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logger.Log.Debug("Retrying tmdb request", zap.Uint("attempt", n+1), zap.Error(err))
		}),
	)
}

func imageURL(size, p string) string {
	if p == "" {
		return ""
	}
	return tmdbImageBaseURL + "/" + size + p
}
