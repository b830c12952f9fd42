package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"go.uber.org/zap"

	"watch-sync-service/internal/logger"
)

const defaultBaseURL = "https://api.simkl.com"

// ErrCheckInInProgress is returned by CheckIn when the tracker already has a
// check-in running for the user (HTTP 409). It is not a failure.
var ErrCheckInInProgress = errors.New("check-in already in progress")

// StatusError is a non-2xx tracker response.
type StatusError struct {
	Code   int
	Status string
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("tracker request failed: %s - %s", e.Status, e.Body)
}

// Client talks to the tracking service API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	clientID   string
	attempts   uint
	retryDelay time.Duration
}

// NewClient creates a tracker client. timeout bounds every request and
// maxRetries is the number of extra attempts after a retryable failure.
func NewClient(baseURL, clientID string, timeout time.Duration, maxRetries uint) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		clientID:   clientID,
		attempts:   maxRetries + 1,
		retryDelay: 300 * time.Millisecond,
	}
}

func (c *Client) setHeaders(req *http.Request, accessToken string) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("simkl-api-key", c.clientID)
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
}

// do sends the request built by newReq, retrying transport errors and 429
// responses with exponential backoff. 5xx responses are retried only when
// retryServerErrors is set: a non-idempotent request may have been applied
// before the server failed. The caller owns the response body.
func (c *Client) do(ctx context.Context, retryServerErrors bool, newReq func() (*http.Request, error)) (*http.Response, error) {
	var resp *http.Response
	err := retry.Do(
		func() error {
			req, err := newReq()
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("create request: %w", err))
			}
			r, err := c.httpClient.Do(req)
			if err != nil {
				return fmt.Errorf("tracker api request: %w", err)
			}
			if r.StatusCode == http.StatusTooManyRequests || (retryServerErrors && r.StatusCode >= 500) {
				body, _ := io.ReadAll(io.LimitReader(r.Body, 1024))
				r.Body.Close()
				return &StatusError{Code: r.StatusCode, Status: r.Status, Body: string(body)}
			}
			resp = r
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(c.retryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logger.Log.Debug("Retrying tracker request", zap.Uint("attempt", n+1), zap.Error(err))
		}),
	)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// ListItems returns the user's items of one kind with the given status.
func (c *Client) ListItems(ctx context.Context, accessToken string, kind Kind, status Status) ([]Item, error) {
	url := fmt.Sprintf("%s/sync/all-items/%s/%s?extended=full&episode_watched_at=yes", c.baseURL, kind.listPath(), status)

	resp, err := c.do(ctx, true, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		c.setHeaders(req, accessToken)
		return req, nil
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &StatusError{Code: resp.StatusCode, Status: resp.Status, Body: string(body)}
	}

	var list listResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	var raw []rawItem
	switch kind {
	case KindMovie:
		raw = list.Movies
	case KindShow:
		raw = list.Shows
	default:
		raw = list.Anime
	}

	items := make([]Item, 0, len(raw))
	for _, r := range raw {
		item, ok := r.toItem(kind, status)
		if !ok {
			logger.Log.Debug("Skipping tracker item without media descriptor",
				zap.String("kind", string(kind)), zap.String("status", string(status)))
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

// CheckIn records a watch event for a movie or an episode.
func (c *Client) CheckIn(ctx context.Context, accessToken string, payload CheckIn) error {
	reqBody, err := encodeCheckIn(payload)
	if err != nil {
		return err
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	resp, err := c.do(ctx, false, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/checkin", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		c.setHeaders(req, accessToken)
		return req, nil
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
		return nil
	case http.StatusConflict:
		return ErrCheckInInProgress
	default:
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &StatusError{Code: resp.StatusCode, Status: resp.Status, Body: string(respBody)}
	}
}
