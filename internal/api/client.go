package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultTimeout bounds a single backend request.
const DefaultTimeout = 10 * time.Second

// Client interface for testability
type Client interface {
	ListComments(ctx context.Context, activityID int64, since string) ([]Comment, error)
	CreateComment(ctx context.Context, activityID int64, content string) (*Comment, error)
	GetActivity(ctx context.Context, activityID int64) (*Activity, error)
	UpdateActivity(ctx context.Context, activityID int64, patch ActivityPatch) (*Activity, error)
}

// RequestObserver receives the outcome of every request.
type RequestObserver interface {
	ObserveRequest(method, route string, status int, elapsed time.Duration)
}

type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
	observer   RequestObserver
	logger     *zap.Logger

	mu    sync.RWMutex
	token string
}

func NewClient(baseURL, token string, ratePerSec int, timeout time.Duration, logger *zap.Logger) *HTTPClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if ratePerSec < 1 {
		ratePerSec = 1
	}

	transport := &http.Transport{
		MaxIdleConns:       10,
		MaxConnsPerHost:    4,
		IdleConnTimeout:    90 * time.Second,
		DisableCompression: false,
	}

	return &HTTPClient{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
		baseURL: strings.TrimSuffix(baseURL, "/"),
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec*2),
		logger:  logger,
		token:   strings.TrimSpace(token),
	}
}

// SetObserver attaches a request observer. Call before first use.
func (c *HTTPClient) SetObserver(o RequestObserver) {
	c.observer = o
}

// SetToken swaps the bearer credential used for subsequent requests.
func (c *HTTPClient) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = strings.TrimSpace(token)
}

func (c *HTTPClient) currentToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// ListComments fetches comments created after since. An empty since fetches
// the whole thread.
func (c *HTTPClient) ListComments(ctx context.Context, activityID int64, since string) ([]Comment, error) {
	path := fmt.Sprintf("/activities/%d/comments", activityID)
	if since != "" {
		path += "?" + url.Values{"since": {since}}.Encode()
	}

	var comments []Comment
	if err := c.do(ctx, http.MethodGet, path, "/activities/{id}/comments", nil, &comments); err != nil {
		return nil, err
	}
	return comments, nil
}

// CreateComment posts a new comment authored by the session user.
func (c *HTTPClient) CreateComment(ctx context.Context, activityID int64, content string) (*Comment, error) {
	var body createCommentRequest
	body.Comment.Content = content

	var comment Comment
	path := fmt.Sprintf("/activities/%d/comments", activityID)
	if err := c.do(ctx, http.MethodPost, path, "/activities/{id}/comments", body, &comment); err != nil {
		return nil, err
	}
	if comment.ID == 0 {
		return nil, fmt.Errorf("%w: created comment has no id", ErrMalformed)
	}
	return &comment, nil
}

// GetActivity fetches the full activity snapshot.
func (c *HTTPClient) GetActivity(ctx context.Context, activityID int64) (*Activity, error) {
	var activity Activity
	path := fmt.Sprintf("/activities/%d", activityID)
	if err := c.do(ctx, http.MethodGet, path, "/activities/{id}", nil, &activity); err != nil {
		return nil, err
	}
	if activity.ID == 0 {
		return nil, fmt.Errorf("%w: activity has no id", ErrMalformed)
	}
	return &activity, nil
}

// UpdateActivity sends a partial update and returns the resulting snapshot.
func (c *HTTPClient) UpdateActivity(ctx context.Context, activityID int64, patch ActivityPatch) (*Activity, error) {
	var activity Activity
	path := fmt.Sprintf("/activities/%d", activityID)
	if err := c.do(ctx, http.MethodPatch, path, "/activities/{id}", patch, &activity); err != nil {
		return nil, err
	}
	if activity.ID == 0 {
		return nil, fmt.Errorf("%w: activity has no id", ErrMalformed)
	}
	return &activity, nil
}

// do performs one authenticated request and decodes the JSON response into out.
// An empty body leaves out untouched.
func (c *HTTPClient) do(ctx context.Context, method, path, route string, in, out any) error {
	token := c.currentToken()
	if token == "" {
		return ErrNoCredential
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug("requesting", zap.String("method", method), zap.String("path", path))

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(method, route, 0, start)
		return fmt.Errorf("executing request: %w", err)
	}

	// Read body before closing for error messages
	data, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	c.observe(method, route, resp.StatusCode, start)

	if readErr != nil {
		return fmt.Errorf("reading response: %w", readErr)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Code: resp.StatusCode, Body: truncate(string(data), 256)}
	}

	if len(bytes.TrimSpace(data)) == 0 || out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

func (c *HTTPClient) observe(method, route string, status int, start time.Time) {
	if c.observer != nil {
		c.observer.ObserveRequest(method, route, status, time.Since(start))
	}
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Compile-time interface verification
var _ Client = (*HTTPClient)(nil)
