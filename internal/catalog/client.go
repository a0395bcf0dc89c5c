// Package catalog fetches listings and documents from the remote creature
// catalog with bounded retry, and resolves the set of targets for a sync.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"pokeindex/internal/observability"
	"pokeindex/internal/platform/logger"
	"pokeindex/pkg/domain"
)

const (
	DefaultBaseURL       = "https://pokeapi.co/api/v2"
	DefaultUserAgent     = "pokeindex-sync/1.0"
	DefaultPageSize      = 200
	MaxPageSize          = 500
	DefaultDelay         = 200 * time.Millisecond
	DefaultMaxRetries    = 5
	DefaultBackoffFactor = 0.3
	DefaultMaxBackoff    = 2 * time.Minute
	DefaultTimeout       = 30 * time.Second

	maxBodyBytes = 32 << 20
)

// Request kinds reported to the metrics recorder.
const (
	KindListing  = "listing"
	KindDocument = "document"
)

// Config tunes the client. Zero values take the defaults above.
type Config struct {
	BaseURL       string
	UserAgent     string
	Delay         time.Duration
	MaxRetries    int
	BackoffFactor float64
	MaxBackoff    time.Duration
	Timeout       time.Duration
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.BaseURL) == "" {
		c.BaseURL = DefaultBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.Delay < 0 {
		c.Delay = 0
	}
	if c.MaxRetries < 1 {
		c.MaxRetries = 1
	}
	if c.BackoffFactor < 0 {
		c.BackoffFactor = 0
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = DefaultMaxBackoff
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL:       DefaultBaseURL,
		UserAgent:     DefaultUserAgent,
		Delay:         DefaultDelay,
		MaxRetries:    DefaultMaxRetries,
		BackoffFactor: DefaultBackoffFactor,
		MaxBackoff:    DefaultMaxBackoff,
		Timeout:       DefaultTimeout,
	}
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Client talks to the catalog API.
type Client struct {
	cfg     Config
	http    *http.Client
	log     *logger.Logger
	metrics observability.Recorder
	sleep   Sleeper
}

// Option customizes a Client.
type Option func(*Client)

func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }
func WithLogger(l *logger.Logger) Option    { return func(c *Client) { c.log = l } }
func WithRecorder(r observability.Recorder) Option {
	return func(c *Client) { c.metrics = observability.OrNop(r) }
}

// WithSleeper replaces the wait used for backoff and rate limiting.
func WithSleeper(s Sleeper) Option { return func(c *Client) { c.sleep = s } }

// NewClient constructs a client.
func NewClient(cfg Config, opts ...Option) *Client {
	cfg = cfg.withDefaults()
	c := &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		log:     logger.Nop(),
		metrics: observability.Nop{},
		sleep:   sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With("component", "catalog")
	return c
}

// Config returns the effective configuration.
func (c *Client) Config() Config { return c.cfg }

// Target is one entity to sync.
type Target struct {
	Identifier string
	URL        string
}

// Page is one listing page.
type Page struct {
	Count   int
	Entries []Target
	Next    string
}

type listingPayload struct {
	Count   int        `json:"count"`
	Next    *string    `json:"next"`
	Results []NamedRef `json:"results"`
}

// ClampPageSize bounds a requested page size to [1, MaxPageSize].
func ClampPageSize(size int) int {
	if size < 1 {
		return 1
	}
	if size > MaxPageSize {
		return MaxPageSize
	}
	return size
}

// PageURL builds the listing URL for an offset and page size.
func (c *Client) PageURL(offset, pageSize int) string {
	if offset < 0 {
		offset = 0
	}
	q := url.Values{}
	q.Set("offset", strconv.Itoa(offset))
	q.Set("limit", strconv.Itoa(ClampPageSize(pageSize)))
	return c.cfg.BaseURL + "/pokemon?" + q.Encode()
}

// EntityURL builds the document URL for an identifier.
func (c *Client) EntityURL(identifier string) string {
	return c.cfg.BaseURL + "/pokemon/" + url.PathEscape(identifier)
}

// ListPage fetches one listing page.
func (c *Client) ListPage(ctx context.Context, offset, pageSize int) (Page, error) {
	return c.ListPageURL(ctx, c.PageURL(offset, pageSize))
}

// ListPageURL fetches the listing page at a cursor URL.
func (c *Client) ListPageURL(ctx context.Context, pageURL string) (Page, error) {
	body, err := c.get(ctx, KindListing, pageURL)
	if err != nil {
		return Page{}, err
	}
	var payload listingPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return Page{}, &domain.ParseError{What: "listing " + pageURL, Err: err}
	}
	page := Page{Count: payload.Count, Entries: make([]Target, 0, len(payload.Results))}
	for i, entry := range payload.Results {
		name := entry.NameOr("")
		link := entry.URLOr("")
		if name == "" && link == "" {
			return Page{}, &domain.ParseError{What: fmt.Sprintf("listing %s result %d", pageURL, i), Err: errMissingField}
		}
		if link == "" {
			link = c.EntityURL(name)
		}
		if name == "" {
			name = link
		}
		page.Entries = append(page.Entries, Target{Identifier: name, URL: link})
	}
	if payload.Next != nil {
		page.Next = *payload.Next
	}
	return page, nil
}

// FetchDocument fetches a document and waits the configured delay afterwards.
// The body is returned as-is; decoding is left to the caller.
func (c *Client) FetchDocument(ctx context.Context, docURL string) (json.RawMessage, error) {
	body, err := c.get(ctx, KindDocument, docURL)
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return nil, &domain.ParseError{What: "document " + docURL, Err: errors.New("invalid json")}
	}
	if c.cfg.Delay > 0 {
		if err := c.sleep(ctx, c.cfg.Delay); err != nil {
			return nil, err
		}
	}
	return body, nil
}

// get performs a GET with retry. Transient failures are retried up to
// MaxRetries total attempts; anything else returns immediately.
func (c *Client) get(ctx context.Context, kind, target string) ([]byte, error) {
	var last *domain.TransientError
	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		body, retryAfter, err := c.attempt(ctx, kind, target)
		if err == nil {
			return body, nil
		}
		if !errors.As(err, &last) {
			return nil, err
		}
		if attempt == c.cfg.MaxRetries {
			break
		}
		delay := c.backoff(attempt, retryAfter)
		c.metrics.ObserveRetry(ctx, kind)
		c.log.Warn("retrying catalog request", "url", target, "attempt", attempt, "status", last.Status, "delay", delay.String())
		if err := c.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
	return nil, &domain.FatalFetchError{URL: target, Status: last.Status, Attempts: c.cfg.MaxRetries, Err: last}
}

func (c *Client) attempt(ctx context.Context, kind, target string) ([]byte, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, 0, &domain.FatalFetchError{URL: target, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.ObserveRequest(ctx, kind, 0, time.Since(start))
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, 0, ctxErr
		}
		return nil, 0, &domain.TransientError{URL: target, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()
	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	c.metrics.ObserveRequest(ctx, kind, resp.StatusCode, time.Since(start))

	switch {
	case IsRetryableStatus(resp.StatusCode):
		return nil, retryAfter(resp), &domain.TransientError{URL: target, Status: resp.StatusCode}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, 0, &domain.FatalFetchError{URL: target, Status: resp.StatusCode, Attempts: 1, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}
	if readErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, 0, ctxErr
		}
		return nil, 0, &domain.TransientError{URL: target, Err: fmt.Errorf("read body: %w", readErr)}
	}
	return body, 0, nil
}

// IsRetryableStatus reports whether the status is worth another attempt.
func IsRetryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// backoff is factor * 2^(attempt-1) seconds, capped at MaxBackoff. A larger
// Retry-After from the server wins.
func (c *Client) backoff(attempt int, retryAfter time.Duration) time.Duration {
	secs := c.cfg.BackoffFactor * math.Pow(2, float64(attempt-1))
	delay := time.Duration(secs * float64(time.Second))
	if retryAfter > delay {
		delay = retryAfter
	}
	if delay > c.cfg.MaxBackoff {
		delay = c.cfg.MaxBackoff
	}
	return delay
}

func retryAfter(resp *http.Response) time.Duration {
	ra := strings.TrimSpace(resp.Header.Get("Retry-After"))
	if ra == "" {
		return 0
	}
	if secs, err := strconv.Atoi(ra); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(ra); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
