// Package upstream fetches subject record graphs and subject listings from
// an upstream FHIR R4 server.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"

	"github.com/healthflow/fhirsync/internal/platform/fhir"
)

const maxErrorBody = 512

// Config configures a Client.
type Config struct {
	BaseURL string
	// Timeout bounds a single HTTP attempt.
	Timeout time.Duration
	// FetchTimeout bounds one logical fetch including paging and retries.
	FetchTimeout time.Duration
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	// PageLimit caps the number of "next" links followed per fetch.
	PageLimit   int
	BearerToken string
}

// Client talks to the upstream FHIR server. Idempotent GETs are retried at
// the transport level on connection errors, 429 and 5xx; everything above
// that is the caller's decision.
type Client struct {
	base   *url.URL
	cfg    Config
	http   *retryablehttp.Client
	logger zerolog.Logger
}

type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client, for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http.HTTPClient = hc }
}

func NewClient(cfg Config, logger zerolog.Logger, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/") + "/")
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("upstream: invalid base url %q", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryWaitMin <= 0 {
		cfg.RetryWaitMin = 500 * time.Millisecond
	}
	if cfg.RetryWaitMax <= 0 {
		cfg.RetryWaitMax = 10 * time.Second
	}
	if cfg.PageLimit <= 0 {
		cfg.PageLimit = 50
	}

	log := logger.With().Str("component", "upstream").Logger()

	rc := retryablehttp.NewClient()
	rc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	rc.RetryMax = cfg.RetryMax
	rc.RetryWaitMin = cfg.RetryWaitMin
	rc.RetryWaitMax = cfg.RetryWaitMax
	rc.Logger = leveledLogger{log: log.Level(zerolog.WarnLevel)}
	rc.RequestLogHook = requestHook(log)
	rc.ResponseLogHook = responseHook(log)
	// Hand the final response back instead of a generic "giving up" error
	// so status codes can be classified.
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	c := &Client{base: base, cfg: cfg, http: rc, logger: log}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the normalized upstream base.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// EverythingURL is the $everything URL for a subject.
func (c *Client) EverythingURL(subjectID string) string {
	return c.resolve("Patient/" + url.PathEscape(subjectID) + "/$everything")
}

// FetchSubjectEverything returns the subject's full record graph. Paged
// results are concatenated in order, up to the configured page limit.
func (c *Client) FetchSubjectEverything(ctx context.Context, subjectID string) (_ *fhir.Bundle, err error) {
	if subjectID == "" {
		return nil, fmt.Errorf("subject id is required")
	}
	ctx, cancel := c.fetchContext(ctx)
	defer cancel()

	target := c.EverythingURL(subjectID)
	start := time.Now()
	defer func() { logDuration(c.logger, "everything", subjectID, start, err) }()

	bundle, err := c.getBundle(ctx, target)
	if err != nil {
		return nil, err
	}

	next := bundle.NextURL()
	for pages := 1; next != "" && pages <= c.cfg.PageLimit; pages++ {
		page, err := c.getBundle(ctx, c.resolve(next))
		if err != nil {
			return nil, err
		}
		bundle.Append(page)
		next = page.NextURL()
	}
	if next != "" {
		c.logger.Warn().Str("subject_id", subjectID).Int("page_limit", c.cfg.PageLimit).
			Msg("page limit reached, result truncated")
	}
	bundle.Link = nil
	if bundle.Total == nil {
		n := len(bundle.Entry)
		bundle.Total = &n
	}
	return bundle, nil
}

// ListSubjects returns up to limit Patient ids in the order the upstream
// lists them. Non-Patient entries are skipped.
func (c *Client) ListSubjects(ctx context.Context, limit int) (_ []string, err error) {
	if limit <= 0 {
		return nil, nil
	}
	ctx, cancel := c.fetchContext(ctx)
	defer cancel()

	start := time.Now()
	defer func() { logDuration(c.logger, "list", "Patient", start, err) }()

	ids := make([]string, 0, limit)
	seen := make(map[string]struct{}, limit)
	target := c.resolve("Patient?_count=" + strconv.Itoa(limit))

	for pages := 0; target != "" && len(ids) < limit && pages <= c.cfg.PageLimit; pages++ {
		page, err := c.getBundle(ctx, target)
		if err != nil {
			return nil, err
		}
		for _, e := range page.Entries() {
			if e.Resource.ResourceType != "Patient" || e.Resource.ID == "" {
				continue
			}
			if _, dup := seen[e.Resource.ID]; dup {
				continue
			}
			seen[e.Resource.ID] = struct{}{}
			ids = append(ids, e.Resource.ID)
			if len(ids) == limit {
				break
			}
		}
		target = ""
		if next := page.NextURL(); next != "" {
			target = c.resolve(next)
		}
	}
	return ids, nil
}

func (c *Client) fetchContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.FetchTimeout > 0 {
		return context.WithTimeout(ctx, c.cfg.FetchTimeout)
	}
	return context.WithCancel(ctx)
}

// resolve turns a path or a server-provided link into an absolute URL.
func (c *Client) resolve(ref string) string {
	u, err := url.Parse(ref)
	if err != nil {
		return c.base.String() + strings.TrimLeft(ref, "/")
	}
	if u.IsAbs() {
		return u.String()
	}
	return c.base.ResolveReference(u).String()
}

func (c *Client) getBundle(ctx context.Context, target string) (*fhir.Bundle, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &TransportError{URL: target, Err: err}
	}
	req.Header.Set("Accept", "application/fhir+json")
	if c.cfg.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.BearerToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return nil, &TransportError{URL: target, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("%w: %s", ErrNotFound, target)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &TransportError{URL: target, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return nil, &TransportError{URL: target, Err: err}
	}

	bundle, err := fhir.DecodeBundle(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformedResponse, target, err)
	}
	return bundle, nil
}

// IsTimeout reports whether err is an upstream deadline expiry.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
