// Package webhook delivers sync events to HTTP endpoints as signed JSON
// POSTs. Each request carries an HMAC-SHA256 signature of the body so
// receivers can verify it came from this service.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"

	"github.com/healthflow/fhirsync/internal/platform/events"
)

type Config struct {
	URLs   []string
	Secret string
	// Events limits delivery to these event types. Empty means all.
	Events   []string
	Timeout  time.Duration
	RetryMax int
}

// Publisher implements events.Publisher over HTTP.
type Publisher struct {
	urls   []string
	secret string
	events map[string]bool
	http   *retryablehttp.Client
	now    func() time.Time
	logger zerolog.Logger
}

type Option func(*Publisher)

// WithHTTPClient overrides the underlying http.Client, for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Publisher) { p.http.HTTPClient = c }
}

func New(cfg Config, logger zerolog.Logger, opts ...Option) (*Publisher, error) {
	if len(cfg.URLs) == 0 {
		return nil, fmt.Errorf("at least one webhook url is required")
	}
	for _, u := range cfg.URLs {
		if err := validateURL(u); err != nil {
			return nil, fmt.Errorf("webhook %q: %w", u, err)
		}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}

	log := logger.With().Str("component", "webhook").Logger()

	rc := retryablehttp.NewClient()
	rc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	rc.RetryMax = cfg.RetryMax
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.Logger = nil
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	p := &Publisher{
		urls:   cfg.URLs,
		secret: cfg.Secret,
		http:   rc,
		now:    time.Now,
		logger: log,
	}
	if len(cfg.Events) > 0 {
		p.events = make(map[string]bool, len(cfg.Events))
		for _, e := range cfg.Events {
			p.events[e] = true
		}
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func validateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("url scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("url host is required")
	}
	return nil
}

// SignPayload returns the hex HMAC-SHA256 of payload under secret.
func SignPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a signature produced by SignPayload. The
// "sha256=" prefix sent on the wire is accepted.
func VerifySignature(payload []byte, secret, signature string) bool {
	signature = strings.TrimPrefix(signature, "sha256=")
	return hmac.Equal([]byte(SignPayload(payload, secret)), []byte(signature))
}

// Publish posts e to every endpoint. All endpoints are attempted; the
// returned error joins the failures.
func (p *Publisher) Publish(ctx context.Context, e events.Event) error {
	if p.events != nil && !p.events[e.Type] {
		return nil
	}
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	deliveryID := uuid.NewString()
	var errs []error
	for _, u := range p.urls {
		if err := p.deliver(ctx, u, deliveryID, e.Type, body); err != nil {
			p.logger.Warn().Err(err).Str("url", u).Str("type", e.Type).Msg("webhook delivery failed")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *Publisher) deliver(ctx context.Context, target, deliveryID, eventType string, body []byte) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-ID", deliveryID)
	req.Header.Set("X-Webhook-Event", eventType)
	req.Header.Set("X-Webhook-Timestamp", p.now().UTC().Format(time.RFC3339))
	if p.secret != "" {
		req.Header.Set("X-Webhook-Signature", "sha256="+SignPayload(body, p.secret))
	}

	start := time.Now()
	resp, err := p.http.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", target, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("post %s: status %d", target, resp.StatusCode)
	}
	p.logger.Debug().
		Str("url", target).
		Str("type", eventType).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("webhook delivered")
	return nil
}
