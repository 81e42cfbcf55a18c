// Package admission bounds the rate of sync requests per client identity
// with a fixed window counter per client. Windows reset when they expire and
// idle clients are evicted, so neither memory nor a past burst pins a client.
package admission

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Config holds the admission policy.
type Config struct {
	// Limit is the maximum number of admitted requests per window.
	Limit int
	// Window is the length of a counting window.
	Window time.Duration
	// Retention is how long a client's window is kept after its last request.
	// Defaults to ten windows.
	Retention time.Duration
	// MaxEntries caps the number of tracked clients. Zero means no cap.
	MaxEntries int
}

// Decision is the result of one admission check.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds, minimum 1 when
// the request was rejected.
func (d Decision) RetryAfterSeconds() int {
	if d.Allowed {
		return 0
	}
	secs := int((d.RetryAfter + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

type window struct {
	mu       sync.Mutex
	count    int
	start    time.Time
	lastSeen time.Time
	evicted  bool
}

// Controller tracks one window per client. Different clients never contend
// on the same window lock; the map lock is only taken for writes when a
// client is first seen or during eviction.
type Controller struct {
	cfg Config
	now func() time.Time

	mu      sync.RWMutex
	windows map[string]*window

	lastSweep atomic.Int64
}

type Option func(*Controller)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

func New(cfg Config, opts ...Option) *Controller {
	if cfg.Limit <= 0 {
		cfg.Limit = 1
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.Retention < cfg.Window {
		cfg.Retention = 10 * cfg.Window
	}

	c := &Controller{
		cfg:     cfg,
		now:     time.Now,
		windows: make(map[string]*window),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.lastSweep.Store(c.now().UnixNano())
	return c
}

func (c *Controller) Config() Config {
	return c.cfg
}

// Admit counts one request for clientID and reports whether it may proceed.
// Rejection is a normal outcome, never an error.
func (c *Controller) Admit(clientID string) Decision {
	now := c.now()
	c.maybeSweep(now)

	for {
		w := c.window(clientID, now)

		w.mu.Lock()
		if w.evicted {
			// Swept between lookup and lock; take a fresh entry.
			w.mu.Unlock()
			continue
		}

		if w.start.IsZero() || !now.Before(w.start.Add(c.cfg.Window)) {
			w.count = 0
			w.start = now
		}
		w.count++
		w.lastSeen = now

		d := Decision{
			Limit:   c.cfg.Limit,
			ResetAt: w.start.Add(c.cfg.Window),
		}
		if w.count > c.cfg.Limit {
			d.RetryAfter = d.ResetAt.Sub(now)
		} else {
			d.Allowed = true
			d.Remaining = c.cfg.Limit - w.count
		}
		w.mu.Unlock()
		return d
	}
}

func (c *Controller) window(clientID string, now time.Time) *window {
	c.mu.RLock()
	w, ok := c.windows[clientID]
	c.mu.RUnlock()
	if ok {
		return w
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if w, ok := c.windows[clientID]; ok {
		return w
	}

	if c.cfg.MaxEntries > 0 && len(c.windows) >= c.cfg.MaxEntries {
		c.sweepLocked(now)
		for len(c.windows) >= c.cfg.MaxEntries {
			c.evictOldestLocked()
		}
	}

	w = &window{lastSeen: now}
	c.windows[clientID] = w
	return w
}

func (c *Controller) maybeSweep(now time.Time) {
	last := c.lastSweep.Load()
	if now.UnixNano()-last < int64(c.cfg.Retention) {
		return
	}
	if c.lastSweep.CompareAndSwap(last, now.UnixNano()) {
		c.Sweep()
	}
}

// Sweep evicts every client idle for at least the retention period and
// returns how many were removed.
func (c *Controller) Sweep() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sweepLocked(now)
}

func (c *Controller) sweepLocked(now time.Time) int {
	removed := 0
	for id, w := range c.windows {
		w.mu.Lock()
		if now.Sub(w.lastSeen) >= c.cfg.Retention {
			w.evicted = true
			delete(c.windows, id)
			removed++
		}
		w.mu.Unlock()
	}
	return removed
}

func (c *Controller) evictOldestLocked() {
	var (
		oldestID string
		oldest   *window
		oldestAt time.Time
	)
	for id, w := range c.windows {
		w.mu.Lock()
		seen := w.lastSeen
		w.mu.Unlock()
		if oldest == nil || seen.Before(oldestAt) {
			oldestID, oldest, oldestAt = id, w, seen
		}
	}
	if oldest == nil {
		return
	}
	oldest.mu.Lock()
	oldest.evicted = true
	oldest.mu.Unlock()
	delete(c.windows, oldestID)
}

// Len returns the number of tracked clients.
func (c *Controller) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.windows)
}

// StartCleanup sweeps idle clients every interval until ctx is cancelled.
// It blocks, so call it in a goroutine.
func (c *Controller) StartCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = c.cfg.Window
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Sweep()
		}
	}
}
