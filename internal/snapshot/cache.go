// File: internal/snapshot/cache.go

// Package snapshot owns perception: it captures immutable element-tree
// snapshots through the platform driver, caches the most recent capture per
// application inside a freshness window, buffers host-reported change events,
// and diffs captures by structural identity. Every component that needs to
// see the UI reads through this package, never through the driver directly,
// so one resolve+execute cycle works from a consistent view.
package snapshot

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/xkilldash9x/pilot-cli/api/schemas"
)

const (
	// DefaultFreshness is the window inside which a cached snapshot is
	// served without touching the platform driver.
	DefaultFreshness = 400 * time.Millisecond

	// DefaultReadTimeout bounds a single tree read.
	DefaultReadTimeout = 10 * time.Second

	// DefaultEventBuffer caps buffered change events per application.
	DefaultEventBuffer = 256
)

// Options tunes a Cache. Zero values fall back to the package defaults.
type Options struct {
	Freshness   time.Duration
	ReadTimeout time.Duration
	EventBuffer int
}

// Cache is the single-slot-per-application snapshot cache. Entries for
// different applications never block each other; concurrent captures of the
// same application collapse into one driver call.
type Cache struct {
	driver schemas.PlatformDriver
	logger *zap.Logger
	opts   Options

	mu      sync.Mutex
	entries map[string]*entry
	group   singleflight.Group
}

// entry is the per-application cache slot plus its bounded event buffer.
type entry struct {
	mu      sync.Mutex
	snap    *schemas.Snapshot
	invalid bool
	events  []schemas.ChangeEvent
	dropped int
}

// NewCache creates a snapshot cache over the given platform driver.
func NewCache(driver schemas.PlatformDriver, logger *zap.Logger, opts Options) *Cache {
	if opts.Freshness <= 0 {
		opts.Freshness = DefaultFreshness
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = DefaultReadTimeout
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = DefaultEventBuffer
	}
	return &Cache{
		driver:  driver,
		logger:  logger.Named("snapshot"),
		opts:    opts,
		entries: make(map[string]*entry),
	}
}

func (c *Cache) entryFor(appID string) *entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[appID]
	if !ok {
		e = &entry{}
		c.entries[appID] = e
	}
	return e
}

// Capture returns the live snapshot for appID, serving the cached one when it
// is younger than the freshness window and not invalidated. Otherwise it
// performs a fresh capture, drains the buffered change events into the new
// snapshot, and replaces the slot.
func (c *Cache) Capture(ctx context.Context, appID string) (*schemas.Snapshot, error) {
	e := c.entryFor(appID)

	e.mu.Lock()
	if e.snap != nil && !e.invalid && time.Since(e.snap.CapturedAt) < c.opts.Freshness {
		snap := e.snap
		e.mu.Unlock()
		return snap, nil
	}
	e.mu.Unlock()

	v, err, _ := c.group.Do(appID, func() (interface{}, error) {
		return c.capture(ctx, appID, e)
	})
	if err != nil {
		return nil, err
	}
	return v.(*schemas.Snapshot), nil
}

// capture performs the driver read and seals the result. Callers hold no
// locks; the slot is swapped under the entry lock at the end.
func (c *Cache) capture(ctx context.Context, appID string, e *entry) (*schemas.Snapshot, error) {
	readCtx, cancel := context.WithTimeout(ctx, c.opts.ReadTimeout)
	defer cancel()

	start := time.Now()
	roots, err := c.driver.ReadTree(readCtx, appID)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &schemas.TimeoutError{Op: "tree read", Cause: err}
		}
		return nil, err
	}

	snap := &schemas.Snapshot{
		AppID:      appID,
		Roots:      roots,
		CapturedAt: time.Now(),
	}
	Seal(snap)

	// Window titles are best-effort; perception should not fail because the
	// window manager query did.
	if wins, werr := c.driver.ListWindows(readCtx, appID); werr == nil {
		snap.Windows = wins
	}

	e.mu.Lock()
	snap.Events = e.events
	if e.dropped > 0 {
		c.logger.Warn("Change event buffer overflowed between captures",
			zap.String("app_id", appID), zap.Int("dropped", e.dropped))
	}
	e.events = nil
	e.dropped = 0
	e.snap = snap
	e.invalid = false
	e.mu.Unlock()

	c.logger.Debug("Captured snapshot",
		zap.String("app_id", appID),
		zap.Int("elements", countElements(roots)),
		zap.Duration("elapsed", time.Since(start)))
	return snap, nil
}

// Invalidate forces the next Capture for appID to bypass the cache. The
// executor calls it after every dispatched action.
func (c *Cache) Invalidate(appID string) {
	e := c.entryFor(appID)
	e.mu.Lock()
	e.invalid = true
	e.mu.Unlock()
}

// AddEvent appends one host-reported mutation event to the bounded
// per-application buffer. When the buffer is full the oldest event is
// dropped; the drop count is surfaced at the next capture.
func (c *Cache) AddEvent(appID string, ev schemas.ChangeEvent) {
	e := c.entryFor(appID)
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.events) >= c.opts.EventBuffer {
		e.events = e.events[1:]
		e.dropped++
	}
	e.events = append(e.events, ev)
}

func countElements(roots []*schemas.Element) int {
	n := 0
	for _, r := range roots {
		r.Walk(func(*schemas.Element) bool { n++; return true })
	}
	return n
}
