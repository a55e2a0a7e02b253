// Package platform implements the PlatformDriver collaborator on Chromium
// via chromedp. The accessibility tree exposed over CDP is the semantic
// element source; input goes through the CDP input domain. The browser
// process is launched lazily on the first read and shut down with a grace
// period, following the allocator lifecycle used elsewhere in this codebase.
package platform

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/pilot-cli/api/schemas"
)

const (
	defaultNavigationTimeout = 30 * time.Second
	shutdownGracePeriod      = 15 * time.Second

	// treeReadsPerSecond throttles AX tree reads so a tight perceive loop
	// cannot hammer the DevTools socket.
	treeReadsPerSecond = 4
)

type Options struct {
	Headless  bool
	UserAgent string
	// ExtraArgs are appended to the allocator flags verbatim.
	ExtraArgs map[string]any
}

// handleInfo pins an opaque element handle to a concrete point on screen.
// Handles are replaced wholesale on every tree read; a dispatch against a
// handle from an older read is stale by definition.
type handleInfo struct {
	appID  string
	bounds schemas.Rect
}

type tab struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// Driver is the chromedp-backed PlatformDriver. One appID maps to one
// browser tab; appIDs that look like URLs are opened on first use.
type Driver struct {
	log     *zap.Logger
	opts    Options
	limiter *rate.Limiter

	initOnce    sync.Once
	initErr     error
	allocCtx    context.Context
	allocCancel context.CancelFunc

	mu      sync.Mutex
	tabs    map[string]*tab
	handles map[string]handleInfo
}

func NewDriver(logger *zap.Logger, opts Options) *Driver {
	return &Driver{
		log:     logger.Named("platform"),
		opts:    opts,
		limiter: rate.NewLimiter(rate.Limit(treeReadsPerSecond), 1),
		tabs:    make(map[string]*tab),
		handles: make(map[string]handleInfo),
	}
}

// initialize launches the browser process. Deferred until the first use so
// commands that never touch a live application stay cheap.
func (d *Driver) initialize(ctx context.Context) error {
	d.initOnce.Do(func() {
		d.log.Info("Initializing browser allocator...")

		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", d.opts.Headless),
			chromedp.Flag("disable-extensions", true),
			chromedp.Flag("disable-dev-shm-usage", true),
		)
		if d.opts.UserAgent != "" {
			opts = append(opts, chromedp.UserAgent(d.opts.UserAgent))
		}
		for flag, value := range d.opts.ExtraArgs {
			opts = append(opts, chromedp.Flag(flag, value))
		}

		// The allocator outlives the caller's request context.
		allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)
		d.allocCtx = allocCtx
		d.allocCancel = cancel

		testCtx, cancelTest := context.WithTimeout(allocCtx, defaultNavigationTimeout)
		defer cancelTest()
		probe, cancelProbe := chromedp.NewContext(testCtx)
		defer cancelProbe()

		if err := chromedp.Run(probe, chromedp.Navigate("about:blank")); err != nil {
			d.allocCancel()
			d.initErr = fmt.Errorf("browser failed to start or respond: %w", err)
			return
		}
		d.log.Info("Browser launched successfully and is responsive.")
	})
	return d.initErr
}

// tabFor returns the tab bound to appID, opening one when the appID carries
// a URL scheme.
func (d *Driver) tabFor(ctx context.Context, appID string) (*tab, error) {
	if err := d.initialize(ctx); err != nil {
		return nil, err
	}

	d.mu.Lock()
	if t, ok := d.tabs[appID]; ok {
		d.mu.Unlock()
		return t, nil
	}
	d.mu.Unlock()

	if !strings.Contains(appID, "://") {
		return nil, fmt.Errorf("unknown application %q: open it first or use a URL", appID)
	}

	tabCtx, cancel := chromedp.NewContext(d.allocCtx)
	navCtx, cancelNav := context.WithTimeout(ctx, defaultNavigationTimeout)
	defer cancelNav()
	if err := chromedp.Run(tabCtx, chromedp.Navigate(appID)); err != nil && navCtx.Err() == nil {
		cancel()
		return nil, fmt.Errorf("failed to open %q: %w", appID, err)
	}

	t := &tab{ctx: tabCtx, cancel: cancel}
	d.mu.Lock()
	d.tabs[appID] = t
	d.mu.Unlock()

	d.log.Info("Opened application surface", zap.String("app_id", appID))
	return t, nil
}

// registerHandles swaps in the handle set of a fresh tree read, dropping
// every handle the previous read issued for this app.
func (d *Driver) registerHandles(appID string, fresh map[string]handleInfo) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for h, info := range d.handles {
		if info.appID == appID {
			delete(d.handles, h)
		}
	}
	for h, info := range fresh {
		d.handles[h] = info
	}
}

func (d *Driver) lookupHandle(handle string) (handleInfo, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	info, ok := d.handles[handle]
	return info, ok
}

func newHandle() string {
	return uuid.NewString()
}

// ListWindows reports the page title and viewport of the app's tab. A
// browser tab is a single top-level window.
func (d *Driver) ListWindows(ctx context.Context, appID string) ([]schemas.WindowInfo, error) {
	t, err := d.tabFor(ctx, appID)
	if err != nil {
		return nil, err
	}

	var title string
	var width, height int64
	err = runWithCtx(ctx, t, chromedp.Title(&title), chromedp.Evaluate(`window.innerWidth`, &width), chromedp.Evaluate(`window.innerHeight`, &height))
	if err != nil {
		return nil, fmt.Errorf("failed to read window info: %w", err)
	}
	return []schemas.WindowInfo{{
		Title:  title,
		Bounds: schemas.Rect{Width: float64(width), Height: float64(height)},
	}}, nil
}

// Screenshot captures the app's viewport as PNG bytes, for the vision
// fallback.
func (d *Driver) Screenshot(ctx context.Context, appID string) ([]byte, error) {
	t, err := d.tabFor(ctx, appID)
	if err != nil {
		return nil, err
	}

	var buf []byte
	if err := runWithCtx(ctx, t, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("failed to capture screenshot: %w", err)
	}
	return buf, nil
}

// Shutdown closes every tab and tears down the browser process, bounded by
// the grace period.
func (d *Driver) Shutdown() {
	done := make(chan struct{})
	go func() {
		defer close(done)
		d.mu.Lock()
		tabs := d.tabs
		d.tabs = make(map[string]*tab)
		d.handles = make(map[string]handleInfo)
		d.mu.Unlock()

		for appID, t := range tabs {
			t.cancel()
			d.log.Debug("Closed application surface", zap.String("app_id", appID))
		}
		if d.allocCancel != nil {
			d.allocCancel()
		}
	}()

	select {
	case <-done:
		d.log.Info("Platform driver shut down.")
	case <-time.After(shutdownGracePeriod):
		d.log.Warn("Platform driver shutdown exceeded grace period.")
	}
}

// runWithCtx runs chromedp actions on the tab while honoring the caller's
// deadline. chromedp contexts are long-lived; the caller context only bounds
// this operation.
func runWithCtx(ctx context.Context, t *tab, actions ...chromedp.Action) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- chromedp.Run(t.ctx, actions...)
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
