// Package web drives a Chrome tab over the DevTools protocol as an agent
// surface. The tab's viewport is emulated at a fixed size so screenshots and
// input events share one pixel space for the whole session.
package web

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"

	"github.com/zfault/droidpilot/internal/config"
	"github.com/zfault/droidpilot/internal/surface"
)

const (
	defaultViewportWidth  = 1280
	defaultViewportHeight = 800
	defaultStartTimeout   = 90 * time.Second

	// swipeSteps is how many intermediate mouse moves a swipe is split into.
	swipeSteps = 8
)

// Driver owns one browser process and one tab for its whole lifetime.
type Driver struct {
	width  int
	height int
	logger *zap.Logger

	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc
}

var _ surface.Surface = (*Driver)(nil)

// New launches the browser, opens a tab, locks the viewport and navigates to
// the configured start URL. A failure tears the process down before
// returning.
func New(ctx context.Context, cfg config.WebConfig, logger *zap.Logger) (*Driver, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Driver{
		width:  cfg.ViewportWidth,
		height: cfg.ViewportHeight,
		logger: logger.Named("surface.web"),
	}
	if d.width <= 0 {
		d.width = defaultViewportWidth
	}
	if d.height <= 0 {
		d.height = defaultViewportHeight
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocatorOptions(cfg)...)
	d.allocCancel = allocCancel
	d.tabCtx, d.tabCancel = chromedp.NewContext(allocCtx)

	startURL := cfg.StartURL
	if startURL == "" {
		startURL = "about:blank"
	}
	timeout := cfg.NavigationTimeout
	if timeout <= 0 {
		timeout = defaultStartTimeout
	}
	startCtx, cancel := context.WithTimeout(d.tabCtx, timeout)
	defer cancel()
	err := chromedp.Run(startCtx,
		chromedp.EmulateViewport(int64(d.width), int64(d.height)),
		chromedp.Navigate(startURL),
	)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("browser failed to start or respond: %w", err)
	}

	d.logger.Info("browser tab ready",
		zap.String("url", startURL),
		zap.Int("viewport_width", d.width),
		zap.Int("viewport_height", d.height),
	)
	return d, nil
}

// allocatorOptions translates the surface configuration into chromedp
// allocator flags. Container-hardening flags are always on; running headless
// without them is flaky under Docker.
func allocatorOptions(cfg config.WebConfig) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if !cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	for _, arg := range cfg.Args {
		parts := strings.SplitN(arg, "=", 2)
		name := strings.TrimPrefix(parts[0], "--")
		if len(parts) == 2 {
			opts = append(opts, chromedp.Flag(name, parts[1]))
		} else {
			opts = append(opts, chromedp.Flag(name, true))
		}
	}
	return opts
}

// run executes actions on the tab while honoring the per-call context. The
// tab context carries the CDP target and must be the one chromedp runs on,
// so cancellation from ctx is bridged onto a derived context.
func (d *Driver) run(ctx context.Context, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	runCtx, cancel := context.WithCancel(d.tabCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}

// Capture grabs a PNG of the emulated viewport.
func (d *Driver) Capture(ctx context.Context) (surface.Frame, error) {
	var png []byte
	if err := d.run(ctx, chromedp.CaptureScreenshot(&png)); err != nil {
		return surface.Frame{}, fmt.Errorf("capturing screenshot: %w", err)
	}
	return surface.Frame{PNG: png, Width: d.width, Height: d.height}, nil
}

// Bounds reports the emulated viewport. It never changes after New.
func (d *Driver) Bounds(context.Context) (surface.Size, error) {
	return surface.Size{Width: d.width, Height: d.height}, nil
}

// mouseAction dispatches one raw mouse event at the given point.
func mouseAction(typ input.MouseType, x, y float64) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		return input.DispatchMouseEvent(typ, x, y).
			WithButton(input.MouseButton("left")).
			WithClickCount(1).
			Do(ctx)
	})
}

// Tap presses and releases the left button at the point.
func (d *Driver) Tap(ctx context.Context, x, y int) error {
	fx, fy := float64(x), float64(y)
	err := d.run(ctx,
		mouseAction(input.MousePressed, fx, fy),
		mouseAction(input.MouseReleased, fx, fy),
	)
	if err != nil {
		return fmt.Errorf("dispatching tap at (%d,%d): %w", x, y, err)
	}
	return nil
}

// Swipe drags the pressed pointer from one point to the other with evenly
// spaced intermediate moves, so pages see a gesture rather than a teleport.
func (d *Driver) Swipe(ctx context.Context, fromX, fromY, toX, toY int, dur time.Duration) error {
	if dur <= 0 {
		dur = 300 * time.Millisecond
	}
	pause := dur / swipeSteps

	actions := []chromedp.Action{mouseAction(input.MousePressed, float64(fromX), float64(fromY))}
	for i := 1; i <= swipeSteps; i++ {
		x := float64(fromX) + float64(toX-fromX)*float64(i)/swipeSteps
		y := float64(fromY) + float64(toY-fromY)*float64(i)/swipeSteps
		actions = append(actions, mouseAction(input.MouseMoved, x, y), chromedp.Sleep(pause))
	}
	actions = append(actions, mouseAction(input.MouseReleased, float64(toX), float64(toY)))

	if err := d.run(ctx, actions...); err != nil {
		return fmt.Errorf("dispatching swipe (%d,%d)->(%d,%d): %w", fromX, fromY, toX, toY, err)
	}
	return nil
}

// TypeText inserts literal text into the focused element. Insertion bypasses
// per-key events, which keeps arbitrary unicode intact.
func (d *Driver) TypeText(ctx context.Context, text string) error {
	err := d.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return input.InsertText(text).Do(ctx)
	}))
	if err != nil {
		return fmt.Errorf("inserting text: %w", err)
	}
	return nil
}

// Key maps the portable key set onto browser equivalents. Back becomes
// history navigation; home has no browser meaning.
func (d *Driver) Key(ctx context.Context, code surface.KeyCode) error {
	switch code {
	case surface.KeyEnter:
		if err := d.run(ctx, chromedp.KeyEvent(kb.Enter)); err != nil {
			return fmt.Errorf("dispatching enter: %w", err)
		}
		return nil
	case surface.KeyBack:
		if err := d.run(ctx, chromedp.NavigateBack()); err != nil {
			return fmt.Errorf("navigating back: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("key %q has no browser equivalent", code)
	}
}

// Navigate loads a URL in the tab. Used by episode setup, not by the model's
// action vocabulary.
func (d *Driver) Navigate(ctx context.Context, url string) error {
	if err := d.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigating to %s: %w", url, err)
	}
	return nil
}

// Close tears down the tab and then the browser process.
func (d *Driver) Close() error {
	if d.tabCancel != nil {
		d.tabCancel()
	}
	if d.allocCancel != nil {
		d.allocCancel()
	}
	return nil
}
