// Package android drives a device or emulator through the adb command line.
// Capture uses screencap, input goes through the input shell tool, and the
// uiautomator dump is exposed for hierarchy-based perception. All of it runs
// in the device's physical pixel space, the same space screencap reports.
package android

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/zfault/droidpilot/internal/config"
	"github.com/zfault/droidpilot/internal/surface"
)

const (
	defaultCommandTimeout = 15 * time.Second
	defaultSwipeDuration  = 300 * time.Millisecond

	// hierarchyDumpPath is where uiautomator writes its XML on the device
	// before it is read back.
	hierarchyDumpPath = "/sdcard/window_dump.xml"
)

// wmSizeRe matches the "Physical size: 1080x1920" lines wm prints. An
// Override line, when present, is printed after the physical one and wins.
var wmSizeRe = regexp.MustCompile(`(?m)^(?:Physical|Override) size:\s*(\d+)x(\d+)`)

// Driver talks to one device. Safe for use from a single loop; the lease
// layer serializes access across loops.
type Driver struct {
	adbPath string
	serial  string
	timeout time.Duration
	logger  *zap.Logger

	mu   sync.Mutex
	size surface.Size
}

var (
	_ surface.Surface           = (*Driver)(nil)
	_ surface.HierarchyProvider = (*Driver)(nil)
)

// New connects to the device and verifies it responds by querying the screen
// size, which also primes the Bounds cache.
func New(ctx context.Context, cfg config.AndroidConfig, logger *zap.Logger) (*Driver, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	adbPath := cfg.ADBPath
	if adbPath == "" {
		adbPath = "adb"
	}
	timeout := cfg.CommandTimeout
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}
	d := &Driver{
		adbPath: adbPath,
		serial:  cfg.Serial,
		timeout: timeout,
		logger:  logger.Named("surface.android"),
	}

	size, err := d.Bounds(ctx)
	if err != nil {
		return nil, fmt.Errorf("device not responding: %w", err)
	}
	d.logger.Info("device connected",
		zap.String("serial", cfg.Serial),
		zap.Int("width", size.Width),
		zap.Int("height", size.Height),
	)
	return d, nil
}

// exec runs one adb invocation under the command timeout and returns its
// stdout. Stderr is captured separately so binary stdout stays clean.
func (d *Driver) exec(ctx context.Context, args ...string) ([]byte, error) {
	cctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	argv := make([]string, 0, len(args)+2)
	if d.serial != "" {
		argv = append(argv, "-s", d.serial)
	}
	argv = append(argv, args...)

	out, err := exec.CommandContext(cctx, d.adbPath, argv...).Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return nil, fmt.Errorf("adb %s: %w: %s", strings.Join(args, " "), err, bytes.TrimSpace(exitErr.Stderr))
		}
		return nil, fmt.Errorf("adb %s: %w", strings.Join(args, " "), err)
	}
	return out, nil
}

// Capture grabs the screen as PNG via screencap. exec-out keeps the stream
// binary-safe; shell would mangle line endings.
func (d *Driver) Capture(ctx context.Context) (surface.Frame, error) {
	out, err := d.exec(ctx, "exec-out", "screencap", "-p")
	if err != nil {
		return surface.Frame{}, err
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(out))
	if err != nil {
		return surface.Frame{}, fmt.Errorf("screencap produced undecodable output: %w", err)
	}
	return surface.Frame{PNG: out, Width: cfg.Width, Height: cfg.Height}, nil
}

// Bounds reports the device's pixel space from wm size. The value is stable
// for a session and cached after the first successful query.
func (d *Driver) Bounds(ctx context.Context) (surface.Size, error) {
	d.mu.Lock()
	cached := d.size
	d.mu.Unlock()
	if cached.Width > 0 {
		return cached, nil
	}

	out, err := d.exec(ctx, "shell", "wm", "size")
	if err != nil {
		return surface.Size{}, err
	}
	size, err := parseWMSize(string(out))
	if err != nil {
		return surface.Size{}, err
	}

	d.mu.Lock()
	d.size = size
	d.mu.Unlock()
	return size, nil
}

// parseWMSize extracts the effective resolution. The last matching line wins
// so an override takes precedence over the physical size.
func parseWMSize(out string) (surface.Size, error) {
	matches := wmSizeRe.FindAllStringSubmatch(out, -1)
	if len(matches) == 0 {
		return surface.Size{}, fmt.Errorf("unrecognized wm size output %q", strings.TrimSpace(out))
	}
	m := matches[len(matches)-1]
	w, _ := strconv.Atoi(m[1])
	h, _ := strconv.Atoi(m[2])
	if w <= 0 || h <= 0 {
		return surface.Size{}, fmt.Errorf("wm reported degenerate size %dx%d", w, h)
	}
	return surface.Size{Width: w, Height: h}, nil
}

// Tap presses at the point.
func (d *Driver) Tap(ctx context.Context, x, y int) error {
	_, err := d.exec(ctx, "shell", "input", "tap", strconv.Itoa(x), strconv.Itoa(y))
	return err
}

// Swipe drags between the points over the duration.
func (d *Driver) Swipe(ctx context.Context, fromX, fromY, toX, toY int, dur time.Duration) error {
	if dur <= 0 {
		dur = defaultSwipeDuration
	}
	_, err := d.exec(ctx, "shell", "input", "swipe",
		strconv.Itoa(fromX), strconv.Itoa(fromY),
		strconv.Itoa(toX), strconv.Itoa(toY),
		strconv.Itoa(int(dur.Milliseconds())),
	)
	return err
}

// inputTextReplacer escapes text for the input tool, which routes the string
// through a device-side shell. Spaces become %s per the tool's convention.
var inputTextReplacer = strings.NewReplacer(
	` `, `%s`,
	`\`, `\\`,
	`"`, `\"`,
	`'`, `\'`,
	"`", "\\`",
	`(`, `\(`,
	`)`, `\)`,
	`<`, `\<`,
	`>`, `\>`,
	`|`, `\|`,
	`;`, `\;`,
	`&`, `\&`,
	`*`, `\*`,
	`~`, `\~`,
	`$`, `\$`,
	`#`, `\#`,
)

// TypeText enters literal text into the focused input.
func (d *Driver) TypeText(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}
	_, err := d.exec(ctx, "shell", "input", "text", inputTextReplacer.Replace(text))
	return err
}

// androidKeycode maps the portable key set onto Android key event names.
func androidKeycode(code surface.KeyCode) (string, bool) {
	switch code {
	case surface.KeyBack:
		return "KEYCODE_BACK", true
	case surface.KeyHome:
		return "KEYCODE_HOME", true
	case surface.KeyEnter:
		return "KEYCODE_ENTER", true
	}
	return "", false
}

// Key synthesizes a hardware key press.
func (d *Driver) Key(ctx context.Context, code surface.KeyCode) error {
	keycode, ok := androidKeycode(code)
	if !ok {
		return fmt.Errorf("unknown key %q", code)
	}
	_, err := d.exec(ctx, "shell", "input", "keyevent", keycode)
	return err
}

// DumpHierarchy captures the uiautomator accessibility tree as XML. The dump
// is written device-side first; reading it back with exec-out avoids tty
// mangling of the XML.
func (d *Driver) DumpHierarchy(ctx context.Context) ([]byte, error) {
	if _, err := d.exec(ctx, "shell", "uiautomator", "dump", hierarchyDumpPath); err != nil {
		return nil, err
	}
	out, err := d.exec(ctx, "exec-out", "cat", hierarchyDumpPath)
	if err != nil {
		return nil, err
	}
	if !bytes.Contains(out, []byte("<hierarchy")) {
		return nil, fmt.Errorf("uiautomator dump produced no hierarchy")
	}
	return out, nil
}

// Close releases nothing; adb connections are per-command.
func (d *Driver) Close() error { return nil }
