// Package surface abstracts the GUI target an agent drives: something that
// can be screenshotted and receive input events. Implementations exist for
// Android devices over adb and for Chrome over the DevTools protocol; tests
// use in-memory fakes.
package surface

import (
	"context"
	"time"
)

// Frame is one raw screen capture in the surface's native pixel space.
type Frame struct {
	// PNG holds the encoded image bytes as produced by the target.
	PNG    []byte
	Width  int
	Height int
}

// Size is the surface's input coordinate space. Input coordinates are valid
// in [0,Width) x [0,Height).
type Size struct {
	Width  int
	Height int
}

// Contains reports whether the point lies inside the coordinate space.
func (s Size) Contains(x, y int) bool {
	return x >= 0 && y >= 0 && x < s.Width && y < s.Height
}

// KeyCode names the hardware-style keys a surface can synthesize. The set is
// deliberately small; text entry goes through TypeText.
type KeyCode string

const (
	KeyBack  KeyCode = "back"
	KeyHome  KeyCode = "home"
	KeyEnter KeyCode = "enter"
)

// Surface is the capability contract between the agent and a GUI target.
// Capture output and input coordinates share one pixel space; that alignment
// is what lets a model tap what it saw.
type Surface interface {
	// Capture grabs the current screen.
	Capture(ctx context.Context) (Frame, error)
	// Bounds reports the input coordinate space.
	Bounds(ctx context.Context) (Size, error)
	// Tap presses and releases at the given point.
	Tap(ctx context.Context, x, y int) error
	// Swipe drags from one point to another over the given duration.
	Swipe(ctx context.Context, fromX, fromY, toX, toY int, dur time.Duration) error
	// TypeText enters literal text into the focused element.
	TypeText(ctx context.Context, text string) error
	// Key synthesizes a hardware-style key press.
	Key(ctx context.Context, code KeyCode) error
	// Close releases the underlying target session.
	Close() error
}

// HierarchyProvider is implemented by surfaces that can expose a structured
// UI tree (uiautomator on Android). Perception prefers it over raster
// recognition when present.
type HierarchyProvider interface {
	DumpHierarchy(ctx context.Context) ([]byte, error)
}
