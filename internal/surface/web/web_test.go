package web

import (
	"testing"

	"github.com/chromedp/chromedp"
	"github.com/stretchr/testify/assert"

	"github.com/zfault/droidpilot/internal/config"
)

func TestAllocatorOptions(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.WebConfig
	}{
		{"headless default", config.WebConfig{Headless: true}},
		{"headed", config.WebConfig{Headless: false}},
		{"extra args", config.WebConfig{
			Headless: true,
			Args:     []string{"--disable-gpu", "proxy-server=localhost:8080"},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := allocatorOptions(tt.cfg)
			assert.NotEmpty(t, opts)
			// ExecAllocatorOption values are opaque funcs, so the check is
			// that config always adds to the chromedp defaults.
			assert.Greater(t, len(opts), len(chromedp.DefaultExecAllocatorOptions))
		})
	}
}
