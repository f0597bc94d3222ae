// Package ocr provides the text extraction engines behind the perception
// adapter: a remote OCR service client, a UI hierarchy reader, and a
// fallback chain that picks whichever source yields regions.
package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/zfault/droidpilot/internal/config"
	"github.com/zfault/droidpilot/internal/netutil"
	"github.com/zfault/droidpilot/internal/perception"
	"github.com/zfault/droidpilot/internal/surface"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// maxErrBodyBytes bounds how much of a failed response is quoted in errors.
const maxErrBodyBytes = 512

// recognizeRequest is the wire format sent to the OCR service.
type recognizeRequest struct {
	// ImagePNG is the standard base64 encoding of the captured PNG.
	ImagePNG string `json:"image_png"`
}

// recognizeResponse is the wire format returned by the OCR service. The
// service reports the dimensions it ran recognition at, which may differ
// from the captured frame when it downscales internally.
type recognizeResponse struct {
	Width   int          `json:"width"`
	Height  int          `json:"height"`
	Regions []wireRegion `json:"regions"`
}

type wireRegion struct {
	Text       string  `json:"text"`
	BBox       [4]int  `json:"bbox"`
	Confidence float64 `json:"confidence"`
}

// Remote recognizes text by posting frames to an OCR service.
type Remote struct {
	endpoint string
	apiKey   string
	timeout  time.Duration
	client   *http.Client
	logger   *zap.Logger
}

// NewRemote builds a Remote engine. A nil client gets the shared tuned
// default.
func NewRemote(cfg config.RemoteOCRConfig, client *http.Client, logger *zap.Logger) *Remote {
	if client == nil {
		client = netutil.NewClient(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Remote{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		timeout:  cfg.RequestTimeout,
		client:   client,
		logger:   logger.Named("ocr.remote"),
	}
}

// Name implements perception.Engine.
func (r *Remote) Name() string { return "remote-ocr" }

// Recognize posts the frame to the service and maps the response into
// regions in frame pixel space.
func (r *Remote) Recognize(ctx context.Context, frame surface.Frame) ([]perception.Region, error) {
	if len(frame.PNG) == 0 {
		return nil, fmt.Errorf("empty frame")
	}
	if r.endpoint == "" {
		return nil, fmt.Errorf("no OCR endpoint configured")
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	payload, err := json.Marshal(recognizeRequest{
		ImagePNG: base64.StdEncoding.EncodeToString(frame.PNG),
	})
	if err != nil {
		return nil, fmt.Errorf("encoding recognize request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building recognize request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept-Encoding", netutil.AcceptEncoding)
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	start := time.Now()
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ocr request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := netutil.DecodeBody(resp)
	if err != nil {
		return nil, fmt.Errorf("reading ocr response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("ocr service returned status %d: %s", resp.StatusCode, truncate(body, maxErrBodyBytes))
	}

	var decoded recognizeResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("malformed ocr response: %w", err)
	}

	regions := rescaleRegions(decoded, frame.Width, frame.Height)

	r.logger.Debug("Remote recognition complete",
		zap.Int("regions", len(regions)),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	return regions, nil
}

// rescaleRegions maps service coordinates back onto the captured frame when
// the service recognized at different dimensions.
func rescaleRegions(decoded recognizeResponse, frameW, frameH int) []perception.Region {
	scaleX, scaleY := 1.0, 1.0
	if decoded.Width > 0 && frameW > 0 && decoded.Width != frameW {
		scaleX = float64(frameW) / float64(decoded.Width)
	}
	if decoded.Height > 0 && frameH > 0 && decoded.Height != frameH {
		scaleY = float64(frameH) / float64(decoded.Height)
	}

	regions := make([]perception.Region, 0, len(decoded.Regions))
	for _, wr := range decoded.Regions {
		regions = append(regions, perception.Region{
			Text: wr.Text,
			Box: perception.Box{
				X: scale(wr.BBox[0], scaleX),
				Y: scale(wr.BBox[1], scaleY),
				W: scale(wr.BBox[2], scaleX),
				H: scale(wr.BBox[3], scaleY),
			},
			Confidence: wr.Confidence,
		})
	}
	return regions
}

func scale(v int, factor float64) int {
	if factor == 1.0 {
		return v
	}
	return int(float64(v)*factor + 0.5)
}

func truncate(b []byte, max int) string {
	if len(b) <= max {
		return string(b)
	}
	return string(b[:max]) + "..."
}
