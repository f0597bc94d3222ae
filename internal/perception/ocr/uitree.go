package ocr

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"github.com/beevik/etree"
	"go.uber.org/zap"

	"github.com/zfault/droidpilot/internal/perception"
	"github.com/zfault/droidpilot/internal/surface"
)

// maxTreeDepth bounds recursion into the hierarchy. Deeply nested views
// below this rarely carry text the agent can act on.
const maxTreeDepth = 10

// uiautomator bounds attributes look like "[0,63][1080,1920]".
var boundsRe = regexp.MustCompile(`\[(-?\d+),(-?\d+)\]\[(-?\d+),(-?\d+)\]`)

// UITree extracts text regions from an accessibility hierarchy dump instead
// of running character recognition. Coordinates in the dump are already in
// screen pixel space, so no rescaling is needed.
type UITree struct {
	provider surface.HierarchyProvider
	logger   *zap.Logger
}

// NewUITree builds a UITree engine over the given hierarchy provider.
func NewUITree(provider surface.HierarchyProvider, logger *zap.Logger) *UITree {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UITree{
		provider: provider,
		logger:   logger.Named("ocr.uitree"),
	}
}

// Name implements perception.Engine.
func (u *UITree) Name() string { return "uitree" }

// Recognize dumps the current hierarchy and flattens it into regions. A
// node contributes a region when it has text or a content description and
// non-degenerate bounds.
func (u *UITree) Recognize(ctx context.Context, _ surface.Frame) ([]perception.Region, error) {
	raw, err := u.provider.DumpHierarchy(ctx)
	if err != nil {
		return nil, fmt.Errorf("dumping ui hierarchy: %w", err)
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(raw); err != nil {
		return nil, fmt.Errorf("parsing ui hierarchy: %w", err)
	}
	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("empty ui hierarchy")
	}

	var regions []perception.Region
	collectNodes(root, 0, &regions)

	u.logger.Debug("Hierarchy flattened", zap.Int("regions", len(regions)))
	return regions, nil
}

func collectNodes(el *etree.Element, depth int, out *[]perception.Region) {
	if depth > maxTreeDepth {
		return
	}

	if el.Tag == "node" {
		text := el.SelectAttrValue("text", "")
		if text == "" {
			text = el.SelectAttrValue("content-desc", "")
		}
		if text != "" {
			if box, ok := parseBounds(el.SelectAttrValue("bounds", "")); ok {
				*out = append(*out, perception.Region{
					Text: text,
					Box:  box,
					// Accessibility text is exact, not recognized.
					Confidence: 1.0,
				})
			}
		}
	}

	for _, child := range el.ChildElements() {
		collectNodes(child, depth+1, out)
	}
}

// parseBounds converts a "[x1,y1][x2,y2]" attribute into a box. Degenerate
// or malformed bounds are rejected.
func parseBounds(s string) (perception.Box, bool) {
	m := boundsRe.FindStringSubmatch(s)
	if m == nil {
		return perception.Box{}, false
	}
	x1, _ := strconv.Atoi(m[1])
	y1, _ := strconv.Atoi(m[2])
	x2, _ := strconv.Atoi(m[3])
	y2, _ := strconv.Atoi(m[4])
	if x2 <= x1 || y2 <= y1 {
		return perception.Box{}, false
	}
	return perception.Box{X: x1, Y: y1, W: x2 - x1, H: y2 - y1}, true
}
