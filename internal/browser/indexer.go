package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

const (
	baseSelector = "button, input, textarea"
	linkSelector = ", a"
	paletteSize  = 64
)

// Capture is the outcome of one indexing pass: the screenshot reference
// (a file path), the image itself and the indexed elements.
type Capture struct {
	Ref   string
	Image []byte
	Boxes []ElementBox
}

// Box returns the element carrying index i in this capture.
func (c *Capture) Box(i int) (ElementBox, bool) {
	for _, b := range c.Boxes {
		if b.Index == i {
			return b, true
		}
	}
	return ElementBox{}, false
}

// Indexer annotates pages and writes screenshots to Dir as
// <query_id>_<step>.png.
type Indexer struct {
	Dir          string
	IncludeLinks bool
	FullPage     bool
	logger       *zap.Logger
}

func NewIndexer(dir string, includeLinks, fullPage bool, logger *zap.Logger) *Indexer {
	return &Indexer{
		Dir:          dir,
		IncludeLinks: includeLinks,
		FullPage:     fullPage,
		logger:       logger.Named("indexer"),
	}
}

// Selector is the CSS selector of indexable elements.
func (ix *Indexer) Selector() string {
	if ix.IncludeLinks {
		return baseSelector + linkSelector
	}
	return baseSelector
}

// ScreenshotRef is the reference a capture of (queryID, step) is stored under.
func (ix *Indexer) ScreenshotRef(queryID string, step int) string {
	return filepath.Join(ix.Dir, fmt.Sprintf("%s_%d.png", queryID, step))
}

type annotateOptions struct {
	Selector string   `json:"selector"`
	Overlay  bool     `json:"overlay"`
	Colors   []string `json:"colors"`
}

// AnnotateAndCapture numbers the interactive elements of page from 1,
// optionally overlays the numbers, and captures a screenshot for
// (queryID, step).
func (ix *Indexer) AnnotateAndCapture(ctx context.Context, page Page, queryID string, step int, overlay bool) (*Capture, error) {
	boxes, err := ix.annotate(ctx, page, overlay)
	if err != nil {
		return nil, err
	}
	capture, err := ix.capture(ctx, page, queryID, step)
	if err != nil {
		return nil, err
	}
	capture.Boxes = boxes
	ix.logger.Debug("page annotated",
		zap.String("query_id", queryID),
		zap.Int("step", step),
		zap.Int("elements", len(boxes)),
		zap.Bool("overlay", overlay))
	return capture, nil
}

// CaptureHalted stops page loading and captures without indexing. It serves
// extraction steps, where nothing will be clicked. Overlays left by an
// earlier pass on the same document are removed first.
func (ix *Indexer) CaptureHalted(ctx context.Context, page Page, queryID string, step int) (*Capture, error) {
	if err := page.StopLoading(ctx); err != nil {
		return nil, sessionErr("stop loading", err)
	}
	if err := page.Evaluate(ctx, ClearOverlayScript, nil); err != nil {
		return nil, sessionErr("clear overlay", err)
	}
	return ix.capture(ctx, page, queryID, step)
}

func (ix *Indexer) annotate(ctx context.Context, page Page, overlay bool) ([]ElementBox, error) {
	opts := annotateOptions{Selector: ix.Selector(), Overlay: overlay}
	if overlay {
		opts.Colors = Palette(paletteSize)
	}

	var raw []ElementBox
	if err := page.Evaluate(ctx, annotateCall(opts), &raw); err != nil {
		return nil, sessionErr("annotate", err)
	}
	for i := range raw {
		raw[i].Kind = KindOf(raw[i].Tag, raw[i].Type)
	}
	return raw, nil
}

func annotateCall(opts annotateOptions) string {
	if opts.Colors == nil {
		opts.Colors = []string{}
	}
	arg, _ := json.Marshal(opts)
	return AnnotateScript + "(" + string(arg) + ")"
}

func (ix *Indexer) capture(ctx context.Context, page Page, queryID string, step int) (*Capture, error) {
	img, err := page.Screenshot(ctx, ix.FullPage)
	if err != nil {
		return nil, sessionErr("screenshot", err)
	}
	ref := ix.ScreenshotRef(queryID, step)
	if err := os.MkdirAll(filepath.Dir(ref), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create screenshot directory: %w", err)
	}
	if err := os.WriteFile(ref, img, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write screenshot: %w", err)
	}
	return &Capture{Ref: ref, Image: img}, nil
}

// Palette returns n visually distinct colours. Hues advance by the golden
// angle so neighbouring indices never share a colour.
func Palette(n int) []string {
	colors := make([]string, n)
	for i := range colors {
		hue := math.Mod(float64(i)*137.508, 360)
		colors[i] = fmt.Sprintf("hsl(%.0f, 85%%, 42%%)", hue)
	}
	return colors
}
