// Package hydration loads a group's slides into the canvas document and derives the
// editor state of the selected slide. While a bulk load is in progress, and until the
// document has delivered every change the load produced, IsHydrating reports true so
// autosave consumers can ignore those changes.
package hydration

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/storyboard/internal/campaigns"
	"github.com/MarcoPoloResearchLab/storyboard/internal/canvas"
	"github.com/MarcoPoloResearchLab/storyboard/internal/codec"
	"github.com/MarcoPoloResearchLab/storyboard/internal/geometry"
)

// DefaultSettleDelay is how long the guard stays up after a load when the document cannot
// report that its change notifications have drained.
const DefaultSettleDelay = 300 * time.Millisecond

var errMissingDocument = errors.New("hydration: canvas document is required")

// Document is the canvas surface the controller drives.
type Document interface {
	LoadJSON(document canvas.DocumentJSON) error
	Pages() []canvas.Page
	SelectPage(pageID string) error
}

// Settler is implemented by documents that can report when change delivery is idle.
type Settler interface {
	WaitIdle(ctx context.Context) error
}

// Config wires a Controller.
type Config struct {
	Document    Document
	Encoder     *codec.Encoder
	SettleDelay time.Duration
	Logger      *zap.Logger
}

// Controller serializes bulk hydrations and exposes the hydration guard.
type Controller struct {
	document    Document
	encoder     *codec.Encoder
	settleDelay time.Duration
	logger      *zap.Logger

	guard atomic.Int32

	mu          sync.Mutex
	fingerprint string
	hydrated    bool
	lastReport  codec.Report
}

// NewController constructs a Controller.
func NewController(cfg Config) (*Controller, error) {
	if cfg.Document == nil {
		return nil, errMissingDocument
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	encoder := cfg.Encoder
	if encoder == nil {
		encoderConfig := codec.Config{Logger: logger}
		if space, ok := cfg.Document.(geometry.Space); ok {
			encoderConfig.Space = space
		}
		encoder = codec.NewEncoder(encoderConfig)
	}
	settleDelay := cfg.SettleDelay
	if settleDelay <= 0 {
		settleDelay = DefaultSettleDelay
	}
	return &Controller{
		document:    cfg.Document,
		encoder:     encoder,
		settleDelay: settleDelay,
		logger:      logger,
	}, nil
}

// IsHydrating reports whether a bulk load or its settle window is in progress.
func (c *Controller) IsHydrating() bool {
	return c.guard.Load() > 0
}

// HydrateAllSlides loads slides into the document unless the same slide set is already
// loaded. It returns false when the document rejected the load; the previous document
// state is then left intact.
func (c *Controller) HydrateAllSlides(ctx context.Context, slides []campaigns.Slide) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	fingerprint := Fingerprint(slides)
	if c.hydrated && fingerprint == c.fingerprint {
		return true
	}

	c.guard.Add(1)
	defer c.guard.Add(-1)

	document, report := c.encoder.SlidesToCanvasStore(slides)
	if err := c.document.LoadJSON(document); err != nil {
		c.logger.Error("hydration load failed",
			zap.Int("slides", len(slides)),
			zap.Error(err),
		)
		return false
	}
	c.fingerprint = fingerprint
	c.hydrated = true
	c.lastReport = report
	if !report.Clean() {
		c.logger.Warn("hydration recovered from malformed slides",
			zap.Strings("malformed_content", report.MalformedContent),
			zap.Strings("malformed_styling", report.MalformedStyling),
			zap.Int("skipped_ctas", len(report.SkippedCTAs)),
		)
	}
	c.settle(ctx)
	return true
}

func (c *Controller) settle(ctx context.Context) {
	if settler, ok := c.document.(Settler); ok {
		if err := settler.WaitIdle(ctx); err != nil {
			c.logger.Warn("hydration settle interrupted", zap.Error(err))
		}
		return
	}
	timer := time.NewTimer(c.settleDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		c.logger.Warn("hydration settle interrupted", zap.Error(ctx.Err()))
	}
}

// HydrateCTAState derives the editor state of a slide without touching the document.
func (c *Controller) HydrateCTAState(slide campaigns.Slide) codec.EditorState {
	return c.encoder.HydrateEditorStateFromSlide(slide)
}

// SelectSlide activates the page hydrated from slideID, matched by page id or by the
// page's original slide correlation. It logs and returns false when no page matches.
func (c *Controller) SelectSlide(slideID campaigns.ID) bool {
	if slideID == "" {
		return false
	}
	pageID, ok := FindPageID(c.document.Pages(), slideID)
	if !ok {
		c.logger.Warn("hydration slide has no page", zap.String("slide_id", slideID.String()))
		return false
	}
	if err := c.document.SelectPage(pageID); err != nil {
		c.logger.Warn("hydration select page failed", zap.String("page_id", pageID), zap.Error(err))
		return false
	}
	return true
}

// Invalidate forces the next HydrateAllSlides to reload.
func (c *Controller) Invalidate() {
	c.mu.Lock()
	c.fingerprint = ""
	c.hydrated = false
	c.mu.Unlock()
}

// LastReport returns the recovery report of the most recent successful load.
func (c *Controller) LastReport() codec.Report {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastReport
}

// Encoder returns the codec the controller hydrates with.
func (c *Controller) Encoder() *codec.Encoder {
	return c.encoder
}

// FindPageID resolves a slide id to the page hydrated from it.
func FindPageID(pages []canvas.Page, slideID campaigns.ID) (string, bool) {
	raw := slideID.String()
	derived := codec.PageID(slideID)
	for _, page := range pages {
		if page.ID == raw || page.ID == derived {
			return page.ID, true
		}
	}
	for _, page := range pages {
		if page.Custom.OriginalSlideID == raw {
			return page.ID, true
		}
	}
	return "", false
}

// Fingerprint identifies a slide set by its sorted ids.
func Fingerprint(slides []campaigns.Slide) string {
	ids := make([]string, len(slides))
	for index, slide := range slides {
		ids[index] = slide.ID.String()
	}
	sort.Strings(ids)
	return strings.Join(ids, "\x1f")
}
