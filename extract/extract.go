// Package extract derives a normalized token document from a stabilized
// page.
//
// Two complementary passes run over the rendered DOM and are unioned: a
// semantic pass querying fixed HTML-semantic categories (headings,
// navigation, forms, tables, lists, interactive controls, images, content
// regions), and a visual pass scanning all rendered nodes for visually
// significant ones. Visual hits duplicating a semantic element's geometry
// are dropped. A static pass over raw HTML (no browser) lives in static.go
// for pages a browser isn't needed for.
package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/maquette/session"
	"github.com/hazyhaar/maquette/token"
)

// ErrExtractionFailed is the terminal error after retries are exhausted.
var ErrExtractionFailed = errors.New("extract: extraction failed")

// Config controls extraction behaviour. Variants are configuration, not
// code forks: one extractor serves every page shape.
type Config struct {
	// Limits caps the produced document.
	Limits token.Limits `yaml:"limits"`

	// VisualTopN caps the visual pass, largest rendered area first.
	// Default: 60.
	VisualTopN int `yaml:"visual_top_n"`

	// AreaThreshold is the minimum rendered area (px²) for visual
	// significance. Default: 10000.
	AreaThreshold float64 `yaml:"area_threshold"`

	// DedupTolerance is the pixel tolerance for cross-pass bounding-box
	// deduplication. Default: 5.
	DedupTolerance float64 `yaml:"dedup_tolerance"`

	// Retries is how many times the full extraction step is retried on
	// transient evaluation errors. Default: 2.
	Retries int `yaml:"retries"`

	// RetryBackoff is the pause between extraction attempts. Default: 500ms.
	RetryBackoff time.Duration `yaml:"retry_backoff"`

	// ScreenshotRetries bounds best-effort screenshot attempts. Default: 2.
	ScreenshotRetries int `yaml:"screenshot_retries"`

	// ScreenshotTimeout is the per-attempt screenshot budget. Default: 10s.
	ScreenshotTimeout time.Duration `yaml:"screenshot_timeout"`

	// JSHeavySettle is the extra settle wait on client-rendered pages.
	// Default: 3s.
	JSHeavySettle time.Duration `yaml:"js_heavy_settle"`

	// LoadingWait bounds the wait for loading indicators to disappear on
	// client-rendered pages. Default: 5s.
	LoadingWait time.Duration `yaml:"loading_wait"`

	Logger *slog.Logger `yaml:"-"`
}

func (c *Config) defaults() {
	if c.VisualTopN <= 0 {
		c.VisualTopN = 60
	}
	if c.AreaThreshold <= 0 {
		c.AreaThreshold = 10000
	}
	if c.DedupTolerance <= 0 {
		c.DedupTolerance = 5
	}
	if c.Retries <= 0 {
		c.Retries = 2
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 500 * time.Millisecond
	}
	if c.ScreenshotRetries <= 0 {
		c.ScreenshotRetries = 2
	}
	if c.ScreenshotTimeout <= 0 {
		c.ScreenshotTimeout = 10 * time.Second
	}
	if c.JSHeavySettle <= 0 {
		c.JSHeavySettle = 3 * time.Second
	}
	if c.LoadingWait <= 0 {
		c.LoadingWait = 5 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Extractor produces token documents from live pages. Stateless; safe for
// concurrent use.
type Extractor struct {
	cfg Config
}

// New creates an Extractor.
func New(cfg Config) *Extractor {
	cfg.defaults()
	return &Extractor{cfg: cfg}
}

// rawElement is the JSON shape the page scripts emit.
type rawElement struct {
	Kind  string   `json:"kind"`
	Tag   string   `json:"tag"`
	Text  string   `json:"text"`
	X     float64  `json:"x"`
	Y     float64  `json:"y"`
	W     float64  `json:"w"`
	H     float64  `json:"h"`
	Style rawStyle `json:"style"`
}

type rawStyle struct {
	Color           string `json:"color"`
	BackgroundColor string `json:"backgroundColor"`
	BorderColor     string `json:"borderColor"`
	FontFamily      string `json:"fontFamily"`
	FontSize        string `json:"fontSize"`
	FontWeight      string `json:"fontWeight"`
	Padding         string `json:"padding"`
	Margin          string `json:"margin"`
	Gap             string `json:"gap"`
	BorderRadius    string `json:"borderRadius"`
}

// Extract runs both passes on a stabilized page and returns the normalized
// document. Transient evaluation errors are retried with a short backoff; a
// session-death signal is passed through unwrapped for the caller's recovery
// protocol.
func (e *Extractor) Extract(ctx context.Context, page *rod.Page, source string) (*token.Document, error) {
	log := e.cfg.Logger

	if heavy, err := e.isJSHeavy(ctx, page); err == nil && heavy {
		log.Debug("extract: client-rendered page, extended settle", "source", source)
		e.settleJSHeavy(ctx, page)
	} else if err != nil && session.DeathSignal(err) {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt <= e.cfg.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", ErrExtractionFailed, ctx.Err())
			case <-time.After(e.cfg.RetryBackoff):
			}
		}

		doc, err := e.runPasses(ctx, page, source)
		if err == nil {
			log.Info("extract: complete", "source", source, "elements", doc.Metadata.ElementCount)
			return doc, nil
		}
		if session.DeathSignal(err) {
			return nil, err
		}
		if !isTransient(err) {
			return nil, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
		}
		log.Warn("extract: transient failure, retrying", "attempt", attempt+1, "error", err)
		lastErr = err
	}
	return nil, fmt.Errorf("%w: retries exhausted: %v", ErrExtractionFailed, lastErr)
}

// runPasses executes the semantic and visual passes and merges them.
func (e *Extractor) runPasses(ctx context.Context, page *rod.Page, source string) (*token.Document, error) {
	semantic, err := evalElements(ctx, page, semanticPassScript)
	if err != nil {
		return nil, fmt.Errorf("semantic pass: %w", err)
	}
	visual, err := evalElements(ctx, page, fmt.Sprintf(visualPassScript, e.cfg.AreaThreshold, e.cfg.VisualTopN))
	if err != nil {
		return nil, fmt.Errorf("visual pass: %w", err)
	}

	b := token.NewBuilder(source, e.cfg.Limits)
	var boxes []token.BoundingBox
	n := 0

	add := func(raw rawElement, kind token.Kind) bool {
		n++
		return b.AddElement(token.Element{
			ID:          fmt.Sprintf("el_%03d", n),
			Kind:        kind,
			TextPreview: truncate(raw.Text, 80),
			Box:         token.BoundingBox{X: raw.X, Y: raw.Y, Width: raw.W, Height: raw.H},
			Style: token.StyleSnapshot{
				Color:           raw.Style.Color,
				BackgroundColor: raw.Style.BackgroundColor,
				BorderColor:     raw.Style.BorderColor,
				FontFamily:      raw.Style.FontFamily,
				FontSize:        raw.Style.FontSize,
				FontWeight:      raw.Style.FontWeight,
				Padding:         raw.Style.Padding,
				Margin:          raw.Style.Margin,
				Gap:             raw.Style.Gap,
				BorderRadius:    raw.Style.BorderRadius,
			},
			SourceTag: raw.Tag,
		})
	}

	for _, raw := range semantic {
		if !add(raw, token.Kind(raw.Kind)) {
			break
		}
		boxes = append(boxes, token.BoundingBox{X: raw.X, Y: raw.Y, Width: raw.W, Height: raw.H})
	}

	// A visual hit occupying a semantic element's geometry is the same
	// element seen twice.
	for _, raw := range visual {
		box := token.BoundingBox{X: raw.X, Y: raw.Y, Width: raw.W, Height: raw.H}
		if nearAny(box, boxes, e.cfg.DedupTolerance) {
			continue
		}
		if !add(raw, token.KindVisual) {
			break
		}
	}

	return b.Document(), nil
}

// Screenshot captures a full-page screenshot, best effort. Returns nil on
// failure; never fails the extraction.
func (e *Extractor) Screenshot(ctx context.Context, page *rod.Page) []byte {
	log := e.cfg.Logger
	for attempt := 0; attempt < e.cfg.ScreenshotRetries; attempt++ {
		sctx, cancel := context.WithTimeout(ctx, e.cfg.ScreenshotTimeout)
		data, err := page.Context(sctx).Screenshot(true, &proto.PageCaptureScreenshot{
			Format: proto.PageCaptureScreenshotFormatPng,
		})
		cancel()
		if err == nil {
			return data
		}
		log.Warn("extract: screenshot failed", "attempt", attempt+1, "error", err)
		if session.DeathSignal(err) || ctx.Err() != nil {
			return nil
		}
	}
	return nil
}

// isJSHeavy probes for client-rendered pages: framework globals or a high
// inline-script count.
func (e *Extractor) isJSHeavy(ctx context.Context, page *rod.Page) (bool, error) {
	res, err := page.Context(ctx).Eval(jsHeavyScript)
	if err != nil {
		return false, err
	}
	return res.Value.Bool(), nil
}

// settleJSHeavy waits out the settle delay, then polls for loading
// indicators to disappear so a skeleton state isn't captured.
func (e *Extractor) settleJSHeavy(ctx context.Context, page *rod.Page) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(e.cfg.JSHeavySettle):
	}

	deadline := time.Now().Add(e.cfg.LoadingWait)
	for time.Now().Before(deadline) {
		res, err := page.Context(ctx).Eval(loadingIndicatorScript)
		if err != nil || !res.Value.Bool() {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(300 * time.Millisecond):
		}
	}
}

// evalElements runs a pass script and decodes its JSON result.
func evalElements(ctx context.Context, page *rod.Page, script string) ([]rawElement, error) {
	res, err := page.Context(ctx).Eval(script)
	if err != nil {
		return nil, err
	}
	var out []rawElement
	if err := json.Unmarshal([]byte(res.Value.Str()), &out); err != nil {
		return nil, fmt.Errorf("decode pass result: %w", err)
	}
	return out, nil
}

func nearAny(box token.BoundingBox, boxes []token.BoundingBox, tol float64) bool {
	for _, b := range boxes {
		if box.Near(b, tol) {
			return true
		}
	}
	return false
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}

// transientFragments are evaluation errors worth retrying: the page was
// mid-mutation, not broken.
var transientFragments = []string{
	"document is not ready",
	"execution context was destroyed",
	"cannot find context",
	"node with given id does not belong to the document",
	"object couldn't be returned by value",
}

func isTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, f := range transientFragments {
		if strings.Contains(msg, f) {
			return true
		}
	}
	return false
}
