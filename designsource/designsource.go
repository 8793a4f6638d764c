// Package designsource fetches a design file from its REST API and
// normalizes it into the same token document shape the live-page extractor
// produces, so the comparator never knows which side came from where.
package designsource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/hazyhaar/maquette/horosafe"
	"github.com/hazyhaar/maquette/token"
)

// Typed terminal errors. 4xx conditions are terminal for the request; 5xx
// and transport failures surface as ErrUnavailable, retryable by the caller.
var (
	ErrNotFound    = errors.New("designsource: file not found")
	ErrForbidden   = errors.New("designsource: access forbidden")
	ErrRateLimited = errors.New("designsource: rate limited")
	ErrUnavailable = errors.New("designsource: service unavailable")
)

// Config configures the Client.
type Config struct {
	// BaseURL of the design tool's REST API.
	BaseURL string `yaml:"base_url"`

	// Token is the bearer-style API credential.
	Token string `yaml:"token"`

	// Timeout bounds one API call. Default: 30s.
	Timeout time.Duration `yaml:"timeout"`

	// Limits caps the produced document.
	Limits token.Limits `yaml:"limits"`

	Logger *slog.Logger `yaml:"-"`
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Client is the design-source API client. Safe for concurrent use.
type Client struct {
	cfg  Config
	http *http.Client
}

// New creates a Client. A nil httpClient uses a default with the configured
// timeout.
func New(cfg Config, httpClient *http.Client) *Client {
	cfg.defaults()
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{cfg: cfg, http: httpClient}
}

// FetchTokens retrieves the design file (or one node subtree when nodeRef is
// non-empty) and returns its normalized token document.
func (c *Client) FetchTokens(ctx context.Context, fileRef, nodeRef string) (*token.Document, error) {
	if err := horosafe.ValidateIdentifier(fileRef); err != nil {
		return nil, fmt.Errorf("designsource: file ref: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/files/%s", strings.TrimRight(c.cfg.BaseURL, "/"), url.PathEscape(fileRef))
	if nodeRef != "" {
		endpoint += "/nodes?ids=" + url.QueryEscape(nodeRef)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("designsource: new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, fileRef)
	case resp.StatusCode == http.StatusForbidden, resp.StatusCode == http.StatusUnauthorized:
		return nil, ErrForbidden
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, ErrRateLimited
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: http %d", ErrUnavailable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: http %d", ErrUnavailable, resp.StatusCode)
	}

	body, err := horosafe.LimitedReadAll(resp.Body, horosafe.MaxResponseBody)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
	}

	var file fileResponse
	if err := json.Unmarshal(body, &file); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrUnavailable, err)
	}

	source := "design:" + fileRef
	if nodeRef != "" {
		source += "#" + nodeRef
	}
	doc := c.normalize(&file, source)
	c.cfg.Logger.Info("designsource: fetched", "source", source, "elements", doc.Metadata.ElementCount)
	return doc, nil
}

// fileResponse is the subset of the design API's file payload we consume.
type fileResponse struct {
	Name     string               `json:"name"`
	Document *node                `json:"document"`
	Nodes    map[string]nodeEntry `json:"nodes"`
}

type nodeEntry struct {
	Document *node `json:"document"`
}

type node struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Type     string  `json:"type"`
	Children []*node `json:"children"`

	AbsoluteBoundingBox *box        `json:"absoluteBoundingBox"`
	Fills               []paint     `json:"fills"`
	Strokes             []paint     `json:"strokes"`
	Style               *typeStyle  `json:"style"`
	CornerRadius        float64     `json:"cornerRadius"`
	ItemSpacing         float64     `json:"itemSpacing"`
	PaddingLeft         float64     `json:"paddingLeft"`
	PaddingTop          float64     `json:"paddingTop"`
	Characters          string      `json:"characters"`
	Visible             *bool       `json:"visible"`
}

type box struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type paint struct {
	Type    string  `json:"type"`
	Visible *bool   `json:"visible"`
	Color   *rgba   `json:"color"`
	Opacity float64 `json:"opacity"`
}

type rgba struct {
	R float64 `json:"r"`
	G float64 `json:"g"`
	B float64 `json:"b"`
	A float64 `json:"a"`
}

type typeStyle struct {
	FontFamily string  `json:"fontFamily"`
	FontSize   float64 `json:"fontSize"`
	FontWeight float64 `json:"fontWeight"`
}

// normalize walks the node tree(s) into a token document.
func (c *Client) normalize(file *fileResponse, source string) *token.Document {
	b := token.NewBuilder(source, c.cfg.Limits)
	n := 0

	var walk func(nd *node)
	walk = func(nd *node) {
		if nd == nil || (nd.Visible != nil && !*nd.Visible) {
			return
		}
		if el, ok := elementFrom(nd, &n); ok {
			b.AddElement(el)
		}
		for _, child := range nd.Children {
			walk(child)
		}
	}

	walk(file.Document)
	// Walk node entries in sorted key order so element IDs are stable
	// across identical fetches.
	keys := make([]string, 0, len(file.Nodes))
	for k := range file.Nodes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		walk(file.Nodes[k].Document)
	}
	return b.Document()
}

// elementFrom maps one design node to an element. Container nodes without
// renderable facts are skipped but still walked for children.
func elementFrom(nd *node, counter *int) (token.Element, bool) {
	kind, ok := kindOf(nd)
	if !ok {
		return token.Element{}, false
	}

	*counter++
	el := token.Element{
		ID:          fmt.Sprintf("el_%03d", *counter),
		Kind:        kind,
		TextPreview: previewOf(nd),
		SourceTag:   strings.ToLower(nd.Type),
	}
	if nd.AbsoluteBoundingBox != nil {
		el.Box = token.BoundingBox{
			X:      nd.AbsoluteBoundingBox.X,
			Y:      nd.AbsoluteBoundingBox.Y,
			Width:  nd.AbsoluteBoundingBox.Width,
			Height: nd.AbsoluteBoundingBox.Height,
		}
	}
	el.Style = styleOf(nd)
	return el, true
}

// kindOf classifies a design node into the shared element taxonomy. Name
// heuristics cover the common design-file conventions for frames standing in
// for semantic regions.
func kindOf(nd *node) (token.Kind, bool) {
	name := strings.ToLower(nd.Name)
	switch nd.Type {
	case "TEXT":
		if nd.Style != nil && (nd.Style.FontSize >= 20 || nd.Style.FontWeight >= 600) {
			return token.KindHeading, true
		}
		return token.KindContent, true
	case "RECTANGLE", "ELLIPSE", "VECTOR", "LINE", "POLYGON", "STAR":
		for _, p := range nd.Fills {
			if p.Type == "IMAGE" {
				return token.KindImage, true
			}
		}
		return token.KindVisual, true
	case "FRAME", "GROUP", "COMPONENT", "INSTANCE", "SECTION":
		switch {
		case strings.Contains(name, "nav") || strings.Contains(name, "menu") || strings.Contains(name, "header"):
			return token.KindNavigation, true
		case strings.Contains(name, "form") || strings.Contains(name, "input") || strings.Contains(name, "field"):
			return token.KindForm, true
		case strings.Contains(name, "table"):
			return token.KindTable, true
		case strings.Contains(name, "list"):
			return token.KindList, true
		case strings.Contains(name, "button") || strings.Contains(name, "cta") || strings.Contains(name, "link"):
			return token.KindInteractive, true
		case strings.Contains(name, "image") || strings.Contains(name, "img") || strings.Contains(name, "photo") || strings.Contains(name, "logo"):
			return token.KindImage, true
		}
		return token.KindVisual, true
	case "DOCUMENT", "CANVAS", "PAGE":
		return "", false
	}
	return "", false
}

func previewOf(nd *node) string {
	if nd.Characters != "" {
		r := []rune(strings.TrimSpace(nd.Characters))
		if len(r) > 80 {
			r = r[:80]
		}
		return string(r)
	}
	return nd.Name
}

// styleOf converts design node facts into the CSS-valued snapshot the
// builder canonicalizes.
func styleOf(nd *node) token.StyleSnapshot {
	var s token.StyleSnapshot

	if nd.Type == "TEXT" {
		if c, ok := firstSolid(nd.Fills); ok {
			s.Color = c
		}
	} else if c, ok := firstSolid(nd.Fills); ok {
		s.BackgroundColor = c
	}
	if c, ok := firstSolid(nd.Strokes); ok {
		s.BorderColor = c
	}

	if nd.Style != nil {
		s.FontFamily = nd.Style.FontFamily
		if nd.Style.FontSize > 0 {
			s.FontSize = formatPx(nd.Style.FontSize)
		}
		if nd.Style.FontWeight > 0 {
			s.FontWeight = fmt.Sprintf("%d", int(nd.Style.FontWeight))
		}
	}

	if nd.CornerRadius > 0 {
		s.BorderRadius = formatPx(nd.CornerRadius)
	}
	if nd.ItemSpacing > 0 {
		s.Gap = formatPx(nd.ItemSpacing)
	}
	if nd.PaddingLeft > 0 || nd.PaddingTop > 0 {
		pad := nd.PaddingLeft
		if pad == 0 {
			pad = nd.PaddingTop
		}
		s.Padding = formatPx(pad)
	}
	return s
}

// firstSolid returns the first visible solid paint as a CSS rgba() string,
// letting the builder's canonicalizer produce the final hex form.
func firstSolid(paints []paint) (string, bool) {
	for _, p := range paints {
		if p.Type != "SOLID" || (p.Visible != nil && !*p.Visible) || p.Color == nil {
			continue
		}
		a := p.Color.A
		if p.Opacity > 0 && p.Opacity < 1 {
			a *= p.Opacity
		}
		return fmt.Sprintf("rgba(%d, %d, %d, %s)",
			int(p.Color.R*255+0.5), int(p.Color.G*255+0.5), int(p.Color.B*255+0.5),
			formatAlpha(a)), true
	}
	return "", false
}

func formatPx(v float64) string {
	if v == float64(int(v)) {
		return fmt.Sprintf("%dpx", int(v))
	}
	// The canonicalizer trims trailing zeros.
	return fmt.Sprintf("%.2fpx", v)
}

func formatAlpha(a float64) string {
	if a >= 1 {
		return "1"
	}
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.3f", a), "0"), ".")
}
