package token

import (
	"sort"
	"strings"
	"time"
)

// Limits caps the size of a document to keep memory bounded on pathological
// pages. Zero values take the defaults.
type Limits struct {
	MaxElements int `yaml:"max_elements"`
	MaxColors   int `yaml:"max_colors"`
	MaxFonts    int `yaml:"max_fonts"`
	MaxValues   int `yaml:"max_values"` // per spacing/border-radius set
}

func (l *Limits) defaults() {
	if l.MaxElements <= 0 {
		l.MaxElements = 200
	}
	if l.MaxColors <= 0 {
		l.MaxColors = 64
	}
	if l.MaxFonts <= 0 {
		l.MaxFonts = 32
	}
	if l.MaxValues <= 0 {
		l.MaxValues = 64
	}
}

// Builder accumulates tokens and produces a capped, deduplicated Document.
// Not safe for concurrent use; one builder per extraction.
type Builder struct {
	limits   Limits
	source   string
	elements []Element
	colors   *set
	families *set
	sizes    *set
	weights  *set
	spacing  *set
	radius   *set
}

// NewBuilder creates a Builder for the given source identifier.
func NewBuilder(source string, limits Limits) *Builder {
	limits.defaults()
	return &Builder{
		limits:   limits,
		source:   source,
		colors:   newSet(limits.MaxColors),
		families: newSet(limits.MaxFonts),
		sizes:    newSet(limits.MaxFonts),
		weights:  newSet(limits.MaxFonts),
		spacing:  newSet(limits.MaxValues),
		radius:   newSet(limits.MaxValues),
	}
}

// AddElement appends an element, folding its style snapshot into the token
// sets. Returns false once the element cap is reached.
func (b *Builder) AddElement(e Element) bool {
	if len(b.elements) >= b.limits.MaxElements {
		return false
	}
	e.Style = b.foldStyle(e.Style)
	b.elements = append(b.elements, e)
	return true
}

// foldStyle canonicalizes a snapshot and records its tokens.
func (b *Builder) foldStyle(s StyleSnapshot) StyleSnapshot {
	s.Color = b.addColorOK(s.Color)
	s.BackgroundColor = b.addColorOK(s.BackgroundColor)
	s.BorderColor = b.addColorOK(s.BorderColor)

	if fams := SplitFontFamilies(s.FontFamily); len(fams) > 0 {
		for _, f := range fams {
			b.families.add(f)
		}
		s.FontFamily = fams[0]
	} else {
		s.FontFamily = ""
	}
	if v, ok := CanonicalSize(s.FontSize); ok {
		b.sizes.add(v)
		s.FontSize = v
	} else {
		s.FontSize = ""
	}
	if v, ok := CanonicalFontWeight(s.FontWeight); ok {
		b.weights.add(v)
		s.FontWeight = v
	} else {
		s.FontWeight = ""
	}

	s.Padding = b.addSpacingOK(s.Padding)
	s.Margin = b.addSpacingOK(s.Margin)
	s.Gap = b.addSpacingOK(s.Gap)

	if v, ok := CanonicalSize(s.BorderRadius); ok && v != "0" {
		b.radius.add(v)
		s.BorderRadius = v
	} else {
		s.BorderRadius = ""
	}
	return s
}

func (b *Builder) addColorOK(raw string) string {
	v, ok := CanonicalColor(raw)
	if !ok {
		return ""
	}
	b.colors.add(v)
	return v
}

func (b *Builder) addSpacingOK(raw string) string {
	v, ok := CanonicalSize(raw)
	if !ok || v == "0" {
		return ""
	}
	// Shorthand values contribute each component to the spacing set.
	for _, part := range strings.Fields(v) {
		if part != "0" {
			b.spacing.add(part)
		}
	}
	return v
}

// AddColor records a standalone palette color.
func (b *Builder) AddColor(raw string) { b.addColorOK(raw) }

// AddFontFamily records a standalone font family (or family list).
func (b *Builder) AddFontFamily(raw string) {
	for _, f := range SplitFontFamilies(raw) {
		b.families.add(f)
	}
}

// AddFontSize records a standalone font size.
func (b *Builder) AddFontSize(raw string) {
	if v, ok := CanonicalSize(raw); ok {
		b.sizes.add(v)
	}
}

// AddFontWeight records a standalone font weight.
func (b *Builder) AddFontWeight(raw string) {
	if v, ok := CanonicalFontWeight(raw); ok {
		b.weights.add(v)
	}
}

// AddSpacing records a standalone spacing value.
func (b *Builder) AddSpacing(raw string) { b.addSpacingOK(raw) }

// AddBorderRadius records a standalone border-radius value.
func (b *Builder) AddBorderRadius(raw string) {
	if v, ok := CanonicalSize(raw); ok && v != "0" {
		b.radius.add(v)
	}
}

// Len returns the current element count.
func (b *Builder) Len() int { return len(b.elements) }

// Document finalizes the builder. Token sets come out sorted so that two
// extractions of identical content produce byte-identical documents.
func (b *Builder) Document() *Document {
	return &Document{
		Elements:     b.elements,
		ColorPalette: b.colors.sorted(),
		Typography: Typography{
			FontFamilies: b.families.sorted(),
			FontSizes:    b.sizes.sorted(),
			FontWeights:  b.weights.sorted(),
		},
		Spacing:      b.spacing.sorted(),
		BorderRadius: b.radius.sorted(),
		Metadata: Metadata{
			Source:       b.source,
			ExtractedAt:  time.Now().UTC(),
			ElementCount: len(b.elements),
		},
	}
}

// set is a capped insertion set of strings.
type set struct {
	cap  int
	seen map[string]struct{}
}

func newSet(cap int) *set {
	return &set{cap: cap, seen: make(map[string]struct{})}
}

func (s *set) add(v string) {
	if v == "" || len(s.seen) >= s.cap {
		return
	}
	s.seen[v] = struct{}{}
}

func (s *set) sorted() []string {
	out := make([]string, 0, len(s.seen))
	for v := range s.seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
