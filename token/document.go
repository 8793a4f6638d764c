// Package token defines the normalized token document: the canonical
// intermediate representation of a page's design tokens (structural elements,
// color palette, typography, spacing) produced uniformly from either a design
// source or a live rendered implementation.
//
// Canonicalization happens here, once, at document-build time. Downstream
// consumers (the comparator in particular) rely on exact string equality and
// never re-normalize.
package token

import "time"

// Kind classifies a structural element.
type Kind string

const (
	KindHeading     Kind = "heading"
	KindNavigation  Kind = "navigation"
	KindForm        Kind = "form"
	KindTable       Kind = "table"
	KindList        Kind = "list"
	KindInteractive Kind = "interactive"
	KindImage       Kind = "image"
	KindContent     Kind = "content"
	KindVisual      Kind = "visual"
)

// BoundingBox is the rendered geometry of an element in CSS pixels.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Area returns width × height, never negative.
func (b BoundingBox) Area() float64 {
	if b.Width <= 0 || b.Height <= 0 {
		return 0
	}
	return b.Width * b.Height
}

// Near reports whether two boxes coincide within tol pixels on all four
// geometry fields. Used for cross-pass deduplication.
func (b BoundingBox) Near(o BoundingBox, tol float64) bool {
	return abs(b.X-o.X) <= tol && abs(b.Y-o.Y) <= tol &&
		abs(b.Width-o.Width) <= tol && abs(b.Height-o.Height) <= tol
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// StyleSnapshot captures the computed style facts relevant to token
// comparison. All values are canonicalized strings; absent facts are empty.
type StyleSnapshot struct {
	Color           string `json:"color,omitempty"`
	BackgroundColor string `json:"background_color,omitempty"`
	BorderColor     string `json:"border_color,omitempty"`
	FontFamily      string `json:"font_family,omitempty"`
	FontSize        string `json:"font_size,omitempty"`
	FontWeight      string `json:"font_weight,omitempty"`
	Padding         string `json:"padding,omitempty"`
	Margin          string `json:"margin,omitempty"`
	Gap             string `json:"gap,omitempty"`
	BorderRadius    string `json:"border_radius,omitempty"`
}

// Element is one structural element discovered on a page or in a design
// document. Order of elements is discovery order.
type Element struct {
	ID          string        `json:"id"`
	Kind        Kind          `json:"kind"`
	TextPreview string        `json:"text_preview,omitempty"`
	Box         BoundingBox   `json:"box"`
	Style       StyleSnapshot `json:"style"`
	SourceTag   string        `json:"source_tag,omitempty"`
}

// Typography aggregates the deduplicated font facts of a document.
// Slices are sorted for deterministic output.
type Typography struct {
	FontFamilies []string `json:"font_families"`
	FontSizes    []string `json:"font_sizes"`
	FontWeights  []string `json:"font_weights"`
}

// Metadata identifies where and when a document was extracted.
type Metadata struct {
	Source       string    `json:"source"`
	ExtractedAt  time.Time `json:"extracted_at"`
	ElementCount int       `json:"element_count"`
}

// Document is the normalized token document. All token value slices are
// deduplicated, canonicalized, capped, and sorted.
type Document struct {
	Elements     []Element  `json:"elements"`
	ColorPalette []string   `json:"color_palette"`
	Typography   Typography `json:"typography"`
	Spacing      []string   `json:"spacing"`
	BorderRadius []string   `json:"border_radius"`
	Metadata     Metadata   `json:"metadata"`
}

// Valid reports whether the document carries the fields the comparator
// requires. A nil document is invalid.
func (d *Document) Valid() bool {
	return d != nil && d.Metadata.Source != ""
}
