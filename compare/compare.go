// Package compare implements the token matching engine. It consumes two
// normalized token documents (one from a design source, one from a live
// implementation) and produces a structured diff with per-category
// matched/missing/extra sets and similarity scores.
//
// Compare is a pure function: no I/O, deterministic for identical inputs.
// It relies on the canonicalization performed at document-build time and
// matches on exact equality (typography families case-insensitively).
package compare

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/hazyhaar/maquette/token"
)

// ErrInvalidInput is returned when a document is missing required fields.
var ErrInvalidInput = errors.New("compare: invalid input document")

// Weights controls the contribution of each category to the aggregate
// similarity. Categories absent from both documents are excluded from the
// weighting entirely.
type Weights struct {
	Colors       float64 `yaml:"colors"`
	Typography   float64 `yaml:"typography"`
	Spacing      float64 `yaml:"spacing"`
	BorderRadius float64 `yaml:"border_radius"`
	Elements     float64 `yaml:"elements"`
}

// DefaultWeights returns the standard category weighting.
func DefaultWeights() Weights {
	return Weights{
		Colors:       25,
		Typography:   25,
		Spacing:      15,
		BorderRadius: 10,
		Elements:     25,
	}
}

// Options configures a comparison.
type Options struct {
	Weights Weights
}

func (o *Options) defaults() {
	zero := Weights{}
	if o.Weights == zero {
		o.Weights = DefaultWeights()
	}
}

// Pair is one matched source/implementation token pair. Similarity is 100
// for exact equality; the field exists so graded matching can be introduced
// without changing the result shape.
type Pair struct {
	Source         string  `json:"source"`
	Implementation string  `json:"implementation"`
	Similarity     float64 `json:"similarity"`
	Detail         string  `json:"detail,omitempty"`
}

// Category is the diff for one token category.
type Category struct {
	Matched    []Pair   `json:"matched"`
	Missing    []string `json:"missing"`
	Extra      []string `json:"extra"`
	Similarity float64  `json:"similarity"`
	Details    []string `json:"details,omitempty"`
}

func (c Category) present() bool {
	return len(c.Matched)+len(c.Missing)+len(c.Extra) > 0
}

// Result is the full comparison output. Immutable once returned.
type Result struct {
	Colors       Category `json:"colors"`
	Typography   Category `json:"typography"`
	Spacing      Category `json:"spacing"`
	BorderRadius Category `json:"border_radius"`
	Elements     Category `json:"elements"`
	Aggregate    float64  `json:"aggregate"`
}

// Compare matches the tokens of two documents. src is the design source,
// impl the live implementation. Malformed documents yield ErrInvalidInput.
func Compare(src, impl *token.Document, opts Options) (*Result, error) {
	if !src.Valid() {
		return nil, fmt.Errorf("%w: source", ErrInvalidInput)
	}
	if !impl.Valid() {
		return nil, fmt.Errorf("%w: implementation", ErrInvalidInput)
	}
	opts.defaults()

	res := &Result{
		Colors:       matchValues(src.ColorPalette, impl.ColorPalette, false),
		Typography:   matchTypography(src.Typography, impl.Typography),
		Spacing:      matchValues(src.Spacing, impl.Spacing, false),
		BorderRadius: matchValues(src.BorderRadius, impl.BorderRadius, false),
		Elements:     matchElements(src.Elements, impl.Elements),
	}

	res.Aggregate = aggregate(res, opts.Weights)
	return res, nil
}

// matchValues pairs canonicalized token values by equality. With fold set,
// equality is case-insensitive (the canonical key is lowercased) while the
// original spellings are reported in the pair.
func matchValues(src, impl []string, fold bool) Category {
	key := func(v string) string {
		if fold {
			return strings.ToLower(v)
		}
		return v
	}

	remaining := make(map[string][]string, len(impl))
	for _, v := range impl {
		k := key(v)
		remaining[k] = append(remaining[k], v)
	}

	cat := Category{}
	for _, s := range src {
		k := key(s)
		if vals := remaining[k]; len(vals) > 0 {
			cat.Matched = append(cat.Matched, Pair{
				Source:         s,
				Implementation: vals[0],
				Similarity:     100,
			})
			remaining[k] = vals[1:]
			continue
		}
		cat.Missing = append(cat.Missing, s)
	}
	// Leftover implementation tokens, in document order.
	for _, v := range impl {
		k := key(v)
		if vals := remaining[k]; len(vals) > 0 && vals[0] == v {
			cat.Extra = append(cat.Extra, v)
			remaining[k] = vals[1:]
		}
	}

	cat.Similarity = similarity(len(cat.Matched), len(cat.Matched)+len(cat.Missing), len(cat.Extra))
	return cat
}

// matchTypography matches font families case-insensitively; size and weight
// overlap is recorded as category detail but does not demote family matches.
func matchTypography(src, impl token.Typography) Category {
	cat := matchValues(src.FontFamilies, impl.FontFamilies, true)

	if d := overlapDetail("font_sizes", src.FontSizes, impl.FontSizes); d != "" {
		cat.Details = append(cat.Details, d)
	}
	if d := overlapDetail("font_weights", src.FontWeights, impl.FontWeights); d != "" {
		cat.Details = append(cat.Details, d)
	}
	return cat
}

func overlapDetail(name string, src, impl []string) string {
	if len(src) == 0 {
		return ""
	}
	in := make(map[string]bool, len(impl))
	for _, v := range impl {
		in[v] = true
	}
	shared := 0
	for _, v := range src {
		if in[v] {
			shared++
		}
	}
	return fmt.Sprintf("%s: %d/%d shared", name, shared, len(src))
}

// matchElements pairs structural elements by kind, in discovery order within
// each kind. Discovery order is only a tie-break; kinds are the match key.
func matchElements(src, impl []token.Element) Category {
	byKind := make(map[token.Kind][]token.Element)
	for _, e := range impl {
		byKind[e.Kind] = append(byKind[e.Kind], e)
	}

	cat := Category{}
	for _, s := range src {
		if pool := byKind[s.Kind]; len(pool) > 0 {
			cat.Matched = append(cat.Matched, Pair{
				Source:         elementLabel(s),
				Implementation: elementLabel(pool[0]),
				Similarity:     100,
			})
			byKind[s.Kind] = pool[1:]
			continue
		}
		cat.Missing = append(cat.Missing, elementLabel(s))
	}
	for _, e := range impl {
		if pool := byKind[e.Kind]; len(pool) > 0 && pool[0].ID == e.ID {
			cat.Extra = append(cat.Extra, elementLabel(e))
			byKind[e.Kind] = pool[1:]
		}
	}

	cat.Similarity = similarity(len(cat.Matched), len(cat.Matched)+len(cat.Missing), len(cat.Extra))
	return cat
}

func elementLabel(e token.Element) string {
	if e.ID != "" {
		return string(e.Kind) + ":" + e.ID
	}
	return string(e.Kind)
}

// similarity scores a category on a 0–100 scale. The base rule is
// matched/source; unmatched implementation tokens widen the denominator so
// that a category with extras never reports 100. A category empty on both
// sides scores 100 (and is excluded from the aggregate weighting).
func similarity(matched, source, extra int) float64 {
	if source == 0 && extra == 0 {
		return 100
	}
	denom := source
	if matched+extra > denom {
		denom = matched + extra
	}
	if denom < 1 {
		denom = 1
	}
	return round1(float64(matched) / float64(denom) * 100)
}

func aggregate(r *Result, w Weights) float64 {
	type weighted struct {
		cat    Category
		weight float64
	}
	cats := []weighted{
		{r.Colors, w.Colors},
		{r.Typography, w.Typography},
		{r.Spacing, w.Spacing},
		{r.BorderRadius, w.BorderRadius},
		{r.Elements, w.Elements},
	}

	var sum, total float64
	for _, c := range cats {
		if !c.cat.present() || c.weight <= 0 {
			continue
		}
		sum += c.cat.Similarity * c.weight
		total += c.weight
	}
	if total == 0 {
		return 0
	}
	return round1(sum / total)
}

func round1(f float64) float64 {
	return math.Round(f*10) / 10
}
