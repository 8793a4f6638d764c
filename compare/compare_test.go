package compare

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/hazyhaar/maquette/token"
)

func doc(source string, mut func(*token.Document)) *token.Document {
	d := &token.Document{
		Metadata: token.Metadata{
			Source:      source,
			ExtractedAt: time.Unix(0, 0).UTC(),
		},
	}
	if mut != nil {
		mut(d)
	}
	return d
}

func TestCompareColors(t *testing.T) {
	src := doc("design", func(d *token.Document) {
		d.ColorPalette = []string{"#ffffff", "#111111", "#3366ff"}
	})
	impl := doc("impl", func(d *token.Document) {
		d.ColorPalette = []string{"#ffffff", "#111111", "#ff0000"}
	})

	res, err := Compare(src, impl, Options{})
	if err != nil {
		t.Fatal(err)
	}
	c := res.Colors
	if len(c.Matched) != 2 {
		t.Fatalf("matched: got %d, want 2 (%+v)", len(c.Matched), c.Matched)
	}
	if len(c.Missing) != 1 || c.Missing[0] != "#3366ff" {
		t.Errorf("missing: %v", c.Missing)
	}
	if len(c.Extra) != 1 || c.Extra[0] != "#ff0000" {
		t.Errorf("extra: %v", c.Extra)
	}
	if c.Similarity != 66.7 {
		t.Errorf("similarity: got %v, want 66.7", c.Similarity)
	}
}

func TestCompareTypographyFamilyOnly(t *testing.T) {
	src := doc("design", func(d *token.Document) {
		d.Typography = token.Typography{
			FontFamilies: []string{"Inter"},
			FontSizes:    []string{"16px"},
		}
	})
	impl := doc("impl", func(d *token.Document) {
		d.Typography = token.Typography{
			FontFamilies: []string{"inter"},
			FontSizes:    []string{"14px"},
		}
	})

	res, err := Compare(src, impl, Options{})
	if err != nil {
		t.Fatal(err)
	}
	ty := res.Typography
	if len(ty.Matched) != 1 {
		t.Fatalf("matched: %+v", ty.Matched)
	}
	if ty.Matched[0].Source != "Inter" || ty.Matched[0].Implementation != "inter" {
		t.Errorf("pair: %+v", ty.Matched[0])
	}
	if ty.Similarity != 100 {
		t.Errorf("similarity: got %v, want 100", ty.Similarity)
	}
	// Size mismatch is recorded as detail, not a demotion.
	if len(ty.Details) == 0 {
		t.Error("expected font_sizes detail")
	}
}

func TestCompareDeterminism(t *testing.T) {
	src := doc("design", func(d *token.Document) {
		d.ColorPalette = []string{"#111111", "#222222"}
		d.Spacing = []string{"8px", "16px"}
		d.Elements = []token.Element{
			{ID: "s1", Kind: token.KindHeading},
			{ID: "s2", Kind: token.KindForm},
		}
	})
	impl := doc("impl", func(d *token.Document) {
		d.ColorPalette = []string{"#222222", "#333333"}
		d.Spacing = []string{"16px"}
		d.Elements = []token.Element{
			{ID: "i1", Kind: token.KindHeading},
		}
	})

	a, err := Compare(src, impl, Options{})
	if err != nil {
		t.Fatal(err)
	}
	b, err := Compare(src, impl, Options{})
	if err != nil {
		t.Fatal(err)
	}

	ja, _ := json.Marshal(a)
	jb, _ := json.Marshal(b)
	if string(ja) != string(jb) {
		t.Errorf("results differ:\n%s\n%s", ja, jb)
	}
}

func TestComparePartition(t *testing.T) {
	src := doc("design", func(d *token.Document) {
		d.ColorPalette = []string{"#111111", "#222222", "#333333"}
	})
	impl := doc("impl", func(d *token.Document) {
		d.ColorPalette = []string{"#222222", "#444444"}
	})

	res, err := Compare(src, impl, Options{})
	if err != nil {
		t.Fatal(err)
	}
	c := res.Colors
	if len(c.Matched)+len(c.Missing) != 3 {
		t.Errorf("source partition violated: %d matched + %d missing != 3",
			len(c.Matched), len(c.Missing))
	}
	if len(c.Matched)+len(c.Extra) != 2 {
		t.Errorf("implementation partition violated: %d matched + %d extra != 2",
			len(c.Matched), len(c.Extra))
	}
}

func TestCompareIdempotence(t *testing.T) {
	src := doc("design", func(d *token.Document) {
		d.ColorPalette = []string{"#111111", "#222222", "#333333"}
	})
	impl := doc("impl", func(d *token.Document) {
		d.ColorPalette = []string{"#222222", "#111111"}
	})

	first, err := Compare(src, impl, Options{})
	if err != nil {
		t.Fatal(err)
	}

	// Re-run the matcher on its own matched halves: must be a perfect match.
	var s2, i2 []string
	for _, p := range first.Colors.Matched {
		s2 = append(s2, p.Source)
		i2 = append(i2, p.Implementation)
	}
	second, err := Compare(
		doc("design", func(d *token.Document) { d.ColorPalette = s2 }),
		doc("impl", func(d *token.Document) { d.ColorPalette = i2 }),
		Options{})
	if err != nil {
		t.Fatal(err)
	}
	if second.Colors.Similarity != 100 {
		t.Errorf("idempotence: got %v, want 100", second.Colors.Similarity)
	}
	if len(second.Colors.Missing) != 0 || len(second.Colors.Extra) != 0 {
		t.Errorf("idempotence: missing=%v extra=%v", second.Colors.Missing, second.Colors.Extra)
	}
}

func TestSimilarityBounds(t *testing.T) {
	cases := []struct {
		matched, source, extra int
		want                   float64
	}{
		{0, 0, 0, 100}, // empty on both sides
		{0, 3, 0, 0},
		{3, 3, 0, 100},
		{2, 3, 1, 66.7},
		{2, 2, 1, 66.7}, // full source match but extras present: never 100
		{0, 0, 2, 0},    // source empty, implementation has tokens
	}
	for _, c := range cases {
		got := similarity(c.matched, c.source, c.extra)
		if got != c.want {
			t.Errorf("similarity(%d,%d,%d) = %v, want %v", c.matched, c.source, c.extra, got, c.want)
		}
		if got < 0 || got > 100 {
			t.Errorf("similarity(%d,%d,%d) = %v out of bounds", c.matched, c.source, c.extra, got)
		}
	}
}

func TestCompareElementsByKind(t *testing.T) {
	src := doc("design", func(d *token.Document) {
		d.Elements = []token.Element{
			{ID: "s1", Kind: token.KindHeading},
			{ID: "s2", Kind: token.KindHeading},
			{ID: "s3", Kind: token.KindForm},
		}
	})
	impl := doc("impl", func(d *token.Document) {
		d.Elements = []token.Element{
			{ID: "i1", Kind: token.KindHeading},
			{ID: "i2", Kind: token.KindTable},
		}
	})

	res, err := Compare(src, impl, Options{})
	if err != nil {
		t.Fatal(err)
	}
	e := res.Elements
	if len(e.Matched) != 1 {
		t.Fatalf("matched: %+v", e.Matched)
	}
	if len(e.Missing) != 2 {
		t.Errorf("missing: %v", e.Missing)
	}
	if len(e.Extra) != 1 || e.Extra[0] != "table:i2" {
		t.Errorf("extra: %v", e.Extra)
	}
}

func TestCompareAggregateExcludesEmptyCategories(t *testing.T) {
	src := doc("design", func(d *token.Document) {
		d.ColorPalette = []string{"#111111"}
	})
	impl := doc("impl", func(d *token.Document) {
		d.ColorPalette = []string{"#111111"}
	})

	res, err := Compare(src, impl, Options{})
	if err != nil {
		t.Fatal(err)
	}
	// Only colors are present; empty categories must not drag the mean down.
	if res.Aggregate != 100 {
		t.Errorf("aggregate: got %v, want 100", res.Aggregate)
	}
}

func TestCompareInvalidInput(t *testing.T) {
	valid := doc("impl", nil)
	if _, err := Compare(nil, valid, Options{}); err == nil {
		t.Error("nil source accepted")
	}
	if _, err := Compare(valid, &token.Document{}, Options{}); err == nil {
		t.Error("document without source identifier accepted")
	}
}
