package token

import "testing"

func TestCanonicalColor(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"#FFFFFF", "#ffffff", true},
		{"#fff", "#ffffff", true},
		{"#3366FF", "#3366ff", true},
		{"#112233ff", "#112233", true},
		{"#11223380", "#11223380", true},
		{"#11223300", "", false},
		{"rgb(255, 255, 255)", "#ffffff", true},
		{"rgba(17, 17, 17, 1)", "#111111", true},
		{"rgba(0, 0, 0, 0)", "", false},
		{"rgba(255, 0, 0, 0.5)", "#ff000080", true},
		{"rgb(100%, 0%, 0%)", "#ff0000", true},
		{"transparent", "", false},
		{"none", "", false},
		{"", "", false},
		{"RebeccaPurple", "rebeccapurple", true},
	}
	for _, c := range cases {
		got, ok := CanonicalColor(c.in)
		if ok != c.ok || got != c.want {
			t.Errorf("CanonicalColor(%q) = %q,%v; want %q,%v", c.in, got, ok, c.want, c.ok)
		}
	}
}

func TestCanonicalSize(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"16px", "16px", true},
		{"16.0px", "16px", true},
		{"16.50px", "16.5px", true},
		{"0px", "0", true},
		{"0", "0", true},
		{" 1.5rem ", "1.5rem", true},
		{"8px 16px", "8px 16px", true},
		{"8.0px 16.0px", "8px 16px", true},
		{"auto", "", false},
		{"", "", false},
	}
	for _, c := range cases {
		got, ok := CanonicalSize(c.in)
		if ok != c.ok || got != c.want {
			t.Errorf("CanonicalSize(%q) = %q,%v; want %q,%v", c.in, got, ok, c.want, c.ok)
		}
	}
}

func TestSplitFontFamilies(t *testing.T) {
	got := SplitFontFamilies(`"Inter", 'Helvetica Neue', sans-serif`)
	want := []string{"Inter", "Helvetica Neue"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("family %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestCanonicalFontWeight(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"normal", "400", true},
		{"bold", "700", true},
		{"600", "600", true},
		{"", "", false},
		{"heavy", "", false},
	}
	for _, c := range cases {
		got, ok := CanonicalFontWeight(c.in)
		if ok != c.ok || got != c.want {
			t.Errorf("CanonicalFontWeight(%q) = %q,%v; want %q,%v", c.in, got, ok, c.want, c.ok)
		}
	}
}

func TestBuilderCapsAndDedup(t *testing.T) {
	b := NewBuilder("test", Limits{MaxElements: 2, MaxColors: 2})

	if !b.AddElement(Element{ID: "e1", Kind: KindHeading}) {
		t.Fatal("first element rejected")
	}
	if !b.AddElement(Element{ID: "e2", Kind: KindContent}) {
		t.Fatal("second element rejected")
	}
	if b.AddElement(Element{ID: "e3", Kind: KindContent}) {
		t.Error("element cap not enforced")
	}

	b.AddColor("#FFFFFF")
	b.AddColor("#ffffff") // duplicate after canonicalization
	b.AddColor("#000000")
	b.AddColor("#ff0000") // over cap

	doc := b.Document()
	if len(doc.ColorPalette) != 2 {
		t.Errorf("palette: got %d colors, want 2 (%v)", len(doc.ColorPalette), doc.ColorPalette)
	}
	if doc.Metadata.ElementCount != 2 {
		t.Errorf("element count: got %d, want 2", doc.Metadata.ElementCount)
	}
}

func TestBuilderFoldsElementStyle(t *testing.T) {
	b := NewBuilder("test", Limits{})
	b.AddElement(Element{
		ID:   "e1",
		Kind: KindHeading,
		Style: StyleSnapshot{
			Color:        "rgb(51, 102, 255)",
			FontFamily:   `"Inter", sans-serif`,
			FontSize:     "32.0px",
			FontWeight:   "bold",
			Padding:      "8px 16.0px",
			BorderRadius: "4.0px",
		},
	})
	doc := b.Document()

	if len(doc.ColorPalette) != 1 || doc.ColorPalette[0] != "#3366ff" {
		t.Errorf("palette: %v", doc.ColorPalette)
	}
	if len(doc.Typography.FontFamilies) != 1 || doc.Typography.FontFamilies[0] != "Inter" {
		t.Errorf("families: %v", doc.Typography.FontFamilies)
	}
	if len(doc.Typography.FontSizes) != 1 || doc.Typography.FontSizes[0] != "32px" {
		t.Errorf("sizes: %v", doc.Typography.FontSizes)
	}
	if len(doc.Typography.FontWeights) != 1 || doc.Typography.FontWeights[0] != "700" {
		t.Errorf("weights: %v", doc.Typography.FontWeights)
	}
	if len(doc.Spacing) != 2 {
		t.Errorf("spacing: %v", doc.Spacing)
	}
	if len(doc.BorderRadius) != 1 || doc.BorderRadius[0] != "4px" {
		t.Errorf("radius: %v", doc.BorderRadius)
	}
}

func TestBoundingBoxNear(t *testing.T) {
	a := BoundingBox{X: 10, Y: 20, Width: 100, Height: 50}
	if !a.Near(BoundingBox{X: 12, Y: 18, Width: 103, Height: 48}, 5) {
		t.Error("expected near within tolerance")
	}
	if a.Near(BoundingBox{X: 30, Y: 20, Width: 100, Height: 50}, 5) {
		t.Error("expected not near beyond tolerance")
	}
}
