package extract

import (
	"encoding/json"
	"testing"

	"github.com/hazyhaar/maquette/token"
)

func TestRawElementDecode(t *testing.T) {
	// Shape emitted by the page scripts, including the visual pass's extra
	// area field, which must be tolerated.
	payload := `[{"kind":"heading","tag":"h1","text":"Hi","x":10,"y":20,"w":300,"h":40,
		"area":12000,
		"style":{"color":"rgb(17, 17, 17)","backgroundColor":"rgba(0, 0, 0, 0)","fontFamily":"Inter, sans-serif","fontSize":"32px","fontWeight":"700","padding":"0px","margin":"16px 0px","borderRadius":"0px"}}]`

	var els []rawElement
	if err := json.Unmarshal([]byte(payload), &els); err != nil {
		t.Fatal(err)
	}
	if len(els) != 1 {
		t.Fatalf("decoded %d elements", len(els))
	}
	el := els[0]
	if el.Kind != "heading" || el.Tag != "h1" || el.W != 300 {
		t.Errorf("decoded element: %+v", el)
	}
	if el.Style.FontSize != "32px" || el.Style.Color != "rgb(17, 17, 17)" {
		t.Errorf("decoded style: %+v", el.Style)
	}
}

func TestNearAnyDeduplication(t *testing.T) {
	semantic := []token.BoundingBox{
		{X: 10, Y: 20, Width: 300, Height: 40},
		{X: 0, Y: 500, Width: 1280, Height: 80},
	}

	// Within tolerance on all four fields: duplicate.
	dup := token.BoundingBox{X: 12, Y: 18, Width: 303, Height: 42}
	if !nearAny(dup, semantic, 5) {
		t.Error("near-identical box not deduplicated")
	}

	// One field out of tolerance: distinct.
	distinct := token.BoundingBox{X: 12, Y: 18, Width: 330, Height: 42}
	if nearAny(distinct, semantic, 5) {
		t.Error("distinct box wrongly deduplicated")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("  short  ", 80); got != "short" {
		t.Errorf("truncate trims: %q", got)
	}
	if got := truncate("aaaaaaaaaaaa", 5); got != "aaaaa" {
		t.Errorf("truncate cap: %q", got)
	}
	if got := truncate("héllo wörld", 7); len([]rune(got)) != 7 {
		t.Errorf("truncate must cut on rune boundary: %q", got)
	}
}

func TestConfigDefaults(t *testing.T) {
	var c Config
	c.defaults()
	if c.VisualTopN != 60 || c.Retries != 2 || c.DedupTolerance != 5 {
		t.Errorf("defaults: %+v", c)
	}
}
