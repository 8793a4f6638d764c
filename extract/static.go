package extract

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/maquette/token"
)

// staticCategories maps element kinds to the selectors the static pass
// queries. Mirrors the browser-side semantic pass; supports the simple
// selector subset: tag, .class, #id, tag[attr], tag[attr=val].
var staticCategories = []struct {
	kind      token.Kind
	selectors []string
}{
	{token.KindHeading, []string{"h1", "h2", "h3", "h4", "h5", "h6"}},
	{token.KindNavigation, []string{"nav", "[role=navigation]"}},
	{token.KindForm, []string{"form", "input", "select", "textarea"}},
	{token.KindTable, []string{"table"}},
	{token.KindList, []string{"ul", "ol", "dl"}},
	{token.KindInteractive, []string{"button", "a[href]"}},
	{token.KindImage, []string{"img", "svg", "picture"}},
	{token.KindContent, []string{"main", "article", "section", "p"}},
}

// StaticExtract derives a token document from raw HTML without a browser.
// No rendered geometry is available, so bounding boxes are zero and style
// facts come from inline style attributes and <style> blocks only. Used for
// server-rendered pages where IsSufficient reports a browser isn't needed.
func StaticExtract(rawHTML []byte, source string, limits token.Limits) (*token.Document, error) {
	doc, err := html.Parse(bytes.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("extract: parse html: %w", err)
	}

	b := token.NewBuilder(source, limits)
	n := 0
	seen := make(map[*html.Node]struct{})

	for _, cat := range staticCategories {
		for _, sel := range cat.selectors {
			for _, node := range querySelectorAll(doc, sel) {
				if _, dup := seen[node]; dup {
					continue
				}
				seen[node] = struct{}{}
				n++
				b.AddElement(token.Element{
					ID:          fmt.Sprintf("el_%03d", n),
					Kind:        cat.kind,
					TextPreview: truncate(collectText(node), 80),
					Style:       styleFromAttr(getAttr(node, "style")),
					SourceTag:   node.Data,
				})
			}
		}
	}

	for _, styleNode := range querySelectorAll(doc, "style") {
		var css strings.Builder
		for c := styleNode.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.TextNode {
				css.WriteString(c.Data)
			}
		}
		foldStyleBlock(b, css.String())
	}

	return b.Document(), nil
}

// styleFromAttr parses an inline style attribute into a snapshot.
func styleFromAttr(style string) token.StyleSnapshot {
	var s token.StyleSnapshot
	for prop, val := range parseDeclarations(style) {
		switch prop {
		case "color":
			s.Color = val
		case "background-color", "background":
			s.BackgroundColor = val
		case "border-color":
			s.BorderColor = val
		case "font-family":
			s.FontFamily = val
		case "font-size":
			s.FontSize = val
		case "font-weight":
			s.FontWeight = val
		case "padding":
			s.Padding = val
		case "margin":
			s.Margin = val
		case "gap":
			s.Gap = val
		case "border-radius":
			s.BorderRadius = val
		}
	}
	return s
}

// foldStyleBlock scans a <style> block's declarations for token values.
// Rule structure is ignored; only property values matter for the palette.
func foldStyleBlock(b *token.Builder, css string) {
	for _, chunk := range strings.Split(css, "}") {
		if i := strings.IndexByte(chunk, '{'); i >= 0 {
			chunk = chunk[i+1:]
		}
		for prop, val := range parseDeclarations(chunk) {
			switch prop {
			case "color", "background-color", "border-color":
				b.AddColor(val)
			case "font-family":
				b.AddFontFamily(val)
			case "font-size":
				b.AddFontSize(val)
			case "font-weight":
				b.AddFontWeight(val)
			case "padding", "margin", "gap":
				b.AddSpacing(val)
			case "border-radius":
				b.AddBorderRadius(val)
			}
		}
	}
}

// parseDeclarations splits "prop: val; prop: val" into a map.
func parseDeclarations(s string) map[string]string {
	out := make(map[string]string)
	for _, decl := range strings.Split(s, ";") {
		i := strings.IndexByte(decl, ':')
		if i < 0 {
			continue
		}
		prop := strings.ToLower(strings.TrimSpace(decl[:i]))
		val := strings.TrimSpace(decl[i+1:])
		if prop != "" && val != "" {
			out[prop] = val
		}
	}
	return out
}

// IsSufficient reports whether raw HTML has enough real content for the
// static pass, indicating a browser isn't needed. SPA shells and
// script-dominated payloads fail the check.
func IsSufficient(rawHTML []byte) bool {
	if len(rawHTML) < 256 {
		return false
	}

	textLen, markupLen := textMarkupRatio(rawHTML)
	total := textLen + markupLen
	if total == 0 {
		return false
	}
	if float64(textLen)/float64(total) < 0.10 {
		return false
	}
	if textLen < 200 {
		return false
	}

	lower := bytes.ToLower(rawHTML)
	spaShells := []string{
		`<div id="root"></div>`,
		`<div id="app"></div>`,
		`<div id="__next"></div>`,
		`<noscript>you need to enable javascript`,
		`<noscript>enable javascript`,
	}
	for _, shell := range spaShells {
		if bytes.Contains(lower, []byte(shell)) {
			return false
		}
	}
	return true
}

// textMarkupRatio approximates visible-text vs markup byte counts, skipping
// script and style bodies.
func textMarkupRatio(rawHTML []byte) (text, markup int) {
	inTag := false
	inScript := false
	inStyle := false

	s := string(rawHTML)
	i := 0
	for i < len(s) {
		if inScript {
			idx := strings.Index(s[i:], "</script")
			if idx == -1 {
				break
			}
			markup += idx + len("</script>")
			i += idx
			if end := strings.IndexByte(s[i:], '>'); end >= 0 {
				i += end + 1
			}
			inScript = false
			continue
		}
		if inStyle {
			idx := strings.Index(s[i:], "</style")
			if idx == -1 {
				break
			}
			markup += idx + len("</style>")
			i += idx
			if end := strings.IndexByte(s[i:], '>'); end >= 0 {
				i += end + 1
			}
			inStyle = false
			continue
		}

		ch := s[i]
		if ch == '<' {
			inTag = true
			markup++
			rest := strings.ToLower(s[i:])
			if strings.HasPrefix(rest, "<script") {
				inScript = true
			} else if strings.HasPrefix(rest, "<style") {
				inStyle = true
			}
			i++
			continue
		}
		if ch == '>' {
			inTag = false
			markup++
			i++
			continue
		}
		if inTag {
			markup++
		} else if ch != ' ' && ch != '\t' && ch != '\n' && ch != '\r' {
			text++
		}
		i++
	}
	return text, markup
}

// querySelectorAll returns all nodes matching a simple selector, with space
// meaning the descendant combinator.
func querySelectorAll(doc *html.Node, selector string) []*html.Node {
	parts := strings.Fields(selector)
	if len(parts) == 0 {
		return nil
	}
	matches := matchSimple(doc, parts[0])
	for i := 1; i < len(parts); i++ {
		var next []*html.Node
		for _, parent := range matches {
			next = append(next, matchSimple(parent, parts[i])...)
		}
		matches = next
	}
	return matches
}

func matchSimple(root *html.Node, sel string) []*html.Node {
	m := parseSimpleSelector(sel)
	var results []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if matchesSelector(n, m) {
			results = append(results, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return results
}

type simpleSelector struct {
	tag     string
	id      string
	class   string
	attrKey string
	attrVal string
}

func parseSimpleSelector(sel string) simpleSelector {
	var s simpleSelector

	if idx := strings.IndexByte(sel, '['); idx >= 0 {
		attrPart := strings.TrimRight(sel[idx+1:], "]")
		sel = sel[:idx]
		if eqIdx := strings.IndexByte(attrPart, '='); eqIdx >= 0 {
			s.attrKey = attrPart[:eqIdx]
			s.attrVal = strings.Trim(attrPart[eqIdx+1:], `"'`)
		} else {
			s.attrKey = attrPart
		}
	}
	if idx := strings.IndexByte(sel, '#'); idx >= 0 {
		s.id = sel[idx+1:]
		sel = sel[:idx]
	}
	if idx := strings.IndexByte(sel, '.'); idx >= 0 {
		s.class = sel[idx+1:]
		sel = sel[:idx]
	}
	s.tag = sel
	return s
}

func matchesSelector(n *html.Node, s simpleSelector) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if s.tag != "" && n.Data != s.tag {
		return false
	}
	if s.id != "" && getAttr(n, "id") != s.id {
		return false
	}
	if s.class != "" {
		found := false
		for _, c := range strings.Fields(getAttr(n, "class")) {
			if c == s.class {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if s.attrKey != "" {
		if s.attrVal != "" {
			if getAttr(n, s.attrKey) != s.attrVal {
				return false
			}
		} else if !hasAttr(n, s.attrKey) {
			return false
		}
	}
	return true
}

func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, key string) bool {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return true
		}
	}
	return false
}

// collectText extracts visible text from a node subtree, skipping script,
// style, and noscript bodies.
func collectText(n *html.Node) string {
	var sb strings.Builder
	var f func(*html.Node)
	f = func(n *html.Node) {
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				if sb.Len() > 0 {
					sb.WriteByte(' ')
				}
				sb.WriteString(t)
			}
		}
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Noscript:
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			f(c)
		}
	}
	f(n)
	return sb.String()
}
