package designsource

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hazyhaar/maquette/token"
)

const filePayload = `{
	"name": "Landing",
	"document": {
		"id": "0:0", "name": "Document", "type": "DOCUMENT",
		"children": [{
			"id": "1:0", "name": "Page 1", "type": "CANVAS",
			"children": [
				{
					"id": "1:1", "name": "Hero Title", "type": "TEXT",
					"characters": "Welcome to the product",
					"absoluteBoundingBox": {"x": 0, "y": 0, "width": 800, "height": 60},
					"fills": [{"type": "SOLID", "color": {"r": 0.0666, "g": 0.0666, "b": 0.0666, "a": 1}}],
					"style": {"fontFamily": "Inter", "fontSize": 32, "fontWeight": 700}
				},
				{
					"id": "1:2", "name": "Body copy", "type": "TEXT",
					"characters": "Some body text",
					"style": {"fontFamily": "Inter", "fontSize": 16, "fontWeight": 400}
				},
				{
					"id": "1:3", "name": "Nav Bar", "type": "FRAME",
					"absoluteBoundingBox": {"x": 0, "y": 0, "width": 1280, "height": 64},
					"fills": [{"type": "SOLID", "color": {"r": 1, "g": 1, "b": 1, "a": 1}}],
					"itemSpacing": 24
				},
				{
					"id": "1:4", "name": "CTA Button", "type": "COMPONENT",
					"fills": [{"type": "SOLID", "color": {"r": 0.2, "g": 0.4, "b": 1, "a": 1}}],
					"cornerRadius": 8, "paddingLeft": 16
				},
				{
					"id": "1:5", "name": "hidden layer", "type": "RECTANGLE",
					"visible": false,
					"fills": [{"type": "SOLID", "color": {"r": 1, "g": 0, "b": 0, "a": 1}}]
				}
			]
		}]
	}
}`

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL, Token: "tok"}, srv.Client())
}

func TestFetchTokens(t *testing.T) {
	var gotAuth string
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Path != "/v1/files/abc123" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte(filePayload))
	})

	doc, err := c.FetchTokens(context.Background(), "abc123", "")
	if err != nil {
		t.Fatal(err)
	}
	if gotAuth != "Bearer tok" {
		t.Errorf("auth header = %q", gotAuth)
	}
	if !doc.Valid() || doc.Metadata.Source != "design:abc123" {
		t.Errorf("metadata: %+v", doc.Metadata)
	}

	kinds := make(map[token.Kind]int)
	for _, el := range doc.Elements {
		kinds[el.Kind]++
	}
	if kinds[token.KindHeading] != 1 {
		t.Errorf("headings: %d (32px/700 text should classify as heading)", kinds[token.KindHeading])
	}
	if kinds[token.KindContent] != 1 {
		t.Errorf("content: %d", kinds[token.KindContent])
	}
	if kinds[token.KindNavigation] != 1 {
		t.Errorf("navigation: %d (frame named Nav Bar)", kinds[token.KindNavigation])
	}
	if kinds[token.KindInteractive] != 1 {
		t.Errorf("interactive: %d (component named CTA Button)", kinds[token.KindInteractive])
	}
	if kinds[token.KindVisual] != 0 {
		t.Errorf("invisible rectangle extracted: %d visual", kinds[token.KindVisual])
	}

	// 0.0666*255 rounds to 17 = 0x11.
	if !containsStr(doc.ColorPalette, "#111111") {
		t.Errorf("palette %v missing #111111", doc.ColorPalette)
	}
	if !containsStr(doc.ColorPalette, "#3366ff") {
		t.Errorf("palette %v missing #3366ff", doc.ColorPalette)
	}
	if !containsStr(doc.Typography.FontFamilies, "Inter") {
		t.Errorf("families: %v", doc.Typography.FontFamilies)
	}
	if !containsStr(doc.BorderRadius, "8px") {
		t.Errorf("radius: %v", doc.BorderRadius)
	}
	if !containsStr(doc.Spacing, "24px") || !containsStr(doc.Spacing, "16px") {
		t.Errorf("spacing: %v", doc.Spacing)
	}
}

func TestFetchTokensNodeRef(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/files/abc123/nodes" || r.URL.Query().Get("ids") != "1:2" {
			t.Errorf("url = %s", r.URL.String())
		}
		w.Write([]byte(`{"nodes": {"1:2": {"document":
			{"id": "1:2", "name": "Body", "type": "TEXT", "characters": "hi",
			 "style": {"fontFamily": "Inter", "fontSize": 14}}}}}`))
	})

	doc, err := c.FetchTokens(context.Background(), "abc123", "1:2")
	if err != nil {
		t.Fatal(err)
	}
	if doc.Metadata.Source != "design:abc123#1:2" {
		t.Errorf("source = %s", doc.Metadata.Source)
	}
	if len(doc.Elements) != 1 {
		t.Errorf("elements: %d", len(doc.Elements))
	}
}

func TestFetchTokensMultiNodeOrderStable(t *testing.T) {
	// Node entries arrive as a JSON map; elements must come out in sorted
	// key order so identical fetches assign identical element IDs.
	payload := `{"nodes": {
		"9:9": {"document": {"id": "9:9", "name": "Last", "type": "TEXT", "characters": "c"}},
		"1:2": {"document": {"id": "1:2", "name": "First", "type": "TEXT", "characters": "a"}},
		"5:5": {"document": {"id": "5:5", "name": "Middle", "type": "TEXT", "characters": "b"}}
	}}`
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(payload))
	})

	want := []string{"a", "b", "c"}
	for run := 0; run < 5; run++ {
		doc, err := c.FetchTokens(context.Background(), "abc123", "1:2,5:5,9:9")
		if err != nil {
			t.Fatal(err)
		}
		if len(doc.Elements) != 3 {
			t.Fatalf("elements: %d", len(doc.Elements))
		}
		for i, el := range doc.Elements {
			if el.TextPreview != want[i] {
				t.Fatalf("run %d: element %d is %q, want %q", run, i, el.TextPreview, want[i])
			}
			if wantID := fmt.Sprintf("el_%03d", i+1); el.ID != wantID {
				t.Fatalf("run %d: element %d id %q, want %q", run, i, el.ID, wantID)
			}
		}
	}
}

func TestFetchTokensErrors(t *testing.T) {
	cases := []struct {
		name   string
		status int
		want   error
	}{
		{"not found", http.StatusNotFound, ErrNotFound},
		{"forbidden", http.StatusForbidden, ErrForbidden},
		{"unauthorized", http.StatusUnauthorized, ErrForbidden},
		{"rate limited", http.StatusTooManyRequests, ErrRateLimited},
		{"server error", http.StatusInternalServerError, ErrUnavailable},
		{"bad gateway", http.StatusBadGateway, ErrUnavailable},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cl := testClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(c.status)
			})
			_, err := cl.FetchTokens(context.Background(), "abc123", "")
			if !errors.Is(err, c.want) {
				t.Errorf("got %v, want %v", err, c.want)
			}
		})
	}
}

func TestFetchTokensRejectsBadFileRef(t *testing.T) {
	c := New(Config{BaseURL: "http://unused", Token: "tok"}, nil)
	if _, err := c.FetchTokens(context.Background(), "../etc/passwd", ""); err == nil {
		t.Fatal("path-traversal file ref accepted")
	}
}

func containsStr(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
