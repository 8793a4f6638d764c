package token

import (
	"fmt"
	"strconv"
	"strings"
)

// CanonicalColor normalizes a CSS color value to a canonical lowercase hex
// string: #rrggbb, or #rrggbbaa when the alpha channel is meaningful.
// Returns false for values that carry no color information (empty, none,
// transparent, inherit, fully transparent rgba).
//
// Unrecognized but plausible values (named colors, color functions we do not
// parse) pass through lowercased and trimmed, so that two sources emitting
// the same spelling still match.
func CanonicalColor(raw string) (string, bool) {
	v := strings.ToLower(strings.TrimSpace(raw))
	switch v {
	case "", "none", "transparent", "inherit", "initial", "unset", "currentcolor":
		return "", false
	}

	if strings.HasPrefix(v, "#") {
		return canonicalHex(v)
	}
	if strings.HasPrefix(v, "rgb(") || strings.HasPrefix(v, "rgba(") {
		return canonicalRGB(v)
	}
	return v, true
}

func canonicalHex(v string) (string, bool) {
	h := v[1:]
	switch len(h) {
	case 3, 4:
		var sb strings.Builder
		sb.WriteByte('#')
		for i := 0; i < len(h); i++ {
			sb.WriteByte(h[i])
			sb.WriteByte(h[i])
		}
		return canonicalHex(sb.String())
	case 6:
		if !isHex(h) {
			return "", false
		}
		return "#" + h, true
	case 8:
		if !isHex(h) {
			return "", false
		}
		if h[6:] == "00" {
			return "", false // fully transparent
		}
		if h[6:] == "ff" {
			return "#" + h[:6], true
		}
		return "#" + h, true
	}
	return "", false
}

func canonicalRGB(v string) (string, bool) {
	open := strings.IndexByte(v, '(')
	close := strings.LastIndexByte(v, ')')
	if open < 0 || close <= open {
		return "", false
	}
	body := v[open+1 : close]
	body = strings.ReplaceAll(body, "/", ",")
	parts := strings.FieldsFunc(body, func(r rune) bool { return r == ',' || r == ' ' })
	if len(parts) < 3 {
		return "", false
	}

	var ch [3]int
	for i := 0; i < 3; i++ {
		n, err := parseChannel(parts[i])
		if err != nil {
			return "", false
		}
		ch[i] = n
	}

	alpha := 255
	if len(parts) >= 4 {
		a, err := strconv.ParseFloat(strings.TrimSuffix(parts[3], "%"), 64)
		if err != nil {
			return "", false
		}
		if strings.HasSuffix(parts[3], "%") {
			a /= 100
		}
		if a <= 0 {
			return "", false
		}
		if a > 1 {
			a = 1
		}
		alpha = int(a*255 + 0.5)
	}

	if alpha == 255 {
		return fmt.Sprintf("#%02x%02x%02x", ch[0], ch[1], ch[2]), true
	}
	return fmt.Sprintf("#%02x%02x%02x%02x", ch[0], ch[1], ch[2], alpha), true
}

func parseChannel(s string) (int, error) {
	if strings.HasSuffix(s, "%") {
		f, err := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64)
		if err != nil {
			return 0, err
		}
		return clamp255(int(f*2.55 + 0.5)), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	return clamp255(int(f + 0.5)), nil
}

func clamp255(n int) int {
	if n < 0 {
		return 0
	}
	if n > 255 {
		return 255
	}
	return n
}

func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			return false
		}
	}
	return true
}

// CanonicalSize normalizes a CSS length value: lowercase, no surrounding
// whitespace, trailing decimal zeros removed ("16.0px" → "16px"), bare zero
// collapsed ("0px" → "0"). Returns false for empty/auto/inherit values.
func CanonicalSize(raw string) (string, bool) {
	v := strings.ToLower(strings.TrimSpace(raw))
	switch v {
	case "", "auto", "normal", "inherit", "initial", "unset":
		return "", false
	}

	// Multi-value shorthands ("8px 16px") normalize per component.
	if strings.ContainsRune(v, ' ') {
		fields := strings.Fields(v)
		for i, f := range fields {
			c, ok := CanonicalSize(f)
			if !ok {
				return "", false
			}
			fields[i] = c
		}
		return strings.Join(fields, " "), true
	}

	num, unit := splitUnit(v)
	if num == "" {
		return v, true
	}
	f, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return v, true
	}
	if f == 0 {
		return "0", true
	}
	return strconv.FormatFloat(f, 'f', -1, 64) + unit, true
}

func splitUnit(v string) (num, unit string) {
	i := len(v)
	for i > 0 {
		c := v[i-1]
		if c >= '0' && c <= '9' || c == '.' {
			break
		}
		i--
	}
	return v[:i], v[i:]
}

// CanonicalFontFamily normalizes a single font family name: quotes stripped,
// whitespace collapsed. Case is preserved; family matching is case-insensitive
// downstream. Returns false for empty or CSS generic families, which carry no
// design intent.
func CanonicalFontFamily(raw string) (string, bool) {
	v := strings.TrimSpace(raw)
	v = strings.Trim(v, `"'`)
	v = strings.Join(strings.Fields(v), " ")
	if v == "" {
		return "", false
	}
	switch strings.ToLower(v) {
	case "serif", "sans-serif", "monospace", "cursive", "fantasy",
		"system-ui", "ui-serif", "ui-sans-serif", "ui-monospace", "inherit":
		return "", false
	}
	return v, true
}

// SplitFontFamilies splits a CSS font-family list into canonical family
// names, dropping generic fallbacks.
func SplitFontFamilies(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if f, ok := CanonicalFontFamily(part); ok {
			out = append(out, f)
		}
	}
	return out
}

// CanonicalFontWeight maps CSS font-weight keywords to their numeric form.
func CanonicalFontWeight(raw string) (string, bool) {
	v := strings.ToLower(strings.TrimSpace(raw))
	switch v {
	case "":
		return "", false
	case "normal", "regular":
		return "400", true
	case "bold":
		return "700", true
	case "lighter":
		return "300", true
	case "bolder":
		return "700", true
	}
	if n, err := strconv.Atoi(v); err == nil && n >= 1 && n <= 1000 {
		return strconv.Itoa(n), true
	}
	return "", false
}
