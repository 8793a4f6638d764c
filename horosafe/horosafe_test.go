package horosafe

import (
	"net"
	"strings"
	"testing"
)

func TestURLPolicyValidate(t *testing.T) {
	var p URLPolicy
	tests := []struct {
		url     string
		wantErr bool
	}{
		{"https://example.com/page", false},
		{"http://example.com/page", false},
		{"ftp://evil.com/data", true},      // bad scheme
		{"javascript:alert(1)", true},      // bad scheme
		{"http://127.0.0.1/admin", true},   // loopback
		{"http://10.0.0.1/internal", true}, // private
		{"http://192.168.1.1/app", true},   // private
		{"http://[::1]/app", true},         // IPv6 loopback
		{"http://172.16.0.1/secret", true}, // private
		{"https:///nohost", true},          // no host
	}
	for _, tt := range tests {
		err := p.Validate(tt.url)
		if (err != nil) != tt.wantErr {
			t.Errorf("Validate(%q) error=%v, wantErr=%v", tt.url, err, tt.wantErr)
		}
	}
}

func TestURLPolicyAllowList(t *testing.T) {
	p := URLPolicy{AllowedHosts: []string{"127.0.0.1", "*.staging.internal"}}

	if err := p.Validate("http://127.0.0.1:3000/app"); err != nil {
		t.Errorf("allow-listed loopback rejected: %v", err)
	}
	if err := p.Validate("http://app.staging.internal/"); err != nil {
		t.Errorf("allow-listed wildcard subdomain rejected: %v", err)
	}
	if err := p.Validate("http://10.0.0.1/"); err == nil {
		t.Error("non-listed private address accepted")
	}
}

func TestURLPolicyAllowPrivate(t *testing.T) {
	p := URLPolicy{AllowPrivate: true}
	if err := p.Validate("http://192.168.1.10:8080/"); err != nil {
		t.Errorf("AllowPrivate did not bypass check: %v", err)
	}
	if err := p.Validate("ftp://192.168.1.10/"); err == nil {
		t.Error("AllowPrivate must not bypass the scheme check")
	}
}

func TestValidateIdentifier(t *testing.T) {
	if err := ValidateIdentifier("rep_0190b5a2-valid.1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ValidateIdentifier("../etc/passwd"); err == nil {
		t.Fatal("expected error for path traversal chars")
	}
	if err := ValidateIdentifier(""); err == nil {
		t.Fatal("expected error for empty identifier")
	}
	if err := ValidateIdentifier("has spaces"); err == nil {
		t.Fatal("expected error for spaces")
	}
	if err := ValidateIdentifier(strings.Repeat("a", 257)); err == nil {
		t.Fatal("expected error for long identifier")
	}
}

func TestLimitedReadAll(t *testing.T) {
	data := strings.Repeat("x", 100)
	got, err := LimitedReadAll(strings.NewReader(data), 200)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 100 {
		t.Fatalf("expected 100 bytes, got %d", len(got))
	}

	if _, err = LimitedReadAll(strings.NewReader(data), 50); err == nil {
		t.Fatal("expected error for oversized read")
	}
}

func TestIsPrivateIP(t *testing.T) {
	tests := []struct {
		ip      string
		private bool
	}{
		{"127.0.0.1", true},
		{"10.0.0.1", true},
		{"172.16.0.1", true},
		{"192.168.0.1", true},
		{"169.254.10.1", true},
		{"8.8.8.8", false},
		{"1.1.1.1", false},
		{"::1", true},
	}
	for _, tt := range tests {
		ip := net.ParseIP(tt.ip)
		if ip == nil {
			t.Fatalf("failed to parse IP %q", tt.ip)
		}
		if got := isPrivateIP(ip); got != tt.private {
			t.Errorf("isPrivateIP(%s) = %v, want %v", tt.ip, got, tt.private)
		}
	}
}
