package http

import (
	"net/http/httptest"
	"testing"
)

func TestExtractClientIP_RemoteAddrOnly(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "203.0.113.7:54321"

	if got := ExtractClientIP(r, nil); got != "203.0.113.7" {
		t.Errorf("ExtractClientIP = %q, want 203.0.113.7", got)
	}
}

func TestExtractClientIP_ForwardedHeaderIgnoredFromUntrustedPeer(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "203.0.113.7:54321"
	r.Header.Set("X-Forwarded-For", "10.0.0.99")

	config := &IPConfig{TrustedProxies: []string{"192.168.0.0/16"}}

	if got := ExtractClientIP(r, config); got != "203.0.113.7" {
		t.Errorf("spoofed XFF honored: got %q", got)
	}
}

func TestExtractClientIP_ForwardedHeaderFromTrustedProxy(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "192.168.1.10:443"
	r.Header.Set("X-Forwarded-For", "203.0.113.7, 192.168.1.10")

	config := &IPConfig{TrustedProxies: []string{"192.168.0.0/16"}}

	if got := ExtractClientIP(r, config); got != "203.0.113.7" {
		t.Errorf("ExtractClientIP = %q, want 203.0.113.7", got)
	}
}

func TestExtractClientIP_RealIPFallback(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "192.168.1.10:443"
	r.Header.Set("X-Real-IP", "203.0.113.9")

	config := &IPConfig{TrustedProxies: []string{"192.168.0.0/16"}}

	if got := ExtractClientIP(r, config); got != "203.0.113.9" {
		t.Errorf("ExtractClientIP = %q, want 203.0.113.9", got)
	}
}

func TestExtractClientIP_InvalidForwardedValueSkipped(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "192.168.1.10:443"
	r.Header.Set("X-Forwarded-For", "not-an-ip")

	config := &IPConfig{TrustedProxies: []string{"192.168.0.0/16"}}

	if got := ExtractClientIP(r, config); got != "192.168.1.10" {
		t.Errorf("ExtractClientIP = %q, want 192.168.1.10", got)
	}
}
