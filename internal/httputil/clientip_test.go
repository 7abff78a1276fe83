package httputil

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		trustProxy bool
		headers    map[string]string
		remoteAddr string
		expectedIP string
	}{
		{
			name:       "remote addr IPv4",
			remoteAddr: "192.0.2.10:54321",
			expectedIP: "192.0.2.10",
		},
		{
			name:       "remote addr IPv6",
			remoteAddr: "[2001:db8::5]:443",
			expectedIP: "2001:db8::5",
		},
		{
			name:       "remote addr without port",
			remoteAddr: "192.0.2.44",
			expectedIP: "192.0.2.44",
		},
		{
			name:       "forwarded headers ignored without trusted proxy",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.5", "X-Real-IP": "198.51.100.1"},
			remoteAddr: "192.0.2.10:1234",
			expectedIP: "192.0.2.10",
		},
		{
			name:       "X-Forwarded-For multiple IPs (take first)",
			trustProxy: true,
			headers:    map[string]string{"X-Forwarded-For": "198.51.100.7, 203.0.113.9, 192.0.2.1"},
			remoteAddr: "192.0.2.10:1234",
			expectedIP: "198.51.100.7",
		},
		{
			name:       "X-Forwarded-For with spaces",
			trustProxy: true,
			headers:    map[string]string{"X-Forwarded-For": "  203.0.113.10  ,  198.51.100.2  "},
			remoteAddr: "192.0.2.10:1234",
			expectedIP: "203.0.113.10",
		},
		{
			name:       "X-Forwarded-For bracketed IPv6",
			trustProxy: true,
			headers:    map[string]string{"X-Forwarded-For": "[2001:db8::1], 203.0.113.9"},
			remoteAddr: "192.0.2.10:1234",
			expectedIP: "2001:db8::1",
		},
		{
			name:       "X-Real-IP when no X-Forwarded-For",
			trustProxy: true,
			headers:    map[string]string{"X-Real-IP": "198.51.100.23"},
			remoteAddr: "192.0.2.10:1234",
			expectedIP: "198.51.100.23",
		},
		{
			name:       "empty X-Forwarded-For entry falls through",
			trustProxy: true,
			headers:    map[string]string{"X-Forwarded-For": " , 203.0.113.9"},
			remoteAddr: "192.0.2.10:1234",
			expectedIP: "192.0.2.10",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "http://example.com", nil)
			r.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.expectedIP, ClientIP(r, tt.trustProxy))
		})
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		url    string
		want   string
	}{
		{"bearer header", "Bearer abc.def", "/ws", "abc.def"},
		{"scheme is case-insensitive", "bearer abc", "/ws", "abc"},
		{"query fallback", "", "/ws?token=q123", "q123"},
		{"header wins over query", "Bearer h1", "/ws?token=q1", "h1"},
		{"other scheme ignored", "Basic dXNlcjpwYXNz", "/ws", ""},
		{"empty bearer falls back", "Bearer   ", "/ws?token=q2", "q2"},
		{"nothing", "", "/ws", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, tt.url, nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			assert.Equal(t, tt.want, BearerToken(r))
		})
	}
}
