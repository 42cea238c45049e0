package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeOrigin(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"http://localhost:8080", "http://localhost:8080", true},
		{"HTTPS://Example.COM", "https://example.com", true},
		{"https://example.com/path?q=1", "https://example.com", true},
		{"example.com", "", false},
		{"://bad", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := normalizeOrigin(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOriginPolicy(t *testing.T) {
	request := func(origin string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/ws/chat", http.NoBody)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return r
	}

	t.Run("wildcard allows everything", func(t *testing.T) {
		p := newOriginPolicy([]string{"*"})
		assert.True(t, p.allows(request("http://evil.example")))
		assert.True(t, p.allows(request("")))
	})

	t.Run("allow-list", func(t *testing.T) {
		p := newOriginPolicy([]string{"http://localhost:8080", "not-an-origin", " "})
		assert.True(t, p.allows(request("http://LOCALHOST:8080")))
		assert.False(t, p.allows(request("http://localhost:9090")))
		assert.False(t, p.allows(request("")))
		assert.False(t, p.allows(request("garbage")))
		assert.Len(t, p.allowed, 1)
	})

	t.Run("empty list denies", func(t *testing.T) {
		p := newOriginPolicy(nil)
		assert.False(t, p.checkOrigin(request("http://localhost:8080")))
	})
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name   string
		url    string
		header string
		want   string
	}{
		{"query", "/ws/chat?token=abc", "", "abc"},
		{"header", "/ws/chat", "Bearer abc", "abc"},
		{"header case", "/ws/chat", "bearer  abc ", "abc"},
		{"query wins", "/ws/chat?token=q", "Bearer h", "q"},
		{"other scheme", "/ws/chat", "Basic abc", ""},
		{"bare prefix", "/ws/chat", "Bearer ", ""},
		{"none", "/ws/chat", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, tt.url, http.NoBody)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			assert.Equal(t, tt.want, bearerToken(r))
		})
	}
}
