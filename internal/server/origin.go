package server

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// wildcardOrigin in ALLOWED_ORIGINS accepts every request, including ones
// that carry no Origin header (native and CLI clients).
const wildcardOrigin = "*"

// originPolicy decides which browser origins may open a relay channel. One
// policy is shared by both channels of an App.
type originPolicy struct {
	allowAll bool
	allowed  map[string]struct{}
}

func newOriginPolicy(origins []string) *originPolicy {
	entries := lo.Compact(lo.Map(origins, func(o string, _ int) string {
		return strings.TrimSpace(o)
	}))

	normalized := lo.FilterMap(entries, func(o string, _ int) (string, bool) {
		if o == wildcardOrigin {
			return "", false
		}
		n, ok := normalizeOrigin(o)
		if !ok {
			log.Warn().Str("origin", o).Msg("Ignoring invalid origin in configuration")
		}
		return n, ok
	})

	return &originPolicy{
		allowAll: lo.Contains(entries, wildcardOrigin),
		allowed:  lo.Keyify(normalized),
	}
}

// normalizeOrigin reduces an origin to lower-case scheme://host[:port].
func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}
	return strings.ToLower(parsed.Scheme + "://" + parsed.Host), true
}

// allows reports whether a request may be upgraded. Requests without an
// Origin header only pass under the wildcard.
func (p *originPolicy) allows(r *http.Request) bool {
	if p.allowAll {
		return true
	}

	origin, ok := normalizeOrigin(r.Header.Get("Origin"))
	if !ok {
		return false
	}
	_, found := p.allowed[origin]
	return found
}

// checkOrigin is the upgrader hook; refusals are logged with the raw header.
func (p *originPolicy) checkOrigin(r *http.Request) bool {
	if p.allows(r) {
		return true
	}
	log.Info().Str("origin", r.Header.Get("Origin")).Str("path", r.URL.Path).
		Msg("Blocked WebSocket connection from disallowed origin")
	return false
}
