package ws

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
)

// OriginChecker validates the Origin header of upgrade requests against a
// configured allow list. "*" allows every origin.
type OriginChecker struct {
	allowed  map[string]struct{}
	allowAll bool
	log      zerolog.Logger
}

// NewOriginChecker normalizes the configured origins. Invalid entries are
// logged and skipped.
func NewOriginChecker(origins []string, log zerolog.Logger) *OriginChecker {
	oc := &OriginChecker{allowed: make(map[string]struct{}), log: log}
	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		if trimmed == "*" {
			oc.allowAll = true
			continue
		}
		normalized, ok := normalizeOrigin(trimmed)
		if !ok {
			log.Warn().Str("origin", origin).Msg("ignoring invalid origin in configuration")
			continue
		}
		oc.allowed[normalized] = struct{}{}
	}
	return oc
}

func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil {
		return "", false
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}
	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}

// Check is usable as websocket.Upgrader.CheckOrigin. Requests without an
// Origin header come from non-browser clients and are accepted.
func (oc *OriginChecker) Check(r *http.Request) bool {
	header := r.Header.Get("Origin")
	if header == "" || oc.allowAll {
		return true
	}
	normalized, ok := normalizeOrigin(header)
	if ok {
		if _, exists := oc.allowed[normalized]; exists {
			return true
		}
	}
	oc.log.Warn().Str("origin", header).Msg("blocked websocket connection from disallowed origin")
	return false
}
