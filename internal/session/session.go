// Package session holds warmed browsing sessions.
//
// A session binds together the cookies collected during warm-up, the
// fingerprint profile they were collected under, and the proxy they were
// collected through. The fast fetch path replays all three; splitting them
// up would present contradictory signals to the target.
package session

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/serpscout/serpscout/internal/fingerprint"
	"github.com/serpscout/serpscout/internal/proxy"
)

// Cookie is a browser cookie captured at warm-up time.
type Cookie struct {
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Domain   string    `json:"domain"`
	Path     string    `json:"path"`
	Expires  time.Time `json:"expires,omitzero"`
	Secure   bool      `json:"secure"`
	HTTPOnly bool      `json:"http_only"`
}

// Session is one warmed identity. Safe for concurrent use.
type Session struct {
	ID      string
	Profile fingerprint.Profile
	Proxy   proxy.Record
	Created time.Time

	mu      sync.Mutex
	cookies []Cookie
	invalid bool
	reason  string
}

// New creates a session for a profile/proxy pairing.
func New(profile fingerprint.Profile, rec proxy.Record) *Session {
	return &Session{
		ID:      uuid.NewString(),
		Profile: profile,
		Proxy:   rec,
		Created: time.Now(),
	}
}

// SetCookies replaces the session's cookie set.
func (s *Session) SetCookies(cookies []Cookie) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cookies = cookies
}

// Cookies returns a copy of the session's cookies.
func (s *Session) Cookies() []Cookie {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Cookie, len(s.cookies))
	copy(out, s.cookies)
	return out
}

// CookieHeader renders the Cookie header value for requests to host,
// honoring domain scoping and expiry.
func (s *Session) CookieHeader(host string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var parts []string
	for _, c := range s.cookies {
		if !domainMatches(host, c.Domain) {
			continue
		}
		if !c.Expires.IsZero() && c.Expires.Before(now) {
			continue
		}
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}

// Valid reports whether the session is still usable.
func (s *Session) Valid() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.invalid
}

// Invalidate marks the session unusable. Invalidation is one-way; a burned
// identity is never reused.
func (s *Session) Invalidate(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.invalid {
		return
	}
	s.invalid = true
	s.reason = reason
}

// InvalidReason returns why the session was invalidated, or empty.
func (s *Session) InvalidReason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// domainMatches implements cookie domain matching: an exact host match, or
// a dot-prefixed domain cookie matching the host or any subdomain.
func domainMatches(host, domain string) bool {
	if domain == "" {
		return true
	}
	host = strings.ToLower(host)
	domain = strings.ToLower(domain)
	if d, ok := strings.CutPrefix(domain, "."); ok {
		return host == d || strings.HasSuffix(host, "."+d)
	}
	return host == domain
}
