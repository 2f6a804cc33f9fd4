// Package proxy implements the proxy pool manager: candidate discovery,
// concurrent health testing, score-based selection and persistence.
package proxy

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Status is the lifecycle state of a proxy record.
type Status string

const (
	// StatusUntested means the proxy was discovered but never measured.
	StatusUntested Status = "untested"

	// StatusHealthy means the last test round succeeded.
	StatusHealthy Status = "healthy"

	// StatusDegraded means a recent failure was observed; the proxy is
	// excluded from selection until it passes a retest.
	StatusDegraded Status = "degraded"

	// StatusDead means the proxy exceeded the failure threshold. Dead
	// records are removed on the next prune.
	StatusDead Status = "dead"
)

// Record tracks the measured quality of a single proxy endpoint.
type Record struct {
	// URL is the canonical proxy URL, e.g. "http://1.2.3.4:8080" or
	// "socks5://1.2.3.4:1080".
	URL string `json:"url"`

	Status    Status        `json:"status"`
	Successes int           `json:"successes"`
	Failures  int           `json:"failures"`
	Latency   time.Duration `json:"latency"`

	LastTested time.Time `json:"last_tested,omitzero"`
	LastUsed   time.Time `json:"last_used,omitzero"`

	// ExitIP is the egress address observed during testing, used for
	// geo-consistent fingerprints.
	ExitIP string `json:"exit_ip,omitempty"`
}

// ScoreWeights tunes the quality score computed for each record.
type ScoreWeights struct {
	// Success scales the success rate contribution (rate in [0,1]).
	Success float64

	// LatencyPenalty is subtracted per second of measured latency.
	LatencyPenalty float64
}

// DefaultScoreWeights mirror a 100-point scale with a 20 points/second
// latency penalty.
var DefaultScoreWeights = ScoreWeights{Success: 100, LatencyPenalty: 20}

// Score computes the record's quality under the given weights. Dead and
// untested records always score zero. The score never goes negative.
func (r *Record) Score(w ScoreWeights) float64 {
	if r.Status == StatusDead || r.Status == StatusUntested {
		return 0
	}
	total := r.Successes + r.Failures
	if total == 0 {
		return 0
	}
	rate := float64(r.Successes) / float64(total)
	score := w.Success*rate - w.LatencyPenalty*r.Latency.Seconds()
	if score < 0 {
		return 0
	}
	return score
}

// Scheme returns the proxy's URL scheme ("http", "socks5", ...).
func (r *Record) Scheme() string {
	u, err := url.Parse(r.URL)
	if err != nil {
		return ""
	}
	return u.Scheme
}

// Host returns the host:port part of the proxy URL.
func (r *Record) Host() string {
	u, err := url.Parse(r.URL)
	if err != nil {
		return ""
	}
	return u.Host
}

// Normalize canonicalizes a raw proxy address into a URL. Bare host:port
// entries default to http. Returns an error for entries that cannot name a
// proxy endpoint.
func Normalize(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("empty proxy address")
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid proxy address %q: %w", raw, err)
	}
	switch u.Scheme {
	case "http", "https", "socks5":
	default:
		return "", fmt.Errorf("unsupported proxy scheme %q", u.Scheme)
	}
	if u.Port() == "" {
		return "", fmt.Errorf("proxy address %q has no port", raw)
	}
	return fmt.Sprintf("%s://%s", u.Scheme, u.Host), nil
}
