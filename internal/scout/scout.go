// Package scout orchestrates the hybrid fetch flow: pick a proxy, warm a
// session, try the fast TLS-impersonated path, and fall back to a full
// browser when a challenge appears.
package scout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/serpscout/serpscout/internal/browser"
	"github.com/serpscout/serpscout/internal/engine"
	"github.com/serpscout/serpscout/internal/fetch"
	"github.com/serpscout/serpscout/internal/fingerprint"
	"github.com/serpscout/serpscout/internal/logger"
	"github.com/serpscout/serpscout/internal/output"
	"github.com/serpscout/serpscout/internal/parser"
	"github.com/serpscout/serpscout/internal/proxy"
	"github.com/serpscout/serpscout/internal/session"
)

// ErrScrapeFailed means every attempt was spent without a clean result.
var ErrScrapeFailed = errors.New("scrape failed")

// Warmer establishes sessions. Implemented by browser.Warmer.
type Warmer interface {
	Warm(ctx context.Context, profile fingerprint.Profile, rec proxy.Record, eng engine.Engine) (*session.Session, error)
}

// FastFetcher runs the TLS-impersonated fast path.
type FastFetcher interface {
	Fetch(ctx context.Context, sess *session.Session, eng engine.Engine, query string) fetch.Outcome
}

// Fallback runs the full-browser path against a challenge-prone target.
type Fallback interface {
	Fetch(ctx context.Context, profile fingerprint.Profile, rec proxy.Record, eng engine.Engine, targetURL string) (browser.Result, error)
}

// Scout ties the components together.
type Scout struct {
	engines     map[string]engine.Engine
	pool        *proxy.Pool
	manager     *proxy.Manager
	gen         *fingerprint.Generator
	warmer      Warmer
	fast        FastFetcher
	fallback    Fallback
	maxAttempts int
	onChallenge browser.ChallengeHook
}

// Option configures a Scout.
type Option func(*Scout)

// WithManager lets the scout refresh the pool when it runs dry.
func WithManager(m *proxy.Manager) Option {
	return func(s *Scout) { s.manager = m }
}

// WithMaxAttempts overrides the attempt budget.
func WithMaxAttempts(n int) Option {
	return func(s *Scout) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithChallengeHook registers an observer for challenge pages the fast
// path draws. Collection runs point it at the archive store; the fast
// path sees the bulk of the challenge variants, since the fallback runs
// on a fresh identity that often is not challenged at all.
func WithChallengeHook(hook browser.ChallengeHook) Option {
	return func(s *Scout) { s.onChallenge = hook }
}

// New builds a scout. All four collaborators are required.
func New(engines map[string]engine.Engine, pool *proxy.Pool, gen *fingerprint.Generator, warmer Warmer, fast FastFetcher, fallback Fallback, opts ...Option) *Scout {
	s := &Scout{
		engines:     engines,
		pool:        pool,
		gen:         gen,
		warmer:      warmer,
		fast:        fast,
		fallback:    fallback,
		maxAttempts: 3,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scrape runs one query against one engine and returns the parsed report.
func (s *Scout) Scrape(ctx context.Context, engineKey, query string) (output.Report, error) {
	eng, err := engine.Lookup(s.engines, engineKey)
	if err != nil {
		return output.Report{}, err
	}

	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return output.Report{}, ctx.Err()
		}
		report, err := s.attempt(ctx, eng, query, attempt)
		if err == nil {
			return report, nil
		}
		// A clean page that yielded no organic results surfaces as-is: the
		// markup will not change under a different identity.
		if errors.Is(err, parser.ErrNoResults) {
			return output.Report{}, err
		}
		lastErr = err
		logger.Warn("scrape attempt failed",
			"engine", eng.Name,
			"query", query,
			"attempt", attempt,
			"error", err)
	}
	return output.Report{}, fmt.Errorf("%w: %d attempts, last error: %v", ErrScrapeFailed, s.maxAttempts, lastErr)
}

func (s *Scout) attempt(ctx context.Context, eng engine.Engine, query string, attempt int) (output.Report, error) {
	// Retries rotate away from the identity that just failed.
	rec, err := s.selectProxy(ctx, attempt > 1)
	if err != nil {
		return output.Report{}, err
	}

	profile, err := s.gen.Generate("", rec.ExitIP)
	if err != nil {
		return output.Report{}, err
	}

	sess, err := s.warmer.Warm(ctx, profile, rec, eng)
	if err != nil {
		switch {
		case errors.Is(err, browser.ErrWarmupBlocked):
			// The engine already dislikes this egress; spend no more
			// identities on it.
			s.pool.ReportFailure(rec.URL)
		case errors.Is(err, browser.ErrWarmupTimeout):
			s.pool.ReportFailure(rec.URL)
		}
		return output.Report{}, err
	}

	out := s.fast.Fetch(ctx, sess, eng, query)
	logger.Debug("fast path outcome", "engine", eng.Name, "outcome", out.String())

	switch out.Kind {
	case fetch.KindSuccess:
		s.pool.ReportSuccess(rec.URL, out.Latency)
		results, err := parser.Parse(out.HTML, eng)
		if err != nil {
			sess.Invalidate("parse failure")
			return output.Report{}, err
		}
		return s.report(eng, query, "fast", results), nil

	case fetch.KindTransportFailure:
		s.pool.ReportFailure(rec.URL)
		sess.Invalidate("transport failure")
		return output.Report{}, out.Err

	case fetch.KindCaptcha:
		if s.onChallenge != nil {
			s.onChallenge(out.HTML, out.FinalURL, out.Reason)
		}
		sess.Invalidate("challenge: " + out.Reason)
		return s.fallbackAttempt(ctx, eng, query)

	default:
		return output.Report{}, fmt.Errorf("unknown fetch outcome %q", out.Kind)
	}
}

// fallbackAttempt runs the full-browser path on a fresh identity. The
// proxy that just drew a challenge stays in the pool (its transport is
// fine) but rotation keeps it out of this selection.
func (s *Scout) fallbackAttempt(ctx context.Context, eng engine.Engine, query string) (output.Report, error) {
	rec, err := s.selectProxy(ctx, true)
	if err != nil {
		return output.Report{}, err
	}
	profile, err := s.gen.Generate("", rec.ExitIP)
	if err != nil {
		return output.Report{}, err
	}

	logger.Info("falling back to browser",
		"engine", eng.Name,
		"proxy", rec.URL,
		"device", profile.Device)

	res, err := s.fallback.Fetch(ctx, profile, rec, eng, eng.SearchURLFor(query))
	if err != nil {
		if !errors.Is(err, browser.ErrChallengeUnresolved) {
			s.pool.ReportFailure(rec.URL)
		}
		return output.Report{}, err
	}

	s.pool.ReportSuccess(rec.URL, 0)
	results, err := parser.Parse(res.HTML, eng)
	if err != nil {
		return output.Report{}, err
	}
	return s.report(eng, query, "fallback", results), nil
}

func (s *Scout) selectProxy(ctx context.Context, rotate bool) (proxy.Record, error) {
	rec, err := s.pool.Best(rotate)
	if err == nil {
		return rec, nil
	}
	if s.manager == nil {
		return proxy.Record{}, err
	}
	// Pool dry or exhausted: refresh and try once more.
	if err := s.manager.EnsureHealthy(ctx); err != nil {
		return proxy.Record{}, err
	}
	return s.pool.Best(rotate)
}

func (s *Scout) report(eng engine.Engine, query, via string, results []parser.Result) output.Report {
	return output.Report{
		Query:     query,
		Engine:    eng.Name,
		Via:       via,
		FetchedAt: time.Now().UTC(),
		Results:   results,
	}
}
