package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/serpscout/serpscout/internal/detect"
	"github.com/serpscout/serpscout/internal/engine"
	"github.com/serpscout/serpscout/internal/fingerprint"
	"github.com/serpscout/serpscout/internal/logger"
	"github.com/serpscout/serpscout/internal/proxy"
	"github.com/serpscout/serpscout/internal/session"
)

var (
	// ErrWarmupTimeout means the warm-up visit did not finish in time.
	ErrWarmupTimeout = errors.New("session warmup timed out")

	// ErrWarmupBlocked means the engine served a challenge during
	// warm-up; the proxy/profile pairing is burned before first use.
	ErrWarmupBlocked = errors.New("session warmup blocked by challenge")
)

// Config tunes browser sessions.
type Config struct {
	Headless        bool
	WarmupTimeout   time.Duration
	FallbackTimeout time.Duration
	SettleDelay     time.Duration
	ScreenshotDir   string
}

// pageFactory opens a browser page for a profile/proxy pairing. The
// returned func tears the browser down.
type pageFactory func(ctx context.Context, profile fingerprint.Profile, proxyURL string) (Page, func(), error)

// Warmer establishes sessions by visiting an engine's home page the way a
// person would before searching: load, accept the cookie banner, idle a
// moment, keep the cookies.
type Warmer struct {
	cfg         Config
	newPage     pageFactory
	onChallenge ChallengeHook
}

// WarmerOption configures a Warmer.
type WarmerOption func(*Warmer)

// WithWarmupHook registers an observer for challenge pages served during
// warm-up.
func WithWarmupHook(hook ChallengeHook) WarmerOption {
	return func(w *Warmer) { w.onChallenge = hook }
}

// NewWarmer creates a warmer launching real browsers.
func NewWarmer(cfg Config, opts ...WarmerOption) *Warmer {
	return newWarmer(cfg, func(ctx context.Context, profile fingerprint.Profile, proxyURL string) (Page, func(), error) {
		sc, err := NewSessionContext(ctx, cfg.Headless, profile, proxyURL)
		if err != nil {
			return nil, nil, err
		}
		return sc.Page(), sc.Close, nil
	}, opts...)
}

func newWarmer(cfg Config, factory pageFactory, opts ...WarmerOption) *Warmer {
	if cfg.WarmupTimeout <= 0 {
		cfg.WarmupTimeout = 45 * time.Second
	}
	w := &Warmer{cfg: cfg, newPage: factory}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Warm visits the engine's base URL under the given identity and returns a
// session holding the collected cookies. The browser is closed before
// returning; the fast path only needs the cookies.
func (w *Warmer) Warm(ctx context.Context, profile fingerprint.Profile, rec proxy.Record, eng engine.Engine) (*session.Session, error) {
	warmCtx, cancel := context.WithTimeout(ctx, w.cfg.WarmupTimeout)
	defer cancel()

	pg, closePage, err := w.newPage(warmCtx, profile, rec.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open warmup browser: %w", err)
	}
	defer closePage()

	logger.Debug("warming session",
		"engine", eng.Name,
		"device", profile.Device,
		"proxy", rec.URL)

	if err := pg.Navigate(warmCtx, eng.BaseURL); err != nil {
		if warmCtx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrWarmupTimeout, err)
		}
		return nil, fmt.Errorf("warmup navigation failed: %w", err)
	}

	// Consent banners are best effort; absence is the common case.
	for _, sel := range eng.ConsentSelectors {
		clickCtx, clickCancel := context.WithTimeout(warmCtx, 3*time.Second)
		err := pg.Click(clickCtx, sel)
		clickCancel()
		if err == nil {
			logger.Debug("accepted consent banner", "selector", sel)
			break
		}
	}

	// A short flick scroll, the glance a person gives a page they just
	// opened. Failures here never abort the warm-up.
	if s, ok := pg.(scroller); ok {
		if err := s.Scroll(warmCtx); err != nil {
			logger.Debug("warmup scroll failed", "error", err)
		}
	}

	if w.cfg.SettleDelay > 0 {
		select {
		case <-time.After(w.cfg.SettleDelay):
		case <-warmCtx.Done():
			return nil, fmt.Errorf("%w: %v", ErrWarmupTimeout, warmCtx.Err())
		}
	}

	html, finalURL, err := pg.Content(warmCtx)
	if err != nil {
		if warmCtx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrWarmupTimeout, err)
		}
		return nil, fmt.Errorf("failed to read warmup page: %w", err)
	}

	// The home page carries no result markers, so only positive challenge
	// signals count here.
	if blocked, reason := challengeSignals(html, finalURL, eng); blocked {
		if w.onChallenge != nil {
			w.onChallenge(html, finalURL, reason)
		}
		return nil, fmt.Errorf("%w: %s", ErrWarmupBlocked, reason)
	}

	cookies, err := pg.Cookies(warmCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to collect warmup cookies: %w", err)
	}

	sess := session.New(profile, rec)
	sess.SetCookies(cookies)
	logger.Info("session warmed",
		"session", sess.ID,
		"engine", eng.Name,
		"device", profile.Device,
		"cookies", len(cookies))
	return sess, nil
}

// challengeSignals checks only the positive challenge markers, unlike
// detect.Classify which also treats missing result markup as suspect.
func challengeSignals(html, finalURL string, eng engine.Engine) (bool, string) {
	det := detect.Classify(html, finalURL, engine.Engine{
		CaptchaMarkers:        eng.CaptchaMarkers,
		ChallengeURLFragments: eng.ChallengeURLFragments,
		ResultMarkers:         []string{"<html"},
	})
	if det.Verdict == detect.VerdictCaptcha {
		return true, det.Reason
	}
	return false, ""
}
