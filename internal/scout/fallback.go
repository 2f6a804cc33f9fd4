package scout

import (
	"context"
	"fmt"

	"github.com/serpscout/serpscout/internal/browser"
	"github.com/serpscout/serpscout/internal/engine"
	"github.com/serpscout/serpscout/internal/fingerprint"
	"github.com/serpscout/serpscout/internal/proxy"
)

// BrowserFallback runs fallback fetches in real headless browsers, bounded
// by a worker pool.
type BrowserFallback struct {
	cfg         browser.Config
	workers     *browser.WorkerPool
	solver      browser.Solver
	retryBudget int
	hook        browser.ChallengeHook
}

// NewBrowserFallback wires the browser-backed fallback path. hook may be
// nil; when set it observes every challenge page encountered.
func NewBrowserFallback(cfg browser.Config, workers *browser.WorkerPool, solver browser.Solver, retryBudget int, hook browser.ChallengeHook) *BrowserFallback {
	return &BrowserFallback{
		cfg:         cfg,
		workers:     workers,
		solver:      solver,
		retryBudget: retryBudget,
		hook:        hook,
	}
}

// Fetch acquires a worker slot, launches an emulated browser over the
// given identity and drives it to a clean page.
func (b *BrowserFallback) Fetch(ctx context.Context, profile fingerprint.Profile, rec proxy.Record, eng engine.Engine, targetURL string) (browser.Result, error) {
	if err := b.workers.Acquire(ctx); err != nil {
		return browser.Result{}, err
	}
	defer b.workers.Release()

	runCtx := ctx
	if b.cfg.FallbackTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, b.cfg.FallbackTimeout)
		defer cancel()
	}

	sc, err := browser.NewSessionContext(runCtx, b.cfg.Headless, profile, rec.URL)
	if err != nil {
		return browser.Result{}, fmt.Errorf("failed to launch fallback browser: %w", err)
	}
	defer sc.Close()

	opts := []browser.DriverOption{}
	if b.hook != nil {
		opts = append(opts, browser.WithChallengeHook(b.hook))
	}
	if b.cfg.ScreenshotDir != "" {
		opts = append(opts, browser.WithScreenshotDir(b.cfg.ScreenshotDir))
	}

	driver := browser.NewDriver(sc.Page(), b.solver, b.cfg.SettleDelay, b.retryBudget, opts...)
	return driver.Run(runCtx, eng, targetURL)
}
