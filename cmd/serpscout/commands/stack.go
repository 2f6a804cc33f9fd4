package commands

import (
	"fmt"

	"github.com/serpscout/serpscout/internal/browser"
	"github.com/serpscout/serpscout/internal/collector"
	"github.com/serpscout/serpscout/internal/config"
	"github.com/serpscout/serpscout/internal/fetch"
	"github.com/serpscout/serpscout/internal/fingerprint"
	"github.com/serpscout/serpscout/internal/logger"
	"github.com/serpscout/serpscout/internal/proxy"
	"github.com/serpscout/serpscout/internal/scout"
)

// stack is the wired application: every command builds one and tears it
// down when finished.
type stack struct {
	cfg     *config.Config
	pool    *proxy.Pool
	manager *proxy.Manager
	scout   *scout.Scout
	store   *collector.Store
	geo     *fingerprint.Geo
}

// buildStack assembles the full pipeline from the resolved configuration.
// When archive is true, challenge pages seen by the fallback driver are
// saved to the collector store.
func buildStack(archive bool) (*stack, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	pool := proxy.NewPool(proxy.PoolConfig{
		Weights: proxy.ScoreWeights{
			Success:        cfg.Proxy.SuccessWeight,
			LatencyPenalty: cfg.Proxy.LatencyPenalty,
		},
		DeadThreshold:   cfg.Proxy.DeadThreshold,
		LiveFailureCost: cfg.Proxy.LiveFailureCost,
		RetestAfter:     cfg.Proxy.RetestAfter,
		MaxRecordAge:    cfg.Proxy.MaxRecordAge,
		RotationWindow:  cfg.Proxy.RotationWindow,
	})
	if cfg.Proxy.SnapshotPath != "" {
		if err := pool.Load(cfg.Proxy.SnapshotPath); err != nil {
			logger.Warn("ignoring unreadable pool snapshot", "error", err)
		}
	}

	sources := make([]proxy.Source, 0, len(cfg.Proxy.Sources))
	for _, src := range cfg.Proxy.Sources {
		sources = append(sources, proxy.Source{URL: src.URL, Format: src.Format})
	}
	discoverer := proxy.NewSourceList(sources, cfg.Proxy.TestTimeout, cfg.Proxy.MaxCandidates)
	tester := proxy.NewTester(cfg.Proxy.TestURL, cfg.Proxy.TestTimeout, cfg.Proxy.MaxConcurrent)
	manager := proxy.NewManager(pool, discoverer, tester, cfg.Proxy.SnapshotPath)

	var geo *fingerprint.Geo
	var geoloc fingerprint.Geolocator
	if cfg.Fingerprint.GeoDBPath != "" {
		geo, err = fingerprint.OpenGeo(cfg.Fingerprint.GeoDBPath)
		if err != nil {
			logger.Warn("geo database unavailable, using default timezone", "error", err)
		} else {
			geoloc = geo
		}
	}
	gen := fingerprint.NewGenerator(
		cfg.Fingerprint.DeviceClasses,
		cfg.Fingerprint.Locale,
		cfg.Fingerprint.DefaultTimezone,
		geoloc,
	)

	// The archive hook sees challenge pages wherever they appear: fast
	// fetches, warm-up visits and the fallback driver all feed it.
	var store *collector.Store
	var hook browser.ChallengeHook
	if archive {
		store, err = collector.NewStore(cfg.Collector.Dir)
		if err != nil {
			return nil, fmt.Errorf("failed to open collector store: %w", err)
		}
		hook = func(html, finalURL, reason string) {
			if _, _, err := store.Save(html, finalURL, reason); err != nil {
				logger.Warn("failed to archive challenge page", "error", err)
			}
		}
	}

	browserCfg := browser.Config{
		Headless:        cfg.Browser.Headless,
		WarmupTimeout:   cfg.Browser.WarmupTimeout,
		FallbackTimeout: cfg.Browser.FallbackTimeout,
		SettleDelay:     cfg.Browser.SettleDelay,
		ScreenshotDir:   cfg.Browser.ScreenshotDir,
	}
	var warmerOpts []browser.WarmerOption
	if hook != nil {
		warmerOpts = append(warmerOpts, browser.WithWarmupHook(hook))
	}
	warmer := browser.NewWarmer(browserCfg, warmerOpts...)
	workers := browser.NewWorkerPool(cfg.Browser.Workers)
	solver := browser.NewCheckboxSolver()

	fast := fetch.NewFastFetcher(fetch.Config{
		Timeout:     cfg.Fetch.Timeout,
		MinDelay:    cfg.Fetch.MinDelay,
		MaxDelay:    cfg.Fetch.MaxDelay,
		MaxPageSize: cfg.Fetch.MaxPageSize,
	})

	fallback := scout.NewBrowserFallback(browserCfg, workers, solver, cfg.Scrape.RetryBudget, hook)

	sc := scout.New(cfg.Engines, pool, gen, warmer, fast, fallback,
		scout.WithManager(manager),
		scout.WithMaxAttempts(cfg.Scrape.MaxAttempts),
		scout.WithChallengeHook(hook),
	)

	return &stack{
		cfg:     cfg,
		pool:    pool,
		manager: manager,
		scout:   sc,
		store:   store,
		geo:     geo,
	}, nil
}

// Close releases resources and persists the pool snapshot.
func (s *stack) Close() {
	if s.cfg.Proxy.SnapshotPath != "" {
		if err := s.pool.Save(s.cfg.Proxy.SnapshotPath); err != nil {
			logger.Warn("failed to save pool snapshot", "error", err)
		}
	}
	if s.geo != nil {
		s.geo.Close()
	}
}
