package proxy

import (
	"context"
	"time"

	"github.com/serpscout/serpscout/internal/logger"
)

// Discoverer yields raw proxy candidate addresses.
type Discoverer interface {
	Fetch(ctx context.Context) []string
}

// Prober measures a batch of proxy records.
type Prober interface {
	TestAll(ctx context.Context, records []Record) []Result
}

// Manager drives the pool lifecycle: discover candidates, probe the ones
// that are due, fold results in, prune the dead wood.
type Manager struct {
	pool       *Pool
	discoverer Discoverer
	prober     Prober

	snapshotPath string
}

// NewManager wires a pool to its discovery and probing backends.
func NewManager(pool *Pool, d Discoverer, p Prober, snapshotPath string) *Manager {
	return &Manager{pool: pool, discoverer: d, prober: p, snapshotPath: snapshotPath}
}

// Pool exposes the managed pool.
func (m *Manager) Pool() *Pool {
	return m.pool
}

// Refresh runs one full maintenance round. It is safe to call concurrently
// with pool reads; pool mutation stays serialized inside the pool itself.
func (m *Manager) Refresh(ctx context.Context) error {
	start := time.Now()

	candidates := m.discoverer.Fetch(ctx)
	added := m.pool.Merge(candidates)

	due := m.pool.DueForTest()
	results := m.prober.TestAll(ctx, due)
	for _, res := range results {
		m.pool.ApplyResult(res)
	}

	pruned := m.pool.Prune()
	counts := m.pool.Counts()
	logger.Info("proxy pool refreshed",
		"discovered", len(candidates),
		"added", added,
		"tested", len(results),
		"pruned", pruned,
		"healthy", counts[StatusHealthy],
		"total", m.pool.Len(),
		"elapsed", time.Since(start).Round(time.Millisecond))

	if m.snapshotPath != "" {
		if err := m.pool.Save(m.snapshotPath); err != nil {
			logger.Warn("failed to save pool snapshot", "error", err)
		}
	}
	return ctx.Err()
}

// EnsureHealthy refreshes until at least one healthy proxy exists or the
// context expires. Sources that return nothing healthy back off briefly
// between rounds.
func (m *Manager) EnsureHealthy(ctx context.Context) error {
	for {
		if m.pool.Counts()[StatusHealthy] > 0 {
			return nil
		}
		if err := m.Refresh(ctx); err != nil {
			return err
		}
		if m.pool.Counts()[StatusHealthy] > 0 {
			return nil
		}
		logger.Warn("no healthy proxies after refresh, retrying")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Second):
		}
	}
}
