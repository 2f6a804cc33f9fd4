package proxy

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/serpscout/serpscout/internal/logger"
)

var (
	// ErrPoolEmpty means the pool holds no records at all.
	ErrPoolEmpty = errors.New("proxy pool is empty")

	// ErrNoProxyAvailable means no healthy record is currently selectable.
	ErrNoProxyAvailable = errors.New("no healthy proxy available")
)

// PoolConfig tunes pool behaviour.
type PoolConfig struct {
	Weights ScoreWeights

	// DeadThreshold is the consecutive-failure count that kills a record.
	DeadThreshold int

	// LiveFailureCost is how many failures a failure during real use
	// counts for. Live failures are worse signals than probe failures
	// since the proxy already passed a test.
	LiveFailureCost int

	// RetestAfter marks healthy records stale for the next test round.
	RetestAfter time.Duration

	// MaxRecordAge prunes records not successfully tested within it.
	MaxRecordAge time.Duration

	// RotationWindow excludes recently used records from rotation picks.
	RotationWindow time.Duration
}

// DefaultPoolConfig returns production defaults.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		Weights:         DefaultScoreWeights,
		DeadThreshold:   3,
		LiveFailureCost: 2,
		RetestAfter:     5 * time.Minute,
		MaxRecordAge:    time.Hour,
		RotationWindow:  30 * time.Second,
	}
}

// Pool holds proxy records and serializes every mutation behind one mutex.
// All methods are safe for concurrent use.
type Pool struct {
	mu      sync.Mutex
	records map[string]*Record
	cfg     PoolConfig

	// consecutive live/test failures since the last success, per record.
	streak map[string]int

	now func() time.Time
}

// NewPool creates an empty pool.
func NewPool(cfg PoolConfig) *Pool {
	if cfg.Weights == (ScoreWeights{}) {
		cfg.Weights = DefaultScoreWeights
	}
	if cfg.DeadThreshold <= 0 {
		cfg.DeadThreshold = 3
	}
	if cfg.LiveFailureCost <= 0 {
		cfg.LiveFailureCost = 1
	}
	return &Pool{
		records: make(map[string]*Record),
		streak:  make(map[string]int),
		cfg:     cfg,
		now:     time.Now,
	}
}

// Merge adds newly discovered candidates. Addresses are normalized before
// comparison so "1.2.3.4:80" and "http://1.2.3.4:80" collapse into one
// record. Existing records keep their measured history. Returns the number
// of records actually added.
func (p *Pool) Merge(candidates []string) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	added := 0
	for _, raw := range candidates {
		u, err := Normalize(raw)
		if err != nil {
			logger.Debug("skipping proxy candidate", "candidate", raw, "error", err)
			continue
		}
		if _, ok := p.records[u]; ok {
			continue
		}
		p.records[u] = &Record{URL: u, Status: StatusUntested}
		added++
	}
	return added
}

// Best returns the highest-scoring healthy record and stamps it as used.
// When rotate is true, records used within the rotation window are skipped
// unless nothing else qualifies.
func (p *Pool) Best(rotate bool) (Record, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.records) == 0 {
		return Record{}, ErrPoolEmpty
	}

	pick := p.bestLocked(rotate)
	if pick == nil && rotate {
		// Everything healthy was used recently; rotation yields to
		// availability.
		pick = p.bestLocked(false)
	}
	if pick == nil {
		return Record{}, ErrNoProxyAvailable
	}
	pick.LastUsed = p.now()
	return *pick, nil
}

func (p *Pool) bestLocked(rotate bool) *Record {
	var best *Record
	var bestScore float64
	cutoff := p.now().Add(-p.cfg.RotationWindow)
	for _, r := range p.records {
		if r.Status != StatusHealthy {
			continue
		}
		if rotate && p.cfg.RotationWindow > 0 && r.LastUsed.After(cutoff) {
			continue
		}
		score := r.Score(p.cfg.Weights)
		if best == nil || score > bestScore {
			best, bestScore = r, score
		}
	}
	return best
}

// ReportSuccess records a successful real-world use of a proxy.
func (p *Pool) ReportSuccess(url string, latency time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	r, ok := p.records[url]
	if !ok {
		return
	}
	r.Successes++
	if latency > 0 {
		r.Latency = blendLatency(r.Latency, latency)
	}
	r.Status = StatusHealthy
	p.streak[url] = 0
}

// ReportFailure records a failed real-world use. The record is demoted to
// degraded so it must pass a retest before selection again, and the failure
// is weighted by LiveFailureCost. Reaching the dead threshold kills it.
func (p *Pool) ReportFailure(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	r, ok := p.records[url]
	if !ok {
		return
	}
	r.Failures += p.cfg.LiveFailureCost
	p.streak[url] += p.cfg.LiveFailureCost
	if p.streak[url] >= p.cfg.DeadThreshold {
		r.Status = StatusDead
		logger.Debug("proxy marked dead", "proxy", url, "failures", r.Failures)
		return
	}
	r.Status = StatusDegraded
}

// ApplyResult folds one probe result into the pool.
func (p *Pool) ApplyResult(res Result) {
	p.mu.Lock()
	defer p.mu.Unlock()

	r, ok := p.records[res.URL]
	if !ok {
		return
	}
	r.LastTested = res.Tested
	if res.Err != nil {
		r.Failures++
		p.streak[res.URL]++
		// A candidate that never passed a probe is dropped outright;
		// only proxies with a track record earn a retest.
		if r.Successes == 0 || p.streak[res.URL] >= p.cfg.DeadThreshold {
			r.Status = StatusDead
		} else {
			r.Status = StatusDegraded
		}
		return
	}
	r.Successes++
	r.Latency = blendLatency(r.Latency, res.Latency)
	if res.ExitIP != "" {
		r.ExitIP = res.ExitIP
	}
	r.Status = StatusHealthy
	p.streak[res.URL] = 0
}

// DueForTest returns records that should be probed in the next round:
// untested, degraded, and healthy records whose last test is stale.
func (p *Pool) DueForTest() []Record {
	p.mu.Lock()
	defer p.mu.Unlock()

	cutoff := p.now().Add(-p.cfg.RetestAfter)
	var due []Record
	for _, r := range p.records {
		switch r.Status {
		case StatusUntested, StatusDegraded:
			due = append(due, *r)
		case StatusHealthy:
			if r.LastTested.Before(cutoff) {
				due = append(due, *r)
			}
		}
	}
	return due
}

// Prune drops dead records and records with no successful test within the
// configured maximum age. Returns the number removed.
func (p *Pool) Prune() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	cutoff := p.now().Add(-p.cfg.MaxRecordAge)
	removed := 0
	for u, r := range p.records {
		stale := r.Status != StatusUntested && r.LastTested.Before(cutoff)
		if r.Status == StatusDead || stale {
			delete(p.records, u)
			delete(p.streak, u)
			removed++
		}
	}
	return removed
}

// Counts returns the number of records per status.
func (p *Pool) Counts() map[Status]int {
	p.mu.Lock()
	defer p.mu.Unlock()

	counts := make(map[Status]int)
	for _, r := range p.records {
		counts[r.Status]++
	}
	return counts
}

// Len returns the total number of records.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.records)
}

// Records returns a score-descending copy of all records.
func (p *Pool) Records() []Record {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Record, 0, len(p.records))
	for _, r := range p.records {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool {
		si, sj := out[i].Score(p.cfg.Weights), out[j].Score(p.cfg.Weights)
		if si != sj {
			return si > sj
		}
		return out[i].URL < out[j].URL
	})
	return out
}

// Save writes a JSON snapshot of the pool so ratings survive restarts.
func (p *Pool) Save(path string) error {
	records := p.Records()
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode pool snapshot: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create snapshot directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write pool snapshot: %w", err)
	}
	return nil
}

// Load merges a previously saved snapshot into the pool. Records already
// present keep their in-memory state. A missing file is not an error.
func (p *Pool) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read pool snapshot: %w", err)
	}
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("failed to parse pool snapshot: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	loaded := 0
	for i := range records {
		r := records[i]
		if _, ok := p.records[r.URL]; ok {
			continue
		}
		// Healthy records from a previous run must re-prove themselves.
		if r.Status == StatusHealthy {
			r.Status = StatusUntested
		}
		p.records[r.URL] = &r
		loaded++
	}
	logger.Debug("loaded pool snapshot", "path", path, "records", loaded)
	return nil
}

// blendLatency smooths latency samples with an exponential moving average.
func blendLatency(prev, sample time.Duration) time.Duration {
	if prev == 0 {
		return sample
	}
	return (prev*7 + sample*3) / 10
}
