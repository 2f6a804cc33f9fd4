// Package collector archives CAPTCHA pages for offline study.
//
// Challenge pages are rare and valuable: every archived variant improves
// the detection markers and solver selectors. Pages are stored
// content-addressed so reruns do not pile up duplicates.
package collector

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/serpscout/serpscout/internal/logger"
)

// Meta is the sidecar record stored next to each archived page.
type Meta struct {
	Hash      string    `json:"hash"`
	FinalURL  string    `json:"final_url"`
	Reason    string    `json:"reason"`
	Collected time.Time `json:"collected"`
	Size      int       `json:"size"`
}

// Store is a content-addressed archive of challenge pages. Safe for
// concurrent use.
type Store struct {
	dir string

	mu   sync.Mutex
	seen map[string]bool
}

// NewStore opens (or creates) an archive directory and indexes the pages
// already in it.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create collector directory: %w", err)
	}

	seen := make(map[string]bool)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read collector directory: %w", err)
	}
	for _, e := range entries {
		name := e.Name()
		if hash, ok := strings.CutSuffix(name, ".html"); ok {
			seen[hash] = true
		}
	}
	logger.Debug("collector store opened", "dir", dir, "known", len(seen))
	return &Store{dir: dir, seen: seen}, nil
}

// Save archives a challenge page unless an identical one is already
// stored. Returns the page path and whether it was newly written.
func (s *Store) Save(html, finalURL, reason string) (string, bool, error) {
	sum := md5.Sum([]byte(html))
	hash := hex.EncodeToString(sum[:])

	s.mu.Lock()
	if s.seen[hash] {
		s.mu.Unlock()
		return filepath.Join(s.dir, hash+".html"), false, nil
	}
	s.seen[hash] = true
	s.mu.Unlock()

	path := filepath.Join(s.dir, hash+".html")
	if err := os.WriteFile(path, []byte(html), 0o644); err != nil {
		return "", false, fmt.Errorf("failed to write challenge page: %w", err)
	}

	meta := Meta{
		Hash:      hash,
		FinalURL:  finalURL,
		Reason:    reason,
		Collected: time.Now().UTC(),
		Size:      len(html),
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err == nil {
		// Metadata is best effort; the page itself is the artifact.
		_ = os.WriteFile(filepath.Join(s.dir, hash+".json"), data, 0o644)
	}

	logger.Info("archived challenge page",
		"hash", hash,
		"size", humanize.Bytes(uint64(len(html))),
		"reason", reason)
	return path, true, nil
}

// Count returns the number of distinct archived pages.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

// AttemptFunc runs one search attempt for a query. The collector does not
// care whether it succeeds; challenge pages reach the store through the
// fallback driver's challenge hook.
type AttemptFunc func(ctx context.Context, query string) error

// Runner drives autonomous collection: many concurrent identities issuing
// harmless queries on a slow, jittered cadence until told to stop.
type Runner struct {
	store       *Store
	queries     []string
	concurrency int
	minWait     time.Duration
	maxWait     time.Duration
	attempt     AttemptFunc
}

// NewRunner builds a collection loop.
func NewRunner(store *Store, queries []string, concurrency int, minWait, maxWait time.Duration, attempt AttemptFunc) *Runner {
	if concurrency <= 0 {
		concurrency = 1
	}
	if maxWait < minWait {
		maxWait = minWait
	}
	return &Runner{
		store:       store,
		queries:     queries,
		concurrency: concurrency,
		minWait:     minWait,
		maxWait:     maxWait,
		attempt:     attempt,
	}
}

// Run loops until the context is cancelled. Each worker repeatedly picks a
// random query, runs an attempt, and sleeps a random interval. Attempt
// errors are logged and absorbed; triggering challenges is the point.
func (r *Runner) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < r.concurrency; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)))
			for {
				query := r.queries[rng.Intn(len(r.queries))]
				if err := r.attempt(ctx, query); err != nil {
					if ctx.Err() != nil {
						return
					}
					logger.Debug("collection attempt failed", "worker", worker, "query", query, "error", err)
				}

				wait := r.minWait
				if span := r.maxWait - r.minWait; span > 0 {
					wait += time.Duration(rng.Int63n(int64(span)))
				}
				select {
				case <-time.After(wait):
				case <-ctx.Done():
					return
				}
			}
		}(i)
	}
	wg.Wait()
	logger.Info("collection stopped", "archived", r.store.Count())
}
