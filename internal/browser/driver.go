package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/serpscout/serpscout/internal/detect"
	"github.com/serpscout/serpscout/internal/engine"
	"github.com/serpscout/serpscout/internal/logger"
)

// ErrChallengeUnresolved means the fallback driver exhausted its retry
// budget without getting past the challenge.
var ErrChallengeUnresolved = errors.New("challenge unresolved after retries")

// State names a fallback driver state. The driver is an explicit machine
// so its behavior is inspectable and termination is provable: every
// transition either advances toward Done/Failed or spends retry budget.
type State string

const (
	StateNavigate State = "navigate"
	StateSettle   State = "settle"
	StateDetect   State = "detect_challenge"
	StateSolve    State = "solve_challenge"
	StateExtract  State = "extract"
	StateDone     State = "done"
	StateFailed   State = "failed"
)

// Result is a successful fallback fetch.
type Result struct {
	HTML     string
	FinalURL string

	// Solved is true when at least one challenge was cleared on the way.
	Solved bool
}

// ChallengeHook observes every challenge page the driver encounters,
// before solving is attempted. Used to archive CAPTCHA pages.
type ChallengeHook func(html, finalURL, reason string)

// Driver runs the full-browser fallback: navigate, settle, detect, solve,
// verify, extract.
type Driver struct {
	pg     Page
	solver Solver

	settle        time.Duration
	retryBudget   int
	screenshotDir string
	onChallenge   ChallengeHook

	trace []State
}

// DriverOption configures a Driver.
type DriverOption func(*Driver)

// WithChallengeHook registers a challenge observer.
func WithChallengeHook(hook ChallengeHook) DriverOption {
	return func(d *Driver) { d.onChallenge = hook }
}

// WithScreenshotDir enables failure screenshots.
func WithScreenshotDir(dir string) DriverOption {
	return func(d *Driver) { d.screenshotDir = dir }
}

// NewDriver builds a driver over a page. retryBudget bounds how many solve
// attempts are spent before giving up.
func NewDriver(pg Page, solver Solver, settle time.Duration, retryBudget int, opts ...DriverOption) *Driver {
	if retryBudget <= 0 {
		retryBudget = 1
	}
	d := &Driver{
		pg:          pg,
		solver:      solver,
		settle:      settle,
		retryBudget: retryBudget,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Trace returns the visited states in order. Populated by Run.
func (d *Driver) Trace() []State {
	return d.trace
}

// Run drives the machine from Navigate to Done or Failed.
func (d *Driver) Run(ctx context.Context, eng engine.Engine, targetURL string) (Result, error) {
	d.trace = d.trace[:0]

	var (
		html, finalURL string
		attempts       int
		failure        error
	)
	state := StateNavigate

	for {
		d.trace = append(d.trace, state)
		logger.Debug("fallback driver state", "state", state, "attempts", attempts)

		switch state {
		case StateNavigate:
			if err := d.pg.Navigate(ctx, targetURL); err != nil {
				failure = fmt.Errorf("fallback navigation failed: %w", err)
				state = StateFailed
				continue
			}
			state = StateSettle

		case StateSettle:
			if d.settle > 0 {
				select {
				case <-time.After(d.settle):
				case <-ctx.Done():
					failure = ctx.Err()
					state = StateFailed
					continue
				}
			}
			state = StateDetect

		case StateDetect:
			var err error
			html, finalURL, err = d.pg.Content(ctx)
			if err != nil {
				failure = fmt.Errorf("failed to read page: %w", err)
				state = StateFailed
				continue
			}
			det := detect.Classify(html, finalURL, eng)
			if det.Verdict == detect.VerdictClean {
				state = StateExtract
				continue
			}
			if d.onChallenge != nil {
				d.onChallenge(html, finalURL, det.Reason)
			}
			if attempts >= d.retryBudget {
				failure = fmt.Errorf("%w: %d attempts, last reason %s", ErrChallengeUnresolved, attempts, det.Reason)
				state = StateFailed
				continue
			}
			state = StateSolve

		case StateSolve:
			attempts++
			err := d.solver.Solve(ctx, d.pg, eng)
			if errors.Is(err, ErrNoSolver) {
				failure = fmt.Errorf("%w: %v", ErrChallengeUnresolved, err)
				state = StateFailed
				continue
			}
			if err != nil {
				// The click may still have landed; reverify either way.
				logger.Debug("solver attempt failed", "attempt", attempts, "error", err)
			}
			state = StateSettle

		case StateExtract:
			logger.Debug("fallback extracted page", "url", finalURL, "solved", attempts > 0)
			state = StateDone

		case StateDone:
			return Result{HTML: html, FinalURL: finalURL, Solved: attempts > 0}, nil

		case StateFailed:
			d.captureFailure(ctx)
			return Result{}, failure

		default:
			return Result{}, fmt.Errorf("driver entered unknown state %q", state)
		}
	}
}

// captureFailure saves a screenshot of the failed page when configured.
func (d *Driver) captureFailure(ctx context.Context) {
	if d.screenshotDir == "" {
		return
	}
	shot := d.pg.Screenshot(ctx)
	if shot == nil {
		return
	}
	if err := os.MkdirAll(d.screenshotDir, 0o755); err != nil {
		logger.Warn("failed to create screenshot directory", "error", err)
		return
	}
	path := filepath.Join(d.screenshotDir, fmt.Sprintf("failure-%d.png", time.Now().UnixNano()))
	if err := os.WriteFile(path, shot, 0o644); err != nil {
		logger.Warn("failed to write screenshot", "error", err)
		return
	}
	logger.Info("saved failure screenshot", "path", path)
}
