package browser

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/serpscout/serpscout/internal/engine"
	"github.com/serpscout/serpscout/internal/logger"
)

// ErrNoSolver means no solving strategy applies to the challenge.
var ErrNoSolver = errors.New("no solver for challenge")

// Solver attempts to get past a challenge page. Implementations must
// return quickly when they cannot help so the driver can give up instead
// of spinning.
type Solver interface {
	Solve(ctx context.Context, pg Page, eng engine.Engine) error
}

// CheckboxSolver clicks the "I am not a robot" checkbox variant. The
// harder image grids need an external solving service and are out of its
// reach; it reports ErrNoSolver for engines without a checkbox selector.
type CheckboxSolver struct {
	rng *rand.Rand
}

// NewCheckboxSolver creates the built-in checkbox solver.
func NewCheckboxSolver() *CheckboxSolver {
	return &CheckboxSolver{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// Solve pauses like a person reading the page, then clicks the checkbox.
func (s *CheckboxSolver) Solve(ctx context.Context, pg Page, eng engine.Engine) error {
	if eng.CaptchaButtonSelector == "" {
		return ErrNoSolver
	}

	// A click within milliseconds of page load is its own bot signal.
	pause := time.Duration(1500+s.rng.Intn(2000)) * time.Millisecond
	select {
	case <-time.After(pause):
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := pg.Click(ctx, eng.CaptchaButtonSelector); err != nil {
		return err
	}
	logger.Debug("clicked challenge checkbox", "selector", eng.CaptchaButtonSelector)
	return nil
}
