package browser

import (
	"context"
	"errors"
	"testing"

	"github.com/serpscout/serpscout/internal/engine"
	"github.com/serpscout/serpscout/internal/session"
)

// fakePage serves a scripted sequence of page views. Click advances to the
// next view when advanceOnClick is set, mimicking a challenge that clears.
type fakePage struct {
	views          []string
	finalURL       string
	idx            int
	advanceOnClick bool

	navigated []string
	clicks    []string
	navErr    error
	clickErr  error
	cookies   []session.Cookie
}

func (f *fakePage) Navigate(ctx context.Context, url string) error {
	f.navigated = append(f.navigated, url)
	if f.navErr != nil {
		return f.navErr
	}
	return ctx.Err()
}

func (f *fakePage) Click(ctx context.Context, selector string) error {
	f.clicks = append(f.clicks, selector)
	if f.clickErr != nil {
		return f.clickErr
	}
	if f.advanceOnClick && f.idx < len(f.views)-1 {
		f.idx++
	}
	return nil
}

func (f *fakePage) Content(ctx context.Context) (string, string, error) {
	if len(f.views) == 0 {
		return "", f.finalURL, nil
	}
	return f.views[f.idx], f.finalURL, nil
}

func (f *fakePage) Cookies(ctx context.Context) ([]session.Cookie, error) {
	return f.cookies, nil
}

func (f *fakePage) Screenshot(ctx context.Context) []byte { return nil }

// fakeSolver clicks without the human-pacing delays of the real one.
type fakeSolver struct {
	err   error
	calls int
}

func (s *fakeSolver) Solve(ctx context.Context, pg Page, eng engine.Engine) error {
	s.calls++
	if s.err != nil {
		return s.err
	}
	return pg.Click(ctx, eng.CaptchaButtonSelector)
}

func driverEngine() engine.Engine {
	return engine.Engine{
		Name:                  "Test",
		CaptchaMarkers:        []string{"CheckboxCaptcha"},
		ResultMarkers:         []string{"serp-item"},
		CaptchaButtonSelector: "#js-button",
	}
}

const (
	cleanPage     = `<html><div class="serp-item">hit</div></html>`
	challengePage = `<html><div class="CheckboxCaptcha">prove it</div></html>`
)

func TestDriverCleanPath(t *testing.T) {
	pg := &fakePage{views: []string{cleanPage}, finalURL: "https://t/search"}
	d := NewDriver(pg, &fakeSolver{}, 0, 3)

	res, err := d.Run(context.Background(), driverEngine(), "https://t/search?q=x")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.HTML != cleanPage {
		t.Errorf("HTML = %q", res.HTML)
	}
	if res.Solved {
		t.Error("clean path should not report Solved")
	}

	want := []State{StateNavigate, StateSettle, StateDetect, StateExtract, StateDone}
	got := d.Trace()
	if len(got) != len(want) {
		t.Fatalf("trace = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("trace = %v, want %v", got, want)
		}
	}
}

func TestDriverSolvesChallenge(t *testing.T) {
	pg := &fakePage{
		views:          []string{challengePage, cleanPage},
		finalURL:       "https://t/search",
		advanceOnClick: true,
	}
	solver := &fakeSolver{}
	var hookReasons []string
	d := NewDriver(pg, solver, 0, 3, WithChallengeHook(func(html, finalURL, reason string) {
		hookReasons = append(hookReasons, reason)
	}))

	res, err := d.Run(context.Background(), driverEngine(), "https://t/search?q=x")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Solved {
		t.Error("expected Solved after clearing a challenge")
	}
	if res.HTML != cleanPage {
		t.Errorf("HTML = %q", res.HTML)
	}
	if solver.calls != 1 {
		t.Errorf("solver called %d times, want 1", solver.calls)
	}
	if len(hookReasons) != 1 {
		t.Errorf("challenge hook fired %d times, want 1", len(hookReasons))
	}
	if got := pg.clicks; len(got) != 1 || got[0] != "#js-button" {
		t.Errorf("clicks = %v", got)
	}
}

func TestDriverRetryBudgetBoundsDetection(t *testing.T) {
	// The challenge never clears; the driver must terminate after the
	// budget is spent, no matter how many rounds it could run.
	pg := &fakePage{views: []string{challengePage}, finalURL: "https://t/showcaptcha"}
	solver := &fakeSolver{}
	d := NewDriver(pg, solver, 0, 3)

	_, err := d.Run(context.Background(), driverEngine(), "https://t/search?q=x")
	if !errors.Is(err, ErrChallengeUnresolved) {
		t.Fatalf("err = %v, want ErrChallengeUnresolved", err)
	}
	if solver.calls != 3 {
		t.Errorf("solver called %d times, want exactly the budget", solver.calls)
	}

	detections := 0
	for _, s := range d.Trace() {
		if s == StateDetect {
			detections++
		}
	}
	if detections != 4 {
		t.Errorf("detect visited %d times, want budget+1", detections)
	}
	if last := d.Trace()[len(d.Trace())-1]; last != StateFailed {
		t.Errorf("final state = %s, want failed", last)
	}
}

func TestDriverNoSolverFailsFast(t *testing.T) {
	pg := &fakePage{views: []string{challengePage}}
	d := NewDriver(pg, NewCheckboxSolver(), 0, 3)

	eng := driverEngine()
	eng.CaptchaButtonSelector = ""

	_, err := d.Run(context.Background(), eng, "https://t/search?q=x")
	if !errors.Is(err, ErrChallengeUnresolved) {
		t.Fatalf("err = %v, want ErrChallengeUnresolved", err)
	}
	// One detect, one solve attempt, then out.
	if len(pg.clicks) != 0 {
		t.Errorf("clicks = %v, want none without a selector", pg.clicks)
	}
}

func TestDriverNavigationFailure(t *testing.T) {
	pg := &fakePage{navErr: errors.New("tunnel collapsed")}
	d := NewDriver(pg, &fakeSolver{}, 0, 3)

	_, err := d.Run(context.Background(), driverEngine(), "https://t/search?q=x")
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, ErrChallengeUnresolved) {
		t.Error("navigation failure misreported as unresolved challenge")
	}
}

func TestWorkerPoolBounds(t *testing.T) {
	p := NewWorkerPool(2)

	if err := p.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := p.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if p.TryAcquire() {
		t.Fatal("third acquire should fail on a pool of two")
	}
	if got := p.InUse(); got != 2 {
		t.Errorf("InUse = %d", got)
	}

	p.Release()
	if !p.TryAcquire() {
		t.Fatal("acquire should succeed after release")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Acquire(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Acquire on full pool with cancelled ctx = %v", err)
	}
}
