package browser

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"

	"github.com/serpscout/serpscout/internal/fingerprint"
	"github.com/serpscout/serpscout/internal/session"
)

// Page is the surface the warmup and fallback logic need from a browser
// tab. The chromedp implementation lives in chromePage; tests substitute
// their own.
type Page interface {
	Navigate(ctx context.Context, url string) error
	Click(ctx context.Context, selector string) error
	Content(ctx context.Context) (html string, finalURL string, err error)
	Cookies(ctx context.Context) ([]session.Cookie, error)
	Screenshot(ctx context.Context) []byte
}

// chromePage is a Page over a live chromedp browser context.
type chromePage struct {
	ctx context.Context
}

// SessionContext is one emulated browser: a dedicated Chrome process
// configured with a profile's fingerprint and routed through one proxy.
type SessionContext struct {
	page        *chromePage
	cancelAlloc context.CancelFunc
	cancelTab   context.CancelFunc
}

// NewSessionContext launches a browser presenting the given profile
// through the given proxy. Callers own Close.
func NewSessionContext(ctx context.Context, headless bool, profile fingerprint.Profile, proxyURL string) (*SessionContext, error) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocatorOptions(headless, profile, proxyURL)...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)

	// Start the browser and apply emulation before any navigation.
	if err := chromedp.Run(tabCtx, injectStealth(profile), applyEmulation(profile)); err != nil {
		cancelTab()
		cancelAlloc()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}
	return &SessionContext{
		page:        &chromePage{ctx: tabCtx},
		cancelAlloc: cancelAlloc,
		cancelTab:   cancelTab,
	}, nil
}

// Page returns the session's tab.
func (s *SessionContext) Page() Page {
	return s.page
}

// Close tears the browser down.
func (s *SessionContext) Close() {
	s.cancelTab()
	s.cancelAlloc()
}

func (p *chromePage) Navigate(ctx context.Context, url string) error {
	runCtx, cancel := mergeDeadline(p.ctx, ctx)
	defer cancel()
	if err := chromedp.Run(runCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
	); err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}
	return nil
}

func (p *chromePage) Click(ctx context.Context, selector string) error {
	runCtx, cancel := mergeDeadline(p.ctx, ctx)
	defer cancel()
	if err := chromedp.Run(runCtx,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("click %s failed: %w", selector, err)
	}
	return nil
}

func (p *chromePage) Content(ctx context.Context) (string, string, error) {
	runCtx, cancel := mergeDeadline(p.ctx, ctx)
	defer cancel()
	var html, location string
	if err := chromedp.Run(runCtx,
		chromedp.Location(&location),
		chromedp.OuterHTML("html", &html),
	); err != nil {
		return "", "", fmt.Errorf("failed to read page content: %w", err)
	}
	return html, location, nil
}

func (p *chromePage) Cookies(ctx context.Context) ([]session.Cookie, error) {
	runCtx, cancel := mergeDeadline(p.ctx, ctx)
	defer cancel()
	var raw []*network.Cookie
	err := chromedp.Run(runCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		raw, err = storage.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to read cookies: %w", err)
	}

	cookies := make([]session.Cookie, 0, len(raw))
	for _, c := range raw {
		cookie := session.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		}
		if c.Expires > 0 {
			cookie.Expires = time.Unix(int64(c.Expires), 0)
		}
		cookies = append(cookies, cookie)
	}
	return cookies, nil
}

// scroller is implemented by pages that can scroll like a person would.
// The warmer uses it when available; test doubles need not bother.
type scroller interface {
	Scroll(ctx context.Context) error
}

func (p *chromePage) Scroll(ctx context.Context) error {
	runCtx, cancel := mergeDeadline(p.ctx, ctx)
	defer cancel()
	for _, px := range []int{260, 140} {
		if err := chromedp.Run(runCtx,
			chromedp.Evaluate(fmt.Sprintf("window.scrollBy({top: %d, behavior: 'smooth'})", px), nil),
			chromedp.Sleep(time.Duration(300+rand.Intn(400))*time.Millisecond),
		); err != nil {
			return fmt.Errorf("scroll failed: %w", err)
		}
	}
	return nil
}

func (p *chromePage) Screenshot(ctx context.Context) []byte {
	runCtx, cancel := mergeDeadline(p.ctx, ctx)
	defer cancel()
	return captureScreenshot(runCtx)
}

// mergeDeadline runs browser actions on the tab context while honoring the
// caller's deadline and cancellation. chromedp actions must run on the tab
// context chain, so the caller's context cannot be used directly.
func mergeDeadline(tabCtx, callerCtx context.Context) (context.Context, context.CancelFunc) {
	var ctx context.Context
	var cancel context.CancelFunc
	if deadline, ok := callerCtx.Deadline(); ok {
		ctx, cancel = context.WithDeadline(tabCtx, deadline)
	} else {
		ctx, cancel = context.WithCancel(tabCtx)
	}
	stop := context.AfterFunc(callerCtx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
