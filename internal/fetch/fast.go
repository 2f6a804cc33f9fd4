package fetch

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/Danny-Dasilva/CycleTLS/cycletls"

	"github.com/serpscout/serpscout/internal/detect"
	"github.com/serpscout/serpscout/internal/engine"
	"github.com/serpscout/serpscout/internal/fingerprint"
	"github.com/serpscout/serpscout/internal/logger"
	"github.com/serpscout/serpscout/internal/session"
)

// JA3 fingerprints matching the emulated browsers. The TLS handshake must
// agree with the user agent or the request is trivially flaggable.
const (
	ja3Chrome = "771,4865-4866-4867-49195-49199-49196-49200-52393-52392-49171-49172-156-157-47-53,45-13-43-0-16-65281-51-18-11-27-35-23-10-5-17513-21,29-23-24,0"
	ja3Safari = "771,4865-4866-4867-49196-49195-52393-49200-49199-52392-49162-49161-49172-49171-157-156-53-47-49160-49170-10,0-23-65281-10-11-16-5-13-18-51-45-43-21,29-23-24-25,0"
)

// transport is the slice of cycletls.CycleTLS the fetcher uses.
type transport interface {
	Do(url string, options cycletls.Options, method string) (cycletls.Response, error)
}

// Config tunes the fast fetcher.
type Config struct {
	Timeout time.Duration

	// MinDelay and MaxDelay bound the jittered pause before each
	// request. Uniform pacing is a bot signal in itself.
	MinDelay time.Duration
	MaxDelay time.Duration

	// MaxPageSize truncates larger bodies. Zero means unlimited.
	MaxPageSize int
}

// FastFetcher issues search requests through a TLS-impersonating client,
// replaying a warmed session's cookies and fingerprint.
type FastFetcher struct {
	client transport
	cfg    Config

	mu  sync.Mutex
	rng *rand.Rand
}

// NewFastFetcher creates a fetcher backed by a CycleTLS client.
func NewFastFetcher(cfg Config) *FastFetcher {
	client := cycletls.Init()
	return newFastFetcher(client, cfg)
}

func newFastFetcher(client transport, cfg Config) *FastFetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &FastFetcher{
		client: client,
		cfg:    cfg,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Fetch runs one search request for the query and classifies the response.
// The returned outcome is always one of Success, Captcha or
// TransportFailure.
func (f *FastFetcher) Fetch(ctx context.Context, sess *session.Session, eng engine.Engine, query string) Outcome {
	if err := f.pause(ctx); err != nil {
		return Outcome{Kind: KindTransportFailure, Err: err}
	}

	target := eng.SearchURLFor(query)
	opts := cycletls.Options{
		Ja3:       ja3For(sess.Profile),
		UserAgent: sess.Profile.UserAgent,
		Headers:   f.headers(sess, eng),
		Proxy:     sess.Proxy.URL,
		Timeout:   int(f.cfg.Timeout.Seconds()),
	}

	start := time.Now()
	resp, err := f.client.Do(target, opts, "GET")
	latency := time.Since(start)
	if err != nil {
		return Outcome{Kind: KindTransportFailure, Latency: latency, Err: fmt.Errorf("request failed: %w", err)}
	}
	if resp.Status == 0 || resp.Status >= 500 {
		return Outcome{
			Kind:       KindTransportFailure,
			StatusCode: resp.Status,
			Latency:    latency,
			Err:        fmt.Errorf("server returned status %d", resp.Status),
		}
	}

	finalURL := resp.FinalUrl
	if finalURL == "" {
		finalURL = target
	}
	body := resp.Body
	if f.cfg.MaxPageSize > 0 && len(body) > f.cfg.MaxPageSize {
		body = body[:f.cfg.MaxPageSize]
	}

	det := detect.Classify(body, finalURL, eng)
	logger.Debug("fast fetch classified",
		"engine", eng.Name,
		"status", resp.Status,
		"verdict", det.Verdict,
		"reason", det.Reason,
		"latency", latency.Round(time.Millisecond))

	out := Outcome{
		HTML:       body,
		FinalURL:   finalURL,
		StatusCode: resp.Status,
		Latency:    latency,
		Reason:     det.Reason,
	}
	if det.Verdict == detect.VerdictCaptcha {
		out.Kind = KindCaptcha
	} else {
		out.Kind = KindSuccess
	}
	return out
}

// headers builds the request headers from the session's fingerprint and
// warmed cookies.
func (f *FastFetcher) headers(sess *session.Session, eng engine.Engine) map[string]string {
	h := map[string]string{
		"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
		"Accept-Language":           sess.Profile.AcceptLanguage(),
		"Accept-Encoding":           "gzip, deflate, br",
		"Upgrade-Insecure-Requests": "1",
		"Referer":                   eng.BaseURL + "/",
	}
	if !strings.Contains(sess.Profile.UserAgent, "iPhone") {
		h["Sec-Ch-Ua-Mobile"] = "?1"
		h["Sec-Ch-Ua-Platform"] = `"Android"`
	}
	if cookie := sess.CookieHeader(eng.Host()); cookie != "" {
		h["Cookie"] = cookie
	}
	return h
}

// pause sleeps a jittered interval or returns early on cancellation.
func (f *FastFetcher) pause(ctx context.Context) error {
	if f.cfg.MaxDelay <= 0 {
		return ctx.Err()
	}
	span := f.cfg.MaxDelay - f.cfg.MinDelay
	d := f.cfg.MinDelay
	if span > 0 {
		f.mu.Lock()
		d += time.Duration(f.rng.Int63n(int64(span)))
		f.mu.Unlock()
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ja3For picks the TLS fingerprint matching the profile's browser family.
func ja3For(p fingerprint.Profile) string {
	if p.Class == fingerprint.ClassIOS {
		return ja3Safari
	}
	return ja3Chrome
}
