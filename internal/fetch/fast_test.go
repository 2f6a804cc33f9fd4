package fetch

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Danny-Dasilva/CycleTLS/cycletls"

	"github.com/serpscout/serpscout/internal/engine"
	"github.com/serpscout/serpscout/internal/fingerprint"
	"github.com/serpscout/serpscout/internal/proxy"
	"github.com/serpscout/serpscout/internal/session"
)

type fakeTransport struct {
	resp cycletls.Response
	err  error

	gotURL  string
	gotOpts cycletls.Options
}

func (f *fakeTransport) Do(url string, options cycletls.Options, method string) (cycletls.Response, error) {
	f.gotURL = url
	f.gotOpts = options
	return f.resp, f.err
}

func testEngine() engine.Engine {
	return engine.Engine{
		Name:                  "Test",
		BaseURL:               "https://search.example.com",
		SearchURL:             "https://search.example.com/search?q={query}",
		CaptchaMarkers:        []string{"SmartCaptcha"},
		ChallengeURLFragments: []string{"/showcaptcha"},
		ResultMarkers:         []string{"serp-item"},
	}
}

func testSession(class string) *session.Session {
	profile := fingerprint.Profile{
		Class:     class,
		UserAgent: "TestAgent/1.0",
		Locale:    "en-US",
	}
	if class == fingerprint.ClassIOS {
		profile.UserAgent = "Mozilla/5.0 (iPhone; ...) Safari/604.1"
	}
	s := session.New(profile, proxy.Record{URL: "http://1.2.3.4:8080", Status: proxy.StatusHealthy})
	s.SetCookies([]session.Cookie{{Name: "warm", Value: "1", Domain: ".example.com"}})
	return s
}

func TestFetchSuccess(t *testing.T) {
	tr := &fakeTransport{resp: cycletls.Response{
		Status: 200,
		Body:   `<html><div class="serp-item">hit</div></html>`,
	}}
	f := newFastFetcher(tr, Config{Timeout: 5 * time.Second})

	out := f.Fetch(context.Background(), testSession(fingerprint.ClassAndroid), testEngine(), "go testing")
	if out.Kind != KindSuccess {
		t.Fatalf("Kind = %s (%s), want success", out.Kind, out.Reason)
	}
	if out.StatusCode != 200 {
		t.Errorf("StatusCode = %d", out.StatusCode)
	}

	if want := "https://search.example.com/search?q=go+testing"; tr.gotURL != want {
		t.Errorf("request URL = %q, want %q", tr.gotURL, want)
	}
	if tr.gotOpts.Proxy != "http://1.2.3.4:8080" {
		t.Errorf("request proxy = %q", tr.gotOpts.Proxy)
	}
	if got := tr.gotOpts.Headers["Cookie"]; got != "warm=1" {
		t.Errorf("Cookie header = %q, want warmed cookie", got)
	}
	if tr.gotOpts.UserAgent != "TestAgent/1.0" {
		t.Errorf("UserAgent = %q", tr.gotOpts.UserAgent)
	}
}

func TestFetchCaptcha(t *testing.T) {
	t.Run("marker in body", func(t *testing.T) {
		tr := &fakeTransport{resp: cycletls.Response{
			Status: 200,
			Body:   `<html>SmartCaptcha</html>`,
		}}
		f := newFastFetcher(tr, Config{})
		out := f.Fetch(context.Background(), testSession(fingerprint.ClassAndroid), testEngine(), "q")
		if out.Kind != KindCaptcha {
			t.Fatalf("Kind = %s, want captcha", out.Kind)
		}
		if out.HTML == "" {
			t.Error("captcha outcome should carry the page body")
		}
	})

	t.Run("challenge redirect", func(t *testing.T) {
		tr := &fakeTransport{resp: cycletls.Response{
			Status:   200,
			Body:     `<html><div class="serp-item">looks fine</div></html>`,
			FinalUrl: "https://search.example.com/showcaptcha?retpath=x",
		}}
		f := newFastFetcher(tr, Config{})
		out := f.Fetch(context.Background(), testSession(fingerprint.ClassAndroid), testEngine(), "q")
		if out.Kind != KindCaptcha {
			t.Fatalf("Kind = %s, want captcha", out.Kind)
		}
	})

	t.Run("missing result markers", func(t *testing.T) {
		tr := &fakeTransport{resp: cycletls.Response{Status: 200, Body: `<html>empty</html>`}}
		f := newFastFetcher(tr, Config{})
		out := f.Fetch(context.Background(), testSession(fingerprint.ClassAndroid), testEngine(), "q")
		if out.Kind != KindCaptcha {
			t.Fatalf("Kind = %s, want captcha for unrecognized page", out.Kind)
		}
	})
}

func TestFetchTransportFailure(t *testing.T) {
	t.Run("request error", func(t *testing.T) {
		tr := &fakeTransport{err: errors.New("proxy refused")}
		f := newFastFetcher(tr, Config{})
		out := f.Fetch(context.Background(), testSession(fingerprint.ClassAndroid), testEngine(), "q")
		if out.Kind != KindTransportFailure {
			t.Fatalf("Kind = %s, want transport failure", out.Kind)
		}
		if out.Err == nil {
			t.Error("transport failure should carry the error")
		}
	})

	t.Run("server error status", func(t *testing.T) {
		tr := &fakeTransport{resp: cycletls.Response{Status: 502}}
		f := newFastFetcher(tr, Config{})
		out := f.Fetch(context.Background(), testSession(fingerprint.ClassAndroid), testEngine(), "q")
		if out.Kind != KindTransportFailure {
			t.Fatalf("Kind = %s, want transport failure for 502", out.Kind)
		}
	})
}

func TestFetchJA3MatchesDeviceClass(t *testing.T) {
	tr := &fakeTransport{resp: cycletls.Response{Status: 200, Body: "serp-item"}}
	f := newFastFetcher(tr, Config{})

	f.Fetch(context.Background(), testSession(fingerprint.ClassAndroid), testEngine(), "q")
	if tr.gotOpts.Ja3 != ja3Chrome {
		t.Error("android session should present the chrome ja3")
	}

	f.Fetch(context.Background(), testSession(fingerprint.ClassIOS), testEngine(), "q")
	if tr.gotOpts.Ja3 != ja3Safari {
		t.Error("ios session should present the safari ja3")
	}
}

func TestPauseHonorsCancellation(t *testing.T) {
	f := newFastFetcher(&fakeTransport{}, Config{MinDelay: time.Hour, MaxDelay: 2 * time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	out := f.Fetch(ctx, testSession(fingerprint.ClassAndroid), testEngine(), "q")
	if out.Kind != KindTransportFailure {
		t.Fatalf("Kind = %s, want transport failure on cancellation", out.Kind)
	}
	if time.Since(start) > time.Second {
		t.Error("cancelled fetch should return promptly")
	}
	if !strings.Contains(out.Err.Error(), "context") {
		t.Errorf("Err = %v", out.Err)
	}
}
