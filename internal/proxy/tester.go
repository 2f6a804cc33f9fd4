package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/imroc/req/v3"
	xproxy "golang.org/x/net/proxy"

	"github.com/serpscout/serpscout/internal/logger"
)

// Result is the outcome of probing one proxy.
type Result struct {
	URL     string
	Latency time.Duration
	ExitIP  string
	Tested  time.Time
	Err     error
}

// Tester probes proxies concurrently against a known-good target.
type Tester struct {
	// TestURL should return the caller's IP, e.g. https://httpbin.org/ip.
	TestURL string

	// Timeout bounds a single probe.
	Timeout time.Duration

	// Workers is the probe fan-out width.
	Workers int
}

// NewTester returns a tester with the given settings.
func NewTester(testURL string, timeout time.Duration, workers int) *Tester {
	if workers <= 0 {
		workers = 10
	}
	return &Tester{TestURL: testURL, Timeout: timeout, Workers: workers}
}

// TestAll probes every record using a bounded worker pool and returns one
// result per record. Cancelling the context abandons unprobed records.
func (t *Tester) TestAll(ctx context.Context, records []Record) []Result {
	if len(records) == 0 {
		return nil
	}

	jobs := make(chan Record)
	out := make(chan Result)

	var wg sync.WaitGroup
	for i := 0; i < t.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rec := range jobs {
				out <- t.Test(ctx, rec)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, rec := range records {
			select {
			case jobs <- rec:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(out)
	}()

	results := make([]Result, 0, len(records))
	for res := range out {
		results = append(results, res)
	}
	return results
}

// Test probes a single proxy and measures its round-trip latency.
func (t *Tester) Test(ctx context.Context, rec Record) Result {
	res := Result{URL: rec.URL, Tested: time.Now()}

	client, err := t.clientFor(rec)
	if err != nil {
		res.Err = err
		return res
	}

	start := time.Now()
	resp, err := client.R().SetContext(ctx).Get(t.TestURL)
	if err != nil {
		res.Err = fmt.Errorf("probe failed: %w", err)
		return res
	}
	if resp.IsErrorState() {
		res.Err = fmt.Errorf("probe returned status %d", resp.StatusCode)
		return res
	}
	res.Latency = time.Since(start)
	res.ExitIP = parseExitIP(resp.Bytes())
	logger.Debug("proxy probe ok", "proxy", rec.URL, "latency", res.Latency, "exit_ip", res.ExitIP)
	return res
}

// clientFor builds an impersonating HTTP client routed through the proxy.
// SOCKS5 proxies dial through golang.org/x/net/proxy since they need an
// explicit dialer rather than a transport proxy URL.
func (t *Tester) clientFor(rec Record) (*req.Client, error) {
	client := req.C().
		ImpersonateChrome().
		SetTimeout(t.Timeout).
		SetRedirectPolicy(req.MaxRedirectPolicy(3))

	switch rec.Scheme() {
	case "http", "https":
		client.SetProxyURL(rec.URL)
	case "socks5":
		dialer, err := xproxy.SOCKS5("tcp", rec.Host(), nil, xproxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("failed to build socks5 dialer: %w", err)
		}
		cd, ok := dialer.(xproxy.ContextDialer)
		if !ok {
			return nil, fmt.Errorf("socks5 dialer does not support contexts")
		}
		client.SetDial(func(ctx context.Context, network, addr string) (net.Conn, error) {
			return cd.DialContext(ctx, network, addr)
		})
	default:
		return nil, fmt.Errorf("unsupported proxy scheme %q", rec.Scheme())
	}
	return client, nil
}

// parseExitIP extracts the origin IP from an httpbin-style response body.
// Returns empty on any other shape.
func parseExitIP(body []byte) string {
	var payload struct {
		Origin string `json:"origin"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	// Some endpoints return "ip, ip" chains; keep the first.
	origin, _, _ := strings.Cut(payload.Origin, ",")
	origin = strings.TrimSpace(origin)
	if net.ParseIP(origin) == nil {
		return ""
	}
	return origin
}
