package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/imroc/req/v3"

	"github.com/serpscout/serpscout/internal/logger"
)

// Source is one proxy feed endpoint.
type Source struct {
	URL string

	// Format is "text" (one address per line), "json" (proxyscrape-style
	// payload) or "html" (page with an ip/port table).
	Format string
}

// SourceList fetches proxy candidates from a set of feeds.
type SourceList struct {
	sources []Source
	timeout time.Duration

	// max caps the number of candidates returned per refresh so one huge
	// feed cannot flood the pool.
	max int
}

// NewSourceList builds a fetcher over the given feeds.
func NewSourceList(sources []Source, timeout time.Duration, max int) *SourceList {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &SourceList{sources: sources, timeout: timeout, max: max}
}

// Fetch queries every feed and returns the combined candidate addresses.
// Feed failures are logged and skipped; an empty result is not an error.
func (s *SourceList) Fetch(ctx context.Context) []string {
	var all []string
	for _, src := range s.sources {
		candidates, err := s.fetchOne(ctx, src)
		if err != nil {
			logger.Warn("proxy source failed", "url", src.URL, "error", err)
			continue
		}
		logger.Debug("proxy source fetched", "url", src.URL, "candidates", len(candidates))
		all = append(all, candidates...)
		if s.max > 0 && len(all) >= s.max {
			all = all[:s.max]
			break
		}
	}
	return all
}

func (s *SourceList) fetchOne(ctx context.Context, src Source) ([]string, error) {
	switch src.Format {
	case "html":
		return s.fetchHTML(ctx, src.URL)
	case "text", "json":
		client := req.C().ImpersonateChrome().SetTimeout(s.timeout)
		resp, err := client.R().SetContext(ctx).Get(src.URL)
		if err != nil {
			return nil, err
		}
		if resp.IsErrorState() {
			return nil, fmt.Errorf("source returned status %d", resp.StatusCode)
		}
		if src.Format == "json" {
			return parseJSONFeed(resp.Bytes())
		}
		return parseTextFeed(resp.String()), nil
	default:
		return nil, fmt.Errorf("unknown source format %q", src.Format)
	}
}

// fetchHTML scrapes ip/port pairs out of table rows on free-proxy list
// pages.
func (s *SourceList) fetchHTML(ctx context.Context, url string) ([]string, error) {
	var candidates []string

	c := colly.NewCollector(
		colly.UserAgent("Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"),
	)
	c.SetRequestTimeout(s.timeout)

	c.OnHTML("table tbody tr", func(e *colly.HTMLElement) {
		ip := strings.TrimSpace(e.ChildText("td:nth-child(1)"))
		port := strings.TrimSpace(e.ChildText("td:nth-child(2)"))
		if ip == "" || port == "" {
			return
		}
		candidates = append(candidates, ip+":"+port)
	})

	if err := c.Visit(url); err != nil {
		return nil, err
	}
	c.Wait()
	return candidates, nil
}

// parseTextFeed splits a plain-text feed into one address per line.
func parseTextFeed(body string) []string {
	var out []string
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out
}

// parseJSONFeed handles the proxyscrape JSON shape as well as a bare array
// of address strings.
func parseJSONFeed(body []byte) ([]string, error) {
	var payload struct {
		Proxies []struct {
			Proxy    string `json:"proxy"`
			IP       string `json:"ip"`
			Port     any    `json:"port"`
			Protocol string `json:"protocol"`
		} `json:"proxies"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && len(payload.Proxies) > 0 {
		out := make([]string, 0, len(payload.Proxies))
		for _, p := range payload.Proxies {
			switch {
			case p.Proxy != "":
				out = append(out, p.Proxy)
			case p.IP != "" && p.Port != nil:
				addr := fmt.Sprintf("%s:%v", p.IP, p.Port)
				if p.Protocol != "" {
					addr = p.Protocol + "://" + addr
				}
				out = append(out, addr)
			}
		}
		return out, nil
	}

	var list []string
	if err := json.Unmarshal(body, &list); err == nil {
		return list, nil
	}
	return nil, fmt.Errorf("unrecognized json feed shape")
}
