// Package parser extracts organic results from search result pages.
package parser

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/serpscout/serpscout/internal/engine"
)

// ErrNoResults means the page parsed cleanly but yielded no organic
// results. Callers treat this as a failed attempt since a clean verdict
// promised results.
var ErrNoResults = errors.New("no organic results found")

// Result is one organic search hit.
type Result struct {
	Rank  int    `json:"rank" yaml:"rank"`
	Title string `json:"title" yaml:"title"`
	URL   string `json:"url" yaml:"url"`
}

// Parse extracts organic results using the engine's selectors. Items
// without a usable link are skipped; ad and navigation blocks rarely carry
// the organic link selector so they fall out naturally.
func Parse(html string, eng engine.Engine) ([]Result, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page: %w", err)
	}

	var results []Result
	doc.Find(eng.ResultItemSelector).Each(func(_ int, item *goquery.Selection) {
		link := item.Find(eng.ResultLinkSelector).First()
		href, ok := link.Attr("href")
		if !ok {
			return
		}
		href = strings.TrimSpace(href)
		if !isExternal(href) {
			return
		}

		title := ""
		if eng.ResultTitleSelector != "" {
			title = cleanText(item.Find(eng.ResultTitleSelector).First().Text())
		}
		if title == "" {
			title = cleanText(link.Text())
		}

		results = append(results, Result{
			Rank:  len(results) + 1,
			Title: title,
			URL:   href,
		})
	})

	if len(results) == 0 {
		return nil, ErrNoResults
	}
	return results, nil
}

// isExternal keeps absolute http(s) links and drops fragments, relative
// navigation and javascript pseudo-links.
func isExternal(href string) bool {
	u, err := url.Parse(href)
	if err != nil {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
