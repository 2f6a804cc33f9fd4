// Package engine describes the search engines serpscout can target.
//
// An Engine bundles everything the fetch paths need to know about one
// target: where to warm up, how to build a search URL, which consent
// banners to expect, which markup fragments betray a challenge page, and
// which selectors carry organic results.
package engine

import (
	"fmt"
	"net/url"
	"strings"
)

// Engine describes a single search engine target.
type Engine struct {
	Name string `mapstructure:"name" validate:"required"`

	// BaseURL is the page visited during session warm-up.
	BaseURL string `mapstructure:"base_url" validate:"required,url"`

	// SearchURL is the results URL template; {query} is replaced with the
	// URL-encoded query string.
	SearchURL string `mapstructure:"search_url" validate:"required,contains={query}"`

	// ConsentSelectors are CSS selectors for cookie-banner accept buttons,
	// tried in order, best effort.
	ConsentSelectors []string `mapstructure:"consent_selectors"`

	// CaptchaMarkers are substrings whose presence in a page marks it as a
	// challenge page.
	CaptchaMarkers []string `mapstructure:"captcha_markers"`

	// ChallengeURLFragments are URL substrings that mark a redirect onto a
	// challenge page (e.g. yandex.ru/showcaptcha).
	ChallengeURLFragments []string `mapstructure:"challenge_url_fragments"`

	// ResultMarkers are substrings expected on a genuine results page.
	// A page carrying none of them is treated as suspect.
	ResultMarkers []string `mapstructure:"result_markers"`

	// CaptchaButtonSelector locates the checkbox-captcha button for the
	// built-in solver. Empty disables the checkbox solver for this engine.
	CaptchaButtonSelector string `mapstructure:"captcha_button_selector"`

	// Result parsing selectors.
	ResultItemSelector  string `mapstructure:"result_item_selector" validate:"required"`
	ResultLinkSelector  string `mapstructure:"result_link_selector" validate:"required"`
	ResultTitleSelector string `mapstructure:"result_title_selector"`
}

// SearchURLFor renders the search URL for a query.
func (e Engine) SearchURLFor(query string) string {
	return strings.ReplaceAll(e.SearchURL, "{query}", url.QueryEscape(query))
}

// Host returns the host part of the engine's base URL.
func (e Engine) Host() string {
	u, err := url.Parse(e.BaseURL)
	if err != nil {
		return ""
	}
	return u.Host
}

// Defaults returns the built-in engine table. Config-file entries are
// merged over these.
func Defaults() map[string]Engine {
	return map[string]Engine{
		"google": {
			Name:      "Google",
			BaseURL:   "https://www.google.com",
			SearchURL: "https://www.google.com/search?q={query}&hl=en",
			ConsentSelectors: []string{
				`button[aria-label="Accept all"]`,
				`#L2AGLb`,
			},
			CaptchaMarkers: []string{
				"unusual traffic",
				"prove you're not a robot",
			},
			ChallengeURLFragments: []string{
				"google.com/sorry",
			},
			ResultMarkers: []string{
				`id="search"`,
				`id="rso"`,
			},
			ResultItemSelector:  "div.g",
			ResultLinkSelector:  "a[href]",
			ResultTitleSelector: "h3",
		},
		"yandex": {
			Name:      "Yandex",
			BaseURL:   "https://yandex.ru",
			SearchURL: "https://yandex.ru/search/?text={query}",
			ConsentSelectors: []string{
				`button[data-id="button-all"]`,
				`.gdpr-popup-v3-button-all`,
			},
			CaptchaMarkers: []string{
				"Подтвердите, что вы не робот",
				"CheckboxCaptcha-Inner",
				"I'm not a robot",
				"SmartCaptcha",
			},
			ChallengeURLFragments: []string{
				"yandex.ru/showcaptcha",
			},
			ResultMarkers: []string{
				"serp-item",
				`id="search-result"`,
			},
			CaptchaButtonSelector: "#js-button",
			ResultItemSelector:    "div.serp-item",
			ResultLinkSelector:    "a.OrganicTitle-Link",
			ResultTitleSelector:   "span.OrganicTitleContentSpan",
		},
	}
}

// Lookup resolves an engine key against a merged table, with a helpful
// error naming the known keys.
func Lookup(engines map[string]Engine, key string) (Engine, error) {
	e, ok := engines[strings.ToLower(key)]
	if !ok {
		known := make([]string, 0, len(engines))
		for k := range engines {
			known = append(known, k)
		}
		return Engine{}, fmt.Errorf("unknown engine %q (known: %s)", key, strings.Join(known, ", "))
	}
	return e, nil
}
