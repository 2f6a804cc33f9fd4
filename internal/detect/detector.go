// Package detect classifies fetched pages as clean results or challenges.
package detect

import (
	"strings"

	"github.com/serpscout/serpscout/internal/engine"
)

// Verdict is the classification of a fetched page.
type Verdict string

const (
	// VerdictClean means the page looks like genuine search results.
	VerdictClean Verdict = "clean"

	// VerdictCaptcha means the page is a challenge or looks too suspect
	// to treat as results.
	VerdictCaptcha Verdict = "captcha"
)

// Detection carries the verdict and what triggered it.
type Detection struct {
	Verdict Verdict

	// Reason names the matched marker or rule, for logs and collection
	// metadata.
	Reason string
}

// genericMarkers identify interception layers that sit in front of any
// engine. They are checked after the engine's own markers.
var genericMarkers = []string{
	"cf-challenge",
	"cf_chl_opt",
	"challenge-platform",
	"g-recaptcha",
	"h-captcha",
}

// Classify inspects a page and its final URL against an engine's markers.
//
// The rule is deliberately conservative: a redirect onto a known challenge
// URL or any captcha marker in the body is a challenge, and a page carrying
// none of the engine's result markers is treated as a challenge too. A
// false Captcha costs one browser round; a false Clean feeds garbage
// downstream.
func Classify(html, finalURL string, eng engine.Engine) Detection {
	lowerURL := strings.ToLower(finalURL)
	for _, frag := range eng.ChallengeURLFragments {
		if frag != "" && strings.Contains(lowerURL, strings.ToLower(frag)) {
			return Detection{Verdict: VerdictCaptcha, Reason: "url:" + frag}
		}
	}

	lowerHTML := strings.ToLower(html)
	for _, marker := range eng.CaptchaMarkers {
		if marker != "" && strings.Contains(lowerHTML, strings.ToLower(marker)) {
			return Detection{Verdict: VerdictCaptcha, Reason: "marker:" + marker}
		}
	}

	for _, marker := range genericMarkers {
		if strings.Contains(lowerHTML, marker) {
			return Detection{Verdict: VerdictCaptcha, Reason: "marker:" + marker}
		}
	}

	for _, marker := range eng.ResultMarkers {
		if marker != "" && strings.Contains(lowerHTML, strings.ToLower(marker)) {
			return Detection{Verdict: VerdictClean, Reason: "results:" + marker}
		}
	}
	return Detection{Verdict: VerdictCaptcha, Reason: "no result markers"}
}
