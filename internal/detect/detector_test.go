package detect

import (
	"testing"

	"github.com/serpscout/serpscout/internal/engine"
)

func testEngine() engine.Engine {
	return engine.Engine{
		Name:                  "Test",
		CaptchaMarkers:        []string{"SmartCaptcha", "I'm not a robot"},
		ChallengeURLFragments: []string{"example.com/showcaptcha"},
		ResultMarkers:         []string{"serp-item"},
	}
}

func TestClassify(t *testing.T) {
	eng := testEngine()

	tests := []struct {
		name     string
		html     string
		finalURL string
		want     Verdict
	}{
		{
			name:     "results page",
			html:     `<html><div class="serp-item">hit</div></html>`,
			finalURL: "https://example.com/search?text=q",
			want:     VerdictClean,
		},
		{
			name:     "captcha marker in body",
			html:     `<html><div class="SmartCaptcha">prove it</div></html>`,
			finalURL: "https://example.com/search?text=q",
			want:     VerdictCaptcha,
		},
		{
			name:     "marker match is case insensitive",
			html:     `<html>smartcaptcha</html>`,
			finalURL: "https://example.com/search",
			want:     VerdictCaptcha,
		},
		{
			name:     "challenge redirect wins even with result markup",
			html:     `<html><div class="serp-item">hit</div></html>`,
			finalURL: "https://example.com/showcaptcha?retpath=x",
			want:     VerdictCaptcha,
		},
		{
			name:     "interception layer marker wins over result markup",
			html:     `<html><div class="serp-item">hit</div><div id="cf-challenge"></div></html>`,
			finalURL: "https://example.com/search?text=q",
			want:     VerdictCaptcha,
		},
		{
			name:     "no result markers defaults to captcha",
			html:     `<html><body>something unexpected</body></html>`,
			finalURL: "https://example.com/search?text=q",
			want:     VerdictCaptcha,
		},
		{
			name:     "empty body defaults to captcha",
			html:     "",
			finalURL: "https://example.com/search",
			want:     VerdictCaptcha,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.html, tt.finalURL, eng)
			if got.Verdict != tt.want {
				t.Errorf("Classify = %s (%s), want %s", got.Verdict, got.Reason, tt.want)
			}
		})
	}
}

func TestClassifyIdempotent(t *testing.T) {
	eng := testEngine()
	html := `<html><div class="serp-item">hit</div></html>`

	first := Classify(html, "https://example.com/search", eng)
	for i := 0; i < 10; i++ {
		if got := Classify(html, "https://example.com/search", eng); got != first {
			t.Fatalf("classification changed between calls: %+v vs %+v", got, first)
		}
	}
}
