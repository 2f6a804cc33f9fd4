// Package browser drives headless Chrome sessions: warm-up visits, the
// challenge-solving fallback driver, and the bounded worker pool in front
// of them.
package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/serpscout/serpscout/internal/fingerprint"
)

// stealthScript patches the signals headless Chrome leaks before any page
// script runs. Parameterized per profile: %s slots are platform, WebGL
// vendor, WebGL renderer and the languages array.
const stealthScript = `
(function() {
    'use strict';

    Object.defineProperty(navigator, 'webdriver', {
        get: () => undefined,
        configurable: true
    });
    delete Object.getPrototypeOf(navigator).webdriver;

    Object.defineProperty(navigator, 'platform', {
        get: () => '%s',
        configurable: true
    });

    Object.defineProperty(navigator, 'languages', {
        get: () => Object.freeze(%s),
        configurable: true
    });

    // Mobile browsers report several touch points; zero is a headless tell.
    Object.defineProperty(navigator, 'maxTouchPoints', {
        get: () => 5,
        configurable: true
    });

    if (!window.chrome) {
        Object.defineProperty(window, 'chrome', {
            value: { runtime: {} },
            writable: true,
            enumerable: true,
            configurable: false
        });
    }

    const originalQuery = Permissions.prototype.query;
    Permissions.prototype.query = function(parameters) {
        if (parameters.name === 'notifications') {
            return Promise.resolve({ state: Notification.permission });
        }
        return originalQuery.call(this, parameters);
    };

    const getParameterProxyHandler = {
        apply: function(target, ctx, args) {
            const param = args[0];
            const result = Reflect.apply(target, ctx, args);
            if (param === 37445) { return '%s'; }
            if (param === 37446) { return '%s'; }
            return result;
        }
    };
    try {
        const webglGetParameter = WebGLRenderingContext.prototype.getParameter;
        WebGLRenderingContext.prototype.getParameter = new Proxy(webglGetParameter, getParameterProxyHandler);
    } catch (e) {}
    try {
        const webgl2GetParameter = WebGL2RenderingContext.prototype.getParameter;
        WebGL2RenderingContext.prototype.getParameter = new Proxy(webgl2GetParameter, getParameterProxyHandler);
    } catch (e) {}

    if (navigator.hardwareConcurrency === 0) {
        Object.defineProperty(navigator, 'hardwareConcurrency', {
            get: () => 8,
            configurable: true
        });
    }
    if (navigator.deviceMemory === undefined || navigator.deviceMemory === 0) {
        Object.defineProperty(navigator, 'deviceMemory', {
            get: () => 4,
            configurable: true
        });
    }
})();
`

// stealthScriptFor renders the stealth script for a device profile.
func stealthScriptFor(p fingerprint.Profile) string {
	vendor, renderer := "Qualcomm", "Adreno (TM) 640"
	if p.Class == fingerprint.ClassIOS {
		vendor, renderer = "Apple Inc.", "Apple GPU"
	}
	langs := fmt.Sprintf("['%s', '%s']", p.Locale, shortLang(p.Locale))
	return fmt.Sprintf(stealthScript, p.Platform, langs, vendor, renderer)
}

func shortLang(locale string) string {
	if len(locale) > 2 {
		return locale[:2]
	}
	return locale
}

// allocatorOptions builds the Chrome launch flags for one session. The
// proxy has to be a process-level flag, so every session gets its own
// allocator.
func allocatorOptions(headless bool, profile fingerprint.Profile, proxyURL string) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),

		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("excludeSwitches", "enable-automation"),
		chromedp.Flag("useAutomationExtension", false),
		chromedp.Flag("disable-infobars", true),

		chromedp.UserAgent(profile.UserAgent),
		chromedp.Flag("lang", profile.Locale),
		chromedp.Flag("accept-lang", profile.AcceptLanguage()),
	)
	if path := FindChromePath(); path != "" {
		opts = append(opts, chromedp.ExecPath(path))
	}
	if proxyURL != "" {
		opts = append(opts, chromedp.ProxyServer(proxyURL))
	}
	return opts
}

// applyEmulation configures the browser context to present the profile's
// device: viewport, touch, and timezone.
func applyEmulation(profile fingerprint.Profile) chromedp.Action {
	return chromedp.Tasks{
		chromedp.EmulateViewport(int64(profile.Width), int64(profile.Height),
			chromedp.EmulateScale(profile.Scale),
			chromedp.EmulateMobile),
		emulation.SetTouchEmulationEnabled(true).WithMaxTouchPoints(5),
		emulation.SetTimezoneOverride(profile.Timezone),
	}
}

// injectStealth installs the stealth patches before any page script runs.
func injectStealth(profile fingerprint.Profile) chromedp.Action {
	script := stealthScriptFor(profile)
	return chromedp.ActionFunc(func(ctx context.Context) error {
		_, err := page.AddScriptToEvaluateOnNewDocument(script).Do(ctx)
		return err
	})
}

// captureScreenshot grabs a screenshot with a short timeout. Returns nil
// when the browser is too far gone to capture anything.
func captureScreenshot(ctx context.Context) []byte {
	var shot []byte
	captureCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := chromedp.Run(captureCtx, chromedp.CaptureScreenshot(&shot)); err != nil {
		return nil
	}
	return shot
}
