// Package fingerprint generates mobile device profiles for emulation.
//
// A profile bundles the user agent, viewport geometry and locale settings
// that the warmup browser and the fast fetch path must present
// consistently. All fields of one profile come from the same real device
// descriptor so mixed signals (an iOS user agent on an Android-only
// resolution) cannot occur.
package fingerprint

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/serpscout/serpscout/internal/logger"
)

// Device classes.
const (
	ClassAndroid = "android"
	ClassIOS     = "ios"
)

// Device is one real device descriptor.
type Device struct {
	Name      string
	Class     string
	UserAgent string
	Width     int
	Height    int
	Scale     float64
	Platform  string
}

// Profile is a generated emulation identity.
type Profile struct {
	ID        string  `json:"id"`
	Device    string  `json:"device"`
	Class     string  `json:"class"`
	UserAgent string  `json:"user_agent"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	Scale     float64 `json:"scale"`
	Platform  string  `json:"platform"`
	Locale    string  `json:"locale"`
	Timezone  string  `json:"timezone"`
}

// AcceptLanguage renders the profile's Accept-Language header value.
func (p Profile) AcceptLanguage() string {
	base := p.Locale
	if len(base) > 2 {
		return fmt.Sprintf("%s,%s;q=0.9", p.Locale, p.Locale[:2])
	}
	return base
}

// devices mirrors real mobile hardware. Values match published device
// metrics so emulated viewports line up with the advertised user agents.
var devices = []Device{
	{
		Name:      "Pixel 5",
		Class:     ClassAndroid,
		UserAgent: "Mozilla/5.0 (Linux; Android 11; Pixel 5) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.6099.230 Mobile Safari/537.36",
		Width:     393,
		Height:    851,
		Scale:     2.75,
		Platform:  "Linux armv8l",
	},
	{
		Name:      "Pixel 7",
		Class:     ClassAndroid,
		UserAgent: "Mozilla/5.0 (Linux; Android 14; Pixel 7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.6167.101 Mobile Safari/537.36",
		Width:     412,
		Height:    915,
		Scale:     2.625,
		Platform:  "Linux armv8l",
	},
	{
		Name:      "Galaxy S9+",
		Class:     ClassAndroid,
		UserAgent: "Mozilla/5.0 (Linux; Android 10; SM-G965F) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.6045.163 Mobile Safari/537.36",
		Width:     320,
		Height:    658,
		Scale:     4.5,
		Platform:  "Linux armv8l",
	},
	{
		Name:      "iPhone 13 Pro",
		Class:     ClassIOS,
		UserAgent: "Mozilla/5.0 (iPhone; CPU iPhone OS 16_6 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.6 Mobile/15E148 Safari/604.1",
		Width:     390,
		Height:    844,
		Scale:     3,
		Platform:  "iPhone",
	},
	{
		Name:      "iPhone 12",
		Class:     ClassIOS,
		UserAgent: "Mozilla/5.0 (iPhone; CPU iPhone OS 15_7 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/15.6 Mobile/15E148 Safari/604.1",
		Width:     390,
		Height:    844,
		Scale:     3,
		Platform:  "iPhone",
	},
}

// Geolocator resolves an IP to an IANA timezone.
type Geolocator interface {
	TimezoneFor(ip string) (string, bool)
}

// Generator produces profiles from the built-in device table.
type Generator struct {
	classes   []string
	locale    string
	defaultTZ string
	geo       Geolocator // nil disables geo lookups

	mu  sync.Mutex
	rng *rand.Rand
}

// NewGenerator builds a generator limited to the given device classes.
func NewGenerator(classes []string, locale, defaultTZ string, geo Geolocator) *Generator {
	if len(classes) == 0 {
		classes = []string{ClassAndroid, ClassIOS}
	}
	if locale == "" {
		locale = "en-US"
	}
	if defaultTZ == "" {
		defaultTZ = "Europe/London"
	}
	return &Generator{
		classes:   classes,
		locale:    locale,
		defaultTZ: defaultTZ,
		geo:       geo,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Generate picks a device of the given class and derives the timezone from
// the proxy's exit IP. An empty class picks randomly among the configured
// classes. exitIP may be empty; the default timezone is used then.
func (g *Generator) Generate(class, exitIP string) (Profile, error) {
	g.mu.Lock()
	if class == "" {
		class = g.classes[g.rng.Intn(len(g.classes))]
	}
	candidates := devicesOf(class)
	if len(candidates) == 0 {
		g.mu.Unlock()
		return Profile{}, fmt.Errorf("no devices for class %q", class)
	}
	d := candidates[g.rng.Intn(len(candidates))]
	g.mu.Unlock()

	tz := g.defaultTZ
	if g.geo != nil && exitIP != "" {
		if found, ok := g.geo.TimezoneFor(exitIP); ok {
			tz = found
		} else {
			logger.Debug("no timezone for exit ip, using default", "ip", exitIP, "default", g.defaultTZ)
		}
	}

	return Profile{
		ID:        uuid.NewString(),
		Device:    d.Name,
		Class:     d.Class,
		UserAgent: d.UserAgent,
		Width:     d.Width,
		Height:    d.Height,
		Scale:     d.Scale,
		Platform:  d.Platform,
		Locale:    g.locale,
		Timezone:  tz,
	}, nil
}

func devicesOf(class string) []Device {
	var out []Device
	for _, d := range devices {
		if d.Class == class {
			out = append(out, d)
		}
	}
	return out
}
