package fingerprint

import (
	"strings"
	"testing"
)

func TestGenerateClassConsistency(t *testing.T) {
	g := NewGenerator([]string{ClassAndroid, ClassIOS}, "en-US", "Europe/London", nil)

	// Class consistency must hold on every draw, not just most of them.
	for i := 0; i < 200; i++ {
		p, err := g.Generate(ClassAndroid, "")
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		if p.Class != ClassAndroid {
			t.Fatalf("requested android, got class %q", p.Class)
		}
		if !strings.Contains(p.UserAgent, "Android") {
			t.Fatalf("android profile carries user agent %q", p.UserAgent)
		}
		if strings.Contains(p.UserAgent, "iPhone") {
			t.Fatalf("android profile carries iOS user agent %q", p.UserAgent)
		}
	}

	for i := 0; i < 200; i++ {
		p, err := g.Generate(ClassIOS, "")
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		if !strings.Contains(p.UserAgent, "iPhone") {
			t.Fatalf("ios profile carries user agent %q", p.UserAgent)
		}
		if p.Platform != "iPhone" {
			t.Fatalf("ios profile carries platform %q", p.Platform)
		}
	}
}

func TestGenerateFieldsComeFromOneDevice(t *testing.T) {
	byName := make(map[string]Device)
	for _, d := range devices {
		byName[d.Name] = d
	}

	g := NewGenerator(nil, "en-US", "Europe/London", nil)
	for i := 0; i < 100; i++ {
		p, err := g.Generate("", "")
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		d, ok := byName[p.Device]
		if !ok {
			t.Fatalf("profile names unknown device %q", p.Device)
		}
		if p.UserAgent != d.UserAgent || p.Width != d.Width || p.Height != d.Height || p.Scale != d.Scale {
			t.Fatalf("profile mixes descriptors: %+v vs device %+v", p, d)
		}
		if p.ID == "" {
			t.Fatal("profile has empty id")
		}
	}
}

func TestGenerateUnknownClass(t *testing.T) {
	g := NewGenerator(nil, "en-US", "Europe/London", nil)
	if _, err := g.Generate("windows", ""); err == nil {
		t.Fatal("expected error for unknown device class")
	}
}

type fakeGeo struct {
	tz map[string]string
}

func (f *fakeGeo) TimezoneFor(ip string) (string, bool) {
	tz, ok := f.tz[ip]
	return tz, ok
}

func TestGenerateTimezone(t *testing.T) {
	geo := &fakeGeo{tz: map[string]string{"77.88.8.8": "Europe/Moscow"}}
	g := NewGenerator(nil, "en-US", "Europe/London", geo)

	p, err := g.Generate(ClassAndroid, "77.88.8.8")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if p.Timezone != "Europe/Moscow" {
		t.Errorf("timezone = %q, want geo-derived Europe/Moscow", p.Timezone)
	}

	p, err = g.Generate(ClassAndroid, "203.0.113.9")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if p.Timezone != "Europe/London" {
		t.Errorf("timezone = %q, want default for unknown ip", p.Timezone)
	}

	p, err = g.Generate(ClassAndroid, "")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if p.Timezone != "Europe/London" {
		t.Errorf("timezone = %q, want default without exit ip", p.Timezone)
	}
}

func TestAcceptLanguage(t *testing.T) {
	p := Profile{Locale: "en-US"}
	if got := p.AcceptLanguage(); got != "en-US,en;q=0.9" {
		t.Errorf("AcceptLanguage = %q", got)
	}
}
