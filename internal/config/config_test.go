package config

import (
	"testing"

	"github.com/spf13/viper"
)

func freshViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	return v
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(freshViper())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if len(cfg.Proxy.Sources) == 0 {
		t.Error("no default proxy sources")
	}
	if cfg.Browser.Workers <= 0 {
		t.Error("browser worker count not defaulted")
	}
	if cfg.Fetch.MaxDelay < cfg.Fetch.MinDelay {
		t.Error("default fetch delays inverted")
	}
	if _, ok := cfg.Engines["yandex"]; !ok {
		t.Error("built-in yandex engine missing")
	}
	if _, ok := cfg.Engines["google"]; !ok {
		t.Error("built-in google engine missing")
	}
}

func TestLoadMergesFileEngines(t *testing.T) {
	v := freshViper()
	v.Set("engines.duck.name", "Duck")
	v.Set("engines.duck.base_url", "https://duck.example.com")
	v.Set("engines.duck.search_url", "https://duck.example.com/?q={query}")
	v.Set("engines.duck.result_item_selector", "article")
	v.Set("engines.duck.result_link_selector", "a[href]")

	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, ok := cfg.Engines["duck"]; !ok {
		t.Fatal("file-defined engine not merged")
	}
	// Built-ins survive the merge.
	if _, ok := cfg.Engines["yandex"]; !ok {
		t.Error("built-in engine lost in merge")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value any
	}{
		{name: "zero workers", key: "browser.workers", value: 0},
		{name: "bad test url", key: "proxy.test_url", value: "not a url"},
		{name: "zero attempts", key: "scrape.max_attempts", value: 0},
		{name: "bad device class", key: "fingerprint.device_classes", value: []string{"desktop"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := freshViper()
			v.Set(tt.key, tt.value)
			if _, err := Load(v); err == nil {
				t.Errorf("Load accepted %s = %v", tt.key, tt.value)
			}
		})
	}
}

func TestValidateRejectsInvertedDelays(t *testing.T) {
	v := freshViper()
	v.Set("fetch.min_delay", "5s")
	v.Set("fetch.max_delay", "1s")
	if _, err := Load(v); err == nil {
		t.Error("Load accepted max_delay below min_delay")
	}
}
