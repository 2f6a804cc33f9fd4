package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/serpscout/serpscout/internal/parser"
)

func sampleReport() Report {
	return Report{
		Query:     "go testing",
		Engine:    "yandex",
		Via:       "fast",
		FetchedAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		Results: []parser.Result{
			{Rank: 1, Title: "Go Documentation", URL: "https://golang.org/doc/"},
			{Rank: 2, Title: "A Tour of Go", URL: "https://go.dev/tour/"},
		},
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, FormatJSON, sampleReport()); err != nil {
		t.Fatalf("Write: %v", err)
	}

	var got Report
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if got.Query != "go testing" || len(got.Results) != 2 {
		t.Errorf("round trip lost data: %+v", got)
	}
}

func TestWriteJSONL(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, FormatJSONL, sampleReport()); err != nil {
		t.Fatalf("Write: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want one per result", len(lines))
	}
	for _, line := range lines {
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("line is not valid JSON: %v", err)
		}
		if entry["query"] != "go testing" {
			t.Errorf("line missing query context: %s", line)
		}
	}
}

func TestWriteYAML(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, FormatYAML, sampleReport()); err != nil {
		t.Fatalf("Write: %v", err)
	}

	var got Report
	if err := yaml.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("output is not valid YAML: %v", err)
	}
	if got.Results[1].URL != "https://go.dev/tour/" {
		t.Errorf("round trip lost data: %+v", got)
	}
}

func TestWriteTable(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, FormatTable, sampleReport()); err != nil {
		t.Fatalf("Write: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "1. Go Documentation") || !strings.Contains(out, "https://go.dev/tour/") {
		t.Errorf("table output missing results:\n%s", out)
	}
}

func TestParseFormat(t *testing.T) {
	if _, err := ParseFormat("json"); err != nil {
		t.Errorf("json rejected: %v", err)
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("xml accepted")
	}
}
