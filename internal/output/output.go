// Package output renders search reports for the terminal and for pipes.
package output

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/serpscout/serpscout/internal/parser"
)

// Format represents output format types.
type Format string

const (
	FormatJSON  Format = "json"
	FormatJSONL Format = "jsonl"
	FormatYAML  Format = "yaml"
	FormatTable Format = "table"
)

// ParseFormat validates a format flag value.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatJSON, FormatJSONL, FormatYAML, FormatTable:
		return Format(s), nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", s)
	}
}

// Report is one completed search.
type Report struct {
	Query     string          `json:"query" yaml:"query"`
	Engine    string          `json:"engine" yaml:"engine"`
	Via       string          `json:"via" yaml:"via"`
	FetchedAt time.Time       `json:"fetched_at" yaml:"fetched_at"`
	Results   []parser.Result `json:"results" yaml:"results"`
}

// Write renders a report in the requested format.
func Write(w io.Writer, format Format, report Report) error {
	bw := bufio.NewWriter(w)
	var err error
	switch format {
	case FormatJSON:
		err = writeJSON(bw, report)
	case FormatJSONL:
		err = writeJSONL(bw, report)
	case FormatYAML:
		err = writeYAML(bw, report)
	case FormatTable:
		err = writeTable(bw, report)
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
	if err != nil {
		return err
	}
	return bw.Flush()
}

func writeJSON(w io.Writer, report Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// writeJSONL emits one line per result, with the report fields repeated so
// each line stands alone in a pipeline.
func writeJSONL(w io.Writer, report Report) error {
	type line struct {
		Query  string `json:"query"`
		Engine string `json:"engine"`
		Rank   int    `json:"rank"`
		Title  string `json:"title"`
		URL    string `json:"url"`
	}
	enc := json.NewEncoder(w)
	for _, r := range report.Results {
		if err := enc.Encode(line{
			Query:  report.Query,
			Engine: report.Engine,
			Rank:   r.Rank,
			Title:  r.Title,
			URL:    r.URL,
		}); err != nil {
			return err
		}
	}
	return nil
}

func writeYAML(w io.Writer, report Report) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(report); err != nil {
		return err
	}
	return enc.Close()
}

func writeTable(w io.Writer, report Report) error {
	if _, err := fmt.Fprintf(w, "%s results for %q (%s)\n\n", report.Engine, report.Query, report.Via); err != nil {
		return err
	}
	for _, r := range report.Results {
		if _, err := fmt.Fprintf(w, "%3d. %s\n     %s\n", r.Rank, r.Title, r.URL); err != nil {
			return err
		}
	}
	return nil
}
