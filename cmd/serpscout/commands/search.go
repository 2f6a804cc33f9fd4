package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/serpscout/serpscout/internal/output"
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Run a search query and print the organic results",
	Long: `Search runs one query against a search engine from an emulated
mobile device. The fast TLS-impersonated path is tried first; if the
engine answers with a challenge, a headless browser takes over on a
fresh identity.

Examples:
  # Top Yandex results for a query
  serpscout search -e yandex "golang context tutorial"

  # Top 5 Google results as JSON into a file
  serpscout search -e google -n 5 --format json -o results.json "sre handbook"`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)

	flags := searchCmd.Flags()
	flags.StringP("engine", "e", "yandex", "search engine to query")
	flags.IntP("top", "n", 10, "keep only the top N results (0=all)")
	flags.StringP("output", "o", "", "output file (default: stdout)")
	flags.String("format", "table", "output format: table, json, jsonl, yaml")
	flags.String("max-page-size", "0", "truncate fetched pages beyond this size (e.g. 512KB, 0=unlimited)")
	flags.Bool("archive-challenges", false, "save encountered challenge pages to the collector directory")
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := strings.TrimSpace(args[0])
	if query == "" {
		return fmt.Errorf("query must not be empty")
	}

	format, err := output.ParseFormat(mustString(cmd, "format"))
	if err != nil {
		return err
	}

	if raw := mustString(cmd, "max-page-size"); raw != "" && raw != "0" {
		size, err := humanize.ParseBytes(raw)
		if err != nil {
			return fmt.Errorf("invalid --max-page-size: %w", err)
		}
		viper.Set("fetch.max_page_size", int(size))
	}

	archive, _ := cmd.Flags().GetBool("archive-challenges")
	st, err := buildStack(archive)
	if err != nil {
		logError("%v", err)
		return err
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := st.manager.EnsureHealthy(ctx); err != nil {
		logError("proxy pool unavailable: %v", err)
		return err
	}

	engineKey := mustString(cmd, "engine")
	report, err := st.scout.Scrape(ctx, engineKey, query)
	if err != nil {
		logError("%v", err)
		return err
	}

	if top, _ := cmd.Flags().GetInt("top"); top > 0 && len(report.Results) > top {
		report.Results = report.Results[:top]
	}

	out := os.Stdout
	if path := mustString(cmd, "output"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		out = f
	}
	return output.Write(out, format, report)
}

func mustString(cmd *cobra.Command, name string) string {
	v, _ := cmd.Flags().GetString(name)
	return v
}
