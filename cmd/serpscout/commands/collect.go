package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/serpscout/serpscout/internal/collector"
	"github.com/serpscout/serpscout/internal/logger"
)

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Continuously harvest challenge pages for offline study",
	Long: `Collect runs harmless queries on a slow, jittered cadence across
many identities until interrupted. Challenge pages the engines serve
along the way are archived content-addressed, so repeated variants are
stored once.

Examples:
  # Collect Yandex challenges until Ctrl-C
  serpscout collect -e yandex

  # Collect for one hour with 10 concurrent identities
  serpscout collect -e yandex --duration 1h --concurrency 10`,
	RunE: runCollect,
}

func init() {
	rootCmd.AddCommand(collectCmd)

	flags := collectCmd.Flags()
	flags.StringP("engine", "e", "yandex", "search engine to probe")
	flags.Duration("duration", 0, "stop after this long (0=until interrupted)")
	flags.Int("concurrency", 0, "concurrent identities (0=config default)")
	flags.String("dir", "", "archive directory (default from config)")
}

func runCollect(cmd *cobra.Command, args []string) error {
	if dir := mustString(cmd, "dir"); dir != "" {
		viper.Set("collector.dir", dir)
	}
	if n, _ := cmd.Flags().GetInt("concurrency"); n > 0 {
		viper.Set("collector.concurrency", n)
	}

	st, err := buildStack(true)
	if err != nil {
		logError("%v", err)
		return err
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if d, _ := cmd.Flags().GetDuration("duration"); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	if err := st.manager.EnsureHealthy(ctx); err != nil {
		logError("proxy pool unavailable: %v", err)
		return err
	}

	// Keep the pool fresh while collection runs.
	go func() {
		ticker := time.NewTicker(st.cfg.Proxy.RetestAfter)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				_ = st.manager.Refresh(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()

	engineKey := mustString(cmd, "engine")
	before := st.store.Count()
	logger.Info("starting collection",
		"engine", engineKey,
		"workers", st.cfg.Collector.Concurrency,
		"archived", before)

	runner := collector.NewRunner(
		st.store,
		st.cfg.Collector.Queries,
		st.cfg.Collector.Concurrency,
		st.cfg.Collector.MinWait,
		st.cfg.Collector.MaxWait,
		func(ctx context.Context, query string) error {
			// The result is irrelevant; challenge pages reach the store
			// through the archive hook on every fetch path.
			_, err := st.scout.Scrape(ctx, engineKey, query)
			return err
		},
	)
	runner.Run(ctx)

	fmt.Fprintf(os.Stdout, "collected %d new challenge pages (%d total)\n",
		st.store.Count()-before, st.store.Count())
	return nil
}
