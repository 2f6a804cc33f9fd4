package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/serpscout/serpscout/internal/proxy"
)

var proxiesCmd = &cobra.Command{
	Use:   "proxies",
	Short: "Refresh the proxy pool and print the ratings",
	Long: `Proxies discovers candidates from the configured sources, probes
everything due for a test, and prints the resulting pool sorted by
score. With a snapshot path configured the ratings persist across runs.`,
	RunE: runProxies,
}

func init() {
	rootCmd.AddCommand(proxiesCmd)

	flags := proxiesCmd.Flags()
	flags.Int("limit", 25, "show at most N records (0=all)")
	flags.Bool("all", false, "include dead and untested records")
}

func runProxies(cmd *cobra.Command, args []string) error {
	st, err := buildStack(false)
	if err != nil {
		logError("%v", err)
		return err
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := st.manager.Refresh(ctx); err != nil {
		logError("refresh failed: %v", err)
		return err
	}

	showAll, _ := cmd.Flags().GetBool("all")
	limit, _ := cmd.Flags().GetInt("limit")

	weights := proxy.ScoreWeights{
		Success:        st.cfg.Proxy.SuccessWeight,
		LatencyPenalty: st.cfg.Proxy.LatencyPenalty,
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PROXY\tSTATUS\tSCORE\tLATENCY\tEXIT IP\tLAST TESTED")
	shown := 0
	for _, rec := range st.pool.Records() {
		if !showAll && rec.Status != proxy.StatusHealthy {
			continue
		}
		if limit > 0 && shown >= limit {
			break
		}
		tested := "never"
		if !rec.LastTested.IsZero() {
			tested = humanize.Time(rec.LastTested)
		}
		fmt.Fprintf(w, "%s\t%s\t%.1f\t%s\t%s\t%s\n",
			rec.URL,
			rec.Status,
			rec.Score(weights),
			rec.Latency.Round(time.Millisecond),
			rec.ExitIP,
			tested,
		)
		shown++
	}
	if err := w.Flush(); err != nil {
		return err
	}

	counts := st.pool.Counts()
	fmt.Printf("\n%d healthy, %d degraded, %d untested, %d dead (%d total)\n",
		counts[proxy.StatusHealthy],
		counts[proxy.StatusDegraded],
		counts[proxy.StatusUntested],
		counts[proxy.StatusDead],
		st.pool.Len(),
	)
	return nil
}
