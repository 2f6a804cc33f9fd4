// Package commands implements the CLI commands for serpscout.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/serpscout/serpscout/internal/config"
	"github.com/serpscout/serpscout/internal/logger"
	"github.com/serpscout/serpscout/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "serpscout",
	Short: "Search engine scraper with mobile emulation and challenge fallback",
	Long: `Serpscout runs search queries through free proxies while presenting
consistent mobile device fingerprints. A warmed, TLS-impersonated fast
path handles the common case; a headless browser takes over when the
engine serves a challenge.

Examples:
  # Search Yandex and print results
  serpscout search -e yandex "golang context tutorial"

  # Write the top 5 Google results as JSON
  serpscout search -e google -n 5 --format json -o results.json "site reliability"

  # Maintain the proxy pool and show the ratings
  serpscout proxies

  # Collect challenge pages for offline study
  serpscout collect -e yandex --duration 1h`,
	Version: version.String(),
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger.Init(logger.Options{
			Debug: viper.GetBool("debug"),
			Quiet: viper.GetBool("quiet"),
			JSON:  viper.GetBool("log_json"),
		})
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default $HOME/.serpscout.yaml)")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "only log errors")
	rootCmd.PersistentFlags().Bool("log-json", false, "log as JSON")

	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
	_ = viper.BindPFlag("log_json", rootCmd.PersistentFlags().Lookup("log-json"))

	rootCmd.SetVersionTemplate(version.Full() + "\n")
}

func initConfig() {
	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.AddConfigPath(".")
		viper.SetConfigName(".serpscout")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("SERPSCOUT")
	viper.AutomaticEnv()

	config.SetDefaults(viper.GetViper())

	// Missing config file is fine; defaults and flags carry the day.
	_ = viper.ReadInConfig()
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig parses and validates the resolved configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// logError prints an error message to stderr.
func logError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}
