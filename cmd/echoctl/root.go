package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/STRATINT/echoloop/internal/config"
	"github.com/STRATINT/echoloop/internal/logging"
)

type rootOptions struct {
	server   string
	password string
	output   string
	verbose  bool
}

// newRootCmd returns the root command for the operator CLI.
func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "echoctl",
		Short: "echoloop operator tool",
		Long: `Operate the echoloop posting service.

Local commands (migrate, insights, prune-activity, post-now, trend-summary, post,
reply-mentions)
run once against the database and APIs configured in the environment.
Remote commands (status, start, stop, track-metrics) call the admin API of a
running server, since the watchlist lives in that process.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.server, "server", envOr("ECHOLOOP_SERVER", "http://localhost:8080"), "base URL of a running echoloop server")
	rootCmd.PersistentFlags().StringVar(&opts.password, "password", os.Getenv("ADMIN_PASSWORD"), "admin password for remote commands")
	rootCmd.PersistentFlags().StringVarP(&opts.output, "output", "o", "text", "output format: json|text")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log at debug level to stderr")

	rootCmd.AddCommand(newMigrateCmd(opts))
	rootCmd.AddCommand(newInsightsCmd(opts))
	rootCmd.AddCommand(newPostNowCmd(opts))
	rootCmd.AddCommand(newTrendSummaryCmd(opts))
	rootCmd.AddCommand(newPostCmd(opts))
	rootCmd.AddCommand(newReplyMentionsCmd(opts))
	rootCmd.AddCommand(newPruneActivityCmd(opts))
	rootCmd.AddCommand(newStatusCmd(opts))
	rootCmd.AddCommand(newStartCmd(opts))
	rootCmd.AddCommand(newStopCmd(opts))
	rootCmd.AddCommand(newTrackMetricsCmd(opts))

	return rootCmd
}

// loadConfig reads the environment and builds a stderr logger. Without
// --verbose only warnings are logged.
func (o *rootOptions) loadConfig(stderr io.Writer) (config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}

	logCfg := cfg.Logging
	logCfg.Format = "text"
	logCfg.Level = slog.LevelWarn
	if o.verbose {
		logCfg.Level = slog.LevelDebug
	}
	logger, err := logging.NewWithWriter(logCfg, stderr)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

// print writes v as indented JSON, or text via the fallback when the output
// format is text.
func (o *rootOptions) print(w io.Writer, v any, text func(io.Writer)) error {
	switch o.output {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "text", "":
		text(w)
		return nil
	default:
		return fmt.Errorf("unknown output format %q", o.output)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
