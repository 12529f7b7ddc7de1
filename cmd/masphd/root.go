package main

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
	logFormat  string

	logger zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "masphd",
	Short: "Darwin PushPort delay prediction pipeline",
	Long: `masphd listens to the Darwin PushPort stream, predicts arrival delays
for the tracked Weymouth-Waterloo segments, persists prediction snapshots
to SQLite, and enriches past predictions with HSP ground truth.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var out io.Writer
		switch logFormat {
		case "json":
			out = os.Stdout
		default:
			out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
		}
		logger = zerolog.New(out).With().Timestamp().Logger()

		level, err := zerolog.ParseLevel(logLevel)
		if err != nil {
			level = zerolog.InfoLevel
		}
		logger = logger.Level(level)

		return nil
	},
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&configPath, "config", "config.yaml", "Path to the YAML config file")
	f.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	f.StringVar(&logFormat, "log-format", "console", "Log format (console, json)")
}
