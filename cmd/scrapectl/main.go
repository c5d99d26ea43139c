// scrapectl submits job-portal scrape jobs to the scraping backend and
// drives them to a downloadable result.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"scrapectl/internal/config"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := config.Default()

	root := &cobra.Command{
		Use:           "scrapectl",
		Short:         "Run job-portal scrapes against the scraping backend",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.LoadClientConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if url, _ := cmd.Flags().GetString("backend"); url != "" {
				loaded.BaseURL = url
			}
			if err := loaded.Validate(); err != nil {
				return err
			}
			*cfg = *loaded
			return nil
		},
	}
	root.PersistentFlags().String("backend", "", "backend base URL (overrides SCRAPECTL_BASE_URL)")

	root.AddCommand(
		newRunCmd(cfg),
		newTUICmd(cfg),
		newServeCmd(cfg),
		newHealthCmd(cfg),
		newConfigCmd(cfg),
	)
	return root
}

// setupLogging installs the JSON logger at the configured level.
func setupLogging(cfg *config.ClientConfig, w io.Writer) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})))
}

// setupFileLogging sends logs to cfg.LogFile so interactive output stays clean.
func setupFileLogging(cfg *config.ClientConfig) (func(), error) {
	f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	setupLogging(cfg, f)
	return func() { _ = f.Close() }, nil
}
