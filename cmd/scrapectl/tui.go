package main

import (
	"github.com/spf13/cobra"

	"scrapectl/internal/config"
	"scrapectl/internal/job"
	"scrapectl/internal/tui"
)

func newTUICmd(cfg *config.ClientConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Interactive search form with live progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			closeLog, err := setupFileLogging(cfg)
			if err != nil {
				return err
			}
			defer closeLog()

			s, err := newStack(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			return tui.Run(cmd.Context(), tui.New(s.ctrl, cfg.OutputDir, job.Format(cfg.Format)))
		},
	}
}
