package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"scrapectl/internal/config"
	"scrapectl/internal/health"
)

func newHealthCmd(cfg *config.ClientConfig) *cobra.Command {
	var wait bool

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check that the scraping backend is reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(cfg, cmd.ErrOrStderr())

			s, err := newStack(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			if wait {
				if err := health.WaitReady(cmd.Context(), s.client, cfg.HTTPTimeout); err != nil {
					return err
				}
			}

			resp := health.NewChecker(s.client).Readiness(cmd.Context())
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(resp); err != nil {
				return err
			}
			if !resp.IsHealthy() {
				return fmt.Errorf("backend %s is %s", cfg.BaseURL, resp.Status)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&wait, "wait", false, "retry until the backend answers or the HTTP timeout elapses")
	return cmd
}
