package main

import (
	"github.com/spf13/cobra"

	"scrapectl/internal/config"
)

func newConfigCmd(cfg *config.ClientConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as TOML",
		Long:  "Print the effective configuration (defaults, $" + config.PathEnv + " file, environment) as TOML.\nSecrets are not printed.",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := cfg.MarshalTOML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}
