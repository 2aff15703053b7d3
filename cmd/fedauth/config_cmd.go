package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/MrEthical07/fedAuth/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}

	var show bool
	check := &cobra.Command{
		Use:   "check",
		Short: "Load and validate the configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if show {
				cfg.Entra.ClientSecret = redact(cfg.Entra.ClientSecret)
				cfg.Redis.Password = redact(cfg.Redis.Password)
				data, err := yaml.Marshal(cfg)
				if err != nil {
					return err
				}
				_, _ = out.Write(data)
			}
			fmt.Fprintln(out, "configuration ok")
			return nil
		},
	}
	check.Flags().BoolVar(&show, "show", false, "print the effective configuration with secrets redacted")

	cmd.AddCommand(check)
	return cmd
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return "********"
}
