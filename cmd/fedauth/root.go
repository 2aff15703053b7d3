package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "fedauth",
		Short: "Federated identity session host",
		Long: `fedauth runs one shared identity provider and session facade for a shell
and its remotes, and provides tools to check configuration and exercise the
shared account cache.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "path to the YAML configuration file")

	root.AddCommand(newServeCmd(), newConfigCmd(), newCacheBenchCmd())
	return root
}
