package main

import (
	"github.com/spf13/cobra"
)

type rootFlags struct {
	verbose    bool
	configPath string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:           "nixgen",
		Short:         "nixgen builds and activates Nix system, home and darwin configurations",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "Path to settings file")

	cmd.AddCommand(newOSCmd(flags))
	cmd.AddCommand(newHomeCmd(flags))
	cmd.AddCommand(newDarwinCmd(flags))
	cmd.AddCommand(newVersionCmd())

	return cmd
}
