package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"nixgen/internal/config"
	"nixgen/internal/generation"
	"nixgen/internal/logger"
	"nixgen/internal/platform"
	"nixgen/internal/tui"
)

func newRegistry(log *logger.Logger, kind platform.Kind) (*generation.Registry, error) {
	profilePath, err := kind.ProfilePath()
	if err != nil {
		return nil, err
	}
	return &generation.Registry{Log: log, ProfilePath: profilePath, Platform: kind}, nil
}

func newGenerationsCmd(root *rootFlags, kind platform.Kind) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generations",
		Short: "List the recorded generations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.Load(root.configPath)
			if err != nil {
				return err
			}

			log, err := newLogger(root, settings)
			if err != nil {
				return err
			}

			registry, err := newRegistry(log, kind)
			if err != nil {
				return err
			}

			generations, err := registry.List()
			if err != nil {
				return err
			}

			fmt.Fprint(cmd.OutOrStdout(), tui.RenderGenerations(generations))
			return nil
		},
	}

	return cmd
}
