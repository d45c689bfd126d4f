package main

import (
	"github.com/spf13/cobra"

	"nixgen/internal/model"
	"nixgen/internal/platform"
)

func newHomeCmd(root *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "home",
		Short: "Manage the home-manager configuration",
	}

	cmd.AddCommand(newModeCmd(root, platform.Home, model.ModeSwitch))
	cmd.AddCommand(newModeCmd(root, platform.Home, model.ModeBuild))
	cmd.AddCommand(newGenerationsCmd(root, platform.Home))

	return cmd
}
