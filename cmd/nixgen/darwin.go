package main

import (
	"github.com/spf13/cobra"

	"nixgen/internal/model"
	"nixgen/internal/platform"
)

func newDarwinCmd(root *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "darwin",
		Short: "Manage the nix-darwin system configuration",
	}

	cmd.AddCommand(newModeCmd(root, platform.Darwin, model.ModeSwitch))
	cmd.AddCommand(newModeCmd(root, platform.Darwin, model.ModeBuild))
	cmd.AddCommand(newRollbackCmd(root, platform.Darwin))
	cmd.AddCommand(newGenerationsCmd(root, platform.Darwin))

	return cmd
}
