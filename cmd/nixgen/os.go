package main

import (
	"github.com/spf13/cobra"

	"nixgen/internal/model"
	"nixgen/internal/platform"
)

func newOSCmd(root *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "os",
		Short: "Manage the NixOS system configuration",
	}

	cmd.AddCommand(newModeCmd(root, platform.OS, model.ModeSwitch))
	cmd.AddCommand(newModeCmd(root, platform.OS, model.ModeBoot))
	cmd.AddCommand(newModeCmd(root, platform.OS, model.ModeTest))
	cmd.AddCommand(newModeCmd(root, platform.OS, model.ModeBuild))
	cmd.AddCommand(newModeCmd(root, platform.OS, model.ModeBuildVM))
	cmd.AddCommand(newRollbackCmd(root, platform.OS))
	cmd.AddCommand(newGenerationsCmd(root, platform.OS))

	return cmd
}
