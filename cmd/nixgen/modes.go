package main

import (
	"github.com/spf13/cobra"

	"nixgen/internal/model"
	"nixgen/internal/platform"
)

type modeOptions struct {
	installable      string
	file             string
	expr             string
	hostname         string
	configuration    string
	specialisation   string
	noSpecialisation bool
	ask              bool
	yes              bool
	diff             string
	outLink          string
	withBootloader   bool
	noVisualizer     bool
	bypassRootCheck  bool
	extraArgs        []string
}

func modeShort(mode model.Mode) string {
	switch mode {
	case model.ModeSwitch:
		return "Build the configuration and activate it now and at boot"
	case model.ModeBoot:
		return "Build the configuration and make it the boot default"
	case model.ModeTest:
		return "Build the configuration and activate it until reboot"
	case model.ModeBuildVM:
		return "Build a virtual machine running the configuration"
	default:
		return "Build the configuration without activating it"
	}
}

func newModeCmd(root *rootFlags, kind platform.Kind, mode model.Mode) *cobra.Command {
	opts := modeOptions{}

	cmd := &cobra.Command{
		Use:   mode.String() + " [installable]",
		Short: modeShort(mode),
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			positional := args
			if dash := cmd.ArgsLenAtDash(); dash >= 0 {
				positional = args[:dash]
				opts.extraArgs = args[dash:]
			}
			if len(positional) > 0 {
				opts.installable = positional[0]
				opts.extraArgs = append(opts.extraArgs, positional[1:]...)
			}

			return runPipeline(cmd.Context(), root, kind, mode, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.file, "file", "", "Evaluate an expression file instead of a flake")
	flags.StringVar(&opts.expr, "expr", "", "Evaluate an inline expression instead of a flake")
	flags.StringVarP(&opts.hostname, "hostname", "H", "", "Override the hostname used for configuration selection")
	flags.BoolVarP(&opts.ask, "ask", "a", false, "Ask for confirmation before activating")
	flags.BoolVarP(&opts.yes, "yes", "y", false, "Never ask for confirmation")
	flags.StringVar(&opts.diff, "diff", "", "When to show the closure diff (auto, always, never)")
	flags.BoolVar(&opts.noVisualizer, "no-visualizer", false, "Disable the build output visualizer")
	flags.BoolVarP(&opts.bypassRootCheck, "bypass-root-check", "R", false, "Do not refuse to run as root")

	if kind == platform.Home {
		flags.StringVarP(&opts.configuration, "configuration", "c", "", "Name of the home configuration to build")
	} else {
		flags.StringVarP(&opts.specialisation, "specialisation", "s", "", "Activate the named specialisation")
		flags.BoolVarP(&opts.noSpecialisation, "no-specialisation", "S", false, "Ignore the active specialisation marker")
	}

	if mode.BuildOnly() {
		flags.StringVarP(&opts.outLink, "out-link", "o", "", "Path for the result symlink")
	}
	if mode == model.ModeBuildVM {
		flags.BoolVar(&opts.withBootloader, "with-bootloader", false, "Build the virtual machine with a boot loader")
	}

	return cmd
}
