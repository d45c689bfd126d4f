package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"nixgen/internal/activation"
	"nixgen/internal/config"
	"nixgen/internal/diffreport"
	"nixgen/internal/model"
	"nixgen/internal/platform"
	"nixgen/internal/specialisation"
	"nixgen/internal/tui"
)

type rollbackOptions struct {
	to               uint64
	ask              bool
	specialisation   string
	noSpecialisation bool
	bypassRootCheck  bool
}

func newRollbackCmd(root *rootFlags, kind platform.Kind) *cobra.Command {
	opts := rollbackOptions{}

	cmd := &cobra.Command{
		Use:   "rollback",
		Short: "Activate a previous generation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRollback(cmd, root, kind, opts)
		},
	}

	cmd.Flags().Uint64Var(&opts.to, "to", 0, "Generation number to roll back to (default: the previous one)")
	cmd.Flags().BoolVarP(&opts.ask, "ask", "a", false, "Ask for confirmation before activating")
	cmd.Flags().StringVarP(&opts.specialisation, "specialisation", "s", "", "Activate the named specialisation")
	cmd.Flags().BoolVarP(&opts.noSpecialisation, "no-specialisation", "S", false, "Ignore the active specialisation marker")
	cmd.Flags().BoolVarP(&opts.bypassRootCheck, "bypass-root-check", "R", false, "Do not refuse to run as root")

	return cmd
}

func runRollback(cmd *cobra.Command, root *rootFlags, kind platform.Kind, opts rollbackOptions) error {
	settings, err := config.Load(root.configPath)
	if err != nil {
		return err
	}

	log, err := newLogger(root, settings)
	if err != nil {
		return err
	}

	coordinator, err := newCoordinator(log, settings, kind, modeOptions{})
	if err != nil {
		return err
	}

	registry, err := newRegistry(log, kind)
	if err != nil {
		return err
	}

	var target model.Generation
	if opts.to > 0 {
		target, err = registry.ByNumber(opts.to)
	} else {
		target, err = registry.Previous()
	}
	if err != nil {
		return err
	}

	if tui.Interactive() {
		coordinator.Confirm = func(ctx context.Context, report diffreport.Report) (bool, error) {
			fmt.Fprint(os.Stderr, tui.RenderReport(report))
			return tui.Confirm(ctx, fmt.Sprintf("roll back to generation %d?", target.Number))
		}
	}

	confirm := model.ConfirmNever
	if opts.ask {
		confirm = model.ConfirmAlways
	}

	if _, err := coordinator.Resume(cmd.Context(), activation.ResumeRequest{
		Generation: target,
		Specialisation: specialisation.Input{
			Explicit:     opts.specialisation,
			IgnoreMarker: opts.noSpecialisation,
		},
		ConfirmPolicy: confirm,
		DiffPolicy:    settings.DiffPolicy(),
		AllowRoot:     opts.bypassRootCheck,
	}); err != nil {
		return err
	}

	log.Info(fmt.Sprintf("rolled back to generation %d", target.Number))
	return nil
}
