package main

import (
	"context"
	"fmt"
	"os"

	"nixgen/internal/activation"
	"nixgen/internal/build"
	"nixgen/internal/config"
	"nixgen/internal/diffreport"
	"nixgen/internal/elevate"
	"nixgen/internal/gate"
	"nixgen/internal/generation"
	"nixgen/internal/installable"
	"nixgen/internal/logger"
	"nixgen/internal/model"
	"nixgen/internal/platform"
	"nixgen/internal/specialisation"
	"nixgen/internal/tui"
)

// askpassEnvVar overrides the settings file's askpass helper.
const askpassEnvVar = "NIXGEN_ASKPASS"

func newLogger(root *rootFlags, settings *config.Settings) (*logger.Logger, error) {
	level := settings.Log.Level
	if root.verbose {
		level = "debug"
	}
	return logger.New(logger.Options{Level: level, HumanReadable: true})
}

func askpassPath(settings *config.Settings) string {
	if path := os.Getenv(askpassEnvVar); path != "" {
		return path
	}
	return settings.Elevation.Askpass
}

// newCoordinator wires the pipeline collaborators from settings and flags.
func newCoordinator(log *logger.Logger, settings *config.Settings, kind platform.Kind, opts modeOptions) (*activation.Coordinator, error) {
	profilePath, err := kind.ProfilePath()
	if err != nil {
		return nil, err
	}

	visualizer := settings.VisualizerCommand()
	if opts.noVisualizer {
		visualizer = ""
	}

	differ := &diffreport.Differ{Log: log, Tool: settings.Diff.Tool}

	hostname, _ := os.Hostname()

	coordinator := &activation.Coordinator{
		Log:      log,
		Gate:     &gate.Gate{Log: log},
		Resolver: &installable.Resolver{Log: log, ConfigExists: installable.ConfigProbe},
		Builder:  &build.Orchestrator{Log: log, Visualizer: visualizer},
		Differ:   &spinningDiffer{inner: differ},
		Selector: &specialisation.Selector{Log: log},
		Registry: &generation.Registry{Log: log, ProfilePath: profilePath, Platform: kind},
		Runner: &elevate.Coordinator{
			Log:         log,
			AllowList:   settings.Elevation.EnvAllowList,
			AskpassPath: askpassPath(settings),
		},
		Hostname: hostname,
	}
	return coordinator, nil
}

// spinningDiffer shows an animated indicator while the external comparison
// tool walks both closures.
type spinningDiffer struct {
	inner *diffreport.Differ
}

func (s *spinningDiffer) Compare(ctx context.Context, previous *model.Closure, candidate model.Closure, currentHostname, targetHostname string) (report diffreport.Report) {
	tui.Spin("comparing closures", func() {
		report = s.inner.Compare(ctx, previous, candidate, currentHostname, targetHostname)
	})
	return report
}

func diffPolicy(settings *config.Settings, opts modeOptions) model.DiffPolicy {
	switch opts.diff {
	case "always":
		return model.DiffAlways
	case "never":
		return model.DiffNever
	case "auto":
		return model.DiffAuto
	}
	return settings.DiffPolicy()
}

func confirmPolicy(settings *config.Settings, opts modeOptions) model.ConfirmPolicy {
	switch {
	case opts.yes:
		return model.ConfirmNever
	case opts.ask:
		return model.ConfirmAlways
	}
	return settings.ConfirmPolicy()
}

func finalAttr(mode model.Mode, opts modeOptions) string {
	if mode == model.ModeBuildVM {
		if opts.withBootloader {
			return "vmWithBootLoader"
		}
		return "vm"
	}
	return "toplevel"
}

func runPipeline(ctx context.Context, root *rootFlags, kind platform.Kind, mode model.Mode, opts modeOptions) error {
	settings, err := config.Load(root.configPath)
	if err != nil {
		return err
	}

	log, err := newLogger(root, settings)
	if err != nil {
		return err
	}

	coordinator, err := newCoordinator(log, settings, kind, opts)
	if err != nil {
		return err
	}

	reportShown := false
	if tui.Interactive() {
		coordinator.Confirm = func(ctx context.Context, report diffreport.Report) (bool, error) {
			fmt.Fprint(os.Stderr, tui.RenderReport(report))
			reportShown = true
			return tui.Confirm(ctx, "apply the new configuration?")
		}
	}

	request := activation.Request{
		Input: installable.Input{
			Installable:   opts.installable,
			File:          opts.file,
			Expr:          opts.expr,
			Hostname:      opts.hostname,
			Configuration: opts.configuration,
			Fallback:      settings.Flake,
		},
		Platform:  kind,
		Mode:      mode,
		FinalAttr: finalAttr(mode, opts),
		ExtraArgs: append(append([]string{}, settings.ExtraArgs...), opts.extraArgs...),
		OutLink:   opts.outLink,
		Specialisation: specialisation.Input{
			Explicit:     opts.specialisation,
			IgnoreMarker: opts.noSpecialisation,
		},
		ConfirmPolicy: confirmPolicy(settings, opts),
		DiffPolicy:    diffPolicy(settings, opts),
		AllowRoot:     opts.bypassRootCheck,
	}

	outcome, err := coordinator.Run(ctx, request)
	if err != nil {
		return err
	}

	if !reportShown && diffPolicy(settings, opts) != model.DiffNever {
		fmt.Fprint(os.Stderr, tui.RenderReport(outcome.Report))
	}

	switch {
	case outcome.Generation != nil:
		log.Info(fmt.Sprintf("activated generation %d", outcome.Generation.Number))
	case mode.BuildOnly():
		fmt.Fprintln(os.Stdout, outcome.Closure.Path)
	}
	return nil
}
