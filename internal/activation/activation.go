package activation

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"nixgen/internal/build"
	"nixgen/internal/diffreport"
	"nixgen/internal/gate"
	"nixgen/internal/installable"
	"nixgen/internal/logger"
	"nixgen/internal/model"
	"nixgen/internal/platform"
	"nixgen/internal/specialisation"
	nixgenerrors "nixgen/pkg/errors"
)

// Stage identifies where in the pipeline a run currently is, and where a
// failed run stopped.
type Stage int

const (
	StageGate Stage = iota
	StageResolve
	StageBuild
	StageDiff
	StageConfirm
	StageActivate
	StageCommit
)

func (s Stage) String() string {
	switch s {
	case StageGate:
		return "gate"
	case StageResolve:
		return "resolve"
	case StageBuild:
		return "build"
	case StageDiff:
		return "diff"
	case StageConfirm:
		return "confirm"
	case StageActivate:
		return "activate"
	case StageCommit:
		return "commit"
	default:
		return "unknown"
	}
}

// StageError records which stage failed and, when a closure had already been
// built, the last good closure so the caller can report or reuse it.
// RolledBack means the previously active closure was re-activated after the
// failure, leaving the running system in its old state.
type StageError struct {
	Stage      Stage
	Closure    *model.Closure
	RolledBack bool
	Err        error
}

func (e *StageError) Error() string {
	if e == nil {
		return ""
	}
	if e.RolledBack {
		return fmt.Sprintf("%s failed (previous configuration restored): %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Checker is the environment gate.
type Checker interface {
	Verify(ctx context.Context, req gate.Requirements) error
}

// Resolver turns CLI input into a build target.
type Resolver interface {
	Resolve(ctx context.Context, in installable.Input, kind platform.Kind, finalAttr string, extraArgs []string) (installable.BuildTarget, error)
}

// Builder produces a closure from a build target.
type Builder interface {
	Build(ctx context.Context, target installable.BuildTarget, outLink string) (model.Closure, error)
}

// Differ compares the candidate closure against the one it replaces.
type Differ interface {
	Compare(ctx context.Context, previous *model.Closure, candidate model.Closure, currentHostname, targetHostname string) diffreport.Report
}

// Selector picks the specialisation variant to activate.
type Selector interface {
	Select(in specialisation.Input, markerPath string, candidate model.Closure) (string, error)
}

// Registry reads and records generations for the platform's profile.
type Registry interface {
	Current() (*model.Generation, error)
	CommitArgs(closure model.Closure) []string
	SwitchArgs(number uint64) []string
}

// Runner executes activation and commit command vectors at the right
// privilege level.
type Runner interface {
	Run(ctx context.Context, argv []string, message string) error
	RunUnprivileged(ctx context.Context, argv []string, message string) error
	EnsureNotRoot() error
}

// Confirm asks the user whether to proceed with activation. A nil Confirm on
// the coordinator means non-interactive use; confirmation then passes.
type Confirm func(ctx context.Context, report diffreport.Report) (bool, error)

// Request describes one build-and-activate run.
type Request struct {
	Input    installable.Input
	Platform platform.Kind
	Mode     model.Mode

	// FinalAttr selects the closure flavour below the configuration
	// ("toplevel", "vm", "vmWithBootLoader"). Ignored for home targets.
	FinalAttr string
	ExtraArgs []string

	// OutLink keeps the result symlink at this path for build-only modes.
	// Empty means "result" in the working directory.
	OutLink string

	Specialisation specialisation.Input
	ConfirmPolicy  model.ConfirmPolicy
	DiffPolicy     model.DiffPolicy

	// AllowRoot skips the refuse-to-run-as-root rail.
	AllowRoot bool
}

// ResumeRequest re-enters the pipeline at the activation stage with an
// already-built generation, which is how rollback works.
type ResumeRequest struct {
	Generation     model.Generation
	Specialisation specialisation.Input
	ConfirmPolicy  model.ConfirmPolicy
	DiffPolicy     model.DiffPolicy
	AllowRoot      bool
}

// Outcome reports what a completed run did.
type Outcome struct {
	Closure        model.Closure
	Report         diffreport.Report
	Specialisation string

	// Generation is set when the run committed a new generation.
	Generation *model.Generation
	// Declined is true when the user rejected the confirmation prompt; the
	// run then also fails with ErrUserAborted, keeping the built closure.
	Declined bool
}

// Coordinator drives a run through resolve, build, diff, confirmation,
// activation and commit. Each collaborator owns one stage; the coordinator
// owns the ordering and the failure semantics between them.
type Coordinator struct {
	Log *logger.Logger

	Gate     Checker
	Resolver Resolver
	Builder  Builder
	Differ   Differ
	Selector Selector
	Registry Registry
	Runner   Runner
	Confirm  Confirm

	// Hostname is the local machine name, for diff mismatch detection.
	Hostname string

	// MarkerPath overrides the specialisation marker location, for tests.
	// Empty uses the platform default.
	MarkerPath string
}

// Run executes the full pipeline for a fresh build.
func (c *Coordinator) Run(ctx context.Context, req Request) (Outcome, error) {
	if !req.AllowRoot {
		if err := c.Runner.EnsureNotRoot(); err != nil {
			return Outcome{}, &StageError{Stage: StageGate, Err: err}
		}
	}

	gateReq := gate.Requirements{Flake: req.Input.File == "" && req.Input.Expr == ""}
	if err := c.Gate.Verify(ctx, gateReq); err != nil {
		return Outcome{}, &StageError{Stage: StageGate, Err: err}
	}

	target, err := c.Resolver.Resolve(ctx, req.Input, req.Platform, req.FinalAttr, req.ExtraArgs)
	if err != nil {
		return Outcome{}, &StageError{Stage: StageResolve, Err: err}
	}

	outLink := req.OutLink
	if req.Mode.BuildOnly() {
		if outLink == "" {
			outLink = "result"
		}
	} else {
		staged, cleanup, err := build.StagingOutLink()
		if err != nil {
			return Outcome{}, &StageError{Stage: StageBuild, Err: err}
		}
		defer cleanup()
		outLink = staged
	}

	closure, err := c.Builder.Build(ctx, target, outLink)
	if err != nil {
		return Outcome{}, &StageError{Stage: StageBuild, Err: err}
	}

	previous := c.closureOf(c.previousGeneration())

	report := c.diff(ctx, req.DiffPolicy, previous, closure, target.Hostname)
	outcome := Outcome{Closure: closure, Report: report}

	if req.Mode.BuildOnly() {
		c.Log.Info(fmt.Sprintf("built %s", closure.Path))
		return outcome, nil
	}

	proceed, err := c.confirm(ctx, req.ConfirmPolicy, report)
	if err != nil {
		return outcome, &StageError{Stage: StageConfirm, Closure: &closure, Err: err}
	}
	if !proceed {
		outcome.Declined = true
		return outcome, &StageError{Stage: StageConfirm, Closure: &closure, Err: nixgenerrors.ErrUserAborted}
	}

	return c.applyClosure(ctx, req.Platform, req.Mode, req.Specialisation, closure, previous, outcome)
}

// Resume activates an existing generation's closure, pointing the profile
// back at it. The build and resolve stages are skipped.
func (c *Coordinator) Resume(ctx context.Context, req ResumeRequest) (Outcome, error) {
	if !req.AllowRoot {
		if err := c.Runner.EnsureNotRoot(); err != nil {
			return Outcome{}, &StageError{Stage: StageGate, Err: err}
		}
	}

	closure := req.Generation.Closure()

	current := c.previousGeneration()
	previous := c.closureOf(current)

	report := c.diff(ctx, req.DiffPolicy, previous, closure, c.Hostname)
	outcome := Outcome{Closure: closure, Report: report}

	proceed, err := c.confirm(ctx, req.ConfirmPolicy, report)
	if err != nil {
		return outcome, &StageError{Stage: StageConfirm, Closure: &closure, Err: err}
	}
	if !proceed {
		outcome.Declined = true
		return outcome, &StageError{Stage: StageConfirm, Closure: &closure, Err: nixgenerrors.ErrUserAborted}
	}

	kind := req.Generation.Platform
	switchArgs := c.Registry.SwitchArgs(req.Generation.Number)
	if err := c.runAs(ctx, kind.RequiresElevation(), switchArgs, fmt.Sprintf("switching profile to generation %d", req.Generation.Number)); err != nil {
		return outcome, &StageError{Stage: StageCommit, Closure: &closure, Err: err}
	}

	variant, err := c.selectVariant(kind, req.Specialisation, closure)
	if err != nil {
		return outcome, &StageError{Stage: StageActivate, Closure: &closure, Err: err}
	}
	outcome.Specialisation = variant

	if err := c.activate(ctx, kind, closure, variant, "switch"); err != nil {
		stageErr := &StageError{Stage: StageActivate, Closure: &closure, Err: err}
		if current != nil && current.Number != req.Generation.Number && c.restoreProfile(ctx, kind, current.Number) {
			stageErr.RolledBack = true
		}
		return outcome, stageErr
	}

	outcome.Generation = &req.Generation
	return outcome, nil
}

// restoreProfile points the profile back at the generation that was current
// before a failed rollback activation. Best effort; reports success.
func (c *Coordinator) restoreProfile(ctx context.Context, kind platform.Kind, number uint64) bool {
	c.Log.Warn(fmt.Sprintf("activation failed, restoring profile to generation %d", number))
	if err := c.runAs(ctx, kind.RequiresElevation(), c.Registry.SwitchArgs(number), ""); err != nil {
		c.Log.Error(err, "unable to restore the profile link")
		return false
	}
	return true
}

// applyClosure runs the activation and commit stages for a freshly built
// closure.
func (c *Coordinator) applyClosure(ctx context.Context, kind platform.Kind, mode model.Mode, spec specialisation.Input, closure model.Closure, previous *model.Closure, outcome Outcome) (Outcome, error) {
	variant, err := c.selectVariant(kind, spec, closure)
	if err != nil {
		return outcome, &StageError{Stage: StageActivate, Closure: &closure, Err: err}
	}
	outcome.Specialisation = variant

	if kind == platform.Darwin {
		return c.applyDarwin(ctx, mode, closure, variant, outcome)
	}

	if mode.Activates() {
		if err := c.activate(ctx, kind, closure, variant, "test"); err != nil {
			stageErr := &StageError{Stage: StageActivate, Closure: &closure, Err: err}
			if previous != nil && c.restore(ctx, kind, *previous) {
				stageErr.RolledBack = true
			}
			return outcome, stageErr
		}
	}

	if !mode.Persists() {
		return outcome, nil
	}

	if err := c.runAs(ctx, kind.RequiresElevation(), c.Registry.CommitArgs(closure), "committing new generation"); err != nil {
		// The running system already switched; committing again is safe, so
		// the failure is surfaced without undoing the activation.
		return outcome, &StageError{Stage: StageCommit, Closure: &closure, Err: err}
	}

	if kind != platform.Home {
		// Register the boot entry from the committed closure.
		if err := c.activate(ctx, kind, closure, "", "boot"); err != nil {
			return outcome, &StageError{Stage: StageCommit, Closure: &closure, Err: err}
		}
	}

	if current, err := c.Registry.Current(); err == nil {
		outcome.Generation = current
	}
	return outcome, nil
}

// applyDarwin commits the profile and then runs darwin-rebuild; nix-darwin
// has no separate test or boot actions, so the profile is updated before the
// single activation step.
func (c *Coordinator) applyDarwin(ctx context.Context, mode model.Mode, closure model.Closure, variant string, outcome Outcome) (Outcome, error) {
	if mode.Persists() {
		if err := c.runAs(ctx, true, c.Registry.CommitArgs(closure), "committing new generation"); err != nil {
			return outcome, &StageError{Stage: StageCommit, Closure: &closure, Err: err}
		}
	}

	if mode.Activates() {
		if err := c.activate(ctx, platform.Darwin, closure, variant, ""); err != nil {
			return outcome, &StageError{Stage: StageActivate, Closure: &closure, Err: err}
		}
	}

	if current, err := c.Registry.Current(); err == nil {
		outcome.Generation = current
	}
	return outcome, nil
}

// previousGeneration looks up the diff baseline. A registry failure here
// never aborts the run; comparison degrades to no baseline.
func (c *Coordinator) previousGeneration() *model.Generation {
	current, err := c.Registry.Current()
	if err != nil {
		c.Log.Warn(fmt.Sprintf("unable to read the current generation, comparing without a baseline: %v", err))
		return nil
	}
	return current
}

func (c *Coordinator) closureOf(generation *model.Generation) *model.Closure {
	if generation == nil {
		return nil
	}
	closure := generation.Closure()
	return &closure
}

func (c *Coordinator) diff(ctx context.Context, policy model.DiffPolicy, previous *model.Closure, candidate model.Closure, targetHostname string) diffreport.Report {
	switch policy {
	case model.DiffNever:
		report := diffreport.Report{Note: "comparison disabled"}
		report.HasChanges = previous == nil || previous.Path != candidate.Path
		return report
	case model.DiffAuto:
		// Comparing against this machine's running system is meaningless
		// when the build targets another host; --diff always forces it.
		if candidate.Platform == platform.OS && targetHostname != "" && c.Hostname != "" && targetHostname != c.Hostname {
			report := diffreport.Report{
				HostnameMismatch: true,
				Note:             fmt.Sprintf("%s is not this machine, comparison skipped", targetHostname),
			}
			report.HasChanges = previous == nil || previous.Path != candidate.Path
			return report
		}
	}
	return c.Differ.Compare(ctx, previous, candidate, c.Hostname, targetHostname)
}

func (c *Coordinator) confirm(ctx context.Context, policy model.ConfirmPolicy, report diffreport.Report) (bool, error) {
	switch policy {
	case model.ConfirmAlways:
	case model.ConfirmIfChanged:
		if !report.HasChanges {
			return true, nil
		}
	default:
		return true, nil
	}

	if c.Confirm == nil {
		c.Log.Warn("no interactive terminal, proceeding without confirmation")
		return true, nil
	}
	return c.Confirm(ctx, report)
}

func (c *Coordinator) selectVariant(kind platform.Kind, in specialisation.Input, closure model.Closure) (string, error) {
	marker := c.MarkerPath
	if marker == "" {
		var err error
		marker, err = kind.MarkerPath()
		if err != nil {
			return "", err
		}
	}
	return c.Selector.Select(in, marker, closure)
}

// activate runs the closure's activation entry point. For system platforms
// the entry point must exist; a NixOS closure built with the switch machinery
// disabled cannot be activated.
func (c *Coordinator) activate(ctx context.Context, kind platform.Kind, closure model.Closure, variant, action string) error {
	root := closure.SpecialisationPath(variant)
	argv := kind.ActivationCommand(root, action)

	elevated := kind.RequiresElevation()
	message := "activating configuration"
	switch kind {
	case platform.OS:
		if _, err := os.Stat(argv[0]); err != nil {
			return fmt.Errorf("%s not found; the configuration may set system.switch.enable = false", filepath.Base(argv[0]))
		}
		message = fmt.Sprintf("activating configuration (%s)", action)
	case platform.Darwin:
		if _, err := os.Stat(argv[0]); err != nil {
			return fmt.Errorf("%s not found in the built closure", filepath.Base(argv[0]))
		}
		elevated = platform.DarwinActivationElevated(root)
	}

	return c.runAs(ctx, elevated, argv, message)
}

// restore re-activates the previously running closure after a failed
// activation. Best effort; reports success.
func (c *Coordinator) restore(ctx context.Context, kind platform.Kind, previous model.Closure) bool {
	c.Log.Warn("activation failed, restoring previous configuration")
	if err := c.activate(ctx, kind, previous, "", "test"); err != nil {
		c.Log.Error(err, "unable to restore previous configuration")
		return false
	}
	return true
}

func (c *Coordinator) runAs(ctx context.Context, elevated bool, argv []string, message string) error {
	if elevated {
		return c.Runner.Run(ctx, argv, message)
	}
	return c.Runner.RunUnprivileged(ctx, argv, message)
}
