package build

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"nixgen/internal/installable"
	"nixgen/internal/logger"
	"nixgen/internal/model"
	"nixgen/internal/run"
	nixgenerrors "nixgen/pkg/errors"
)

// diagnosticTail bounds how many trailing output lines a failed build carries
// into its error.
const diagnosticTail = 20

// Orchestrator runs the evaluator's build command as a child process and
// resolves the produced closure from the out-link it leaves behind.
type Orchestrator struct {
	Log *logger.Logger

	// Visualizer names an external build-output renderer. When found on PATH
	// the build's structured log stream is piped through it; otherwise the
	// raw output passes through unchanged.
	Visualizer string

	// NixCommand overrides the evaluator binary, for tests.
	NixCommand string

	// LookPath is injectable for tests; nil uses exec.LookPath.
	LookPath func(string) (string, error)
}

func (o *Orchestrator) nix() string {
	if o.NixCommand != "" {
		return o.NixCommand
	}
	return "nix"
}

func (o *Orchestrator) lookPath(name string) (string, error) {
	if o.LookPath != nil {
		return o.LookPath(name)
	}
	return exec.LookPath(name)
}

// StagingOutLink allocates a private location for the result symlink of
// builds that feed an activation, so concurrent invocations never clobber a
// shared link. The cleanup func removes the staging directory.
func StagingOutLink() (string, func(), error) {
	dir, err := os.MkdirTemp("", "nixgen-out-")
	if err != nil {
		return "", nil, nixgenerrors.NewBuildError(-1, nil, fmt.Errorf("creating staging directory: %w", err))
	}
	cleanup := func() { _ = os.RemoveAll(dir) }
	return filepath.Join(dir, "result"), cleanup, nil
}

// Build runs the evaluator against the resolved target, placing the result
// symlink at outLink, and returns the closure the link points to. The store
// path is always taken from the link on disk, never parsed from build output.
func (o *Orchestrator) Build(ctx context.Context, target installable.BuildTarget, outLink string) (model.Closure, error) {
	args := []string{"build"}
	args = append(args, target.Installable.ToArgs()...)
	args = append(args, "--out-link", outLink)
	args = append(args, target.ExtraArgs...)

	o.Log.Info(fmt.Sprintf("building %s configuration", target.Platform))
	o.Log.Debug(fmt.Sprintf("running: %s %s", o.nix(), strings.Join(args, " ")))

	if err := o.runBuild(ctx, args); err != nil {
		return model.Closure{}, err
	}

	storePath, err := filepath.EvalSymlinks(outLink)
	if err != nil {
		return model.Closure{}, nixgenerrors.NewBuildError(-1, nil, fmt.Errorf("resolving out-link %s: %w", outLink, err))
	}

	return model.Closure{
		Path:     storePath,
		Platform: target.Platform,
		BuiltAt:  time.Now(),
	}, nil
}

func (o *Orchestrator) runBuild(ctx context.Context, args []string) error {
	if o.Visualizer != "" {
		if visualizer, err := o.lookPath(o.Visualizer); err == nil {
			return o.runPiped(ctx, args, visualizer)
		}
		o.Log.Warn(fmt.Sprintf("%s not found on PATH, falling back to plain build output", o.Visualizer))
	}

	return o.runPlain(ctx, args)
}

func (o *Orchestrator) runPlain(ctx context.Context, args []string) error {
	cmd := run.Command(ctx, o.nix(), args...)
	result, err := run.Streaming(cmd)
	if err != nil {
		return buildFailure(result.Stderr, err)
	}
	return nil
}

// runPiped feeds the build's structured log stream into the visualizer.
// Stdout and stderr are merged because the evaluator emits the structured
// log on stderr.
func (o *Orchestrator) runPiped(ctx context.Context, args []string, visualizer string) error {
	buildArgs := append([]string{}, args...)
	buildArgs = append(buildArgs, "--log-format", "internal-json", "--verbose")

	buildCmd := run.Command(ctx, o.nix(), buildArgs...)
	renderCmd := run.Command(ctx, visualizer, "--json")

	pipe, err := buildCmd.StdoutPipe()
	if err != nil {
		return nixgenerrors.NewBuildError(-1, nil, err)
	}
	buildCmd.Stderr = buildCmd.Stdout
	renderCmd.Stdin = pipe
	renderCmd.Stdout = os.Stderr
	renderCmd.Stderr = os.Stderr

	if err := renderCmd.Start(); err != nil {
		o.Log.Warn(fmt.Sprintf("unable to start %s, falling back to plain build output: %v", visualizer, err))
		_ = pipe.Close()
		return o.runPlain(ctx, args)
	}
	if err := buildCmd.Start(); err != nil {
		_ = renderCmd.Wait()
		return nixgenerrors.NewBuildError(-1, nil, err)
	}

	buildErr := buildCmd.Wait()
	renderErr := renderCmd.Wait()

	if buildErr != nil {
		return buildFailure("", buildErr)
	}
	if renderErr != nil {
		o.Log.Warn(fmt.Sprintf("%s exited abnormally: %v", visualizer, renderErr))
	}
	return nil
}

func buildFailure(stderr string, err error) error {
	return nixgenerrors.NewBuildError(run.ExitCode(err), run.Tail(stderr, diagnosticTail), err)
}
