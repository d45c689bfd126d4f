package installable

import (
	"context"
	"fmt"
	"os"

	"nixgen/internal/logger"
	"nixgen/internal/platform"
	nixgenerrors "nixgen/pkg/errors"
)

// Environment variables consulted when no reference is given explicitly, in
// falling precedence after the platform-specific variable.
const (
	genericEnvVar = "NIXGEN_FLAKE"
	legacyEnvVar  = "FLAKE"
)

// Input carries the raw, unresolved CLI input for one invocation.
type Input struct {
	// Installable is the positional reference: a flake ref with optional
	// attribute path, or a store path.
	Installable string
	// File is the legacy --file reference; Installable then holds the
	// attribute path.
	File string
	// Expr is an inline --expr reference.
	Expr string
	// Hostname overrides the detected hostname for configuration selection.
	Hostname string
	// Configuration names an explicit configuration attribute (home only).
	Configuration string
	// Fallback is the settings-file reference, consulted only when neither
	// flags nor environment variables name a target.
	Fallback string
}

// BuildTarget is the resolved, executable description of what to build.
// Created here, consumed by the build orchestrator.
type BuildTarget struct {
	Installable Installable
	Platform    platform.Kind
	FinalAttr   string
	ExtraArgs   []string
	Hostname    string
}

// Resolver turns CLI input plus environment defaults into a BuildTarget.
type Resolver struct {
	Log *logger.Logger

	// ConfigExists probes whether a named configuration exists below the
	// given flake attribute path. Used for home-manager auto-detection.
	ConfigExists func(ctx context.Context, flake Installable, name string) (bool, error)

	// Hostname and Username are injectable for tests; nil uses the system.
	Hostname func() (string, error)
	Username func() string

	legacyWarned bool
}

// Resolve applies the location precedence (explicit flag > platform env var >
// generic env var > legacy alias > failure), selects the configuration
// attribute for the platform, and appends the platform's output attribute.
func (r *Resolver) Resolve(ctx context.Context, in Input, kind platform.Kind, finalAttr string, extraArgs []string) (BuildTarget, error) {
	inst, err := r.locate(in, kind)
	if err != nil {
		return BuildTarget{}, err
	}

	if inst.Kind == Flake {
		if state, ok := LocalRepoState(inst.Reference); ok && state.Dirty {
			r.Log.Warn(fmt.Sprintf("repository %s has uncommitted changes", inst.Reference))
		}
	}

	hostname, err := r.hostname(in, kind)
	if err != nil {
		return BuildTarget{}, err
	}

	inst, err = r.selectConfiguration(ctx, inst, in, kind, finalAttr, hostname)
	if err != nil {
		return BuildTarget{}, err
	}

	return BuildTarget{
		Installable: inst,
		Platform:    kind,
		FinalAttr:   finalAttr,
		ExtraArgs:   extraArgs,
		Hostname:    hostname,
	}, nil
}

func (r *Resolver) locate(in Input, kind platform.Kind) (Installable, error) {
	switch {
	case in.File != "":
		attr, err := ParseAttribute(in.Installable)
		if err != nil {
			return Installable{}, nixgenerrors.NewResolveError("invalid attribute path", err)
		}
		return Installable{Kind: File, Path: in.File, Attribute: attr}, nil
	case in.Expr != "":
		attr, err := ParseAttribute(in.Installable)
		if err != nil {
			return Installable{}, nixgenerrors.NewResolveError("invalid attribute path", err)
		}
		return Installable{Kind: Expression, Expression: in.Expr, Attribute: attr}, nil
	case in.Installable != "":
		if store, ok := FromStorePath(in.Installable); ok {
			return store, nil
		}
		inst, err := ParseFlakeRef(in.Installable)
		if err != nil {
			return Installable{}, nixgenerrors.NewResolveError("invalid flake reference", err)
		}
		return inst, nil
	}

	if val, ok := os.LookupEnv(kind.EnvVar()); ok && val != "" {
		r.Log.Debug(fmt.Sprintf("using %s: %s", kind.EnvVar(), val))
		inst, err := ParseFlakeRef(val)
		if err != nil {
			return Installable{}, nixgenerrors.NewResolveError(fmt.Sprintf("invalid %s", kind.EnvVar()), err)
		}
		return inst, nil
	}

	if val, ok := os.LookupEnv(genericEnvVar); ok && val != "" {
		inst, err := ParseFlakeRef(val)
		if err != nil {
			return Installable{}, nixgenerrors.NewResolveError(fmt.Sprintf("invalid %s", genericEnvVar), err)
		}
		return inst, nil
	}

	// Deprecated alias: adopt FLAKE into the generic slot, warning once per
	// invocation. Repeated resolutions keep producing the same value.
	if val, ok := os.LookupEnv(legacyEnvVar); ok && val != "" {
		if !r.legacyWarned {
			r.legacyWarned = true
			r.Log.Warn(fmt.Sprintf("%s is deprecated, set %s instead", legacyEnvVar, genericEnvVar))
		}
		inst, err := ParseFlakeRef(val)
		if err != nil {
			return Installable{}, nixgenerrors.NewResolveError(fmt.Sprintf("invalid %s", legacyEnvVar), err)
		}
		return inst, nil
	}

	if in.Fallback != "" {
		inst, err := ParseFlakeRef(in.Fallback)
		if err != nil {
			return Installable{}, nixgenerrors.NewResolveError("invalid configured flake reference", err)
		}
		return inst, nil
	}

	return Installable{}, nixgenerrors.ErrNoTargetSpecified
}

func (r *Resolver) hostname(in Input, kind platform.Kind) (string, error) {
	if in.Hostname != "" {
		return in.Hostname, nil
	}

	lookup := r.Hostname
	if lookup == nil {
		lookup = os.Hostname
	}

	name, err := lookup()
	if err != nil {
		if kind == platform.Home {
			return "", nil
		}
		return "", nixgenerrors.NewResolveError("unable to detect hostname and none supplied", err)
	}
	return name, nil
}

func (r *Resolver) username() string {
	if r.Username != nil {
		return r.Username()
	}
	return os.Getenv("USER")
}

// selectConfiguration fills in the configuration attribute when the reference
// does not carry one, then appends the output attribute for the platform.
func (r *Resolver) selectConfiguration(ctx context.Context, inst Installable, in Input, kind platform.Kind, finalAttr, hostname string) (Installable, error) {
	output := kind.OutputAttribute(finalAttr)

	switch inst.Kind {
	case Store:
		return inst, nil
	case File, Expression:
		return inst.WithAttribute(output...), nil
	}

	if len(inst.Attribute) > 0 {
		// An explicit attribute path wins over configuration selection.
		if kind == platform.Home {
			return inst, nil
		}
		return inst.WithAttribute(output...), nil
	}

	base := inst.WithAttribute(kind.ConfigAttribute())

	if kind != platform.Home {
		return base.WithAttribute(hostname).WithAttribute(output...), nil
	}

	if in.Configuration != "" {
		ok, err := r.configExists(ctx, base, in.Configuration)
		if err != nil {
			return Installable{}, err
		}
		if !ok {
			return Installable{}, nixgenerrors.NewResolveError(
				fmt.Sprintf("configuration %q not found in %s", in.Configuration, inst.Reference), nil)
		}
		return base.WithAttribute(in.Configuration).WithAttribute(output...), nil
	}

	user := r.username()
	candidates := []string{user}
	if hostname != "" {
		candidates = []string{user + "@" + hostname, user}
	}
	for _, name := range candidates {
		ok, err := r.configExists(ctx, base, name)
		if err != nil {
			return Installable{}, err
		}
		if ok {
			r.Log.Debug(fmt.Sprintf("using automatically detected configuration %q", name))
			return base.WithAttribute(name).WithAttribute(output...), nil
		}
	}

	return Installable{}, nixgenerrors.NewResolveError(
		fmt.Sprintf("no configuration found automatically, tried: %v", candidates), nil)
}

func (r *Resolver) configExists(ctx context.Context, flake Installable, name string) (bool, error) {
	if r.ConfigExists == nil {
		// Without a probe, trust the name and let the build surface errors.
		return true, nil
	}
	ok, err := r.ConfigExists(ctx, flake, name)
	if err != nil {
		return false, nixgenerrors.NewResolveError(fmt.Sprintf("probing configuration %q", name), err)
	}
	return ok, nil
}
