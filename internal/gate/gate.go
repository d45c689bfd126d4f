package gate

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	"golang.org/x/mod/semver"

	"nixgen/internal/logger"
	"nixgen/internal/run"
	nixgenerrors "nixgen/pkg/errors"
)

// Minimum supported tool versions, tracking the latest stable releases.
// Falling below the floor produces a warning, never a hard failure.
const (
	minNixVersion = "2.28.4"
	minLixVersion = "2.91.3"
)

// bypassEnvVar skips all gate checks when set, for broken or exotic setups.
const bypassEnvVar = "NIXGEN_NO_CHECKS"

// Variant identifies the detected build tool flavor. Feature requirements
// differ between them.
type Variant int

const (
	// VariantNix is mainline Nix.
	VariantNix Variant = iota
	// VariantLix is the Lix fork.
	VariantLix
	// VariantDeterminate is Determinate Nix, which ships flakes as stable.
	VariantDeterminate
)

func (v Variant) String() string {
	switch v {
	case VariantLix:
		return "lix"
	case VariantDeterminate:
		return "determinate"
	default:
		return "nix"
	}
}

// ToolInfo is the build tool's self-reported identity, gathered once per
// invocation by Probe.
type ToolInfo struct {
	VersionString string
	Variant       Variant
	Features      []string
}

// Requirements shapes the gate to the operation about to run. Checks that are
// irrelevant to the request are skipped.
type Requirements struct {
	// Flake is true when the operation evaluates a flake-style reference.
	Flake bool
}

// Gate validates the installed build tool before orchestration proceeds.
type Gate struct {
	Log *logger.Logger
}

// Probe queries the build tool for its version line and enabled experimental
// features.
func (g *Gate) Probe(ctx context.Context) (ToolInfo, error) {
	versionLine, err := run.Capture(run.Command(ctx, "nix", "--version"))
	if err != nil {
		return ToolInfo{}, nixgenerrors.NewGateError("version", "unable to query build tool version", err)
	}
	if idx := strings.IndexByte(versionLine, '\n'); idx >= 0 {
		versionLine = versionLine[:idx]
	}

	info := ToolInfo{
		VersionString: versionFromLine(versionLine),
		Variant:       variantFromLine(versionLine, g.Log),
	}

	features, err := run.Capture(run.Command(ctx, "nix", "config", "show", "experimental-features"))
	if err != nil {
		// Older tools spell it differently; try the legacy form before
		// giving up on feature detection.
		features, err = run.Capture(run.Command(ctx, "nix", "show-config", "experimental-features"))
	}
	if err == nil {
		info.Features = strings.Fields(features)
	} else {
		g.Log.Warn("unable to query experimental features, feature checks may fail")
	}

	return info, nil
}

// Verify probes the evaluator and applies the preflight checks in one step.
// With the bypass variable set the probe is skipped entirely, so the tool
// stays usable even when the evaluator binary itself misbehaves.
func (g *Gate) Verify(ctx context.Context, req Requirements) error {
	if os.Getenv(bypassEnvVar) != "" {
		g.Log.Debug("environment checks bypassed")
		return nil
	}
	info, err := g.Probe(ctx)
	if err != nil {
		return err
	}
	return g.Check(info, req)
}

// Check runs the version and feature preflight for the given requirements.
// Run once per invocation unless bypassed via NIXGEN_NO_CHECKS.
func (g *Gate) Check(info ToolInfo, req Requirements) error {
	if os.Getenv(bypassEnvVar) != "" {
		g.Log.Debug("environment checks bypassed")
		return nil
	}

	g.checkVersionFloor(info)

	if !req.Flake {
		// Legacy references need no experimental features; keep the gate
		// request-shaped rather than global.
		return nil
	}

	required := requiredFeatures(info.Variant)
	var missing []string
	for _, feature := range required {
		if !contains(info.Features, feature) {
			missing = append(missing, feature)
		}
	}
	if len(missing) > 0 {
		return nixgenerrors.NewMissingFeatureError(missing)
	}

	return nil
}

// checkVersionFloor warns when the tool is older than the supported floor. An
// unparseable version must never block usage.
func (g *Gate) checkVersionFloor(info ToolInfo) {
	normalized := NormalizeVersion(info.VersionString)
	if !semver.IsValid("v" + normalized) {
		g.Log.Warn(fmt.Sprintf("unable to parse tool version %q, skipping version check", info.VersionString))
		return
	}

	floor := minNixVersion
	if info.Variant == VariantLix {
		floor = minLixVersion
	}

	if semver.Compare("v"+normalized, "v"+floor) < 0 {
		g.Log.Warn(fmt.Sprintf("%s version %s is older than the recommended minimum %s, you may encounter issues",
			info.Variant, info.VersionString, floor))
	}
}

// requiredFeatures returns the experimental features the variant needs for
// flake evaluation. Determinate Nix ships these as stable.
func requiredFeatures(variant Variant) []string {
	if variant == VariantDeterminate {
		return nil
	}
	return []string{"nix-command", "flakes"}
}

var versionPattern = regexp.MustCompile(`\d+(?:\.\d+)*\S*$`)

func versionFromLine(line string) string {
	return versionPattern.FindString(strings.TrimSpace(line))
}

func variantFromLine(line string, log *logger.Logger) Variant {
	lower := strings.ToLower(line)
	switch {
	case strings.Contains(lower, "lix"):
		return VariantLix
	case strings.Contains(lower, "determinate"):
		return VariantDeterminate
	case strings.HasPrefix(lower, "nix"):
		return VariantNix
	default:
		log.Warn(fmt.Sprintf("unknown build tool variant %q, assuming mainline", line))
		return VariantNix
	}
}

var versionComponents = regexp.MustCompile(`^(\d+)(?:\.(\d+))?(?:\.(\d+))?`)

// NormalizeVersion reduces a tool version string to plain major.minor.patch,
// stripping pre-release and distro suffixes and padding missing components
// with zeroes. Returns the input unchanged when no leading digits exist.
func NormalizeVersion(s string) string {
	m := versionComponents.FindStringSubmatch(s)
	if m == nil {
		return s
	}

	minor, patch := m[2], m[3]
	if minor == "" {
		minor = "0"
	}
	if patch == "" {
		patch = "0"
	}
	return fmt.Sprintf("%s.%s.%s", m[1], minor, patch)
}

func contains(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
