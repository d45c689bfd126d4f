package platform

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Kind selects the configuration platform a build target belongs to. The
// capability differences between platforms (profile locations, specialisation
// markers, attribute paths, elevation requirements) hang off this tag.
type Kind int

const (
	// OS is a system-wide NixOS configuration.
	OS Kind = iota
	// Home is a user-level home-manager configuration.
	Home
	// Darwin is a system-wide nix-darwin configuration.
	Darwin
)

const (
	systemProfile  = "/nix/var/nix/profiles/system"
	currentSystem  = "/run/current-system"
	osMarkerPath   = "/etc/specialisation"
	homeMarkerRel  = ".local/share/home-manager/specialisation"
	homeProfileRel = ".local/state/nix/profiles/home-manager"
)

func (k Kind) String() string {
	switch k {
	case OS:
		return "os"
	case Home:
		return "home"
	case Darwin:
		return "darwin"
	default:
		return fmt.Sprintf("platform(%d)", int(k))
	}
}

// RequiresElevation reports whether activating this platform needs privileged
// rights. Home-manager activation runs as the invoking user.
func (k Kind) RequiresElevation() bool {
	return k != Home
}

// ConfigAttribute is the flake output attribute that holds configurations for
// this platform.
func (k Kind) ConfigAttribute() string {
	switch k {
	case Home:
		return "homeConfigurations"
	case Darwin:
		return "darwinConfigurations"
	default:
		return "nixosConfigurations"
	}
}

// OutputAttribute is the attribute path, below a named configuration, of the
// derivation that builds the activatable closure.
func (k Kind) OutputAttribute(finalAttr string) []string {
	if k == Home {
		return []string{"config", "home", "activationPackage"}
	}
	return []string{"config", "system", "build", finalAttr}
}

// EnvVar is the platform-specific environment variable naming the default
// configuration reference.
func (k Kind) EnvVar() string {
	switch k {
	case Home:
		return "NIXGEN_HOME_FLAKE"
	case Darwin:
		return "NIXGEN_DARWIN_FLAKE"
	default:
		return "NIXGEN_OS_FLAKE"
	}
}

// ProfilePath is the profile symlink whose sibling "<name>-<N>-link" entries
// record this platform's generations.
func (k Kind) ProfilePath() (string, error) {
	if k == Home {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("determine home directory: %w", err)
		}
		return filepath.Join(home, homeProfileRel), nil
	}
	return systemProfile, nil
}

// CurrentClosurePath is the location of the currently active closure, used as
// the diff baseline.
func (k Kind) CurrentClosurePath() (string, error) {
	if k == Home {
		return k.ProfilePath()
	}
	return currentSystem, nil
}

// MarkerPath is the well-known file holding the active specialisation name.
func (k Kind) MarkerPath() (string, error) {
	if k == Home {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("determine home directory: %w", err)
		}
		return filepath.Join(home, homeMarkerRel), nil
	}
	return osMarkerPath, nil
}

// ActivationCommand returns the command vector that applies a built closure
// rooted at profilePath, for the given activation action ("switch", "test" or
// "boot"). Home-manager ships a single activate script with no action verb;
// nix-darwin ships darwin-rebuild, whose only activation verb is "activate".
func (k Kind) ActivationCommand(profilePath, action string) []string {
	switch k {
	case Home:
		return []string{filepath.Join(profilePath, "activate")}
	case Darwin:
		return []string{filepath.Join(profilePath, "sw", "bin", "darwin-rebuild"), "activate"}
	default:
		return []string{filepath.Join(profilePath, "bin", "switch-to-configuration"), action}
	}
}

// darwinUserScriptDeprecated marks activate-user scripts that nix-darwin has
// folded back into the privileged activation path.
const darwinUserScriptDeprecated = "# nix-darwin: deprecated"

// DarwinActivationElevated reports whether a nix-darwin closure's
// darwin-rebuild must run with elevated rights. Closures that still ship a
// live activate-user script expect the main activation to run as the invoking
// user.
func DarwinActivationElevated(closurePath string) bool {
	data, err := os.ReadFile(filepath.Join(closurePath, "activate-user"))
	if err != nil {
		return true
	}
	return strings.Contains(string(data), darwinUserScriptDeprecated)
}
