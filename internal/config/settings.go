package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"

	"nixgen/internal/model"
	nixgenerrors "nixgen/pkg/errors"
)

// Settings is the optional per-user configuration file. Everything in it has
// a flag equivalent; the file only changes defaults.
type Settings struct {
	// Flake is the default configuration reference when no flag or
	// environment variable names one.
	Flake string `yaml:"flake"`

	Diff       DiffSettings       `yaml:"diff"`
	Confirm    string             `yaml:"confirm" validate:"omitempty,oneof=never always if-changed"`
	Visualizer VisualizerSettings `yaml:"visualizer"`
	Elevation  ElevationSettings  `yaml:"elevation"`
	Log        LogSettings        `yaml:"log"`

	// ExtraArgs are appended verbatim to every build invocation.
	ExtraArgs []string `yaml:"extra_args"`
}

type DiffSettings struct {
	Tool   string `yaml:"tool"`
	Policy string `yaml:"policy" validate:"omitempty,oneof=auto always never"`
}

type VisualizerSettings struct {
	Enabled *bool  `yaml:"enabled"`
	Command string `yaml:"command"`
}

type ElevationSettings struct {
	Askpass      string   `yaml:"askpass"`
	EnvAllowList []string `yaml:"env_allow_list" validate:"dive,env_name"`
}

type LogSettings struct {
	Level string `yaml:"level" validate:"omitempty,oneof=trace debug info warn error"`
}

// DefaultSettings returns the baseline applied underneath a parsed file.
func DefaultSettings() *Settings {
	enabled := true
	return &Settings{
		Diff:       DiffSettings{Tool: "nvd", Policy: "auto"},
		Confirm:    "never",
		Visualizer: VisualizerSettings{Enabled: &enabled, Command: "nom"},
		Log:        LogSettings{Level: "info"},
	}
}

// DefaultPath is the well-known settings location below the user config
// directory.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("determine config directory: %w", err)
	}
	return filepath.Join(dir, "nixgen", "config.yaml"), nil
}

// Load reads the settings file at path, or the default location when path is
// empty. A missing file yields the defaults.
func Load(path string) (*Settings, error) {
	explicit := path != ""
	if !explicit {
		var err error
		path, err = DefaultPath()
		if err != nil {
			return DefaultSettings(), nil
		}
	}

	if _, err := os.Stat(path); err != nil {
		if explicit {
			return nil, nixgenerrors.NewParseError(path, 0, err)
		}
		return DefaultSettings(), nil
	}

	return ParseSettings(path)
}

var yamlLineRegex = regexp.MustCompile(`line (\d+)`)

// ParseSettings loads a settings file from disk, validates it, and layers it
// over the defaults.
func ParseSettings(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nixgenerrors.NewParseError(path, 0, err)
	}

	settings := DefaultSettings()
	if err := yaml.Unmarshal(data, settings); err != nil {
		return nil, nixgenerrors.NewParseError(path, extractLine(err), err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, err
	}

	return settings, nil
}

func extractLine(err error) int {
	if err == nil {
		return 0
	}

	matches := yamlLineRegex.FindStringSubmatch(err.Error())
	if len(matches) != 2 {
		return 0
	}

	var line int
	if _, scanErr := fmt.Sscanf(matches[1], "%d", &line); scanErr != nil {
		return 0
	}
	return line
}

// DiffPolicy converts the file value to the model policy.
func (s *Settings) DiffPolicy() model.DiffPolicy {
	switch s.Diff.Policy {
	case "always":
		return model.DiffAlways
	case "never":
		return model.DiffNever
	default:
		return model.DiffAuto
	}
}

// ConfirmPolicy converts the file value to the model policy.
func (s *Settings) ConfirmPolicy() model.ConfirmPolicy {
	switch s.Confirm {
	case "always":
		return model.ConfirmAlways
	case "if-changed":
		return model.ConfirmIfChanged
	default:
		return model.ConfirmNever
	}
}

// VisualizerCommand returns the build visualizer command, or empty when
// disabled.
func (s *Settings) VisualizerCommand() string {
	if s.Visualizer.Enabled != nil && !*s.Visualizer.Enabled {
		return ""
	}
	if s.Visualizer.Command == "" {
		return "nom"
	}
	return s.Visualizer.Command
}
