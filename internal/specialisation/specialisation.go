package specialisation

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"nixgen/internal/logger"
	"nixgen/internal/model"
	nixgenerrors "nixgen/pkg/errors"
)

// Selector decides which sub-variant of a closure gets activated.
type Selector struct {
	Log *logger.Logger
}

// Input carries the caller's specialisation preferences. An explicit name
// always wins; IgnoreMarker suppresses the on-disk marker and falls back to
// the base variant.
type Input struct {
	Explicit     string
	IgnoreMarker bool
}

// Select resolves the specialisation name for the candidate closure:
// explicit name, then the marker file at markerPath, then the base variant.
// A missing or empty marker means base. The chosen name must exist below the
// candidate's specialisation directory.
func (s *Selector) Select(in Input, markerPath string, candidate model.Closure) (string, error) {
	name := in.Explicit
	if name == "" && !in.IgnoreMarker {
		name = s.readMarker(markerPath)
	}
	if name == "" {
		return "", nil
	}

	variantPath := candidate.SpecialisationPath(name)
	if info, err := os.Stat(variantPath); err != nil || !info.IsDir() {
		return "", nixgenerrors.NewSpecialisationError(name)
	}

	s.Log.Debug(fmt.Sprintf("selected specialisation %q", name))
	return name, nil
}

// Available lists the specialisation names a closure offers, sorted by the
// directory listing order.
func Available(candidate model.Closure) []string {
	entries, err := os.ReadDir(filepath.Join(candidate.Path, "specialisation"))
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	return names
}

func (s *Selector) readMarker(markerPath string) string {
	if markerPath == "" {
		return ""
	}
	data, err := os.ReadFile(markerPath)
	if err != nil {
		return ""
	}
	name := strings.TrimSpace(string(data))
	if name != "" {
		s.Log.Debug(fmt.Sprintf("specialisation marker %s names %q", markerPath, name))
	}
	return name
}
