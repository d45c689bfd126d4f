package generation

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"nixgen/internal/logger"
	"nixgen/internal/model"
	"nixgen/internal/platform"
	"nixgen/internal/specialisation"
	nixgenerrors "nixgen/pkg/errors"
)

// Registry reads the numbered generation links that live next to a profile
// symlink. Link names follow the `<profile>-<number>-link` convention; the
// profile itself points at the active link.
type Registry struct {
	Log *logger.Logger

	// ProfilePath is the profile symlink, e.g. /nix/var/nix/profiles/system.
	ProfilePath string
	// Platform tags the closures this profile records.
	Platform platform.Kind
}

// List returns all generations of the profile sorted by ascending number.
func (r *Registry) List() ([]model.Generation, error) {
	dir := filepath.Dir(r.ProfilePath)
	base := filepath.Base(r.ProfilePath)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nixgenerrors.NewRegistryError(r.ProfilePath, "reading profile directory", err)
	}

	currentLink, _ := os.Readlink(r.ProfilePath)

	var generations []model.Generation
	for _, entry := range entries {
		number, ok := parseLinkName(base, entry.Name())
		if !ok {
			continue
		}

		linkPath := filepath.Join(dir, entry.Name())
		storePath, err := filepath.EvalSymlinks(linkPath)
		if err != nil {
			r.Log.Warn(fmt.Sprintf("skipping dangling generation link %s", linkPath))
			continue
		}

		info, err := os.Lstat(linkPath)
		if err != nil {
			return nil, nixgenerrors.NewRegistryError(r.ProfilePath, "inspecting generation link", err)
		}

		closure := model.Closure{Path: storePath, Platform: r.Platform}
		generations = append(generations, model.Generation{
			Number:          number,
			Path:            storePath,
			Platform:        r.Platform,
			Date:            info.ModTime(),
			Specialisations: specialisation.Available(closure),
			Current:         entry.Name() == currentLink,
		})
	}

	sort.Slice(generations, func(i, j int) bool {
		return generations[i].Number < generations[j].Number
	})
	return generations, nil
}

// Current returns the generation the profile points at, or nil when the
// profile has no generations yet.
func (r *Registry) Current() (*model.Generation, error) {
	generations, err := r.List()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	for i := range generations {
		if generations[i].Current {
			return &generations[i], nil
		}
	}
	return nil, nil
}

// ByNumber returns the generation with the given number.
func (r *Registry) ByNumber(number uint64) (model.Generation, error) {
	generations, err := r.List()
	if err != nil {
		return model.Generation{}, err
	}
	for _, gen := range generations {
		if gen.Number == number {
			return gen, nil
		}
	}
	return model.Generation{}, nixgenerrors.NewNoSuchGenerationError(number)
}

// Previous returns the newest generation older than the current one. This is
// the rollback target.
func (r *Registry) Previous() (model.Generation, error) {
	generations, err := r.List()
	if err != nil {
		return model.Generation{}, err
	}

	currentIdx := -1
	for i, gen := range generations {
		if gen.Current {
			currentIdx = i
		}
	}
	if currentIdx <= 0 {
		return model.Generation{}, nixgenerrors.NewRegistryError(r.ProfilePath, "no generation to roll back to", nil)
	}
	return generations[currentIdx-1], nil
}

// CommitArgs returns the command vector that records a closure as the next
// generation of the profile. The caller runs it at the required privilege
// level.
func (r *Registry) CommitArgs(closure model.Closure) []string {
	return []string{"nix", "build", "--no-link", "--profile", r.ProfilePath, closure.Path}
}

// SwitchArgs returns the command vector that points the profile back at an
// existing generation.
func (r *Registry) SwitchArgs(number uint64) []string {
	return []string{"nix-env", "--profile", r.ProfilePath, "--switch-generation", strconv.FormatUint(number, 10)}
}

// parseLinkName extracts the generation number from `<base>-<number>-link`.
// Any other name in the profile directory is ignored.
func parseLinkName(base, name string) (uint64, bool) {
	rest, ok := strings.CutPrefix(name, base+"-")
	if !ok {
		return 0, false
	}
	numberPart, ok := strings.CutSuffix(rest, "-link")
	if !ok {
		return 0, false
	}
	number, err := strconv.ParseUint(numberPart, 10, 64)
	if err != nil {
		return 0, false
	}
	return number, true
}
