package model

import (
	"path/filepath"
	"time"

	"nixgen/internal/platform"
)

// Mode is the requested activation mode.
type Mode int

const (
	// ModeSwitch activates the closure now and makes it the boot default.
	ModeSwitch Mode = iota
	// ModeBoot makes the closure the boot default without activating it.
	ModeBoot
	// ModeTest activates the closure without persisting a generation.
	ModeTest
	// ModeBuild builds the closure and stops.
	ModeBuild
	// ModeBuildVM builds a virtual machine image of the closure and stops.
	ModeBuildVM
)

func (m Mode) String() string {
	switch m {
	case ModeSwitch:
		return "switch"
	case ModeBoot:
		return "boot"
	case ModeTest:
		return "test"
	case ModeBuild:
		return "build"
	case ModeBuildVM:
		return "build-vm"
	default:
		return "unknown"
	}
}

// BuildOnly reports whether the mode stops after a successful build.
func (m Mode) BuildOnly() bool {
	return m == ModeBuild || m == ModeBuildVM
}

// Activates reports whether the mode applies the closure to the running
// system.
func (m Mode) Activates() bool {
	return m == ModeSwitch || m == ModeTest
}

// Persists reports whether the mode records a new generation.
func (m Mode) Persists() bool {
	return m == ModeSwitch || m == ModeBoot
}

// ConfirmPolicy controls when the user is asked before activation.
type ConfirmPolicy int

const (
	// ConfirmNever proceeds without asking.
	ConfirmNever ConfirmPolicy = iota
	// ConfirmAlways asks before every activation.
	ConfirmAlways
	// ConfirmIfChanged asks only when the diff reported changes.
	ConfirmIfChanged
)

// DiffPolicy controls when the closure diff is computed and shown.
type DiffPolicy int

const (
	// DiffAuto shows the diff unless the closures are not comparable.
	DiffAuto DiffPolicy = iota
	// DiffAlways shows the diff even across mismatched hosts.
	DiffAlways
	// DiffNever skips the diff entirely.
	DiffNever
)

// Closure is a content-addressed build result: an opaque store path plus the
// metadata needed to compare and activate it.
type Closure struct {
	Path     string
	Platform platform.Kind
	BuiltAt  time.Time
}

// ComparableWith reports whether a diff between the two closures is
// meaningful. Closures of different platforms never compare.
func (c Closure) ComparableWith(other Closure) bool {
	return c.Platform == other.Platform
}

// SpecialisationPath returns the sub-variant root for the named
// specialisation, or the closure root itself for the empty name.
func (c Closure) SpecialisationPath(name string) string {
	if name == "" {
		return c.Path
	}
	return filepath.Join(c.Path, "specialisation", name)
}

// Generation is a numbered, timestamped record of a previously activated
// closure for a profile.
type Generation struct {
	Number          uint64
	Path            string
	Platform        platform.Kind
	Date            time.Time
	Specialisations []string
	Current         bool
}

// Closure returns the closure recorded by this generation.
func (g Generation) Closure() Closure {
	return Closure{Path: g.Path, Platform: g.Platform, BuiltAt: g.Date}
}
