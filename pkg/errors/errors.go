package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUserAborted is returned when the user declines the confirmation prompt.
// The built closure is kept, but nothing has been activated or committed.
var ErrUserAborted = errors.New("aborted by user")

// GateError reports a failed environment preflight check.
type GateError struct {
	Check   string
	Message string
	Err     error
}

// NewGateError constructs a GateError for the named check.
func NewGateError(check, message string, err error) error {
	return &GateError{Check: check, Message: message, Err: err}
}

func (e *GateError) Error() string {
	if e == nil {
		return ""
	}
	if e.Check != "" {
		return fmt.Sprintf("environment check %s failed: %s", e.Check, e.Message)
	}
	return fmt.Sprintf("environment check failed: %s", e.Message)
}

// Unwrap exposes the underlying error.
func (e *GateError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// MissingFeatureError reports experimental features required by the requested
// operation that are not enabled in the build tool.
type MissingFeatureError struct {
	Features []string
}

// NewMissingFeatureError constructs a MissingFeatureError.
func NewMissingFeatureError(features []string) error {
	return &MissingFeatureError{Features: features}
}

func (e *MissingFeatureError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("missing required experimental features: %s", strings.Join(e.Features, ", "))
}

// ResolveError reports a failure to turn CLI input and environment defaults
// into a concrete build target.
type ResolveError struct {
	Message string
	Err     error
}

// NewResolveError constructs a ResolveError.
func NewResolveError(message string, err error) error {
	return &ResolveError{Message: message, Err: err}
}

func (e *ResolveError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("resolve error: %s", e.Message)
}

// Unwrap exposes the underlying error.
func (e *ResolveError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// BuildError reports a nonzero exit from the builder subprocess. The last
// diagnostic lines are preserved verbatim for display, never reinterpreted.
type BuildError struct {
	ExitCode        int
	DiagnosticLines []string
	Err             error
}

// NewBuildError constructs a BuildError.
func NewBuildError(exitCode int, diagnosticLines []string, err error) error {
	return &BuildError{ExitCode: exitCode, DiagnosticLines: diagnosticLines, Err: err}
}

func (e *BuildError) Error() string {
	if e == nil {
		return ""
	}
	if len(e.DiagnosticLines) == 0 {
		return fmt.Sprintf("build failed with exit code %d", e.ExitCode)
	}
	return fmt.Sprintf("build failed with exit code %d:\n%s", e.ExitCode, strings.Join(e.DiagnosticLines, "\n"))
}

// Unwrap exposes the underlying error.
func (e *BuildError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// DiffError reports a differ subprocess failure. Callers are expected to
// degrade to an empty report rather than abort on this error.
type DiffError struct {
	Message string
	Err     error
}

// NewDiffError constructs a DiffError.
func NewDiffError(message string, err error) error {
	return &DiffError{Message: message, Err: err}
}

func (e *DiffError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("diff error: %s", e.Message)
}

// Unwrap exposes the underlying error.
func (e *DiffError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// SpecialisationError reports a requested specialisation name that does not
// exist in the candidate closure.
type SpecialisationError struct {
	Name string
}

// NewSpecialisationError constructs a SpecialisationError.
func NewSpecialisationError(name string) error {
	return &SpecialisationError{Name: name}
}

func (e *SpecialisationError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("unknown specialisation: %q", e.Name)
}

// ElevationError reports a privilege-elevation failure.
type ElevationError struct {
	Message string
	Err     error
}

// NewElevationError constructs an ElevationError.
func NewElevationError(message string, err error) error {
	return &ElevationError{Message: message, Err: err}
}

func (e *ElevationError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("elevation error: %s", e.Message)
}

// Unwrap exposes the underlying error.
func (e *ElevationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ErrForbiddenAsRoot is returned when an operation that must never run as the
// highest-privilege account is invoked by it.
var ErrForbiddenAsRoot = &ElevationError{
	Message: "refusing to run as root; elevation is performed internally when needed",
}

// RegistryError reports a generation registry failure.
type RegistryError struct {
	Profile string
	Message string
	Err     error
}

// NewRegistryError constructs a RegistryError.
func NewRegistryError(profile, message string, err error) error {
	return &RegistryError{Profile: profile, Message: message, Err: err}
}

func (e *RegistryError) Error() string {
	if e == nil {
		return ""
	}
	if e.Profile != "" {
		return fmt.Sprintf("registry error for profile %s: %s", e.Profile, e.Message)
	}
	return fmt.Sprintf("registry error: %s", e.Message)
}

// Unwrap exposes the underlying error.
func (e *RegistryError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NoSuchGenerationError reports a rollback target that is not present in the
// registry.
type NoSuchGenerationError struct {
	Number uint64
}

// NewNoSuchGenerationError constructs a NoSuchGenerationError.
func NewNoSuchGenerationError(number uint64) error {
	return &NoSuchGenerationError{Number: number}
}

func (e *NoSuchGenerationError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("no such generation: %d", e.Number)
}

// ParseError represents a configuration file parsing failure with optional
// line metadata.
type ParseError struct {
	Path    string
	Line    int
	Message string
	Err     error
}

// NewParseError constructs a ParseError.
func NewParseError(path string, line int, err error) error {
	message := ""
	if err != nil {
		message = err.Error()
	}
	return &ParseError{Path: path, Line: line, Message: message, Err: err}
}

func (e *ParseError) Error() string {
	if e == nil {
		return ""
	}

	if e.Line > 0 {
		return fmt.Sprintf("parse error: %s:%d: %s", e.Path, e.Line, e.Message)
	}
	return fmt.Sprintf("parse error: %s: %s", e.Path, e.Message)
}

// Unwrap exposes the underlying error.
func (e *ParseError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ValidationError captures settings validation issues.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

// NewValidationError constructs a ValidationError.
func NewValidationError(field, message string, err error) error {
	return &ValidationError{Field: field, Message: message, Err: err}
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Field != "" {
		return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// Unwrap exposes the underlying error.
func (e *ValidationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ErrNoTargetSpecified is returned when no configuration location can be
// resolved from flags or environment defaults.
var ErrNoTargetSpecified = &ResolveError{
	Message: "no configuration reference specified; pass one explicitly or set NIXGEN_FLAKE",
}
