package diffreport

import (
	"context"
	"fmt"
	"os/exec"
	"sort"
	"strings"

	"nixgen/internal/logger"
	"nixgen/internal/model"
	"nixgen/internal/platform"
	"nixgen/internal/run"
	"nixgen/pkg/diff"
)

// Report is the outcome of comparing a candidate closure against the closure
// it would replace. A report is always produced; when no meaningful
// comparison exists the Note says why.
type Report struct {
	// Compared is true when an actual package-level comparison ran.
	Compared bool
	// HasChanges reports whether the candidate differs from the previous
	// closure. Derived from store path identity, so it is meaningful even
	// when the rendering tool is unavailable.
	HasChanges bool
	// Rendered holds the human-readable comparison when Compared is true.
	Rendered string
	// HostnameMismatch flags a comparison whose previous closure belongs to
	// a different machine, where the package delta can mislead.
	HostnameMismatch bool
	// Note explains an absent or degraded comparison.
	Note string
}

// Differ renders closure comparisons through an external package-diff tool.
// Comparison is advisory: a Differ never fails the pipeline, it degrades to
// a report that says what went wrong.
type Differ struct {
	Log *logger.Logger

	// Tool names the external diff renderer. Empty means "nvd".
	Tool string
	// ToolArgs precede the two store paths. Empty means ["diff"].
	ToolArgs []string

	// LookPath is injectable for tests; nil uses exec.LookPath.
	LookPath func(string) (string, error)
}

func (d *Differ) tool() (string, []string) {
	name := d.Tool
	if name == "" {
		name = "nvd"
	}
	args := d.ToolArgs
	if args == nil {
		args = []string{"diff"}
	}
	return name, args
}

func (d *Differ) lookPath(name string) (string, error) {
	if d.LookPath != nil {
		return d.LookPath(name)
	}
	return exec.LookPath(name)
}

// Compare produces the report for replacing previous with candidate.
// previous may be nil when no earlier closure exists. currentHostname and
// targetHostname gate the mismatch flag for machine-bound closures.
func (d *Differ) Compare(ctx context.Context, previous *model.Closure, candidate model.Closure, currentHostname, targetHostname string) Report {
	if previous == nil {
		return Report{Note: "no previous closure to compare against"}
	}
	if !previous.ComparableWith(candidate) {
		return Report{Note: fmt.Sprintf("previous closure is a %s configuration, not comparable", previous.Platform)}
	}
	if previous.Path == candidate.Path {
		return Report{Compared: true, Note: "no changes"}
	}

	report := Report{HasChanges: true}
	if candidate.Platform == platform.OS && currentHostname != "" && targetHostname != "" && currentHostname != targetHostname {
		report.HostnameMismatch = true
		d.Log.Warn(fmt.Sprintf("comparing against the %s generation while building for %s", currentHostname, targetHostname))
	}

	name, args := d.tool()
	toolPath, err := d.lookPath(name)
	if err != nil {
		if rendered, fallbackErr := d.referenceDiff(ctx, *previous, candidate); fallbackErr == nil {
			report.Compared = true
			report.Rendered = rendered
			report.Note = fmt.Sprintf("%s not found on PATH, showing raw store references", name)
			return report
		}
		report.Note = fmt.Sprintf("%s not found on PATH, skipping package comparison", name)
		d.Log.Warn(report.Note)
		return report
	}

	argv := append(append([]string{}, args...), previous.Path, candidate.Path)
	rendered, err := run.Capture(run.Command(ctx, toolPath, argv...))
	if err != nil {
		report.Note = fmt.Sprintf("package comparison failed: %v", err)
		d.Log.Warn(report.Note)
		return report
	}

	report.Compared = true
	report.Rendered = rendered
	return report
}

// referenceDiff is the fallback comparison: a unified diff of the sorted
// store references of both closures. Coarser than a package-level tool, but
// it needs nothing beyond the store itself.
func (d *Differ) referenceDiff(ctx context.Context, previous, candidate model.Closure) (string, error) {
	before, err := storeReferences(ctx, previous.Path)
	if err != nil {
		return "", err
	}
	after, err := storeReferences(ctx, candidate.Path)
	if err != nil {
		return "", err
	}
	return diff.Unified(before, after, previous.Path, candidate.Path), nil
}

func storeReferences(ctx context.Context, path string) (string, error) {
	out, err := run.Capture(run.Command(ctx, "nix-store", "-q", "--references", path))
	if err != nil {
		return "", err
	}
	lines := strings.Split(out, "\n")
	sort.Strings(lines)
	return strings.Join(lines, "\n") + "\n", nil
}
