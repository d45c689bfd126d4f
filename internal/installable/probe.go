package installable

import (
	"context"
	"encoding/json"

	"nixgen/internal/run"
)

// AttrNames evaluates the attribute names below the installable's attribute
// path. Used to probe which configurations a flake actually exports.
func AttrNames(ctx context.Context, inst Installable) ([]string, error) {
	ref := inst.Reference + "#" + JoinAttribute(inst.Attribute)
	cmd := run.Command(ctx, "nix", "eval", ref, "--apply", "builtins.attrNames", "--json")

	out, err := run.Capture(cmd)
	if err != nil {
		return nil, err
	}

	var names []string
	if err := json.Unmarshal([]byte(out), &names); err != nil {
		return nil, err
	}
	return names, nil
}

// ConfigProbe adapts AttrNames to the resolver's existence check.
func ConfigProbe(ctx context.Context, flake Installable, name string) (bool, error) {
	names, err := AttrNames(ctx, flake)
	if err != nil {
		// An unprobeable flake falls back to the resolver's defaults rather
		// than failing resolution outright.
		return false, err
	}
	for _, candidate := range names {
		if candidate == name {
			return true, nil
		}
	}
	return false, nil
}
