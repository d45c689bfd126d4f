package installable

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nixgen/internal/logger"
	"nixgen/internal/platform"
	nixgenerrors "nixgen/pkg/errors"
)

func newTestResolver(t *testing.T) *Resolver {
	t.Helper()
	log, err := logger.New(logger.Options{Level: "error"})
	require.NoError(t, err)
	return &Resolver{
		Log:      log,
		Hostname: func() (string, error) { return "testhost", nil },
		Username: func() string { return "alice" },
	}
}

func clearEnv(t *testing.T) {
	t.Helper()
	// Empty values are treated as unset by the resolver.
	for _, v := range []string{"NIXGEN_OS_FLAKE", "NIXGEN_HOME_FLAKE", "NIXGEN_DARWIN_FLAKE", "NIXGEN_FLAKE", "FLAKE"} {
		t.Setenv(v, "")
	}
}

func TestResolvePrecedenceExplicitFlagWins(t *testing.T) {
	clearEnv(t)
	t.Setenv("NIXGEN_OS_FLAKE", "/env/os#envhost")
	t.Setenv("NIXGEN_FLAKE", "/env/generic")

	r := newTestResolver(t)
	target, err := r.Resolve(context.Background(), Input{Installable: "/cli/flake"}, platform.OS, "toplevel", nil)
	require.NoError(t, err)
	assert.Equal(t, "/cli/flake", target.Installable.Reference)
	assert.Equal(t,
		[]string{"nixosConfigurations", "testhost", "config", "system", "build", "toplevel"},
		target.Installable.Attribute)
}

func TestResolvePrecedencePlatformEnvBeatsGeneric(t *testing.T) {
	clearEnv(t)
	t.Setenv("NIXGEN_OS_FLAKE", "/env/os")
	t.Setenv("NIXGEN_FLAKE", "/env/generic")

	r := newTestResolver(t)
	target, err := r.Resolve(context.Background(), Input{}, platform.OS, "toplevel", nil)
	require.NoError(t, err)
	assert.Equal(t, "/env/os", target.Installable.Reference)
}

func TestResolveGenericEnvFallback(t *testing.T) {
	clearEnv(t)
	t.Setenv("NIXGEN_FLAKE", "/env/generic")

	r := newTestResolver(t)
	target, err := r.Resolve(context.Background(), Input{}, platform.OS, "toplevel", nil)
	require.NoError(t, err)
	assert.Equal(t, "/env/generic", target.Installable.Reference)
}

func TestResolveLegacyAliasAdoptedWithSingleWarning(t *testing.T) {
	clearEnv(t)
	t.Setenv("FLAKE", "/legacy/flake")

	r := newTestResolver(t)

	first, err := r.Resolve(context.Background(), Input{}, platform.OS, "toplevel", nil)
	require.NoError(t, err)
	second, err := r.Resolve(context.Background(), Input{}, platform.OS, "toplevel", nil)
	require.NoError(t, err)

	// Idempotent adoption: same resolved value both times, warning state
	// latched after the first.
	assert.Equal(t, first.Installable, second.Installable)
	assert.Equal(t, "/legacy/flake", first.Installable.Reference)
	assert.True(t, r.legacyWarned)
}

func TestResolveNoTargetSpecified(t *testing.T) {
	clearEnv(t)

	r := newTestResolver(t)
	_, err := r.Resolve(context.Background(), Input{}, platform.OS, "toplevel", nil)
	require.Error(t, err)

	var resolveErr *nixgenerrors.ResolveError
	require.ErrorAs(t, err, &resolveErr)
	assert.ErrorIs(t, err, nixgenerrors.ErrNoTargetSpecified)
}

func TestResolveExplicitAttributeSkipsConfigSelection(t *testing.T) {
	clearEnv(t)

	r := newTestResolver(t)
	target, err := r.Resolve(context.Background(), Input{Installable: "/f#myConfigs.special"}, platform.OS, "toplevel", nil)
	require.NoError(t, err)
	assert.Equal(t,
		[]string{"myConfigs", "special", "config", "system", "build", "toplevel"},
		target.Installable.Attribute)
}

func TestResolveHostnameOverride(t *testing.T) {
	clearEnv(t)

	r := newTestResolver(t)
	target, err := r.Resolve(context.Background(), Input{Installable: "/f", Hostname: "otherhost"}, platform.OS, "vm", nil)
	require.NoError(t, err)
	assert.Equal(t, "otherhost", target.Hostname)
	assert.Equal(t,
		[]string{"nixosConfigurations", "otherhost", "config", "system", "build", "vm"},
		target.Installable.Attribute)
}

func TestResolveHomeAutoDetection(t *testing.T) {
	clearEnv(t)

	var probed []string
	r := newTestResolver(t)
	r.ConfigExists = func(_ context.Context, _ Installable, name string) (bool, error) {
		probed = append(probed, name)
		return name == "alice", nil
	}

	target, err := r.Resolve(context.Background(), Input{Installable: "/f"}, platform.Home, "toplevel", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice@testhost", "alice"}, probed)
	assert.Equal(t,
		[]string{"homeConfigurations", "alice", "config", "home", "activationPackage"},
		target.Installable.Attribute)
}

func TestResolveHomeExplicitConfigurationNotFound(t *testing.T) {
	clearEnv(t)

	r := newTestResolver(t)
	r.ConfigExists = func(context.Context, Installable, string) (bool, error) { return false, nil }

	_, err := r.Resolve(context.Background(), Input{Installable: "/f", Configuration: "bob"}, platform.Home, "toplevel", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"bob"`)
}

func TestResolveExtraArgsPassThrough(t *testing.T) {
	clearEnv(t)

	r := newTestResolver(t)
	extra := []string{"--option", "sandbox", "false"}
	target, err := r.Resolve(context.Background(), Input{Installable: "/f"}, platform.OS, "toplevel", extra)
	require.NoError(t, err)
	assert.Equal(t, extra, target.ExtraArgs)
}

func TestResolveSettingsFallbackIsLast(t *testing.T) {
	clearEnv(t)
	t.Setenv("NIXGEN_FLAKE", "/env/generic")

	r := newTestResolver(t)
	target, err := r.Resolve(context.Background(), Input{Fallback: "/settings/flake"}, platform.OS, "toplevel", nil)
	require.NoError(t, err)
	assert.Equal(t, "/env/generic", target.Installable.Reference)
}

func TestResolveSettingsFallbackUsedWhenNothingElseSet(t *testing.T) {
	clearEnv(t)

	r := newTestResolver(t)
	target, err := r.Resolve(context.Background(), Input{Fallback: "/settings/flake"}, platform.OS, "toplevel", nil)
	require.NoError(t, err)
	assert.Equal(t, "/settings/flake", target.Installable.Reference)
}
