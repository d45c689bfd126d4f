package elevate

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	nixgenerrors "nixgen/pkg/errors"
)

func staticEnv(vars map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		val, ok := vars[key]
		return val, ok
	}
}

func TestEnsureNotRootRefusesRoot(t *testing.T) {
	t.Parallel()

	coord := &Coordinator{EffectiveUID: func() int { return 0 }}

	err := coord.EnsureNotRoot()
	require.Error(t, err)

	var elevErr *nixgenerrors.ElevationError
	require.ErrorAs(t, err, &elevErr)
}

func TestEnsureNotRootAllowsRegularUser(t *testing.T) {
	t.Parallel()

	coord := &Coordinator{EffectiveUID: func() int { return 1000 }}
	require.NoError(t, coord.EnsureNotRoot())
}

func TestEnvironmentForwardsOnlyAllowListedVariables(t *testing.T) {
	t.Parallel()

	ambient := map[string]string{
		"PATH":         "/usr/bin",
		"LANG":         "en_US.UTF-8",
		"HOME":         "/home/alice",
		"USER":         "alice",
		"NIX_SSHOPTS":  "-p 2222",
		"SECRET_TOKEN": "hunter2",
		"EDITOR":       "vi",
	}
	coord := &Coordinator{
		AllowList: []string{"NIX_SSHOPTS", "MISSING_VAR"},
		LookupEnv: staticEnv(ambient),
	}

	env := coord.Environment(true)

	assert.Contains(t, env, "PATH=/usr/bin")
	assert.Contains(t, env, "LANG=en_US.UTF-8")
	assert.Contains(t, env, "NIX_SSHOPTS=-p 2222")

	for _, entry := range env {
		key, _, _ := strings.Cut(entry, "=")
		assert.NotEqual(t, "SECRET_TOKEN", key)
		assert.NotEqual(t, "EDITOR", key)
		assert.NotEqual(t, "MISSING_VAR", key)
		// Elevated children get HOME from the elevation wrapper, not from
		// the invoking user.
		assert.NotEqual(t, "HOME", key)
		assert.NotEqual(t, "USER", key)
	}
}

func TestEnvironmentKeepsCallerIdentityWhenUnelevated(t *testing.T) {
	t.Parallel()

	coord := &Coordinator{
		LookupEnv: staticEnv(map[string]string{
			"PATH": "/usr/bin",
			"HOME": "/home/alice",
			"USER": "alice",
		}),
	}

	env := coord.Environment(false)

	assert.Contains(t, env, "HOME=/home/alice")
	assert.Contains(t, env, "USER=alice")
}

func TestEnvironmentIsSortedAndDeterministic(t *testing.T) {
	t.Parallel()

	coord := &Coordinator{
		AllowList: []string{"B_VAR", "A_VAR"},
		LookupEnv: staticEnv(map[string]string{
			"PATH":  "/usr/bin",
			"A_VAR": "1",
			"B_VAR": "2",
		}),
	}

	first := coord.Environment(true)
	second := coord.Environment(true)

	require.Equal(t, first, second)
	assert.Equal(t, []string{"A_VAR=1", "B_VAR=2", "PATH=/usr/bin"}, first)
}

func TestSudoVectorScrubsInheritedEnvironment(t *testing.T) {
	t.Parallel()

	coord := &Coordinator{
		AllowList:   []string{"NIX_SSHOPTS"},
		AskpassPath: "/usr/libexec/askpass",
		LookupEnv: staticEnv(map[string]string{
			"PATH":        "/usr/bin",
			"NIX_SSHOPTS": "-p 2222",
		}),
	}

	argv := coord.sudoArgv([]string{"/closure/bin/switch-to-configuration", "test"})

	assert.Equal(t, []string{
		"--set-home", "-A",
		"env", "-i",
		"NIX_SSHOPTS=-p 2222", "PATH=/usr/bin",
		"/closure/bin/switch-to-configuration", "test",
	}, argv)
}

func TestRunExecutesDirectlyWhenAlreadyRoot(t *testing.T) {
	dir := t.TempDir()
	outFile := filepath.Join(dir, "env.txt")

	script := filepath.Join(dir, "dump-env")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\nenv > \""+outFile+"\"\n"), 0o755))

	coord := &Coordinator{
		AllowList:    []string{"NIXGEN_TEST_FORWARDED"},
		EffectiveUID: func() int { return 0 },
		LookupEnv: staticEnv(map[string]string{
			"PATH":                  os.Getenv("PATH"),
			"NIXGEN_TEST_FORWARDED": "yes",
			"NIXGEN_TEST_DROPPED":   "no",
		}),
	}

	require.NoError(t, coord.Run(context.Background(), []string{script}, ""))

	data, err := os.ReadFile(outFile)
	require.NoError(t, err)

	childEnv := string(data)
	assert.Contains(t, childEnv, "NIXGEN_TEST_FORWARDED=yes")
	assert.NotContains(t, childEnv, "NIXGEN_TEST_DROPPED")
}

func TestRunRejectsEmptyCommand(t *testing.T) {
	t.Parallel()

	coord := &Coordinator{EffectiveUID: func() int { return 0 }}

	err := coord.Run(context.Background(), nil, "")
	require.Error(t, err)

	var elevErr *nixgenerrors.ElevationError
	require.ErrorAs(t, err, &elevErr)
}

func TestRunUnprivilegedWrapsFailure(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "fail")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\necho 'activation failed' >&2\nexit 3\n"), 0o755))

	coord := &Coordinator{
		EffectiveUID: func() int { return 1000 },
		LookupEnv:    staticEnv(map[string]string{"PATH": os.Getenv("PATH")}),
	}

	err := coord.RunUnprivileged(context.Background(), []string{script}, "activating configuration")
	require.Error(t, err)

	var elevErr *nixgenerrors.ElevationError
	require.ErrorAs(t, err, &elevErr)
	assert.Contains(t, elevErr.Message, "activation failed")
}
