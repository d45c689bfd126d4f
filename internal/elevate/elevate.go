package elevate

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"nixgen/internal/logger"
	"nixgen/internal/run"
	nixgenerrors "nixgen/pkg/errors"
)

// askpassEnvVar configures a helper program for non-interactive credential
// retrieval, exported to the elevation subprocess only.
const askpassEnvVar = "SUDO_ASKPASS"

// Coordinator re-invokes privileged sub-processes with a minimal, explicitly
// constructed environment. It never copies the ambient environment wholesale:
// the child sees the fixed minimal set plus the allow-listed variables that
// are present in the parent, nothing else.
type Coordinator struct {
	Log *logger.Logger

	// AllowList names the ambient variables forwarded across the elevation
	// boundary when present.
	AllowList []string

	// AskpassPath, when set, requests non-interactive password retrieval
	// through the helper at that path.
	AskpassPath string

	// EffectiveUID and LookupEnv are injectable for tests; nil uses the
	// process defaults.
	EffectiveUID func() int
	LookupEnv    func(string) (string, bool)
}

func (c *Coordinator) euid() int {
	if c.EffectiveUID != nil {
		return c.EffectiveUID()
	}
	return os.Geteuid()
}

func (c *Coordinator) lookup(key string) (string, bool) {
	if c.LookupEnv != nil {
		return c.LookupEnv(key)
	}
	return os.LookupEnv(key)
}

// EnsureNotRoot is the safety rail for commands that must never run as the
// highest-privilege account, such as the top-level build step.
func (c *Coordinator) EnsureNotRoot() error {
	if c.euid() == 0 {
		return nixgenerrors.ErrForbiddenAsRoot
	}
	return nil
}

// Environment builds the child environment from scratch: the fixed minimal
// set (PATH, locale, and for unelevated children the invoking user's HOME and
// USER), plus exactly the allow-listed variables present in the parent.
func (c *Coordinator) Environment(elevated bool) []string {
	keep := map[string]string{}

	for _, key := range []string{"PATH", "LANG", "LC_ALL", "LC_CTYPE", "LOCALE_ARCHIVE", "TERM"} {
		if val, ok := c.lookup(key); ok {
			keep[key] = val
		}
	}
	if !elevated {
		// The elevation wrapper sets HOME for the target user itself; only
		// unelevated children inherit the invoking user's identity.
		for _, key := range []string{"HOME", "USER"} {
			if val, ok := c.lookup(key); ok {
				keep[key] = val
			}
		}
	}
	for _, key := range c.AllowList {
		if val, ok := c.lookup(key); ok {
			keep[key] = val
		}
	}

	keys := make([]string, 0, len(keep))
	for key := range keep {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	env := make([]string, 0, len(keys))
	for _, key := range keys {
		env = append(env, key+"="+keep[key])
	}
	return env
}

// Run executes the command vector with elevated rights. When the invoking
// user already holds the required privilege level the command runs directly
// without spawning an elevation wrapper.
func (c *Coordinator) Run(ctx context.Context, argv []string, message string) error {
	if len(argv) == 0 {
		return nixgenerrors.NewElevationError("empty command vector", nil)
	}

	if message != "" {
		c.Log.Info(message)
	}

	if c.euid() == 0 {
		return c.exec(ctx, argv, c.Environment(true), message)
	}

	sudoArgs := c.sudoArgv(argv)

	cmd := run.Command(ctx, "sudo", sudoArgs...)
	// sudo itself needs the ambient PATH plus the askpass location; the
	// elevated command's environment is injected explicitly above.
	cmd.Env = os.Environ()
	if c.AskpassPath != "" {
		cmd.Env = append(cmd.Env, askpassEnvVar+"="+c.AskpassPath)
	}

	c.Log.Debug(fmt.Sprintf("elevating: sudo %s", strings.Join(sudoArgs, " ")))

	result, err := run.Streaming(cmd)
	if err != nil {
		return c.wrapFailure(result, err, message)
	}
	return nil
}

// sudoArgv builds the full elevation vector. env -i clears the environment
// sudo itself passes through, so the child sees exactly the constructed set
// even when sudoers env_keep would preserve more.
func (c *Coordinator) sudoArgv(argv []string) []string {
	sudoArgs := []string{"--set-home"}
	if c.AskpassPath != "" {
		sudoArgs = append(sudoArgs, "-A")
	}
	sudoArgs = append(sudoArgs, "env", "-i")
	sudoArgs = append(sudoArgs, c.Environment(true)...)
	sudoArgs = append(sudoArgs, argv...)
	return sudoArgs
}

// RunUnprivileged executes the command vector as the invoking user with the
// same strictly constructed environment.
func (c *Coordinator) RunUnprivileged(ctx context.Context, argv []string, message string) error {
	if len(argv) == 0 {
		return nixgenerrors.NewElevationError("empty command vector", nil)
	}
	if message != "" {
		c.Log.Info(message)
	}
	return c.exec(ctx, argv, c.Environment(false), message)
}

func (c *Coordinator) exec(ctx context.Context, argv, env []string, message string) error {
	cmd := run.Command(ctx, argv[0], argv[1:]...)
	cmd.Env = env

	result, err := run.Streaming(cmd)
	if err != nil {
		return c.wrapFailure(result, err, message)
	}
	return nil
}

func (c *Coordinator) wrapFailure(result run.Result, err error, message string) error {
	if message == "" {
		message = "command failed"
	}
	if output := run.PrimaryOutput(result); output != "" {
		return nixgenerrors.NewElevationError(fmt.Sprintf("%s: %s", message, output), err)
	}
	return nixgenerrors.NewElevationError(message, err)
}
