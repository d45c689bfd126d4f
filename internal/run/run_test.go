package run

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamingSuccess(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("POSIX shell assumptions do not hold on Windows")
	}

	var stdout bytes.Buffer
	cmd := exec.Command("echo", "hello world")
	cmd.Stdout = &stdout

	result, err := Streaming(cmd)
	require.NoError(t, err)
	assert.Equal(t, "hello world", result.Stdout)
	assert.Equal(t, "hello world\n", stdout.String())
	assert.Equal(t, "", result.Stderr)
}

func TestStreamingFailureCapturesStderr(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("POSIX shell assumptions do not hold on Windows")
	}

	var stderr bytes.Buffer
	cmd := exec.Command("sh", "-c", "echo 'boom' >&2; exit 3")
	cmd.Stderr = &stderr

	result, err := Streaming(cmd)
	require.Error(t, err)
	assert.Equal(t, "boom", result.Stderr)
	assert.Equal(t, 3, ExitCode(err))
}

func TestCapture(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("POSIX shell assumptions do not hold on Windows")
	}

	out, err := Capture(Command(context.Background(), "sh", "-c", "echo '  trimmed  '"))
	require.NoError(t, err)
	assert.Equal(t, "trimmed", out)
}

func TestPrimaryOutputPrefersStderr(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "err", PrimaryOutput(Result{Stdout: "out", Stderr: "err"}))
	assert.Equal(t, "out", PrimaryOutput(Result{Stdout: "out"}))
}

func TestTail(t *testing.T) {
	t.Parallel()

	assert.Nil(t, Tail("", 5))
	assert.Equal(t, []string{"c", "d"}, Tail("a\nb\nc\nd", 2))
	assert.Equal(t, []string{"a", "b"}, Tail("a\n\n\nb\n", 5))
	assert.Nil(t, Tail("a\nb", 0))
}

func TestExitCodeNonExec(t *testing.T) {
	t.Parallel()

	assert.Equal(t, -1, ExitCode(errors.New("not an exit error")))
}
