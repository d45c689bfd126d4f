package diff

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnifiedIdenticalContent(t *testing.T) {
	t.Parallel()

	assert.Empty(t, Unified("a\nb\n", "a\nb\n", "before", "after"))
}

func TestUnifiedSingleLineChange(t *testing.T) {
	t.Parallel()

	result := Unified("/nix/store/aaa-hello-2.12\n", "/nix/store/bbb-hello-2.13\n", "before", "after")
	require.NotEmpty(t, result)

	assert.Contains(t, result, "--- before")
	assert.Contains(t, result, "+++ after")
	assert.Contains(t, result, "-/nix/store/aaa-hello-2.12")
	assert.Contains(t, result, "+/nix/store/bbb-hello-2.13")
}

func TestUnifiedKeepsUnchangedContext(t *testing.T) {
	t.Parallel()

	result := Unified("shared\nold\n", "shared\nnew\n", "before", "after")
	assert.Contains(t, result, " shared")
}

func TestUnifiedTruncatesHugeDiffs(t *testing.T) {
	t.Parallel()

	before := strings.Repeat("old line\n", maxDiffLines)
	after := strings.Repeat("new line\n", maxDiffLines)

	result := Unified(before, after, "before", "after")
	assert.Contains(t, result, truncateMessage)
	assert.LessOrEqual(t, len(strings.Split(result, "\n")), maxDiffLines+3)
}
