package installable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAttribute(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		input string
		want  []string
	}{
		{"empty", "", nil},
		{"simple", "foo.bar", []string{"foo", "bar"}},
		{"quoted dot", `foo."bar.baz"`, []string{"foo", "bar.baz"}},
		{"single", "toplevel", []string{"toplevel"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseAttribute(tc.input)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseAttributeUnterminatedQuote(t *testing.T) {
	t.Parallel()

	_, err := ParseAttribute(`foo."bar`)
	require.Error(t, err)
}

func TestJoinAttribute(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "foo.bar", JoinAttribute([]string{"foo", "bar"}))
	assert.Equal(t, `foo."bar.baz"`, JoinAttribute([]string{"foo", "bar.baz"}))
	assert.Equal(t, "", JoinAttribute(nil))
}

func TestParseFlakeRef(t *testing.T) {
	t.Parallel()

	inst, err := ParseFlakeRef("github:user/repo#host.config")
	require.NoError(t, err)
	assert.Equal(t, Flake, inst.Kind)
	assert.Equal(t, "github:user/repo", inst.Reference)
	assert.Equal(t, []string{"host", "config"}, inst.Attribute)

	inst, err = ParseFlakeRef("/etc/nixos")
	require.NoError(t, err)
	assert.Equal(t, "/etc/nixos", inst.Reference)
	assert.Empty(t, inst.Attribute)
}

func TestToArgs(t *testing.T) {
	t.Parallel()

	flake := Installable{Kind: Flake, Reference: "w", Attribute: []string{"x", "y.z"}}
	assert.Equal(t, []string{`w#x."y.z"`}, flake.ToArgs())

	file := Installable{Kind: File, Path: "w", Attribute: []string{"x", "y.z"}}
	assert.Equal(t, []string{"--file", "w", `x."y.z"`}, file.ToArgs())

	expr := Installable{Kind: Expression, Expression: "import ./x", Attribute: []string{"a"}}
	assert.Equal(t, []string{"--expr", "import ./x", "a"}, expr.ToArgs())

	store := Installable{Kind: Store, Path: "/nix/store/abc"}
	assert.Equal(t, []string{"/nix/store/abc"}, store.ToArgs())
}

func TestWithAttributeDoesNotMutateReceiver(t *testing.T) {
	t.Parallel()

	base := Installable{Kind: Flake, Reference: "w", Attribute: []string{"a"}}
	derived := base.WithAttribute("b", "c")

	assert.Equal(t, []string{"a"}, base.Attribute)
	assert.Equal(t, []string{"a", "b", "c"}, derived.Attribute)
}
