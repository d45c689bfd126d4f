package installable

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Kind distinguishes the forms of configuration reference the build tool
// accepts.
type Kind int

const (
	// Flake is a flake-style reference with an optional attribute path.
	Flake Kind = iota
	// File is a legacy path-based reference.
	File
	// Expression is an inline expression reference.
	Expression
	// Store is an already-built store path.
	Store
)

func (k Kind) String() string {
	switch k {
	case Flake:
		return "flake"
	case File:
		return "file"
	case Expression:
		return "expression"
	case Store:
		return "store path"
	default:
		return "unknown"
	}
}

// Installable is a configuration location plus an optional attribute path
// selecting a named configuration. Immutable once constructed; use WithAttribute
// to derive extended references.
type Installable struct {
	Kind       Kind
	Reference  string
	Path       string
	Expression string
	Attribute  []string
}

// ParseFlakeRef splits a "reference#attribute.path" string into a flake
// installable. The attribute part is optional.
func ParseFlakeRef(s string) (Installable, error) {
	reference, attr, _ := strings.Cut(s, "#")
	attribute, err := ParseAttribute(attr)
	if err != nil {
		return Installable{}, err
	}
	return Installable{Kind: Flake, Reference: reference, Attribute: attribute}, nil
}

// FromStorePath returns a store installable when the path resolves inside the
// store, and false otherwise.
func FromStorePath(path string) (Installable, bool) {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return Installable{}, false
	}
	if !strings.HasPrefix(resolved, "/nix/store/") {
		return Installable{}, false
	}
	return Installable{Kind: Store, Path: resolved}, true
}

// WithAttribute returns a copy with the given elements appended to the
// attribute path.
func (i Installable) WithAttribute(elems ...string) Installable {
	attr := make([]string, 0, len(i.Attribute)+len(elems))
	attr = append(attr, i.Attribute...)
	attr = append(attr, elems...)
	out := i
	out.Attribute = attr
	return out
}

// ToArgs renders the installable as builder command-line arguments.
func (i Installable) ToArgs() []string {
	switch i.Kind {
	case File:
		return []string{"--file", i.Path, JoinAttribute(i.Attribute)}
	case Expression:
		return []string{"--expr", i.Expression, JoinAttribute(i.Attribute)}
	case Store:
		return []string{i.Path}
	default:
		return []string{fmt.Sprintf("%s#%s", i.Reference, JoinAttribute(i.Attribute))}
	}
}

// ParseAttribute splits a dotted attribute path into its elements. Quoted
// elements may contain dots: `foo."bar.baz"` parses as ["foo", "bar.baz"].
func ParseAttribute(s string) ([]string, error) {
	if s == "" {
		return nil, nil
	}

	var (
		res     []string
		elem    strings.Builder
		inQuote bool
	)
	for _, ch := range s {
		switch ch {
		case '.':
			if inQuote {
				elem.WriteRune(ch)
			} else {
				res = append(res, elem.String())
				elem.Reset()
			}
		case '"':
			inQuote = !inQuote
		default:
			elem.WriteRune(ch)
		}
	}
	if inQuote {
		return nil, fmt.Errorf("unterminated quote in attribute path %q", s)
	}

	res = append(res, elem.String())
	return res, nil
}

// JoinAttribute renders an attribute path back into dotted form, quoting
// elements that themselves contain dots.
func JoinAttribute(attribute []string) string {
	var sb strings.Builder
	for idx, elem := range attribute {
		if idx > 0 {
			sb.WriteByte('.')
		}
		if strings.Contains(elem, ".") {
			fmt.Fprintf(&sb, "%q", elem)
		} else {
			sb.WriteString(elem)
		}
	}
	return sb.String()
}
