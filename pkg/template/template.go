// Package template resolves {{nodeId:outputId}} references to upstream outputs.
package template

import (
	"fmt"
	"regexp"
	"strings"
)

var placeholder = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.\-]+):([A-Za-z0-9_.\-]+)\s*\}\}`)

// Ref is one reference found in a template.
type Ref struct {
	NodeID   string
	OutputID string
}

func (r Ref) String() string {
	return r.NodeID + ":" + r.OutputID
}

// LookupFunc returns the value bound to a reference.
type LookupFunc func(ref Ref) (string, error)

// References lists the distinct references in input, in order of first appearance.
func References(input string) []Ref {
	seen := map[Ref]bool{}
	refs := make([]Ref, 0)

	for _, m := range placeholder.FindAllStringSubmatch(input, -1) {
		ref := Ref{NodeID: m[1], OutputID: m[2]}
		if !seen[ref] {
			seen[ref] = true
			refs = append(refs, ref)
		}
	}

	return refs
}

// NeedsTemplating reports whether input holds at least one reference.
func NeedsTemplating(input string) bool {
	return placeholder.MatchString(input)
}

// Render replaces every reference with the value returned by lookup. Each distinct
// reference is looked up once; the first lookup error aborts rendering.
func Render(input string, lookup LookupFunc) (string, error) {
	refs := References(input)
	if len(refs) == 0 {
		return input, nil
	}

	values := make(map[Ref]string, len(refs))

	for _, ref := range refs {
		value, err := lookup(ref)
		if err != nil {
			return "", fmt.Errorf("failed to resolve {{%s}}: %w", ref, err)
		}

		values[ref] = value
	}

	var renderErr error

	out := placeholder.ReplaceAllStringFunc(input, func(match string) string {
		m := placeholder.FindStringSubmatch(match)
		if m == nil {
			return match
		}

		value, ok := values[Ref{NodeID: m[1], OutputID: m[2]}]
		if !ok {
			renderErr = fmt.Errorf("unresolved reference %s", strings.TrimSpace(match))

			return match
		}

		return value
	})

	return out, renderErr
}

// RenderMap renders every value of params.
func RenderMap(params map[string]string, lookup LookupFunc) (map[string]string, error) {
	out := make(map[string]string, len(params))

	for k, v := range params {
		rendered, err := Render(v, lookup)
		if err != nil {
			return nil, fmt.Errorf("parameter %s: %w", k, err)
		}

		out[k] = rendered
	}

	return out, nil
}
