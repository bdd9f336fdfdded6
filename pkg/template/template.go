// Package template renders placeholder manifests. Unlike the helm style
// value templates, these manifests carry __TOKEN__ placeholders which are
// either replaced with a block of text or cause the whole line to be
// dropped, so that optional sections (registry secret, CA bundle, ...)
// disappear cleanly from the generated document.
package template

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

// tokenPattern matches the placeholder syntax, e.g. __REGISTRY_SECRET__.
var tokenPattern = regexp.MustCompile(`__[A-Z0-9_]+__`)

type resolutionKind int

const (
	kindReplace resolutionKind = iota
	kindDelete
)

// Resolution decides what happens to a line containing a token:
// replace the token with a (possibly multi-line) block, or drop the line.
type Resolution struct {
	kind  resolutionKind
	value string
}

// Replace substitutes the token with the given block. A multi-line block
// is re-indented to the column where the token appears.
func Replace(block string) Resolution {
	return Resolution{kind: kindReplace, value: block}
}

// Delete drops every line containing the token.
func Delete() Resolution {
	return Resolution{kind: kindDelete}
}

// IsDelete reports whether the resolution drops the line.
func (r Resolution) IsDelete() bool {
	return r.kind == kindDelete
}

// Value returns the replacement block for a replace resolution.
func (r Resolution) Value() string {
	return r.value
}

// Context maps each token to exactly one resolution.
type Context map[string]Resolution

// Merge returns a copy of the context with the fragments applied on top.
func (c Context) Merge(fragments ...Context) Context {
	merged := Context{}
	for token, resolution := range c {
		merged[token] = resolution
	}
	for _, fragment := range fragments {
		for token, resolution := range fragment {
			merged[token] = resolution
		}
	}
	return merged
}

// Render substitutes tokens in doc according to the context. Tokens without
// a resolution pass through untouched, which also makes rendering an
// already-rendered document a no-op.
func Render(doc string, context Context) string {
	rendered, _ := render(doc, context, false)
	return rendered
}

// RenderStrict behaves like Render but fails if the rendered document still
// contains any token, resolved or not.
func RenderStrict(doc string, context Context) (string, error) {
	return render(doc, context, true)
}

func render(doc string, context Context, strict bool) (string, error) {
	trailingNewline := strings.HasSuffix(doc, "\n")
	lines := strings.Split(strings.TrimSuffix(doc, "\n"), "\n")
	out := make([]string, 0, len(lines))

	// unresolved tokens are tracked while rendering, not by re-scanning the
	// output, so token-shaped text inside a replacement value never trips
	// strict mode
	unresolved := []string{}
	for _, line := range lines {
		kept, rendered, leftover := renderLine(line, context)
		if !kept {
			continue
		}
		out = append(out, rendered...)
		unresolved = append(unresolved, leftover...)
	}

	result := strings.Join(out, "\n")
	if trailingNewline && result != "" {
		result += "\n"
	}

	if strict && len(unresolved) > 0 {
		return "", errors.Errorf("unresolved placeholder %s in rendered manifest", strings.Join(unique(unresolved), ", "))
	}
	return result, nil
}

// renderLine applies resolutions to a single line. It returns false when the
// line is deleted, otherwise the resulting lines (more than one when a token
// expands into a block) together with the tokens the context had no
// resolution for.
func renderLine(line string, context Context) (bool, []string, []string) {
	tokens := tokenPattern.FindAllString(line, -1)
	if len(tokens) == 0 {
		return true, []string{line}, nil
	}

	// a single delete token discards the whole line, whatever else is on it
	for _, token := range tokens {
		if resolution, ok := context[token]; ok && resolution.IsDelete() {
			return false, nil, nil
		}
	}

	current := []string{line}
	unresolved := []string{}
	for _, token := range unique(tokens) {
		resolution, ok := context[token]
		if !ok {
			unresolved = append(unresolved, token)
			continue
		}
		next := make([]string, 0, len(current))
		for _, l := range current {
			next = append(next, expand(l, token, resolution.Value())...)
		}
		current = next
	}
	return true, current, unresolved
}

// expand replaces every occurrence of token in line. Multi-line replacement
// blocks keep the indentation of the placeholder for every block line.
func expand(line, token, block string) []string {
	if !strings.Contains(line, token) {
		return []string{line}
	}
	if !strings.Contains(block, "\n") {
		return []string{strings.ReplaceAll(line, token, block)}
	}

	indent := line[:len(line)-len(strings.TrimLeft(line, " \t"))]
	blockLines := strings.Split(strings.TrimSuffix(block, "\n"), "\n")
	out := []string{strings.ReplaceAll(line, token, blockLines[0])}
	for _, blockLine := range blockLines[1:] {
		out = append(out, indent+blockLine)
	}
	return out
}

func unique(tokens []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if seen[token] {
			continue
		}
		seen[token] = true
		out = append(out, token)
	}
	return out
}

// Validate ensures every token referenced by the context actually follows
// the placeholder syntax, catching typos in step definitions early.
func (c Context) Validate() error {
	for token := range c {
		if !tokenPattern.MatchString(token) || tokenPattern.FindString(token) != token {
			return fmt.Errorf("invalid placeholder token %q, expected __NAME__ syntax", token)
		}
	}
	return nil
}
