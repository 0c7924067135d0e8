package script

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

var exprPattern = regexp.MustCompile(`\${([^}]+)}`)

// Template is a string with zero or more embedded ${...} expressions,
// compiled once and evaluated against per-session globals.
type Template struct {
	raw   string
	parts []string
	slots []int // indexes into parts, one per compiled expression
	codes []Script
}

// NewTemplate compiles all ${...} expressions in raw using the given
// compiler. A string with no expressions evaluates to itself.
func NewTemplate(engine Compiler, raw string) (*Template, error) {
	// Every ${ must have a closing brace
	openCount := strings.Count(raw, "${")
	closeCount := strings.Count(raw, "}")
	if openCount > closeCount {
		return nil, fmt.Errorf("unclosed template expression in string: %q", raw)
	}
	if openCount == 0 {
		return &Template{raw: raw}, nil
	}

	matches := exprPattern.FindAllStringSubmatchIndex(raw, -1)
	if len(matches) == 0 {
		return &Template{raw: raw}, nil
	}

	var lastEnd int
	var parts []string
	var slots []int
	var codes []Script
	for _, match := range matches {
		if match[0] > lastEnd {
			parts = append(parts, raw[lastEnd:match[0]])
		}
		expr := raw[match[2]:match[3]]
		code, err := engine.Compile(context.Background(), expr)
		if err != nil {
			return nil, fmt.Errorf("failed to compile template expression %q: %w", expr, err)
		}
		codes = append(codes, code)
		slots = append(slots, len(parts))
		parts = append(parts, "") // placeholder for the evaluated result
		lastEnd = match[1]
	}
	if lastEnd < len(raw) {
		parts = append(parts, raw[lastEnd:])
	}

	return &Template{raw: raw, parts: parts, slots: slots, codes: codes}, nil
}

// Eval evaluates the template's expressions and splices the results back
// into the surrounding text.
func (t *Template) Eval(ctx context.Context, globals map[string]any) (string, error) {
	if len(t.codes) == 0 {
		return t.raw, nil
	}

	parts := make([]string, len(t.parts))
	copy(parts, t.parts)

	for i, code := range t.codes {
		result, err := code.Evaluate(ctx, globals)
		if err != nil {
			return "", fmt.Errorf("failed to evaluate template expression: %w", err)
		}
		parts[t.slots[i]] = result.String()
	}
	return strings.Join(parts, ""), nil
}

// EvalString is a convenience that compiles and evaluates raw in one call.
func EvalString(ctx context.Context, engine Compiler, raw string, globals map[string]any) (string, error) {
	tmpl, err := NewTemplate(engine, raw)
	if err != nil {
		return "", err
	}
	return tmpl.Eval(ctx, globals)
}
