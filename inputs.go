package runner

import (
	"context"
	"fmt"
	"strings"

	"github.com/agentcanvas/runner/script"
)

// resolveFormInputs produces the per-run form input values from the entry
// node's declared fields and the values the user supplied. Supplied values
// win; otherwise a field's default applies. String defaults may embed
// ${...} expressions, resolved here when a compiler is available. A
// required field with neither value nor default aborts the session.
func resolveFormInputs(ctx context.Context, graph *Graph, provided map[string]any, compiler script.Compiler) (map[string]any, error) {
	entry := graph.EntryNode()
	if entry == nil {
		if len(provided) > 0 {
			return nil, fmt.Errorf("graph has no start node declaring form inputs")
		}
		return map[string]any{}, nil
	}

	inputs := make(map[string]any, len(entry.Fields))
	for _, field := range entry.Fields {
		if value, ok := provided[field.Name]; ok {
			inputs[field.Name] = value
			continue
		}
		if field.Default == nil {
			if field.Required {
				return nil, fmt.Errorf("input %q is required", field.Name)
			}
			continue
		}
		value, err := resolveDefault(ctx, field.Default, compiler)
		if err != nil {
			return nil, fmt.Errorf("input %q: %w", field.Name, err)
		}
		inputs[field.Name] = value
	}

	for name := range provided {
		if _, ok := inputs[name]; !ok {
			return nil, fmt.Errorf("unknown input %q", name)
		}
	}
	return inputs, nil
}

// resolveDefault evaluates a field default. Only string defaults carrying
// a ${...} expression are templated; everything else passes through.
func resolveDefault(ctx context.Context, value any, compiler script.Compiler) (any, error) {
	raw, ok := value.(string)
	if !ok || compiler == nil || !strings.Contains(raw, "${") {
		return value, nil
	}
	return script.EvalString(ctx, compiler, raw, nil)
}
