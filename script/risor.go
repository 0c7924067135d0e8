package script

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/risor-io/risor"
	"github.com/risor-io/risor/compiler"
	"github.com/risor-io/risor/modules/all"
	"github.com/risor-io/risor/object"
	"github.com/risor-io/risor/parser"
)

type RisorScript struct {
	engine *RisorScriptingEngine
	code   *compiler.Code
}

func (s *RisorScript) Evaluate(ctx context.Context, globals map[string]any) (Value, error) {
	combinedGlobals := make(map[string]any)
	for name, value := range s.engine.globals {
		combinedGlobals[name] = value
	}
	for name, value := range globals {
		combinedGlobals[name] = value
	}
	value, err := risor.EvalCode(ctx, s.code, risor.WithGlobals(combinedGlobals))
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate expression: %w", err)
	}
	return &RisorValue{obj: value}, nil
}

// RisorScriptingEngine compiles expressions with a fixed set of globals
// available to every evaluation.
type RisorScriptingEngine struct {
	globals map[string]any
}

func NewRisorScriptingEngine(globals map[string]any) *RisorScriptingEngine {
	return &RisorScriptingEngine{globals: globals}
}

func (e *RisorScriptingEngine) Compile(ctx context.Context, code string) (Script, error) {
	ast, err := parser.Parse(ctx, code)
	if err != nil {
		return nil, err
	}

	var globalNames []string
	for name := range e.globals {
		globalNames = append(globalNames, name)
	}
	sort.Strings(globalNames)

	compiledCode, err := compiler.Compile(ast, compiler.WithGlobalNames(globalNames))
	if err != nil {
		return nil, err
	}
	return &RisorScript{engine: e, code: compiledCode}, nil
}

// DefaultRisorGlobals returns the builtins exposed to form-input default
// expressions.
func DefaultRisorGlobals() map[string]any {
	globals := map[string]any{}
	for name, value := range all.Builtins() {
		globals[name] = value
	}
	return globals
}

type RisorValue struct {
	obj object.Object
}

func (value *RisorValue) Value() any {
	return convertObject(value.obj)
}

func (value *RisorValue) IsTruthy() bool {
	switch obj := value.obj.(type) {
	case *object.Bool:
		return obj.Value()
	case *object.Int:
		return obj.Value() != 0
	case *object.Float:
		return obj.Value() != 0.0
	case *object.List:
		return len(obj.Value()) > 0
	case *object.Map:
		return len(obj.Value()) > 0
	case *object.String:
		val := obj.Value()
		return val != "" && strings.ToLower(val) != "false"
	default:
		return obj.IsTruthy()
	}
}

func (value *RisorValue) String() string {
	switch v := value.obj.(type) {
	case *object.String:
		return v.Value()
	case *object.Int:
		return fmt.Sprintf("%d", v.Value())
	case *object.Float:
		return fmt.Sprintf("%g", v.Value())
	case *object.Bool:
		return fmt.Sprintf("%t", v.Value())
	case *object.Time:
		return v.Value().Format(time.RFC3339)
	case *object.NilType:
		return ""
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprintf("%v", value.obj)
	}
}

// convertObject converts a Risor object to a plain Go value
func convertObject(obj object.Object) any {
	switch o := obj.(type) {
	case *object.String:
		return o.Value()
	case *object.Int:
		return o.Value()
	case *object.Float:
		return o.Value()
	case *object.Bool:
		return o.Value()
	case *object.Time:
		return o.Value()
	case *object.NilType:
		return nil
	case *object.List:
		var result []any
		for _, item := range o.Value() {
			result = append(result, convertObject(item))
		}
		return result
	case *object.Map:
		result := make(map[string]any)
		for key, value := range o.Value() {
			result[key] = convertObject(value)
		}
		return result
	case *object.Set:
		var result []any
		for _, item := range o.Value() {
			result = append(result, convertObject(item))
		}
		return result
	default:
		// Fallback to string representation
		return obj.Inspect()
	}
}
