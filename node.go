package runner

import "fmt"

// Well-known node types the engine assigns meaning to. All other types are
// opaque display/configuration concerns owned by the editor.
const (
	// NodeTypeStart marks the entry node that declares the run form.
	NodeTypeStart = "start"

	// NodeTypeEnd is the terminal marker type. A result batch whose last
	// record carries this type signals the end of a remote run.
	NodeTypeEnd = "end"
)

// FormField declares one input field on the entry node's run form.
type FormField struct {
	Name        string `json:"name" yaml:"name"`
	Type        string `json:"type" yaml:"type"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Required    bool   `json:"required,omitempty" yaml:"required,omitempty"`

	// Default may be a literal value. String defaults may contain ${...}
	// expressions resolved when a session begins.
	Default any `json:"default,omitempty" yaml:"default,omitempty"`
}

// Edge connects two nodes in a graph.
type Edge struct {
	ID     string `json:"id,omitempty" yaml:"id,omitempty"`
	Source string `json:"source" yaml:"source"`
	Target string `json:"target" yaml:"target"`
}

// Key returns a stable identifier for the edge, deriving one from the
// endpoints when the document did not assign an explicit id.
func (e *Edge) Key() string {
	if e.ID != "" {
		return e.ID
	}
	return e.Source + "->" + e.Target
}

// Node is a single node in a workflow graph. Config carries node-specific
// settings the engine treats as opaque beyond required-key validation.
type Node struct {
	ID     string         `json:"id" yaml:"id"`
	Title  string         `json:"title,omitempty" yaml:"title,omitempty"`
	Type   string         `json:"type" yaml:"type"`
	Config map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
	Fields []*FormField   `json:"fields,omitempty" yaml:"fields,omitempty"`
}

// requiredConfigKeys maps node types to config keys that must be present
// for the node to pass validation. Types not listed have no config
// requirements.
var requiredConfigKeys = map[string][]string{
	"agent":     {"model"},
	"llm":       {"model", "prompt"},
	"http":      {"url"},
	"knowledge": {"collection"},
}

// Validate checks the node's individual validation contract. Every linked
// node must pass before a run may be submitted.
func (n *Node) Validate() error {
	if n.ID == "" {
		return fmt.Errorf("node id required")
	}
	if n.Type == "" {
		return fmt.Errorf("node %q: type required", n.ID)
	}
	for _, key := range requiredConfigKeys[n.Type] {
		if _, ok := n.Config[key]; !ok {
			return fmt.Errorf("node %q: missing required config %q", n.ID, key)
		}
	}
	if n.Type == NodeTypeStart {
		seen := map[string]bool{}
		for _, field := range n.Fields {
			if field.Name == "" {
				return fmt.Errorf("node %q: form field name required", n.ID)
			}
			if seen[field.Name] {
				return fmt.Errorf("node %q: duplicate form field %q", n.ID, field.Name)
			}
			seen[field.Name] = true
		}
	}
	return nil
}
