package runner

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Options are used to configure a graph. This is also the serializable
// document form of a graph, as saved by the editor.
type Options struct {
	ID          string  `json:"id,omitempty" yaml:"id,omitempty"`
	Name        string  `json:"name" yaml:"name"`
	Description string  `json:"description,omitempty" yaml:"description,omitempty"`
	Nodes       []*Node `json:"nodes" yaml:"nodes"`
	Edges       []*Edge `json:"edges,omitempty" yaml:"edges,omitempty"`
}

// Graph is a workflow composed in the visual editor: typed nodes connected
// by edges. The engine only needs the topology; rendering belongs to the
// editor.
type Graph struct {
	id          string
	name        string
	description string
	nodes       []*Node
	edges       []*Edge
	nodesByID   map[string]*Node
}

// NewGraph returns a new Graph configured with the given options.
func NewGraph(opts Options) (*Graph, error) {
	if opts.Name == "" {
		return nil, fmt.Errorf("graph name required")
	}
	if len(opts.Nodes) == 0 {
		return nil, fmt.Errorf("nodes required")
	}

	nodesByID := make(map[string]*Node, len(opts.Nodes))
	for _, node := range opts.Nodes {
		if node.ID == "" {
			return nil, fmt.Errorf("node id required")
		}
		if _, exists := nodesByID[node.ID]; exists {
			return nil, fmt.Errorf("duplicate node id %q", node.ID)
		}
		nodesByID[node.ID] = node
	}
	for _, edge := range opts.Edges {
		if _, ok := nodesByID[edge.Source]; !ok {
			return nil, fmt.Errorf("edge source node %q not found", edge.Source)
		}
		if _, ok := nodesByID[edge.Target]; !ok {
			return nil, fmt.Errorf("edge target node %q not found", edge.Target)
		}
	}

	return &Graph{
		id:          opts.ID,
		name:        opts.Name,
		description: opts.Description,
		nodes:       opts.Nodes,
		edges:       opts.Edges,
		nodesByID:   nodesByID,
	}, nil
}

// ID returns the graph id assigned by the editor, if any.
func (g *Graph) ID() string {
	return g.id
}

// Name returns the graph name.
func (g *Graph) Name() string {
	return g.name
}

// Description returns the graph description.
func (g *Graph) Description() string {
	return g.description
}

// Nodes returns all nodes in the graph.
func (g *Graph) Nodes() []*Node {
	return g.nodes
}

// Edges returns all edges in the graph.
func (g *Graph) Edges() []*Edge {
	return g.edges
}

// GetNode returns a node by id.
func (g *Graph) GetNode(id string) (*Node, bool) {
	node, ok := g.nodesByID[id]
	return node, ok
}

// EntryNode returns the first node of type "start", which declares the run
// form. Returns nil if the graph has no start node.
func (g *Graph) EntryNode() *Node {
	for _, node := range g.nodes {
		if node.Type == NodeTypeStart {
			return node
		}
	}
	return nil
}

// LinkedNodes returns the nodes touched by at least one edge. Only these
// participate in pre-run validation and termination counting.
func (g *Graph) LinkedNodes() []*Node {
	linked := map[string]bool{}
	for _, edge := range g.edges {
		linked[edge.Source] = true
		linked[edge.Target] = true
	}
	nodes := make([]*Node, 0, len(linked))
	for _, node := range g.nodes {
		if linked[node.ID] {
			nodes = append(nodes, node)
		}
	}
	return nodes
}

// LinkedNodeIDs returns the sorted ids of all linked nodes.
func (g *Graph) LinkedNodeIDs() []string {
	nodes := g.LinkedNodes()
	ids := make([]string, 0, len(nodes))
	for _, node := range nodes {
		ids = append(ids, node.ID)
	}
	sort.Strings(ids)
	return ids
}

// ValidateLinkedNodes runs the per-node validation contract over every
// linked node. The first failure is returned.
func (g *Graph) ValidateLinkedNodes() error {
	for _, node := range g.LinkedNodes() {
		if err := node.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Document returns the serializable document form of the graph.
func (g *Graph) Document() Options {
	return Options{
		ID:          g.id,
		Name:        g.name,
		Description: g.description,
		Nodes:       g.nodes,
		Edges:       g.edges,
	}
}

// LoadFile loads a graph from a YAML file
func LoadFile(path string) (*Graph, error) {
	yamlData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read graph file: %w", err)
	}
	var opts Options
	if err := yaml.Unmarshal(yamlData, &opts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal graph file: %w", err)
	}
	return NewGraph(opts)
}

// LoadString loads a graph from a YAML string
func LoadString(data string) (*Graph, error) {
	var opts Options
	if err := yaml.Unmarshal([]byte(data), &opts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal graph document: %w", err)
	}
	return NewGraph(opts)
}
