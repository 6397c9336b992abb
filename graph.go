package lifecycle

import (
	"fmt"
	"os"
)

// GraphNode represents one component in the dependency graph.
type GraphNode struct {
	ID    string `json:"id"`
	State string `json:"state"`
}

// GraphEdge represents a declared dependency edge, from dependency to
// dependent.
type GraphEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Graph is the complete dependency graph structure, adapted from the
// teacher's graph.go: there it was built by walking reflection-discovered
// parent pointers, here it is built directly from registry entries since
// dependencies are declared names (spec §3), not inferred struct fields.
type Graph struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
}

// BuildGraph constructs a Graph reflecting the manager's current registry
// content and live state.
func (m *Manager) BuildGraph() Graph {
	entries := m.reg.all()
	g := Graph{
		Nodes: make([]GraphNode, 0, len(entries)),
		Edges: make([]GraphEdge, 0),
	}
	for _, e := range entries {
		g.Nodes = append(g.Nodes, GraphNode{ID: e.name, State: e.state.get().String()})
		for _, dep := range e.deps {
			g.Edges = append(g.Edges, GraphEdge{From: dep, To: e.name})
		}
	}
	return g
}

// ToDOT converts the graph to Graphviz DOT format, exactly the format the
// teacher's Graph.ToDOT emits, now annotating each node with its live
// state.
func (g Graph) ToDOT() string {
	var result string
	result += "digraph G {\n"
	result += "  rankdir=TB;\n\n"

	for _, node := range g.Nodes {
		result += fmt.Sprintf("  %q [label=%q, shape=box];\n", node.ID, node.ID+"\\n"+node.State)
	}

	result += "\n"

	for _, edge := range g.Edges {
		result += fmt.Sprintf("  %q -> %q;\n", edge.From, edge.To)
	}

	result += "}\n"
	return result
}

// WriteGraphToFile writes the manager's current dependency graph to path in
// DOT format.
func (m *Manager) WriteGraphToFile(path string) error {
	if path == "" {
		return nil
	}
	dotContent := m.BuildGraph().ToDOT()

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("lifecycle: create graph output file: %w", err)
	}
	defer file.Close()

	if _, err := file.WriteString(dotContent); err != nil {
		return fmt.Errorf("lifecycle: write graph: %w", err)
	}
	return nil
}
