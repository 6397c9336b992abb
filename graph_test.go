package lifecycle

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildGraph_NodesAndEdges(t *testing.T) {
	m := newTestManager()
	m.Register(&mockComponent{name: "db", timeouts: quickTimeouts()})
	m.Register(&mockComponent{name: "web", deps: []string{"db"}, timeouts: quickTimeouts()})

	g := m.BuildGraph()
	require.Len(t, g.Nodes, 2)
	require.Len(t, g.Edges, 1)
	assert.Equal(t, GraphEdge{From: "db", To: "web"}, g.Edges[0])
}

func TestBuildGraph_ReflectsLiveState(t *testing.T) {
	m := newTestManager()
	m.Register(&mockComponent{name: "db", timeouts: quickTimeouts()})
	require.True(t, m.StartAll(context.Background(), StartupOptions{}).Success)

	g := m.BuildGraph()
	require.Len(t, g.Nodes, 1)
	assert.Equal(t, StateRunning.String(), g.Nodes[0].State)
}

func TestGraph_ToDOT(t *testing.T) {
	m := newTestManager()
	m.Register(&mockComponent{name: "db", timeouts: quickTimeouts()})
	m.Register(&mockComponent{name: "web", deps: []string{"db"}, timeouts: quickTimeouts()})

	dot := m.BuildGraph().ToDOT()
	assert.Contains(t, dot, "digraph G {")
	assert.Contains(t, dot, `"db" -> "web";`)
	assert.Contains(t, dot, `"db" [label=`)
}
