package workflow

import "fmt"

// CycleError reports that TopologicalSort could not fully drain the graph;
// Residual names the nodes left over once no zero-in-degree node remained.
type CycleError struct {
	Residual []NodeID
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("workflow: cycle detected among %d residual nodes", len(e.Residual))
}

// Graph is the node/edge arena for one materialized workflow plan. NodeID
// and EdgeID index directly into nodes/edges — per spec.md §9, nothing in
// this package holds a raw pointer across the arena boundary.
type Graph struct {
	nodes    []*Node
	edges    []*Edge
	nameToID map[string]NodeID
	outEdges map[NodeID][]EdgeID
	inEdges  map[NodeID][]EdgeID
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{
		nameToID: make(map[string]NodeID),
		outEdges: make(map[NodeID][]EdgeID),
		inEdges:  make(map[NodeID][]EdgeID),
	}
}

// AddNode appends a new node and returns its arena ID. Duplicate names
// overwrite the name index entry (the last-added node with a given name
// wins), mirroring how the teacher's DAG config resolves duplicate step
// names last-wins.
//
// Rejects a node declared is_container without a container_config —
// invariant (d) — rather than letting it reach the engine and silently
// dispatch as an ordinary node.
func (g *Graph) AddNode(def NodeDefinition) (NodeID, error) {
	id := NodeID(len(g.nodes))
	n := &Node{
		ID:       id,
		Name:     def.Name,
		Type:     def.Type,
		Config:   def.Config,
		ParentID: InvalidNodeID,
	}
	if n.IsContainer() {
		if _, ok := n.ContainerConfig(); !ok {
			return InvalidNodeID, &ExecutionError{Component: "Graph", Action: "AddNode", Message: fmt.Sprintf("node %q declared is_container without container_config", def.Name)}
		}
	}
	g.nodes = append(g.nodes, n)
	g.nameToID[def.Name] = id
	return id, nil
}

// NodeByName resolves a planner-local node name to its arena ID.
func (g *Graph) NodeByName(name string) (NodeID, bool) {
	id, ok := g.nameToID[name]
	return id, ok
}

// Node returns the node at id, or nil if id is out of range.
func (g *Graph) Node(id NodeID) *Node {
	if int(id) < 0 || int(id) >= len(g.nodes) {
		return nil
	}
	return g.nodes[id]
}

// Nodes returns every resident node in insertion order.
func (g *Graph) Nodes() []*Node { return g.nodes }

// AddEdge resolves def's SourceName/TargetName against the graph's name
// index. An unresolved endpoint is a validation error — per spec.md §3 it
// must never be silently dropped.
func (g *Graph) AddEdge(def EdgeDefinition) (EdgeID, error) {
	src, ok := g.nameToID[def.SourceName]
	if !ok {
		return 0, &ExecutionError{Component: "Graph", Action: "AddEdge", Message: fmt.Sprintf("unknown source node %q", def.SourceName)}
	}
	dst, ok := g.nameToID[def.TargetName]
	if !ok {
		return 0, &ExecutionError{Component: "Graph", Action: "AddEdge", Message: fmt.Sprintf("unknown target node %q", def.TargetName)}
	}

	id := EdgeID(len(g.edges))
	g.edges = append(g.edges, &Edge{ID: id, SourceID: src, TargetID: dst, Condition: def.Condition})
	g.outEdges[src] = append(g.outEdges[src], id)
	g.inEdges[dst] = append(g.inEdges[dst], id)
	return id, nil
}

// Edge returns the edge at id.
func (g *Graph) Edge(id EdgeID) *Edge { return g.edges[id] }

// InEdges returns every edge whose TargetID is id.
func (g *Graph) InEdges(id NodeID) []*Edge {
	ids := g.inEdges[id]
	out := make([]*Edge, 0, len(ids))
	for _, eid := range ids {
		out = append(out, g.edges[eid])
	}
	return out
}

// OutEdges returns every edge whose SourceID is id.
func (g *Graph) OutEdges(id NodeID) []*Edge {
	ids := g.outEdges[id]
	out := make([]*Edge, 0, len(ids))
	for _, eid := range ids {
		out = append(out, g.edges[eid])
	}
	return out
}

// SetParent records a hierarchical parent/child relationship used by
// hierarchical execution (spec.md §3): children run in definition order,
// then the parent itself runs with their combined output as input.
func (g *Graph) SetParent(child, parent NodeID) {
	g.nodes[child].ParentID = parent
	g.nodes[parent].Children = append(g.nodes[parent].Children, child)
}

// TopologicalSort runs Kahn's algorithm over edges only (parent/child
// hierarchy is orthogonal and handled by the engine's hierarchical
// expansion), returning waves of nodes that can run concurrently: every
// node in wave N depends only on nodes in waves before it. Ties within a
// wave are broken by arena insertion order, making scheduling deterministic
// across runs — spec.md §4.6.
func (g *Graph) TopologicalSort() ([][]NodeID, error) {
	inDegree := make([]int, len(g.nodes))
	for _, e := range g.edges {
		inDegree[e.TargetID]++
	}

	visited := make([]bool, len(g.nodes))
	remaining := len(g.nodes)
	var waves [][]NodeID

	for remaining > 0 {
		var wave []NodeID
		for i := 0; i < len(g.nodes); i++ {
			id := NodeID(i)
			if !visited[id] && inDegree[id] == 0 {
				wave = append(wave, id)
			}
		}
		if len(wave) == 0 {
			var residual []NodeID
			for i := 0; i < len(g.nodes); i++ {
				id := NodeID(i)
				if !visited[id] {
					residual = append(residual, id)
				}
			}
			return nil, &CycleError{Residual: residual}
		}

		for _, id := range wave {
			visited[id] = true
			remaining--
			for _, e := range g.OutEdges(id) {
				inDegree[e.TargetID]--
			}
		}
		waves = append(waves, wave)
	}
	return waves, nil
}
