package engine

import (
	"fmt"
	"sort"

	"github.com/repcrec/repcrec/internal/types"
)

// Graph is the serialization graph: nodes are transaction IDs, and at most
// one labeled edge exists per ordered pair. A later AddEdge call between
// the same pair overwrites the earlier label, never adds a parallel edge.
type Graph struct {
	adj map[types.TranID]map[types.TranID]types.EdgeType
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{adj: make(map[types.TranID]map[types.TranID]types.EdgeType)}
}

// AddNode inserts t with no outgoing edges if it is not already present.
func (g *Graph) AddNode(t types.TranID) {
	if _, ok := g.adj[t]; !ok {
		g.adj[t] = make(map[types.TranID]types.EdgeType)
	}
}

// RemoveNode deletes t and erases every edge referencing it, incoming or
// outgoing.
func (g *Graph) RemoveNode(t types.TranID) {
	delete(g.adj, t)
	for _, out := range g.adj {
		delete(out, t)
	}
}

// AddEdge labels u->v, overwriting any existing label for that pair. Both
// nodes must already exist; this is a diagnostic error otherwise, never a
// panic.
func (g *Graph) AddEdge(u, v types.TranID, typ types.EdgeType) error {
	if _, ok := g.adj[u]; !ok {
		return fmt.Errorf("engine: add edge %d->%d: node %d not in graph", u, v, u)
	}
	if _, ok := g.adj[v]; !ok {
		return fmt.Errorf("engine: add edge %d->%d: node %d not in graph", u, v, v)
	}
	g.adj[u][v] = typ
	return nil
}

// OutEdges returns a copy of t's outgoing edges.
func (g *Graph) OutEdges(t types.TranID) map[types.TranID]types.EdgeType {
	out := make(map[types.TranID]types.EdgeType, len(g.adj[t]))
	for v, typ := range g.adj[t] {
		out[v] = typ
	}
	return out
}

// InEdges returns every node with an edge pointing at t, and its label.
func (g *Graph) InEdges(t types.TranID) map[types.TranID]types.EdgeType {
	in := make(map[types.TranID]types.EdgeType)
	for u, edges := range g.adj {
		if typ, ok := edges[t]; ok {
			in[u] = typ
		}
	}
	return in
}

// Has reports whether t is a node in the graph.
func (g *Graph) Has(t types.TranID) bool {
	_, ok := g.adj[t]
	return ok
}

// HasCycle reports whether the graph has a validating cycle for target
// under status: a directed cycle where every node other than target is
// Committed in status. A depth-first search from every node explores edge
// (u,v), skipping it outright when v is neither target nor Committed; when
// v is already on the current DFS stack, the path is reconstructed via the
// parent map and every node on it but target is re-checked for Committed
// status before declaring the cycle valid. No edge-type filtering: WW and
// RW edges participate identically.
func (g *Graph) HasCycle(target types.TranID, status map[types.TranID]types.TranStatus) bool {
	visited := make(map[types.TranID]bool)
	onStack := make(map[types.TranID]bool)
	parent := make(map[types.TranID]types.TranID)

	var dfs func(u types.TranID) bool
	dfs = func(u types.TranID) bool {
		visited[u] = true
		onStack[u] = true
		for _, v := range sortedKeys(g.adj[u]) {
			if v != target && status[v] != types.Committed {
				continue
			}
			if onStack[v] {
				if validatingCycle(v, u, parent, target, status) {
					return true
				}
				continue
			}
			if !visited[v] {
				parent[v] = u
				if dfs(v) {
					return true
				}
			}
		}
		onStack[u] = false
		return false
	}

	for _, n := range sortedNodes(g.adj) {
		if !visited[n] {
			if dfs(n) {
				return true
			}
		}
	}
	return false
}

// validatingCycle walks parent from end back to start, confirming every
// node on that path other than target is Committed.
func validatingCycle(start, end types.TranID, parent map[types.TranID]types.TranID, target types.TranID, status map[types.TranID]types.TranStatus) bool {
	cur := end
	path := []types.TranID{end}
	for cur != start {
		p, ok := parent[cur]
		if !ok {
			return false
		}
		cur = p
		path = append(path, cur)
	}
	for _, n := range path {
		if n != target && status[n] != types.Committed {
			return false
		}
	}
	return true
}

func sortedNodes(adj map[types.TranID]map[types.TranID]types.EdgeType) []types.TranID {
	nodes := make([]types.TranID, 0, len(adj))
	for n := range adj {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i] < nodes[j] })
	return nodes
}

func sortedKeys(edges map[types.TranID]types.EdgeType) []types.TranID {
	keys := make([]types.TranID, 0, len(edges))
	for k := range edges {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
