package graph

import (
	"slices"

	"github.com/dukex/nodegraph/pkg/models"
)

// Export serializes g into the execution request for session sid. Output
// parameters are left out, and every sink gets its own path.
func Export(sid string, g models.Graph) models.ExportedGraph {
	nodes := make(map[string]*models.Node, len(g.Nodes))
	order := make([]string, 0, len(g.Nodes))

	for _, n := range g.Nodes {
		if n == nil {
			continue
		}

		if _, dup := nodes[n.ID]; !dup {
			order = append(order, n.ID)
		}

		nodes[n.ID] = n
	}

	edges := liveEdges(nodes, g.Edges)

	out := models.ExportedGraph{
		SID:   sid,
		Nodes: make(map[string]models.ExportedNode, len(order)),
		Paths: Paths(order, edges),
	}

	for _, id := range order {
		out.Nodes[id] = exportNode(nodes[id], edges)
	}

	return out
}

// liveEdges drops edges with a missing endpoint.
func liveEdges(nodes map[string]*models.Node, edges []models.Edge) []models.Edge {
	live := make([]models.Edge, 0, len(edges))

	for _, e := range edges {
		_, src := nodes[e.Source]
		_, dst := nodes[e.Target]

		if src && dst {
			live = append(live, e)
		}
	}

	return live
}

func exportNode(n *models.Node, edges []models.Edge) models.ExportedNode {
	params := make(map[string]models.ExportedParam, n.Data.Params.Len())

	n.Data.Params.Each(func(name string, p models.Parameter) {
		if p.IsOutput() {
			return
		}

		ep := models.ExportedParam{
			SourceKey: p.Source,
			Value:     models.CloneValue(p.Value),
			Display:   p.Display,
			Type:      p.Type,
		}

		for _, e := range edges {
			if e.Target == n.ID && e.TargetHandle == name {
				ep.SourceID = e.Source
				ep.SourceKey = e.SourceHandle

				break
			}
		}

		params[name] = ep
	})

	return models.ExportedNode{
		Module: n.Data.Module,
		Action: n.Data.Action,
		Params: params,
	}
}

// Paths returns one execution order per sink, a node nobody is wired from.
// Sinks follow the given node order. Each path walks predecessors depth
// first and lists ancestors before the node. Within a path every node is
// visited once, which also terminates cycles. Shared ancestors are repeated
// across paths.
func Paths(order []string, edges []models.Edge) [][]string {
	hasOutgoing := make(map[string]bool, len(order))
	parents := make(map[string][]string, len(order))

	for _, e := range edges {
		hasOutgoing[e.Source] = true

		if !slices.Contains(parents[e.Target], e.Source) {
			parents[e.Target] = append(parents[e.Target], e.Source)
		}
	}

	paths := [][]string{}

	for _, id := range order {
		if hasOutgoing[id] {
			continue
		}

		paths = append(paths, walkBack(id, parents, map[string]bool{}, nil))
	}

	return paths
}

func walkBack(id string, parents map[string][]string, visited map[string]bool, path []string) []string {
	if visited[id] {
		return path
	}

	visited[id] = true

	for _, p := range parents[id] {
		path = walkBack(p, parents, visited, path)
	}

	return append(path, id)
}
