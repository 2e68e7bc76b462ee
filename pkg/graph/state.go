package graph

import (
	"slices"

	"github.com/dukex/nodegraph/pkg/models"
)

// state is an immutable snapshot of the graph. Nodes reachable from a
// published state are never mutated; a transaction clones what it changes.
type state struct {
	nodes map[string]*models.Node
	order []string
	edges []models.Edge
}

func emptyState() *state {
	return &state{nodes: map[string]*models.Node{}}
}

func (st *state) node(id string) (*models.Node, bool) {
	n, ok := st.nodes[id]

	return n, ok
}

func (st *state) graph() models.Graph {
	g := models.Graph{
		Nodes: make([]*models.Node, 0, len(st.order)),
		Edges: slices.Clone(st.edges),
	}

	for _, id := range st.order {
		g.Nodes = append(g.Nodes, st.nodes[id].Clone())
	}

	if g.Edges == nil {
		g.Edges = []models.Edge{}
	}

	return g
}

// txn derives the next state from base. Nothing it does is visible until
// the store swaps in the result of commit.
type txn struct {
	base    *state
	nodes   map[string]*models.Node
	order   []string
	edges   []models.Edge
	cloned  map[string]bool
	persist []string
	drop    []string
	changes []Change
}

func newTxn(base *state) *txn {
	nodes := make(map[string]*models.Node, len(base.nodes))
	for id, n := range base.nodes {
		nodes[id] = n
	}

	return &txn{
		base:   base,
		nodes:  nodes,
		order:  slices.Clone(base.order),
		edges:  slices.Clone(base.edges),
		cloned: map[string]bool{},
	}
}

func (t *txn) node(id string) (*models.Node, bool) {
	n, ok := t.nodes[id]

	return n, ok
}

// mutable returns a private copy of the node, cloning it on first use.
func (t *txn) mutable(id string) (*models.Node, bool) {
	n, ok := t.nodes[id]
	if !ok {
		return nil, false
	}

	if !t.cloned[id] {
		n = n.Clone()
		t.nodes[id] = n
		t.cloned[id] = true
	}

	return n, true
}

func (t *txn) insertNode(n *models.Node) {
	if _, exists := t.nodes[n.ID]; !exists {
		t.order = append(t.order, n.ID)
	}

	t.nodes[n.ID] = n
	t.cloned[n.ID] = true
}

func (t *txn) deleteNode(id string) {
	delete(t.nodes, id)
	delete(t.cloned, id)
	t.order = slices.DeleteFunc(t.order, func(o string) bool { return o == id })
	t.persist = slices.DeleteFunc(t.persist, func(o string) bool { return o == id })
}

// removeEdges drops every edge matching fn and returns the removed ones.
func (t *txn) removeEdges(fn func(models.Edge) bool) []models.Edge {
	var removed []models.Edge

	t.edges = slices.DeleteFunc(t.edges, func(e models.Edge) bool {
		if fn(e) {
			removed = append(removed, e)

			return true
		}

		return false
	})

	return removed
}

// setValue writes value into the named parameter. It reports false when the
// node or the parameter does not exist.
func (t *txn) setValue(nodeID, param string, value any) bool {
	n, ok := t.node(nodeID)
	if !ok || !n.Data.Params.Has(param) {
		return false
	}

	n, _ = t.mutable(nodeID)
	p, _ := n.Data.Params.Get(param)
	p.Value = models.CloneValue(value)
	n.Data.Params.Set(param, p)

	return true
}

// reindex rebuilds the derived connections of the given nodes from the
// edge list.
func (t *txn) reindex(nodeIDs ...string) {
	for _, id := range nodeIDs {
		n, ok := t.mutable(id)
		if !ok {
			continue
		}

		for _, name := range n.Data.Params.Names() {
			p, _ := n.Data.Params.Get(name)
			p.Connections = t.listeners(id, name)
			n.Data.Params.Set(name, p)
		}
	}
}

// listeners lists the live targets fed by nodeID.param, in edge order.
func (t *txn) listeners(nodeID, param string) []models.ParamRef {
	return listeners(t.nodes, t.edges, nodeID, param)
}

func listeners(nodes map[string]*models.Node, edges []models.Edge, nodeID, param string) []models.ParamRef {
	var refs []models.ParamRef

	for _, e := range edges {
		if e.Source != nodeID || e.SourceHandle != param {
			continue
		}

		if _, ok := nodes[e.Target]; !ok {
			continue
		}

		refs = append(refs, models.ParamRef{NodeID: e.Target, Param: e.TargetHandle})
	}

	return refs
}

func (t *txn) markPersist(ids ...string) {
	for _, id := range ids {
		if !slices.Contains(t.persist, id) {
			t.persist = append(t.persist, id)
		}
	}
}

func (t *txn) emit(c Change) {
	t.changes = append(t.changes, c)
}

func (t *txn) commit() *state {
	return &state{nodes: t.nodes, order: t.order, edges: t.edges}
}
