package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/dukex/nodegraph/pkg/models"
	"github.com/dukex/nodegraph/pkg/otelhelper"
	"go.opentelemetry.io/otel/attribute"
)

// AddNode instances a node of nodeType from the registry, merges its
// persisted document over the schema defaults and inserts it. An unknown
// type produces a node without parameters.
func (s *Store) AddNode(ctx context.Context, nodeType string, pos models.Position) (*models.Node, error) {
	ctx, span := otelhelper.StartSpan(ctx, s.tracer, "graph.add_node",
		attribute.String(otelhelper.SessionIDKey, s.sid),
		attribute.String(otelhelper.NodeTypeKey, nodeType),
	)
	defer span.End()

	def, ok := s.schemas.Definition(nodeType)
	if !ok {
		s.logger.Warn("Unknown node type, instancing without parameters", "type", nodeType)

		def = models.NodeDefinition{Type: nodeType}
	}

	n := models.NewNode(newNodeID(nodeType), def, pos)
	span.SetAttributes(attribute.String(otelhelper.NodeIDKey, n.ID))
	s.hydrate(ctx, n)

	err := s.update(ctx, func(t *txn) error {
		if _, exists := t.node(n.ID); exists {
			return opError("add_node", n.ID, "", ErrNodeExists)
		}

		t.insertNode(n)
		t.emit(Change{Kind: ChangeNodeAdded, NodeID: n.ID})

		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Node added", "node_id", n.ID, "type", nodeType)

	return n.Clone(), nil
}

// AddFixtureNode inserts a built-in node with a caller supplied id. A node
// without parameters is filled from its registry definition.
func (s *Store) AddFixtureNode(ctx context.Context, node *models.Node) (*models.Node, error) {
	if node == nil {
		return nil, opError("add_fixture_node", "", "", fmt.Errorf("%w: nil node", ErrInvalidGraph))
	}

	if err := s.validate.Struct(node); err != nil {
		return nil, opError("add_fixture_node", node.ID, "", fmt.Errorf("%w: %w", ErrInvalidGraph, err))
	}

	n := node.Clone()

	if n.Data.Params.Len() == 0 {
		if def, ok := s.schemas.Definition(n.Type); ok {
			fresh := models.NewNode(n.ID, def, n.Position)
			n.Data.Params = fresh.Data.Params

			if n.Data.Module == "" {
				n.Data.Module = def.Module
			}

			if n.Data.Action == "" {
				n.Data.Action = def.Action
			}
		}
	}

	s.hydrate(ctx, n)

	err := s.update(ctx, func(t *txn) error {
		if _, exists := t.node(n.ID); exists {
			return opError("add_fixture_node", n.ID, "", ErrNodeExists)
		}

		t.insertNode(n)
		t.reindex(n.ID)
		t.emit(Change{Kind: ChangeNodeAdded, NodeID: n.ID})

		return nil
	})
	if err != nil {
		return nil, err
	}

	return n.Clone(), nil
}

// hydrate merges the persisted document of n, if any. Gateway failures
// leave the defaults in place.
func (s *Store) hydrate(ctx context.Context, n *models.Node) {
	doc, err := s.loadDocument(ctx, n.ID)
	if err != nil {
		s.logger.Warn("Failed to load node document, using defaults", "node_id", n.ID, "error", err)

		return
	}

	n.ApplyDocument(doc)
}

// RemoveNode deletes the node with its incident edges and requests removal
// of its persisted document.
func (s *Store) RemoveNode(ctx context.Context, nodeID string) error {
	nodeID = strings.Clone(nodeID)

	return s.update(ctx, func(t *txn) error {
		if _, ok := t.node(nodeID); !ok {
			return opError("remove_node", nodeID, "", ErrNodeNotFound)
		}

		removed := t.removeEdges(func(e models.Edge) bool { return e.Touches(nodeID) })
		t.deleteNode(nodeID)

		var sources []string
		for _, e := range removed {
			if e.Source != nodeID {
				sources = append(sources, e.Source)
			}

			t.emit(Change{Kind: ChangeEdgeRemoved, EdgeID: e.ID})
		}

		t.reindex(sources...)
		t.drop = append(t.drop, nodeID)
		t.emit(Change{Kind: ChangeNodeRemoved, NodeID: nodeID})

		return nil
	})
}

// MoveNode updates the layout position. Positions are not persisted.
func (s *Store) MoveNode(ctx context.Context, nodeID string, pos models.Position) error {
	return s.update(ctx, func(t *txn) error {
		n, ok := t.mutable(nodeID)
		if !ok {
			return opError("move_node", nodeID, "", ErrNodeNotFound)
		}

		n.Position = pos
		t.emit(Change{Kind: ChangeNodeMoved, NodeID: nodeID})

		return nil
	})
}

// Node returns a copy of the node.
func (s *Store) Node(nodeID string) (*models.Node, bool) {
	n, ok := s.state.Load().node(nodeID)
	if !ok {
		return nil, false
	}

	return n.Clone(), true
}

// Nodes returns copies of every node in insertion order.
func (s *Store) Nodes() []*models.Node {
	return s.state.Load().graph().Nodes
}

func (s *Store) Edges() []models.Edge {
	return s.state.Load().graph().Edges
}

// Snapshot returns a consistent copy of the whole graph.
func (s *Store) Snapshot() models.Graph {
	return s.state.Load().graph()
}

// Listeners returns the parameters currently fed by nodeID.param.
func (s *Store) Listeners(nodeID, param string) []models.ParamRef {
	st := s.state.Load()

	return listeners(st.nodes, st.edges, nodeID, param)
}

// Restore replaces the whole graph. Edges with a missing endpoint are
// dropped and, per input handle, only the last edge is kept. Nothing is
// persisted.
func (s *Store) Restore(ctx context.Context, g models.Graph) error {
	seen := make(map[string]bool, len(g.Nodes))

	for _, n := range g.Nodes {
		if n == nil {
			return opError("restore", "", "", fmt.Errorf("%w: nil node", ErrInvalidGraph))
		}

		if err := s.validate.Struct(n); err != nil {
			return opError("restore", n.ID, "", fmt.Errorf("%w: %w", ErrInvalidGraph, err))
		}

		if seen[n.ID] {
			return opError("restore", n.ID, "", fmt.Errorf("%w: duplicate node id", ErrInvalidGraph))
		}

		seen[n.ID] = true
	}

	edgeIDs := make(map[string]bool, len(g.Edges))
	for _, e := range g.Edges {
		if err := s.validate.Struct(e); err != nil {
			return opError("restore", "", e.ID, fmt.Errorf("%w: %w", ErrInvalidGraph, err))
		}

		if edgeIDs[e.ID] {
			return opError("restore", "", e.ID, fmt.Errorf("%w: duplicate edge id", ErrInvalidGraph))
		}

		edgeIDs[e.ID] = true
	}

	return s.update(ctx, func(t *txn) error {
		t.nodes = make(map[string]*models.Node, len(g.Nodes))
		t.order = nil
		t.edges = nil
		t.cloned = map[string]bool{}

		for _, n := range g.Nodes {
			t.insertNode(n.Clone())
		}

		for _, e := range g.Edges {
			if !seen[e.Source] || !seen[e.Target] {
				s.logger.Warn("Dropping dangling edge", "edge_id", e.ID, "source", e.Source, "target", e.Target)

				continue
			}

			t.removeEdges(e.SameTarget)
			t.edges = append(t.edges, e)
		}

		t.reindex(t.order...)
		t.emit(Change{Kind: ChangeRestored})

		return nil
	})
}
