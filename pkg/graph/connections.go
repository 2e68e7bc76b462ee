package graph

import (
	"context"
	"fmt"

	"github.com/dukex/nodegraph/pkg/models"
	"github.com/dukex/nodegraph/pkg/otelhelper"
	"go.opentelemetry.io/otel/attribute"
)

// Connect wires sourceID.sourceHandle to targetID.targetHandle. An edge
// already ending at the target handle is replaced. The source value is
// copied into the target right away and both nodes are persisted.
// Payload types are not checked.
func (s *Store) Connect(ctx context.Context, sourceID, sourceHandle, targetID, targetHandle string) (models.Edge, error) {
	edge := models.Edge{
		ID:           newEdgeID(),
		Source:       sourceID,
		SourceHandle: sourceHandle,
		Target:       targetID,
		TargetHandle: targetHandle,
	}

	ctx, span := otelhelper.StartSpan(ctx, s.tracer, "graph.connect",
		attribute.String(otelhelper.SessionIDKey, s.sid),
		attribute.String(otelhelper.EdgeIDKey, edge.ID),
		attribute.String(otelhelper.NodeIDKey, targetID),
		attribute.String(otelhelper.ParamKey, targetHandle),
	)
	defer span.End()

	if err := s.validate.Struct(edge); err != nil {
		return models.Edge{}, opError("connect", targetID, targetHandle, fmt.Errorf("%w: %w", ErrInvalidConnection, err))
	}

	if sourceID == targetID && sourceHandle == targetHandle {
		return models.Edge{}, opError("connect", targetID, targetHandle,
			fmt.Errorf("%w: a parameter cannot feed itself", ErrInvalidConnection))
	}

	err := s.update(ctx, func(t *txn) error {
		source, ok := t.node(sourceID)
		if !ok {
			return opError("connect", sourceID, "", ErrNodeNotFound)
		}

		target, ok := t.node(targetID)
		if !ok {
			return opError("connect", targetID, "", ErrNodeNotFound)
		}

		value, ok := source.Param(sourceHandle)
		if !ok {
			return opError("connect", sourceID, sourceHandle, ErrParamNotFound)
		}

		if _, ok := target.Param(targetHandle); !ok {
			return opError("connect", targetID, targetHandle, ErrParamNotFound)
		}

		replaced := t.removeEdges(edge.SameTarget)
		t.edges = append(t.edges, edge)
		t.setValue(targetID, targetHandle, value.Value)

		affected := []string{sourceID}
		for _, old := range replaced {
			affected = append(affected, old.Source)
			t.emit(Change{Kind: ChangeEdgeRemoved, EdgeID: old.ID})
		}

		t.reindex(affected...)
		t.markPersist(sourceID, targetID)
		t.emit(Change{Kind: ChangeEdgeAdded, EdgeID: edge.ID})
		t.emit(Change{Kind: ChangeNodeUpdated, NodeID: targetID, Param: targetHandle})

		return nil
	})
	if err != nil {
		otelhelper.SetError(span, err)

		return models.Edge{}, err
	}

	s.logger.Debug("Connected", "edge_id", edge.ID,
		"source", sourceID, "source_handle", sourceHandle,
		"target", targetID, "target_handle", targetHandle)

	return edge, nil
}

// Disconnect removes an edge. The target keeps its last propagated value;
// the source stops feeding it.
func (s *Store) Disconnect(ctx context.Context, edgeID string) error {
	ctx, span := otelhelper.StartSpan(ctx, s.tracer, "graph.disconnect",
		attribute.String(otelhelper.SessionIDKey, s.sid),
		attribute.String(otelhelper.EdgeIDKey, edgeID),
	)
	defer span.End()

	err := s.update(ctx, func(t *txn) error {
		removed := t.removeEdges(func(e models.Edge) bool { return e.ID == edgeID })
		if len(removed) == 0 {
			return opError("disconnect", "", edgeID, ErrEdgeNotFound)
		}

		for _, e := range removed {
			t.reindex(e.Source)
		}

		t.emit(Change{Kind: ChangeEdgeRemoved, EdgeID: edgeID})

		return nil
	})
	otelhelper.SetError(span, err)

	return err
}
