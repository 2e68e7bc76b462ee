package graph

import (
	"context"
	"slices"

	"github.com/dukex/nodegraph/pkg/models"
	"github.com/dukex/nodegraph/pkg/otelhelper"
	"go.opentelemetry.io/otel/attribute"
)

// SetParamValue is the single write path for parameter values. The value
// is written to nodeID.param and copied one hop to every parameter wired
// from it; targets that feed others are not followed. All writes are
// applied before any node is persisted.
func (s *Store) SetParamValue(ctx context.Context, nodeID, param string, value any) error {
	ctx, span := otelhelper.StartSpan(ctx, s.tracer, "graph.set_param_value",
		attribute.String(otelhelper.SessionIDKey, s.sid),
		attribute.String(otelhelper.NodeIDKey, nodeID),
		attribute.String(otelhelper.ParamKey, param),
	)
	defer span.End()

	err := s.update(ctx, func(t *txn) error {
		n, ok := t.node(nodeID)
		if !ok {
			return opError("set_param_value", nodeID, param, ErrNodeNotFound)
		}

		if !n.Data.Params.Has(param) {
			return opError("set_param_value", nodeID, param, ErrParamNotFound)
		}

		t.setValue(nodeID, param, value)
		t.markPersist(nodeID)
		t.emit(Change{Kind: ChangeNodeUpdated, NodeID: nodeID, Param: param})
		s.metrics.RecordPropagation("source")

		for _, ref := range t.listeners(nodeID, param) {
			if !t.setValue(ref.NodeID, ref.Param, value) {
				s.metrics.RecordPropagation("dropped")

				continue
			}

			t.markPersist(ref.NodeID)
			t.emit(Change{Kind: ChangeNodeUpdated, NodeID: ref.NodeID, Param: ref.Param})
			s.metrics.RecordPropagation("target")
		}

		return nil
	})
	if err != nil {
		otelhelper.SetError(span, err)
	}

	return err
}

// SetNodeExecuted records an execution result. It neither persists nor
// propagates.
func (s *Store) SetNodeExecuted(ctx context.Context, nodeID string, cache bool, time float64, memory int64) error {
	return s.update(ctx, func(t *txn) error {
		n, ok := t.mutable(nodeID)
		if !ok {
			return opError("set_node_executed", nodeID, "", ErrNodeNotFound)
		}

		n.Data.Cache = cache
		n.Data.Time = time
		n.Data.Memory = memory
		t.emit(Change{Kind: ChangeNodeExecuted, NodeID: nodeID})

		return nil
	})
}

// SaveNodeData writes the node's document with cache forced to true,
// keeping file names already persisted for it. On success the cache flag
// is mirrored in memory.
func (s *Store) SaveNodeData(ctx context.Context, nodeID string) error {
	ctx, span := otelhelper.StartSpan(ctx, s.tracer, "graph.save_node_data",
		attribute.String(otelhelper.SessionIDKey, s.sid),
		attribute.String(otelhelper.NodeIDKey, nodeID),
	)
	defer span.End()

	n, ok := s.state.Load().node(nodeID)
	if !ok {
		return opError("save_node_data", nodeID, "", ErrNodeNotFound)
	}

	previous, err := s.loadDocument(ctx, nodeID)
	if err != nil {
		otelhelper.SetError(span, err)
		s.logger.Warn("Failed to load node document before save", "node_id", nodeID, "error", err)

		return opError("save_node_data", nodeID, "", err)
	}

	doc := models.DocumentFromNode(n)
	doc.Cache = true

	if previous != nil {
		doc.Files = mergeFiles(doc.Files, previous.Files)
	}

	if err := s.saveDocument(ctx, nodeID, doc); err != nil {
		otelhelper.SetError(span, err)
		s.logger.Warn("Failed to save node document", "node_id", nodeID, "error", err)

		return opError("save_node_data", nodeID, "", err)
	}

	return s.update(ctx, func(t *txn) error {
		n, ok := t.mutable(nodeID)
		if !ok {
			return nil
		}

		n.Data.Cache = true
		t.emit(Change{Kind: ChangeNodeUpdated, NodeID: nodeID})

		return nil
	})
}

// DeleteNodeData removes the persisted document, then resets every
// parameter to its default and clears execution state and files. When the
// gateway fails the node is left untouched.
func (s *Store) DeleteNodeData(ctx context.Context, nodeID string) error {
	if _, ok := s.state.Load().node(nodeID); !ok {
		return opError("delete_node_data", nodeID, "", ErrNodeNotFound)
	}

	s.settle(nodeID)

	if err := s.deleteDocument(ctx, nodeID); err != nil {
		s.logger.Warn("Failed to delete node document", "node_id", nodeID, "error", err)

		return opError("delete_node_data", nodeID, "", err)
	}

	return s.update(ctx, func(t *txn) error {
		n, ok := t.mutable(nodeID)
		if !ok {
			return nil
		}

		n.ResetToDefaults()
		t.reindex(nodeID)
		t.emit(Change{Kind: ChangeNodeUpdated, NodeID: nodeID})

		return nil
	})
}

func mergeFiles(current, persisted []string) []string {
	out := append([]string(nil), current...)

	for _, f := range persisted {
		if !slices.Contains(out, f) {
			out = append(out, f)
		}
	}

	return out
}

// Export builds the execution request for the current graph.
func (s *Store) Export() models.ExportedGraph {
	st := s.state.Load()

	return Export(s.sid, st.graph())
}
