package graph

import (
	"context"
	"time"

	"github.com/dukex/nodegraph/pkg/models"
	"github.com/dukex/nodegraph/pkg/otelhelper"
	"go.opentelemetry.io/otel/attribute"
)

// Gateway calls wrapped with tracing and metrics.

func (s *Store) saveDocument(ctx context.Context, nodeID string, doc *models.NodeDocument) error {
	ctx, span := otelhelper.StartSpan(ctx, s.tracer, "graph.persistence.save",
		attribute.String(otelhelper.SessionIDKey, s.sid),
		attribute.String(otelhelper.NodeIDKey, nodeID),
	)
	defer span.End()

	start := time.Now()
	err := s.gateway.SaveNodeData(ctx, nodeID, doc)
	s.metrics.RecordPersistence("save", err, time.Since(start))

	if err != nil {
		otelhelper.SetError(span, err)
	}

	return err
}

// loadDocument reads after any queued write for the node has landed.
func (s *Store) loadDocument(ctx context.Context, nodeID string) (*models.NodeDocument, error) {
	s.settle(nodeID)

	ctx, span := otelhelper.StartSpan(ctx, s.tracer, "graph.persistence.load",
		attribute.String(otelhelper.SessionIDKey, s.sid),
		attribute.String(otelhelper.NodeIDKey, nodeID),
	)
	defer span.End()

	start := time.Now()
	doc, err := s.gateway.LoadNodeData(ctx, nodeID)
	s.metrics.RecordPersistence("load", err, time.Since(start))

	if err != nil {
		otelhelper.SetError(span, err)
	}

	return doc, err
}

func (s *Store) deleteDocument(ctx context.Context, nodeID string) error {
	ctx, span := otelhelper.StartSpan(ctx, s.tracer, "graph.persistence.delete",
		attribute.String(otelhelper.SessionIDKey, s.sid),
		attribute.String(otelhelper.NodeIDKey, nodeID),
	)
	defer span.End()

	start := time.Now()
	err := s.gateway.DeleteNodeData(ctx, nodeID)
	s.metrics.RecordPersistence("delete", err, time.Since(start))

	if err != nil {
		otelhelper.SetError(span, err)
	}

	return err
}

// withFileSpan traces a file operation.
func (s *Store) withFileSpan(ctx context.Context, op, nodeID, fileName string, fn func(ctx context.Context) error) error {
	ctx, span := otelhelper.StartSpan(ctx, s.tracer, "graph.persistence."+op,
		attribute.String(otelhelper.SessionIDKey, s.sid),
		attribute.String(otelhelper.NodeIDKey, nodeID),
		attribute.String(otelhelper.FileNameKey, fileName),
	)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	s.metrics.RecordPersistence(op, err, time.Since(start))

	if err != nil {
		otelhelper.SetError(span, err)
	}

	return err
}
