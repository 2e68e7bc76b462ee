package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/dukex/nodegraph/pkg/eventbus"
	"github.com/dukex/nodegraph/pkg/events"
	"github.com/dukex/nodegraph/pkg/graph"
	"github.com/dukex/nodegraph/pkg/metrics"
	"github.com/dukex/nodegraph/pkg/otelhelper"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Target is the part of the graph store execution results are applied to.
type Target interface {
	SessionID() string
	SetNodeExecuted(ctx context.Context, nodeID string, cache bool, time float64, memory int64) error
	SetParamValue(ctx context.Context, nodeID, param string, value any) error
}

// Bridge applies messages from the execution service to a store and
// relays them as events. Results for nodes that no longer exist are
// dropped.
type Bridge struct {
	target    Target
	publisher eventbus.EventPublisher
	logger    *slog.Logger
	metrics   *metrics.Registry
	tracer    trace.Tracer

	mu        sync.RWMutex
	remoteSID string
}

type BridgeOption func(*Bridge)

func WithBridgeTracer(tracer trace.Tracer) BridgeOption {
	return func(b *Bridge) { b.tracer = tracer }
}

func NewBridge(
	target Target,
	publisher eventbus.EventPublisher,
	logger *slog.Logger,
	m *metrics.Registry,
	opts ...BridgeOption,
) *Bridge {
	b := &Bridge{
		target:    target,
		publisher: publisher,
		logger:    logger.With("module", "transport", "session", target.SessionID()),
		metrics:   m,
		tracer:    otelhelper.DefaultTracer(),
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// RemoteSID returns the session id assigned by the last welcome message.
func (b *Bridge) RemoteSID() string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.remoteSID
}

func (b *Bridge) HandleText(ctx context.Context, raw []byte) error {
	msg, err := DecodeText(raw)
	if err != nil {
		b.metrics.RecordMessage("malformed")

		return err
	}

	return b.Dispatch(ctx, msg)
}

func (b *Bridge) HandleBinary(ctx context.Context, frame []byte) error {
	artifact, err := DecodeBinary(frame)
	if err != nil {
		b.metrics.RecordMessage("malformed")

		return err
	}

	return b.Dispatch(ctx, artifact)
}

// Dispatch applies one decoded message.
func (b *Bridge) Dispatch(ctx context.Context, msg any) error {
	sid := b.target.SessionID()

	ctx, span := otelhelper.StartSpan(ctx, b.tracer, "transport.dispatch",
		attribute.String(otelhelper.SessionIDKey, sid),
		attribute.String(otelhelper.MessageKey, messageType(msg)),
	)
	defer span.End()

	err := b.dispatch(ctx, sid, msg)
	otelhelper.SetError(span, err)

	return err
}

func messageType(msg any) string {
	switch msg.(type) {
	case *Welcome:
		return string(MessageWelcome)
	case *Executed:
		return string(MessageExecuted)
	case *Progress:
		return string(MessageProgress)
	case *ExecutionError:
		return string(MessageError)
	case *Artifact:
		return string(MessageArtifact)
	default:
		return "unknown"
	}
}

func (b *Bridge) dispatch(ctx context.Context, sid string, msg any) error {
	switch m := msg.(type) {
	case *Welcome:
		b.metrics.RecordMessage(string(MessageWelcome))

		b.mu.Lock()
		b.remoteSID = m.SID
		b.mu.Unlock()

		return b.publish(ctx, events.SessionAssigned{
			BaseEvent: events.NewBaseEvent(events.SessionAssignedEvent, sid),
			RemoteSID: m.SID,
		})

	case *Executed:
		b.metrics.RecordMessage(string(MessageExecuted))

		if err := b.applyExecuted(ctx, m); err != nil {
			return err
		}

		return b.publish(ctx, events.NodeExecuted{
			BaseEvent:    events.NewBaseEvent(events.NodeExecutedEvent, sid),
			NodeID:       m.NodeID,
			Time:         m.Time,
			Memory:       m.Memory,
			UpdateValues: m.UpdateValues,
		})

	case *Progress:
		b.metrics.RecordMessage(string(MessageProgress))

		return b.publish(ctx, events.NodeProgress{
			BaseEvent: events.NewBaseEvent(events.NodeProgressEvent, sid),
			NodeID:    m.NodeID,
			Progress:  m.Progress,
		})

	case *ExecutionError:
		b.metrics.RecordMessage(string(MessageError))
		b.logger.Warn("Execution failed", "node_id", m.NodeID, "error", m.Error)

		return b.publish(ctx, events.ExecutionError{
			BaseEvent: events.NewBaseEvent(events.ExecutionErrorEvent, sid),
			NodeID:    m.NodeID,
			Error:     m.Error,
		})

	case *Artifact:
		b.metrics.RecordMessage(string(MessageArtifact))

		return b.publish(ctx, events.ArtifactReceived{
			BaseEvent:   events.NewBaseEvent(events.ArtifactReceivedEvent, sid),
			NodeID:      m.NodeID,
			Key:         m.Key,
			ContentType: m.ContentType,
			Data:        m.Data,
		})

	default:
		return fmt.Errorf("%w: unsupported message %T", ErrMalformedMessage, msg)
	}
}

// applyExecuted marks the node executed and writes back every updated
// value, in name order.
func (b *Bridge) applyExecuted(ctx context.Context, m *Executed) error {
	err := b.target.SetNodeExecuted(ctx, m.NodeID, true, m.Time, m.Memory)
	if errors.Is(err, graph.ErrNodeNotFound) {
		b.logger.Debug("Dropping result for removed node", "node_id", m.NodeID)

		return nil
	}

	if err != nil {
		return err
	}

	names := make([]string, 0, len(m.UpdateValues))
	for name := range m.UpdateValues {
		names = append(names, name)
	}

	slices.Sort(names)

	for _, name := range names {
		err := b.target.SetParamValue(ctx, m.NodeID, name, m.UpdateValues[name])

		switch {
		case err == nil:
		case graph.IsNotFound(err):
			b.logger.Debug("Dropping update for unknown parameter", "node_id", m.NodeID, "param", name)
		default:
			return err
		}
	}

	return nil
}

func (b *Bridge) publish(ctx context.Context, event eventbus.Event) error {
	if b.publisher == nil {
		return nil
	}

	if err := b.publisher.Publish(ctx, b.target.SessionID(), event); err != nil {
		b.logger.Warn("Failed to publish event", "type", event.GetType(), "error", err)

		return err
	}

	return nil
}
