package transport

import (
	"context"
	"errors"
	"testing"

	"github.com/dukex/nodegraph/pkg/events"
	"github.com/dukex/nodegraph/pkg/graph"
	"github.com/dukex/nodegraph/pkg/log"
	"github.com/dukex/nodegraph/pkg/metrics"
	"github.com/dukex/nodegraph/pkg/mocks"
	"github.com/dukex/nodegraph/pkg/models"
	"github.com/dukex/nodegraph/pkg/otelhelper"
	"github.com/dukex/nodegraph/pkg/testutil"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newBridgeStore(t *testing.T) *graph.Store {
	t.Helper()

	schemas := testutil.NewSchemas(
		testutil.Definition("sampler", testutil.Input("prompt", ""), testutil.Output("image")),
		testutil.Definition("preview", testutil.Input("image", "")),
	)

	s := graph.NewStore("session-1", schemas, testutil.NewMemoryGateway(), graph.WithLogger(log.Discard()))
	t.Cleanup(s.Flush)

	ctx := context.Background()
	_, err := s.AddFixtureNode(ctx, &models.Node{ID: "sampler-1", Type: "sampler"})
	require.NoError(t, err)
	_, err = s.AddFixtureNode(ctx, &models.Node{ID: "preview-1", Type: "preview"})
	require.NoError(t, err)
	_, err = s.Connect(ctx, "sampler-1", "image", "preview-1", "image")
	require.NoError(t, err)

	return s
}

func paramValue(t *testing.T, s *graph.Store, nodeID, param string) any {
	t.Helper()

	n, ok := s.Node(nodeID)
	require.True(t, ok)

	p, ok := n.Param(param)
	require.True(t, ok)

	return p.Value
}

func TestBridge_Executed(t *testing.T) {
	t.Parallel()

	s := newBridgeStore(t)
	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, "session-1", mock.MatchedBy(func(e events.NodeExecuted) bool {
		return e.NodeID == "sampler-1" && e.SessionID == "session-1"
	})).Return(nil).Once()

	b := NewBridge(s, bus, log.Discard(), nil)

	err := b.HandleText(context.Background(),
		[]byte(`{"type":"executed","data":{"nodeId":"sampler-1","time":2.5,"memory":512,"updateValues":{"image":"out.png","missing":1}}}`))
	require.NoError(t, err)

	n, ok := s.Node("sampler-1")
	require.True(t, ok)
	assert.True(t, n.Data.Cache)
	assert.InDelta(t, 2.5, n.Data.Time, 0.0001)
	assert.Equal(t, int64(512), n.Data.Memory)

	assert.Equal(t, "out.png", paramValue(t, s, "sampler-1", "image"))
	assert.Equal(t, "out.png", paramValue(t, s, "preview-1", "image"))

	bus.AssertExpectations(t)
}

func TestBridge_ExecutedForRemovedNode(t *testing.T) {
	t.Parallel()

	s := newBridgeStore(t)
	s.Flush()
	require.NoError(t, s.RemoveNode(context.Background(), "sampler-1"))

	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, "session-1", mock.AnythingOfType("events.NodeExecuted")).Return(nil).Once()

	b := NewBridge(s, bus, log.Discard(), nil)

	err := b.Dispatch(context.Background(), &Executed{NodeID: "sampler-1", UpdateValues: map[string]any{"image": "x"}})
	require.NoError(t, err)

	assert.Empty(t, paramValue(t, s, "preview-1", "image"))
	bus.AssertExpectations(t)
}

func TestBridge_Welcome(t *testing.T) {
	t.Parallel()

	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, "session-1", mock.MatchedBy(func(e events.SessionAssigned) bool {
		return e.RemoteSID == "remote-7"
	})).Return(nil).Once()

	m := metrics.NewRegistry()
	b := NewBridge(newBridgeStore(t), bus, log.Discard(), m)

	require.NoError(t, b.HandleText(context.Background(), []byte(`{"type":"welcome","data":{"sid":"remote-7"}}`)))
	assert.Equal(t, "remote-7", b.RemoteSID())
	assert.InDelta(t, 1, promtest.ToFloat64(m.TransportMessagesTotal.WithLabelValues("welcome")), 0)

	bus.AssertExpectations(t)
}

func TestBridge_DispatchSpanNamesMessageType(t *testing.T) {
	t.Parallel()

	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	b := NewBridge(newBridgeStore(t), nil, log.Discard(), nil, WithBridgeTracer(provider.Tracer("test")))

	require.NoError(t, b.HandleText(context.Background(), []byte(`{"type":"welcome","data":{"sid":"remote-7"}}`)))
	require.Error(t, b.Dispatch(context.Background(), struct{}{}))

	ended := recorder.Ended()
	require.Len(t, ended, 2)
	assert.Equal(t, "transport.dispatch", ended[0].Name())
	assert.Contains(t, ended[0].Attributes(), attribute.String(otelhelper.MessageKey, "welcome"))
	assert.Contains(t, ended[1].Attributes(), attribute.String(otelhelper.MessageKey, "unknown"))
	assert.Equal(t, codes.Error, ended[1].Status().Code)
}

func TestBridge_ProgressErrorAndArtifact(t *testing.T) {
	t.Parallel()

	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, "session-1", mock.AnythingOfType("events.NodeProgress")).Return(nil).Once()
	bus.On("Publish", mock.Anything, "session-1", mock.AnythingOfType("events.ExecutionError")).Return(nil).Once()
	bus.On("Publish", mock.Anything, "session-1", mock.MatchedBy(func(e events.ArtifactReceived) bool {
		return e.NodeID == "sampler-1" && string(e.Data) == "PNG"
	})).Return(nil).Once()

	b := NewBridge(newBridgeStore(t), bus, log.Discard(), nil)
	ctx := context.Background()

	require.NoError(t, b.HandleText(ctx, []byte(`{"type":"progress","data":{"nodeId":"sampler-1","progress":0.5}}`)))
	require.NoError(t, b.HandleText(ctx, []byte(`{"type":"error","data":{"nodeId":"sampler-1","error":"boom"}}`)))

	frame, err := EncodeBinary(Artifact{NodeID: "sampler-1", Key: "image", Data: []byte("PNG")})
	require.NoError(t, err)
	require.NoError(t, b.HandleBinary(ctx, frame))

	bus.AssertExpectations(t)
}

func TestBridge_MalformedAndPublishFailure(t *testing.T) {
	t.Parallel()

	m := metrics.NewRegistry()
	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("bus down"))

	b := NewBridge(newBridgeStore(t), bus, log.Discard(), m)
	ctx := context.Background()

	require.ErrorIs(t, b.HandleText(ctx, []byte(`garbage`)), ErrMalformedMessage)
	require.ErrorIs(t, b.HandleBinary(ctx, []byte(`garbage`)), ErrMalformedMessage)
	require.ErrorIs(t, b.Dispatch(ctx, "string"), ErrMalformedMessage)
	assert.InDelta(t, 2, promtest.ToFloat64(m.TransportMessagesTotal.WithLabelValues("malformed")), 0)

	require.EqualError(t, b.Dispatch(ctx, &Progress{NodeID: "sampler-1"}), "bus down")
}

func TestBridge_NilPublisher(t *testing.T) {
	t.Parallel()

	s := newBridgeStore(t)
	b := NewBridge(s, nil, log.Discard(), nil)

	require.NoError(t, b.Dispatch(context.Background(), &Executed{NodeID: "sampler-1"}))

	n, _ := s.Node("sampler-1")
	assert.True(t, n.Data.Cache)
}
