package services

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/dukex/nodegraph/pkg/events"
	"github.com/dukex/nodegraph/pkg/log"
	"github.com/dukex/nodegraph/pkg/metrics"
	"github.com/dukex/nodegraph/pkg/mocks"
	"github.com/dukex/nodegraph/pkg/models"
	"github.com/dukex/nodegraph/pkg/testutil"
	"github.com/dukex/nodegraph/pkg/transport"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func testSchemas() testutil.Schemas {
	return testutil.NewSchemas(
		testutil.Definition("text", testutil.Input("text", "")),
	)
}

func newTestSessions(t *testing.T, opts ...Option) (*Sessions, *testutil.MemoryGateway) {
	t.Helper()

	gw := testutil.NewMemoryGateway()
	s := NewSessions(testSchemas(), gw, append([]Option{WithLogger(log.Discard())}, opts...)...)
	t.Cleanup(s.Shutdown)

	return s, gw
}

func TestSessions_Lifecycle(t *testing.T) {
	t.Parallel()

	s, _ := newTestSessions(t)

	a, err := s.Open("alpha")
	require.NoError(t, err)
	assert.Equal(t, "alpha", a.Store.SessionID())

	again, err := s.Open("alpha")
	require.NoError(t, err)
	assert.Same(t, a, again)

	_, err = s.Open("beta")
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, s.IDs())

	got, err := s.Get("beta")
	require.NoError(t, err)
	assert.Equal(t, "beta", got.Store.SessionID())

	require.NoError(t, s.Close("alpha"))
	assert.Equal(t, []string{"beta"}, s.IDs())

	_, err = s.Get("alpha")
	require.ErrorIs(t, err, ErrSessionNotFound)
	assert.True(t, IsNotFound(err))

	require.ErrorIs(t, s.Close("alpha"), ErrSessionNotFound)
}

func TestSessions_IsolatedGraphs(t *testing.T) {
	t.Parallel()

	s, _ := newTestSessions(t)
	ctx := context.Background()

	a, err := s.Open("alpha")
	require.NoError(t, err)
	b, err := s.Open("beta")
	require.NoError(t, err)

	_, err = a.Store.AddFixtureNode(ctx, &models.Node{ID: "n1", Type: "text"})
	require.NoError(t, err)

	assert.Len(t, a.Store.Nodes(), 1)
	assert.Empty(t, b.Store.Nodes())
}

func TestSessions_InvalidID(t *testing.T) {
	t.Parallel()

	s, _ := newTestSessions(t)

	for _, sid := range []string{"", "a/b", "has space", "ünïcode"} {
		_, err := s.Open(sid)
		require.ErrorIs(t, err, ErrInvalidSessionID, sid)
		assert.True(t, IsValidationError(err))
	}
}

func TestSessions_RelaysChanges(t *testing.T) {
	t.Parallel()

	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, "alpha", mock.MatchedBy(func(e events.GraphChanged) bool {
		return e.Change == "node.added" && e.NodeID == "n1" && e.SessionID == "alpha"
	})).Return(nil).Once()
	bus.On("Publish", mock.Anything, "alpha", mock.MatchedBy(func(e events.GraphChanged) bool {
		return e.Change == "node.updated" && e.Param == "text"
	})).Return(errors.New("bus down")).Once()

	s, _ := newTestSessions(t, WithPublisher(bus))
	session, err := s.Open("alpha")
	require.NoError(t, err)

	ctx := context.Background()
	_, err = session.Store.AddFixtureNode(ctx, &models.Node{ID: "n1", Type: "text"})
	require.NoError(t, err)
	require.NoError(t, session.Store.SetParamValue(ctx, "n1", "text", "hi"))

	bus.AssertExpectations(t)
}

func TestSessions_CloseFlushesAndForgetsMetrics(t *testing.T) {
	t.Parallel()

	m := metrics.NewRegistry()
	s, gw := newTestSessions(t, WithMetrics(m))

	session, err := s.Open("alpha")
	require.NoError(t, err)

	ctx := context.Background()
	_, err = session.Store.AddFixtureNode(ctx, &models.Node{ID: "n1", Type: "text"})
	require.NoError(t, err)
	require.NoError(t, session.Store.SetParamValue(ctx, "n1", "text", "hi"))

	require.NoError(t, s.Close("alpha"))

	doc, ok := gw.Document("n1")
	require.True(t, ok)
	assert.Equal(t, "hi", doc.Params["text"])
}

func TestSessions_Run(t *testing.T) {
	t.Parallel()

	app := fiber.New()
	app.Post("/graph", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"id": "run-1"})
	})

	server := httptest.NewServer(adaptor.FiberApp(app))
	t.Cleanup(server.Close)

	s, _ := newTestSessions(t, WithExecutor(transport.NewExecutor(server.URL)))
	ctx := context.Background()

	_, err := s.Run(ctx, "missing")
	require.ErrorIs(t, err, ErrSessionNotFound)

	session, err := s.Open("alpha")
	require.NoError(t, err)

	_, err = s.Run(ctx, "alpha")
	require.ErrorIs(t, err, ErrNothingToRun)

	_, err = session.Store.AddFixtureNode(ctx, &models.Node{ID: "n1", Type: "text"})
	require.NoError(t, err)

	result, err := s.Run(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, "run-1", result.ID)
}

func TestSessions_RunUsesAssignedSessionID(t *testing.T) {
	t.Parallel()

	submitted := make(chan string, 2)

	app := fiber.New()
	app.Post("/graph", func(c fiber.Ctx) error {
		var exported models.ExportedGraph
		if err := c.Bind().JSON(&exported); err != nil {
			return err
		}

		submitted <- exported.SID

		return c.JSON(fiber.Map{"id": "run-1"})
	})

	server := httptest.NewServer(adaptor.FiberApp(app))
	t.Cleanup(server.Close)

	s, _ := newTestSessions(t, WithExecutor(transport.NewExecutor(server.URL)))
	ctx := context.Background()

	session, err := s.Open("alpha")
	require.NoError(t, err)

	_, err = session.Store.AddFixtureNode(ctx, &models.Node{ID: "n1", Type: "text"})
	require.NoError(t, err)

	_, err = s.Run(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, "alpha", <-submitted)

	require.NoError(t, session.Bridge.HandleText(ctx, []byte(`{"type":"welcome","data":{"sid":"remote-7"}}`)))

	_, err = s.Run(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, "remote-7", <-submitted)
	assert.Equal(t, "alpha", session.Store.SessionID())
}

func TestSessions_RunWithoutExecutor(t *testing.T) {
	t.Parallel()

	s, _ := newTestSessions(t)
	_, err := s.Open("alpha")
	require.NoError(t, err)

	_, err = s.Run(context.Background(), "alpha")
	require.ErrorIs(t, err, ErrExecutionDisabled)
	assert.True(t, IsUnavailable(err))
}

func TestSessions_HealthCheck(t *testing.T) {
	t.Parallel()

	s, gw := newTestSessions(t)
	require.NoError(t, s.HealthCheck(context.Background()))

	gw.Fail(errors.New("disk gone"))
	require.ErrorContains(t, s.HealthCheck(context.Background()), "disk gone")
}
