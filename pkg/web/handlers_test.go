package web_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dukex/nodegraph/pkg/log"
	"github.com/dukex/nodegraph/pkg/metrics"
	"github.com/dukex/nodegraph/pkg/models"
	"github.com/dukex/nodegraph/pkg/registry"
	"github.com/dukex/nodegraph/pkg/services"
	"github.com/dukex/nodegraph/pkg/testutil"
	"github.com/dukex/nodegraph/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testApp struct {
	app      *fiber.App
	gateway  *testutil.MemoryGateway
	sessions *services.Sessions
	metrics  *metrics.Registry
}

func setupTestApp(t *testing.T) *testApp {
	t.Helper()

	reg := registry.NewRegistry(log.Discard())
	require.NoError(t, reg.Register(testutil.Definition("text", testutil.Input("text", ""))))
	require.NoError(t, reg.Register(testutil.Definition("sampler",
		testutil.Input("prompt", ""),
		testutil.Input("steps", 20),
		testutil.Output("image"),
	)))

	gw := testutil.NewMemoryGateway()
	m := metrics.NewRegistry()
	sessions := services.NewSessions(reg, gw, services.WithLogger(log.Discard()), services.WithMetrics(m))
	t.Cleanup(sessions.Shutdown)

	handlers := web.NewAPIHandlers(sessions, validator.New(validator.WithRequiredStructEnabled()), reg)

	app := fiber.New()
	app.Use(web.Metrics(m))
	app.Get("/metrics", web.MetricsHandler(m))
	handlers.Routes(app)

	return &testApp{app: app, gateway: gw, sessions: sessions, metrics: m}
}

func (a *testApp) do(t *testing.T, method, path string, body any) (int, []byte) {
	t.Helper()

	var reader io.Reader

	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	case []byte:
		reader = bytes.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)

		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.app.Test(req)
	require.NoError(t, err)

	defer func() {
		if err := resp.Body.Close(); err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, raw
}

func decode[T any](t *testing.T, raw []byte) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(raw, &v), string(raw))

	return v
}

func (a *testApp) addNode(t *testing.T, sid, id, nodeType string) {
	t.Helper()

	status, body := a.do(t, http.MethodPost, "/sessions/"+sid+"/nodes", web.AddNodeRequest{ID: id, Type: nodeType})
	require.Equal(t, http.StatusCreated, status, string(body))
}

func TestAPI_NodeTypes(t *testing.T) {
	t.Parallel()

	a := setupTestApp(t)

	status, body := a.do(t, http.MethodGet, "/registry/nodes", nil)
	require.Equal(t, http.StatusOK, status)

	defs := decode[[]models.NodeDefinition](t, body)
	require.Len(t, defs, 2)
	assert.Equal(t, "sampler", defs[0].Type)
	assert.Equal(t, "text", defs[1].Type)
}

func TestAPI_AddNode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		body           any
		expectedStatus int
		validate       func(t *testing.T, body []byte)
	}{
		{
			name:           "registry node",
			body:           web.AddNodeRequest{Type: "sampler", Position: models.Position{X: 10, Y: 20}},
			expectedStatus: http.StatusCreated,
			validate: func(t *testing.T, body []byte) {
				t.Helper()

				n := decode[models.Node](t, body)
				assert.True(t, strings.HasPrefix(n.ID, "sampler-"), n.ID)
				assert.Equal(t, models.Position{X: 10, Y: 20}, n.Position)
				assert.Equal(t, []string{"prompt", "steps", "image"}, n.Data.Params.Names())
			},
		},
		{
			name:           "fixture node",
			body:           web.AddNodeRequest{ID: "prompt-1", Type: "text"},
			expectedStatus: http.StatusCreated,
			validate: func(t *testing.T, body []byte) {
				t.Helper()

				n := decode[models.Node](t, body)
				assert.Equal(t, "prompt-1", n.ID)
			},
		},
		{
			name:           "missing type",
			body:           web.AddNodeRequest{},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "invalid json",
			body:           "{not json",
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			a := setupTestApp(t)

			status, body := a.do(t, http.MethodPost, "/sessions/s1/nodes", tt.body)
			assert.Equal(t, tt.expectedStatus, status, string(body))

			if tt.validate != nil {
				tt.validate(t, body)
			}
		})
	}
}

func TestAPI_DuplicateFixtureConflicts(t *testing.T) {
	t.Parallel()

	a := setupTestApp(t)
	a.addNode(t, "s1", "n1", "text")

	status, body := a.do(t, http.MethodPost, "/sessions/s1/nodes", web.AddNodeRequest{ID: "n1", Type: "text"})
	assert.Equal(t, http.StatusConflict, status, string(body))
}

func TestAPI_ConnectAndPropagate(t *testing.T) {
	t.Parallel()

	a := setupTestApp(t)
	a.addNode(t, "s1", "p", "text")
	a.addNode(t, "s1", "q", "text")

	status, body := a.do(t, http.MethodPost, "/sessions/s1/edges", web.ConnectRequest{
		Source: "p", SourceHandle: "text", Target: "q", TargetHandle: "text",
	})
	require.Equal(t, http.StatusCreated, status, string(body))

	edge := decode[models.Edge](t, body)
	assert.NotEmpty(t, edge.ID)

	status, body = a.do(t, http.MethodPut, "/sessions/s1/nodes/p/params/text", web.SetParamRequest{Value: "hello"})
	require.Equal(t, http.StatusOK, status, string(body))

	status, body = a.do(t, http.MethodGet, "/sessions/s1/nodes/q", nil)
	require.Equal(t, http.StatusOK, status)

	q := decode[models.Node](t, body)
	p, ok := q.Param("text")
	require.True(t, ok)
	assert.Equal(t, "hello", p.Value)

	status, _ = a.do(t, http.MethodDelete, "/sessions/s1/edges/"+edge.ID, nil)
	require.Equal(t, http.StatusNoContent, status)

	status, _ = a.do(t, http.MethodDelete, "/sessions/s1/edges/"+edge.ID, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAPI_ConnectErrors(t *testing.T) {
	t.Parallel()

	a := setupTestApp(t)
	a.addNode(t, "s1", "p", "text")

	status, _ := a.do(t, http.MethodPost, "/sessions/s1/edges", web.ConnectRequest{Source: "p"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = a.do(t, http.MethodPost, "/sessions/s1/edges", web.ConnectRequest{
		Source: "p", SourceHandle: "text", Target: "p", TargetHandle: "text",
	})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = a.do(t, http.MethodPost, "/sessions/s1/edges", web.ConnectRequest{
		Source: "p", SourceHandle: "text", Target: "ghost", TargetHandle: "text",
	})
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAPI_SetParamErrors(t *testing.T) {
	t.Parallel()

	a := setupTestApp(t)
	a.addNode(t, "s1", "p", "text")

	status, body := a.do(t, http.MethodPut, "/sessions/s1/nodes/ghost/params/text", web.SetParamRequest{Value: 1})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, string(body), "node_not_found")

	status, body = a.do(t, http.MethodPut, "/sessions/s1/nodes/p/params/nope", web.SetParamRequest{Value: 1})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, string(body), "param_not_found")
}

func TestAPI_MoveAndRemoveNode(t *testing.T) {
	t.Parallel()

	a := setupTestApp(t)
	a.addNode(t, "s1", "p", "text")

	status, body := a.do(t, http.MethodPatch, "/sessions/s1/nodes/p/position", map[string]float64{"x": 5, "y": 7})
	require.Equal(t, http.StatusOK, status, string(body))
	assert.Equal(t, models.Position{X: 5, Y: 7}, decode[models.Node](t, body).Position)

	status, _ = a.do(t, http.MethodPatch, "/sessions/s1/nodes/p/position", map[string]float64{"x": 5})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = a.do(t, http.MethodDelete, "/sessions/s1/nodes/p", nil)
	require.Equal(t, http.StatusNoContent, status)

	status, _ = a.do(t, http.MethodGet, "/sessions/s1/nodes/p", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAPI_SaveAndDeleteNodeData(t *testing.T) {
	t.Parallel()

	a := setupTestApp(t)
	a.addNode(t, "s1", "p", "text")

	status, _ := a.do(t, http.MethodPut, "/sessions/s1/nodes/p/params/text", web.SetParamRequest{Value: "kept"})
	require.Equal(t, http.StatusOK, status)

	status, body := a.do(t, http.MethodPost, "/sessions/s1/nodes/p/save", nil)
	require.Equal(t, http.StatusOK, status, string(body))
	assert.True(t, decode[models.Node](t, body).Data.Cache)

	doc, ok := a.gateway.Document("p")
	require.True(t, ok)
	assert.True(t, doc.Cache)

	status, body = a.do(t, http.MethodDelete, "/sessions/s1/nodes/p/data", nil)
	require.Equal(t, http.StatusOK, status, string(body))

	n := decode[models.Node](t, body)
	assert.False(t, n.Data.Cache)

	p, _ := n.Param("text")
	assert.Empty(t, p.Value)

	a.gateway.Fail(errors.New("store down"))

	status, _ = a.do(t, http.MethodPost, "/sessions/s1/nodes/p/save", nil)
	assert.Equal(t, http.StatusInternalServerError, status)
}

func TestAPI_Files(t *testing.T) {
	t.Parallel()

	a := setupTestApp(t)
	a.addNode(t, "s1", "p", "text")

	status, body := a.do(t, http.MethodPut, "/sessions/s1/nodes/p/files/mask.png", []byte("PNG"))
	require.Equal(t, http.StatusCreated, status, string(body))
	assert.Equal(t, "mask.png", decode[web.FileResponse](t, body).FileName)

	status, body = a.do(t, http.MethodGet, "/sessions/s1/nodes/p/files/mask.png", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "PNG", string(body))

	status, _ = a.do(t, http.MethodDelete, "/sessions/s1/nodes/p/files/mask.png", nil)
	require.Equal(t, http.StatusNoContent, status)

	status, _ = a.do(t, http.MethodGet, "/sessions/s1/nodes/p/files/mask.png", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAPI_GraphRestoreAndExport(t *testing.T) {
	t.Parallel()

	a := setupTestApp(t)

	g := `{
		"nodes": [
			{"id": "a", "type": "text", "data": {"module": "Test", "action": "text", "params": {"text": {"value": "hi"}}}},
			{"id": "b", "type": "text", "data": {"module": "Test", "action": "text", "params": {"text": {"value": ""}}}}
		],
		"edges": [
			{"id": "e1", "source": "a", "sourceHandle": "text", "target": "b", "targetHandle": "text"},
			{"id": "e2", "source": "a", "sourceHandle": "text", "target": "ghost", "targetHandle": "text"}
		]
	}`

	status, body := a.do(t, http.MethodPut, "/sessions/s1/graph", g)
	require.Equal(t, http.StatusOK, status, string(body))

	graph := decode[models.Graph](t, body)
	assert.Len(t, graph.Nodes, 2)
	require.Len(t, graph.Edges, 1)
	assert.Equal(t, "e1", graph.Edges[0].ID)

	status, body = a.do(t, http.MethodGet, "/sessions/s1/export", nil)
	require.Equal(t, http.StatusOK, status)

	export := decode[models.ExportedGraph](t, body)
	assert.Equal(t, "s1", export.SID)
	assert.Equal(t, [][]string{{"a", "b"}}, export.Paths)
	assert.Equal(t, "a", export.Nodes["b"].Params["text"].SourceID)

	status, _ = a.do(t, http.MethodPut, "/sessions/s1/graph", `{"nodes":[{"id":""}]}`)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAPI_Sessions(t *testing.T) {
	t.Parallel()

	a := setupTestApp(t)

	status, _ := a.do(t, http.MethodGet, "/sessions/s2/graph", nil)
	require.Equal(t, http.StatusOK, status)
	a.addNode(t, "s1", "p", "text")

	status, body := a.do(t, http.MethodGet, "/sessions", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []string{"s1", "s2"}, decode[web.SessionsResponse](t, body).Sessions)

	status, _ = a.do(t, http.MethodDelete, "/sessions/s2", nil)
	require.Equal(t, http.StatusNoContent, status)

	status, _ = a.do(t, http.MethodDelete, "/sessions/s2", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = a.do(t, http.MethodGet, "/sessions/"+strings.Repeat("x", 129)+"/graph", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAPI_RunWithoutExecutor(t *testing.T) {
	t.Parallel()

	a := setupTestApp(t)
	a.addNode(t, "s1", "p", "text")

	status, body := a.do(t, http.MethodPost, "/sessions/s1/run", nil)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Contains(t, string(body), "execution_disabled")
}

func TestAPI_HealthAndMetrics(t *testing.T) {
	t.Parallel()

	a := setupTestApp(t)

	status, body := a.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `"healthy"`)

	a.gateway.Fail(errors.New("disk gone"))

	status, body = a.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Contains(t, string(body), "disk gone")

	status, body = a.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), "nodegraph_http_requests_total")
	assert.Contains(t, string(body), `route="/health"`)
}

func TestAPI_PathIDsOutliveKeepAliveRequests(t *testing.T) {
	t.Parallel()

	a := setupTestApp(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() {
		_ = a.app.Listener(ln, fiber.ListenConfig{DisableStartupMessage: true})
	}()

	t.Cleanup(func() {
		if err := a.app.Shutdown(); err != nil {
			t.Logf("Failed to shut down server: %v", err)
		}
	})

	client := &http.Client{Transport: &http.Transport{MaxConnsPerHost: 1}}
	base := "http://" + ln.Addr().String()

	send := func(method, path, body string) {
		t.Helper()

		req, err := http.NewRequest(method, base+path, strings.NewReader(body))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		require.NoError(t, err)

		_, err = io.Copy(io.Discard, resp.Body)
		require.NoError(t, err)
		require.NoError(t, resp.Body.Close())
		require.Less(t, resp.StatusCode, http.StatusBadRequest, "%s %s", method, path)
	}

	sids := []string{"alpha", "bravo", "charl"}

	for _, sid := range sids {
		send(http.MethodPost, "/sessions/"+sid+"/nodes", `{"id":"n-`+sid+`","type":"text"}`)
		send(http.MethodPut, "/sessions/"+sid+"/nodes/n-"+sid+"/params/text", `{"value":"hi"}`)
	}

	send(http.MethodDelete, "/sessions/alpha/nodes/n-alpha", "")
	send(http.MethodPost, "/sessions/bravo/nodes", `{"id":"n-extra","type":"text"}`)

	assert.Equal(t, sids, a.sessions.IDs())

	for _, sid := range sids {
		session, err := a.sessions.Get(sid)
		require.NoError(t, err)

		session.Store.Flush()
		assert.Equal(t, sid, session.Store.SessionID())
		assert.Equal(t, sid, session.Store.Export().SID)
	}

	_, stored := a.gateway.Document("n-alpha")
	assert.False(t, stored)

	for _, id := range []string{"n-bravo", "n-charl"} {
		_, stored := a.gateway.Document(id)
		assert.True(t, stored, id)
	}
}
