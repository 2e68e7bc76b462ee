// Package web provides the HTTP API the presentation layer edits graphs
// through.
package web

import (
	"net/http"
	"time"

	"github.com/dukex/nodegraph/pkg/graph"
	"github.com/dukex/nodegraph/pkg/models"
	"github.com/dukex/nodegraph/pkg/registry"
	"github.com/dukex/nodegraph/pkg/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

type APIHandlers struct {
	sessions  *services.Sessions
	validator *validator.Validate
	registry  *registry.Registry
}

func NewAPIHandlers(
	sessions *services.Sessions,
	validator *validator.Validate,
	registry *registry.Registry,
) *APIHandlers {
	return &APIHandlers{
		sessions:  sessions,
		validator: validator,
		registry:  registry,
	}
}

// Routes mounts every endpoint on router.
func (h *APIHandlers) Routes(router fiber.Router) {
	router.Get("/health", h.HealthCheck)
	router.Get("/registry/nodes", h.GetNodeTypes)

	router.Get("/sessions", h.GetSessions)
	router.Delete("/sessions/:sid", h.CloseSession)

	s := router.Group("/sessions/:sid")
	s.Get("/graph", h.GetGraph)
	s.Put("/graph", h.RestoreGraph)
	s.Get("/export", h.ExportGraph)
	s.Post("/run", h.RunGraph)

	s.Post("/nodes", h.AddNode)
	s.Get("/nodes/:nodeId", h.GetNode)
	s.Delete("/nodes/:nodeId", h.RemoveNode)
	s.Patch("/nodes/:nodeId/position", h.MoveNode)
	s.Put("/nodes/:nodeId/params/:param", h.SetParamValue)
	s.Post("/nodes/:nodeId/save", h.SaveNodeData)
	s.Delete("/nodes/:nodeId/data", h.DeleteNodeData)

	s.Put("/nodes/:nodeId/files/:name", h.SaveNodeFile)
	s.Get("/nodes/:nodeId/files/:name", h.LoadNodeFile)
	s.Delete("/nodes/:nodeId/files/:name", h.DeleteNodeFile)

	s.Post("/edges", h.Connect)
	s.Delete("/edges/:edgeId", h.Disconnect)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	checks := fiber.Map{"registry": "ok", "persistence": "ok"}
	healthy := true

	if err := h.registry.HealthCheck(); err != nil {
		checks["registry"] = err.Error()
		healthy = false
	}

	if err := h.sessions.HealthCheck(c.Context()); err != nil {
		checks["persistence"] = err.Error()
		healthy = false
	}

	status := "unhealthy"
	httpStatus := http.StatusServiceUnavailable

	if healthy {
		status = "healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":    status,
		"checkers":  checks,
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) GetNodeTypes(c fiber.Ctx) error {
	return c.JSON(h.registry.Definitions())
}

func (h *APIHandlers) GetSessions(c fiber.Ctx) error {
	return c.JSON(SessionsResponse{Sessions: h.sessions.IDs()})
}

func (h *APIHandlers) CloseSession(c fiber.Ctx) error {
	if err := h.sessions.Close(c.Params("sid")); err != nil {
		return handleError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// store opens the session named in the path. Sessions are created on
// first use.
func (h *APIHandlers) store(c fiber.Ctx) (*graph.Store, error) {
	session, err := h.sessions.Open(c.Params("sid"))
	if err != nil {
		return nil, err
	}

	return session.Store, nil
}

func (h *APIHandlers) GetGraph(c fiber.Ctx) error {
	store, err := h.store(c)
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(store.Snapshot())
}

func (h *APIHandlers) RestoreGraph(c fiber.Ctx) error {
	var g models.Graph
	if err := c.Bind().JSON(&g); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	store, err := h.store(c)
	if err != nil {
		return handleError(c, err)
	}

	if err := store.Restore(c.Context(), g); err != nil {
		return handleError(c, err)
	}

	return c.JSON(store.Snapshot())
}

func (h *APIHandlers) ExportGraph(c fiber.Ctx) error {
	store, err := h.store(c)
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(store.Export())
}

func (h *APIHandlers) RunGraph(c fiber.Ctx) error {
	result, err := h.sessions.Run(c.Context(), c.Params("sid"))
	if err != nil {
		return handleError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(result)
}

func (h *APIHandlers) AddNode(c fiber.Ctx) error {
	var req AddNodeRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	store, err := h.store(c)
	if err != nil {
		return handleError(c, err)
	}

	var node *models.Node
	if req.ID != "" {
		node, err = store.AddFixtureNode(c.Context(), &models.Node{ID: req.ID, Type: req.Type, Position: req.Position})
	} else {
		node, err = store.AddNode(c.Context(), req.Type, req.Position)
	}

	if err != nil {
		return handleError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(node)
}

func (h *APIHandlers) GetNode(c fiber.Ctx) error {
	store, err := h.store(c)
	if err != nil {
		return handleError(c, err)
	}

	node, ok := store.Node(c.Params("nodeId"))
	if !ok {
		return notFound(c, "Node not found")
	}

	return c.JSON(node)
}

func (h *APIHandlers) RemoveNode(c fiber.Ctx) error {
	store, err := h.store(c)
	if err != nil {
		return handleError(c, err)
	}

	if err := store.RemoveNode(c.Context(), c.Params("nodeId")); err != nil {
		return handleError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) MoveNode(c fiber.Ctx) error {
	var req MoveNodeRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	store, err := h.store(c)
	if err != nil {
		return handleError(c, err)
	}

	nodeID := c.Params("nodeId")
	if err := store.MoveNode(c.Context(), nodeID, models.Position{X: *req.X, Y: *req.Y}); err != nil {
		return handleError(c, err)
	}

	node, _ := store.Node(nodeID)

	return c.JSON(node)
}

func (h *APIHandlers) SetParamValue(c fiber.Ctx) error {
	var req SetParamRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	store, err := h.store(c)
	if err != nil {
		return handleError(c, err)
	}

	nodeID := c.Params("nodeId")
	if err := store.SetParamValue(c.Context(), nodeID, c.Params("param"), req.Value); err != nil {
		return handleError(c, err)
	}

	node, _ := store.Node(nodeID)

	return c.JSON(node)
}

func (h *APIHandlers) SaveNodeData(c fiber.Ctx) error {
	store, err := h.store(c)
	if err != nil {
		return handleError(c, err)
	}

	nodeID := c.Params("nodeId")
	if err := store.SaveNodeData(c.Context(), nodeID); err != nil {
		return handleError(c, err)
	}

	node, _ := store.Node(nodeID)

	return c.JSON(node)
}

func (h *APIHandlers) DeleteNodeData(c fiber.Ctx) error {
	store, err := h.store(c)
	if err != nil {
		return handleError(c, err)
	}

	nodeID := c.Params("nodeId")
	if err := store.DeleteNodeData(c.Context(), nodeID); err != nil {
		return handleError(c, err)
	}

	node, _ := store.Node(nodeID)

	return c.JSON(node)
}

func (h *APIHandlers) SaveNodeFile(c fiber.Ctx) error {
	store, err := h.store(c)
	if err != nil {
		return handleError(c, err)
	}

	name, err := store.SaveNodeFile(c.Context(), c.Params("nodeId"), c.Params("name"), c.Body())
	if err != nil {
		return handleError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(FileResponse{FileName: name})
}

func (h *APIHandlers) LoadNodeFile(c fiber.Ctx) error {
	store, err := h.store(c)
	if err != nil {
		return handleError(c, err)
	}

	data, err := store.LoadNodeFile(c.Context(), c.Params("nodeId"), c.Params("name"))
	if err != nil {
		return handleError(c, err)
	}

	if data == nil {
		return notFound(c, "File not found")
	}

	c.Set(fiber.HeaderContentType, fiber.MIMEOctetStream)

	return c.Send(data)
}

func (h *APIHandlers) DeleteNodeFile(c fiber.Ctx) error {
	store, err := h.store(c)
	if err != nil {
		return handleError(c, err)
	}

	if err := store.DeleteNodeFile(c.Context(), c.Params("nodeId"), c.Params("name")); err != nil {
		return handleError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) Connect(c fiber.Ctx) error {
	var req ConnectRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	store, err := h.store(c)
	if err != nil {
		return handleError(c, err)
	}

	edge, err := store.Connect(c.Context(), req.Source, req.SourceHandle, req.Target, req.TargetHandle)
	if err != nil {
		return handleError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(edge)
}

func (h *APIHandlers) Disconnect(c fiber.Ctx) error {
	store, err := h.store(c)
	if err != nil {
		return handleError(c, err)
	}

	if err := store.Disconnect(c.Context(), c.Params("edgeId")); err != nil {
		return handleError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}
