package web

import (
	"errors"

	"github.com/dukex/nodegraph/pkg/graph"
	"github.com/dukex/nodegraph/pkg/persistence"
	"github.com/dukex/nodegraph/pkg/services"
	"github.com/dukex/nodegraph/pkg/transport"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

func problem(c fiber.Ctx, status int, kind, detail string) error {
	p := problems.NewStatusProblem(status).
		WithInstance(c.Path()).
		WithType(kind).
		WithDetail(detail)

	return c.Status(status).JSON(p)
}

func badRequest(c fiber.Ctx, detail string) error {
	return problem(c, fiber.StatusBadRequest, "validation_error", detail)
}

func notFound(c fiber.Ctx, detail string) error {
	return problem(c, fiber.StatusNotFound, "not_found", detail)
}

func internalError(c fiber.Ctx, err error) error {
	p := problems.NewStatusProblem(fiber.StatusInternalServerError).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(p)
}

// handleError maps graph, session, persistence and execution errors to
// problem documents.
func handleError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, graph.ErrNodeNotFound):
		return problem(c, fiber.StatusNotFound, "node_not_found", err.Error())

	case errors.Is(err, graph.ErrParamNotFound):
		return problem(c, fiber.StatusNotFound, "param_not_found", err.Error())

	case errors.Is(err, graph.ErrEdgeNotFound):
		return problem(c, fiber.StatusNotFound, "edge_not_found", err.Error())

	case services.IsNotFound(err):
		return problem(c, fiber.StatusNotFound, "session_not_found", err.Error())

	case graph.IsConflict(err):
		return problem(c, fiber.StatusConflict, "conflict", err.Error())

	case graph.IsValidationError(err), services.IsValidationError(err), persistence.IsInvalidInput(err):
		return badRequest(c, err.Error())

	case services.IsUnavailable(err):
		return problem(c, fiber.StatusServiceUnavailable, "execution_disabled", err.Error())

	case errors.Is(err, transport.ErrExecutorUnavailable), errors.Is(err, transport.ErrExecutionRejected):
		return problem(c, fiber.StatusBadGateway, "execution_failed", err.Error())

	case persistence.IsUnreachable(err), errors.Is(err, persistence.ErrRejected):
		return problem(c, fiber.StatusBadGateway, "persistence_failed", err.Error())

	default:
		return internalError(c, err)
	}
}
