package web

import (
	"errors"

	"github.com/dukex/stockflow/pkg/definition"
	"github.com/dukex/stockflow/pkg/engine"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(fiber.StatusBadRequest).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(fiber.StatusNotFound).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(fiber.StatusInternalServerError).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleEngineError maps engine error kinds to problem responses.
func handleEngineError(c fiber.Ctx, err error) error {
	var (
		status   int
		kind     string
		detailed = true
	)

	switch {
	case engine.IsNotFound(err):
		status, kind = fiber.StatusNotFound, "not_found"
	case errors.Is(err, definition.ErrInvalidDefinition):
		status, kind = fiber.StatusBadRequest, "invalid_definition"
	case engine.IsValidation(err):
		status, kind = fiber.StatusUnprocessableEntity, "invalid_chain"
	case engine.IsGovernanceViolation(err):
		status, kind = fiber.StatusForbidden, "governance_violation"
	case engine.IsInvalidState(err):
		status, kind = fiber.StatusConflict, "invalid_state"
	default:
		status, kind, detailed = fiber.StatusInternalServerError, "internal_error", false
	}

	if !detailed {
		return internalError(c, err)
	}

	problem := problems.NewStatusProblem(status).
		WithInstance(c.Path()).
		WithType(kind).
		WithDetail(err.Error())

	return c.Status(status).JSON(problem)
}
