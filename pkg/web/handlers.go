// Package web provides the HTTP API for chains, instances and entity events.
package web

import (
	"errors"
	"net/http"

	"github.com/dukex/stockflow/pkg/definition"
	"github.com/dukex/stockflow/pkg/engine"
	"github.com/dukex/stockflow/pkg/models"
	"github.com/dukex/stockflow/pkg/persistence"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/jonboulle/clockwork"
)

type APIHandlers struct {
	engine    *engine.Engine
	validator *validator.Validate
	clock     clockwork.Clock
}

func NewAPIHandlers(engine *engine.Engine, validator *validator.Validate, clock clockwork.Clock) *APIHandlers {
	return &APIHandlers{
		engine:    engine,
		validator: validator,
		clock:     clock,
	}
}

// Routes registers every API route on the router.
func Routes(router fiber.Router, h *APIHandlers) {
	router.Get("/health", h.HealthCheck)
	router.Get("/metrics/workflows", h.GetWorkflowMetrics)
	router.Post("/events", h.HandleEntityEvent)

	c := router.Group("/chains")
	c.Get("/", h.GetChains)
	c.Post("/", h.CreateChain)
	c.Post("/validate", h.ValidateChain)
	c.Get("/:id", h.GetChain)
	c.Patch("/:id/status", h.UpdateChainStatus)

	i := router.Group("/instances")
	i.Get("/", h.GetInstances)
	i.Post("/", h.StartInstance)
	i.Get("/:id", h.GetInstance)
	i.Get("/:id/governance", h.CheckGovernance)
	i.Post("/:id/steps/:stepId/approve", h.ApproveStep)
	i.Post("/:id/steps/:stepId/reject", h.RejectStep)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	status := "healthy"
	message := "Stockflow API is healthy"
	httpStatus := http.StatusOK
	persistenceCheck := "ok"

	if err := h.engine.HealthCheck(c.Context()); err != nil {
		status = "unhealthy"
		message = "Stockflow API is unhealthy"
		httpStatus = http.StatusInternalServerError
		persistenceCheck = err.Error()
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"persistence": persistenceCheck,
		},
		"timestamp": h.clock.Now().UTC(),
	})
}

func (h *APIHandlers) GetChains(c fiber.Ctx) error {
	chains, err := h.engine.ListChains(c.Context())
	if err != nil {
		return handleEngineError(c, err)
	}

	if status := models.ChainStatus(c.Query("status")); status != "" {
		filtered := make([]*models.WorkflowChain, 0, len(chains))

		for _, chain := range chains {
			if chain.Status == status {
				filtered = append(filtered, chain)
			}
		}

		chains = filtered
	}

	return c.JSON(chains)
}

func (h *APIHandlers) GetChain(c fiber.Ctx) error {
	chain, err := h.engine.GetChain(c.Context(), c.Params("id"))
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(chain)
}

// CreateChain accepts a chain definition in JSON or YAML and stores it once
// it passes schema and governance validation.
func (h *APIHandlers) CreateChain(c fiber.Ctx) error {
	def, err := definition.Parse(c.Body(), "request")
	if err != nil {
		return handleEngineError(c, err)
	}

	chain, err := h.engine.CreateValidatedChain(c.Context(), def.Request())
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(chain)
}

// ValidateChain reports schema and governance violations without storing anything.
func (h *APIHandlers) ValidateChain(c fiber.Ctx) error {
	def, err := definition.Parse(c.Body(), "request")
	if err != nil {
		var schemaErr *definition.SchemaError
		if errors.As(err, &schemaErr) {
			return c.JSON(ValidateChainResponse{Valid: false, Violations: schemaErr.Errors})
		}

		return badRequest(c, err.Error())
	}

	result := h.engine.ValidateChain(def.Request())

	return c.JSON(ValidateChainResponse{Valid: result.Valid, Violations: result.Violations})
}

func (h *APIHandlers) UpdateChainStatus(c fiber.Ctx) error {
	var req UpdateChainStatusRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	chain, err := h.engine.SetChainStatus(c.Context(), c.Params("id"), req.Status, req.ActorID)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(chain)
}

func (h *APIHandlers) GetInstances(c fiber.Ctx) error {
	filter := persistence.InstanceFilter{
		ChainID:  c.Query("chain_id"),
		EntityID: c.Query("entity_id"),
		Status:   models.InstanceStatus(c.Query("status")),
	}

	instances, err := h.engine.ListInstances(c.Context(), filter)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(instances)
}

func (h *APIHandlers) GetInstance(c fiber.Ctx) error {
	instance, err := h.engine.GetInstance(c.Context(), c.Params("id"))
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(instance)
}

func (h *APIHandlers) StartInstance(c fiber.Ctx) error {
	var req StartInstanceRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	instance, err := h.engine.StartWorkflow(c.Context(), req.ChainID, req.EntityID, req.EntityType, req.InitiatedBy, req.Metadata)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(instance)
}

func (h *APIHandlers) ApproveStep(c fiber.Ctx) error {
	var req ApproveRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	instance, err := h.engine.ApproveStep(c.Context(), c.Params("id"), c.Params("stepId"), req.ActorID, req.Comment)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(instance)
}

func (h *APIHandlers) RejectStep(c fiber.Ctx) error {
	var req RejectRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	instance, err := h.engine.RejectStep(c.Context(), c.Params("id"), c.Params("stepId"), req.ActorID, req.Reason)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(instance)
}

func (h *APIHandlers) CheckGovernance(c fiber.Ctx) error {
	actor := c.Query("actor")
	if actor == "" {
		return badRequest(c, "actor query parameter is required")
	}

	report, err := h.engine.CheckGovernance(c.Context(), c.Params("id"), actor)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(report)
}

// HandleEntityEvent starts the chains whose triggers match the event. Chains
// that fail to start are listed in the response and do not fail the request.
func (h *APIHandlers) HandleEntityEvent(c fiber.Ctx) error {
	var req EntityEventRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	instances, err := h.engine.HandleEntityEvent(c.Context(), req.event(h.clock.Now().UTC()))

	response := EntityEventResponse{Started: len(instances), Instances: instances}
	if response.Instances == nil {
		response.Instances = []*models.WorkflowInstance{}
	}

	if err != nil {
		if len(instances) == 0 {
			return handleEngineError(c, err)
		}

		response.Errors = []string{err.Error()}
	}

	return c.Status(fiber.StatusAccepted).JSON(response)
}

func (h *APIHandlers) GetWorkflowMetrics(c fiber.Ctx) error {
	chainID := c.Query("chain_id")

	metrics, err := h.engine.GetMetrics(c.Context(), chainID)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(MetricsResponse{ChainID: chainID, Metrics: metrics})
}
