// Package http implements the inbound HTTP adapter on Fiber.
package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"triage_server/core/domain"
	"triage_server/core/port/in"
	"triage_server/pkg/logger"
	"triage_server/pkg/response"
)

// =============================================================================
// Processing Handler
// =============================================================================

// ProcessingHandler exposes the triage processing entry points over HTTP.
type ProcessingHandler struct {
	service in.ProcessingService
}

// NewProcessingHandler creates a new processing handler.
func NewProcessingHandler(service in.ProcessingService) *ProcessingHandler {
	return &ProcessingHandler{service: service}
}

// RegisterRoutes mounts the triage routes on the router.
func (h *ProcessingHandler) RegisterRoutes(router fiber.Router) {
	triage := router.Group("/triage")
	triage.Post("/classify", h.ClassifyBatch)
	triage.Post("/finalize", h.Finalize)
	triage.Post("/reclassify", h.Reclassify)
	triage.Post("/process-detailed", h.ProcessDetailedBatch)
	triage.Post("/duplicates", h.FindDuplicates)
}

// =============================================================================
// Request Payloads
// =============================================================================

type classifyBatchRequest struct {
	UserID string          `json:"user_id"`
	Emails []*domain.Email `json:"emails"`
}

type finalizeRequest struct {
	EmailIDs []string `json:"email_ids"`
}

type reclassifyRequest struct {
	EmailID  string `json:"email_id"`
	Category string `json:"category"`
}

type processDetailedRequest struct {
	UserID   string   `json:"user_id"`
	EmailIDs []string `json:"email_ids"`
}

type findDuplicatesRequest struct {
	Candidate *domain.Email   `json:"candidate"`
	Pool      []*domain.Email `json:"pool"`
}

// =============================================================================
// Handlers
// =============================================================================

// ClassifyBatch handles POST /triage/classify.
func (h *ProcessingHandler) ClassifyBatch(c *fiber.Ctx) error {
	var req classifyBatchRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "invalid request body")
	}

	userID := parseUserID(req.UserID)

	result, err := h.service.ClassifyBatch(c.UserContext(), userID, req.Emails)
	if err != nil {
		return response.FromError(c, err)
	}

	return response.OKWithMeta(c, result, &response.Meta{
		Total:     len(req.Emails),
		Succeeded: len(result.Results),
		Failed:    len(result.Errors),
	})
}

// Finalize handles POST /triage/finalize.
func (h *ProcessingHandler) Finalize(c *fiber.Ctx) error {
	var req finalizeRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "invalid request body")
	}

	if err := h.service.Finalize(c.UserContext(), req.EmailIDs); err != nil {
		return response.FromError(c, err)
	}
	return response.NoContent(c)
}

// Reclassify handles POST /triage/reclassify.
func (h *ProcessingHandler) Reclassify(c *fiber.Ctx) error {
	var req reclassifyRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "invalid request body")
	}

	category := domain.EmailCategory(req.Category)
	if !category.IsValid() {
		return response.BadRequest(c, "unknown category: "+req.Category)
	}

	if err := h.service.Reclassify(c.UserContext(), req.EmailID, category); err != nil {
		return response.FromError(c, err)
	}
	return response.NoContent(c)
}

// ProcessDetailedBatch handles POST /triage/process-detailed.
func (h *ProcessingHandler) ProcessDetailedBatch(c *fiber.Ctx) error {
	var req processDetailedRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "invalid request body")
	}

	userID := parseUserID(req.UserID)

	result, err := h.service.ProcessDetailedBatch(c.UserContext(), userID, req.EmailIDs)
	if err != nil {
		return response.FromError(c, err)
	}

	return response.OKWithMeta(c, result, &response.Meta{
		Total:     len(req.EmailIDs),
		Succeeded: len(result.Results),
		Failed:    len(result.Errors),
	})
}

// FindDuplicates handles POST /triage/duplicates.
func (h *ProcessingHandler) FindDuplicates(c *fiber.Ctx) error {
	var req findDuplicatesRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "invalid request body")
	}

	group, err := h.service.FindDuplicates(c.UserContext(), req.Candidate, req.Pool)
	if err != nil {
		return response.FromError(c, err)
	}

	if group == nil {
		return response.OK(c, fiber.Map{"duplicate": false})
	}
	return response.OK(c, fiber.Map{"duplicate": true, "group": group})
}

// parseUserID tolerates a missing or malformed user id: personalization is
// optional and an anonymous batch still processes.
func parseUserID(raw string) uuid.UUID {
	if raw == "" {
		return uuid.Nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		logger.Warn("ignoring malformed user id %q", raw)
		return uuid.Nil
	}
	return id
}
