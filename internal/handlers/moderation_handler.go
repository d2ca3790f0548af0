package handlers

import (
	"github.com/ahmetcoskunkizilkaya/abuse-engine/internal/dto"
	"github.com/ahmetcoskunkizilkaya/abuse-engine/internal/services"
	"github.com/ahmetcoskunkizilkaya/abuse-engine/internal/tenant"
	"github.com/gofiber/fiber/v2"
)

type ModerationHandler struct {
	reports  *services.ReportService
	reviews  *services.ReviewService
	enforcer *services.EnforcementCoordinator
}

func NewModerationHandler(reports *services.ReportService, reviews *services.ReviewService, enforcer *services.EnforcementCoordinator) *ModerationHandler {
	return &ModerationHandler{reports: reports, reviews: reviews, enforcer: enforcer}
}

func (h *ModerationHandler) CreateReport(c *fiber.Ctx) error {
	appID := tenant.GetAppID(c)
	userID, err := tenant.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	var req dto.CreateReportRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	report, err := h.reports.FileReport(c.UserContext(), appID, userID, &req)
	if err != nil {
		return respondError(c, err, "Failed to file report")
	}
	return c.Status(fiber.StatusCreated).JSON(report)
}

func (h *ModerationHandler) ListReports(c *fiber.Ctx) error {
	var filter dto.ReportFilter
	if err := c.QueryParser(&filter); err != nil {
		return badRequest(c, "Invalid query parameters")
	}
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 20
	}

	reports, total, err := h.reports.ListReports(c.UserContext(), tenant.GetAppID(c), filter)
	if err != nil {
		return respondError(c, err, "Failed to fetch reports")
	}
	return c.JSON(dto.ListResponse{Data: reports, Total: total, Limit: filter.Limit, Offset: filter.Offset})
}

func (h *ModerationHandler) GetReport(c *fiber.Ctx) error {
	reportID, ok := paramUUID(c, "id")
	if !ok {
		return badRequest(c, "Invalid report ID")
	}
	report, err := h.reports.GetReport(c.UserContext(), tenant.GetAppID(c), reportID)
	if err != nil {
		return respondError(c, err, "Failed to fetch report")
	}
	return c.JSON(report)
}

func (h *ModerationHandler) MarkReviewing(c *fiber.Ctx) error {
	reviewerID, err := tenant.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	reportID, ok := paramUUID(c, "id")
	if !ok {
		return badRequest(c, "Invalid report ID")
	}

	report, err := h.reviews.MarkReviewing(c.UserContext(), tenant.GetAppID(c), reportID, reviewerID)
	if err != nil {
		return respondError(c, err, "Failed to update report")
	}
	return c.JSON(report)
}

func (h *ModerationHandler) AcceptReport(c *fiber.Ctx) error {
	reviewerID, err := tenant.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	reportID, ok := paramUUID(c, "id")
	if !ok {
		return badRequest(c, "Invalid report ID")
	}
	var req dto.AcceptReportRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	report, err := h.reviews.Accept(c.UserContext(), tenant.GetAppID(c), reportID, reviewerID, &req)
	if err != nil {
		return respondError(c, err, "Failed to accept report")
	}
	return c.JSON(report)
}

func (h *ModerationHandler) DeclineReport(c *fiber.Ctx) error {
	reviewerID, err := tenant.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	reportID, ok := paramUUID(c, "id")
	if !ok {
		return badRequest(c, "Invalid report ID")
	}
	var req dto.DeclineReportRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	report, err := h.reviews.Decline(c.UserContext(), tenant.GetAppID(c), reportID, reviewerID, req.Note)
	if err != nil {
		return respondError(c, err, "Failed to decline report")
	}
	return c.JSON(report)
}

func (h *ModerationHandler) SetPriority(c *fiber.Ctx) error {
	reviewerID, err := tenant.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	reportID, ok := paramUUID(c, "id")
	if !ok {
		return badRequest(c, "Invalid report ID")
	}
	var req dto.SetPriorityRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	report, err := h.reports.SetPriority(c.UserContext(), tenant.GetAppID(c), reportID, reviewerID, req.Priority)
	if err != nil {
		return respondError(c, err, "Failed to update priority")
	}
	return c.JSON(report)
}

func (h *ModerationHandler) BlockUser(c *fiber.Ctx) error {
	reviewerID, err := tenant.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	userID, ok := paramUUID(c, "id")
	if !ok {
		return badRequest(c, "Invalid user ID")
	}
	var req dto.BlockUserRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	enf, err := h.enforcer.Block(c.UserContext(), tenant.GetAppID(c), userID, reviewerID, req.Reason)
	if err != nil {
		return respondError(c, err, "Failed to block user")
	}
	return c.JSON(fiber.Map{
		"message":     "User blocked successfully",
		"user_id":     enf.UserID,
		"enforcement": enf.Record,
	})
}

func (h *ModerationHandler) UnblockUser(c *fiber.Ctx) error {
	reviewerID, err := tenant.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	userID, ok := paramUUID(c, "id")
	if !ok {
		return badRequest(c, "Invalid user ID")
	}

	if err := h.enforcer.Unblock(c.UserContext(), tenant.GetAppID(c), userID, reviewerID); err != nil {
		return respondError(c, err, "Failed to unblock user")
	}
	return c.JSON(fiber.Map{"message": "User unblocked successfully"})
}
