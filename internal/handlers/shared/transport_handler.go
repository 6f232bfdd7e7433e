package handlers

import (
	"github.com/gin-gonic/gin"

	"medidispatch/internal/models"
	"medidispatch/internal/services"
	"medidispatch/internal/utils"
)

type TransportHandler struct {
	*entityActions
	intake services.IntakeService
}

func NewTransportHandler(intake services.IntakeService, lifecycle services.LifecycleService, audit services.AuditService) *TransportHandler {
	return &TransportHandler{
		entityActions: &entityActions{
			kind:      models.EntityTypeTransport,
			resource:  "Transport",
			lifecycle: lifecycle,
			audit:     audit,
		},
		intake: intake,
	}
}

func (h *TransportHandler) CreateTransport(c *gin.Context) {
	var request models.TransportRequest
	if !bindJSON(c, &request) {
		return
	}

	response, err := h.intake.CreateTransport(c.Request.Context(), &request)
	if err != nil {
		respondError(c, "Transport", err)
		return
	}
	utils.CreatedResponse(c, "Transport scheduled", response)
}

func (h *TransportHandler) GetTransport(c *gin.Context) {
	transport, err := h.lifecycle.GetTransport(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "Transport", err)
		return
	}
	utils.SuccessResponse(c, "Transport retrieved successfully", transport)
}

func (h *TransportHandler) ListTransports(c *gin.Context) {
	params := utils.GetPaginationParams(c)
	transports, total, err := h.lifecycle.ListTransports(c.Request.Context(), params)
	if err != nil {
		respondError(c, "Transport", err)
		return
	}
	listResponse(c, "Transports retrieved successfully", "transports", transports, params, total)
}

func (h *TransportHandler) TransitionTransport(c *gin.Context) {
	var request models.TransitionRequest
	if !bindJSON(c, &request) {
		return
	}
	if request.RequestID == "" {
		request.RequestID = c.GetString("request_id")
	}

	transport, err := h.lifecycle.TransitionTransport(c.Request.Context(), c.Param("id"), &request)
	if err != nil {
		respondError(c, "Transport", err)
		return
	}
	utils.SuccessResponse(c, "Transport status updated", transport)
}

func (h *TransportHandler) DispatchTransport(c *gin.Context) {
	var request models.DispatchRequest
	if !bindJSON(c, &request) {
		return
	}
	if request.RequestID == "" {
		request.RequestID = c.GetString("request_id")
	}

	transport, err := h.lifecycle.DispatchTransport(c.Request.Context(), c.Param("id"), &request)
	if err != nil {
		respondError(c, "Transport", err)
		return
	}
	utils.SuccessResponse(c, "Transport dispatched", transport)
}
