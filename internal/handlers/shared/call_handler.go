package handlers

import (
	"github.com/gin-gonic/gin"

	"medidispatch/internal/models"
	"medidispatch/internal/services"
	"medidispatch/internal/utils"
)

type CallHandler struct {
	*entityActions
	intake services.IntakeService
}

func NewCallHandler(intake services.IntakeService, lifecycle services.LifecycleService, audit services.AuditService) *CallHandler {
	return &CallHandler{
		entityActions: &entityActions{
			kind:      models.EntityTypeCall,
			resource:  "Call",
			lifecycle: lifecycle,
			audit:     audit,
		},
		intake: intake,
	}
}

// CreateCall records an incoming emergency call and starts its dispatch.
func (h *CallHandler) CreateCall(c *gin.Context) {
	var request models.CallRequest
	if !bindJSON(c, &request) {
		return
	}

	response, err := h.intake.CreateCall(c.Request.Context(), &request)
	if err != nil {
		respondError(c, "Call", err)
		return
	}

	utils.CreatedResponse(c, "Call received", response)
}

func (h *CallHandler) GetCall(c *gin.Context) {
	call, err := h.lifecycle.GetCall(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "Call", err)
		return
	}
	utils.SuccessResponse(c, "Call retrieved successfully", call)
}

func (h *CallHandler) ListCalls(c *gin.Context) {
	params := utils.GetPaginationParams(c)
	calls, total, err := h.lifecycle.ListCalls(c.Request.Context(), params)
	if err != nil {
		respondError(c, "Call", err)
		return
	}
	listResponse(c, "Calls retrieved successfully", "calls", calls, params, total)
}

func (h *CallHandler) TransitionCall(c *gin.Context) {
	var request models.TransitionRequest
	if !bindJSON(c, &request) {
		return
	}
	if request.RequestID == "" {
		request.RequestID = c.GetString("request_id")
	}

	call, err := h.lifecycle.TransitionCall(c.Request.Context(), c.Param("id"), &request)
	if err != nil {
		respondError(c, "Call", err)
		return
	}
	utils.SuccessResponse(c, "Call status updated", call)
}

// DispatchCall reserves the best vehicle and crew for the call.
func (h *CallHandler) DispatchCall(c *gin.Context) {
	var request models.DispatchRequest
	if !bindJSON(c, &request) {
		return
	}
	if request.RequestID == "" {
		request.RequestID = c.GetString("request_id")
	}

	call, err := h.lifecycle.DispatchCall(c.Request.Context(), c.Param("id"), &request)
	if err != nil {
		respondError(c, "Call", err)
		return
	}
	utils.SuccessResponse(c, "Call dispatched", call)
}
