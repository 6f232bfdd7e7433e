package handlers

import (
	"github.com/gin-gonic/gin"

	"medidispatch/internal/models"
	"medidispatch/internal/services"
	"medidispatch/internal/utils"
)

type OperatorHandler struct {
	balancer services.OperatorBalancer
}

func NewOperatorHandler(balancer services.OperatorBalancer) *OperatorHandler {
	return &OperatorHandler{balancer: balancer}
}

// Register logs a dispatch operator on. Waiting calls are handed out
// straight away.
func (h *OperatorHandler) Register(c *gin.Context) {
	var request models.OperatorRequest
	if !bindJSON(c, &request) {
		return
	}
	op, err := h.balancer.Register(c.Request.Context(), &request)
	if err != nil {
		respondError(c, "Operator", err)
		return
	}
	utils.CreatedResponse(c, "Operator registered", op)
}

func (h *OperatorHandler) GetOperator(c *gin.Context) {
	op, err := h.balancer.GetOperator(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "Operator", err)
		return
	}
	utils.SuccessResponse(c, "Operator retrieved successfully", op)
}

func (h *OperatorHandler) ListOperators(c *gin.Context) {
	params := utils.GetPaginationParams(c)
	ops, total, err := h.balancer.ListOperators(c.Request.Context(), params)
	if err != nil {
		respondError(c, "Operator", err)
		return
	}
	listResponse(c, "Operators retrieved successfully", "operators", ops, params, total)
}

func (h *OperatorHandler) UpdateStatus(c *gin.Context) {
	var request models.OperatorStatusRequest
	if !bindJSON(c, &request) {
		return
	}
	op, err := h.balancer.UpdateStatus(c.Request.Context(), c.Param("id"), &request)
	if err != nil {
		respondError(c, "Operator", err)
		return
	}
	utils.SuccessResponse(c, "Operator status updated", op)
}

func (h *OperatorHandler) Offboard(c *gin.Context) {
	op, err := h.balancer.Offboard(c.Request.Context(), c.Param("id"), c.DefaultQuery("actor", "admin"))
	if err != nil {
		respondError(c, "Operator", err)
		return
	}
	utils.SuccessResponse(c, "Operator offboarded", op)
}

func (h *OperatorHandler) PendingCalls(c *gin.Context) {
	pending, err := h.balancer.Pending(c.Request.Context())
	if err != nil {
		respondError(c, "Pending queue", err)
		return
	}
	utils.SuccessResponse(c, "Pending calls retrieved successfully", map[string]interface{}{
		"call_ids": pending,
	})
}

func (h *OperatorHandler) DrainQueue(c *gin.Context) {
	assigned, err := h.balancer.Drain(c.Request.Context())
	if err != nil {
		respondError(c, "Pending queue", err)
		return
	}
	utils.SuccessResponse(c, "Pending queue drained", map[string]interface{}{
		"assigned": assigned,
	})
}
