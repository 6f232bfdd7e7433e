package handlers

import (
	"github.com/gin-gonic/gin"

	"medidispatch/internal/models"
	"medidispatch/internal/services"
	"medidispatch/internal/utils"
)

type AlertHandler struct {
	traffic services.TrafficService
}

func NewAlertHandler(traffic services.TrafficService) *AlertHandler {
	return &AlertHandler{traffic: traffic}
}

// CreateAlert reports a traffic incident and re-estimates the open routes
// it touches.
func (h *AlertHandler) CreateAlert(c *gin.Context) {
	var request models.TrafficAlertRequest
	if !bindJSON(c, &request) {
		return
	}
	alert, err := h.traffic.CreateAlert(c.Request.Context(), &request)
	if err != nil {
		respondError(c, "Traffic alert", err)
		return
	}
	utils.CreatedResponse(c, "Traffic alert created", alert)
}

func (h *AlertHandler) GetAlert(c *gin.Context) {
	alert, err := h.traffic.GetAlert(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "Traffic alert", err)
		return
	}
	utils.SuccessResponse(c, "Traffic alert retrieved successfully", alert)
}

func (h *AlertHandler) ListAlerts(c *gin.Context) {
	params := utils.GetPaginationParams(c)
	alerts, total, err := h.traffic.ListAlerts(c.Request.Context(), params)
	if err != nil {
		respondError(c, "Traffic alert", err)
		return
	}
	listResponse(c, "Traffic alerts retrieved successfully", "alerts", alerts, params, total)
}

func (h *AlertHandler) ResolveAlert(c *gin.Context) {
	var request models.ResolveAlertRequest
	if !bindJSON(c, &request) {
		return
	}
	alert, err := h.traffic.ResolveAlert(c.Request.Context(), c.Param("id"), request.Actor)
	if err != nil {
		respondError(c, "Traffic alert", err)
		return
	}
	utils.SuccessResponse(c, "Traffic alert resolved", alert)
}

func (h *AlertHandler) ExpireAlerts(c *gin.Context) {
	expired, err := h.traffic.ExpireAlerts(c.Request.Context())
	if err != nil {
		respondError(c, "Traffic alert", err)
		return
	}
	utils.SuccessResponse(c, "Expired alerts closed", map[string]interface{}{
		"expired": expired,
	})
}
