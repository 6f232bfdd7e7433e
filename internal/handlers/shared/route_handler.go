package handlers

import (
	"github.com/gin-gonic/gin"

	"medidispatch/internal/models"
	"medidispatch/internal/services"
	"medidispatch/internal/utils"
)

type RouteHandler struct {
	planner services.RoutePlanner
}

func NewRouteHandler(planner services.RoutePlanner) *RouteHandler {
	return &RouteHandler{planner: planner}
}

func (h *RouteHandler) PlanRoute(c *gin.Context) {
	var request models.RouteRequest
	if !bindJSON(c, &request) {
		return
	}
	route, err := h.planner.PlanRoute(c.Request.Context(), &request)
	if err != nil {
		respondError(c, "Route", err)
		return
	}
	utils.CreatedResponse(c, "Route planned", route)
}

func (h *RouteHandler) GetRoute(c *gin.Context) {
	route, err := h.planner.GetRoute(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "Route", err)
		return
	}
	utils.SuccessResponse(c, "Route retrieved successfully", route)
}

// ListRoutes pages through all routes, or returns every route of one call
// or transport when entity_id is given.
func (h *RouteHandler) ListRoutes(c *gin.Context) {
	if entityID := c.Query("entity_id"); entityID != "" {
		routes, err := h.planner.RoutesForEntity(c.Request.Context(), entityID)
		if err != nil {
			respondError(c, "Route", err)
			return
		}
		utils.SuccessResponse(c, "Routes retrieved successfully", map[string]interface{}{
			"routes": routes,
		})
		return
	}

	params := utils.GetPaginationParams(c)
	routes, total, err := h.planner.ListRoutes(c.Request.Context(), params)
	if err != nil {
		respondError(c, "Route", err)
		return
	}
	listResponse(c, "Routes retrieved successfully", "routes", routes, params, total)
}

func (h *RouteHandler) Recompute(c *gin.Context) {
	var request models.RecomputeRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &request) {
		return
	}
	route, changed, err := h.planner.Recompute(c.Request.Context(), c.Param("id"), utils.CoalesceString(request.Reason, "manual recompute"))
	if err != nil {
		respondError(c, "Route", err)
		return
	}
	utils.SuccessResponse(c, "Route recomputed", map[string]interface{}{
		"route":   route,
		"changed": changed,
	})
}
