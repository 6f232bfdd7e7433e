package handlers

import (
	"github.com/gin-gonic/gin"

	"medidispatch/internal/services"
	"medidispatch/internal/utils"
)

type StatsHandler struct {
	stats   services.StatsService
	sweeper *services.EscalationSweeper
}

func NewStatsHandler(stats services.StatsService, sweeper *services.EscalationSweeper) *StatsHandler {
	return &StatsHandler{
		stats:   stats,
		sweeper: sweeper,
	}
}

func (h *StatsHandler) DispatchStats(c *gin.Context) {
	stats, err := h.stats.DispatchStats(c.Request.Context())
	if err != nil {
		respondError(c, "Statistics", err)
		return
	}
	utils.SuccessResponse(c, "Dispatch statistics retrieved successfully", stats)
}

func (h *StatsHandler) RouteStats(c *gin.Context) {
	stats, err := h.stats.RouteStats(c.Request.Context())
	if err != nil {
		respondError(c, "Statistics", err)
		return
	}
	utils.SuccessResponse(c, "Route statistics retrieved successfully", stats)
}

// RunSweep runs one escalation pass outside the sweeper's schedule.
func (h *StatsHandler) RunSweep(c *gin.Context) {
	result, err := h.sweeper.SweepOnce(c.Request.Context())
	if err != nil {
		respondError(c, "Escalation sweep", err)
		return
	}
	utils.SuccessResponse(c, "Escalation sweep completed", result)
}
