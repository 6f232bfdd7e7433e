package handlers

import (
	"github.com/gin-gonic/gin"

	"medidispatch/internal/models"
	"medidispatch/internal/services"
	"medidispatch/internal/utils"
)

// entityActions serves the endpoints calls and transports share.
type entityActions struct {
	kind      models.EntityType
	resource  string
	lifecycle services.LifecycleService
	audit     services.AuditService
}

func (h *entityActions) Acknowledge(c *gin.Context) {
	var request models.AcknowledgeRequest
	if !bindJSON(c, &request) {
		return
	}
	if err := h.lifecycle.Acknowledge(c.Request.Context(), h.kind, c.Param("id"), &request); err != nil {
		respondError(c, h.resource, err)
		return
	}
	utils.SuccessResponse(c, h.resource+" acknowledged", nil)
}

func (h *entityActions) Candidates(c *gin.Context) {
	candidates, err := h.lifecycle.CandidatesFor(c.Request.Context(), h.kind, c.Param("id"))
	if err != nil {
		respondError(c, h.resource, err)
		return
	}
	utils.SuccessResponse(c, "Candidates retrieved successfully", map[string]interface{}{
		"candidates": candidates,
	})
}

func (h *entityActions) RecordVitals(c *gin.Context) {
	var vitals models.VitalSigns
	if !bindJSON(c, &vitals) {
		return
	}
	if err := h.lifecycle.RecordVitals(c.Request.Context(), h.kind, c.Param("id"), vitals); err != nil {
		respondError(c, h.resource, err)
		return
	}
	utils.CreatedResponse(c, "Vital signs recorded", nil)
}

func (h *entityActions) RecordIntervention(c *gin.Context) {
	var intervention models.Intervention
	if !bindJSON(c, &intervention) {
		return
	}
	if err := h.lifecycle.RecordIntervention(c.Request.Context(), h.kind, c.Param("id"), intervention); err != nil {
		respondError(c, h.resource, err)
		return
	}
	utils.CreatedResponse(c, "Intervention recorded", nil)
}

func (h *entityActions) RecordMedication(c *gin.Context) {
	var medication models.Medication
	if !bindJSON(c, &medication) {
		return
	}
	if err := h.lifecycle.RecordMedication(c.Request.Context(), h.kind, c.Param("id"), medication); err != nil {
		respondError(c, h.resource, err)
		return
	}
	utils.CreatedResponse(c, "Medication recorded", nil)
}

func (h *entityActions) AuditTrail(c *gin.Context) {
	trail, err := h.audit.Trail(c.Request.Context(), h.kind, c.Param("id"))
	if err != nil {
		respondError(c, h.resource, err)
		return
	}
	utils.SuccessResponse(c, "Audit trail retrieved successfully", map[string]interface{}{
		"audit": trail,
	})
}
