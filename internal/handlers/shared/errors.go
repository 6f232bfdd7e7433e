package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"medidispatch/internal/repositories/interfaces"
	"medidispatch/internal/services"
	"medidispatch/internal/utils"
)

// respondError maps service errors onto the response envelope. Unexpected
// errors are attached to the context for the request logger.
func respondError(c *gin.Context, resource string, err error) {
	var verr *services.ValidationError
	switch {
	case errors.As(err, &verr):
		details := make(map[string]string, len(verr.Errors))
		for _, e := range verr.Errors {
			details[e.Field] = e.Message
		}
		utils.ValidationErrorResponse(c, details)
	case errors.Is(err, services.ErrNotFound):
		utils.NotFoundResponse(c, resource)
	case errors.Is(err, services.ErrInvalidTransition):
		utils.ErrorResponse(c, http.StatusConflict, "INVALID_TRANSITION", err.Error())
	case errors.Is(err, services.ErrResourceConflict), errors.Is(err, interfaces.ErrDuplicate):
		utils.ConflictResponse(c, err.Error())
	case errors.Is(err, services.ErrNoCapacity):
		utils.ErrorResponse(c, http.StatusServiceUnavailable, "NO_CAPACITY", utils.ErrNoCapacity)
	default:
		_ = c.Error(err)
		utils.InternalServerErrorResponse(c)
	}
}

func bindJSON(c *gin.Context, dest interface{}) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		utils.BadRequestResponse(c, "Invalid request: "+err.Error())
		return false
	}
	return true
}

func listResponse(c *gin.Context, message, key string, items interface{}, params *utils.PaginationParams, total int64) {
	meta := &utils.Meta{
		Pagination: utils.CreatePaginationMeta(params, total),
	}
	utils.SuccessResponseWithMeta(c, message, map[string]interface{}{key: items}, meta)
}
