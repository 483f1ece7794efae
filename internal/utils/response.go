package utils

import (
	"github.com/gin-gonic/gin"

	"github.com/yourorg/ohlcv-service/internal/apperror"
)

// SendSuccess sends a JSON payload with the given status
func SendSuccess(c *gin.Context, statusCode int, payload interface{}) {
	c.JSON(statusCode, payload)
}

// SendError sends the standardized error envelope for err.
// Errors that are not *apperror.Error are reported as INTERNAL_ERROR.
func SendError(c *gin.Context, err error, exposeCause bool) {
	appErr := apperror.From(err)
	c.AbortWithStatusJSON(appErr.Status, appErr.ToResponse(exposeCause))
}
