package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/turtacn/ubi/internal/application/dto"
	"github.com/turtacn/ubi/pkg/constants"
	"github.com/turtacn/ubi/pkg/errors"
	"github.com/turtacn/ubi/pkg/logger"
)

func traceID(c *gin.Context) string {
	return c.GetString(string(constants.ContextKeyTraceID))
}

// sendSuccess writes data wrapped in the standard envelope.
func sendSuccess(c *gin.Context, status int, data interface{}) {
	c.JSON(status, dto.SuccessResponse(data, traceID(c)))
}

// sendError maps err onto its HTTP status. Server-side failures are logged, client errors are not.
func sendError(c *gin.Context, log logger.Logger, err error) {
	if errors.ShouldLogError(err) {
		log.Error(c.Request.Context(), "Request failed", err,
			logger.String("path", c.FullPath()),
			logger.String("code", string(errors.CodeOf(err))),
		)
	}
	status, body := dto.ErrorResponse(err, traceID(c))
	c.AbortWithStatusJSON(status, body)
}

// bindJSON decodes the request body, reporting malformed JSON as INVALID_INPUT.
func bindJSON(c *gin.Context, log logger.Logger, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		sendError(c, log, errors.ErrInvalidInput("malformed request body: %v", err))
		return false
	}
	return true
}

//Personal.AI order the ending
