package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/maestro/backend/internal/shared/types"
)

// parseSessionID reads the :id path parameter
func parseSessionID(c *gin.Context) (types.SessionID, error) {
	raw := c.Param("id")
	n, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || n == 0 {
		return 0, types.NewPtyError(types.CodeInvalidRequest, "invalid session id: %q", raw)
	}
	return types.SessionID(n), nil
}

// statusFor maps an error to its HTTP status
func statusFor(err error) int {
	switch {
	case errors.Is(err, types.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, types.ErrInvalidRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.JSON(statusFor(err), gin.H{"error": types.ToPtyError(err)})
}
