package routes

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"bionexus/pkg/common"
	"bionexus/pkg/logger"
)

type errorResponse struct {
	Message string `json:"message"`
}

// writeError maps domain errors to HTTP status codes. Anything not
// recognized is an internal error and gets logged.
func writeError(c echo.Context, err error) error {
	switch {
	case common.IsValidation(err):
		return c.JSON(http.StatusBadRequest, errorResponse{Message: err.Error()})
	case errors.Is(err, common.ErrNotFound):
		return c.JSON(http.StatusNotFound, errorResponse{Message: err.Error()})
	case errors.Is(err, common.ErrSynthesisUnavailable):
		return c.JSON(http.StatusServiceUnavailable, errorResponse{Message: "The language model is currently unavailable"})
	default:
		logger.Error("[Server] request failed", "path", c.Path(), "err", err)
		return c.JSON(http.StatusInternalServerError, errorResponse{Message: "Internal server error"})
	}
}
