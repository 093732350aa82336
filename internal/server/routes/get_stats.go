package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"bionexus/internal/server/middleware"
)

// GetStatsHandler summarizes the stored corpus.
func GetStatsHandler(c echo.Context) error {
	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	stats, err := app.Graph.Stats(ctx)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, stats)
}
