package routes

import (
	"net/http"

	_ "github.com/go-playground/validator"
	"github.com/labstack/echo/v4"

	"bionexus/internal/server/middleware"
	"bionexus/internal/storage"
	"bionexus/pkg/logger"
)

// DeletePublicationHandler removes a publication with its pages, mentions,
// and embeddings, and clears its archived page images. Re-ingesting the
// same file recreates everything under the same IDs.
func DeletePublicationHandler(c echo.Context) error {
	type deletePublicationParams struct {
		PubID string `param:"pub_id" validate:"required"`
	}

	type deletePublicationResponse struct {
		Message string `json:"message"`
		PubID   string `json:"pub_id,omitempty"`
	}

	params := new(deletePublicationParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, deletePublicationResponse{
			Message: "Invalid request params",
		})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, deletePublicationResponse{
			Message: "Invalid request params",
		})
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	if err := app.Graph.DeletePublication(ctx, params.PubID); err != nil {
		return writeError(c, err)
	}

	if app.S3 != nil {
		if err := storage.DeletePublicationImages(ctx, app.S3, params.PubID); err != nil {
			logger.Warn("[Server] Failed to delete page images", "pub", params.PubID, "err", err)
		}
	}

	return c.JSON(http.StatusOK, deletePublicationResponse{
		Message: "Publication deleted",
		PubID:   params.PubID,
	})
}
