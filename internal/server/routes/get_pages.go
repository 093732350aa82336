package routes

import (
	"net/http"

	_ "github.com/go-playground/validator"
	"github.com/labstack/echo/v4"

	"bionexus/internal/server/middleware"
	"bionexus/internal/storage"
	"bionexus/pkg/common"
)

// GetPageHandler returns one page record with its OCR text and figures.
func GetPageHandler(c echo.Context) error {
	type getPageParams struct {
		PageID string `param:"page_id" validate:"required"`
	}

	params := new(getPageParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Message: "Invalid request params"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Message: "Invalid request params"})
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	page, err := app.Graph.GetPage(ctx, params.PageID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, page)
}

// GetPageImageHandler serves the archived scan of an OCR'd page. Pages
// ingested from a clean text layer have no stored image.
func GetPageImageHandler(c echo.Context) error {
	type getPageImageParams struct {
		PageID string `param:"page_id" validate:"required"`
	}

	params := new(getPageImageParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Message: "Invalid request params"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Message: "Invalid request params"})
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	page, err := app.Graph.GetPage(ctx, params.PageID)
	if err != nil {
		return writeError(c, err)
	}
	if page.ImageKey == "" {
		return writeError(c, common.ErrNotFound)
	}

	png, err := storage.GetPageImage(ctx, app.S3, page.ImageKey)
	if err != nil {
		return writeError(c, err)
	}
	return c.Blob(http.StatusOK, "image/png", png)
}
