package routes

import (
	"net/http"

	_ "github.com/go-playground/validator"
	"github.com/labstack/echo/v4"

	"bionexus/internal/server/middleware"
	"bionexus/pkg/common"
	"bionexus/pkg/export"
)

// GetExportFormatsHandler lists the supported export formats.
func GetExportFormatsHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"formats": export.Formats(),
	})
}

// ExportEntitiesHandler streams the entity catalog as JSON or CSV,
// optionally filtered by entity type.
func ExportEntitiesHandler(c echo.Context) error {
	type exportEntitiesParams struct {
		Format string `query:"format"`
		Type   string `query:"type"`
	}

	params := new(exportEntitiesParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Message: "Invalid request params"})
	}

	entityType := common.EntityType(params.Type)
	if params.Type != "" && !entityType.Valid() {
		return c.JSON(http.StatusBadRequest, errorResponse{Message: "Unknown entity type"})
	}

	ctx := c.Request().Context()
	exporter := c.(*middleware.AppContext).App.Exporter

	switch params.Format {
	case "csv":
		c.Response().Header().Set(echo.HeaderContentType, "text/csv")
		c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="entities.csv"`)
		c.Response().WriteHeader(http.StatusOK)
		if err := exporter.EntitiesCSV(ctx, c.Response(), entityType); err != nil {
			return err
		}
	case "", "json":
		c.Response().Header().Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		c.Response().WriteHeader(http.StatusOK)
		if err := exporter.EntitiesJSON(ctx, c.Response(), entityType); err != nil {
			return err
		}
	default:
		return c.JSON(http.StatusBadRequest, errorResponse{Message: "Unknown format"})
	}
	return nil
}

// ExportPublicationsHandler streams the publication catalog.
func ExportPublicationsHandler(c echo.Context) error {
	type exportPublicationsParams struct {
		Format string `query:"format"`
	}

	params := new(exportPublicationsParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Message: "Invalid request params"})
	}

	ctx := c.Request().Context()
	exporter := c.(*middleware.AppContext).App.Exporter

	switch params.Format {
	case "csv":
		c.Response().Header().Set(echo.HeaderContentType, "text/csv")
		c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="publications.csv"`)
		c.Response().WriteHeader(http.StatusOK)
		if err := exporter.PublicationsCSV(ctx, c.Response()); err != nil {
			return err
		}
	case "", "json":
		c.Response().Header().Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		c.Response().WriteHeader(http.StatusOK)
		if err := exporter.PublicationsJSON(ctx, c.Response()); err != nil {
			return err
		}
	default:
		return c.JSON(http.StatusBadRequest, errorResponse{Message: "Unknown format"})
	}
	return nil
}

// ExportGraphHandler streams the full knowledge graph, either as a node
// and edge document or as a Cypher script of MERGE statements.
func ExportGraphHandler(c echo.Context) error {
	type exportGraphParams struct {
		Format string `query:"format"`
	}

	params := new(exportGraphParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Message: "Invalid request params"})
	}

	ctx := c.Request().Context()
	exporter := c.(*middleware.AppContext).App.Exporter

	switch params.Format {
	case "cypher":
		c.Response().Header().Set(echo.HeaderContentType, echo.MIMETextPlain)
		c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="graph.cypher"`)
		c.Response().WriteHeader(http.StatusOK)
		if err := exporter.GraphCypher(ctx, c.Response()); err != nil {
			return err
		}
	case "", "json":
		c.Response().Header().Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		c.Response().WriteHeader(http.StatusOK)
		if err := exporter.GraphJSON(ctx, c.Response()); err != nil {
			return err
		}
	default:
		return c.JSON(http.StatusBadRequest, errorResponse{Message: "Unknown format"})
	}
	return nil
}

// ImportEntitiesHandler merges an entity export back into the graph.
func ImportEntitiesHandler(c echo.Context) error {
	type importEntitiesResponse struct {
		Message  string `json:"message"`
		Imported int    `json:"imported"`
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	n, err := export.ImportEntities(ctx, app.Graph, c.Request().Body)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, importEntitiesResponse{
		Message:  "Entities imported",
		Imported: n,
	})
}
