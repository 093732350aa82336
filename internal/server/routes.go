package server

import (
	"github.com/labstack/echo/v4"

	"bionexus/internal/server/routes"
)

func RegisterRoutes(e *echo.Echo) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})

	apiRoutes := e.Group("/api")

	// Ingest routes
	apiRoutes.POST("/ingest/run", routes.RunIngestHandler)
	apiRoutes.GET("/ingest/status", routes.ListIngestJobsHandler)
	apiRoutes.GET("/ingest/status/:job_id", routes.GetIngestStatusHandler)
	apiRoutes.POST("/ingest/cancel/:job_id", routes.CancelIngestHandler)

	// Retrieval and synthesis routes
	apiRoutes.POST("/search", routes.SearchHandler)
	apiRoutes.POST("/ask", routes.AskHandler)

	// Publication routes
	apiRoutes.DELETE("/publications/:pub_id", routes.DeletePublicationHandler)

	// Page routes
	apiRoutes.GET("/pages/:page_id", routes.GetPageHandler)
	apiRoutes.GET("/pages/:page_id/image", routes.GetPageImageHandler)

	// Export routes
	apiRoutes.GET("/export/formats", routes.GetExportFormatsHandler)
	apiRoutes.GET("/export/entities", routes.ExportEntitiesHandler)
	apiRoutes.GET("/export/publications", routes.ExportPublicationsHandler)
	apiRoutes.GET("/export/graph", routes.ExportGraphHandler)
	apiRoutes.POST("/export/entities", routes.ImportEntitiesHandler)

	// Corpus stats
	apiRoutes.GET("/stats", routes.GetStatsHandler)
}
