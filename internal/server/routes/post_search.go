package routes

import (
	"net/http"
	"time"

	_ "github.com/go-playground/validator"
	"github.com/labstack/echo/v4"

	"bionexus/internal/server/middleware"
	"bionexus/pkg/retrieval"
	"bionexus/pkg/store"
)

type searchFilterBody struct {
	YearFrom     int      `json:"year_from"`
	YearTo       int      `json:"year_to"`
	HasFigures   *bool    `json:"has_figures"`
	Publications []string `json:"publications"`
}

func (f searchFilterBody) toFilter() store.SearchFilter {
	return store.SearchFilter{
		YearFrom:     f.YearFrom,
		YearTo:       f.YearTo,
		HasFigures:   f.HasFigures,
		Publications: f.Publications,
	}
}

// SearchHandler runs hybrid retrieval over the ingested corpus.
func SearchHandler(c echo.Context) error {
	type searchBody struct {
		Query  string           `json:"query" validate:"required"`
		TopK   int              `json:"top_k"`
		Filter searchFilterBody `json:"filter"`
	}

	type searchResponse struct {
		Message      string             `json:"message"`
		Query        string             `json:"query,omitempty"`
		Results      []retrieval.Result `json:"results,omitempty"`
		TotalResults int                `json:"total_results"`
		QueryTimeMs  int64              `json:"query_time_ms"`
	}

	data := new(searchBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, searchResponse{
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, searchResponse{
			Message: "Invalid request body",
		})
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	started := time.Now()
	results, err := app.Retrieval.Search(ctx, data.Query, data.Filter.toFilter(), data.TopK)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, searchResponse{
		Message:      "OK",
		Query:        data.Query,
		Results:      results,
		TotalResults: len(results),
		QueryTimeMs:  time.Since(started).Milliseconds(),
	})
}
