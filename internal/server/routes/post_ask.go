package routes

import (
	"net/http"

	_ "github.com/go-playground/validator"
	"github.com/labstack/echo/v4"

	"bionexus/internal/server/middleware"
	"bionexus/pkg/ai"
	"bionexus/pkg/synthesis"
)

// AskHandler answers a question with a citation-backed synthesis over the
// retrieved evidence.
func AskHandler(c echo.Context) error {
	type askBody struct {
		Question         string           `json:"question" validate:"required"`
		TopK             int              `json:"top_k"`
		ContextWindow    int              `json:"context_window"`
		IncludeCitations *bool            `json:"include_citations"`
		Filter           searchFilterBody `json:"filter"`
	}

	type askResponse struct {
		Message string            `json:"message"`
		Answer  *synthesis.Answer `json:"answer,omitempty"`
		Metrics *ai.ModelMetrics  `json:"metrics,omitempty"`
	}

	data := new(askBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, askResponse{
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, askResponse{
			Message: "Invalid request body",
		})
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	answer, err := app.Synthesis.Answer(ctx, data.Question, synthesis.Options{
		TopK:             data.TopK,
		ContextTokens:    data.ContextWindow,
		IncludeCitations: data.IncludeCitations,
		Filter:           data.Filter.toFilter(),
	})
	if err != nil {
		return writeError(c, err)
	}

	metrics := app.AiClient.GetMetrics()
	return c.JSON(http.StatusOK, askResponse{
		Message: "OK",
		Answer:  &answer,
		Metrics: &metrics,
	})
}
