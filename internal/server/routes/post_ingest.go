package routes

import (
	"net/http"

	_ "github.com/go-playground/validator"
	"github.com/labstack/echo/v4"

	"bionexus/internal/queue"
	"bionexus/internal/server/middleware"
	"bionexus/pkg/common"
	"bionexus/pkg/logger"
)

// RunIngestHandler submits an ingest job and hands it to the worker over
// the queue. The response carries the job ID for status polling.
func RunIngestHandler(c echo.Context) error {
	type runIngestBody struct {
		Mode      string            `json:"mode" validate:"required,oneof=sample full"`
		Documents []common.Document `json:"documents"`
	}

	type runIngestResponse struct {
		Message string `json:"message"`
		JobID   string `json:"job_id,omitempty"`
		State   string `json:"state,omitempty"`
	}

	data := new(runIngestBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, runIngestResponse{
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, runIngestResponse{
			Message: "Invalid request body",
		})
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	jobID, err := app.Manager.Submit(ctx, data.Documents, common.IngestMode(data.Mode))
	if err != nil {
		return writeError(c, err)
	}

	if err := queue.PublishIngestJob(app.Queue, jobID); err != nil {
		logger.Error("[Server] Failed to publish ingest job", "job", jobID, "err", err)
		_ = app.Jobs.SetJobState(ctx, jobID, common.JobFailed, "could not enqueue job")
		return c.JSON(http.StatusInternalServerError, runIngestResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusAccepted, runIngestResponse{
		Message: "Ingest job submitted",
		JobID:   jobID,
		State:   string(common.JobPending),
	})
}

// CancelIngestHandler requests cooperative cancellation of a running job.
func CancelIngestHandler(c echo.Context) error {
	type cancelIngestParams struct {
		JobID string `param:"job_id" validate:"required"`
	}

	type cancelIngestResponse struct {
		Message string `json:"message"`
		JobID   string `json:"job_id,omitempty"`
	}

	params := new(cancelIngestParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, cancelIngestResponse{
			Message: "Invalid request params",
		})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, cancelIngestResponse{
			Message: "Invalid request params",
		})
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	if err := app.Manager.Cancel(ctx, params.JobID); err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, cancelIngestResponse{
		Message: "Cancellation requested",
		JobID:   params.JobID,
	})
}
