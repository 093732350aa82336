package routes

import (
	"net/http"

	_ "github.com/go-playground/validator"
	"github.com/labstack/echo/v4"

	"bionexus/internal/server/middleware"
	"bionexus/pkg/common"
)

type jobStatusResponse struct {
	JobID     string               `json:"job_id"`
	Mode      string               `json:"mode"`
	State     string               `json:"state"`
	Total     int                  `json:"total"`
	Processed int                  `json:"processed"`
	Failed    int                  `json:"failed"`
	Progress  float64              `json:"progress"`
	Error     string               `json:"error,omitempty"`
	Documents []common.JobDocument `json:"documents,omitempty"`
}

func jobStatus(job common.IngestJob, includeDocs bool) jobStatusResponse {
	resp := jobStatusResponse{
		JobID:     job.ID,
		Mode:      string(job.Mode),
		State:     string(job.State),
		Total:     job.Total,
		Processed: job.Processed,
		Failed:    job.Failed,
		Progress:  job.Progress(),
		Error:     job.Error,
	}
	if includeDocs {
		resp.Documents = job.Documents
	}
	return resp
}

// GetIngestStatusHandler returns one job with per-document outcomes.
func GetIngestStatusHandler(c echo.Context) error {
	type getStatusParams struct {
		JobID string `param:"job_id" validate:"required"`
	}

	params := new(getStatusParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Message: "Invalid request params"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Message: "Invalid request params"})
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	job, err := app.Manager.Status(ctx, params.JobID)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, jobStatus(job, true))
}

// ListIngestJobsHandler returns all jobs, newest first, without their
// document lists.
func ListIngestJobsHandler(c echo.Context) error {
	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	jobs, err := app.Jobs.ListJobs(ctx)
	if err != nil {
		return writeError(c, err)
	}

	resp := make([]jobStatusResponse, 0, len(jobs))
	for _, job := range jobs {
		resp = append(resp, jobStatus(job, false))
	}
	return c.JSON(http.StatusOK, resp)
}
