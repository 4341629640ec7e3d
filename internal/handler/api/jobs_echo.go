package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"FinPrep/internal/domain/models"
	"FinPrep/internal/usecase"
	xhttp "FinPrep/pkg/http"
	xlogger "FinPrep/pkg/logger"
	"FinPrep/pkg/queue"
)

// JobsEchoHandler accepts prepare runs for background processing. Results are
// published to the arrays topic, not returned.
type JobsEchoHandler struct {
	logger *xlogger.Logger
	q      queue.Enqueuer
}

func NewJobsEchoHandler(logger *xlogger.Logger, q queue.Enqueuer) *JobsEchoHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &JobsEchoHandler{logger: logger, q: q}
}

func (h *JobsEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.POST("/api/jobs", h.Submit)
}

type jobAccepted struct {
	JobID string `json:"job_id"`
	Type  string `json:"type"`
}

// Submit validates the request as /api/prepare would and enqueues it.
func (h *JobsEchoHandler) Submit(c echo.Context) error {
	req := &models.PrepareRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if _, err := usecase.PrepareParamsFrom(*req); err != nil {
		return xhttp.AppErrorResponse(c, mapError(err))
	}
	req.Publish = true

	id, err := h.q.Enqueue(c.Request().Context(), usecase.JobTypePrepare, req)
	if err != nil {
		h.logger.Error("enqueue prepare job", xlogger.Strings("tickers", req.Tickers), xlogger.Error(err))
		return xhttp.AppErrorResponse(c,
			xhttp.NewAppError("ERR_QUEUE_UNAVAILABLE", "", "job queue is unavailable", http.StatusServiceUnavailable).WithError(err))
	}
	h.logger.Info("prepare job queued", xlogger.String("job_id", id), xlogger.Strings("tickers", req.Tickers))
	return xhttp.AcceptedResponse(c, jobAccepted{JobID: id, Type: usecase.JobTypePrepare})
}
