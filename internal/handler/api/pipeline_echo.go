package api

import (
	"context"
	"errors"
	"time"

	"github.com/labstack/echo/v4"

	"FinPrep/internal/domain/models"
	"FinPrep/internal/service/yahoo"
	"FinPrep/internal/usecase"
	xhttp "FinPrep/pkg/http"
	xlogger "FinPrep/pkg/logger"
	"FinPrep/pkg/util"
)

// PipelineEchoHandler exposes the prepare pipeline over HTTP.
type PipelineEchoHandler struct {
	logger *xlogger.Logger
	uc     *usecase.PipelineUseCase
}

func NewPipelineEchoHandler(logger *xlogger.Logger, uc *usecase.PipelineUseCase) *PipelineEchoHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &PipelineEchoHandler{logger: logger, uc: uc}
}

func (h *PipelineEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.POST("/prepare", h.Prepare)
	g.GET("/latest", h.Latest)
	g.GET("/grid", h.Grid)
}

func (h *PipelineEchoHandler) Prepare(c echo.Context) error {
	req := &models.PrepareRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	params, err := usecase.PrepareParamsFrom(*req)
	if err != nil {
		return xhttp.AppErrorResponse(c, mapError(err))
	}

	res, err := h.uc.Prepare(c.Request().Context(), params)
	if err != nil {
		h.logger.Error("prepare usecase error", xlogger.Strings("tickers", req.Tickers), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, mapError(err))
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *PipelineEchoHandler) Latest(c echo.Context) error {
	req := &models.LatestRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	snap, err := h.uc.Latest(c.Request().Context(), usecase.LatestParamsFrom(*req))
	if err != nil {
		h.logger.Error("latest usecase error", xlogger.Strings("tickers", req.Tickers), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, mapError(err))
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return xhttp.SuccessResponse(c, snap)
}

type gridResponse struct {
	Interval   string      `json:"interval"`
	Count      int         `json:"count"`
	Timestamps []time.Time `json:"timestamps"`
}

func (h *PipelineEchoHandler) Grid(c echo.Context) error {
	req := &models.GridRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	start, ok := util.ParseTime(req.Start)
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("ERR_INVALID_PARAMS", "start", "start must be a date, RFC3339 time or unix seconds"))
	}
	end, ok := util.ParseTime(req.End)
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("ERR_INVALID_PARAMS", "end", "end must be a date, RFC3339 time or unix seconds"))
	}
	grid, err := h.uc.GridFor(c.Request().Context(), start, end, models.ParseFrequency(req.Interval))
	if err != nil {
		return xhttp.AppErrorResponse(c, mapError(err))
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "public, max-age=3600")
	return xhttp.SuccessResponse(c, gridResponse{
		Interval:   grid.Frequency.String(),
		Count:      grid.Len(),
		Timestamps: grid.Timestamps,
	})
}

// mapError translates domain failures into API errors.
func mapError(err error) *xhttp.AppError {
	var (
		appErr    *xhttp.AppError
		statusErr *xhttp.StatusError
		yahooErr  *yahoo.APIError
	)
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, usecase.ErrInvalidParams):
		return xhttp.BadRequestError("ERR_INVALID_PARAMS", "", err.Error()).WithError(err)
	case errors.Is(err, models.ErrUnsupportedFrequency):
		return xhttp.BadRequestError("ERR_UNSUPPORTED_FREQUENCY", "interval", "interval must be 1D or 1Min").WithError(err)
	case errors.Is(err, models.ErrUnknownIndicator):
		return xhttp.BadRequestError("ERR_UNKNOWN_INDICATOR", "indicators", err.Error()).WithError(err)
	case errors.Is(err, usecase.ErrPublishDisabled):
		return xhttp.BadRequestError("ERR_PUBLISH_DISABLED", "publish", "publishing is not configured").WithError(err)
	case errors.Is(err, models.ErrEmptyGrid):
		return xhttp.UnprocessableError("ERR_EMPTY_GRID", err.Error()).WithError(err)
	case errors.Is(err, models.ErrInsufficientCoverage):
		return xhttp.UnprocessableError("ERR_INSUFFICIENT_COVERAGE", err.Error()).WithError(err)
	case errors.Is(err, models.ErrRowCountMismatch):
		return xhttp.InternalError("ERR_ROW_COUNT_MISMATCH", "prepared panel is not rectangular").WithError(err)
	case errors.Is(err, models.ErrAlignmentInvariant):
		return xhttp.InternalError("ERR_ALIGNMENT_INVARIANT", "gap filling left an unresolved slot").WithError(err)
	case errors.As(err, &statusErr), errors.As(err, &yahooErr):
		return xhttp.BadGatewayError("ERR_PROVIDER", "market data provider failed").WithError(err)
	case errors.Is(err, context.DeadlineExceeded):
		return xhttp.BadGatewayError("ERR_PROVIDER_TIMEOUT", "market data provider timed out").WithError(err)
	default:
		return xhttp.InternalError("ERR_INTERNAL", "Something went wrong").WithError(err)
	}
}
