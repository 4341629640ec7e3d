package usecase

import (
	"errors"
	"fmt"

	"FinPrep/internal/domain/models"
	"FinPrep/pkg/util"
)

// ErrInvalidParams marks request values that cannot be turned into a run.
var ErrInvalidParams = errors.New("invalid parameters")

// PrepareParamsFrom converts a validated transport request into run parameters.
func PrepareParamsFrom(req models.PrepareRequest) (PrepareParams, error) {
	start, ok := util.ParseTime(req.Start)
	if !ok {
		return PrepareParams{}, fmt.Errorf("start %q: %w", req.Start, ErrInvalidParams)
	}
	end, ok := util.ParseTime(req.End)
	if !ok {
		return PrepareParams{}, fmt.Errorf("end %q: %w", req.End, ErrInvalidParams)
	}
	if end.Before(start) {
		return PrepareParams{}, fmt.Errorf("end %s is before start %s: %w", req.End, req.Start, ErrInvalidParams)
	}
	return PrepareParams{
		Tickers:            req.Tickers,
		Start:              start,
		End:                end,
		Interval:           models.ParseFrequency(req.Interval),
		Indicators:         req.Indicators,
		UseVolatilityProxy: req.UseVolatilityProxy,
		Lookback:           req.Lookback,
		Publish:            req.Publish,
	}, nil
}

// LatestParamsFrom converts a validated snapshot request.
func LatestParamsFrom(req models.LatestRequest) LatestParams {
	return LatestParams{
		Tickers:  req.Tickers,
		Interval: models.ParseFrequency(req.Interval),
		Limit:    req.Limit,
	}
}
