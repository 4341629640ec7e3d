package models

// Requests for the pipeline HTTP endpoints and Kafka jobs. Defined in domain so
// both transports share the same validation tags.

type PrepareRequest struct {
	Tickers            []string `json:"tickers" validate:"required,min=1,dive,required"`
	Start              string   `json:"start" validate:"required"`
	End                string   `json:"end" validate:"required"`
	Interval           string   `json:"interval" default:"1D" validate:"required"`
	Indicators         []string `json:"indicators"`
	UseVolatilityProxy bool     `json:"use_vix"`
	Lookback           int      `json:"lookback" default:"252" validate:"gte=2,lte=5000"`
	Publish            bool     `json:"publish"`
}

type LatestRequest struct {
	Tickers  []string `query:"tickers" json:"tickers" validate:"required,min=1"`
	Interval string   `query:"interval" json:"interval" default:"1Min" validate:"required"`
	Limit    int      `query:"limit" json:"limit" default:"100" validate:"gte=2,lte=5000"`
}

type GridRequest struct {
	Start    string `query:"start" json:"start" validate:"required"`
	End      string `query:"end" json:"end" validate:"required"`
	Interval string `query:"interval" json:"interval" default:"1D" validate:"required"`
}
