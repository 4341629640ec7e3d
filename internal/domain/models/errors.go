package models

import "errors"

var (
	// ErrUnsupportedFrequency is returned when a grid is requested for a
	// frequency other than daily or one minute.
	ErrUnsupportedFrequency = errors.New("unsupported frequency")
	// ErrAlignmentInvariant means a forward fill found an unresolved predecessor.
	ErrAlignmentInvariant = errors.New("alignment invariant violated")
	// ErrInsufficientCoverage means a turbulence window had no usable tickers or rows.
	ErrInsufficientCoverage = errors.New("insufficient coverage")
	// ErrRowCountMismatch means a ticker series does not cover the grid.
	ErrRowCountMismatch = errors.New("row count mismatch")
	// ErrEmptyGrid means the requested range holds no trading sessions.
	ErrEmptyGrid = errors.New("empty grid")
	// ErrUnknownIndicator is returned for an indicator name the engine cannot compute.
	ErrUnknownIndicator = errors.New("unknown indicator")
)
