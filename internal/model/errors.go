package model

import "errors"

// Error taxonomy shared by the engine and its collaborators.
// Callers match with errors.Is; producers wrap with fmt.Errorf("%w: ...").
var (
	// ErrInvalidSeries is returned for empty, unordered, or malformed bar input.
	ErrInvalidSeries = errors.New("invalid series")

	// ErrInsufficientData is returned when a series is too short for the requested period.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrInvalidPeriod is returned for a non-positive indicator period.
	ErrInvalidPeriod = errors.New("invalid period")

	// ErrDivisionByZero is returned for a non-positive price or a zero directional sum.
	ErrDivisionByZero = errors.New("division by zero")

	// ErrSourceUnavailable is returned when the series provider could not supply data.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrAllSourcesFailed is the cycle-wide error reported when every instrument failed.
	ErrAllSourcesFailed = errors.New("all sources failed")
)
