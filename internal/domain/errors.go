package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the scoring and backtest core. Typed errors below unwrap to these.
var (
	ErrInsufficientData     = errors.New("insufficient data")
	ErrDegenerateRegression = errors.New("degenerate regression")
	ErrDegenerateSignal     = errors.New("degenerate signal")
	ErrConfiguration        = errors.New("configuration error")
)

// Audit reason codes recorded next to failed pairs.
const (
	ReasonInsufficientData     = "insufficient_data"
	ReasonDegenerateRegression = "degenerate_regression"
	ReasonDegenerateSignal     = "degenerate_signal"
	ReasonError                = "error"
)

// InsufficientDataError reports too few valid observations for a stage.
type InsufficientDataError struct {
	Stage string
	Have  int
	Need  int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("%s: insufficient data: have %d observations, need %d", e.Stage, e.Have, e.Need)
}

func (e *InsufficientDataError) Unwrap() error { return ErrInsufficientData }

// DegenerateRegressionError reports a zero-variance predictor or a singular fit.
type DegenerateRegressionError struct {
	Stage  string
	Reason string
}

func (e *DegenerateRegressionError) Error() string {
	return fmt.Sprintf("%s: degenerate regression: %s", e.Stage, e.Reason)
}

func (e *DegenerateRegressionError) Unwrap() error { return ErrDegenerateRegression }

// DegenerateSignalError reports rolling windows whose standard deviation was zero.
// The affected points are excluded from the z-score series.
type DegenerateSignalError struct {
	Window   int
	Excluded int
}

func (e *DegenerateSignalError) Error() string {
	return fmt.Sprintf("degenerate signal: %d point(s) with zero rolling std (window=%d)", e.Excluded, e.Window)
}

func (e *DegenerateSignalError) Unwrap() error { return ErrDegenerateSignal }

// ConfigurationError names a missing or out-of-range configuration field.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }

// ReasonCode maps an error to the reason code stored in audit tables.
func ReasonCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInsufficientData):
		return ReasonInsufficientData
	case errors.Is(err, ErrDegenerateRegression):
		return ReasonDegenerateRegression
	case errors.Is(err, ErrDegenerateSignal):
		return ReasonDegenerateSignal
	default:
		return ReasonError
	}
}

// IsRecoverable reports whether err is scoped to a single pair or window.
// Configuration errors and unknown errors are not.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrInsufficientData) ||
		errors.Is(err, ErrDegenerateRegression) ||
		errors.Is(err, ErrDegenerateSignal)
}
