package models

import (
	"errors"
	"fmt"
)

var (
	ErrConfig         = errors.New("config error")
	ErrSourceNotFound = errors.New("source not found")
	ErrWorkerFailure  = errors.New("worker failure")
)

// RowError reports a single bad input row. Readers skip and count these.
type RowError struct {
	Source string
	Row    int // 1-based, header is row 1
	Err    error
}

func (e *RowError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s row %d: %v", e.Source, e.Row, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// Configf builds an ErrConfig-wrapped error.
func Configf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfig, fmt.Sprintf(format, args...))
}
