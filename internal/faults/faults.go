// Package faults holds the error taxonomy shared by the map pipeline.
//
// Configuration errors are fatal and reported before any computation starts.
// Geodesic range errors are fatal for one hex only. Tolerance misses are
// warnings attached to an otherwise valid partition.
package faults

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration marks invalid inputs: grid size, region count, thresholds.
	ErrConfiguration = errors.New("configuration error")
	// ErrGeodesicRange marks a projected point outside valid latitude/longitude.
	ErrGeodesicRange = errors.New("geodesic range error")
	// ErrToleranceExceeded marks a partition whose region sizes are outside the balance tolerance.
	ErrToleranceExceeded = errors.New("segmentation tolerance exceeded")
)

// ConfigError describes one rejected configuration value.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

// Is lets errors.Is(err, ErrConfiguration) match any *ConfigError.
func (e *ConfigError) Is(target error) bool {
	return target == ErrConfiguration
}

// Config builds a *ConfigError with a formatted reason.
func Config(field, format string, args ...any) error {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IsConfiguration reports whether err is (or wraps) a configuration error.
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}
