package models

import (
	"errors"
	"fmt"
	"time"
)

// ErrSessionNotFound is returned when a definition id is unknown.
var ErrSessionNotFound = errors.New("session definition not found")

// ConfigurationError rejects an invalid session definition or setting.
type ConfigurationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	msg := fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// TimezoneResolutionError reports an unknown IANA zone identifier.
type TimezoneResolutionError struct {
	Timezone string
	Err      error
}

func (e *TimezoneResolutionError) Error() string {
	return fmt.Sprintf("timezone %q: %v", e.Timezone, e.Err)
}

func (e *TimezoneResolutionError) Unwrap() error { return e.Err }

// AggregationFailure is a transient failure while recomputing rollups or snapshots.
type AggregationFailure struct {
	Stage      string
	Resolution string
	Err        error
}

func (e *AggregationFailure) Error() string {
	return fmt.Sprintf("aggregation failure (%s %s): %v", e.Stage, e.Resolution, e.Err)
}

func (e *AggregationFailure) Unwrap() error { return e.Err }

// QualityGateGap marks an hour with no enabled governing session. It is not a failure.
type QualityGateGap struct {
	Symbol      string
	SessionName string
	Hour        time.Time
}

func (e *QualityGateGap) Error() string {
	return fmt.Sprintf("no enabled session %q for %s at %s", e.SessionName, e.Symbol, e.Hour.UTC().Format(time.RFC3339))
}

// IsQualityGateGap reports whether err is (or wraps) a QualityGateGap.
func IsQualityGateGap(err error) bool {
	var gap *QualityGateGap
	return errors.As(err, &gap)
}
