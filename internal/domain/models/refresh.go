package models

import (
	"errors"
	"fmt"
	"time"
)

// SnapshotResult is the outcome of refreshing one QC snapshot.
type SnapshotResult struct {
	Resolution      string        `json:"resolution"`
	Rows            int           `json:"rows"`
	FirstPopulation bool          `json:"first_population"`
	Duration        time.Duration `json:"duration_ns"`
	Error           string        `json:"error,omitempty"`

	err error
}

// NewSnapshotResult builds a result carrying err (may be nil).
func NewSnapshotResult(resolution string, err error) SnapshotResult {
	r := SnapshotResult{Resolution: resolution, err: err}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

// Err returns the underlying failure, if any.
func (r SnapshotResult) Err() error { return r.err }

// RefreshReport summarises one refresh_all run.
type RefreshReport struct {
	RunID      string           `json:"run_id"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Skipped    bool             `json:"skipped"`
	Results    []SnapshotResult `json:"results"`
}

// Failed lists resolutions whose refresh failed.
func (r *RefreshReport) Failed() []string {
	var out []string
	for _, res := range r.Results {
		if res.Error != "" {
			out = append(out, res.Resolution)
		}
	}
	return out
}

// Err joins every per-resolution failure, or nil when all succeeded.
func (r *RefreshReport) Err() error {
	var errs []error
	for _, res := range r.Results {
		switch {
		case res.err != nil:
			errs = append(errs, fmt.Errorf("snapshot %s: %w", res.Resolution, res.err))
		case res.Error != "":
			errs = append(errs, fmt.Errorf("snapshot %s: %s", res.Resolution, res.Error))
		}
	}
	return errors.Join(errs...)
}
