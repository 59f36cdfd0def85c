package repository

import "time"

// Resolution is a rollup bucket width.
type Resolution string

const (
	R5m  Resolution = "5m"
	R15m Resolution = "15m"
	R1h  Resolution = "1h"
	R4h  Resolution = "4h"
	R1d  Resolution = "1d"
)

// Mode selects plain or session-scoped rollups.
type Mode string

const (
	ModePlain   Mode = "plain"
	ModeSession Mode = "session"
)

// AllResolutions lists every rollup resolution, finest first.
func AllResolutions() []Resolution {
	return []Resolution{R5m, R15m, R1h, R4h, R1d}
}

// SnapshotResolutions lists the resolutions with QC-filtered snapshots.
func SnapshotResolutions() []Resolution {
	return []Resolution{R5m, R15m, R1h}
}

// Duration returns the bucket width, or 0 for an unknown resolution.
func (r Resolution) Duration() time.Duration {
	switch r {
	case R5m:
		return 5 * time.Minute
	case R15m:
		return 15 * time.Minute
	case R1h:
		return time.Hour
	case R4h:
		return 4 * time.Hour
	case R1d:
		return 24 * time.Hour
	default:
		return 0
	}
}

// Align floors t to the bucket grid (UTC epoch aligned).
func (r Resolution) Align(t time.Time) time.Time {
	return t.UTC().Truncate(r.Duration())
}

// IsValidResolution returns true if r is a supported resolution.
func IsValidResolution(r Resolution) bool {
	return r.Duration() > 0
}

// IsSnapshotResolution returns true if r has a QC snapshot.
func IsSnapshotResolution(r Resolution) bool {
	switch r {
	case R5m, R15m, R1h:
		return true
	default:
		return false
	}
}

// DefaultResolution returns the default resolution.
func DefaultResolution() Resolution { return R5m }

// NormalizeResolution converts raw string to a valid resolution (or default).
func NormalizeResolution(s string) Resolution {
	if s == "" {
		return DefaultResolution()
	}
	r := Resolution(s)
	if IsValidResolution(r) {
		return r
	}
	return DefaultResolution()
}

// IsValidMode returns true if m is plain or session.
func IsValidMode(m Mode) bool {
	return m == ModePlain || m == ModeSession
}
