package models

import (
	"sort"
	"time"
)

// Bar is a one-minute OHLCV fact keyed by (Symbol, Timestamp).
type Bar struct {
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"ts"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	Source    string    `json:"source,omitempty"`
}

// ResolutionBucket is an OHLCV aggregate over [BucketStart, BucketStart+Resolution).
// SessionID and SessionName are zero for plain (non-session) rollups.
type ResolutionBucket struct {
	Symbol       string    `json:"symbol"`
	SessionID    int64     `json:"session_id,omitempty"`
	SessionName  string    `json:"session_name,omitempty"`
	Resolution   string    `json:"resolution"`
	BucketStart  time.Time `json:"bucket_start"`
	Open         float64   `json:"open"`
	High         float64   `json:"high"`
	Low          float64   `json:"low"`
	Close        float64   `json:"close"`
	Volume       float64   `json:"volume"`
	BarsObserved int       `json:"bars_observed,omitempty"`
	BarsExpected int       `json:"bars_expected,omitempty"`
}

// HourStart returns the start of the UTC hour containing the bucket.
func (b ResolutionBucket) HourStart() time.Time {
	return b.BucketStart.UTC().Truncate(time.Hour)
}

// SortBuckets orders rows by symbol, session name, session id, then bucket start.
func SortBuckets(rows []ResolutionBucket) {
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Symbol != b.Symbol {
			return a.Symbol < b.Symbol
		}
		if a.SessionName != b.SessionName {
			return a.SessionName < b.SessionName
		}
		if a.SessionID != b.SessionID {
			return a.SessionID < b.SessionID
		}
		return a.BucketStart.Before(b.BucketStart)
	})
}
