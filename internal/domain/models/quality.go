package models

import "time"

// HourlyQualityRecord is the QC verdict for one (symbol, session, hour).
type HourlyQualityRecord struct {
	Symbol       string    `json:"symbol"`
	SessionID    int64     `json:"session_id"`
	SessionName  string    `json:"session_name"`
	Hour         time.Time `json:"hour"`
	BarsObserved int       `json:"bars_observed"`
	BarsExpected int       `json:"bars_expected"`
	Threshold    int       `json:"threshold"`
	OK           bool      `json:"ok"`
}

// CoverageGap is a contiguous run of in-session minutes without a bar.
type CoverageGap struct {
	Symbol      string    `json:"symbol"`
	SessionName string    `json:"session_name,omitempty"`
	Start       time.Time `json:"start"`
	Minutes     int       `json:"minutes"`
}
