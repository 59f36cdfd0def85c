package models

// Requests for rollup HTTP endpoints. Times are RFC3339 or unix seconds.

type RollupsRequest struct {
	Symbol     string `query:"symbol" json:"symbol" validate:"required"`
	Resolution string `query:"resolution" json:"resolution" default:"5m" validate:"oneof=5m 15m 1h 4h 1d"`
	Mode       string `query:"mode" json:"mode" default:"session" validate:"oneof=plain session"`
	Session    string `query:"session" json:"session"`
	From       string `query:"from" json:"from"`
	To         string `query:"to" json:"to"`
	Limit      int    `query:"limit" json:"limit" default:"500" validate:"gte=1,lte=10000"`
}

type SnapshotRequest struct {
	Resolution string `param:"resolution" validate:"oneof=5m 15m 1h"`
	Symbol     string `query:"symbol" json:"symbol" validate:"required"`
	Session    string `query:"session" json:"session"`
	From       string `query:"from" json:"from"`
	To         string `query:"to" json:"to"`
	Limit      int    `query:"limit" json:"limit" default:"500" validate:"gte=1,lte=10000"`
}

type QualityRequest struct {
	Symbol  string `query:"symbol" json:"symbol" validate:"required"`
	Session string `query:"session" json:"session"`
	From    string `query:"from" json:"from"`
	To      string `query:"to" json:"to"`
}

type SessionsRequest struct {
	Symbol string `query:"symbol" json:"symbol"`
}

type DisableSessionRequest struct {
	ID int64 `param:"id" validate:"gt=0"`
}
