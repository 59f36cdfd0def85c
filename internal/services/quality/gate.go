package quality

import (
	"context"
	"fmt"
	"math"
	"time"

	"FxRollup/internal/domain/models"
	"FxRollup/internal/domain/repository"
	"FxRollup/internal/services/sessions"
)

// ceilEpsilon absorbs float noise such as 60*0.95 = 57.00000000000001.
const ceilEpsilon = 1e-9

// Threshold is max(ceil(expected*ratio), minAbs).
func Threshold(expected int, ratio float64, minAbs int) int {
	t := int(math.Ceil(float64(expected)*ratio - ceilEpsilon))
	if t < minAbs {
		t = minAbs
	}
	return t
}

// HourKey identifies one session-hour.
type HourKey struct {
	Symbol    string
	SessionID int64
	Hour      int64
}

// KeyOf returns the HourKey of the hour containing b.
func KeyOf(b models.ResolutionBucket) HourKey {
	return HourKey{Symbol: b.Symbol, SessionID: b.SessionID, Hour: b.HourStart().Unix()}
}

// Gate turns hourly session buckets into QC verdicts.
type Gate struct {
	rollups repository.RollupStore
	metrics repository.Metrics
}

func NewGate(rollups repository.RollupStore, metrics repository.Metrics) *Gate {
	return &Gate{rollups: rollups, metrics: metrics}
}

// Evaluate grades one hourly session bucket against the session in snap that
// produced it. An absent or disabled session yields a QualityGateGap.
func Evaluate(snap *sessions.Snapshot, b models.ResolutionBucket) (models.HourlyQualityRecord, error) {
	hour := b.HourStart()
	s, ok := snap.ByID(b.SessionID)
	if !ok || !s.AppliesTo(b.Symbol) {
		return models.HourlyQualityRecord{}, &models.QualityGateGap{Symbol: b.Symbol, SessionName: b.SessionName, Hour: hour}
	}
	d := s.Definition
	threshold := Threshold(b.BarsExpected, d.MinFillRatio, d.MinBarsAbs)
	return models.HourlyQualityRecord{
		Symbol:       b.Symbol,
		SessionID:    d.ID,
		SessionName:  d.Name,
		Hour:         hour,
		BarsObserved: b.BarsObserved,
		BarsExpected: b.BarsExpected,
		Threshold:    threshold,
		OK:           b.BarsObserved >= threshold,
	}, nil
}

// EvaluateAll grades every bucket with one snapshot and counts the gaps.
func (g *Gate) EvaluateAll(snap *sessions.Snapshot, buckets []models.ResolutionBucket) ([]models.HourlyQualityRecord, int) {
	out := make([]models.HourlyQualityRecord, 0, len(buckets))
	gaps := 0
	for _, b := range buckets {
		rec, err := Evaluate(snap, b)
		if err != nil {
			gaps++
			continue
		}
		if g != nil && g.metrics != nil {
			g.metrics.RecordQuality(rec.SessionName, rec.OK)
		}
		out = append(out, rec)
	}
	return out, gaps
}

// EvaluateHour grades (symbol, sessionName, hour). One record is returned per
// session identity with that name; a QualityGateGap when there is none.
func (g *Gate) EvaluateHour(ctx context.Context, snap *sessions.Snapshot, symbol, sessionName string, hour time.Time) ([]models.HourlyQualityRecord, error) {
	hour = hour.UTC().Truncate(time.Hour)
	gap := &models.QualityGateGap{Symbol: symbol, SessionName: sessionName, Hour: hour}
	if len(snap.ByName(symbol, sessionName)) == 0 {
		return nil, gap
	}
	buckets, err := g.rollups.List(ctx, repository.R1h, repository.ModeSession, repository.BucketFilter{
		Symbol: symbol, SessionName: sessionName, From: hour, To: hour.Add(time.Hour),
	})
	if err != nil {
		return nil, fmt.Errorf("list hourly buckets: %w", err)
	}
	records, _ := g.EvaluateAll(snap, buckets)
	if len(records) == 0 {
		return nil, gap
	}
	return records, nil
}

// Records grades every hourly session bucket matching f.
func (g *Gate) Records(ctx context.Context, snap *sessions.Snapshot, f repository.BucketFilter) ([]models.HourlyQualityRecord, int, error) {
	buckets, err := g.rollups.List(ctx, repository.R1h, repository.ModeSession, f)
	if err != nil {
		return nil, 0, fmt.Errorf("list hourly buckets: %w", err)
	}
	records, gaps := g.EvaluateAll(snap, buckets)
	return records, gaps, nil
}

// PassingHours indexes the records with OK set.
func PassingHours(records []models.HourlyQualityRecord) map[HourKey]struct{} {
	out := make(map[HourKey]struct{}, len(records))
	for _, r := range records {
		if r.OK {
			out[HourKey{Symbol: r.Symbol, SessionID: r.SessionID, Hour: r.Hour.Unix()}] = struct{}{}
		}
	}
	return out
}

// FilterPassing keeps the buckets whose containing hour passed.
func FilterPassing(buckets []models.ResolutionBucket, passing map[HourKey]struct{}) []models.ResolutionBucket {
	out := make([]models.ResolutionBucket, 0, len(buckets))
	for _, b := range buckets {
		if _, ok := passing[KeyOf(b)]; ok {
			out = append(out, b)
		}
	}
	return out
}
