package usecase

import (
	"context"
	"fmt"
	"time"

	"FxRollup/internal/domain/models"
	domrepo "FxRollup/internal/domain/repository"
	"FxRollup/internal/services/quality"
	"FxRollup/internal/services/sessions"
)

// MaxGapRange bounds a single coverage gap scan.
const MaxGapRange = 31 * 24 * time.Hour

// QualityUseCase exposes the hourly QC audit and the minute coverage report.
type QualityUseCase struct {
	gate         *quality.Gate
	registry     *sessions.Registry
	bars         domrepo.BarStore
	skipWeekends bool
}

func NewQualityUseCase(gate *quality.Gate, registry *sessions.Registry, bars domrepo.BarStore, skipWeekends bool) *QualityUseCase {
	return &QualityUseCase{gate: gate, registry: registry, bars: bars, skipWeekends: skipWeekends}
}

// QualityReport is the audit for a symbol over a range.
type QualityReport struct {
	Records []models.HourlyQualityRecord `json:"records"`
	Gaps    int                          `json:"gaps"`
	Passed  int                          `json:"passed"`
	Failed  int                          `json:"failed"`
}

func (uc *QualityUseCase) Records(ctx context.Context, symbol, session string, from, to time.Time) (*QualityReport, error) {
	records, gaps, err := uc.gate.Records(ctx, uc.registry.Snapshot(), domrepo.BucketFilter{
		Symbol: symbol, SessionName: session, From: from, To: to,
	})
	if err != nil {
		return nil, err
	}
	rep := &QualityReport{Records: records, Gaps: gaps}
	for _, r := range records {
		if r.OK {
			rep.Passed++
		} else {
			rep.Failed++
		}
	}
	return rep, nil
}

// Gaps lists contiguous runs of minutes in [from, to) without a bar. With a
// session name only minutes inside that session count; weekend minutes (UTC)
// are skipped when configured. Empty bounds default to the first and last bar.
func (uc *QualityUseCase) Gaps(ctx context.Context, symbol, session string, from, to time.Time) ([]models.CoverageGap, error) {
	if symbol == "" {
		return nil, &models.ConfigurationError{Field: "symbol", Reason: "required"}
	}
	var scope []*sessions.Session
	if session != "" {
		if scope = uc.registry.Snapshot().ByName(symbol, session); len(scope) == 0 {
			return nil, &models.ConfigurationError{Field: "session", Reason: fmt.Sprintf("no active session %q for %s", session, symbol)}
		}
	}

	from, to = from.UTC().Truncate(time.Minute), to.UTC().Truncate(time.Minute)
	bars, err := uc.bars.Scan(ctx, symbol, from, to)
	if err != nil {
		return nil, fmt.Errorf("scan bars: %w", err)
	}
	if len(bars) == 0 && (from.IsZero() || to.IsZero()) {
		return []models.CoverageGap{}, nil
	}
	if from.IsZero() {
		from = bars[0].Timestamp.UTC().Truncate(time.Minute)
	}
	if to.IsZero() {
		to = bars[len(bars)-1].Timestamp.UTC().Truncate(time.Minute).Add(time.Minute)
	}
	if to.Sub(from) > MaxGapRange {
		return nil, &models.ConfigurationError{Field: "to", Reason: fmt.Sprintf("range exceeds %s", MaxGapRange)}
	}

	have := make(map[int64]struct{}, len(bars))
	for _, b := range bars {
		have[b.Timestamp.UTC().Truncate(time.Minute).Unix()] = struct{}{}
	}

	gaps := []models.CoverageGap{}
	var run *models.CoverageGap
	for m := from; m.Before(to); m = m.Add(time.Minute) {
		_, present := have[m.Unix()]
		if present || !uc.counts(m, scope) {
			run = nil
			continue
		}
		if run != nil && run.Start.Add(time.Duration(run.Minutes)*time.Minute).Equal(m) {
			run.Minutes++
			continue
		}
		gaps = append(gaps, models.CoverageGap{Symbol: symbol, SessionName: session, Start: m, Minutes: 1})
		run = &gaps[len(gaps)-1]
	}
	return gaps, nil
}

func (uc *QualityUseCase) counts(m time.Time, scope []*sessions.Session) bool {
	if uc.skipWeekends {
		if wd := m.Weekday(); wd == time.Saturday || wd == time.Sunday {
			return false
		}
	}
	if len(scope) == 0 {
		return true
	}
	for _, s := range scope {
		if s.Matches(m) {
			return true
		}
	}
	return false
}
