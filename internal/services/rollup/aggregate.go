package rollup

import (
	"time"

	"FxRollup/internal/domain/models"
	"FxRollup/internal/domain/repository"
	"FxRollup/internal/services/sessions"
)

type bucketKey struct {
	symbol    string
	sessionID int64
	start     int64
}

type accumulator struct {
	row     models.ResolutionBucket
	firstTS time.Time
	lastTS  time.Time
}

func (a *accumulator) add(b models.Bar) {
	if a.row.BarsObserved == 0 {
		a.row.Open, a.row.High, a.row.Low, a.row.Close = b.Open, b.High, b.Low, b.Close
		a.firstTS, a.lastTS = b.Timestamp, b.Timestamp
	} else {
		if b.Timestamp.Before(a.firstTS) {
			a.firstTS = b.Timestamp
			a.row.Open = b.Open
		}
		if !b.Timestamp.Before(a.lastTS) {
			a.lastTS = b.Timestamp
			a.row.Close = b.Close
		}
		if b.High > a.row.High {
			a.row.High = b.High
		}
		if b.Low < a.row.Low {
			a.row.Low = b.Low
		}
	}
	a.row.Volume += b.Volume
	a.row.BarsObserved++
}

// Aggregate folds bars into buckets of res. In session mode a bar lands once
// in every active session of snap that it matches; sessions sharing a name
// stay separate rows. Hourly rows carry observed and expected bar counts.
func Aggregate(bars []models.Bar, res repository.Resolution, mode repository.Mode, snap *sessions.Snapshot, expected *sessions.ExpectedCache) []models.ResolutionBucket {
	width := res.Duration()
	if width <= 0 || len(bars) == 0 {
		return nil
	}

	accs := make(map[bucketKey]*accumulator)
	order := make([]bucketKey, 0)
	active := make(map[string][]*sessions.Session)
	byID := make(map[int64]*sessions.Session)

	put := func(b models.Bar, start time.Time, s *sessions.Session) {
		k := bucketKey{symbol: b.Symbol, start: start.UnixNano()}
		if s != nil {
			k.sessionID = s.ID()
		}
		a, ok := accs[k]
		if !ok {
			a = &accumulator{row: models.ResolutionBucket{
				Symbol:      b.Symbol,
				Resolution:  string(res),
				BucketStart: start,
			}}
			if s != nil {
				a.row.SessionID = s.ID()
				a.row.SessionName = s.Name()
				byID[s.ID()] = s
			}
			accs[k] = a
			order = append(order, k)
		}
		a.add(b)
	}

	for _, b := range bars {
		start := b.Timestamp.UTC().Truncate(width)
		if mode == repository.ModePlain {
			put(b, start, nil)
			continue
		}
		if snap == nil {
			continue
		}
		list, ok := active[b.Symbol]
		if !ok {
			list = snap.ListActive(b.Symbol)
			active[b.Symbol] = list
		}
		for _, s := range list {
			if s.Matches(b.Timestamp) {
				put(b, start, s)
			}
		}
	}

	out := make([]models.ResolutionBucket, 0, len(order))
	for _, k := range order {
		row := accs[k].row
		switch {
		case res != repository.R1h:
			row.BarsObserved = 0
		case mode == repository.ModeSession:
			row.BarsExpected = expected.Expected(row.BucketStart, byID[row.SessionID])
		default:
			row.BarsExpected = 60
		}
		out = append(out, row)
	}
	models.SortBuckets(out)
	return out
}
