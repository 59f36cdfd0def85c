package rollup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"FxRollup/internal/domain/models"
	"FxRollup/internal/domain/repository"
	"FxRollup/internal/services/sessions"
	applogger "FxRollup/pkg/logger"
)

// scanChunk bounds how much raw history one Scan call loads.
const scanChunk = 7 * day

// Engine materialises rollups from the bar store.
type Engine struct {
	bars     repository.BarStore
	rollups  repository.RollupStore
	registry *sessions.Registry
	expected *sessions.ExpectedCache
	policies Policies
	metrics  repository.Metrics
	l        *applogger.Logger
	now      func() time.Time
}

// EngineOption configures Engine.
type EngineOption func(*Engine)

func WithPolicies(p Policies) EngineOption {
	return func(e *Engine) { e.policies = p }
}

func WithExpectedCache(c *sessions.ExpectedCache) EngineOption {
	return func(e *Engine) { e.expected = c }
}

func WithMetrics(m repository.Metrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

func WithLogger(l *applogger.Logger) EngineOption {
	return func(e *Engine) { e.l = l }
}

func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

func NewEngine(bars repository.BarStore, rollups repository.RollupStore, registry *sessions.Registry, opts ...EngineOption) *Engine {
	e := &Engine{
		bars:     bars,
		rollups:  rollups,
		registry: registry,
		policies: DefaultPolicies(),
		l:        applogger.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Policy returns the active policy for (res, mode).
func (e *Engine) Policy(res repository.Resolution, mode repository.Mode) Policy {
	return e.policies.For(res, mode)
}

// Now returns the engine clock.
func (e *Engine) Now() time.Time { return e.now() }

// Refresh recomputes every closed bucket of (res, mode) inside the policy
// horizon and replaces the stored range with it. Rows already stored stay
// as they are on failure.
func (e *Engine) Refresh(ctx context.Context, res repository.Resolution, mode repository.Mode, now time.Time) error {
	if !repository.IsValidResolution(res) || !repository.IsValidMode(mode) {
		return &models.ConfigurationError{Field: "resolution", Reason: fmt.Sprintf("unsupported %s/%s", res, mode)}
	}
	start := time.Now()
	from, to := e.policies.For(res, mode).Window(res, now)
	if !to.After(from) {
		return nil
	}

	snap := e.registry.Snapshot()
	symbols, err := e.bars.Symbols(ctx)
	if err != nil {
		return e.fail("symbols", res, mode, err)
	}

	rows := 0
	for _, sym := range symbols {
		n, err := e.refreshSymbol(ctx, res, mode, snap, sym, from, to)
		rows += n
		if err != nil {
			return e.fail("refresh "+sym, res, mode, err)
		}
	}

	if err := e.advanceWatermark(ctx, res, mode, to); err != nil {
		return e.fail("watermark", res, mode, err)
	}

	if e.metrics != nil {
		e.metrics.RecordRefresh("rollup_"+string(mode), string(res), "ok")
		e.metrics.RecordRows("rollup_"+string(mode), string(res), rows)
		e.metrics.RecordLatency("rollup_refresh_"+string(res), time.Since(start).Seconds())
	}
	e.l.Debug("rollup refreshed",
		applogger.String("resolution", string(res)),
		applogger.String("mode", string(mode)),
		applogger.Time("from", from),
		applogger.Time("to", to),
		applogger.Int("rows", rows),
		applogger.Duration("took_ms", time.Since(start)),
	)
	return nil
}

func (e *Engine) refreshSymbol(ctx context.Context, res repository.Resolution, mode repository.Mode, snap *sessions.Snapshot, symbol string, from, to time.Time) (int, error) {
	step := res.Duration() * time.Duration(max(1, int64(scanChunk/res.Duration())))
	var owned []int64
	if mode == repository.ModeSession {
		active := snap.ListActive(symbol)
		owned = make([]int64, 0, len(active))
		for _, s := range active {
			owned = append(owned, s.ID())
		}
	}
	rows := 0
	for lo := from; lo.Before(to); lo = lo.Add(step) {
		if err := ctx.Err(); err != nil {
			return rows, err
		}
		hi := lo.Add(step)
		if hi.After(to) {
			hi = to
		}
		bars, err := e.bars.Scan(ctx, symbol, lo, hi)
		if err != nil {
			return rows, fmt.Errorf("scan: %w", err)
		}
		// Replacing the chunk drops buckets of active sessions that no longer
		// match after a definition changed. Disabled sessions keep theirs.
		buckets := Aggregate(bars, res, mode, snap, e.expected)
		if err := e.rollups.Replace(ctx, res, mode, symbol, owned, lo, hi, buckets); err != nil {
			return rows, fmt.Errorf("replace: %w", err)
		}
		rows += len(buckets)
	}
	return rows, nil
}

func (e *Engine) advanceWatermark(ctx context.Context, res repository.Resolution, mode repository.Mode, to time.Time) error {
	cur, err := e.rollups.Watermark(ctx, res, mode)
	if err != nil {
		return err
	}
	if !to.After(cur) {
		return nil
	}
	return e.rollups.SetWatermark(ctx, res, mode, to)
}

func (e *Engine) fail(stage string, res repository.Resolution, mode repository.Mode, err error) error {
	if e.metrics != nil {
		e.metrics.RecordRefresh("rollup_"+string(mode), string(res), "error")
		e.metrics.RecordError("rollup_refresh")
	}
	e.l.Error("rollup refresh failed",
		applogger.String("stage", stage),
		applogger.String("resolution", string(res)),
		applogger.String("mode", string(mode)),
		applogger.Error(err),
	)
	return &models.AggregationFailure{Stage: stage, Resolution: string(res) + "/" + string(mode), Err: err}
}

// RefreshAll refreshes every resolution in both modes. One failure does not
// stop the others; all failures are joined.
func (e *Engine) RefreshAll(ctx context.Context, now time.Time) error {
	var errs []error
	for _, res := range repository.AllResolutions() {
		for _, mode := range []repository.Mode{repository.ModePlain, repository.ModeSession} {
			if err := e.Refresh(ctx, res, mode, now); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Query returns rollups for f. Rows up to the watermark come from the store;
// later buckets, including the still-open one, are aggregated live from bars
// and may change until they are materialised.
func (e *Engine) Query(ctx context.Context, res repository.Resolution, mode repository.Mode, f repository.BucketFilter) ([]models.ResolutionBucket, error) {
	if !repository.IsValidResolution(res) || !repository.IsValidMode(mode) {
		return nil, &models.ConfigurationError{Field: "resolution", Reason: fmt.Sprintf("unsupported %s/%s", res, mode)}
	}
	wm, err := e.rollups.Watermark(ctx, res, mode)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	// Both ranges start at the bucket containing From.
	if !f.From.IsZero() {
		f.From = res.Align(f.From)
	}
	var out []models.ResolutionBucket
	if !wm.IsZero() && (f.From.IsZero() || f.From.Before(wm)) {
		mf := f
		mf.Limit = 0
		if mf.To.IsZero() || mf.To.After(wm) {
			mf.To = wm
		}
		if out, err = e.rollups.List(ctx, res, mode, mf); err != nil {
			return nil, fmt.Errorf("list rollups: %w", err)
		}
	}

	liveFrom := f.From
	if !wm.IsZero() && liveFrom.Before(wm) {
		liveFrom = wm
	}
	liveTo := f.To
	if liveTo.IsZero() {
		liveTo = e.now().Add(res.Duration())
	}
	if liveFrom.Before(liveTo) {
		live, err := e.live(ctx, res, mode, f, liveFrom, liveTo)
		if err != nil {
			return nil, err
		}
		out = append(out, live...)
	}

	models.SortBuckets(out)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[len(out)-f.Limit:]
	}
	return out, nil
}

func (e *Engine) live(ctx context.Context, res repository.Resolution, mode repository.Mode, f repository.BucketFilter, from, to time.Time) ([]models.ResolutionBucket, error) {
	symbols := []string{f.Symbol}
	if f.Symbol == "" {
		var err error
		if symbols, err = e.bars.Symbols(ctx); err != nil {
			return nil, fmt.Errorf("symbols: %w", err)
		}
	}
	snap := e.registry.Snapshot()
	var out []models.ResolutionBucket
	for _, sym := range symbols {
		bars, err := e.bars.Scan(ctx, sym, from, to)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", sym, err)
		}
		for _, row := range Aggregate(bars, res, mode, snap, e.expected) {
			lf := f
			lf.From, lf.To = time.Time{}, time.Time{}
			if lf.Match(row) {
				out = append(out, row)
			}
		}
	}
	return out, nil
}
