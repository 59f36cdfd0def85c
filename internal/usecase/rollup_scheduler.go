package usecase

import (
	"context"
	"sync"
	"time"

	domrepo "FxRollup/internal/domain/repository"
	"FxRollup/internal/services/rollup"
	applogger "FxRollup/pkg/logger"
)

// RollupScheduler refreshes each resolution on its own cadence and, when
// snapshotEvery is set, runs refresh_all on a timer.
type RollupScheduler struct {
	engine        *rollup.Engine
	refresher     *SnapshotRefresher
	snapshotEvery time.Duration
	timeout       time.Duration
	l             *applogger.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewRollupScheduler(engine *rollup.Engine, refresher *SnapshotRefresher, snapshotEvery, timeout time.Duration, l *applogger.Logger) *RollupScheduler {
	if l == nil {
		l = applogger.Nop()
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &RollupScheduler{engine: engine, refresher: refresher, snapshotEvery: snapshotEvery, timeout: timeout, l: l}
}

// Start launches the tickers. Every resolution is refreshed once right away.
func (s *RollupScheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	for _, res := range domrepo.AllResolutions() {
		every := s.engine.Policy(res, domrepo.ModeSession).Every
		if p := s.engine.Policy(res, domrepo.ModePlain).Every; p > 0 && (every <= 0 || p < every) {
			every = p
		}
		if every <= 0 {
			continue
		}
		s.loop(ctx, every, func(ctx context.Context) { s.refreshResolution(ctx, res) })
	}
	if s.refresher != nil && s.snapshotEvery > 0 {
		s.loop(ctx, s.snapshotEvery, s.refreshSnapshots)
	}
}

// Stop cancels the tickers and waits for in-flight refreshes.
func (s *RollupScheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *RollupScheduler) loop(ctx context.Context, every time.Duration, run func(context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			run(ctx)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

func (s *RollupScheduler) refreshResolution(ctx context.Context, res domrepo.Resolution) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	now := s.engine.Now()
	for _, mode := range []domrepo.Mode{domrepo.ModePlain, domrepo.ModeSession} {
		// Failures are logged by the engine; the next tick retries.
		_ = s.engine.Refresh(ctx, res, mode, now)
	}
}

func (s *RollupScheduler) refreshSnapshots(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if _, err := s.refresher.RefreshAll(ctx); err != nil {
		s.l.Warn("scheduled snapshot refresh incomplete", applogger.Error(err))
	}
}
