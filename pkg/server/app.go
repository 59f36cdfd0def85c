package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"FxRollup/internal/domain/models"
	"FxRollup/internal/repository"
	"FxRollup/internal/services/rollup"
	"FxRollup/internal/usecase"
	"FxRollup/pkg/config"
	xhttp "FxRollup/pkg/http"
	pkgkafka "FxRollup/pkg/kafka"
	applogger "FxRollup/pkg/logger"
)

// App owns the process lifecycle: scheduler, Kafka consumer and HTTP server.
type App struct {
	cfg       *config.Config
	l         *applogger.Logger
	engine    *rollup.Engine
	refresher *usecase.SnapshotRefresher
	scheduler *usecase.RollupScheduler
	consumer  *pkgkafka.Consumer
	exporter  *repository.ParquetExporter
	http      *xhttp.Server
}

func New(
	cfg *config.Config,
	l *applogger.Logger,
	engine *rollup.Engine,
	refresher *usecase.SnapshotRefresher,
	scheduler *usecase.RollupScheduler,
	consumer *pkgkafka.Consumer,
	exporter *repository.ParquetExporter,
	http *xhttp.Server,
) *App {
	return &App{
		cfg:       cfg,
		l:         l,
		engine:    engine,
		refresher: refresher,
		scheduler: scheduler,
		consumer:  consumer,
		exporter:  exporter,
		http:      http,
	}
}

// Run starts every component and blocks until SIGINT/SIGTERM. Clients are
// closed by the injector's cleanup.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.scheduler.Start(ctx)
	if a.consumer != nil {
		if err := a.consumer.Start(); err != nil {
			a.l.Error("kafka consumer start", applogger.Error(err))
			a.shutdown(ctx)
			return err
		}
	}
	if err := a.http.Start(); err != nil {
		a.shutdown(ctx)
		return err
	}
	a.l.Info("fxrollup started",
		applogger.String("env", a.cfg.Environment),
		applogger.String("backend", a.cfg.Backend.Type),
		applogger.Int("port", a.cfg.Server.Port))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	a.l.Info("shutdown signal received")
	cancel()
	a.shutdown(context.Background())
	return nil
}

// RefreshOnce materialises rollups as of now, runs refresh_all and, when
// exportDir is set, writes every snapshot as parquet. A nil report means
// the run could not start.
func (a *App) RefreshOnce(ctx context.Context, exportDir string) (*models.RefreshReport, error) {
	if err := a.engine.RefreshAll(ctx, a.engine.Now()); err != nil {
		// Rollup failures leave earlier rows in place; the snapshot step still runs.
		a.l.Warn("rollup refresh", applogger.Error(err))
	}
	report, err := a.refresher.RefreshAll(ctx)
	if report == nil {
		return nil, err
	}
	if exportDir != "" {
		paths, xerr := a.exporter.Export(ctx, exportDir)
		if xerr != nil {
			return report, errors.Join(err, fmt.Errorf("export: %w", xerr))
		}
		a.l.Info("snapshots exported", applogger.Strings("files", paths))
	}
	return report, err
}

func (a *App) shutdown(ctx context.Context) {
	a.l.Info("shutting down")
	stopCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := a.http.Stop(stopCtx); err != nil {
		a.l.Warn("http shutdown", applogger.Error(err))
	}
	if a.consumer != nil {
		if err := a.consumer.Stop(stopCtx); err != nil {
			a.l.Warn("kafka consumer stop", applogger.Error(err))
		}
	}
	a.scheduler.Stop()
	a.l.Info("shutdown complete")
}
