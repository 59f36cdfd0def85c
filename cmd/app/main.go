package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"FxRollup/internal/di"
	"FxRollup/pkg/config"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	refreshOnce := flag.Bool("refresh-once", false, "refresh rollups and QC snapshots once, then exit (0 ok, 2 partial failure, 1 fatal)")
	exportDir := flag.String("export-dir", "", "with -refresh-once, write every snapshot as parquet into this directory")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	if *exportDir == "" {
		*exportDir = cfg.Snapshot.ExportDir
	}

	app, cleanup, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}

	if *refreshOnce {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		report, err := app.RefreshOnce(ctx, *exportDir)
		stop()
		cleanup()
		switch {
		case report == nil:
			log.Printf("refresh failed: %v", err)
			os.Exit(1)
		case err != nil:
			log.Printf("refresh partially failed: %v", err)
			os.Exit(2)
		case report.Skipped:
			log.Printf("refresh skipped: another run holds the lock")
		}
		return
	}

	err = app.Run()
	cleanup()
	if err != nil {
		log.Printf("app error: %v", err)
		os.Exit(1)
	}
}
