package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"church-roster/common/logger"
	"church-roster/internal/app"
	"church-roster/internal/config"
	httpapi "church-roster/internal/http"
	"church-roster/internal/service"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.LoadFile(os.Getenv("ROSTER_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "roster-data")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log, app.Options{})
	if err != nil {
		log.Fatal("Failed to initialize roster-data", zap.Error(err))
	}
	defer a.Close()

	router := httpapi.NewRouter(log)
	router.RegisterRosterRoutes(httpapi.NewRosterHandler(a.Roster, log))
	router.RegisterPipelineRoutes(httpapi.NewPipelineHandler(a.Pipeline, log))
	router.RegisterOpsRoutes()

	if a.Pipeline != nil && cfg.Roster.SyncInterval > 0 {
		go a.Pipeline.StartPolling(ctx, cfg.Roster.SyncInterval)
	} else if a.Pipeline == nil {
		log.Info("No roster source configured, pipeline endpoints disabled")
	}

	if err := service.NewServer(cfg.HTTP.Addr, router, log).Run(ctx); err != nil {
		log.Error("HTTP server error", zap.Error(err))
	}
}
