package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"FlowSpectra/internal/config"
	"FlowSpectra/internal/geo"
	"FlowSpectra/internal/logging"
	"FlowSpectra/internal/query"

	"github.com/charmbracelet/log"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		log.Fatal("Failed to load .env", "error", err)
	}

	configPath := os.Getenv("FLOWSPECTRA_CONFIG")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		log.Fatal("Failed to load configuration", "error", err)
	}
	logging.Setup(cfg.Log.Level, false)

	var locator *geo.Locator
	if cfg.Geo.DatabasePath != "" {
		locator, err = geo.Open(cfg.Geo.DatabasePath)
		if err != nil {
			log.Fatal("Failed to open geo database", "error", err)
		}
		defer locator.Close()
	}

	// Find the first enabled ClickHouse sink config
	var chCfg *config.ClickHouseConfig
	for _, sinkDef := range cfg.Sinks {
		if sinkDef.Enabled && sinkDef.Type == "clickhouse" {
			chCfg = &sinkDef.ClickHouse
			break
		}
	}

	var history query.Querier
	if chCfg != nil {
		history, err = query.NewClickHouseQuerier(context.Background(), *chCfg)
		if err != nil {
			log.Fatal("Failed to create querier", "error", err)
		}
		defer history.Close()
	} else {
		log.Warn("No enabled ClickHouse sink found, history endpoints are disabled")
	}

	apiHandler := &APIHandler{
		taggedPath: cfg.Output.Path(cfg.Output.TaggedTable),
		locator:    locator,
		history:    history,
	}

	server := &http.Server{
		Addr:              cfg.API.ListenAddr,
		Handler:           apiHandler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("API server starting", "addr", server.Addr, "tagged_table", apiHandler.taggedPath)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Could not listen", "addr", server.Addr, "error", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("API server shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}
	log.Info("API server exited.")
}
