package main

import (
	"context"
	"log"
	"net/http"

	"github.com/gorilla/sessions"
	"go.uber.org/zap"

	"github.com/zwinlu/tidb-dashboard/pkg/config"
	"github.com/zwinlu/tidb-dashboard/pkg/dashboard"
	"github.com/zwinlu/tidb-dashboard/pkg/handlers"
	"github.com/zwinlu/tidb-dashboard/pkg/middleware"
	"github.com/zwinlu/tidb-dashboard/pkg/models"
	"github.com/zwinlu/tidb-dashboard/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	// Load configuration
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := buildLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("environment", cfg.Env),
		zap.String("dashboard_endpoint", cfg.Dashboard.Endpoint),
		zap.Bool("persist_query_options", cfg.PersistQueryOptions))

	client := dashboard.NewClient(cfg.Dashboard, logger)

	optionStore, err := services.NewOptionStore(cfg.PersistQueryOptions, models.DefaultQueryOptions())
	if err != nil {
		log.Fatalf("Failed to create option store: %v", err)
	}

	controller := services.NewStatementController(client, optionStore, logger, nil)
	controller.Refresh(context.Background())

	sessionStore := sessions.NewCookieStore([]byte(cfg.SessionKey))

	mux := http.NewServeMux()

	healthHandler := handlers.NewHealthHandler(cfg, logger)
	healthHandler.RegisterRoutes(mux)

	statementHandler := handlers.NewStatementHandler(controller, sessionStore, logger)
	statementHandler.RegisterRoutes(mux)

	handler := middleware.RequestLogger(logger)(mux)

	addr := cfg.BindAddr + ":" + cfg.Port
	logger.Info("Starting statement view service",
		zap.String("addr", addr),
		zap.String("version", cfg.Version))
	if err := http.ListenAndServe(addr, handler); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

func buildLogger(env string) (*zap.Logger, error) {
	if env == "local" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
