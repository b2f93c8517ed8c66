// GadgetGrove - E-commerce Clickstream Analytics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gadgetgrove

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/tomtom215/gadgetgrove/internal/api"
	"github.com/tomtom215/gadgetgrove/internal/artifacts"
	"github.com/tomtom215/gadgetgrove/internal/config"
	"github.com/tomtom215/gadgetgrove/internal/emitter"
	"github.com/tomtom215/gadgetgrove/internal/logging"
	"github.com/tomtom215/gadgetgrove/internal/reporting"
	"github.com/tomtom215/gadgetgrove/internal/staging"
	"github.com/tomtom215/gadgetgrove/internal/supervisor"
	"github.com/tomtom215/gadgetgrove/internal/supervisor/services"
	"github.com/tomtom215/gadgetgrove/internal/warehouse"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// reportCacheTTL bounds how stale /api/reports/summary may be between
// pipeline runs.
const reportCacheTTL = 30 * time.Second

//nolint:gocyclo // Sequential wiring of every component.
func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logging.Info().Str("version", version).Msg("Starting GadgetGrove with supervisor tree")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := warehouse.Open(ctx, warehouse.ConfigFrom(cfg.Warehouse))
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open warehouse")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing warehouse")
		}
	}()

	slogger := logging.NewSlogLogger()
	tree, err := supervisor.NewSupervisorTree(slogger, supervisor.DefaultTreeConfig())
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	reports := reporting.NewService(db, reportCacheTTL)
	deps := api.Dependencies{
		Reports: reports,
		Version: version,
		HealthChecks: []api.HealthCheck{
			{Name: "warehouse", Check: db.Ping},
		},
	}

	// === BROKER ===

	var broker *BrokerComponents
	if cfg.NATS.Enabled {
		broker, err = InitBroker(ctx, cfg, watermill.NewSlogLogger(slogger))
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to initialize broker")
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			broker.Close(shutdownCtx)
		}()

		deps.Dispatcher = broker.Dispatcher
		deps.QueueStats = broker.QueueStats
		routerSvc := services.NewRouterService(broker.NewConsumerRouter)
		tree.AddMessagingService(routerSvc)
		deps.HealthChecks = append(deps.HealthChecks,
			api.HealthCheck{Name: "broker", Check: broker.HealthCheck},
			api.HealthCheck{Name: "consumer", Check: routerSvc.HealthCheck},
		)
	} else {
		logging.Info().Msg("Broker disabled (NATS_ENABLED=false), ingest and consumer are off")
	}

	// === PIPELINE AND SWEEPER ===

	reportsDir := artifacts.NewMarkdown(cfg.Staging.ReportsDir)
	if cfg.Staging.Enabled {
		pipeline, err := staging.FromConfig(cfg, db, reportsDir)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to create staging pipeline")
		}
		tree.AddPipelineService(services.NewScheduledJobService(
			"staging-pipeline", cfg.Staging.Interval, cfg.Staging.RunOnStart,
			pipelineJob(pipeline, reports.Invalidate)))
		logging.Info().
			Dur("interval", cfg.Staging.Interval).
			Str("transform_mode", cfg.Transform.Mode).
			Msg("Staging pipeline scheduled")
	}
	if cfg.Retention.Enabled {
		sweeper := staging.NewSweeper(cfg.Staging.ArchiveDir, reportsDir)
		tree.AddPipelineService(services.NewScheduledJobService(
			"retention-sweeper", cfg.Retention.Interval, cfg.Retention.RunOnStart,
			sweepJob(sweeper, cfg.Retention)))
		logging.Info().
			Int("retention_hours", cfg.Retention.Hours).
			Dur("interval", cfg.Retention.Interval).
			Msg("Retention sweeper scheduled")
	}

	// === EMITTER ===

	// /simulate works whenever the broker is up; the paced loop only with
	// EMITTER_ENABLED.
	if broker != nil {
		em := emitter.New(
			emitter.NewGenerator(cfg.Emitter.Seed, cfg.Emitter.PurchaseRate),
			broker.Dispatcher,
			emitter.Config{SessionsPerMinute: cfg.Emitter.SessionsPerMinute, Burst: cfg.Emitter.Burst},
		)
		deps.Emitter = em
		if cfg.Emitter.Enabled {
			tree.AddEmitterService(services.NewRunnerService("event-emitter", em))
			logging.Info().Float64("sessions_per_minute", cfg.Emitter.SessionsPerMinute).Msg("Event emitter enabled")
		}
	}

	// === HTTP ===

	handler := api.NewHandler(deps)
	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           api.NewRouter(handler, api.MiddlewareConfigFrom(cfg.Security)),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		WriteTimeout:      cfg.Server.Timeout,
		IdleTimeout:       60 * time.Second,
	}
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	// === START SUPERVISOR TREE ===

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree...")
	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Supervisor tree error")
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}
	logging.Info().Msg("GadgetGrove stopped")
}
