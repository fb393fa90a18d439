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

	"github.com/go-chi/chi/v5"
	chi_middleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/outreachd/interactiond/internal/gateway"
	"github.com/outreachd/interactiond/internal/interaction/app"
	interactionhttp "github.com/outreachd/interactiond/internal/interaction/transport/http"
	"github.com/outreachd/interactiond/internal/interaction/repository/postgres"
	"github.com/outreachd/interactiond/internal/platform/config"
	"github.com/outreachd/interactiond/internal/platform/database"
	"github.com/outreachd/interactiond/internal/platform/logger"
	"github.com/outreachd/interactiond/internal/platform/messagebroker"
)

const (
	serviceName     = "interactiond"
	shutdownTimeout = 10 * time.Second
)

func main() {
	mainCtx, mainCancel := context.WithCancel(context.Background())
	defer mainCancel()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	log.Info("starting service", "service", serviceName)

	dbPool, err := database.NewDBPool(mainCtx, cfg.PostgresDSN)
	if err != nil {
		log.Error("failed to initialize database pool", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()
	log.Info("database connection pool initialized")

	natsClient, err := messagebroker.NewNATSClient(cfg.NATSUrl, serviceName, log)
	if err != nil {
		log.Error("failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer natsClient.Close()
	log.Info("NATS connection initialized")

	// Repositories
	numberRepo := postgres.NewPgNumberRepository(dbPool)
	actionRepo := postgres.NewPgActionRepository(dbPool)
	userRepo := postgres.NewPgUserRepository(dbPool)
	inboundRepo := postgres.NewPgInboundRepository(dbPool)
	outboundRepo := postgres.NewPgOutboundRepository(dbPool)

	// Gateway client
	gatewayClient := gateway.NewRESTClient(log, cfg.GatewayBaseURL, cfg.GatewayAccountSID, cfg.GatewayAuthToken, nil)

	// Application services
	dispatcher := app.NewDispatcher(actionRepo, outboundRepo, gatewayClient, cfg.PublicBaseURL, log)
	subscriptions := app.NewSubscriptionManager(userRepo, gatewayClient, log)
	tracker := app.NewTracker(outboundRepo, actionRepo, numberRepo, userRepo, gatewayClient, natsClient, log)
	processor := app.NewInboundProcessor(
		numberRepo, userRepo, inboundRepo, outboundRepo, actionRepo,
		dispatcher, subscriptions, gatewayClient, natsClient, log,
	)

	// HTTP router
	r := chi.NewRouter()
	r.Use(chi_middleware.RequestID)
	r.Use(chi_middleware.RealIP)
	r.Use(chi_middleware.Recoverer)
	r.Use(chi_middleware.Timeout(30 * time.Second))

	webhookHandler := interactionhttp.NewWebhookHandler(processor, tracker, log)
	webhookHandler.RegisterRoutes(r)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := dbPool.Ping(r.Context()); err != nil {
			http.Error(w, "database unreachable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, groupCtx := errgroup.WithContext(mainCtx)

	g.Go(func() error {
		log.Info("HTTP server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("received termination signal", "signal", sig.String())
	case <-groupCtx.Done():
		log.Error("a component failed, initiating shutdown", "error", groupCtx.Err())
	}

	mainCancel()
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("error during shutdown", "error", err)
	}

	log.Info("service shutdown complete")
}
