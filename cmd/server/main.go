// ecotrace - carbon footprint tracker server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"

	"github.com/ashureev/ecotrace/internal/api"
	"github.com/ashureev/ecotrace/internal/config"
	"github.com/ashureev/ecotrace/internal/footprint"
	"github.com/ashureev/ecotrace/internal/identity"
	"github.com/ashureev/ecotrace/internal/live"
	"github.com/ashureev/ecotrace/internal/middleware"
	"github.com/ashureev/ecotrace/internal/observability"
	"github.com/ashureev/ecotrace/internal/rpc"
	"github.com/ashureev/ecotrace/internal/snapshot"
	"github.com/ashureev/ecotrace/internal/store"
	"github.com/ashureev/ecotrace/internal/tracker"
	"github.com/ashureev/ecotrace/web"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "grpc_port", cfg.GRPCPort, "dev", cfg.IsDevelopment())

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected", "path", cfg.DBPath)

	// Initialize services.
	hub := live.NewHub(cfg.Timeout.PushWrite)
	svc := tracker.NewService(repo, footprint.NewEngine(nil), cfg.Retry)
	svc.SetPublisher(hub)
	tokens := identity.NewTokenIssuer(cfg.Token)

	// Initialize handlers.
	baseHandler := api.NewHandler(repo, svc, tokens)
	activityHandler := api.NewActivityHandler(baseHandler)
	healthHandler := api.NewHealthHandler(repo, cfg)
	wsHandler := live.NewHandler(repo, svc, hub, cfg.FrontendURL, cfg.IsDevelopment())

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(middleware.AllowedOrigins(cfg.FrontendURL, cfg.IsDevelopment())))
	r.Use(observability.HTTPMetrics)

	// Probes and scrapes run without identity so they do not create users.
	r.Handle("/metrics", promhttp.Handler())
	healthHandler.RegisterHealth(r)

	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(repo, tokens, cfg.IsDevelopment()))

		activityHandler.RegisterRoutes(r)

		// WebSocket endpoint.
		r.Get("/ws/live", wsHandler.ServeHTTP)
	})

	// Serve embedded frontend (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
		// No WriteTimeout: websocket connections are long-lived.
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start snapshot worker.
	worker := snapshot.NewWorker(repo, cfg.Snapshot, cfg.Retry)
	worker.SetUserDeletedCallback(hub.CloseUser)
	if err := worker.Start(ctx); err != nil {
		slog.Error("Failed to start snapshot worker", "error", err)
		os.Exit(1)
	}

	// Start gRPC server.
	var grpcServer *grpc.Server
	if cfg.GRPCPort != "" {
		lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
		if err != nil {
			slog.Error("Failed to listen for gRPC", "error", err, "port", cfg.GRPCPort)
			os.Exit(1)
		}
		grpcServer = rpc.NewGRPCServer(rpc.NewServer(svc, repo, tokens))
		go func() {
			slog.Info("gRPC server listening", "addr", lis.Addr().String())
			if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				slog.Error("gRPC server failed", "error", err)
				os.Exit(1)
			}
		}()
	}

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeout.Shutdown)
	defer cancel()

	if grpcServer != nil {
		stopped := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-shutdownCtx.Done():
			grpcServer.Stop()
		}
	}

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
