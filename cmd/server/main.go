// solvd - local math solving daemon
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/nkarpov/solvd/internal/api"
	"github.com/nkarpov/solvd/internal/background"
	"github.com/nkarpov/solvd/internal/config"
	"github.com/nkarpov/solvd/internal/engine"
	"github.com/nkarpov/solvd/internal/middleware"
	"github.com/nkarpov/solvd/internal/notify"
	"github.com/nkarpov/solvd/internal/ocr"
	"github.com/nkarpov/solvd/internal/solver"
	"github.com/nkarpov/solvd/internal/store"
	"github.com/nkarpov/solvd/internal/stream"
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

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "model", cfg.Engine.ModelName)

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
	slog.Info("Database connected")

	// Inference engine client and model gateway.
	client := engine.NewClient(cfg.Engine.Addr, logger)
	prov := engine.NewProvisioner(cfg.Engine.ModelDir, cfg.Engine.ModelName)
	pool := solver.NewSessionPool()
	gateway := solver.NewModelGateway(client, prov, pool, cfg.Engine, logger)

	// Warm the model eagerly so the first solve does not pay the load cost.
	// The gateway re-initializes on demand, so a cold engine at startup is
	// not fatal.
	warmCtx, warmCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := gateway.Initialize(warmCtx); err != nil {
		slog.Warn("Model not ready at startup, will retry on first solve", "error", err)
	} else {
		slog.Info("Model loaded", "model", cfg.Engine.ModelName)
	}
	warmCancel()

	// Solving core.
	hub := stream.NewHub()
	notifier := notify.NewLogNotifier(logger)
	orch := solver.NewOrchestrator(gateway, repo, notifier, hub, logger)
	// No OCR backend ships yet; the model's extraction phase handles images.
	orch.SetExtractor(ocr.Disabled{})

	// Detached solving tasks for clients that do not wait on the request.
	runner := background.NewRunner(solveTask(orch), logger)

	// Handlers.
	baseHandler := api.NewHandler(repo, orch)
	problemHandler := api.NewProblemHandler(baseHandler, runner)
	healthHandler := api.NewHealthHandler(repo, client)
	wsHandler := stream.NewWebSocketHandler(hub, cfg.AllowedOrigin, cfg.IsDevelopment())

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	corsOrigin := cfg.AllowedOrigin
	if corsOrigin == "" {
		corsOrigin = "*"
	}
	r.Use(middleware.CORS([]string{corsOrigin}))

	healthHandler.RegisterHealth(r)
	problemHandler.RegisterRoutes(r)

	// WebSocket endpoint for live solving output.
	r.Get("/ws/problems/{problemID}", wsHandler.ServeHTTP)

	// Create server.
	// Note: solves stream for minutes; no WriteTimeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	runner.CancelAll()
	runner.Wait()
	hub.CloseAll()

	slog.Info("Server stopped successfully")
}

// solveTask adapts the orchestrator to the background runner. Image payloads
// arrive as spill-file paths; the file is consumed and removed.
func solveTask(orch *solver.Orchestrator) background.TaskFunc {
	return func(ctx context.Context, p background.Payload) error {
		switch p.ProblemType {
		case background.TypeImage:
			image, err := os.ReadFile(p.ImagePath)
			if removeErr := os.Remove(p.ImagePath); removeErr != nil {
				slog.Warn("Failed to remove image spill file", "path", p.ImagePath, "error", removeErr)
			}
			if err != nil {
				return fmt.Errorf("read image payload: %w", err)
			}
			if p.UserQuestion != "" {
				_, err = orch.SolveFromImageWithText(ctx, image, p.UserQuestion)
			} else {
				_, err = orch.SolveFromImage(ctx, image)
			}
			return err
		case background.TypeText:
			_, err := orch.SolveFromText(ctx, p.ProblemText)
			return err
		default:
			return fmt.Errorf("unknown problem type: %q", p.ProblemType)
		}
	}
}
