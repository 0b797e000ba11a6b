package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/mikeboe/research-advisor/pkg/app"
	"github.com/mikeboe/research-advisor/pkg/assistant"
	"github.com/mikeboe/research-advisor/pkg/config"
	"github.com/mikeboe/research-advisor/pkg/server"
)

func main() {
	cfg := config.Load()
	logger := app.SetupLogger(cfg, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	engine := a.Engine(logger)
	tools := a.Toolset(engine)

	handler := server.NewHandler(engine, a.Sessions, a.Feedback, a.Analyzer)
	handler.MCP = server.NewMCPHandler(server.NewMCPServer(tools))
	if a.Archive != nil {
		handler.Archive = a.Archive
	}

	var jobs *server.Service
	if a.DB != nil {
		jobs = server.NewService(server.NewPostgresJobStore(a.DB.Pool), a.Engine)
		jobs.LogHandler = func(jobID uuid.UUID) slog.Handler {
			h := server.NewDBLogHandler(a.DB.Pool, jobID, logger.Handler())
			h.Level = cfg.LogLevel
			return h.WithAttrs([]slog.Attr{slog.String("job_id", jobID.String())})
		}
		handler.Jobs = jobs

		if cfg.GoogleApiKey != "" {
			assistantSvc, err := assistant.NewService(ctx, a.DB, cfg, tools)
			if err != nil {
				slog.Warn("Assistant disabled", "error", err)
			} else {
				handler.Assistant = assistantSvc
			}
		}
	}

	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"}, // Allow all for dev
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Mcp-Session-Id"},
		ExposeHeaders:    []string{"Content-Length", "Mcp-Session-Id"},
		AllowCredentials: true,
	}))

	handler.RegisterRoutes(r)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		slog.Info("Server starting", "port", cfg.Port, "database", a.DB != nil, "archive", a.Archive != nil, "assistant", handler.Assistant != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Failed to start server", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server shutdown failed", "error", err)
	}
	if jobs != nil {
		jobs.Wait()
	}
}
