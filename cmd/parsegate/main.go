// Command parsegate runs the document-processing gateway: classification,
// office/PDF/image conversion and parse pipelines over HTTP, with optional
// MCP tool access over stdio.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/parsegate/parsegate/gateway"
	"github.com/parsegate/parsegate/observability"
)

func main() {
	_ = godotenv.Load()

	// Config: file (optional) then env overrides.
	var cfg *gateway.Config
	if path := env("CONFIG_FILE", ""); path != "" {
		loaded, err := gateway.LoadConfigFile(path)
		if err != nil {
			slog.Error("config file", "path", path, "error", err)
			os.Exit(1)
		}
		cfg = loaded
	} else {
		cfg = gateway.DefaultConfig()
	}
	cfg.ApplyEnv()

	// Logging.
	var lvl slog.Level
	switch cfg.LogLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	// Signal context.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	svc, err := gateway.New(cfg, logger)
	if err != nil {
		slog.Error("service init", "error", err)
		os.Exit(1)
	}

	handler := http.Handler(svc.Routes())

	// Optional request audit log.
	if cfg.Audit.DBPath != "" {
		audit, err := observability.NewRequestLogger(cfg.Audit.DBPath)
		if err != nil {
			slog.Error("audit db", "error", err)
			os.Exit(1)
		}
		defer audit.Close()
		if err := audit.Cleanup(ctx, cfg.Audit.RetentionDays); err != nil {
			slog.Warn("audit cleanup", "error", err)
		}
		handler = audit.Middleware(handler)
	}

	// Optional MCP over stdio.
	if env("MCP_TRANSPORT", "") == "stdio" {
		mcpSrv := mcp.NewServer(&mcp.Implementation{
			Name:    "parsegate",
			Version: "1.0.0",
		}, nil)
		svc.RegisterMCP(mcpSrv)
		go func() {
			slog.Info("MCP stdio starting")
			if err := mcpSrv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
				slog.Error("MCP stdio", "error", err)
			}
		}()
	}

	// HTTP server.
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", cfg.Listen, "profile", string(svc.Profile()))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "error", err)
	}
	slog.Info("server stopped")
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
