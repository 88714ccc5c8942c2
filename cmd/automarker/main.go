// Command automarker is the keyword-highlighting daemon: it serves the
// session API over HTTP, optionally exposes the same operations as MCP
// tools over stdio, and keeps open sessions in sync with the stored
// configuration.
//
// Usage:
//
//	automarker                              # serve with env/default config
//	automarker -config automarker.yaml     # serve with a YAML config file
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/automarker/browser"
	"github.com/hazyhaar/automarker/service"
	"github.com/hazyhaar/automarker/store"
)

// fileConfig is the optional YAML configuration.
type fileConfig struct {
	Addr       string `yaml:"addr"`
	StorePath  string `yaml:"store_path"`
	BrowserURL string `yaml:"browser_url"`
	DebounceMs int    `yaml:"debounce_ms"`
	LogLevel   string `yaml:"log_level"`

	// Open lists sessions to establish at startup.
	Open []struct {
		URL  string `yaml:"url"`
		Mode string `yaml:"mode"`
	} `yaml:"open"`
}

func main() {
	configPath := flag.String("config", "", "path to automarker.yaml config file")
	addrFlag := flag.String("addr", "", "HTTP listen address (overrides config)")
	logLevel := flag.String("log-level", env("LOG_LEVEL", "info"), "log level: debug, info, warn, error")
	flag.Parse()

	cfg := fileConfig{
		Addr:      env("AUTOMARKER_ADDR", ":8086"),
		StorePath: env("AUTOMARKER_DB", "db/automarker.db"),
	}
	if *configPath != "" {
		data, err := os.ReadFile(*configPath)
		if err != nil {
			slog.Error("read config", "path", *configPath, "error", err)
			os.Exit(1)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			slog.Error("parse config", "path", *configPath, "error", err)
			os.Exit(1)
		}
	}
	if *addrFlag != "" {
		cfg.Addr = *addrFlag
	}
	if cfg.BrowserURL == "" {
		cfg.BrowserURL = os.Getenv("BROWSER_URL")
	}
	if cfg.LogLevel != "" && *logLevel == "info" {
		*logLevel = cfg.LogLevel
	}

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	// Logs go to stderr: stdout may carry the MCP stdio transport.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, cfg); err != nil {
		logger.Error("automarker: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, cfg fileConfig) error {
	storeOpts := []store.Option{store.WithLogger(logger)}
	if secret := os.Getenv("AUTOMARKER_SECRET"); secret != "" {
		storeOpts = append(storeOpts, store.WithSecret(secret))
	} else {
		logger.Warn("AUTOMARKER_SECRET not set, provider credentials unavailable")
	}

	st, err := store.Open(cfg.StorePath, storeOpts...)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	mgr := browser.NewManager(browser.Config{
		ControlURL: cfg.BrowserURL,
		Logger:     logger,
	})
	defer mgr.Close()

	svc := service.New(st, mgr, service.Config{
		Debounce: time.Duration(cfg.DebounceMs) * time.Millisecond,
		Logger:   logger,
	})
	defer svc.Close()

	go svc.Watch(ctx)

	// Startup sessions from the config file. Best-effort: a page that
	// fails to open must not take the daemon down.
	for _, o := range cfg.Open {
		mode, err := service.ParseMode(o.Mode)
		if err != nil {
			logger.Warn("startup session skipped", "url", o.URL, "error", err)
			continue
		}
		if _, _, err := svc.Open(ctx, o.URL, mode); err != nil {
			logger.Warn("startup session failed", "url", o.URL, "error", err)
		}
	}

	// Optional MCP over stdio.
	if env("MCP_TRANSPORT", "") == "stdio" {
		mcpSrv := mcp.NewServer(&mcp.Implementation{
			Name:    "automarker",
			Version: "1.0.0",
		}, nil)
		svc.RegisterMCP(mcpSrv)

		go func() {
			logger.Info("MCP stdio starting")
			transport := &mcp.IOTransport{
				Reader: io.NopCloser(os.Stdin),
				Writer: os.Stdout,
			}
			if err := mcpSrv.Run(ctx, transport); err != nil && ctx.Err() == nil {
				logger.Error("MCP stdio", "error", err)
			}
		}()
	}

	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	svc.RegisterHTTP(r)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "error", err)
	}
	logger.Info("server stopped")
	return nil
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
