package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/db-query-assistant/backend/internal/api"
	"github.com/db-query-assistant/backend/internal/config"
	"github.com/db-query-assistant/backend/internal/llm"
	"github.com/db-query-assistant/backend/internal/metrics"
	"github.com/db-query-assistant/backend/internal/parser"
	"github.com/db-query-assistant/backend/internal/pkg/logger"
	"github.com/db-query-assistant/backend/internal/session"
	"github.com/db-query-assistant/backend/internal/upload"
	"github.com/db-query-assistant/backend/internal/web"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	configPath, err := resolveConfigPath()
	if err != nil {
		fmt.Printf("Failed to resolve config path: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Logging.Level, cfg.Logging.Development)
	if err != nil {
		fmt.Printf("Failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	registry := parser.NewRegistry(parser.Options{
		SQLEngine:             cfg.Interpreter.SQLEngine,
		SampleRows:            cfg.Interpreter.SampleRows,
		SnapshotEachStatement: cfg.Interpreter.SQLSnapshotEachStatement,
		JSONLines:             cfg.Interpreter.JSONLines,
		DuckDB: parser.DuckDBOptions{
			Threads:     cfg.Interpreter.DuckDBThreads,
			MemoryLimit: cfg.Interpreter.DuckDBMemoryLimit,
		},
	})

	sessionMgr := session.NewManager(cfg.Session, log)
	service := session.NewService(registry, cfg.LLM)
	intake := upload.NewIntake(cfg.Upload)

	renderer, err := web.NewRenderer()
	if err != nil {
		log.Fatal("failed to parse page templates", zap.Error(err))
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Renderer = renderer
	e.HTTPErrorHandler = api.NewErrorHandler(cfg.Logging.Development)

	quiet := func(c echo.Context) bool {
		path := c.Request().URL.Path
		return path == "/api/health" || path == cfg.Metrics.Path
	}

	e.Use(api.RequestLogger(log, func(c echo.Context) bool {
		return !cfg.Logging.RequestLogging || quiet(c)
	}))
	if cfg.Metrics.Enabled {
		e.Use(metrics.Middleware(quiet))
	}
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 1024 * 4,
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			logger.FromContext(c.Request().Context()).Error("panic recovered",
				zap.Error(err), zap.ByteString("stack", stack))
			return err
		},
	}))
	e.Use(middleware.BodyLimit(cfg.Server.BodyLimit))

	if cfg.Server.EnableCompression {
		e.Use(middleware.GzipWithConfig(middleware.GzipConfig{
			Level: cfg.Server.CompressionLevel,
			Skipper: func(c echo.Context) bool {
				return strings.HasSuffix(c.Request().URL.Path, "/ws")
			},
		}))
	}

	handlers := api.NewHandlers(&api.Dependencies{
		Sessions: sessionMgr,
		Service:  service,
		Intake:   intake,
		Version:  Version,
		Provider: cfg.LLM.Provider,
	})
	api.RegisterRoutes(e, handlers)

	web.NewPageHandler(sessionMgr, service, intake, cfg.Server.CookieName).RegisterRoutes(e)

	if cfg.Metrics.Enabled {
		e.GET(cfg.Metrics.Path, echo.WrapHandler(promhttp.Handler()))
	}

	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSeconds) * time.Second,
	}

	printBanner(cfg, configPath)

	go func() {
		if err := e.StartServer(s); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server stopped", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}
}

// resolveConfigPath prefers DBQA_CONFIG and falls back to dbqa.yaml next to
// the executable.
func resolveConfigPath() (string, error) {
	if p := os.Getenv("DBQA_CONFIG"); p != "" {
		return p, nil
	}
	exePath, err := os.Executable()
	if err != nil {
		return "", err
	}
	return filepath.Join(filepath.Dir(exePath), "dbqa.yaml"), nil
}

func printBanner(cfg *config.AppConfig, configPath string) {
	idle := "never"
	if d := cfg.Session.IdleTimeout(); d > 0 {
		idle = d.String()
	}

	fmt.Printf("\n")
	fmt.Printf("╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║           Database Query Assistant                        ║\n")
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Version:    %-45s║\n", Version)
	fmt.Printf("║  Build Time: %-45s║\n", BuildTime)
	provider, model := llm.Resolve(cfg.LLM)
	fmt.Printf("║  Model:      %-45s║\n", provider+"/"+model)
	fmt.Printf("║  SQL Engine: %-45s║\n", cfg.Interpreter.SQLEngine)
	fmt.Printf("║  Idle Expiry:%-45s║\n", " "+idle)
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Config:    %-46s║\n", configPath)
	fmt.Printf("║  Listen:    http://%-38s║\n", cfg.GetServerAddr())
	fmt.Printf("╚═══════════════════════════════════════════════════════════╝\n")
	fmt.Printf("\n")
	fmt.Printf("Open http://localhost:%d in your browser\n\n", cfg.Server.Port)
}
