// Command server exposes the query engine over a thin HTTP surface:
// POST /query accepts a GraphQL document plus variables, /healthz checks
// the database, /metrics serves Prometheus.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/XSAM/otelsql"
	_ "github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/MrThearMan/undine-sub001/internal/config"
	"github.com/MrThearMan/undine-sub001/internal/dbexec"
	"github.com/MrThearMan/undine-sub001/internal/engine"
	"github.com/MrThearMan/undine-sub001/internal/logging"
	"github.com/MrThearMan/undine-sub001/internal/observability"
	"github.com/MrThearMan/undine-sub001/internal/schema"
)

// Version and Commit are set at build time via -ldflags.
var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flags := pflag.NewFlagSet("server", pflag.ContinueOnError)
	flags.String("config", "", "path to the configuration file")
	showVersion := flags.Bool("version", false, "print version and exit")
	if err := flags.Parse(os.Args[1:]); err != nil {
		return err
	}
	if *showVersion {
		fmt.Printf("undine %s (%s)\n", Version, Commit)
		return nil
	}

	cfg, err := config.Load(flags)
	if err != nil {
		return err
	}

	cleanup := &cleanupStack{}
	defer cleanup.run()

	obsCfg := observability.Config{
		ServiceName:      cfg.Observability.ServiceName,
		ServiceVersion:   Version,
		Environment:      cfg.Observability.Environment,
		TraceSampleRatio: cfg.Observability.TraceSampleRatio,
		OTLP: observability.OTLPConfig{
			Endpoint:          cfg.Observability.OTLPEndpoint,
			Protocol:          cfg.Observability.OTLPProtocol,
			Insecure:          cfg.Observability.OTLPInsecure,
			TLSCACertFile:     cfg.Observability.OTLPCACertFile,
			TLSClientCertFile: cfg.Observability.OTLPClientCert,
			TLSClientKeyFile:  cfg.Observability.OTLPClientKey,
			Headers:           cfg.Observability.OTLPHeaders,
			Timeout:           cfg.Observability.OTLPTimeout,
			Compression:       cfg.Observability.OTLPCompression,
		},
	}

	logCfg := logging.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		ServiceName: cfg.Observability.ServiceName,
	}
	if cfg.Logging.ExportsEnabled {
		loggerProvider, err := observability.InitLoggerProvider(obsCfg)
		if err != nil {
			return fmt.Errorf("init logger provider: %w", err)
		}
		logCfg.LoggerProvider = loggerProvider.Provider()
		cleanup.push(func(ctx context.Context, l *slog.Logger) {
			_ = loggerProvider.Shutdown(ctx, l)
		})
	}
	logger, err := logging.New(logCfg)
	if err != nil {
		return err
	}
	cleanup.logger = logger.Logger

	var metrics *observability.EngineMetrics
	if cfg.Observability.MetricsEnabled {
		meterProvider, err := observability.InitMeterProvider(obsCfg)
		if err != nil {
			return fmt.Errorf("init meter provider: %w", err)
		}
		cleanup.push(func(ctx context.Context, l *slog.Logger) {
			_ = meterProvider.Shutdown(ctx, l)
		})
		metrics, err = observability.NewEngineMetrics(otel.Meter("undine"))
		if err != nil {
			return fmt.Errorf("create engine metrics: %w", err)
		}
	}
	if cfg.Observability.TracingEnabled {
		tracerProvider, err := observability.InitTracerProvider(obsCfg)
		if err != nil {
			return fmt.Errorf("init tracer provider: %w", err)
		}
		cleanup.push(func(ctx context.Context, l *slog.Logger) {
			_ = tracerProvider.Shutdown(ctx, l)
		})
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	cleanup.push(func(context.Context, *slog.Logger) { _ = db.Close() })

	pingCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	err = db.PingContext(pingCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("verify database connection: %w", err)
	}
	logger.Info("connected to database",
		slog.String("host", cfg.Database.Host),
		slog.Int("port", cfg.Database.Port),
	)

	registry, err := schema.BuildRegistry(cfg.Entities)
	if err != nil {
		return fmt.Errorf("build schema registry: %w", err)
	}

	eng := engine.New(registry, dbexec.NewStandardExecutor(db), engine.Config{
		DefaultPageSize:  cfg.Engine.DefaultPageSize,
		MaxPageSize:      cfg.Engine.MaxPageSize,
		MaxDepth:         cfg.Engine.MaxDepth,
		MaxEstimatedRows: cfg.Engine.MaxEstimatedRows,
		Concurrency:      cfg.Engine.Concurrency,
		BatchMaxParents:  cfg.Engine.BatchMaxParents,
	},
		engine.WithLogger(logger),
		engine.WithMetrics(metrics),
	)

	mux := http.NewServeMux()
	mux.Handle("POST /query", otelhttp.NewHandler(
		newQueryHandler(eng, registry, logger, cfg.Database.QueryTimeout), "query"))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			http.Error(w, "database unreachable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if cfg.Observability.MetricsEnabled {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", slog.String("addr", srv.Addr), slog.String("version", Version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		logger.Info("shutting down", slog.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func openDatabase(cfg *config.Config) (*sql.DB, error) {
	dsn, err := cfg.Database.DriverDSN()
	if err != nil {
		return nil, err
	}
	db, err := otelsql.Open("mysql", dsn,
		otelsql.WithAttributes(semconv.DBSystemMySQL),
	)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)
	if _, err := otelsql.RegisterDBStatsMetrics(db, otelsql.WithAttributes(semconv.DBSystemMySQL)); err != nil {
		return nil, fmt.Errorf("register db stats metrics: %w", err)
	}
	return db, nil
}

// cleanupStack runs shutdown hooks in reverse order on exit.
type cleanupStack struct {
	logger *slog.Logger
	fns    []func(context.Context, *slog.Logger)
}

func (c *cleanupStack) push(fn func(context.Context, *slog.Logger)) {
	c.fns = append(c.fns, fn)
}

func (c *cleanupStack) run() {
	logger := c.logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for i := len(c.fns) - 1; i >= 0; i-- {
		c.fns[i](ctx, logger)
	}
}
