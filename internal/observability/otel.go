// Package observability wires OpenTelemetry for the engine: an OTLP
// tracer provider, a Prometheus-backed meter provider, an OTLP logger
// provider, and the engine's own instrument set.
package observability

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/prometheus"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"google.golang.org/grpc/credentials"
)

// Config identifies the service and carries exporter settings.
type Config struct {
	ServiceName      string
	ServiceVersion   string
	Environment      string
	TraceSampleRatio float64
	OTLP             OTLPConfig
}

// OTLPConfig configures the OTLP trace and log exporters.
type OTLPConfig struct {
	Endpoint          string
	Protocol          string
	Insecure          bool
	TLSCACertFile     string
	TLSClientCertFile string
	TLSClientKeyFile  string
	Headers           map[string]string
	Timeout           time.Duration
	Compression       string
}

const (
	protocolGRPC = "grpc"
	protocolHTTP = "http/protobuf"
)

func (c OTLPConfig) protocol() (string, error) {
	switch strings.ToLower(strings.TrimSpace(c.Protocol)) {
	case "", protocolGRPC:
		return protocolGRPC, nil
	case "http", protocolHTTP:
		return protocolHTTP, nil
	default:
		return "", fmt.Errorf("unsupported OTLP protocol %q (use grpc or http/protobuf)", c.Protocol)
	}
}

func (c OTLPConfig) tlsConfig() (*tls.Config, error) {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
	if c.TLSCACertFile != "" {
		pem, err := os.ReadFile(c.TLSCACertFile)
		if err != nil {
			return nil, fmt.Errorf("read OTLP CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("parse OTLP CA file %q", c.TLSCACertFile)
		}
		tlsConfig.RootCAs = pool
	}
	if c.TLSClientCertFile != "" || c.TLSClientKeyFile != "" {
		if c.TLSClientCertFile == "" || c.TLSClientKeyFile == "" {
			return nil, fmt.Errorf("OTLP client cert and key must both be set")
		}
		cert, err := tls.LoadX509KeyPair(c.TLSClientCertFile, c.TLSClientKeyFile)
		if err != nil {
			return nil, fmt.Errorf("load OTLP client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}
	return tlsConfig, nil
}

func buildResource(cfg Config) (*resource.Resource, error) {
	// Empty schema URL avoids merge conflicts with resource.Default().
	return resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			"",
			attribute.String("service.name", cfg.ServiceName),
			attribute.String("service.version", cfg.ServiceVersion),
			attribute.String("deployment.environment", cfg.Environment),
		),
	)
}

// MeterProvider wraps the SDK meter provider with its Prometheus reader.
type MeterProvider struct {
	provider *sdkmetric.MeterProvider
	exporter *prometheus.Exporter
}

// InitMeterProvider builds a Prometheus-backed meter provider and
// installs it globally.
func InitMeterProvider(cfg Config) (*MeterProvider, error) {
	res, err := buildResource(cfg)
	if err != nil {
		return nil, fmt.Errorf("build metrics resource: %w", err)
	}
	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("create prometheus exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)
	otel.SetMeterProvider(provider)
	return &MeterProvider{provider: provider, exporter: exporter}, nil
}

func (mp *MeterProvider) Shutdown(ctx context.Context, logger *slog.Logger) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := mp.provider.Shutdown(shutdownCtx); err != nil {
		logger.Error("meter provider shutdown failed", slog.String("error", err.Error()))
		return err
	}
	return nil
}

// TracerProvider wraps the SDK tracer provider.
type TracerProvider struct {
	provider *sdktrace.TracerProvider
}

// InitTracerProvider builds an OTLP-exporting tracer provider and
// installs it globally.
func InitTracerProvider(cfg Config) (*TracerProvider, error) {
	res, err := buildResource(cfg)
	if err != nil {
		return nil, fmt.Errorf("build tracing resource: %w", err)
	}
	protocol, err := cfg.OTLP.protocol()
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	var exporter sdktrace.SpanExporter
	switch protocol {
	case protocolGRPC:
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLP.Endpoint)}
		if cfg.OTLP.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		} else {
			tlsConfig, err := cfg.OTLP.tlsConfig()
			if err != nil {
				return nil, err
			}
			opts = append(opts, otlptracegrpc.WithTLSCredentials(credentials.NewTLS(tlsConfig)))
		}
		if len(cfg.OTLP.Headers) > 0 {
			opts = append(opts, otlptracegrpc.WithHeaders(cfg.OTLP.Headers))
		}
		if cfg.OTLP.Timeout > 0 {
			opts = append(opts, otlptracegrpc.WithTimeout(cfg.OTLP.Timeout))
		}
		if cfg.OTLP.Compression == "gzip" {
			opts = append(opts, otlptracegrpc.WithCompressor("gzip"))
		}
		exporter, err = otlptracegrpc.New(ctx, opts...)
	case protocolHTTP:
		var opts []otlptracehttp.Option
		if strings.HasPrefix(cfg.OTLP.Endpoint, "http://") || strings.HasPrefix(cfg.OTLP.Endpoint, "https://") {
			opts = append(opts, otlptracehttp.WithEndpointURL(cfg.OTLP.Endpoint))
		} else {
			opts = append(opts, otlptracehttp.WithEndpoint(cfg.OTLP.Endpoint))
		}
		if cfg.OTLP.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		} else {
			tlsConfig, err := cfg.OTLP.tlsConfig()
			if err != nil {
				return nil, err
			}
			opts = append(opts, otlptracehttp.WithTLSClientConfig(tlsConfig))
		}
		if len(cfg.OTLP.Headers) > 0 {
			opts = append(opts, otlptracehttp.WithHeaders(cfg.OTLP.Headers))
		}
		if cfg.OTLP.Timeout > 0 {
			opts = append(opts, otlptracehttp.WithTimeout(cfg.OTLP.Timeout))
		}
		if cfg.OTLP.Compression == "gzip" {
			opts = append(opts, otlptracehttp.WithCompression(otlptracehttp.GzipCompression))
		}
		exporter, err = otlptracehttp.New(ctx, opts...)
	}
	if err != nil {
		return nil, fmt.Errorf("create OTLP trace exporter: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(samplerForRatio(cfg.TraceSampleRatio)),
	)
	otel.SetTracerProvider(provider)
	return &TracerProvider{provider: provider}, nil
}

func samplerForRatio(ratio float64) sdktrace.Sampler {
	switch {
	case ratio <= 0:
		return sdktrace.NeverSample()
	case ratio >= 1:
		return sdktrace.AlwaysSample()
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
	}
}

func (tp *TracerProvider) Shutdown(ctx context.Context, logger *slog.Logger) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := tp.provider.Shutdown(shutdownCtx); err != nil {
		logger.Error("tracer provider shutdown failed", slog.String("error", err.Error()))
		return err
	}
	return nil
}

// LoggerProvider wraps the SDK logger provider feeding the otelslog
// bridge.
type LoggerProvider struct {
	provider *sdklog.LoggerProvider
}

// InitLoggerProvider builds an OTLP-exporting logger provider.
func InitLoggerProvider(cfg Config) (*LoggerProvider, error) {
	res, err := buildResource(cfg)
	if err != nil {
		return nil, fmt.Errorf("build logging resource: %w", err)
	}
	protocol, err := cfg.OTLP.protocol()
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	var exporter sdklog.Exporter
	switch protocol {
	case protocolGRPC:
		opts := []otlploggrpc.Option{otlploggrpc.WithEndpoint(cfg.OTLP.Endpoint)}
		if cfg.OTLP.Insecure {
			opts = append(opts, otlploggrpc.WithInsecure())
		} else {
			tlsConfig, err := cfg.OTLP.tlsConfig()
			if err != nil {
				return nil, err
			}
			opts = append(opts, otlploggrpc.WithTLSCredentials(credentials.NewTLS(tlsConfig)))
		}
		if len(cfg.OTLP.Headers) > 0 {
			opts = append(opts, otlploggrpc.WithHeaders(cfg.OTLP.Headers))
		}
		if cfg.OTLP.Timeout > 0 {
			opts = append(opts, otlploggrpc.WithTimeout(cfg.OTLP.Timeout))
		}
		if cfg.OTLP.Compression == "gzip" {
			opts = append(opts, otlploggrpc.WithCompressor("gzip"))
		}
		exporter, err = otlploggrpc.New(ctx, opts...)
	case protocolHTTP:
		var opts []otlploghttp.Option
		if strings.HasPrefix(cfg.OTLP.Endpoint, "http://") || strings.HasPrefix(cfg.OTLP.Endpoint, "https://") {
			opts = append(opts, otlploghttp.WithEndpointURL(cfg.OTLP.Endpoint))
		} else {
			opts = append(opts, otlploghttp.WithEndpoint(cfg.OTLP.Endpoint))
		}
		if cfg.OTLP.Insecure {
			opts = append(opts, otlploghttp.WithInsecure())
		} else {
			tlsConfig, err := cfg.OTLP.tlsConfig()
			if err != nil {
				return nil, err
			}
			opts = append(opts, otlploghttp.WithTLSClientConfig(tlsConfig))
		}
		if len(cfg.OTLP.Headers) > 0 {
			opts = append(opts, otlploghttp.WithHeaders(cfg.OTLP.Headers))
		}
		if cfg.OTLP.Timeout > 0 {
			opts = append(opts, otlploghttp.WithTimeout(cfg.OTLP.Timeout))
		}
		if cfg.OTLP.Compression == "gzip" {
			opts = append(opts, otlploghttp.WithCompression(otlploghttp.GzipCompression))
		}
		exporter, err = otlploghttp.New(ctx, opts...)
	}
	if err != nil {
		return nil, fmt.Errorf("create OTLP log exporter: %w", err)
	}

	provider := sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter)),
	)
	return &LoggerProvider{provider: provider}, nil
}

// Provider exposes the underlying provider for the otelslog bridge.
func (lp *LoggerProvider) Provider() *sdklog.LoggerProvider {
	return lp.provider
}

func (lp *LoggerProvider) Shutdown(ctx context.Context, logger *slog.Logger) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := lp.provider.Shutdown(shutdownCtx); err != nil {
		logger.Error("logger provider shutdown failed", slog.String("error", err.Error()))
		return err
	}
	return nil
}
