// Package config loads and validates the server configuration from file,
// environment, and flags, in that order of increasing precedence.
package config

import (
	"fmt"
	"time"

	"github.com/MrThearMan/undine-sub001/internal/schema"
)

// Config is the full server configuration.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Engine        EngineConfig        `mapstructure:"engine"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Entities      []schema.Definition `mapstructure:"entities"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	// DSN, when set, wins over the discrete fields. DSNFile reads it
	// from a file (secret mounts).
	DSN     string `mapstructure:"dsn"`
	DSNFile string `mapstructure:"dsn_file"`

	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	// PasswordFile reads the password from a file; PasswordPrompt asks
	// on the terminal at startup.
	PasswordFile   string `mapstructure:"password_file"`
	PasswordPrompt bool   `mapstructure:"password_prompt"`
	Database       string `mapstructure:"database"`
	TLS            bool   `mapstructure:"tls"`

	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	QueryTimeout    time.Duration `mapstructure:"query_timeout"`
}

// EngineConfig bounds planning and execution. All limits are explicit
// configuration; the engine has no ambient globals.
type EngineConfig struct {
	DefaultPageSize  int `mapstructure:"default_page_size"`
	MaxPageSize      int `mapstructure:"max_page_size"`
	MaxDepth         int `mapstructure:"max_depth"`
	MaxEstimatedRows int `mapstructure:"max_estimated_rows"`
	Concurrency      int `mapstructure:"concurrency"`
	BatchMaxParents  int `mapstructure:"batch_max_parents"`
}

type LoggingConfig struct {
	Level          string `mapstructure:"level"`
	Format         string `mapstructure:"format"`
	ExportsEnabled bool   `mapstructure:"exports_enabled"`
}

type ObservabilityConfig struct {
	ServiceName      string            `mapstructure:"service_name"`
	ServiceVersion   string            `mapstructure:"service_version"`
	Environment      string            `mapstructure:"environment"`
	TracingEnabled   bool              `mapstructure:"tracing_enabled"`
	MetricsEnabled   bool              `mapstructure:"metrics_enabled"`
	TraceSampleRatio float64           `mapstructure:"trace_sample_ratio"`
	OTLPEndpoint     string            `mapstructure:"otlp_endpoint"`
	OTLPProtocol     string            `mapstructure:"otlp_protocol"`
	OTLPInsecure     bool              `mapstructure:"otlp_insecure"`
	OTLPHeaders      map[string]string `mapstructure:"otlp_headers"`
	OTLPTimeout      time.Duration     `mapstructure:"otlp_timeout"`
	OTLPCompression  string            `mapstructure:"otlp_compression"`
	OTLPCACertFile   string            `mapstructure:"otlp_ca_cert_file"`
	OTLPClientCert   string            `mapstructure:"otlp_client_cert_file"`
	OTLPClientKey    string            `mapstructure:"otlp_client_key_file"`
}

// Defaults returns the configuration baseline before file, env, and flag
// overrides apply.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Host:            "127.0.0.1",
			Port:            4000,
			User:            "root",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			QueryTimeout:    30 * time.Second,
		},
		Engine: EngineConfig{
			DefaultPageSize:  20,
			MaxPageSize:      100,
			MaxDepth:         10,
			MaxEstimatedRows: 100_000,
			Concurrency:      4,
			BatchMaxParents:  1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Observability: ObservabilityConfig{
			ServiceName:      "undine",
			Environment:      "development",
			TraceSampleRatio: 1.0,
			OTLPEndpoint:     "localhost:4317",
			OTLPProtocol:     "grpc",
		},
	}
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Database.DSN == "" && c.Database.DSNFile == "" {
		if c.Database.Host == "" {
			return fmt.Errorf("database.host is required without a DSN")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database.database is required without a DSN")
		}
	}
	if c.Engine.DefaultPageSize <= 0 {
		return fmt.Errorf("engine.default_page_size must be positive")
	}
	if c.Engine.MaxPageSize < c.Engine.DefaultPageSize {
		return fmt.Errorf("engine.max_page_size %d is below default_page_size %d",
			c.Engine.MaxPageSize, c.Engine.DefaultPageSize)
	}
	if c.Engine.MaxDepth <= 0 {
		return fmt.Errorf("engine.max_depth must be positive")
	}
	if c.Engine.Concurrency <= 0 {
		return fmt.Errorf("engine.concurrency must be positive")
	}
	if c.Engine.BatchMaxParents <= 0 {
		return fmt.Errorf("engine.batch_max_parents must be positive")
	}
	if c.Observability.TraceSampleRatio < 0 || c.Observability.TraceSampleRatio > 1 {
		return fmt.Errorf("observability.trace_sample_ratio %f out of range [0,1]",
			c.Observability.TraceSampleRatio)
	}
	if len(c.Entities) == 0 {
		return fmt.Errorf("no entities configured")
	}
	return nil
}
