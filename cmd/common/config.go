// Package common provides the configuration and wiring shared by the
// coordinator and provider binaries.
package common

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/glaciation-heu/sap-uc3/api/httpserver"
	"github.com/glaciation-heu/sap-uc3/coordinator"
	"github.com/glaciation-heu/sap-uc3/crypto"
	"github.com/glaciation-heu/sap-uc3/services"
	"gopkg.in/yaml.v3"
)

// Config is the YAML configuration of both binaries. Sections a binary does
// not use are ignored.
type Config struct {
	HTTPAddr    string    `yaml:"http_addr"`
	MetricsAddr string    `yaml:"metrics_addr"`
	EnablePprof bool      `yaml:"enable_pprof"`
	Log         LogConfig `yaml:"log"`

	// Database selects PostgreSQL. An empty host keeps state in memory.
	Database  coordinator.PostgresConfig `yaml:"database"`
	Execution coordinator.Config         `yaml:"execution"`
	Engine    EngineConfig               `yaml:"engine"`
	Notifier  services.NotifierConfig    `yaml:"notifier"`
	Provider  ProviderConfig             `yaml:"provider"`
}

// LogConfig selects the log level and format.
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// EngineConfig configures the HTTP computation engine of the coordinator.
type EngineConfig struct {
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// ProviderConfig configures the provider binary.
type ProviderConfig struct {
	Prime          string        `yaml:"prime"`
	R              string        `yaml:"r"`
	RInv           string        `yaml:"rinv"`
	ResultID       string        `yaml:"result_id"`
	ExecutionDelay time.Duration `yaml:"execution_delay"`
}

// Field builds the configured field.
func (p ProviderConfig) Field() (*crypto.Field, error) {
	return crypto.NewField(p.Prime, p.R, p.RInv, crypto.DefaultLimbWidth)
}

// DefaultConfig returns the configuration used for unset fields.
func DefaultConfig() *Config {
	return &Config{
		HTTPAddr: ":8080",
		Log:      LogConfig{Level: "info"},
		Database: coordinator.PostgresConfig{
			Port:    5432,
			SSLMode: "disable",
		},
		Execution: coordinator.DefaultConfig(),
		Engine:    EngineConfig{RequestTimeout: 10 * time.Minute},
		Notifier:  services.DefaultNotifierConfig(),
		Provider: ProviderConfig{
			Prime:          crypto.DefaultPrime,
			R:              crypto.DefaultR,
			RInv:           crypto.DefaultRInv,
			ResultID:       services.NilResultID,
			ExecutionDelay: 2 * time.Second,
		},
	}
}

// LoadConfig reads a YAML file on top of DefaultConfig.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses YAML on top of DefaultConfig.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// NewLogger creates a text or JSON logger writing to stderr.
func NewLogger(cfg LogConfig) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToLower(cfg.Level))); err != nil {
		return nil, fmt.Errorf("invalid log level %q", cfg.Level)
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.JSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
}

// NewStore opens PostgreSQL when a host is configured and falls back to the
// in-memory store otherwise.
func NewStore(cfg *Config, log *slog.Logger) (coordinator.Store, error) {
	if cfg.Database.Host == "" {
		log.Warn("No database configured, collaborations are kept in memory")
		return coordinator.NewInMemoryStore(), nil
	}
	store, err := coordinator.NewPostgresStore(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	log.Info("Connected to database", "host", cfg.Database.Host, "database", cfg.Database.Database)
	return store, nil
}

// ServerConfig derives the HTTP server settings.
func ServerConfig(cfg *Config, log *slog.Logger) *httpserver.HTTPServerConfig {
	return &httpserver.HTTPServerConfig{
		ListenAddr:               cfg.HTTPAddr,
		MetricsAddr:              cfg.MetricsAddr,
		EnablePprof:              cfg.EnablePprof,
		Log:                      log,
		DrainDuration:            5 * time.Second,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              60 * time.Second,
		WriteTimeout:             60 * time.Second,
	}
}
