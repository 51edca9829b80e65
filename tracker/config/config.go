// Package config loads the benchtrack YAML configuration.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/prometheus/common/model"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/loredb-bench/tracker/analysis"
	"github.com/loredb-bench/tracker/extract"
)

// Storage backends
const (
	BackendNone     = "none"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Config is the root of the configuration file
type Config struct {
	Benchmark BenchmarkConfig `yaml:"benchmark"`
	Storage   StorageConfig   `yaml:"storage"`
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
}

// BenchmarkConfig mirrors the inputs of the benchmark action
type BenchmarkConfig struct {
	Name            string `yaml:"name"`
	Tool            string `yaml:"tool"`
	OutputFilePath  string `yaml:"output_file_path"`
	DataFile        string `yaml:"data_file"`
	RepoURL         string `yaml:"repo_url"`
	MaxItemsInChart int    `yaml:"max_items_in_chart"`
	AlertThreshold  string `yaml:"alert_threshold"`
	FailOnAlert     bool   `yaml:"fail_on_alert"`
	FailThreshold   string `yaml:"fail_threshold"`
	ComparisonMode  string `yaml:"comparison_mode"`
	WindowSize      int    `yaml:"window_size"`
	BaseCommit      string `yaml:"base_commit"`
}

// StorageConfig holds configuration for historic storage
type StorageConfig struct {
	Backend    string           `yaml:"backend"`
	DSN        string           `yaml:"dsn"`
	SQLitePath string           `yaml:"sqlite_path"`
	Retention  string           `yaml:"retention"`
	PostgreSQL PostgreSQLConfig `yaml:"postgresql"`
}

// PostgreSQLConfig contains database connection settings
type PostgreSQLConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	Database       string `yaml:"database"`
	User           string `yaml:"user"`
	Password       string `yaml:"password"`
	SSLMode        string `yaml:"ssl_mode"`
	MaxOpenConns   int    `yaml:"max_open_conns"`
	MaxIdleConns   int    `yaml:"max_idle_conns"`
	ConnectTimeout string `yaml:"connect_timeout"`
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Addr          string `yaml:"addr"`
	ReadTimeout   string `yaml:"read_timeout"`
	WriteTimeout  string `yaml:"write_timeout"`
	IdleTimeout   string `yaml:"idle_timeout"`
	EnableMetrics *bool  `yaml:"enable_metrics"`
	WebDir        string `yaml:"web_dir"`
}

// LogConfig selects the logrus level and formatter
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a configuration with every default applied
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads the configuration file at path. An empty path or a missing
// file yields the defaults.
func Load(path string, log logrus.FieldLogger) (*Config, error) {
	log = log.WithField("component", "config")

	if path == "" {
		log.Debug("No config path provided, using defaults")
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		log.WithField("path", path).Info("Config file not found, using defaults")
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"suite":   cfg.Benchmark.Name,
		"tool":    cfg.Benchmark.Tool,
		"data":    cfg.Benchmark.DataFile,
		"backend": cfg.Storage.Backend,
	}).Info("Loaded configuration")

	return cfg, nil
}

// Parse substitutes environment variables, decodes, defaults and validates
func Parse(data []byte) (*Config, error) {
	substituted, err := SubstituteEnvVars(string(data))
	if err != nil {
		return nil, fmt.Errorf("failed to substitute environment variables: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(substituted), &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	b := &c.Benchmark
	if b.Name == "" {
		b.Name = "Benchmark"
	}
	if b.Tool == "" {
		b.Tool = extract.ToolGoogleCPP
	}
	if b.DataFile == "" {
		b.DataFile = "dev/bench/data.js"
	}
	if b.AlertThreshold == "" {
		b.AlertThreshold = "200%"
	}
	if b.FailThreshold == "" {
		b.FailThreshold = b.AlertThreshold
	}
	if b.ComparisonMode == "" {
		b.ComparisonMode = string(analysis.ModeSequential)
	}
	if b.WindowSize == 0 {
		b.WindowSize = 5
	}

	s := &c.Storage
	if s.Backend == "" {
		s.Backend = BackendNone
	}
	if s.SQLitePath == "" {
		s.SQLitePath = "dev/bench/history.db"
	}
	if s.Retention == "" {
		s.Retention = "90d"
	}
	pg := &s.PostgreSQL
	if pg.Host == "" {
		pg.Host = "localhost"
	}
	if pg.Port == 0 {
		pg.Port = 5432
	}
	if pg.Database == "" {
		pg.Database = "loredb_bench"
	}
	if pg.User == "" {
		pg.User = "postgres"
	}
	if pg.SSLMode == "" {
		pg.SSLMode = "disable"
	}
	if pg.MaxOpenConns == 0 {
		pg.MaxOpenConns = 10
	}
	if pg.MaxIdleConns == 0 {
		pg.MaxIdleConns = 5
	}
	if pg.ConnectTimeout == "" {
		pg.ConnectTimeout = "30s"
	}

	srv := &c.Server
	if srv.Addr == "" {
		srv.Addr = ":8080"
	}
	if srv.ReadTimeout == "" {
		srv.ReadTimeout = "30s"
	}
	if srv.WriteTimeout == "" {
		srv.WriteTimeout = "30s"
	}
	if srv.IdleTimeout == "" {
		srv.IdleTimeout = "120s"
	}
	if srv.EnableMetrics == nil {
		enabled := true
		srv.EnableMetrics = &enabled
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate checks the configuration for consistency
func (c *Config) Validate() error {
	if err := c.Benchmark.Validate(); err != nil {
		return fmt.Errorf("benchmark: %w", err)
	}
	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log: format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// Validate validates the benchmark section
func (b *BenchmarkConfig) Validate() error {
	if strings.TrimSpace(b.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if !extract.IsSupported(b.Tool) {
		return fmt.Errorf("unsupported tool %q, expected one of %v", b.Tool, extract.Tools())
	}
	if b.MaxItemsInChart < 0 {
		return fmt.Errorf("max_items_in_chart must not be negative")
	}
	if _, err := analysis.ParseThreshold(b.AlertThreshold); err != nil {
		return fmt.Errorf("alert_threshold: %w", err)
	}
	if _, err := analysis.ParseThreshold(b.FailThreshold); err != nil {
		return fmt.Errorf("fail_threshold: %w", err)
	}
	mode := analysis.ComparisonMode(b.ComparisonMode)
	if !mode.Valid() {
		return fmt.Errorf("unknown comparison_mode %q", b.ComparisonMode)
	}
	if mode == analysis.ModeRollingAverage && b.WindowSize < 1 {
		return fmt.Errorf("window_size must be at least 1")
	}
	if mode == analysis.ModeCommit && b.BaseCommit == "" {
		return fmt.Errorf("base_commit is required for commit comparison")
	}
	return nil
}

// Thresholds returns the parsed alert and fail ratios
func (b *BenchmarkConfig) Thresholds() (alert, fail float64, err error) {
	if alert, err = analysis.ParseThreshold(b.AlertThreshold); err != nil {
		return 0, 0, err
	}
	if fail, err = analysis.ParseThreshold(b.FailThreshold); err != nil {
		return 0, 0, err
	}
	return alert, fail, nil
}

// DetectorOptions builds regression detection options for results of tool
func (b *BenchmarkConfig) DetectorOptions(tool string) (analysis.Options, error) {
	alert, fail, err := b.Thresholds()
	if err != nil {
		return analysis.Options{}, err
	}
	return analysis.Options{
		AlertThreshold: alert,
		FailThreshold:  fail,
		Mode:           analysis.ComparisonMode(b.ComparisonMode),
		WindowSize:     b.WindowSize,
		BaseCommit:     b.BaseCommit,
		BiggerIsBetter: extract.BiggerIsBetter(tool),
	}, nil
}

// Validate validates the storage section
func (s *StorageConfig) Validate() error {
	switch s.Backend {
	case BackendNone:
	case BackendSQLite:
		if s.SQLitePath == "" {
			return fmt.Errorf("sqlite_path is required for the sqlite backend")
		}
	case BackendPostgres:
		if s.DSN == "" {
			if err := s.PostgreSQL.Validate(); err != nil {
				return fmt.Errorf("invalid PostgreSQL configuration: %w", err)
			}
		}
	default:
		return fmt.Errorf("unknown backend %q", s.Backend)
	}
	if _, err := s.RetentionDuration(); err != nil {
		return err
	}
	return nil
}

// RetentionDuration parses the retention window, e.g. "90d" or "2w"
func (s *StorageConfig) RetentionDuration() (time.Duration, error) {
	d, err := model.ParseDuration(s.Retention)
	if err != nil {
		return 0, fmt.Errorf("invalid retention %q: %w", s.Retention, err)
	}
	return time.Duration(d), nil
}

// ConnectionString returns the DSN for the configured backend
func (s *StorageConfig) ConnectionString() string {
	switch s.Backend {
	case BackendSQLite:
		if s.DSN != "" {
			return s.DSN
		}
		return s.SQLitePath
	case BackendPostgres:
		if s.DSN != "" {
			return s.DSN
		}
		return s.PostgreSQL.ConnectionString()
	}
	return ""
}

// Validate validates the PostgreSQL configuration
func (c *PostgreSQLConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	if c.Database == "" {
		return fmt.Errorf("database is required")
	}
	if c.User == "" {
		return fmt.Errorf("user is required")
	}
	if c.MaxOpenConns <= 0 {
		return fmt.Errorf("max_open_conns must be greater than 0")
	}
	if c.MaxIdleConns <= 0 {
		return fmt.Errorf("max_idle_conns must be greater than 0")
	}
	if _, err := time.ParseDuration(c.ConnectTimeout); err != nil {
		return fmt.Errorf("invalid connect_timeout: %w", err)
	}
	return nil
}

// ConnectionString returns the PostgreSQL connection string
func (c *PostgreSQLConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// ConnectTimeoutDuration returns the parsed connect timeout
func (c *PostgreSQLConfig) ConnectTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.ConnectTimeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// Validate validates the server section
func (s *ServerConfig) Validate() error {
	if s.Addr == "" {
		return fmt.Errorf("addr is required")
	}
	for name, v := range map[string]string{
		"read_timeout":  s.ReadTimeout,
		"write_timeout": s.WriteTimeout,
		"idle_timeout":  s.IdleTimeout,
	} {
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}
	return nil
}

// Timeouts returns the parsed read, write and idle timeouts
func (s *ServerConfig) Timeouts() (read, write, idle time.Duration) {
	read, _ = time.ParseDuration(s.ReadTimeout)
	write, _ = time.ParseDuration(s.WriteTimeout)
	idle, _ = time.ParseDuration(s.IdleTimeout)
	return read, write, idle
}

// MetricsEnabled reports whether /metrics is served
func (s *ServerConfig) MetricsEnabled() bool {
	return s.EnableMetrics == nil || *s.EnableMetrics
}
