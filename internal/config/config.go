// Package config handles application configuration and environment loading.
package config

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pithecene-io/mlbstats/lake"
	"github.com/pithecene-io/mlbstats/lake/s3"
)

// Default source endpoints and tuning.
const (
	DefaultMLBBaseURL    = "https://statsapi.mlb.com/api/v1"
	DefaultFantasyURL    = "https://fantasy-baseball-loader-5yibsupwla-uc.a.run.app/"
	DefaultSourceRPS     = 5
	DefaultSourceBurst   = 5
	DefaultDBTProjectDir = "dbt"
)

// envFiles maps environment names to their dotenv files under the env dir.
var envFiles = map[string]string{
	"development": ".env.default",
	"production":  ".env.production",
	"staging":     ".env.staging",
}

// Config holds the process-wide configuration. It is built once by
// LoadFromEnv and treated as read-only afterwards.
type Config struct {
	Env       string // environment name: development (default), staging, production
	EnvFile   string // dotenv file that was loaded, if any
	LogLevel  string // debug, info, warn, error (default "info")
	LogFormat string // text (default) or json

	// Storage is the S3-compatible lake connection. Ignored when
	// LocalLakeDir is set.
	Storage s3.ConnectionConfig

	// LocalLakeDir stores the lake on the local filesystem instead of S3.
	LocalLakeDir string

	// BatchSize and MaxWorkers tune multi-partition reads.
	BatchSize  int
	MaxWorkers int

	// Sources
	MLBBaseURL         string
	FantasyLoaderURL   string
	FantasyLoaderToken string
	SourceRPS          float64
	SourceBurst        int

	// dbt
	DBTProjectDir string
	DBTExecutable string

	// PipelineFile is an optional YAML file with schedules, sensors and I/O
	// tuning. Values in it override BatchSize and MaxWorkers.
	PipelineFile string
	Pipeline     Pipeline

	// Warnings collects non-fatal warnings generated during config loading.
	// These are logged by the caller after the logger is initialised.
	Warnings []string
}

// SlogLevel maps the LogLevel string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// IsProduction returns true when running in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// UsesLocalLake reports whether the lake lives on the local filesystem.
func (c *Config) UsesLocalLake() bool {
	return c.LocalLakeDir != ""
}

// LoadEnvironment loads the dotenv file for env from dir and returns its
// path. An empty env falls back to $ENV, then "development". Unknown or
// missing environment files fall back to .env.default; a missing default
// is not an error.
func LoadEnvironment(dir, env string) (string, error) {
	if env == "" {
		env = os.Getenv("ENV")
	}
	if env == "" {
		env = "development"
	}

	name, ok := envFiles[env]
	if !ok {
		name = envFiles["development"]
	}
	path := filepath.Join(dir, name)
	if _, err := os.Stat(path); err != nil {
		path = filepath.Join(dir, envFiles["development"])
	}

	if err := LoadDotEnv(path); err != nil {
		return "", err
	}
	if err := os.Setenv("ENV", env); err != nil {
		return "", fmt.Errorf("setenv ENV: %w", err)
	}
	if err := os.Setenv("ENV_FILE", path); err != nil {
		return "", fmt.Errorf("setenv ENV_FILE: %w", err)
	}
	return path, nil
}

// LoadFromEnv loads configuration from environment variables and validates
// it. Validation failures wrap lake.ErrConfiguration.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		Env:                getenv("ENV"),
		EnvFile:            getenv("ENV_FILE"),
		LogLevel:           getenv("LOG_LEVEL"),
		LogFormat:          strings.ToLower(getenv("LOG_FORMAT")),
		LocalLakeDir:       getenv("LAKE_LOCAL_DIR"),
		MLBBaseURL:         getenv("MLB_STATS_BASE_URL"),
		FantasyLoaderURL:   getenv("FANTASY_LOADER_URL"),
		FantasyLoaderToken: getenv("FANTASY_LOADER_TOKEN"),
		DBTProjectDir:      getenv("DBT_PROJECT_DIR"),
		DBTExecutable:      getenv("DBT_EXECUTABLE"),
		PipelineFile:       getenv("PIPELINE_FILE"),
		Storage: s3.ConnectionConfig{
			Endpoint:     getenv("LAKE_ENDPOINT"),
			AccountID:    getenv("LAKE_ACCOUNT_ID", "CLOUDFLARE_ACCOUNT_ID"),
			Bucket:       getenv("LAKE_BUCKET", "CLOUDFLARE_BUCKET"),
			AccessKey:    getenv("LAKE_ACCESS_KEY", "CLOUDFLARE_CLIENT_ACCESS_KEY"),
			SecretKey:    getenv("LAKE_SECRET_KEY", "CLOUDFLARE_CLIENT_SECRET"),
			Prefix:       getenv("LAKE_PREFIX"),
			Region:       getenv("LAKE_REGION"),
			UsePathStyle: parseBoolEnvDefault("LAKE_PATH_STYLE", false),
		},
	}

	var err error
	if cfg.Storage.RequestTimeout, err = parseDurationEnv("LAKE_REQUEST_TIMEOUT"); err != nil {
		return nil, err
	}
	if cfg.Storage.ConnectTimeout, err = parseDurationEnv("LAKE_CONNECT_TIMEOUT"); err != nil {
		return nil, err
	}
	if cfg.BatchSize, err = parseIntEnv("LAKE_BATCH_SIZE"); err != nil {
		return nil, err
	}
	if cfg.MaxWorkers, err = parseIntEnv("LAKE_MAX_WORKERS"); err != nil {
		return nil, err
	}
	if v := getenv("SOURCE_RATE_LIMIT_RPS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: SOURCE_RATE_LIMIT_RPS: %w", lake.ErrConfiguration, err)
		}
		cfg.SourceRPS = f
	}
	if cfg.SourceBurst, err = parseIntEnv("SOURCE_RATE_LIMIT_BURST"); err != nil {
		return nil, err
	}

	// Defaults
	cfg.Storage = cfg.Storage.WithDefaults()
	if cfg.Env == "" {
		cfg.Env = "development"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "text"
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = lake.DefaultBatchSize
	}
	if cfg.MaxWorkers == 0 {
		cfg.MaxWorkers = lake.DefaultMaxWorkers
	}
	if cfg.MLBBaseURL == "" {
		cfg.MLBBaseURL = DefaultMLBBaseURL
	}
	if cfg.FantasyLoaderURL == "" {
		cfg.FantasyLoaderURL = DefaultFantasyURL
	}
	if cfg.SourceRPS == 0 {
		cfg.SourceRPS = DefaultSourceRPS
	}
	if cfg.SourceBurst == 0 {
		cfg.SourceBurst = DefaultSourceBurst
	}
	if cfg.DBTProjectDir == "" {
		cfg.DBTProjectDir = DefaultDBTProjectDir
	}
	if cfg.DBTExecutable == "" {
		cfg.DBTExecutable = "dbt"
	}
	if cfg.FantasyLoaderToken == "" {
		cfg.Warnings = append(cfg.Warnings, "FANTASY_LOADER_TOKEN not set; fantasy loader requests will be unauthenticated")
	}

	if cfg.PipelineFile != "" {
		p, err := LoadPipelineFile(cfg.PipelineFile)
		if err != nil {
			return nil, err
		}
		cfg.Pipeline = p
		if p.IO.BatchSize > 0 {
			cfg.BatchSize = p.IO.BatchSize
		}
		if p.IO.MaxWorkers > 0 {
			cfg.MaxWorkers = p.IO.MaxWorkers
		}
	} else {
		cfg.Pipeline = DefaultPipeline()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration once; every failure wraps
// lake.ErrConfiguration.
func (c *Config) Validate() error {
	if !c.UsesLocalLake() {
		if err := c.Storage.Validate(); err != nil {
			return err
		}
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("%w: batch size must be positive, got %d", lake.ErrConfiguration, c.BatchSize)
	}
	if c.MaxWorkers < 1 {
		return fmt.Errorf("%w: max workers must be positive, got %d", lake.ErrConfiguration, c.MaxWorkers)
	}
	if c.SourceRPS < 0 || c.SourceBurst < 0 {
		return fmt.Errorf("%w: source rate limit must not be negative", lake.ErrConfiguration)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("%w: LOG_FORMAT must be text or json, got %q", lake.ErrConfiguration, c.LogFormat)
	}
	return c.Pipeline.Validate()
}

// getenv returns the first non-empty variable among keys.
func getenv(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}

func parseBoolEnvDefault(key string, defaultVal bool) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	if v == "" {
		return defaultVal
	}
	if v == "0" || v == "false" || v == "no" || v == "off" {
		return false
	}
	if v == "1" || v == "true" || v == "yes" || v == "on" {
		return true
	}
	return defaultVal
}

// parseDurationEnv accepts Go durations ("90s") or plain seconds ("3600").
func parseDurationEnv(key string) (time.Duration, error) {
	v := getenv(key)
	if v == "" {
		return 0, nil
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", lake.ErrConfiguration, key, err)
	}
	return d, nil
}

func parseIntEnv(key string) (int, error) {
	v := getenv(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", lake.ErrConfiguration, key, err)
	}
	return n, nil
}

// LoadDotEnv reads a .env file and sets any variables not already in the environment.
// Lines must be in KEY=VALUE format. Comments (#) and blank lines are skipped.
func LoadDotEnv(path string) error {
	f, err := os.Open(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		if os.IsNotExist(err) {
			return nil // .env not found is not an error
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = stripQuotes(strings.TrimSpace(value))
		// Real environment variables take precedence.
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("setenv %s: %w", key, err)
			}
		}
	}
	return scanner.Err()
}

// stripQuotes removes surrounding double or single quotes from a value.
func stripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
