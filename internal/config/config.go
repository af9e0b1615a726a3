// Package config provides configuration loading and validation for the feed
// API server. It uses koanf to merge an optional YAML file with environment
// variables; environment variables take precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvProduction is the environment name that enables strict validation.
const EnvProduction = "production"

// Config holds all configuration values for the API server.
type Config struct {
	// Server settings
	Port int    `koanf:"port"`
	Env  string `koanf:"env"`

	// Storage
	DatabaseURL string `koanf:"database_url"`
	RedisURL    string `koanf:"redis_url"`

	// JWT authentication; the previous secret is accepted during rotation.
	JWTSecret         string `koanf:"jwt_secret"`
	JWTPreviousSecret string `koanf:"jwt_previous_secret"`

	// Ranking
	CalibrationPath         string `koanf:"ranking_calibration_path"`
	FetchTimeoutMS          int    `koanf:"feed_fetch_timeout_ms"`
	TrendingWindowHours     int    `koanf:"trending_window_hours"`
	TrendingPoolSize        int    `koanf:"trending_pool_size"`
	TrendingCacheTTLSeconds int    `koanf:"trending_cache_ttl_seconds"`
	SeenTTLHours            int    `koanf:"seen_ttl_hours"`

	// Tracing
	TracingEnabled    bool    `koanf:"tracing_enabled"`
	TracingExporter   string  `koanf:"otel_exporter_type"`
	TracingEndpoint   string  `koanf:"otel_exporter_otlp_endpoint"`
	TracingSampleRate float64 `koanf:"tracing_sample_rate"`
	TracingInsecure   bool    `koanf:"tracing_insecure"`
}

// Configuration validation errors.
var (
	ErrMissingDatabaseURL   = errors.New("DATABASE_URL is required in production")
	ErrMissingRedisURL      = errors.New("REDIS_URL is required in production")
	ErrMissingJWTSecret     = errors.New("JWT_SECRET is required")
	ErrInvalidInteger       = errors.New("must be a valid integer")
	ErrInvalidPort          = errors.New("PORT must be between 1 and 65535")
	ErrInvalidFetchTimeout  = errors.New("FEED_FETCH_TIMEOUT_MS must be positive")
	ErrInvalidWindow        = errors.New("TRENDING_WINDOW_HOURS must be between 1 and 720")
	ErrInvalidPoolSize      = errors.New("TRENDING_POOL_SIZE must be positive")
	ErrInvalidCacheTTL      = errors.New("TRENDING_CACHE_TTL_SECONDS must not be negative")
	ErrInvalidSeenTTL       = errors.New("SEEN_TTL_HOURS must be positive")
	ErrInvalidSampleRate    = errors.New("TRACING_SAMPLE_RATE must be between 0 and 1")
	ErrInvalidTraceExporter = errors.New("OTEL_EXPORTER_TYPE must be otlp-grpc or otlp-http")
)

// Default values for non-secret configuration.
const (
	DefaultPort                    = 8080
	DefaultEnv                     = "development"
	DefaultCalibrationPath         = "configs/ranking.calibration.json"
	DefaultFetchTimeoutMS          = 2000
	DefaultTrendingWindowHours     = 72
	DefaultTrendingPoolSize        = 500
	DefaultTrendingCacheTTLSeconds = 60
	DefaultSeenTTLHours            = 7 * 24
	DefaultTracingExporter         = "otlp-http"
	DefaultTracingSampleRate       = 0.1
)

// Load reads configuration from an optional YAML file and the environment.
// Returns the loaded config and a slice of validation errors (empty if valid).
// If a config file path is provided and the file cannot be loaded, only
// that error is returned.
func Load(configFilePath string) (*Config, []error) {
	k := koanf.New(".")
	var loadErrs []error

	if configFilePath != "" {
		if err := k.Load(file.Provider(configFilePath), yaml.Parser()); err != nil {
			return nil, []error{fmt.Errorf("failed to load config file %s: %w", configFilePath, err)}
		}
	}

	intSetting := func(envKeys []string, koanfKey string, def int) int {
		v, err := getEnvIntOrDefaultMulti(envKeys, k.Int(koanfKey), def)
		if err != nil {
			loadErrs = append(loadErrs, err)
		}
		return v
	}

	sampleRate, err := getEnvFloatOrDefault("TRACING_SAMPLE_RATE", k, "tracing_sample_rate", DefaultTracingSampleRate)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}

	cfg := &Config{
		Port:              intSetting([]string{"AGROLINK_PORT", "PORT"}, "port", DefaultPort),
		Env:               getEnvOrDefaultMulti([]string{"AGROLINK_ENV", "ENV"}, k.String("env"), DefaultEnv),
		DatabaseURL:       getEnvOrKoanf("DATABASE_URL", k, "database_url"),
		RedisURL:          getEnvOrKoanf("REDIS_URL", k, "redis_url"),
		JWTSecret:         getEnvOrKoanf("JWT_SECRET", k, "jwt_secret"),
		JWTPreviousSecret: getEnvOrKoanf("JWT_PREVIOUS_SECRET", k, "jwt_previous_secret"),

		CalibrationPath:         getEnvOrDefaultMulti([]string{"RANKING_CALIBRATION_PATH"}, k.String("ranking_calibration_path"), DefaultCalibrationPath),
		FetchTimeoutMS:          intSetting([]string{"FEED_FETCH_TIMEOUT_MS"}, "feed_fetch_timeout_ms", DefaultFetchTimeoutMS),
		TrendingWindowHours:     intSetting([]string{"TRENDING_WINDOW_HOURS"}, "trending_window_hours", DefaultTrendingWindowHours),
		TrendingPoolSize:        intSetting([]string{"TRENDING_POOL_SIZE"}, "trending_pool_size", DefaultTrendingPoolSize),
		TrendingCacheTTLSeconds: intSetting([]string{"TRENDING_CACHE_TTL_SECONDS"}, "trending_cache_ttl_seconds", DefaultTrendingCacheTTLSeconds),
		SeenTTLHours:            intSetting([]string{"SEEN_TTL_HOURS"}, "seen_ttl_hours", DefaultSeenTTLHours),

		TracingEnabled:    getEnvBool("TRACING_ENABLED", k, "tracing_enabled", false),
		TracingExporter:   getEnvOrDefaultMulti([]string{"OTEL_EXPORTER_TYPE"}, k.String("otel_exporter_type"), DefaultTracingExporter),
		TracingEndpoint:   getEnvOrKoanf("OTEL_EXPORTER_OTLP_ENDPOINT", k, "otel_exporter_otlp_endpoint"),
		TracingSampleRate: sampleRate,
		TracingInsecure:   getEnvBool("TRACING_INSECURE", k, "tracing_insecure", false),
	}

	errs := append(loadErrs, cfg.Validate()...)
	return cfg, errs
}

// IsProduction reports whether the server runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Env == EnvProduction
}

// FetchTimeout returns the candidate fetch timeout.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutMS) * time.Millisecond
}

// TrendingCacheTTL returns how long trending pages are cached. Zero disables
// the cache.
func (c *Config) TrendingCacheTTL() time.Duration {
	return time.Duration(c.TrendingCacheTTLSeconds) * time.Second
}

// SeenTTL returns how long seen post ids are remembered.
func (c *Config) SeenTTL() time.Duration {
	return time.Duration(c.SeenTTLHours) * time.Hour
}

// getEnvOrKoanf returns the environment variable value if set, otherwise the koanf value.
func getEnvOrKoanf(envKey string, k *koanf.Koanf, koanfKey string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	return k.String(koanfKey)
}

// getEnvOrDefaultMulti tries multiple environment variable keys in order.
// Returns the first non-empty value found, otherwise the koanf value, or default.
func getEnvOrDefaultMulti(envKeys []string, koanfVal string, defaultVal string) string {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			return val
		}
	}
	if koanfVal != "" {
		return koanfVal
	}
	return defaultVal
}

// getEnvIntOrDefaultMulti tries multiple environment variable keys in order.
// Returns the first value found, otherwise the koanf value, or default.
// Returns an error if a set environment variable is not an integer.
// Note: a zero value from a YAML file falls back to the default.
func getEnvIntOrDefaultMulti(envKeys []string, koanfVal int, defaultVal int) (int, error) {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			i, err := strconv.Atoi(val)
			if err != nil {
				return defaultVal, fmt.Errorf("%s %w", key, ErrInvalidInteger)
			}
			return i, nil
		}
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// getEnvFloatOrDefault returns the environment variable as float64 if set,
// otherwise the koanf value if present, or default.
func getEnvFloatOrDefault(envKey string, k *koanf.Koanf, koanfKey string, defaultVal float64) (float64, error) {
	if val := os.Getenv(envKey); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return defaultVal, fmt.Errorf("%s must be a valid float: %w", envKey, err)
		}
		return f, nil
	}
	if k.Exists(koanfKey) {
		return k.Float64(koanfKey), nil
	}
	return defaultVal, nil
}

// getEnvBool reads a boolean flag. Unrecognized env values are ignored.
func getEnvBool(envKey string, k *koanf.Koanf, koanfKey string, defaultVal bool) bool {
	result := defaultVal
	if k.Exists(koanfKey) {
		result = k.Bool(koanfKey)
	}
	switch strings.ToLower(os.Getenv(envKey)) {
	case "true", "1", "yes", "on":
		result = true
	case "false", "0", "no", "off":
		result = false
	}
	return result
}

// Validate checks the configuration. Returns a slice of validation errors
// (empty if valid).
func (c *Config) Validate() []error {
	var errs []error

	if c.JWTSecret == "" {
		errs = append(errs, ErrMissingJWTSecret)
	}
	if c.IsProduction() {
		if c.DatabaseURL == "" {
			errs = append(errs, ErrMissingDatabaseURL)
		}
		if c.RedisURL == "" {
			errs = append(errs, ErrMissingRedisURL)
		}
	}
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, ErrInvalidPort)
	}
	if c.FetchTimeoutMS <= 0 {
		errs = append(errs, ErrInvalidFetchTimeout)
	}
	if c.TrendingWindowHours < 1 || c.TrendingWindowHours > 720 {
		errs = append(errs, ErrInvalidWindow)
	}
	if c.TrendingPoolSize <= 0 {
		errs = append(errs, ErrInvalidPoolSize)
	}
	if c.TrendingCacheTTLSeconds < 0 {
		errs = append(errs, ErrInvalidCacheTTL)
	}
	if c.SeenTTLHours <= 0 {
		errs = append(errs, ErrInvalidSeenTTL)
	}
	if c.TracingSampleRate < 0 || c.TracingSampleRate > 1 {
		errs = append(errs, ErrInvalidSampleRate)
	}
	if c.TracingEnabled && c.TracingExporter != "otlp-grpc" && c.TracingExporter != "otlp-http" {
		errs = append(errs, ErrInvalidTraceExporter)
	}

	return errs
}

// LogSummary returns a summary of the configuration suitable for logging.
// All secrets are masked to prevent accidental exposure.
func (c *Config) LogSummary() map[string]string {
	return map[string]string{
		"port":                       strconv.Itoa(c.Port),
		"env":                        c.Env,
		"database_url":               maskURLPassword(c.DatabaseURL),
		"redis_url":                  maskURLPassword(c.RedisURL),
		"jwt_secret":                 maskSecret(c.JWTSecret),
		"jwt_previous_secret":        maskSecret(c.JWTPreviousSecret),
		"ranking_calibration_path":   c.CalibrationPath,
		"feed_fetch_timeout_ms":      strconv.Itoa(c.FetchTimeoutMS),
		"trending_window_hours":      strconv.Itoa(c.TrendingWindowHours),
		"trending_pool_size":         strconv.Itoa(c.TrendingPoolSize),
		"trending_cache_ttl_seconds": strconv.Itoa(c.TrendingCacheTTLSeconds),
		"seen_ttl_hours":             strconv.Itoa(c.SeenTTLHours),
		"tracing_enabled":            strconv.FormatBool(c.TracingEnabled),
		"otel_exporter_type":         c.TracingExporter,
		"otel_endpoint":              c.TracingEndpoint,
		"tracing_sample_rate":        strconv.FormatFloat(c.TracingSampleRate, 'f', -1, 64),
	}
}

// maskSecret masks a secret value, showing only the first 4 characters followed by ****
// If the secret is shorter than 8 characters, it's fully masked.
func maskSecret(s string) string {
	if s == "" {
		return "<not set>"
	}
	if len(s) < 8 {
		return "****"
	}
	return s[:4] + "****"
}

// maskURLPassword masks the password in a postgres:// or redis:// URL.
func maskURLPassword(s string) string {
	if s == "" {
		return "<not set>"
	}

	schemeEnd := strings.Index(s, "://")
	if schemeEnd == -1 {
		return maskSecret(s)
	}

	rest := s[schemeEnd+3:]
	atIndex := strings.LastIndex(rest, "@")
	if atIndex == -1 {
		return s
	}

	colonIndex := strings.Index(rest[:atIndex], ":")
	if colonIndex == -1 {
		return s
	}

	return s[:schemeEnd+3] + rest[:colonIndex] + ":****" + rest[atIndex:]
}
