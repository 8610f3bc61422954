package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config contains runtime settings for the chat client and the dev backend.
type Config struct {
	// client
	BackendMode    string
	BackendURL     string
	BackendWSURL   string
	RequestTimeout time.Duration

	LogLevel string
	LogDev   bool
	LogFile  string

	// dev backend
	BindAddr                 string
	ShutdownTimeout          time.Duration
	SessionInactivityTimeout time.Duration
	MetricsNamespace         string
	AllowAnyOrigin           bool
	RateLimitRPS             float64
	RateLimitBurst           int

	DatabaseURL       string
	KnowledgeBasePath string
}

// Keys. Each is read from the environment, the optional config file, or a bound flag.
const (
	KeyConfigFile               = "CARE_CONFIG"
	KeyBackendMode              = "CARE_BACKEND_MODE"
	KeyBackendURL               = "CARE_BACKEND_URL"
	KeyBackendWSURL             = "CARE_BACKEND_WS_URL"
	KeyRequestTimeout           = "CARE_REQUEST_TIMEOUT"
	KeyLogLevel                 = "CARE_LOG_LEVEL"
	KeyLogDev                   = "CARE_LOG_DEV"
	KeyLogFile                  = "CARE_LOG_FILE"
	KeyBindAddr                 = "APP_BIND_ADDR"
	KeyShutdownTimeout          = "APP_SHUTDOWN_TIMEOUT"
	KeySessionInactivityTimeout = "APP_SESSION_INACTIVITY_TIMEOUT"
	KeyMetricsNamespace         = "APP_METRICS_NAMESPACE"
	KeyAllowAnyOrigin           = "APP_ALLOW_ANY_ORIGIN"
	KeyRateLimitRPS             = "APP_RATE_LIMIT_RPS"
	KeyRateLimitBurst           = "APP_RATE_LIMIT_BURST"
	KeyDatabaseURL              = "DATABASE_URL"
	KeyKnowledgeBasePath        = "KNOWLEDGE_BASE_PATH"
)

var defaults = map[string]string{
	KeyBackendMode:              "auto",
	KeyBackendURL:               "",
	KeyBackendWSURL:             "",
	KeyRequestTimeout:           "0s",
	KeyLogLevel:                 "info",
	KeyLogDev:                   "false",
	KeyLogFile:                  "",
	KeyBindAddr:                 ":8000",
	KeyShutdownTimeout:          "15s",
	KeySessionInactivityTimeout: "30m",
	KeyMetricsNamespace:         "carecompanion",
	KeyAllowAnyOrigin:           "false",
	KeyRateLimitRPS:             "5",
	KeyRateLimitBurst:           "10",
	KeyDatabaseURL:              "",
	KeyKnowledgeBasePath:        "",
}

// New returns a viper instance with defaults and environment lookup wired.
// Callers may bind flags onto it before calling FromViper.
func New() *viper.Viper {
	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
		_ = v.BindEnv(k)
	}
	_ = v.BindEnv(KeyConfigFile)
	return v
}

// Load reads environment variables, the CARE_CONFIG file when set, and applies defaults.
func Load() (Config, error) {
	return FromViper(New())
}

// FromViper reads the optional config file named by CARE_CONFIG and validates every key.
func FromViper(v *viper.Viper) (Config, error) {
	if path := strings.TrimSpace(v.GetString(KeyConfigFile)); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("%s: read %s: %w", KeyConfigFile, path, err)
		}
	}

	cfg := Config{
		BackendMode:       strings.ToLower(str(v, KeyBackendMode)),
		BackendURL:        str(v, KeyBackendURL),
		BackendWSURL:      str(v, KeyBackendWSURL),
		LogLevel:          strings.ToLower(str(v, KeyLogLevel)),
		LogFile:           str(v, KeyLogFile),
		BindAddr:          str(v, KeyBindAddr),
		MetricsNamespace:  str(v, KeyMetricsNamespace),
		DatabaseURL:       str(v, KeyDatabaseURL),
		KnowledgeBasePath: str(v, KeyKnowledgeBasePath),
	}

	var errs []error
	cfg.RequestTimeout = durationFrom(v, KeyRequestTimeout, &errs)
	cfg.ShutdownTimeout = durationFrom(v, KeyShutdownTimeout, &errs)
	cfg.SessionInactivityTimeout = durationFrom(v, KeySessionInactivityTimeout, &errs)
	cfg.LogDev = boolFrom(v, KeyLogDev, &errs)
	cfg.AllowAnyOrigin = boolFrom(v, KeyAllowAnyOrigin, &errs)
	cfg.RateLimitBurst = intFrom(v, KeyRateLimitBurst, &errs)
	cfg.RateLimitRPS = floatFrom(v, KeyRateLimitRPS, &errs)
	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}

	switch cfg.BackendMode {
	case "auto", "http", "ws", "local":
	default:
		return Config{}, fmt.Errorf("%s must be one of auto, http, ws, local", KeyBackendMode)
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return Config{}, fmt.Errorf("%s must be one of debug, info, warn, error", KeyLogLevel)
	}
	if cfg.RequestTimeout < 0 {
		return Config{}, fmt.Errorf("%s must be >= 0", KeyRequestTimeout)
	}
	if cfg.SessionInactivityTimeout < 5*time.Second {
		return Config{}, fmt.Errorf("%s must be at least 5s", KeySessionInactivityTimeout)
	}
	if cfg.ShutdownTimeout <= 0 {
		return Config{}, fmt.Errorf("%s must be positive", KeyShutdownTimeout)
	}
	if cfg.RateLimitRPS <= 0 {
		return Config{}, fmt.Errorf("%s must be positive", KeyRateLimitRPS)
	}
	if cfg.RateLimitBurst <= 0 {
		return Config{}, fmt.Errorf("%s must be positive", KeyRateLimitBurst)
	}

	return cfg, nil
}

func str(v *viper.Viper, key string) string {
	return strings.TrimSpace(v.GetString(key))
}

func durationFrom(v *viper.Viper, key string, errs *[]error) time.Duration {
	raw := str(v, key)
	if raw == "" || raw == "0" {
		return 0
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s parse error: %w", key, err))
	}
	return d
}

func intFrom(v *viper.Viper, key string, errs *[]error) int {
	n, err := strconv.Atoi(str(v, key))
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s parse error: %w", key, err))
	}
	return n
}

func floatFrom(v *viper.Viper, key string, errs *[]error) float64 {
	f, err := strconv.ParseFloat(str(v, key), 64)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s parse error: %w", key, err))
	}
	return f
}

func boolFrom(v *viper.Viper, key string, errs *[]error) bool {
	switch strings.ToLower(str(v, key)) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off", "":
		return false
	default:
		*errs = append(*errs, fmt.Errorf("%s parse error: expected bool", key))
		return false
	}
}
