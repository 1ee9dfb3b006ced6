// Package config parses the dashboard's runtime configuration.
//
// Sources, in order of precedence:
//  1. Command-line flags
//  2. Environment variables (a .env file is loaded first; it never overrides
//     variables already set)
//  3. An optional YAML or TOML file given by -config-file / CONFIG_FILE
//  4. Default values
//
// Example usage:
//
//	cfg, err := config.Parse(os.Args[1:])
//	if err != nil {
//	    log.Fatal(err)
//	}
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/HatiCode/rewardboard/pkg/tls"
)

// Config holds all dashboard configuration.
type Config struct {
	Listen     string `validate:"required"`
	GRPCListen string

	BackendURL   string        `validate:"required,url"`
	PollInterval time.Duration `validate:"gt=0"`
	FetchTimeout time.Duration `validate:"gte=0"`
	BackendRPS   float64       `validate:"gte=0"`

	Storage       string        `validate:"oneof=memory redis"`
	RedisAddr     string        `validate:"required_if=Storage redis"`
	RedisPassword string
	RedisDB       int           `validate:"gte=0"`
	RedisTTL      time.Duration `validate:"gte=0"`
	CacheTTL      time.Duration `validate:"gte=0"`

	SessionIdle time.Duration `validate:"gt=0"`
	ModelAsset  string

	LogLevel  string `validate:"oneof=debug info warn error"`
	LogFormat string `validate:"oneof=text json"`

	TLS        tls.Config
	BackendTLS tls.Config

	ConfigFile string
	EnvFile    string
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		Listen:       ":8080",
		GRPCListen:   ":50051",
		BackendURL:   "http://localhost:8000",
		PollInterval: 5 * time.Second,
		BackendRPS:   20,
		Storage:      "memory",
		RedisAddr:    "localhost:6379",
		RedisTTL:     30 * time.Minute,
		SessionIdle:  10 * time.Minute,
		ModelAsset:   "/static/model.glb",
		LogLevel:     "info",
		LogFormat:    "text",
		EnvFile:      ".env",
	}
}

// ParseFlags parses os.Args and exits on error, like the flag package does.
func ParseFlags() *Config {
	cfg, err := Parse(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
	return cfg
}

// Parse builds a validated Config from args, the environment and the
// optional config file.
func Parse(args []string) (*Config, error) {
	cfg := Defaults()

	cfg.EnvFile = lookupArg(args, "env-file", getEnv("ENV_FILE", cfg.EnvFile))
	if err := loadDotEnv(cfg.EnvFile); err != nil {
		return nil, err
	}

	cfg.ConfigFile = lookupArg(args, "config-file", getEnv("CONFIG_FILE", ""))
	if cfg.ConfigFile != "" {
		fc, err := LoadFile(cfg.ConfigFile)
		if err != nil {
			return nil, err
		}
		if err := fc.apply(&cfg); err != nil {
			return nil, fmt.Errorf("config file %s: %w", cfg.ConfigFile, err)
		}
	}

	fs := flag.NewFlagSet("dashboard", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.ConfigFile, "config-file", cfg.ConfigFile, "YAML or TOML configuration file")
	fs.StringVar(&cfg.EnvFile, "env-file", cfg.EnvFile, "dotenv file loaded before reading the environment")

	fs.StringVar(&cfg.Listen, "listen", getEnv("LISTEN", cfg.Listen), "HTTP listen address")
	fs.StringVar(&cfg.GRPCListen, "grpc-listen", getEnvAllowEmpty("GRPC_LISTEN", cfg.GRPCListen), "gRPC listen address (empty disables)")

	fs.StringVar(&cfg.BackendURL, "backend-url", getEnv("BACKEND_URL", cfg.BackendURL), "Training backend base URL")
	fs.DurationVar(&cfg.PollInterval, "poll-interval", getEnvDuration("POLL_INTERVAL", cfg.PollInterval), "Refresh period of live data and selected runs")
	fs.DurationVar(&cfg.FetchTimeout, "fetch-timeout", getEnvDuration("FETCH_TIMEOUT", cfg.FetchTimeout), "Per-request backend timeout (0 disables)")
	fs.Float64Var(&cfg.BackendRPS, "backend-rps", getEnvFloat("BACKEND_RPS", cfg.BackendRPS), "Backend requests per second across all sessions (0 disables)")

	fs.StringVar(&cfg.Storage, "storage", getEnv("STORAGE", cfg.Storage), "Run cache backend: memory or redis")
	fs.StringVar(&cfg.RedisAddr, "redis-addr", getEnv("REDIS_ADDR", cfg.RedisAddr), "Redis server address")
	fs.StringVar(&cfg.RedisPassword, "redis-password", getEnv("REDIS_PASSWORD", cfg.RedisPassword), "Redis password")
	fs.IntVar(&cfg.RedisDB, "redis-db", getEnvInt("REDIS_DB", cfg.RedisDB), "Redis database number")
	fs.DurationVar(&cfg.RedisTTL, "redis-ttl", getEnvDuration("REDIS_TTL", cfg.RedisTTL), "Redis run cache TTL")
	fs.DurationVar(&cfg.CacheTTL, "cache-ttl", getEnvDuration("CACHE_TTL", cfg.CacheTTL), "In-memory run cache TTL (0 keeps entries forever)")

	fs.DurationVar(&cfg.SessionIdle, "session-idle", getEnvDuration("SESSION_IDLE", cfg.SessionIdle), "Idle time before a dashboard session is torn down")
	fs.StringVar(&cfg.ModelAsset, "model-asset", getEnv("MODEL_ASSET", cfg.ModelAsset), "URL of the 3D model shown on the dashboard")

	fs.StringVar(&cfg.LogFormat, "log-format", getEnv("LOG_FORMAT", cfg.LogFormat), "Log format: text or json")
	fs.StringVar(&cfg.LogLevel, "log-level", getEnv("LOG_LEVEL", cfg.LogLevel), "Log level: debug, info, warn, error")

	fs.BoolVar(&cfg.TLS.Enabled, "tls-enabled", getEnvBool("TLS_ENABLED", cfg.TLS.Enabled), "Serve HTTP and gRPC over TLS")
	fs.StringVar(&cfg.TLS.CertFile, "tls-cert-file", getEnv("TLS_CERT_FILE", cfg.TLS.CertFile), "TLS certificate file")
	fs.StringVar(&cfg.TLS.KeyFile, "tls-key-file", getEnv("TLS_KEY_FILE", cfg.TLS.KeyFile), "TLS private key file")
	fs.StringVar(&cfg.TLS.CAFile, "tls-ca-file", getEnv("TLS_CA_FILE", cfg.TLS.CAFile), "CA file for verifying client certificates")

	fs.BoolVar(&cfg.BackendTLS.Enabled, "backend-tls-enabled", getEnvBool("BACKEND_TLS_ENABLED", cfg.BackendTLS.Enabled), "Use custom TLS settings for the backend client")
	fs.StringVar(&cfg.BackendTLS.CertFile, "backend-tls-cert-file", getEnv("BACKEND_TLS_CERT_FILE", cfg.BackendTLS.CertFile), "Client certificate presented to the backend")
	fs.StringVar(&cfg.BackendTLS.KeyFile, "backend-tls-key-file", getEnv("BACKEND_TLS_KEY_FILE", cfg.BackendTLS.KeyFile), "Client private key")
	fs.StringVar(&cfg.BackendTLS.CAFile, "backend-tls-ca-file", getEnv("BACKEND_TLS_CA_FILE", cfg.BackendTLS.CAFile), "CA file for verifying the backend")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and TLS files.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q (value %v)", fe.Field(), fe.Tag(), fe.Value()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := c.TLS.Validate(); err != nil {
		return fmt.Errorf("tls: %w", err)
	}
	if err := c.BackendTLS.ValidateClient(); err != nil {
		return fmt.Errorf("backend tls: %w", err)
	}
	return nil
}

// loadDotEnv loads path if it exists. A missing default file is not an error.
func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("invalid env file %s: %w", path, err)
	}
	return nil
}

// lookupArg finds -name=value, --name=value, -name value or --name value in
// args without parsing the rest.
func lookupArg(args []string, name, fallback string) string {
	for i, a := range args {
		if a == "--" {
			break
		}
		trimmed := strings.TrimLeft(a, "-")
		if len(trimmed) == len(a) {
			continue
		}
		if v, ok := strings.CutPrefix(trimmed, name+"="); ok {
			return v
		}
		if trimmed == name && i+1 < len(args) {
			return args[i+1]
		}
	}
	return fallback
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAllowEmpty is getEnv for keys where a set but empty value is meaningful.
func getEnvAllowEmpty(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}
