package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverMemory   = "memory"
)

type ServerConfig struct {
	Port         int           `yaml:"port"`
	BasePath     string        `yaml:"base_path"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"url"`
	Mongo  struct {
		URI      string `yaml:"uri"`
		Database string `yaml:"database"`
	} `yaml:"mongo"`
	JanitorInterval time.Duration `yaml:"janitor_interval"`
}

type EmailConfig struct {
	SMTPHost     string        `yaml:"smtp_host"`
	SMTPPort     int           `yaml:"smtp_port"`
	SMTPUser     string        `yaml:"smtp_user"`
	SMTPPassword string        `yaml:"smtp_password"`
	FromEmail    string        `yaml:"from_email"`
	FromName     string        `yaml:"from_name"`
	MaxRetries   uint64        `yaml:"max_retries"`
	RetryBase    time.Duration `yaml:"retry_base"`
	DryRun       bool          `yaml:"dry_run"`
}

type AuthConfig struct {
	JWTSecret       string        `yaml:"jwt_secret"`
	Issuer          string        `yaml:"issuer"`
	ClientURL       string        `yaml:"client_url"`
	BcryptCost      int           `yaml:"bcrypt_cost"`
	VerificationTTL time.Duration `yaml:"verification_ttl"`
	ResetTTL        time.Duration `yaml:"reset_ttl"`
	SessionTTL      time.Duration `yaml:"session_ttl"`
}

type RateLimitConfig struct {
	Enabled bool          `yaml:"enabled"`
	Limit   int           `yaml:"limit"`
	Window  time.Duration `yaml:"window"`
	Redis   struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix"`
	} `yaml:"redis"`
}

type Config struct {
	ServiceName string          `yaml:"service_name"`
	Env         string          `yaml:"env"`
	LogLevel    string          `yaml:"log_level"`
	Server      ServerConfig    `yaml:"server"`
	Database    DatabaseConfig  `yaml:"database"`
	Email       EmailConfig     `yaml:"email"`
	Auth        AuthConfig      `yaml:"auth"`
	RateLimit   RateLimitConfig `yaml:"rate_limit"`
}

// Defaults returns a configuration usable for local development.
func Defaults() Config {
	var cfg Config
	cfg.ServiceName = "taskhub"
	cfg.Env = "dev"
	cfg.LogLevel = "info"

	cfg.Server.Port = 5000
	cfg.Server.BasePath = "/api-v1"
	cfg.Server.ReadTimeout = 5 * time.Second
	cfg.Server.WriteTimeout = 10 * time.Second
	cfg.Server.IdleTimeout = 60 * time.Second

	cfg.Database.Driver = DriverMemory
	cfg.Database.Mongo.Database = "taskhub"
	cfg.Database.JanitorInterval = 10 * time.Minute

	cfg.Email.SMTPPort = 587
	cfg.Email.FromName = "DockIt"
	cfg.Email.MaxRetries = 3
	cfg.Email.RetryBase = 200 * time.Millisecond

	cfg.Auth.Issuer = "taskhub"
	cfg.Auth.ClientURL = "http://localhost:5173"
	cfg.Auth.BcryptCost = 10
	cfg.Auth.VerificationTTL = time.Hour
	cfg.Auth.ResetTTL = 15 * time.Minute
	cfg.Auth.SessionTTL = 7 * 24 * time.Hour

	cfg.RateLimit.Enabled = true
	cfg.RateLimit.Limit = 20
	cfg.RateLimit.Window = time.Minute
	cfg.RateLimit.Redis.Prefix = "taskhub:auth:rl:"
	return cfg
}

// LoadConfig reads the YAML file at path (or $TASKHUB_CONFIG, or config/config.yaml)
// on top of Defaults, then applies environment overrides. A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("TASKHUB_CONFIG")
	}
	if path == "" {
		path = "config/config.yaml"
	}

	cfg := Defaults()

	f, err := os.Open(path)
	switch {
	case err == nil:
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Env = envString("TASKHUB_ENV", cfg.Env)
	cfg.LogLevel = envString("TASKHUB_LOG_LEVEL", cfg.LogLevel)
	cfg.Server.Port = envInt("PORT", cfg.Server.Port)
	cfg.Database.Driver = envString("TASKHUB_DB_DRIVER", cfg.Database.Driver)
	cfg.Database.DSN = envString("TASKHUB_DATABASE_URL", cfg.Database.DSN)
	cfg.Database.Mongo.URI = envString("TASKHUB_MONGO_URI", cfg.Database.Mongo.URI)
	cfg.Email.SMTPHost = envString("TASKHUB_SMTP_HOST", cfg.Email.SMTPHost)
	cfg.Email.SMTPUser = envString("TASKHUB_SMTP_USER", cfg.Email.SMTPUser)
	cfg.Email.SMTPPassword = envString("TASKHUB_SMTP_PASSWORD", cfg.Email.SMTPPassword)
	cfg.Auth.JWTSecret = envString("TASKHUB_JWT_SECRET", cfg.Auth.JWTSecret)
	cfg.Auth.ClientURL = envString("CLIENT_URL", cfg.Auth.ClientURL)
	cfg.RateLimit.Redis.Addr = envString("TASKHUB_REDIS_ADDR", cfg.RateLimit.Redis.Addr)
	cfg.RateLimit.Redis.Password = envString("TASKHUB_REDIS_PASSWORD", cfg.RateLimit.Redis.Password)
}

// IsDev reports whether insecure development shortcuts are allowed.
func (c *Config) IsDev() bool {
	return c.Env == "dev" || c.Env == "test"
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.DSN == "" {
			return errors.New("database.url is required for the postgres driver")
		}
	case DriverMongo:
		if c.Database.Mongo.URI == "" {
			return errors.New("database.mongo.uri is required for the mongo driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}

	if c.Auth.JWTSecret == "" {
		if !c.IsDev() {
			return errors.New("TASKHUB_JWT_SECRET must be set")
		}
		c.Auth.JWTSecret = "dev-secret"
	}
	if c.Auth.VerificationTTL <= 0 || c.Auth.ResetTTL <= 0 || c.Auth.SessionTTL <= 0 {
		return errors.New("auth token ttls must be positive")
	}
	if c.RateLimit.Enabled && (c.RateLimit.Limit <= 0 || c.RateLimit.Window <= 0) {
		return errors.New("rate_limit.limit and rate_limit.window must be positive")
	}
	c.Auth.ClientURL = strings.TrimRight(c.Auth.ClientURL, "/")
	return nil
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
