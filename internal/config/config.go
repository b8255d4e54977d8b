// Package config loads service configuration from a YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment variable read by Load.
// DODOCARE_SERVER_METRICS_PORT sets server.metrics_port.
const EnvPrefix = "DODOCARE_"

// Docstore drivers.
const (
	DocstorePostgres = "postgres"
	DocstoreMemory   = "memory"
)

// Config is the complete service configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Log      LogConfig      `koanf:"log"`
	CORS     CORSConfig     `koanf:"cors"`
	Session  SessionConfig  `koanf:"session"`
	Admin    AdminConfig    `koanf:"admin"`
	Timeouts TimeoutsConfig `koanf:"timeouts"`
	Identity IdentityConfig `koanf:"identity"`
	Mail     MailConfig     `koanf:"mail"`
	Docstore DocstoreConfig `koanf:"docstore"`
}

// ServerConfig configures the HTTP listeners.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              string        `koanf:"port"`
	MetricsPort       string        `koanf:"metrics_port"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	IdleTimeout       time.Duration `koanf:"idle_timeout"`
}

// DatabaseConfig configures the PostgreSQL pool.
type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	// ConnectTimeout bounds each connection attempt at startup.
	ConnectTimeout  time.Duration `koanf:"connect_timeout"`
	ConnectAttempts int           `koanf:"connect_attempts"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// CORSConfig lists origins allowed to call the API from a browser.
type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// SessionConfig configures client sessions and their tokens.
type SessionConfig struct {
	TokenSecret  string        `koanf:"token_secret"`
	TokenTTL     time.Duration `koanf:"token_ttl"`
	IdleTimeout  time.Duration `koanf:"idle_timeout"`
	ReapInterval time.Duration `koanf:"reap_interval"`
}

// AdminConfig holds the administrator credential pair.
// Leaving either value empty disables administrator login.
type AdminConfig struct {
	Identifier string `koanf:"identifier"`
	Secret     string `koanf:"secret"`
}

// TimeoutsConfig bounds calls to the identity provider and document store.
type TimeoutsConfig struct {
	Login  time.Duration `koanf:"login"`
	Lookup time.Duration `koanf:"lookup"`
	Read   time.Duration `koanf:"read"`
	Write  time.Duration `koanf:"write"`
}

// IdentityConfig configures credential storage and password resets.
type IdentityConfig struct {
	BcryptCost    int           `koanf:"bcrypt_cost"`
	ResetTokenTTL time.Duration `koanf:"reset_token_ttl"`
}

// MailConfig configures delivery of password reset links.
type MailConfig struct {
	Enabled       bool   `koanf:"enabled"`
	SMTPHost      string `koanf:"smtp_host"`
	SMTPPort      int    `koanf:"smtp_port"`
	SMTPUser      string `koanf:"smtp_user"`
	SMTPPassword  string `koanf:"smtp_password"`
	FromAddress   string `koanf:"from_address"`
	ResetURL      string `koanf:"reset_url"`
	RatePerMinute int    `koanf:"rate_per_minute"`
}

// DocstoreConfig selects the document store backend.
type DocstoreConfig struct {
	Driver string `koanf:"driver"`
}

// Default returns the configuration used for keys that are not set.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              "8080",
			MetricsPort:       "9090",
			ReadTimeout:       15 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 30 * time.Minute,
			ConnectTimeout:  30 * time.Second,
			ConnectAttempts: 5,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Session: SessionConfig{
			TokenTTL:     30 * 24 * time.Hour,
			IdleTimeout:  30 * time.Minute,
			ReapInterval: time.Minute,
		},
		Timeouts: TimeoutsConfig{
			Login:  10 * time.Second,
			Lookup: 5 * time.Second,
			Read:   5 * time.Second,
			Write:  10 * time.Second,
		},
		Identity: IdentityConfig{
			BcryptCost:    12,
			ResetTokenTTL: time.Hour,
		},
		Mail: MailConfig{
			SMTPPort:      587,
			RatePerMinute: 30,
		},
		Docstore: DocstoreConfig{
			Driver: DocstorePostgres,
		},
	}
}

// Load reads configuration from path, if given, then from the environment.
// Environment variables win over the file.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey maps DODOCARE_SECTION_SOME_KEY to section.some_key.
func envKey(s string) string {
	return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "_", ".", 1)
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Database.URL == "" {
		errs = append(errs, errors.New("database.url is required"))
	}
	if c.Session.TokenSecret == "" {
		errs = append(errs, errors.New("session.token_secret is required"))
	} else if len(c.Session.TokenSecret) < 32 {
		errs = append(errs, errors.New("session.token_secret must be at least 32 characters"))
	}
	if c.Session.TokenTTL <= 0 {
		errs = append(errs, errors.New("session.token_ttl must be positive"))
	}
	if (c.Admin.Identifier == "") != (c.Admin.Secret == "") {
		errs = append(errs, errors.New("admin.identifier and admin.secret must be set together"))
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format %q is not one of json, text", c.Log.Format))
	}

	switch c.Docstore.Driver {
	case DocstorePostgres, DocstoreMemory:
	default:
		errs = append(errs, fmt.Errorf("docstore.driver %q is not one of postgres, memory", c.Docstore.Driver))
	}

	for name, d := range map[string]time.Duration{
		"timeouts.login":  c.Timeouts.Login,
		"timeouts.lookup": c.Timeouts.Lookup,
		"timeouts.read":   c.Timeouts.Read,
		"timeouts.write":  c.Timeouts.Write,
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative", name))
		}
	}

	if c.Mail.Enabled && (c.Mail.SMTPHost == "" || c.Mail.FromAddress == "" || c.Mail.ResetURL == "") {
		errs = append(errs, errors.New("mail.smtp_host, mail.from_address and mail.reset_url are required when mail is enabled"))
	}

	return errors.Join(errs...)
}
