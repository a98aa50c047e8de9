// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads the codeauth configuration.
//
// Sources are layered, later ones winning: built-in defaults, a .env file
// (exported into the process environment), a YAML file, CODEAUTH_*
// environment variables, and command-line flags that were set explicitly.
package config

import (
	"errors"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/holomush/codeauth/internal/auth"
	"github.com/holomush/codeauth/internal/logging"
	"github.com/holomush/codeauth/internal/token"
)

// EnvPrefix prefixes every environment variable read. Nested keys use a
// double underscore, so CODEAUTH_JWT__ACCESS_TOKEN_TTL sets jwt.access_token_ttl.
const EnvPrefix = "CODEAUTH_"

// Notifier kinds.
const (
	NotifierSMTP = "smtp"
	NotifierLog  = "log"
)

// Config is the complete service configuration.
type Config struct {
	LogFormat    string             `koanf:"log_format" json:"log_format,omitempty" jsonschema:"enum=json,enum=text,description=Log output format"`
	LogLevel     string             `koanf:"log_level" json:"log_level,omitempty" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
	HTTP         HTTPConfig         `koanf:"http" json:"http,omitempty"`
	MetricsAddr  string             `koanf:"metrics_addr" json:"metrics_addr,omitempty" jsonschema:"description=Prometheus and health probe listener; empty disables it"`
	ControlAddr  string             `koanf:"control_addr" json:"control_addr,omitempty" jsonschema:"description=gRPC health listener; empty disables it"`
	Database     DatabaseConfig     `koanf:"database" json:"database,omitempty"`
	Redis        RedisConfig        `koanf:"redis" json:"redis,omitempty"`
	JWT          JWTConfig          `koanf:"jwt" json:"jwt,omitempty"`
	Verification VerificationConfig `koanf:"verification" json:"verification,omitempty"`
	Notifier     string             `koanf:"notifier" json:"notifier,omitempty" jsonschema:"enum=smtp,enum=log"`
	SMTP         SMTPConfig         `koanf:"smtp" json:"smtp,omitempty"`
	Connect      ConnectConfig      `koanf:"connect" json:"connect,omitempty"`
	Sessions     SessionsConfig     `koanf:"sessions" json:"sessions,omitempty"`
}

// HTTPConfig configures the public API listener.
type HTTPConfig struct {
	Addr              string        `koanf:"addr" json:"addr,omitempty"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout" json:"read_header_timeout,omitempty"`
}

// DatabaseConfig configures PostgreSQL.
type DatabaseConfig struct {
	URL      string `koanf:"url" json:"url,omitempty"`
	MaxConns int32  `koanf:"max_conns" json:"max_conns,omitempty" jsonschema:"minimum=0"`
}

// RedisConfig configures Redis.
type RedisConfig struct {
	Addr     string `koanf:"addr" json:"addr,omitempty"`
	Password string `koanf:"password" json:"password,omitempty"`
	DB       int    `koanf:"db" json:"db,omitempty" jsonschema:"minimum=0"`
}

// JWTConfig configures token signing.
type JWTConfig struct {
	Algorithm       string        `koanf:"algorithm" json:"algorithm,omitempty" jsonschema:"enum=RS256,enum=ES256,enum=EdDSA,enum=HS256"`
	PrivateKeyPath  string        `koanf:"private_key_path" json:"private_key_path,omitempty"`
	PublicKeyPath   string        `koanf:"public_key_path" json:"public_key_path,omitempty"`
	Secret          string        `koanf:"secret" json:"secret,omitempty"`
	AccessTokenTTL  time.Duration `koanf:"access_token_ttl" json:"access_token_ttl,omitempty"`
	RefreshTokenTTL time.Duration `koanf:"refresh_token_ttl" json:"refresh_token_ttl,omitempty"`
}

// VerificationConfig configures one-time codes.
type VerificationConfig struct {
	CodeLength int           `koanf:"code_length" json:"code_length,omitempty" jsonschema:"minimum=1,maximum=12"`
	CodeTTL    time.Duration `koanf:"code_ttl" json:"code_ttl,omitempty"`
}

// SMTPConfig configures the mail server.
type SMTPConfig struct {
	Host     string        `koanf:"host" json:"host,omitempty"`
	Port     int           `koanf:"port" json:"port,omitempty" jsonschema:"minimum=0,maximum=65535"`
	Username string        `koanf:"username" json:"username,omitempty"`
	Password string        `koanf:"password" json:"password,omitempty"`
	From     string        `koanf:"from" json:"from,omitempty"`
	Timeout  time.Duration `koanf:"timeout" json:"timeout,omitempty"`
}

// ConnectConfig tunes startup connection retries.
type ConnectConfig struct {
	MaxRetries     uint64        `koanf:"max_retries" json:"max_retries,omitempty"`
	InitialBackoff time.Duration `koanf:"initial_backoff" json:"initial_backoff,omitempty"`
}

// SessionsConfig tunes background session maintenance.
type SessionsConfig struct {
	// PruneInterval is how often expired sessions are deleted. Zero disables pruning.
	PruneInterval time.Duration `koanf:"prune_interval" json:"prune_interval,omitempty"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LogFormat: "json",
		LogLevel:  "info",
		HTTP: HTTPConfig{
			Addr:              ":8000",
			ReadHeaderTimeout: 10 * time.Second,
		},
		MetricsAddr: ":9100",
		ControlAddr: "",
		Database: DatabaseConfig{
			MaxConns: 10,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		JWT: JWTConfig{
			Algorithm:       token.AlgRS256,
			AccessTokenTTL:  auth.DefaultAccessTokenTTL,
			RefreshTokenTTL: auth.DefaultRefreshTokenTTL,
		},
		Verification: VerificationConfig{
			CodeLength: auth.DefaultCodeLength,
			CodeTTL:    auth.DefaultCodeTTL,
		},
		Notifier: NotifierSMTP,
		SMTP: SMTPConfig{
			Port:    587,
			Timeout: 10 * time.Second,
		},
		Connect: ConnectConfig{
			MaxRetries:     5,
			InitialBackoff: 500 * time.Millisecond,
		},
		Sessions: SessionsConfig{
			PruneInterval: time.Hour,
		},
	}
}

// defaultValues flattens Default into koanf keys.
func defaultValues() map[string]any {
	d := Default()
	return map[string]any{
		"log_format":               d.LogFormat,
		"log_level":                d.LogLevel,
		"http.addr":                d.HTTP.Addr,
		"http.read_header_timeout": d.HTTP.ReadHeaderTimeout,
		"metrics_addr":             d.MetricsAddr,
		"control_addr":             d.ControlAddr,
		"database.url":             d.Database.URL,
		"database.max_conns":       d.Database.MaxConns,
		"redis.addr":               d.Redis.Addr,
		"redis.password":           d.Redis.Password,
		"redis.db":                 d.Redis.DB,
		"jwt.algorithm":            d.JWT.Algorithm,
		"jwt.private_key_path":     d.JWT.PrivateKeyPath,
		"jwt.public_key_path":      d.JWT.PublicKeyPath,
		"jwt.secret":               d.JWT.Secret,
		"jwt.access_token_ttl":     d.JWT.AccessTokenTTL,
		"jwt.refresh_token_ttl":    d.JWT.RefreshTokenTTL,
		"verification.code_length": d.Verification.CodeLength,
		"verification.code_ttl":    d.Verification.CodeTTL,
		"notifier":                 d.Notifier,
		"smtp.host":                d.SMTP.Host,
		"smtp.port":                d.SMTP.Port,
		"smtp.username":            d.SMTP.Username,
		"smtp.password":            d.SMTP.Password,
		"smtp.from":                d.SMTP.From,
		"smtp.timeout":             d.SMTP.Timeout,
		"connect.max_retries":      d.Connect.MaxRetries,
		"connect.initial_backoff":  d.Connect.InitialBackoff,
		"sessions.prune_interval":  d.Sessions.PruneInterval,
	}
}

// Options selects the sources Load reads.
type Options struct {
	// ConfigFile is the YAML file to read. A missing file is an error only
	// when Required is set.
	ConfigFile string
	Required   bool

	// EnvFile is a dotenv file exported before the environment is read.
	// A missing file is ignored.
	EnvFile string

	// Flags are applied last. Only flags bound with FlagKey and set on the
	// command line are read.
	Flags *pflag.FlagSet
}

// flagKeyAnnotation records the config key a flag sets.
const flagKeyAnnotation = "codeauth_config_key"

// FlagKey binds flag name in fs to config key.
func FlagKey(fs *pflag.FlagSet, name, key string) {
	_ = fs.SetAnnotation(name, flagKeyAnnotation, []string{key}) //nolint:errcheck // flag is registered by the caller
}

// Load builds a Config from opts and validates it.
func Load(opts Options) (*Config, error) {
	cfg, err := Read(opts)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Read builds a Config from opts without validating it. Commands that need
// only part of the configuration check the fields they use.
func Read(opts Options) (*Config, error) {
	k, err := load(opts)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, oops.Code("CONFIG_DECODE_FAILED").Wrap(err)
	}
	return &cfg, nil
}

func load(opts Options) (*koanf.Koanf, error) {
	k := koanf.New(".")

	for key, value := range defaultValues() {
		if err := k.Set(key, value); err != nil {
			return nil, oops.Code("CONFIG_DEFAULTS_FAILED").With("key", key).Wrap(err)
		}
	}

	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, oops.Code("CONFIG_ENV_FILE_FAILED").With("path", opts.EnvFile).Wrap(err)
		}
	}

	if opts.ConfigFile != "" {
		if _, err := os.Stat(opts.ConfigFile); err == nil || opts.Required {
			if err := k.Load(file.Provider(opts.ConfigFile), yaml.Parser()); err != nil {
				return nil, oops.Code("CONFIG_FILE_FAILED").With("path", opts.ConfigFile).Wrap(err)
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, oops.Code("CONFIG_ENV_FAILED").Wrap(err)
	}

	if opts.Flags != nil {
		provider := posflag.ProviderWithFlag(opts.Flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := f.Annotations[flagKeyAnnotation]
			if !ok || len(key) == 0 {
				return "", nil
			}
			return key[0], posflag.FlagVal(opts.Flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_FLAGS_FAILED").Wrap(err)
		}
	}
	return k, nil
}

// envKey maps CODEAUTH_JWT__ACCESS_TOKEN_TTL to jwt.access_token_ttl.
func envKey(name string) string {
	name = strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
	return strings.ReplaceAll(name, "__", ".")
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	invalid := func(key, format string, args ...any) error {
		return oops.Code("CONFIG_INVALID").With("key", key).Errorf(format, args...)
	}

	switch c.LogFormat {
	case "json", "text":
	default:
		return invalid("log_format", "log_format must be json or text, got %q", c.LogFormat)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return invalid("log_level", "log_level must be debug, info, warn or error, got %q", c.LogLevel)
	}
	if c.HTTP.Addr == "" {
		return invalid("http.addr", "http.addr is required")
	}
	if c.Database.URL == "" {
		return invalid("database.url", "database.url is required")
	}
	if c.Database.MaxConns < 0 {
		return invalid("database.max_conns", "database.max_conns must not be negative")
	}
	if c.Redis.Addr == "" {
		return invalid("redis.addr", "redis.addr is required")
	}
	if c.Redis.DB < 0 {
		return invalid("redis.db", "redis.db must not be negative")
	}

	switch c.JWT.Algorithm {
	case token.AlgHS256:
		if c.JWT.Secret == "" {
			return invalid("jwt.secret", "jwt.secret is required for HS256")
		}
	case token.AlgRS256, token.AlgES256, token.AlgEdDSA:
		if c.JWT.PrivateKeyPath == "" {
			return invalid("jwt.private_key_path", "jwt.private_key_path is required for %s", c.JWT.Algorithm)
		}
	default:
		return invalid("jwt.algorithm", "unsupported jwt.algorithm %q", c.JWT.Algorithm)
	}
	if c.JWT.AccessTokenTTL <= 0 {
		return invalid("jwt.access_token_ttl", "jwt.access_token_ttl must be positive")
	}
	if c.JWT.RefreshTokenTTL <= 0 {
		return invalid("jwt.refresh_token_ttl", "jwt.refresh_token_ttl must be positive")
	}

	if c.Verification.CodeLength < 1 || c.Verification.CodeLength > auth.MaxCodeLength {
		return invalid("verification.code_length", "verification.code_length must be between 1 and %d", auth.MaxCodeLength)
	}
	if c.Verification.CodeTTL <= 0 {
		return invalid("verification.code_ttl", "verification.code_ttl must be positive")
	}

	switch c.Notifier {
	case NotifierSMTP:
		if c.SMTP.Host == "" {
			return invalid("smtp.host", "smtp.host is required when notifier is smtp")
		}
		if c.SMTP.From == "" && c.SMTP.Username == "" {
			return invalid("smtp.from", "smtp.from or smtp.username is required when notifier is smtp")
		}
	case NotifierLog:
	default:
		return invalid("notifier", "notifier must be smtp or log, got %q", c.Notifier)
	}

	if c.Sessions.PruneInterval < 0 {
		return invalid("sessions.prune_interval", "sessions.prune_interval must not be negative")
	}
	return nil
}

const redacted = "[REDACTED]"

// Redacted returns a copy of c with secrets masked.
func (c Config) Redacted() Config {
	if c.Redis.Password != "" {
		c.Redis.Password = redacted
	}
	if c.JWT.Secret != "" {
		c.JWT.Secret = redacted
	}
	if c.SMTP.Password != "" {
		c.SMTP.Password = redacted
	}
	c.Database.URL = redactURL(c.Database.URL)
	return c
}

// redactURL masks the password of a connection URL.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}
