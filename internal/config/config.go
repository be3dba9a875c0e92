// Copyright 2026 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config loads benchmerge configuration from a TOML or YAML
// file and BENCHMERGE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

const (
	DefaultBackend         = "gcs"
	DefaultMaxAttempts     = 5
	DefaultUpdateTimeout   = "60s"
	DefaultLockTTL         = "30s"
	DefaultAddr            = ":8080"
	DefaultShutdownTimeout = "10s"
	DefaultLogMode         = "development"
	DefaultTraceExporter   = "none"

	// MemoryBucket is the bucket name used by the memory backend when
	// none is configured.
	MemoryBucket = "local"
)

// S3Config configures the s3 storage backend.
type S3Config struct {
	Region          string `toml:"region" yaml:"region"`
	Endpoint        string `toml:"endpoint" yaml:"endpoint"`
	AccessKeyID     string `toml:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `toml:"secret_access_key" yaml:"secret_access_key"`
	PathStyle       bool   `toml:"path_style" yaml:"path_style"`
}

// StorageConfig selects the blob store holding the bucket.
type StorageConfig struct {
	// Backend is gcs, s3 or memory.
	Backend      string   `toml:"backend" yaml:"backend"`
	Bucket       string   `toml:"bucket" yaml:"bucket"`
	EmulatorHost string   `toml:"emulator_host" yaml:"emulator_host"`
	Credentials  string   `toml:"credentials" yaml:"credentials"`
	S3           S3Config `toml:"s3" yaml:"s3"`
}

// LedgerConfig configures the event ledger. An empty driver disables it.
type LedgerConfig struct {
	Driver string `toml:"driver" yaml:"driver"`
	DSN    string `toml:"dsn" yaml:"dsn"`
}

// LockConfig configures the redis lock. An empty address disables it.
type LockConfig struct {
	RedisAddr string `toml:"redis_addr" yaml:"redis_addr"`
	Password  string `toml:"password" yaml:"password"`
	DB        int    `toml:"db" yaml:"db"`
	TTL       string `toml:"ttl" yaml:"ttl"`
}

type UpdaterConfig struct {
	MaxAttempts      int    `toml:"max_attempts" yaml:"max_attempts"`
	SkipKnownCommits bool   `toml:"skip_known_commits" yaml:"skip_known_commits"`
	Timeout          string `toml:"timeout" yaml:"timeout"`
}

type ServerConfig struct {
	Addr            string `toml:"addr" yaml:"addr"`
	ShutdownTimeout string `toml:"shutdown_timeout" yaml:"shutdown_timeout"`
	// AuthToken, if set, is the bearer token every request to
	// /events and /upload must carry.
	AuthToken string `toml:"auth_token" yaml:"auth_token"`
	// AuthAudience, if set, requires a Google-signed ID token issued
	// for this audience, such as the service URL.
	AuthAudience string `toml:"auth_audience" yaml:"auth_audience"`
	// AuthEmails restricts ID tokens to these service accounts.
	AuthEmails []string `toml:"auth_emails" yaml:"auth_emails"`
}

// AuthConfigured reports whether the server requires authentication.
func (c *Config) AuthConfigured() bool {
	return c.Server.AuthToken != "" || c.Server.AuthAudience != ""
}

type LogConfig struct {
	Mode string `toml:"mode" yaml:"mode"`
}

type TraceConfig struct {
	// Exporter is none or stdout.
	Exporter string `toml:"exporter" yaml:"exporter"`
}

// Config is the complete benchmerge configuration.
type Config struct {
	Storage StorageConfig `toml:"storage" yaml:"storage"`
	Ledger  LedgerConfig  `toml:"ledger" yaml:"ledger"`
	Lock    LockConfig    `toml:"lock" yaml:"lock"`
	Updater UpdaterConfig `toml:"updater" yaml:"updater"`
	Server  ServerConfig  `toml:"server" yaml:"server"`
	Log     LogConfig     `toml:"log" yaml:"log"`
	Trace   TraceConfig   `toml:"trace" yaml:"trace"`
}

// Default returns default configuration values.
func Default() Config {
	return Config{
		Storage: StorageConfig{Backend: DefaultBackend},
		Lock:    LockConfig{TTL: DefaultLockTTL},
		Updater: UpdaterConfig{
			MaxAttempts: DefaultMaxAttempts,
			Timeout:     DefaultUpdateTimeout,
		},
		Server: ServerConfig{
			Addr:            DefaultAddr,
			ShutdownTimeout: DefaultShutdownTimeout,
		},
		Log:   LogConfig{Mode: DefaultLogMode},
		Trace: TraceConfig{Exporter: DefaultTraceExporter},
	}
}

// Load returns the defaults overlaid with the file at path (if path
// is not empty) and then with the environment. The result is
// validated.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	default:
		return fmt.Errorf("config %s: unsupported extension %q (want .toml, .yaml or .yml)", path, ext)
	}
	return nil
}

type envVar struct {
	key string
	set func(cfg *Config, v string) error
}

func str(field func(*Config) *string) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		*field(cfg) = v
		return nil
	}
}

func boolean(field func(*Config) *bool) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*field(cfg) = b
		return nil
	}
}

func integer(field func(*Config) *int) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*field(cfg) = n
		return nil
	}
}

func list(field func(*Config) *[]string) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		var out []string
		for _, f := range strings.Split(v, ",") {
			if f = strings.TrimSpace(f); f != "" {
				out = append(out, f)
			}
		}
		*field(cfg) = out
		return nil
	}
}

var envVars = []envVar{
	{"BENCHMERGE_STORAGE_BACKEND", str(func(c *Config) *string { return &c.Storage.Backend })},
	{"BENCHMERGE_BUCKET", str(func(c *Config) *string { return &c.Storage.Bucket })},
	{"BENCHMERGE_EMULATOR_HOST", str(func(c *Config) *string { return &c.Storage.EmulatorHost })},
	{"BENCHMERGE_CREDENTIALS", str(func(c *Config) *string { return &c.Storage.Credentials })},
	{"BENCHMERGE_S3_REGION", str(func(c *Config) *string { return &c.Storage.S3.Region })},
	{"BENCHMERGE_S3_ENDPOINT", str(func(c *Config) *string { return &c.Storage.S3.Endpoint })},
	{"BENCHMERGE_S3_ACCESS_KEY_ID", str(func(c *Config) *string { return &c.Storage.S3.AccessKeyID })},
	{"BENCHMERGE_S3_SECRET_ACCESS_KEY", str(func(c *Config) *string { return &c.Storage.S3.SecretAccessKey })},
	{"BENCHMERGE_S3_PATH_STYLE", boolean(func(c *Config) *bool { return &c.Storage.S3.PathStyle })},
	{"BENCHMERGE_LEDGER_DRIVER", str(func(c *Config) *string { return &c.Ledger.Driver })},
	{"BENCHMERGE_LEDGER_DSN", str(func(c *Config) *string { return &c.Ledger.DSN })},
	{"BENCHMERGE_REDIS_ADDR", str(func(c *Config) *string { return &c.Lock.RedisAddr })},
	{"BENCHMERGE_REDIS_PASSWORD", str(func(c *Config) *string { return &c.Lock.Password })},
	{"BENCHMERGE_REDIS_DB", integer(func(c *Config) *int { return &c.Lock.DB })},
	{"BENCHMERGE_LOCK_TTL", str(func(c *Config) *string { return &c.Lock.TTL })},
	{"BENCHMERGE_MAX_ATTEMPTS", integer(func(c *Config) *int { return &c.Updater.MaxAttempts })},
	{"BENCHMERGE_SKIP_KNOWN_COMMITS", boolean(func(c *Config) *bool { return &c.Updater.SkipKnownCommits })},
	{"BENCHMERGE_UPDATE_TIMEOUT", str(func(c *Config) *string { return &c.Updater.Timeout })},
	{"BENCHMERGE_ADDR", str(func(c *Config) *string { return &c.Server.Addr })},
	{"BENCHMERGE_AUTH_TOKEN", str(func(c *Config) *string { return &c.Server.AuthToken })},
	{"BENCHMERGE_AUTH_AUDIENCE", str(func(c *Config) *string { return &c.Server.AuthAudience })},
	{"BENCHMERGE_AUTH_EMAILS", list(func(c *Config) *[]string { return &c.Server.AuthEmails })},
	{"BENCHMERGE_LOG_MODE", str(func(c *Config) *string { return &c.Log.Mode })},
	{"BENCHMERGE_TRACE_EXPORTER", str(func(c *Config) *string { return &c.Trace.Exporter })},
}

// applyEnv overrides cfg with the environment variables that are set.
// PORT, as set by most container platforms, is honored when
// BENCHMERGE_ADDR is not.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	if port, ok := lookup("PORT"); ok && strings.TrimSpace(port) != "" {
		cfg.Server.Addr = ":" + strings.TrimSpace(port)
	}
	for _, e := range envVars {
		v, ok := lookup(e.key)
		if !ok {
			continue
		}
		if err := e.set(cfg, strings.TrimSpace(v)); err != nil {
			return fmt.Errorf("%s: %w", e.key, err)
		}
	}
	return nil
}

// Validate reports the first invalid setting in c. A memory backend
// without a bucket is given MemoryBucket.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "gcs", "s3":
		if c.Storage.Bucket == "" {
			return errors.New("storage.bucket is required")
		}
	case "memory":
		if c.Storage.Bucket == "" {
			c.Storage.Bucket = MemoryBucket
		}
	default:
		return fmt.Errorf("storage.backend %q: want gcs, s3 or memory", c.Storage.Backend)
	}
	switch c.Ledger.Driver {
	case "":
	case "sqlite3", "mysql":
		if c.Ledger.DSN == "" {
			return fmt.Errorf("ledger.dsn is required for driver %s", c.Ledger.Driver)
		}
	default:
		return fmt.Errorf("ledger.driver %q: want sqlite3 or mysql", c.Ledger.Driver)
	}
	if c.Updater.MaxAttempts < 1 {
		return fmt.Errorf("updater.max_attempts must be at least 1, got %d", c.Updater.MaxAttempts)
	}
	for _, d := range []struct{ name, value string }{
		{"lock.ttl", c.Lock.TTL},
		{"updater.timeout", c.Updater.Timeout},
		{"server.shutdown_timeout", c.Server.ShutdownTimeout},
	} {
		if _, err := parseDuration(d.value); err != nil {
			return fmt.Errorf("%s: %w", d.name, err)
		}
	}
	switch strings.ToLower(c.Log.Mode) {
	case "", "dev", "development", "prod", "production":
	default:
		return fmt.Errorf("log.mode %q: want development or production", c.Log.Mode)
	}
	switch c.Trace.Exporter {
	case "", "none", "stdout":
	default:
		return fmt.Errorf("trace.exporter %q: want none or stdout", c.Trace.Exporter)
	}
	return nil
}

// parseDuration parses s, treating the empty string as zero.
func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %s", s)
	}
	return d, nil
}

func mustDuration(s string) time.Duration {
	d, _ := parseDuration(s)
	return d
}

// LockTTL returns the lock expiry. Validate must have succeeded.
func (c *Config) LockTTL() time.Duration { return mustDuration(c.Lock.TTL) }

// UpdateTimeout bounds a single update; zero means no deadline.
func (c *Config) UpdateTimeout() time.Duration { return mustDuration(c.Updater.Timeout) }

func (c *Config) ShutdownTimeout() time.Duration { return mustDuration(c.Server.ShutdownTimeout) }
