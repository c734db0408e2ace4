// Package config loads and writes the .todosafe.yaml settings file and
// applies environment overrides.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/todosafe/todosafe/internal/storage"
)

// DefaultPath is the conventional config file location.
const DefaultPath = ".todosafe.yaml"

// Config is the resolved settings surface. Precedence: explicit CLI flags
// beat environment variables beat the config file beat these defaults.
type Config struct {
	DB            string
	LockTimeout   time.Duration
	LockRetry     time.Duration
	BackupCount   int // 0 disables backups
	CacheEnabled  bool
	DryRun        bool
	Verbose       bool
	SlowThreshold time.Duration
}

type fileConfig struct {
	DB     string     `yaml:"db,omitempty"`
	Lock   fileLock   `yaml:"lock,omitempty"`
	Backup fileBackup `yaml:"backup,omitempty"`
	Cache  fileCache  `yaml:"cache,omitempty"`
	Log    fileLog    `yaml:"log,omitempty"`
}

type fileLock struct {
	TimeoutSeconds  *float64 `yaml:"timeout_seconds,omitempty"`
	RetryIntervalMS *int     `yaml:"retry_interval_ms,omitempty"`
}

type fileBackup struct {
	Count *int `yaml:"count,omitempty"`
}

type fileCache struct {
	Enabled *bool `yaml:"enabled,omitempty"`
}

type fileLog struct {
	Verbose         *bool `yaml:"verbose,omitempty"`
	SlowThresholdMS *int  `yaml:"slow_threshold_ms,omitempty"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		DB:            ".todo.json",
		LockTimeout:   30 * time.Second,
		LockRetry:     100 * time.Millisecond,
		BackupCount:   3,
		CacheEnabled:  true,
		SlowThreshold: 500 * time.Millisecond,
	}
}

// Exists reports whether a config file is present at path.
func Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// Load reads path if it exists, layers it over the defaults, then applies
// environment overrides. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	raw, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		var fc fileConfig
		if err := yaml.Unmarshal(raw, &fc); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
		applyFile(&cfg, fc)
	}

	applyEnv(&cfg)
	return cfg, nil
}

// Write emits cfg as yaml.
func Write(w io.Writer, cfg Config) error {
	timeout := cfg.LockTimeout.Seconds()
	retry := int(cfg.LockRetry.Milliseconds())
	slow := int(cfg.SlowThreshold.Milliseconds())
	out := fileConfig{
		DB:     cfg.DB,
		Lock:   fileLock{TimeoutSeconds: &timeout, RetryIntervalMS: &retry},
		Backup: fileBackup{Count: &cfg.BackupCount},
		Cache:  fileCache{Enabled: &cfg.CacheEnabled},
		Log:    fileLog{Verbose: &cfg.Verbose, SlowThresholdMS: &slow},
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	return enc.Encode(out)
}

// StoreOptions converts the config into storage options. A user-facing
// backup count of 0 disables backups.
func (c Config) StoreOptions() storage.Options {
	backups := c.BackupCount
	if backups == 0 {
		backups = -1
	}
	return storage.Options{
		Path:          c.DB,
		LockTimeout:   c.LockTimeout,
		LockRetry:     c.LockRetry,
		BackupCount:   backups,
		CacheEnabled:  c.CacheEnabled,
		DryRun:        c.DryRun,
		SlowThreshold: c.SlowThreshold,
	}
}

func applyFile(cfg *Config, fc fileConfig) {
	if fc.DB != "" {
		cfg.DB = fc.DB
	}
	if fc.Lock.TimeoutSeconds != nil && *fc.Lock.TimeoutSeconds > 0 {
		cfg.LockTimeout = time.Duration(*fc.Lock.TimeoutSeconds * float64(time.Second))
	}
	if fc.Lock.RetryIntervalMS != nil && *fc.Lock.RetryIntervalMS > 0 {
		cfg.LockRetry = time.Duration(*fc.Lock.RetryIntervalMS) * time.Millisecond
	}
	if fc.Backup.Count != nil && *fc.Backup.Count >= 0 {
		cfg.BackupCount = *fc.Backup.Count
	}
	if fc.Cache.Enabled != nil {
		cfg.CacheEnabled = *fc.Cache.Enabled
	}
	if fc.Log.Verbose != nil {
		cfg.Verbose = *fc.Log.Verbose
	}
	if fc.Log.SlowThresholdMS != nil && *fc.Log.SlowThresholdMS > 0 {
		cfg.SlowThreshold = time.Duration(*fc.Log.SlowThresholdMS) * time.Millisecond
	}
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("TODOSAFE_DB"); v != "" {
		cfg.DB = v
	}
	if v := os.Getenv("TODOSAFE_LOCK_TIMEOUT"); v != "" {
		if secs, err := strconv.ParseFloat(v, 64); err == nil && secs > 0 {
			cfg.LockTimeout = time.Duration(secs * float64(time.Second))
		}
	}
	if v := os.Getenv("TODOSAFE_BACKUP_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.BackupCount = n
		}
	}
	if v := os.Getenv("TODOSAFE_CACHE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.CacheEnabled = b
		}
	}
	if v := os.Getenv("TODOSAFE_DRY_RUN"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.DryRun = b
		}
	}
	if v := os.Getenv("TODOSAFE_DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Verbose = b
		}
	}
}
