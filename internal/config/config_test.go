package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.DB != ".todo.json" {
		t.Fatalf("unexpected default db: %q", cfg.DB)
	}
	if cfg.LockTimeout != 30*time.Second {
		t.Fatalf("unexpected default timeout: %s", cfg.LockTimeout)
	}
	if cfg.BackupCount != 3 || !cfg.CacheEnabled {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg != Default() {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestLoadFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	content := `db: /srv/todos/db.json
lock:
  timeout_seconds: 5.5
  retry_interval_ms: 50
backup:
  count: 7
cache:
  enabled: false
log:
  verbose: true
  slow_threshold_ms: 100
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DB != "/srv/todos/db.json" {
		t.Fatalf("db: %q", cfg.DB)
	}
	if cfg.LockTimeout != 5500*time.Millisecond {
		t.Fatalf("timeout: %s", cfg.LockTimeout)
	}
	if cfg.LockRetry != 50*time.Millisecond {
		t.Fatalf("retry: %s", cfg.LockRetry)
	}
	if cfg.BackupCount != 7 || cfg.CacheEnabled || !cfg.Verbose {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.SlowThreshold != 100*time.Millisecond {
		t.Fatalf("slow threshold: %s", cfg.SlowThreshold)
	}
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	if err := os.WriteFile(path, []byte("db: custom.json\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DB != "custom.json" {
		t.Fatalf("db: %q", cfg.DB)
	}
	if cfg.LockTimeout != Default().LockTimeout || cfg.BackupCount != Default().BackupCount {
		t.Fatalf("defaults lost: %+v", cfg)
	}
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	if err := os.WriteFile(path, []byte("db: [unclosed\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for malformed yaml")
	}
}

func TestEnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	if err := os.WriteFile(path, []byte("db: from-file.json\nbackup:\n  count: 2\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	t.Setenv("TODOSAFE_DB", "from-env.json")
	t.Setenv("TODOSAFE_LOCK_TIMEOUT", "2.5")
	t.Setenv("TODOSAFE_BACKUP_COUNT", "0")
	t.Setenv("TODOSAFE_CACHE", "false")
	t.Setenv("TODOSAFE_DRY_RUN", "1")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DB != "from-env.json" {
		t.Fatalf("expected env db, got %q", cfg.DB)
	}
	if cfg.LockTimeout != 2500*time.Millisecond {
		t.Fatalf("timeout: %s", cfg.LockTimeout)
	}
	if cfg.BackupCount != 0 || cfg.CacheEnabled || !cfg.DryRun {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestEnvIgnoresGarbage(t *testing.T) {
	clearEnv(t)
	t.Setenv("TODOSAFE_LOCK_TIMEOUT", "not-a-number")
	t.Setenv("TODOSAFE_BACKUP_COUNT", "-4")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LockTimeout != Default().LockTimeout || cfg.BackupCount != Default().BackupCount {
		t.Fatalf("garbage env applied: %+v", cfg)
	}
}

func TestWriteRoundTrip(t *testing.T) {
	clearEnv(t)
	want := Default()
	want.DB = "roundtrip.json"
	want.BackupCount = 5
	want.Verbose = true

	var buf bytes.Buffer
	if err := Write(&buf, want); err != nil {
		t.Fatalf("write: %v", err)
	}

	path := filepath.Join(t.TempDir(), "cfg.yaml")
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got != want {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, want)
	}
}

func TestStoreOptions(t *testing.T) {
	cfg := Default()
	cfg.BackupCount = 0
	opts := cfg.StoreOptions()
	if opts.BackupCount != -1 {
		t.Fatalf("expected user-facing 0 to disable backups, got %d", opts.BackupCount)
	}

	cfg.BackupCount = 4
	if got := cfg.StoreOptions().BackupCount; got != 4 {
		t.Fatalf("expected 4, got %d", got)
	}
}

func TestExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	ok, err := Exists(path)
	if err != nil || ok {
		t.Fatalf("expected missing: %v %v", ok, err)
	}
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	ok, err = Exists(path)
	if err != nil || !ok {
		t.Fatalf("expected present: %v %v", ok, err)
	}
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"TODOSAFE_DB", "TODOSAFE_LOCK_TIMEOUT", "TODOSAFE_BACKUP_COUNT",
		"TODOSAFE_CACHE", "TODOSAFE_DRY_RUN", "TODOSAFE_DEBUG",
	} {
		t.Setenv(key, "")
	}
}
