package config

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pawsitive/pawsync/internal/gateway"
)

func TestDefaults(t *testing.T) {
	cfg, err := Defaults()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Sync.Debounce != time.Second || cfg.Sync.Notice != 3*time.Second {
		t.Errorf("sync = %+v", cfg.Sync)
	}
	if cfg.Server.Addr != ":8080" || len(cfg.Server.AllowedOrigins) != 1 {
		t.Errorf("server = %+v", cfg.Server)
	}
	if !errors.Is(cfg.CheckStore(), gateway.ErrConfigurationMissing) {
		t.Error("defaults passed the store gate")
	}
}

func TestLoad_TOMLFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pawsync.toml")
	content := `
[store]
driver = "SQLite"
path = "/tmp/pets.db"

[sync]
debounce = "250ms"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PAWSYNC_SERVER_ADDR", "127.0.0.1:9000")

	cfg, err := Load(New(), path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Store.Driver != DriverSQLite || cfg.Store.Path != "/tmp/pets.db" {
		t.Errorf("store = %+v", cfg.Store)
	}
	if cfg.Sync.Debounce != 250*time.Millisecond {
		t.Errorf("debounce = %s, want 250ms", cfg.Sync.Debounce)
	}
	if cfg.Sync.Notice != 3*time.Second {
		t.Errorf("notice = %s, want default 3s", cfg.Sync.Notice)
	}
	if cfg.Server.Addr != "127.0.0.1:9000" {
		t.Errorf("addr = %q, want env override", cfg.Server.Addr)
	}
	if cfg.File != path {
		t.Errorf("File = %q, want %q", cfg.File, path)
	}
	if err := cfg.CheckStore(); err != nil {
		t.Errorf("CheckStore() = %v", err)
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	if _, err := Load(New(), filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Error("Load() accepted a missing explicit file")
	}
}

func TestCheckStore(t *testing.T) {
	tests := []struct {
		name    string
		store   StoreConfig
		missing bool
		wantErr bool
	}{
		{"unset", StoreConfig{}, true, true},
		{"sqlite without path", StoreConfig{Driver: DriverSQLite}, true, true},
		{"sqlite", StoreConfig{Driver: DriverSQLite, Path: "x.db"}, false, false},
		{"remote without url", StoreConfig{Driver: DriverRemote}, true, true},
		{"remote", StoreConfig{Driver: DriverRemote, URL: "http://h"}, false, false},
		{"memory", StoreConfig{Driver: DriverMemory}, false, false},
		{"unknown", StoreConfig{Driver: "firestore"}, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := (&Config{Store: tt.store}).CheckStore()
			if (err != nil) != tt.wantErr {
				t.Fatalf("CheckStore() = %v, wantErr %v", err, tt.wantErr)
			}
			if got := errors.Is(err, gateway.ErrConfigurationMissing); got != tt.missing {
				t.Errorf("configuration missing = %v, want %v", got, tt.missing)
			}
		})
	}
}

func TestInitThenLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "conf", "pawsync.toml")
	dbPath := filepath.Join(dir, "pawsync.db")

	if err := Init(path, dbPath, false); err != nil {
		t.Fatalf("Init() failed: %v", err)
	}
	if err := Init(path, dbPath, false); err == nil {
		t.Error("Init() overwrote an existing file without force")
	}
	if err := Init(path, dbPath, true); err != nil {
		t.Errorf("Init(force) failed: %v", err)
	}

	cfg, err := Load(New(), path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Store.Driver != DriverSQLite || cfg.Store.Path != dbPath {
		t.Errorf("store = %+v", cfg.Store)
	}
	if cfg.Sync.WatchDebounce != 100*time.Millisecond {
		t.Errorf("watch_debounce = %s", cfg.Sync.WatchDebounce)
	}
}

func TestWriteYAML_RedactsSecrets(t *testing.T) {
	cfg, _ := Defaults()
	cfg.AI.APIKey = "sk-secret"
	cfg.Server.Token = "tok"

	var buf bytes.Buffer
	if err := cfg.WriteYAML(&buf); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if strings.Contains(out, "sk-secret") || strings.Contains(out, "tok\n") {
		t.Errorf("secrets leaked:\n%s", out)
	}
	if !strings.Contains(out, "debounce: 1s") {
		t.Errorf("durations not human readable:\n%s", out)
	}
}
