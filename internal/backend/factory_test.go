package backend

import (
	"context"
	"path/filepath"
	"testing"

	"fintrack/internal/config"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"memory only", Config{Storage: MemoryStorage}, false},
		{"sqlite needs path", Config{Storage: SQLiteStorage}, true},
		{"sqlite with path", Config{Storage: SQLiteStorage, SQLiteDBPath: "x.db"}, false},
		{"unknown storage", Config{Storage: "redis"}, true},
		{"unknown remote", Config{Storage: MemoryStorage, Remote: "mysql"}, true},
		{"postgres needs url", Config{Storage: MemoryStorage, Remote: PostgresRemote}, true},
		{"memory remote", Config{Storage: MemoryStorage, Remote: MemoryRemote}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFromAppConfig(t *testing.T) {
	if _, err := FromAppConfig(nil); err == nil {
		t.Fatal("expected error for nil config")
	}
	cfg := &config.Config{StorageBackend: "sqlite", SQLiteDBPath: "a.db", RemoteBackend: "none"}
	got, err := FromAppConfig(cfg)
	if err != nil {
		t.Fatalf("FromAppConfig: %v", err)
	}
	if got.Storage != SQLiteStorage || got.Remote != NoRemote || got.SQLiteDBPath != "a.db" {
		t.Errorf("unexpected config %+v", got)
	}
}

func TestFactoryOpen(t *testing.T) {
	ctx := context.Background()
	f := NewFactory(nil)

	t.Run("memory without remote", func(t *testing.T) {
		res, err := f.Open(ctx, Config{Storage: MemoryStorage, Remote: NoRemote})
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		defer res.Cleanup()
		if res.Remote != nil {
			t.Error("expected no remote")
		}
		checks := res.Checks()
		if len(checks) != 1 || checks["storage"] == nil {
			t.Errorf("unexpected checks %v", checks)
		}
	})

	t.Run("sqlite with memory remote", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "fintrack.db")
		res, err := f.Open(ctx, Config{Storage: SQLiteStorage, SQLiteDBPath: path, Remote: MemoryRemote})
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		if res.Remote == nil {
			t.Fatal("expected remote store")
		}
		for name, c := range res.Checks() {
			if err := c.Ping(ctx); err != nil {
				t.Errorf("%s ping: %v", name, err)
			}
		}
		if err := res.Blobs.SaveBlobs(ctx, "local", map[string][]byte{"records": []byte("[]")}); err != nil {
			t.Fatalf("SaveBlobs: %v", err)
		}
		ns, err := res.Blobs.Namespaces(ctx)
		if err != nil || len(ns) != 1 || ns[0] != "local" {
			t.Errorf("Namespaces = %v, %v", ns, err)
		}
		if err := res.Cleanup(); err != nil {
			t.Errorf("Cleanup: %v", err)
		}
	})
}
