package storage

import (
	"context"
	"path/filepath"
	"testing"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "data", "fintrack.db"), nil)
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestSaveAndLoadBlobs(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	if err := repo.SaveBlobs(ctx, "u1", map[string][]byte{
		"records": []byte(`[]`),
		"month":   []byte("2025-03"),
	}); err != nil {
		t.Fatalf("SaveBlobs: %v", err)
	}
	if err := repo.SaveBlobs(ctx, "u1", map[string][]byte{"month": []byte("2025-04")}); err != nil {
		t.Fatalf("SaveBlobs overwrite: %v", err)
	}
	if err := repo.SaveBlobs(ctx, "u2", map[string][]byte{"month": []byte("2024-01")}); err != nil {
		t.Fatalf("SaveBlobs other namespace: %v", err)
	}

	got, err := repo.LoadBlobs(ctx, "u1")
	if err != nil {
		t.Fatalf("LoadBlobs: %v", err)
	}
	if len(got) != 2 || string(got["month"]) != "2025-04" || string(got["records"]) != "[]" {
		t.Fatalf("blobs = %q", got)
	}

	if err := repo.DeleteNamespace(ctx, "u1"); err != nil {
		t.Fatalf("DeleteNamespace: %v", err)
	}
	got, _ = repo.LoadBlobs(ctx, "u1")
	if len(got) != 0 {
		t.Fatalf("blobs after delete = %q", got)
	}
	other, _ := repo.LoadBlobs(ctx, "u2")
	if string(other["month"]) != "2024-01" {
		t.Fatalf("other namespace = %q", other)
	}
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fintrack.db")
	for i := 0; i < 2; i++ {
		repo, err := NewSQLiteRepository(path, nil)
		if err != nil {
			t.Fatalf("open %d: %v", i, err)
		}
		repo.Close()
	}
}

func TestNamespaces(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	for _, ns := range []string{"u2", "local", "u2"} {
		if err := repo.SaveBlobs(ctx, ns, map[string][]byte{"month": []byte("2025-01")}); err != nil {
			t.Fatalf("SaveBlobs: %v", err)
		}
	}
	got, err := repo.Namespaces(ctx)
	if err != nil {
		t.Fatalf("Namespaces: %v", err)
	}
	if len(got) != 2 || got[0] != "local" || got[1] != "u2" {
		t.Fatalf("namespaces = %v", got)
	}
}

func TestRunMigrationsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fintrack.db")
	for i := 0; i < 2; i++ {
		v, err := RunMigrations(path)
		if err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
		if v != 1 {
			t.Errorf("run %d: version = %d, want 1", i, v)
		}
	}
}
