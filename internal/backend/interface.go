// Package backend builds the local blob storage and the hosted remote store
// selected by configuration.
package backend

import (
	"context"

	"fintrack/internal/remote"
	"fintrack/internal/state"
)

// Pinger is a dependency that can report its health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Blobs is the local storage every backend provides: the store's persister
// plus the namespace listing used by the mirror worker.
type Blobs interface {
	state.Persister
	Pinger
	Namespaces(ctx context.Context) ([]string, error)
	Close() error
}

// Remote is a hosted store serving both records and users.
type Remote interface {
	remote.Records
	remote.Users
	Pinger
	Close() error
}

// CleanupFunc releases backend resources.
type CleanupFunc func() error

// Result holds the opened backends. Remote is nil when no remote store is
// configured.
type Result struct {
	Blobs   Blobs
	Remote  Remote
	Cleanup CleanupFunc
}

// Checks returns the readiness checks of the opened backends.
func (r *Result) Checks() map[string]Pinger {
	checks := map[string]Pinger{"storage": r.Blobs}
	if r.Remote != nil {
		checks["remote"] = r.Remote
	}
	return checks
}

// Factory opens backends based on configuration.
type Factory interface {
	Open(ctx context.Context, config Config) (*Result, error)
}

// StorageType names a local storage backend.
type StorageType string

const (
	SQLiteStorage StorageType = "sqlite"
	MemoryStorage StorageType = "memory"
)

func (t StorageType) String() string { return string(t) }

func (t StorageType) IsValid() bool {
	switch t {
	case SQLiteStorage, MemoryStorage:
		return true
	default:
		return false
	}
}

// RemoteType names a hosted remote backend.
type RemoteType string

const (
	NoRemote       RemoteType = "none"
	MemoryRemote   RemoteType = "memory"
	PostgresRemote RemoteType = "postgres"
)

func (t RemoteType) String() string { return string(t) }

func (t RemoteType) IsValid() bool {
	switch t {
	case NoRemote, MemoryRemote, PostgresRemote:
		return true
	default:
		return false
	}
}

// Config holds configuration for backend creation.
type Config struct {
	Storage StorageType
	Remote  RemoteType

	// SQLite specific
	SQLiteDBPath string

	// Postgres specific
	DatabaseURL string
}
