package backend

import (
	"fmt"

	"fintrack/internal/config"
)

// FromAppConfig converts the application config to backend config.
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}
	cfg := Config{
		Storage:      StorageType(appConfig.StorageBackend),
		Remote:       RemoteType(appConfig.RemoteBackend),
		SQLiteDBPath: appConfig.SQLiteDBPath,
		DatabaseURL:  appConfig.DatabaseURL,
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate validates the backend configuration.
func (c Config) Validate() error {
	if !c.Storage.IsValid() {
		return fmt.Errorf("invalid storage backend: %s", c.Storage)
	}
	if c.Remote == "" {
		c.Remote = NoRemote
	}
	if !c.Remote.IsValid() {
		return fmt.Errorf("invalid remote backend: %s", c.Remote)
	}
	if c.Storage == SQLiteStorage && c.SQLiteDBPath == "" {
		return fmt.Errorf("SQLite database path is required for sqlite storage")
	}
	if c.Remote == PostgresRemote && c.DatabaseURL == "" {
		return fmt.Errorf("database URL is required for postgres remote")
	}
	return nil
}
