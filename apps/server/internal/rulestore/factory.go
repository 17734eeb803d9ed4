package rulestore

import (
	"fmt"

	"scholaverse/apps/server/internal/config"
)

// NewStoreFromConfig opens the store selected by cfg.Mode and returns the
// mode actually used.
func NewStoreFromConfig(cfg config.StoreConfig) (Store, string, error) {
	switch cfg.Mode {
	case config.StoreModeMemory:
		return NewMemoryStore(), cfg.Mode, nil
	case config.StoreModeSQLite:
		store, err := NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, cfg.Mode, err
		}
		return store, cfg.Mode, nil
	case config.StoreModePostgres:
		store, err := NewPostgresStore(cfg.PostgresDSN, cfg.AutoMigrate)
		if err != nil {
			return nil, cfg.Mode, err
		}
		return store, cfg.Mode, nil
	default:
		return nil, cfg.Mode, fmt.Errorf("invalid store mode %q (supported: %s, %s, %s)",
			cfg.Mode, config.StoreModeMemory, config.StoreModeSQLite, config.StoreModePostgres)
	}
}
