package auth

import (
	"fmt"

	"scholaverse/apps/server/internal/config"
)

// NewServiceFromConfig builds the account service. Persistent modes share the
// rule store's database settings.
func NewServiceFromConfig(cfg config.AuthConfig, store config.StoreConfig) (Service, string, error) {
	switch cfg.Mode {
	case config.StoreModeMemory:
		return NewManagerWithTTL(cfg.SessionTTL), cfg.Mode, nil
	case config.StoreModeSQLite:
		manager, err := NewSQLiteManager(store.SQLitePath, cfg.SessionTTL)
		if err != nil {
			return nil, cfg.Mode, err
		}
		return manager, cfg.Mode, nil
	case config.StoreModePostgres:
		manager, err := NewPostgresManager(store.PostgresDSN, cfg.SessionTTL, store.AutoMigrate)
		if err != nil {
			return nil, cfg.Mode, err
		}
		return manager, cfg.Mode, nil
	default:
		return nil, cfg.Mode, fmt.Errorf("invalid auth mode %q (supported: %s, %s, %s)",
			cfg.Mode, config.StoreModeMemory, config.StoreModeSQLite, config.StoreModePostgres)
	}
}
