package consumer

import (
	"fmt"

	"gadgethost/internal/config"
)

// Open returns the store selected by cfg.Backend. On error the returned
// Store is nil.
func Open(cfg config.ConsumersConfig) (Store, error) {
	switch cfg.Backend {
	case config.ConsumerBackendFile, "":
		s, err := NewFileStore(cfg.Path, cfg.Watch)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.ConsumerBackendSQLite:
		s, err := OpenSQLite(cfg.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown consumer backend %q", cfg.Backend)
	}
}
