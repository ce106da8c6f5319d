package remote

import (
	"github.com/echome/echosync/internal/domain"
	"github.com/echome/echosync/internal/logger"
	"github.com/echome/echosync/pkg/errors"
)

// New builds the remote store selected by cfg.Type.
func New(log logger.Logger, cfg domain.RemoteConfig) (domain.RemoteStore, error) {
	switch cfg.Type {
	case "", "http":
		return NewClient(log, cfg)
	case "memory":
		log.Warn().Msg("using in-memory remote store, favorites will not leave this process")
		return NewMemoryStore(WithAutoPublish()), nil
	default:
		return nil, errors.New("unsupported remote store type: %s", cfg.Type)
	}
}
