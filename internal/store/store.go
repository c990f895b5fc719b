// Package store provides persistence for the price history.
package store

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"memwatch/internal/models"
)

// Backend names accepted by Open.
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// HistoryStore persists the price history between runs.
//
// Load never fails because prior state is missing or unreadable: that is a
// cold start and yields an empty history. Save failures are always returned
// and wrap errors.ErrPersistence.
type HistoryStore interface {
	Load(ctx context.Context) (*models.History, error)
	Save(ctx context.Context, h *models.History) error
	Path() string
	Close() error
}

// Open returns the HistoryStore for backend at path.
func Open(backend, path string, logger zerolog.Logger) (HistoryStore, error) {
	switch backend {
	case BackendJSON, "":
		return NewJSONStore(path, logger), nil
	case BackendSQLite:
		return NewSQLiteStore(path, logger)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}
