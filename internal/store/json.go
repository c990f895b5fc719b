package store

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	apperrors "memwatch/internal/errors"
	"memwatch/internal/models"
)

// JSONStore keeps the history in a single indented JSON document.
type JSONStore struct {
	path   string
	logger zerolog.Logger
}

// NewJSONStore creates a JSON file store at path. The file and its parent
// directories are created on the first Save.
func NewJSONStore(path string, logger zerolog.Logger) *JSONStore {
	return &JSONStore{
		path:   path,
		logger: logger.With().Str("store", "json").Str("path", path).Logger(),
	}
}

// Path returns the file location.
func (s *JSONStore) Path() string {
	return s.path
}

// Load reads the history. A missing, unreadable or malformed file yields an
// empty history.
func (s *JSONStore) Load(ctx context.Context) (*models.History, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.Debug().Msg("No price history yet, starting fresh")
		} else {
			s.logger.Warn().Err(err).Msg("Price history unreadable, starting fresh")
		}
		return models.NewHistory(), nil
	}

	var h models.History
	if err := json.Unmarshal(data, &h); err != nil {
		s.logger.Warn().Err(err).Msg("Price history corrupt, starting fresh")
		return models.NewHistory(), nil
	}
	h.Normalize()

	s.logger.Debug().Int("records", len(h.Records)).Msg("Price history loaded")
	return &h, nil
}

// Save writes the history atomically: the document goes to a temporary file
// in the same directory which then replaces the previous file.
func (s *JSONStore) Save(ctx context.Context, h *models.History) error {
	if err := ctx.Err(); err != nil {
		return apperrors.NewPersistenceError("save", s.path, err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return apperrors.NewPersistenceError("mkdir", dir, err)
	}

	data, err := json.MarshalIndent(h, "", "  ")
	if err != nil {
		return apperrors.NewPersistenceError("encode", s.path, err)
	}

	tmp, err := os.CreateTemp(dir, ".prices-*.json")
	if err != nil {
		return apperrors.NewPersistenceError("create", dir, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return apperrors.NewPersistenceError("write", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return apperrors.NewPersistenceError("sync", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return apperrors.NewPersistenceError("close", tmpName, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return apperrors.NewPersistenceError("rename", s.path, err)
	}

	s.logger.Debug().Int("records", len(h.Records)).Msg("Price history saved")
	return nil
}

// Close is a no-op for the file store.
func (s *JSONStore) Close() error {
	return nil
}
