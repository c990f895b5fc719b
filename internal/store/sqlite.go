package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	apperrors "memwatch/internal/errors"
	"memwatch/internal/models"
)

// SQLiteStore implements HistoryStore using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger zerolog.Logger
}

// NewSQLiteStore creates a new SQLite-based history store. A file that is not
// a readable database is moved aside and replaced by an empty one.
func NewSQLiteStore(dbPath string, logger zerolog.Logger) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, apperrors.NewPersistenceError("mkdir", filepath.Dir(dbPath), err)
	}

	store := &SQLiteStore{
		path:   dbPath,
		logger: logger.With().Str("store", "sqlite").Str("path", dbPath).Logger(),
	}

	err := store.open()
	if err != nil && isCorrupt(err) {
		aside := fmt.Sprintf("%s.corrupt-%s", dbPath, time.Now().UTC().Format("20060102T150405Z"))
		store.logger.Warn().Err(err).Str("moved_to", aside).Msg("Price history corrupt, starting fresh")
		if rerr := os.Rename(dbPath, aside); rerr != nil {
			return nil, apperrors.NewPersistenceError("rename", dbPath, rerr)
		}
		os.Remove(dbPath + "-wal")
		os.Remove(dbPath + "-shm")
		err = store.open()
	}
	if err != nil {
		return nil, apperrors.NewPersistenceError("schema", dbPath, err)
	}

	return store, nil
}

// open connects to the database file and creates the schema.
func (s *SQLiteStore) open() error {
	db, err := sql.Open("sqlite3", s.path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return err
	}

	// A single writer per run.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s.db = db
	if err := s.initSchema(); err != nil {
		db.Close()
		s.db = nil
		return err
	}
	return nil
}

// isCorrupt reports whether err means the file is not a usable database.
func isCorrupt(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrNotADB || sqliteErr.Code == sqlite3.ErrCorrupt
	}
	return strings.Contains(err.Error(), "not a database")
}

// initSchema creates all required tables.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- One row per persisted snapshot, in append order
	CREATE TABLE IF NOT EXISTS history_records (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		date TEXT NOT NULL,
		timestamp TEXT NOT NULL,
		prices TEXT NOT NULL
	);

	-- Comparison baseline for the next merge
	CREATE TABLE IF NOT EXISTS last_prices (
		product TEXT PRIMARY KEY,
		price REAL NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Path returns the database location.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Load reads the history. Rows that cannot be read yield an empty history.
func (s *SQLiteStore) Load(ctx context.Context) (*models.History, error) {
	h, err := s.load(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Price history unreadable, starting fresh")
		return models.NewHistory(), nil
	}
	s.logger.Debug().Int("records", len(h.Records)).Msg("Price history loaded")
	return h, nil
}

func (s *SQLiteStore) load(ctx context.Context) (*models.History, error) {
	h := models.NewHistory()

	rows, err := s.db.QueryContext(ctx, `SELECT date, timestamp, prices FROM history_records ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rec models.HistoryRecord
		var prices string
		if err := rows.Scan(&rec.Date, &rec.Timestamp, &prices); err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		if err := json.Unmarshal([]byte(prices), &rec.Prices); err != nil {
			return nil, fmt.Errorf("decoding record prices: %w", err)
		}
		h.Records = append(h.Records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	priceRows, err := s.db.QueryContext(ctx, `SELECT product, price FROM last_prices`)
	if err != nil {
		return nil, fmt.Errorf("querying last prices: %w", err)
	}
	defer priceRows.Close()

	for priceRows.Next() {
		var product string
		var price float64
		if err := priceRows.Scan(&product, &price); err != nil {
			return nil, fmt.Errorf("scanning last price: %w", err)
		}
		h.LastPrices[product] = price
	}
	if err := priceRows.Err(); err != nil {
		return nil, err
	}

	h.Normalize()
	return h, nil
}

// Save replaces the stored history with h in a single transaction.
func (s *SQLiteStore) Save(ctx context.Context, h *models.History) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.NewPersistenceError("begin", s.path, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM history_records`); err != nil {
		return apperrors.NewPersistenceError("clear", s.path, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM last_prices`); err != nil {
		return apperrors.NewPersistenceError("clear", s.path, err)
	}

	recStmt, err := tx.PrepareContext(ctx, `INSERT INTO history_records (date, timestamp, prices) VALUES (?, ?, ?)`)
	if err != nil {
		return apperrors.NewPersistenceError("prepare", s.path, err)
	}
	defer recStmt.Close()

	for _, rec := range h.Records {
		prices := rec.Prices
		if prices == nil {
			prices = map[string]float64{}
		}
		data, err := json.Marshal(prices)
		if err != nil {
			return apperrors.NewPersistenceError("encode", s.path, err)
		}
		if _, err := recStmt.ExecContext(ctx, rec.Date, rec.Timestamp, string(data)); err != nil {
			return apperrors.NewPersistenceError("insert", s.path, err)
		}
	}

	priceStmt, err := tx.PrepareContext(ctx, `INSERT INTO last_prices (product, price) VALUES (?, ?)`)
	if err != nil {
		return apperrors.NewPersistenceError("prepare", s.path, err)
	}
	defer priceStmt.Close()

	for product, price := range h.LastPrices {
		if _, err := priceStmt.ExecContext(ctx, product, price); err != nil {
			return apperrors.NewPersistenceError("insert", s.path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return apperrors.NewPersistenceError("commit", s.path, err)
	}

	s.logger.Debug().Int("records", len(h.Records)).Msg("Price history saved")
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
