package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"

	"offerwatch/internal/domain"
	"offerwatch/internal/ports"
)

// SQLiteStore persists per-source reconciliation state: the history map, the
// last extracted snapshot, and the last-notification timestamp. Writes go
// through transactions so concurrent passes over the same source cannot
// interleave partial state.
type SQLiteStore struct {
	db *sql.DB
}

var _ ports.HistoryStore = (*SQLiteStore)(nil)
var _ ports.NotificationLog = (*SQLiteStore)(nil)

// Open opens (creating if needed) the SQLite state file and applies the
// schema.
func Open(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return store, nil
}

// NewSQLiteStore wraps an already-opened database and applies the schema.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS source_history (
			source       TEXT NOT NULL,
			record_key   TEXT NOT NULL,
			offer_json   TEXT NOT NULL,
			last_notified TEXT NOT NULL,
			last_updated INTEGER NOT NULL,
			PRIMARY KEY (source, record_key)
		);
		CREATE TABLE IF NOT EXISTS snapshot_cache (
			source      TEXT PRIMARY KEY,
			offers_json TEXT NOT NULL,
			updated_at  INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS notification_log (
			source    TEXT PRIMARY KEY,
			last_sent INTEGER NOT NULL
		);
	`)
	return err
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// LoadHistory returns the source's history map; an unknown source yields an
// empty map, never an error.
func (s *SQLiteStore) LoadHistory(ctx context.Context, source string) (domain.SourceHistory, error) {
	query, args, err := sq.Select("record_key", "offer_json", "last_notified", "last_updated").
		From("source_history").
		Where(sq.Eq{"source": source}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build history query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	history := make(domain.SourceHistory)
	for rows.Next() {
		var (
			key          string
			offerJSON    string
			lastNotified string
			lastUpdated  int64
		)
		if err := rows.Scan(&key, &offerJSON, &lastNotified, &lastUpdated); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		var offer domain.Offer
		if err := json.Unmarshal([]byte(offerJSON), &offer); err != nil {
			return nil, fmt.Errorf("decode offer for key %s: %w", key, err)
		}
		history[domain.RecordKey(key)] = domain.HistoryRecord{
			Offer:        offer,
			LastNotified: domain.NotificationState(lastNotified),
			LastUpdated:  time.Unix(lastUpdated, 0).UTC(),
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history rows: %w", err)
	}
	return history, nil
}

// ReplaceHistory swaps the source's history wholesale inside one transaction.
func (s *SQLiteStore) ReplaceHistory(ctx context.Context, source string, history domain.SourceHistory) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	del, args, err := sq.Delete("source_history").Where(sq.Eq{"source": source}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	if _, err := tx.ExecContext(ctx, del, args...); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}

	for key, rec := range history {
		offerJSON, err := json.Marshal(rec.Offer)
		if err != nil {
			return fmt.Errorf("encode offer for key %s: %w", key, err)
		}
		ins, args, err := sq.Insert("source_history").
			Columns("source", "record_key", "offer_json", "last_notified", "last_updated").
			Values(source, string(key), string(offerJSON), string(rec.LastNotified), rec.LastUpdated.Unix()).
			ToSql()
		if err != nil {
			return fmt.Errorf("build insert: %w", err)
		}
		if _, err := tx.ExecContext(ctx, ins, args...); err != nil {
			return fmt.Errorf("insert history row %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit history: %w", err)
	}
	return nil
}

// LoadSnapshot returns the last extracted snapshot for the source, or nil
// when none was cached yet.
func (s *SQLiteStore) LoadSnapshot(ctx context.Context, source string) ([]domain.Offer, error) {
	query, args, err := sq.Select("offers_json").
		From("snapshot_cache").
		Where(sq.Eq{"source": source}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build snapshot query: %w", err)
	}

	var offersJSON string
	switch err := s.db.QueryRowContext(ctx, query, args...).Scan(&offersJSON); {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("query snapshot: %w", err)
	}

	var offers []domain.Offer
	if err := json.Unmarshal([]byte(offersJSON), &offers); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return offers, nil
}

// SaveSnapshot upserts the source's latest snapshot.
func (s *SQLiteStore) SaveSnapshot(ctx context.Context, source string, offers []domain.Offer) error {
	offersJSON, err := json.Marshal(offers)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	query, args, err := sq.Insert("snapshot_cache").
		Columns("source", "offers_json", "updated_at").
		Values(source, string(offersJSON), time.Now().Unix()).
		Suffix("ON CONFLICT(source) DO UPDATE SET offers_json = excluded.offers_json, updated_at = excluded.updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build snapshot upsert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// LastNotified returns the source's last notification time, or the zero time
// when it was never notified.
func (s *SQLiteStore) LastNotified(ctx context.Context, source string) (time.Time, error) {
	query, args, err := sq.Select("last_sent").
		From("notification_log").
		Where(sq.Eq{"source": source}).
		ToSql()
	if err != nil {
		return time.Time{}, fmt.Errorf("build notification query: %w", err)
	}

	var lastSent int64
	switch err := s.db.QueryRowContext(ctx, query, args...).Scan(&lastSent); {
	case errors.Is(err, sql.ErrNoRows):
		return time.Time{}, nil
	case err != nil:
		return time.Time{}, fmt.Errorf("query notification log: %w", err)
	}
	return time.Unix(lastSent, 0).UTC(), nil
}

// RecordNotified upserts the source's last notification time.
func (s *SQLiteStore) RecordNotified(ctx context.Context, source string, at time.Time) error {
	query, args, err := sq.Insert("notification_log").
		Columns("source", "last_sent").
		Values(source, at.Unix()).
		Suffix("ON CONFLICT(source) DO UPDATE SET last_sent = excluded.last_sent").
		ToSql()
	if err != nil {
		return fmt.Errorf("build notification upsert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("record notification: %w", err)
	}
	return nil
}
