// Package store implements the durable local store backing every other
// component: named record collections persisted in an embedded SQLite
// database, keyed by (collection, id) so that point writes never rewrite a
// whole collection. Schema is managed with embedded goose migrations and
// initialization is idempotent.
package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/serenity-app/serenity/internal/dbx"
	"github.com/serenity-app/serenity/internal/logging"
	"github.com/serenity-app/serenity/internal/store/migrations"
)

// Collection names. Each is an independent namespace; no cross-collection
// referential integrity is enforced.
const (
	CollectionMeditations    = "meditations"
	CollectionJournal        = "journal_entries"
	CollectionSyncQueue      = "sync_queue"
	CollectionSyncMeta       = "sync_meta"
	CollectionSubscription   = "subscription_status"
	CollectionUserSettings   = "user_settings"
	CollectionAchievements   = "achievements"
	CollectionCacheIndex     = "cache_index"
	CollectionEncryptionKeys = "encryption_keys"
	CollectionDeadLetter     = "dead_letter"
)

type Store struct {
	db  *sql.DB
	log logging.Logger
}

// Open opens (or creates) the SQLite database at dsn and applies embedded
// migrations. Safe to call repeatedly against the same file.
func Open(ctx context.Context, dsn string, log logging.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.ExecContext(ctx, `PRAGMA busy_timeout = 5000`); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}

	if err := runMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	return &Store{db: db, log: log}, nil
}

func runMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	return goose.UpContext(ctx, db, ".")
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the raw record for (collection, id), or (nil, nil) when no
// such record exists.
func (s *Store) Get(ctx context.Context, collection, id string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM records WHERE collection = ? AND id = ?`,
		collection, id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s/%s: %w", collection, id, err)
	}
	return data, nil
}

// Put upserts the raw record for (collection, id).
func (s *Store) Put(ctx context.Context, collection, id string, data []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO records (collection, id, data, updated_at)
		VALUES (?, ?, ?, strftime('%Y-%m-%dT%H:%M:%fZ','now'))
		ON CONFLICT(collection, id) DO UPDATE SET
			data = excluded.data,
			updated_at = excluded.updated_at
	`, collection, id, data)
	if err != nil {
		return fmt.Errorf("failed to put %s/%s: %w", collection, id, err)
	}
	return nil
}

// Delete removes the record for (collection, id) and reports whether a
// record was actually removed.
func (s *Store) Delete(ctx context.Context, collection, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM records WHERE collection = ? AND id = ?`, collection, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete %s/%s: %w", collection, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// List returns all raw records in a collection ordered by id.
func (s *Store) List(ctx context.Context, collection string) ([][]byte, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM records WHERE collection = ? ORDER BY id`, collection)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", collection, err)
	}
	defer rows.Close()

	var result [][]byte
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", collection, err)
		}
		result = append(result, data)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s rows: %w", collection, err)
	}

	return result, nil
}

// Clear removes every record in a collection.
func (s *Store) Clear(ctx context.Context, collection string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM records WHERE collection = ?`, collection)
	if err != nil {
		return fmt.Errorf("failed to clear %s: %w", collection, err)
	}
	return nil
}

// Update runs a read-modify-write cycle for one record inside a single
// transaction, serializing concurrent writers of the same record. fn receives
// nil when the record does not exist; returning (nil, nil) deletes it.
func (s *Store) Update(ctx context.Context, collection, id string, fn func(data []byte) ([]byte, error)) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var data []byte
		err := tx.QueryRowContext(ctx,
			`SELECT data FROM records WHERE collection = ? AND id = ?`,
			collection, id).Scan(&data)
		if err != nil && err != sql.ErrNoRows {
			return fmt.Errorf("failed to get %s/%s: %w", collection, id, err)
		}

		next, err := fn(data)
		if err != nil {
			return err
		}

		if next == nil {
			_, err = tx.ExecContext(ctx,
				`DELETE FROM records WHERE collection = ? AND id = ?`, collection, id)
			if err != nil {
				return fmt.Errorf("failed to delete %s/%s: %w", collection, id, err)
			}
			return nil
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO records (collection, id, data, updated_at)
			VALUES (?, ?, ?, strftime('%Y-%m-%dT%H:%M:%fZ','now'))
			ON CONFLICT(collection, id) DO UPDATE SET
				data = excluded.data,
				updated_at = excluded.updated_at
		`, collection, id, next)
		if err != nil {
			return fmt.Errorf("failed to put %s/%s: %w", collection, id, err)
		}
		return nil
	})
}
