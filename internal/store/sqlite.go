package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ashureev/alexi/internal/domain"
)

// SQLiteStore implements Repository using SQLite, one JSON document per user.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL for concurrent readers; immediate transactions so merges take the
	// write lock up front instead of failing on lock upgrade.
	dsn := "file:" + dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS users (
		user_id TEXT PRIMARY KEY,
		document TEXT NOT NULL,
		version INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_users_updated ON users(updated_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetUser retrieves a user document by user ID.
func (s *SQLiteStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	query := `SELECT user_id, document, version, created_at, updated_at FROM users WHERE user_id = ?`
	return scanUser(s.db.QueryRowContext(ctx, query, userID))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*domain.User, error) {
	var user domain.User
	var document string
	var createdAt, updatedAt int64

	err := row.Scan(&user.UserID, &document, &user.Version, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}

	fields, err := decodeDocument(document)
	if err != nil {
		return nil, fmt.Errorf("decode document for %s: %w", user.UserID, err)
	}
	user.Fields = fields
	user.CreatedAt = time.Unix(createdAt, 0)
	user.UpdatedAt = time.Unix(updatedAt, 0)

	return &user, nil
}

// MergeUser merges fields into the user's document inside a single
// transaction. Busy and locked errors are retried with exponential backoff;
// version conflicts are returned immediately.
func (s *SQLiteStore) MergeUser(ctx context.Context, userID string, fields map[string]any, expectedVersion int64) (int64, error) {
	var version int64
	err := withRetry(ctx, "merge_user", func() error {
		var err error
		version, err = s.mergeOnce(ctx, userID, fields, expectedVersion)
		return err
	})
	if err != nil {
		return 0, err
	}
	return version, nil
}

func (s *SQLiteStore) mergeOnce(ctx context.Context, userID string, fields map[string]any, expectedVersion int64) (version int64, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin merge: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				slog.Warn("failed to roll back merge", "user_id", userID, "error", rbErr)
			}
		}
	}()

	current, err := scanUser(tx.QueryRowContext(ctx,
		`SELECT user_id, document, version, created_at, updated_at FROM users WHERE user_id = ?`, userID))
	if err != nil {
		return 0, err
	}

	var currentVersion int64
	doc := map[string]any{}
	if current != nil {
		currentVersion = current.Version
		if current.Fields != nil {
			doc = current.Fields
		}
	}
	if expectedVersion != AnyVersion && expectedVersion != currentVersion {
		slog.Warn("MergeUser version mismatch", "user_id", userID, "expected", expectedVersion, "actual", currentVersion)
		return 0, ErrVersionConflict
	}

	mergeFields(doc, fields)
	encoded, err := json.Marshal(doc)
	if err != nil {
		return 0, fmt.Errorf("encode document: %w", err)
	}

	now := time.Now().Unix()
	version = currentVersion + 1
	_, err = tx.ExecContext(ctx, `
	INSERT INTO users (user_id, document, version, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		document = excluded.document,
		version = excluded.version,
		updated_at = excluded.updated_at`,
		userID, string(encoded), version, now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("upsert user: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit merge: %w", err)
	}
	return version, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

func decodeDocument(document string) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(document)))
	dec.UseNumber()
	fields := map[string]any{}
	if err := dec.Decode(&fields); err != nil {
		return nil, err
	}
	return fields, nil
}
