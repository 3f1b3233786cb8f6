package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"dataset-tagger/internal/apperrors"

	_ "github.com/mattn/go-sqlite3" // SQLite3 driver
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Default timeout for opening the database
const defaultTimeout = 5 * time.Second

// SQLiteStore keeps tags in a SQLite database.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens (or creates) the database at path and applies pending
// migrations.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, apperrors.IO("open database", path, err)
	}

	// single writer
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		closeQuietly(db)
		return nil, apperrors.IO("open database", path, err)
	}

	if err := runMigrations(ctx, db); err != nil {
		closeQuietly(db)
		return nil, apperrors.IO("migrate database", path, err)
	}

	log.Info("tag database ready at %s", path)
	return &SQLiteStore{db: db, path: path}, nil
}

func closeQuietly(db *sql.DB) {
	if err := db.Close(); err != nil {
		log.Error("failed to close database: %v", err)
	}
}

// runMigrations applies the embedded migrations. A provider is used instead
// of goose's package-level state so several stores can be opened at once.
func runMigrations(ctx context.Context, db *sql.DB) error {
	fsys, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, fsys)
	if err != nil {
		return fmt.Errorf("goose provider: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	for _, r := range results {
		log.Debug("applied migration %s", r.Source.Path)
	}
	return nil
}

// Name implements Store
func (s *SQLiteStore) Name() string { return "sqlite" }

// Close closes the database
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Save replaces the stored snapshot with entries in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, entries []Entry) (err error) {
	start := time.Now()
	defer func() { observe(s.Name(), "save", start, err) }()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.IO("save", s.path, err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				log.Error("rollback failed: %v", rbErr)
			}
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM images`); err != nil {
		return apperrors.IO("save", s.path, err)
	}

	imgStmt, err := tx.PrepareContext(ctx, `INSERT INTO images (path, updated_at) VALUES (?, ?)`)
	if err != nil {
		return apperrors.IO("save", s.path, err)
	}
	defer imgStmt.Close()
	tagStmt, err := tx.PrepareContext(ctx, `INSERT INTO image_tags (path, position, tag) VALUES (?, ?, ?)`)
	if err != nil {
		return apperrors.IO("save", s.path, err)
	}
	defer tagStmt.Close()

	now := time.Now().Unix()
	for _, e := range entries {
		if _, err = imgStmt.ExecContext(ctx, e.Path, now); err != nil {
			return apperrors.IO("save", e.Path, err)
		}
		for i, t := range e.Tags {
			if _, err = tagStmt.ExecContext(ctx, e.Path, i, t); err != nil {
				return apperrors.IO("save", e.Path, err)
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return apperrors.IO("save", s.path, err)
	}
	log.Info("saved %d images to %s", len(entries), s.path)
	return nil
}

// Load returns every stored image ordered by path.
func (s *SQLiteStore) Load(ctx context.Context) (entries []Entry, err error) {
	start := time.Now()
	defer func() { observe(s.Name(), "load", start, err) }()

	rows, err := s.db.QueryContext(ctx, `
		SELECT i.path, t.tag
		FROM images i
		LEFT JOIN image_tags t ON t.path = i.path
		ORDER BY i.path, t.position`)
	if err != nil {
		return nil, apperrors.IO("load", s.path, err)
	}
	defer rows.Close()

	entries = []Entry{}
	for rows.Next() {
		var path string
		var tag sql.NullString
		if err = rows.Scan(&path, &tag); err != nil {
			return nil, apperrors.IO("load", s.path, err)
		}
		if n := len(entries); n == 0 || entries[n-1].Path != path {
			entries = append(entries, Entry{Path: path, Tags: []string{}})
		}
		if tag.Valid {
			last := &entries[len(entries)-1]
			last.Tags = append(last.Tags, tag.String)
		}
	}
	if err = rows.Err(); err != nil {
		return nil, apperrors.IO("load", s.path, err)
	}
	return entries, nil
}

// Tags returns the stored tags for path
func (s *SQLiteStore) Tags(ctx context.Context, path string) ([]string, bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM images WHERE path = ?`, path).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, apperrors.IO("tags", path, err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT tag FROM image_tags WHERE path = ? ORDER BY position`, path)
	if err != nil {
		return nil, false, apperrors.IO("tags", path, err)
	}
	defer rows.Close()

	tags := []string{}
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, false, apperrors.IO("tags", path, err)
		}
		tags = append(tags, t)
	}
	if err := rows.Err(); err != nil {
		return nil, false, apperrors.IO("tags", path, err)
	}
	return tags, true, nil
}
