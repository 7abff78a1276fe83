package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"chatrelay/internal/migrations"
	"chatrelay/internal/models"
	"chatrelay/internal/security"

	_ "github.com/mattn/go-sqlite3"
)

// ErrDuplicateEmail is returned when a user is created with an email that is
// already registered.
var ErrDuplicateEmail = errors.New("email already registered")

type Database struct {
	db        *sql.DB
	encryptor *encryptor
}

// New opens the SQLite database at cfg.Path and brings its schema up to
// date.
func New(cfg models.DatabaseConfig) (*Database, error) {
	memory := security.IsSQLiteMemoryPath(cfg.Path)
	if !memory {
		if err := security.ValidateFilePath(cfg.Path); err != nil {
			return nil, fmt.Errorf("invalid database path: %w", err)
		}
	}

	encryptor, err := newEncryptor(cfg.EnableEncryption, cfg.EncryptionSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize encryptor: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn(cfg.Path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	maxOpen := cfg.MaxOpenConns
	if memory || maxOpen < 1 {
		// Every connection to ":memory:" is a separate database.
		maxOpen = 1
	}
	db.SetMaxOpenConns(maxOpen)

	if err := db.Ping(); err != nil {
		return nil, closeOnError(db, fmt.Errorf("failed to ping database: %w", err))
	}

	if _, err := migrations.Up(db); err != nil {
		return nil, closeOnError(db, fmt.Errorf("failed to initialize schema: %w", err))
	}

	return &Database{db: db, encryptor: encryptor}, nil
}

func dsn(path string) string {
	params := url.Values{}
	params.Set("_foreign_keys", "on")
	params.Set("_busy_timeout", "5000")
	if !security.IsSQLiteMemoryPath(path) {
		params.Set("_journal_mode", "WAL")
	}

	if !strings.HasPrefix(path, "file:") {
		path = "file:" + path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + params.Encode()
}

func closeOnError(db *sql.DB, err error) error {
	if closeErr := db.Close(); closeErr != nil {
		return fmt.Errorf("%w (close error: %v)", err, closeErr)
	}
	return err
}

func (d *Database) Close() error {
	return d.db.Close()
}

// Ping checks that the database is reachable.
func (d *Database) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}
