package store

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Database schema version
const SchemaVersion = 1

// DB wraps the SQLite connection holding the workspace index.
type DB struct {
	Conn *sql.DB
}

// NewDB opens the SQLite database at dbPath, creating tables if they don't
// exist. Pass ":memory:" for an ephemeral index.
func NewDB(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dbPath+"?_fk=1")
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	db := &DB{Conn: conn}
	if err := db.setup(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to set up database: %w", err)
	}
	return db, nil
}

func (db *DB) setup() error {
	tx, err := db.Conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := db.createTables(tx); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (db *DB) createTables(tx *sql.Tx) error {
	createDocumentsTable := `
	CREATE TABLE IF NOT EXISTS documents (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		path TEXT UNIQUE NOT NULL,
		checksum TEXT NOT NULL,
		last_updated INTEGER NOT NULL
	);
	`

	createLinksTable := `
	CREATE TABLE IF NOT EXISTS links (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source_id INTEGER NOT NULL,
		target_path TEXT NOT NULL,
		fragment TEXT NOT NULL DEFAULT '',
		FOREIGN KEY (source_id) REFERENCES documents(id) ON DELETE CASCADE
	);
	`

	createHeadingsTable := `
	CREATE TABLE IF NOT EXISTS headings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		document_id INTEGER NOT NULL,
		slug TEXT NOT NULL,
		line INTEGER NOT NULL,
		level INTEGER NOT NULL,
		FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE
	);
	`

	if _, err := tx.Exec(createDocumentsTable); err != nil {
		return fmt.Errorf("failed to create documents table: %w", err)
	}
	if _, err := tx.Exec(createLinksTable); err != nil {
		return fmt.Errorf("failed to create links table: %w", err)
	}
	if _, err := tx.Exec(createHeadingsTable); err != nil {
		return fmt.Errorf("failed to create headings table: %w", err)
	}
	if _, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_links_target ON links(target_path);`); err != nil {
		return fmt.Errorf("failed to create link index: %w", err)
	}

	if err := db.setSchemaVersion(tx, SchemaVersion); err != nil {
		return fmt.Errorf("failed to set schema version: %w", err)
	}
	return nil
}

func (db *DB) setSchemaVersion(tx *sql.Tx, version int) error {
	_, err := tx.Exec(fmt.Sprintf(`PRAGMA user_version = %d`, version))
	return err
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.Conn.Close()
}

// Checksum computes the content fingerprint stored per document.
func Checksum(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
