package session

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

const currentSchemaVersion = 1

// openDB opens or creates the session database, applies the pragmas and
// brings the schema up to date.
func openDB(dbPath string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create session db directory: %w", err)
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open session database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",   // Write-Ahead Logging for better concurrency
		"PRAGMA synchronous=NORMAL", // Balance between safety and performance
		"PRAGMA foreign_keys=ON",    // Enable foreign key constraints
		"PRAGMA busy_timeout=5000",  // Wait up to 5 seconds on lock
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if err := initializeSchema(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize session schema: %w", err)
	}

	return conn, nil
}

// initializeSchema creates the tables when missing and records the schema
// version. Safe to run on every open.
func initializeSchema(conn *sql.DB) error {
	return withTx(conn, func(tx *sql.Tx) error {
		if err := createSchemaVersionTable(tx); err != nil {
			return err
		}

		version, err := schemaVersion(tx)
		if err != nil {
			return err
		}
		if version == currentSchemaVersion {
			return nil
		}

		if err := createSessionsTable(tx); err != nil {
			return err
		}
		if err := createActionsTable(tx); err != nil {
			return err
		}

		// Migrations go here as the schema evolves; version 0 means a
		// fresh database.

		return setSchemaVersion(tx, currentSchemaVersion)
	})
}

// withTx executes fn inside a transaction, rolling back on error.
func withTx(conn *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p) // Re-throw panic after rollback
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func createSchemaVersionTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER NOT NULL
		)
	`)
	return err
}

func schemaVersion(tx *sql.Tx) (int, error) {
	var version int
	err := tx.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return version, nil
}

func setSchemaVersion(tx *sql.Tx, version int) error {
	if _, err := tx.Exec("DELETE FROM schema_version"); err != nil {
		return err
	}
	_, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version)
	return err
}

func createSessionsTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			start_time TEXT NOT NULL,
			end_time TEXT,
			session_goal TEXT NOT NULL DEFAULT '',
			total_actions INTEGER NOT NULL DEFAULT 0,
			is_active INTEGER NOT NULL DEFAULT 1,
			achievements_json TEXT NOT NULL DEFAULT '[]'
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create sessions table: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_sessions_project_id ON sessions(project_id)",
		"CREATE INDEX IF NOT EXISTS idx_sessions_project_active ON sessions(project_id, is_active)",
	}
	for _, indexSQL := range indexes {
		if _, err := tx.Exec(indexSQL); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

func createActionsTable(tx *sql.Tx) error {
	// The integer primary key doubles as the append order; queries that
	// need "most recent" order by id, not by the timestamp text.
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS actions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			project_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			action_type TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			action_data_json TEXT NOT NULL DEFAULT '',
			file_path TEXT NOT NULL DEFAULT '',
			before_state TEXT NOT NULL DEFAULT '',
			after_state TEXT NOT NULL DEFAULT '',
			success INTEGER NOT NULL DEFAULT 1,
			error_message TEXT NOT NULL DEFAULT '',
			duration_ms INTEGER NOT NULL DEFAULT 0,
			timestamp TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create actions table: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_actions_project_id ON actions(project_id, id)",
		"CREATE INDEX IF NOT EXISTS idx_actions_session_id ON actions(session_id)",
	}
	for _, indexSQL := range indexes {
		if _, err := tx.Exec(indexSQL); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}
