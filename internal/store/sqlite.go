// Package store wraps a SQLite database behind the query-service boundary
// used by the execution loop: execute a SQL string, get back columns and rows
// or an error description, plus schema introspection helpers.
package store

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"retailcopilot/internal/logging"
)

// Result holds the output of a successful query execution. Rows preserve the
// database's ordering; each row maps column name to value.
type Result struct {
	Columns []string
	Rows    []map[string]any
}

// Column describes one column from PRAGMA table_info.
type Column struct {
	CID     int
	Name    string
	Type    string
	NotNull bool
	Default any
	PK      bool
}

// DB owns a single SQLite connection, reused sequentially across questions.
// It is not safe for concurrent use; parallel batch processing opens one DB
// per worker.
type DB struct {
	db   *sql.DB
	path string
}

// Open opens (or creates) the SQLite database at path.
func Open(path string) (*DB, error) {
	logging.Get(logging.CategoryBoot).Info("Opening SQLite database at %s", path)

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.Get(logging.CategoryBoot).Debug("Failed to set sqlite busy_timeout: %v", err)
	}

	return &DB{db: db, path: path}, nil
}

// Wrap adopts an existing *sql.DB handle. Used by tests that script the
// database with sqlmock.
func Wrap(db *sql.DB) *DB {
	return &DB{db: db}
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	if d.db == nil {
		return nil
	}
	return d.db.Close()
}

// Execute runs one SQL statement and returns its result set. Service-reported
// failures come back as an error value; the execution loop folds them into
// attempt records rather than propagating.
func (d *DB) Execute(query string) (Result, error) {
	rows, err := d.db.Query(query)
	if err != nil {
		logging.SQLDebug("execute failed: %v", err)
		return Result{}, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return Result{}, fmt.Errorf("failed to read columns: %w", err)
	}

	res := Result{Columns: cols}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return Result{}, fmt.Errorf("failed to scan row: %w", err)
		}

		row := make(map[string]any, len(cols))
		for i, col := range cols {
			row[col] = normalizeValue(values[i])
		}
		res.Rows = append(res.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return Result{}, fmt.Errorf("row iteration failed: %w", err)
	}

	logging.SQLDebug("executed query, %d rows, cols=%v", len(res.Rows), cols)
	return res, nil
}

// ListTables returns all table names, sorted.
func (d *DB) ListTables() ([]string, error) {
	rows, err := d.db.Query("SELECT name FROM sqlite_master WHERE type='table' ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

// TableInfo returns column descriptors for a table via PRAGMA table_info.
func (d *DB) TableInfo(table string) ([]Column, error) {
	rows, err := d.db.Query(fmt.Sprintf("PRAGMA table_info(%q)", table))
	if err != nil {
		return nil, fmt.Errorf("failed to read table info: %w", err)
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var c Column
		var notNull, pk int
		if err := rows.Scan(&c.CID, &c.Name, &c.Type, &notNull, &c.Default, &pk); err != nil {
			return nil, fmt.Errorf("failed to scan column info: %w", err)
		}
		c.NotNull = notNull != 0
		c.PK = pk != 0
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

// EnsureViews creates lower-case compatibility views over the canonical
// tables so templates written against either naming convention resolve.
func (d *DB) EnsureViews() error {
	stmts := []string{
		`CREATE VIEW IF NOT EXISTS orders AS SELECT * FROM Orders`,
		`CREATE VIEW IF NOT EXISTS order_items AS SELECT * FROM "Order Details"`,
		`CREATE VIEW IF NOT EXISTS products AS SELECT * FROM Products`,
		`CREATE VIEW IF NOT EXISTS customers AS SELECT * FROM Customers`,
	}
	for _, stmt := range stmts {
		if _, err := d.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create view: %w", err)
		}
	}
	return nil
}

// normalizeValue converts driver-specific values into the small set the rest
// of the pipeline handles: string, int64, float64, nil.
func normalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
