// Package assetdb executes model-generated SQL against the asset metadata
// database (Postgres with the pgvector extension). The store is strictly
// read-only: anything that is not a SELECT or WITH statement is rejected
// before it reaches the database, and statements without a LIMIT clause get
// a cap appended so a runaway query cannot drag the whole table back.
package assetdb

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

// DefaultRowLimit is appended to statements that carry no LIMIT clause.
const DefaultRowLimit = 100

// limitClause matches a LIMIT keyword as its own token, case-insensitively.
var limitClause = regexp.MustCompile(`(?i)\blimit\b`)

// Result holds the rows returned by one statement. Columns preserves the
// SELECT order; each row maps column name to its scanned value.
type Result struct {
	Columns []string
	Rows    []map[string]any
}

// Store wraps a pooled connection to the asset database.
type Store struct {
	db       *sql.DB
	rowLimit int
}

// Options tune a Store beyond its DSN.
type Options struct {
	// RowLimit caps statements without an explicit LIMIT.
	// Zero means DefaultRowLimit.
	RowLimit int
	// MaxOpenConns bounds the connection pool. Zero keeps the driver default.
	MaxOpenConns int
}

// Open connects to the asset database. The connection is verified with a
// ping before the Store is returned.
func Open(ctx context.Context, dsn string, opts Options) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("assetdb: empty DSN")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("assetdb: open: %w", err)
	}
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("assetdb: ping: %w", err)
	}

	limit := opts.RowLimit
	if limit <= 0 {
		limit = DefaultRowLimit
	}
	return &Store{db: db, rowLimit: limit}, nil
}

// NewWithDB wraps an existing *sql.DB. Used by tests and by callers that
// manage the pool themselves.
func NewWithDB(db *sql.DB, rowLimit int) *Store {
	if rowLimit <= 0 {
		rowLimit = DefaultRowLimit
	}
	return &Store{db: db, rowLimit: rowLimit}
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("assetdb: ping: %w", err)
	}
	return nil
}

// ExecuteReadOnly runs one SELECT (or WITH) statement and returns its rows.
// Non-read statements are rejected. A LIMIT clause is appended when the
// statement has none.
func (s *Store) ExecuteReadOnly(ctx context.Context, query string) (*Result, error) {
	stmt, err := s.prepareStatement(query)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("assetdb: execute: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("assetdb: columns: %w", err)
	}

	result := &Result{Columns: cols}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("assetdb: scan: %w", err)
		}

		row := make(map[string]any, len(cols))
		for i, c := range cols {
			row[c] = normalise(values[i])
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("assetdb: rows: %w", err)
	}

	return result, nil
}

// prepareStatement validates the read-only policy and applies the row cap.
func (s *Store) prepareStatement(query string) (string, error) {
	stmt := strings.TrimSpace(query)
	stmt = strings.TrimSuffix(stmt, ";")
	if stmt == "" {
		return "", fmt.Errorf("assetdb: empty statement")
	}

	upper := strings.ToUpper(stmt)
	if !strings.HasPrefix(upper, "SELECT") && !strings.HasPrefix(upper, "WITH") {
		return "", fmt.Errorf("assetdb: only SELECT statements are allowed")
	}

	if !limitClause.MatchString(stmt) {
		stmt = fmt.Sprintf("%s LIMIT %d", stmt, s.rowLimit)
	}
	return stmt, nil
}

// normalise converts driver-specific scan values into plain Go types.
// lib/pq returns []byte for text columns; callers want strings.
func normalise(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
