// Package store persists water samples in Postgres (pgx) or SQLite (modernc).
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"truewater/api/internal/sample"
)

// Dialect selects SQL flavour and migration set.
type Dialect string

const (
	Postgres Dialect = "pgx"
	SQLite   Dialect = "sqlite"
)

func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "pgx", "postgres", "postgresql":
		return Postgres, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	default:
		return "", fmt.Errorf("unknown db driver %q", s)
	}
}

// Open connects and pings. The pool is tuned the same way for both dialects;
// SQLite gets a single writer connection.
func Open(ctx context.Context, d Dialect, dsn string) (*sql.DB, error) {
	db, err := sql.Open(string(d), dsn)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	switch d {
	case SQLite:
		db.SetMaxOpenConns(1)
	default:
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(1 * time.Hour)
	}

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db.Ping: %w", err)
	}
	return db, nil
}

// rebind rewrites ? placeholders to $N for Postgres.
func rebind(d Dialect, q string) string {
	if d != Postgres {
		return q
	}
	var b strings.Builder
	n := 0
	for i := 0; i < len(q); i++ {
		if q[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(q[i])
	}
	return b.String()
}

// classify maps driver errors onto the persistence taxonomy.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %v", sample.ErrPersistence, op, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "42501": // insufficient_privilege
			return fmt.Errorf("%w: %s: %s", sample.ErrPermissionDenied, op, pgErr.Message)
		case "23505": // unique_violation
			return fmt.Errorf("%w: %s: duplicate test number: %s", sample.ErrPersistence, op, pgErr.Detail)
		}
		return fmt.Errorf("%w: %s: %s (%s)", sample.ErrPersistence, op, pgErr.Message, pgErr.Code)
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() & 0xff {
		case sqlite3.SQLITE_READONLY, sqlite3.SQLITE_PERM, sqlite3.SQLITE_AUTH:
			return fmt.Errorf("%w: %s: %v", sample.ErrPermissionDenied, op, liteErr)
		case sqlite3.SQLITE_CONSTRAINT:
			return fmt.Errorf("%w: %s: duplicate test number: %v", sample.ErrPersistence, op, liteErr)
		}
	}
	return fmt.Errorf("%w: %s: %v", sample.ErrPersistence, op, err)
}
