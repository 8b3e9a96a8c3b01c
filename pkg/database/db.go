// Package database is the SQL layer. Postgres (lib/pq) is the primary
// dialect; MySQL 8 (go-sql-driver/mysql, DSN with parseTime=true) is
// supported for self-hosted installs. Queries are written with ? placeholders
// and rebound for Postgres.
package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"

	"review-insights/internal/constants"
	"review-insights/pkg/config"
	errs "review-insights/pkg/errors"
)

type Dialect string

const (
	Postgres Dialect = "postgres"
	MySQL    Dialect = "mysql"
)

// ParseDialect accepts the DB_DRIVER names.
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "postgres", "postgresql", "pq":
		return Postgres, nil
	case "mysql":
		return MySQL, nil
	}
	return "", fmt.Errorf("unsupported database driver %q", s)
}

// runner is satisfied by both *sql.DB and *sql.Tx.
type runner interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries carries the statements shared by DB and Tx.
type queries struct {
	run          runner
	dialect      Dialect
	readTimeout  time.Duration
	writeTimeout time.Duration
}

type DB struct {
	queries
	conn *sql.DB
}

// Open connects using DB_DRIVER and DATABASE_URL and applies the pool
// settings from cfg.
func Open(cfg *config.Config) (*DB, error) {
	dialect, err := ParseDialect(cfg.DBDriver)
	if err != nil {
		return nil, errs.NewConfiguration("database.Open", "DB_DRIVER", err.Error())
	}
	conn, err := sql.Open(string(dialect), cfg.DatabaseURL)
	if err != nil {
		return nil, errs.NewDB("database.Open", "failed to open connection", err)
	}

	conn.SetMaxOpenConns(cfg.DBMaxOpenConns)
	conn.SetMaxIdleConns(cfg.DBMaxIdleConns)
	conn.SetConnMaxLifetime(time.Duration(cfg.DBConnMaxLifetime) * time.Minute)
	conn.SetConnMaxIdleTime(time.Duration(cfg.DBConnMaxIdleTime) * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), constants.DBReadTimeoutDefault)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, errs.NewDB("database.Open", "ping failed", err)
	}
	return NewWithConn(conn, dialect, cfg.DBReadTimeout, cfg.DBWriteTimeout), nil
}

// NewWithConn wraps an existing pool. Zero timeouts fall back to defaults.
func NewWithConn(conn *sql.DB, dialect Dialect, readTimeout, writeTimeout time.Duration) *DB {
	if readTimeout <= 0 {
		readTimeout = constants.DBReadTimeoutDefault
	}
	if writeTimeout <= 0 {
		writeTimeout = constants.DBWriteTimeoutDefault
	}
	return &DB{
		queries: queries{run: conn, dialect: dialect, readTimeout: readTimeout, writeTimeout: writeTimeout},
		conn:    conn,
	}
}

// Conn exposes the pool for health checks and the events store.
func (db *DB) Conn() *sql.DB { return db.conn }

func (db *DB) Dialect() Dialect { return db.dialect }

func (db *DB) Close() error { return db.conn.Close() }

func (db *DB) PingContext(ctx context.Context) error {
	ctx, cancel := db.withReadTimeout(ctx)
	defer cancel()
	return db.conn.PingContext(ctx)
}

// Tx runs the shared statements inside one transaction.
type Tx struct {
	queries
	tx     *sql.Tx
	closed bool
}

func (db *DB) Begin(ctx context.Context) (*Tx, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, errs.NewDB("database.Begin", "failed to begin transaction", err)
	}
	q := db.queries
	q.run = tx
	return &Tx{queries: q, tx: tx}, nil
}

func (t *Tx) Commit() error {
	if t.closed {
		return nil
	}
	t.closed = true
	return t.tx.Commit()
}

// Rollback is a no-op after Commit, so it can always be deferred.
func (t *Tx) Rollback() error {
	if t.closed {
		return nil
	}
	t.closed = true
	return t.tx.Rollback()
}

// inTx runs fn in a transaction bounded by the write timeout.
func (db *DB) inTx(ctx context.Context, op string, fn func(ctx context.Context, tx *Tx) error) error {
	ctx, cancel := db.withWriteTimeout(ctx)
	defer cancel()

	tx, err := db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return errs.NewDB(op, "failed to commit", err)
	}
	return nil
}

// withReadTimeout creates a context with standard read timeout.
func (q *queries) withReadTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, q.readTimeout)
}

// withWriteTimeout creates a context with standard write timeout.
func (q *queries) withWriteTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, q.writeTimeout)
}

func (q *queries) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return q.run.ExecContext(ctx, q.rebind(query), args...)
}

func (q *queries) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return q.run.QueryContext(ctx, q.rebind(query), args...)
}

func (q *queries) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return q.run.QueryRowContext(ctx, q.rebind(query), args...)
}

// Rebind exposes placeholder rewriting to packages that query Conn directly.
func (db *DB) Rebind(query string) string { return db.rebind(query) }

// rebind turns ? placeholders into $n for Postgres. Quoted literals are left
// untouched.
func (q *queries) rebind(query string) string {
	if q.dialect != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n, inQuote := 0, false
	for _, r := range query {
		switch {
		case r == '\'':
			inQuote = !inQuote
			b.WriteRune(r)
		case r == '?' && !inQuote:
			n++
			fmt.Fprintf(&b, "$%d", n)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ident quotes a column name that is reserved in one of the dialects.
func (q *queries) ident(name string) string {
	if q.dialect == MySQL {
		return "`" + name + "`"
	}
	return `"` + name + `"`
}

// array encodes a text[] parameter; MySQL stores string lists as JSON.
func (q *queries) array(v []string) any {
	if v == nil {
		return nil
	}
	if q.dialect == Postgres {
		return pq.Array(v)
	}
	b, _ := json.Marshal(v)
	return string(b)
}

// arrayDest is the scan target matching array.
func (q *queries) arrayDest(dst *[]string) any {
	if q.dialect == Postgres {
		return pq.Array(dst)
	}
	return &jsonStrings{dst: dst}
}

type jsonStrings struct{ dst *[]string }

func (j *jsonStrings) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*j.dst = nil
		return nil
	case []byte:
		return json.Unmarshal(v, j.dst)
	case string:
		return json.Unmarshal([]byte(v), j.dst)
	}
	return fmt.Errorf("cannot scan %T into string list", src)
}

// jsonParam marshals v for a json/jsonb column.
func jsonParam(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// IsUniqueViolation reports a duplicate key error from either driver.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	return false
}

// placeholders returns "?, ?, ..." with n markers.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func stringArgs(vs []string) []any {
	out := make([]any, len(vs))
	for i, v := range vs {
		out[i] = v
	}
	return out
}

func strPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func floatPtr(nf sql.NullFloat64) *float64 {
	if !nf.Valid {
		return nil
	}
	f := nf.Float64
	return &f
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

func nullIfEmpty(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}
