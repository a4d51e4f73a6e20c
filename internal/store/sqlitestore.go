package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"

	_ "github.com/mattn/go-sqlite3"

	"github.com/digiurban/lifecycle/model"
)

// SQLiteStore is a Store backed by an embedded SQLite database. It runs on a
// single connection, so writers are serialized database-wide.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and applies the schema.
// Use ":memory:" for a throwaway database.
func OpenSQLite(path string) (*SQLiteStore, error) {
	dsn := "file:" + path + "?_txlock=immediate&_foreign_keys=on&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(SQLiteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) inTx(ctx context.Context, fn func(c conn) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(sqlConn{q: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Insert implements Store.
func (s *SQLiteStore) Insert(ctx context.Context, p model.Protocol, fn TxFunc) error {
	return s.inTx(ctx, func(c conn) error {
		if err := insertProtocol(ctx, c, p); err != nil {
			return err
		}
		if fn == nil {
			return nil
		}
		return fn(&sqlTx{ctx: ctx, c: c, protocol: cloneProtocol(p)})
	})
}

// Update implements Store.
func (s *SQLiteStore) Update(ctx context.Context, protocolID string, fn TxFunc) error {
	return s.inTx(ctx, func(c conn) error {
		p, err := loadProtocol(ctx, c, protocolID, "")
		if err != nil {
			return err
		}
		if err := fn(&sqlTx{ctx: ctx, c: c, protocol: p}); err != nil {
			return err
		}
		return bumpVersion(ctx, c, protocolID)
	})
}

// View implements Store.
func (s *SQLiteStore) View(ctx context.Context, protocolID string, fn TxFunc) error {
	return s.inTx(ctx, func(c conn) error {
		p, err := loadProtocol(ctx, c, protocolID, "")
		if err != nil {
			return err
		}
		return fn(&sqlTx{ctx: ctx, c: c, protocol: p, readOnly: true})
	})
}

// LocateStage implements Store.
func (s *SQLiteStore) LocateStage(ctx context.Context, stageID string) (string, error) {
	return locate(ctx, sqlConn{q: s.db}, "stages", stageID, stageNotFound)
}

// LocatePending implements Store.
func (s *SQLiteStore) LocatePending(ctx context.Context, pendingID string) (string, error) {
	return locate(ctx, sqlConn{q: s.db}, "pendings", pendingID, pendingNotFound)
}

// LocateDocument implements Store.
func (s *SQLiteStore) LocateDocument(ctx context.Context, documentID string) (string, error) {
	return locate(ctx, sqlConn{q: s.db}, "documents", documentID, documentNotFound)
}

// ListSLAs implements Store.
func (s *SQLiteStore) ListSLAs(ctx context.Context, filter model.SLAFilter) ([]model.SLARecord, error) {
	return listSLAs(ctx, sqlConn{q: s.db}, filter)
}

// SweepProtocolIDs implements Store.
func (s *SQLiteStore) SweepProtocolIDs(ctx context.Context) ([]string, error) {
	return sweepProtocolIDs(ctx, sqlConn{q: s.db})
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, protocolID string) error {
	return s.inTx(ctx, func(c conn) error {
		return deleteProtocol(ctx, c, protocolID)
	})
}

// HealthCheck implements observability.HealthChecker.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// sqlQuerier is satisfied by both *sql.DB and *sql.Tx.
type sqlQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var placeholder = regexp.MustCompile(`\$(\d+)`)

// rebind rewrites $N placeholders as SQLite's numbered ?N form.
func rebind(query string) string {
	return placeholder.ReplaceAllString(query, "?$1")
}

type sqlConn struct {
	q sqlQuerier
}

func (c sqlConn) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := c.q.ExecContext(ctx, rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (c sqlConn) query(ctx context.Context, query string, args ...any) (rows, error) {
	r, err := c.q.QueryContext(ctx, rebind(query), args...)
	if err != nil {
		return nil, err
	}
	return sqlRows{Rows: r}, nil
}

func (c sqlConn) queryRow(ctx context.Context, query string, args ...any) row {
	return sqlRow{r: c.q.QueryRowContext(ctx, rebind(query), args...)}
}

type sqlRows struct {
	*sql.Rows
}

func (r sqlRows) Close() {
	_ = r.Rows.Close()
}

type sqlRow struct {
	r *sql.Row
}

func (r sqlRow) Scan(dest ...any) error {
	err := r.r.Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return errNoRows
	}
	return err
}
