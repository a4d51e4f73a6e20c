package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/digiurban/lifecycle/model"
)

// PgStore is a PostgreSQL-backed Store using pgx/v5. Writers of one protocol
// are serialized by a row lock on the protocol.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a new PostgreSQL store.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// Migrate creates the lifecycle tables if they do not exist.
func (s *PgStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, PostgresSchema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Insert implements Store.
func (s *PgStore) Insert(ctx context.Context, p model.Protocol, fn TxFunc) error {
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		c := pgConn{q: tx}
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
func (s *PgStore) Update(ctx context.Context, protocolID string, fn TxFunc) error {
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		c := pgConn{q: tx}
		p, err := loadProtocol(ctx, c, protocolID, " FOR UPDATE")
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
func (s *PgStore) View(ctx context.Context, protocolID string, fn TxFunc) error {
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{AccessMode: pgx.ReadOnly}, func(tx pgx.Tx) error {
		c := pgConn{q: tx}
		p, err := loadProtocol(ctx, c, protocolID, "")
		if err != nil {
			return err
		}
		return fn(&sqlTx{ctx: ctx, c: c, protocol: p, readOnly: true})
	})
}

// LocateStage implements Store.
func (s *PgStore) LocateStage(ctx context.Context, stageID string) (string, error) {
	return locate(ctx, pgConn{q: s.pool}, "stages", stageID, stageNotFound)
}

// LocatePending implements Store.
func (s *PgStore) LocatePending(ctx context.Context, pendingID string) (string, error) {
	return locate(ctx, pgConn{q: s.pool}, "pendings", pendingID, pendingNotFound)
}

// LocateDocument implements Store.
func (s *PgStore) LocateDocument(ctx context.Context, documentID string) (string, error) {
	return locate(ctx, pgConn{q: s.pool}, "documents", documentID, documentNotFound)
}

// ListSLAs implements Store.
func (s *PgStore) ListSLAs(ctx context.Context, filter model.SLAFilter) ([]model.SLARecord, error) {
	return listSLAs(ctx, pgConn{q: s.pool}, filter)
}

// SweepProtocolIDs implements Store.
func (s *PgStore) SweepProtocolIDs(ctx context.Context) ([]string, error) {
	return sweepProtocolIDs(ctx, pgConn{q: s.pool})
}

// Delete implements Store.
func (s *PgStore) Delete(ctx context.Context, protocolID string) error {
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		return deleteProtocol(ctx, pgConn{q: tx}, protocolID)
	})
}

// HealthCheck implements observability.HealthChecker.
func (s *PgStore) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// pgQuerier is satisfied by both *pgxpool.Pool and pgx.Tx.
type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type pgConn struct {
	q pgQuerier
}

func (c pgConn) exec(ctx context.Context, query string, args ...any) (int64, error) {
	tag, err := c.q.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (c pgConn) query(ctx context.Context, query string, args ...any) (rows, error) {
	r, err := c.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (c pgConn) queryRow(ctx context.Context, query string, args ...any) row {
	return pgRow{r: c.q.QueryRow(ctx, query, args...)}
}

type pgRow struct {
	r pgx.Row
}

func (r pgRow) Scan(dest ...any) error {
	err := r.r.Scan(dest...)
	if errors.Is(err, pgx.ErrNoRows) {
		return errNoRows
	}
	return err
}
