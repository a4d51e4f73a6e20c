package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/digiurban/lifecycle/model"
)

// errNoRows is what a row adapter returns when the query matched nothing,
// whatever the driver's own sentinel is.
var errNoRows = errors.New("store: no rows")

// conn is the small query surface shared by the pgx and database/sql
// adapters. Queries use $N placeholders.
type conn interface {
	exec(ctx context.Context, query string, args ...any) (int64, error)
	query(ctx context.Context, query string, args ...any) (rows, error)
	queryRow(ctx context.Context, query string, args ...any) row
}

type rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}

type row interface {
	Scan(dest ...any) error
}

type scanner interface {
	Scan(dest ...any) error
}

const protocolColumns = `id, module_type, status, data, created_by, created_at, updated_at, completed_at, version`

const stageColumns = `id, protocol_id, stage_order, name, status, sla_working_days,
	required_documents, completion_conditions, can_skip, due_date, assigned_to,
	started_by, started_at, completed_at, skipped_at, failed_at, result, notes,
	reason, created_at, updated_at`

const slaColumns = `id, protocol_id, start_date, expected_end_date, actual_end_date,
	working_days, calendar_days, is_paused, paused_at, resumed_at, paused_reason,
	total_paused_days, is_overdue, completed_late, status, created_at, updated_at`

const pendingColumns = `id, protocol_id, type, title, description, priority, status,
	is_blocking, due_date, details, created_by, assigned_to, resolved_at,
	resolved_by, resolution, cancelled_at, cancel_reason, expired_at, created_at,
	updated_at`

const documentColumns = `id, protocol_id, document_type, name, status, reviewed_by, reviewed_at, created_at`

func marshalJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func unmarshalJSON(raw []byte, v any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}

func utc(t *time.Time) {
	if !t.IsZero() {
		*t = t.UTC()
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func scanProtocol(s scanner) (model.Protocol, error) {
	var p model.Protocol
	var data []byte
	err := s.Scan(&p.ID, &p.ModuleType, &p.Status, &data, &p.CreatedBy,
		&p.CreatedAt, &p.UpdatedAt, &p.CompletedAt, &p.Version)
	if err != nil {
		return model.Protocol{}, err
	}
	if err := unmarshalJSON(data, &p.Data); err != nil {
		return model.Protocol{}, fmt.Errorf("unmarshal protocol data: %w", err)
	}
	utc(&p.CreatedAt)
	utc(&p.UpdatedAt)
	p.CompletedAt = utcPtr(p.CompletedAt)
	return p, nil
}

func scanStage(s scanner) (model.StageInstance, error) {
	var st model.StageInstance
	var docs, conds []byte
	err := s.Scan(&st.ID, &st.ProtocolID, &st.Order, &st.Name, &st.Status, &st.SLAWorkingDays,
		&docs, &conds, &st.CanSkip, &st.DueDate, &st.AssignedTo,
		&st.StartedBy, &st.StartedAt, &st.CompletedAt, &st.SkippedAt, &st.FailedAt, &st.Result, &st.Notes,
		&st.Reason, &st.CreatedAt, &st.UpdatedAt)
	if err != nil {
		return model.StageInstance{}, err
	}
	if err := unmarshalJSON(docs, &st.RequiredDocuments); err != nil {
		return model.StageInstance{}, fmt.Errorf("unmarshal required documents: %w", err)
	}
	if err := unmarshalJSON(conds, &st.CompletionConditions); err != nil {
		return model.StageInstance{}, fmt.Errorf("unmarshal completion conditions: %w", err)
	}
	utc(&st.CreatedAt)
	utc(&st.UpdatedAt)
	st.DueDate = utcPtr(st.DueDate)
	st.StartedAt = utcPtr(st.StartedAt)
	st.CompletedAt = utcPtr(st.CompletedAt)
	st.SkippedAt = utcPtr(st.SkippedAt)
	st.FailedAt = utcPtr(st.FailedAt)
	return st, nil
}

func scanSLA(s scanner) (model.SLARecord, error) {
	var r model.SLARecord
	err := s.Scan(&r.ID, &r.ProtocolID, &r.StartDate, &r.ExpectedEndDate, &r.ActualEndDate,
		&r.WorkingDays, &r.CalendarDays, &r.IsPaused, &r.PausedAt, &r.ResumedAt, &r.PausedReason,
		&r.TotalPausedDays, &r.IsOverdue, &r.CompletedLate, &r.Status, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return model.SLARecord{}, err
	}
	utc(&r.StartDate)
	utc(&r.ExpectedEndDate)
	utc(&r.CreatedAt)
	utc(&r.UpdatedAt)
	r.ActualEndDate = utcPtr(r.ActualEndDate)
	r.PausedAt = utcPtr(r.PausedAt)
	r.ResumedAt = utcPtr(r.ResumedAt)
	return r, nil
}

func scanPending(s scanner) (model.PendingItem, error) {
	var p model.PendingItem
	var details []byte
	err := s.Scan(&p.ID, &p.ProtocolID, &p.Type, &p.Title, &p.Description, &p.Priority, &p.Status,
		&p.IsBlocking, &p.DueDate, &details, &p.CreatedBy, &p.AssignedTo, &p.ResolvedAt,
		&p.ResolvedBy, &p.Resolution, &p.CancelledAt, &p.CancelReason, &p.ExpiredAt, &p.CreatedAt,
		&p.UpdatedAt)
	if err != nil {
		return model.PendingItem{}, err
	}
	if err := unmarshalJSON(details, &p.Details); err != nil {
		return model.PendingItem{}, fmt.Errorf("unmarshal pending details: %w", err)
	}
	utc(&p.CreatedAt)
	utc(&p.UpdatedAt)
	p.DueDate = utcPtr(p.DueDate)
	p.ResolvedAt = utcPtr(p.ResolvedAt)
	p.CancelledAt = utcPtr(p.CancelledAt)
	p.ExpiredAt = utcPtr(p.ExpiredAt)
	return p, nil
}

func scanDocument(s scanner) (model.Document, error) {
	var d model.Document
	err := s.Scan(&d.ID, &d.ProtocolID, &d.DocumentType, &d.Name, &d.Status, &d.ReviewedBy, &d.ReviewedAt, &d.CreatedAt)
	if err != nil {
		return model.Document{}, err
	}
	utc(&d.CreatedAt)
	d.ReviewedAt = utcPtr(d.ReviewedAt)
	return d, nil
}

func collect[T any](r rows, scan func(scanner) (T, error)) ([]T, error) {
	defer r.Close()
	var out []T
	for r.Next() {
		v, err := scan(r)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, r.Err()
}

// loadProtocol reads the protocol row. lock is appended to the query, such as
// " FOR UPDATE" on PostgreSQL.
func loadProtocol(ctx context.Context, c conn, id, lock string) (model.Protocol, error) {
	p, err := scanProtocol(c.queryRow(ctx, `SELECT `+protocolColumns+` FROM protocols WHERE id = $1`+lock, id))
	if errors.Is(err, errNoRows) {
		return model.Protocol{}, protocolNotFound(id)
	}
	if err != nil {
		return model.Protocol{}, fmt.Errorf("query protocol: %w", err)
	}
	return p, nil
}

func insertProtocol(ctx context.Context, c conn, p model.Protocol) error {
	data, err := marshalJSON(p.Data)
	if err != nil {
		return fmt.Errorf("marshal protocol data: %w", err)
	}
	n, err := c.exec(ctx, `
		INSERT INTO protocols (`+protocolColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING`,
		p.ID, p.ModuleType, p.Status, data, p.CreatedBy,
		p.CreatedAt, p.UpdatedAt, p.CompletedAt, p.Version,
	)
	if err != nil {
		return fmt.Errorf("insert protocol: %w", err)
	}
	if n == 0 {
		return protocolExists(p.ID)
	}
	return nil
}

func bumpVersion(ctx context.Context, c conn, id string) error {
	if _, err := c.exec(ctx, `UPDATE protocols SET version = version + 1 WHERE id = $1`, id); err != nil {
		return fmt.Errorf("bump protocol version: %w", err)
	}
	return nil
}

func locate(ctx context.Context, c conn, table, id string, notFound func(string) error) (string, error) {
	var protocolID string
	err := c.queryRow(ctx, `SELECT protocol_id FROM `+table+` WHERE id = $1`, id).Scan(&protocolID)
	if errors.Is(err, errNoRows) {
		return "", notFound(id)
	}
	if err != nil {
		return "", fmt.Errorf("locate %s: %w", table, err)
	}
	return protocolID, nil
}

func listSLAs(ctx context.Context, c conn, filter model.SLAFilter) ([]model.SLARecord, error) {
	q := `SELECT ` + slaColumns + ` FROM slas`
	if filter.OpenOnly {
		q += ` WHERE actual_end_date IS NULL`
	}
	q += ` ORDER BY expected_end_date`
	r, err := c.query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query slas: %w", err)
	}
	out, err := collect(r, scanSLA)
	if err != nil {
		return nil, fmt.Errorf("scan slas: %w", err)
	}
	return out, nil
}

func sweepProtocolIDs(ctx context.Context, c conn) ([]string, error) {
	r, err := c.query(ctx, `SELECT p.id FROM protocols p
		WHERE p.status = $1 OR EXISTS (
			SELECT 1 FROM pendings d
			WHERE d.protocol_id = p.id AND d.status IN ($2, $3) AND d.due_date IS NOT NULL)
		ORDER BY p.created_at, p.id`,
		model.ProtocolOpen, model.PendingOpen, model.PendingInProgress)
	if err != nil {
		return nil, fmt.Errorf("query sweep protocols: %w", err)
	}
	ids, err := collect(r, func(s scanner) (string, error) {
		var id string
		err := s.Scan(&id)
		return id, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan sweep protocols: %w", err)
	}
	return ids, nil
}

// deleteProtocol removes children explicitly so it does not depend on
// foreign-key enforcement being enabled.
func deleteProtocol(ctx context.Context, c conn, id string) error {
	for _, table := range []string{"documents", "pendings", "slas", "stages"} {
		if _, err := c.exec(ctx, `DELETE FROM `+table+` WHERE protocol_id = $1`, id); err != nil {
			return fmt.Errorf("delete %s: %w", table, err)
		}
	}
	n, err := c.exec(ctx, `DELETE FROM protocols WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete protocol: %w", err)
	}
	if n == 0 {
		return protocolNotFound(id)
	}
	return nil
}

// sqlTx implements Tx on top of an open database transaction.
type sqlTx struct {
	ctx      context.Context
	c        conn
	protocol model.Protocol
	readOnly bool
}

func (t *sqlTx) Protocol() model.Protocol {
	return cloneProtocol(t.protocol)
}

func (t *sqlTx) SetProtocol(p model.Protocol) error {
	if t.readOnly {
		return ErrReadOnly
	}
	data, err := marshalJSON(p.Data)
	if err != nil {
		return fmt.Errorf("marshal protocol data: %w", err)
	}
	_, err = t.c.exec(t.ctx, `
		UPDATE protocols SET status = $1, data = $2, updated_at = $3, completed_at = $4
		WHERE id = $5`,
		p.Status, data, p.UpdatedAt, p.CompletedAt, t.protocol.ID,
	)
	if err != nil {
		return fmt.Errorf("update protocol: %w", err)
	}
	p.ID = t.protocol.ID
	p.Version = t.protocol.Version
	t.protocol = cloneProtocol(p)
	return nil
}

func (t *sqlTx) Stages() ([]model.StageInstance, error) {
	r, err := t.c.query(t.ctx, `SELECT `+stageColumns+` FROM stages WHERE protocol_id = $1 ORDER BY stage_order`, t.protocol.ID)
	if err != nil {
		return nil, fmt.Errorf("query stages: %w", err)
	}
	out, err := collect(r, scanStage)
	if err != nil {
		return nil, fmt.Errorf("scan stages: %w", err)
	}
	return out, nil
}

func (t *sqlTx) PutStage(s model.StageInstance) error {
	if t.readOnly {
		return ErrReadOnly
	}
	docs, err := marshalJSON(s.RequiredDocuments)
	if err != nil {
		return fmt.Errorf("marshal required documents: %w", err)
	}
	conds, err := marshalJSON(s.CompletionConditions)
	if err != nil {
		return fmt.Errorf("marshal completion conditions: %w", err)
	}
	n, err := t.c.exec(t.ctx, `
		UPDATE stages SET
			status = $3,
			due_date = $4,
			assigned_to = $5,
			started_by = $6,
			started_at = $7,
			completed_at = $8,
			skipped_at = $9,
			failed_at = $10,
			result = $11,
			notes = $12,
			reason = $13,
			updated_at = $14
		WHERE id = $1 AND protocol_id = $2`,
		s.ID, t.protocol.ID, s.Status, s.DueDate, s.AssignedTo,
		s.StartedBy, s.StartedAt, s.CompletedAt, s.SkippedAt, s.FailedAt,
		s.Result, s.Notes, s.Reason, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update stage: %w", err)
	}
	if n > 0 {
		return nil
	}

	// stage_order is unique per protocol; a clash fails the insert.
	_, err = t.c.exec(t.ctx, `
		INSERT INTO stages (`+stageColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`,
		s.ID, t.protocol.ID, s.Order, s.Name, s.Status, s.SLAWorkingDays,
		docs, conds, s.CanSkip, s.DueDate, s.AssignedTo,
		s.StartedBy, s.StartedAt, s.CompletedAt, s.SkippedAt, s.FailedAt, s.Result, s.Notes,
		s.Reason, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert stage: %w", err)
	}
	return nil
}

func (t *sqlTx) SLA() (*model.SLARecord, error) {
	r, err := scanSLA(t.c.queryRow(t.ctx, `SELECT `+slaColumns+` FROM slas WHERE protocol_id = $1`, t.protocol.ID))
	if errors.Is(err, errNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query sla: %w", err)
	}
	return &r, nil
}

func (t *sqlTx) PutSLA(r model.SLARecord) error {
	if t.readOnly {
		return ErrReadOnly
	}
	_, err := t.c.exec(t.ctx, `
		INSERT INTO slas (`+slaColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (id) DO UPDATE SET
			expected_end_date = excluded.expected_end_date,
			actual_end_date = excluded.actual_end_date,
			is_paused = excluded.is_paused,
			paused_at = excluded.paused_at,
			resumed_at = excluded.resumed_at,
			paused_reason = excluded.paused_reason,
			total_paused_days = excluded.total_paused_days,
			is_overdue = excluded.is_overdue,
			completed_late = excluded.completed_late,
			status = excluded.status,
			updated_at = excluded.updated_at`,
		r.ID, t.protocol.ID, r.StartDate, r.ExpectedEndDate, r.ActualEndDate,
		r.WorkingDays, r.CalendarDays, r.IsPaused, r.PausedAt, r.ResumedAt, r.PausedReason,
		r.TotalPausedDays, r.IsOverdue, r.CompletedLate, r.Status, r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert sla: %w", err)
	}
	return nil
}

func (t *sqlTx) DeleteSLA() error {
	if t.readOnly {
		return ErrReadOnly
	}
	if _, err := t.c.exec(t.ctx, `DELETE FROM slas WHERE protocol_id = $1`, t.protocol.ID); err != nil {
		return fmt.Errorf("delete sla: %w", err)
	}
	return nil
}

func (t *sqlTx) Pendings() ([]model.PendingItem, error) {
	r, err := t.c.query(t.ctx, `SELECT `+pendingColumns+` FROM pendings WHERE protocol_id = $1 ORDER BY created_at, id`, t.protocol.ID)
	if err != nil {
		return nil, fmt.Errorf("query pendings: %w", err)
	}
	out, err := collect(r, scanPending)
	if err != nil {
		return nil, fmt.Errorf("scan pendings: %w", err)
	}
	return out, nil
}

func (t *sqlTx) PutPending(p model.PendingItem) error {
	if t.readOnly {
		return ErrReadOnly
	}
	details, err := marshalJSON(p.Details)
	if err != nil {
		return fmt.Errorf("marshal pending details: %w", err)
	}
	_, err = t.c.exec(t.ctx, `
		INSERT INTO pendings (`+pendingColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		ON CONFLICT (id) DO UPDATE SET
			status = excluded.status,
			assigned_to = excluded.assigned_to,
			resolved_at = excluded.resolved_at,
			resolved_by = excluded.resolved_by,
			resolution = excluded.resolution,
			cancelled_at = excluded.cancelled_at,
			cancel_reason = excluded.cancel_reason,
			expired_at = excluded.expired_at,
			updated_at = excluded.updated_at`,
		p.ID, t.protocol.ID, p.Type, p.Title, p.Description, p.Priority, p.Status,
		p.IsBlocking, p.DueDate, details, p.CreatedBy, p.AssignedTo, p.ResolvedAt,
		p.ResolvedBy, p.Resolution, p.CancelledAt, p.CancelReason, p.ExpiredAt, p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert pending: %w", err)
	}
	return nil
}

func (t *sqlTx) Documents() ([]model.Document, error) {
	r, err := t.c.query(t.ctx, `SELECT `+documentColumns+` FROM documents WHERE protocol_id = $1 ORDER BY created_at, id`, t.protocol.ID)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	out, err := collect(r, scanDocument)
	if err != nil {
		return nil, fmt.Errorf("scan documents: %w", err)
	}
	return out, nil
}

func (t *sqlTx) PutDocument(d model.Document) error {
	if t.readOnly {
		return ErrReadOnly
	}
	_, err := t.c.exec(t.ctx, `
		INSERT INTO documents (`+documentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			status = excluded.status,
			reviewed_by = excluded.reviewed_by,
			reviewed_at = excluded.reviewed_at`,
		d.ID, t.protocol.ID, d.DocumentType, d.Name, d.Status, d.ReviewedBy, d.ReviewedAt, d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert document: %w", err)
	}
	return nil
}
