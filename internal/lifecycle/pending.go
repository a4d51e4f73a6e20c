package lifecycle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/digiurban/lifecycle/internal/observability"
	"github.com/digiurban/lifecycle/internal/store"
	"github.com/digiurban/lifecycle/model"
)

// PendingRegistry tracks the requirements raised against a protocol.
// Pendings move OPEN -> IN_PROGRESS -> {RESOLVED, CANCELLED, EXPIRED} and are
// never deleted.
type PendingRegistry struct {
	*core
}

// PendingInput describes a new pending.
type PendingInput struct {
	Type        string               `json:"type"`
	Title       string               `json:"title"`
	Description string               `json:"description,omitempty"`
	Priority    string               `json:"priority,omitempty"`
	IsBlocking  bool                 `json:"isBlocking"`
	DueDate     *time.Time           `json:"dueDate,omitempty"`
	AssignedTo  string               `json:"assignedTo,omitempty"`
	Details     model.PendingDetails `json:"details"`
}

func (r *PendingRegistry) validate(in *PendingInput) error {
	var details []model.FieldError
	if !r.pendingTypes[in.Type] {
		details = append(details, model.FieldError{
			Field: "type", Code: "ENUM", Message: fmt.Sprintf("unknown pending type %q", in.Type),
		})
	}
	if strings.TrimSpace(in.Title) == "" {
		details = append(details, model.FieldError{Field: "title", Code: "REQUIRED", Message: "title is required"})
	}
	if in.Priority == "" {
		in.Priority = model.PriorityMedium
	}
	if !contains(model.PendingPriorities, in.Priority) {
		details = append(details, model.FieldError{
			Field: "priority", Code: "ENUM", Message: fmt.Sprintf("unknown priority %q", in.Priority),
		})
	}
	kind, ok := in.Details.Variant()
	switch {
	case !ok:
		details = append(details, model.FieldError{
			Field: "details", Code: "AMBIGUOUS", Message: "details must carry at most one variant",
		})
	case kind != "" && kind != in.Type:
		details = append(details, model.FieldError{
			Field: "details", Code: "MISMATCH", Message: fmt.Sprintf("details describe a %s pending, not %s", kind, in.Type),
		})
	}
	if len(details) > 0 {
		return model.NewValidationError(details)
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func pendingEvent(ob *outbox, eventType string, p *model.PendingItem, extra map[string]any) {
	data := map[string]any{
		"status":     p.Status,
		"type":       p.Type,
		"isBlocking": p.IsBlocking,
	}
	for k, v := range extra {
		data[k] = v
	}
	ob.emit(eventType, p.ProtocolID, p.ID, data)
}

// Create raises a new OPEN pending on protocolID.
func (r *PendingRegistry) Create(ctx context.Context, protocolID string, in PendingInput) (pending *model.PendingItem, err error) {
	ctx, span := observability.StartSpan(ctx, "pending.create", observability.AttrProtocolID.String(protocolID))
	defer func() { observability.EndSpanWithError(span, err) }()

	if err := r.validate(&in); err != nil {
		return nil, err
	}

	actor := model.ActorFrom(ctx)
	var out model.PendingItem
	err = r.update(ctx, protocolID, func(tx store.Tx, ob *outbox) error {
		if err := ensureOpen(tx.Protocol()); err != nil {
			return err
		}
		now := r.now()
		out = model.PendingItem{
			ID:          uuid.New().String(),
			ProtocolID:  protocolID,
			Type:        in.Type,
			Title:       strings.TrimSpace(in.Title),
			Description: in.Description,
			Priority:    in.Priority,
			Status:      model.PendingOpen,
			IsBlocking:  in.IsBlocking,
			DueDate:     in.DueDate,
			Details:     in.Details,
			CreatedBy:   actor,
			AssignedTo:  in.AssignedTo,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tx.PutPending(out); err != nil {
			return err
		}
		pendingEvent(ob, model.EventPendingCreated, &out, map[string]any{"title": out.Title})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// transition locates pendingID and applies fn inside the protocol's
// transaction, settling the protocol afterwards.
func (r *PendingRegistry) transition(ctx context.Context, pendingID string, fn func(ob *outbox, p *model.PendingItem, now time.Time) error) (*model.PendingItem, error) {
	protocolID, err := r.store.LocatePending(ctx, pendingID)
	if err != nil {
		return nil, err
	}

	var out model.PendingItem
	err = r.update(ctx, protocolID, func(tx store.Tx, ob *outbox) error {
		pendings, err := tx.Pendings()
		if err != nil {
			return err
		}
		p := findPending(pendings, pendingID)
		if p == nil {
			return model.NewNotFoundError(fmt.Sprintf("pending %q not found", pendingID))
		}
		now := r.now()
		if err := fn(ob, p, now); err != nil {
			return err
		}
		p.UpdatedAt = now
		if err := tx.PutPending(*p); err != nil {
			return err
		}
		out = *p
		return settle(tx, ob, now)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func findPending(pendings []model.PendingItem, id string) *model.PendingItem {
	for i := range pendings {
		if pendings[i].ID == id {
			return &pendings[i]
		}
	}
	return nil
}

// Start moves an OPEN pending to IN_PROGRESS.
func (r *PendingRegistry) Start(ctx context.Context, pendingID string) (pending *model.PendingItem, err error) {
	ctx, span := observability.StartSpan(ctx, "pending.start", observability.AttrPendingID.String(pendingID))
	defer func() { observability.EndSpanWithError(span, err) }()

	return r.transition(ctx, pendingID, func(ob *outbox, p *model.PendingItem, now time.Time) error {
		if p.Status != model.PendingOpen {
			return model.NewInvalidTransitionError("pending", p.Status, "start")
		}
		p.Status = model.PendingInProgress
		pendingEvent(ob, model.EventPendingStarted, p, nil)
		return nil
	})
}

// Resolve closes an active pending with a resolution.
func (r *PendingRegistry) Resolve(ctx context.Context, pendingID, resolution string) (pending *model.PendingItem, err error) {
	ctx, span := observability.StartSpan(ctx, "pending.resolve", observability.AttrPendingID.String(pendingID))
	defer func() { observability.EndSpanWithError(span, err) }()

	if strings.TrimSpace(resolution) == "" {
		return nil, model.NewFieldError("resolution", "REQUIRED", "resolution is required")
	}
	actor := model.ActorFrom(ctx)
	return r.transition(ctx, pendingID, func(ob *outbox, p *model.PendingItem, now time.Time) error {
		if !p.IsActive() {
			return model.NewInvalidTransitionError("pending", p.Status, "resolve")
		}
		p.Status = model.PendingResolved
		p.ResolvedAt = &now
		p.ResolvedBy = actor
		p.Resolution = resolution
		pendingEvent(ob, model.EventPendingResolved, p, nil)
		return nil
	})
}

// Cancel withdraws an active pending.
func (r *PendingRegistry) Cancel(ctx context.Context, pendingID, reason string) (pending *model.PendingItem, err error) {
	ctx, span := observability.StartSpan(ctx, "pending.cancel", observability.AttrPendingID.String(pendingID))
	defer func() { observability.EndSpanWithError(span, err) }()

	if strings.TrimSpace(reason) == "" {
		return nil, model.NewFieldError("reason", "REQUIRED", "reason is required")
	}
	return r.transition(ctx, pendingID, func(ob *outbox, p *model.PendingItem, now time.Time) error {
		if !p.IsActive() {
			return model.NewInvalidTransitionError("pending", p.Status, "cancel")
		}
		p.Status = model.PendingCancelled
		p.CancelledAt = &now
		p.CancelReason = reason
		pendingEvent(ob, model.EventPendingCancelled, p, map[string]any{"reason": reason})
		return nil
	})
}

// expire moves every active pending of tx past its due date to EXPIRED and
// returns the newly expired items.
func expire(tx store.Tx, ob *outbox, now time.Time) ([]model.PendingItem, error) {
	pendings, err := tx.Pendings()
	if err != nil {
		return nil, err
	}
	expired := []model.PendingItem{}
	for i := range pendings {
		p := &pendings[i]
		if !p.IsActive() || p.DueDate == nil || !now.After(*p.DueDate) {
			continue
		}
		p.Status = model.PendingExpired
		p.ExpiredAt = &now
		p.UpdatedAt = now
		if err := tx.PutPending(*p); err != nil {
			return nil, err
		}
		pendingEvent(ob, model.EventPendingExpired, p, nil)
		expired = append(expired, *p)
	}
	return expired, nil
}

// CheckExpired expires the overdue pendings of protocolID. Calling it again
// returns an empty set until another pending falls due.
func (r *PendingRegistry) CheckExpired(ctx context.Context, protocolID string) (expired []model.PendingItem, err error) {
	ctx, span := observability.StartSpan(ctx, "pending.expire", observability.AttrProtocolID.String(protocolID))
	defer func() { observability.EndSpanWithError(span, err) }()

	err = r.update(ctx, protocolID, func(tx store.Tx, ob *outbox) error {
		now := r.now()
		var err error
		if expired, err = expire(tx, ob, now); err != nil {
			return err
		}
		return settle(tx, ob, now)
	})
	if err != nil {
		return nil, err
	}
	return expired, nil
}

// Get returns a single pending.
func (r *PendingRegistry) Get(ctx context.Context, pendingID string) (*model.PendingItem, error) {
	protocolID, err := r.store.LocatePending(ctx, pendingID)
	if err != nil {
		return nil, err
	}
	var out *model.PendingItem
	err = r.view(ctx, protocolID, func(tx store.Tx) error {
		pendings, err := tx.Pendings()
		if err != nil {
			return err
		}
		out = findPending(pendings, pendingID)
		if out == nil {
			return model.NewNotFoundError(fmt.Sprintf("pending %q not found", pendingID))
		}
		return nil
	})
	return out, err
}

// List returns the pendings of protocolID, optionally filtered by status,
// ordered by creation time.
func (r *PendingRegistry) List(ctx context.Context, protocolID, status string) ([]model.PendingItem, error) {
	if status != "" && !contains(model.PendingStatuses, status) {
		return nil, model.NewFieldError("status", "ENUM", fmt.Sprintf("unknown pending status %q", status))
	}
	out := []model.PendingItem{}
	err := r.view(ctx, protocolID, func(tx store.Tx) error {
		pendings, err := tx.Pendings()
		if err != nil {
			return err
		}
		for _, p := range pendings {
			if status == "" || p.Status == status {
				out = append(out, p)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Blocking returns the active blocking pendings of protocolID.
func (r *PendingRegistry) Blocking(ctx context.Context, protocolID string) ([]model.PendingItem, error) {
	all, err := r.List(ctx, protocolID, "")
	if err != nil {
		return nil, err
	}
	out := []model.PendingItem{}
	for _, p := range all {
		if p.IsBlocking && p.IsActive() {
			out = append(out, p)
		}
	}
	return out, nil
}

// HasBlocking reports whether any blocking pending of protocolID is still
// OPEN or IN_PROGRESS.
func (r *PendingRegistry) HasBlocking(ctx context.Context, protocolID string) (bool, error) {
	blocking, err := r.Blocking(ctx, protocolID)
	if err != nil {
		return false, err
	}
	return len(blocking) > 0, nil
}

// CountByStatus tallies the pendings of protocolID by status.
func (r *PendingRegistry) CountByStatus(ctx context.Context, protocolID string) (*model.PendingCounts, error) {
	all, err := r.List(ctx, protocolID, "")
	if err != nil {
		return nil, err
	}
	counts := &model.PendingCounts{Total: len(all), ByStatus: make(map[string]int, len(model.PendingStatuses))}
	for _, s := range model.PendingStatuses {
		counts.ByStatus[s] = 0
	}
	for _, p := range all {
		counts.ByStatus[p.Status]++
	}
	return counts, nil
}
