package lifecycle

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/digiurban/lifecycle/internal/calendar"
	"github.com/digiurban/lifecycle/internal/observability"
	"github.com/digiurban/lifecycle/internal/store"
	"github.com/digiurban/lifecycle/model"
)

// SLATracker maintains the completion deadline of each protocol.
//
// Overdue detection is pull-based: the derived fields are recomputed on
// every read and persisted by UpdateStatus or the periodic sweep.
type SLATracker struct {
	*core
}

// newSLA builds a record whose deadline is workingDays business days after
// now.
func newSLA(cal calendar.Calendar, protocolID string, workingDays int, now time.Time) (model.SLARecord, error) {
	end, err := calendar.AddBusinessDays(cal, now, workingDays)
	if err != nil {
		return model.SLARecord{}, err
	}
	return model.SLARecord{
		ID:              uuid.New().String(),
		ProtocolID:      protocolID,
		StartDate:       now,
		ExpectedEndDate: end,
		WorkingDays:     workingDays,
		CalendarDays:    calendar.CalendarDays(now, end),
		Status:          model.SLAWithin,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// closeSLA stops the clock. A paused clock is resumed first so the pause is
// accounted for before lateness is judged.
func closeSLA(rec *model.SLARecord, now time.Time) {
	if rec.IsPaused {
		resumeClock(rec, now)
	}
	rec.ActualEndDate = &now
	rec.CompletedLate = now.After(rec.ExpectedEndDate)
	rec.IsOverdue = false
	rec.Status = model.SLACompleted
	rec.UpdatedAt = now
}

// resumeClock shifts the deadline by the calendar days spent paused.
func resumeClock(rec *model.SLARecord, now time.Time) int {
	days := 0
	if rec.PausedAt != nil {
		days = calendar.CalendarDays(*rec.PausedAt, now)
	}
	rec.TotalPausedDays += days
	rec.ExpectedEndDate = rec.ExpectedEndDate.AddDate(0, 0, days)
	rec.CalendarDays = calendar.CalendarDays(rec.StartDate, rec.ExpectedEndDate)
	rec.IsPaused = false
	rec.PausedAt = nil
	rec.PausedReason = ""
	rec.ResumedAt = &now
	rec.UpdatedAt = now
	return days
}

// refreshSLA recomputes the derived status of rec at now.
func (c *core) refreshSLA(rec *model.SLARecord, now time.Time) {
	switch {
	case rec.IsClosed():
		rec.IsOverdue = false
		rec.Status = model.SLACompleted
	case rec.IsPaused:
		rec.IsOverdue = false
		rec.Status = model.SLAPaused
	case now.After(rec.ExpectedEndDate):
		rec.IsOverdue = true
		rec.Status = model.SLAOverdue
	case calendar.BusinessDaysBetween(c.cal, now, rec.ExpectedEndDate) <= c.nearDueDays:
		rec.IsOverdue = false
		rec.Status = model.SLANearDue
	default:
		rec.IsOverdue = false
		rec.Status = model.SLAWithin
	}
}

// slaView refreshes rec and adds the read-time values.
func (c *core) slaView(rec model.SLARecord, now time.Time) *model.SLAView {
	c.refreshSLA(&rec, now)
	v := &model.SLAView{SLARecord: rec}

	if rec.IsClosed() {
		v.ProgressPercent = 100
		return v
	}

	total := rec.ExpectedEndDate.Sub(rec.StartDate)
	if total > 0 {
		pct := float64(now.Sub(rec.StartDate)) / float64(total) * 100
		v.ProgressPercent = math.Round(math.Max(0, math.Min(100, pct))*100) / 100
	} else {
		v.ProgressPercent = 100
	}

	// Remaining days stay frozen at the pause instant until the clock resumes.
	ref := now
	if rec.IsPaused && rec.PausedAt != nil {
		ref = *rec.PausedAt
	}
	if ref.After(rec.ExpectedEndDate) {
		v.DaysRemaining = -calendar.CalendarDays(rec.ExpectedEndDate, ref)
	} else {
		v.DaysRemaining = calendar.BusinessDaysBetween(c.cal, ref, rec.ExpectedEndDate)
	}
	return v
}

func slaNotFound(protocolID string) error {
	return model.NewNotFoundError(fmt.Sprintf("no SLA for protocol %s", protocolID))
}

// mutate loads the SLA of protocolID, applies fn and stores the result.
// A record that was already closed is never written back.
func (t *SLATracker) mutate(ctx context.Context, protocolID string, fn func(rec *model.SLARecord, ob *outbox, now time.Time) error) (*model.SLAView, error) {
	var out *model.SLAView
	err := t.update(ctx, protocolID, func(tx store.Tx, ob *outbox) error {
		rec, err := tx.SLA()
		if err != nil {
			return err
		}
		if rec == nil {
			return slaNotFound(protocolID)
		}
		now := t.now()
		closed := rec.IsClosed()
		if err := fn(rec, ob, now); err != nil {
			return err
		}
		if closed {
			out = t.slaView(*rec, now)
			return nil
		}
		t.refreshSLA(rec, now)
		rec.UpdatedAt = now
		if err := tx.PutSLA(*rec); err != nil {
			return err
		}
		out = t.slaView(*rec, now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Create starts the SLA clock of protocolID with a target of workingDays
// business days from now.
func (t *SLATracker) Create(ctx context.Context, protocolID string, workingDays int) (view *model.SLAView, err error) {
	ctx, span := observability.StartSpan(ctx, "sla.create", observability.AttrProtocolID.String(protocolID))
	defer func() { observability.EndSpanWithError(span, err) }()

	if workingDays <= 0 {
		return nil, model.NewFieldError("workingDays", "MINIMUM", "workingDays must be at least 1")
	}

	err = t.update(ctx, protocolID, func(tx store.Tx, ob *outbox) error {
		if err := ensureOpen(tx.Protocol()); err != nil {
			return err
		}
		existing, err := tx.SLA()
		if err != nil {
			return err
		}
		if existing != nil {
			return model.NewConflictError(fmt.Sprintf("protocol %s already has an SLA", protocolID))
		}
		now := t.now()
		rec, err := newSLA(t.cal, protocolID, workingDays, now)
		if err != nil {
			return err
		}
		t.refreshSLA(&rec, now)
		if err := tx.PutSLA(rec); err != nil {
			return err
		}
		ob.emit(model.EventSLACreated, protocolID, rec.ID, map[string]any{
			"workingDays":     rec.WorkingDays,
			"expectedEndDate": rec.ExpectedEndDate,
		})
		view = t.slaView(rec, now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// Get returns the SLA of protocolID with its status recomputed for now.
// Nothing is written.
func (t *SLATracker) Get(ctx context.Context, protocolID string) (*model.SLAView, error) {
	var out *model.SLAView
	err := t.view(ctx, protocolID, func(tx store.Tx) error {
		rec, err := tx.SLA()
		if err != nil {
			return err
		}
		if rec == nil {
			return slaNotFound(protocolID)
		}
		out = t.slaView(*rec, t.now())
		return nil
	})
	return out, err
}

// Pause stops the clock. A closed SLA fails with ALREADY_COMPLETED.
func (t *SLATracker) Pause(ctx context.Context, protocolID, reason string) (view *model.SLAView, err error) {
	ctx, span := observability.StartSpan(ctx, "sla.pause", observability.AttrProtocolID.String(protocolID))
	defer func() { observability.EndSpanWithError(span, err) }()

	return t.mutate(ctx, protocolID, func(rec *model.SLARecord, ob *outbox, now time.Time) error {
		if rec.IsClosed() {
			return model.NewAlreadyCompletedError(fmt.Sprintf("SLA of protocol %s is closed", protocolID))
		}
		if rec.IsPaused {
			return model.NewInvalidTransitionError("SLA", model.SLAPaused, "pause")
		}
		rec.IsPaused = true
		rec.PausedAt = &now
		rec.PausedReason = reason
		ob.emit(model.EventSLAPaused, protocolID, rec.ID, map[string]any{"reason": reason})
		return nil
	})
}

// Resume restarts a paused clock and pushes the deadline forward by the
// calendar days spent paused.
func (t *SLATracker) Resume(ctx context.Context, protocolID string) (view *model.SLAView, err error) {
	ctx, span := observability.StartSpan(ctx, "sla.resume", observability.AttrProtocolID.String(protocolID))
	defer func() { observability.EndSpanWithError(span, err) }()

	return t.mutate(ctx, protocolID, func(rec *model.SLARecord, ob *outbox, now time.Time) error {
		if rec.IsClosed() {
			return model.NewAlreadyCompletedError(fmt.Sprintf("SLA of protocol %s is closed", protocolID))
		}
		if !rec.IsPaused {
			return model.NewInvalidTransitionError("SLA", rec.Status, "resume")
		}
		days := resumeClock(rec, now)
		ob.emit(model.EventSLAResumed, protocolID, rec.ID, map[string]any{
			"pausedDays":      days,
			"expectedEndDate": rec.ExpectedEndDate,
		})
		return nil
	})
}

// Complete closes the SLA. Lateness is kept in CompletedLate.
func (t *SLATracker) Complete(ctx context.Context, protocolID string) (view *model.SLAView, err error) {
	ctx, span := observability.StartSpan(ctx, "sla.complete", observability.AttrProtocolID.String(protocolID))
	defer func() { observability.EndSpanWithError(span, err) }()

	return t.mutate(ctx, protocolID, func(rec *model.SLARecord, ob *outbox, now time.Time) error {
		if rec.IsClosed() {
			return model.NewAlreadyCompletedError(fmt.Sprintf("SLA of protocol %s is closed", protocolID))
		}
		closeSLA(rec, now)
		ob.emit(model.EventSLACompleted, protocolID, rec.ID, map[string]any{
			"completedLate": rec.CompletedLate,
		})
		return nil
	})
}

// UpdateStatus recomputes and persists the derived status. It is idempotent
// and emits sla.overdue only when the SLA first becomes overdue. A closed SLA
// is returned as stored.
func (t *SLATracker) UpdateStatus(ctx context.Context, protocolID string) (*model.SLAView, error) {
	return t.mutate(ctx, protocolID, func(rec *model.SLARecord, ob *outbox, now time.Time) error {
		wasOverdue := rec.IsOverdue
		t.refreshSLA(rec, now)
		if rec.IsOverdue && !wasOverdue {
			ob.emit(model.EventSLAOverdue, protocolID, rec.ID, map[string]any{
				"expectedEndDate": rec.ExpectedEndDate,
			})
		}
		return nil
	})
}

// Delete removes the SLA of protocolID.
func (t *SLATracker) Delete(ctx context.Context, protocolID string) error {
	return t.update(ctx, protocolID, func(tx store.Tx, ob *outbox) error {
		rec, err := tx.SLA()
		if err != nil {
			return err
		}
		if rec == nil {
			return slaNotFound(protocolID)
		}
		if err := tx.DeleteSLA(); err != nil {
			return err
		}
		ob.emit(model.EventSLADeleted, protocolID, rec.ID, nil)
		return nil
	})
}

// openViews returns a view of every open SLA at now.
func (t *SLATracker) openViews(ctx context.Context) ([]model.SLAView, error) {
	recs, err := t.store.ListSLAs(ctx, model.SLAFilter{OpenOnly: true})
	if err != nil {
		return nil, err
	}
	now := t.now()
	views := make([]model.SLAView, len(recs))
	for i, r := range recs {
		views[i] = *t.slaView(r, now)
	}
	return views, nil
}

// Overdue lists the open SLAs whose deadline has passed.
func (t *SLATracker) Overdue(ctx context.Context) ([]model.SLAView, error) {
	views, err := t.openViews(ctx)
	if err != nil {
		return nil, err
	}
	out := []model.SLAView{}
	for _, v := range views {
		if v.IsOverdue {
			out = append(out, v)
		}
	}
	return out, nil
}

// NearDue lists the running SLAs due within days business days. Overdue and
// paused SLAs are excluded.
func (t *SLATracker) NearDue(ctx context.Context, days int) ([]model.SLAView, error) {
	if days < 0 {
		return nil, model.NewFieldError("days", "MINIMUM", "days must not be negative")
	}
	views, err := t.openViews(ctx)
	if err != nil {
		return nil, err
	}
	out := []model.SLAView{}
	for _, v := range views {
		if !v.IsOverdue && !v.IsPaused && v.DaysRemaining <= days {
			out = append(out, v)
		}
	}
	return out, nil
}

// Stats aggregates SLA outcomes over every protocol.
func (t *SLATracker) Stats(ctx context.Context) (*model.SLAStats, error) {
	recs, err := t.store.ListSLAs(ctx, model.SLAFilter{})
	if err != nil {
		return nil, err
	}
	now := t.now()
	stats := &model.SLAStats{Total: len(recs)}
	var onTime, overdue, totalDays int
	for i := range recs {
		rec := recs[i]
		t.refreshSLA(&rec, now)
		switch {
		case rec.IsClosed():
			stats.Completed++
			totalDays += calendar.CalendarDays(rec.StartDate, *rec.ActualEndDate)
			if !rec.CompletedLate {
				onTime++
			}
		case rec.IsPaused:
			stats.PausedCount++
		case rec.IsOverdue:
			overdue++
		}
	}
	if stats.Completed > 0 {
		stats.AverageCompletionDays = round2(float64(totalDays) / float64(stats.Completed))
		stats.OnTimeRate = round2(float64(onTime) / float64(stats.Completed) * 100)
	}
	if stats.Total > 0 {
		stats.OverdueRate = round2(float64(overdue) / float64(stats.Total) * 100)
	}
	return stats, nil
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
