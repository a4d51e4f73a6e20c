package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/digiurban/lifecycle/internal/calendar"
	"github.com/digiurban/lifecycle/internal/observability"
	"github.com/digiurban/lifecycle/internal/store"
	"github.com/digiurban/lifecycle/model"
)

// StageEngine drives stage instances through
// PENDING -> IN_PROGRESS -> {COMPLETED, SKIPPED, FAILED}.
// At most one stage per protocol is IN_PROGRESS.
type StageEngine struct {
	*core
}

// transition locates stageID, runs fn on it inside the protocol's
// transaction and stores the result.
func (e *StageEngine) transition(ctx context.Context, stageID string, fn func(tx store.Tx, ob *outbox, st *model.StageInstance, now time.Time) error) (*model.StageInstance, error) {
	protocolID, err := e.store.LocateStage(ctx, stageID)
	if err != nil {
		return nil, err
	}

	var out model.StageInstance
	err = e.update(ctx, protocolID, func(tx store.Tx, ob *outbox) error {
		if err := ensureOpen(tx.Protocol()); err != nil {
			return err
		}
		stages, err := tx.Stages()
		if err != nil {
			return err
		}
		st := findStage(stages, stageID)
		if st == nil {
			return model.NewNotFoundError(fmt.Sprintf("stage %q not found", stageID))
		}
		now := e.now()
		if err := fn(tx, ob, st, now); err != nil {
			return err
		}
		st.UpdatedAt = now
		if err := tx.PutStage(*st); err != nil {
			return err
		}
		out = *st
		return settle(tx, ob, now)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func findStage(stages []model.StageInstance, id string) *model.StageInstance {
	for i := range stages {
		if stages[i].ID == id {
			return &stages[i]
		}
	}
	return nil
}

func stageEvent(ob *outbox, eventType string, st *model.StageInstance, extra map[string]any) {
	data := map[string]any{
		"status": st.Status,
		"order":  st.Order,
		"name":   st.Name,
	}
	for k, v := range extra {
		data[k] = v
	}
	ob.emit(eventType, st.ProtocolID, st.ID, data)
}

// Start moves a PENDING stage to IN_PROGRESS. It fails with
// ANOTHER_STAGE_ACTIVE while any other stage of the protocol is in progress.
func (e *StageEngine) Start(ctx context.Context, stageID string) (stage *model.StageInstance, err error) {
	ctx, span := observability.StartSpan(ctx, "stage.start", observability.AttrStageID.String(stageID))
	defer func() { observability.EndSpanWithError(span, err) }()

	actor := model.ActorFrom(ctx)
	return e.transition(ctx, stageID, func(tx store.Tx, ob *outbox, st *model.StageInstance, now time.Time) error {
		if st.Status != model.StagePending {
			return model.NewInvalidTransitionError("stage", st.Status, "start")
		}
		stages, err := tx.Stages()
		if err != nil {
			return err
		}
		for _, other := range stages {
			if other.ID != st.ID && other.Status == model.StageInProgress {
				return model.NewAnotherStageActiveError(other.Name)
			}
		}

		st.Status = model.StageInProgress
		st.StartedAt = &now
		st.StartedBy = actor
		if st.SLAWorkingDays > 0 {
			due, err := calendar.AddBusinessDays(e.cal, now, st.SLAWorkingDays)
			if err != nil {
				return err
			}
			st.DueDate = &due
		}
		stageEvent(ob, model.EventStageStarted, st, nil)
		return nil
	})
}

// Complete moves an IN_PROGRESS stage to COMPLETED once its conditions hold.
// Unmet conditions fail with PRECONDITION_FAILED listing the missing items.
func (e *StageEngine) Complete(ctx context.Context, stageID, result, notes string) (stage *model.StageInstance, err error) {
	ctx, span := observability.StartSpan(ctx, "stage.complete", observability.AttrStageID.String(stageID))
	defer func() { observability.EndSpanWithError(span, err) }()

	return e.transition(ctx, stageID, func(tx store.Tx, ob *outbox, st *model.StageInstance, now time.Time) error {
		if st.Status != model.StageInProgress {
			return model.NewInvalidTransitionError("stage", st.Status, "complete")
		}
		check, err := e.check(tx, *st)
		if err != nil {
			return err
		}
		if !check.Valid {
			return model.NewPreconditionFailedError(check.MissingItems)
		}

		st.Status = model.StageCompleted
		st.CompletedAt = &now
		st.Result = result
		st.Notes = notes
		stageEvent(ob, model.EventStageCompleted, st, map[string]any{"result": result})
		return nil
	})
}

// Skip moves an IN_PROGRESS stage to SKIPPED without checking conditions.
func (e *StageEngine) Skip(ctx context.Context, stageID, reason string) (stage *model.StageInstance, err error) {
	ctx, span := observability.StartSpan(ctx, "stage.skip", observability.AttrStageID.String(stageID))
	defer func() { observability.EndSpanWithError(span, err) }()

	return e.transition(ctx, stageID, func(tx store.Tx, ob *outbox, st *model.StageInstance, now time.Time) error {
		if st.Status != model.StageInProgress {
			return model.NewInvalidTransitionError("stage", st.Status, "skip")
		}
		st.Status = model.StageSkipped
		st.SkippedAt = &now
		st.Reason = reason
		stageEvent(ob, model.EventStageSkipped, st, map[string]any{"reason": reason})
		return nil
	})
}

// Fail moves an IN_PROGRESS stage to FAILED without checking conditions. A
// failed stage keeps the protocol from completing.
func (e *StageEngine) Fail(ctx context.Context, stageID, reason string) (stage *model.StageInstance, err error) {
	ctx, span := observability.StartSpan(ctx, "stage.fail", observability.AttrStageID.String(stageID))
	defer func() { observability.EndSpanWithError(span, err) }()

	return e.transition(ctx, stageID, func(tx store.Tx, ob *outbox, st *model.StageInstance, now time.Time) error {
		if st.Status != model.StageInProgress {
			return model.NewInvalidTransitionError("stage", st.Status, "fail")
		}
		st.Status = model.StageFailed
		st.FailedAt = &now
		st.Reason = reason
		stageEvent(ob, model.EventStageFailed, st, map[string]any{"reason": reason})
		return nil
	})
}

func (e *StageEngine) check(tx store.Tx, st model.StageInstance) (model.ConditionCheck, error) {
	docs, err := tx.Documents()
	if err != nil {
		return model.ConditionCheck{}, err
	}
	pendings, err := tx.Pendings()
	if err != nil {
		return model.ConditionCheck{}, err
	}
	return evaluate(tx.Protocol(), st, docs, pendings), nil
}

// ValidateConditions reports whether stageID could be completed now.
func (e *StageEngine) ValidateConditions(ctx context.Context, stageID string) (*model.ConditionCheck, error) {
	protocolID, err := e.store.LocateStage(ctx, stageID)
	if err != nil {
		return nil, err
	}
	var out model.ConditionCheck
	err = e.view(ctx, protocolID, func(tx store.Tx) error {
		stages, err := tx.Stages()
		if err != nil {
			return err
		}
		st := findStage(stages, stageID)
		if st == nil {
			return model.NewNotFoundError(fmt.Sprintf("stage %q not found", stageID))
		}
		out, err = e.check(tx, *st)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// List returns the stages of protocolID ordered by Order.
func (e *StageEngine) List(ctx context.Context, protocolID string) ([]model.StageInstance, error) {
	var out []model.StageInstance
	err := e.view(ctx, protocolID, func(tx store.Tx) error {
		var err error
		out, err = tx.Stages()
		return err
	})
	return out, err
}

// Current returns the IN_PROGRESS stage of protocolID, or nil.
func (e *StageEngine) Current(ctx context.Context, protocolID string) (*model.StageInstance, error) {
	stages, err := e.List(ctx, protocolID)
	if err != nil {
		return nil, err
	}
	for i := range stages {
		if stages[i].Status == model.StageInProgress {
			return &stages[i], nil
		}
	}
	return nil, nil
}

// AllCompleted reports whether every stage of protocolID is COMPLETED or
// SKIPPED. A protocol without stages is not complete.
func (e *StageEngine) AllCompleted(ctx context.Context, protocolID string) (bool, error) {
	stages, err := e.List(ctx, protocolID)
	if err != nil {
		return false, err
	}
	return allDone(stages), nil
}

// CountByStatus tallies the stages of protocolID by status.
func (e *StageEngine) CountByStatus(ctx context.Context, protocolID string) (*model.StageCounts, error) {
	stages, err := e.List(ctx, protocolID)
	if err != nil {
		return nil, err
	}
	counts := &model.StageCounts{Total: len(stages), ByStatus: make(map[string]int, len(model.StageStatuses))}
	for _, s := range model.StageStatuses {
		counts.ByStatus[s] = 0
	}
	for _, s := range stages {
		counts.ByStatus[s.Status]++
	}
	return counts, nil
}
