package lifecycle

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/digiurban/lifecycle/internal/definition"
	"github.com/digiurban/lifecycle/internal/observability"
	"github.com/digiurban/lifecycle/internal/store"
	"github.com/digiurban/lifecycle/model"
)

// WorkflowService exposes the definition registry and instantiates a
// workflow's stages on a protocol.
type WorkflowService struct {
	*core
}

// GetWorkflow returns a copy of the definition registered for moduleType.
func (s *WorkflowService) GetWorkflow(moduleType string) (*model.WorkflowDefinition, error) {
	def, ok := s.registry.GetWorkflow(moduleType)
	if !ok {
		return nil, model.NewNotFoundError(fmt.Sprintf("workflow %q not found", moduleType))
	}
	return def, nil
}

// ListWorkflows returns every registered definition ordered by module type.
func (s *WorkflowService) ListWorkflows() []model.WorkflowDefinition {
	return s.registry.All()
}

// WorkflowStats summarizes every registered definition.
func (s *WorkflowService) WorkflowStats() []model.WorkflowStats {
	return s.registry.Stats()
}

// SaveWorkflow validates def and creates or replaces it. Protocols that
// already applied the previous version keep their stages.
func (s *WorkflowService) SaveWorkflow(def model.WorkflowDefinition) (*model.WorkflowDefinition, error) {
	if errs := definition.NewValidator().ValidateOne(def); len(errs) > 0 {
		details := make([]model.FieldError, len(errs))
		for i, e := range errs {
			details[i] = model.FieldError{Field: e.Path, Code: e.Code, Message: e.Message}
		}
		return nil, model.NewValidationError(details)
	}
	s.registry.Put(def)
	s.metrics.SetDefinitionsLoaded(s.registry.Len())
	return s.GetWorkflow(def.ModuleType)
}

// DeleteWorkflow removes the definition for moduleType.
func (s *WorkflowService) DeleteWorkflow(moduleType string) error {
	if !s.registry.Remove(moduleType) {
		return model.NewNotFoundError(fmt.Sprintf("workflow %q not found", moduleType))
	}
	s.metrics.SetDefinitionsLoaded(s.registry.Len())
	return nil
}

// ApplyWorkflow creates the stages of moduleType's workflow on protocolID
// and starts its SLA clock if none exists. It fails with ALREADY_APPLIED
// when the protocol has stages.
func (s *WorkflowService) ApplyWorkflow(ctx context.Context, moduleType, protocolID string) (stages []model.StageInstance, err error) {
	ctx, span := observability.StartSpan(ctx, "workflow.apply",
		observability.AttrProtocolID.String(protocolID),
		observability.AttrModuleType.String(moduleType),
	)
	defer func() { observability.EndSpanWithError(span, err) }()

	def, ok := s.registry.GetWorkflow(moduleType)
	if !ok {
		return nil, model.NewUnknownModuleTypeError(moduleType)
	}

	err = s.update(ctx, protocolID, func(tx store.Tx, ob *outbox) error {
		p := tx.Protocol()
		if err := ensureOpen(p); err != nil {
			return err
		}
		if p.ModuleType != "" && p.ModuleType != moduleType {
			return model.NewFieldError("moduleType", "MISMATCH",
				fmt.Sprintf("protocol belongs to module type %q", p.ModuleType))
		}
		var err error
		stages, err = s.apply(tx, ob, def)
		return err
	})
	if err != nil {
		return nil, err
	}
	return stages, nil
}

// apply instantiates def on the protocol in tx. Shared by ApplyWorkflow and
// ProtocolService.Open.
func (s *WorkflowService) apply(tx store.Tx, ob *outbox, def *model.WorkflowDefinition) ([]model.StageInstance, error) {
	p := tx.Protocol()

	existing, err := tx.Stages()
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, model.NewAlreadyAppliedError(p.ID)
	}

	now := s.now()
	stages := make([]model.StageInstance, len(def.Stages))
	for i, tmpl := range def.Stages {
		st := model.StageInstance{
			ID:                   uuid.New().String(),
			ProtocolID:           p.ID,
			Order:                i + 1,
			Name:                 tmpl.Name,
			Status:               model.StagePending,
			SLAWorkingDays:       tmpl.SLAWorkingDays,
			RequiredDocuments:    append([]string(nil), tmpl.RequiredDocuments...),
			CompletionConditions: append([]model.StageCondition(nil), tmpl.CompletionConditions...),
			CanSkip:              tmpl.CanSkip,
			CreatedAt:            now,
			UpdatedAt:            now,
		}
		if err := tx.PutStage(st); err != nil {
			return nil, err
		}
		stages[i] = st
	}

	if p.ModuleType == "" {
		p.ModuleType = def.ModuleType
		p.UpdatedAt = now
		if err := tx.SetProtocol(p); err != nil {
			return nil, err
		}
	}
	ob.emit(model.EventWorkflowApplied, p.ID, p.ID, map[string]any{
		"moduleType": def.ModuleType,
		"stages":     len(stages),
		"checksum":   def.Checksum,
	})

	rec, err := tx.SLA()
	if err != nil {
		return nil, err
	}
	if rec == nil && def.DefaultSLA > 0 {
		sla, err := newSLA(s.cal, p.ID, def.DefaultSLA, now)
		if err != nil {
			return nil, err
		}
		s.refreshSLA(&sla, now)
		if err := tx.PutSLA(sla); err != nil {
			return nil, err
		}
		ob.emit(model.EventSLACreated, p.ID, sla.ID, map[string]any{
			"workingDays":     sla.WorkingDays,
			"expectedEndDate": sla.ExpectedEndDate,
		})
	}
	return stages, nil
}
