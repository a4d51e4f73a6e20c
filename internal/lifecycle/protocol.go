package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/digiurban/lifecycle/internal/formschema"
	"github.com/digiurban/lifecycle/internal/observability"
	"github.com/digiurban/lifecycle/internal/store"
	"github.com/digiurban/lifecycle/model"
)

// ProtocolService opens protocols and manages the records that belong to
// the protocol as a whole.
type ProtocolService struct {
	*core
}

// OpenInput describes a new protocol. When FormSchema is set, Data is
// validated against it before anything is stored.
type OpenInput struct {
	ID         string          `json:"id,omitempty"`
	ModuleType string          `json:"moduleType,omitempty"`
	Data       map[string]any  `json:"data,omitempty"`
	FormSchema json.RawMessage `json:"formSchema,omitempty"`
}

// Open creates a protocol. With a module type, its workflow is applied and
// the SLA clock started in the same transaction.
func (s *ProtocolService) Open(ctx context.Context, in OpenInput) (view *model.ProtocolView, err error) {
	ctx, span := observability.StartSpan(ctx, "protocol.open", observability.AttrModuleType.String(in.ModuleType))
	defer func() { observability.EndSpanWithError(span, err) }()

	// 1. Validate the form payload.
	data := in.Data
	if len(in.FormSchema) > 0 {
		res, err := formschema.ValidateRaw(in.FormSchema, in.Data)
		if err != nil {
			return nil, model.NewFieldError("formSchema", "INVALID", err.Error())
		}
		s.metrics.RecordFormValidation(res.Valid)
		if !res.Valid {
			return nil, res.Envelope()
		}
		data = res.Data
	}

	// 2. Resolve the workflow.
	var def *model.WorkflowDefinition
	if in.ModuleType != "" {
		var ok bool
		if def, ok = s.registry.GetWorkflow(in.ModuleType); !ok {
			return nil, model.NewUnknownModuleTypeError(in.ModuleType)
		}
	}

	// 3. Insert the protocol together with its stages and SLA.
	now := s.now()
	p := model.Protocol{
		ID:         strings.TrimSpace(in.ID),
		ModuleType: in.ModuleType,
		Status:     model.ProtocolOpen,
		Data:       data,
		CreatedBy:  model.ActorFrom(ctx),
		CreatedAt:  now,
		UpdatedAt:  now,
		Version:    1,
	}
	if p.ID == "" {
		p.ID = uuid.New().String()
	}

	ob := &outbox{}
	wf := &WorkflowService{core: s.core}
	err = s.store.Insert(ctx, p, func(tx store.Tx) error {
		ob.reset()
		ob.emit(model.EventProtocolOpened, p.ID, p.ID, map[string]any{"moduleType": p.ModuleType})
		if def == nil {
			return nil
		}
		_, err := wf.apply(tx, ob, def)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.flush(ctx, ob)

	return s.Get(ctx, p.ID)
}

// Get returns the protocol with its stages, SLA, pendings and documents.
func (s *ProtocolService) Get(ctx context.Context, protocolID string) (*model.ProtocolView, error) {
	var out model.ProtocolView
	err := s.view(ctx, protocolID, func(tx store.Tx) error {
		out.Protocol = tx.Protocol()

		var err error
		if out.Stages, err = tx.Stages(); err != nil {
			return err
		}
		if out.Pendings, err = tx.Pendings(); err != nil {
			return err
		}
		if out.Documents, err = tx.Documents(); err != nil {
			return err
		}
		rec, err := tx.SLA()
		if err != nil {
			return err
		}
		if rec != nil {
			out.SLA = s.slaView(*rec, s.now())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if out.Stages == nil {
		out.Stages = []model.StageInstance{}
	}
	if out.Pendings == nil {
		out.Pendings = []model.PendingItem{}
	}
	if out.Documents == nil {
		out.Documents = []model.Document{}
	}
	return &out, nil
}

// DocumentInput describes a document attached to a protocol.
type DocumentInput struct {
	DocumentType string `json:"documentType"`
	Name         string `json:"name,omitempty"`
}

// AddDocument attaches a document awaiting review to protocolID.
func (s *ProtocolService) AddDocument(ctx context.Context, protocolID string, in DocumentInput) (*model.Document, error) {
	if strings.TrimSpace(in.DocumentType) == "" {
		return nil, model.NewFieldError("documentType", "REQUIRED", "documentType is required")
	}
	var out model.Document
	err := s.update(ctx, protocolID, func(tx store.Tx, ob *outbox) error {
		if err := ensureOpen(tx.Protocol()); err != nil {
			return err
		}
		out = model.Document{
			ID:           uuid.New().String(),
			ProtocolID:   protocolID,
			DocumentType: strings.TrimSpace(in.DocumentType),
			Name:         in.Name,
			Status:       model.DocumentPending,
			CreatedAt:    s.now(),
		}
		if err := tx.PutDocument(out); err != nil {
			return err
		}
		ob.emit(model.EventDocumentAdded, protocolID, out.ID, map[string]any{"documentType": out.DocumentType})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ReviewDocument approves or rejects a document awaiting review.
func (s *ProtocolService) ReviewDocument(ctx context.Context, documentID string, approved bool) (doc *model.Document, err error) {
	ctx, span := observability.StartSpan(ctx, "document.review", observability.AttrDocumentID.String(documentID))
	defer func() { observability.EndSpanWithError(span, err) }()

	protocolID, err := s.store.LocateDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	actor := model.ActorFrom(ctx)
	var out model.Document
	err = s.update(ctx, protocolID, func(tx store.Tx, ob *outbox) error {
		docs, err := tx.Documents()
		if err != nil {
			return err
		}
		var found *model.Document
		for i := range docs {
			if docs[i].ID == documentID {
				found = &docs[i]
				break
			}
		}
		if found == nil {
			return model.NewNotFoundError(fmt.Sprintf("document %q not found", documentID))
		}
		if found.Status != model.DocumentPending {
			return model.NewInvalidTransitionError("document", found.Status, "review")
		}
		now := s.now()
		found.Status = model.DocumentRejected
		if approved {
			found.Status = model.DocumentApproved
		}
		found.ReviewedBy = actor
		found.ReviewedAt = &now
		if err := tx.PutDocument(*found); err != nil {
			return err
		}
		out = *found
		ob.emit(model.EventDocumentReviewed, protocolID, out.ID, map[string]any{
			"documentType": out.DocumentType,
			"status":       out.Status,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Purge deletes the protocol and everything recorded for it.
func (s *ProtocolService) Purge(ctx context.Context, protocolID string) error {
	if err := s.store.Delete(ctx, protocolID); err != nil {
		return err
	}
	ob := &outbox{}
	ob.emit(model.EventProtocolPurged, protocolID, protocolID, nil)
	s.flush(ctx, ob)
	return nil
}

// Sweep refreshes the SLA of every open protocol and expires due pendings,
// including those left on settled protocols. One failing protocol does not
// stop the pass.
func (s *ProtocolService) Sweep(ctx context.Context) (report *model.SweepReport, err error) {
	ctx, span := observability.StartSpan(ctx, "lifecycle.sweep")
	defer func() { observability.EndSpanWithError(span, err) }()

	start := time.Now()
	logger := observability.LoggerFrom(ctx, s.logger)

	ids, err := s.store.SweepProtocolIDs(ctx)
	if err != nil {
		s.metrics.RecordSweep("error", time.Since(start))
		return nil, err
	}

	report = &model.SweepReport{Protocols: len(ids)}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			s.metrics.RecordSweep("cancelled", time.Since(start))
			return report, err
		}
		var refreshed, overdue, expiredCount int
		err := s.update(ctx, id, func(tx store.Tx, ob *outbox) error {
			refreshed, overdue, expiredCount = 0, 0, 0
			now := s.now()
			rec, err := tx.SLA()
			if err != nil {
				return err
			}
			if rec != nil && !rec.IsClosed() {
				wasOverdue := rec.IsOverdue
				s.refreshSLA(rec, now)
				if rec.IsOverdue && !wasOverdue {
					ob.emit(model.EventSLAOverdue, id, rec.ID, map[string]any{
						"expectedEndDate": rec.ExpectedEndDate,
					})
				}
				rec.UpdatedAt = now
				if err := tx.PutSLA(*rec); err != nil {
					return err
				}
				refreshed = 1
				if rec.IsOverdue {
					overdue = 1
				}
			}
			expired, err := expire(tx, ob, now)
			if err != nil {
				return err
			}
			expiredCount = len(expired)
			return settle(tx, ob, now)
		})
		if err != nil {
			report.Errors++
			logger.Warn("sweep failed for protocol", zap.String("protocol_id", id), zap.Error(err))
			continue
		}
		report.SLAsRefreshed += refreshed
		report.SLAsOverdue += overdue
		report.PendingsExpired += expiredCount
	}

	s.metrics.SetSLAOverdue(report.SLAsOverdue)
	s.metrics.RecordSweep("ok", time.Since(start))
	logger.Info("lifecycle sweep finished",
		zap.Int("protocols", report.Protocols),
		zap.Int("slas_overdue", report.SLAsOverdue),
		zap.Int("pendings_expired", report.PendingsExpired),
		zap.Int("errors", report.Errors),
	)
	return report, nil
}

// RunSweeper calls Sweep every interval until ctx is cancelled.
func (s *ProtocolService) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("lifecycle sweep failed", zap.Error(err))
			}
		}
	}
}
