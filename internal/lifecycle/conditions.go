package lifecycle

import (
	"strings"
	"time"

	"github.com/digiurban/lifecycle/internal/store"
	"github.com/digiurban/lifecycle/model"
)

// Prefixes of the items reported in a failed ConditionCheck.
const (
	missingDocument         = "document:"
	missingApprovedDocument = "approved_document:"
	missingField            = "field:"
	missingBlockingPending  = "blocking_pending:"
)

// evaluate checks a stage's completion conditions against the protocol's
// current records. A blocking pending always prevents completion, whether
// or not the stage lists no_blocking_pendings explicitly.
func evaluate(p model.Protocol, stage model.StageInstance, docs []model.Document, pendings []model.PendingItem) model.ConditionCheck {
	missing := []string{}
	seen := make(map[string]bool)
	add := func(item string) {
		if !seen[item] {
			seen[item] = true
			missing = append(missing, item)
		}
	}

	for _, dt := range stage.RequiredDocuments {
		if !hasDocument(docs, dt, false) {
			add(missingDocument + dt)
		}
	}

	for _, cond := range stage.CompletionConditions {
		switch cond.Kind {
		case model.ConditionDocumentApproved:
			if !hasDocument(docs, cond.DocumentType, true) {
				add(missingApprovedDocument + cond.DocumentType)
			}
		case model.ConditionFieldPresent:
			if !fieldPresent(p.Data, cond.Field) {
				add(missingField + cond.Field)
			}
		}
	}

	for _, pi := range pendings {
		if pi.IsBlocking && pi.IsActive() {
			add(missingBlockingPending + pi.ID)
		}
	}

	return model.ConditionCheck{Valid: len(missing) == 0, MissingItems: missing}
}

// hasDocument reports whether a document of type dt exists. Rejected
// documents never count; approved requires a positive review.
func hasDocument(docs []model.Document, dt string, approved bool) bool {
	for _, d := range docs {
		if d.DocumentType != dt {
			continue
		}
		if approved && d.Status == model.DocumentApproved {
			return true
		}
		if !approved && d.Status != model.DocumentRejected {
			return true
		}
	}
	return false
}

// fieldPresent resolves a dotted path in data. Nil values and blank strings
// count as absent.
func fieldPresent(data map[string]any, path string) bool {
	var cur any = data
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return false
		}
		cur, ok = m[part]
		if !ok || cur == nil {
			return false
		}
	}
	if s, ok := cur.(string); ok {
		return strings.TrimSpace(s) != ""
	}
	return true
}

func hasBlocking(pendings []model.PendingItem) bool {
	for _, p := range pendings {
		if p.IsBlocking && p.IsActive() {
			return true
		}
	}
	return false
}

func allDone(stages []model.StageInstance) bool {
	if len(stages) == 0 {
		return false
	}
	for _, s := range stages {
		if !s.IsDone() {
			return false
		}
	}
	return true
}

// settle completes the protocol and closes its SLA once every stage is done
// and no blocking pending remains. It is a no-op otherwise.
func settle(tx store.Tx, ob *outbox, now time.Time) error {
	p := tx.Protocol()
	if p.Status == model.ProtocolCompleted {
		return nil
	}

	stages, err := tx.Stages()
	if err != nil {
		return err
	}
	if !allDone(stages) {
		return nil
	}
	pendings, err := tx.Pendings()
	if err != nil {
		return err
	}
	if hasBlocking(pendings) {
		return nil
	}

	onTime := true
	rec, err := tx.SLA()
	if err != nil {
		return err
	}
	if rec != nil {
		if !rec.IsClosed() {
			closeSLA(rec, now)
			if err := tx.PutSLA(*rec); err != nil {
				return err
			}
			ob.emit(model.EventSLACompleted, p.ID, rec.ID, map[string]any{
				"completedLate": rec.CompletedLate,
			})
		}
		onTime = !rec.CompletedLate
	}

	p.Status = model.ProtocolCompleted
	p.CompletedAt = &now
	p.UpdatedAt = now
	if err := tx.SetProtocol(p); err != nil {
		return err
	}
	ob.emit(model.EventProtocolCompleted, p.ID, p.ID, map[string]any{
		"moduleType": p.ModuleType,
		"onTime":     onTime,
	})
	return nil
}

// ensureOpen rejects mutations of a completed protocol.
func ensureOpen(p model.Protocol) error {
	if p.Status == model.ProtocolCompleted {
		return model.NewProtocolCompletedError(p.ID)
	}
	return nil
}
