package model

import "time"

// Event types published after a lifecycle transition commits.
const (
	EventWorkflowApplied   = "workflow.applied"
	EventProtocolOpened    = "protocol.opened"
	EventProtocolCompleted = "protocol.completed"
	EventProtocolPurged    = "protocol.purged"
	EventStageStarted      = "stage.started"
	EventStageCompleted    = "stage.completed"
	EventStageSkipped      = "stage.skipped"
	EventStageFailed       = "stage.failed"
	EventSLACreated        = "sla.created"
	EventSLAPaused         = "sla.paused"
	EventSLAResumed        = "sla.resumed"
	EventSLACompleted      = "sla.completed"
	EventSLAOverdue        = "sla.overdue"
	EventSLADeleted        = "sla.deleted"
	EventPendingCreated    = "pending.created"
	EventPendingStarted    = "pending.started"
	EventPendingResolved   = "pending.resolved"
	EventPendingCancelled  = "pending.cancelled"
	EventPendingExpired    = "pending.expired"
	EventDocumentAdded     = "document.added"
	EventDocumentReviewed  = "document.reviewed"
)

// LifecycleEvent records one committed transition.
type LifecycleEvent struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	ProtocolID string         `json:"protocolId"`
	EntityID   string         `json:"entityId,omitempty"`
	ActorID    string         `json:"actorId,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}
