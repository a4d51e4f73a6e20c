package model

import "time"

// Stage status constants.
const (
	StagePending    = "PENDING"
	StageInProgress = "IN_PROGRESS"
	StageCompleted  = "COMPLETED"
	StageSkipped    = "SKIPPED"
	StageFailed     = "FAILED"
)

// StageStatuses lists every stage status in lifecycle order.
var StageStatuses = []string{StagePending, StageInProgress, StageCompleted, StageSkipped, StageFailed}

// StageInstance is a concrete stage of one protocol, copied from its
// template when the workflow was applied.
type StageInstance struct {
	ID                   string           `json:"id"`
	ProtocolID           string           `json:"protocolId"`
	Order                int              `json:"order"`
	Name                 string           `json:"name"`
	Status               string           `json:"status"`
	SLAWorkingDays       int              `json:"slaWorkingDays"`
	RequiredDocuments    []string         `json:"requiredDocuments,omitempty"`
	CompletionConditions []StageCondition `json:"completionConditions,omitempty"`
	CanSkip              bool             `json:"canSkip"`
	DueDate              *time.Time       `json:"dueDate,omitempty"`
	AssignedTo           string           `json:"assignedTo,omitempty"`
	StartedBy            string           `json:"startedBy,omitempty"`
	StartedAt            *time.Time       `json:"startedAt,omitempty"`
	CompletedAt          *time.Time       `json:"completedAt,omitempty"`
	SkippedAt            *time.Time       `json:"skippedAt,omitempty"`
	FailedAt             *time.Time       `json:"failedAt,omitempty"`
	Result               string           `json:"result,omitempty"`
	Notes                string           `json:"notes,omitempty"`
	Reason               string           `json:"reason,omitempty"`
	CreatedAt            time.Time        `json:"createdAt"`
	UpdatedAt            time.Time        `json:"updatedAt"`
}

// IsTerminal reports whether the stage can no longer transition.
func (s *StageInstance) IsTerminal() bool {
	return s.Status == StageCompleted || s.Status == StageSkipped || s.Status == StageFailed
}

// IsDone reports whether the stage counts toward workflow completion.
// FAILED is terminal but not done.
func (s *StageInstance) IsDone() bool {
	return s.Status == StageCompleted || s.Status == StageSkipped
}

// ConditionCheck is the outcome of evaluating a stage's completion conditions.
type ConditionCheck struct {
	Valid        bool     `json:"valid"`
	MissingItems []string `json:"missingItems"`
}

// StageCounts tallies a protocol's stages by status.
type StageCounts struct {
	Total    int            `json:"total"`
	ByStatus map[string]int `json:"byStatus"`
}
