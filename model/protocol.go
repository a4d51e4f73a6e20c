package model

import "time"

// Protocol status constants.
const (
	ProtocolOpen      = "OPEN"
	ProtocolCompleted = "COMPLETED"
)

// Document review status constants.
const (
	DocumentPending  = "PENDING"
	DocumentApproved = "APPROVED"
	DocumentRejected = "REJECTED"
)

// Protocol is a citizen request tracked through its workflow.
type Protocol struct {
	ID          string         `json:"id"`
	ModuleType  string         `json:"moduleType"`
	Status      string         `json:"status"`
	Data        map[string]any `json:"data,omitempty"`
	CreatedBy   string         `json:"createdBy,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
	CompletedAt *time.Time     `json:"completedAt,omitempty"`
	Version     int            `json:"version"`
}

// Document is a piece of evidence attached to a protocol.
type Document struct {
	ID           string     `json:"id"`
	ProtocolID   string     `json:"protocolId"`
	DocumentType string     `json:"documentType"`
	Name         string     `json:"name,omitempty"`
	Status       string     `json:"status"`
	ReviewedBy   string     `json:"reviewedBy,omitempty"`
	ReviewedAt   *time.Time `json:"reviewedAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// ProtocolView aggregates everything recorded for one protocol.
type ProtocolView struct {
	Protocol  Protocol        `json:"protocol"`
	Stages    []StageInstance `json:"stages"`
	SLA       *SLAView        `json:"sla,omitempty"`
	Pendings  []PendingItem   `json:"pendings"`
	Documents []Document      `json:"documents"`
}

// SweepReport summarizes one pass of the periodic lifecycle sweep.
type SweepReport struct {
	Protocols       int `json:"protocols"`
	SLAsRefreshed   int `json:"slasRefreshed"`
	SLAsOverdue     int `json:"slasOverdue"`
	PendingsExpired int `json:"pendingsExpired"`
	Errors          int `json:"errors"`
}
