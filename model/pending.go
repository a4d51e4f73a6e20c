package model

import "time"

// Pending type constants.
const (
	PendingDocument    = "DOCUMENT"
	PendingInformation = "INFORMATION"
	PendingCorrection  = "CORRECTION"
	PendingValidation  = "VALIDATION"
	PendingPayment     = "PAYMENT"
)

// Pending status constants.
const (
	PendingOpen       = "OPEN"
	PendingInProgress = "IN_PROGRESS"
	PendingResolved   = "RESOLVED"
	PendingCancelled  = "CANCELLED"
	PendingExpired    = "EXPIRED"
)

// Pending priority constants.
const (
	PriorityLow    = "LOW"
	PriorityMedium = "MEDIUM"
	PriorityHigh   = "HIGH"
	PriorityUrgent = "URGENT"
)

// PendingTypes lists the built-in pending types.
var PendingTypes = []string{PendingDocument, PendingInformation, PendingCorrection, PendingValidation, PendingPayment}

// PendingStatuses lists every pending status.
var PendingStatuses = []string{PendingOpen, PendingInProgress, PendingResolved, PendingCancelled, PendingExpired}

// PendingPriorities lists the accepted priorities.
var PendingPriorities = []string{PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent}

// PendingItem is an outstanding requirement raised against a protocol.
type PendingItem struct {
	ID           string         `json:"id"`
	ProtocolID   string         `json:"protocolId"`
	Type         string         `json:"type"`
	Title        string         `json:"title"`
	Description  string         `json:"description,omitempty"`
	Priority     string         `json:"priority"`
	Status       string         `json:"status"`
	IsBlocking   bool           `json:"isBlocking"`
	DueDate      *time.Time     `json:"dueDate,omitempty"`
	Details      PendingDetails `json:"details"`
	CreatedBy    string         `json:"createdBy,omitempty"`
	AssignedTo   string         `json:"assignedTo,omitempty"`
	ResolvedAt   *time.Time     `json:"resolvedAt,omitempty"`
	ResolvedBy   string         `json:"resolvedBy,omitempty"`
	Resolution   string         `json:"resolution,omitempty"`
	CancelledAt  *time.Time     `json:"cancelledAt,omitempty"`
	CancelReason string         `json:"cancelReason,omitempty"`
	ExpiredAt    *time.Time     `json:"expiredAt,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

// IsActive reports whether the pending is still OPEN or IN_PROGRESS.
func (p *PendingItem) IsActive() bool {
	return p.Status == PendingOpen || p.Status == PendingInProgress
}

// PendingDetails carries the type-specific payload of a pending. At most one
// variant is set and it must match the pending's Type.
type PendingDetails struct {
	Document    *DocumentRequest    `json:"document,omitempty"`
	Information *InformationRequest `json:"information,omitempty"`
	Correction  *CorrectionRequest  `json:"correction,omitempty"`
	Validation  *ValidationRequest  `json:"validation,omitempty"`
	Payment     *PaymentRequest     `json:"payment,omitempty"`
	Metadata    map[string]string   `json:"metadata,omitempty"`
}

// DocumentRequest asks the citizen for a document.
type DocumentRequest struct {
	DocumentType string `json:"documentType"`
	Instructions string `json:"instructions,omitempty"`
}

// InformationRequest asks the citizen to answer questions.
type InformationRequest struct {
	Questions []string `json:"questions"`
}

// CorrectionRequest asks the citizen to fix submitted fields.
type CorrectionRequest struct {
	Fields       []string `json:"fields"`
	Instructions string   `json:"instructions,omitempty"`
}

// ValidationRequest asks staff to verify a checklist.
type ValidationRequest struct {
	Checklist []string `json:"checklist"`
}

// PaymentRequest asks the citizen to pay a fee.
type PaymentRequest struct {
	AmountCents int64  `json:"amountCents"`
	Currency    string `json:"currency"`
	Reference   string `json:"reference,omitempty"`
}

// Variant returns the pending type implied by the set variant, or "" when no
// variant is set. ok is false when more than one variant is set.
func (d PendingDetails) Variant() (kind string, ok bool) {
	n := 0
	if d.Document != nil {
		kind, n = PendingDocument, n+1
	}
	if d.Information != nil {
		kind, n = PendingInformation, n+1
	}
	if d.Correction != nil {
		kind, n = PendingCorrection, n+1
	}
	if d.Validation != nil {
		kind, n = PendingValidation, n+1
	}
	if d.Payment != nil {
		kind, n = PendingPayment, n+1
	}
	if n > 1 {
		return "", false
	}
	return kind, true
}

// PendingCounts tallies a protocol's pendings by status.
type PendingCounts struct {
	Total    int            `json:"total"`
	ByStatus map[string]int `json:"byStatus"`
}
