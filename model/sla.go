package model

import "time"

// SLA status constants.
const (
	SLAWithin    = "WITHIN_SLA"
	SLANearDue   = "NEAR_DUE"
	SLAOverdue   = "OVERDUE"
	SLAPaused    = "PAUSED"
	SLACompleted = "COMPLETED"
)

// SLARecord is the service-level clock of one protocol.
type SLARecord struct {
	ID              string     `json:"id"`
	ProtocolID      string     `json:"protocolId"`
	StartDate       time.Time  `json:"startDate"`
	ExpectedEndDate time.Time  `json:"expectedEndDate"`
	ActualEndDate   *time.Time `json:"actualEndDate,omitempty"`
	WorkingDays     int        `json:"workingDays"`
	CalendarDays    int        `json:"calendarDays"`
	IsPaused        bool       `json:"isPaused"`
	PausedAt        *time.Time `json:"pausedAt,omitempty"`
	ResumedAt       *time.Time `json:"resumedAt,omitempty"`
	PausedReason    string     `json:"pausedReason,omitempty"`
	TotalPausedDays int        `json:"totalPausedDays"`
	IsOverdue       bool       `json:"isOverdue"`
	CompletedLate   bool       `json:"completedLate"`
	Status          string     `json:"status"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// IsClosed reports whether the SLA clock has been stopped for good.
func (r *SLARecord) IsClosed() bool {
	return r.ActualEndDate != nil
}

// SLAView is an SLARecord with values derived at read time.
type SLAView struct {
	SLARecord
	ProgressPercent float64 `json:"progressPercent"`
	DaysRemaining   int     `json:"daysRemaining"`
}

// SLAStats aggregates SLA outcomes across protocols.
type SLAStats struct {
	Total                 int     `json:"total"`
	Completed             int     `json:"completed"`
	AverageCompletionDays float64 `json:"averageCompletionDays"`
	OnTimeRate            float64 `json:"onTimeRate"`
	OverdueRate           float64 `json:"overdueRate"`
	PausedCount           int     `json:"pausedCount"`
}

// SLAFilter selects SLA records across protocols.
type SLAFilter struct {
	OpenOnly bool
}
