// Package core provides the domain models and interfaces shared by the
// automation engine and the job lifecycle state machine.
package core

import (
	"time"
)

// JobState represents a position in the job lifecycle.
type JobState string

const (
	StateDraft      JobState = "draft"
	StateScheduled  JobState = "scheduled"
	StateInProgress JobState = "in_progress"
	StateOnHold     JobState = "on_hold"
	StateCompleted  JobState = "completed"
	StateCancelled  JobState = "cancelled"
)

// Terminal reports whether the state has no outgoing transitions.
func (s JobState) Terminal() bool {
	return s == StateCompleted || s == StateCancelled
}

// Valid reports whether s is one of the known lifecycle states.
func (s JobState) Valid() bool {
	switch s {
	case StateDraft, StateScheduled, StateInProgress, StateOnHold, StateCompleted, StateCancelled:
		return true
	}
	return false
}

// ChangeSource records who drove a state transition.
type ChangeSource string

const (
	SourceManual    ChangeSource = "manual"
	SourceAutomated ChangeSource = "automated"
	SourceSystem    ChangeSource = "system"
)

// Deposit status values. A job entering scheduled must not still be
// unpaid while a deposit is required.
const (
	DepositUnpaid   = "unpaid"
	DepositPending  = "pending"
	DepositPaid     = "paid"
	DepositWaived   = "waived"
	DepositRefunded = "refunded"
)

// Job is the lifecycle-managed work record. Status is mutated only
// through the state machine; direct writes elsewhere are forbidden.
type Job struct {
	ID                string     `gorm:"primaryKey;size:36" json:"id"`
	ClientID          string     `gorm:"index;size:36" json:"client_id"`
	Status            JobState   `gorm:"index;size:20;default:'draft'" json:"status"`
	LastStateChangeAt *time.Time `json:"last_state_change_at,omitempty"`
	JHARequired       bool       `gorm:"default:false" json:"jha_required"`
	JHAAcknowledgedAt *time.Time `json:"jha_acknowledged_at,omitempty"`
	DepositRequired   bool       `gorm:"default:false" json:"deposit_required"`
	DepositStatus     string     `gorm:"size:20" json:"deposit_status,omitempty"`
	PermitRequired    bool       `gorm:"default:false" json:"permit_required"`
	PermitStatus      string     `gorm:"size:20" json:"permit_status,omitempty"`
	CreatedAt         time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime" json:"updated_at"`

	LineItems []JobLineItem `gorm:"foreignKey:JobID" json:"line_items,omitempty"`
}

// JobLineItem is a billable line carried by a job. The completed-state
// hook copies these onto the draft invoice.
type JobLineItem struct {
	ID          string `gorm:"primaryKey;size:36" json:"id"`
	JobID       string `gorm:"index;size:36;not null" json:"job_id"`
	Description string `gorm:"size:500" json:"description"`
	Quantity    int    `gorm:"default:1" json:"quantity"`
	UnitCents   int64  `gorm:"default:0" json:"unit_cents"`
}

// JobStateTransition is one row of the append-only audit log. Exactly
// one row is written per successful transition.
type JobStateTransition struct {
	ID            string       `gorm:"primaryKey;size:36" json:"id"`
	JobID         string       `gorm:"index;size:36;not null" json:"job_id"`
	FromState     JobState     `gorm:"size:20;not null" json:"from_state"`
	ToState       JobState     `gorm:"size:20;not null" json:"to_state"`
	ChangedBy     string       `gorm:"size:36" json:"changed_by,omitempty"`
	ChangedByRole string       `gorm:"size:50" json:"changed_by_role,omitempty"`
	ChangeSource  ChangeSource `gorm:"size:20;default:'manual'" json:"change_source"`
	Reason        string       `gorm:"size:500" json:"reason,omitempty"`
	Notes         string       `gorm:"type:text" json:"notes,omitempty"`
	CreatedAt     time.Time    `gorm:"autoCreateTime" json:"created_at"`
}

// FollowUpTask is the record inserted by the create_task action.
type FollowUpTask struct {
	ID          string     `gorm:"primaryKey;size:36" json:"id"`
	Title       string     `gorm:"size:255;not null" json:"title"`
	Description string     `gorm:"type:text" json:"description,omitempty"`
	EntityType  string     `gorm:"size:50" json:"entity_type"`
	EntityID    string     `gorm:"size:36" json:"entity_id"`
	AssignedTo  string     `gorm:"size:36" json:"assigned_to,omitempty"`
	DueAt       *time.Time `json:"due_at,omitempty"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
}
