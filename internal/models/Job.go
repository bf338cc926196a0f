package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	JobPending   = "pending"
	JobScheduled = "scheduled"
	JobAssigned  = "assigned"
	JobActive    = "active"
	JobCompleted = "completed"
	JobCancelled = "cancelled"

	// JobStatusUnknown is written on events when the job could not be read.
	JobStatusUnknown = "unknown"
)

// PreArrivalStatuses are the statuses an entry event moves forward to active.
var PreArrivalStatuses = []string{JobPending, JobScheduled, JobAssigned}

// Job is owned by the marketplace; the tracker only reads it and moves
// Status along the arrival/completion edges.
type Job struct {
	gorm.Model
	ClientID             uint       `json:"client_id" gorm:"index"`
	LandscaperID         *uint      `json:"landscaper_id,omitempty" gorm:"index"`
	Status               string     `json:"status" gorm:"size:32;not null;default:pending"`
	Address              string     `json:"address"`
	CompletionSignaledAt *time.Time `json:"completion_signaled_at,omitempty"`
}

// IsPreArrival reports whether status is one an arrival should advance.
func IsPreArrival(status string) bool {
	for _, s := range PreArrivalStatuses {
		if s == status {
			return true
		}
	}
	return false
}
