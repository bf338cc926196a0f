package models

import (
	"time"
)

const (
	EventEntry = "entry"
	EventExit  = "exit"
)

// GeofenceEvent records one boundary crossing together with the job status
// on either side of the bridge mutation it triggered.
type GeofenceEvent struct {
	ID              uint      `json:"id" gorm:"primaryKey"`
	CreatedAt       time.Time `json:"created_at" gorm:"index:idx_events_job_created,priority:2"`
	JobID           uint      `json:"job_id" gorm:"index:idx_events_job_created,priority:1;not null"`
	ActorID         uint      `json:"actor_id"`
	SampleID        uint      `json:"sample_id"`
	EventType       string    `json:"event_type" gorm:"size:8;not null"`
	StatusBefore    string    `json:"status_before" gorm:"size:32"`
	StatusAfter     string    `json:"status_after" gorm:"size:32"`
	DistanceMeters  float64   `json:"distance_meters"`
	SampleTimestamp time.Time `json:"sample_timestamp"`
}

func (GeofenceEvent) TableName() string {
	return "geofence_events"
}
