package models

import (
	"time"
)

const (
	ProximityUnknown = "unknown"
	ProximityInside  = "inside"
	ProximityOutside = "outside"
)

// TrackingState is the transition detector's memory for a single job.
type TrackingState struct {
	JobID              uint       `json:"job_id" gorm:"primaryKey;autoIncrement:false"`
	UpdatedAt          time.Time  `json:"updated_at"`
	State              string     `json:"state" gorm:"size:8;not null;default:unknown"`
	LastSampleID       uint       `json:"last_sample_id"`
	LastSampleAt       time.Time  `json:"last_sample_at"`
	LastDistanceMeters float64    `json:"last_distance_meters"`
	LastEventID        uint       `json:"last_event_id,omitempty"`
	LastEventType      string     `json:"last_event_type,omitempty" gorm:"size:8"`
	LastEventAt        *time.Time `json:"last_event_at,omitempty"`
	AbandonedAt        *time.Time `json:"abandoned_at,omitempty"`
}

func (TrackingState) TableName() string {
	return "geofence_states"
}
