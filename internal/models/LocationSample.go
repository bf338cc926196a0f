package models

import (
	"time"
)

// LocationSample is one GPS report from a landscaper's device.
// Rows are append-only; only Active is flipped when a newer sample for the
// same actor supersedes this one.
type LocationSample struct {
	ID               uint      `json:"id" gorm:"primaryKey"`
	CreatedAt        time.Time `json:"created_at"`
	ActorID          uint      `json:"actor_id" gorm:"index:idx_samples_actor_time,priority:1;not null"`
	JobID            *uint     `json:"job_id,omitempty" gorm:"index"`
	Latitude         float64   `json:"latitude" gorm:"not null"`
	Longitude        float64   `json:"longitude" gorm:"not null"`
	Speed            *float64  `json:"speed,omitempty"`    // m/s
	Accuracy         float64   `json:"accuracy,omitempty"` // GPS accuracy in meters
	Bearing          float64   `json:"bearing"`            // degrees from the previous sample
	DistanceFromLast float64   `json:"distance_from_last"`
	Timestamp        time.Time `json:"timestamp" gorm:"index:idx_samples_actor_time,priority:2;not null"`
	Active           bool      `json:"active" gorm:"index"`
}

func (LocationSample) TableName() string {
	return "location_samples"
}

// HasJob reports whether the sample is tagged to a job.
func (s LocationSample) HasJob() bool {
	return s.JobID != nil && *s.JobID != 0
}
