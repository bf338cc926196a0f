package models

import (
	"time"
)

// Geofence is the circular arrival zone around a job site.
// One per job; replacing it is last-write-wins.
type Geofence struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	JobID        uint      `json:"job_id" gorm:"uniqueIndex;not null"`
	CenterLat    float64   `json:"center_lat" gorm:"not null"`
	CenterLng    float64   `json:"center_lng" gorm:"not null"`
	RadiusMeters float64   `json:"radius_meters" gorm:"not null"`

	// Center point as WKB (SRID 4326) so PostGIS tooling can read it.
	Geometry []byte `json:"-" gorm:"type:bytea"`
}

func (Geofence) TableName() string {
	return "geofences"
}
