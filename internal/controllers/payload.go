package controllers

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"landscape_tracker/internal/tracking"
)

// SamplePayload is the JSON a landscaper's device sends, over HTTP or the
// report WebSocket.
type SamplePayload struct {
	ActorID   uint      `json:"actor_id"`
	JobID     *uint     `json:"job_id"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Speed     *float64  `json:"speed"`    // m/s
	Accuracy  float64   `json:"accuracy"` // GPS accuracy in meters
	Timestamp time.Time `json:"timestamp"`
}

// UnmarshalJSON accepts RFC3339 timestamps with or without a zone; a
// missing zone means UTC.
func (p *SamplePayload) UnmarshalJSON(data []byte) error {
	type alias SamplePayload
	aux := &struct {
		Timestamp string `json:"timestamp"`
		*alias
	}{alias: (*alias)(p)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	ts := strings.TrimSpace(aux.Timestamp)
	if ts == "" {
		p.Timestamp = time.Time{}
		return nil
	}
	if !hasZone(ts) {
		ts += "Z"
	}

	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"raw_timestamp": aux.Timestamp,
			"parse_error":   err,
		}).Debug("Failed to parse sample timestamp.")
		return fmt.Errorf("invalid timestamp %q: %w", aux.Timestamp, err)
	}
	p.Timestamp = t
	return nil
}

func hasZone(ts string) bool {
	if strings.HasSuffix(ts, "Z") || strings.HasSuffix(ts, "z") {
		return true
	}
	// A numeric offset looks like +03:00 or -05:00 at the end.
	if len(ts) < 6 {
		return false
	}
	tail := ts[len(ts)-6:]
	return (tail[0] == '+' || tail[0] == '-') && tail[3] == ':'
}

func (p SamplePayload) input(actorID uint) tracking.SampleInput {
	return tracking.SampleInput{
		ActorID:   actorID,
		JobID:     p.JobID,
		Latitude:  p.Latitude,
		Longitude: p.Longitude,
		Speed:     p.Speed,
		Accuracy:  p.Accuracy,
		Timestamp: p.Timestamp,
	}
}

// GeofencePayload is the body of PUT /jobs/:id/geofence.
type GeofencePayload struct {
	CenterLat    *float64 `json:"center_lat" binding:"required"`
	CenterLng    *float64 `json:"center_lng" binding:"required"`
	RadiusMeters *float64 `json:"radius_meters" binding:"required"`
}
