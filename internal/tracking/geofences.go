package tracking

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"landscape_tracker/internal/geo"
	"landscape_tracker/internal/hub"
	"landscape_tracker/internal/models"
)

// Recommended radius range. Values outside are accepted with a warning.
const (
	MinRecommendedRadius = 10.0
	MaxRecommendedRadius = 500.0
)

// GeofenceService validates and stores job geofences.
type GeofenceService struct {
	store     GeofenceStore
	publisher Publisher
}

// NewGeofenceService constructs a geofence service. publisher may be nil.
func NewGeofenceService(store GeofenceStore, publisher Publisher) (*GeofenceService, error) {
	if store == nil {
		return nil, errors.New("tracking: nil geofence store")
	}
	if publisher == nil {
		publisher = nopPublisher{}
	}
	return &GeofenceService{store: store, publisher: publisher}, nil
}

// Upsert creates or replaces the geofence for a job.
func (s *GeofenceService) Upsert(ctx context.Context, jobID uint, centerLat, centerLng, radiusMeters float64) (*models.Geofence, error) {
	if err := ValidateGeofence(jobID, centerLat, centerLng, radiusMeters); err != nil {
		return nil, err
	}
	if radiusMeters < MinRecommendedRadius || radiusMeters > MaxRecommendedRadius {
		logrus.WithFields(logrus.Fields{
			"job_id":        jobID,
			"radius_meters": radiusMeters,
		}).Warn("Geofence radius outside recommended range.")
	}

	wkbPoint, err := geo.PointWKB(centerLat, centerLng)
	if err != nil {
		return nil, fmt.Errorf("encode geofence center: %w", err)
	}

	fence := &models.Geofence{
		JobID:        jobID,
		CenterLat:    centerLat,
		CenterLng:    centerLng,
		RadiusMeters: radiusMeters,
		Geometry:     wkbPoint,
	}
	if err := s.store.Upsert(ctx, fence); err != nil {
		return nil, fmt.Errorf("store geofence for job %d: %w", jobID, err)
	}

	logrus.WithFields(logrus.Fields{
		"job_id":        jobID,
		"center_lat":    centerLat,
		"center_lng":    centerLng,
		"radius_meters": radiusMeters,
	}).Info("Geofence stored.")

	s.publisher.Publish(hub.Message{
		Kind:  hub.KindGeofenceUpdated,
		JobID: jobID,
		Data:  fence,
	})
	return fence, nil
}

// Get returns the job's geofence, or nil when tracking is disabled for it.
func (s *GeofenceService) Get(ctx context.Context, jobID uint) (*models.Geofence, error) {
	return s.store.Get(ctx, jobID)
}

// Lookup is Get for callers that need absence as ErrNotFound.
func (s *GeofenceService) Lookup(ctx context.Context, jobID uint) (*models.Geofence, error) {
	fence, err := s.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if fence == nil {
		return nil, fmt.Errorf("geofence for job %d: %w", jobID, ErrNotFound)
	}
	return fence, nil
}

// ValidateGeofence checks the hard geofence rules.
func ValidateGeofence(jobID uint, centerLat, centerLng, radiusMeters float64) error {
	if jobID == 0 {
		return invalid("job_id", "required")
	}
	if !geo.ValidLatitude(centerLat) {
		return invalid("center_lat", "must be within [-90, 90]")
	}
	if !geo.ValidLongitude(centerLng) {
		return invalid("center_lng", "must be within [-180, 180]")
	}
	if !(radiusMeters > 0) || math.IsInf(radiusMeters, 1) {
		return invalid("radius_meters", "must be a positive number of meters")
	}
	return nil
}
