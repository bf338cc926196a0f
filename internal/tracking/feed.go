package tracking

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"landscape_tracker/internal/geo"
	"landscape_tracker/internal/models"
)

// TrackedActorView is the latest known position of one landscaper.
type TrackedActorView struct {
	ActorID     uint      `json:"actor_id"`
	DisplayName string    `json:"display_name"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	Speed       *float64  `json:"speed,omitempty"`
	Bearing     float64   `json:"bearing"`
	JobID       *uint     `json:"job_id,omitempty"`
	LastUpdate  time.Time `json:"last_update"`
}

// ETA is the distance and estimated arrival time of a landscaper to a job.
type ETA struct {
	JobID          uint      `json:"job_id"`
	ActorID        uint      `json:"actor_id"`
	DistanceMeters float64   `json:"distance_meters"`
	SpeedMPS       float64   `json:"speed_mps"`
	AssumedSpeed   bool      `json:"assumed_speed"`
	ETASeconds     float64   `json:"eta_seconds"`
	Arrived        bool      `json:"arrived"`
	SampleAt       time.Time `json:"sample_at"`
	Stale          bool      `json:"stale"`
}

// Feed is the read-only live projection used by dashboards.
type Feed struct {
	samples      SampleStore
	geofences    GeofenceStore
	directory    ActorDirectory
	clock        Clock
	staleAfter   time.Duration
	defaultSpeed float64
	minimumSpeed float64
}

// FeedOption customizes the feed.
type FeedOption func(*Feed)

// WithFeedClock assigns a clock.
func WithFeedClock(clock Clock) FeedOption {
	return func(f *Feed) {
		f.clock = clock
	}
}

// WithStaleAfter sets how long an actor stays on the feed without reporting.
func WithStaleAfter(d time.Duration) FeedOption {
	return func(f *Feed) {
		if d > 0 {
			f.staleAfter = d
		}
	}
}

// WithSpeeds sets the assumed speed used when a sample has none, and the
// floor applied to reported speeds, both in m/s.
func WithSpeeds(defaultMPS, minimumMPS float64) FeedOption {
	return func(f *Feed) {
		if defaultMPS > 0 {
			f.defaultSpeed = defaultMPS
		}
		if minimumMPS > 0 {
			f.minimumSpeed = minimumMPS
		}
	}
}

// NewFeed constructs the live feed. directory may be nil, in which case
// display names are left empty.
func NewFeed(samples SampleStore, geofences GeofenceStore, directory ActorDirectory, opts ...FeedOption) (*Feed, error) {
	if samples == nil || geofences == nil {
		return nil, errors.New("tracking: nil feed store")
	}
	f := &Feed{
		samples:      samples,
		geofences:    geofences,
		directory:    directory,
		clock:        systemClock{},
		staleAfter:   5 * time.Minute,
		defaultSpeed: 8.33, // ~30 km/h in town
		minimumSpeed: 1.0,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// ActiveActors returns the newest active sample of every actor that has
// reported within the staleness window.
func (f *Feed) ActiveActors(ctx context.Context) ([]TrackedActorView, error) {
	since := f.clock.Now().Add(-f.staleAfter)
	samples, err := f.samples.ListActive(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("list active samples: %w", err)
	}

	latest := make(map[uint]models.LocationSample, len(samples))
	for _, s := range samples {
		if cur, ok := latest[s.ActorID]; !ok || s.Timestamp.After(cur.Timestamp) {
			latest[s.ActorID] = s
		}
	}

	ids := make([]uint, 0, len(latest))
	for id := range latest {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })

	names := map[uint]string{}
	if f.directory != nil && len(ids) > 0 {
		names, err = f.directory.DisplayNames(ctx, ids)
		if err != nil {
			// Positions are still useful without names.
			logrus.WithError(err).Warn("Failed to resolve landscaper names for live feed.")
			names = map[uint]string{}
		}
	}

	views := make([]TrackedActorView, 0, len(ids))
	for _, id := range ids {
		s := latest[id]
		views = append(views, TrackedActorView{
			ActorID:     id,
			DisplayName: names[id],
			Latitude:    s.Latitude,
			Longitude:   s.Longitude,
			Speed:       s.Speed,
			Bearing:     s.Bearing,
			JobID:       s.JobID,
			LastUpdate:  s.Timestamp,
		})
	}
	return views, nil
}

// ActiveActorsGeoJSON renders ActiveActors as a GeoJSON FeatureCollection.
func (f *Feed) ActiveActorsGeoJSON(ctx context.Context) ([]byte, error) {
	views, err := f.ActiveActors(ctx)
	if err != nil {
		return nil, err
	}
	features := make([]geo.Feature, 0, len(views))
	for _, v := range views {
		props := map[string]interface{}{
			"actor_id":     v.ActorID,
			"display_name": v.DisplayName,
			"bearing":      v.Bearing,
			"last_update":  v.LastUpdate.Format(time.RFC3339),
		}
		if v.Speed != nil {
			props["speed"] = *v.Speed
		}
		if v.JobID != nil {
			props["job_id"] = *v.JobID
		}
		features = append(features, geo.Feature{
			ID:         strconv.FormatUint(uint64(v.ActorID), 10),
			Lat:        v.Latitude,
			Lng:        v.Longitude,
			Properties: props,
		})
	}
	return geo.FeatureCollection(features)
}

// DistanceAndETA measures how far the actor's latest sample is from the
// job's geofence center and how long the remaining distance takes at
// max(speed, minimum). A missing or zero speed uses the default speed.
func (f *Feed) DistanceAndETA(ctx context.Context, jobID, actorID uint) (*ETA, error) {
	fence, err := f.geofences.Get(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("load geofence for job %d: %w", jobID, err)
	}
	if fence == nil {
		return nil, fmt.Errorf("geofence for job %d: %w", jobID, ErrNotFound)
	}

	sample, err := f.samples.Latest(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf("load latest sample for actor %d: %w", actorID, err)
	}
	if sample == nil {
		return nil, ErrNoSignal
	}

	cls := Classify(*sample, *fence)
	speed, assumed := f.effectiveSpeed(sample.Speed)

	return &ETA{
		JobID:          jobID,
		ActorID:        actorID,
		DistanceMeters: cls.DistanceMeters,
		SpeedMPS:       speed,
		AssumedSpeed:   assumed,
		ETASeconds:     cls.DistanceMeters / speed,
		Arrived:        cls.Inside,
		SampleAt:       sample.Timestamp,
		Stale:          sample.Timestamp.Before(f.clock.Now().Add(-f.staleAfter)),
	}, nil
}

func (f *Feed) effectiveSpeed(reported *float64) (float64, bool) {
	if reported == nil || *reported <= 0 {
		return f.defaultSpeed, true
	}
	return math.Max(*reported, f.minimumSpeed), false
}
