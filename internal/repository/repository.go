// Package repository implements the tracker stores on Postgres with GORM.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"landscape_tracker/internal/models"
	"landscape_tracker/internal/tracking"
)

var (
	_ tracking.GeofenceStore  = (*Geofences)(nil)
	_ tracking.SampleStore    = (*Samples)(nil)
	_ tracking.EventStore     = (*Events)(nil)
	_ tracking.StateStore     = (*States)(nil)
	_ tracking.JobStore       = (*Jobs)(nil)
	_ tracking.ActorDirectory = (*Users)(nil)
)

// Geofences stores job geofences.
type Geofences struct {
	db *gorm.DB
}

func NewGeofences(db *gorm.DB) *Geofences {
	return &Geofences{db: db}
}

// Upsert inserts the geofence or replaces the one already set for the job.
func (r *Geofences) Upsert(ctx context.Context, fence *models.Geofence) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "job_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"center_lat", "center_lng", "radius_meters", "geometry", "updated_at"}),
	}).Create(fence).Error
}

func (r *Geofences) Get(ctx context.Context, jobID uint) (*models.Geofence, error) {
	var fence models.Geofence
	err := r.db.WithContext(ctx).Where("job_id = ?", jobID).First(&fence).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &fence, nil
}

// Samples is the location_samples table.
type Samples struct {
	db *gorm.DB
}

func NewSamples(db *gorm.DB) *Samples {
	return &Samples{db: db}
}

func (r *Samples) Append(ctx context.Context, sample *models.LocationSample) error {
	return r.db.WithContext(ctx).Create(sample).Error
}

func (r *Samples) Latest(ctx context.Context, actorID uint) (*models.LocationSample, error) {
	var sample models.LocationSample
	err := r.db.WithContext(ctx).
		Where("actor_id = ?", actorID).
		Order("timestamp desc").Order("id desc").
		First(&sample).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sample, nil
}

func (r *Samples) Supersede(ctx context.Context, actorID, keepID uint) error {
	return r.db.WithContext(ctx).Model(&models.LocationSample{}).
		Where("actor_id = ? AND id <> ? AND active", actorID, keepID).
		Update("active", false).Error
}

func (r *Samples) ListActive(ctx context.Context, since time.Time) ([]models.LocationSample, error) {
	var samples []models.LocationSample
	err := r.db.WithContext(ctx).
		Where("active AND timestamp >= ?", since).
		Order("actor_id").
		Find(&samples).Error
	return samples, err
}

func (r *Samples) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("NOT active AND timestamp < ?", cutoff).
		Delete(&models.LocationSample{})
	return res.RowsAffected, res.Error
}

// Events is the geofence_events table.
type Events struct {
	db *gorm.DB
}

func NewEvents(db *gorm.DB) *Events {
	return &Events{db: db}
}

func (r *Events) Append(ctx context.Context, event *models.GeofenceEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *Events) Last(ctx context.Context, jobID uint) (*models.GeofenceEvent, error) {
	var event models.GeofenceEvent
	err := r.db.WithContext(ctx).Where("job_id = ?", jobID).Order("id desc").First(&event).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *Events) List(ctx context.Context, jobID uint, since time.Time, limit int) ([]models.GeofenceEvent, error) {
	q := r.db.WithContext(ctx).Where("job_id = ?", jobID)
	if !since.IsZero() {
		q = q.Where("created_at >= ?", since)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	events := []models.GeofenceEvent{}
	err := q.Order("id asc").Find(&events).Error
	return events, err
}

// States is the geofence_states table.
type States struct {
	db *gorm.DB
}

func NewStates(db *gorm.DB) *States {
	return &States{db: db}
}

func (r *States) Get(ctx context.Context, jobID uint) (*models.TrackingState, error) {
	var state models.TrackingState
	err := r.db.WithContext(ctx).Where("job_id = ?", jobID).First(&state).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

func (r *States) Save(ctx context.Context, state *models.TrackingState) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "job_id"}},
		UpdateAll: true,
	}).Create(state).Error
}

func (r *States) ListDeparted(ctx context.Context, before time.Time) ([]models.TrackingState, error) {
	var states []models.TrackingState
	err := r.db.WithContext(ctx).
		Where("last_event_type = ? AND last_event_at < ? AND abandoned_at IS NULL", models.EventExit, before).
		Order("job_id").
		Find(&states).Error
	return states, err
}

// Jobs reads and conditionally updates marketplace jobs.
type Jobs struct {
	db *gorm.DB
}

func NewJobs(db *gorm.DB) *Jobs {
	return &Jobs{db: db}
}

func (r *Jobs) Get(ctx context.Context, jobID uint) (*models.Job, error) {
	var job models.Job
	err := r.db.WithContext(ctx).First(&job, jobID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// TransitionStatus is a compare-and-set on status.
func (r *Jobs) TransitionStatus(ctx context.Context, jobID uint, from []string, to string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Job{}).
		Where("id = ? AND status = ANY(?)", jobID, pq.Array(from)).
		Updates(map[string]interface{}{"status": to, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// SignalCompletion stamps the first completion signal; later calls are no-ops.
func (r *Jobs) SignalCompletion(ctx context.Context, jobID uint, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.Job{}).
		Where("id = ? AND completion_signaled_at IS NULL", jobID).
		Update("completion_signaled_at", at).Error
}

// Users resolves landscaper display names.
type Users struct {
	db *gorm.DB
}

func NewUsers(db *gorm.DB) *Users {
	return &Users{db: db}
}

func (r *Users) DisplayNames(ctx context.Context, actorIDs []uint) (map[uint]string, error) {
	names := make(map[uint]string, len(actorIDs))
	if len(actorIDs) == 0 {
		return names, nil
	}
	var users []models.User
	if err := r.db.WithContext(ctx).Select("id", "name").Where("id IN ?", actorIDs).Find(&users).Error; err != nil {
		return nil, err
	}
	for _, u := range users {
		names[u.ID] = u.Name
	}
	return names, nil
}
