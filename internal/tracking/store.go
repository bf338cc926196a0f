package tracking

import (
	"context"
	"time"

	"landscape_tracker/internal/hub"
	"landscape_tracker/internal/models"
)

// GeofenceStore persists one geofence per job. Get returns (nil, nil) when
// the job has none.
type GeofenceStore interface {
	Upsert(ctx context.Context, fence *models.Geofence) error
	Get(ctx context.Context, jobID uint) (*models.Geofence, error)
}

// SampleStore is the append-only location stream.
type SampleStore interface {
	Append(ctx context.Context, sample *models.LocationSample) error
	// Latest returns the actor's newest sample by timestamp, or nil.
	Latest(ctx context.Context, actorID uint) (*models.LocationSample, error)
	// Supersede clears the active flag on every other sample of the actor.
	Supersede(ctx context.Context, actorID, keepID uint) error
	// ListActive returns active samples reported at or after since.
	ListActive(ctx context.Context, since time.Time) ([]models.LocationSample, error)
	// PruneBefore deletes inactive samples older than cutoff.
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// EventStore holds the geofence event audit trail.
type EventStore interface {
	Append(ctx context.Context, event *models.GeofenceEvent) error
	Last(ctx context.Context, jobID uint) (*models.GeofenceEvent, error)
	List(ctx context.Context, jobID uint, since time.Time, limit int) ([]models.GeofenceEvent, error)
}

// StateStore holds the detector state per job. Get returns (nil, nil) for a
// job that has never been evaluated.
type StateStore interface {
	Get(ctx context.Context, jobID uint) (*models.TrackingState, error)
	Save(ctx context.Context, state *models.TrackingState) error
	// ListDeparted returns states whose last event is an exit recorded
	// before the cutoff and that have not been flagged abandoned.
	ListDeparted(ctx context.Context, before time.Time) ([]models.TrackingState, error)
}

// JobStore is the slice of the marketplace job table the tracker touches.
type JobStore interface {
	Get(ctx context.Context, jobID uint) (*models.Job, error)
	// TransitionStatus sets status to `to` only if the current status is in
	// `from`. It reports whether a row was updated.
	TransitionStatus(ctx context.Context, jobID uint, from []string, to string) (bool, error)
	SignalCompletion(ctx context.Context, jobID uint, at time.Time) error
}

// ActorDirectory resolves display metadata for landscapers.
type ActorDirectory interface {
	DisplayNames(ctx context.Context, actorIDs []uint) (map[uint]string, error)
}

// Publisher receives domain notifications for live subscribers.
type Publisher interface {
	Publish(msg hub.Message)
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

type nopPublisher struct{}

func (nopPublisher) Publish(hub.Message) {}
