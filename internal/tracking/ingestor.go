package tracking

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"landscape_tracker/internal/geo"
	"landscape_tracker/internal/hub"
	"landscape_tracker/internal/metrics"
	"landscape_tracker/internal/models"
)

// SampleInput is a raw position report.
type SampleInput struct {
	ActorID   uint
	JobID     *uint
	Latitude  float64
	Longitude float64
	Speed     *float64
	Accuracy  float64
	Timestamp time.Time
}

// IngestResult is returned to the reporting client once the sample is
// stored. Evaluation is nil when the sample was not evaluated (no job, no
// geofence, or a pipeline failure that was logged).
type IngestResult struct {
	Sample     *models.LocationSample `json:"sample"`
	Evaluation *Evaluation            `json:"evaluation,omitempty"`
}

// Ingestor appends samples and drives the evaluation pipeline.
type Ingestor struct {
	samples   SampleStore
	detector  *Detector
	publisher Publisher
	clock     Clock
	maxSkew   time.Duration
	locks     *keyedMutex
}

// IngestorOption customizes the ingestor.
type IngestorOption func(*Ingestor)

// WithIngestorClock assigns a clock.
func WithIngestorClock(clock Clock) IngestorOption {
	return func(i *Ingestor) {
		i.clock = clock
	}
}

// WithIngestorPublisher assigns the live feed publisher.
func WithIngestorPublisher(publisher Publisher) IngestorOption {
	return func(i *Ingestor) {
		if publisher != nil {
			i.publisher = publisher
		}
	}
}

// WithMaxClockSkew rejects samples stamped further than d in the future.
// Zero disables the check.
func WithMaxClockSkew(d time.Duration) IngestorOption {
	return func(i *Ingestor) {
		i.maxSkew = d
	}
}

// NewIngestor constructs an ingestor.
func NewIngestor(samples SampleStore, detector *Detector, opts ...IngestorOption) (*Ingestor, error) {
	if samples == nil {
		return nil, errors.New("tracking: nil sample store")
	}
	if detector == nil {
		return nil, errors.New("tracking: nil detector")
	}
	i := &Ingestor{
		samples:   samples,
		detector:  detector,
		publisher: nopPublisher{},
		clock:     systemClock{},
		maxSkew:   2 * time.Minute,
		locks:     newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// Validate checks a sample before anything is stored.
func (i *Ingestor) Validate(in SampleInput) error {
	if in.ActorID == 0 {
		return invalid("actor_id", "required")
	}
	if !geo.ValidLatitude(in.Latitude) {
		return invalid("latitude", "must be within [-90, 90]")
	}
	if !geo.ValidLongitude(in.Longitude) {
		return invalid("longitude", "must be within [-180, 180]")
	}
	if in.Speed != nil && (math.IsNaN(*in.Speed) || math.IsInf(*in.Speed, 0) || *in.Speed < 0) {
		return invalid("speed", "must be a non-negative number")
	}
	if math.IsNaN(in.Accuracy) || in.Accuracy < 0 {
		return invalid("accuracy", "must be a non-negative number")
	}
	if in.Timestamp.IsZero() {
		return invalid("timestamp", "required")
	}
	if i.maxSkew > 0 && in.Timestamp.After(i.clock.Now().Add(i.maxSkew)) {
		return invalid("timestamp", "is in the future")
	}
	return nil
}

// Ingest validates and stores a sample, then evaluates it against the job's
// geofence. Only validation and storage errors are returned; failures past
// the append are logged so location history is never lost to a status
// update problem.
func (i *Ingestor) Ingest(ctx context.Context, in SampleInput) (*IngestResult, error) {
	started := time.Now()
	if err := i.Validate(in); err != nil {
		metrics.ObserveIngest(metrics.ResultRejected, started)
		return nil, err
	}
	if in.JobID != nil && *in.JobID == 0 {
		in.JobID = nil
	}

	sample, err := i.append(ctx, in)
	if err != nil {
		metrics.ObserveIngest(metrics.ResultError, started)
		return nil, err
	}

	i.publisher.Publish(hub.Message{
		Kind:    hub.KindSampleIngested,
		JobID:   jobIDOf(sample),
		ActorID: sample.ActorID,
		At:      sample.Timestamp,
		Data:    sample,
	})

	result := &IngestResult{Sample: sample}
	eval, err := i.detector.Evaluate(ctx, *sample)
	switch {
	case errors.Is(err, ErrStaleSample):
		logrus.WithFields(logrus.Fields{
			"actor_id":  sample.ActorID,
			"job_id":    jobIDOf(sample),
			"sample_id": sample.ID,
		}).Debug("Stale sample stored for history but not evaluated.")
		result.Evaluation = eval
	case err != nil:
		metrics.IncPipelineError("evaluate")
		logrus.WithError(err).WithFields(logrus.Fields{
			"actor_id":  sample.ActorID,
			"job_id":    jobIDOf(sample),
			"sample_id": sample.ID,
		}).Error("Geofence evaluation failed; sample kept.")
	default:
		result.Evaluation = eval
	}

	metrics.ObserveIngest(metrics.ResultStored, started)
	return result, nil
}

// append stores the sample under the actor lock so the active flag always
// marks the actor's newest report.
func (i *Ingestor) append(ctx context.Context, in SampleInput) (*models.LocationSample, error) {
	unlock := i.locks.Lock(in.ActorID)
	defer unlock()

	prev, err := i.samples.Latest(ctx, in.ActorID)
	if err != nil {
		return nil, fmt.Errorf("load latest sample for actor %d: %w", in.ActorID, err)
	}

	sample := &models.LocationSample{
		ActorID:   in.ActorID,
		JobID:     in.JobID,
		Latitude:  in.Latitude,
		Longitude: in.Longitude,
		Speed:     in.Speed,
		Accuracy:  in.Accuracy,
		Timestamp: in.Timestamp.UTC(),
		Active:    prev == nil || !in.Timestamp.Before(prev.Timestamp),
	}
	if prev != nil && sample.Active {
		sample.DistanceFromLast = geo.Distance(prev.Latitude, prev.Longitude, sample.Latitude, sample.Longitude)
		if sample.DistanceFromLast > 0 {
			sample.Bearing = geo.Bearing(prev.Latitude, prev.Longitude, sample.Latitude, sample.Longitude)
		} else {
			sample.Bearing = prev.Bearing
		}
	}

	if err := i.samples.Append(ctx, sample); err != nil {
		return nil, fmt.Errorf("append sample for actor %d: %w", in.ActorID, err)
	}

	if sample.Active && prev != nil {
		if err := i.samples.Supersede(ctx, in.ActorID, sample.ID); err != nil {
			// The sample is stored; the live feed catches up on the next report.
			logrus.WithError(err).WithField("actor_id", in.ActorID).Error("Failed to supersede earlier samples.")
		}
	}

	logrus.WithFields(logrus.Fields{
		"actor_id":   sample.ActorID,
		"job_id":     jobIDOf(sample),
		"sample_id":  sample.ID,
		"latitude":   sample.Latitude,
		"longitude":  sample.Longitude,
		"active":     sample.Active,
		"distance_m": fmt.Sprintf("%.2f", sample.DistanceFromLast),
		"timestamp":  sample.Timestamp.Format(time.RFC3339Nano),
	}).Debug("Location sample stored.")
	return sample, nil
}

// Prune deletes inactive samples reported before cutoff.
func (i *Ingestor) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	n, err := i.samples.PruneBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune samples before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	metrics.AddPrunedSamples(n)
	if n > 0 {
		logrus.WithFields(logrus.Fields{
			"count":  n,
			"cutoff": cutoff.Format(time.RFC3339),
		}).Info("Pruned old location samples.")
	}
	return n, nil
}

func jobIDOf(s *models.LocationSample) uint {
	if s.JobID == nil {
		return 0
	}
	return *s.JobID
}
