package tracking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"landscape_tracker/internal/hub"
	"landscape_tracker/internal/metrics"
	"landscape_tracker/internal/models"
)

// Evaluation is what the detector concluded for one sample.
type Evaluation struct {
	JobID          uint                  `json:"job_id"`
	Classification Classification        `json:"classification"`
	Previous       string                `json:"previous_state"`
	Current        string                `json:"current_state"`
	Event          *models.GeofenceEvent `json:"event,omitempty"`
	Transition     *Transition           `json:"transition,omitempty"`
	Stale          bool                  `json:"stale,omitempty"`
}

// Departure is the payload of a departure_abandoned message.
type Departure struct {
	JobID  uint   `json:"job_id"`
	ExitAt string `json:"exit_at"`
}

// Detector turns classified samples into entry/exit events. Evaluation is
// serialized per job so concurrent samples for one job observe each other's
// state; unrelated jobs run in parallel.
type Detector struct {
	geofences GeofenceStore
	states    StateStore
	events    EventStore
	jobs      JobStore
	bridge    *StatusBridge
	publisher Publisher
	clock     Clock
	locks     *keyedMutex
}

// DetectorOption customizes the detector.
type DetectorOption func(*Detector)

// WithDetectorClock assigns a clock.
func WithDetectorClock(clock Clock) DetectorOption {
	return func(d *Detector) {
		d.clock = clock
	}
}

// WithDetectorPublisher assigns the live feed publisher.
func WithDetectorPublisher(publisher Publisher) DetectorOption {
	return func(d *Detector) {
		if publisher != nil {
			d.publisher = publisher
		}
	}
}

// NewDetector constructs a detector.
func NewDetector(geofences GeofenceStore, states StateStore, events EventStore, jobs JobStore, bridge *StatusBridge, opts ...DetectorOption) (*Detector, error) {
	if geofences == nil || states == nil || events == nil || jobs == nil {
		return nil, errors.New("tracking: nil detector store")
	}
	if bridge == nil {
		return nil, errors.New("tracking: nil status bridge")
	}
	d := &Detector{
		geofences: geofences,
		states:    states,
		events:    events,
		jobs:      jobs,
		bridge:    bridge,
		publisher: nopPublisher{},
		clock:     systemClock{},
		locks:     newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// transitionEvent returns the event emitted when moving from prev to next,
// or "" when nothing should be recorded. The first classification of a job
// only emits when the landscaper is already inside; a first "outside" is a
// baseline.
func transitionEvent(prev, next string) string {
	switch {
	case prev == next:
		return ""
	case next == models.ProximityInside:
		return models.EventEntry
	case next == models.ProximityOutside && prev == models.ProximityInside:
		return models.EventExit
	default:
		return ""
	}
}

// Evaluate classifies a stored sample against its job's geofence and
// records a transition when the proximity state changed. A sample without
// a job, or for a job without a geofence, is ignored. A sample older than
// the last one evaluated for the job returns ErrStaleSample.
func (d *Detector) Evaluate(ctx context.Context, sample models.LocationSample) (*Evaluation, error) {
	if !sample.HasJob() {
		return nil, nil
	}
	jobID := *sample.JobID

	unlock := d.locks.Lock(jobID)
	defer unlock()

	fence, err := d.geofences.Get(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("load geofence for job %d: %w", jobID, err)
	}
	if fence == nil {
		return nil, nil
	}

	state, err := d.loadState(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if !state.LastSampleAt.IsZero() && sample.Timestamp.Before(state.LastSampleAt) {
		metrics.IncStaleSample()
		return &Evaluation{JobID: jobID, Previous: state.State, Current: state.State, Stale: true},
			fmt.Errorf("sample %d at %s precedes %s: %w", sample.ID, sample.Timestamp, state.LastSampleAt, ErrStaleSample)
	}

	cls := Classify(sample, *fence)
	eval := &Evaluation{
		JobID:          jobID,
		Classification: cls,
		Previous:       state.State,
		Current:        cls.State(),
	}

	if eventType := transitionEvent(state.State, cls.State()); eventType != "" {
		event, tr, err := d.record(ctx, sample, cls, eventType)
		if err != nil {
			// State is left untouched so the next sample retries this transition.
			return eval, err
		}
		eval.Event = event
		eval.Transition = tr
		at := event.SampleTimestamp
		state.LastEventID = event.ID
		state.LastEventType = eventType
		state.LastEventAt = &at
		state.AbandonedAt = nil
	}

	state.State = cls.State()
	state.LastSampleID = sample.ID
	state.LastSampleAt = sample.Timestamp
	state.LastDistanceMeters = cls.DistanceMeters
	if err := d.states.Save(ctx, state); err != nil {
		return eval, fmt.Errorf("save tracking state for job %d: %w", jobID, err)
	}
	return eval, nil
}

// loadState returns the job's detector state. When the event log is ahead
// of the stored state (an event was written but the state save failed) the
// state is rebuilt from the last event.
func (d *Detector) loadState(ctx context.Context, jobID uint) (*models.TrackingState, error) {
	state, err := d.states.Get(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("load tracking state for job %d: %w", jobID, err)
	}
	if state == nil {
		state = &models.TrackingState{JobID: jobID, State: models.ProximityUnknown}
	}

	last, err := d.events.Last(ctx, jobID)
	if err != nil {
		metrics.IncPipelineError("event_read")
		return nil, fmt.Errorf("load last geofence event for job %d: %w", jobID, err)
	}
	if last == nil || last.ID == state.LastEventID {
		return state, nil
	}

	logrus.WithFields(logrus.Fields{
		"job_id":          jobID,
		"event_id":        last.ID,
		"event_type":      last.EventType,
		"state":           state.State,
		"last_event_type": state.LastEventType,
	}).Warn("Tracking state is behind the event log; repairing.")

	state.State = proximityAfter(last.EventType)
	state.LastEventID = last.ID
	state.LastEventType = last.EventType
	at := last.SampleTimestamp
	state.LastEventAt = &at
	state.AbandonedAt = nil
	if last.SampleTimestamp.After(state.LastSampleAt) {
		state.LastSampleID = last.SampleID
		state.LastSampleAt = last.SampleTimestamp
		state.LastDistanceMeters = last.DistanceMeters
	}
	return state, nil
}

func proximityAfter(eventType string) string {
	if eventType == models.EventExit {
		return models.ProximityOutside
	}
	return models.ProximityInside
}

// record applies the status bridge and writes the event.
func (d *Detector) record(ctx context.Context, sample models.LocationSample, cls Classification, eventType string) (*models.GeofenceEvent, *Transition, error) {
	jobID := *sample.JobID

	var (
		tr  Transition
		err error
	)
	switch eventType {
	case models.EventEntry:
		tr, err = d.bridge.OnEntry(ctx, jobID)
	case models.EventExit:
		tr, err = d.bridge.OnExit(ctx, jobID)
	}
	if err != nil && !errors.Is(err, ErrConflict) {
		// The crossing still happened; record it with whatever status we saw.
		metrics.IncPipelineError("status_bridge")
		logrus.WithError(err).WithFields(logrus.Fields{
			"job_id":     jobID,
			"event_type": eventType,
		}).Error("Status bridge failed for geofence event.")
	}
	if tr.Before == "" {
		tr.Before = models.JobStatusUnknown
	}
	if tr.After == "" {
		tr.After = tr.Before
	}

	event := &models.GeofenceEvent{
		CreatedAt:       d.clock.Now(),
		JobID:           jobID,
		ActorID:         sample.ActorID,
		SampleID:        sample.ID,
		EventType:       eventType,
		StatusBefore:    tr.Before,
		StatusAfter:     tr.After,
		DistanceMeters:  cls.DistanceMeters,
		SampleTimestamp: sample.Timestamp,
	}
	if err := d.events.Append(ctx, event); err != nil {
		metrics.IncPipelineError("event_write")
		return nil, nil, fmt.Errorf("record %s event for job %d: %w", eventType, jobID, err)
	}

	metrics.IncGeofenceEvent(eventType)
	logrus.WithFields(logrus.Fields{
		"job_id":        jobID,
		"actor_id":      sample.ActorID,
		"event_type":    eventType,
		"distance_m":    fmt.Sprintf("%.2f", cls.DistanceMeters),
		"status_before": tr.Before,
		"status_after":  tr.After,
	}).Info("Geofence event recorded.")

	d.publisher.Publish(hub.Message{
		Kind:    hub.KindGeofenceEventRecorded,
		JobID:   jobID,
		ActorID: sample.ActorID,
		Data:    event,
	})
	return event, &tr, nil
}

// Events returns the job's recorded crossings in order. since is compared
// with the time the event was recorded, not the device timestamp.
func (d *Detector) Events(ctx context.Context, jobID uint, since time.Time, limit int) ([]models.GeofenceEvent, error) {
	events, err := d.events.List(ctx, jobID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("list geofence events for job %d: %w", jobID, err)
	}
	return events, nil
}

// MarkComplete consumes the landscaper's completion signal. It shares the
// job lock with Evaluate so an exit and a completion cannot interleave.
func (d *Detector) MarkComplete(ctx context.Context, jobID uint) (Transition, error) {
	unlock := d.locks.Lock(jobID)
	defer unlock()

	fence, err := d.geofences.Get(ctx, jobID)
	if err != nil {
		return Transition{}, fmt.Errorf("load geofence for job %d: %w", jobID, err)
	}
	state, err := d.loadState(ctx, jobID)
	if err != nil {
		return Transition{}, err
	}

	// Without a fence, or before any sample was evaluated, no exit is coming.
	untracked := fence == nil || state.State == models.ProximityUnknown
	departed := state.State == models.ProximityOutside && state.LastEventType == models.EventExit
	return d.bridge.SignalCompletion(ctx, jobID, untracked || departed)
}

// SweepDepartures flags jobs whose landscaper exited before cutoff and that
// are still active without a completion signal. Job status is not changed.
// It returns the number of jobs flagged.
func (d *Detector) SweepDepartures(ctx context.Context, cutoff time.Time) (int, error) {
	candidates, err := d.states.ListDeparted(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list departed jobs: %w", err)
	}

	flagged := 0
	for _, candidate := range candidates {
		ok, err := d.flagAbandoned(ctx, candidate.JobID, cutoff)
		if err != nil {
			logrus.WithError(err).WithField("job_id", candidate.JobID).Error("Failed to flag abandoned departure.")
			continue
		}
		if ok {
			flagged++
		}
	}
	return flagged, nil
}

func (d *Detector) flagAbandoned(ctx context.Context, jobID uint, cutoff time.Time) (bool, error) {
	unlock := d.locks.Lock(jobID)
	defer unlock()

	// Re-read under the lock; a sample may have moved the job since listing.
	state, err := d.loadState(ctx, jobID)
	if err != nil {
		return false, err
	}
	if state.State != models.ProximityOutside || state.LastEventType != models.EventExit ||
		state.LastEventAt == nil || !state.LastEventAt.Before(cutoff) || state.AbandonedAt != nil {
		return false, nil
	}

	job, err := d.jobs.Get(ctx, jobID)
	if err != nil {
		return false, fmt.Errorf("load job %d: %w", jobID, err)
	}
	if job == nil || job.Status != models.JobActive || job.CompletionSignaledAt != nil {
		return false, nil
	}

	now := d.clock.Now()
	state.AbandonedAt = &now
	if err := d.states.Save(ctx, state); err != nil {
		return false, fmt.Errorf("save tracking state for job %d: %w", jobID, err)
	}

	metrics.IncAbandoned()
	logrus.WithFields(logrus.Fields{
		"job_id":  jobID,
		"exit_at": state.LastEventAt.Format(time.RFC3339),
	}).Warn("Landscaper departed without completing job.")

	d.publisher.Publish(hub.Message{
		Kind:  hub.KindDepartureAbandoned,
		JobID: jobID,
		Data:  Departure{JobID: jobID, ExitAt: state.LastEventAt.Format(time.RFC3339)},
	})
	return true, nil
}
