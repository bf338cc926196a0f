package tracking

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"landscape_tracker/internal/hub"
	"landscape_tracker/internal/metrics"
	"landscape_tracker/internal/models"
)

// Transition describes the job status on either side of a bridge call.
type Transition struct {
	Before  string `json:"status_before"`
	After   string `json:"status_after"`
	Changed bool   `json:"changed"`
}

// StatusChange is the payload of a job_status_changed message.
type StatusChange struct {
	JobID  uint   `json:"job_id"`
	From   string `json:"from"`
	To     string `json:"to"`
	Reason string `json:"reason"`
}

// StatusBridge maps geofence events onto job status changes. Every write is
// conditional on the status it read; a lost race is logged and skipped.
type StatusBridge struct {
	jobs      JobStore
	publisher Publisher
	clock     Clock
}

// BridgeOption customizes the bridge.
type BridgeOption func(*StatusBridge)

// WithBridgeClock assigns a clock.
func WithBridgeClock(clock Clock) BridgeOption {
	return func(b *StatusBridge) {
		b.clock = clock
	}
}

// NewStatusBridge constructs a bridge. publisher may be nil.
func NewStatusBridge(jobs JobStore, publisher Publisher, opts ...BridgeOption) (*StatusBridge, error) {
	if jobs == nil {
		return nil, errors.New("tracking: nil job store")
	}
	if publisher == nil {
		publisher = nopPublisher{}
	}
	b := &StatusBridge{jobs: jobs, publisher: publisher, clock: systemClock{}}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// OnEntry moves a pre-arrival job to active. Jobs already active or beyond
// are left alone.
func (b *StatusBridge) OnEntry(ctx context.Context, jobID uint) (Transition, error) {
	job, err := b.load(ctx, jobID)
	if err != nil {
		return Transition{}, err
	}
	if !models.IsPreArrival(job.Status) {
		return Transition{Before: job.Status, After: job.Status}, nil
	}
	return b.apply(ctx, job, models.PreArrivalStatuses, models.JobActive, "arrived")
}

// OnExit completes an active job only when the landscaper has already
// signalled completion. A departure without that signal changes nothing.
func (b *StatusBridge) OnExit(ctx context.Context, jobID uint) (Transition, error) {
	job, err := b.load(ctx, jobID)
	if err != nil {
		return Transition{}, err
	}
	if job.Status != models.JobActive || job.CompletionSignaledAt == nil {
		if job.Status == models.JobActive {
			logrus.WithField("job_id", jobID).Info("Landscaper left job site without completion signal; job stays active.")
		}
		return Transition{Before: job.Status, After: job.Status}, nil
	}
	return b.apply(ctx, job, []string{models.JobActive}, models.JobCompleted, "departed after completion")
}

// SignalCompletion records the landscaper's completion signal. When
// completeNow is set (already departed, or tracking disabled) an active job
// is completed immediately; otherwise the next exit completes it.
func (b *StatusBridge) SignalCompletion(ctx context.Context, jobID uint, completeNow bool) (Transition, error) {
	job, err := b.load(ctx, jobID)
	if err != nil {
		return Transition{}, err
	}
	if job.Status == models.JobCompleted || job.Status == models.JobCancelled {
		return Transition{Before: job.Status, After: job.Status}, nil
	}
	if job.CompletionSignaledAt == nil {
		at := b.clock.Now()
		if err := b.jobs.SignalCompletion(ctx, jobID, at); err != nil {
			return Transition{}, fmt.Errorf("record completion signal for job %d: %w", jobID, err)
		}
		job.CompletionSignaledAt = &at
		logrus.WithField("job_id", jobID).Info("Completion signal recorded.")
	}
	if !completeNow || job.Status != models.JobActive {
		return Transition{Before: job.Status, After: job.Status}, nil
	}
	return b.apply(ctx, job, []string{models.JobActive}, models.JobCompleted, "completed after departure")
}

func (b *StatusBridge) load(ctx context.Context, jobID uint) (*models.Job, error) {
	job, err := b.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("load job %d: %w", jobID, err)
	}
	if job == nil {
		return nil, fmt.Errorf("job %d: %w", jobID, ErrNotFound)
	}
	return job, nil
}

func (b *StatusBridge) apply(ctx context.Context, job *models.Job, from []string, to, reason string) (Transition, error) {
	updated, err := b.jobs.TransitionStatus(ctx, job.ID, from, to)
	if err != nil {
		return Transition{Before: job.Status, After: job.Status}, fmt.Errorf("update job %d status: %w", job.ID, err)
	}
	if !updated {
		current := job.Status
		if fresh, err := b.jobs.Get(ctx, job.ID); err == nil && fresh != nil {
			current = fresh.Status
		}
		metrics.IncStatusConflict()
		logrus.WithFields(logrus.Fields{
			"job_id":          job.ID,
			"expected_status": from,
			"observed_status": current,
			"target_status":   to,
		}).Warn("Job status changed concurrently; skipping transition.")
		return Transition{Before: job.Status, After: current}, ErrConflict
	}

	metrics.IncStatusTransition(to)
	logrus.WithFields(logrus.Fields{
		"job_id": job.ID,
		"from":   job.Status,
		"to":     to,
		"reason": reason,
	}).Info("Job status updated by tracker.")

	b.publisher.Publish(hub.Message{
		Kind:  hub.KindJobStatusChanged,
		JobID: job.ID,
		Data:  StatusChange{JobID: job.ID, From: job.Status, To: to, Reason: reason},
	})
	return Transition{Before: job.Status, After: to, Changed: true}, nil
}
