package tracking_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"landscape_tracker/internal/hub"
	"landscape_tracker/internal/models"
	"landscape_tracker/internal/repository/memory"
	"landscape_tracker/internal/tracking"
)

var baseTime = time.Date(2026, time.May, 4, 8, 0, 0, 0, time.UTC)

// Job site used across tests, and a point ~140 m away from it.
const (
	siteLat   = 40.0
	siteLng   = -75.0
	siteR     = 50.0
	awayLat   = 40.001
	awayLng   = -75.001
	farLat    = 40.009
	testActor = uint(7)
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type recorder struct {
	mu   sync.Mutex
	msgs []hub.Message
}

func (r *recorder) Publish(msg hub.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func (r *recorder) count(kind string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.msgs {
		if m.Kind == kind {
			n++
		}
	}
	return n
}

type harness struct {
	t         *testing.T
	ctx       context.Context
	clock     *fakeClock
	pub       *recorder
	geofences *memory.Geofences
	samples   *memory.Samples
	events    *memory.Events
	states    *memory.States
	jobs      *memory.Jobs
	users     *memory.Users

	fences   *tracking.GeofenceService
	bridge   *tracking.StatusBridge
	detector *tracking.Detector
	ingestor *tracking.Ingestor
	feed     *tracking.Feed
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		t:         t,
		ctx:       context.Background(),
		clock:     &fakeClock{now: baseTime.Add(time.Hour)},
		pub:       &recorder{},
		geofences: memory.NewGeofences(),
		samples:   memory.NewSamples(),
		events:    memory.NewEvents(),
		states:    memory.NewStates(),
		jobs:      memory.NewJobs(),
		users:     memory.NewUsers(map[uint]string{testActor: "Rosa Alvarez"}),
	}

	var err error
	h.fences, err = tracking.NewGeofenceService(h.geofences, h.pub)
	if err != nil {
		t.Fatalf("geofence service: %v", err)
	}
	h.bridge, err = tracking.NewStatusBridge(h.jobs, h.pub, tracking.WithBridgeClock(h.clock))
	if err != nil {
		t.Fatalf("status bridge: %v", err)
	}
	h.detector, err = tracking.NewDetector(h.geofences, h.states, h.events, h.jobs, h.bridge,
		tracking.WithDetectorClock(h.clock),
		tracking.WithDetectorPublisher(h.pub),
	)
	if err != nil {
		t.Fatalf("detector: %v", err)
	}
	h.ingestor, err = tracking.NewIngestor(h.samples, h.detector,
		tracking.WithIngestorClock(h.clock),
		tracking.WithIngestorPublisher(h.pub),
	)
	if err != nil {
		t.Fatalf("ingestor: %v", err)
	}
	h.feed, err = tracking.NewFeed(h.samples, h.geofences, h.users,
		tracking.WithFeedClock(h.clock),
		tracking.WithStaleAfter(5*time.Minute),
		tracking.WithSpeeds(8, 1),
	)
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	return h
}

func (h *harness) job(id uint, status string) {
	h.jobs.Put(models.Job{Model: gorm.Model{ID: id}, Status: status})
}

func (h *harness) fence(jobID uint) {
	h.t.Helper()
	if _, err := h.fences.Upsert(h.ctx, jobID, siteLat, siteLng, siteR); err != nil {
		h.t.Fatalf("upsert geofence: %v", err)
	}
}

func (h *harness) ingest(jobID uint, lat, lng float64, offset time.Duration) *tracking.IngestResult {
	h.t.Helper()
	res, err := h.ingestor.Ingest(h.ctx, tracking.SampleInput{
		ActorID:   testActor,
		JobID:     &jobID,
		Latitude:  lat,
		Longitude: lng,
		Timestamp: baseTime.Add(offset),
	})
	if err != nil {
		h.t.Fatalf("ingest: %v", err)
	}
	return res
}

func (h *harness) status(jobID uint) string {
	h.t.Helper()
	job, err := h.jobs.Get(h.ctx, jobID)
	if err != nil || job == nil {
		h.t.Fatalf("load job %d: %v", jobID, err)
	}
	return job.Status
}

func (h *harness) eventTypes(jobID uint) []string {
	h.t.Helper()
	events, err := h.events.List(h.ctx, jobID, time.Time{}, 0)
	if err != nil {
		h.t.Fatalf("list events: %v", err)
	}
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, e.EventType)
	}
	return out
}

func assertAlternating(t *testing.T, types []string) {
	t.Helper()
	for i, typ := range types {
		want := models.EventEntry
		if i%2 == 1 {
			want = models.EventExit
		}
		if typ != want {
			t.Fatalf("event %d: got=%s want=%s (sequence %v)", i, typ, want, types)
		}
	}
}

func asValidation(err error, target **tracking.ValidationError) bool {
	return errors.As(err, target) && errors.Is(err, tracking.ErrValidation)
}

func isNotFound(err error) bool {
	return errors.Is(err, tracking.ErrNotFound)
}
