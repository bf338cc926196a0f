package tracking_test

import (
	"errors"
	"math"
	"testing"
	"time"

	"landscape_tracker/internal/hub"
	"landscape_tracker/internal/repository/memory"
	"landscape_tracker/internal/tracking"
)

func TestIngestValidation(t *testing.T) {
	h := newHarness(t)
	valid := tracking.SampleInput{ActorID: testActor, Latitude: siteLat, Longitude: siteLng, Timestamp: baseTime}

	cases := []struct {
		name  string
		edit  func(*tracking.SampleInput)
		field string
	}{
		{"missing actor", func(in *tracking.SampleInput) { in.ActorID = 0 }, "actor_id"},
		{"latitude", func(in *tracking.SampleInput) { in.Latitude = -90.5 }, "latitude"},
		{"longitude", func(in *tracking.SampleInput) { in.Longitude = 200 }, "longitude"},
		{"nan latitude", func(in *tracking.SampleInput) { in.Latitude = math.NaN() }, "latitude"},
		{"negative speed", func(in *tracking.SampleInput) { in.Speed = speed(-1) }, "speed"},
		{"negative accuracy", func(in *tracking.SampleInput) { in.Accuracy = -3 }, "accuracy"},
		{"missing timestamp", func(in *tracking.SampleInput) { in.Timestamp = time.Time{} }, "timestamp"},
		{"future timestamp", func(in *tracking.SampleInput) { in.Timestamp = h.clock.Now().Add(time.Hour) }, "timestamp"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := valid
			tc.edit(&in)
			_, err := h.ingestor.Ingest(h.ctx, in)
			var verr *tracking.ValidationError
			if !asValidation(err, &verr) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if verr.Field != tc.field {
				t.Fatalf("field mismatch: got=%s want=%s", verr.Field, tc.field)
			}
		})
	}

	if n := len(h.samples.All()); n != 0 {
		t.Fatalf("rejected samples were stored: %d", n)
	}
}

func TestIngestSupersedesPreviousSamples(t *testing.T) {
	h := newHarness(t)
	h.ingest(1, siteLat, siteLng, 0)
	h.ingest(1, awayLat, siteLng, 10*time.Second)
	last := h.ingest(1, awayLat, siteLng, 20*time.Second)

	active := 0
	for _, s := range h.samples.All() {
		if s.Active {
			active++
			if s.ID != last.Sample.ID {
				t.Fatalf("sample %d still active", s.ID)
			}
		}
	}
	if active != 1 {
		t.Fatalf("active samples: got=%d want=1", active)
	}
	if last.Sample.DistanceFromLast != 0 {
		t.Fatalf("stationary sample moved %.2f m", last.Sample.DistanceFromLast)
	}
}

func TestIngestComputesMovement(t *testing.T) {
	h := newHarness(t)
	h.ingest(1, siteLat, siteLng, 0)
	moved := h.ingest(1, awayLat, siteLng, 10*time.Second)

	if d := moved.Sample.DistanceFromLast; d < 110 || d > 112 {
		t.Fatalf("distance from last: got=%.2f want~111", d)
	}
	if b := moved.Sample.Bearing; b > 0.01 && b < 359.99 {
		t.Fatalf("bearing due north: got=%.2f", b)
	}
}

func TestIngestZeroJobIsUnassigned(t *testing.T) {
	h := newHarness(t)
	zero := uint(0)
	res, err := h.ingestor.Ingest(h.ctx, tracking.SampleInput{
		ActorID: testActor, JobID: &zero, Latitude: siteLat, Longitude: siteLng, Timestamp: baseTime,
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if res.Sample.JobID != nil {
		t.Fatalf("job id 0 should be stored as unassigned")
	}
	if h.pub.msgs[0].Kind != hub.KindSampleIngested || h.pub.msgs[0].JobID != 0 {
		t.Fatalf("unexpected notification: %+v", h.pub.msgs[0])
	}
}

func TestIngestStorageFailure(t *testing.T) {
	h := newHarness(t)
	h.samples.FailAppend = true
	_, err := h.ingestor.Ingest(h.ctx, tracking.SampleInput{
		ActorID: testActor, Latitude: siteLat, Longitude: siteLng, Timestamp: baseTime,
	})
	if !errors.Is(err, memory.ErrInjected) {
		t.Fatalf("expected storage error, got %v", err)
	}
	if h.pub.count(hub.KindSampleIngested) != 0 {
		t.Fatalf("failed sample was published")
	}
}

func TestPruneKeepsActiveSamples(t *testing.T) {
	h := newHarness(t)
	h.ingest(1, siteLat, siteLng, 0)
	h.ingest(1, siteLat, siteLng, time.Minute)
	h.ingest(1, siteLat, siteLng, 2*time.Minute)

	n, err := h.ingestor.Prune(h.ctx, baseTime.Add(time.Hour))
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if n != 2 {
		t.Fatalf("pruned: got=%d want=2", n)
	}
	rest := h.samples.All()
	if len(rest) != 1 || !rest[0].Active {
		t.Fatalf("active sample should survive pruning: %+v", rest)
	}
}

func TestSweeperRunsMaintenance(t *testing.T) {
	h := newHarness(t)
	h.job(1, "scheduled")
	h.fence(1)
	h.ingest(1, siteLat, siteLng, 0)
	h.ingest(1, awayLat, awayLng, time.Minute)

	sweeper, err := tracking.NewSweeper(h.ingestor, h.detector, tracking.SweeperConfig{
		Retention:    30 * time.Minute,
		AbandonAfter: 20 * time.Minute,
	}, h.clock)
	if err != nil {
		t.Fatalf("sweeper: %v", err)
	}
	sweeper.SweepOnce(h.ctx)

	if n := len(h.samples.All()); n != 1 {
		t.Fatalf("samples after sweep: got=%d want=1", n)
	}
	state, _ := h.states.Get(h.ctx, 1)
	if state == nil || state.AbandonedAt == nil {
		t.Fatalf("departure should be flagged: %+v", state)
	}
	if h.status(1) != "active" {
		t.Fatalf("sweeper changed job status to %s", h.status(1))
	}
}

func TestConstructorsRejectNil(t *testing.T) {
	if _, err := tracking.NewGeofenceService(nil, nil); err == nil {
		t.Fatalf("expected error for nil geofence store")
	}
	if _, err := tracking.NewStatusBridge(nil, nil); err == nil {
		t.Fatalf("expected error for nil job store")
	}
	if _, err := tracking.NewIngestor(memory.NewSamples(), nil); err == nil {
		t.Fatalf("expected error for nil detector")
	}
	if _, err := tracking.NewFeed(nil, memory.NewGeofences(), nil); err == nil {
		t.Fatalf("expected error for nil sample store")
	}
	if _, err := tracking.NewSweeper(nil, nil, tracking.SweeperConfig{}, nil); err == nil {
		t.Fatalf("expected error for nil sweeper dependencies")
	}
}
