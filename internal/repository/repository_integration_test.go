package repository_test

import (
	"context"
	"os"
	"testing"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"landscape_tracker/internal/models"
	"landscape_tracker/internal/repository"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.Job{}, &models.User{}, &models.Geofence{},
		&models.LocationSample{}, &models.GeofenceEvent{}, &models.TrackingState{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestJobsTransitionStatus_Postgres(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	job := models.Job{Status: models.JobScheduled, Address: "12 Elm St"}
	if err := db.Create(&job).Error; err != nil {
		t.Fatalf("create job: %v", err)
	}
	defer db.Unscoped().Delete(&job)

	jobs := repository.NewJobs(db)
	ok, err := jobs.TransitionStatus(ctx, job.ID, models.PreArrivalStatuses, models.JobActive)
	if err != nil || !ok {
		t.Fatalf("first transition: ok=%v err=%v", ok, err)
	}
	ok, err = jobs.TransitionStatus(ctx, job.ID, models.PreArrivalStatuses, models.JobActive)
	if err != nil || ok {
		t.Fatalf("second transition should not match: ok=%v err=%v", ok, err)
	}

	at := time.Now().UTC().Truncate(time.Second)
	if err := jobs.SignalCompletion(ctx, job.ID, at); err != nil {
		t.Fatalf("signal: %v", err)
	}
	if err := jobs.SignalCompletion(ctx, job.ID, at.Add(time.Hour)); err != nil {
		t.Fatalf("signal again: %v", err)
	}
	got, err := jobs.Get(ctx, job.ID)
	if err != nil || got == nil {
		t.Fatalf("get job: %v", err)
	}
	if got.Status != models.JobActive || got.CompletionSignaledAt == nil || !got.CompletionSignaledAt.Equal(at) {
		t.Fatalf("job mismatch: status=%s signaled=%v", got.Status, got.CompletionSignaledAt)
	}
}

func TestGeofenceUpsertAndStates_Postgres(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	jobID := uint(time.Now().UnixNano()%1_000_000) + 1_000_000

	fences := repository.NewGeofences(db)
	defer db.Where("job_id = ?", jobID).Delete(&models.Geofence{})
	for _, r := range []float64{50, 75} {
		if err := fences.Upsert(ctx, &models.Geofence{JobID: jobID, CenterLat: 40, CenterLng: -75, RadiusMeters: r}); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}
	fence, err := fences.Get(ctx, jobID)
	if err != nil || fence == nil || fence.RadiusMeters != 75 {
		t.Fatalf("geofence mismatch: %+v err=%v", fence, err)
	}

	states := repository.NewStates(db)
	defer db.Where("job_id = ?", jobID).Delete(&models.TrackingState{})
	exitAt := time.Now().UTC().Add(-3 * time.Hour)
	st := &models.TrackingState{JobID: jobID, State: models.ProximityInside}
	if err := states.Save(ctx, st); err != nil {
		t.Fatalf("save: %v", err)
	}
	st.State = models.ProximityOutside
	st.LastEventType = models.EventExit
	st.LastEventAt = &exitAt
	if err := states.Save(ctx, st); err != nil {
		t.Fatalf("save again: %v", err)
	}
	departed, err := states.ListDeparted(ctx, time.Now().UTC().Add(-time.Hour))
	if err != nil {
		t.Fatalf("list departed: %v", err)
	}
	found := false
	for _, d := range departed {
		if d.JobID == jobID {
			found = true
		}
	}
	if !found {
		t.Fatalf("departed job %d not listed", jobID)
	}
}
