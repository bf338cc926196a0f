// Package memory holds in-process stores for tests.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"landscape_tracker/internal/models"
)

// ErrInjected is returned by stores whose failure hook is set.
var ErrInjected = errors.New("memory: injected failure")

// Geofences stores one geofence per job.
type Geofences struct {
	mu     sync.Mutex
	nextID uint
	byJob  map[uint]models.Geofence
}

func NewGeofences() *Geofences {
	return &Geofences{byJob: make(map[uint]models.Geofence)}
}

func (s *Geofences) Upsert(_ context.Context, fence *models.Geofence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	if cur, ok := s.byJob[fence.JobID]; ok {
		fence.ID = cur.ID
		fence.CreatedAt = cur.CreatedAt
	} else {
		s.nextID++
		fence.ID = s.nextID
		fence.CreatedAt = now
	}
	fence.UpdatedAt = now
	s.byJob[fence.JobID] = *fence
	return nil
}

func (s *Geofences) Get(_ context.Context, jobID uint) (*models.Geofence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fence, ok := s.byJob[jobID]
	if !ok {
		return nil, nil
	}
	return &fence, nil
}

// Samples is the append-only sample log.
type Samples struct {
	mu         sync.Mutex
	nextID     uint
	rows       []models.LocationSample
	FailAppend bool
}

func NewSamples() *Samples {
	return &Samples{}
}

func (s *Samples) Append(_ context.Context, sample *models.LocationSample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailAppend {
		return ErrInjected
	}
	s.nextID++
	sample.ID = s.nextID
	sample.CreatedAt = time.Now().UTC()
	s.rows = append(s.rows, *sample)
	return nil
}

func (s *Samples) Latest(_ context.Context, actorID uint) (*models.LocationSample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *models.LocationSample
	for i := range s.rows {
		row := s.rows[i]
		if row.ActorID != actorID {
			continue
		}
		if latest == nil || !row.Timestamp.Before(latest.Timestamp) {
			latest = &row
		}
	}
	return latest, nil
}

func (s *Samples) Supersede(_ context.Context, actorID, keepID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rows {
		if s.rows[i].ActorID == actorID && s.rows[i].ID != keepID {
			s.rows[i].Active = false
		}
	}
	return nil
}

func (s *Samples) ListActive(_ context.Context, since time.Time) ([]models.LocationSample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.LocationSample
	for _, row := range s.rows {
		if row.Active && !row.Timestamp.Before(since) {
			out = append(out, row)
		}
	}
	return out, nil
}

func (s *Samples) PruneBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.rows[:0]
	var n int64
	for _, row := range s.rows {
		if !row.Active && row.Timestamp.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, row)
	}
	s.rows = kept
	return n, nil
}

// All returns a copy of every stored sample in insertion order.
func (s *Samples) All() []models.LocationSample {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.LocationSample(nil), s.rows...)
}

// Events is the geofence event audit trail.
type Events struct {
	mu         sync.Mutex
	rows       []models.GeofenceEvent
	FailAppend bool
}

func NewEvents() *Events {
	return &Events{}
}

func (s *Events) Append(_ context.Context, event *models.GeofenceEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailAppend {
		return ErrInjected
	}
	event.ID = uint(len(s.rows) + 1)
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	s.rows = append(s.rows, *event)
	return nil
}

func (s *Events) Last(_ context.Context, jobID uint) (*models.GeofenceEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.rows) - 1; i >= 0; i-- {
		if s.rows[i].JobID == jobID {
			ev := s.rows[i]
			return &ev, nil
		}
	}
	return nil, nil
}

func (s *Events) List(_ context.Context, jobID uint, since time.Time, limit int) ([]models.GeofenceEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.GeofenceEvent{}
	for _, row := range s.rows {
		if row.JobID != jobID || row.CreatedAt.Before(since) {
			continue
		}
		out = append(out, row)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// States holds the detector state per job.
type States struct {
	mu       sync.Mutex
	byJob    map[uint]models.TrackingState
	FailSave bool
}

func NewStates() *States {
	return &States{byJob: make(map[uint]models.TrackingState)}
}

func (s *States) Get(_ context.Context, jobID uint) (*models.TrackingState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.byJob[jobID]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

func (s *States) Save(_ context.Context, state *models.TrackingState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailSave {
		return ErrInjected
	}
	state.UpdatedAt = time.Now().UTC()
	s.byJob[state.JobID] = *state
	return nil
}

func (s *States) ListDeparted(_ context.Context, before time.Time) ([]models.TrackingState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.TrackingState
	for _, st := range s.byJob {
		if st.LastEventType == models.EventExit && st.LastEventAt != nil &&
			st.LastEventAt.Before(before) && st.AbandonedAt == nil {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JobID < out[j].JobID })
	return out, nil
}

// Jobs is a stand-in for the marketplace job table.
type Jobs struct {
	mu   sync.Mutex
	rows map[uint]models.Job

	// BeforeTransition runs before each conditional update with the lock
	// released, letting tests change the row underneath the writer.
	BeforeTransition func(jobID uint)
}

func NewJobs() *Jobs {
	return &Jobs{rows: make(map[uint]models.Job)}
}

// Put inserts or replaces a job.
func (s *Jobs) Put(job models.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[job.ID] = job
}

// SetStatus overwrites the status unconditionally.
func (s *Jobs) SetStatus(jobID uint, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.rows[jobID]; ok {
		job.Status = status
		s.rows[jobID] = job
	}
}

func (s *Jobs) Get(_ context.Context, jobID uint) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.rows[jobID]
	if !ok {
		return nil, nil
	}
	return &job, nil
}

func (s *Jobs) TransitionStatus(_ context.Context, jobID uint, from []string, to string) (bool, error) {
	if s.BeforeTransition != nil {
		s.BeforeTransition(jobID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.rows[jobID]
	if !ok {
		return false, nil
	}
	for _, status := range from {
		if job.Status == status {
			job.Status = to
			job.UpdatedAt = time.Now().UTC()
			s.rows[jobID] = job
			return true, nil
		}
	}
	return false, nil
}

func (s *Jobs) SignalCompletion(_ context.Context, jobID uint, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.rows[jobID]
	if !ok {
		return nil
	}
	if job.CompletionSignaledAt == nil {
		job.CompletionSignaledAt = &at
		s.rows[jobID] = job
	}
	return nil
}

// Users resolves display names from a fixed map.
type Users struct {
	mu    sync.Mutex
	names map[uint]string
}

func NewUsers(names map[uint]string) *Users {
	cp := make(map[uint]string, len(names))
	for k, v := range names {
		cp[k] = v
	}
	return &Users{names: cp}
}

func (u *Users) DisplayNames(_ context.Context, actorIDs []uint) (map[uint]string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make(map[uint]string, len(actorIDs))
	for _, id := range actorIDs {
		if name, ok := u.names[id]; ok {
			out[id] = name
		}
	}
	return out, nil
}
