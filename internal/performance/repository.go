package performance

import (
	"errors"
	"sync"
	"time"
)

// RunState is the coarse lifecycle of a tracked run.
type RunState string

const (
	RunRunning  RunState = "running"
	RunFinished RunState = "finished"
)

// ErrRunNotFound is returned when a run id is unknown or has expired.
var ErrRunNotFound = errors.New("run not found")

// RunRecord tracks one performance run. Once finished, Report carries the
// immutable execution report; finished records expire after a TTL.
type RunRecord struct {
	ID        string    `json:"run_id"`
	PlanID    string    `json:"plan_id"`
	State     RunState  `json:"state"`
	StartedAt time.Time `json:"started_at"`
	Report    *Report   `json:"report,omitempty"`

	expiresAt time.Time
}

// RunRepository is the concurrency-safe contract for tracking performance
// runs. It behaves as a keyed store with expiry: finished runs linger for
// the TTL and then disappear.
type RunRepository interface {
	// Create registers a new running record.
	Create(rec *RunRecord)

	// Get returns a copy of the record, or false if unknown or expired.
	Get(id string) (RunRecord, bool)

	// Finish attaches the report and starts the record's expiry clock.
	Finish(id string, rep *Report) error

	// ActiveRunCount returns the number of runs still executing.
	// Used for metrics.
	ActiveRunCount() int
}

// RunStore is the persistence abstraction beneath the repository.
// Implementations can be in-memory or remote; the repository owns locking
// and expiry policy either way.
type RunStore interface {
	Get(id string) (*RunRecord, bool)
	Set(rec *RunRecord)
	Delete(id string)
	IDs() []string
}

// InMemoryRunRepository is a concurrency-safe in-memory RunRepository.
// Expired records are swept lazily on every access.
type InMemoryRunRepository struct {
	mu    sync.RWMutex
	store RunStore
	ttl   time.Duration
	now   func() time.Time
}

// DefaultRunTTL is how long a finished run stays queryable.
const DefaultRunTTL = 30 * time.Minute

// NewInMemoryRunRepository constructs a repository with a default
// in-memory store. ttl <= 0 falls back to DefaultRunTTL.
func NewInMemoryRunRepository(ttl time.Duration) *InMemoryRunRepository {
	return NewRunRepositoryWithStore(NewInMemoryRunStore(), ttl)
}

// NewRunRepositoryWithStore constructs a repository over the given store.
// Useful for testing or plugging in a different backend.
func NewRunRepositoryWithStore(store RunStore, ttl time.Duration) *InMemoryRunRepository {
	if ttl <= 0 {
		ttl = DefaultRunTTL
	}
	return &InMemoryRunRepository{store: store, ttl: ttl, now: time.Now}
}

// Create implements RunRepository.Create.
func (r *InMemoryRunRepository) Create(rec *RunRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweepLocked()
	rec.State = RunRunning
	r.store.Set(rec)
}

// Get implements RunRepository.Get.
func (r *InMemoryRunRepository) Get(id string) (RunRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweepLocked()
	rec, ok := r.store.Get(id)
	if !ok {
		return RunRecord{}, false
	}
	return *rec, true
}

// Finish implements RunRepository.Finish.
func (r *InMemoryRunRepository) Finish(id string, rep *Report) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.store.Get(id)
	if !ok {
		return ErrRunNotFound
	}
	rec.State = RunFinished
	rec.Report = rep
	rec.expiresAt = r.now().Add(r.ttl)
	return nil
}

// ActiveRunCount implements RunRepository.ActiveRunCount.
func (r *InMemoryRunRepository) ActiveRunCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweepLocked()
	n := 0
	for _, id := range r.store.IDs() {
		if rec, ok := r.store.Get(id); ok && rec.State == RunRunning {
			n++
		}
	}
	return n
}

// sweepLocked drops finished records past their expiry.
// Caller must hold r.mu in write mode.
func (r *InMemoryRunRepository) sweepLocked() {
	now := r.now()
	for _, id := range r.store.IDs() {
		rec, ok := r.store.Get(id)
		if ok && rec.State == RunFinished && now.After(rec.expiresAt) {
			r.store.Delete(id)
		}
	}
}

// InMemoryRunStore is the in-memory RunStore.
type InMemoryRunStore struct {
	runs map[string]*RunRecord
}

// NewInMemoryRunStore returns a new empty in-memory store.
func NewInMemoryRunStore() *InMemoryRunStore {
	return &InMemoryRunStore{runs: make(map[string]*RunRecord)}
}

// Get implements RunStore.Get.
func (s *InMemoryRunStore) Get(id string) (*RunRecord, bool) {
	rec, ok := s.runs[id]
	return rec, ok
}

// Set implements RunStore.Set.
func (s *InMemoryRunStore) Set(rec *RunRecord) {
	s.runs[rec.ID] = rec
}

// Delete implements RunStore.Delete.
func (s *InMemoryRunStore) Delete(id string) {
	delete(s.runs, id)
}

// IDs implements RunStore.IDs.
func (s *InMemoryRunStore) IDs() []string {
	ids := make([]string, 0, len(s.runs))
	for id := range s.runs {
		ids = append(ids, id)
	}
	return ids
}
