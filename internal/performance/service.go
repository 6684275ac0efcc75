package performance

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Service composes the planner, validator, scheduler and run repository.
// It owns the cancel handles of in-flight runs; everything else is
// delegated.
type Service struct {
	planner *Planner
	sched   *Scheduler
	runs    RunRepository
	log     *slog.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// NewService wires the engine together.
func NewService(planner *Planner, sched *Scheduler, runs RunRepository, log *slog.Logger) *Service {
	return &Service{
		planner: planner,
		sched:   sched,
		runs:    runs,
		log:     log,
		cancels: make(map[string]context.CancelFunc),
	}
}

// ComposeChoreography turns a music analysis into a validated plan.
// Generation and validation are separate steps: the planner may emit
// intentional light overlaps that validation repairs by clipping.
func (s *Service) ComposeChoreography(analysis MusicAnalysis) (Plan, error) {
	s.mu.Lock()
	plan := s.planner.Generate(analysis)
	s.mu.Unlock()
	return Validate(plan)
}

// StartPerformance validates the plan, registers a run and executes it
// asynchronously. The returned run id can be polled and cancelled.
// Validation failures surface immediately; past that point callers always
// get a report through the run record.
func (s *Service) StartPerformance(plan Plan) (string, error) {
	if plan.ID == "" {
		plan.ID = uuid.NewString()
	}
	validated, err := Validate(plan)
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancels[id] = cancel
	s.mu.Unlock()

	s.runs.Create(&RunRecord{
		ID:        id,
		PlanID:    validated.ID,
		StartedAt: time.Now().UTC(),
	})

	go func() {
		rep := s.sched.Execute(ctx, validated)
		if err := s.runs.Finish(id, rep); err != nil {
			s.log.Error("finish run failed", slog.String("run_id", id), slog.String("error", err.Error()))
		}
		s.mu.Lock()
		delete(s.cancels, id)
		s.mu.Unlock()
		cancel()
	}()

	return id, nil
}

// Run returns the tracked record for a run id.
func (s *Service) Run(id string) (RunRecord, bool) {
	return s.runs.Get(id)
}

// CancelRun signals the run's scheduler to stop. It returns false when
// the id is unknown or the run already finished. Cancellation is
// cooperative: the record flips to finished once the partial report lands.
func (s *Service) CancelRun(id string) bool {
	s.mu.Lock()
	cancel, ok := s.cancels[id]
	s.mu.Unlock()
	if !ok {
		return false
	}
	cancel()
	return true
}
