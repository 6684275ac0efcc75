package performance

import (
	"fmt"
	"sync"
	"time"
)

// ActionState is the per-action execution lifecycle:
// pending → dispatched → acknowledged | failed → (completed | cancelled).
type ActionState string

const (
	StatePending      ActionState = "pending"
	StateDispatched   ActionState = "dispatched"
	StateAcknowledged ActionState = "acknowledged"
	StateFailed       ActionState = "failed"
	StateCompleted    ActionState = "completed"
	StateCancelled    ActionState = "cancelled"
)

func (s ActionState) terminal() bool {
	return s == StateFailed || s == StateCompleted || s == StateCancelled
}

// RunStatus is the overall outcome of one scheduler run.
type RunStatus string

const (
	StatusCompleted RunStatus = "completed"
	StatusCancelled RunStatus = "cancelled"
	// StatusAborted means connectivity was lost on every channel; some
	// actions may have executed and completion is not guaranteed.
	StatusAborted RunStatus = "aborted"
)

// Tier is one execution strategy of the fallback cascade, ordered from
// most to least timing-precise.
type Tier string

const (
	TierSynchronized Tier = "synchronized"
	TierContinuous   Tier = "continuous"
	TierIndividual   Tier = "individual"
)

// ActionResult is the final record of one action. DispatchedAt is in plan
// seconds from the run's t0, or -1 when the action was never dispatched.
type ActionResult struct {
	ActionID        string      `json:"action_id"`
	Channel         Channel     `json:"channel"`
	Name            string      `json:"name"`
	PlannedStart    float64     `json:"planned_start"`
	PlannedDuration float64     `json:"planned_duration"`
	DispatchedAt    float64     `json:"dispatched_at"`
	State           ActionState `json:"final_state"`
	Error           string      `json:"error,omitempty"`
}

// LogEntry is one chronological execution event, timed in plan seconds.
type LogEntry struct {
	Elapsed  float64 `json:"elapsed"`
	Event    string  `json:"event"`
	ActionID string  `json:"action_id,omitempty"`
}

// FeaturesUsed flags which strategy tiers actually ran in this run.
type FeaturesUsed struct {
	Synchronized bool `json:"synchronized"`
	Continuous   bool `json:"continuous"`
	Individual   bool `json:"individual"`
}

// Report aggregates per-action outcomes for one scheduler run. It is
// assembled once and immutable thereafter.
type Report struct {
	PlanID       string              `json:"plan_id"`
	Status       RunStatus           `json:"status"`
	Results      []ActionResult      `json:"results"`
	ExecutionLog []LogEntry          `json:"execution_log"`
	SuccessRate  float64             `json:"success_rate"`
	ChannelRates map[Channel]float64 `json:"channel_success_rates"`
	FeaturesUsed FeaturesUsed        `json:"features_used"`
	Downgrades   []string            `json:"downgrades,omitempty"`
	StartedAt    time.Time           `json:"started_at"`
	FinishedAt   time.Time           `json:"finished_at"`
}

// CountState returns how many actions ended in the given state.
func (r *Report) CountState(s ActionState) int {
	n := 0
	for _, res := range r.Results {
		if res.State == s {
			n++
		}
	}
	return n
}

// reportBuilder is the shared accumulator the channel loops write into.
// One write lock guards it; the final Report is only read after every
// loop has finished.
type reportBuilder struct {
	mu       sync.Mutex
	plan     Plan
	order    []string
	results  map[string]*ActionResult
	log      []LogEntry
	features FeaturesUsed
	downs    []string
}

func newReportBuilder(plan Plan) *reportBuilder {
	sorted := make([]Action, len(plan.Actions))
	copy(sorted, plan.Actions)
	sortByStart(sorted)

	b := &reportBuilder{
		plan:    plan,
		results: make(map[string]*ActionResult, len(plan.Actions)),
	}
	for _, a := range sorted {
		b.order = append(b.order, a.ID)
		b.results[a.ID] = &ActionResult{
			ActionID:        a.ID,
			Channel:         a.Channel,
			Name:            a.Name,
			PlannedStart:    a.Start,
			PlannedDuration: a.Duration,
			DispatchedAt:    -1,
			State:           StatePending,
		}
	}
	return b
}

func (b *reportBuilder) event(elapsed float64, event, actionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.log = append(b.log, LogEntry{Elapsed: elapsed, Event: event, ActionID: actionID})
}

func (b *reportBuilder) markDispatched(id string, at float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if r := b.results[id]; r != nil && !r.State.terminal() {
		r.State = StateDispatched
		r.DispatchedAt = at
	}
}

func (b *reportBuilder) markAcknowledged(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if r := b.results[id]; r != nil && !r.State.terminal() {
		r.State = StateAcknowledged
	}
}

func (b *reportBuilder) markCompleted(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if r := b.results[id]; r != nil && !r.State.terminal() {
		r.State = StateCompleted
	}
}

func (b *reportBuilder) markFailed(id string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if r := b.results[id]; r != nil && !r.State.terminal() {
		r.State = StateFailed
		if err != nil {
			r.Error = err.Error()
		}
	}
}

func (b *reportBuilder) markCancelled(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if r := b.results[id]; r != nil && !r.State.terminal() {
		r.State = StateCancelled
	}
}

func (b *reportBuilder) state(id string) ActionState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if r := b.results[id]; r != nil {
		return r.State
	}
	return ""
}

// pendingActions returns plan actions still pending, sorted by start, for
// handing off to a lower tier.
func (b *reportBuilder) pendingActions() []Action {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []Action
	for _, a := range b.plan.Actions {
		if r := b.results[a.ID]; r != nil && r.State == StatePending {
			out = append(out, a)
		}
	}
	sortByStart(out)
	return out
}

func (b *reportBuilder) useTier(t Tier) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch t {
	case TierSynchronized:
		b.features.Synchronized = true
	case TierContinuous:
		b.features.Continuous = true
	case TierIndividual:
		b.features.Individual = true
	}
}

func (b *reportBuilder) downgrade(elapsed float64, from, to Tier, reason string) {
	msg := fmt.Sprintf("downgrade %s -> %s: %s", from, to, reason)
	b.mu.Lock()
	b.downs = append(b.downs, msg)
	b.log = append(b.log, LogEntry{Elapsed: elapsed, Event: msg})
	b.mu.Unlock()
}

func (b *reportBuilder) finish(status RunStatus, started, finished time.Time) *Report {
	b.mu.Lock()
	defer b.mu.Unlock()

	rep := &Report{
		PlanID:       b.plan.ID,
		Status:       status,
		ExecutionLog: b.log,
		ChannelRates: make(map[Channel]float64),
		FeaturesUsed: b.features,
		Downgrades:   b.downs,
		StartedAt:    started,
		FinishedAt:   finished,
	}

	total := 0
	completed := 0
	chTotal := make(map[Channel]int)
	chDone := make(map[Channel]int)
	for _, id := range b.order {
		r := b.results[id]
		rep.Results = append(rep.Results, *r)
		total++
		chTotal[r.Channel]++
		if r.State == StateCompleted {
			completed++
			chDone[r.Channel]++
		}
	}
	if total > 0 {
		rep.SuccessRate = float64(completed) / float64(total) * 100
	}
	for ch, n := range chTotal {
		rep.ChannelRates[ch] = float64(chDone[ch]) / float64(n) * 100
	}
	return rep
}
