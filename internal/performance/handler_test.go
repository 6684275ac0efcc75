package performance

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"show-orchestrator/internal/platform/logger"
)

func newTestRouter(t *testing.T, gw Gateway) http.Handler {
	t.Helper()
	log := logger.Discard()
	planner := NewPlanner(nil, PlannerConfig{Seed: 1})
	sched := NewScheduler(gw, log, nil, SchedulerConfig{TimeScale: 0.01})
	runs := NewInMemoryRunRepository(time.Minute)
	svc := NewService(planner, sched, runs, log)

	r := chi.NewRouter()
	NewHandler(svc, log, nil).Routes(r)
	return r
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// pollRun polls the run endpoint until the record flips to finished.
func pollRun(t *testing.T, h http.Handler, runID string) RunRecord {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		rec := doJSON(t, h, http.MethodGet, "/performances/"+runID, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("GET run: status %d", rec.Code)
		}
		var run RunRecord
		if err := json.NewDecoder(rec.Body).Decode(&run); err != nil {
			t.Fatalf("decode run: %v", err)
		}
		if run.State == RunFinished {
			return run
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("run never finished")
	return RunRecord{}
}

func TestComposeChoreography(t *testing.T) {
	h := newTestRouter(t, NewSimGateway())

	rec := doJSON(t, h, http.MethodPost, "/choreographies", testAnalysis())
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var plan Plan
	if err := json.NewDecoder(rec.Body).Decode(&plan); err != nil {
		t.Fatalf("decode plan: %v", err)
	}
	if plan.ID == "" {
		t.Error("plan has no id")
	}
	if len(plan.Actions) == 0 {
		t.Error("plan has no actions")
	}
	if plan.TotalDuration != 15 {
		t.Errorf("total duration = %.1f, want 15", plan.TotalDuration)
	}
}

func TestComposeChoreography_bad_requests(t *testing.T) {
	h := newTestRouter(t, NewSimGateway())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/choreographies", strings.NewReader("{not json")))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed body: status = %d, want 400", rec.Code)
	}

	rec2 := doJSON(t, h, http.MethodPost, "/choreographies", MusicAnalysis{Duration: 10})
	if rec2.Code != http.StatusBadRequest {
		t.Errorf("no segments: status = %d, want 400", rec2.Code)
	}
}

func TestStartPerformance_and_poll(t *testing.T) {
	h := newTestRouter(t, NewSimGateway())

	rec := doJSON(t, h, http.MethodPost, "/performances", referencePlan())
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}
	var accepted map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&accepted); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	runID := accepted["run_id"]
	if runID == "" {
		t.Fatal("no run_id in response")
	}

	run := pollRun(t, h, runID)
	if run.Report == nil {
		t.Fatal("finished run has no report")
	}
	if run.Report.Status != StatusCompleted {
		t.Errorf("status = %s, want %s", run.Report.Status, StatusCompleted)
	}
	if run.Report.SuccessRate != 100 {
		t.Errorf("success rate = %.1f, want 100", run.Report.SuccessRate)
	}
}

func TestStartPerformance_rejects_invalid_plan(t *testing.T) {
	h := newTestRouter(t, NewSimGateway())

	plan := Plan{
		TotalDuration: 10,
		Actions: []Action{
			{ID: "d1", Channel: ChannelDance, Name: "dance_0001en", Start: 0, Duration: 5},
			{ID: "d2", Channel: ChannelDance, Name: "dance_0002en", Start: 3, Duration: 5},
		},
	}
	rec := doJSON(t, h, http.MethodPost, "/performances", plan)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
	var verr ValidationError
	if err := json.NewDecoder(rec.Body).Decode(&verr); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if verr.Kind != KindOverlap {
		t.Errorf("kind = %s, want %s", verr.Kind, KindOverlap)
	}
	if len(verr.ActionIDs) != 2 {
		t.Errorf("action ids = %v, want both overlapping ids", verr.ActionIDs)
	}
}

func TestStartPerformance_bad_requests(t *testing.T) {
	h := newTestRouter(t, NewSimGateway())

	rec := doJSON(t, h, http.MethodPost, "/performances", Plan{TotalDuration: 10})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty plan: status = %d, want 400", rec.Code)
	}
}

func TestGetRun_unknown(t *testing.T) {
	h := newTestRouter(t, NewSimGateway())
	rec := doJSON(t, h, http.MethodGet, "/performances/no-such-run", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestCancelRun_unknown(t *testing.T) {
	h := newTestRouter(t, NewSimGateway())
	rec := doJSON(t, h, http.MethodPost, "/performances/no-such-run/cancel", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestCancelRun_running(t *testing.T) {
	h := newTestRouter(t, NewSimGateway())

	// A plan long enough (1s wall at this time scale) to cancel mid-flight.
	plan := Plan{
		ID:            "plan-long",
		TotalDuration: 100,
		Actions: []Action{
			{ID: "d1", Channel: ChannelDance, Name: "dance_0001en", Start: 0, Duration: 90},
			{ID: "l1", Channel: ChannelLight, Name: "light", Start: 80, Duration: 10, Interruptible: true},
		},
	}
	rec := doJSON(t, h, http.MethodPost, "/performances", plan)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	var accepted map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&accepted); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	runID := accepted["run_id"]

	time.Sleep(50 * time.Millisecond)
	if got := doJSON(t, h, http.MethodPost, "/performances/"+runID+"/cancel", nil); got.Code != http.StatusOK {
		t.Fatalf("cancel: status = %d, want 200", got.Code)
	}

	run := pollRun(t, h, runID)
	if run.Report == nil || run.Report.Status != StatusCancelled {
		t.Fatalf("report = %+v, want cancelled", run.Report)
	}
	if r := run.Report; r.CountState(StateCancelled) == 0 {
		t.Error("no action was cancelled")
	}
}
