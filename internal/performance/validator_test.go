package performance

import (
	"errors"
	"reflect"
	"testing"
)

func TestValidate_valid_plan_is_identical(t *testing.T) {
	plan := Plan{
		ID:            "p1",
		TotalDuration: 10,
		Actions: []Action{
			{ID: "d1", Channel: ChannelDance, Name: "dance_0002en", Start: 0, Duration: 5},
			{ID: "d2", Channel: ChannelDance, Name: "dance_0007en", Start: 5, Duration: 5},
			{ID: "l1", Channel: ChannelLight, Name: "mouth_lamp", Start: 0, Duration: 10, Interruptible: true},
		},
	}

	got, err := Validate(plan)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(got.Actions) != len(plan.Actions) {
		t.Fatalf("expected %d actions, got %d", len(plan.Actions), len(got.Actions))
	}
	for i, a := range got.Actions {
		if !reflect.DeepEqual(a, plan.Actions[i]) {
			t.Errorf("action %d changed: got %+v, want %+v", i, a, plan.Actions[i])
		}
	}
}

func TestValidate_idempotent(t *testing.T) {
	plan := Plan{
		ID:            "p1",
		TotalDuration: 6,
		Actions: []Action{
			{ID: "l1", Channel: ChannelLight, Start: 0, Duration: 6, Interruptible: true},
			{ID: "l2", Channel: ChannelLight, Start: 3, Duration: 3, Interruptible: true},
		},
	}

	once, err := Validate(plan)
	if err != nil {
		t.Fatalf("first Validate: %v", err)
	}
	twice, err := Validate(once)
	if err != nil {
		t.Fatalf("second Validate: %v", err)
	}
	for i := range once.Actions {
		if !reflect.DeepEqual(once.Actions[i], twice.Actions[i]) {
			t.Errorf("re-validation changed action %d: %+v vs %+v", i, once.Actions[i], twice.Actions[i])
		}
	}
}

func TestValidate_repairs_interruptible_overlap(t *testing.T) {
	// The light channel schedules a second lamp mid-segment; validation
	// must clip the first to end where the second starts.
	plan := Plan{
		ID:            "p1",
		TotalDuration: 6,
		Actions: []Action{
			{ID: "l1", Channel: ChannelLight, Start: 0, Duration: 6, Interruptible: true},
			{ID: "l2", Channel: ChannelLight, Start: 3, Duration: 3, Interruptible: true},
		},
	}

	got, err := Validate(plan)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	var clipped Action
	for _, a := range got.Actions {
		if a.ID == "l1" {
			clipped = a
		}
	}
	if clipped.End() != 3 {
		t.Errorf("expected l1 clipped to end at 3.0, got %v", clipped.End())
	}
}

func TestValidate_rejects_non_interruptible_overlap(t *testing.T) {
	plan := Plan{
		ID:            "p1",
		TotalDuration: 10,
		Actions: []Action{
			{ID: "d1", Channel: ChannelDance, Start: 0, Duration: 5},
			{ID: "d2", Channel: ChannelDance, Start: 3, Duration: 4},
		},
	}

	_, err := Validate(plan)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if verr.Kind != KindOverlap {
		t.Errorf("expected overlap kind, got %s", verr.Kind)
	}
	if len(verr.ActionIDs) != 2 || verr.ActionIDs[0] != "d1" || verr.ActionIDs[1] != "d2" {
		t.Errorf("expected conflicting ids [d1 d2], got %v", verr.ActionIDs)
	}
}

func TestValidate_rejects_same_start_overlap(t *testing.T) {
	// Both interruptible but identical starts: clipping cannot repair.
	plan := Plan{
		ID:            "p1",
		TotalDuration: 10,
		Actions: []Action{
			{ID: "l1", Channel: ChannelLight, Start: 2, Duration: 4, Interruptible: true},
			{ID: "l2", Channel: ChannelLight, Start: 2, Duration: 6, Interruptible: true},
		},
	}

	_, err := Validate(plan)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if verr.Kind != KindOverlap {
		t.Errorf("expected overlap kind, got %s", verr.Kind)
	}
}

func TestValidate_rejects_bad_intervals(t *testing.T) {
	cases := []struct {
		name string
		a    Action
		kind ValidationKind
	}{
		{"negative_start", Action{ID: "a", Channel: ChannelDance, Start: -1, Duration: 2}, KindOutOfRange},
		{"past_total", Action{ID: "a", Channel: ChannelDance, Start: 9, Duration: 2}, KindOutOfRange},
		{"zero_duration", Action{ID: "a", Channel: ChannelDance, Start: 1, Duration: 0}, KindNonPositive},
		{"negative_duration", Action{ID: "a", Channel: ChannelDance, Start: 1, Duration: -2}, KindNonPositive},
		{"unknown_channel", Action{ID: "a", Channel: "tail", Start: 1, Duration: 2}, KindUnknownChannel},
		{"missing_id", Action{Channel: ChannelDance, Start: 1, Duration: 2}, KindMissingActionID},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Validate(Plan{ID: "p", TotalDuration: 10, Actions: []Action{tc.a}})
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Kind != tc.kind {
				t.Errorf("expected kind %s, got %s", tc.kind, verr.Kind)
			}
		})
	}
}

func TestValidate_rejects_duplicate_ids(t *testing.T) {
	plan := Plan{
		ID:            "p",
		TotalDuration: 10,
		Actions: []Action{
			{ID: "x", Channel: ChannelDance, Start: 0, Duration: 2},
			{ID: "x", Channel: ChannelLight, Start: 0, Duration: 2},
		},
	}
	_, err := Validate(plan)
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Kind != KindDuplicateAction {
		t.Fatalf("expected duplicate id error, got %v", err)
	}
}

// The reference scenario: a light-channel overlap repaired by clipping,
// leaving four conflict-free actions.
func TestValidate_reference_scenario(t *testing.T) {
	plan := Plan{
		ID:            "scenario",
		TotalDuration: 6.0,
		Actions: []Action{
			{ID: "d1", Channel: ChannelDance, Name: "dance_0002en", Start: 1.0, Duration: 4.0},
			{ID: "lg", Channel: ChannelLight, Name: "mouth_lamp", Start: 0.0, Duration: 6.0, Interruptible: true,
				Params: map[string]string{"color": ColorGreen, "mode": LightModeBreath}},
			{ID: "ly", Channel: ChannelLight, Name: "mouth_lamp", Start: 3.0, Duration: 3.0, Interruptible: true,
				Params: map[string]string{"color": ColorYellow, "mode": LightModeNormal}},
			{ID: "e1", Channel: ChannelExpression, Name: "smile", Start: 2.0, Duration: 2.5, Interruptible: true},
		},
	}

	got, err := Validate(plan)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(got.Actions) != 4 {
		t.Fatalf("expected 4 actions, got %d", len(got.Actions))
	}
	for _, a := range got.Actions {
		if a.ID == "lg" && a.End() != 3.0 {
			t.Errorf("green breath light should be clipped to end at 3.0, got %v", a.End())
		}
		if a.ID == "ly" && (a.Start != 3.0 || a.End() != 6.0) {
			t.Errorf("yellow light should be untouched, got [%v, %v)", a.Start, a.End())
		}
	}
}
