package performance

import (
	"fmt"
	"sort"
	"strings"
)

// ValidationKind classifies why a plan was rejected.
type ValidationKind string

const (
	KindOutOfRange      ValidationKind = "out_of_range"
	KindNonPositive     ValidationKind = "non_positive_duration"
	KindOverlap         ValidationKind = "overlap"
	KindUnknownChannel  ValidationKind = "unknown_channel"
	KindDuplicateAction ValidationKind = "duplicate_action_id"
	KindMissingActionID ValidationKind = "missing_action_id"
)

// ValidationError rejects a plan before any physical dispatch. It names
// the offending action IDs so callers can surface them.
type ValidationError struct {
	Kind      ValidationKind `json:"kind"`
	ActionIDs []string       `json:"action_ids"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("plan validation failed: %s (%s)", e.Kind, strings.Join(e.ActionIDs, ", "))
}

// Validate checks per-channel scheduling invariants and returns either the
// plan (possibly repaired) or a ValidationError. Repair policy: when two
// same-channel actions overlap and both are interruptible, the earlier
// action's end is clipped to the later action's start. Any remaining
// overlap, or an overlap touching a non-interruptible action, rejects the
// plan. Validate is idempotent: an already-valid plan comes back
// unchanged.
func Validate(p Plan) (Plan, error) {
	actions := make([]Action, len(p.Actions))
	copy(actions, p.Actions)

	seen := make(map[string]bool, len(actions))
	for _, a := range actions {
		if a.ID == "" {
			return Plan{}, &ValidationError{Kind: KindMissingActionID, ActionIDs: []string{a.Name}}
		}
		if seen[a.ID] {
			return Plan{}, &ValidationError{Kind: KindDuplicateAction, ActionIDs: []string{a.ID}}
		}
		seen[a.ID] = true
		if !validChannel(a.Channel) {
			return Plan{}, &ValidationError{Kind: KindUnknownChannel, ActionIDs: []string{a.ID}}
		}
		if a.Duration <= 0 {
			return Plan{}, &ValidationError{Kind: KindNonPositive, ActionIDs: []string{a.ID}}
		}
		if a.Start < 0 || a.End() > p.TotalDuration {
			return Plan{}, &ValidationError{Kind: KindOutOfRange, ActionIDs: []string{a.ID}}
		}
	}

	// Per channel: repair interruptible overlaps by clipping, then reject
	// anything still overlapping.
	byChannel := make(map[Channel][]int)
	for i, a := range actions {
		byChannel[a.Channel] = append(byChannel[a.Channel], i)
	}
	for _, idxs := range byChannel {
		sort.SliceStable(idxs, func(i, j int) bool {
			ai, aj := actions[idxs[i]], actions[idxs[j]]
			if ai.Start != aj.Start {
				return ai.Start < aj.Start
			}
			return ai.End() < aj.End()
		})
		for k := 0; k+1 < len(idxs); k++ {
			prev, cur := &actions[idxs[k]], &actions[idxs[k+1]]
			if !overlaps(actionInterval(*prev), actionInterval(*cur)) {
				continue
			}
			if prev.Interruptible && cur.Interruptible && cur.Start > prev.Start {
				prev.Duration = cur.Start - prev.Start
				continue
			}
			return Plan{}, &ValidationError{Kind: KindOverlap, ActionIDs: []string{prev.ID, cur.ID}}
		}
	}

	p.Actions = actions
	return p, nil
}

func validChannel(ch Channel) bool {
	for _, c := range AllChannels() {
		if c == ch {
			return true
		}
	}
	return false
}
