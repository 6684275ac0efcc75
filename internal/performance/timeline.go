package performance

// interval is a half-open [Start, End) span on the plan timeline.
type interval struct {
	Start float64
	End   float64
}

// overlaps reports whether two half-open intervals intersect.
// Touching endpoints (a.End == b.Start) do not count as overlap.
func overlaps(a, b interval) bool {
	return a.Start < b.End && b.Start < a.End
}

// actionInterval returns the action's interval on the plan timeline.
func actionInterval(a Action) interval {
	return interval{Start: a.Start, End: a.End()}
}

// coverageGaps returns the uncovered spans of [0, total) given a set of
// actions sorted by start time. Spans shorter than minGap are dropped so
// callers don't schedule filler moves into slivers. Intervals may overlap;
// the sweep keeps the running maximum end.
func coverageGaps(actions []Action, total, minGap float64) []interval {
	if total <= 0 {
		return nil
	}
	var gaps []interval
	cursor := 0.0
	for _, a := range actions {
		if a.Start > cursor && a.Start-cursor >= minGap {
			gaps = append(gaps, interval{Start: cursor, End: a.Start})
		}
		if a.End() > cursor {
			cursor = a.End()
		}
	}
	if cursor < total && total-cursor >= minGap {
		gaps = append(gaps, interval{Start: cursor, End: total})
	}
	return gaps
}

// clampToTotal truncates the action so its end never exceeds the plan's
// total duration. Actions starting at or past the end are zeroed out
// (duration <= 0) and should be dropped by the caller.
func clampToTotal(a Action, total float64) Action {
	if a.Start >= total {
		a.Duration = 0
		return a
	}
	if a.End() > total {
		a.Duration = total - a.Start
	}
	return a
}
