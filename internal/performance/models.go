package performance

import "sort"

// Channel identifies one of the independent command streams that share the
// single physical device. Actions on different channels may run concurrently;
// actions on the same channel never do.
type Channel string

const (
	ChannelDance      Channel = "dance"
	ChannelAction     Channel = "action"
	ChannelExpression Channel = "expression"
	ChannelLight      Channel = "light"
)

// AllChannels lists every channel in dispatch-priority order.
func AllChannels() []Channel {
	return []Channel{ChannelDance, ChannelAction, ChannelExpression, ChannelLight}
}

// Segment is a time-bounded slice of a music analysis with an energy value
// in [0,1] and an emotion label (e.g. "energetic", "calm").
type Segment struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Energy  float64 `json:"energy"`
	Emotion string  `json:"emotion"`
}

// Duration returns the segment span in seconds.
func (s Segment) Duration() float64 { return s.End - s.Start }

// MusicAnalysis is the finished analysis of a music track, consumed as-is.
// Feature extraction happens upstream; the planner only reads segments.
type MusicAnalysis struct {
	ID       string    `json:"id,omitempty"`
	Filename string    `json:"filename,omitempty"`
	Tempo    float64   `json:"tempo,omitempty"`
	Duration float64   `json:"duration"`
	Segments []Segment `json:"segments"`
}

// Action is a single timed command on one channel. Start and Duration are
// seconds relative to plan start. Interruptible actions may be clipped by the
// validator when a later action on the same channel overlaps them.
type Action struct {
	ID            string            `json:"id"`
	Channel       Channel           `json:"channel"`
	Name          string            `json:"name"`
	Start         float64           `json:"start_time"`
	Duration      float64           `json:"duration"`
	Params        map[string]string `json:"params,omitempty"`
	Interruptible bool              `json:"interruptible,omitempty"`
}

// End returns the exclusive end offset of the action's interval.
func (a Action) End() float64 { return a.Start + a.Duration }

// Param returns the named parameter or fallback when absent.
func (a Action) Param(key, fallback string) string {
	if v, ok := a.Params[key]; ok && v != "" {
		return v
	}
	return fallback
}

// Plan is the full set of timed actions produced for one performance run.
// A validated plan guarantees that, per channel, no two non-interruptible
// actions have overlapping [start, start+duration) intervals.
type Plan struct {
	ID            string   `json:"id"`
	TotalDuration float64  `json:"total_duration"`
	Actions       []Action `json:"actions"`
}

// ByChannel groups the plan's actions per channel, each group sorted by
// start time. The returned slices are copies.
func (p Plan) ByChannel() map[Channel][]Action {
	out := make(map[Channel][]Action)
	for _, a := range p.Actions {
		out[a.Channel] = append(out[a.Channel], a)
	}
	for ch := range out {
		sortByStart(out[ch])
	}
	return out
}

func sortByStart(actions []Action) {
	sort.SliceStable(actions, func(i, j int) bool {
		if actions[i].Start != actions[j].Start {
			return actions[i].Start < actions[j].Start
		}
		return actions[i].End() < actions[j].End()
	})
}
