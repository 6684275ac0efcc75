package performance

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/google/uuid"
)

// Planner defaults.
const (
	DefaultMinDanceDuration = 2.0
	DefaultMaxExpression    = 2.5
	DefaultPeakEnergy       = 0.7
	DefaultRecentMemory     = 6

	minFillerGap    = 1.0
	introDuration   = 2.0
	outroDuration   = 1.6
	secondLightSpan = 6.0
)

// PlannerConfig tunes plan generation. Zero values fall back to defaults.
type PlannerConfig struct {
	// MinDanceDuration is the shortest segment that still gets a dance.
	MinDanceDuration float64
	// MaxExpressionDuration caps an expression window.
	MaxExpressionDuration float64
	// PeakEnergy is the energy at or above which a segment counts as a
	// peak: lights switch to normal mode and may get a mid-segment accent.
	PeakEnergy float64
	// RecentMemory is how many recent dance/expression names to avoid
	// repeating across consecutive segments.
	RecentMemory int
	// Seed makes generation reproducible; 0 leaves the RNG unseeded-ish
	// (seeded with 1, matching math/rand's default source behavior).
	Seed int64
}

func (c PlannerConfig) withDefaults() PlannerConfig {
	if c.MinDanceDuration <= 0 {
		c.MinDanceDuration = DefaultMinDanceDuration
	}
	if c.MaxExpressionDuration <= 0 {
		c.MaxExpressionDuration = DefaultMaxExpression
	}
	if c.PeakEnergy <= 0 {
		c.PeakEnergy = DefaultPeakEnergy
	}
	if c.RecentMemory <= 0 {
		c.RecentMemory = DefaultRecentMemory
	}
	if c.Seed == 0 {
		c.Seed = 1
	}
	return c
}

// Planner turns a segmented music analysis into a multi-channel plan.
// It is not safe for concurrent use; construct one per generation or
// guard it externally.
type Planner struct {
	catalog    *Catalog
	cfg        PlannerConfig
	rng        *rand.Rand
	recent     []string
	recentExpr []string
	seq        int
}

// NewPlanner returns a Planner over the given catalog.
func NewPlanner(catalog *Catalog, cfg PlannerConfig) *Planner {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	cfg = cfg.withDefaults()
	return &Planner{
		catalog: catalog,
		cfg:     cfg,
		rng:     rand.New(rand.NewSource(cfg.Seed)),
	}
}

// Generate builds an unvalidated plan from the analysis. Dance actions are
// chosen best-fit per segment and may span merged contiguous segments;
// expressions anchor near energy peaks; lights span each segment with an
// emotion-derived color, an optional mid-segment accent light implicitly
// ending the first; filler moves cover spans with no dance. Validation is
// a separate step.
func (p *Planner) Generate(analysis MusicAnalysis) Plan {
	p.recent = nil
	p.recentExpr = nil
	p.seq = 0

	total := analysis.Duration
	if total <= 0 {
		for _, s := range analysis.Segments {
			if s.End > total {
				total = s.End
			}
		}
	}

	plan := Plan{ID: uuid.NewString(), TotalDuration: total}
	if total <= 0 || len(analysis.Segments) == 0 {
		return plan
	}

	dances := p.planDances(analysis.Segments, total)
	plan.Actions = append(plan.Actions, dances...)
	plan.Actions = append(plan.Actions, p.planExpressions(analysis.Segments, total)...)
	plan.Actions = append(plan.Actions, p.planLights(analysis.Segments, total)...)
	plan.Actions = append(plan.Actions, p.planFillers(analysis.Segments, dances, total)...)

	// Final truncation pass: nothing may outlive the plan.
	kept := plan.Actions[:0]
	for _, a := range plan.Actions {
		a = clampToTotal(a, total)
		if a.Duration > 0 {
			kept = append(kept, a)
		}
	}
	plan.Actions = kept
	return plan
}

// planDances picks at most one dance per segment, merging contiguous
// segments when a move's natural duration outgrows a single one. Segments
// shorter than the minimum dance duration get no dance at all.
func (p *Planner) planDances(segments []Segment, total float64) []Action {
	var out []Action
	for i := 0; i < len(segments); i++ {
		seg := segments[i]
		if seg.Duration() < p.cfg.MinDanceDuration {
			continue
		}
		move := p.pickDance(seg.Energy, seg.Duration())

		// Merge following contiguous segments while the move needs more room.
		span := seg.Duration()
		end := seg.End
		for span < move.Duration && i+1 < len(segments) && contiguous(end, segments[i+1].Start) {
			i++
			end = segments[i].End
			span = end - seg.Start
		}

		out = append(out, Action{
			ID:       p.nextID(ChannelDance),
			Channel:  ChannelDance,
			Name:     move.Name,
			Start:    seg.Start,
			Duration: math.Min(move.Duration, span),
		})
	}
	return out
}

// planExpressions schedules at most one short expression window per
// segment, anchored past the segment start, never overlapping the previous
// expression on the channel.
func (p *Planner) planExpressions(segments []Segment, total float64) []Action {
	var out []Action
	prevEnd := 0.0
	for _, seg := range segments {
		pool := p.catalog.ExpressionsFor(seg.Emotion)
		if len(pool) == 0 {
			continue
		}
		expr := p.pickExpression(pool)
		start := seg.Start + math.Min(1.0, seg.Duration()*0.4)
		if start < prevEnd {
			start = prevEnd
		}
		dur := math.Min(p.cfg.MaxExpressionDuration, seg.Duration()*0.4)
		if dur <= 0 || start+dur > seg.End {
			continue
		}
		out = append(out, Action{
			ID:            p.nextID(ChannelExpression),
			Channel:       ChannelExpression,
			Name:          expr.Name,
			Start:         start,
			Duration:      dur,
			Params:        map[string]string{"emotion": seg.Emotion},
			Interruptible: true,
		})
		prevEnd = start + dur
	}
	return out
}

// planLights spans each segment with a light in an emotion-allowed color,
// breath mode by default and normal mode on energy peaks. Long peak
// segments get a second mid-segment accent light; the validator clips the
// first light to end where the accent starts.
func (p *Planner) planLights(segments []Segment, total float64) []Action {
	var out []Action
	for _, seg := range segments {
		colors := p.catalog.ColorsFor(seg.Emotion)
		color := colors[p.rng.Intn(len(colors))]
		mode := LightModeBreath
		if seg.Energy >= p.cfg.PeakEnergy {
			mode = LightModeNormal
		}
		out = append(out, Action{
			ID:            p.nextID(ChannelLight),
			Channel:       ChannelLight,
			Name:          "mouth_lamp",
			Start:         seg.Start,
			Duration:      seg.Duration(),
			Params:        map[string]string{"color": color, "mode": mode},
			Interruptible: true,
		})
		if seg.Duration() >= secondLightSpan && seg.Energy >= p.cfg.PeakEnergy {
			accent := colors[p.rng.Intn(len(colors))]
			mid := seg.Start + seg.Duration()/2
			out = append(out, Action{
				ID:            p.nextID(ChannelLight),
				Channel:       ChannelLight,
				Name:          "mouth_lamp",
				Start:         mid,
				Duration:      seg.End - mid,
				Params:        map[string]string{"color": accent, "mode": LightModeNormal},
				Interruptible: true,
			})
		}
	}
	return out
}

// planFillers covers dance-free spans with small body moves, plus an intro
// at plan start and an outro near plan end on the same channel.
func (p *Planner) planFillers(segments []Segment, dances []Action, total float64) []Action {
	var out []Action
	cursor := 0.0

	intro := p.catalog.Intros
	if len(intro) > 0 {
		dur := math.Min(introDuration, total)
		out = append(out, Action{
			ID:       p.nextID(ChannelAction),
			Channel:  ChannelAction,
			Name:     intro[p.rng.Intn(len(intro))],
			Start:    0,
			Duration: dur,
			Params:   map[string]string{"purpose": "intro"},
		})
		cursor = dur
	}

	outroStart := total
	if len(p.catalog.Outros) > 0 && total-outroDuration >= cursor {
		outroStart = total - outroDuration
	}

	for _, gap := range coverageGaps(dances, total, minFillerGap) {
		t := math.Max(gap.Start, cursor)
		for t < gap.End && t < outroStart {
			energy := energyAt(segments, t)
			pool := p.catalog.FillersFor(energy)
			move := pool[p.rng.Intn(len(pool))]
			dur := math.Min(move.Duration, math.Min(gap.End, outroStart)-t)
			if dur < 0.5 {
				break
			}
			out = append(out, Action{
				ID:       p.nextID(ChannelAction),
				Channel:  ChannelAction,
				Name:     move.Name,
				Start:    t,
				Duration: dur,
				Params:   map[string]string{"purpose": "fill"},
			})
			t += dur
		}
	}

	if outroStart < total {
		out = append(out, Action{
			ID:       p.nextID(ChannelAction),
			Channel:  ChannelAction,
			Name:     p.catalog.Outros[p.rng.Intn(len(p.catalog.Outros))],
			Start:    outroStart,
			Duration: total - outroStart,
			Params:   map[string]string{"purpose": "outro"},
		})
	}
	return out
}

// pickDance picks the move whose natural duration best fits the span,
// avoiding recently used names for variety.
func (p *Planner) pickDance(energy, span float64) Move {
	pool := p.catalog.DancesFor(energy)
	candidates := pool
	if fresh := withoutRecent(pool, p.recent); len(fresh) > 0 {
		candidates = fresh
	}
	best := candidates[0]
	for _, m := range candidates[1:] {
		if math.Abs(m.Duration-span) < math.Abs(best.Duration-span) {
			best = m
		}
	}
	p.remember(&p.recent, best.Name)
	return best
}

func (p *Planner) pickExpression(pool []Expression) Expression {
	fresh := pool[:0:0]
	for _, e := range pool {
		if !contains(p.recentExpr, e.Name) {
			fresh = append(fresh, e)
		}
	}
	if len(fresh) == 0 {
		fresh = pool
	}
	chosen := fresh[p.rng.Intn(len(fresh))]
	p.remember(&p.recentExpr, chosen.Name)
	return chosen
}

func (p *Planner) remember(list *[]string, name string) {
	*list = append(*list, name)
	if len(*list) > p.cfg.RecentMemory {
		*list = (*list)[1:]
	}
}

func (p *Planner) nextID(ch Channel) string {
	p.seq++
	return fmt.Sprintf("%s-%d", ch, p.seq)
}

func withoutRecent(pool []Move, recent []string) []Move {
	var out []Move
	for _, m := range pool {
		if !contains(recent, m.Name) {
			out = append(out, m)
		}
	}
	return out
}

func contains(list []string, name string) bool {
	for _, s := range list {
		if s == name {
			return true
		}
	}
	return false
}

func contiguous(end, nextStart float64) bool {
	return math.Abs(nextStart-end) < 1e-9
}

// energyAt returns the energy of the segment covering t, or 0.5 when t
// falls between segments.
func energyAt(segments []Segment, t float64) float64 {
	for _, s := range segments {
		if t >= s.Start && t < s.End {
			return s.Energy
		}
	}
	return 0.5
}
