package performance

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Light colors and modes understood by the device.
const (
	ColorRed    = "red"
	ColorGreen  = "green"
	ColorBlue   = "blue"
	ColorYellow = "yellow"
	ColorPurple = "purple"
	ColorCyan   = "cyan"
	ColorWhite  = "white"

	LightModeNormal = "normal"
	LightModeBreath = "breath"
)

// ValidColor reports whether the device supports the given light color.
func ValidColor(c string) bool {
	switch c {
	case ColorRed, ColorGreen, ColorBlue, ColorYellow, ColorPurple, ColorCyan, ColorWhite:
		return true
	}
	return false
}

// Move is a dance or body move the device ships with. Duration is the
// move's natural length in seconds; MinEnergy/MaxEnergy bound the segment
// energies the move suits.
type Move struct {
	Name      string  `yaml:"name"`
	Duration  float64 `yaml:"duration"`
	MinEnergy float64 `yaml:"min_energy"`
	MaxEnergy float64 `yaml:"max_energy"`
}

// Expression is a facial animation tagged with the emotions it fits.
type Expression struct {
	Name     string   `yaml:"name"`
	Emotions []string `yaml:"emotions"`
}

// Catalog holds the device's move library and the emotion-to-color table
// the planner draws from. Defaults mirror the performer robot's built-in
// library; a YAML file can override any section.
type Catalog struct {
	Dances        []Move              `yaml:"dances"`
	Expressions   []Expression        `yaml:"expressions"`
	Fillers       []Move              `yaml:"fillers"`
	Intros        []string            `yaml:"intros"`
	Outros        []string            `yaml:"outros"`
	EmotionColors map[string][]string `yaml:"emotion_colors"`
}

// DefaultCatalog returns the built-in move library.
func DefaultCatalog() *Catalog {
	return &Catalog{
		Dances: []Move{
			{Name: "dance_0001en", Duration: 9.0, MinEnergy: 0.6, MaxEnergy: 1.0},
			{Name: "dance_0003en", Duration: 7.5, MinEnergy: 0.6, MaxEnergy: 1.0},
			{Name: "dance_0008en", Duration: 8.0, MinEnergy: 0.6, MaxEnergy: 1.0},
			{Name: "dance_0011en", Duration: 10.0, MinEnergy: 0.6, MaxEnergy: 1.0},
			{Name: "dance_0002en", Duration: 6.0, MinEnergy: 0.35, MaxEnergy: 0.7},
			{Name: "dance_0006en", Duration: 7.0, MinEnergy: 0.35, MaxEnergy: 0.7},
			{Name: "dance_0007en", Duration: 5.5, MinEnergy: 0.35, MaxEnergy: 0.7},
			{Name: "dance_0009en", Duration: 6.5, MinEnergy: 0.35, MaxEnergy: 0.7},
			{Name: "dance_0004en", Duration: 6.0, MinEnergy: 0.0, MaxEnergy: 0.4},
			{Name: "dance_0005en", Duration: 8.0, MinEnergy: 0.0, MaxEnergy: 0.4},
			{Name: "dance_0013", Duration: 5.0, MinEnergy: 0.0, MaxEnergy: 0.4},
			{Name: "custom_0035", Duration: 7.0, MinEnergy: 0.0, MaxEnergy: 0.4},
		},
		Expressions: []Expression{
			{Name: "smile", Emotions: []string{"happy", "friendly", "gentle"}},
			{Name: "laugh", Emotions: []string{"happy", "playful", "excited"}},
			{Name: "wink", Emotions: []string{"playful", "happy"}},
			{Name: "cool", Emotions: []string{"energetic", "powerful", "confident"}},
			{Name: "shine", Emotions: []string{"energetic", "excited"}},
			{Name: "relax", Emotions: []string{"calm", "peaceful", "gentle"}},
			{Name: "dream", Emotions: []string{"calm", "peaceful"}},
		},
		Fillers: []Move{
			{Name: "random_short3", Duration: 1.2, MinEnergy: 0.0, MaxEnergy: 1.0},
			{Name: "random_short4", Duration: 1.5, MinEnergy: 0.0, MaxEnergy: 1.0},
			{Name: "017", Duration: 2.0, MinEnergy: 0.3, MaxEnergy: 1.0},
			{Name: "037", Duration: 1.6, MinEnergy: 0.0, MaxEnergy: 0.7},
			{Name: "038", Duration: 1.6, MinEnergy: 0.0, MaxEnergy: 0.7},
		},
		Intros: []string{"017", "random_short3", "random_short4"},
		Outros: []string{"037", "038", "random_short3"},
		EmotionColors: map[string][]string{
			"energetic": {ColorRed, ColorYellow, ColorCyan},
			"happy":     {ColorYellow, ColorGreen, ColorCyan},
			"calm":      {ColorBlue, ColorGreen, ColorWhite},
			"powerful":  {ColorRed, ColorPurple, ColorBlue},
			"excited":   {ColorRed, ColorYellow, ColorPurple},
			"peaceful":  {ColorBlue, ColorWhite, ColorGreen},
			"gentle":    {ColorGreen, ColorWhite, ColorBlue},
			"playful":   {ColorPurple, ColorCyan, ColorYellow},
		},
	}
}

// LoadCatalog reads a YAML catalog file and overlays it on the defaults:
// any section present in the file replaces the default section wholesale.
// Unknown light colors in the emotion table are rejected.
func LoadCatalog(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var loaded Catalog
	if err := yaml.Unmarshal(raw, &loaded); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	cat := DefaultCatalog()
	if len(loaded.Dances) > 0 {
		cat.Dances = loaded.Dances
	}
	if len(loaded.Expressions) > 0 {
		cat.Expressions = loaded.Expressions
	}
	if len(loaded.Fillers) > 0 {
		cat.Fillers = loaded.Fillers
	}
	if len(loaded.Intros) > 0 {
		cat.Intros = loaded.Intros
	}
	if len(loaded.Outros) > 0 {
		cat.Outros = loaded.Outros
	}
	if len(loaded.EmotionColors) > 0 {
		for emotion, colors := range loaded.EmotionColors {
			for _, c := range colors {
				if !ValidColor(c) {
					return nil, fmt.Errorf("catalog: emotion %q maps to unsupported color %q", emotion, c)
				}
			}
		}
		cat.EmotionColors = loaded.EmotionColors
	}
	return cat, nil
}

// DancesFor returns the dances suited to the given segment energy.
// An empty result falls back to the whole library so a segment is never
// left without candidates.
func (c *Catalog) DancesFor(energy float64) []Move {
	var out []Move
	for _, d := range c.Dances {
		if energy >= d.MinEnergy && energy <= d.MaxEnergy {
			out = append(out, d)
		}
	}
	if len(out) == 0 {
		return c.Dances
	}
	return out
}

// FillersFor returns filler moves suited to the given energy.
func (c *Catalog) FillersFor(energy float64) []Move {
	var out []Move
	for _, f := range c.Fillers {
		if energy >= f.MinEnergy && energy <= f.MaxEnergy {
			out = append(out, f)
		}
	}
	if len(out) == 0 {
		return c.Fillers
	}
	return out
}

// ExpressionsFor returns the expressions tagged with the given emotion.
func (c *Catalog) ExpressionsFor(emotion string) []Expression {
	var out []Expression
	for _, e := range c.Expressions {
		for _, tag := range e.Emotions {
			if tag == emotion {
				out = append(out, e)
				break
			}
		}
	}
	return out
}

// ColorsFor returns the allowed light colors for the given emotion,
// defaulting to white for unmapped emotions.
func (c *Catalog) ColorsFor(emotion string) []string {
	if colors, ok := c.EmotionColors[emotion]; ok && len(colors) > 0 {
		return colors
	}
	return []string{ColorWhite}
}
