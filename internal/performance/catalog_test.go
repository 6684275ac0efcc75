package performance

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultCatalog_emotion_colors_are_valid(t *testing.T) {
	cat := DefaultCatalog()
	for emotion, colors := range cat.EmotionColors {
		if len(colors) == 0 {
			t.Errorf("emotion %q maps to no colors", emotion)
		}
		for _, c := range colors {
			if !ValidColor(c) {
				t.Errorf("emotion %q maps to unsupported color %q", emotion, c)
			}
		}
	}
}

func writeCatalogFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write catalog file: %v", err)
	}
	return path
}

func TestLoadCatalog_overlays_defaults(t *testing.T) {
	path := writeCatalogFile(t, `
dances:
  - name: spin_custom
    duration: 4.5
    min_energy: 0.0
    max_energy: 1.0
emotion_colors:
  calm: [blue]
`)

	cat, err := LoadCatalog(path)
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}
	if len(cat.Dances) != 1 || cat.Dances[0].Name != "spin_custom" {
		t.Errorf("dances not replaced: %+v", cat.Dances)
	}
	if got := cat.ColorsFor("calm"); len(got) != 1 || got[0] != ColorBlue {
		t.Errorf("calm colors = %v, want [blue]", got)
	}
	// Sections absent from the file keep their defaults.
	if len(cat.Expressions) == 0 {
		t.Error("expressions default was dropped")
	}
	if len(cat.Fillers) == 0 {
		t.Error("fillers default was dropped")
	}
}

func TestLoadCatalog_rejects_unknown_color(t *testing.T) {
	path := writeCatalogFile(t, `
emotion_colors:
  happy: [chartreuse]
`)
	if _, err := LoadCatalog(path); err == nil {
		t.Fatal("expected an error for an unsupported color")
	}
}

func TestLoadCatalog_missing_file(t *testing.T) {
	if _, err := LoadCatalog(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestDancesFor_filters_by_energy(t *testing.T) {
	cat := DefaultCatalog()
	for _, d := range cat.DancesFor(0.9) {
		if 0.9 < d.MinEnergy || 0.9 > d.MaxEnergy {
			t.Errorf("dance %s (%.2f..%.2f) unsuited to energy 0.9", d.Name, d.MinEnergy, d.MaxEnergy)
		}
	}
	if len(cat.DancesFor(0.9)) == 0 {
		t.Error("no dances for peak energy")
	}
}

func TestColorsFor_unknown_emotion_defaults_to_white(t *testing.T) {
	cat := DefaultCatalog()
	got := cat.ColorsFor("melancholic")
	if len(got) != 1 || got[0] != ColorWhite {
		t.Errorf("colors = %v, want [white]", got)
	}
}

func TestExpressionsFor_unknown_emotion(t *testing.T) {
	if got := DefaultCatalog().ExpressionsFor("melancholic"); len(got) != 0 {
		t.Errorf("expressions = %v, want none", got)
	}
}
