package theme

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLibraryThemesAreValid(t *testing.T) {
	for id, spec := range Library {
		require.Empty(t, Validate(spec), "built-in theme %q must validate", id)
		assert.Equal(t, id, spec.ThemeID)
	}
}

func TestByID(t *testing.T) {
	spec, ok := ByID(DefaultThemeID)
	require.True(t, ok)
	assert.Equal(t, DefaultThemeID, spec.ThemeID)

	_, ok = ByID("brutalist")
	assert.False(t, ok)
}

func TestContrastRatio(t *testing.T) {
	assert.InDelta(t, 21.0, ContrastRatio("#ffffff", "#000000"), 0.01)
	assert.InDelta(t, 1.0, ContrastRatio("#808080", "#808080"), 0.01)
}

func TestValidateCatchesProblems(t *testing.T) {
	spec, _ := ByID(DefaultThemeID)

	bad := spec
	bad.Palette.Accent = "cornflower blue"
	assert.Contains(t, Validate(bad), "palette.accent must be a hex color")

	bad = spec
	bad.Typography.FontFamily = "comic-sans"
	assert.Contains(t, Validate(bad), "typography.fontFamily must be a whitelisted font key")

	bad = spec
	bad.Typography.Weights = map[string]int{"base": 100, "strong": 700}
	assert.Contains(t, Validate(bad), "typography.weights.base must be 300-900")

	bad = spec
	bad.Typography.Scale = map[string]float64{"base": 3.0}
	assert.NotEmpty(t, Validate(bad))

	bad = spec
	bad.Density = "cramped"
	assert.Contains(t, Validate(bad), "density must be compact or comfortable")

	bad = spec
	bad.Motifs = "lasers"
	assert.Contains(t, Validate(bad), "motifs must be snow/scanlines/confetti/pumpkin")
}

func TestValidateRejectsLowContrast(t *testing.T) {
	spec, _ := ByID(DefaultThemeID)
	spec.Palette.Text = "#333344"
	issues := Validate(spec)
	assert.Contains(t, issues, "text contrast on background is too low")
	assert.Contains(t, issues, "text contrast on surface is too low")
}

func TestNormalizeBackfillsDefaults(t *testing.T) {
	base, _ := ByID(DefaultThemeID)

	spec := Normalize(Spec{
		Palette: Palette{Background: "#101020"},
		Motifs:  "lasers",
	})
	assert.Equal(t, "#101020", spec.Palette.Background)
	assert.Equal(t, base.Palette.Text, spec.Palette.Text)
	assert.Equal(t, base.Typography.FontFamily, spec.Typography.FontFamily)
	assert.Equal(t, base.Typography.Weights["base"], spec.Typography.Weights["base"])
	assert.Equal(t, base.Density, spec.Density)
	assert.Equal(t, "", spec.Motifs, "unknown motifs are dropped")
}
