package theme

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
)

// Spec is the visual theme payload. The session core treats it as opaque;
// only this package knows its shape.
type Spec struct {
	ThemeID    string     `json:"themeId,omitempty"`
	Palette    Palette    `json:"palette"`
	Typography Typography `json:"typography"`
	Density    string     `json:"density"`
	Components Components `json:"components"`
	Motion     string     `json:"motion"`
	Motifs     string     `json:"motifs,omitempty"`
}

type Palette struct {
	Background string `json:"background"`
	Surface    string `json:"surface"`
	Text       string `json:"text"`
	Accent     string `json:"accent"`
	Accent2    string `json:"accent2"`
	Border     string `json:"border"`
}

type Typography struct {
	FontFamily string             `json:"fontFamily"`
	Weights    map[string]int     `json:"weights"`
	Scale      map[string]float64 `json:"scale"`
}

type Components struct {
	Button string `json:"button"`
	Card   string `json:"card"`
	Table  string `json:"table"`
}

var hexColorRe = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// FontStacks whitelists the font keys a spec may reference.
var FontStacks = map[string]string{
	"system":   "-apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Oxygen, Ubuntu, sans-serif",
	"humanist": "'Segoe UI', 'Trebuchet MS', 'Verdana', sans-serif",
	"display":  "'Trebuchet MS', 'Segoe UI', 'Arial Rounded MT Bold', sans-serif",
	"mono":     "'JetBrains Mono', 'Cascadia Mono', 'Consolas', 'Courier New', monospace",
	"serif":    "'Merriweather', 'Georgia', 'Times New Roman', serif",
}

const DefaultThemeID = "aurora"

// Library holds the built-in theme specs.
var Library = map[string]Spec{
	"aurora": {
		ThemeID: "aurora",
		Palette: Palette{
			Background: "#1e1b4b", Surface: "#312e81", Text: "#f8fafc",
			Accent: "#6366f1", Accent2: "#22d3ee", Border: "#4338ca",
		},
		Typography: Typography{
			FontFamily: "system",
			Weights:    map[string]int{"base": 400, "strong": 700},
			Scale:      map[string]float64{"sm": 0.9, "base": 1.0, "lg": 1.15, "xl": 1.3},
		},
		Density:    "comfortable",
		Components: Components{Button: "filled", Card: "shadowed", Table: "minimal"},
		Motion:     "subtle",
	},
	"halloween": {
		ThemeID: "halloween",
		Palette: Palette{
			Background: "#120c1b", Surface: "#22112d", Text: "#f8f5f2",
			Accent: "#f97316", Accent2: "#facc15", Border: "#6b21a8",
		},
		Typography: Typography{
			FontFamily: "display",
			Weights:    map[string]int{"base": 500, "strong": 800},
			Scale:      map[string]float64{"sm": 0.9, "base": 1.0, "lg": 1.2, "xl": 1.45},
		},
		Density:    "comfortable",
		Components: Components{Button: "filled", Card: "bordered", Table: "grid"},
		Motion:     "active",
		Motifs:     "pumpkin",
	},
	"winter": {
		ThemeID: "winter",
		Palette: Palette{
			Background: "#0f172a", Surface: "#1e293b", Text: "#e2e8f0",
			Accent: "#38bdf8", Accent2: "#a5f3fc", Border: "#334155",
		},
		Typography: Typography{
			FontFamily: "humanist",
			Weights:    map[string]int{"base": 400, "strong": 700},
			Scale:      map[string]float64{"sm": 0.9, "base": 1.0, "lg": 1.12, "xl": 1.28},
		},
		Density:    "comfortable",
		Components: Components{Button: "outlined", Card: "shadowed", Table: "minimal"},
		Motion:     "subtle",
		Motifs:     "snow",
	},
	"festival": {
		ThemeID: "festival",
		Palette: Palette{
			Background: "#1a1025", Surface: "#2b1740", Text: "#fdf4ff",
			Accent: "#ec4899", Accent2: "#f59e0b", Border: "#a855f7",
		},
		Typography: Typography{
			FontFamily: "display",
			Weights:    map[string]int{"base": 500, "strong": 800},
			Scale:      map[string]float64{"sm": 0.92, "base": 1.02, "lg": 1.22, "xl": 1.5},
		},
		Density:    "comfortable",
		Components: Components{Button: "filled", Card: "shadowed", Table: "minimal"},
		Motion:     "active",
		Motifs:     "confetti",
	},
}

// ByID returns a copy of a built-in theme.
func ByID(id string) (Spec, bool) {
	spec, ok := Library[id]
	return spec, ok
}

// IsValidHexColor reports whether value is a #rrggbb color.
func IsValidHexColor(value string) bool {
	return hexColorRe.MatchString(value)
}

func hexToRGB(value string) (r, g, b float64) {
	parse := func(s string) float64 {
		v, _ := strconv.ParseInt(s, 16, 32)
		return float64(v) / 255
	}
	return parse(value[1:3]), parse(value[3:5]), parse(value[5:7])
}

func luminance(r, g, b float64) float64 {
	channel := func(c float64) float64 {
		if c <= 0.03928 {
			return c / 12.92
		}
		return math.Pow((c+0.055)/1.055, 2.4)
	}
	return 0.2126*channel(r) + 0.7152*channel(g) + 0.0722*channel(b)
}

// ContrastRatio computes the WCAG contrast ratio between two hex colors.
func ContrastRatio(a, b string) float64 {
	la := luminance(hexToRGB(a))
	lb := luminance(hexToRGB(b))
	lighter, darker := math.Max(la, lb), math.Min(la, lb)
	return (lighter + 0.05) / (darker + 0.05)
}

var (
	validDensity = map[string]bool{"compact": true, "comfortable": true}
	validButton  = map[string]bool{"flat": true, "outlined": true, "filled": true}
	validCard    = map[string]bool{"bordered": true, "shadowed": true}
	validTable   = map[string]bool{"minimal": true, "grid": true}
	validMotion  = map[string]bool{"none": true, "subtle": true, "active": true}
	validMotifs  = map[string]bool{"": true, "snow": true, "scanlines": true, "confetti": true, "pumpkin": true}
)

// Validate returns the list of problems with a spec; empty means usable.
func Validate(spec Spec) []string {
	var issues []string

	colors := map[string]string{
		"background": spec.Palette.Background,
		"surface":    spec.Palette.Surface,
		"text":       spec.Palette.Text,
		"accent":     spec.Palette.Accent,
		"accent2":    spec.Palette.Accent2,
		"border":     spec.Palette.Border,
	}
	for key, value := range colors {
		if !IsValidHexColor(value) {
			issues = append(issues, fmt.Sprintf("palette.%s must be a hex color", key))
		}
	}

	if _, ok := FontStacks[spec.Typography.FontFamily]; !ok {
		issues = append(issues, "typography.fontFamily must be a whitelisted font key")
	}
	for _, label := range []string{"base", "strong"} {
		if w, ok := spec.Typography.Weights[label]; !ok || w < 300 || w > 900 {
			issues = append(issues, fmt.Sprintf("typography.weights.%s must be 300-900", label))
		}
	}
	for label, value := range spec.Typography.Scale {
		if value < 0.75 || value > 1.8 {
			issues = append(issues, fmt.Sprintf("typography.scale.%s must be 0.75-1.8", label))
		}
	}

	if !validDensity[spec.Density] {
		issues = append(issues, "density must be compact or comfortable")
	}
	if !validButton[spec.Components.Button] {
		issues = append(issues, "components.button must be flat/outlined/filled")
	}
	if !validCard[spec.Components.Card] {
		issues = append(issues, "components.card must be bordered/shadowed")
	}
	if !validTable[spec.Components.Table] {
		issues = append(issues, "components.table must be minimal/grid")
	}
	if !validMotion[spec.Motion] {
		issues = append(issues, "motion must be none/subtle/active")
	}
	if !validMotifs[spec.Motifs] {
		issues = append(issues, "motifs must be snow/scanlines/confetti/pumpkin")
	}

	if IsValidHexColor(spec.Palette.Text) && IsValidHexColor(spec.Palette.Background) {
		if ContrastRatio(spec.Palette.Text, spec.Palette.Background) < 4.5 {
			issues = append(issues, "text contrast on background is too low")
		}
	}
	if IsValidHexColor(spec.Palette.Text) && IsValidHexColor(spec.Palette.Surface) {
		if ContrastRatio(spec.Palette.Text, spec.Palette.Surface) < 4.5 {
			issues = append(issues, "text contrast on surface is too low")
		}
	}
	return issues
}
