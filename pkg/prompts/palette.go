package prompts

import (
	"fmt"
	"strings"

	"github.com/ekaya-inc/ekaya-canvas/pkg/models"
)

// Palette is the set of colors the model may use for one theme.
type Palette struct {
	Theme      models.Theme
	Canvas     string   // background the diagram is drawn on
	Stroke     string   // outlines and arrows
	Text       string   // label color
	Fills      []string // shape backgrounds, in suggested order
	Emphasis   string   // one highlight color for the key element
	IconStroke string   // inner icon detail strokes
}

var (
	lightPalette = Palette{
		Theme:      models.ThemeLight,
		Canvas:     "#ffffff",
		Stroke:     "#1e1e1e",
		Text:       "#1e1e1e",
		Fills:      []string{"#a5d8ff", "#b2f2bb", "#ffec99", "#ffc9c9", "#d0bfff", "#ffd8a8"},
		Emphasis:   "#e03131",
		IconStroke: "#495057",
	}
	darkPalette = Palette{
		Theme:      models.ThemeDark,
		Canvas:     "#121212",
		Stroke:     "#e9ecef",
		Text:       "#f8f9fa",
		Fills:      []string{"#1864ab", "#2b8a3e", "#e67700", "#c92a2a", "#5f3dc4", "#d9480f"},
		Emphasis:   "#ff8787",
		IconStroke: "#ced4da",
	}
)

// PaletteFor returns the palette for theme, falling back to light.
func PaletteFor(theme models.Theme) Palette {
	if theme == models.ThemeDark {
		return darkPalette
	}
	return lightPalette
}

// Describe renders the palette as prompt rules.
func (p Palette) Describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Theme: %s (canvas background %s).\n", p.Theme, p.Canvas)
	fmt.Fprintf(&b, "- strokeColor for shapes, arrows and lines: %s\n", p.Stroke)
	fmt.Fprintf(&b, "- strokeColor for text: %s\n", p.Text)
	fmt.Fprintf(&b, "- backgroundColor for shapes: one of %s, or \"%s\"\n", strings.Join(p.Fills, ", "), models.TransparentColor)
	fmt.Fprintf(&b, "- at most one emphasised element may use %s\n", p.Emphasis)
	fmt.Fprintf(&b, "- icon detail strokes: %s\n", p.IconStroke)
	return b.String()
}
