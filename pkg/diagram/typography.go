package diagram

import "github.com/ekaya-inc/ekaya-canvas/pkg/models"

// DefaultFontSize is used for text elements the model left unsized.
const DefaultFontSize = 20

// ApplyTypographyDefaults fills missing font family, alignment and size on
// text elements. Non-text elements and all geometry are left untouched.
// The input slice is not modified.
func ApplyTypographyDefaults(elements []models.DiagramElement) []models.DiagramElement {
	out := models.CloneElements(elements)
	for i := range out {
		el := &out[i]
		if el.Type != models.ElementText {
			continue
		}
		if el.FontFamily == "" {
			el.FontFamily = models.FontNormal
		}
		if el.TextAlign == "" {
			el.TextAlign = models.AlignCenter
		}
		if el.FontSize <= 0 {
			el.FontSize = DefaultFontSize
		}
	}
	return out
}
