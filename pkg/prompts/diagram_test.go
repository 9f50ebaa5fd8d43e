package prompts

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ekaya-inc/ekaya-canvas/pkg/models"
)

func TestGenerationSystemPrompt(t *testing.T) {
	t.Run("strict light", func(t *testing.T) {
		p := GenerationSystemPrompt(models.ThemeLight, false)

		assert.Contains(t, p, "## Element Schema")
		assert.Contains(t, p, "#a5d8ff")
		assert.Contains(t, p, "Use only what the source says")
		assert.NotContains(t, p, "You MAY add supporting content")
		assert.Contains(t, p, "JSON array only")
	})

	t.Run("expand dark", func(t *testing.T) {
		p := GenerationSystemPrompt(models.ThemeDark, true)

		assert.Contains(t, p, "Theme: dark")
		assert.Contains(t, p, "#1864ab")
		assert.NotContains(t, p, "#a5d8ff")
		assert.Contains(t, p, "You MAY add supporting content")
		assert.NotContains(t, p, "Use only what the source says")
	})
}

func TestBuildGenerationUserPrompt(t *testing.T) {
	p := BuildGenerationUserPrompt("1) Budget review 2) Hiring plan")
	assert.Contains(t, p, "## Source")
	assert.Contains(t, p, "1) Budget review 2) Hiring plan")
}

func TestImageCaptionInstruction(t *testing.T) {
	assert.Contains(t, ImageCaptionInstruction(), "attached image")
}

func TestEnhancementPrompts(t *testing.T) {
	sys := EnhancementSystemPrompt(models.ThemeLight, 6)
	assert.Contains(t, sys, "Only ADD elements")
	assert.Contains(t, sys, "at most 6 elements")

	user := BuildEnhancementPrompt(Source{Text: "notes"}, `[{"index":0}]`, 6)
	assert.Contains(t, user, "notes")
	assert.Contains(t, user, `[{"index":0}]`)
	assert.Contains(t, user, "up to 6")
}

func TestVerificationPrompts(t *testing.T) {
	strict := VerificationSystemPrompt(false)
	expand := VerificationSystemPrompt(true)

	assert.Contains(t, strict, "absent from the source")
	assert.NotContains(t, strict, "wholly unrelated")
	assert.Contains(t, expand, "wholly unrelated")
	for _, p := range []string{strict, expand} {
		assert.Contains(t, p, `"removed"`)
		assert.Contains(t, p, `"elements"`)
	}

	assert.Contains(t, BuildVerificationPrompt(Source{Text: "x"}, "[]", false), "Mode: strict")
	assert.Contains(t, BuildVerificationPrompt(Source{Text: "x"}, "[]", true), "Mode: expand")
}

func TestVerificationPrompt_ImageSource(t *testing.T) {
	p := BuildVerificationPrompt(Source{IsImage: true}, "[]", false)
	assert.Contains(t, p, "The source is the attached image.")
}

func TestRefinementPrompts(t *testing.T) {
	sys := RefinementSystemPrompt(models.ThemeDark)
	assert.Contains(t, sys, "exactly the same number of elements")
	assert.Contains(t, sys, "dark canvas")

	user := BuildRefinementPrompt("[]", 7)
	assert.Contains(t, user, "exactly 7")
}

func TestPaletteFor(t *testing.T) {
	assert.Equal(t, models.ThemeLight, PaletteFor("").Theme)
	assert.Equal(t, models.ThemeDark, PaletteFor(models.ThemeDark).Theme)
	assert.Len(t, PaletteFor(models.ThemeLight).Fills, len(PaletteFor(models.ThemeDark).Fills))
}
