// Package prompts builds the instructions sent to the model at each
// network-backed pipeline stage.
package prompts

import (
	"fmt"
	"strings"

	"github.com/ekaya-inc/ekaya-canvas/pkg/models"
)

// Source is the original content a stage cross-checks against.
// Image sources carry no text; the image itself is attached to the call.
type Source struct {
	Text    string
	IsImage bool
}

// Spatial and typography limits stated to the model.
const (
	MinTextPadding    = 10
	MinArrowLength    = 40
	MinIconSize       = 24
	MinElementSpacing = 30
	TitleFontSize     = 28
	LabelFontSize     = 20
	NoteFontSize      = 16
)

const elementSchemaRules = `## Element Schema

Return a JSON array. Every item is one element object:

- "type": one of "rectangle", "ellipse", "diamond", "text", "arrow", "line"
- "x", "y": numbers, top-left corner in canvas pixels
- "width", "height": numbers (required for rectangle, ellipse, diamond)
- "angle": rotation in radians, usually 0
- "strokeColor", "backgroundColor": hex colors; "transparent" means no fill
- "fillStyle": "solid", "hachure", "cross-hatch" or "none"
- "strokeStyle": "solid", "dashed" or "dotted"
- "strokeWidth": 1, 2 or 4
- "roughness": 0, 1 or 2
- "opacity": 0-100

Text elements also take "text" (required), "fontSize", "fontFamily" ("normal", "virgil" or "code") and "textAlign" ("left", "center" or "right").

Arrow and line elements take "points": at least two [dx, dy] pairs relative to (x, y), the first being [0, 0]. Arrows may set "startArrowhead" and "endArrowhead" to "arrow", "bar", "dot", "triangle" or null.

Do not include ids, versions, seeds or any other fields.
`

func writeSpatialRules(b *strings.Builder) {
	b.WriteString("## Layout Rules\n\n")
	fmt.Fprintf(b, "- Keep at least %dpx between unrelated shapes; nothing may overlap unless it is a label inside its shape.\n", MinElementSpacing)
	fmt.Fprintf(b, "- A label inside a shape keeps at least %dpx padding to every edge; grow the shape rather than shrink the text.\n", MinTextPadding)
	fmt.Fprintf(b, "- Arrows are at least %dpx long and start and end on the edge of the shapes they connect.\n", MinArrowLength)
	b.WriteString("- Lay the diagram out top-to-bottom or left-to-right following the reading order of the source.\n\n")

	b.WriteString("## Typography\n\n")
	fmt.Fprintf(b, "- Title: fontSize %d. Shape labels: fontSize %d. Secondary notes: fontSize %d.\n", TitleFontSize, LabelFontSize, NoteFontSize)
	b.WriteString("- Use fontFamily \"normal\" unless the text is code, then \"code\".\n")
	b.WriteString("- Labels inside shapes use textAlign \"center\".\n\n")
}

// GenerationSystemPrompt is the fixed instruction for the structure
// generation call.
func GenerationSystemPrompt(theme models.Theme, expand bool) string {
	var b strings.Builder

	b.WriteString("You turn notes into a clear hand-drawn diagram made of simple elements.\n\n")
	b.WriteString(elementSchemaRules)
	b.WriteString("\n## Palette\n\n")
	b.WriteString(PaletteFor(theme).Describe())
	b.WriteString("\n")
	writeSpatialRules(&b)

	b.WriteString("## Content\n\n")
	b.WriteString("- Every item, heading and table row in the source becomes at least one text element.\n")
	b.WriteString("- Group related items inside shapes and connect steps or dependencies with arrows.\n")
	if expand {
		b.WriteString("- You MAY add supporting content that is clearly implied by the source or widely known about its subject: short definitions, one missing obvious step, a well-known example.\n")
		b.WriteString("- Added content must never contradict the source, invent names, figures or dates, or exceed about a third of the diagram.\n")
	} else {
		b.WriteString("- Use only what the source says. Do not add facts, examples or steps that are not in it.\n")
	}

	b.WriteString("\nRespond with the JSON array only, no prose and no code fences.\n")
	return b.String()
}

// BuildGenerationUserPrompt wraps text content for the generation call.
func BuildGenerationUserPrompt(text string) string {
	var b strings.Builder
	b.WriteString("Create a diagram for the following content.\n\n")
	b.WriteString("## Source\n\n")
	b.WriteString(text)
	b.WriteString("\n")
	return b.String()
}

// ImageCaptionInstruction accompanies an image attachment in place of text.
func ImageCaptionInstruction() string {
	return "The attached image contains notes, possibly handwritten. Read all of it and create a diagram of its content. " +
		"Transcribe text faithfully; if a word is illegible, leave it out rather than guess."
}

func writeSource(b *strings.Builder, src Source) {
	b.WriteString("## Source\n\n")
	if src.IsImage {
		b.WriteString("The source is the attached image.\n\n")
		return
	}
	b.WriteString(src.Text)
	b.WriteString("\n\n")
}

// EnhancementSystemPrompt instructs the icon enhancement call.
func EnhancementSystemPrompt(theme models.Theme, maxAdditions int) string {
	var b strings.Builder

	b.WriteString("You decorate an existing diagram with small icons drawn from basic elements.\n\n")
	b.WriteString("## Rules\n\n")
	b.WriteString("- Only ADD elements. Never move, resize, remove, restyle or relabel an existing element.\n")
	fmt.Fprintf(&b, "- Add at most %d elements in total.\n", maxAdditions)
	fmt.Fprintf(&b, "- Place each icon inside a large existing shape, at least %dx%dpx, clear of that shape's label.\n", MinIconSize, MinIconSize)
	b.WriteString("- Icons are built from ellipses, rectangles, diamonds and lines that hint at the shape's meaning.\n")
	b.WriteString("- If no shape would benefit, return the diagram unchanged.\n\n")
	b.WriteString("## Palette\n\n")
	b.WriteString(PaletteFor(theme).Describe())
	b.WriteString("\n")
	b.WriteString(elementSchemaRules)
	b.WriteString("\nRespond with the complete JSON array: every existing element in its original order followed by your additions. No prose.\n")
	return b.String()
}

// BuildEnhancementPrompt carries the current elements and source to the
// enhancement call.
func BuildEnhancementPrompt(src Source, elementsJSON string, maxAdditions int) string {
	var b strings.Builder
	b.WriteString("# Icon Enhancement\n\n")
	writeSource(&b, src)
	b.WriteString("## Current Diagram\n\n")
	b.WriteString(elementsJSON)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Add up to %d icon elements. Drop the \"index\" fields in your response.\n", maxAdditions)
	return b.String()
}

// VerificationSystemPrompt instructs the verification call. Strict mode
// removes anything the source does not support; expand mode removes only
// content unrelated to the source's subject.
func VerificationSystemPrompt(expand bool) string {
	var b strings.Builder

	b.WriteString("You check a diagram against the source it was made from and remove unsupported elements.\n\n")
	b.WriteString("## Policy\n\n")
	if expand {
		b.WriteString("- The author allowed supporting content that is implied by or commonly known about the source's subject. Keep it.\n")
		b.WriteString("- Remove only elements wholly unrelated to the source's subject, and elements that contradict the source.\n")
	} else {
		b.WriteString("- Remove every text element stating a concept, name, figure or step that is absent from the source.\n")
		b.WriteString("- Remove shapes and arrows that only served removed text.\n")
	}
	b.WriteString("- Decorative icon shapes inside kept shapes are kept.\n")
	b.WriteString("- Never add, move or edit elements. Kept elements are returned exactly as given.\n\n")

	b.WriteString("## Response Format\n\n")
	b.WriteString("Respond with one JSON object and nothing else:\n\n")
	b.WriteString("{\n")
	b.WriteString("  \"elements\": [ ...kept elements, original order, without \"index\" ],\n")
	b.WriteString("  \"removed\": [ { \"index\": 3, \"reason\": \"not mentioned in source\" } ]\n")
	b.WriteString("}\n")
	return b.String()
}

// BuildVerificationPrompt carries the candidate elements and source to the
// verification call.
func BuildVerificationPrompt(src Source, elementsJSON string, expand bool) string {
	var b strings.Builder
	b.WriteString("# Verification\n\n")
	writeSource(&b, src)
	b.WriteString("## Diagram\n\n")
	b.WriteString(elementsJSON)
	b.WriteString("\n\n")
	if expand {
		b.WriteString("Mode: expand. Remove only unrelated content.\n")
	} else {
		b.WriteString("Mode: strict. Remove anything the source does not state.\n")
	}
	return b.String()
}

// RefinementSystemPrompt instructs the layout refinement call.
func RefinementSystemPrompt(theme models.Theme) string {
	var b strings.Builder

	b.WriteString("You fix the layout of a diagram without changing its content.\n\n")
	b.WriteString("## Rules\n\n")
	b.WriteString("- Return exactly the same number of elements in the same order.\n")
	b.WriteString("- Never add, remove or relabel an element, and never change its type or colors.\n")
	b.WriteString("- You may change x, y, width, height and points only.\n")
	b.WriteString("- Resolve overlaps between shapes and between labels.\n")
	fmt.Fprintf(&b, "- Labels keep at least %dpx padding inside their shape.\n", MinTextPadding)
	fmt.Fprintf(&b, "- Arrows are at least %dpx long and still connect the same shapes.\n", MinArrowLength)
	fmt.Fprintf(&b, "- Icon shapes smaller than %dx%dpx are enlarged.\n\n", MinIconSize, MinIconSize)
	fmt.Fprintf(&b, "The diagram is drawn on a %s canvas.\n\n", theme)
	b.WriteString("Respond with the JSON array only, without \"index\" fields, no prose.\n")
	return b.String()
}

// BuildRefinementPrompt carries the elements to the refinement call.
func BuildRefinementPrompt(elementsJSON string, count int) string {
	var b strings.Builder
	b.WriteString("# Layout Refinement\n\n")
	fmt.Fprintf(&b, "The diagram has %d elements. Your response must have exactly %d.\n\n", count, count)
	b.WriteString("## Diagram\n\n")
	b.WriteString(elementsJSON)
	b.WriteString("\n")
	return b.String()
}
