package diagram

import (
	"math"
	"math/rand"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-canvas/pkg/models"
)

// Renderer defaults applied by enrichment when a candidate leaves them unset.
const (
	DefaultStrokeColor   = "#1e1e1e"
	DefaultStrokeWidth   = 2
	DefaultRoughness     = 1
	DefaultOpacity       = 100
	DefaultLineHeight    = 1.25
	DefaultVerticalAlign = "middle"
	DefaultArrowhead     = "arrow"

	// average glyph width as a share of font size, for sizing unsized text
	glyphWidthRatio = 0.55
	baselineRatio   = 0.9
	maxSeed         = math.MaxInt32
)

// Enricher turns schema-minimal candidates into renderer-ready elements.
// With a seeded Rand, a fixed NewID and a fixed Now it is deterministic.
// An Enricher is not safe for concurrent use; create one per run.
type Enricher struct {
	NewID func() string
	Rand  *rand.Rand
	Now   func() time.Time
}

// NewEnricher returns an Enricher using random UUIDs, the wall clock and a
// time-seeded random source.
func NewEnricher() *Enricher {
	return &Enricher{
		NewID: uuid.NewString,
		Rand:  rand.New(rand.NewSource(time.Now().UnixNano())),
		Now:   time.Now,
	}
}

// Enrich assigns identity and fills every renderer field. It is total.
// Re-running it on enriched output assigns a new id, seed and nonce and
// leaves geometry, text and style alone. The input slice is not modified.
func (e *Enricher) Enrich(elements []models.DiagramElement) []models.DiagramElement {
	out := models.CloneElements(elements)
	updated := e.Now().UnixMilli()

	for i := range out {
		el := &out[i]

		el.ID = e.NewID()
		el.Seed = e.Rand.Int63n(maxSeed) + 1
		el.VersionNonce = e.Rand.Int63n(maxSeed) + 1
		if el.Version <= 0 {
			el.Version = 1
		}
		el.Updated = updated

		if el.StrokeColor == "" {
			el.StrokeColor = DefaultStrokeColor
		}
		if el.BackgroundColor == "" {
			el.BackgroundColor = models.TransparentColor
		}
		if el.FillStyle == "" {
			el.FillStyle = models.FillSolid
		}
		if el.StrokeStyle == "" {
			el.StrokeStyle = models.StrokeSolid
		}
		if el.StrokeWidth <= 0 {
			el.StrokeWidth = DefaultStrokeWidth
		}
		if el.Roughness == nil {
			r := DefaultRoughness
			el.Roughness = &r
		}
		if el.Opacity == nil {
			o := float64(DefaultOpacity)
			el.Opacity = &o
		}
		if el.GroupIDs == nil {
			el.GroupIDs = []string{}
		}
		if el.BoundElements == nil {
			el.BoundElements = []models.BoundElement{}
		}
		el.IsDeleted = false

		switch el.Type {
		case models.ElementRectangle:
			if el.Roundness == nil {
				el.Roundness = &models.Roundness{Type: models.RoundnessAdaptive}
			}
		case models.ElementDiamond:
			if el.Roundness == nil {
				el.Roundness = &models.Roundness{Type: models.RoundnessProportional}
			}
		case models.ElementArrow, models.ElementLine:
			enrichLinear(el)
		case models.ElementText:
			enrichText(el)
		}
	}

	return out
}

func enrichLinear(el *models.DiagramElement) {
	if len(el.Points) < 2 {
		el.Points = []models.Point{{0, 0}, {el.Width, el.Height}}
	}
	if el.Width == 0 && el.Height == 0 {
		minX, minY, maxX, maxY := pointBounds(el.Points)
		el.Width = maxX - minX
		el.Height = maxY - minY
	}
	if el.Type == models.ElementArrow && el.EndArrowhead == nil {
		head := DefaultArrowhead
		el.EndArrowhead = &head
	}
	if el.Type == models.ElementLine {
		el.StartArrowhead = nil
		el.EndArrowhead = nil
	}
	el.Roundness = nil
}

func enrichText(el *models.DiagramElement) {
	if el.FontSize <= 0 {
		el.FontSize = DefaultFontSize
	}
	if el.FontFamily == "" {
		el.FontFamily = models.FontNormal
	}
	if el.TextAlign == "" {
		el.TextAlign = models.AlignCenter
	}
	if el.VerticalAlign == "" {
		el.VerticalAlign = DefaultVerticalAlign
	}
	if el.LineHeight <= 0 {
		el.LineHeight = DefaultLineHeight
	}
	if el.OriginalText == "" {
		el.OriginalText = el.Text
	}
	if el.Baseline <= 0 {
		el.Baseline = math.Round(el.FontSize * baselineRatio)
	}
	if el.Width == 0 || el.Height == 0 {
		lines := strings.Split(el.Text, "\n")
		longest := 0
		for _, l := range lines {
			if n := utf8.RuneCountInString(l); n > longest {
				longest = n
			}
		}
		if el.Width == 0 {
			el.Width = math.Ceil(float64(longest) * el.FontSize * glyphWidthRatio)
		}
		if el.Height == 0 {
			el.Height = math.Ceil(float64(len(lines)) * el.FontSize * el.LineHeight)
		}
	}
	el.Roundness = nil
}

func pointBounds(points []models.Point) (minX, minY, maxX, maxY float64) {
	minX, minY = math.Inf(1), math.Inf(1)
	maxX, maxY = math.Inf(-1), math.Inf(-1)
	for _, p := range points {
		minX = math.Min(minX, p[0])
		maxX = math.Max(maxX, p[0])
		minY = math.Min(minY, p[1])
		maxY = math.Max(maxY, p[1])
	}
	return minX, minY, maxX, maxY
}
