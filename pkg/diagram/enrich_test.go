package diagram

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-canvas/pkg/models"
)

func newTestEnricher(seed int64) *Enricher {
	n := 0
	return &Enricher{
		NewID: func() string {
			n++
			return fmt.Sprintf("el-%d", n)
		},
		Rand: rand.New(rand.NewSource(seed)),
		Now:  func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) },
	}
}

func sampleCandidates() []models.DiagramElement {
	return []models.DiagramElement{
		{Type: models.ElementRectangle, X: 10, Y: 10, Width: 200, Height: 80, BackgroundColor: "#a5d8ff"},
		{Type: models.ElementDiamond, X: 300, Y: 10, Width: 100, Height: 100},
		{Type: models.ElementEllipse, X: 0, Y: 200, Width: -50, Height: 50},
		{Type: models.ElementText, X: 20, Y: 30, Text: "Budget review"},
		{Type: models.ElementArrow, X: 210, Y: 50, Points: []models.Point{{0, 0}, {90, 10}}},
		{Type: models.ElementLine, X: 0, Y: 0, Points: []models.Point{{0, 0}, {0, 40}}},
	}
}

func TestEnrich_FillsRendererFields(t *testing.T) {
	out := newTestEnricher(1).Enrich(sampleCandidates())
	require.Len(t, out, 6)

	ids := map[string]bool{}
	for _, el := range out {
		assert.NotEmpty(t, el.ID)
		assert.False(t, ids[el.ID], "ids unique")
		ids[el.ID] = true

		assert.Positive(t, el.Seed)
		assert.Positive(t, el.VersionNonce)
		assert.Equal(t, 1, el.Version)
		assert.Equal(t, int64(1767323045000), el.Updated)
		assert.Equal(t, models.FillSolid, el.FillStyle)
		assert.Equal(t, models.StrokeSolid, el.StrokeStyle)
		assert.Equal(t, float64(DefaultStrokeWidth), el.StrokeWidth)
		require.NotNil(t, el.Roughness)
		require.NotNil(t, el.Opacity)
		assert.Equal(t, 100.0, *el.Opacity)
		assert.NotNil(t, el.GroupIDs)
		assert.Empty(t, el.GroupIDs)
		assert.NotNil(t, el.BoundElements)
		assert.Empty(t, el.BoundElements)
		assert.False(t, el.IsDeleted)
		assert.Zero(t, el.Angle)
	}

	assert.Equal(t, "#a5d8ff", out[0].BackgroundColor)
	assert.Equal(t, models.TransparentColor, out[1].BackgroundColor)

	require.NotNil(t, out[0].Roundness)
	assert.Equal(t, models.RoundnessAdaptive, out[0].Roundness.Type)
	require.NotNil(t, out[1].Roundness)
	assert.Equal(t, models.RoundnessProportional, out[1].Roundness.Type)
	assert.Nil(t, out[2].Roundness)

	text := out[3]
	assert.Equal(t, models.FontNormal, text.FontFamily)
	assert.Equal(t, models.AlignCenter, text.TextAlign)
	assert.Equal(t, DefaultVerticalAlign, text.VerticalAlign)
	assert.Equal(t, DefaultLineHeight, text.LineHeight)
	assert.Equal(t, "Budget review", text.OriginalText)
	assert.Positive(t, text.Width)
	assert.Positive(t, text.Height)

	arrow := out[4]
	assert.Nil(t, arrow.StartArrowhead)
	require.NotNil(t, arrow.EndArrowhead)
	assert.Equal(t, DefaultArrowhead, *arrow.EndArrowhead)
	assert.Nil(t, arrow.StartBinding)
	assert.Equal(t, 90.0, arrow.Width)
	assert.Equal(t, 10.0, arrow.Height)

	line := out[5]
	assert.Nil(t, line.StartArrowhead)
	assert.Nil(t, line.EndArrowhead)
}

func TestEnrich_EncodesRendererKeysAsNull(t *testing.T) {
	out := newTestEnricher(5).Enrich(sampleCandidates())

	decode := func(el models.DiagramElement) map[string]json.RawMessage {
		t.Helper()
		raw, err := json.Marshal(el)
		require.NoError(t, err)
		var fields map[string]json.RawMessage
		require.NoError(t, json.Unmarshal(raw, &fields))
		return fields
	}

	for _, el := range out {
		fields := decode(el)
		assert.JSONEq(t, `[]`, string(fields["boundElements"]), "%s boundElements", el.Type)
		assert.JSONEq(t, `[]`, string(fields["groupIds"]), "%s groupIds", el.Type)
	}

	for _, el := range []models.DiagramElement{out[4], out[5]} {
		fields := decode(el)
		for _, key := range []string{"startArrowhead", "startBinding", "endBinding"} {
			raw, ok := fields[key]
			require.True(t, ok, "%s missing %s", el.Type, key)
			assert.Equal(t, "null", string(raw), "%s %s", el.Type, key)
		}
	}
	assert.Equal(t, "null", string(decode(out[5])["endArrowhead"]))
	assert.JSONEq(t, `"arrow"`, string(decode(out[4])["endArrowhead"]))

	text := decode(out[3])
	raw, ok := text["containerId"]
	require.True(t, ok, "text missing containerId")
	assert.Equal(t, "null", string(raw))
}

func TestEnrich_PreservesTypographyChoices(t *testing.T) {
	in := []models.DiagramElement{{Type: models.ElementText, Text: "x", FontFamily: models.FontVirgil, TextAlign: models.AlignRight}}
	out := newTestEnricher(2).Enrich(in)

	assert.Equal(t, models.FontVirgil, out[0].FontFamily)
	assert.Equal(t, models.AlignRight, out[0].TextAlign)
}

func TestEnrich_IdempotentOnNonIdentityFields(t *testing.T) {
	first := newTestEnricher(3).Enrich(sampleCandidates())

	e := newTestEnricher(4)
	e.NewID = func() string { return "second-" + fmt.Sprint(e.Rand.Int()) }
	second := e.Enrich(first)

	require.Len(t, second, len(first))
	for i := range first {
		assert.NotEqual(t, first[i].ID, second[i].ID, "new identity")

		a, b := first[i], second[i]
		a.ID, b.ID = "", ""
		a.Seed, b.Seed = 0, 0
		a.VersionNonce, b.VersionNonce = 0, 0
		assert.Equal(t, a, b, "element %d", i)
	}
}

func TestEnrich_DoesNotMutateInput(t *testing.T) {
	in := sampleCandidates()
	_ = newTestEnricher(5).Enrich(in)

	assert.Empty(t, in[0].ID)
	assert.Nil(t, in[0].Roundness)
	assert.Empty(t, in[3].FontFamily)
}

func TestEnrich_Deterministic(t *testing.T) {
	a := newTestEnricher(42).Enrich(sampleCandidates())
	b := newTestEnricher(42).Enrich(sampleCandidates())
	assert.Equal(t, a, b)
}

func TestEnrich_Empty(t *testing.T) {
	assert.Nil(t, newTestEnricher(1).Enrich(nil))
	assert.NotNil(t, NewEnricher().Enrich([]models.DiagramElement{}))
}

func TestEnrichedRectangle_NormalizationKeepsBounds(t *testing.T) {
	in := []models.DiagramElement{{Type: models.ElementRectangle, X: 100, Y: 50, Width: -40, Height: -20}}
	el := newTestEnricher(6).Enrich(in)[0]
	require.NotNil(t, el.Roundness)

	minX, minY, maxX, maxY := el.Bounds()
	n := el.Normalized()

	assert.GreaterOrEqual(t, n.Width, 0.0)
	assert.GreaterOrEqual(t, n.Height, 0.0)
	assert.LessOrEqual(t, n.X+min(0, n.Width), n.X+max(0, n.Width))

	nMinX, nMinY, nMaxX, nMaxY := n.Bounds()
	assert.Equal(t, minX, nMinX)
	assert.Equal(t, minY, nMinY)
	assert.Equal(t, maxX, nMaxX)
	assert.Equal(t, maxY, nMaxY)
	assert.Equal(t, el.Roundness, n.Roundness)
}
