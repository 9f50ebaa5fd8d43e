package diagram

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ekaya-inc/ekaya-canvas/pkg/models"
)

func TestCountSourceItems(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   int
	}{
		{"inline numbered", "Meeting notes: 1) Budget review 2) Hiring plan", 2},
		{"bullets", "- one\n- two\n* three\n• four", 4},
		{"numbered lines", "1. first\n2) second\na) third", 3},
		{"markdown header and bullets", "# Plan\n- a\n- b", 3},
		{"colon header", "Agenda:\n- a", 2},
		{"table", "| name | role |\n|------|------|\n| Ann | PM |\n| Bo | Eng |", 3},
		{"prose only", "We talked for a while about nothing in particular.", 0},
		{"blank", "\n\n   \n", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CountSourceItems(tt.source))
		})
	}
}

func TestAuditCompleteness(t *testing.T) {
	elements := []models.DiagramElement{
		{Type: models.ElementRectangle},
		{Type: models.ElementRectangle},
		{Type: models.ElementText, Text: "Budget review"},
		{Type: models.ElementText, Text: "Hiring plan"},
		{Type: models.ElementArrow},
	}

	cov := AuditCompleteness("Meeting notes: 1) Budget review 2) Hiring plan", elements, DefaultCoverageWarnRatio)
	assert.Equal(t, 2, cov.SourceItems)
	assert.Equal(t, 2, cov.TextElements)
	assert.Equal(t, 2, cov.Shapes)
	assert.Equal(t, 1.0, cov.Ratio)
	assert.False(t, cov.BelowThreshold)
}

func TestAuditCompleteness_FlagsLowCoverage(t *testing.T) {
	source := "- a\n- b\n- c\n- d\n- e"
	elements := []models.DiagramElement{{Type: models.ElementText, Text: "a"}, {Type: models.ElementText, Text: "b"}}

	cov := AuditCompleteness(source, elements, 0.5)
	assert.Equal(t, 5, cov.SourceItems)
	assert.InDelta(t, 0.4, cov.Ratio, 1e-9)
	assert.True(t, cov.BelowThreshold)
}

func TestAuditCompleteness_NoItemsIsFullCoverage(t *testing.T) {
	cov := AuditCompleteness("just a sentence", nil, 0.5)
	assert.Equal(t, 1.0, cov.Ratio)
	assert.False(t, cov.BelowThreshold)
}

func TestCountKinds(t *testing.T) {
	counts := CountKinds([]models.DiagramElement{{Type: models.ElementText}, {Type: models.ElementText}, {Type: models.ElementLine}})
	assert.Equal(t, 2, counts[models.ElementText])
	assert.Equal(t, 1, counts[models.ElementLine])
	assert.Zero(t, counts[models.ElementDiamond])
}
