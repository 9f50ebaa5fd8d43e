package diagram

import (
	"regexp"
	"strings"

	"github.com/ekaya-inc/ekaya-canvas/pkg/models"
)

// DefaultCoverageWarnRatio is the coverage below which the audit flags a document.
const DefaultCoverageWarnRatio = 0.5

var (
	bulletLine   = regexp.MustCompile(`^\s*(?:[-*+•▪‣◦]|\[[ xX]\])\s+\S`)
	numberedLine = regexp.MustCompile(`^\s*(?:\d{1,3}|[a-zA-Z])[.)]\s+\S`)
	headerLine   = regexp.MustCompile(`^\s*(?:#{1,6}\s+\S|[^\s:][^:]{0,60}:\s*$)`)
	inlineNumber = regexp.MustCompile(`(?:^|\s)\d{1,3}[.)]\s+\S`)
	tableDivider = regexp.MustCompile(`^\s*\|?\s*:?-{3,}`)
)

// Coverage summarises how much of the source made it into the diagram.
type Coverage struct {
	SourceItems    int     `json:"sourceItems"`
	TextElements   int     `json:"textElements"`
	Shapes         int     `json:"shapes"`
	Ratio          float64 `json:"ratio"`
	BelowThreshold bool    `json:"belowThreshold"`
}

// AuditCompleteness counts structural items in source (bullets, numbered
// entries, table rows, headers) and compares them with the text elements
// produced. A source with no recognisable items reports a ratio of 1.
// It never modifies elements.
func AuditCompleteness(source string, elements []models.DiagramElement, warnRatio float64) Coverage {
	kinds := CountKinds(elements)
	cov := Coverage{
		SourceItems:  CountSourceItems(source),
		TextElements: kinds[models.ElementText],
		Shapes:       kinds[models.ElementRectangle] + kinds[models.ElementEllipse] + kinds[models.ElementDiamond],
		Ratio:        1,
	}
	if cov.SourceItems > 0 {
		cov.Ratio = float64(cov.TextElements) / float64(cov.SourceItems)
	}
	cov.BelowThreshold = cov.Ratio < warnRatio
	return cov
}

// CountSourceItems applies the line heuristics used by AuditCompleteness.
func CountSourceItems(source string) int {
	items := 0
	for _, line := range strings.Split(source, "\n") {
		if strings.TrimSpace(line) == "" || tableDivider.MatchString(line) {
			continue
		}
		switch {
		case bulletLine.MatchString(line), numberedLine.MatchString(line):
			items++
		case isTableRow(line):
			items++
		default:
			inline := len(inlineNumber.FindAllString(line, -1))
			if inline > 0 {
				items += inline
			} else if headerLine.MatchString(line) {
				items++
			}
		}
	}
	return items
}

func isTableRow(line string) bool {
	if strings.Count(line, "|") >= 2 {
		return true
	}
	return strings.Count(strings.TrimSpace(line), "\t") >= 1
}

// CountKinds tallies elements by kind.
func CountKinds(elements []models.DiagramElement) map[models.ElementKind]int {
	counts := make(map[models.ElementKind]int, len(models.ValidElementKinds))
	for _, el := range elements {
		counts[el.Type]++
	}
	return counts
}
