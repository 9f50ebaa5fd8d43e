// Package diagram holds the pure, deterministic passes over diagram elements:
// candidate validation, typography defaults, enrichment and the
// completeness audit.
package diagram

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/ekaya-inc/ekaya-canvas/pkg/jsonutil"
	"github.com/ekaya-inc/ekaya-canvas/pkg/models"
)

const elementSchemaURL = "https://ekaya.ai/schemas/canvas/element.json"

//go:embed element.schema.json
var elementSchemaJSON []byte

// ErrNotArray is returned when a model response does not hold a JSON array.
var ErrNotArray = errors.New("candidate document is not a JSON array")

// Rejection records why a candidate element was dropped.
type Rejection struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// SchemaValidator checks model-produced candidate elements against the
// element schema. It is safe for concurrent use.
type SchemaValidator struct {
	schema *jsonschema.Schema
}

// NewSchemaValidator compiles the embedded element schema.
func NewSchemaValidator() (*SchemaValidator, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(elementSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal element schema: %w", err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource(elementSchemaURL, doc); err != nil {
		return nil, fmt.Errorf("add element schema resource: %w", err)
	}
	compiled, err := c.Compile(elementSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile element schema: %w", err)
	}

	return &SchemaValidator{schema: compiled}, nil
}

// MustSchemaValidator is NewSchemaValidator for package-level setup and tests.
func MustSchemaValidator() *SchemaValidator {
	v, err := NewSchemaValidator()
	if err != nil {
		panic(err)
	}
	return v
}

// ValidateArray splits raw into its items and validates each one.
// It fails only when raw is not a JSON array; invalid items become rejections.
func (v *SchemaValidator) ValidateArray(raw json.RawMessage) ([]models.DiagramElement, []Rejection, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, nil, ErrNotArray
	}

	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrNotArray, err)
	}

	accepted, rejected := v.ValidateCandidates(items)
	return accepted, rejected, nil
}

// ValidateCandidates validates each raw element and decodes the accepted ones.
// Elements with impossible types or ranges are rejected, never coerced.
// The only leniency is that text may arrive as a number or boolean.
func (v *SchemaValidator) ValidateCandidates(items []json.RawMessage) ([]models.DiagramElement, []Rejection) {
	accepted := make([]models.DiagramElement, 0, len(items))
	var rejected []Rejection

	for i, item := range items {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(item))
		if err != nil {
			rejected = append(rejected, Rejection{Index: i, Reason: "not valid JSON: " + err.Error()})
			continue
		}
		if err := v.schema.Validate(doc); err != nil {
			rejected = append(rejected, Rejection{Index: i, Reason: describeViolation(err)})
			continue
		}

		el, err := decodeCandidate(item)
		if err != nil {
			rejected = append(rejected, Rejection{Index: i, Reason: err.Error()})
			continue
		}
		accepted = append(accepted, el)
	}

	return accepted, rejected
}

// candidate is the schema-minimal wire shape the model is asked to emit.
// Identity and renderer bookkeeping are deliberately absent.
type candidate struct {
	Type            models.ElementKind `json:"type"`
	X               float64            `json:"x"`
	Y               float64            `json:"y"`
	Width           float64            `json:"width"`
	Height          float64            `json:"height"`
	Angle           float64            `json:"angle"`
	Opacity         *float64           `json:"opacity"`
	StrokeColor     string             `json:"strokeColor"`
	BackgroundColor string             `json:"backgroundColor"`
	FillStyle       string             `json:"fillStyle"`
	StrokeStyle     string             `json:"strokeStyle"`
	StrokeWidth     float64            `json:"strokeWidth"`
	Roughness       *float64           `json:"roughness"`
	Seed            float64            `json:"seed"`
	Text            json.RawMessage    `json:"text"`
	FontSize        float64            `json:"fontSize"`
	FontFamily      string             `json:"fontFamily"`
	TextAlign       string             `json:"textAlign"`
	Points          [][]float64        `json:"points"`
	StartArrowhead  *string            `json:"startArrowhead"`
	EndArrowhead    *string            `json:"endArrowhead"`
}

func decodeCandidate(raw json.RawMessage) (models.DiagramElement, error) {
	var c candidate
	if err := json.Unmarshal(raw, &c); err != nil {
		return models.DiagramElement{}, fmt.Errorf("decode element: %w", err)
	}

	el := models.DiagramElement{
		Type:            c.Type,
		X:               c.X,
		Y:               c.Y,
		Width:           c.Width,
		Height:          c.Height,
		Angle:           c.Angle,
		Opacity:         c.Opacity,
		StrokeColor:     c.StrokeColor,
		BackgroundColor: c.BackgroundColor,
		FillStyle:       c.FillStyle,
		StrokeStyle:     c.StrokeStyle,
		StrokeWidth:     c.StrokeWidth,
		Seed:            int64(c.Seed),
		FontSize:        c.FontSize,
		FontFamily:      c.FontFamily,
		TextAlign:       c.TextAlign,
		StartArrowhead:  c.StartArrowhead,
		EndArrowhead:    c.EndArrowhead,
	}
	if c.Roughness != nil {
		r := int(*c.Roughness)
		el.Roughness = &r
	}
	if len(c.Text) > 0 {
		el.Text = jsonutil.FlexibleStringValue(c.Text)
	}
	if len(c.Points) > 0 {
		el.Points = make([]models.Point, len(c.Points))
		for i, p := range c.Points {
			el.Points[i] = models.Point{p[0], p[1]}
		}
	}
	return el, nil
}

// describeViolation flattens a schema validation error into one line.
func describeViolation(err error) string {
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return err.Error()
	}
	leaves := collectViolations(verr)
	if len(leaves) == 0 {
		return verr.Error()
	}
	return strings.Join(leaves, "; ")
}

func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var out []string
	for _, cause := range verr.Causes {
		out = append(out, collectViolations(cause)...)
	}
	return out
}

// EncodeCandidates renders elements as the schema-minimal JSON array sent
// back to the model by the later stages, with each element's index.
func EncodeCandidates(elements []models.DiagramElement) (string, error) {
	type indexed struct {
		Index int `json:"index"`
		candidateOut
	}
	out := make([]indexed, len(elements))
	for i, el := range elements {
		out[i] = indexed{Index: i, candidateOut: toCandidateOut(el)}
	}
	b, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("encode candidates: %w", err)
	}
	return string(b), nil
}

type candidateOut struct {
	Type            models.ElementKind `json:"type"`
	X               float64            `json:"x"`
	Y               float64            `json:"y"`
	Width           float64            `json:"width"`
	Height          float64            `json:"height"`
	Angle           float64            `json:"angle,omitempty"`
	Opacity         *float64           `json:"opacity,omitempty"`
	StrokeColor     string             `json:"strokeColor,omitempty"`
	BackgroundColor string             `json:"backgroundColor,omitempty"`
	FillStyle       string             `json:"fillStyle,omitempty"`
	StrokeStyle     string             `json:"strokeStyle,omitempty"`
	StrokeWidth     float64            `json:"strokeWidth,omitempty"`
	Roughness       *int               `json:"roughness,omitempty"`
	Text            string             `json:"text,omitempty"`
	FontSize        float64            `json:"fontSize,omitempty"`
	FontFamily      string             `json:"fontFamily,omitempty"`
	TextAlign       string             `json:"textAlign,omitempty"`
	Points          []models.Point     `json:"points,omitempty"`
	StartArrowhead  *string            `json:"startArrowhead,omitempty"`
	EndArrowhead    *string            `json:"endArrowhead,omitempty"`
}

func toCandidateOut(el models.DiagramElement) candidateOut {
	return candidateOut{
		Type:            el.Type,
		X:               el.X,
		Y:               el.Y,
		Width:           el.Width,
		Height:          el.Height,
		Angle:           el.Angle,
		Opacity:         el.Opacity,
		StrokeColor:     el.StrokeColor,
		BackgroundColor: el.BackgroundColor,
		FillStyle:       el.FillStyle,
		StrokeStyle:     el.StrokeStyle,
		StrokeWidth:     el.StrokeWidth,
		Roughness:       el.Roughness,
		Text:            el.Text,
		FontSize:        el.FontSize,
		FontFamily:      el.FontFamily,
		TextAlign:       el.TextAlign,
		Points:          el.Points,
		StartArrowhead:  el.StartArrowhead,
		EndArrowhead:    el.EndArrowhead,
	}
}
