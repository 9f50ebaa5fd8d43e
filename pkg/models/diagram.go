// Package models contains domain types for ekaya-canvas.
package models

import "math"

// ElementKind discriminates the DiagramElement tagged union.
type ElementKind string

const (
	ElementRectangle ElementKind = "rectangle"
	ElementEllipse   ElementKind = "ellipse"
	ElementDiamond   ElementKind = "diamond"
	ElementText      ElementKind = "text"
	ElementArrow     ElementKind = "arrow"
	ElementLine      ElementKind = "line"
)

// ValidElementKinds contains all valid element kinds.
var ValidElementKinds = []ElementKind{
	ElementRectangle, ElementEllipse, ElementDiamond, ElementText, ElementArrow, ElementLine,
}

// IsShape reports whether the kind is a closed shape (rectangle, ellipse, diamond).
func (k ElementKind) IsShape() bool {
	return k == ElementRectangle || k == ElementEllipse || k == ElementDiamond
}

// IsLinear reports whether the kind is drawn from a point list (arrow, line).
func (k ElementKind) IsLinear() bool {
	return k == ElementArrow || k == ElementLine
}

// FillStyle values.
const (
	FillSolid      = "solid"
	FillHachure    = "hachure"
	FillCrossHatch = "cross-hatch"
	FillNone       = "none"
)

// StrokeStyle values.
const (
	StrokeSolid  = "solid"
	StrokeDashed = "dashed"
	StrokeDotted = "dotted"
)

// FontFamily values.
const (
	FontNormal = "normal"
	FontVirgil = "virgil"
	FontCode   = "code"
)

// TextAlign values.
const (
	AlignLeft   = "left"
	AlignCenter = "center"
	AlignRight  = "right"
)

// TransparentColor is a sentinel background meaning "no fill", not a color.
const TransparentColor = "transparent"

// Roundness types understood by the renderer.
const (
	RoundnessProportional = 2
	RoundnessAdaptive     = 3
)

// Roundness holds rounded-corner metadata for rectangles and diamonds.
type Roundness struct {
	Type int `json:"type"`
}

// Binding attaches an arrow end to another element.
type Binding struct {
	ElementID string  `json:"elementId"`
	Focus     float64 `json:"focus"`
	Gap       float64 `json:"gap"`
}

// BoundElement references an element bound to this one (arrows, container text).
type BoundElement struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// Point is an element-relative offset for arrow and line elements.
type Point [2]float64

// DiagramElement is one typed drawing primitive. Before enrichment only the
// schema-minimal fields are populated; ID and the renderer bookkeeping
// fields are filled in by diagram.Enrich.
type DiagramElement struct {
	ID   string      `json:"id,omitempty"`
	Type ElementKind `json:"type"`

	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Angle  float64 `json:"angle"`

	StrokeColor     string   `json:"strokeColor,omitempty"`
	BackgroundColor string   `json:"backgroundColor,omitempty"`
	FillStyle       string   `json:"fillStyle,omitempty"`
	StrokeWidth     float64  `json:"strokeWidth,omitempty"`
	StrokeStyle     string   `json:"strokeStyle,omitempty"`
	Roughness       *int     `json:"roughness,omitempty"`
	Opacity         *float64 `json:"opacity,omitempty"`
	Seed            int64    `json:"seed,omitempty"`

	// text
	Text          string  `json:"text,omitempty"`
	OriginalText  string  `json:"originalText,omitempty"`
	FontSize      float64 `json:"fontSize,omitempty"`
	FontFamily    string  `json:"fontFamily,omitempty"`
	TextAlign     string  `json:"textAlign,omitempty"`
	VerticalAlign string  `json:"verticalAlign,omitempty"`
	LineHeight    float64 `json:"lineHeight,omitempty"`
	Baseline      float64 `json:"baseline,omitempty"`
	ContainerID   *string `json:"containerId"`

	// arrow / line
	Points         []Point  `json:"points,omitempty"`
	StartArrowhead *string  `json:"startArrowhead"`
	EndArrowhead   *string  `json:"endArrowhead"`
	StartBinding   *Binding `json:"startBinding"`
	EndBinding     *Binding `json:"endBinding"`

	// renderer bookkeeping, populated by enrichment
	Version       int            `json:"version,omitempty"`
	VersionNonce  int64          `json:"versionNonce,omitempty"`
	IsDeleted     bool           `json:"isDeleted"`
	GroupIDs      []string       `json:"groupIds"`
	FrameID       *string        `json:"frameId"`
	Roundness     *Roundness     `json:"roundness"`
	BoundElements []BoundElement `json:"boundElements"`
	Updated       int64          `json:"updated,omitempty"`
	Link          *string        `json:"link"`
	Locked        bool           `json:"locked"`
}

// Clone returns a deep copy of the element.
func (e DiagramElement) Clone() DiagramElement {
	out := e
	if e.Roughness != nil {
		v := *e.Roughness
		out.Roughness = &v
	}
	if e.Opacity != nil {
		v := *e.Opacity
		out.Opacity = &v
	}
	if e.ContainerID != nil {
		v := *e.ContainerID
		out.ContainerID = &v
	}
	if e.Points != nil {
		out.Points = append([]Point(nil), e.Points...)
	}
	if e.StartArrowhead != nil {
		v := *e.StartArrowhead
		out.StartArrowhead = &v
	}
	if e.EndArrowhead != nil {
		v := *e.EndArrowhead
		out.EndArrowhead = &v
	}
	if e.StartBinding != nil {
		v := *e.StartBinding
		out.StartBinding = &v
	}
	if e.EndBinding != nil {
		v := *e.EndBinding
		out.EndBinding = &v
	}
	if e.GroupIDs != nil {
		out.GroupIDs = append([]string(nil), e.GroupIDs...)
	}
	if e.FrameID != nil {
		v := *e.FrameID
		out.FrameID = &v
	}
	if e.Roundness != nil {
		v := *e.Roundness
		out.Roundness = &v
	}
	if e.BoundElements != nil {
		out.BoundElements = append([]BoundElement(nil), e.BoundElements...)
	}
	if e.Link != nil {
		v := *e.Link
		out.Link = &v
	}
	return out
}

// Normalized returns a copy whose width and height are non-negative.
// A negative dimension denotes a flip; the origin is shifted so the element
// covers exactly the same area.
func (e DiagramElement) Normalized() DiagramElement {
	out := e.Clone()
	if out.Width < 0 {
		out.X += out.Width
		out.Width = -out.Width
	}
	if out.Height < 0 {
		out.Y += out.Height
		out.Height = -out.Height
	}
	return out
}

// Bounds returns the axis-aligned (unrotated) extent of the element.
func (e DiagramElement) Bounds() (minX, minY, maxX, maxY float64) {
	minX = e.X + math.Min(0, e.Width)
	maxX = e.X + math.Max(0, e.Width)
	minY = e.Y + math.Min(0, e.Height)
	maxY = e.Y + math.Max(0, e.Height)
	return minX, minY, maxX, maxY
}

// CloneElements deep-copies a slice of elements.
func CloneElements(elements []DiagramElement) []DiagramElement {
	if elements == nil {
		return nil
	}
	out := make([]DiagramElement, len(elements))
	for i, e := range elements {
		out[i] = e.Clone()
	}
	return out
}
