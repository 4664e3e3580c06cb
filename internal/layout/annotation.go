package layout

import (
	"encoding/json"
	"fmt"
	"math"
)

// Point is a corner of an annotation's bounding box in image pixels
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Annotation is one OCR-detected text fragment with its bounding quadrilateral.
// The first annotation of a list is the page-level aggregate.
type Annotation struct {
	Text        string  `json:"text"`
	BoundingBox []Point `json:"boundingBox"`
}

// Extent is the axis-aligned box around an annotation's corners
type Extent struct {
	XMin float64
	XMax float64
	YMin float64
	YMax float64
}

// Height returns the vertical size of the extent
func (e Extent) Height() float64 {
	return e.YMax - e.YMin
}

// CenterY returns the vertical center of the extent
func (e Extent) CenterY() float64 {
	return (e.YMax + e.YMin) / 2
}

// Extent computes the bounding extent of the annotation. ok is false when the
// annotation has no corners or no height, in which case it cannot take part in
// any spatial comparison.
func (a Annotation) Extent() (Extent, bool) {
	if len(a.BoundingBox) == 0 {
		return Extent{}, false
	}
	e := Extent{
		XMin: math.Inf(1),
		XMax: math.Inf(-1),
		YMin: math.Inf(1),
		YMax: math.Inf(-1),
	}
	for _, p := range a.BoundingBox {
		if math.IsNaN(p.X) || math.IsNaN(p.Y) {
			return Extent{}, false
		}
		e.XMin = math.Min(e.XMin, p.X)
		e.XMax = math.Max(e.XMax, p.X)
		e.YMin = math.Min(e.YMin, p.Y)
		e.YMax = math.Max(e.YMax, p.Y)
	}
	if e.Height() <= 0 {
		return Extent{}, false
	}
	return e, true
}

// lineOverlap returns how much two extents share the same printed line: the
// shared vertical span divided by the taller of the two heights.
func lineOverlap(a, b Extent) float64 {
	shared := math.Min(a.YMax, b.YMax) - math.Max(a.YMin, b.YMin)
	if shared <= 0 {
		return 0
	}
	return shared / math.Max(a.Height(), b.Height())
}

// UnmarshalJSON accepts both the plain shape
// {"text": ..., "boundingBox": [...]} and the Cloud Vision entity shape
// {"description": ..., "boundingPoly": {"vertices": [...]}}.
func (a *Annotation) UnmarshalJSON(data []byte) error {
	var raw struct {
		Text         *string `json:"text"`
		Description  *string `json:"description"`
		BoundingBox  []Point `json:"boundingBox"`
		BoundingPoly *struct {
			Vertices []Point `json:"vertices"`
		} `json:"boundingPoly"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*a = Annotation{}
	switch {
	case raw.Text != nil:
		a.Text = *raw.Text
	case raw.Description != nil:
		a.Text = *raw.Description
	}
	switch {
	case len(raw.BoundingBox) > 0:
		a.BoundingBox = raw.BoundingBox
	case raw.BoundingPoly != nil:
		a.BoundingBox = raw.BoundingPoly.Vertices
	}
	return nil
}

// DecodeAnnotations decodes a JSON annotation array. The array may also be
// wrapped in a Cloud Vision response ({"responses":[{"textAnnotations":[...]}]}).
func DecodeAnnotations(data []byte) ([]Annotation, error) {
	var anns []Annotation
	if err := json.Unmarshal(data, &anns); err == nil {
		return anns, nil
	}

	var wrapped struct {
		TextAnnotations []Annotation `json:"textAnnotations"`
		Responses       []struct {
			TextAnnotations []Annotation `json:"textAnnotations"`
		} `json:"responses"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("decoding annotations: %w", err)
	}
	if len(wrapped.Responses) > 0 {
		return wrapped.Responses[0].TextAnnotations, nil
	}
	return wrapped.TextAnnotations, nil
}
