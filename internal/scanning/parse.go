package scanning

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/zombor/receipt-scanner/internal/layout"
)

// annotationPrompt asks a vision LLM for Cloud Vision style word boxes. It is
// formatted with the image width and height.
const annotationPrompt = `You are an OCR engine reading a shop receipt. The image is %d pixels wide and %d pixels high.

Detect every word printed on the receipt. For each word return its text exactly as printed and the four corners of its bounding box in image pixels, clockwise from the top-left corner.

Return ONLY a JSON array in this exact format:
[
  {"text": "LIDL", "boundingBox": [{"x": 410, "y": 52}, {"x": 598, "y": 52}, {"x": 598, "y": 90}, {"x": 410, "y": 90}]}
]

Important:
- One entry per word, in reading order: top to bottom, then left to right
- Keep prices, dates and times as single words, e.g. "1.32", "04/09/21", "15:04:33"
- Do not correct spelling and do not translate
- Do not include any text before or after the JSON
- Do not use markdown code blocks`

// annotationSystemPrompt is sent as the system message to chat style models
const annotationSystemPrompt = "You are an OCR engine. You read every word in an image and report its exact position."

// parseAnnotationsJSON parses a model's word box array and prepends the
// page-level annotation that spans all words.
func parseAnnotationsJSON(text string) ([]layout.Annotation, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	startIdx := strings.Index(text, "[")
	if startIdx == -1 {
		return nil, fmt.Errorf("no JSON array found in response")
	}
	endIdx := strings.LastIndex(text, "]")
	if endIdx < startIdx {
		return nil, fmt.Errorf("invalid JSON array in response")
	}
	text = text[startIdx : endIdx+1]

	var words []layout.Annotation
	if err := json.Unmarshal([]byte(text), &words); err != nil {
		return nil, fmt.Errorf("unmarshaling json: %w", err)
	}

	anns := make([]layout.Annotation, 0, len(words)+1)
	anns = append(anns, layout.Annotation{})
	var all []string
	for _, w := range words {
		w.Text = strings.TrimSpace(w.Text)
		if w.Text == "" {
			continue
		}
		all = append(all, w.Text)
		anns = append(anns, w)
	}
	anns[0] = pageAnnotation(strings.Join(all, "\n"), anns[1:])

	return anns, nil
}

// pageAnnotation builds the aggregate annotation whose box covers every word
func pageAnnotation(text string, words []layout.Annotation) layout.Annotation {
	page := layout.Annotation{Text: text}
	xmin, ymin := math.Inf(1), math.Inf(1)
	xmax, ymax := math.Inf(-1), math.Inf(-1)
	for _, w := range words {
		e, ok := w.Extent()
		if !ok {
			continue
		}
		xmin, xmax = math.Min(xmin, e.XMin), math.Max(xmax, e.XMax)
		ymin, ymax = math.Min(ymin, e.YMin), math.Max(ymax, e.YMax)
	}
	if math.IsInf(xmin, 1) {
		return page
	}
	page.BoundingBox = []layout.Point{{X: xmin, Y: ymin}, {X: xmax, Y: ymin}, {X: xmax, Y: ymax}, {X: xmin, Y: ymax}}
	return page
}
