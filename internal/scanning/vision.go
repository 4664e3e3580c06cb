package scanning

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/zombor/receipt-scanner/internal/layout"
	"google.golang.org/api/option"
	vision "google.golang.org/api/vision/v1"
)

// Vision implements the Annotator interface using Cloud Vision TEXT_DETECTION
type Vision struct {
	service    *vision.Service
	maxResults int64
}

// NewVision creates a new Cloud Vision Annotator instance
func NewVision(apiKey string, opts ...option.ClientOption) (*Vision, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("vision api key is required")
	}

	ctx := context.Background()
	service, err := vision.NewService(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("creating vision client: %w", err)
	}

	return &Vision{
		service:    service,
		maxResults: 5,
	}, nil
}

// Annotate sends the image to Cloud Vision and converts its text annotations
func (v *Vision) Annotate(imageData []byte, contentType string) ([]layout.Annotation, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	finalImageData, _, _, err := prepareImageData(imageData, contentType)
	if err != nil {
		return nil, err
	}

	req := &vision.BatchAnnotateImagesRequest{
		Requests: []*vision.AnnotateImageRequest{
			{
				Image: &vision.Image{Content: base64.StdEncoding.EncodeToString(finalImageData)},
				Features: []*vision.Feature{
					{Type: "TEXT_DETECTION", MaxResults: v.maxResults},
				},
			},
		},
	}

	resp, err := v.service.Images.Annotate(req).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("annotating image: %w", err)
	}
	if len(resp.Responses) == 0 {
		return nil, fmt.Errorf("no response from vision")
	}
	r := resp.Responses[0]
	if r.Error != nil {
		return nil, fmt.Errorf("vision error (code %d): %s", r.Error.Code, r.Error.Message)
	}

	return fromEntityAnnotations(r.TextAnnotations), nil
}

// fromEntityAnnotations converts Vision entities, keeping their order
func fromEntityAnnotations(entities []*vision.EntityAnnotation) []layout.Annotation {
	anns := make([]layout.Annotation, 0, len(entities))
	for _, e := range entities {
		if e == nil {
			continue
		}
		a := layout.Annotation{Text: e.Description}
		if e.BoundingPoly != nil {
			for _, v := range e.BoundingPoly.Vertices {
				if v == nil {
					continue
				}
				a.BoundingBox = append(a.BoundingBox, layout.Point{X: float64(v.X), Y: float64(v.Y)})
			}
		}
		anns = append(anns, a)
	}
	return anns
}

// Close is a no-op; the Vision service holds no connection of its own
func (v *Vision) Close() error {
	return nil
}
