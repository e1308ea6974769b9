// Package postprocess - Decoding of raw model outputs into categorized results.
package postprocess

import (
	"strings"

	"github.com/nvr-ai/go-overlay/images"
	"github.com/pkg/errors"
)

// Category is the kind of model head a tensor set came from.
type Category int

const (
	// Classification heads emit one score per class.
	Classification Category = iota + 1
	// Detection heads emit aligned positions, classes and scores.
	Detection
)

func (c Category) String() string {
	switch c {
	case Classification:
		return "classification"
	case Detection:
		return "detection"
	default:
		return "unknown"
	}
}

// ParseCategory parses a category name as written in configuration.
func ParseCategory(s string) (Category, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "classification":
		return Classification, nil
	case "detection":
		return Detection, nil
	default:
		return 0, errors.Errorf("unknown model category %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Category) UnmarshalText(b []byte) error {
	parsed, err := ParseCategory(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Result is the decoded output of one inference call. It is either a
// ClassificationResult or a DetectionResult.
type Result interface {
	Category() Category
	isResult()
}

// ClassScore is one ranked class.
type ClassScore struct {
	ClassIndex int     `json:"class" cbor:"class"`
	Score      float32 `json:"score" cbor:"score"`
}

// ClassificationResult is the top-k ranking, highest score first.
type ClassificationResult []ClassScore

// Category implements Result.
func (ClassificationResult) Category() Category { return Classification }
func (ClassificationResult) isResult()          {}

// Top returns the best ranked class, false when the ranking is empty.
func (r ClassificationResult) Top() (ClassScore, bool) {
	if len(r) == 0 {
		return ClassScore{}, false
	}
	return r[0], true
}

// DetectedObject is one detected object.
type DetectedObject struct {
	Box        images.Box `json:"box" cbor:"box"`
	ClassIndex int        `json:"class" cbor:"class"`
	Score      float32    `json:"score" cbor:"score"`
}

// DetectionResult holds detections in model output order.
type DetectionResult []DetectedObject

// Category implements Result.
func (DetectionResult) Category() Category { return Detection }
func (DetectionResult) isResult()          {}
