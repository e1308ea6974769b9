// Package results - Serializable inference records and the append-only record log.
package results

import (
	"time"

	"github.com/nvr-ai/go-overlay/models/postprocess"
)

// Labels resolves class indices to names.
type Labels interface {
	Name(index int) (string, bool)
}

// Entry is one ranked class or one detection.
type Entry struct {
	Class int     `json:"class" cbor:"class"`
	Label string  `json:"label" cbor:"label"`
	Score float32 `json:"score" cbor:"score"`
	// Box is [ymin, xmin, ymax, xmax], normalized; nil for classification entries.
	Box []float32 `json:"box,omitempty" cbor:"box,omitempty"`
}

// Record is what one processed frame produced.
type Record struct {
	Timestamp     time.Time            `json:"timestamp" cbor:"timestamp"`
	Frame         uint64               `json:"frame" cbor:"frame"`
	Source        string               `json:"source,omitempty" cbor:"source,omitempty"`
	Model         string               `json:"model,omitempty" cbor:"model,omitempty"`
	Category      postprocess.Category `json:"category" cbor:"category"`
	InferenceTime time.Duration        `json:"inference_time_ns" cbor:"inference_time_ns"`
	Entries       []Entry              `json:"entries" cbor:"entries"`
}

// NewRecord flattens res into entries, resolving labels. Unknown indices get placeholder.
func NewRecord(res postprocess.Result, labels Labels, placeholder string) Record {
	rec := Record{Timestamp: time.Now().UTC(), Entries: []Entry{}}
	if res == nil {
		return rec
	}
	rec.Category = res.Category()

	name := func(idx int) string {
		if labels != nil {
			if n, ok := labels.Name(idx); ok {
				return n
			}
		}
		return placeholder
	}

	switch r := res.(type) {
	case postprocess.ClassificationResult:
		for _, c := range r {
			rec.Entries = append(rec.Entries, Entry{Class: c.ClassIndex, Label: name(c.ClassIndex), Score: c.Score})
		}
	case postprocess.DetectionResult:
		for _, d := range r {
			box := d.Box.Array()
			rec.Entries = append(rec.Entries, Entry{
				Class: d.ClassIndex,
				Label: name(d.ClassIndex),
				Score: d.Score,
				Box:   box[:],
			})
		}
	}
	return rec
}
