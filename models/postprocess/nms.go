package postprocess

import (
	"sort"

	"github.com/nvr-ai/go-overlay/images"
)

// NMSConfig defines parameters for Non-Maximum Suppression.
type NMSConfig struct {
	IoUThreshold float32 `json:"iou_threshold" yaml:"iou_threshold" koanf:"iouthreshold"` // Overlap threshold for suppression.
	ClassAware   bool    `json:"class_aware" yaml:"class_aware" koanf:"classaware"`       // If true, suppress only within same class.
}

// ApplyGreedyNMS performs standard greedy Non-Maximum Suppression.
//
// Detections are visited from the highest score down; each kept detection suppresses every
// later one whose IoU with it exceeds the threshold. The input slice is not modified.
//
// Arguments:
//   - detections: Detections in any order.
//   - config: NMS configuration.
//
// Returns:
//   - Filtered detections, highest score first. If no detections are provided, returns nil.
func ApplyGreedyNMS(detections DetectionResult, config *NMSConfig) DetectionResult {
	n := len(detections)
	if n == 0 {
		return nil
	}

	sorted := make(DetectionResult, n)
	copy(sorted, detections)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})

	filtered := make(DetectionResult, 0, n)
	used := make([]bool, n)

	for i := 0; i < n; i++ {
		if used[i] {
			continue
		}

		anchor := sorted[i]
		filtered = append(filtered, anchor)
		used[i] = true

		for j := i + 1; j < n; j++ {
			if used[j] {
				continue
			}
			if config.ClassAware && sorted[j].ClassIndex != anchor.ClassIndex {
				continue
			}
			// Suppress if IoU exceeds threshold
			if images.CalculateIoU(anchor.Box, sorted[j].Box) > config.IoUThreshold {
				used[j] = true
			}
		}
	}

	return filtered
}
