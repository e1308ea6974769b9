package postprocess

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nvr-ai/go-overlay/images"
)

func TestApplyGreedyNMS(t *testing.T) {
	a := images.Box{YMin: 0, XMin: 0, YMax: 0.4, XMax: 0.4}
	aShift := images.Box{YMin: 0.02, XMin: 0.02, YMax: 0.42, XMax: 0.42}
	far := images.Box{YMin: 0.6, XMin: 0.6, YMax: 0.9, XMax: 0.9}

	tests := []struct {
		name   string
		input  DetectionResult
		config NMSConfig
		want   []float32
	}{
		{
			name:   "empty",
			input:  nil,
			config: NMSConfig{IoUThreshold: 0.5},
			want:   nil,
		},
		{
			name: "overlap suppressed",
			input: DetectionResult{
				{Box: a, ClassIndex: 1, Score: 0.6},
				{Box: aShift, ClassIndex: 1, Score: 0.8},
				{Box: far, ClassIndex: 1, Score: 0.7},
			},
			config: NMSConfig{IoUThreshold: 0.5},
			want:   []float32{0.8, 0.7},
		},
		{
			name: "class agnostic suppresses across classes",
			input: DetectionResult{
				{Box: a, ClassIndex: 1, Score: 0.9},
				{Box: aShift, ClassIndex: 2, Score: 0.8},
			},
			config: NMSConfig{IoUThreshold: 0.5},
			want:   []float32{0.9},
		},
		{
			name: "class aware keeps other classes",
			input: DetectionResult{
				{Box: a, ClassIndex: 1, Score: 0.9},
				{Box: aShift, ClassIndex: 2, Score: 0.8},
			},
			config: NMSConfig{IoUThreshold: 0.5, ClassAware: true},
			want:   []float32{0.9, 0.8},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := ApplyGreedyNMS(tc.input, &tc.config)
			var scores []float32
			for _, d := range got {
				scores = append(scores, d.Score)
			}
			assert.Equal(t, tc.want, scores)
		})
	}
}

func TestApplyGreedyNMSDoesNotReorderInput(t *testing.T) {
	input := DetectionResult{
		{Box: images.Box{XMax: 0.1, YMax: 0.1}, Score: 0.2},
		{Box: images.Box{XMin: 0.5, YMin: 0.5, XMax: 0.6, YMax: 0.6}, Score: 0.9},
	}
	ApplyGreedyNMS(input, &NMSConfig{IoUThreshold: 0.5})
	assert.Equal(t, float32(0.2), input[0].Score)
}
