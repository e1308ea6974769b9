package postprocess

import (
	"sort"

	"github.com/chewxy/math32"
	"github.com/nvr-ai/go-overlay/images"
	"github.com/nvr-ai/go-overlay/tensors"
)

const (
	// DefaultScale normalizes quantized uint8 scores into [0, 1].
	DefaultScale float32 = 255.0
	// DefaultTopK is the number of classes kept for classification.
	DefaultTopK = 5
	// DefaultScoreThreshold is the minimum (exclusive) detection score.
	DefaultScoreThreshold float32 = 0.5
)

// Config holds the decoder constants.
type Config struct {
	// Scale divides raw classification values to produce scores.
	Scale float32 `json:"scale" yaml:"scale" koanf:"scale"`
	// TopK is the maximum number of classifications returned.
	TopK int `json:"top_k" yaml:"top_k" koanf:"topk"`
	// ScoreThreshold drops detections whose score is not strictly greater.
	ScoreThreshold float32 `json:"score_threshold" yaml:"score_threshold" koanf:"scorethreshold"`
	// NMS, when set, suppresses overlapping detections after thresholding.
	NMS *NMSConfig `json:"nms,omitempty" yaml:"nms,omitempty" koanf:"nms"`
}

// DefaultConfig returns the constants quantized MobileNet and SSD models expect.
func DefaultConfig() Config {
	return Config{
		Scale:          DefaultScale,
		TopK:           DefaultTopK,
		ScoreThreshold: DefaultScoreThreshold,
	}
}

// Decoder turns raw tensor sets into results. It holds no per-call state and is safe to
// share.
type Decoder struct {
	cfg Config
}

// NewDecoder creates a decoder. Zero Scale or TopK fall back to the defaults.
func NewDecoder(cfg Config) *Decoder {
	if cfg.Scale == 0 {
		cfg.Scale = DefaultScale
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	return &Decoder{cfg: cfg}
}

// Config returns the effective configuration.
func (d *Decoder) Config() Config {
	return d.cfg
}

// Decode converts a tensor set into the result type for category.
//
// Arguments:
//   - set: The raw outputs of one inference call.
//   - category: Which head produced them.
//
// Returns:
//   - Result: A ClassificationResult or a DetectionResult.
//   - error: A *DecodeError when the set is missing outputs or has unexpected shapes.
func (d *Decoder) Decode(set tensors.Set, category Category) (Result, error) {
	var (
		res Result
		err error
	)
	switch category {
	case Classification:
		res, err = d.DecodeClassification(set)
	case Detection:
		res, err = d.DecodeDetection(set)
	default:
		err = decodeErrorf(category, "unsupported category %d", int(category))
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

// DecodeClassification ranks the first output tensor and keeps the TopK best classes.
//
// Ties keep the lower class index first. When the tensor has fewer than TopK elements every
// element is returned, still ranked.
func (d *Decoder) DecodeClassification(set tensors.Set) (ClassificationResult, error) {
	if len(set) == 0 {
		return nil, decodeErrorf(Classification, "no output tensors")
	}
	output := set[0].Data
	if len(output) == 0 {
		return nil, decodeErrorf(Classification, "output tensor %s is empty", set[0])
	}

	idx := make([]int, len(output))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return output[idx[a]] > output[idx[b]]
	})

	k := min(d.cfg.TopK, len(idx))
	result := make(ClassificationResult, 0, k)
	for _, i := range idx[:k] {
		result = append(result, ClassScore{
			ClassIndex: i,
			Score:      clampUnit(output[i] / d.cfg.Scale),
		})
	}
	return result, nil
}

// DecodeDetection reads the positions, classes and scores outputs, in that order, and
// keeps every index whose score is above the threshold.
func (d *Decoder) DecodeDetection(set tensors.Set) (DetectionResult, error) {
	if len(set) < 3 {
		return nil, decodeErrorf(Detection, "expected positions, classes and scores outputs, got %d tensors", len(set))
	}
	positions := set[0].Squeeze()
	classes := set[1].Squeeze()
	scores := set[2].Squeeze()

	n := scores.Len()
	if scores.Rank() > 1 {
		return nil, decodeErrorf(Detection, "scores %s must be rank 1 after squeeze", scores)
	}
	if classes.Len() != n {
		return nil, decodeErrorf(Detection, "classes %s does not align with scores %s", classes, scores)
	}
	if positions.Len() != 4*n || (positions.Rank() > 1 && positions.Shape[positions.Rank()-1] != 4) {
		return nil, decodeErrorf(Detection, "positions %s is not %dx4", positions, n)
	}

	result := make(DetectionResult, 0, n)
	for i, score := range scores.Data {
		// NaN scores never pass
		if !(score > d.cfg.ScoreThreshold) {
			continue
		}
		result = append(result, DetectedObject{
			Box:        images.BoxFromSlice(positions.Data[4*i : 4*i+4]),
			ClassIndex: int(classes.Data[i]),
			Score:      score,
		})
	}

	if d.cfg.NMS != nil && len(result) > 1 {
		result = ApplyGreedyNMS(result, d.cfg.NMS)
	}
	return result, nil
}

func clampUnit(v float32) float32 {
	if math32.IsNaN(v) {
		return 0
	}
	return math32.Max(0, math32.Min(1, v))
}
