package tensors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gtensor "gorgonia.org/tensor"
)

func TestNewUint8Widens(t *testing.T) {
	tt, err := NewUint8("out", []int{1, 3}, []uint8{0, 128, 255})
	require.NoError(t, err)

	assert.Equal(t, Uint8, tt.DType)
	assert.Equal(t, []float32{0, 128, 255}, tt.Data)
	assert.Equal(t, 3, tt.Len())
	assert.Equal(t, 2, tt.Rank())
}

func TestNewFloat32ShapeMismatch(t *testing.T) {
	_, err := NewFloat32("boxes", []int{1, 10, 4}, make([]float32, 39))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boxes")
}

func TestNewFloat32CopiesInput(t *testing.T) {
	data := []float32{1, 2}
	tt, err := NewFloat32("x", []int{2}, data)
	require.NoError(t, err)

	data[0] = 42
	assert.Equal(t, float32(1), tt.Data[0])
}

func TestSqueeze(t *testing.T) {
	tests := []struct {
		name  string
		shape []int
		n     int
		want  []int
	}{
		{"batch dimension", []int{1, 10, 4}, 40, []int{10, 4}},
		{"inner ones", []int{1, 10, 1}, 10, []int{10}},
		{"nothing to squeeze", []int{10, 4}, 40, []int{10, 4}},
		{"all ones", []int{1, 1}, 1, []int{1}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tt, err := NewFloat32("t", tc.shape, make([]float32, tc.n))
			require.NoError(t, err)
			assert.Equal(t, tc.want, tt.Squeeze().Shape)
			// squeezing never changes the original
			assert.Equal(t, tc.shape, tt.Shape)
		})
	}
}

func TestFromDense(t *testing.T) {
	dense := gtensor.New(gtensor.WithShape(1, 4), gtensor.WithBacking([]float32{0.1, 0.2, 0.3, 0.4}))

	tt, err := FromDense("scores", dense)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 4}, tt.Shape)
	assert.Equal(t, Float32, tt.DType)
	assert.InDeltaSlice(t, []float32{0.1, 0.2, 0.3, 0.4}, tt.Data, 1e-6)
}

func TestFromDenseFloat64(t *testing.T) {
	dense := gtensor.New(gtensor.WithShape(2), gtensor.WithBacking([]float64{0.5, 1.5}))

	tt, err := FromDense("f64", dense)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 1.5}, tt.Data)
}

func TestFromDenseInt64(t *testing.T) {
	backing := []int64{3, 17, 1}
	dense := gtensor.New(gtensor.WithShape(1, 3), gtensor.WithBacking(backing))

	tt, err := FromDense("detection_classes", dense)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3}, tt.Shape)
	assert.Equal(t, Float32, tt.DType)
	assert.Equal(t, []float32{3, 17, 1}, tt.Data)
}

func TestFromDenseCopiesBacking(t *testing.T) {
	backing := []float32{1, 2}
	tt, err := FromDense("out", gtensor.New(gtensor.WithShape(2), gtensor.WithBacking(backing)))
	require.NoError(t, err)

	backing[0] = 9
	assert.Equal(t, []float32{1, 2}, tt.Data)
}

func TestFromDenseUnsupported(t *testing.T) {
	dense := gtensor.New(gtensor.WithShape(2), gtensor.WithBacking([]int32{1, 2}))

	_, err := FromDense("ints", dense)
	require.Error(t, err)
}
