package medeye

import (
	"errors"
	"image"
)

// ErrInferenceFailure is returned when the external inference capability
// fails for a frame.  The frame is skipped and prior displayed state is
// retained by the caller.
var ErrInferenceFailure = errors.New("inference failed")

// OutputShape reports the dimensions of the detection output tensor as
// declared by the inference engine.  It is queried once at model load so the
// output memory layout can be confirmed up front rather than re-inferred on
// every frame.
type OutputShape struct {
	// Dims are the tensor dimensions, eg: [1, 6, 8400] for a model with
	// 2 classes and 8400 candidate boxes
	Dims []int
}

// Elements returns the total number of float values the shape describes
func (s OutputShape) Elements() int {

	if len(s.Dims) == 0 {
		return 0
	}

	n := 1

	for _, d := range s.Dims {
		n *= d
	}

	return n
}

// InferenceEngine is the contract for the external neural-network execution
// capability.  Infer accepts the flattened input tensor produced by
// preprocess (size×size×3 float32, RGB order, values in [0,1]) and returns
// the flat detection output vector along with the shape actually used.
type InferenceEngine interface {
	Infer(tensor []float32) ([]float32, OutputShape, error)
}

// HalfPrecisionEngine is the contract for runtimes whose detection output
// is a raw little-endian float16 buffer rather than float32 values
type HalfPrecisionEngine interface {
	InferRaw(tensor []float32) ([]byte, OutputShape, error)
}

// AdaptHalfPrecision wraps a half-precision runtime as an InferenceEngine,
// converting each output buffer to float32 through the lookup table
func AdaptHalfPrecision(engine HalfPrecisionEngine) InferenceEngine {
	return &halfPrecisionAdapter{engine: engine}
}

type halfPrecisionAdapter struct {
	engine HalfPrecisionEngine
}

// Infer implements InferenceEngine
func (a *halfPrecisionAdapter) Infer(tensor []float32) ([]float32, OutputShape, error) {

	buf, shape, err := a.engine.InferRaw(tensor)

	if err != nil {
		return nil, OutputShape{}, err
	}

	return Float16BytesToFloat32(buf), shape, nil
}

// OCREngine is the contract for the external text-recognition capability.
// Recognize accepts a decoded RGB bitmap and returns the recognized text
// with line breaks preserved.
type OCREngine interface {
	Recognize(img image.Image) (string, error)
}
