package pipeline

import (
	"image"

	"github.com/sunnyson6/MedEye"
)

// StaticEngine is an InferenceEngine that returns a fixed output vector for
// every frame.  It is used in tests and for dry runs without a model.
type StaticEngine struct {
	// Vector is returned from every Infer call
	Vector []float32
	// Shape describes Vector
	Shape medeye.OutputShape
	// Err, when set, is returned instead of the vector
	Err error
	// Delay, when set, is invoked before returning to simulate a slow
	// model
	Delay func()
}

// Infer implements medeye.InferenceEngine
func (e *StaticEngine) Infer(tensor []float32) ([]float32, medeye.OutputShape, error) {

	if e.Delay != nil {
		e.Delay()
	}

	if e.Err != nil {
		return nil, medeye.OutputShape{}, e.Err
	}

	return e.Vector, e.Shape, nil
}

// StaticOCR is an OCREngine returning fixed text, used in tests
type StaticOCR struct {
	Text string
	Err  error
}

// Recognize implements medeye.OCREngine
func (o *StaticOCR) Recognize(img image.Image) (string, error) {

	if o.Err != nil {
		return "", o.Err
	}

	return o.Text, nil
}
