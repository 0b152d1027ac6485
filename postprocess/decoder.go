package postprocess

import (
	"errors"
	"sort"

	"github.com/sunnyson6/MedEye"
)

// Layout is the memory layout of a flat multi-box detection output vector
type Layout int

const (
	// LayoutBoxMajor stores candidates in the outer dimension and their
	// attributes inner, eg: shape [1, 8400, 6]
	LayoutBoxMajor Layout = iota + 1
	// LayoutChannelMajor stores attributes in the outer dimension and
	// candidates inner, eg: shape [1, 6, 8400]
	LayoutChannelMajor
)

// String returns a readable name of the layout
func (l Layout) String() string {
	switch l {
	case LayoutBoxMajor:
		return "boxmajor"
	case LayoutChannelMajor:
		return "channelmajor"
	default:
		return "unknown"
	}
}

// ParseLayout maps a configuration value to a Layout.  The second return is
// false for "auto" or unrecognised values, the layout must then be decided
// from the engine's reported shape with DetectLayout.
func ParseLayout(s string) (Layout, bool) {
	switch s {
	case "boxmajor":
		return LayoutBoxMajor, true
	case "channelmajor":
		return LayoutChannelMajor, true
	}
	return 0, false
}

// DetectLayout decides the output layout from the shape the inference engine
// reports at model load.  dims is the per-candidate attribute count 4+C.
// This runs once per model load, never per frame.  When the shape is
// ambiguous the box-major layout is assumed.
func DetectLayout(shape medeye.OutputShape, dims int) Layout {

	// strip a leading batch dimension of 1
	d := shape.Dims

	if len(d) > 0 && d[0] == 1 {
		d = d[1:]
	}

	if len(d) >= 2 {
		if d[len(d)-1] == dims {
			return LayoutBoxMajor
		}

		if d[0] == dims {
			return LayoutChannelMajor
		}
	}

	return LayoutBoxMajor
}

// ErrShapeMismatch is reported when the output vector length is inconsistent
// with the declared shape.  The frame is skipped, no partial decode is
// attempted.
var ErrShapeMismatch = errors.New("output vector length inconsistent with declared shape")

// RawDetection is one candidate decoded from the model output vector, in
// normalized model space
type RawDetection struct {
	// XCenter and YCenter are the box center in [0,1] model space
	XCenter float32
	YCenter float32
	// Width and Height are the box dimensions in [0,1] model space
	Width  float32
	Height float32
	// ClassID is the argmax over the candidate's class scores
	ClassID int
	// Confidence is the maximum class score
	Confidence float32
	// Index is the candidate's original position in the output vector,
	// used as a stable tie-break when sorting
	Index int
}

// DecoderParams defines the parameters of the detection output decoder
type DecoderParams struct {
	// BoxCount is the number of candidate boxes in the output vector
	BoxCount int
	// ClassCount is the number of object classes the model was trained
	// with
	ClassCount int
	// Layout is the memory layout of the output vector, decided once at
	// model load
	Layout Layout
	// ConfThreshold is the final confidence threshold.  Decoding applies
	// a coarse prefilter at 0.75x this value, the final cut happens in
	// the suppression stage.
	ConfThreshold float32
}

// Decoder parses a flat model output vector into candidate detections
type Decoder struct {
	// Params are the decoder configuration parameters
	Params DecoderParams
	// prefilter is the coarse confidence threshold applied during decode
	prefilter float32
}

// NewDecoder returns an instance of the detection output decoder
func NewDecoder(p DecoderParams) *Decoder {
	return &Decoder{
		Params:    p,
		prefilter: p.ConfThreshold * 0.75,
	}
}

// dims returns the per-candidate attribute count, 4 box values plus one
// score per class
func (d *Decoder) dims() int {
	return 4 + d.Params.ClassCount
}

// ValidateShape checks an output vector length against the declared shape
func (d *Decoder) ValidateShape(vectorLen int) error {

	if vectorLen != d.Params.BoxCount*d.dims() {
		return ErrShapeMismatch
	}

	return nil
}

// Decode parses the output vector into candidates above the prefilter
// threshold, sorted descending by confidence with a stable tie-break on the
// original candidate index.  Every read is bounds-checked, candidates whose
// values fall outside the vector are skipped rather than fatal.
func (d *Decoder) Decode(vector []float32) []RawDetection {

	dims := d.dims()

	// at returns the value of attribute dim for candidate i according to
	// the declared layout
	var at func(i, dim int) (float32, bool)

	switch d.Params.Layout {

	case LayoutChannelMajor:
		at = func(i, dim int) (float32, bool) {
			idx := dim*d.Params.BoxCount + i
			if idx < 0 || idx >= len(vector) {
				return 0, false
			}
			return vector[idx], true
		}

	default:
		at = func(i, dim int) (float32, bool) {
			idx := i*dims + dim
			if idx < 0 || idx >= len(vector) {
				return 0, false
			}
			return vector[idx], true
		}
	}

	var candidates []RawDetection

	for i := 0; i < d.Params.BoxCount; i++ {

		xc, ok1 := at(i, 0)
		yc, ok2 := at(i, 1)
		w, ok3 := at(i, 2)
		h, ok4 := at(i, 3)

		if !ok1 || !ok2 || !ok3 || !ok4 {
			continue
		}

		classID := -1
		confidence := float32(0)

		for c := 0; c < d.Params.ClassCount; c++ {
			score, ok := at(i, 4+c)

			if !ok {
				continue
			}

			if classID == -1 || score > confidence {
				confidence = score
				classID = c
			}
		}

		if classID == -1 || confidence < d.prefilter {
			continue
		}

		// degenerate or implausibly large boxes are model noise
		if w < 0.01 || w > 0.9 || h < 0.01 || h > 0.9 {
			continue
		}

		candidates = append(candidates, RawDetection{
			XCenter:    xc,
			YCenter:    yc,
			Width:      w,
			Height:     h,
			ClassID:    classID,
			Confidence: confidence,
			Index:      i,
		})
	}

	sort.SliceStable(candidates, func(a, b int) bool {
		return candidates[a].Confidence > candidates[b].Confidence
	})

	return candidates
}
