package postprocess

import (
	"math"

	"github.com/sunnyson6/MedEye/postprocess/result"
	"github.com/sunnyson6/MedEye/preprocess"
)

// box aspect ratios outside this window are discarded as geometric noise
const (
	minBoxAspect = 0.2
	maxBoxAspect = 5.0
)

// Viewport is the on-screen placement of the camera preview the detections
// are displayed over
type Viewport struct {
	X      int
	Y      int
	Width  int
	Height int
}

// MapperParams defines the parameters of the coordinate mapper
type MapperParams struct {
	// TensorSize is the width and height of the square input tensor
	TensorSize int
	// ConfThreshold is the final confidence threshold, candidates below
	// it are not worth mapping
	ConfThreshold float32
	// ClassNames are the model class labels indexed by class id
	ClassNames []string
}

// Mapper inverts letterboxing and maps normalized model-space boxes into
// display-pixel space
type Mapper struct {
	// Params are the mapper configuration parameters
	Params MapperParams
	// idGen provides the next number for each detection result ID
	idGen *result.IDGenerator
}

// NewMapper returns an instance of the coordinate mapper
func NewMapper(p MapperParams) *Mapper {
	return &Mapper{
		Params: p,
		idGen:  result.NewIDGenerator(),
	}
}

// Map converts one decoded candidate into a viewport-pixel Detection.  The
// ScalingContext must be the one produced while building the tensor for the
// candidate's frame.  The second return is false when the candidate is
// rejected.
//
// Three ordered steps, the order is load-bearing: undo the letterbox in
// tensor space, convert center to corner form, then aspect-fit the
// normalized coordinates into the viewport.
func (m *Mapper) Map(raw RawDetection, sc preprocess.ScalingContext,
	vp Viewport) (result.Detection, bool) {

	if raw.Confidence < m.Params.ConfThreshold {
		return result.Detection{}, false
	}

	size := float32(m.Params.TensorSize)

	// step 1: undo letterbox
	adjX := clamp01((raw.XCenter*size - float32(sc.PadLeft)) / (sc.Scale * size))
	adjY := clamp01((raw.YCenter*size - float32(sc.PadTop)) / (sc.Scale * size))
	adjW := raw.Width / sc.Scale
	adjH := raw.Height / sc.Scale

	// step 2: center to corner form
	xMin := clamp01(adjX - adjW/2)
	yMin := clamp01(adjY - adjH/2)
	xMax := clamp01(adjX + adjW/2)
	yMax := clamp01(adjY + adjH/2)

	// step 3: aspect-fit the normalized source coordinates into the
	// viewport, centering the remaining dimension
	srcAspect := sourceAspect(sc, size)
	vpAspect := float32(vp.Width) / float32(vp.Height)

	var fitW, fitH, offX, offY float32

	if srcAspect > vpAspect {
		// fit by width
		fitW = float32(vp.Width)
		fitH = fitW / srcAspect
		offY = (float32(vp.Height) - fitH) / 2
	} else {
		// fit by height
		fitH = float32(vp.Height)
		fitW = fitH * srcAspect
		offX = (float32(vp.Width) - fitW) / 2
	}

	box := result.BoxRect{
		Left:   vp.X + int(math.Round(float64(offX+xMin*fitW))),
		Top:    vp.Y + int(math.Round(float64(offY+yMin*fitH))),
		Right:  vp.X + int(math.Round(float64(offX+xMax*fitW))),
		Bottom: vp.Y + int(math.Round(float64(offY+yMax*fitH))),
	}

	if box.Width() <= 0 || box.Height() <= 0 {
		return result.Detection{}, false
	}

	aspect := float32(box.Width()) / float32(box.Height())

	if aspect < minBoxAspect || aspect > maxBoxAspect {
		return result.Detection{}, false
	}

	det := result.Detection{
		Box:         clampToViewport(box, vp),
		Probability: raw.Confidence,
		Class:       raw.ClassID,
		ID:          m.idGen.GetNext(),
	}

	if raw.ClassID >= 0 && raw.ClassID < len(m.Params.ClassNames) {
		det.ClassName = m.Params.ClassNames[raw.ClassID]
	}

	return det, true
}

// MapAll maps a batch of decoded candidates, dropping rejected ones
func (m *Mapper) MapAll(raws []RawDetection, sc preprocess.ScalingContext,
	vp Viewport) []result.Detection {

	dets := make([]result.Detection, 0, len(raws))

	for _, raw := range raws {
		if det, ok := m.Map(raw, sc, vp); ok {
			dets = append(dets, det)
		}
	}

	return dets
}

// sourceAspect returns the aspect ratio of the source rectangle the tensor
// was built from.  The context's source dimensions are authoritative, the
// letterbox pads only encode the aspect when padding actually happened, in
// stretch mode they are zero for any source.  Contexts without dimensions
// fall back to the padded derivation.
func sourceAspect(sc preprocess.ScalingContext, size float32) float32 {

	if sc.SrcWidth > 0 && sc.SrcHeight > 0 {
		return float32(sc.SrcWidth) / float32(sc.SrcHeight)
	}

	return (size - 2*float32(sc.PadLeft)) / (size - 2*float32(sc.PadTop))
}

// clampToViewport keeps the box within the display viewport
func clampToViewport(box result.BoxRect, vp Viewport) result.BoxRect {
	return result.BoxRect{
		Left:   clampInt(box.Left, vp.X, vp.X+vp.Width),
		Top:    clampInt(box.Top, vp.Y, vp.Y+vp.Height),
		Right:  clampInt(box.Right, vp.X, vp.X+vp.Width),
		Bottom: clampInt(box.Bottom, vp.Y, vp.Y+vp.Height),
	}
}

// clamp01 restricts the value to [0,1]
func clamp01(val float32) float32 {

	if val < 0 {
		return 0
	}

	if val > 1 {
		return 1
	}

	return val
}

// clampInt restricts the value to the range min and max
func clampInt(val, min, max int) int {

	if val < min {
		return min
	}

	if val > max {
		return max
	}

	return val
}
