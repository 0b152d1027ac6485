package preprocess

import (
	"errors"
	"fmt"
	"math"
)

// ErrFormatUnsupported is reported when a frame arrives with an unknown
// pixel layout.  The transformer still returns an all-zero tensor so the
// frame simply yields no detections.
var ErrFormatUnsupported = errors.New("unsupported pixel format")

// Transformer converts a raw sensor frame into the normalized letterboxed
// input tensor for the detection model
type Transformer struct {
	// size is the width and height of the square input tensor
	size int
	// letterbox preserves the source aspect ratio with zero padding, when
	// disabled the source rectangle is stretched to fill the tensor
	letterbox bool
}

// NewTransformer returns a transformer producing size×size×3 tensors
func NewTransformer(size int, letterbox bool) *Transformer {
	return &Transformer{
		size:      size,
		letterbox: letterbox,
	}
}

// Size returns the tensor width and height
func (t *Transformer) Size() int {
	return t.size
}

// Letterbox computes the scaling context for a source rectangle of the given
// dimensions.  Wide sources scale by width with centered vertical padding,
// tall or square sources scale by height with centered horizontal padding.
func (t *Transformer) Letterbox(srcWidth, srcHeight int) ScalingContext {

	if !t.letterbox {
		// stretch mode, inverse mapping is a straight passthrough
		return ScalingContext{
			Scale:     1,
			SrcWidth:  srcWidth,
			SrcHeight: srcHeight,
		}
	}

	if float32(srcWidth)/float32(srcHeight) > 1 {
		scale := float32(t.size) / float32(srcWidth)
		scaledH := int(math.Round(float64(srcHeight) * float64(scale)))

		return ScalingContext{
			Scale:     scale,
			PadTop:    (t.size - scaledH) / 2,
			SrcWidth:  srcWidth,
			SrcHeight: srcHeight,
		}
	}

	scale := float32(t.size) / float32(srcHeight)
	scaledW := int(math.Round(float64(srcWidth) * float64(scale)))

	return ScalingContext{
		Scale:     scale,
		PadLeft:   (t.size - scaledW) / 2,
		SrcWidth:  srcWidth,
		SrcHeight: srcHeight,
	}
}

// Transform extracts the model input tensor from a frame.  roi restricts
// extraction to a sub-rectangle of the frame, pass nil for the full frame.
// The returned tensor holds size×size×3 float32 values in RGB order within
// [0,1], cells outside the scaled region stay zero as letterbox fill.  The
// ScalingContext must accompany this frame's detections through coordinate
// inversion.
func (t *Transformer) Transform(frame *Frame, roi *Region) ([]float32, ScalingContext, error) {

	src, err := t.sourceRect(frame, roi)

	if err != nil {
		return nil, ScalingContext{}, err
	}

	sc := t.Letterbox(src.Width, src.Height)
	tensor := make([]float32, t.size*t.size*3)

	read, err := frame.pixelReader()

	if err != nil {
		// unknown pixel layout yields the all-zero tensor, the frame
		// produces no detections but processing continues
		return tensor, sc, err
	}

	scaledW, scaledH := t.scaledRegion(src, sc)

	for ty := 0; ty < scaledH; ty++ {
		for tx := 0; tx < scaledW; tx++ {

			// nearest-neighbor inverse mapping into the source rectangle
			var sx, sy int

			if t.letterbox {
				sx = int(float32(tx)/sc.Scale) + src.Left
				sy = int(float32(ty)/sc.Scale) + src.Top
			} else {
				sx = tx*src.Width/t.size + src.Left
				sy = ty*src.Height/t.size + src.Top
			}

			if sx < 0 || sy < 0 || sx >= frame.Width || sy >= frame.Height {
				continue
			}

			r, g, b, ok := read(sx, sy)

			if !ok {
				continue
			}

			idx := ((ty+sc.PadTop)*t.size + (tx + sc.PadLeft)) * 3
			tensor[idx] = float32(r) / 255.0
			tensor[idx+1] = float32(g) / 255.0
			tensor[idx+2] = float32(b) / 255.0
		}
	}

	return tensor, sc, nil
}

// sourceRect resolves the region of interest against the frame bounds
func (t *Transformer) sourceRect(frame *Frame, roi *Region) (Region, error) {

	if frame.Width <= 0 || frame.Height <= 0 {
		return Region{}, fmt.Errorf("invalid frame dimensions %dx%d",
			frame.Width, frame.Height)
	}

	if roi == nil {
		return Region{Width: frame.Width, Height: frame.Height}, nil
	}

	if roi.Width <= 0 || roi.Height <= 0 ||
		roi.Left < 0 || roi.Top < 0 ||
		roi.Left+roi.Width > frame.Width ||
		roi.Top+roi.Height > frame.Height {
		return Region{}, fmt.Errorf("region %+v outside frame %dx%d",
			*roi, frame.Width, frame.Height)
	}

	return *roi, nil
}

// scaledRegion returns the tensor-space dimensions the source rectangle
// occupies after scaling
func (t *Transformer) scaledRegion(src Region, sc ScalingContext) (int, int) {

	if !t.letterbox {
		return t.size, t.size
	}

	scaledW := int(math.Round(float64(src.Width) * float64(sc.Scale)))
	scaledH := int(math.Round(float64(src.Height) * float64(sc.Scale)))

	if scaledW > t.size {
		scaledW = t.size
	}

	if scaledH > t.size {
		scaledH = t.size
	}

	return scaledW, scaledH
}
