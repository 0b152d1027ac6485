package preprocess

import (
	"image"
)

// PixelFormat identifies the raw pixel layout of a sensor Frame
type PixelFormat int

const (
	// FormatYUVPlanar is three planar Y/U/V planes with 4:2:0 chroma
	// subsampling, each plane carrying its own row and pixel stride
	FormatYUVPlanar PixelFormat = iota + 1
	// FormatBGRAPacked is a single interleaved plane of B,G,R,A bytes
	FormatBGRAPacked
)

// Plane holds one plane of raw pixel bytes from a sensor buffer
type Plane struct {
	// Data are the raw plane bytes
	Data []byte
	// RowStride is the number of bytes between the start of two rows
	RowStride int
	// PixelStride is the number of bytes between two adjacent pixels in
	// the same row
	PixelStride int
}

// Frame is one raw sensor frame.  Its lifetime is a single sensor callback,
// it is discarded after tensor extraction.
type Frame struct {
	// Planes are the pixel planes.  FormatYUVPlanar carries Y, U, V in
	// that order, FormatBGRAPacked a single interleaved plane.
	Planes []Plane
	// Width of the frame in pixels
	Width int
	// Height of the frame in pixels
	Height int
	// Format is the pixel layout tag
	Format PixelFormat
}

// Region is an optional sub-rectangle of a Frame used to restrict tensor
// extraction to a region of interest
type Region struct {
	Left   int
	Top    int
	Width  int
	Height int
}

// ScalingContext records the letterbox parameters used to build the tensor
// for one frame.  It must be paired with that exact frame when inverting
// box coordinates back to source space.
type ScalingContext struct {
	// Scale is the source to tensor scaling factor
	Scale float32
	// PadLeft is the left letterbox padding in tensor pixels
	PadLeft int
	// PadTop is the top letterbox padding in tensor pixels
	PadTop int
	// SrcWidth and SrcHeight are the source rectangle dimensions the
	// tensor was built from.  The pads only encode the source aspect in
	// letterbox mode, so coordinate inversion reads it from here.
	SrcWidth  int
	SrcHeight int
}

// FrameFromBGRA wraps an interleaved BGRA byte buffer as a Frame.  rowStride
// is in bytes, pass width*4 for a tightly packed buffer.
func FrameFromBGRA(data []byte, width, height, rowStride int) *Frame {
	return &Frame{
		Planes: []Plane{
			{Data: data, RowStride: rowStride, PixelStride: 4},
		},
		Width:  width,
		Height: height,
		Format: FormatBGRAPacked,
	}
}

// FrameFromImage converts a decoded image into a packed BGRA Frame.  Used
// to bridge image sources that do not expose raw sensor planes.
func FrameFromImage(img image.Image) *Frame {

	bounds := img.Bounds()
	w := bounds.Dx()
	h := bounds.Dy()

	data := make([]byte, w*h*4)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, a := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()

			idx := (y*w + x) * 4
			data[idx] = byte(b >> 8)
			data[idx+1] = byte(g >> 8)
			data[idx+2] = byte(r >> 8)
			data[idx+3] = byte(a >> 8)
		}
	}

	return FrameFromBGRA(data, w, h, w*4)
}

// ToImage decodes the frame into an RGBA image at full resolution, the
// bitmap form consumed by the OCR capability
func (f *Frame) ToImage() (*image.RGBA, error) {

	read, err := f.pixelReader()

	if err != nil {
		return nil, err
	}

	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))

	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			r, g, b, ok := read(x, y)

			if !ok {
				continue
			}

			idx := y*img.Stride + x*4
			img.Pix[idx] = r
			img.Pix[idx+1] = g
			img.Pix[idx+2] = b
			img.Pix[idx+3] = 0xff
		}
	}

	return img, nil
}

// pixelReader returns a function reading the RGB value of a single frame
// pixel, decoding according to the frame's pixel format.  Reads outside the
// backing buffers report not ok rather than panic, sensor buffers can be
// shorter than their strides imply on the last row.
func (f *Frame) pixelReader() (func(x, y int) (r, g, b byte, ok bool), error) {

	switch f.Format {

	case FormatYUVPlanar:
		if len(f.Planes) < 3 {
			return nil, ErrFormatUnsupported
		}

		yp, up, vp := f.Planes[0], f.Planes[1], f.Planes[2]

		return func(x, y int) (byte, byte, byte, bool) {
			yIdx := y*yp.RowStride + x*yp.PixelStride
			uIdx := (y/2)*up.RowStride + (x/2)*up.PixelStride
			vIdx := (y/2)*vp.RowStride + (x/2)*vp.PixelStride

			if yIdx >= len(yp.Data) || uIdx >= len(up.Data) || vIdx >= len(vp.Data) {
				return 0, 0, 0, false
			}

			r, g, b := yuvToRGB(yp.Data[yIdx], up.Data[uIdx], vp.Data[vIdx])
			return r, g, b, true
		}, nil

	case FormatBGRAPacked:
		if len(f.Planes) < 1 {
			return nil, ErrFormatUnsupported
		}

		p := f.Planes[0]

		return func(x, y int) (byte, byte, byte, bool) {
			idx := y*p.RowStride + x*p.PixelStride

			if idx+2 >= len(p.Data) {
				return 0, 0, 0, false
			}

			// reorder interleaved BGRA to RGB
			return p.Data[idx+2], p.Data[idx+1], p.Data[idx], true
		}, nil
	}

	return nil, ErrFormatUnsupported
}

// yuvToRGB converts a single YUV pixel to RGB using BT.601 coefficients
func yuvToRGB(y, u, v byte) (byte, byte, byte) {

	yf := float32(y)
	uf := float32(u) - 128
	vf := float32(v) - 128

	r := yf + 1.402*vf
	g := yf - 0.344136*uf - 0.714136*vf
	b := yf + 1.772*uf

	return clampByte(r), clampByte(g), clampByte(b)
}

// clampByte restricts the value to the range of a byte
func clampByte(val float32) byte {

	if val <= 0 {
		return 0
	}

	if val >= 255 {
		return 255
	}

	return byte(val)
}
