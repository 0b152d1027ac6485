package render

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"os"

	"golang.org/x/image/font"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/sunnyson6/MedEye/postprocess/result"
)

// TTFFontSize is the point size snapshot labels are rendered at
const TTFFontSize = 14

// Overlay annotates plain image.RGBA frames without an OpenCV dependency,
// used for saved scan snapshots
type Overlay struct {
	fontFace         font.Face
	confirmThreshold float32
}

// NewOverlay loads the TTF font used for snapshot labels
func NewOverlay(ttfFont string, confirmThreshold float32) (*Overlay, error) {

	o := &Overlay{
		confirmThreshold: confirmThreshold,
	}

	// load font data
	fontBytes, err := os.ReadFile(ttfFont)

	if err != nil {
		return nil, fmt.Errorf("failed to load font: %w", err)
	}

	// parse the font
	f, err := opentype.Parse(fontBytes)

	if err != nil {
		return nil, fmt.Errorf("failed to parse font: %w", err)
	}

	// create a type face
	o.fontFace, err = opentype.NewFace(f, &opentype.FaceOptions{
		Size:    TTFFontSize,
		DPI:     72,
		Hinting: font.HintingFull,
	})

	if err != nil {
		return nil, fmt.Errorf("failed to create type face: %w", err)
	}

	return o, nil
}

// Annotate draws the detection boxes and labels onto the image
func (o *Overlay) Annotate(img *image.RGBA, dets []result.Detection) {

	for _, det := range dets {

		useClr := ClassColor(det.Class)

		if det.Probability > o.confirmThreshold {
			useClr = confirmedColor
		}

		rect := image.Rect(det.Box.Left, det.Box.Top, det.Box.Right,
			det.Box.Bottom)

		drawBorder(img, rect, useClr, 2)

		o.drawText(img, DetectionLabel(det, o.confirmThreshold),
			det.Box.Left+2, det.Box.Top-4)
	}
}

// drawText writes a label at the given baseline position
func (o *Overlay) drawText(img *image.RGBA, text string, x, y int) {

	dr := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(White),
		Face: o.fontFace,
		Dot: fixed.Point26_6{
			X: fixed.Int26_6(x * 64),
			Y: fixed.Int26_6(y * 64),
		},
	}
	dr.DrawString(text)
}

// drawBorder paints a rectangle outline of the given thickness
func drawBorder(img *image.RGBA, rect image.Rectangle, clr color.RGBA,
	thickness int) {

	rect = rect.Intersect(img.Bounds())

	if rect.Empty() {
		return
	}

	src := image.NewUniform(clr)

	top := image.Rect(rect.Min.X, rect.Min.Y, rect.Max.X, rect.Min.Y+thickness)
	bottom := image.Rect(rect.Min.X, rect.Max.Y-thickness, rect.Max.X, rect.Max.Y)
	left := image.Rect(rect.Min.X, rect.Min.Y, rect.Min.X+thickness, rect.Max.Y)
	right := image.Rect(rect.Max.X-thickness, rect.Min.Y, rect.Max.X, rect.Max.Y)

	for _, edge := range []image.Rectangle{top, bottom, left, right} {
		draw.Draw(img, edge.Intersect(img.Bounds()), src, image.Point{}, draw.Src)
	}
}
