// Package render draws detection overlays onto camera frames, either
// through GoCV for the live preview or onto a plain image.RGBA for saved
// snapshots.
package render

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/sunnyson6/MedEye/postprocess/result"
)

// boxLabel holds the precalculated rendering details of a detection label
type boxLabel struct {
	rect    image.Rectangle
	clr     color.RGBA
	text    string
	textPos image.Point
}

// DetectionLabel formats the overlay text for a detection.  OCR brand and
// expiry fields are appended when present.
func DetectionLabel(det result.Detection, confirmThreshold float32) string {

	text := fmt.Sprintf("%s %.2f", det.ClassName, det.Probability)

	if det.Probability > confirmThreshold && det.Brand != "" {
		text = fmt.Sprintf("%s %s", text, det.Brand)
	}

	if det.Probability > confirmThreshold && det.Expiry != "" {
		text = fmt.Sprintf("%s EXP %s", text, det.Expiry)
	}

	return text
}

// DetectionBoxes renders the bounding boxes around the detected medicines.
// Detections past the confirmation threshold are drawn in the confirmed
// color instead of their class color.
func DetectionBoxes(img *gocv.Mat, dets []result.Detection,
	confirmThreshold float32, font Font, lineThickness int) {

	// keep a record of all box labels for later rendering
	boxLabels := make([]boxLabel, 0)

	// draw detection boxes
	for _, det := range dets {

		useClr := ClassColor(det.Class)

		if det.Probability > confirmThreshold {
			useClr = confirmedColor
		}

		// draw rectangle around detected object
		rect := image.Rect(det.Box.Left, det.Box.Top, det.Box.Right,
			det.Box.Bottom)
		gocv.Rectangle(img, rect, useClr, lineThickness)

		// create text for label
		text := DetectionLabel(det, confirmThreshold)
		textSize := gocv.GetTextSize(text, font.Face, font.Scale, font.Thickness)

		// Calculate the alignment of text label
		var centerX int

		switch font.Alignment {
		case Center:
			centerX = (det.Box.Left + det.Box.Right) / 2

		case Right:
			centerX = det.Box.Right - (textSize.X / 2) - font.RightPad + (lineThickness / 2)

		case Left:
			fallthrough
		default:
			centerX = det.Box.Left + (textSize.X / 2) + font.LeftPad - (lineThickness / 2)
		}

		// Adjust the label position so the text is centered horizontally
		labelPosition := image.Pt(centerX-textSize.X/2, det.Box.Top-font.BottomPad)

		// create box for placing text on
		bRect := image.Rect(centerX-textSize.X/2-font.LeftPad,
			det.Box.Top-textSize.Y-font.TopPad-font.BottomPad,
			centerX+textSize.X/2+font.RightPad, det.Box.Top)

		// record label rendering details
		nextLabel := boxLabel{
			rect:    bRect,
			clr:     useClr,
			text:    text,
			textPos: labelPosition,
		}
		boxLabels = append(boxLabels, nextLabel)
	}

	// draw all precalculated box labels last so they are the top most
	// layer on the image
	for _, box := range boxLabels {
		// draw box text gets written on
		gocv.Rectangle(img, box.rect, box.clr, -1)

		// Draw the label over box
		gocv.PutTextWithParams(img, box.text, box.textPos,
			font.Face, font.Scale, font.Color, font.Thickness,
			font.LineType, false)
	}
}
