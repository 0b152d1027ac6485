package result

// BoxRect are the viewport-pixel dimensions of the bounding box of a
// detected object
type BoxRect struct {
	Left   int
	Top    int
	Right  int
	Bottom int
}

// Width returns the box width in pixels
func (b BoxRect) Width() int {
	return b.Right - b.Left
}

// Height returns the box height in pixels
func (b BoxRect) Height() int {
	return b.Bottom - b.Top
}

// Detection defines the attributes of a single object detected in a frame
type Detection struct {
	// Box are the bounding box dimensions of the object location in
	// display pixels
	Box BoxRect
	// Probability is the confidence score of the object detected.  The
	// fusion policy may raise it when OCR text corroborates the class,
	// it never leaves [0,1].
	Probability float32
	// Class is the index of the object class the model predicted
	Class int
	// ClassName is the label of the predicted class
	ClassName string
	// Brand is the brand name recognized by OCR in the same scene, empty
	// when no OCR signal was available
	Brand string
	// Expiry is the expiry date recognized by OCR in the same scene,
	// empty when none was found
	Expiry string
	// ID is a unique ID assigned to the detection result
	ID int64
}
