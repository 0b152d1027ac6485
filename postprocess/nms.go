package postprocess

import (
	"sort"

	"github.com/sunnyson6/MedEye/postprocess/result"
)

// SuppressorParams defines the parameters of the non-maximum suppression
// stage
type SuppressorParams struct {
	// IoUThreshold is the maximum allowed Intersection over Union between
	// two boxes of the same class for both to be kept
	IoUThreshold float32
	// ConfThreshold is the minimum probability score required for a
	// detection to be kept
	ConfThreshold float32
	// MaxKept is the maximum number of detections returned, kept in
	// confidence order
	MaxKept int
}

// Suppressor implements class-aware Non-Maximum Suppression over
// coordinate-mapped detections.  Different classes never suppress each
// other.  Running the suppressor over its own output is a no-op.
type Suppressor struct {
	// Params are the suppressor configuration parameters
	Params SuppressorParams
}

// NewSuppressor returns an instance of the NMS suppressor
func NewSuppressor(p SuppressorParams) *Suppressor {
	return &Suppressor{
		Params: p,
	}
}

// Suppress returns the detections that survive class-aware NMS, sorted
// descending by confidence and truncated to MaxKept.  The input slice is
// not modified.
func (s *Suppressor) Suppress(dets []result.Detection) []result.Detection {

	ordered := make([]result.Detection, len(dets))
	copy(ordered, dets)

	sort.SliceStable(ordered, func(a, b int) bool {
		return ordered[a].Probability > ordered[b].Probability
	})

	suppressed := make([]bool, len(ordered))
	kept := make([]result.Detection, 0, len(ordered))

	for i := 0; i < len(ordered); i++ {

		if suppressed[i] || ordered[i].Probability < s.Params.ConfThreshold {
			continue
		}

		kept = append(kept, ordered[i])

		for j := i + 1; j < len(ordered); j++ {

			if suppressed[j] || ordered[j].Class != ordered[i].Class {
				continue
			}

			if IoU(ordered[i].Box, ordered[j].Box) > s.Params.IoUThreshold {
				suppressed[j] = true
			}
		}
	}

	if s.Params.MaxKept > 0 && len(kept) > s.Params.MaxKept {
		kept = kept[:s.Params.MaxKept]
	}

	return kept
}

// IoU works out the Intersection over Union value of two boxes in integer
// pixel space
func IoU(a, b result.BoxRect) float32 {

	w := minInt(a.Right, b.Right) - maxInt(a.Left, b.Left)
	h := minInt(a.Bottom, b.Bottom) - maxInt(a.Top, b.Top)

	if w <= 0 || h <= 0 {
		return 0
	}

	intersection := w * h
	union := a.Width()*a.Height() + b.Width()*b.Height() - intersection

	if union <= 0 {
		return 0
	}

	return float32(intersection) / float32(union)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
