// Package fusion fuses vision-model confidence with OCR validation and
// debounces user notifications.
package fusion

import (
	"strings"
	"sync"
	"time"

	"github.com/sunnyson6/MedEye/postprocess/result"
	"github.com/sunnyson6/MedEye/textex"
)

// PolicyParams defines the parameters of the fusion policy
type PolicyParams struct {
	// ClassKeywords maps a class id to the OCR keywords that validate it
	ClassKeywords map[int][]string
	// HighConfidence is the adjusted confidence a detection must exceed
	// to be considered confirmed
	HighConfidence float32
	// Boost is added to a detection's confidence when the OCR text
	// contains one of its class keywords
	Boost float32
	// Debounce is the minimum time between notifications
	Debounce time.Duration
}

// DefaultPolicyParams returns the fusion parameters used by the scanner
func DefaultPolicyParams(keywords map[int][]string) PolicyParams {
	return PolicyParams{
		ClassKeywords:  keywords,
		HighConfidence: 0.85,
		Boost:          0.05,
		Debounce:       3 * time.Second,
	}
}

// Policy fuses each frame's detections with the most recent OCR snapshot
// and decides when a confirmed detection may be surfaced to the user
type Policy struct {
	// Params are the fusion configuration parameters
	Params PolicyParams

	mu sync.Mutex
	// lastNotified is the time of the last surfaced notification
	lastNotified time.Time
}

// NewPolicy returns an instance of the fusion policy
func NewPolicy(p PolicyParams) *Policy {
	return &Policy{
		Params: p,
	}
}

// Apply fuses the frame's detections with the given OCR snapshot.  Each
// detection whose class keywords appear in the OCR text gets the confidence
// boost, clamped to [0,1].  The snapshot's brand name and expiry date are
// attached to every detection of the frame, no per-box spatial correlation
// is performed.  A nil or failed snapshot leaves the detections unboosted.
// The input slice is not modified.
func (p *Policy) Apply(dets []result.Detection, rec *textex.RecognitionResult) []result.Detection {

	fused := make([]result.Detection, len(dets))
	copy(fused, dets)

	if rec == nil || !rec.Success {
		return fused
	}

	text := strings.ToLower(rec.Text)

	for i := range fused {
		if p.keywordMatch(text, fused[i].Class) {
			fused[i].Probability = clamp01(fused[i].Probability + p.Params.Boost)
		}

		fused[i].Brand = rec.BrandName
		fused[i].Expiry = rec.ExpiryDate
	}

	return fused
}

// Confirmed reports whether a detection's adjusted confidence clears the
// high-confidence threshold
func (p *Policy) Confirmed(det result.Detection) bool {
	return det.Probability > p.Params.HighConfidence
}

// ShouldNotify reports whether the detection may be surfaced to the user at
// the given time: it must be confirmed and the debounce interval must have
// passed since the last notification
func (p *Policy) ShouldNotify(det result.Detection, now time.Time) bool {

	if !p.Confirmed(det) {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	return now.Sub(p.lastNotified) > p.Params.Debounce
}

// RecordNotified records that a notification was surfaced at the given time
func (p *Policy) RecordNotified(now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastNotified = now
}

// keywordMatch reports whether the lower-cased OCR text contains any keyword
// mapped to the class
func (p *Policy) keywordMatch(text string, class int) bool {

	if text == "" {
		return false
	}

	for _, keyword := range p.Params.ClassKeywords[class] {
		if strings.Contains(text, strings.ToLower(keyword)) {
			return true
		}
	}

	return false
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
