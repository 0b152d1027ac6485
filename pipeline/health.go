package pipeline

import "sync"

// defaultDegradedRunLength is the number of consecutive frame failures
// after which the pipeline is considered systemically degraded rather than
// suffering ordinary per-frame skips
const defaultDegradedRunLength = 30

// Health tracks the distinction between isolated frame failures, which are
// expected under load, and a systemic failure where every frame fails.  The
// degraded flag is sticky, it stays set until Reset even after frames start
// succeeding again.
type Health struct {
	mu        sync.Mutex
	runLength int
	failures  int
	degraded  bool
}

// NewHealth returns a tracker that trips after runLength consecutive
// failures
func NewHealth(runLength int) *Health {

	if runLength <= 0 {
		runLength = defaultDegradedRunLength
	}

	return &Health{runLength: runLength}
}

// RecordFailure notes a frame-scoped failure
func (h *Health) RecordFailure() {

	h.mu.Lock()
	defer h.mu.Unlock()

	h.failures++

	if h.failures >= h.runLength {
		h.degraded = true
	}
}

// RecordSuccess notes a successfully processed frame, ending any failure
// run.  The degraded flag is not cleared.
func (h *Health) RecordSuccess() {

	h.mu.Lock()
	defer h.mu.Unlock()

	h.failures = 0
}

// Degraded reports whether the pipeline has seen a systemic failure run
func (h *Health) Degraded() bool {

	h.mu.Lock()
	defer h.mu.Unlock()

	return h.degraded
}

// Reset clears the sticky degraded flag and the current failure run
func (h *Health) Reset() {

	h.mu.Lock()
	defer h.mu.Unlock()

	h.failures = 0
	h.degraded = false
}
