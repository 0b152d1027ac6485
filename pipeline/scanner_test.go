package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sunnyson6/MedEye"
	"github.com/sunnyson6/MedEye/postprocess"
	"github.com/sunnyson6/MedEye/postprocess/result"
	"github.com/sunnyson6/MedEye/preprocess"
	"github.com/sunnyson6/MedEye/textex"
)

// testConfig returns a small configuration suitable for a 4 candidate
// synthetic model output
func testConfig() medeye.Config {

	cfg := medeye.DefaultConfig()
	cfg.MaxCandidates = 4
	cfg.OutputLayout = "boxmajor"
	cfg.MinFrameInterval = 0
	cfg.OCRInterval = 10 * time.Millisecond

	return cfg
}

// testVector builds a box-major output with one confident class 0 candidate
// centered in the tensor
func testVector(cfg medeye.Config) ([]float32, medeye.OutputShape) {

	dims := 4 + cfg.ClassCount
	vec := make([]float32, cfg.MaxCandidates*dims)

	// candidate 0, the rest stay zero and fail the prefilter
	vec[0] = 0.5  // x center
	vec[1] = 0.5  // y center
	vec[2] = 0.3  // width
	vec[3] = 0.2  // height
	vec[4] = 0.95 // class 0 score

	return vec, medeye.OutputShape{Dims: []int{1, cfg.MaxCandidates, dims}}
}

// testFrame returns a solid white BGRA frame
func testFrame(w, h int) *preprocess.Frame {

	data := make([]byte, w*h*4)

	for i := range data {
		data[i] = 255
	}

	return preprocess.FrameFromBGRA(data, w, h, w*4)
}

// resultRecorder captures listener invocations
type resultRecorder struct {
	mu   sync.Mutex
	dets [][]result.Detection
	recs []*textex.RecognitionResult
}

func (r *resultRecorder) listen(dets []result.Detection, rec *textex.RecognitionResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dets = append(r.dets, dets)
	r.recs = append(r.recs, rec)
}

func (r *resultRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.dets)
}

func (r *resultRecorder) last() ([]result.Detection, *textex.RecognitionResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.dets) == 0 {
		return nil, nil
	}

	return r.dets[len(r.dets)-1], r.recs[len(r.recs)-1]
}

func TestProcessFrameProducesDetections(t *testing.T) {

	cfg := testConfig()
	vec, shape := testVector(cfg)

	rec := &resultRecorder{}

	s, err := NewScanner(cfg, &StaticEngine{Vector: vec, Shape: shape}, nil,
		postprocess.Viewport{Width: 640, Height: 640}, rec.listen)

	if err != nil {
		t.Fatalf("NewScanner error: %v", err)
	}

	s.processFrame(testFrame(640, 640))

	dets, _ := rec.last()

	if len(dets) != 1 {
		t.Fatalf("expected 1 detection, got %d", len(dets))
	}

	if dets[0].Class != 0 || dets[0].ClassName != "biogesic" {
		t.Errorf("expected class 0 biogesic, got %d %q",
			dets[0].Class, dets[0].ClassName)
	}

	if dets[0].Probability < 0.9 {
		t.Errorf("expected confident detection, got %f", dets[0].Probability)
	}

	stats := s.Stats()

	if stats.Processed != 1 {
		t.Errorf("expected 1 processed frame, got %d", stats.Processed)
	}

	if stats.MeanLatency <= 0 {
		t.Errorf("expected positive mean latency, got %v", stats.MeanLatency)
	}
}

func TestProcessFrameSkipsOnInferenceFailure(t *testing.T) {

	cfg := testConfig()

	rec := &resultRecorder{}

	s, err := NewScanner(cfg,
		&StaticEngine{Err: errors.New("npu fault")}, nil,
		postprocess.Viewport{Width: 640, Height: 640}, rec.listen)

	if err != nil {
		t.Fatalf("NewScanner error: %v", err)
	}

	s.processFrame(testFrame(640, 640))

	if rec.count() != 0 {
		t.Errorf("listener must not fire on a skipped frame")
	}

	stats := s.Stats()

	if stats.Skipped != 1 {
		t.Errorf("expected 1 skipped frame, got %d", stats.Skipped)
	}

	if stats.Processed != 0 {
		t.Errorf("expected 0 processed frames, got %d", stats.Processed)
	}
}

func TestProcessFrameSkipsOnShapeMismatch(t *testing.T) {

	cfg := testConfig()
	vec, shape := testVector(cfg)

	rec := &resultRecorder{}

	// vector shorter than the declared shape
	s, err := NewScanner(cfg,
		&StaticEngine{Vector: vec[:8], Shape: shape}, nil,
		postprocess.Viewport{Width: 640, Height: 640}, rec.listen)

	if err != nil {
		t.Fatalf("NewScanner error: %v", err)
	}

	s.processFrame(testFrame(640, 640))

	if rec.count() != 0 {
		t.Errorf("listener must not fire on a shape mismatch")
	}

	if s.Stats().Skipped != 1 {
		t.Errorf("expected 1 skipped frame, got %d", s.Stats().Skipped)
	}
}

func TestSubmitDropsWhenBusy(t *testing.T) {

	cfg := testConfig()
	vec, shape := testVector(cfg)

	// no worker is started, so the capacity-1 channel fills after one
	// accepted frame
	s, err := NewScanner(cfg, &StaticEngine{Vector: vec, Shape: shape}, nil,
		postprocess.Viewport{Width: 640, Height: 640}, nil)

	if err != nil {
		t.Fatalf("NewScanner error: %v", err)
	}

	frame := testFrame(64, 64)

	if !s.Submit(frame) {
		t.Fatalf("first frame must be accepted")
	}

	if s.Submit(frame) {
		t.Errorf("second frame must be dropped while the worker is busy")
	}

	stats := s.Stats()

	if stats.Accepted != 1 || stats.DroppedBusy != 1 {
		t.Errorf("expected 1 accepted 1 dropped, got %d accepted %d dropped",
			stats.Accepted, stats.DroppedBusy)
	}
}

func TestSubmitThrottlesByInterval(t *testing.T) {

	cfg := testConfig()
	cfg.MinFrameInterval = time.Hour

	vec, shape := testVector(cfg)

	s, err := NewScanner(cfg, &StaticEngine{Vector: vec, Shape: shape}, nil,
		postprocess.Viewport{Width: 640, Height: 640}, nil)

	if err != nil {
		t.Fatalf("NewScanner error: %v", err)
	}

	frame := testFrame(64, 64)

	if !s.Submit(frame) {
		t.Fatalf("first frame must be accepted")
	}

	// drain so the busy path cannot mask the throttle
	<-s.frames

	if s.Submit(frame) {
		t.Errorf("frame inside the minimum interval must be dropped")
	}

	if s.Stats().DroppedThrottled != 1 {
		t.Errorf("expected 1 throttled drop, got %d", s.Stats().DroppedThrottled)
	}
}

func TestOCRSnapshotBoostsDetections(t *testing.T) {

	cfg := testConfig()
	vec, shape := testVector(cfg)

	rec := &resultRecorder{}

	s, err := NewScanner(cfg, &StaticEngine{Vector: vec, Shape: shape},
		&StaticOCR{Text: "BIOGESIC\n500 MG\nEXP 12/2025"},
		postprocess.Viewport{Width: 640, Height: 640}, rec.listen)

	if err != nil {
		t.Fatalf("NewScanner error: %v", err)
	}

	frame := testFrame(640, 640)

	s.latestFrame.Store(frame)
	s.runOCR()

	snap := s.Latest()

	if snap == nil || !snap.Success {
		t.Fatalf("expected a successful OCR snapshot")
	}

	if snap.BrandName != "BIOGESIC" {
		t.Errorf("expected brand BIOGESIC, got %q", snap.BrandName)
	}

	s.processFrame(frame)

	dets, got := rec.last()

	if got != snap {
		t.Errorf("listener must receive the published snapshot")
	}

	if len(dets) != 1 {
		t.Fatalf("expected 1 detection, got %d", len(dets))
	}

	// boosted past the raw 0.95 score and clamped at 1
	if dets[0].Probability <= 0.99 || dets[0].Probability > 1.0 {
		t.Errorf("expected boosted probability near 1.0, got %f", dets[0].Probability)
	}

	if dets[0].Brand != "BIOGESIC" || dets[0].Expiry != "12/2025" {
		t.Errorf("expected OCR fields attached, got brand %q expiry %q",
			dets[0].Brand, dets[0].Expiry)
	}
}

func TestOCRFailurePublishedWithoutBoost(t *testing.T) {

	cfg := testConfig()
	vec, shape := testVector(cfg)

	rec := &resultRecorder{}

	s, err := NewScanner(cfg, &StaticEngine{Vector: vec, Shape: shape},
		&StaticOCR{Err: errors.New("tesseract unavailable")},
		postprocess.Viewport{Width: 640, Height: 640}, rec.listen)

	if err != nil {
		t.Fatalf("NewScanner error: %v", err)
	}

	frame := testFrame(640, 640)

	s.latestFrame.Store(frame)
	s.runOCR()

	snap := s.Latest()

	if snap == nil || snap.Success {
		t.Fatalf("expected a failed OCR snapshot to be published")
	}

	s.processFrame(frame)

	dets, _ := rec.last()

	if len(dets) != 1 {
		t.Fatalf("expected 1 detection, got %d", len(dets))
	}

	if dets[0].Probability != 0.95 {
		t.Errorf("failed OCR must not boost, got %f", dets[0].Probability)
	}
}

func TestOCRSingleFlight(t *testing.T) {

	cfg := testConfig()
	vec, shape := testVector(cfg)

	s, err := NewScanner(cfg, &StaticEngine{Vector: vec, Shape: shape},
		&StaticOCR{Text: "BIOGESIC"},
		postprocess.Viewport{Width: 640, Height: 640}, nil)

	if err != nil {
		t.Fatalf("NewScanner error: %v", err)
	}

	s.latestFrame.Store(testFrame(64, 64))

	// simulate an in-flight pass, the overlapping one must bail out
	// without publishing
	s.ocrBusy.Store(true)
	s.runOCR()

	if s.Latest() != nil {
		t.Errorf("overlapping OCR pass must not publish a snapshot")
	}

	s.ocrBusy.Store(false)
	s.runOCR()

	if s.Latest() == nil {
		t.Errorf("expected a snapshot once the guard is free")
	}
}

func TestCloseDiscardsInFlightResults(t *testing.T) {

	cfg := testConfig()
	vec, shape := testVector(cfg)

	rec := &resultRecorder{}

	s, err := NewScanner(cfg, &StaticEngine{Vector: vec, Shape: shape}, nil,
		postprocess.Viewport{Width: 640, Height: 640}, rec.listen)

	if err != nil {
		t.Fatalf("NewScanner error: %v", err)
	}

	s.closing.Store(true)

	s.processFrame(testFrame(640, 640))

	if rec.count() != 0 {
		t.Errorf("results completed during teardown must be dropped")
	}

	if s.Submit(testFrame(64, 64)) {
		t.Errorf("frames must be rejected during teardown")
	}
}

func TestScannerEndToEnd(t *testing.T) {

	cfg := testConfig()
	cfg.OutputLayout = "auto"

	vec, shape := testVector(cfg)

	done := make(chan []result.Detection, 1)

	s, err := NewScanner(cfg, &StaticEngine{Vector: vec, Shape: shape}, nil,
		postprocess.Viewport{Width: 640, Height: 640},
		func(dets []result.Detection, _ *textex.RecognitionResult) {
			select {
			case done <- dets:
			default:
			}
		})

	if err != nil {
		t.Fatalf("NewScanner error: %v", err)
	}

	s.Start(context.Background())
	defer s.Close()

	if !s.Submit(testFrame(640, 640)) {
		t.Fatalf("frame must be accepted")
	}

	select {
	case dets := <-done:
		if len(dets) != 1 {
			t.Errorf("expected 1 detection, got %d", len(dets))
		}

	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for the frame result")
	}
}

func TestHealthStickyDegraded(t *testing.T) {

	h := NewHealth(3)

	h.RecordFailure()
	h.RecordFailure()

	if h.Degraded() {
		t.Fatalf("two failures must not trip a run length of three")
	}

	h.RecordFailure()

	if !h.Degraded() {
		t.Fatalf("three consecutive failures must trip the flag")
	}

	// a success ends the run but the flag stays set
	h.RecordSuccess()

	if !h.Degraded() {
		t.Errorf("degraded flag must be sticky across successes")
	}

	h.Reset()

	if h.Degraded() {
		t.Errorf("Reset must clear the flag")
	}
}

func TestHealthRunInterrupted(t *testing.T) {

	h := NewHealth(3)

	h.RecordFailure()
	h.RecordFailure()
	h.RecordSuccess()
	h.RecordFailure()
	h.RecordFailure()

	if h.Degraded() {
		t.Errorf("interleaved successes must prevent the systemic flag")
	}
}

func TestStatsQuantiles(t *testing.T) {

	c := newStatsCollector()

	for i := 1; i <= 100; i++ {
		c.observe(time.Duration(i) * time.Millisecond)
	}

	s := c.snapshot()

	if s.Processed != 100 {
		t.Fatalf("expected 100 processed, got %d", s.Processed)
	}

	if s.MeanLatency < 50*time.Millisecond || s.MeanLatency > 51*time.Millisecond {
		t.Errorf("expected mean near 50.5ms, got %v", s.MeanLatency)
	}

	if s.P90Latency < 89*time.Millisecond || s.P90Latency > 91*time.Millisecond {
		t.Errorf("expected p90 near 90ms, got %v", s.P90Latency)
	}
}
