// Package pipeline ties the perception stages together: frames pushed from
// the sensor are processed one at a time on a dedicated worker, while OCR
// runs on its own slower cadence and publishes immutable text snapshots the
// fusion stage consumes.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sunnyson6/MedEye"
	"github.com/sunnyson6/MedEye/fusion"
	"github.com/sunnyson6/MedEye/logger"
	"github.com/sunnyson6/MedEye/postprocess"
	"github.com/sunnyson6/MedEye/postprocess/result"
	"github.com/sunnyson6/MedEye/preprocess"
	"github.com/sunnyson6/MedEye/textex"
)

// Listener receives each processed frame's final detections along with the
// OCR snapshot they were fused with.  It is invoked from the worker
// goroutine, long work should be handed off.
type Listener func(dets []result.Detection, rec *textex.RecognitionResult)

// Scanner runs the per-frame perception pipeline with strict single-flight
// semantics: a frame arriving while one is being processed is dropped,
// never queued
type Scanner struct {
	cfg      medeye.Config
	engine   medeye.InferenceEngine
	ocr      medeye.OCREngine
	viewport postprocess.Viewport
	listener Listener

	transformer *preprocess.Transformer
	mapper      *postprocess.Mapper
	suppressor  *postprocess.Suppressor
	policy      *fusion.Policy

	// decoder is created once the output layout is known, either from
	// configuration or from the first shape the engine reports
	decoderMu sync.Mutex
	decoder   *postprocess.Decoder

	// frames is the capacity-1 drop-on-full handoff to the worker
	frames chan *preprocess.Frame
	// latestFrame is the newest accepted frame, read by the OCR loop
	latestFrame atomic.Pointer[preprocess.Frame]
	// latestRec is the published OCR snapshot, swapped atomically so the
	// fusion stage never observes a partially written result
	latestRec atomic.Pointer[textex.RecognitionResult]
	// lastAccepted throttles frame intake, unix nanos
	lastAccepted atomic.Int64

	// closing discards results of in-flight work during teardown
	closing atomic.Bool
	ocrBusy atomic.Bool

	health *Health
	stats  *statsCollector

	log    *logrus.Entry
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScanner returns a scanner wired to the given engines.  The viewport is
// the on-screen placement of the camera preview detections are mapped into.
// ocrEngine may be nil, fusion then runs without an OCR signal.
func NewScanner(cfg medeye.Config, engine medeye.InferenceEngine,
	ocrEngine medeye.OCREngine, vp postprocess.Viewport,
	listener Listener) (*Scanner, error) {

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if engine == nil {
		return nil, errors.New("an inference engine is required")
	}

	s := &Scanner{
		cfg:      cfg,
		engine:   engine,
		ocr:      ocrEngine,
		viewport: vp,
		listener: listener,

		transformer: preprocess.NewTransformer(cfg.TensorSize, cfg.Letterbox),
		mapper: postprocess.NewMapper(postprocess.MapperParams{
			TensorSize:    cfg.TensorSize,
			ConfThreshold: cfg.ConfidenceThreshold,
			ClassNames:    cfg.ClassLabels,
		}),
		suppressor: postprocess.NewSuppressor(postprocess.SuppressorParams{
			IoUThreshold:  cfg.IoUThreshold,
			ConfThreshold: cfg.ConfidenceThreshold,
			MaxKept:       cfg.MaxDetections,
		}),
		policy: fusion.NewPolicy(fusion.PolicyParams{
			ClassKeywords:  cfg.ClassKeywords,
			HighConfidence: cfg.HighConfidenceThreshold,
			Boost:          cfg.ConfidenceBoost,
			Debounce:       cfg.DebounceInterval,
		}),

		frames: make(chan *preprocess.Frame, 1),
		health: NewHealth(defaultDegradedRunLength),
		stats:  newStatsCollector(),
		log:    logger.WithComponent("scanner"),
	}

	// a layout pinned by configuration is honored immediately, "auto"
	// waits for the first reported shape
	if layout, ok := postprocess.ParseLayout(cfg.OutputLayout); ok {
		s.decoder = postprocess.NewDecoder(postprocess.DecoderParams{
			BoxCount:      cfg.MaxCandidates,
			ClassCount:    cfg.ClassCount,
			Layout:        layout,
			ConfThreshold: cfg.ConfidenceThreshold,
		})
	}

	return s, nil
}

// Start launches the worker and OCR goroutines.  It returns immediately,
// stop with Close or by cancelling the context.
func (s *Scanner) Start(ctx context.Context) {

	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(2)
	go s.worker(ctx)
	go s.ocrLoop(ctx)
}

// Close tears the scanner down.  In-flight tensor, inference and OCR work
// is allowed to complete but its result is dropped rather than applied.
func (s *Scanner) Close() {

	if s.closing.Swap(true) {
		return
	}

	if s.cancel != nil {
		s.cancel()
	}

	s.wg.Wait()
}

// Submit offers a frame to the pipeline.  It never blocks the sensor
// callback: the frame is dropped when the worker is busy or when it arrives
// inside the minimum inter-frame interval.  Returns true when the frame was
// accepted for processing.
func (s *Scanner) Submit(frame *preprocess.Frame) bool {

	if s.closing.Load() {
		return false
	}

	// the OCR loop always sees the newest frame, even ones the
	// detection path drops
	s.latestFrame.Store(frame)

	now := time.Now().UnixNano()
	last := s.lastAccepted.Load()

	if time.Duration(now-last) < s.cfg.MinFrameInterval {
		s.stats.droppedThrottled.Add(1)
		return false
	}

	if !s.lastAccepted.CompareAndSwap(last, now) {
		// another producer won the slot
		s.stats.droppedThrottled.Add(1)
		return false
	}

	select {
	case s.frames <- frame:
		s.stats.accepted.Add(1)
		return true
	default:
		s.stats.droppedBusy.Add(1)
		return false
	}
}

// Policy exposes the fusion policy for notification decisions
func (s *Scanner) Policy() *fusion.Policy {
	return s.policy
}

// Latest returns the most recently published OCR snapshot, nil when none
// has been produced yet
func (s *Scanner) Latest() *textex.RecognitionResult {
	return s.latestRec.Load()
}

// HealthState returns the pipeline health tracker
func (s *Scanner) HealthState() *Health {
	return s.health
}

// Stats returns a snapshot of the pipeline counters and latency statistics
func (s *Scanner) Stats() Stats {
	return s.stats.snapshot()
}

// worker processes frames one at a time from the capacity-1 handoff
func (s *Scanner) worker(ctx context.Context) {

	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case frame := <-s.frames:
			s.processFrame(frame)
		}
	}
}

// processFrame runs one frame through the full detection path.  Every
// failure is frame-scoped: the frame is skipped and prior displayed state
// is retained by the listener.
func (s *Scanner) processFrame(frame *preprocess.Frame) {

	start := time.Now()

	tensor, sc, err := s.transformer.Transform(frame, nil)

	if err != nil {
		s.skipFrame(fmt.Errorf("tensor extraction: %w", err))
		return
	}

	output, shape, err := s.engine.Infer(tensor)

	if err != nil {
		s.skipFrame(fmt.Errorf("%w: %v", medeye.ErrInferenceFailure, err))
		return
	}

	decoder := s.decoderFor(shape)

	if err := decoder.ValidateShape(len(output)); err != nil {
		s.skipFrame(fmt.Errorf("decode: %w", err))
		return
	}

	raws := decoder.Decode(output)
	mapped := s.mapper.MapAll(raws, sc, s.viewport)
	kept := s.suppressor.Suppress(mapped)

	rec := s.latestRec.Load()
	fused := s.policy.Apply(kept, rec)

	if s.closing.Load() {
		// teardown started while the frame was in flight, drop the
		// result rather than apply it
		return
	}

	s.health.RecordSuccess()
	s.stats.observe(time.Since(start))

	if s.listener != nil {
		s.listener(fused, rec)
	}
}

// skipFrame records a frame-scoped failure.  Systemic failure is tracked by
// the health flag, ordinary skips only surface at debug level.
func (s *Scanner) skipFrame(err error) {

	s.stats.skipped.Add(1)
	s.health.RecordFailure()

	s.log.WithError(err).Debug("frame skipped")

	if s.health.Degraded() {
		s.log.WithError(err).Warn("pipeline degraded, every recent frame failed")
	}
}

// decoderFor returns the output decoder, deciding the layout from the first
// reported shape when the configuration asked for auto detection
func (s *Scanner) decoderFor(shape medeye.OutputShape) *postprocess.Decoder {

	s.decoderMu.Lock()
	defer s.decoderMu.Unlock()

	if s.decoder != nil {
		return s.decoder
	}

	layout := postprocess.DetectLayout(shape, 4+s.cfg.ClassCount)

	s.log.WithFields(logger.Fields{
		"shape":  shape.Dims,
		"layout": layout.String(),
	}).Info("output layout decided")

	s.decoder = postprocess.NewDecoder(postprocess.DecoderParams{
		BoxCount:      s.cfg.MaxCandidates,
		ClassCount:    s.cfg.ClassCount,
		Layout:        layout,
		ConfThreshold: s.cfg.ConfidenceThreshold,
	})

	return s.decoder
}

// ocrLoop periodically runs OCR over the newest frame, concurrent with but
// never blocking the detection path
func (s *Scanner) ocrLoop(ctx context.Context) {

	defer s.wg.Done()

	if s.ocr == nil {
		return
	}

	ticker := time.NewTicker(s.cfg.OCRInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			s.runOCR()
		}
	}
}

// runOCR executes one OCR pass with a single-flight guard and publishes the
// resulting snapshot
func (s *Scanner) runOCR() {

	if !s.ocrBusy.CompareAndSwap(false, true) {
		return
	}

	defer s.ocrBusy.Store(false)

	frame := s.latestFrame.Load()

	if frame == nil {
		return
	}

	var rec textex.RecognitionResult

	img, err := frame.ToImage()

	if err != nil {
		rec = textex.Failure(fmt.Sprintf("frame decode: %v", err))
	} else if text, err := s.ocr.Recognize(img); err != nil {
		rec = textex.Failure(err.Error())
	} else {
		rec = textex.Extract(text)
	}

	if s.closing.Load() {
		// teardown started mid-pass, drop the result
		return
	}

	s.latestRec.Store(&rec)
}
