// Command medeye runs the medicine scanner pipeline over a camera or video
// file and serves the annotated preview as an MJPEG stream.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"github.com/sunnyson6/MedEye"
	"github.com/sunnyson6/MedEye/logger"
	"github.com/sunnyson6/MedEye/ocr"
	"github.com/sunnyson6/MedEye/pipeline"
	"github.com/sunnyson6/MedEye/postprocess"
	"github.com/sunnyson6/MedEye/postprocess/result"
	"github.com/sunnyson6/MedEye/preprocess"
	"github.com/sunnyson6/MedEye/render"
	"github.com/sunnyson6/MedEye/store"
	"github.com/sunnyson6/MedEye/textex"
)

// captureInterval simulates a 30FPS camera when reading from a video file
const captureInterval = 33 * time.Millisecond

func main() {

	envFile := flag.String("e", ".env", "Env file with MEDEYE_* overrides")
	vidSrc := flag.String("v", "0", "Video source, a device id or file path")
	httpAddr := flag.String("a", "localhost:8080", "HTTP address to serve the preview stream on, format address:port")
	ocrLang := flag.String("l", "eng", "Tesseract language, empty disables OCR")
	dsn := flag.String("dsn", "", "PostgreSQL DSN for the medicine catalog, empty disables persistence")

	flag.Parse()

	log := logger.WithComponent("main")

	cfg, err := medeye.LoadConfig(*envFile)

	if err != nil {
		log.WithError(err).Fatal("error loading configuration")
	}

	app, err := newApp(cfg, *vidSrc, *ocrLang, *dsn)

	if err != nil {
		log.WithError(err).Fatal("error starting scanner")
	}

	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer stop()

	app.scanner.Start(ctx)

	go app.captureLoop(ctx)

	http.HandleFunc("/stream", app.stream)

	srv := &http.Server{Addr: *httpAddr}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}()

	log.WithField("addr", *httpAddr).Info("preview stream available at /stream")

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.WithError(err).Fatal("http server failed")
	}

	app.close()
}

// app ties the capture device, scanner and preview stream together
type app struct {
	cfg     medeye.Config
	scanner *pipeline.Scanner
	video   *gocv.VideoCapture
	ocr     *ocr.Tesseract
	db      *store.MedicineStore
	font    render.Font

	// latest frame and detections for the preview overlay
	mu     sync.Mutex
	latest gocv.Mat
	dets   []result.Detection

	log *logrus.Entry
}

func newApp(cfg medeye.Config, vidSrc, ocrLang, dsn string) (*app, error) {

	a := &app{
		cfg:    cfg,
		font:   render.DefaultFont(),
		latest: gocv.NewMat(),
		log:    logger.WithComponent("app"),
	}

	var err error

	a.video, err = gocv.OpenVideoCapture(vidSrc)

	if err != nil {
		return nil, fmt.Errorf("error opening video source %q: %w", vidSrc, err)
	}

	width := int(a.video.Get(gocv.VideoCaptureFrameWidth))
	height := int(a.video.Get(gocv.VideoCaptureFrameHeight))

	a.log.WithFields(logger.Fields{
		"source": vidSrc,
		"width":  width,
		"height": height,
	}).Info("video source opened")

	var ocrEngine medeye.OCREngine

	if ocrLang != "" {
		a.ocr, err = ocr.NewTesseract(ocrLang)

		if err != nil {
			a.log.WithError(err).Warn("OCR unavailable, continuing without text recognition")
		} else {
			ocrEngine = a.ocr
		}
	}

	if dsn != "" {
		a.db, err = store.Open(dsn)

		if err != nil {
			return nil, err
		}
	}

	// detections are mapped straight onto the camera frame
	viewport := postprocess.Viewport{Width: width, Height: height}

	a.scanner, err = pipeline.NewScanner(cfg, newEngine(cfg), ocrEngine,
		viewport, a.onResult)

	if err != nil {
		return nil, err
	}

	return a, nil
}

// newEngine returns the inference engine the scanner runs on.  Model
// execution is delegated to the device NPU runtime, a static engine stands
// in when none is compiled in.
func newEngine(cfg medeye.Config) medeye.InferenceEngine {

	dims := 4 + cfg.ClassCount

	return &pipeline.StaticEngine{
		Vector: make([]float32, cfg.MaxCandidates*dims),
		Shape:  medeye.OutputShape{Dims: []int{1, cfg.MaxCandidates, dims}},
	}
}

// onResult receives each processed frame's detections from the scanner
func (a *app) onResult(dets []result.Detection, rec *textex.RecognitionResult) {

	a.mu.Lock()
	a.dets = dets
	a.mu.Unlock()

	for _, det := range dets {

		if !a.scanner.Policy().ShouldNotify(det, time.Now()) {
			continue
		}

		a.scanner.Policy().RecordNotified(time.Now())

		a.log.WithFields(logger.Fields{
			"class":      det.ClassName,
			"confidence": det.Probability,
			"brand":      det.Brand,
			"expiry":     det.Expiry,
		}).Info("medicine confirmed")

		a.recordScan(det)
	}
}

// recordScan persists a confirmed detection when a catalog is configured
func (a *app) recordScan(det result.Detection) {

	if a.db == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	med, err := a.db.MatchBrand(ctx, det.Brand)

	if err != nil {
		a.log.WithError(err).Debug("no catalog match for scan")
		return
	}

	if _, err := a.db.RecordScan(ctx, med.ID, det.Brand, med.GenericName,
		det.Expiry, det.Probability); err != nil {
		a.log.WithError(err).Warn("error recording scan")
	}
}

// captureLoop reads frames from the video source and offers them to the
// scanner.  Dropped frames are expected, the scanner throttles itself.
func (a *app) captureLoop(ctx context.Context) {

	img := gocv.NewMat()
	defer img.Close()

	bgra := gocv.NewMat()
	defer bgra.Close()

	ticker := time.NewTicker(captureInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
		}

		if ok := a.video.Read(&img); !ok {
			a.log.Info("video source ended")
			return
		}

		if img.Empty() {
			continue
		}

		// keep a copy for the preview stream
		a.mu.Lock()
		img.CopyTo(&a.latest)
		a.mu.Unlock()

		gocv.CvtColor(img, &bgra, gocv.ColorBGRToBGRA)

		frame := preprocess.FrameFromBGRA(bgra.ToBytes(),
			bgra.Cols(), bgra.Rows(), bgra.Cols()*4)

		a.scanner.Submit(frame)
	}
}

// stream is the HTTP handler sending annotated frames to the browser as an
// MJPEG stream
func (a *app) stream(w http.ResponseWriter, r *http.Request) {

	a.log.Info("new preview client connected")

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")

	img := gocv.NewMat()
	defer img.Close()

	ticker := time.NewTicker(captureInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			a.log.Info("preview client disconnected")
			return

		case <-ticker.C:
		}

		a.mu.Lock()
		dets := a.dets

		if a.latest.Empty() {
			a.mu.Unlock()
			continue
		}

		a.latest.CopyTo(&img)
		a.mu.Unlock()

		render.DetectionBoxes(&img, dets, a.cfg.HighConfidenceThreshold,
			a.font, 2)

		buf, err := gocv.IMEncode(".jpg", img)

		if err != nil {
			a.log.WithError(err).Error("error encoding preview frame")
			continue
		}

		fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n",
			buf.Len())
		w.Write(buf.GetBytes())
		fmt.Fprint(w, "\r\n")
		buf.Close()

		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}
}

// close releases the capture device and external resources
func (a *app) close() {

	a.scanner.Close()
	a.video.Close()
	a.latest.Close()

	if a.ocr != nil {
		a.ocr.Close()
	}

	if a.db != nil {
		a.db.Close()
	}
}
