package medeye

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config is the configuration surface consumed by the perception core
type Config struct {
	// TensorSize is the width and height of the square model input tensor
	TensorSize int `validate:"gt=0"`
	// ChannelCount is the number of color channels in the input tensor
	ChannelCount int `validate:"eq=3"`
	// ClassCount is the number of object classes the model was trained with
	ClassCount int `validate:"gt=0"`
	// OutputLayout declares the detection output memory layout, one of
	// "auto", "boxmajor" or "channelmajor".  With "auto" the layout is
	// decided once from the shape the engine reports at model load.
	OutputLayout string `validate:"oneof=auto boxmajor channelmajor"`
	// ConfidenceThreshold is the final minimum probability score required
	// for a detection to be kept
	ConfidenceThreshold float32 `validate:"gt=0,lte=1"`
	// IoUThreshold is the maximum allowed Intersection over Union between
	// two same-class boxes for both to be kept
	IoUThreshold float32 `validate:"gt=0,lt=1"`
	// Letterbox enables aspect-ratio-preserving padding when building the
	// input tensor.  When disabled the source is stretched to fit.
	Letterbox bool
	// MaxCandidates is the number of candidate boxes the model outputs
	MaxCandidates int `validate:"gt=0"`
	// MaxDetections is the maximum number of detections kept per frame
	MaxDetections int `validate:"gt=0"`
	// HighConfidenceThreshold is the adjusted confidence a detection must
	// exceed to be considered confirmed
	HighConfidenceThreshold float32 `validate:"gt=0,lte=1"`
	// ConfidenceBoost is added to a detection's confidence when OCR text
	// contains one of its class keywords
	ConfidenceBoost float32 `validate:"gte=0,lte=1"`
	// DebounceInterval is the minimum time between user notifications
	DebounceInterval time.Duration `validate:"gt=0"`
	// MinFrameInterval throttles frame processing independent of the
	// sensor delivery rate
	MinFrameInterval time.Duration `validate:"gte=0"`
	// OCRInterval is the period of the independent OCR loop
	OCRInterval time.Duration `validate:"gt=0"`
	// ClassLabels are the model's class names, indexed by class id
	ClassLabels []string `validate:"required"`
	// ClassKeywords maps a class id to the OCR keywords that validate it
	ClassKeywords map[int][]string
}

// DefaultConfig returns a Config populated with the parameters of the
// medicine detection model the scanner ships with
func DefaultConfig() Config {
	return Config{
		TensorSize:              640,
		ChannelCount:            3,
		ClassCount:              len(DefaultLabels()),
		OutputLayout:            "auto",
		ConfidenceThreshold:     0.5,
		IoUThreshold:            0.45,
		Letterbox:               true,
		MaxCandidates:           8400,
		MaxDetections:           10,
		HighConfidenceThreshold: 0.85,
		ConfidenceBoost:         0.05,
		DebounceInterval:        3 * time.Second,
		MinFrameInterval:        300 * time.Millisecond,
		OCRInterval:             time.Second,
		ClassLabels:             DefaultLabels(),
		ClassKeywords:           DefaultClassKeywords(),
	}
}

// LoadConfig returns the default configuration overridden by environment
// variables.  When envFile is not empty it is loaded first with godotenv,
// missing files are not an error so deployments can rely on real env vars.
func LoadConfig(envFile string) (Config, error) {

	if envFile != "" {
		// ignore a missing env file, env vars may be set directly
		_ = godotenv.Load(envFile)
	}

	cfg := DefaultConfig()

	cfg.TensorSize = envInt("MEDEYE_TENSOR_SIZE", cfg.TensorSize)
	cfg.ClassCount = envInt("MEDEYE_CLASS_COUNT", cfg.ClassCount)
	cfg.OutputLayout = strings.ToLower(envString("MEDEYE_OUTPUT_LAYOUT", cfg.OutputLayout))
	cfg.ConfidenceThreshold = envFloat("MEDEYE_CONF_THRESHOLD", cfg.ConfidenceThreshold)
	cfg.IoUThreshold = envFloat("MEDEYE_IOU_THRESHOLD", cfg.IoUThreshold)
	cfg.Letterbox = envBool("MEDEYE_LETTERBOX", cfg.Letterbox)
	cfg.MaxCandidates = envInt("MEDEYE_MAX_CANDIDATES", cfg.MaxCandidates)
	cfg.MaxDetections = envInt("MEDEYE_MAX_DETECTIONS", cfg.MaxDetections)
	cfg.HighConfidenceThreshold = envFloat("MEDEYE_HIGH_CONF_THRESHOLD", cfg.HighConfidenceThreshold)
	cfg.ConfidenceBoost = envFloat("MEDEYE_CONF_BOOST", cfg.ConfidenceBoost)
	cfg.DebounceInterval = envDuration("MEDEYE_DEBOUNCE_INTERVAL", cfg.DebounceInterval)
	cfg.MinFrameInterval = envDuration("MEDEYE_MIN_FRAME_INTERVAL", cfg.MinFrameInterval)
	cfg.OCRInterval = envDuration("MEDEYE_OCR_INTERVAL", cfg.OCRInterval)

	if labelFile := os.Getenv("MEDEYE_LABEL_FILE"); labelFile != "" {
		labels, err := LoadLabels(labelFile)

		if err != nil {
			return Config{}, fmt.Errorf("error loading label file: %w", err)
		}

		cfg.ClassLabels = labels
		cfg.ClassCount = len(labels)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks the configuration values are consistent
func (c Config) Validate() error {

	validate := validator.New()

	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if len(c.ClassLabels) != c.ClassCount {
		return fmt.Errorf("invalid configuration: %d class labels provided for %d classes",
			len(c.ClassLabels), c.ClassCount)
	}

	return nil
}

func envString(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func envInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float32) float32 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(val), 32); err == nil {
			return float32(f)
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(val)); err == nil {
			return b
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(val)); err == nil && d > 0 {
			return d
		}
	}
	return def
}
