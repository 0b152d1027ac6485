package render

import (
	"image"
	"testing"

	"github.com/sunnyson6/MedEye/postprocess/result"
)

func TestDetectionLabel(t *testing.T) {

	tests := []struct {
		name string
		det  result.Detection
		want string
	}{
		{
			name: "class and score only",
			det: result.Detection{
				ClassName:   "biogesic",
				Probability: 0.72,
			},
			want: "biogesic 0.72",
		},
		{
			name: "ocr fields below threshold are hidden",
			det: result.Detection{
				ClassName:   "biogesic",
				Probability: 0.72,
				Brand:       "BIOGESIC",
				Expiry:      "12/2025",
			},
			want: "biogesic 0.72",
		},
		{
			name: "confirmed detection shows brand and expiry",
			det: result.Detection{
				ClassName:   "biogesic",
				Probability: 0.95,
				Brand:       "BIOGESIC",
				Expiry:      "12/2025",
			},
			want: "biogesic 0.95 BIOGESIC EXP 12/2025",
		},
		{
			name: "confirmed without expiry",
			det: result.Detection{
				ClassName:   "neozep",
				Probability: 0.90,
				Brand:       "NEOZEP",
			},
			want: "neozep 0.90 NEOZEP",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {

			got := DetectionLabel(tc.det, 0.85)

			if got != tc.want {
				t.Errorf("DetectionLabel = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestClassColorStable(t *testing.T) {

	if ClassColor(0) != ClassColor(0) {
		t.Errorf("class color must be stable per class")
	}

	if ClassColor(0) == ClassColor(1) {
		t.Errorf("adjacent classes must get distinct colors")
	}

	// wraps around the palette rather than panicking
	_ = ClassColor(1000)
	_ = ClassColor(-3)
}

func TestDrawBorder(t *testing.T) {

	img := image.NewRGBA(image.Rect(0, 0, 20, 20))

	drawBorder(img, image.Rect(5, 5, 15, 15), Yellow, 1)

	if img.RGBAAt(5, 5) != Yellow {
		t.Errorf("corner pixel not painted")
	}

	if img.RGBAAt(10, 5) != Yellow {
		t.Errorf("top edge not painted")
	}

	if img.RGBAAt(10, 14) != Yellow {
		t.Errorf("bottom edge not painted")
	}

	if img.RGBAAt(10, 10) == Yellow {
		t.Errorf("interior must stay unpainted")
	}

	// fully outside the image is a no-op
	drawBorder(img, image.Rect(100, 100, 120, 120), Yellow, 1)
}
