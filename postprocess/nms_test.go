package postprocess

import (
	"reflect"
	"testing"

	"github.com/sunnyson6/MedEye/postprocess/result"
)

func newTestSuppressor() *Suppressor {
	return NewSuppressor(SuppressorParams{
		IoUThreshold:  0.45,
		ConfThreshold: 0.5,
		MaxKept:       10,
	})
}

func det(class int, prob float32, box result.BoxRect) result.Detection {
	return result.Detection{
		Box:         box,
		Probability: prob,
		Class:       class,
	}
}

func TestSuppressSingleton(t *testing.T) {

	s := newTestSuppressor()
	in := []result.Detection{
		det(0, 0.9, result.BoxRect{Left: 10, Top: 10, Right: 50, Bottom: 50}),
	}

	out := s.Suppress(in)

	if len(out) != 1 || out[0] != in[0] {
		t.Errorf("singleton list must pass through unchanged, got %+v", out)
	}
}

func TestSuppressIdenticalSameClassCollapse(t *testing.T) {

	s := newTestSuppressor()
	box := result.BoxRect{Left: 10, Top: 10, Right: 100, Bottom: 100}

	out := s.Suppress([]result.Detection{
		det(1, 0.9, box),
		det(1, 0.8, box),
	})

	if len(out) != 1 {
		t.Fatalf("two identical same-class boxes must collapse to one, got %d", len(out))
	}

	if out[0].Probability != 0.9 {
		t.Errorf("the higher-confidence box must survive, got %f", out[0].Probability)
	}
}

func TestSuppressClassIsolation(t *testing.T) {

	s := newTestSuppressor()
	box := result.BoxRect{Left: 10, Top: 10, Right: 100, Bottom: 100}

	out := s.Suppress([]result.Detection{
		det(0, 0.9, box),
		det(1, 0.8, box),
	})

	if len(out) != 2 {
		t.Errorf("fully overlapping boxes of different classes must both survive, got %d", len(out))
	}
}

func TestSuppressBelowThresholdDropped(t *testing.T) {

	s := newTestSuppressor()

	out := s.Suppress([]result.Detection{
		det(0, 0.9, result.BoxRect{Left: 0, Top: 0, Right: 50, Bottom: 50}),
		det(0, 0.4, result.BoxRect{Left: 200, Top: 200, Right: 250, Bottom: 250}),
	})

	if len(out) != 1 {
		t.Errorf("below-threshold detection must be dropped, got %d kept", len(out))
	}
}

func TestSuppressTruncatesToMaxKept(t *testing.T) {

	s := NewSuppressor(SuppressorParams{
		IoUThreshold:  0.45,
		ConfThreshold: 0.5,
		MaxKept:       2,
	})

	var in []result.Detection

	for i := 0; i < 5; i++ {
		// disjoint boxes so none suppress each other
		in = append(in, det(0, 0.9-float32(i)*0.05, result.BoxRect{
			Left: i * 100, Top: 0, Right: i*100 + 50, Bottom: 50,
		}))
	}

	out := s.Suppress(in)

	if len(out) != 2 {
		t.Fatalf("expected truncation to 2 detections, got %d", len(out))
	}

	if out[0].Probability < out[1].Probability {
		t.Errorf("kept detections must stay in confidence order")
	}
}

func TestSuppressIdempotent(t *testing.T) {

	s := newTestSuppressor()

	in := []result.Detection{
		det(0, 0.95, result.BoxRect{Left: 10, Top: 10, Right: 110, Bottom: 110}),
		det(0, 0.90, result.BoxRect{Left: 20, Top: 20, Right: 120, Bottom: 120}),
		det(1, 0.85, result.BoxRect{Left: 15, Top: 15, Right: 115, Bottom: 115}),
		det(0, 0.80, result.BoxRect{Left: 300, Top: 300, Right: 400, Bottom: 400}),
		det(1, 0.70, result.BoxRect{Left: 320, Top: 320, Right: 420, Bottom: 420}),
	}

	once := s.Suppress(in)
	twice := s.Suppress(once)

	if !reflect.DeepEqual(once, twice) {
		t.Errorf("suppression must be idempotent:\nonce:  %+v\ntwice: %+v", once, twice)
	}
}

func TestIoU(t *testing.T) {

	tests := []struct {
		name     string
		a        result.BoxRect
		b        result.BoxRect
		expected float32
	}{
		{
			name:     "identical",
			a:        result.BoxRect{Left: 0, Top: 0, Right: 100, Bottom: 100},
			b:        result.BoxRect{Left: 0, Top: 0, Right: 100, Bottom: 100},
			expected: 1.0,
		},
		{
			name:     "disjoint",
			a:        result.BoxRect{Left: 0, Top: 0, Right: 50, Bottom: 50},
			b:        result.BoxRect{Left: 100, Top: 100, Right: 150, Bottom: 150},
			expected: 0.0,
		},
		{
			name: "half overlap",
			a:    result.BoxRect{Left: 0, Top: 0, Right: 100, Bottom: 100},
			b:    result.BoxRect{Left: 50, Top: 0, Right: 150, Bottom: 100},
			// intersection 5000, union 15000
			expected: 1.0 / 3.0,
		},
		{
			name:     "touching edges",
			a:        result.BoxRect{Left: 0, Top: 0, Right: 50, Bottom: 50},
			b:        result.BoxRect{Left: 50, Top: 0, Right: 100, Bottom: 50},
			expected: 0.0,
		},
	}

	for _, tc := range tests {
		got := IoU(tc.a, tc.b)

		if got != tc.expected {
			t.Errorf("%s: expected IoU %f, got %f", tc.name, tc.expected, got)
		}
	}
}
