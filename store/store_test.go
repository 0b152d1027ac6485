package store

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func catalog() []Medicine {
	return []Medicine{
		{ID: 1, Brand: "Biogesic", GenericName: "paracetamol"},
		{ID: 2, Brand: "Bioflu", GenericName: "phenylephrine"},
		{ID: 3, Brand: "Neozep", GenericName: "phenylephrine"},
		{ID: 4, Brand: "Alaxan", GenericName: "ibuprofen"},
		{ID: 5, Brand: "Medicol", GenericName: "ibuprofen"},
		{ID: 6, Brand: "Decolgen", GenericName: "phenylpropanolamine"},
	}
}

func TestClosestBrand(t *testing.T) {

	tests := []struct {
		name   string
		text   string
		wantID int64
		wantOK bool
	}{
		{
			name:   "exact match",
			text:   "Biogesic",
			wantID: 1,
			wantOK: true,
		},
		{
			name:   "case insensitive",
			text:   "BIOGESIC",
			wantID: 1,
			wantOK: true,
		},
		{
			name: "single character misread",
			// OCR misreads the G as a C
			text:   "BIOCESIC",
			wantID: 1,
			wantOK: true,
		},
		{
			name: "vowel misread",
			// OCR misreads the final E as an A
			text:   "NEOZAP",
			wantID: 3,
			wantOK: true,
		},
		{
			name:   "whitespace trimmed",
			text:   "  alaxan  ",
			wantID: 4,
			wantOK: true,
		},
		{
			name:   "too far from any brand",
			text:   "PARACETAMOL",
			wantOK: false,
		},
		{
			name:   "empty text",
			text:   "",
			wantOK: false,
		},
	}

	cands := catalog()

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {

			got, ok := ClosestBrand(tc.text, cands)

			if ok != tc.wantOK {
				t.Fatalf("ClosestBrand(%q) ok = %v, want %v", tc.text, ok, tc.wantOK)
			}

			if ok && got.ID != tc.wantID {
				t.Errorf("ClosestBrand(%q) = %q (id %d), want id %d",
					tc.text, got.Brand, got.ID, tc.wantID)
			}
		})
	}
}

func TestNewScanRow(t *testing.T) {

	row := newScanRow(1, "BIOGESIC", "paracetamol", "12/2025", 0.92)

	if _, err := uuid.Parse(row.ID); err != nil {
		t.Errorf("expected a uuid row id, got %q: %v", row.ID, err)
	}

	if row.MedicineID != 1 || row.Brand != "BIOGESIC" ||
		row.Generic != "paracetamol" || row.Expiry != "12/2025" {
		t.Errorf("scan row fields not carried: %+v", row)
	}

	if row.Confidence != 0.92 {
		t.Errorf("expected confidence 0.92, got %f", row.Confidence)
	}

	if time.Since(row.ScannedAt) > time.Minute || row.ScannedAt.Location() != time.UTC {
		t.Errorf("expected a recent UTC timestamp, got %v", row.ScannedAt)
	}
}

func TestClosestBrandPrefersSmallestDistance(t *testing.T) {

	// BIOFLU is distance 3 from Biogesic but 0 from Bioflu
	got, ok := ClosestBrand("bioflu", catalog())

	if !ok {
		t.Fatalf("expected a match")
	}

	if got.ID != 2 {
		t.Errorf("expected Bioflu (id 2), got %q (id %d)", got.Brand, got.ID)
	}
}
