// Package store persists the medicine catalog and scan history in
// PostgreSQL and resolves OCR brand text against the catalog.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/arbovm/levenshtein"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/sunnyson6/MedEye/logger"
)

// ErrNotFound is returned when a lookup matches no medicine
var ErrNotFound = errors.New("medicine not found")

// maxBrandDistance is the largest Levenshtein distance still accepted as a
// fuzzy brand match, OCR commonly misreads one or two characters
const maxBrandDistance = 2

// Medicine is a catalog row
type Medicine struct {
	ID          int64  `db:"id"`
	Brand       string `db:"brand"`
	GenericName string `db:"generic_name"`
	Dosage      string `db:"dosage"`
	Description string `db:"description"`
}

// Scan is a recorded detection event
type Scan struct {
	ID         string    `db:"id"`
	MedicineID int64     `db:"medicine_id"`
	Brand      string    `db:"brand"`
	Generic    string    `db:"generic_name"`
	Expiry     string    `db:"expiry"`
	Confidence float32   `db:"confidence"`
	ScannedAt  time.Time `db:"scanned_at"`
}

// newScanRow builds the row RecordScan inserts, stamping a fresh uuid and
// the current UTC time
func newScanRow(medicineID int64, brand, generic, expiry string,
	confidence float32) Scan {

	return Scan{
		ID:         uuid.New().String(),
		MedicineID: medicineID,
		Brand:      brand,
		Generic:    generic,
		Expiry:     expiry,
		Confidence: confidence,
		ScannedAt:  time.Now().UTC(),
	}
}

// MedicineStore is a PostgreSQL backed catalog and scan log
type MedicineStore struct {
	db *sqlx.DB
}

// Open connects to the database and verifies the connection
func Open(dsn string) (*MedicineStore, error) {

	db, err := sqlx.Connect("postgres", dsn)

	if err != nil {
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}

	logger.WithComponent("store").Info("database connected")

	return &MedicineStore{db: db}, nil
}

// NewMedicineStore wraps an existing connection, used in tests
func NewMedicineStore(db *sqlx.DB) *MedicineStore {
	return &MedicineStore{db: db}
}

// Close releases the database connection
func (s *MedicineStore) Close() error {
	return s.db.Close()
}

// GetByID returns the catalog entry for a medicine
func (s *MedicineStore) GetByID(ctx context.Context, id int64) (Medicine, error) {

	var m Medicine

	err := s.db.GetContext(ctx, &m,
		`SELECT id, brand, generic_name, dosage, description
		 FROM medicines WHERE id = $1`, id)

	if errors.Is(err, sql.ErrNoRows) {
		return Medicine{}, ErrNotFound
	}

	if err != nil {
		return Medicine{}, fmt.Errorf("error querying medicine %d: %w", id, err)
	}

	return m, nil
}

// GetByBrand returns the catalog entry with an exact brand match, case
// insensitive
func (s *MedicineStore) GetByBrand(ctx context.Context, brand string) (Medicine, error) {

	var m Medicine

	err := s.db.GetContext(ctx, &m,
		`SELECT id, brand, generic_name, dosage, description
		 FROM medicines WHERE LOWER(brand) = LOWER($1)`, brand)

	if errors.Is(err, sql.ErrNoRows) {
		return Medicine{}, ErrNotFound
	}

	if err != nil {
		return Medicine{}, fmt.Errorf("error querying brand %q: %w", brand, err)
	}

	return m, nil
}

// MatchBrand resolves OCR brand text against the catalog.  An exact match
// is preferred, otherwise the closest entry within the allowed edit
// distance wins.
func (s *MedicineStore) MatchBrand(ctx context.Context, text string) (Medicine, error) {

	if m, err := s.GetByBrand(ctx, text); err == nil {
		return m, nil
	} else if !errors.Is(err, ErrNotFound) {
		return Medicine{}, err
	}

	var all []Medicine

	err := s.db.SelectContext(ctx, &all,
		`SELECT id, brand, generic_name, dosage, description FROM medicines`)

	if err != nil {
		return Medicine{}, fmt.Errorf("error listing medicines: %w", err)
	}

	best, ok := ClosestBrand(text, all)

	if !ok {
		return Medicine{}, ErrNotFound
	}

	return best, nil
}

// ClosestBrand returns the catalog entry whose brand has the smallest edit
// distance to the OCR text, rejecting everything beyond the allowed
// distance.  Exposed for testing without a database.
func ClosestBrand(text string, candidates []Medicine) (Medicine, bool) {

	needle := strings.ToLower(strings.TrimSpace(text))

	if needle == "" {
		return Medicine{}, false
	}

	var (
		best     Medicine
		bestDist = maxBrandDistance + 1
	)

	for _, m := range candidates {
		d := levenshtein.Distance(needle, strings.ToLower(m.Brand))

		if d < bestDist {
			best = m
			bestDist = d
		}
	}

	return best, bestDist <= maxBrandDistance
}

// RecordScan logs a confirmed detection event and returns its row id
func (s *MedicineStore) RecordScan(ctx context.Context, medicineID int64,
	brand, generic, expiry string, confidence float32) (string, error) {

	row := newScanRow(medicineID, brand, generic, expiry, confidence)

	_, err := s.db.NamedExecContext(ctx,
		`INSERT INTO scans (id, medicine_id, brand, generic_name, expiry, confidence, scanned_at)
		 VALUES (:id, :medicine_id, :brand, :generic_name, :expiry, :confidence, :scanned_at)`,
		row)

	if err != nil {
		return "", fmt.Errorf("error recording scan: %w", err)
	}

	return row.ID, nil
}

// RecentScans returns the latest scan events, newest first
func (s *MedicineStore) RecentScans(ctx context.Context, limit int) ([]Scan, error) {

	var scans []Scan

	err := s.db.SelectContext(ctx, &scans,
		`SELECT id, medicine_id, brand, generic_name, expiry, confidence, scanned_at
		 FROM scans ORDER BY scanned_at DESC LIMIT $1`, limit)

	if err != nil {
		return nil, fmt.Errorf("error listing scans: %w", err)
	}

	return scans, nil
}
