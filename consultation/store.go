// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

// Package consultation stores transcribed consultations and their
// structured reports. Records are scoped to the clinician who owns the
// patient and are only removed by the patient cascade.
package consultation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound        = errors.New("consultation not found")
	ErrPatientNotFound = errors.New("patient not found")
	ErrInvalidDuration = errors.New("duration_seconds must be positive")
	ErrConsentRequired = errors.New("patient consent is required")
	ErrInvalidVisit    = errors.New("visit_type must be first_visit or follow_up")
)

const (
	VisitFirst    = "first_visit"
	VisitFollowUp = "follow_up"
)

type Record struct {
	ID              string    `json:"id"`
	PatientID       string    `json:"patient_id"`
	ClinicianID     string    `json:"clinician_id"`
	Transcript      string    `json:"transcript"`
	Report          Report    `json:"report"`
	DurationSeconds int       `json:"duration_seconds"`
	Consent         bool      `json:"consent"`
	VisitType       string    `json:"visit_type"`
	AudioURL        string    `json:"audio_url,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Validate checks a record before insert. A positive duration is required
// for the usage trigger to count the minutes.
func (r *Record) Validate() error {
	if r.PatientID == "" {
		return ErrPatientNotFound
	}
	if r.DurationSeconds <= 0 {
		return ErrInvalidDuration
	}
	if !r.Consent {
		return ErrConsentRequired
	}
	if r.VisitType == "" {
		r.VisitType = VisitFirst
	}
	if r.VisitType != VisitFirst && r.VisitType != VisitFollowUp {
		return ErrInvalidVisit
	}
	return nil
}

type Patient struct {
	ID          string    `json:"id"`
	ClinicianID string    `json:"clinician_id"`
	FullName    string    `json:"full_name"`
	CreatedAt   time.Time `json:"created_at"`
}

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func reportColumns() string {
	cols := make([]string, len(Fields))
	for i, f := range Fields {
		cols[i] = f.Column
	}
	return strings.Join(cols, ", ")
}

var (
	insertQuery = func() string {
		n := len(Fields)
		params := make([]string, n)
		for i := range params {
			params[i] = fmt.Sprintf("$%d", i+5)
		}
		return fmt.Sprintf(`INSERT INTO consultations
	(id, patient_id, clinician_id, transcript, %s, duration_seconds, consent, visit_type, audio_url)
SELECT $1, p.id, $3, $4, %s, $%d, $%d, $%d, NULLIF($%d, '')
FROM patients p
WHERE p.id = $2 AND p.clinician_id = $3
RETURNING created_at, updated_at`,
			reportColumns(), strings.Join(params, ", "), n+5, n+6, n+7, n+8)
	}()

	selectColumns = fmt.Sprintf(
		"id, patient_id, clinician_id, transcript, %s, duration_seconds, consent, visit_type, audio_url, created_at, updated_at",
		reportColumns())
)

// CreatePatient registers a patient for a clinician.
func (s *Store) CreatePatient(ctx context.Context, clinicianID, fullName string) (*Patient, error) {
	p := &Patient{ID: uuid.NewString(), ClinicianID: clinicianID, FullName: strings.TrimSpace(fullName)}
	if p.FullName == "" {
		return nil, errors.New("full_name is required")
	}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO patients (id, clinician_id, full_name) VALUES ($1, $2, $3) RETURNING created_at`,
		p.ID, p.ClinicianID, p.FullName).Scan(&p.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create patient: %w", err)
	}
	return p, nil
}

// Create inserts rec when its patient belongs to rec.ClinicianID.
func (s *Store) Create(ctx context.Context, rec *Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	args := []any{rec.ID, rec.PatientID, rec.ClinicianID, rec.Transcript}
	for _, v := range rec.Report.values() {
		args = append(args, v)
	}
	args = append(args, rec.DurationSeconds, rec.Consent, rec.VisitType, rec.AudioURL)

	err := s.db.QueryRowContext(ctx, insertQuery, args...).Scan(&rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrPatientNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to insert consultation: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*Record, error) {
	var (
		rec      Record
		duration sql.NullInt64
		audioURL sql.NullString
	)
	dest := []any{&rec.ID, &rec.PatientID, &rec.ClinicianID, &rec.Transcript}
	dest = append(dest, rec.Report.scanTargets()...)
	dest = append(dest, &duration, &rec.Consent, &rec.VisitType, &audioURL, &rec.CreatedAt, &rec.UpdatedAt)

	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	rec.DurationSeconds = int(duration.Int64)
	rec.AudioURL = audioURL.String
	return &rec, nil
}

// Get returns a consultation owned by clinicianID.
func (s *Store) Get(ctx context.Context, id, clinicianID string) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+selectColumns+" FROM consultations WHERE id = $1 AND clinician_id = $2",
		id, clinicianID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load consultation: %w", err)
	}
	return rec, nil
}

// ListByPatient returns a patient's consultations, newest first.
func (s *Store) ListByPatient(ctx context.Context, patientID, clinicianID string, limit, offset int) ([]Record, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+selectColumns+` FROM consultations
WHERE patient_id = $1 AND clinician_id = $2
ORDER BY created_at DESC
LIMIT $3 OFFSET $4`,
		patientID, clinicianID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list consultations: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan consultation: %w", err)
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// UpdateField edits one report section. The column comes from Fields.
func (s *Store) UpdateField(ctx context.Context, id, clinicianID string, field FieldID, value string) error {
	f, err := LookupField(string(field))
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf("UPDATE consultations SET %s = $1, updated_at = NOW() WHERE id = $2 AND clinician_id = $3", f.Column),
		value, id, clinicianID)
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", f.Column, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", f.Column, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
