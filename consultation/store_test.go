// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

package consultation

import (
	"context"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStoreTest(t *testing.T) (*Store, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewStore(db), mock
}

func sampleReport() Report {
	var r Report
	for _, f := range Fields {
		_ = r.Set(f.ID, "notes on "+string(f.ID))
	}
	return r
}

func recordColumns() []string {
	cols := []string{"id", "patient_id", "clinician_id", "transcript"}
	for _, f := range Fields {
		cols = append(cols, f.Column)
	}
	return append(cols, "duration_seconds", "consent", "visit_type", "audio_url", "created_at", "updated_at")
}

func recordRow(id string, duration any, created time.Time) []driver.Value {
	row := []driver.Value{id, "p1", "c1", "trascrizione"}
	for _, f := range Fields {
		row = append(row, "notes on "+string(f.ID))
	}
	return append(row, duration, true, VisitFirst, nil, created, created)
}

func TestFieldTable(t *testing.T) {
	assert.Len(t, Fields, 9)

	seen := map[string]bool{}
	for _, f := range Fields {
		assert.NotEmpty(t, f.Label)
		assert.False(t, seen[f.Column], "duplicate column %s", f.Column)
		seen[f.Column] = true

		got, err := LookupField(string(f.ID))
		require.NoError(t, err)
		assert.Equal(t, f, got)
	}

	_, err := LookupField("Motivo della visita")
	assert.ErrorIs(t, err, ErrUnknownField, "labels are not accepted as ids")
	_, err = LookupField("reason_for_visit; DROP TABLE consultations")
	assert.ErrorIs(t, err, ErrUnknownField)
}

func TestReportGetSet(t *testing.T) {
	var r Report
	require.NoError(t, r.Set(NutritionalPlan, "1800 kcal"))
	assert.Equal(t, "1800 kcal", r.NutritionalPlan)

	v, err := r.Get(NutritionalPlan)
	require.NoError(t, err)
	assert.Equal(t, "1800 kcal", v)

	assert.ErrorIs(t, r.Set("nope", "x"), ErrUnknownField)
	_, err = r.Get("nope")
	assert.ErrorIs(t, err, ErrUnknownField)
}

func TestRecordValidate(t *testing.T) {
	valid := Record{PatientID: "p1", ClinicianID: "c1", DurationSeconds: 90, Consent: true}
	require.NoError(t, valid.Validate())
	assert.Equal(t, VisitFirst, valid.VisitType)

	for name, mutate := range map[string]func(*Record){
		"ZeroDuration":     func(r *Record) { r.DurationSeconds = 0 },
		"NegativeDuration": func(r *Record) { r.DurationSeconds = -1 },
		"NoConsent":        func(r *Record) { r.Consent = false },
		"BadVisit":         func(r *Record) { r.VisitType = "emergency" },
		"NoPatient":        func(r *Record) { r.PatientID = "" },
	} {
		t.Run(name, func(t *testing.T) {
			r := valid
			mutate(&r)
			assert.Error(t, r.Validate())
		})
	}
}

func TestStoreCreate(t *testing.T) {
	store, mock := setupStoreTest(t)
	ctx := context.Background()
	now := time.Date(2026, 10, 14, 9, 30, 0, 0, time.UTC)

	args := []driver.Value{sqlmock.AnyArg(), "p1", "c1", "trascrizione"}
	for _, f := range Fields {
		args = append(args, "notes on "+string(f.ID))
	}
	args = append(args, 360, true, VisitFollowUp, "")

	t.Run("OwnedPatient", func(t *testing.T) {
		mock.ExpectQuery(`INSERT INTO consultations`).
			WithArgs(args...).
			WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

		rec := &Record{PatientID: "p1", ClinicianID: "c1", Transcript: "trascrizione", Report: sampleReport(),
			DurationSeconds: 360, Consent: true, VisitType: VisitFollowUp}
		require.NoError(t, store.Create(ctx, rec))
		assert.NotEmpty(t, rec.ID)
		assert.Equal(t, now, rec.CreatedAt)
	})

	t.Run("ForeignPatient", func(t *testing.T) {
		mock.ExpectQuery(`INSERT INTO consultations`).
			WithArgs(args...).
			WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}))

		rec := &Record{PatientID: "p1", ClinicianID: "c1", Transcript: "trascrizione", Report: sampleReport(),
			DurationSeconds: 360, Consent: true, VisitType: VisitFollowUp}
		assert.ErrorIs(t, store.Create(ctx, rec), ErrPatientNotFound)
	})

	t.Run("ZeroDurationNeverReachesDatabase", func(t *testing.T) {
		rec := &Record{PatientID: "p1", ClinicianID: "c1", Consent: true}
		assert.ErrorIs(t, store.Create(ctx, rec), ErrInvalidDuration)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreGet(t *testing.T) {
	store, mock := setupStoreTest(t)
	ctx := context.Background()
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT id, patient_id, clinician_id, transcript, reason_for_visit`).
		WithArgs("r1", "c1").
		WillReturnRows(sqlmock.NewRows(recordColumns()).AddRow(recordRow("r1", int64(360), now)...))

	rec, err := store.Get(ctx, "r1", "c1")
	require.NoError(t, err)
	assert.Equal(t, "r1", rec.ID)
	assert.Equal(t, 360, rec.DurationSeconds)
	assert.Equal(t, "notes on follow_up", rec.Report.FollowUp)
	assert.Empty(t, rec.AudioURL)

	mock.ExpectQuery(`SELECT id, patient_id`).
		WithArgs("r1", "intruder").
		WillReturnRows(sqlmock.NewRows(recordColumns()))
	_, err = store.Get(ctx, "r1", "intruder")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreListByPatient(t *testing.T) {
	store, mock := setupStoreTest(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`FROM consultations\s+WHERE patient_id = \$1 AND clinician_id = \$2`).
		WithArgs("p1", "c1", 20, 0).
		WillReturnRows(sqlmock.NewRows(recordColumns()).
			AddRow(recordRow("r2", int64(120), now)...).
			AddRow(recordRow("r1", nil, now.Add(-time.Hour))...))

	records, err := store.ListByPatient(context.Background(), "p1", "c1", 0, -3)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "r2", records[0].ID)
	assert.Zero(t, records[1].DurationSeconds, "null duration scans as zero")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreUpdateField(t *testing.T) {
	store, mock := setupStoreTest(t)
	ctx := context.Background()

	mock.ExpectExec(`UPDATE consultations SET nutritional_plan = \$1`).
		WithArgs("1800 kcal", "r1", "c1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, store.UpdateField(ctx, "r1", "c1", NutritionalPlan, "1800 kcal"))

	mock.ExpectExec(`UPDATE consultations SET follow_up`).
		WithArgs("in 4 weeks", "r1", "other").
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, store.UpdateField(ctx, "r1", "other", FollowUp, "in 4 weeks"), ErrNotFound)

	assert.ErrorIs(t, store.UpdateField(ctx, "r1", "c1", "transcript", "x"), ErrUnknownField)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreCreatePatient(t *testing.T) {
	store, mock := setupStoreTest(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`INSERT INTO patients`).
		WithArgs(sqlmock.AnyArg(), "c1", "Maria Rossi").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(now))

	p, err := store.CreatePatient(context.Background(), "c1", "  Maria Rossi ")
	require.NoError(t, err)
	assert.Equal(t, "Maria Rossi", p.FullName)
	assert.NotEmpty(t, p.ID)

	_, err = store.CreatePatient(context.Background(), "c1", " ")
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
