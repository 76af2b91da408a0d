// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"context"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/VA7DBI/scribeAPI/config"
	"github.com/VA7DBI/scribeAPI/consultation"
	"github.com/VA7DBI/scribeAPI/logging"
	"github.com/VA7DBI/scribeAPI/middleware"
	"github.com/VA7DBI/scribeAPI/pipeline"
	"github.com/VA7DBI/scribeAPI/quota"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Room for multipart headers and plain fields on top of the file limit.
const formOverheadBytes = 1 << 20

// ReportAnalyzer is satisfied by *analysis.Analyzer.
type ReportAnalyzer interface {
	Analyze(ctx context.Context, transcript, visitType string) (*consultation.Report, error)
}

// RecordStore is satisfied by *consultation.Store.
type RecordStore interface {
	CreatePatient(ctx context.Context, clinicianID, fullName string) (*consultation.Patient, error)
	Create(ctx context.Context, rec *consultation.Record) error
	Get(ctx context.Context, id, clinicianID string) (*consultation.Record, error)
	ListByPatient(ctx context.Context, patientID, clinicianID string, limit, offset int) ([]consultation.Record, error)
	UpdateField(ctx context.Context, id, clinicianID string, field consultation.FieldID, value string) error
}

type TranscriptionService struct {
	config   *config.Config
	pipeline *pipeline.Pipeline
	guard    *quota.Guard
	analyzer ReportAnalyzer
	records  RecordStore
}

// TranscriptionResponse carries the transcript under both keys older
// clients read.
type TranscriptionResponse struct {
	Text            string  `json:"text"`
	Result          string  `json:"result"`
	SessionID       string  `json:"session_id"`
	RequestID       string  `json:"request_id"`
	Tag             string  `json:"tag"`
	Format          string  `json:"format"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
}

type ConsultationResponse struct {
	Consultation  *consultation.Record `json:"consultation"`
	RequestID     string               `json:"request_id"`
	Tag           string               `json:"tag"`
	AnalysisError string               `json:"analysis_error,omitempty"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error     string `json:"error"`
	Kind      string `json:"kind,omitempty"`
	RequestID string `json:"request_id"`
	Detail    string `json:"detail,omitempty"`
}

// NewTranscriptionService wires the handlers. guard, analyzer and records
// may be nil; the matching features are then skipped or report 503.
func NewTranscriptionService(cfg *config.Config, transcriber pipeline.Transcriber, guard *quota.Guard, analyzer ReportAnalyzer, records RecordStore) *TranscriptionService {
	var admitter pipeline.Admitter
	if guard != nil {
		admitter = guard
	}
	return &TranscriptionService{
		config:   cfg,
		pipeline: pipeline.New(cfg, transcriber, admitter),
		guard:    guard,
		analyzer: analyzer,
		records:  records,
	}
}

func (s *TranscriptionService) readInput(c *gin.Context) (pipeline.Input, error) {
	b64 := strings.EqualFold(c.GetHeader("Content-Transfer-Encoding"), "base64") ||
		c.Query("base64") == "true"

	limit := s.config.MaxUploadBytes()
	if b64 {
		limit = limit/3*4 + 4
	}
	limit += formOverheadBytes

	in := pipeline.Input{
		ContentType:   c.GetHeader("Content-Type"),
		Base64:        b64,
		CorrelationID: c.GetString(logging.RequestIDKey),
	}
	if id := middleware.IdentityFrom(c); id != nil {
		in.UserID = id.UserID
	}
	if c.Request.Body == nil {
		return in, nil
	}

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, limit))
	if err != nil {
		return in, err
	}
	in.Body = body
	return in, nil
}

func wantsText(c *gin.Context) bool {
	return c.Query("format") == "text" || strings.HasPrefix(c.GetHeader("Accept"), "text/plain")
}

// writeError is the one place failures become responses.
func writeError(c *gin.Context, err error, text bool) {
	perr := pipeline.Classify(err)
	if perr.Internal() {
		_ = c.Error(perr)
	}
	if text {
		c.String(perr.Status, perr.Message)
		return
	}
	resp := ErrorResponse{
		Error:     perr.Message,
		Kind:      string(perr.Kind),
		RequestID: c.GetString(logging.RequestIDKey),
	}
	if perr.Kind == pipeline.KindUpstreamAPI {
		resp.Detail = perr.Detail
	}
	c.JSON(perr.Status, resp)
}

func statusError(status int, kind pipeline.Kind, err error) *pipeline.Error {
	return &pipeline.Error{Kind: kind, Status: status, Message: err.Error(), Err: err}
}

func (s *TranscriptionService) commit(c *gin.Context, d *quota.Decision) {
	if s.guard == nil || d == nil || !d.Allowed() {
		return
	}
	if err := s.guard.Commit(c.Request.Context(), d); err != nil {
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Msg("Failed to commit quota usage")
	}
}

// @Summary     Transcribe audio to text
// @Description Transcribe one uploaded audio file through the speech API
// @Tags        transcription
// @Accept      multipart/form-data
// @Produce     json,plain
// @Param       file formData file true "Audio file (mp3, wav, m4a, webm)"
// @Success     200 {object} TranscriptionResponse
// @Failure     400 {object} ErrorResponse
// @Failure     403 {object} ErrorResponse
// @Failure     413 {object} ErrorResponse
// @Failure     500 {object} ErrorResponse
// @Failure     502 {object} ErrorResponse
// @Router      /transcribe [post]
func (s *TranscriptionService) TranscribeHandler(c *gin.Context) {
	text := wantsText(c)

	in, err := s.readInput(c)
	if err != nil {
		writeError(c, err, text)
		return
	}

	res, err := s.pipeline.Run(c.Request.Context(), in)
	if err != nil {
		writeError(c, err, text)
		return
	}
	s.commit(c, res.Decision)

	if text {
		c.Header("X-Session-Id", res.SessionID)
		c.String(http.StatusOK, res.Text)
		return
	}
	c.JSON(http.StatusOK, TranscriptionResponse{
		Text:            res.Text,
		Result:          res.Text,
		SessionID:       res.SessionID,
		RequestID:       res.CorrelationID,
		Tag:             res.Tag,
		Format:          res.Format.Extension,
		DurationSeconds: res.DurationSeconds,
	})
}

func parseConsent(v string) bool {
	ok, err := strconv.ParseBool(strings.TrimSpace(v))
	if err == nil {
		return ok
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "on", "yes", "si", "sì":
		return true
	}
	return false
}

// consultationDraft validates the form fields before any upstream work.
func consultationDraft(clinicianID string, res *pipeline.Result) (*consultation.Record, error) {
	rec := &consultation.Record{
		ID:              uuid.NewString(),
		PatientID:       strings.TrimSpace(res.Fields["patient_id"]),
		ClinicianID:     clinicianID,
		DurationSeconds: int(math.Ceil(res.DurationSeconds)),
		Consent:         parseConsent(res.Fields["consent"]),
		VisitType:       strings.TrimSpace(res.Fields["visit_type"]),
		AudioURL:        strings.TrimSpace(res.Fields["audio_url"]),
	}
	if rec.PatientID == "" {
		return nil, errors.New("patient_id is required")
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return rec, nil
}

// @Summary     Create a consultation
// @Description Transcribe, analyze and store a consultation recording
// @Tags        consultations
// @Accept      multipart/form-data
// @Produce     json
// @Param       file       formData file   true  "Consultation recording"
// @Param       patient_id formData string true  "Patient id"
// @Param       consent    formData bool   true  "Patient consent"
// @Param       visit_type formData string false "first_visit or follow_up"
// @Success     201 {object} ConsultationResponse
// @Failure     400 {object} ErrorResponse
// @Failure     404 {object} ErrorResponse
// @Router      /consultations [post]
func (s *TranscriptionService) CreateConsultationHandler(c *gin.Context) {
	if s.records == nil {
		writeError(c, statusError(http.StatusServiceUnavailable, pipeline.KindUpstreamConfig, errors.New("consultation storage is not configured")), false)
		return
	}
	clinician := s.clinicianID(c)
	if clinician == "" {
		return
	}

	in, err := s.readInput(c)
	if err != nil {
		writeError(c, err, false)
		return
	}
	var rec *consultation.Record
	in.Precheck = func(res *pipeline.Result) (derr error) {
		rec, derr = consultationDraft(clinician, res)
		return derr
	}

	ctx := c.Request.Context()
	res, err := s.pipeline.Run(ctx, in)
	if err != nil {
		writeError(c, err, false)
		return
	}
	rec.Transcript = res.Text

	resp := ConsultationResponse{Consultation: rec, RequestID: res.CorrelationID, Tag: res.Tag}
	if s.analyzer != nil && s.config.Analysis.Enabled {
		report, err := s.analyzer.Analyze(ctx, res.Text, rec.VisitType)
		if err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Str("tag", res.Tag).Msg("Report analysis failed, storing transcript only")
			resp.AnalysisError = "report analysis failed; the transcript was saved and the report can be edited manually"
		} else {
			rec.Report = *report
		}
	}

	if err := s.records.Create(ctx, rec); err != nil {
		switch {
		case errors.Is(err, consultation.ErrPatientNotFound):
			writeError(c, statusError(http.StatusNotFound, pipeline.KindInvalidInput, err), false)
		default:
			writeError(c, err, false)
		}
		return
	}
	s.commit(c, res.Decision)

	c.JSON(http.StatusCreated, resp)
}

// clinicianID returns the caller's user id, or writes 401 and returns "".
func (s *TranscriptionService) clinicianID(c *gin.Context) string {
	id := middleware.IdentityFrom(c)
	if id == nil || id.UserID == "" {
		writeError(c, statusError(http.StatusUnauthorized, pipeline.KindInvalidInput, errors.New("a user account is required")), false)
		return ""
	}
	return id.UserID
}
