// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/VA7DBI/scribeAPI/consultation"
	"github.com/VA7DBI/scribeAPI/pipeline"
	"github.com/VA7DBI/scribeAPI/quota"
	"github.com/gin-gonic/gin"
)

type UpdateFieldRequest struct {
	Value *string `json:"value" binding:"required"`
}

type CreatePatientRequest struct {
	FullName string `json:"full_name" binding:"required,max=200"`
}

type QuotaCheckRequest struct {
	DurationSeconds float64 `json:"duration_seconds" binding:"required,gt=0"`
}

type QuotaResponse struct {
	Enabled          bool      `json:"enabled"`
	Allowed          bool      `json:"allowed"`
	State            string    `json:"state,omitempty"`
	UserID           string    `json:"user_id,omitempty"`
	Plan             string    `json:"plan,omitempty"`
	MinutesUsed      int       `json:"minutes_used"`
	MonthlyMinutes   int       `json:"monthly_minutes"`
	RemainingMinutes int       `json:"remaining_minutes"`
	RequiredMinutes  int       `json:"required_minutes,omitempty"`
	PeriodStart      time.Time `json:"period_start"`
	PeriodEnd        time.Time `json:"period_end"`
}

func quotaResponse(u quota.Usage) QuotaResponse {
	return QuotaResponse{
		Enabled:          true,
		Allowed:          u.Remaining() > 0,
		UserID:           u.UserID,
		Plan:             u.Plan,
		MinutesUsed:      u.MinutesUsed,
		MonthlyMinutes:   u.MonthlyMinutes,
		RemainingMinutes: u.Remaining(),
		PeriodStart:      u.PeriodStart,
		PeriodEnd:        u.PeriodEnd,
	}
}

// recordError maps store errors onto responses.
func recordError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, consultation.ErrNotFound), errors.Is(err, consultation.ErrPatientNotFound):
		writeError(c, statusError(http.StatusNotFound, pipeline.KindInvalidInput, err), false)
	case errors.Is(err, consultation.ErrUnknownField):
		writeError(c, statusError(http.StatusBadRequest, pipeline.KindInvalidInput, err), false)
	default:
		writeError(c, err, false)
	}
}

func bindError(c *gin.Context, err error) {
	writeError(c, statusError(http.StatusBadRequest, pipeline.KindInvalidInput, err), false)
}

// requireRecords writes 503 when no database is configured.
func (s *TranscriptionService) requireRecords(c *gin.Context) bool {
	if s.records != nil {
		return true
	}
	writeError(c, statusError(http.StatusServiceUnavailable, pipeline.KindUpstreamConfig, errors.New("consultation storage is not configured")), false)
	return false
}

// @Summary Get a consultation
// @Tags    consultations
// @Produce json
// @Param   id path string true "Consultation id"
// @Success 200 {object} consultation.Record
// @Failure 404 {object} ErrorResponse
// @Router  /consultations/{id} [get]
func (s *TranscriptionService) GetConsultationHandler(c *gin.Context) {
	if !s.requireRecords(c) {
		return
	}
	clinician := s.clinicianID(c)
	if clinician == "" {
		return
	}
	rec, err := s.records.Get(c.Request.Context(), c.Param("id"), clinician)
	if err != nil {
		recordError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// @Summary Edit one report section
// @Tags    consultations
// @Accept  json
// @Produce json
// @Param   id    path string             true "Consultation id"
// @Param   field path string             true "Report field id"
// @Param   body  body UpdateFieldRequest true "New value"
// @Success 200 {object} consultation.Record
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router  /consultations/{id}/report/{field} [patch]
func (s *TranscriptionService) UpdateReportFieldHandler(c *gin.Context) {
	if !s.requireRecords(c) {
		return
	}
	clinician := s.clinicianID(c)
	if clinician == "" {
		return
	}

	field, err := consultation.LookupField(c.Param("field"))
	if err != nil {
		recordError(c, err)
		return
	}
	var req UpdateFieldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	ctx := c.Request.Context()
	if err := s.records.UpdateField(ctx, c.Param("id"), clinician, field.ID, *req.Value); err != nil {
		recordError(c, err)
		return
	}
	rec, err := s.records.Get(ctx, c.Param("id"), clinician)
	if err != nil {
		recordError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// @Summary Register a patient
// @Tags    patients
// @Accept  json
// @Produce json
// @Param   body body CreatePatientRequest true "Patient"
// @Success 201 {object} consultation.Patient
// @Router  /patients [post]
func (s *TranscriptionService) CreatePatientHandler(c *gin.Context) {
	if !s.requireRecords(c) {
		return
	}
	clinician := s.clinicianID(c)
	if clinician == "" {
		return
	}
	var req CreatePatientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	p, err := s.records.CreatePatient(c.Request.Context(), clinician, req.FullName)
	if err != nil {
		writeError(c, err, false)
		return
	}
	c.JSON(http.StatusCreated, p)
}

// @Summary List a patient's consultations
// @Tags    patients
// @Produce json
// @Param   id     path  string true  "Patient id"
// @Param   limit  query int    false "Page size (max 100)"
// @Param   offset query int    false "Offset"
// @Success 200 {array} consultation.Record
// @Router  /patients/{id}/consultations [get]
func (s *TranscriptionService) ListConsultationsHandler(c *gin.Context) {
	if !s.requireRecords(c) {
		return
	}
	clinician := s.clinicianID(c)
	if clinician == "" {
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))

	records, err := s.records.ListByPatient(c.Request.Context(), c.Param("id"), clinician, limit, offset)
	if err != nil {
		recordError(c, err)
		return
	}
	c.JSON(http.StatusOK, records)
}

// @Summary Check whether a recording fits the remaining allowance
// @Tags    quota
// @Accept  json
// @Produce json
// @Param   body body QuotaCheckRequest true "Recording length"
// @Success 200 {object} QuotaResponse
// @Router  /quota/check [post]
func (s *TranscriptionService) QuotaCheckHandler(c *gin.Context) {
	var req QuotaCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	if s.guard == nil {
		c.JSON(http.StatusOK, QuotaResponse{Enabled: false, Allowed: true, RequiredMinutes: quota.RequiredMinutes(req.DurationSeconds)})
		return
	}
	clinician := s.clinicianID(c)
	if clinician == "" {
		return
	}

	d, err := s.guard.Check(c.Request.Context(), clinician, req.DurationSeconds)
	if err != nil {
		writeError(c, err, false)
		return
	}
	resp := quotaResponse(d.Usage)
	resp.Allowed = d.Allowed()
	resp.State = d.State.String()
	resp.RequiredMinutes = d.RequiredMinutes
	c.JSON(http.StatusOK, resp)
}

// @Summary Current-period usage for a user
// @Tags    admin
// @Produce json
// @Param   user_id path string true "User id"
// @Success 200 {object} QuotaResponse
// @Failure 403 {object} ErrorResponse
// @Router  /admin/usage/{user_id} [get]
func (s *TranscriptionService) AdminUsageHandler(c *gin.Context) {
	if s.guard == nil {
		c.JSON(http.StatusOK, QuotaResponse{Enabled: false, Allowed: true, UserID: c.Param("user_id")})
		return
	}
	u, err := s.guard.Usage(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		writeError(c, err, false)
		return
	}
	c.JSON(http.StatusOK, quotaResponse(u))
}
