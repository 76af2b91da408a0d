// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

package consultation

import (
	"errors"
	"fmt"
)

var ErrUnknownField = errors.New("unknown report field")

// FieldID identifies one section of the structured report.
type FieldID string

const (
	ReasonForVisit     FieldID = "reason_for_visit"
	ClinicalHistory    FieldID = "clinical_history"
	DietaryHabits      FieldID = "dietary_habits"
	Lifestyle          FieldID = "lifestyle"
	AnthropometricData FieldID = "anthropometric_data"
	ClinicalAssessment FieldID = "clinical_assessment"
	NutritionalPlan    FieldID = "nutritional_plan"
	Recommendations    FieldID = "recommendations"
	FollowUp           FieldID = "follow_up"
)

// Field maps a report section to its column and display label.
type Field struct {
	ID     FieldID
	Column string
	Label  string
}

// Fields lists every report section in display order. Columns are only ever
// taken from this table.
var Fields = []Field{
	{ReasonForVisit, "reason_for_visit", "Motivo della visita"},
	{ClinicalHistory, "clinical_history", "Anamnesi clinica"},
	{DietaryHabits, "dietary_habits", "Abitudini alimentari"},
	{Lifestyle, "lifestyle", "Stile di vita"},
	{AnthropometricData, "anthropometric_data", "Dati antropometrici"},
	{ClinicalAssessment, "clinical_assessment", "Valutazione clinica"},
	{NutritionalPlan, "nutritional_plan", "Piano nutrizionale"},
	{Recommendations, "recommendations", "Raccomandazioni"},
	{FollowUp, "follow_up", "Follow-up"},
}

var fieldIndex = func() map[FieldID]Field {
	m := make(map[FieldID]Field, len(Fields))
	for _, f := range Fields {
		m[f.ID] = f
	}
	return m
}()

// LookupField resolves a field id supplied by a client.
func LookupField(id string) (Field, error) {
	f, ok := fieldIndex[FieldID(id)]
	if !ok {
		return Field{}, fmt.Errorf("%w: %q", ErrUnknownField, id)
	}
	return f, nil
}

// Report is the nine-section summary of a consultation.
type Report struct {
	ReasonForVisit     string `json:"reason_for_visit"`
	ClinicalHistory    string `json:"clinical_history"`
	DietaryHabits      string `json:"dietary_habits"`
	Lifestyle          string `json:"lifestyle"`
	AnthropometricData string `json:"anthropometric_data"`
	ClinicalAssessment string `json:"clinical_assessment"`
	NutritionalPlan    string `json:"nutritional_plan"`
	Recommendations    string `json:"recommendations"`
	FollowUp           string `json:"follow_up"`
}

func (r *Report) ptr(id FieldID) *string {
	switch id {
	case ReasonForVisit:
		return &r.ReasonForVisit
	case ClinicalHistory:
		return &r.ClinicalHistory
	case DietaryHabits:
		return &r.DietaryHabits
	case Lifestyle:
		return &r.Lifestyle
	case AnthropometricData:
		return &r.AnthropometricData
	case ClinicalAssessment:
		return &r.ClinicalAssessment
	case NutritionalPlan:
		return &r.NutritionalPlan
	case Recommendations:
		return &r.Recommendations
	case FollowUp:
		return &r.FollowUp
	}
	return nil
}

func (r *Report) Get(id FieldID) (string, error) {
	p := r.ptr(id)
	if p == nil {
		return "", fmt.Errorf("%w: %q", ErrUnknownField, id)
	}
	return *p, nil
}

func (r *Report) Set(id FieldID, value string) error {
	p := r.ptr(id)
	if p == nil {
		return fmt.Errorf("%w: %q", ErrUnknownField, id)
	}
	*p = value
	return nil
}

// values returns the sections in Fields order.
func (r *Report) values() []string {
	out := make([]string, len(Fields))
	for i, f := range Fields {
		out[i] = *r.ptr(f.ID)
	}
	return out
}

// scanTargets returns pointers to the sections in Fields order.
func (r *Report) scanTargets() []any {
	out := make([]any, len(Fields))
	for i, f := range Fields {
		out[i] = r.ptr(f.ID)
	}
	return out
}
