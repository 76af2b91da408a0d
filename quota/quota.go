// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

// Package quota checks remaining monthly transcription minutes before audio
// is accepted. Usage itself is incremented by the consultations trigger in
// the database; the check is a plain read, so two concurrent checks for the
// same user can both pass before either is counted.
package quota

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/VA7DBI/scribeAPI/config"
	"github.com/VA7DBI/scribeAPI/metrics"
	"github.com/rs/zerolog"
)

var (
	ErrQuotaExceeded     = errors.New("monthly transcription minutes exhausted")
	ErrInvalidTransition = errors.New("invalid quota decision transition")
)

type State int

const (
	Unchecked State = iota
	CheckedAllowed
	CheckedDenied
	Consumed
)

func (s State) String() string {
	switch s {
	case Unchecked:
		return "unchecked"
	case CheckedAllowed:
		return "allowed"
	case CheckedDenied:
		return "denied"
	case Consumed:
		return "consumed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Usage is a user's allowance and consumption for the current period.
type Usage struct {
	UserID         string    `json:"user_id"`
	Plan           string    `json:"plan"`
	MonthlyMinutes int       `json:"monthly_minutes"`
	MinutesUsed    int       `json:"minutes_used"`
	PeriodStart    time.Time `json:"period_start"`
	PeriodEnd      time.Time `json:"period_end"`
}

func (u Usage) Remaining() int {
	if r := u.MonthlyMinutes - u.MinutesUsed; r > 0 {
		return r
	}
	return 0
}

// Decision is the outcome of one pre-flight check.
type Decision struct {
	State           State `json:"-"`
	Usage           Usage `json:"usage"`
	RequiredMinutes int   `json:"required_minutes"`
}

func (d Decision) Allowed() bool {
	return d.State == CheckedAllowed || d.State == Consumed
}

// Consume marks an allowed decision as spent. It is the only transition out
// of CheckedAllowed.
func (d *Decision) Consume() error {
	if d.State != CheckedAllowed {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, d.State, Consumed)
	}
	d.State = Consumed
	return nil
}

// RequiredMinutes rounds a duration up to whole minutes.
func RequiredMinutes(seconds float64) int {
	if seconds <= 0 {
		return 0
	}
	return int(math.Ceil(seconds / 60))
}

// Evaluate denies when used plus required would exceed the allowance, or
// when nothing is left at all.
func Evaluate(u Usage, seconds float64) Decision {
	required := RequiredMinutes(seconds)
	state := CheckedAllowed
	if u.MinutesUsed+required > u.MonthlyMinutes || u.Remaining() == 0 {
		state = CheckedDenied
	}
	return Decision{State: state, Usage: u, RequiredMinutes: required}
}

// UsageStore reads current-period usage. A user with no subscription is
// returned with an empty Plan and zero minutes.
type UsageStore interface {
	CurrentUsage(ctx context.Context, userID string) (*Usage, error)
}

// Recorder is implemented by stores that count usage themselves instead of
// relying on the database trigger.
type Recorder interface {
	RecordUsage(ctx context.Context, userID string, minutes int) error
}

type Guard struct {
	store       UsageStore
	cfg         *config.Config
	defaultPlan string
}

func NewGuard(store UsageStore, cfg *config.Config) *Guard {
	return &Guard{store: store, cfg: cfg, defaultPlan: cfg.Quota.DefaultPlan}
}

// Usage resolves the plan allowance for a user, falling back to the default
// plan for unknown or missing subscriptions.
func (g *Guard) Usage(ctx context.Context, userID string) (Usage, error) {
	u, err := g.store.CurrentUsage(ctx, userID)
	if err != nil {
		return Usage{}, fmt.Errorf("failed to read usage for %s: %w", userID, err)
	}
	if u == nil {
		u = &Usage{}
	}
	usage := *u
	usage.UserID = userID

	minutes, ok := g.cfg.PlanMinutes(usage.Plan)
	if !ok {
		usage.Plan = g.defaultPlan
		minutes, _ = g.cfg.PlanMinutes(g.defaultPlan)
	}
	usage.MonthlyMinutes = minutes

	if usage.PeriodStart.IsZero() {
		usage.PeriodStart, usage.PeriodEnd = CurrentPeriod(time.Now())
	}
	return usage, nil
}

// Check evaluates a pre-flight request for the given duration.
func (g *Guard) Check(ctx context.Context, userID string, seconds float64) (Decision, error) {
	usage, err := g.Usage(ctx, userID)
	if err != nil {
		return Decision{State: Unchecked}, err
	}

	d := Evaluate(usage, seconds)
	metrics.QuotaDecisions.WithLabelValues(d.State.String()).Inc()
	zerolog.Ctx(ctx).Debug().
		Str("user_id", userID).
		Str("plan", usage.Plan).
		Int("used", usage.MinutesUsed).
		Int("required", d.RequiredMinutes).
		Int("allowance", usage.MonthlyMinutes).
		Str("decision", d.State.String()).
		Msg("Quota checked")
	return d, nil
}

// Admit is Check reduced to an error.
func (g *Guard) Admit(ctx context.Context, userID string, seconds float64) (*Decision, error) {
	d, err := g.Check(ctx, userID, seconds)
	if err != nil {
		return nil, err
	}
	if d.State == CheckedDenied {
		return &d, fmt.Errorf("%w: %d of %d minutes used, %d required",
			ErrQuotaExceeded, d.Usage.MinutesUsed, d.Usage.MonthlyMinutes, d.RequiredMinutes)
	}
	return &d, nil
}

// Commit moves an allowed decision to Consumed once the work it admitted
// has been persisted. Stores implementing Recorder are charged here; for
// Postgres the trigger has already done it.
func (g *Guard) Commit(ctx context.Context, d *Decision) error {
	if err := d.Consume(); err != nil {
		return err
	}
	if rec, ok := g.store.(Recorder); ok && d.RequiredMinutes > 0 {
		if err := rec.RecordUsage(ctx, d.Usage.UserID, d.RequiredMinutes); err != nil {
			return fmt.Errorf("failed to record usage: %w", err)
		}
	}
	metrics.QuotaDecisions.WithLabelValues(Consumed.String()).Inc()
	return nil
}

// CurrentPeriod is the calendar month containing t, in UTC.
func CurrentPeriod(t time.Time) (time.Time, time.Time) {
	t = t.UTC()
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}
