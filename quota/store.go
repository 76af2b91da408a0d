// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

package quota

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"
)

const currentUsageQuery = `
SELECT s.plan, u.minutes_used, u.period_start, u.period_end
FROM users usr
LEFT JOIN subscriptions s ON s.user_id = usr.id AND s.status = 'active'
LEFT JOIN subscription_usage u ON u.user_id = usr.id AND u.period_start <= NOW() AND u.period_end > NOW()
WHERE usr.id = $1
ORDER BY u.period_start DESC NULLS LAST
LIMIT 1`

// PostgresUsageStore reads the rows maintained by the consultations trigger.
type PostgresUsageStore struct {
	db *sql.DB
}

func NewPostgresUsageStore(db *sql.DB) *PostgresUsageStore {
	return &PostgresUsageStore{db: db}
}

func (s *PostgresUsageStore) CurrentUsage(ctx context.Context, userID string) (*Usage, error) {
	var (
		plan       sql.NullString
		used       sql.NullInt64
		start, end sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, currentUsageQuery, userID).Scan(&plan, &used, &start, &end)
	if errors.Is(err, sql.ErrNoRows) {
		return &Usage{UserID: userID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("usage query failed: %w", err)
	}

	u := &Usage{
		UserID:      userID,
		Plan:        plan.String,
		MinutesUsed: int(used.Int64),
	}
	if start.Valid && end.Valid {
		u.PeriodStart, u.PeriodEnd = start.Time, end.Time
	}
	return u, nil
}

// MemoryStore keeps usage in process. It stands in for the database when
// none is configured, and charges minutes on Commit.
type MemoryStore struct {
	mu    sync.Mutex
	plans map[string]string
	used  map[string]int
	now   func() time.Time
	start time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		plans: make(map[string]string),
		used:  make(map[string]int),
		now:   time.Now,
	}
}

// SetPlan assigns a plan and the minutes already used this period.
func (s *MemoryStore) SetPlan(userID, plan string, minutesUsed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollover()
	s.plans[userID] = plan
	s.used[userID] = minutesUsed
}

func (s *MemoryStore) CurrentUsage(_ context.Context, userID string) (*Usage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollover()
	start, end := CurrentPeriod(s.start)
	return &Usage{
		UserID:      userID,
		Plan:        s.plans[userID],
		MinutesUsed: s.used[userID],
		PeriodStart: start,
		PeriodEnd:   end,
	}, nil
}

func (s *MemoryStore) RecordUsage(_ context.Context, userID string, minutes int) error {
	if minutes < 0 {
		return fmt.Errorf("negative usage %d", minutes)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollover()
	s.used[userID] += minutes
	return nil
}

// rollover resets counters when the calendar month changes. Callers hold mu.
func (s *MemoryStore) rollover() {
	start, _ := CurrentPeriod(s.now())
	if !start.Equal(s.start) {
		s.start = start
		clear(s.used)
	}
}
