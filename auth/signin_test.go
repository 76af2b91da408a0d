// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

package auth

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type scriptedAuth struct {
	calls   int
	results []error
	id      *Identity
}

func (s *scriptedAuth) Authenticate(context.Context, string, string) (*Identity, error) {
	i := s.calls
	s.calls++
	if i >= len(s.results) {
		i = len(s.results) - 1
	}
	if err := s.results[i]; err != nil {
		return nil, err
	}
	return s.id, nil
}

type fakeLinks struct {
	sent []string
	err  error
}

func (f *fakeLinks) SendMagicLink(_ context.Context, email string) error {
	f.sent = append(f.sent, email)
	return f.err
}

var fastPolicy = RetryPolicy{MaxAttempts: 3, Backoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}

func transient() error { return fmt.Errorf("%w: connection refused", ErrTransient) }

func TestSignInSucceeds(t *testing.T) {
	auth := &scriptedAuth{results: []error{nil}, id: &Identity{UserID: "u1", Role: RoleClinician}}
	a := NewSignInFlow(auth, nil, fastPolicy).SignIn(context.Background(), "doc@example.com", "pw")

	assert.Equal(t, StateSucceeded, a.State)
	assert.Equal(t, "u1", a.Identity.UserID)
	assert.Equal(t, 0, a.Retries)
	assert.Equal(t, []AttemptState{StateInit, StateSucceeded}, a.History)
}

func TestSignInRecoversAfterRetry(t *testing.T) {
	auth := &scriptedAuth{results: []error{transient(), nil}, id: &Identity{UserID: "u1"}}
	a := NewSignInFlow(auth, nil, fastPolicy).SignIn(context.Background(), "doc@example.com", "pw")

	assert.Equal(t, StateSucceeded, a.State)
	assert.Equal(t, 1, a.Retries)
	assert.Equal(t, []AttemptState{StateInit, StateRetrying, StateSucceeded}, a.History)
}

func TestSignInInvalidCredentialsNotRetried(t *testing.T) {
	auth := &scriptedAuth{results: []error{ErrInvalidCredentials}}
	links := &fakeLinks{}
	a := NewSignInFlow(auth, links, fastPolicy).SignIn(context.Background(), "doc@example.com", "bad")

	assert.Equal(t, StateFailed, a.State)
	assert.ErrorIs(t, a.Err, ErrInvalidCredentials)
	assert.Equal(t, 1, auth.calls)
	assert.Empty(t, links.sent, "bad passwords never fall back to a magic link")
}

func TestSignInDegradesToMagicLink(t *testing.T) {
	auth := &scriptedAuth{results: []error{transient()}}
	links := &fakeLinks{}
	a := NewSignInFlow(auth, links, fastPolicy).SignIn(context.Background(), "doc@example.com", "pw")

	assert.Equal(t, StateDegraded, a.State)
	assert.True(t, a.MagicLinkSent)
	assert.Equal(t, 3, auth.calls)
	assert.Equal(t, 2, a.Retries)
	assert.Equal(t, []string{"doc@example.com"}, links.sent)
	assert.ErrorIs(t, a.Err, ErrTransient)
}

func TestSignInTransientWithoutLinksFails(t *testing.T) {
	auth := &scriptedAuth{results: []error{transient()}}
	a := NewSignInFlow(auth, nil, fastPolicy).SignIn(context.Background(), "doc@example.com", "pw")

	assert.Equal(t, StateFailed, a.State)
	assert.False(t, a.MagicLinkSent)
	assert.ErrorIs(t, a.Err, ErrTransient)
}

func TestSignInMagicLinkFailure(t *testing.T) {
	auth := &scriptedAuth{results: []error{transient()}}
	links := &fakeLinks{err: errors.New("redis down")}
	a := NewSignInFlow(auth, links, RetryPolicy{MaxAttempts: 1}).SignIn(context.Background(), "doc@example.com", "pw")

	assert.Equal(t, StateFailed, a.State)
	assert.False(t, a.MagicLinkSent)
	assert.ErrorIs(t, a.Err, ErrTransient)
}

func TestAttemptTransitions(t *testing.T) {
	for _, terminal := range []AttemptState{StateDegraded, StateFailed, StateSucceeded} {
		a := &Attempt{State: terminal}
		for _, next := range []AttemptState{StateInit, StateRetrying, StateDegraded, StateFailed, StateSucceeded} {
			assert.ErrorIs(t, a.to(next), ErrInvalidTransition, "%s -> %s", terminal, next)
		}
	}

	a := &Attempt{State: StateInit}
	assert.ErrorIs(t, a.to(StateInit), ErrInvalidTransition)
	assert.NoError(t, a.to(StateRetrying))
	assert.NoError(t, a.to(StateRetrying))
	assert.NoError(t, a.to(StateFailed))
	assert.Equal(t, "failed", a.State.String())
}

func TestPostgresAuthenticator(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	hash, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	require.NoError(t, err)

	auth := NewPostgresAuthenticator(db)
	ctx := context.Background()
	const query = `SELECT id, role, password_hash FROM users WHERE email = \$1`

	mock.ExpectQuery(query).WithArgs("doc@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "role", "password_hash"}).AddRow("u1", "clinician", string(hash)))
	id, err := auth.Authenticate(ctx, "Doc@Example.com", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, "u1", id.UserID)

	mock.ExpectQuery(query).WithArgs("doc@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "role", "password_hash"}).AddRow("u1", "clinician", string(hash)))
	_, err = auth.Authenticate(ctx, "doc@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	mock.ExpectQuery(query).WithArgs("nobody@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "role", "password_hash"}))
	_, err = auth.Authenticate(ctx, "nobody@example.com", "pw")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	mock.ExpectQuery(query).WithArgs("doc@example.com").WillReturnError(errors.New("connection reset"))
	_, err = auth.LookupEmail(ctx, "doc@example.com")
	assert.ErrorIs(t, err, ErrTransient)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("secret")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("secret")))

	_, err = HashPassword(string(make([]byte, 73)))
	assert.Error(t, err)
}
