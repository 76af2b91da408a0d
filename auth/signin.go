// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/VA7DBI/scribeAPI/metrics"
	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrTransient          = errors.New("authentication backend temporarily unavailable")
	ErrInvalidTransition  = errors.New("invalid sign-in state transition")
)

// Authenticator checks a password. Failures that may succeed on retry must
// wrap ErrTransient.
type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) (*Identity, error)
}

// PostgresAuthenticator verifies bcrypt hashes stored in the users table.
type PostgresAuthenticator struct {
	db *sql.DB
}

func NewPostgresAuthenticator(db *sql.DB) *PostgresAuthenticator {
	return &PostgresAuthenticator{db: db}
}

func (a *PostgresAuthenticator) lookup(ctx context.Context, email string) (*Identity, string, error) {
	var (
		id   Identity
		hash string
	)
	err := a.db.QueryRowContext(ctx,
		`SELECT id, role, password_hash FROM users WHERE email = $1`,
		strings.ToLower(strings.TrimSpace(email))).Scan(&id.UserID, &id.Role, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", ErrInvalidCredentials
	}
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrTransient, err)
	}
	return &id, hash, nil
}

func (a *PostgresAuthenticator) Authenticate(ctx context.Context, email, password string) (*Identity, error) {
	id, hash, err := a.lookup(ctx, email)
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return id, nil
}

// LookupEmail resolves the user a redeemed magic link was issued for.
func (a *PostgresAuthenticator) LookupEmail(ctx context.Context, email string) (*Identity, error) {
	id, _, err := a.lookup(ctx, email)
	return id, err
}

// HashPassword produces the value stored in users.password_hash.
func HashPassword(password string) (string, error) {
	if len(password) > 72 {
		return "", errors.New("password exceeds the bcrypt length limit")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

type AttemptState int

const (
	StateInit AttemptState = iota
	StateRetrying
	StateDegraded
	StateFailed
	StateSucceeded
)

func (s AttemptState) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateRetrying:
		return "retrying"
	case StateDegraded:
		return "degraded"
	case StateFailed:
		return "failed"
	case StateSucceeded:
		return "succeeded"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Degraded, Failed and Succeeded are terminal.
var allowedTransitions = map[AttemptState][]AttemptState{
	StateInit:     {StateRetrying, StateDegraded, StateFailed, StateSucceeded},
	StateRetrying: {StateRetrying, StateDegraded, StateFailed, StateSucceeded},
}

// Attempt records one sign-in flow.
type Attempt struct {
	State         AttemptState
	Retries       int
	MagicLinkSent bool
	Identity      *Identity
	Err           error
	History       []AttemptState
}

func (a *Attempt) to(next AttemptState) error {
	for _, s := range allowedTransitions[a.State] {
		if s == next {
			a.State = next
			a.History = append(a.History, next)
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.State, next)
}

// RetryPolicy controls how transient failures are retried.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
	MaxBackoff  time.Duration
}

func (p RetryPolicy) tries() uint {
	if p.MaxAttempts < 1 {
		return 1
	}
	return uint(p.MaxAttempts)
}

func (p RetryPolicy) backOff() backoff.BackOff {
	maxBackoff := p.MaxBackoff
	if maxBackoff < p.Backoff {
		maxBackoff = p.Backoff * 8
	}
	return &backoff.ExponentialBackOff{
		InitialInterval:     p.Backoff,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         maxBackoff,
	}
}

// SignInFlow retries transient authentication failures and, once they are
// exhausted, falls back to a magic link when a sender is configured.
type SignInFlow struct {
	auth   Authenticator
	links  MagicLinkSender
	policy RetryPolicy
}

func NewSignInFlow(auth Authenticator, links MagicLinkSender, policy RetryPolicy) *SignInFlow {
	return &SignInFlow{auth: auth, links: links, policy: policy}
}

func (f *SignInFlow) SignIn(ctx context.Context, email, password string) *Attempt {
	logger := zerolog.Ctx(ctx)
	a := &Attempt{State: StateInit, History: []AttemptState{StateInit}}

	operation := func() (*Identity, error) {
		id, err := f.auth.Authenticate(ctx, email, password)
		if err == nil {
			return id, nil
		}
		if errors.Is(err, ErrTransient) {
			return nil, err
		}
		return nil, backoff.Permanent(err)
	}

	id, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(f.policy.backOff()),
		backoff.WithMaxTries(f.policy.tries()),
		backoff.WithNotify(func(err error, next time.Duration) {
			a.Retries++
			_ = a.to(StateRetrying)
			logger.Warn().Err(err).Int("retry", a.Retries).Dur("retry_in", next).Msg("Sign-in failed, retrying")
		}),
	)
	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Err
	}

	switch {
	case err == nil:
		a.Identity = id
		_ = a.to(StateSucceeded)

	case errors.Is(err, ErrTransient) && f.links != nil:
		if lerr := f.links.SendMagicLink(ctx, email); lerr != nil {
			a.Err = errors.Join(err, lerr)
			_ = a.to(StateFailed)
			break
		}
		a.Err = err
		a.MagicLinkSent = true
		_ = a.to(StateDegraded)

	default:
		a.Err = err
		_ = a.to(StateFailed)
	}

	metrics.SignInAttempts.WithLabelValues(a.State.String()).Inc()
	logger.Info().
		Str("state", a.State.String()).
		Int("retries", a.Retries).
		Bool("magic_link_sent", a.MagicLinkSent).
		Msg("Sign-in finished")
	return a
}
