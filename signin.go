// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/VA7DBI/scribeAPI/auth"
	"github.com/VA7DBI/scribeAPI/logging"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

type SignInRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type RedeemRequest struct {
	Token string `json:"token" binding:"required"`
}

type SessionResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
}

type SignInStatus struct {
	State         string `json:"state"`
	Retries       int    `json:"retries"`
	MagicLinkSent bool   `json:"magic_link_sent"`
	Error         string `json:"error,omitempty"`
	RequestID     string `json:"request_id"`
}

// MagicLinkRedeemer is satisfied by *auth.MagicLinks.
type MagicLinkRedeemer interface {
	Redeem(ctx context.Context, token string) (string, error)
}

// EmailLookup is satisfied by *auth.PostgresAuthenticator.
type EmailLookup interface {
	LookupEmail(ctx context.Context, email string) (*auth.Identity, error)
}

type SignInService struct {
	flow     *auth.SignInFlow
	sessions *auth.Sessions
	links    MagicLinkRedeemer
	users    EmailLookup
}

// NewSignInService builds the handlers. links may be nil when magic links
// are disabled; redeem then answers 503.
func NewSignInService(flow *auth.SignInFlow, sessions *auth.Sessions, links MagicLinkRedeemer, users EmailLookup) *SignInService {
	return &SignInService{flow: flow, sessions: sessions, links: links, users: users}
}

func (s *SignInService) issue(c *gin.Context, id *auth.Identity) {
	token, expires, err := s.sessions.Issue(*id)
	if err != nil {
		writeError(c, err, false)
		return
	}
	c.JSON(http.StatusOK, SessionResponse{Token: token, ExpiresAt: expires, UserID: id.UserID, Role: id.Role})
}

// @Summary Sign in with email and password
// @Tags    auth
// @Accept  json
// @Produce json
// @Param   body body SignInRequest true "Credentials"
// @Success 200 {object} SessionResponse
// @Success 202 {object} SignInStatus
// @Failure 401 {object} SignInStatus
// @Failure 503 {object} SignInStatus
// @Router  /auth/signin [post]
func (s *SignInService) SignInHandler(c *gin.Context) {
	var req SignInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	a := s.flow.SignIn(c.Request.Context(), req.Email, req.Password)
	status := SignInStatus{
		State:         a.State.String(),
		Retries:       a.Retries,
		MagicLinkSent: a.MagicLinkSent,
		RequestID:     c.GetString(logging.RequestIDKey),
	}

	switch a.State {
	case auth.StateSucceeded:
		s.issue(c, a.Identity)
	case auth.StateDegraded:
		status.Error = "sign-in is temporarily unavailable; a sign-in link was sent to your email"
		c.JSON(http.StatusAccepted, status)
	default:
		if errors.Is(a.Err, auth.ErrInvalidCredentials) {
			status.Error = auth.ErrInvalidCredentials.Error()
			c.JSON(http.StatusUnauthorized, status)
			return
		}
		zerolog.Ctx(c.Request.Context()).Error().Err(a.Err).Msg("Sign-in failed")
		status.Error = auth.ErrTransient.Error()
		c.JSON(http.StatusServiceUnavailable, status)
	}
}

// @Summary Exchange a magic-link token for a session
// @Tags    auth
// @Accept  json
// @Produce json
// @Param   body body RedeemRequest true "Link token"
// @Success 200 {object} SessionResponse
// @Failure 401 {object} ErrorResponse
// @Router  /auth/magic-link/redeem [post]
func (s *SignInService) RedeemHandler(c *gin.Context) {
	if s.links == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "magic links are not enabled", RequestID: c.GetString(logging.RequestIDKey)})
		return
	}
	var req RedeemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	ctx := c.Request.Context()
	email, err := s.links.Redeem(ctx, req.Token)
	if errors.Is(err, auth.ErrInvalidMagicLink) {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: err.Error(), RequestID: c.GetString(logging.RequestIDKey)})
		return
	}
	if err != nil {
		writeError(c, err, false)
		return
	}

	id, err := s.users.LookupEmail(ctx, email)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: auth.ErrInvalidMagicLink.Error(), RequestID: c.GetString(logging.RequestIDKey)})
		return
	}
	if err != nil {
		writeError(c, err, false)
		return
	}
	s.issue(c, id)
}
