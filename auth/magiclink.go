// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const magicLinkPrefix = "scribeapi:magiclink:"

var ErrInvalidMagicLink = errors.New("magic link is invalid or expired")

// MagicLinkSender delivers a one-time sign-in link.
type MagicLinkSender interface {
	SendMagicLink(ctx context.Context, email string) error
}

// Notifier delivers a link to its recipient.
type Notifier interface {
	Notify(ctx context.Context, email, link string) error
}

// LogNotifier writes links to the request logger. Mail delivery is left to
// an operator-provided Notifier.
type LogNotifier struct{}

func (LogNotifier) Notify(ctx context.Context, email, link string) error {
	zerolog.Ctx(ctx).Info().Str("email", email).Str("link", link).Msg("Magic link issued")
	return nil
}

// MagicLinks stores single-use tokens in Redis.
type MagicLinks struct {
	client   *redis.Client
	ttl      time.Duration
	baseURL  string
	notifier Notifier
}

func NewMagicLinks(client *redis.Client, ttl time.Duration, baseURL string, notifier Notifier) *MagicLinks {
	if notifier == nil {
		notifier = LogNotifier{}
	}
	return &MagicLinks{client: client, ttl: ttl, baseURL: baseURL, notifier: notifier}
}

func (m *MagicLinks) SendMagicLink(ctx context.Context, email string) error {
	token := uuid.NewString()
	email = strings.ToLower(strings.TrimSpace(email))
	if err := m.client.Set(ctx, magicLinkPrefix+token, email, m.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store magic link: %w", err)
	}
	return m.notifier.Notify(ctx, email, m.link(token))
}

func (m *MagicLinks) link(token string) string {
	if m.baseURL == "" {
		return token
	}
	sep := "?"
	if strings.Contains(m.baseURL, "?") {
		sep = "&"
	}
	return m.baseURL + sep + "token=" + url.QueryEscape(token)
}

// Redeem consumes a token and returns the email it was issued for.
func (m *MagicLinks) Redeem(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrInvalidMagicLink
	}
	email, err := m.client.GetDel(ctx, magicLinkPrefix+token).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrInvalidMagicLink
	}
	if err != nil {
		return "", fmt.Errorf("failed to redeem magic link: %w", err)
	}
	return email, nil
}
