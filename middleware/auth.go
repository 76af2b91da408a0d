// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

package middleware

import (
	"net/http"
	"strings"

	"github.com/VA7DBI/scribeAPI/auth"
	"github.com/VA7DBI/scribeAPI/config"
	"github.com/VA7DBI/scribeAPI/logging"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// IdentityKey is the gin context key holding the resolved *auth.Identity.
const IdentityKey = "identity"

// Anonymous is the identity attached to every request when auth is disabled.
var Anonymous = auth.Identity{Role: auth.RoleAdmin}

// AuthMiddleware handles bearer token authentication
type AuthMiddleware struct {
	cfg *config.Config
	// cache is consulted first and receives hits from the slower stores
	cache  auth.TokenStore
	stores []auth.TokenStore
}

// NewAuthMiddleware builds the chain. Stores are tried in the given order
// after the cache; nil entries are skipped.
func NewAuthMiddleware(cfg *config.Config, cache auth.TokenStore, stores ...auth.TokenStore) *AuthMiddleware {
	m := &AuthMiddleware{cfg: cfg, cache: cache}
	for _, s := range stores {
		if s != nil {
			m.stores = append(m.stores, s)
		}
	}
	return m
}

// Handler returns the gin middleware handler function
func (m *AuthMiddleware) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Fast path: if auth is disabled, allow all requests
		if !m.cfg.Auth.Enabled {
			id := Anonymous
			c.Set(IdentityKey, &id)
			c.Next()
			return
		}

		token := extractToken(c)
		if token == "" {
			abortJSON(c, http.StatusUnauthorized, "Authorization header required")
			return
		}

		id := m.resolve(c, token)
		if id == nil {
			abortJSON(c, http.StatusUnauthorized, "Invalid token")
			return
		}

		c.Set(IdentityKey, id)
		ctx := c.Request.Context()
		logger := zerolog.Ctx(ctx).With().Str(logging.FieldUserID, id.UserID).Logger()
		c.Request = c.Request.WithContext(logger.WithContext(ctx))
		c.Next()
	}
}

func (m *AuthMiddleware) resolve(c *gin.Context, token string) *auth.Identity {
	ctx := c.Request.Context()
	logger := zerolog.Ctx(ctx)

	if m.cache != nil {
		id, err := m.cache.ValidateToken(ctx, token)
		if err != nil {
			logger.Warn().Err(err).Msg("Token cache lookup failed")
		} else if id != nil {
			return id
		}
	}

	for _, store := range m.stores {
		id, err := store.ValidateToken(ctx, token)
		if err != nil {
			logger.Warn().Err(err).Msg("Token store lookup failed")
			continue
		}
		if id == nil {
			continue
		}
		if _, ok := store.(auth.SelfContained); !ok && m.cache != nil {
			if err := m.cache.CacheToken(ctx, token, id); err != nil {
				logger.Warn().Err(err).Msg("Failed to cache token")
			}
		}
		return id
	}
	return nil
}

// IdentityFrom returns the identity set by the auth middleware, or nil.
func IdentityFrom(c *gin.Context) *auth.Identity {
	v, ok := c.Get(IdentityKey)
	if !ok {
		return nil
	}
	id, _ := v.(*auth.Identity)
	return id
}

// RequireRole rejects callers whose identity does not carry role. Admins pass
// every check.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := IdentityFrom(c)
		if id == nil {
			abortJSON(c, http.StatusUnauthorized, "Authentication required")
			return
		}
		if id.Role != role && !id.IsAdmin() {
			abortJSON(c, http.StatusForbidden, "Insufficient role")
			return
		}
		c.Next()
	}
}

func abortJSON(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"error":      msg,
		"request_id": c.GetString(logging.RequestIDKey),
	})
}

func extractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.Fields(authHeader)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}

	return parts[1]
}
