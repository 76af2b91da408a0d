// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/VA7DBI/scribeAPI/config"
	"github.com/VA7DBI/scribeAPI/logging"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMainSetup(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{}
	cfg.ApplyDefaults()
	cfg.Metrics.Enabled = true
	cfg.Auth.JWTSecret = "0123456789abcdef0123456789abcdef"

	a, err := newApp(context.Background(), cfg, logging.NewWithWriter("error", "json", io.Discard))
	require.NoError(t, err)
	defer a.Close()
	assert.Nil(t, a.signin, "sign-in needs a user database")

	r := setupRouter(a)

	// Get all registered routes
	routeMap := make(map[string]bool)
	for _, route := range r.Routes() {
		routeMap[route.Method+" "+route.Path] = true
	}

	// Verify required endpoints are registered
	for _, want := range []string{
		"POST /transcribe",
		"POST /consultations",
		"GET /consultations/:id",
		"PATCH /consultations/:id/report/:field",
		"POST /patients",
		"GET /patients/:id/consultations",
		"POST /quota/check",
		"GET /admin/usage/:user_id",
		"GET /health",
		"GET /swagger/*any",
		"GET /metrics",
	} {
		assert.True(t, routeMap[want], "Missing %s endpoint", want)
	}
	assert.False(t, routeMap["POST /auth/signin"])
}

func TestPublicEndpoints(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))

	w = env.do(httptest.NewRequest(http.MethodGet, "/swagger/doc.json", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "/transcribe")

	w = env.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMethodHandling(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(httptest.NewRequest(http.MethodGet, "/transcribe", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)

	req := httptest.NewRequest(http.MethodOptions, "/transcribe", nil)
	req.Header.Set("Origin", "https://app.example.com")
	w = env.do(req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Zero(t, env.upstreamHits(), "preflight never reaches the speech API")
}
