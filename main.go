// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/VA7DBI/scribeAPI/analysis"
	"github.com/VA7DBI/scribeAPI/auth"
	"github.com/VA7DBI/scribeAPI/config"
	"github.com/VA7DBI/scribeAPI/consultation"
	"github.com/VA7DBI/scribeAPI/db"
	"github.com/VA7DBI/scribeAPI/docs"
	"github.com/VA7DBI/scribeAPI/logging"
	"github.com/VA7DBI/scribeAPI/middleware"
	"github.com/VA7DBI/scribeAPI/quota"
	"github.com/VA7DBI/scribeAPI/speech"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

var (
	configFile = flag.String("config", "config.yaml", "Path to configuration file")
	envFile    = flag.String("env", ".env", "Optional dotenv file loaded before the configuration")
)

// app holds everything the router needs. Optional parts are nil.
type app struct {
	cfg    *config.Config
	logger zerolog.Logger

	db    *sql.DB
	redis *redis.Client

	transcription *TranscriptionService
	signin        *SignInService
	auth          *middleware.AuthMiddleware
}

func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	if cfg.Database.Enabled {
		conn, err := db.Open(ctx, cfg)
		if err != nil {
			return nil, err
		}
		a.db = conn
		if cfg.Database.Migrate {
			if err := db.Migrate(ctx, conn, cfg.Quota.Plans); err != nil {
				a.Close()
				return nil, err
			}
			logger.Info().Msg("Database schema applied")
		}
	}

	if cfg.Redis.Enabled {
		client, err := auth.NewRedisClient(ctx, cfg)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize Redis: %w", err)
		}
		a.redis = client
	}

	speechClient := speech.NewClient(cfg, &http.Client{})
	if !speechClient.Configured() {
		logger.Warn().Strs("checked_env", cfg.Speech.APIKeyEnv).Msg("No speech API key configured; transcription requests will fail")
	}

	var guard *quota.Guard
	if cfg.Quota.Enabled {
		if a.db != nil {
			guard = quota.NewGuard(quota.NewPostgresUsageStore(a.db), cfg)
		} else {
			logger.Warn().Msg("Quota enabled without a database; usage is kept in memory")
			guard = quota.NewGuard(quota.NewMemoryStore(), cfg)
		}
	}

	var analyzer ReportAnalyzer
	if cfg.Analysis.Enabled {
		analyzer = analysis.New(cfg)
	}

	var records RecordStore
	if a.db != nil {
		records = consultation.NewStore(a.db)
	}

	a.transcription = NewTranscriptionService(cfg, speechClient, guard, analyzer, records)

	sessions, err := a.sessions()
	if err != nil {
		a.Close()
		return nil, err
	}
	a.auth = a.authMiddleware(sessions)
	a.signin = a.signInService(sessions)
	return a, nil
}

func (a *app) sessions() (*auth.Sessions, error) {
	if a.cfg.Auth.JWTSecret == "" {
		return nil, nil
	}
	s, err := auth.NewSessions(a.cfg.Auth.JWTSecret, a.cfg.SessionTTL())
	if err != nil {
		return nil, fmt.Errorf("invalid session configuration: %w", err)
	}
	return s, nil
}

// authMiddleware orders the token stores cheapest first.
func (a *app) authMiddleware(sessions *auth.Sessions) *middleware.AuthMiddleware {
	var (
		cache  auth.TokenStore
		stores []auth.TokenStore
	)
	if a.redis != nil {
		cache = auth.NewRedisTokenStore(a.redis, time.Duration(a.cfg.Auth.CacheTTL)*time.Second)
	}
	if sessions != nil {
		stores = append(stores, sessions)
	}
	if a.db != nil && a.cfg.Auth.TokenLookup {
		stores = append(stores, auth.NewPostgresTokenStore(a.db, a.cfg.Auth.Query))
	}
	if len(a.cfg.Auth.Tokens) > 0 {
		stores = append(stores, auth.NewStaticTokenStore(a.cfg.Auth.Tokens))
	}
	if a.cfg.Auth.Enabled && len(stores) == 0 {
		a.logger.Warn().Msg("Auth enabled but no token store is configured; every request will be rejected")
	}
	return middleware.NewAuthMiddleware(a.cfg, cache, stores...)
}

// signInService needs a user table and a session signer.
func (a *app) signInService(sessions *auth.Sessions) *SignInService {
	if a.db == nil || sessions == nil {
		return nil
	}
	si := a.cfg.Auth.SignIn
	users := auth.NewPostgresAuthenticator(a.db)

	var (
		sender   auth.MagicLinkSender
		redeemer MagicLinkRedeemer
	)
	if a.redis != nil && si.MagicLinkOnErr {
		links := auth.NewMagicLinks(a.redis, time.Duration(si.MagicLinkTTL)*time.Second, si.MagicLinkURL, nil)
		sender, redeemer = links, links
	}

	backoff := time.Duration(si.BackoffMs) * time.Millisecond
	flow := auth.NewSignInFlow(users, sender, auth.RetryPolicy{
		MaxAttempts: si.MaxAttempts,
		Backoff:     backoff,
		MaxBackoff:  8 * backoff,
	})
	return NewSignInService(flow, sessions, redeemer, users)
}

func (a *app) Close() {
	if a.redis != nil {
		a.redis.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}

func setupRouter(a *app) *gin.Engine {
	cfg := a.cfg
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(middleware.RequestID(), logging.Middleware(a.logger), gin.Recovery(), middleware.CORS(cfg.Server.CORSOrigins))

	docs.SwaggerInfo.BasePath = cfg.API.BasePath
	docs.SwaggerInfo.Host = cfg.API.SwaggerHost

	api := r.Group(cfg.API.BasePath)
	secured := api.Group("", a.auth.Handler())
	s := a.transcription

	secured.POST("/transcribe", s.TranscribeHandler)
	secured.POST("/consultations", s.CreateConsultationHandler)
	secured.GET("/consultations/:id", s.GetConsultationHandler)
	secured.PATCH("/consultations/:id/report/:field", s.UpdateReportFieldHandler)
	secured.POST("/patients", s.CreatePatientHandler)
	secured.GET("/patients/:id/consultations", s.ListConsultationsHandler)
	secured.POST("/quota/check", s.QuotaCheckHandler)
	secured.GET("/admin/usage/:user_id", middleware.RequireRole(auth.RoleAdmin), s.AdminUsageHandler)

	if a.signin != nil {
		api.POST("/auth/signin", a.signin.SignInHandler)
		api.POST("/auth/magic-link/redeem", a.signin.RedeemHandler)
	}

	// These endpoints remain public
	r.GET("/health", healthCheck)
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Add Prometheus metrics endpoint if enabled
	if cfg.Metrics.Enabled {
		r.GET(cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}
	return r
}

// @title           Scribe API Service
// @version         2.0
// @description     Consultation audio ingestion, transcription and structured reporting.
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in              header
// @name            Authorization
func main() {
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Failed to load %s: %v", *envFile, err)
	}

	// Load configuration
	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.New(cfg.Log.Level, cfg.Log.Format)
	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithContext(ctx)

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize service")
	}
	defer a.Close()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           setupRouter(a),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("Server error")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server shutdown error")
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status string `json:"status"`
}

// @Summary     Health check endpoint
// @Description Get API health status
// @Tags        health
// @Produce     json
// @Success     200 {object} HealthResponse
// @Router      /health [get]
func healthCheck(c *gin.Context) {
	c.JSON(200, HealthResponse{Status: "ok"})
}
