// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const megabyte = 1024 * 1024

// Plan is a subscription tier and its monthly transcription allowance.
type Plan struct {
	Name           string `yaml:"name" validate:"required"`
	MonthlyMinutes int    `yaml:"monthly_minutes" validate:"gte=0"`
}

type Config struct {
	Server struct {
		Host        string   `yaml:"host"`
		Port        int      `yaml:"port" validate:"gt=0,lte=65535"`
		Mode        string   `yaml:"mode" validate:"omitempty,oneof=debug release test"`
		CORSOrigins []string `yaml:"cors_origins"`
	} `yaml:"server"`

	API struct {
		BasePath    string `yaml:"base_path"`
		SwaggerHost string `yaml:"swagger_host"`
	} `yaml:"api"`

	Log struct {
		Level  string `yaml:"level" validate:"oneof=trace debug info warn error"`
		Format string `yaml:"format" validate:"oneof=console json"`
	} `yaml:"log"`

	Speech struct {
		BaseURL        string   `yaml:"base_url" validate:"required,url"`
		Model          string   `yaml:"model" validate:"required"`
		Language       string   `yaml:"language"`
		ResponseFormat string   `yaml:"response_format" validate:"oneof=text json"`
		Temperature    float64  `yaml:"temperature" validate:"gte=0,lte=1"`
		Prompt         string   `yaml:"prompt"`
		APIKey         string   `yaml:"api_key"`
		APIKeyEnv      []string `yaml:"api_key_env"` // Checked in order when api_key is empty

		MinTimeoutSeconds int `yaml:"min_timeout_seconds" validate:"gt=0"`
		MaxTimeoutSeconds int `yaml:"max_timeout_seconds" validate:"gtefield=MinTimeoutSeconds"`
		SecondsPerMB      int `yaml:"timeout_seconds_per_mb" validate:"gte=0"`

		Retry struct {
			Enabled          bool `yaml:"enabled"`
			MaxAttempts      int  `yaml:"max_attempts" validate:"gte=1,lte=10"`
			InitialBackoffMs int  `yaml:"initial_backoff_ms" validate:"gt=0"`
			MaxBackoffMs     int  `yaml:"max_backoff_ms" validate:"gtefield=InitialBackoffMs"`
		} `yaml:"retry"`
	} `yaml:"speech"`

	Analysis struct {
		Enabled     bool    `yaml:"enabled"`
		BaseURL     string  `yaml:"base_url" validate:"required,url"`
		Model       string  `yaml:"model" validate:"required"`
		APIKey      string  `yaml:"api_key"`
		Temperature float32 `yaml:"temperature"`
	} `yaml:"analysis"`

	Upload struct {
		MaxFileSizeMB  int64  `yaml:"max_file_size_mb" validate:"gt=0"`
		FieldName      string `yaml:"field_name" validate:"required"`
		ManualFallback bool   `yaml:"manual_fallback"` // Use the byte-scanning decoder instead of mime/multipart
	} `yaml:"upload"`

	Database struct {
		Enabled  bool   `yaml:"enabled"`
		URL      string `yaml:"url"`
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		DBName   string `yaml:"dbname"`
		SSLMode  string `yaml:"sslmode"`
		Migrate  bool   `yaml:"migrate"`
	} `yaml:"database"`

	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		URL      string `yaml:"url"`
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		DB       int    `yaml:"db"`
		Password string `yaml:"password"`
	} `yaml:"redis"`

	Auth struct {
		Enabled     bool     `yaml:"enabled"`
		Tokens      []string `yaml:"tokens"` // Fallback static service tokens
		JWTSecret   string   `yaml:"jwt_secret"`
		SessionTTL  int      `yaml:"session_ttl_seconds" validate:"gt=0"`
		CacheTTL    int      `yaml:"cache_ttl_seconds" validate:"gt=0"` // Redis token cache TTL
		TokenLookup bool     `yaml:"token_lookup"`                      // Look up API tokens in Postgres
		Query       string   `yaml:"query"`                             // Parameterized query returning user_id, role

		SignIn struct {
			MaxAttempts    int    `yaml:"max_attempts" validate:"gte=1"`
			BackoffMs      int    `yaml:"backoff_ms" validate:"gte=0"`
			MagicLinkTTL   int    `yaml:"magic_link_ttl_seconds" validate:"gt=0"`
			MagicLinkURL   string `yaml:"magic_link_url"`
			MagicLinkOnErr bool   `yaml:"magic_link_fallback"`
		} `yaml:"signin"`
	} `yaml:"auth"`

	Quota struct {
		Enabled     bool   `yaml:"enabled"`
		DefaultPlan string `yaml:"default_plan" validate:"required"`
		Plans       []Plan `yaml:"plans" validate:"dive"`
	} `yaml:"quota"`

	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	config := &Config{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	config.ApplyDefaults()
	config.ApplyEnv()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// ApplyDefaults fills every unset field with its default.
func (c *Config) ApplyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.Host == "" {
		c.Server.Host = "localhost"
	}
	if c.API.BasePath == "" {
		c.API.BasePath = "/"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}

	if c.Speech.BaseURL == "" {
		c.Speech.BaseURL = "https://api.openai.com/v1"
	}
	if c.Speech.Model == "" {
		c.Speech.Model = "whisper-1"
	}
	if c.Speech.Language == "" {
		c.Speech.Language = "it"
	}
	if c.Speech.ResponseFormat == "" {
		c.Speech.ResponseFormat = "text"
	}
	if len(c.Speech.APIKeyEnv) == 0 {
		c.Speech.APIKeyEnv = []string{"OPENAI_API_KEY", "WHISPER_API_KEY"}
	}
	if c.Speech.MinTimeoutSeconds == 0 {
		c.Speech.MinTimeoutSeconds = 30
	}
	if c.Speech.MaxTimeoutSeconds == 0 {
		c.Speech.MaxTimeoutSeconds = 600
	}
	if c.Speech.SecondsPerMB == 0 {
		c.Speech.SecondsPerMB = 20
	}
	if c.Speech.Retry.MaxAttempts == 0 {
		c.Speech.Retry.MaxAttempts = 3
	}
	if c.Speech.Retry.InitialBackoffMs == 0 {
		c.Speech.Retry.InitialBackoffMs = 1000
	}
	if c.Speech.Retry.MaxBackoffMs == 0 {
		c.Speech.Retry.MaxBackoffMs = 8000
	}

	if c.Analysis.BaseURL == "" {
		c.Analysis.BaseURL = "https://api.openai.com/v1"
	}
	if c.Analysis.Model == "" {
		c.Analysis.Model = "gpt-4o-mini"
	}

	if c.Upload.MaxFileSizeMB == 0 {
		c.Upload.MaxFileSizeMB = 50
	}
	if c.Upload.FieldName == "" {
		c.Upload.FieldName = "file"
	}

	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Redis.Port == 0 {
		c.Redis.Port = 6379
	}

	if c.Auth.SessionTTL == 0 {
		c.Auth.SessionTTL = 3600
	}
	if c.Auth.CacheTTL == 0 {
		c.Auth.CacheTTL = 300
	}
	if c.Auth.Query == "" {
		c.Auth.Query = "SELECT user_id, role FROM api_tokens WHERE token = $1 AND (valid_until IS NULL OR valid_until > NOW())"
	}
	if c.Auth.SignIn.MaxAttempts == 0 {
		c.Auth.SignIn.MaxAttempts = 3
	}
	if c.Auth.SignIn.BackoffMs == 0 {
		c.Auth.SignIn.BackoffMs = 500
	}
	if c.Auth.SignIn.MagicLinkTTL == 0 {
		c.Auth.SignIn.MagicLinkTTL = 900
	}

	if c.Quota.DefaultPlan == "" {
		c.Quota.DefaultPlan = "free"
	}
	if len(c.Quota.Plans) == 0 {
		c.Quota.Plans = []Plan{
			{Name: "free", MonthlyMinutes: 30},
			{Name: "basic", MonthlyMinutes: 300},
			{Name: "advanced", MonthlyMinutes: 900},
			{Name: "enterprise", MonthlyMinutes: 3000},
		}
	}

	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// ApplyEnv overrides secrets and connection strings from the environment.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.URL = v
		c.Database.Enabled = true
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.Redis.URL = v
		c.Redis.Enabled = true
	}
	if v := os.Getenv("AUTH_JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("ANALYSIS_API_KEY"); v != "" {
		c.Analysis.APIKey = v
	}
}

// Validate checks the struct tags after defaults have been applied.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	for _, p := range c.Quota.Plans {
		if p.Name == c.Quota.DefaultPlan {
			return nil
		}
	}
	return fmt.Errorf("invalid configuration: default plan %q is not defined", c.Quota.DefaultPlan)
}

// SpeechAPIKey returns the configured key or the first non-empty variable
// from api_key_env. An empty result is reported per request, not at startup.
func (c *Config) SpeechAPIKey() string {
	if c.Speech.APIKey != "" {
		return c.Speech.APIKey
	}
	for _, name := range c.Speech.APIKeyEnv {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

// AnalysisAPIKey falls back to the speech key; both usually belong to the same provider.
func (c *Config) AnalysisAPIKey() string {
	if c.Analysis.APIKey != "" {
		return c.Analysis.APIKey
	}
	return c.SpeechAPIKey()
}

func (c *Config) MaxUploadBytes() int64 {
	return c.Upload.MaxFileSizeMB * megabyte
}

func (c *Config) PlanMinutes(name string) (int, bool) {
	for _, p := range c.Quota.Plans {
		if p.Name == name {
			return p.MonthlyMinutes, true
		}
	}
	return 0, false
}

func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.Auth.SessionTTL) * time.Second
}
