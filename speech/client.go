// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

// Package speech sends audio to an OpenAI-compatible transcription endpoint
// and extracts the transcript from whatever shape the reply takes.
package speech

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/VA7DBI/scribeAPI/audio"
	"github.com/VA7DBI/scribeAPI/config"
	"github.com/VA7DBI/scribeAPI/logging"
	"github.com/VA7DBI/scribeAPI/metrics"
	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
)

const megabyte = 1024 * 1024

// Request is one transcription call. Exactly one file is sent.
type Request struct {
	Audio          []byte
	Format         audio.Format
	Tag            string
	Model          string
	Language       string
	ResponseFormat string
	Temperature    float64
	Prompt         string
	CorrelationID  string
}

// Response is the upstream reply, read in full.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

type retryPolicy struct {
	enabled        bool
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// Client is safe for concurrent use.
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client

	minTimeout time.Duration
	maxTimeout time.Duration
	perMB      time.Duration
	retry      retryPolicy
}

// NewClient builds a client from the speech section of cfg. Deadlines are
// applied per attempt, so httpClient should not carry its own Timeout.
func NewClient(cfg *config.Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	s := cfg.Speech
	return &Client{
		endpoint:   strings.TrimRight(s.BaseURL, "/") + "/audio/transcriptions",
		apiKey:     cfg.SpeechAPIKey(),
		httpClient: httpClient,
		minTimeout: time.Duration(s.MinTimeoutSeconds) * time.Second,
		maxTimeout: time.Duration(s.MaxTimeoutSeconds) * time.Second,
		perMB:      time.Duration(s.SecondsPerMB) * time.Second,
		retry: retryPolicy{
			enabled:        s.Retry.Enabled,
			maxAttempts:    s.Retry.MaxAttempts,
			initialBackoff: time.Duration(s.Retry.InitialBackoffMs) * time.Millisecond,
			maxBackoff:     time.Duration(s.Retry.MaxBackoffMs) * time.Millisecond,
		},
	}
}

// Configured reports whether an API key is available.
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

// Timeout scales the per-attempt deadline with payload size.
func (c *Client) Timeout(size int64) time.Duration {
	mb := (size + megabyte - 1) / megabyte
	t := c.minTimeout + time.Duration(mb)*c.perMB
	if t < c.minTimeout {
		t = c.minTimeout
	}
	if c.maxTimeout > 0 && t > c.maxTimeout {
		t = c.maxTimeout
	}
	return t
}

func (c *Client) attempts() int {
	if !c.retry.enabled || c.retry.maxAttempts < 1 {
		return 1
	}
	return c.retry.maxAttempts
}

// Dispatch sends req and returns the raw 2xx reply. Transport failures and
// attempt timeouts are retried when retries are enabled; API errors are not.
// A retried call may already have been processed upstream.
func (c *Client) Dispatch(ctx context.Context, req Request) (*Response, error) {
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	body, contentType, err := encodeRequest(req)
	if err != nil {
		return nil, fmt.Errorf("failed to build transcription request: %w", err)
	}

	limit := c.Timeout(int64(len(req.Audio)))
	logger := zerolog.Ctx(ctx).With().
		Str(logging.FieldComponent, "speech").
		Str("tag", req.Tag).
		Logger()

	attempt := 0
	operation := func() (*Response, error) {
		attempt++
		resp, err := c.send(ctx, body, contentType, limit, req.CorrelationID)
		if err != nil {
			var timeout *TimeoutError
			switch {
			case ctx.Err() != nil:
				metrics.UpstreamAttempts.WithLabelValues("canceled").Inc()
				return nil, backoff.Permanent(&TransportError{Err: ctx.Err()})
			case errors.As(err, &timeout):
				metrics.UpstreamAttempts.WithLabelValues("timeout").Inc()
			default:
				metrics.UpstreamAttempts.WithLabelValues("transport_error").Inc()
			}
			return nil, err
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			metrics.UpstreamAttempts.WithLabelValues("api_error").Inc()
			return nil, backoff.Permanent(&UpstreamAPIError{
				StatusCode: resp.StatusCode,
				Detail:     errorDetail(resp.Body),
				Body:       resp.Body,
			})
		}

		metrics.UpstreamAttempts.WithLabelValues("ok").Inc()
		logger.Debug().
			Int("attempt", attempt).
			Int("status", resp.StatusCode).
			Int("bytes", len(resp.Body)).
			Msg("Transcription API replied")
		return resp, nil
	}

	tries := c.attempts()
	expo := &backoff.ExponentialBackOff{
		InitialInterval:     c.retry.initialBackoff,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         c.retry.maxBackoff,
	}

	resp, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(expo),
		backoff.WithMaxTries(uint(tries)),
		backoff.WithMaxElapsedTime(time.Duration(tries)*(limit+c.retry.maxBackoff)),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Warn().Err(err).
				Int("attempt", attempt).
				Dur("retry_in", next).
				Msg("Transcription attempt failed, retrying")
		}),
	)
	if err != nil {
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			err = permanent.Err
		}
		return nil, err
	}
	return resp, nil
}

// send performs one attempt under its own deadline. The body is read inside
// the deadline so a stalled reply also counts as a timeout.
func (c *Client) send(ctx context.Context, body []byte, contentType string, limit time.Duration, correlationID string) (*Response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()
	start := time.Now()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(&TransportError{Err: err})
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", contentType)
	if correlationID != "" {
		req.Header.Set("X-Request-ID", correlationID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.classify(ctx, attemptCtx, err, start, limit)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.classify(ctx, attemptCtx, err, start, limit)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       data,
	}, nil
}

func (c *Client) classify(parent, attemptCtx context.Context, err error, start time.Time, limit time.Duration) error {
	if parent.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		return &TimeoutError{Elapsed: time.Since(start), Limit: limit}
	}
	return &TransportError{Err: err}
}

func encodeRequest(req Request) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="file"; filename="%s"`, req.Format.Filename(req.Tag)))
	header.Set("Content-Type", req.Format.MIMEType)
	part, err := w.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(req.Audio); err != nil {
		return nil, "", err
	}

	fields := [][2]string{
		{"model", req.Model},
		{"language", req.Language},
		{"response_format", req.ResponseFormat},
		{"temperature", strconv.FormatFloat(req.Temperature, 'f', -1, 64)},
		{"prompt", req.Prompt},
	}
	for _, f := range fields {
		if f[1] == "" {
			continue
		}
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}
