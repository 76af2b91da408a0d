// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

// Package pipeline runs one upload through decoding, normalization,
// admission and transcription, strictly in that order.
package pipeline

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/VA7DBI/scribeAPI/audio"
	"github.com/VA7DBI/scribeAPI/config"
	"github.com/VA7DBI/scribeAPI/ingest"
	"github.com/VA7DBI/scribeAPI/logging"
	"github.com/VA7DBI/scribeAPI/metrics"
	"github.com/VA7DBI/scribeAPI/quota"
	"github.com/VA7DBI/scribeAPI/speech"
	"github.com/rs/zerolog"
)

// Transcriber is satisfied by *speech.Client.
type Transcriber interface {
	Dispatch(ctx context.Context, req speech.Request) (*speech.Response, error)
}

// Admitter is satisfied by *quota.Guard.
type Admitter interface {
	Admit(ctx context.Context, userID string, seconds float64) (*quota.Decision, error)
}

type Input struct {
	Body          []byte
	ContentType   string
	Base64        bool
	CorrelationID string
	UserID        string
	// DeclaredDurationSeconds is used when the container cannot be probed.
	DeclaredDurationSeconds float64
	// Precheck runs after decoding and before admission. An error rejects
	// the upload as invalid input without contacting the speech API.
	Precheck func(*Result) error
}

type Result struct {
	Text            string
	CorrelationID   string
	SessionID       string
	Tag             string
	Format          audio.Format
	Filename        string
	Size            int
	DurationSeconds float64
	Fields          map[string]string
	Decision        *quota.Decision
}

type Pipeline struct {
	cfg         *config.Config
	decoder     *ingest.Decoder
	transcriber Transcriber
	admitter    Admitter
}

// New builds a pipeline. admitter may be nil to skip quota checks.
func New(cfg *config.Config, transcriber Transcriber, admitter Admitter) *Pipeline {
	return &Pipeline{
		cfg: cfg,
		decoder: &ingest.Decoder{
			MaxBytes:  cfg.MaxUploadBytes(),
			FieldName: cfg.Upload.FieldName,
		},
		transcriber: transcriber,
		admitter:    admitter,
	}
}

func (p *Pipeline) decode(in Input) (*ingest.Upload, error) {
	if !p.cfg.Upload.ManualFallback {
		return p.decoder.Decode(in.Body, in.ContentType, in.Base64)
	}
	body := in.Body
	if in.Base64 && len(body) > 0 {
		raw, err := ingest.DecodeBase64(body)
		if err != nil {
			return nil, err
		}
		body = raw
	}
	return ingest.DecodeManual(body, in.ContentType, p.cfg.MaxUploadBytes())
}

// Run processes one upload. Errors are already classified.
func (p *Pipeline) Run(ctx context.Context, in Input) (*Result, error) {
	start := time.Now()
	logger := logging.Component(*zerolog.Ctx(ctx), "pipeline")

	res, err := p.run(ctx, in, logger)
	if err != nil {
		perr := Classify(err)
		format := "unknown"
		if res != nil {
			format = res.Format.Extension
		}
		metrics.TranscriptionRequests.WithLabelValues(string(perr.Kind), format).Inc()

		ev := logger.Warn()
		if perr.Internal() {
			ev = logger.Error()
		}
		ev.Err(perr.Err).
			Str("kind", string(perr.Kind)).
			Int("status", perr.Status).
			Int("upstream_status", perr.UpstreamStatus).
			Str("detail", perr.Detail).
			Msg("Transcription failed")
		return res, perr
	}

	metrics.TranscriptionRequests.WithLabelValues("success", res.Format.Extension).Inc()
	metrics.TranscriptionDuration.WithLabelValues(res.Format.Extension).Observe(time.Since(start).Seconds())
	logger.Info().
		Str("tag", res.Tag).
		Str("format", res.Format.Extension).
		Int("size", res.Size).
		Float64("audio_seconds", res.DurationSeconds).
		Int("chars", len(res.Text)).
		Dur("elapsed", time.Since(start)).
		Msg("Transcription completed")
	return res, nil
}

func (p *Pipeline) run(ctx context.Context, in Input, logger zerolog.Logger) (*Result, error) {
	upload, err := p.decode(in)
	if err != nil {
		return nil, err
	}

	mimeType := audio.ResolveMIME(upload.MIMEType, upload.Data)
	format := audio.Normalize(upload.Filename, mimeType)
	res := &Result{
		CorrelationID: in.CorrelationID,
		SessionID:     upload.Field("session_id", "client_id"),
		Tag:           audio.Tag(upload.Data),
		Format:        format,
		Filename:      upload.Filename,
		Size:          len(upload.Data),
		Fields:        upload.Fields,
	}
	if res.SessionID == "" {
		res.SessionID = in.CorrelationID
	}
	metrics.UploadSize.WithLabelValues(format.Extension).Observe(float64(res.Size))

	res.DurationSeconds = p.duration(upload, mimeType, in.DeclaredDurationSeconds, logger)
	if res.DurationSeconds > 0 {
		metrics.AudioDuration.WithLabelValues(format.Extension).Observe(res.DurationSeconds)
	}

	if in.Precheck != nil {
		if err := in.Precheck(res); err != nil {
			return res, &Error{Kind: KindInvalidInput, Status: http.StatusBadRequest, Message: err.Error(), Err: err}
		}
	}

	if p.admitter != nil && in.UserID != "" {
		decision, err := p.admitter.Admit(ctx, in.UserID, res.DurationSeconds)
		res.Decision = decision
		if err != nil {
			return res, err
		}
	}

	resp, err := p.transcriber.Dispatch(ctx, speech.Request{
		Audio:          upload.Data,
		Format:         format,
		Tag:            res.Tag,
		Model:          p.cfg.Speech.Model,
		Language:       p.cfg.Speech.Language,
		ResponseFormat: p.cfg.Speech.ResponseFormat,
		Temperature:    p.cfg.Speech.Temperature,
		Prompt:         p.cfg.Speech.Prompt,
		CorrelationID:  in.CorrelationID,
	})
	if err != nil {
		return res, err
	}

	res.Text, err = speech.Transcript(resp)
	if err != nil {
		return res, err
	}
	return res, nil
}

// duration prefers the probed length, then the caller's figure, then the
// duration_seconds form field, and finally an estimate from the payload size
// so the quota is never checked against zero.
func (p *Pipeline) duration(upload *ingest.Upload, mimeType string, declared float64, logger zerolog.Logger) float64 {
	meta, err := audio.Probe(upload.Data, mimeType)
	if err == nil {
		return meta.Duration
	}
	if !errors.Is(err, audio.ErrUnknownDuration) {
		logger.Debug().Err(err).Msg("Audio probe failed")
	}

	if declared > 0 {
		return declared
	}
	if v := upload.Field("duration_seconds", "duration"); v != "" {
		if secs, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && secs > 0 {
			return secs
		}
	}
	est := audio.EstimateDuration(len(upload.Data))
	logger.Debug().Float64("estimated_seconds", est).Msg("Audio duration unknown, estimated from size")
	return est
}
