// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TranscriptionRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scribeapi_transcription_requests_total",
		Help: "Total number of transcription requests",
	}, []string{"status", "format"})

	TranscriptionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "scribeapi_transcription_duration_seconds",
		Help:    "Time spent in the ingestion pipeline, upstream call included",
		Buckets: prometheus.ExponentialBuckets(0.5, 2.0, 12), // 0.5s to ~17min
	}, []string{"format"})

	AudioDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "scribeapi_audio_duration_seconds",
		Help:    "Duration of processed audio files",
		Buckets: prometheus.ExponentialBuckets(1, 2.0, 13), // 1s to ~68min
	}, []string{"format"})

	UploadSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "scribeapi_upload_size_bytes",
		Help:    "Size of uploaded audio payloads",
		Buckets: prometheus.ExponentialBuckets(64*1024, 2.0, 12), // 64KiB to 128MiB
	}, []string{"format"})

	UpstreamAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scribeapi_speech_upstream_attempts_total",
		Help: "Attempts against the speech-to-text API by outcome",
	}, []string{"outcome"})

	AnalysisDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "scribeapi_analysis_duration_seconds",
		Help:    "Time spent generating the structured report",
		Buckets: prometheus.ExponentialBuckets(0.5, 2.0, 10),
	})

	QuotaDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scribeapi_quota_decisions_total",
		Help: "Pre-flight quota checks by decision",
	}, []string{"decision"})

	SignInAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scribeapi_signin_attempts_total",
		Help: "Sign-in flows by final state",
	}, []string{"state"})
)
