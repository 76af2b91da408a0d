// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

// Package audio classifies uploaded audio: canonical format for the speech
// API, a short traceability tag, sniffed MIME type and measured duration.
package audio

import (
	"errors"
	"io"
)

// ErrUnknownDuration is returned by Probe for containers it cannot measure.
var ErrUnknownDuration = errors.New("audio duration could not be determined")

// Metadata contains information about an uploaded audio payload.
type Metadata struct {
	Format       string  `json:"format"`
	Codec        string  `json:"codec"`
	SampleRate   int     `json:"sample_rate"`
	Channels     int     `json:"channels"`
	BitDepth     int     `json:"bit_depth,omitempty"`
	Duration     float64 `json:"duration_seconds"`
	OriginalSize int64   `json:"original_size_bytes"`
	Bitrate      int     `json:"bitrate_kbps,omitempty"`
}

// Prober reads metadata from an in-memory payload.
type Prober interface {
	Probe(r io.ReadSeeker, size int64) (Metadata, error)
}

// estimateKbps is the bitrate assumed for containers Probe cannot measure.
// Browser Opus recordings rarely exceed it, so estimates err long.
const estimateKbps = 128

// EstimateDuration guesses the length of size bytes of compressed audio.
func EstimateDuration(size int) float64 {
	if size <= 0 {
		return 0
	}
	return float64(size) * 8 / (estimateKbps * 1000)
}

func bitrateKbps(size int64, seconds float64) int {
	if seconds <= 0 {
		return 0
	}
	return int(float64(size*8) / seconds / 1000)
}
