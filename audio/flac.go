// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

package audio

import (
	"fmt"
	"io"

	"github.com/mewkiz/flac"
)

// FLACFormat reads StreamInfo without decoding any frames.
type FLACFormat struct{}

func (f *FLACFormat) Probe(r io.ReadSeeker, size int64) (Metadata, error) {
	stream, err := flac.New(r)
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to parse FLAC stream: %w", err)
	}

	info := stream.Info
	if info == nil {
		return Metadata{}, fmt.Errorf("no StreamInfo found in FLAC stream")
	}

	var duration float64
	if info.SampleRate > 0 {
		duration = float64(info.NSamples) / float64(info.SampleRate)
	}

	return Metadata{
		Format:       "FLAC",
		Codec:        "FLAC",
		SampleRate:   int(info.SampleRate),
		Channels:     int(info.NChannels),
		BitDepth:     int(info.BitsPerSample),
		Duration:     duration,
		OriginalSize: size,
		Bitrate:      bitrateKbps(size, duration),
	}, nil
}
