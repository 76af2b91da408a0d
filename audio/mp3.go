// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

package audio

import (
	"fmt"
	"io"

	"github.com/amanitaverna/go-mp3"
)

// MP3Format measures MPEG layer III streams.
type MP3Format struct{}

// The decoder always emits 16-bit stereo PCM, so Length is 4 bytes per sample frame.
const mp3BytesPerFrame = 4

func (f *MP3Format) Probe(r io.ReadSeeker, size int64) (Metadata, error) {
	decoder, err := mp3.NewDecoder(r)
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to create MP3 decoder: %w", err)
	}

	sampleRate := decoder.SampleRate()
	if sampleRate <= 0 {
		return Metadata{}, fmt.Errorf("MP3 decoder reported no sample rate")
	}
	duration := float64(decoder.Length()) / float64(sampleRate*mp3BytesPerFrame)

	return Metadata{
		Format:       "MP3",
		Codec:        "MP3",
		SampleRate:   sampleRate,
		Channels:     2,
		BitDepth:     16,
		Duration:     duration,
		OriginalSize: size,
		Bitrate:      bitrateKbps(size, duration),
	}, nil
}
