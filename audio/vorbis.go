// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

package audio

import (
	"fmt"
	"io"

	"github.com/jfreymuth/oggvorbis"
)

// VorbisFormat measures OGG Vorbis streams. Ogg Opus is rejected by the
// decoder and ends up with an unknown duration.
type VorbisFormat struct{}

func (f *VorbisFormat) Probe(r io.ReadSeeker, size int64) (Metadata, error) {
	decoder, err := oggvorbis.NewReader(r)
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to create Vorbis decoder: %w", err)
	}

	// Length needs a seekable source, which bytes.Reader is.
	samples := decoder.Length()
	var duration float64
	if decoder.SampleRate() > 0 {
		duration = float64(samples) / float64(decoder.SampleRate())
	}

	return Metadata{
		Format:       "OGG",
		Codec:        "Vorbis",
		SampleRate:   decoder.SampleRate(),
		Channels:     decoder.Channels(),
		Duration:     duration,
		OriginalSize: size,
		Bitrate:      bitrateKbps(size, duration),
	}, nil
}
