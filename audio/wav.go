// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

package audio

import (
	"fmt"
	"io"

	"github.com/go-audio/wav"
)

type WAVFormat struct{}

func (f *WAVFormat) Probe(r io.ReadSeeker, size int64) (Metadata, error) {
	decoder := wav.NewDecoder(r)
	if !decoder.IsValidFile() {
		return Metadata{}, fmt.Errorf("invalid WAV file")
	}

	format := decoder.Format()
	// Duration() counts header bytes too; measure the data chunk alone.
	if err := decoder.FwdToPCM(); err != nil {
		return Metadata{}, fmt.Errorf("failed to locate PCM data: %w", err)
	}
	if decoder.AvgBytesPerSec == 0 {
		return Metadata{}, fmt.Errorf("WAV header reports no byte rate")
	}
	seconds := float64(decoder.PCMLen()) / float64(decoder.AvgBytesPerSec)

	return Metadata{
		Format:       "WAV",
		Codec:        "PCM",
		SampleRate:   format.SampleRate,
		Channels:     format.NumChannels,
		BitDepth:     int(decoder.BitDepth),
		Duration:     seconds,
		OriginalSize: size,
		Bitrate:      bitrateKbps(size, seconds),
	}, nil
}
