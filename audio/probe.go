// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

package audio

import (
	"bytes"
	"fmt"
	"strings"
)

// proberFor maps a MIME type to the decoder able to measure it.
func proberFor(mimeType string) Prober {
	mt := strings.ToLower(mimeType)
	switch {
	case strings.Contains(mt, "wav"):
		return &WAVFormat{}
	case strings.Contains(mt, "mpeg"), strings.Contains(mt, "mp3"):
		return &MP3Format{}
	case strings.Contains(mt, "flac"):
		return &FLACFormat{}
	case strings.Contains(mt, "ogg"):
		return &VorbisFormat{}
	case strings.Contains(mt, "aac"):
		return &AACFormat{}
	}
	return nil
}

// Probe measures the payload. webm and mp4 containers have no decoder here and
// yield ErrUnknownDuration; callers fall back to the client-reported duration.
func Probe(data []byte, mimeType string) (Metadata, error) {
	p := proberFor(mimeType)
	if p == nil {
		return Metadata{}, fmt.Errorf("%w: no decoder for %q", ErrUnknownDuration, mimeType)
	}

	meta, err := p.Probe(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Metadata{}, fmt.Errorf("%w: %v", ErrUnknownDuration, err)
	}
	if meta.Duration <= 0 {
		return meta, fmt.Errorf("%w: decoder reported %.2fs", ErrUnknownDuration, meta.Duration)
	}
	return meta, nil
}
