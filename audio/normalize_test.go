// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		mime     string
		want     Format
	}{
		{"MP3ByMime", "upload.bin", "audio/mpeg", FormatMP3},
		{"MP3ByMimeAlias", "", "audio/mp3", FormatMP3},
		{"WAVByMime", "", "audio/x-wav", FormatWAV},
		{"WaveByMime", "", "audio/wave", FormatWAV},
		{"M4AByMime", "", "audio/x-m4a", FormatM4A},
		{"MP4ByMime", "", "audio/mp4", FormatM4A},
		{"WebMByMime", "rec.webm", "audio/webm;codecs=opus", FormatWebM},
		{"MP3ByExtension", "Visit.MP3", "", FormatMP3},
		{"WAVByExtension", "visit.wav", "application/octet-stream", FormatWAV},
		{"M4AByExtension", "visit.M4a", "", FormatM4A},
		{"WebMByExtension", "visit.webm", "", FormatWebM},
		{"MimeWinsOverExtension", "visit.wav", "audio/mpeg", FormatMP3},
		{"UnknownDefaultsToWebM", "notes.txt", "text/plain", FormatWebM},
		{"EmptyDefaultsToWebM", "", "", FormatWebM},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.filename, tt.mime))
		})
	}
}

func TestTag(t *testing.T) {
	a := []byte("consultation audio payload")
	b := []byte("consultation audio payload!")

	tag := Tag(a)
	assert.Len(t, tag, 8)
	assert.Regexp(t, "^[0-9a-f]{8}$", tag)
	assert.Equal(t, tag, Tag(append([]byte(nil), a...)), "identical bytes must give identical tags")
	assert.NotEqual(t, tag, Tag(b))

	// md5("") = d41d8cd98f00b204e9800998ecf8427e
	assert.Equal(t, "d41d8cd9", Tag(nil))
}

func TestFormatFilename(t *testing.T) {
	assert.Equal(t, "audio_deadbeef.mp3", FormatMP3.Filename("deadbeef"))
	assert.Equal(t, "audio_0a1b2c3d.webm", FormatWebM.Filename("0a1b2c3d"))
}

func TestResolveMIME(t *testing.T) {
	wav := buildWAV(t, 8000, 1, 800)

	assert.Equal(t, "audio/mpeg", ResolveMIME("audio/mpeg", wav), "declared type is kept")
	assert.Contains(t, ResolveMIME("", wav), "wav")
	assert.Contains(t, ResolveMIME("application/octet-stream", wav), "wav")
}
