// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

package audio

import (
	"crypto/md5"
	"encoding/hex"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Format is the canonical content type and extension forwarded upstream.
type Format struct {
	MIMEType  string `json:"mime_type"`
	Extension string `json:"extension"`
}

var (
	FormatMP3  = Format{MIMEType: "audio/mpeg", Extension: "mp3"}
	FormatWAV  = Format{MIMEType: "audio/wav", Extension: "wav"}
	FormatM4A  = Format{MIMEType: "audio/mp4", Extension: "m4a"}
	FormatWebM = Format{MIMEType: "audio/webm", Extension: "webm"}
)

// Normalize picks the canonical format from the sniffed MIME type, then the
// filename suffix, and defaults to webm. It never fails.
func Normalize(filename, sniffedMIME string) Format {
	mt := strings.ToLower(sniffedMIME)
	switch {
	case strings.Contains(mt, "mp3"), strings.Contains(mt, "mpeg"):
		return FormatMP3
	case strings.Contains(mt, "wav"):
		return FormatWAV
	case strings.Contains(mt, "m4a"), strings.Contains(mt, "mp4"):
		return FormatM4A
	}

	name := strings.ToLower(filename)
	switch {
	case strings.HasSuffix(name, ".mp3"):
		return FormatMP3
	case strings.HasSuffix(name, ".wav"):
		return FormatWAV
	case strings.HasSuffix(name, ".m4a"):
		return FormatM4A
	}
	return FormatWebM
}

// Tag returns the first 8 hex characters of the MD5 digest of data. It only
// correlates logs and filenames; collisions are expected and harmless.
func Tag(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])[:8]
}

// Sniff detects the MIME type from the payload bytes.
func Sniff(data []byte) string {
	return mimetype.Detect(data).String()
}

// ResolveMIME keeps a declared part type unless it is missing or generic.
func ResolveMIME(declared string, data []byte) string {
	d := strings.ToLower(strings.TrimSpace(declared))
	if d == "" || strings.HasPrefix(d, "application/octet-stream") {
		return Sniff(data)
	}
	return declared
}

// Filename builds the upstream filename audio_<tag>.<ext>.
func (f Format) Filename(tag string) string {
	return "audio_" + tag + "." + f.Extension
}
