// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

package ingest

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
)

var (
	boundaryRe    = regexp.MustCompile(`(?i)boundary=(?:"([^"]+)"|([^;\s]+))`)
	filenameRe    = regexp.MustCompile(`(?i)filename="([^"]*)"`)
	partTypeRe    = regexp.MustCompile(`(?im)^content-type:\s*([^\r\n]+)`)
	fieldNameRe   = regexp.MustCompile(`(?i)content-disposition:\s*form-data;\s*name="([^"]+)"`)
	headerBodySep = []byte("\r\n\r\n")
	crlf          = []byte("\r\n")
)

// DecodeManual is the degraded decoder used when the multipart library is
// disabled. It scans bytes for the file marker instead of framing parts, so
// it is wrong for nested multipart bodies and for payloads that happen to
// contain the boundary string.
func DecodeManual(body []byte, contentType string, maxBytes int64) (*Upload, error) {
	if len(body) == 0 {
		return nil, ErrNoBody
	}
	boundary := ManualBoundary(contentType)
	if boundary == "" {
		return nil, ErrInvalidContentType
	}
	delim := []byte("--" + boundary)

	marker := bytes.Index(body, []byte(`Content-Disposition: form-data; name="file"`))
	if marker < 0 {
		return nil, ErrNoFile
	}

	sep := bytes.Index(body[marker:], headerBodySep)
	if sep < 0 {
		return nil, fmt.Errorf("%w: file part has no header terminator", ErrMalformed)
	}
	header := body[marker : marker+sep]
	start := marker + sep + len(headerBodySep)

	next := bytes.Index(body[start:], delim)
	if next < 0 {
		return nil, fmt.Errorf("%w: file part is not terminated by a boundary", ErrMalformed)
	}
	payload := body[start : start+next]
	payload = bytes.TrimSuffix(payload, crlf)

	if maxBytes > 0 && int64(len(payload)) > maxBytes {
		return nil, fmt.Errorf("%w (%d bytes)", ErrSizeLimit, maxBytes)
	}

	upload := &Upload{
		Data:   bytes.Clone(payload),
		Fields: manualFields(body, delim),
	}
	if m := filenameRe.FindSubmatch(header); m != nil {
		upload.Filename = string(m[1])
	}
	if m := partTypeRe.FindSubmatch(header); m != nil {
		upload.MIMEType = strings.TrimSpace(string(m[1]))
	}
	return upload, nil
}

// ManualBoundary pulls the boundary out of a Content-Type header.
func ManualBoundary(contentType string) string {
	if !strings.Contains(strings.ToLower(contentType), "multipart/form-data") {
		return ""
	}
	m := boundaryRe.FindStringSubmatch(contentType)
	if m == nil {
		return ""
	}
	if m[1] != "" {
		return m[1]
	}
	return m[2]
}

// manualFields collects parts that carry no filename.
func manualFields(body, delim []byte) map[string]string {
	fields := make(map[string]string)
	for _, chunk := range bytes.Split(body, delim) {
		sep := bytes.Index(chunk, headerBodySep)
		if sep < 0 {
			continue
		}
		header := chunk[:sep]
		if filenameRe.Match(header) {
			continue
		}
		m := fieldNameRe.FindSubmatch(header)
		if m == nil {
			continue
		}
		name := string(m[1])
		if _, seen := fields[name]; seen || name == "file" {
			continue
		}
		value := bytes.TrimSuffix(chunk[sep+len(headerBodySep):], crlf)
		if len(value) > maxFieldBytes {
			value = value[:maxFieldBytes]
		}
		fields[name] = string(value)
	}
	return fields
}
