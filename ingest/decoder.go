// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

// Package ingest extracts the uploaded audio file and its form fields from a
// multipart/form-data body.
package ingest

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"strings"
)

var (
	ErrNoBody             = errors.New("request body is empty")
	ErrInvalidContentType = errors.New("content type must be multipart/form-data with a boundary")
	ErrNoFile             = errors.New("no file part found in form data")
	ErrSizeLimit          = errors.New("file exceeds the maximum upload size")
	ErrMalformed          = errors.New("malformed multipart body")
)

// maxFieldBytes bounds plain form values; they are ids and flags.
const maxFieldBytes = 64 * 1024

// Upload is the file extracted from a multipart body.
type Upload struct {
	Data     []byte
	Filename string
	MIMEType string
	Fields   map[string]string
}

// Field returns the first non-empty value among the given field names.
func (u *Upload) Field(names ...string) string {
	for _, n := range names {
		if v := strings.TrimSpace(u.Fields[n]); v != "" {
			return v
		}
	}
	return ""
}

// Decoder parses bodies with mime/multipart, buffering the file in memory.
type Decoder struct {
	MaxBytes  int64
	FieldName string
}

// Decode decodes body, first undoing base64 transport encoding when asked.
func (d *Decoder) Decode(body []byte, contentType string, base64Encoded bool) (*Upload, error) {
	if len(body) == 0 {
		return nil, ErrNoBody
	}
	if base64Encoded {
		raw, err := DecodeBase64(body)
		if err != nil {
			return nil, err
		}
		body = raw
	}
	return d.DecodeStream(bytes.NewReader(body), contentType)
}

// DecodeStream walks the parts of r and returns the first file-bearing part.
func (d *Decoder) DecodeStream(r io.Reader, contentType string) (*Upload, error) {
	if r == nil {
		return nil, ErrNoBody
	}
	boundary, err := Boundary(contentType)
	if err != nil {
		return nil, err
	}

	mr := multipart.NewReader(r, boundary)
	upload := &Upload{Fields: make(map[string]string)}
	found := false
	parts := 0

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			if parts == 0 {
				return nil, fmt.Errorf("%w: %v", ErrNoBody, err)
			}
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		parts++

		if !found && d.isFilePart(part) {
			data, err := readLimited(part, d.MaxBytes)
			part.Close()
			if err != nil {
				return nil, err
			}
			upload.Data = data
			upload.Filename = part.FileName()
			upload.MIMEType = part.Header.Get("Content-Type")
			found = true
			continue
		}

		if part.FileName() == "" {
			name := part.FormName()
			value, err := io.ReadAll(io.LimitReader(part, maxFieldBytes))
			if err != nil {
				part.Close()
				return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
			}
			if _, seen := upload.Fields[name]; name != "" && !seen {
				upload.Fields[name] = string(value)
			}
		}
		part.Close()
	}

	if !found {
		return nil, ErrNoFile
	}
	return upload, nil
}

func (d *Decoder) isFilePart(p *multipart.Part) bool {
	return p.FileName() != "" || (d.FieldName != "" && p.FormName() == d.FieldName)
}

// readLimited buffers r fully, failing once more than max bytes arrive.
func readLimited(r io.Reader, max int64) ([]byte, error) {
	if max <= 0 {
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return data, nil
	}

	data, err := io.ReadAll(io.LimitReader(r, max+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if int64(len(data)) > max {
		return nil, fmt.Errorf("%w (%d bytes)", ErrSizeLimit, max)
	}
	return data, nil
}

// Boundary extracts the boundary parameter of a multipart/form-data header.
func Boundary(contentType string) (string, error) {
	if strings.TrimSpace(contentType) == "" {
		return "", ErrInvalidContentType
	}
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidContentType, err)
	}
	if !strings.EqualFold(mediaType, "multipart/form-data") {
		return "", fmt.Errorf("%w: got %s", ErrInvalidContentType, mediaType)
	}
	boundary := params["boundary"]
	if boundary == "" {
		return "", fmt.Errorf("%w: missing boundary", ErrInvalidContentType)
	}
	return boundary, nil
}

// DecodeBase64 accepts padded and unpadded, standard and URL alphabets.
func DecodeBase64(body []byte) ([]byte, error) {
	text := strings.TrimSpace(string(body))
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if raw, err := enc.DecodeString(text); err == nil {
			if len(raw) == 0 {
				return nil, ErrNoBody
			}
			return raw, nil
		}
	}
	return nil, fmt.Errorf("%w: body is not valid base64", ErrMalformed)
}
