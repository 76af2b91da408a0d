// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

package speech

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

var (
	ErrMissingAPIKey      = errors.New("speech API key is not configured")
	ErrUnparsableResponse = errors.New("unable to parse transcription response")
	ErrEmptyTranscription = errors.New("transcription is empty")
)

// TimeoutError reports that an attempt hit its deadline.
type TimeoutError struct {
	Elapsed time.Duration
	Limit   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("transcription timed out after %s (limit %s); try a smaller file",
		e.Elapsed.Round(time.Millisecond), e.Limit)
}

// UpstreamAPIError is a well-formed non-2xx reply from the speech API.
type UpstreamAPIError struct {
	StatusCode int
	Detail     string
	Body       []byte
}

func (e *UpstreamAPIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("speech API returned status %d: %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("speech API returned status %d", e.StatusCode)
}

// TransportError wraps network level failures.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("speech API request failed: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

const maxDetailBytes = 512

// errorDetail extracts the message from OpenAI-style error bodies, falling
// back to the raw text when it is short enough to be useful.
func errorDetail(body []byte) string {
	var payload struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && len(payload.Error) > 0 {
		var nested struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(payload.Error, &nested); err == nil && nested.Message != "" {
			return nested.Message
		}
		var flat string
		if err := json.Unmarshal(payload.Error, &flat); err == nil && flat != "" {
			return flat
		}
	}

	text := strings.TrimSpace(string(body))
	if len(text) > maxDetailBytes {
		cut := maxDetailBytes
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}
	return text
}
