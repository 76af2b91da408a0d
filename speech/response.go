// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

package speech

import (
	"bytes"
	"encoding/json"
	"mime"
	"strings"
	"unicode/utf8"
)

// Transcript extracts the transcript from a text/plain or JSON reply. When
// the declared content type does not match the body, the other parse is
// tried before giving up. Text is returned untrimmed.
func Transcript(resp *Response) (string, error) {
	if resp == nil || !utf8.Valid(resp.Body) {
		return "", ErrUnparsableResponse
	}

	body := resp.Body
	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	shaped := jsonShaped(body)

	var (
		text string
		err  error
	)
	switch {
	case mediaType == "application/json" || strings.HasSuffix(mediaType, "+json"):
		text, err = fromJSON(body)
		if err != nil && !shaped {
			text, err = string(body), nil
		}
	case mediaType == "text/plain":
		if shaped {
			text, err = fromJSON(body)
		} else {
			text = string(body)
		}
	default:
		if shaped {
			text, err = fromJSON(body)
		} else {
			text = string(body)
		}
	}
	if err != nil {
		return "", err
	}

	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyTranscription
	}
	return text, nil
}

// jsonShaped reports whether body opens like a JSON object: a brace followed
// by a key or by the closing brace. Truncated objects count, so they fail to
// parse instead of passing as text; prose in braces does not.
func jsonShaped(body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return false
	}
	rest := bytes.TrimSpace(trimmed[1:])
	return len(rest) == 0 || rest[0] == '"' || rest[0] == '}'
}

// fromJSON reads "text", then "result".
func fromJSON(body []byte) (string, error) {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", ErrUnparsableResponse
	}
	for _, key := range []string{"text", "result"} {
		raw, ok := payload[key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", ErrUnparsableResponse
		}
		return s, nil
	}
	return "", ErrUnparsableResponse
}
