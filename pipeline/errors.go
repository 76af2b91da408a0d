// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

package pipeline

import (
	"errors"
	"net/http"

	"github.com/VA7DBI/scribeAPI/ingest"
	"github.com/VA7DBI/scribeAPI/quota"
	"github.com/VA7DBI/scribeAPI/speech"
)

type Kind string

const (
	KindInvalidInput     Kind = "invalid_input"
	KindQuotaExceeded    Kind = "quota_exceeded"
	KindUpstreamConfig   Kind = "upstream_config"
	KindUpstreamAPI      Kind = "upstream_api"
	KindTimeout          Kind = "timeout"
	KindUpstreamResponse Kind = "upstream_response"
	KindTransport        Kind = "transport"
	KindInternal         Kind = "internal"
)

// Error is what handlers turn into a response. Message is safe to show to
// callers; Err and Detail may carry upstream text and belong in logs.
type Error struct {
	Kind           Kind
	Status         int
	Message        string
	UpstreamStatus int
	Detail         string
	Err            error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Internal reports whether the failure is ours rather than the caller's.
func (e *Error) Internal() bool {
	return e.Status >= http.StatusInternalServerError
}

// Classify maps any pipeline failure onto the error taxonomy.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var (
		pe         *Error
		maxBytes   *http.MaxBytesError
		apiErr     *speech.UpstreamAPIError
		timeoutErr *speech.TimeoutError
		transport  *speech.TransportError
	)
	switch {
	case errors.As(err, &pe):
		return pe

	case errors.Is(err, ingest.ErrSizeLimit), errors.As(err, &maxBytes):
		return &Error{Kind: KindInvalidInput, Status: http.StatusRequestEntityTooLarge, Message: "file exceeds the maximum upload size", Err: err}

	case errors.Is(err, ingest.ErrNoBody),
		errors.Is(err, ingest.ErrInvalidContentType),
		errors.Is(err, ingest.ErrNoFile),
		errors.Is(err, ingest.ErrMalformed):
		return &Error{Kind: KindInvalidInput, Status: http.StatusBadRequest, Message: err.Error(), Err: err}

	case errors.Is(err, quota.ErrQuotaExceeded):
		return &Error{Kind: KindQuotaExceeded, Status: http.StatusForbidden, Message: err.Error(), Err: err}

	case errors.Is(err, speech.ErrMissingAPIKey):
		return &Error{Kind: KindUpstreamConfig, Status: http.StatusInternalServerError, Message: "transcription service is not configured", Err: err}

	case errors.As(err, &apiErr):
		status := apiErr.StatusCode
		if status < 400 || status > 599 {
			status = http.StatusBadGateway
		}
		return &Error{
			Kind:           KindUpstreamAPI,
			Status:         status,
			Message:        "transcription service returned an error",
			UpstreamStatus: apiErr.StatusCode,
			Detail:         apiErr.Detail,
			Err:            err,
		}

	case errors.As(err, &timeoutErr):
		return &Error{Kind: KindTimeout, Status: http.StatusInternalServerError, Message: timeoutErr.Error(), Err: err}

	case errors.Is(err, speech.ErrUnparsableResponse), errors.Is(err, speech.ErrEmptyTranscription):
		return &Error{Kind: KindUpstreamResponse, Status: http.StatusBadGateway, Message: err.Error(), Err: err}

	case errors.As(err, &transport):
		return &Error{Kind: KindTransport, Status: http.StatusInternalServerError, Message: "failed to reach transcription service", Err: err}
	}

	return &Error{Kind: KindInternal, Status: http.StatusInternalServerError, Message: "internal server error", Err: err}
}
