// Package http serves the JSON API.
//
// This file implements the Builder Pattern for JSON responses and maps
// domain errors onto status codes.

package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"fintrack/internal/auth"
	"fintrack/internal/core"
	"fintrack/internal/interchange"
	"fintrack/internal/log"
	"fintrack/internal/remote"
	"fintrack/internal/state"
	"fintrack/internal/syncer"
)

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	headers    map[string]string
	data       any
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Data sets the value encoded as the response body.
func (b *JSONResponseBuilder) Data(v any) *JSONResponseBuilder {
	b.data = v
	return b
}

// Message sets a {"message": msg} body.
func (b *JSONResponseBuilder) Message(msg string) *JSONResponseBuilder {
	return b.Data(map[string]string{"message": msg})
}

// Error sets the standard error body.
func (b *JSONResponseBuilder) Error(code, message string) *JSONResponseBuilder {
	return b.Data(errorBody{Error: errorDetail{Code: code, Message: message}})
}

// Send writes headers, status and body. A nil body writes no content.
func (b *JSONResponseBuilder) Send(w http.ResponseWriter) error {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if b.data == nil {
		w.WriteHeader(b.statusCode)
		return nil
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	return json.NewEncoder(w).Encode(b.data)
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

// Error codes carried in error bodies.
const (
	codeValidation     = "validation"
	codeBadRequest     = "bad_request"
	codeMalformed      = "malformed_import"
	codeUnauthorized   = "unauthorized"
	codeConflict       = "conflict"
	codeNotFound       = "not_found"
	codeRemote         = "remote_unavailable"
	codeUnavailable    = "unavailable"
	codeRateLimited    = "rate_limited"
	codeInternal       = "internal"
	remoteErrorMessage = "The remote store could not be reached. Local changes are kept; try again later."
)

var (
	errBadRequest   = errors.New("bad request")
	errAuthRequired = errors.New("sign in required")
	errAuthDisabled = errors.New("authentication is not configured")
	errSyncDisabled = errors.New("remote sync is not configured")
)

var validationErrors = []error{
	core.ErrInvalidType, core.ErrInvalidAmount, core.ErrInvalidDate,
	core.ErrInvalidTime, core.ErrInvalidMonth, core.ErrEmptyID,
	core.ErrEmptyAccount, core.ErrUnknownAccount, core.ErrEmptyCategory,
	core.ErrEmptyToAccount, core.ErrSameAccount, core.ErrEmptyName,
	core.ErrNegativeBudget, core.ErrUnknownCategory, core.ErrNoteTooLong,
	core.ErrGoalTargetAmount, auth.ErrInvalidEmail, auth.ErrWeakPassword,
}

// classify maps err onto a status code and error code. Malformed imports
// wrap the validation error that rejected them and are checked first.
func classify(err error) (int, string) {
	if errors.Is(err, interchange.ErrMalformedImport) {
		return http.StatusBadRequest, codeMalformed
	}
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return http.StatusUnprocessableEntity, codeValidation
		}
	}
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, syncer.ErrInvalidMode):
		return http.StatusBadRequest, codeBadRequest
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrLinkInvalid), errors.Is(err, errAuthRequired):
		return http.StatusUnauthorized, codeUnauthorized
	case errors.Is(err, remote.ErrUserExists), errors.Is(err, state.ErrDuplicateRecord),
		errors.Is(err, core.ErrDuplicateTag):
		return http.StatusConflict, codeConflict
	case errors.Is(err, state.ErrGoalNotFound), errors.Is(err, remote.ErrNotFound):
		return http.StatusNotFound, codeNotFound
	case errors.Is(err, syncer.ErrRemote):
		return http.StatusBadGateway, codeRemote
	case errors.Is(err, errAuthDisabled), errors.Is(err, errSyncDisabled):
		return http.StatusServiceUnavailable, codeUnavailable
	}
	return http.StatusInternalServerError, codeInternal
}

// writeError sends the error body for err. Server-side failures are logged
// and their details withheld from the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	msg := err.Error()
	switch status {
	case http.StatusInternalServerError:
		log.LogError(r.Context(), log.FromContext(r.Context()), "Request failed", err,
			log.ComponentHTTP, r.Method+" "+r.URL.Path, nil)
		msg = "internal server error"
	case http.StatusBadGateway:
		log.FromContext(r.Context()).WarnContext(r.Context(), "Remote call failed",
			log.FieldPath, r.URL.Path, log.FieldError, err)
		msg = remoteErrorMessage
	}
	_ = NewJSONResponse().Status(status).Error(code, msg).Send(w)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	_ = NewJSONResponse().Status(status).Data(v).Send(w)
}
