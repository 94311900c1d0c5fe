package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"fintrack/internal/auth"
	"fintrack/internal/core"
	"fintrack/internal/interchange"
	"fintrack/internal/remote"
	"fintrack/internal/state"
	"fintrack/internal/syncer"
)

func TestJSONResponseBuilder(t *testing.T) {
	rec := httptest.NewRecorder()
	err := NewJSONResponse().
		Status(http.StatusCreated).
		Header("X-Test", "1").
		Data(map[string]int{"n": 2}).
		Send(rec)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusCreated || rec.Header().Get("X-Test") != "1" {
		t.Fatalf("status %d headers %v", rec.Code, rec.Header())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("content type = %q", ct)
	}
	var got map[string]int
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil || got["n"] != 2 {
		t.Fatalf("body = %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	_ = NewJSONResponse().Status(http.StatusNoContent).Send(rec)
	if rec.Code != http.StatusNoContent || rec.Body.Len() != 0 {
		t.Errorf("empty response = %d %q", rec.Code, rec.Body.String())
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{core.ErrInvalidAmount, http.StatusUnprocessableEntity, codeValidation},
		{fmt.Errorf("wrapped: %w", core.ErrSameAccount), http.StatusUnprocessableEntity, codeValidation},
		{auth.ErrWeakPassword, http.StatusUnprocessableEntity, codeValidation},
		{fmt.Errorf("%w: bad", interchange.ErrMalformedImport), http.StatusBadRequest, codeMalformed},
		{errBadRequest, http.StatusBadRequest, codeBadRequest},
		{syncer.ErrInvalidMode, http.StatusBadRequest, codeBadRequest},
		{auth.ErrInvalidToken, http.StatusUnauthorized, codeUnauthorized},
		{remote.ErrLinkInvalid, http.StatusUnauthorized, codeUnauthorized},
		{remote.ErrUserExists, http.StatusConflict, codeConflict},
		{state.ErrDuplicateRecord, http.StatusConflict, codeConflict},
		{state.ErrGoalNotFound, http.StatusNotFound, codeNotFound},
		{fmt.Errorf("%w: push: %w", syncer.ErrRemote, errors.New("dial tcp")), http.StatusBadGateway, codeRemote},
		{errSyncDisabled, http.StatusServiceUnavailable, codeUnavailable},
		{errors.New("disk on fire"), http.StatusInternalServerError, codeInternal},
	}
	for _, tt := range tests {
		status, code := classify(tt.err)
		if status != tt.status || code != tt.code {
			t.Errorf("classify(%v) = %d %s, want %d %s", tt.err, status, code, tt.status, tt.code)
		}
	}
}

func TestWriteError_HidesInternalDetails(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{errors.New("pq: password authentication failed"), "internal server error"},
		{fmt.Errorf("%w: fetch: %w", syncer.ErrRemote, errors.New("timeout")), remoteErrorMessage},
		{core.ErrEmptyCategory, core.ErrEmptyCategory.Error()},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		writeError(rec, httptest.NewRequest(http.MethodGet, "/", nil), tt.err)
		var body errorBody
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatal(err)
		}
		if body.Error.Message != tt.want {
			t.Errorf("message = %q, want %q", body.Error.Message, tt.want)
		}
	}
}
