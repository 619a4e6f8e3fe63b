package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	echo "github.com/labstack/echo/v5"
	"github.com/stretchr/testify/assert"
)

// postContext builds an echo context for a JSON POST body.
func postContext(t *testing.T, path, body string) *echo.Context {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec)
}

func TestSubmitConsultationHandler_Validation(t *testing.T) {
	// We only test request validation (returns 4xx before hitting the
	// engine). Happy-path submission is covered by e2e tests that have a
	// real engine behind the server.
	s := &Server{}

	tests := []struct {
		name    string
		body    string
		wantErr int
		errMsg  string
	}{
		{
			name:    "missing question",
			body:    `{}`,
			wantErr: http.StatusBadRequest,
			errMsg:  "question field is required",
		},
		{
			name:    "whitespace question",
			body:    `{"question": "   "}`,
			wantErr: http.StatusBadRequest,
			errMsg:  "question field is required",
		},
		{
			name:    "oversized question",
			body:    `{"question": "` + strings.Repeat("x", maxQuestionBytes+1) + `"}`,
			wantErr: http.StatusRequestEntityTooLarge,
			errMsg:  "exceeds maximum size",
		},
		{
			name:    "unknown option key",
			body:    `{"question": "Should we shard?", "options": {"max_round": 4}}`,
			wantErr: http.StatusBadRequest,
			errMsg:  "unrecognized option",
		},
		{
			name:    "option type mismatch",
			body:    `{"question": "Should we shard?", "options": {"verbose": "yes"}}`,
			wantErr: http.StatusBadRequest,
			errMsg:  "expected bool",
		},
		{
			name:    "invalid mode value",
			body:    `{"question": "Should we shard?", "options": {"mode": "committee"}}`,
			wantErr: http.StatusBadRequest,
			errMsg:  "invalid mode",
		},
		{
			name:    "invalid max_rounds value",
			body:    `{"question": "Should we shard?", "options": {"max_rounds": 3}}`,
			wantErr: http.StatusBadRequest,
			errMsg:  "max_rounds must be 1 or 4",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := postContext(t, "/api/v1/consultations", tt.body)

			err := s.submitConsultationHandler(c)
			if assert.Error(t, err) {
				he, ok := err.(*echo.HTTPError)
				if assert.True(t, ok, "expected echo.HTTPError") {
					assert.Equal(t, tt.wantErr, he.Code)
					assert.Contains(t, he.Message, tt.errMsg)
				}
			}
		})
	}
}

func TestListConsultationsHandler_Validation(t *testing.T) {
	s := &Server{}

	tests := []struct {
		name    string
		query   string
		wantErr int
		errMsg  string
	}{
		{
			name:    "invalid state",
			query:   "state=bogus",
			wantErr: http.StatusBadRequest,
			errMsg:  "invalid state",
		},
		{
			name:    "invalid mode",
			query:   "mode=committee",
			wantErr: http.StatusBadRequest,
			errMsg:  "invalid mode",
		},
		{
			name:    "invalid created_after",
			query:   "created_after=not-a-date",
			wantErr: http.StatusBadRequest,
			errMsg:  "invalid created_after",
		},
		{
			name:    "created_before wrong format (not RFC3339)",
			query:   "created_before=2026-01-01",
			wantErr: http.StatusBadRequest,
			errMsg:  "invalid created_before",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/api/v1/consultations?"+tt.query, nil)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			err := s.listConsultationsHandler(c)
			if assert.Error(t, err) {
				he, ok := err.(*echo.HTTPError)
				if assert.True(t, ok, "expected echo.HTTPError") {
					assert.Equal(t, tt.wantErr, he.Code)
					assert.Contains(t, he.Message, tt.errMsg)
				}
			}
		})
	}
}

func TestGetConsultationHandler_MissingID(t *testing.T) {
	s := &Server{}
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/consultations/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := s.getConsultationHandler(c)
	if assert.Error(t, err) {
		he, ok := err.(*echo.HTTPError)
		if assert.True(t, ok) {
			assert.Equal(t, http.StatusBadRequest, he.Code)
		}
	}
}

func TestCancelConsultationHandler_MissingID(t *testing.T) {
	s := &Server{}
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/consultations//cancel", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := s.cancelConsultationHandler(c)
	if assert.Error(t, err) {
		he, ok := err.(*echo.HTTPError)
		if assert.True(t, ok) {
			assert.Equal(t, http.StatusBadRequest, he.Code)
		}
	}
}
