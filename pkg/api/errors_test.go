package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/conclave-ai/conclave/pkg/engine"
	"github.com/conclave-ai/conclave/pkg/services"
)

func TestMapServiceError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{
			name:     "validation error maps to 400",
			err:      services.NewValidationError("question", "must not be empty"),
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "wrapped not found maps to 404",
			err:      fmt.Errorf("get consultation: %w", services.ErrNotFound),
			wantCode: http.StatusNotFound,
		},
		{
			name:     "already exists maps to 409",
			err:      services.ErrAlreadyExists,
			wantCode: http.StatusConflict,
		},
		{
			name:     "unknown error maps to 500",
			err:      errors.New("connection reset"),
			wantCode: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			he := mapServiceError(tt.err)
			assert.Equal(t, tt.wantCode, he.Code)
		})
	}
}

func TestMapEngineError(t *testing.T) {
	t.Run("not active maps to 409", func(t *testing.T) {
		he := mapEngineError(fmt.Errorf("%w: abc-123", engine.ErrNotActive))
		assert.Equal(t, http.StatusConflict, he.Code)
	})

	t.Run("validation errors map to 400", func(t *testing.T) {
		he := mapEngineError(errors.New("question must not be empty"))
		assert.Equal(t, http.StatusBadRequest, he.Code)
		assert.Contains(t, he.Message, "question must not be empty")
	})
}
