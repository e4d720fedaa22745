package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baechuer/content-platform/internal/domain"
)

func TestErr(t *testing.T) {
	t.Run("maps_domain_error_to_correct_status", func(t *testing.T) {
		tests := []struct {
			name       string
			err        error
			wantStatus int
			wantCode   string
		}{
			{name: "not_found", err: domain.ErrNotFound("post missing"), wantStatus: http.StatusNotFound, wantCode: "not_found"},
			{name: "validation", err: domain.ErrValidation("content is required"), wantStatus: http.StatusBadRequest, wantCode: "validation_error"},
			{name: "forbidden", err: domain.ErrForbidden("not the owner"), wantStatus: http.StatusForbidden, wantCode: "forbidden"},
			{name: "generic_error", err: errors.New("db crash"), wantStatus: http.StatusInternalServerError, wantCode: "internal_error"},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				rr := httptest.NewRecorder()
				req := httptest.NewRequest(http.MethodGet, "http://example.com", nil)
				req.Header.Set("X-Request-Id", "req-1")

				Err(rr, req, tt.err)

				assert.Equal(t, tt.wantStatus, rr.Code)
				var body ErrorBody
				require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
				assert.Equal(t, tt.wantCode, body.Error.Code)
				assert.Equal(t, "req-1", body.Error.RequestID)
			})
		}
	})
}

func TestData(t *testing.T) {
	rr := httptest.NewRecorder()
	Data(rr, http.StatusOK, map[string]string{"id": "123"})

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json; charset=utf-8", rr.Header().Get("Content-Type"))

	var env Envelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	assert.Equal(t, map[string]any{"id": "123"}, env.Data)
}

func TestDecodeJSON(t *testing.T) {
	var dst struct {
		Content string `json:"content"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"content":"hi"}`))
	require.NoError(t, DecodeJSON(req, &dst))
	assert.Equal(t, "hi", dst.Content)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{bad`))
	err := DecodeJSON(req, &dst)
	var ae *domain.AppError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, domain.CodeValidation, ae.Code)
}
