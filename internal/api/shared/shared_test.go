package shared

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTraceIDRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := SetTraceID(context.Background())
	traceID := GetTraceID(ctx)
	require.NotEmpty(t, traceID)
	assert.Len(t, traceID, TraceIDLength*2)

	// Distinct per context.
	other := GetTraceID(SetTraceID(context.Background()))
	assert.NotEqual(t, traceID, other)
}

func TestGetTraceIDMissing(t *testing.T) {
	t.Parallel()
	assert.Empty(t, GetTraceID(context.Background()))
}

func TestRespondWithError(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
	req = req.WithContext(SetTraceID(req.Context()))
	rr := httptest.NewRecorder()

	RespondWithError(rr, req, http.StatusNotFound, "Task not found")

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "Task not found", body.Error)
	assert.Equal(t, GetTraceID(req.Context()), body.TraceID)
}

func TestRespondWithErrorAndLogHidesRawError(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodPost, "/api/tasks", nil)
	rr := httptest.NewRecorder()

	RespondWithErrorAndLog(rr, req, http.StatusInternalServerError,
		"Task processing failed",
		assert.AnError)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Contains(t, rr.Body.String(), "Task processing failed")
	assert.NotContains(t, rr.Body.String(), assert.AnError.Error())
}

func TestDecodeJSON(t *testing.T) {
	t.Parallel()

	type payload struct {
		Text string `json:"text"`
	}

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"text":"hello"}`))
	var p payload
	require.NoError(t, DecodeJSON(req, &p))
	assert.Equal(t, "hello", p.Text)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{broken`))
	assert.Error(t, DecodeJSON(req, &p))
}

func TestValidateRequest(t *testing.T) {
	t.Parallel()

	type payload struct {
		Text string `validate:"required"`
	}

	assert.Error(t, ValidateRequest(payload{}))
	assert.NoError(t, ValidateRequest(payload{Text: "hello"}))
}
