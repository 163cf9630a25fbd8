package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAppError_StatusCodes(t *testing.T) {
	testCases := []struct {
		name     string
		err      *AppError
		expected int
	}{
		{name: "Config not found", err: NewConfigNotFoundError("cohere"), expected: http.StatusNotFound},
		{name: "No credentials", err: NewNoCredentialsError(), expected: http.StatusBadRequest},
		{name: "Empty input", err: NewEmptyInputError("question"), expected: http.StatusBadRequest},
		{name: "Dispatch in progress", err: NewDispatchInProgressError(), expected: http.StatusConflict},
		{name: "Unexpected", err: NewUnexpectedError(fmt.Errorf("boom")), expected: http.StatusInternalServerError},
		{name: "Provider error", err: NewProviderError("openai", "rate_limited", nil), expected: http.StatusBadGateway},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.err.StatusCode)
			assert.False(t, tc.err.Timestamp.IsZero())
		})
	}
}

func TestAppError_IsAndUnwrap(t *testing.T) {
	cause := fmt.Errorf("root cause")
	err := fmt.Errorf("wrapped: %w", NewUnexpectedError(cause))

	assert.True(t, stderrors.Is(err, cause))
	assert.True(t, stderrors.Is(NewConfigNotFoundError("x"), ErrConfigNotFound))
	assert.True(t, stderrors.Is(NewEmptyInputError("code"), ErrEmptyInput))
	assert.False(t, stderrors.Is(NewEmptyInputError("code"), ErrNoCredentials))
	assert.True(t, stderrors.Is(fmt.Errorf("ctx: %w", NewDispatchInProgressError()), ErrDispatchInProgress))
}

func TestAppError_ErrorString(t *testing.T) {
	err := NewConfigNotFoundError("cohere")
	assert.Equal(t, `CONFIG_NOT_FOUND: no configuration for provider "cohere"`, err.Error())
	assert.Equal(t, "cohere", err.Details["provider"])

	wrapped := NewUnexpectedError(fmt.Errorf("boom"))
	assert.Contains(t, wrapped.Error(), "caused by: boom")
}

func TestAsAppError(t *testing.T) {
	assert.Nil(t, AsAppError(nil))

	original := NewNoCredentialsError()
	assert.Same(t, original, AsAppError(fmt.Errorf("wrap: %w", original)))

	converted := AsAppError(fmt.Errorf("plain"))
	assert.Equal(t, ErrorTypeInternal, converted.Type)
	assert.Equal(t, http.StatusInternalServerError, converted.StatusCode)
}

func TestSendErrorAndSuccess(t *testing.T) {
	rec := httptest.NewRecorder()
	SendError(rec, NewEmptyInputError("question"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var errResp APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	assert.False(t, errResp.Success)
	require.NotNil(t, errResp.Error)
	assert.Equal(t, CodeEmptyInput, errResp.Error.Code)
	assert.Equal(t, "question must not be empty", errResp.Error.Message)

	rec = httptest.NewRecorder()
	SendSuccess(rec, map[string]string{"status": "ok"})
	assert.Equal(t, http.StatusOK, rec.Code)

	var okResp APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &okResp))
	assert.True(t, okResp.Success)
	assert.Nil(t, okResp.Error)
}

func TestErrorHandler_Notifies(t *testing.T) {
	handler := NewErrorHandler()
	var notified *AppError
	handler.SetNotificationFunction(func(e *AppError) { notified = e })

	handler.HandleError(nil)
	assert.Nil(t, notified)

	handler.HandleError(fmt.Errorf("plain failure"))
	require.NotNil(t, notified)
	assert.Equal(t, ErrorTypeInternal, notified.Type)
}
