package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/voxhall/tts-api/internal/api/shared"
	"github.com/voxhall/tts-api/internal/domain"
	"github.com/voxhall/tts-api/internal/task"
)

// MapErrorToStatusCode maps internal errors to HTTP status codes without
// leaking internal error types or messages to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, domain.ErrTaskNotFound):
		return http.StatusNotFound

	case errors.Is(err, task.ErrQueueFull):
		return http.StatusTooManyRequests

	case errors.Is(err, task.ErrQueueClosed):
		return http.StatusServiceUnavailable

	case errors.Is(err, domain.ErrInvalidFinish):
		return http.StatusBadRequest

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-facing message for an
// internal error.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	switch {
	case errors.Is(err, domain.ErrTaskNotFound):
		return "Task not found"

	case errors.Is(err, task.ErrQueueFull):
		return "Task queue is full, try again later"

	case errors.Is(err, task.ErrQueueClosed):
		return "Server is shutting down"

	case errors.Is(err, domain.ErrInvalidFinish):
		return "Invalid task completion request"

	default:
		return "An unexpected error occurred"
	}
}

// HandleAPIError writes a sanitized error response for an internal error,
// logging the full (redacted) error. An empty defaultMsg falls back to the
// mapped safe message.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, defaultMsg string) {
	status := MapErrorToStatusCode(err)
	message := defaultMsg
	if message == "" {
		message = GetSafeErrorMessage(err)
	}
	shared.RespondWithErrorAndLog(w, r, status, message, err)
}

// SanitizeValidationError reduces a validator error to a user-friendly
// message without echoing submitted values.
func SanitizeValidationError(err error) string {
	errMsg := err.Error()

	if strings.Contains(errMsg, "Field validation") {
		// "Key: 'SubmitTaskRequest.Text' Error:Field validation for 'Text'
		// failed on the 'required' tag"
		parts := strings.Split(errMsg, "Error:")
		if len(parts) >= 2 {
			fieldParts := strings.Split(parts[1], "'")
			if len(fieldParts) >= 3 {
				field := fieldParts[1]
				var tag string
				if len(fieldParts) >= 5 {
					tag = fieldParts[3]
				}
				if tag != "" {
					return fmt.Sprintf("Invalid %s: %s", field, getValidationTagMessage(tag))
				}
				return fmt.Sprintf("Invalid %s", field)
			}
		}
	}

	return "Validation error"
}

func getValidationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "min":
		return "too short"
	case "max":
		return "too long"
	case "oneof":
		return "invalid value"
	default:
		return "validation failed"
	}
}
