package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/voxhall/tts-api/internal/api/shared"
)

// getPathUUID extracts and parses a UUID path parameter. On failure it
// writes a 400 response and returns false.
func getPathUUID(w http.ResponseWriter, r *http.Request, paramName string) (uuid.UUID, bool) {
	pathParam := chi.URLParam(r, paramName)
	if pathParam == "" {
		shared.RespondWithError(w, r, http.StatusBadRequest,
			fmt.Sprintf("Missing %s path parameter", paramName))
		return uuid.Nil, false
	}

	id, err := uuid.Parse(pathParam)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest,
			fmt.Sprintf("Invalid %s format", paramName))
		return uuid.Nil, false
	}

	return id, true
}
