package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/longregen/reprompt/internal/adapters/http/dto"
	"github.com/longregen/reprompt/internal/adapters/http/encoding"
	"github.com/longregen/reprompt/internal/domain"
)

const maxBodyBytes = 1024 * 1024

// respond writes data as JSON or MessagePack depending on the Accept header
func respond(w http.ResponseWriter, r *http.Request, data any, status int) {
	if encoding.NegotiateContentType(r) == encoding.ContentTypeMsgpack {
		_ = encoding.WriteMsgpack(w, status, data)
		return
	}
	_ = encoding.WriteJSON(w, status, data)
}

// respondError writes an error response in the negotiated encoding
func respondError(w http.ResponseWriter, r *http.Request, errorType string, message string, status int) {
	respond(w, r, dto.NewErrorResponse(errorType, message, status), status)
}

// respondDomainError maps a domain sentinel to its HTTP status.
func respondDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrRunNotFound):
		respondError(w, r, "not_found", "Search run not found", http.StatusNotFound)
	case errors.Is(err, domain.ErrInvalidConfig),
		errors.Is(err, domain.ErrEmptyReferenceSet),
		errors.Is(err, domain.ErrUnsupportedLocation):
		respondError(w, r, "validation_error", err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrBootstrapFailure),
		errors.Is(err, domain.ErrNoCandidates):
		respondError(w, r, "search_failed", err.Error(), http.StatusUnprocessableEntity)
	default:
		respondError(w, r, "internal_error", "Internal server error", http.StatusInternalServerError)
	}
}

// parseIntQuery parses a non-negative integer query parameter with a default value
func parseIntQuery(r *http.Request, name string, defaultValue int) int {
	value := r.URL.Query().Get(name)
	if value == "" {
		return defaultValue
	}

	intValue, err := strconv.Atoi(value)
	if err != nil || intValue < 0 {
		return defaultValue
	}

	return intValue
}

// validateURLParam validates and returns a URL parameter
func validateURLParam(w http.ResponseWriter, r *http.Request, paramName, errorField string) (string, bool) {
	value := chi.URLParam(r, paramName)
	if value == "" {
		respondError(w, r, "invalid_request", errorField+" is required", http.StatusBadRequest)
		return "", false
	}
	return value, true
}

// decodeBody decodes a JSON or MessagePack request body, limited to 1MB
func decodeBody[T any](w http.ResponseWriter, r *http.Request) (*T, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer r.Body.Close()

	var req T
	var err error
	if r.Header.Get("Content-Type") == encoding.ContentTypeMsgpack {
		err = encoding.ReadMsgpack(r, &req)
	} else {
		err = json.NewDecoder(r.Body).Decode(&req)
	}
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, r, "invalid_request", "Request body too large", http.StatusRequestEntityTooLarge)
			return nil, false
		}
		respondError(w, r, "invalid_request", "Invalid request body", http.StatusBadRequest)
		return nil, false
	}
	return &req, true
}
