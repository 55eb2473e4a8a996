package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/iho/storeledger/internal/adapter/http/dto"
	"github.com/iho/storeledger/internal/domain"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, message, details string) {
	writeJSON(w, status, dto.ErrorResponse{
		Error:   message,
		Message: details,
	})
}

// writeDomainError maps err to a status and writes it with whatever detail
// the structured error carries.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	status := mapDomainError(err)
	resp := dto.ErrorResponse{Error: message, Message: err.Error()}

	var verr *dto.ValidationError
	if errors.As(err, &verr) {
		resp.Fields = verr.Fields
	}
	var berr *domain.BatchError
	if errors.As(err, &berr) {
		resp.Batch = &dto.BatchFailure{Index: berr.Index, PaymentID: berr.PaymentID}
	}
	if status == http.StatusInternalServerError {
		// internal detail stays in the logs
		resp.Message = ""
	}
	writeJSON(w, status, resp)
}

// mapDomainError maps domain errors to HTTP status codes.
func mapDomainError(err error) int {
	switch domain.Classify(err) {
	case domain.CategoryValidation:
		return http.StatusUnprocessableEntity
	case domain.CategoryConflict:
		return http.StatusConflict
	case domain.CategoryNotFound:
		return http.StatusNotFound
	case domain.CategoryForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// decodeAndValidate reads a JSON body into req and runs its validate tags.
// It writes the error response and returns false on failure.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, req any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(req); err != nil {
		if errors.Is(err, domain.ErrInvalidAmount) {
			writeDomainError(w, "invalid amount", err)
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return false
	}
	if err := dto.Validate(req); err != nil {
		writeDomainError(w, "invalid request", err)
		return false
	}
	return true
}

// actor returns the id of the user on the request context. The router
// always installs one of the auth middlewares ahead of the handlers.
func actor(r *http.Request) domain.Actor {
	if u, ok := domain.UserFromContext(r.Context()); ok {
		return domain.Actor{ID: u.ID, Role: u.Role}
	}
	return domain.Actor{}
}

// parseIntQuery parses an integer query parameter with a default value.
func parseIntQuery(r *http.Request, key string, defaultValue int) int {
	val := r.URL.Query().Get(key)
	if val == "" {
		return defaultValue
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return defaultValue
	}
	return i
}

func attachment(w http.ResponseWriter, contentType, filename string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
