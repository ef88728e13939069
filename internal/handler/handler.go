// Package handler contains HTTP request handlers for the route planning API.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/shiva/freightroute/internal/service"
	"github.com/shiva/freightroute/pkg/logger"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error    string   `json:"error"`
	Message  string   `json:"message"`
	Problems []string `json:"problems,omitempty"`
}

// writeJSON is a helper that writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError maps a service error onto its HTTP status.
//
// Response codes:
//
//	400  validation_error   request body or parameters rejected
//	404  not_found          route, simulation, placement, van or load missing
//	408  timeout            gave up waiting for the route lock
//	409  invalid_state      operation not allowed in the current state
//	409  version_conflict   route changed since the caller read it
//	500  internal_error     anything else; detail stays in the log
func writeError(w http.ResponseWriter, log logger.Logger, err error) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorBody{
			Error:    "validation_error",
			Message:  err.Error(),
			Problems: verr.Problems,
		})
	case errors.Is(err, service.ErrValidation):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "validation_error", Message: err.Error()})
	case errors.Is(err, service.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not_found", Message: err.Error()})
	case errors.Is(err, service.ErrConcurrencyConflict):
		writeJSON(w, http.StatusConflict, errorBody{
			Error:   "version_conflict",
			Message: "The route was modified by another request. Reload and retry.",
		})
	case errors.Is(err, service.ErrInvalidState):
		writeJSON(w, http.StatusConflict, errorBody{Error: "invalid_state", Message: err.Error()})
	case errors.Is(err, service.ErrTimeout):
		writeJSON(w, http.StatusRequestTimeout, errorBody{
			Error:   "timeout",
			Message: "Timed out due to high contention. Please retry.",
		})
	default:
		log.Errorf("request failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{
			Error:   "internal_error",
			Message: "internal server error",
		})
	}
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: "validation_error", Message: msg})
}

// decodeJSON reads the request body into dst. With allowEmpty an empty body
// leaves dst untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) bool {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || allowEmpty && errors.Is(err, io.EOF) {
		return true
	}
	badRequest(w, "invalid JSON body: "+err.Error())
	return false
}

// pathID parses a UUID path variable.
func pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)[name])
	if err != nil {
		badRequest(w, fmt.Sprintf("invalid %s: must be a UUID", name))
		return uuid.Nil, false
	}
	return id, true
}

// queryInt parses a required integer query parameter.
func queryInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		badRequest(w, name+" is required")
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		badRequest(w, fmt.Sprintf("invalid %s: must be an integer", name))
		return 0, false
	}
	return n, true
}
