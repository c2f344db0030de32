package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"media-manager/internal/auth"
	"media-manager/internal/logging"
	"media-manager/internal/manager"
	"media-manager/internal/mediaerr"
)

var errUnauthenticated = errors.New("unauthenticated")

// writeJSON encodes v as JSON and writes it to the response writer.
// Any encoding or write errors are logged since we typically cannot
// recover from them in an HTTP handler context.
func writeJSON(w http.ResponseWriter, v interface{}) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("failed to encode JSON response: %v", err)
	}
}

// writeJSONStatusCode writes v as JSON with the given status code.
func writeJSONStatusCode(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	writeJSON(w, v)
}

// writeJSONError writes an error response as JSON with the given status code.
func writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	writeJSONStatusCode(w, statusCode, map[string]string{"error": message})
}

// writeError maps a manager error to its status code and message. The
// underlying cause of internal errors is logged, never returned.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, errUnauthenticated) {
		writeJSONError(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if errors.Is(err, manager.ErrRebuildRunning) {
		writeJSONError(w, err.Error(), http.StatusConflict)
		return
	}
	status := mediaerr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logging.Error("%s %s: %v", r.Method, r.URL.Path, err)
	} else {
		logging.Debug("%s %s: %v", r.Method, r.URL.Path, err)
	}
	writeJSONError(w, mediaerr.Message(err), status)
}

// writeJSONStatus writes a simple status response as JSON.
func writeJSONStatus(w http.ResponseWriter, status string) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{"status": status})
}

// decodeJSON reads the request body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

// manager returns a Manager acting for the request's principal.
func (h *Handlers) manager(r *http.Request) (*manager.Manager, error) {
	p, ok := auth.FromContext(r.Context())
	if !ok {
		return nil, errUnauthenticated
	}
	return manager.New(h.svc, p, p), nil
}

// idVar parses the numeric route variable name.
func idVar(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil || id <= 0 {
		writeJSONError(w, "invalid "+name, http.StatusBadRequest)
		return 0, false
	}
	return id, true
}
