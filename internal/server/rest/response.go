package rest

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/taskkeeper/internal/common"
)

func writeJSON(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, msg string, statusCode int) {
	writeJSON(w, map[string]string{"error": msg}, statusCode)
}

// writeErr maps a classified service error to its status. Unclassified
// errors are never echoed to the client.
func writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, common.ErrValidation), errors.Is(err, common.ErrConflict):
		writeError(w, common.Message(err, "invalid request"), http.StatusBadRequest)
	case errors.Is(err, common.ErrUnauthenticated):
		writeError(w, common.Message(err, "unauthenticated"), http.StatusUnauthorized)
	case errors.Is(err, common.ErrorNotFound):
		writeError(w, common.Message(err, "not found"), http.StatusNotFound)
	default:
		writeError(w, "internal error", http.StatusInternalServerError)
	}
}
