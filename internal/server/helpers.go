package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gemihub/gemiflow/pkg/schema"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeFlowError maps a FlowError code to an HTTP status.
func writeFlowError(w http.ResponseWriter, err error) {
	var fe *schema.FlowError
	if !errors.As(err, &fe) {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	status := http.StatusInternalServerError
	switch fe.Code {
	case schema.ErrCodeNotFound:
		status = http.StatusNotFound
	case schema.ErrCodeConflict:
		status = http.StatusConflict
	case schema.ErrCodeParse, schema.ErrCodeValidation, schema.ErrCodeUnknownNode,
		schema.ErrCodeTemplate, schema.ErrCodeExpression:
		status = http.StatusBadRequest
	}
	writeJSON(w, status, map[string]string{"error": fe.Message, "code": fe.Code})
}

// principal extracts the caller identity; empty when the header is absent.
func principal(r *http.Request) string {
	return r.Header.Get(PrincipalHeader)
}
