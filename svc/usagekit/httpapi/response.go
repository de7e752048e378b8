package httpapi

import (
	"encoding/json"
	"net/http"
)

// Envelope is the body of every response.
type Envelope struct {
	Data  any          `json:"data,omitempty"`
	Meta  any          `json:"meta,omitempty"`
	Error *ErrorDetail `json:"error,omitempty"`
}

// ErrorDetail describes a failed request.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body Envelope) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeData(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, Envelope{Data: data})
}

func writeError(w http.ResponseWriter, apiErr Error, message string) {
	if message == "" {
		message = http.StatusText(apiErr.Status)
	}
	writeJSON(w, apiErr.Status, Envelope{Error: &ErrorDetail{Code: apiErr.Code, Message: message}})
}
