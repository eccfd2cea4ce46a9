package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/wolfman30/moving-call-relay/internal/telephony"
)

const (
	maxWebhookBody = 1 << 20
	maxAdminBody   = 64 << 10
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func jsonError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}

// decodeOptionalJSON decodes a request body into dst; an empty body leaves dst
// untouched. It writes a 400 and returns false on malformed input.
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAdminBody)).Decode(dst)
	if err != nil && !errors.Is(err, io.EOF) {
		jsonError(w, "invalid json body", http.StatusBadRequest)
		return false
	}
	return true
}

// writeResult maps a failed telephony action to 502.
func writeResult(w http.ResponseWriter, result telephony.Result) {
	status := http.StatusOK
	if !result.Success {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, result)
}
