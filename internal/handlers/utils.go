package handlers

import (
	"net/http"

	"github.com/bytedance/sonic"

	"backup-timeline/internal/logging"
)

// writeJSONCode writes v as a JSON response with the given status code.
// Encoding and write errors are logged; the response is already committed.
func writeJSONCode(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := sonic.ConfigStd.NewEncoder(w).Encode(v); err != nil {
		logging.Error("failed to encode JSON response: %v", err)
	}
}

// writeJSONError writes an error response as JSON with the given status code.
func writeJSONError(w http.ResponseWriter, message string, code int) {
	writeJSONCode(w, code, map[string]string{"error": message})
}

// writeJSONStatus writes a simple status response as JSON.
func writeJSONStatus(w http.ResponseWriter, code int, status string) {
	writeJSONCode(w, code, map[string]string{"status": status})
}
