// Package response renders the JSON wire format shared by every generated
// route. Successful responses carry the record, list, or attribute value
// directly; failures carry a single error envelope so clients can branch on
// a stable code instead of parsing messages.
package response

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// RenderJSON writes data as a JSON response with the given status code.
func RenderJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

// RenderNoContent sends a 204 No Content response.
func RenderNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}
