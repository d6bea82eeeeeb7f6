//
//
package plcsim

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// errorBody is the error shape the dashboard backend answers with.
type errorBody struct {
	Detail string `json:"detail"`
}

// writeJSON writes v as a JSON response.
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		fmt.Fprintf(w, "Internal server error: %v", err)
	}
}

// writeDetail writes an error response carrying detail.
func writeDetail(w http.ResponseWriter, statusCode int, detail string) {
	writeJSON(w, statusCode, errorBody{Detail: detail})
}
