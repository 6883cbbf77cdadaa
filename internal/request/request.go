package request

import (
	"encoding/json"
	"net/http"
)

// JSONResponse writes v as a JSON body with the given status code.
func JSONResponse(w http.ResponseWriter, v interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// JSONError writes an error message as a JSON body with the given status code.
func JSONError(w http.ResponseWriter, message string, statusCode int) {
	JSONResponse(w, map[string]string{"error": message}, statusCode)
}
