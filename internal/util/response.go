// response.go - HTTP response utilities for the admin surface.
package util

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

// JSONResponse writes a JSON response with the given status code and data.
func JSONResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("encoding JSON response")
	}
}
