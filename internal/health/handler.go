// Package health exposes the liveness probe endpoint.
package health

import (
	"encoding/json"
	"net/http"
)

// Handler responds with a static ok payload for deploy probes.
func Handler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
