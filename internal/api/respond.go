package api

import (
	"encoding/json"
	"log"
	"net/http"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode response: %v", err)
	}
}

// writeDetail emits the error body shape the browser client expects.
func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// upstreamError hides provider failure detail from the client and logs it.
func upstreamError(w http.ResponseWriter, op string, err error) {
	log.Printf("%s: %v", op, err)
	writeDetail(w, http.StatusBadGateway, op+" failed")
}
