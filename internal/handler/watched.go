package handler

import (
	"encoding/json"
	"net/http"

	"github.com/cryptofolio/tp-monitor/internal/alert"
)

// Watched exposes the current watch list, mainly for operational debugging:
// "why is this token (not) being checked?"
func Watched(reg *alert.Registry) http.HandlerFunc {
	type response struct {
		TokenIDs []string `json:"token_ids"`
		Count    int      `json:"count"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		ids := reg.WatchedTokenIDs(r.Context())
		if ids == nil {
			ids = []string{}
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response{TokenIDs: ids, Count: len(ids)})
	}
}
