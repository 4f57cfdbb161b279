package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

// maxPriceIDs caps one request at a single provider chunk.
const maxPriceIDs = 100

// PriceSource is the cached batch lookup backing the prices endpoint.
type PriceSource interface {
	BatchPrices(ctx context.Context, ids []string) (map[string]float64, error)
}

// Prices serves spot prices for a comma-separated list of token IDs, going
// through the same cache the alert pipeline uses.
func Prices(src PriceSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := r.URL.Query().Get("ids")
		if raw == "" {
			http.Error(w, `{"error":"ids required"}`, http.StatusBadRequest)
			return
		}

		var ids []string
		for _, id := range strings.Split(raw, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
		if len(ids) == 0 {
			http.Error(w, `{"error":"ids required"}`, http.StatusBadRequest)
			return
		}
		if len(ids) > maxPriceIDs {
			http.Error(w, `{"error":"too many ids"}`, http.StatusBadRequest)
			return
		}

		prices, err := src.BatchPrices(r.Context(), ids)
		if err != nil {
			http.Error(w, `{"error":"price lookup failed"}`, http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(prices)
	}
}
