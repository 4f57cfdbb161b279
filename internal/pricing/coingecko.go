package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// CoinGecko fetches current prices from the CoinGecko public API. The
// /simple/price endpoint accepts a comma-separated ID list; callers are
// responsible for keeping that list within the provider's batch limit.
type CoinGecko struct {
	client  *http.Client
	baseURL string
}

func NewCoinGecko(baseURL string) *CoinGecko {
	return &CoinGecko{
		client:  &http.Client{Timeout: 15 * time.Second},
		baseURL: baseURL,
	}
}

// SimplePrices returns USD prices for the given token IDs. IDs unknown to
// the provider are simply absent from the result.
func (c *CoinGecko) SimplePrices(ctx context.Context, ids []string) (map[string]float64, error) {
	if len(ids) == 0 {
		return map[string]float64{}, nil
	}

	u := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=usd",
		c.baseURL, url.QueryEscape(strings.Join(ids, ",")))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create price request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("price API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("price API status: %d", resp.StatusCode)
	}

	var body map[string]map[string]float64
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode price response: %w", err)
	}

	prices := make(map[string]float64, len(body))
	for id, quotes := range body {
		if usd, ok := quotes["usd"]; ok {
			prices[id] = usd
		}
	}
	return prices, nil
}
