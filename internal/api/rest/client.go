package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"gitlab.com/nevasik7/alerting/logger"

	"zigfeed/internal/config"
)

// Client is a thin wrapper around the remote indexing API. It is a consumed
// collaborator boundary: the exchange logic behind these endpoints lives
// outside this codebase.
type Client struct {
	log     logger.Logger
	httpc   *http.Client
	baseURL string
	apiKey  string
}

func New(log logger.Logger, cfg *config.UpstreamConfig) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("upstream config is required to the rest client")
	}
	if cfg.APIBaseURL == "" {
		return nil, fmt.Errorf("api base url is required to the rest client")
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &Client{
		log:     log,
		httpc:   &http.Client{Timeout: timeout},
		baseURL: cfg.APIBaseURL,
		apiKey:  cfg.APIKey,
	}, nil
}

type tradesResponse struct {
	Success bool             `json:"success"`
	Data    []map[string]any `json:"data"`
}

type tokenResponse struct {
	Success bool `json:"success"`
	Data    struct {
		Token struct {
			Exponent   int     `json:"exponent"`
			ImageURI   string  `json:"imageUri"`
			Icon       string  `json:"icon"`
			PriceInUsd float64 `json:"priceInUsd"`
		} `json:"token"`
		Price struct {
			USD float64 `json:"usd"`
		} `json:"price"`
	} `json:"data"`
}

// TradesByToken fetches the historical trade snapshot for one token id.
// Raw items are returned unshaped; the mapper owns field coalescing.
func (c *Client) TradesByToken(ctx context.Context, tokenID string, timeframe int, unit string) ([]map[string]any, error) {
	u := fmt.Sprintf("%s/trades/%s?timeframe=%d&unit=%s",
		c.baseURL, url.PathEscape(tokenID), timeframe, url.QueryEscape(unit))

	var resp tradesResponse
	if err := c.getJSON(ctx, u, &resp); err != nil {
		return nil, err
	}

	if !resp.Success {
		return nil, fmt.Errorf("trades request for %s rejected by upstream", tokenID)
	}

	return resp.Data, nil
}

// TokenMeta resolves price, icon and decimal exponent for one denom.
func (c *Client) TokenMeta(ctx context.Context, denom string) (price float64, icon string, exponent int, err error) {
	u := fmt.Sprintf("%s/tokens/%s", c.baseURL, url.PathEscape(denom))

	var resp tokenResponse
	if err = c.getJSON(ctx, u, &resp); err != nil {
		return 0, "", 0, err
	}

	if !resp.Success {
		return 0, "", 0, fmt.Errorf("token metadata request for %s rejected by upstream", denom)
	}

	price = resp.Data.Price.USD
	if price == 0 {
		price = resp.Data.Token.PriceInUsd
	}

	icon = resp.Data.Token.ImageURI
	if icon == "" {
		icon = resp.Data.Token.Icon
	}

	return price, icon, resp.Data.Token.Exponent, nil
}

func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("upstream request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// drain so the connection can be reused
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("upstream status %d", resp.StatusCode)
	}

	if err = json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode upstream response: %w", err)
	}

	return nil
}
