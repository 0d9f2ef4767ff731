// ABOUTME: Deadline-aware HTTP client for the third-party exchange API.
// ABOUTME: Credentials are supplied per request and never retained or logged.

package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/fortunamind/persistent-gateway/internal/auth"
)

// Exchange errors.
var (
	ErrUnavailable = errors.New("exchange unavailable")
	ErrBadResponse = errors.New("exchange returned an unexpected response")
)

// callTimeout bounds any single upstream call.
const callTimeout = 10 * time.Second

// Client talks to the exchange API. The exchange is opaque: the gateway only
// forwards credentials and relays responses.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a Client for the exchange at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http: &http.Client{
			Timeout: callTimeout,
		},
	}
}

// Price is one symbol's spot price.
type Price struct {
	Symbol   string `json:"symbol"`
	Price    string `json:"price"`
	Currency string `json:"currency"`
	AsOf     string `json:"as_of"`
}

// Holding is one position in a portfolio.
type Holding struct {
	Symbol   string `json:"symbol"`
	Quantity string `json:"quantity"`
	Value    string `json:"value"`
}

// Portfolio is an account's holdings.
type Portfolio struct {
	Holdings   []Holding `json:"holdings"`
	TotalValue string    `json:"total_value"`
	Currency   string    `json:"currency"`
}

// GetPrice fetches the spot price of a symbol. Prices are public on most
// exchanges but credentials are still forwarded when present, since some
// venues rate-limit anonymous access harder.
func (c *Client) GetPrice(ctx context.Context, creds auth.UpstreamCredentials, symbol string) (*Price, error) {
	var price Price
	endpoint := "/v2/prices/" + url.PathEscape(symbol) + "/spot"
	if err := c.get(ctx, creds, endpoint, &price); err != nil {
		return nil, err
	}
	if price.Symbol == "" {
		price.Symbol = symbol
	}
	return &price, nil
}

// GetPortfolio fetches the account portfolio. Requires credentials.
func (c *Client) GetPortfolio(ctx context.Context, creds auth.UpstreamCredentials) (*Portfolio, error) {
	if creds.Empty() {
		return nil, errors.New("portfolio access requires exchange credentials")
	}
	var portfolio Portfolio
	if err := c.get(ctx, creds, "/v2/accounts/portfolio", &portfolio); err != nil {
		return nil, err
	}
	return &portfolio, nil
}

// get performs one GET with the per-call deadline and decodes the JSON body.
func (c *Client) get(ctx context.Context, creds auth.UpstreamCredentials, path string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("building exchange request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if !creds.Empty() {
		req.Header.Set("X-Api-Key", creds.APIKey)
		req.Header.Set("X-Api-Secret", creds.APISecret)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return context.DeadlineExceeded
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("reading exchange response: %w", err)
	}

	switch {
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		return fmt.Errorf("%w: status %d", ErrBadResponse, resp.StatusCode)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	return nil
}
