package pricefeed

// http.go: cliente del feed de precios para la resolución automatizada.
// Rate limiting y retries con backoff, como los clientes HTTP del resto
// del sistema. El engine es quien aplica la ventana de frescura; aquí solo
// se valida que la lectura venga bien formada.

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/alejandrodnm/genio/internal/ports"
)

const (
	defaultRatePerSec = 5
	maxRetries        = 3
	baseRetryWait     = 500 * time.Millisecond
)

// Client es el HTTP client del feed con rate limiting y retries.
type Client struct {
	http    *http.Client
	base    string
	limiter *rate.Limiter
}

// NewClient crea un Client contra el base URL dado.
func NewClient(base string, ratePerSec float64) *Client {
	if ratePerSec <= 0 {
		ratePerSec = defaultRatePerSec
	}
	return &Client{
		http:    &http.Client{Timeout: 10 * time.Second},
		base:    base,
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), 2),
	}
}

// priceResponse es el payload del endpoint /price.
type priceResponse struct {
	Symbol      string `json:"symbol"`
	PriceCents  uint64 `json:"price_cents"`
	PublishTime int64  `json:"publish_time"` // unix seconds
}

// Latest devuelve la última lectura publicada para el símbolo.
func (c *Client) Latest(ctx context.Context, symbol string) (ports.PriceReading, error) {
	u := fmt.Sprintf("%s/price?symbol=%s", c.base, url.QueryEscape(symbol))

	var resp priceResponse
	if err := c.get(ctx, u, &resp); err != nil {
		return ports.PriceReading{}, fmt.Errorf("pricefeed.Latest: %w", err)
	}
	if resp.Symbol != symbol || resp.PriceCents == 0 || resp.PublishTime == 0 {
		return ports.PriceReading{}, fmt.Errorf("pricefeed.Latest: malformed reading for %q", symbol)
	}

	return ports.PriceReading{
		Symbol:      resp.Symbol,
		Price:       resp.PriceCents,
		PublishedAt: time.Unix(resp.PublishTime, 0).UTC(),
	}, nil
}

// get hace un GET con rate limiting y retries con backoff lineal.
func (c *Client) get(ctx context.Context, url string, out any) error {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
		} else {
			body, readErr := io.ReadAll(resp.Body)
			resp.Body.Close()
			switch {
			case readErr != nil:
				lastErr = readErr
			case resp.StatusCode == http.StatusOK:
				return json.Unmarshal(body, out)
			case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
				lastErr = fmt.Errorf("status %d", resp.StatusCode)
			default:
				return fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(baseRetryWait * time.Duration(attempt+1)):
		}
	}
	return fmt.Errorf("after %d retries: %w", maxRetries, lastErr)
}
