package datasources

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"natgas_trading/internal/market"

	"github.com/go-resty/resty/v2"
)

// Source is one of the three independent signal inputs of a trading cycle.
type Source interface {
	Name() string
	Signal(ctx context.Context) (float64, error)
}

func newClient(timeout time.Duration, userAgent string) *resty.Client {
	client := resty.New()
	client.SetTimeout(timeout)
	client.SetRetryCount(2)
	client.SetRetryWaitTime(500 * time.Millisecond)
	if userAgent != "" {
		client.SetHeader("User-Agent", userAgent)
	}
	client.SetHeader("Accept", "application/json")
	return client
}

// getJSON issues a GET and decodes a 2xx JSON body into out. An empty body
// leaves out untouched.
func getJSON(ctx context.Context, client *resty.Client, url string, params map[string]string, out interface{}) error {
	resp, err := client.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get(url)
	if err != nil {
		return fmt.Errorf("GET %s: %w", url, err)
	}
	if resp.IsError() {
		return fmt.Errorf("GET %s: API error %d: %s", url, resp.StatusCode(), market.Snippet(resp.String(), 200))
	}
	body := resp.Body()
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parse response from %s: %w (body: %s)", url, err, market.Snippet(string(body), 200))
	}
	return nil
}
