package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const latestRatesPath = "/v3/latest"

// ClientOptions parameterise the currency rate service client.
type ClientOptions struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	MaxRetries int
}

// Client fetches live spot rates from a currencyapi-style service.
type Client struct {
	opts    ClientOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewClient constructs a rate service client.
func NewClient(opts ClientOptions, logger zerolog.Logger) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.currencyapi.com"
	}

	return &Client{
		opts:    opts,
		logger:  logger.With().Str("component", "rate_client").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// FetchRate retrieves the live spot rate for base→quote.
func (c *Client) FetchRate(ctx context.Context, base, quote string) (Rate, error) {
	if c.opts.APIKey == "" {
		return Rate{}, errors.New("exchange api key not configured")
	}

	var rate Rate
	operation := func() error {
		var err error
		rate, err = c.fetchOnce(ctx, base, quote)
		return err
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), retryCount(c.opts.MaxRetries)), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return Rate{}, err
	}
	return rate, nil
}

func (c *Client) fetchOnce(ctx context.Context, base, quote string) (Rate, error) {
	params := url.Values{}
	params.Set("apikey", c.opts.APIKey)
	params.Set("base_currency", base)
	params.Set("currencies", quote)

	endpoint := c.baseURL + latestRatesPath + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Rate{}, backoff.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return Rate{}, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return Rate{}, err
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return Rate{}, fmt.Errorf("rate service returned %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return Rate{}, backoff.Permanent(fmt.Errorf("rate service returned %d", resp.StatusCode))
	}

	var decoded struct {
		Meta struct {
			LastUpdatedAt string `json:"last_updated_at"`
		} `json:"meta"`
		Data map[string]struct {
			Code  string          `json:"code"`
			Value decimal.Decimal `json:"value"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return Rate{}, backoff.Permanent(fmt.Errorf("parse rate payload: %w", err))
	}

	entry, ok := decoded.Data[quote]
	if !ok {
		return Rate{}, backoff.Permanent(fmt.Errorf("rate service payload missing %s", quote))
	}
	if !entry.Value.IsPositive() {
		return Rate{}, backoff.Permanent(fmt.Errorf("rate service returned non-positive rate for %s", quote))
	}

	asOf := time.Now().UTC()
	if ts, err := time.Parse(time.RFC3339, decoded.Meta.LastUpdatedAt); err == nil {
		asOf = ts
	}

	return Rate{
		Base:   base,
		Quote:  quote,
		Value:  entry.Value,
		AsOf:   asOf,
		Source: SourceLive,
	}, nil
}

func retryCount(configured int) uint64 {
	if configured <= 0 {
		return 3
	}
	return uint64(configured)
}
