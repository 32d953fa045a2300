package exchange

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// RateFetcher is the live-rate dependency of the converter.
type RateFetcher interface {
	FetchRate(ctx context.Context, base, quote string) (Rate, error)
}

// Converter resolves exchange rates with graceful degradation: a live fetch,
// then the last successfully observed rate for the pair, then the
// operator-configured static rate. It never fails a run on its own; the
// Source tag on the returned rate carries the degradation downstream.
type Converter struct {
	fetcher    RateFetcher
	cache      RateCache
	staticRate decimal.Decimal
	logger     zerolog.Logger
}

// NewConverter constructs a converter. cache may be nil for cold runs.
func NewConverter(fetcher RateFetcher, cache RateCache, staticRate decimal.Decimal, logger zerolog.Logger) *Converter {
	return &Converter{
		fetcher:    fetcher,
		cache:      cache,
		staticRate: staticRate,
		logger:     logger.With().Str("component", "currency_converter").Logger(),
	}
}

// Rate resolves a usable rate for base→quote.
func (c *Converter) Rate(ctx context.Context, base, quote string) Rate {
	live, err := c.fetcher.FetchRate(ctx, base, quote)
	if err == nil {
		if c.cache != nil {
			if cacheErr := c.cache.PutRate(ctx, live); cacheErr != nil {
				c.logger.Warn().Err(cacheErr).Msg("failed to cache live rate")
			}
		}
		return live
	}

	c.logger.Warn().Err(err).Str("pair", base+"/"+quote).Msg("live rate unavailable; degrading")

	if c.cache != nil {
		cached, ok, cacheErr := c.cache.GetRate(ctx, base, quote)
		if cacheErr != nil {
			c.logger.Warn().Err(cacheErr).Msg("rate cache lookup failed")
		} else if ok {
			cached.Source = SourceCached
			c.logger.Info().
				Str("pair", base+"/"+quote).
				Str("rate", cached.Value.String()).
				Time("as_of", cached.AsOf).
				Msg("using cached rate")
			return cached
		}
	}

	c.logger.Warn().
		Str("pair", base+"/"+quote).
		Str("rate", c.staticRate.String()).
		Msg("no cached rate; using static fallback")

	return Rate{
		Base:   base,
		Quote:  quote,
		Value:  c.staticRate,
		AsOf:   time.Time{},
		Source: SourceStatic,
	}
}

var _ RateProvider = (*Converter)(nil)

// MemoryCache is the process-local last-known-rate store. It survives warm
// invocations within one process and nothing more.
type MemoryCache struct {
	mu    sync.RWMutex
	rates map[string]Rate
}

// NewMemoryCache constructs an empty in-memory rate cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{rates: make(map[string]Rate)}
}

// GetRate returns the last stored rate for the pair.
func (m *MemoryCache) GetRate(_ context.Context, base, quote string) (Rate, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rate, ok := m.rates[base+"/"+quote]
	return rate, ok, nil
}

// PutRate stores the rate, replacing any previous observation for the pair.
func (m *MemoryCache) PutRate(_ context.Context, rate Rate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rates[rate.Base+"/"+rate.Quote] = rate
	return nil
}

var _ RateCache = (*MemoryCache)(nil)
