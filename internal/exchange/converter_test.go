package exchange

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

type fakeFetcher struct {
	rate Rate
	err  error
}

func (f *fakeFetcher) FetchRate(ctx context.Context, base, quote string) (Rate, error) {
	if f.err != nil {
		return Rate{}, f.err
	}
	return f.rate, nil
}

func liveRate(value string) Rate {
	return Rate{
		Base:   "USD",
		Quote:  "KRW",
		Value:  decimal.RequireFromString(value),
		AsOf:   time.Date(2025, 6, 16, 9, 0, 0, 0, time.UTC),
		Source: SourceLive,
	}
}

func TestConverterPrefersLive(t *testing.T) {
	cache := NewMemoryCache()
	conv := NewConverter(&fakeFetcher{rate: liveRate("1382.45")}, cache, decimal.NewFromInt(1300), noopLogger())

	rate := conv.Rate(context.Background(), "USD", "KRW")
	if rate.Source != SourceLive {
		t.Fatalf("expected live rate, got %s", rate.Source)
	}

	// A successful fetch must populate the cache.
	cached, ok, err := cache.GetRate(context.Background(), "USD", "KRW")
	if err != nil || !ok {
		t.Fatalf("live rate should be cached, ok=%v err=%v", ok, err)
	}
	if !cached.Value.Equal(rate.Value) {
		t.Fatalf("cached value mismatch: %s", cached.Value)
	}
}

func TestConverterFallsBackToCache(t *testing.T) {
	cache := NewMemoryCache()
	if err := cache.PutRate(context.Background(), liveRate("1375.00")); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	conv := NewConverter(&fakeFetcher{err: errors.New("service down")}, cache, decimal.NewFromInt(1300), noopLogger())
	rate := conv.Rate(context.Background(), "USD", "KRW")

	if rate.Source != SourceCached {
		t.Fatalf("expected cached rate, got %s", rate.Source)
	}
	if !rate.Value.Equal(decimal.RequireFromString("1375.00")) {
		t.Fatalf("cached value mismatch: %s", rate.Value)
	}
	if rate.AsOf.IsZero() {
		t.Fatal("cached rate must keep its original observation time")
	}
}

func TestConverterStaticFallback(t *testing.T) {
	conv := NewConverter(&fakeFetcher{err: errors.New("service down")}, NewMemoryCache(), decimal.RequireFromString("1300.0"), noopLogger())
	rate := conv.Rate(context.Background(), "USD", "KRW")

	if rate.Source != SourceStatic {
		t.Fatalf("expected static fallback, got %s", rate.Source)
	}
	if !rate.Value.Equal(decimal.RequireFromString("1300.0")) {
		t.Fatalf("static value mismatch: %s", rate.Value)
	}
	if !rate.AsOf.IsZero() {
		t.Fatal("static fallback has no observation time")
	}
}

func TestConverterNilCache(t *testing.T) {
	conv := NewConverter(&fakeFetcher{err: errors.New("service down")}, nil, decimal.NewFromInt(1300), noopLogger())
	rate := conv.Rate(context.Background(), "USD", "KRW")
	if rate.Source != SourceStatic {
		t.Fatalf("nil cache must degrade straight to static, got %s", rate.Source)
	}
}

func TestConvertAndInvert(t *testing.T) {
	rate := liveRate("1350")

	krw := rate.Convert(decimal.RequireFromString("12.34"))
	if !krw.Equal(decimal.RequireFromString("16659")) {
		t.Fatalf("12.34 * 1350 should be 16659, got %s", krw)
	}

	inv := rate.Invert()
	if inv.Base != "KRW" || inv.Quote != "USD" {
		t.Fatalf("inverted pair wrong: %s/%s", inv.Base, inv.Quote)
	}
	roundTrip := inv.Convert(krw)
	if !roundTrip.Round(6).Equal(decimal.RequireFromString("12.34")) {
		t.Fatalf("round trip should recover the original amount, got %s", roundTrip)
	}
}
