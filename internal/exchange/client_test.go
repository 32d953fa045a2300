package exchange

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func clientFor(t *testing.T, handler http.HandlerFunc) (*Client, func()) {
	t.Helper()
	srv := httptest.NewServer(handler)
	client := NewClient(ClientOptions{
		BaseURL:    srv.URL,
		APIKey:     "test-key",
		Timeout:    time.Second,
		MaxRetries: 1,
	}, noopLogger())
	return client, srv.Close
}

func TestFetchRateMissingKey(t *testing.T) {
	client := NewClient(ClientOptions{}, noopLogger())
	if _, err := client.FetchRate(context.Background(), "USD", "KRW"); err == nil {
		t.Fatal("missing api key must error")
	}
}

func TestFetchRateSuccess(t *testing.T) {
	client, done := clientFor(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("base_currency") != "USD" || q.Get("currencies") != "KRW" {
			t.Fatalf("unexpected query: %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"meta":{"last_updated_at":"2025-06-16T08:59:59Z"},"data":{"KRW":{"code":"KRW","value":1382.45}}}`))
	})
	defer done()

	rate, err := client.FetchRate(context.Background(), "USD", "KRW")
	if err != nil {
		t.Fatalf("fetch should succeed: %v", err)
	}
	if !rate.Value.Equal(decimal.RequireFromString("1382.45")) {
		t.Fatalf("rate mismatch: %s", rate.Value)
	}
	if rate.Source != SourceLive {
		t.Fatalf("fetched rate must be tagged live, got %s", rate.Source)
	}
	if rate.AsOf.Format("2006-01-02") != "2025-06-16" {
		t.Fatalf("as-of should come from meta.last_updated_at, got %s", rate.AsOf)
	}
}

func TestFetchRateRetriesOn429(t *testing.T) {
	attempts := 0
	client, done := clientFor(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"data":{"KRW":{"code":"KRW","value":1300.5}}}`))
	})
	defer done()

	if _, err := client.FetchRate(context.Background(), "USD", "KRW"); err != nil {
		t.Fatalf("429 should be retried: %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts)
	}
}

func TestFetchRateAuthFailureNotRetried(t *testing.T) {
	attempts := 0
	client, done := clientFor(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusUnauthorized)
	})
	defer done()

	if _, err := client.FetchRate(context.Background(), "USD", "KRW"); err == nil {
		t.Fatal("401 must error")
	}
	if attempts != 1 {
		t.Fatalf("401 must not be retried, got %d attempts", attempts)
	}
}

func TestFetchRateRejectsNonPositive(t *testing.T) {
	client, done := clientFor(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"KRW":{"code":"KRW","value":0}}}`))
	})
	defer done()

	if _, err := client.FetchRate(context.Background(), "USD", "KRW"); err == nil {
		t.Fatal("non-positive rate must be rejected")
	}
}
