package workday

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func registryFor(t *testing.T, handler http.HandlerFunc) (*Registry, func()) {
	t.Helper()
	srv := httptest.NewServer(handler)
	reg := NewRegistry(RegistryOptions{
		BaseURL:    srv.URL,
		ServiceKey: "test-key",
		Timeout:    time.Second,
		MaxRetries: 1,
	}, noopLogger())
	return reg, srv.Close
}

func TestRegistryMissingKey(t *testing.T) {
	reg := NewRegistry(RegistryOptions{}, noopLogger())
	if _, _, err := reg.IsHoliday(context.Background(), time.Now()); err == nil {
		t.Fatal("missing service key must error")
	}
}

func TestRegistryMatchesExactDate(t *testing.T) {
	reg, done := registryFor(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("solMonth"); got != "10" {
			t.Fatalf("expected solMonth=10, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"response":{"header":{"resultCode":"00","resultMsg":"NORMAL SERVICE."},"body":{"items":{"item":[{"locdate":20251003,"dateName":"개천절","isHoliday":"Y"},{"locdate":20251006,"dateName":"추석","isHoliday":"Y"}]},"totalCount":2}}}`))
	})
	defer done()

	holiday, name, err := reg.IsHoliday(context.Background(), time.Date(2025, 10, 6, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("lookup should succeed: %v", err)
	}
	if !holiday || name != "추석" {
		t.Fatalf("expected 추석 holiday, got holiday=%v name=%q", holiday, name)
	}

	holiday, _, err = reg.IsHoliday(context.Background(), time.Date(2025, 10, 7, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("lookup should succeed: %v", err)
	}
	if holiday {
		t.Fatal("a date absent from the month listing is not a holiday")
	}
}

func TestRegistrySingleItemObject(t *testing.T) {
	reg, done := registryFor(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"response":{"header":{"resultCode":"00","resultMsg":"NORMAL SERVICE."},"body":{"items":{"item":{"locdate":20250101,"dateName":"신정","isHoliday":"Y"}},"totalCount":1}}}`))
	})
	defer done()

	holiday, name, err := reg.IsHoliday(context.Background(), time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("single-item payload should parse: %v", err)
	}
	if !holiday || name != "신정" {
		t.Fatalf("expected 신정 holiday, got holiday=%v name=%q", holiday, name)
	}
}

func TestRegistryUpstreamError(t *testing.T) {
	reg, done := registryFor(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"cmmMsgHeader":{"returnReasonCode":"30","returnAuthMsg":"SERVICE_KEY_IS_NOT_REGISTERED_ERROR"}}`))
	})
	defer done()

	if _, _, err := reg.IsHoliday(context.Background(), time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)); err == nil {
		t.Fatal("registry error envelope must surface as an error")
	}
}

func TestRegistryMalformedPayload(t *testing.T) {
	reg, done := registryFor(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>not json</html>`))
	})
	defer done()

	if _, _, err := reg.IsHoliday(context.Background(), time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)); err == nil {
		t.Fatal("malformed payload must surface as an error")
	}
}

func TestRegistryEmptyMonth(t *testing.T) {
	reg, done := registryFor(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"response":{"header":{"resultCode":"00","resultMsg":"NORMAL SERVICE."},"body":{"items":"","totalCount":0}}}`))
	})
	defer done()

	holiday, _, err := reg.IsHoliday(context.Background(), time.Date(2025, 4, 2, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("empty-string items payload should parse: %v", err)
	}
	if holiday {
		t.Fatal("a month without holidays has no holiday")
	}
}

func TestRegistryRetriesServerErrors(t *testing.T) {
	attempts := 0
	reg, done := registryFor(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"response":{"header":{"resultCode":"00","resultMsg":"NORMAL SERVICE."},"body":{"items":{},"totalCount":0}}}`))
	})
	defer done()

	holiday, _, err := reg.IsHoliday(context.Background(), time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("transient 502 should be retried: %v", err)
	}
	if holiday {
		t.Fatal("empty month listing means no holiday")
	}
	if attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts)
	}
}
