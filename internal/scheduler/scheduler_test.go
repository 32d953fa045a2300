package scheduler

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestNextSlotSameDay(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}

	s := New(Options{Location: loc, Hour: 18, Minute: 0}, zerolog.Nop())

	morning := time.Date(2025, 6, 16, 9, 0, 0, 0, loc)
	slot := s.nextSlot(morning)
	if slot.Day() != 16 || slot.Hour() != 18 {
		t.Fatalf("expected same-day 18:00 slot, got %s", slot)
	}
}

func TestNextSlotRollsToTomorrow(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}

	s := New(Options{Location: loc, Hour: 18, Minute: 0}, zerolog.Nop())

	evening := time.Date(2025, 6, 16, 18, 0, 0, 0, loc)
	slot := s.nextSlot(evening)
	if slot.Day() != 17 {
		t.Fatalf("a slot at or before now must roll to tomorrow, got %s", slot)
	}
}

func TestNextSlotDefaultsToUTC(t *testing.T) {
	s := New(Options{Hour: 18}, zerolog.Nop())
	slot := s.nextSlot(time.Date(2025, 6, 16, 9, 0, 0, 0, time.UTC))
	if slot.Location() != time.UTC {
		t.Fatalf("nil location must default to UTC, got %s", slot.Location())
	}
}
