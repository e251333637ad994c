package payments

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/salonflow/calendar-sync/services/calendar-service/internal/model"
)

func TestCreateIntentRejectsEmptyTotal(t *testing.T) {
	s := NewService("sk_test_x", "eur", slog.Default())

	_, err := s.CreateIntent(model.Appointment{ID: "a1", SalonID: "s1"})
	if !errors.Is(err, ErrNothingToCharge) {
		t.Fatalf("expected ErrNothingToCharge, got %v", err)
	}
}

func TestToMinorUnits(t *testing.T) {
	cases := []struct {
		amount float64
		want   int64
	}{
		{25, 2500},
		{60.5, 6050},
		{19.99, 1999},
		{0.1, 10},
	}
	for _, tc := range cases {
		if got := toMinorUnits(tc.amount); got != tc.want {
			t.Fatalf("toMinorUnits(%v) = %d, want %d", tc.amount, got, tc.want)
		}
	}
}

func TestEnabled(t *testing.T) {
	if NewService("", "eur", slog.Default()).Enabled() {
		t.Fatal("service without a key must report disabled")
	}
	if !NewService("sk_test_x", "", slog.Default()).Enabled() {
		t.Fatal("service with a key must report enabled")
	}
}
