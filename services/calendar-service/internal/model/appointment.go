package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Appointment statuses. Salon-defined custom statuses are loaded from the
// status catalog and merged on top of these.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusPaid      = "paid"
	StatusCancelled = "cancelled"
	StatusDeleted   = "deleted"
	StatusPausa     = "pausa"
)

var ErrInvalidTimeRange = errors.New("invalid time range")

type ServiceItem struct {
	ID        string  `json:"id"`
	ServiceID string  `json:"service_id"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
}

type Appointment struct {
	ID           string        `json:"id"`
	SalonID      string        `json:"salon_id"`
	Date         string        `json:"date"`       // YYYY-MM-DD
	StartTime    string        `json:"start_time"` // HH:MM, 5-minute grid
	EndTime      string        `json:"end_time"`   // HH:MM
	TeamMemberID string        `json:"team_member_id"`
	Status       string        `json:"status"`
	ClientName   string        `json:"client_name"`
	Notes        string        `json:"notes,omitempty"`
	ColorTag     string        `json:"color_tag,omitempty"`
	CardStyle    string        `json:"card_style,omitempty"`
	Services     []ServiceItem `json:"services,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}

// Total is derived from the line items and never stored on the appointment row.
func (a Appointment) Total() float64 {
	var total float64
	for _, s := range a.Services {
		total += s.Price
	}
	return total
}

// SoftDeleted reports whether the appointment carries the terminal
// soft-delete status. Deletion is a status transition, not a row removal.
func (a Appointment) SoftDeleted() bool {
	return a.Status == StatusDeleted
}

// NormalizeDate strips any time component from an ISO date string, so
// "2024-06-01T00:00:00Z" and "2024-06-01" compare equal.
func NormalizeDate(s string) string {
	if i := strings.IndexByte(s, 'T'); i >= 0 {
		return s[:i]
	}
	if i := strings.IndexByte(s, ' '); i >= 0 {
		return s[:i]
	}
	return s
}

// ValidateTimeRange checks a wall-clock HH:MM pair: both parseable, end after
// start, and both on the 5-minute grid the calendar renders.
func ValidateTimeRange(start, end string) error {
	startMins, err := parseClock(start)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTimeRange, err)
	}
	endMins, err := parseClock(end)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTimeRange, err)
	}
	if endMins <= startMins {
		return fmt.Errorf("%w: end %q not after start %q", ErrInvalidTimeRange, end, start)
	}
	if startMins%5 != 0 || endMins%5 != 0 {
		return fmt.Errorf("%w: times must fall on a 5-minute boundary", ErrInvalidTimeRange)
	}
	return nil
}

func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("malformed clock time %q", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}
