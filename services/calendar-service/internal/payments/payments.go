// Package payments creates Stripe payment intents for appointment totals.
// The amount is always derived from the line items at charge time, never
// from a stored total.
package payments

import (
	"errors"
	"log/slog"
	"math"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/paymentintent"

	"github.com/salonflow/calendar-sync/services/calendar-service/internal/model"
)

var ErrNothingToCharge = errors.New("appointment has no billable line items")

type Service struct {
	secretKey string
	currency  string
	logger    *slog.Logger
}

func NewService(secretKey, currency string, logger *slog.Logger) *Service {
	if currency == "" {
		currency = "eur"
	}
	return &Service{secretKey: secretKey, currency: currency, logger: logger}
}

func (s *Service) Enabled() bool {
	return s.secretKey != ""
}

type Intent struct {
	ID           string  `json:"id"`
	ClientSecret string  `json:"client_secret"`
	Amount       float64 `json:"amount"`
}

// CreateIntent opens a PaymentIntent for the appointment's derived total.
// The idempotency key is appointment-scoped, so retrying a failed checkout
// never double-charges.
func (s *Service) CreateIntent(appt model.Appointment) (Intent, error) {
	total := appt.Total()
	if total <= 0 {
		return Intent{}, ErrNothingToCharge
	}

	stripe.Key = s.secretKey
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(toMinorUnits(total)),
		Currency: stripe.String(s.currency),
	}
	params.IdempotencyKey = stripe.String("appt-pay:" + appt.SalonID + ":" + appt.ID)
	params.AddMetadata("appointment_id", appt.ID)
	params.AddMetadata("salon_id", appt.SalonID)

	pi, err := paymentintent.New(params)
	if err != nil {
		s.logger.Error("stripe payment intent failed", "err", err, "appointment_id", appt.ID)
		return Intent{}, err
	}
	return Intent{ID: pi.ID, ClientSecret: pi.ClientSecret, Amount: total}, nil
}

func toMinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}
