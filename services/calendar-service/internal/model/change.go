package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

type ChangeKind string

const (
	ChangeInsert ChangeKind = "insert"
	ChangeUpdate ChangeKind = "update"
	ChangeDelete ChangeKind = "delete"
)

// Change-feed channel tables.
const (
	TableAppointments = "appointments"
	TableTeamMembers  = "team_members"
	TableStatuses     = "statuses"
)

var ErrMalformedChange = errors.New("malformed change event")

// ChangeEvent is an incremental insert/update/delete notification on the
// tenant change feed. Delete events carry only the row id; insert/update
// carry the full record.
type ChangeEvent struct {
	Kind    ChangeKind   `json:"kind"`
	Table   string       `json:"table"`
	SalonID string       `json:"salon_id"`
	ID      string       `json:"id"`
	Record  *Appointment `json:"record,omitempty"`
}

func (ev ChangeEvent) Validate() error {
	switch ev.Kind {
	case ChangeInsert, ChangeUpdate:
		if ev.Record == nil {
			return fmt.Errorf("%w: %s without record", ErrMalformedChange, ev.Kind)
		}
		if ev.Record.SalonID != ev.SalonID {
			return fmt.Errorf("%w: envelope salon %q, record salon %q", ErrMalformedChange, ev.SalonID, ev.Record.SalonID)
		}
	case ChangeDelete:
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrMalformedChange, ev.Kind)
	}
	if ev.SalonID == "" || ev.ID == "" {
		return fmt.Errorf("%w: missing salon_id or id", ErrMalformedChange)
	}
	return nil
}

// DecodeChangeEvent parses a change-feed payload and rejects events that
// could not be applied safely.
func DecodeChangeEvent(payload []byte) (ChangeEvent, error) {
	var ev ChangeEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return ChangeEvent{}, fmt.Errorf("%w: %v", ErrMalformedChange, err)
	}
	if err := ev.Validate(); err != nil {
		return ChangeEvent{}, err
	}
	return ev, nil
}
