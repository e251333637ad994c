package model

// AppointmentPatch is a partial update. Nil fields are left untouched;
// a non-nil Services pointer replaces the whole line-item set.
type AppointmentPatch struct {
	ID           string
	Date         *string
	StartTime    *string
	EndTime      *string
	TeamMemberID *string
	Status       *string
	ClientName   *string
	Notes        *string
	ColorTag     *string
	CardStyle    *string
	Services     *[]ServiceItem
}

// TimeRangeAfter resolves the start/end the appointment would have after the
// patch, so partial time edits can still be validated as a pair.
func (p AppointmentPatch) TimeRangeAfter(current Appointment) (start, end string) {
	start, end = current.StartTime, current.EndTime
	if p.StartTime != nil {
		start = *p.StartTime
	}
	if p.EndTime != nil {
		end = *p.EndTime
	}
	return start, end
}
