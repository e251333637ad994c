package store

import (
	"sort"

	"github.com/salonflow/calendar-sync/services/calendar-service/internal/model"
)

// View is a set of calendar filters. Zero values mean "no filtering" for
// dates, members and statuses; ShowDeleted flips the working set between
// "only soft-deleted" and "everything except soft-deleted" — the two are
// mutually exclusive views, not composable with the status selection.
type View struct {
	Dates       []string
	MemberIDs   []string
	Statuses    []string
	ShowDeleted bool
}

func (v View) Apply(records []model.Appointment) []model.Appointment {
	records = filterDeleted(records, v.ShowDeleted)
	records = FilterByDates(records, v.Dates)
	records = FilterByMembers(records, v.MemberIDs)
	// The soft-delete toggle overrides the general status selection entirely
	// when showing deleted records.
	if !v.ShowDeleted {
		records = FilterByStatuses(records, v.Statuses)
	}
	return records
}

// FilterByDates keeps records whose normalized date matches one of the
// selected dates. Empty selection keeps everything.
func FilterByDates(records []model.Appointment, dates []string) []model.Appointment {
	if len(dates) == 0 {
		return records
	}
	want := make(map[string]struct{}, len(dates))
	for _, d := range dates {
		want[model.NormalizeDate(d)] = struct{}{}
	}
	out := records[:0:0]
	for _, rec := range records {
		if _, ok := want[model.NormalizeDate(rec.Date)]; ok {
			out = append(out, rec)
		}
	}
	return out
}

// FilterByMembers keeps records assigned to one of the selected team
// members. Empty selection keeps everything.
func FilterByMembers(records []model.Appointment, memberIDs []string) []model.Appointment {
	if len(memberIDs) == 0 {
		return records
	}
	want := make(map[string]struct{}, len(memberIDs))
	for _, id := range memberIDs {
		want[id] = struct{}{}
	}
	out := records[:0:0]
	for _, rec := range records {
		if _, ok := want[rec.TeamMemberID]; ok {
			out = append(out, rec)
		}
	}
	return out
}

// FilterByStatuses keeps records whose status is in the selection. Empty
// selection keeps everything.
func FilterByStatuses(records []model.Appointment, statuses []string) []model.Appointment {
	if len(statuses) == 0 {
		return records
	}
	want := make(map[string]struct{}, len(statuses))
	for _, st := range statuses {
		want[st] = struct{}{}
	}
	out := records[:0:0]
	for _, rec := range records {
		if _, ok := want[rec.Status]; ok {
			out = append(out, rec)
		}
	}
	return out
}

func filterDeleted(records []model.Appointment, showDeleted bool) []model.Appointment {
	out := records[:0:0]
	for _, rec := range records {
		if rec.SoftDeleted() == showDeleted {
			out = append(out, rec)
		}
	}
	return out
}

// GroupByHour buckets records by the hour component of StartTime. Within a
// bucket, records sort ascending by the full StartTime string; lexicographic
// HH:MM order is correct because the times are zero-padded.
func GroupByHour(records []model.Appointment) map[string][]model.Appointment {
	buckets := map[string][]model.Appointment{}
	for _, rec := range records {
		if len(rec.StartTime) < 2 {
			continue
		}
		hour := rec.StartTime[:2]
		buckets[hour] = append(buckets[hour], rec)
	}
	for hour := range buckets {
		bucket := buckets[hour]
		sort.Slice(bucket, func(i, j int) bool {
			if bucket[i].StartTime != bucket[j].StartTime {
				return bucket[i].StartTime < bucket[j].StartTime
			}
			return bucket[i].ID < bucket[j].ID
		})
	}
	return buckets
}
