package model

type TeamMember struct {
	ID        string `json:"id"`
	SalonID   string `json:"salon_id"`
	Name      string `json:"name"`
	Active    bool   `json:"active"`
	AvatarURL string `json:"avatar_url,omitempty"`
	SortOrder int    `json:"sort_order"`
}

// PlaceholderMember stands in for a missing or deactivated team member so a
// stale appointment reference never breaks rendering.
func PlaceholderMember(id string) TeamMember {
	return TeamMember{ID: id, Name: "Unknown", Active: false}
}

type StatusDefinition struct {
	Value string `json:"value"`
	Label string `json:"label"`
	Color string `json:"color"`
}

// SystemStatuses is the fixed lifecycle set every salon gets.
func SystemStatuses() []StatusDefinition {
	return []StatusDefinition{
		{Value: StatusPending, Label: "Pending", Color: "#f59e0b"},
		{Value: StatusConfirmed, Label: "Confirmed", Color: "#3b82f6"},
		{Value: StatusPaid, Label: "Paid", Color: "#22c55e"},
		{Value: StatusCancelled, Label: "Cancelled", Color: "#ef4444"},
		{Value: StatusDeleted, Label: "Deleted", Color: "#6b7280"},
		{Value: StatusPausa, Label: "Break", Color: "#a855f7"},
	}
}

// MergeStatuses unions salon-custom definitions into the system set.
// Duplicates are resolved by value, system definitions winning.
func MergeStatuses(system, custom []StatusDefinition) []StatusDefinition {
	seen := make(map[string]struct{}, len(system))
	merged := make([]StatusDefinition, 0, len(system)+len(custom))
	for _, def := range system {
		if _, ok := seen[def.Value]; ok {
			continue
		}
		seen[def.Value] = struct{}{}
		merged = append(merged, def)
	}
	for _, def := range custom {
		if _, ok := seen[def.Value]; ok {
			continue
		}
		seen[def.Value] = struct{}{}
		merged = append(merged, def)
	}
	return merged
}
