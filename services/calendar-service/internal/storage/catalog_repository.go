package storage

import (
	"context"

	"github.com/salonflow/calendar-sync/libs/db"
	"github.com/salonflow/calendar-sync/services/calendar-service/internal/model"
)

type CatalogRepository struct {
	pool *db.Pool
}

func NewCatalogRepository(pool *db.Pool) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

func (r *CatalogRepository) ListTeamMembers(ctx context.Context, salonID string) ([]model.TeamMember, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, salon_id, name, active, COALESCE(avatar_url, ''), sort_order
		FROM team_members
		WHERE salon_id = $1
		ORDER BY sort_order, name
	`, salonID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []model.TeamMember
	for rows.Next() {
		var m model.TeamMember
		if err := rows.Scan(&m.ID, &m.SalonID, &m.Name, &m.Active, &m.AvatarURL, &m.SortOrder); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// ListCustomStatuses returns only the salon-defined definitions; the caller
// merges them over the system set.
func (r *CatalogRepository) ListCustomStatuses(ctx context.Context, salonID string) ([]model.StatusDefinition, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT value, label, COALESCE(color, '')
		FROM salon_statuses
		WHERE salon_id = $1
		ORDER BY value
	`, salonID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var statuses []model.StatusDefinition
	for rows.Next() {
		var def model.StatusDefinition
		if err := rows.Scan(&def.Value, &def.Label, &def.Color); err != nil {
			return nil, err
		}
		statuses = append(statuses, def)
	}
	return statuses, rows.Err()
}
