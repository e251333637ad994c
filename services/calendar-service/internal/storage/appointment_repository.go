// Package storage holds the pgx repositories behind the sync core. Every
// statement is tenant-scoped by salon_id; the sync layer on top never sees
// another salon's rows.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/salonflow/calendar-sync/libs/db"
	"github.com/salonflow/calendar-sync/services/calendar-service/internal/model"
	"github.com/salonflow/calendar-sync/services/calendar-service/internal/outbox"
)

var ErrNotFound = errors.New("appointment not found")

type AppointmentRepository struct {
	pool   *db.Pool
	outbox *outbox.Repository
	logger *slog.Logger
}

func NewAppointmentRepository(pool *db.Pool, outboxRepo *outbox.Repository, logger *slog.Logger) *AppointmentRepository {
	return &AppointmentRepository{pool: pool, outbox: outboxRepo, logger: logger}
}

const appointmentColumns = `
	id, salon_id, date, start_time, end_time, team_member_id, status,
	COALESCE(client_name, ''), COALESCE(notes, ''), COALESCE(color_tag, ''),
	COALESCE(card_style, ''), created_at`

// ListAppointments is the bulk read the fetch coordinator issues: all of a
// salon's appointments plus their joined line items. A line-item load
// failure degrades to bare appointments instead of failing the batch.
func (r *AppointmentRepository) ListAppointments(ctx context.Context, salonID string) ([]model.Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE salon_id = $1
		ORDER BY date, start_time
	`, salonID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appts []model.Appointment
	var ids []string
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, appt)
		ids = append(ids, appt.ID)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	if len(appts) == 0 {
		return appts, nil
	}

	items, err := r.listLineItems(ctx, ids)
	if err != nil {
		r.logger.Warn("line-item load failed, returning bare appointments", "err", err, "salon_id", salonID)
		return appts, nil
	}
	for i := range appts {
		appts[i].Services = items[appts[i].ID]
	}
	return appts, nil
}

// GetAppointment is the point read behind partial-update validation: when
// the sync layer has no local copy it resolves the stored record here.
func (r *AppointmentRepository) GetAppointment(ctx context.Context, salonID, id string) (model.Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1 AND salon_id = $2
	`, id, salonID)

	appt, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Appointment{}, ErrNotFound
		}
		return model.Appointment{}, err
	}

	items, err := r.listLineItems(ctx, []string{appt.ID})
	if err != nil {
		r.logger.Warn("line-item load failed on point read", "err", err, "appointment_id", appt.ID)
		return appt, nil
	}
	appt.Services = items[appt.ID]
	return appt, nil
}

func (r *AppointmentRepository) listLineItems(ctx context.Context, appointmentIDs []string) (map[string][]model.ServiceItem, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, appointment_id, service_id, name, price
		FROM appointment_services
		WHERE appointment_id = ANY($1)
		ORDER BY appointment_id, id
	`, appointmentIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := map[string][]model.ServiceItem{}
	for rows.Next() {
		var item model.ServiceItem
		var apptID string
		if err := rows.Scan(&item.ID, &apptID, &item.ServiceID, &item.Name, &item.Price); err != nil {
			return nil, err
		}
		items[apptID] = append(items[apptID], item)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return items, nil
}

// CreateAppointment inserts the appointment, its line items and the outbox
// event in one transaction.
func (r *AppointmentRepository) CreateAppointment(ctx context.Context, appt model.Appointment) (model.Appointment, error) {
	if appt.ID == "" {
		appt.ID = uuid.NewString()
	}
	appt.CreatedAt = time.Now().UTC()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO appointments
			(id, salon_id, date, start_time, end_time, team_member_id, status,
			 client_name, notes, color_tag, card_style, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, appt.ID, appt.SalonID, appt.Date, appt.StartTime, appt.EndTime, appt.TeamMemberID,
		appt.Status, appt.ClientName, appt.Notes, appt.ColorTag, appt.CardStyle, appt.CreatedAt)
	if err != nil {
		return model.Appointment{}, err
	}

	for i := range appt.Services {
		if appt.Services[i].ID == "" {
			appt.Services[i].ID = uuid.NewString()
		}
	}
	if err := r.insertLineItems(ctx, tx, appt.ID, appt.Services); err != nil {
		return model.Appointment{}, err
	}

	if err := r.enqueueEvent(ctx, tx, outbox.EventAppointmentCreated, appt); err != nil {
		return model.Appointment{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}

// UpdateAppointment applies a partial update; nil patch fields keep the
// stored value via COALESCE. A non-nil Services pointer replaces the whole
// line-item set.
func (r *AppointmentRepository) UpdateAppointment(ctx context.Context, salonID string, patch model.AppointmentPatch) (model.Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `
		UPDATE appointments
		SET date = COALESCE($3, date),
			start_time = COALESCE($4, start_time),
			end_time = COALESCE($5, end_time),
			team_member_id = COALESCE($6, team_member_id),
			status = COALESCE($7, status),
			client_name = COALESCE($8, client_name),
			notes = COALESCE($9, notes),
			color_tag = COALESCE($10, color_tag),
			card_style = COALESCE($11, card_style),
			updated_at = now()
		WHERE id = $1 AND salon_id = $2
		RETURNING `+appointmentColumns+`
	`, patch.ID, salonID, patch.Date, patch.StartTime, patch.EndTime, patch.TeamMemberID,
		patch.Status, patch.ClientName, patch.Notes, patch.ColorTag, patch.CardStyle)

	appt, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Appointment{}, ErrNotFound
		}
		return model.Appointment{}, err
	}

	if patch.Services != nil {
		if _, err := tx.Exec(ctx, `
			DELETE FROM appointment_services WHERE appointment_id = $1
		`, appt.ID); err != nil {
			return model.Appointment{}, err
		}
		items := *patch.Services
		for i := range items {
			if items[i].ID == "" {
				items[i].ID = uuid.NewString()
			}
		}
		if err := r.insertLineItems(ctx, tx, appt.ID, items); err != nil {
			return model.Appointment{}, err
		}
		appt.Services = items
	} else {
		items, err := r.listLineItemsTx(ctx, tx, appt.ID)
		if err != nil {
			r.logger.Warn("line-item load failed on update", "err", err, "appointment_id", appt.ID)
		} else {
			appt.Services = items
		}
	}

	if err := r.enqueueEvent(ctx, tx, outbox.EventAppointmentUpdated, appt); err != nil {
		return model.Appointment{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}

// SoftDeleteAppointment transitions the row to the terminal status. The row
// stays; only line items are ever hard-deleted.
func (r *AppointmentRepository) SoftDeleteAppointment(ctx context.Context, salonID, id string) (model.Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = $3, updated_at = now()
		WHERE id = $1 AND salon_id = $2
		RETURNING `+appointmentColumns+`
	`, id, salonID, model.StatusDeleted)

	appt, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Appointment{}, ErrNotFound
		}
		return model.Appointment{}, err
	}

	if err := r.enqueueEvent(ctx, tx, outbox.EventAppointmentDeleted, appt); err != nil {
		return model.Appointment{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}

// DeleteLineItem is a real delete, scoped through the parent appointment's
// salon so a foreign tenant can never remove items by guessing ids. The
// post-delete parent is re-read in the same transaction and returned, so
// callers always publish it as a live record.
func (r *AppointmentRepository) DeleteLineItem(ctx context.Context, salonID, appointmentID, itemID string) (model.Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		DELETE FROM appointment_services s
		USING appointments a
		WHERE s.id = $1
			AND s.appointment_id = $2
			AND a.id = s.appointment_id
			AND a.salon_id = $3
	`, itemID, appointmentID, salonID)
	if err != nil {
		return model.Appointment{}, err
	}
	if tag.RowsAffected() == 0 {
		return model.Appointment{}, ErrNotFound
	}

	row := tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1 AND salon_id = $2
	`, appointmentID, salonID)
	parent, err := scanAppointment(row)
	if err != nil {
		return model.Appointment{}, err
	}
	items, err := r.listLineItemsTx(ctx, tx, parent.ID)
	if err != nil {
		return model.Appointment{}, err
	}
	parent.Services = items

	if err := r.enqueueEvent(ctx, tx, outbox.EventAppointmentUpdated, parent); err != nil {
		return model.Appointment{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, err
	}
	return parent, nil
}

func (r *AppointmentRepository) insertLineItems(ctx context.Context, tx pgx.Tx, appointmentID string, items []model.ServiceItem) error {
	for _, item := range items {
		if _, err := tx.Exec(ctx, `
			INSERT INTO appointment_services (id, appointment_id, service_id, name, price)
			VALUES ($1, $2, $3, $4, $5)
		`, item.ID, appointmentID, item.ServiceID, item.Name, item.Price); err != nil {
			return err
		}
	}
	return nil
}

func (r *AppointmentRepository) listLineItemsTx(ctx context.Context, tx pgx.Tx, appointmentID string) ([]model.ServiceItem, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, service_id, name, price
		FROM appointment_services
		WHERE appointment_id = $1
		ORDER BY id
	`, appointmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []model.ServiceItem
	for rows.Next() {
		var item model.ServiceItem
		if err := rows.Scan(&item.ID, &item.ServiceID, &item.Name, &item.Price); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *AppointmentRepository) enqueueEvent(ctx context.Context, tx pgx.Tx, eventType string, appt model.Appointment) error {
	payload, err := json.Marshal(appt)
	if err != nil {
		return err
	}
	return r.outboxInsert(ctx, tx, outbox.Event{
		SalonID:       appt.SalonID,
		AggregateType: "appointment",
		AggregateID:   appt.ID,
		EventType:     eventType,
		Payload:       payload,
	})
}

func (r *AppointmentRepository) outboxInsert(ctx context.Context, tx pgx.Tx, evt outbox.Event) error {
	if r.outbox == nil {
		return nil
	}
	return r.outbox.Insert(ctx, tx, evt)
}

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var appt model.Appointment
	var date time.Time
	if err := row.Scan(
		&appt.ID,
		&appt.SalonID,
		&date,
		&appt.StartTime,
		&appt.EndTime,
		&appt.TeamMemberID,
		&appt.Status,
		&appt.ClientName,
		&appt.Notes,
		&appt.ColorTag,
		&appt.CardStyle,
		&appt.CreatedAt,
	); err != nil {
		return model.Appointment{}, err
	}
	appt.Date = date.Format("2006-01-02")
	return appt, nil
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, pgx.ErrNoRows)
}

func IsConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
