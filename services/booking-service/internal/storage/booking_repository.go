package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/docslot/docslot/libs/db"
	"github.com/docslot/docslot/services/booking-service/internal/booking"
	"github.com/docslot/docslot/services/booking-service/internal/model"
	"github.com/docslot/docslot/services/booking-service/internal/outbox"
)

// Repository is the pg implementation of booking.Store. Book and Cancel are
// transactional: domain rows and the outbox event commit or roll back
// together.
type Repository struct {
	pool       *db.Pool
	outboxRepo *outbox.Repository
}

func NewRepository(pool *db.Pool, outboxRepo *outbox.Repository) *Repository {
	return &Repository{pool: pool, outboxRepo: outboxRepo}
}

func (r *Repository) ProviderByID(ctx context.Context, id string) (model.Provider, error) {
	var p model.Provider
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, name, role, speciality, COALESCE(experience, ''), COALESCE(appointment_fee, '')
		FROM providers
		WHERE id = $1
	`, id).Scan(&p.ID, &p.UserID, &p.Name, &p.Role, &p.Speciality, &p.Experience, &p.AppointmentFee)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Provider{}, booking.ErrProviderNotFound
	}
	if err != nil {
		return model.Provider{}, err
	}
	return p, nil
}

func (r *Repository) ProviderByUserID(ctx context.Context, userID string) (model.Provider, error) {
	var p model.Provider
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, name, role, speciality, COALESCE(experience, ''), COALESCE(appointment_fee, '')
		FROM providers
		WHERE user_id = $1
	`, userID).Scan(&p.ID, &p.UserID, &p.Name, &p.Role, &p.Speciality, &p.Experience, &p.AppointmentFee)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Provider{}, booking.ErrProviderNotFound
	}
	if err != nil {
		return model.Provider{}, err
	}
	return p, nil
}

func (r *Repository) PatientByUserID(ctx context.Context, userID string) (model.Patient, error) {
	var p model.Patient
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, name
		FROM patients
		WHERE user_id = $1
	`, userID).Scan(&p.ID, &p.UserID, &p.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Patient{}, booking.ErrPatientNotFound
	}
	if err != nil {
		return model.Patient{}, err
	}
	return p, nil
}

func (r *Repository) UpsertProvider(ctx context.Context, p model.Provider) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO providers (id, user_id, name, role, speciality, experience, appointment_fee)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE
		SET user_id = EXCLUDED.user_id,
			name = EXCLUDED.name,
			role = EXCLUDED.role,
			speciality = EXCLUDED.speciality,
			experience = EXCLUDED.experience,
			appointment_fee = EXCLUDED.appointment_fee,
			updated_at = now()
	`, p.ID, p.UserID, p.Name, p.Role, p.Speciality, p.Experience, p.AppointmentFee)
	return err
}

func (r *Repository) UpsertPatient(ctx context.Context, p model.Patient) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO patients (id, user_id, name)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET user_id = EXCLUDED.user_id,
			name = EXCLUDED.name,
			updated_at = now()
	`, p.ID, p.UserID, p.Name)
	return err
}

func (r *Repository) SlotBooked(ctx context.Context, providerID string, start time.Time) (bool, error) {
	var taken bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM slots
			WHERE provider_id = $1 AND start_time = $2 AND is_booked
		)
	`, providerID, start).Scan(&taken)
	return taken, err
}

func (r *Repository) BookedStarts(ctx context.Context, providerID string, from, to time.Time) ([]time.Time, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT start_time
		FROM slots
		WHERE provider_id = $1
			AND is_booked
			AND start_time >= $2
			AND start_time < $3
		ORDER BY start_time
	`, providerID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var starts []time.Time
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		starts = append(starts, t)
	}
	return starts, rows.Err()
}

func (r *Repository) Book(ctx context.Context, slot model.Slot, appt model.Appointment, evt outbox.Event) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO slots (id, provider_id, start_time, end_time, is_booked)
		VALUES ($1, $2, $3, $4, TRUE)
	`, slot.ID, slot.ProviderID, slot.StartTime, slot.EndTime)
	if err != nil {
		// uq_slots_provider_start_booked: one booked slot per provider and start.
		if isUniqueViolation(err) {
			return booking.ErrSlotTaken
		}
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO appointments (id, provider_id, patient_id, slot_id, status, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, appt.ID, appt.ProviderID, appt.PatientID, appt.SlotID, appt.Status, appt.Reason, appt.CreatedAt)
	if err != nil {
		return err
	}

	if err := r.outboxRepo.Insert(ctx, tx, evt); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *Repository) AppointmentByID(ctx context.Context, id string) (model.Appointment, error) {
	var a model.Appointment
	var cancelledAt *time.Time
	err := r.pool.QueryRow(ctx, `
		SELECT a.id, a.provider_id, a.patient_id, a.slot_id, a.status,
			COALESCE(a.reason, ''), COALESCE(a.cancellation_reason, ''),
			a.created_at, a.cancelled_at,
			s.start_time, s.end_time,
			COALESCE(p.name, ''), COALESCE(p.speciality, ''), COALESCE(p.appointment_fee, '')
		FROM appointments a
		JOIN slots s ON s.id = a.slot_id
		LEFT JOIN providers p ON p.id = a.provider_id
		WHERE a.id = $1
	`, id).Scan(
		&a.ID, &a.ProviderID, &a.PatientID, &a.SlotID, &a.Status,
		&a.Reason, &a.CancelReason,
		&a.CreatedAt, &cancelledAt,
		&a.StartTime, &a.EndTime,
		&a.ProviderName, &a.ProviderSpeciality, &a.AppointmentFee,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Appointment{}, booking.ErrAppointmentNotFound
	}
	if err != nil {
		return model.Appointment{}, err
	}
	a.CancelledAt = cancelledAt
	return a, nil
}

func (r *Repository) Cancel(ctx context.Context, appointmentID, reason string, cancelledAt time.Time, evt outbox.Event) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var status, slotID string
	err = tx.QueryRow(ctx, `
		SELECT status, slot_id
		FROM appointments
		WHERE id = $1
		FOR UPDATE
	`, appointmentID).Scan(&status, &slotID)
	if errors.Is(err, pgx.ErrNoRows) {
		return booking.ErrAppointmentNotFound
	}
	if err != nil {
		return err
	}
	if status != model.StatusBooked {
		return booking.ErrAlreadyCancelled
	}

	_, err = tx.Exec(ctx, `
		UPDATE appointments
		SET status = $2,
			cancelled_at = $3,
			cancellation_reason = $4
		WHERE id = $1
	`, appointmentID, model.StatusCancelled, cancelledAt, reason)
	if err != nil {
		return err
	}

	// Free the slot. The row stays for history; rebooking creates a new one.
	_, err = tx.Exec(ctx, `
		UPDATE slots
		SET is_booked = FALSE
		WHERE id = $1
	`, slotID)
	if err != nil {
		return err
	}

	if err := r.outboxRepo.Insert(ctx, tx, evt); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *Repository) ListForPatient(ctx context.Context, patientID string, limit int) ([]model.Appointment, error) {
	return r.list(ctx, "a.patient_id", patientID, limit)
}

func (r *Repository) ListForProvider(ctx context.Context, providerID string, limit int) ([]model.Appointment, error) {
	return r.list(ctx, "a.provider_id", providerID, limit)
}

func (r *Repository) list(ctx context.Context, column, id string, limit int) ([]model.Appointment, error) {
	if limit <= 0 {
		limit = 50
	}
	// Newest booking first, regardless of when the slot itself falls. The
	// provider join is LEFT because the replica may not have caught up yet.
	rows, err := r.pool.Query(ctx, `
		SELECT a.id, a.provider_id, a.patient_id, a.slot_id, a.status,
			COALESCE(a.reason, ''), COALESCE(a.cancellation_reason, ''),
			a.created_at, a.cancelled_at,
			s.start_time, s.end_time,
			COALESCE(p.name, ''), COALESCE(p.speciality, ''), COALESCE(p.appointment_fee, '')
		FROM appointments a
		JOIN slots s ON s.id = a.slot_id
		LEFT JOIN providers p ON p.id = a.provider_id
		WHERE `+column+` = $1
		ORDER BY a.created_at DESC
		LIMIT $2
	`, id, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appts []model.Appointment
	for rows.Next() {
		var a model.Appointment
		var cancelledAt *time.Time
		if err := rows.Scan(
			&a.ID, &a.ProviderID, &a.PatientID, &a.SlotID, &a.Status,
			&a.Reason, &a.CancelReason,
			&a.CreatedAt, &cancelledAt,
			&a.StartTime, &a.EndTime,
			&a.ProviderName, &a.ProviderSpeciality, &a.AppointmentFee,
		); err != nil {
			return nil, err
		}
		a.CancelledAt = cancelledAt
		appts = append(appts, a)
	}
	return appts, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
