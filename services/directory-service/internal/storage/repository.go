package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/docslot/docslot/libs/db"
)

// Provider is the authoritative directory record for a doctor. ID is the
// provider record id minted by the identity service at registration; UserID
// is the linked account id. Appointments are keyed by ID, never by UserID.
type Provider struct {
	ID             string
	UserID         string
	Name           string
	Speciality     string
	Experience     string
	AppointmentFee string
	CreatedAt      time.Time
}

type Patient struct {
	ID        string
	UserID    string
	Name      string
	CreatedAt time.Time
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) UpsertProvider(ctx context.Context, p Provider) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO providers (id, user_id, name, speciality, experience, appointment_fee)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET user_id = EXCLUDED.user_id,
			name = EXCLUDED.name,
			speciality = EXCLUDED.speciality,
			experience = EXCLUDED.experience,
			appointment_fee = EXCLUDED.appointment_fee,
			updated_at = now()
	`, p.ID, p.UserID, p.Name, p.Speciality, p.Experience, p.AppointmentFee)
	return err
}

func (r *Repository) UpsertPatient(ctx context.Context, p Patient) error {
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

func (r *Repository) GetProvider(ctx context.Context, id string) (Provider, error) {
	var p Provider
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, name, speciality, experience, appointment_fee, created_at
		FROM providers
		WHERE id = $1
	`, id).Scan(&p.ID, &p.UserID, &p.Name, &p.Speciality, &p.Experience, &p.AppointmentFee, &p.CreatedAt)
	if err != nil {
		return Provider{}, err
	}
	return p, nil
}

func (r *Repository) GetProviderByUserID(ctx context.Context, userID string) (Provider, error) {
	var p Provider
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, name, speciality, experience, appointment_fee, created_at
		FROM providers
		WHERE user_id = $1
	`, userID).Scan(&p.ID, &p.UserID, &p.Name, &p.Speciality, &p.Experience, &p.AppointmentFee, &p.CreatedAt)
	if err != nil {
		return Provider{}, err
	}
	return p, nil
}

// ListProviders returns providers ordered by name. An empty speciality
// matches everyone.
func (r *Repository) ListProviders(ctx context.Context, speciality string, limit int) ([]Provider, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, name, speciality, experience, appointment_fee, created_at
		FROM providers
		WHERE $1 = '' OR speciality = $1
		ORDER BY name ASC
		LIMIT $2
	`, speciality, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Provider
	for rows.Next() {
		var p Provider
		if err := rows.Scan(&p.ID, &p.UserID, &p.Name, &p.Speciality, &p.Experience, &p.AppointmentFee, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Repository) GetPatientByUserID(ctx context.Context, userID string) (Patient, error) {
	var p Patient
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, name, created_at
		FROM patients
		WHERE user_id = $1
	`, userID).Scan(&p.ID, &p.UserID, &p.Name, &p.CreatedAt)
	if err != nil {
		return Patient{}, err
	}
	return p, nil
}

// UpdateProviderProfile lets a provider edit the fields they own. Returns
// pgx.ErrNoRows when no provider row belongs to the user.
func (r *Repository) UpdateProviderProfile(ctx context.Context, userID, name, speciality, experience, appointmentFee string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE providers
		SET name = $2,
			speciality = $3,
			experience = $4,
			appointment_fee = $5,
			updated_at = now()
		WHERE user_id = $1
	`, userID, name, speciality, experience, appointmentFee)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func IsNotFound(err error) bool {
	return err == pgx.ErrNoRows
}
