package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/docslot/docslot/libs/db"
)

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// RecordBookingEvent appends the raw event and bumps the per-provider daily
// counter in one transaction. The event id makes replays idempotent on top
// of the inbox dedupe.
func (r *Repository) RecordBookingEvent(ctx context.Context, eventID, eventType, providerID, appointmentID string, startTime time.Time, bookedInc, cancelledInc int) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		INSERT INTO booking_events (event_id, event_type, provider_id, appointment_id, occurred_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (event_id) DO NOTHING
	`, eventID, eventType, providerID, appointmentID, startTime.UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return tx.Commit(ctx)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO daily_appointment_metrics (provider_id, day, booked_count, cancelled_count)
		VALUES ($1, $2::date, $3, $4)
		ON CONFLICT (provider_id, day)
		DO UPDATE SET booked_count = daily_appointment_metrics.booked_count + EXCLUDED.booked_count,
		              cancelled_count = daily_appointment_metrics.cancelled_count + EXCLUDED.cancelled_count,
		              updated_at = now()
	`, providerID, startTime.UTC(), bookedInc, cancelledInc); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

type DailyMetric struct {
	ProviderID     string `json:"provider_id"`
	Day            string `json:"day"`
	BookedCount    int    `json:"booked_count"`
	CancelledCount int    `json:"cancelled_count"`
}

func (r *Repository) DailyMetrics(ctx context.Context, providerID string, from, to time.Time) ([]DailyMetric, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT provider_id, to_char(day, 'YYYY-MM-DD'), booked_count, cancelled_count
		FROM daily_appointment_metrics
		WHERE provider_id = $1 AND day >= $2::date AND day <= $3::date
		ORDER BY day ASC
	`, providerID, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DailyMetric
	for rows.Next() {
		var m DailyMetric
		if err := rows.Scan(&m.ProviderID, &m.Day, &m.BookedCount, &m.CancelledCount); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *Repository) RecordSecurityAudit(ctx context.Context, eventType, actorID string, metadata json.RawMessage, createdAt string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO security_audit_events (event_type, actor_id, metadata, created_at)
		VALUES ($1, NULLIF($2, ''), $3, $4)
	`, eventType, actorID, metadata, createdAt)
	return err
}
