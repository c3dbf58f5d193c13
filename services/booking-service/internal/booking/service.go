package booking

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/docslot/docslot/services/booking-service/internal/availability"
	"github.com/docslot/docslot/services/booking-service/internal/directory"
	"github.com/docslot/docslot/services/booking-service/internal/model"
	"github.com/docslot/docslot/services/booking-service/internal/outbox"
	"github.com/docslot/docslot/services/booking-service/internal/slots"
)

const (
	EventAppointmentBooked    = "booking.appointment.booked.v1"
	EventAppointmentCancelled = "booking.appointment.cancelled.v1"
)

// Store is the persistence surface the booking workflows need. The pg
// implementation writes the slot, the appointment, and the outbox event in
// one transaction; Book must fail with ErrSlotTaken when another booking for
// the same provider and start time commits first.
type Store interface {
	ProviderByID(ctx context.Context, id string) (model.Provider, error)
	ProviderByUserID(ctx context.Context, userID string) (model.Provider, error)
	PatientByUserID(ctx context.Context, userID string) (model.Patient, error)
	UpsertProvider(ctx context.Context, p model.Provider) error
	UpsertPatient(ctx context.Context, p model.Patient) error

	SlotBooked(ctx context.Context, providerID string, start time.Time) (bool, error)
	BookedStarts(ctx context.Context, providerID string, from, to time.Time) ([]time.Time, error)

	Book(ctx context.Context, slot model.Slot, appt model.Appointment, evt outbox.Event) error
	AppointmentByID(ctx context.Context, id string) (model.Appointment, error)
	Cancel(ctx context.Context, appointmentID, reason string, cancelledAt time.Time, evt outbox.Event) error

	ListForPatient(ctx context.Context, patientID string, limit int) ([]model.Appointment, error)
	ListForProvider(ctx context.Context, providerID string, limit int) ([]model.Appointment, error)
}

type Service struct {
	store Store
	dir   directory.Resolver
	grid  slots.Grid
	now   func() time.Time
}

// New builds the booking service. dir may be nil when the directory resolver
// is not compiled in; lookups then rely on the event-fed replica alone.
func New(store Store, dir directory.Resolver, grid slots.Grid) *Service {
	return &Service{store: store, dir: dir, grid: grid, now: time.Now}
}

func (s *Service) Grid() slots.Grid { return s.grid }

type BookInput struct {
	UserID     string
	ProviderID string
	StartTime  string
	Reason     string
}

// Book reserves a grid slot for the calling patient. Validation runs in a
// fixed order so callers get the most specific error: unknown provider, wrong
// role, malformed or off-grid time, past start, then slot contention.
func (s *Service) Book(ctx context.Context, in BookInput) (model.Appointment, error) {
	in.UserID = strings.TrimSpace(in.UserID)
	in.ProviderID = strings.TrimSpace(in.ProviderID)
	in.StartTime = strings.TrimSpace(in.StartTime)
	in.Reason = strings.TrimSpace(in.Reason)
	if in.UserID == "" || in.ProviderID == "" || in.StartTime == "" {
		return model.Appointment{}, ErrMissingField
	}

	provider, err := s.resolveProvider(ctx, in.ProviderID)
	if err != nil {
		return model.Appointment{}, err
	}
	if provider.Role != "provider" {
		return model.Appointment{}, ErrNotAProvider
	}

	start, err := time.Parse(time.RFC3339, in.StartTime)
	if err != nil {
		return model.Appointment{}, ErrMalformedTime
	}
	start = start.UTC()
	if !s.grid.Aligned(start) {
		return model.Appointment{}, ErrOffGrid
	}
	now := s.now().UTC()
	if !start.After(now) {
		return model.Appointment{}, ErrPastSlot
	}

	patient, err := s.resolvePatient(ctx, in.UserID)
	if err != nil {
		return model.Appointment{}, err
	}

	// Advisory pre-check. The partial unique index on booked slots is what
	// actually decides races; Book surfaces that as ErrSlotTaken too.
	taken, err := s.store.SlotBooked(ctx, provider.ID, start)
	if err != nil {
		return model.Appointment{}, err
	}
	if taken {
		return model.Appointment{}, ErrSlotTaken
	}

	slot := model.Slot{
		ID:         uuid.NewString(),
		ProviderID: provider.ID,
		StartTime:  start,
		EndTime:    start.Add(s.grid.Interval()),
		IsBooked:   true,
	}
	appt := model.Appointment{
		ID:         uuid.NewString(),
		ProviderID: provider.ID,
		PatientID:  patient.ID,
		SlotID:     slot.ID,
		Status:     model.StatusBooked,
		Reason:     in.Reason,
		CreatedAt:  now,
		StartTime:  slot.StartTime,
		EndTime:    slot.EndTime,

		ProviderName:       provider.Name,
		ProviderSpeciality: provider.Speciality,
		AppointmentFee:     provider.AppointmentFee,
	}

	payload, err := json.Marshal(map[string]any{
		"appointment_id": appt.ID,
		"provider_id":    appt.ProviderID,
		"patient_id":     appt.PatientID,
		"slot_id":        appt.SlotID,
		"start_time":     appt.StartTime.Format(time.RFC3339),
		"end_time":       appt.EndTime.Format(time.RFC3339),
		"reason":         appt.Reason,
		"created_at":     appt.CreatedAt.Format(time.RFC3339),
	})
	if err != nil {
		return model.Appointment{}, err
	}

	if err := s.store.Book(ctx, slot, appt, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   appt.ID,
		EventType:     EventAppointmentBooked,
		Payload:       payload,
	}); err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}

type CancelInput struct {
	UserID        string
	AppointmentID string
	Reason        string
}

// Cancel flips a future booked appointment to cancelled and frees its slot.
// Appointments owned by other patients are reported as not found.
func (s *Service) Cancel(ctx context.Context, in CancelInput) (model.Appointment, error) {
	in.UserID = strings.TrimSpace(in.UserID)
	in.AppointmentID = strings.TrimSpace(in.AppointmentID)
	in.Reason = strings.TrimSpace(in.Reason)
	if in.UserID == "" || in.AppointmentID == "" {
		return model.Appointment{}, ErrMissingField
	}

	patient, err := s.resolvePatient(ctx, in.UserID)
	if err != nil {
		return model.Appointment{}, err
	}

	appt, err := s.store.AppointmentByID(ctx, in.AppointmentID)
	if err != nil {
		return model.Appointment{}, err
	}
	if appt.PatientID != patient.ID {
		return model.Appointment{}, ErrAppointmentNotFound
	}
	// Past wins over already-cancelled: once the start time has gone by,
	// nothing about the appointment is actionable anymore, whatever its status.
	now := s.now().UTC()
	if !appt.StartTime.After(now) {
		return model.Appointment{}, ErrPastAppointment
	}
	if appt.Status == model.StatusCancelled {
		return model.Appointment{}, ErrAlreadyCancelled
	}

	payload, err := json.Marshal(map[string]any{
		"appointment_id": appt.ID,
		"provider_id":    appt.ProviderID,
		"patient_id":     appt.PatientID,
		"slot_id":        appt.SlotID,
		"start_time":     appt.StartTime.Format(time.RFC3339),
		"end_time":       appt.EndTime.Format(time.RFC3339),
		"cancelled_at":   now.Format(time.RFC3339),
		"reason":         in.Reason,
	})
	if err != nil {
		return model.Appointment{}, err
	}

	if err := s.store.Cancel(ctx, appt.ID, in.Reason, now, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   appt.ID,
		EventType:     EventAppointmentCancelled,
		Payload:       payload,
	}); err != nil {
		return model.Appointment{}, err
	}

	appt.Status = model.StatusCancelled
	appt.CancelReason = in.Reason
	appt.CancelledAt = &now
	return appt, nil
}

// Availability returns the open slots for a provider starting at the day
// containing date. days <= 0 means the full lookahead window.
func (s *Service) Availability(ctx context.Context, providerID string, date time.Time, days int) ([]slots.Candidate, error) {
	providerID = strings.TrimSpace(providerID)
	if providerID == "" {
		return nil, ErrMissingField
	}
	provider, err := s.resolveProvider(ctx, providerID)
	if err != nil {
		return nil, err
	}
	if provider.Role != "provider" {
		return nil, ErrNotAProvider
	}

	if days <= 0 {
		days = s.grid.LookaheadDays
	}
	from, _ := s.grid.DayWindow(date)
	_, to := s.grid.DayWindow(date.AddDate(0, 0, days-1))

	booked, err := s.store.BookedStarts(ctx, provider.ID, from, to)
	if err != nil {
		return nil, err
	}
	return availability.AvailableRange(s.grid, date, days, booked, s.now().UTC()), nil
}

// PatientAppointments lists the calling patient's appointments, newest first.
func (s *Service) PatientAppointments(ctx context.Context, userID string, limit int) ([]model.Appointment, error) {
	patient, err := s.resolvePatient(ctx, strings.TrimSpace(userID))
	if err != nil {
		return nil, err
	}
	return s.store.ListForPatient(ctx, patient.ID, limit)
}

// ProviderSchedule lists the calling provider's appointments, newest first.
func (s *Service) ProviderSchedule(ctx context.Context, userID string, limit int) ([]model.Appointment, error) {
	provider, err := s.store.ProviderByUserID(ctx, strings.TrimSpace(userID))
	if err != nil {
		return nil, err
	}
	return s.store.ListForProvider(ctx, provider.ID, limit)
}

func (s *Service) resolveProvider(ctx context.Context, id string) (model.Provider, error) {
	p, err := s.store.ProviderByID(ctx, id)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrProviderNotFound) || s.dir == nil {
		return model.Provider{}, err
	}
	p, found, derr := s.dir.Provider(ctx, id)
	if derr != nil || !found {
		return model.Provider{}, ErrProviderNotFound
	}
	_ = s.store.UpsertProvider(ctx, p)
	return p, nil
}

func (s *Service) resolvePatient(ctx context.Context, userID string) (model.Patient, error) {
	if userID == "" {
		return model.Patient{}, ErrMissingField
	}
	p, err := s.store.PatientByUserID(ctx, userID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrPatientNotFound) || s.dir == nil {
		return model.Patient{}, err
	}
	p, found, derr := s.dir.Patient(ctx, userID)
	if derr != nil || !found {
		return model.Patient{}, ErrPatientNotFound
	}
	_ = s.store.UpsertPatient(ctx, p)
	return p, nil
}
