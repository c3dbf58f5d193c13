package booking

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/docslot/docslot/services/booking-service/internal/model"
	"github.com/docslot/docslot/services/booking-service/internal/outbox"
	"github.com/docslot/docslot/services/booking-service/internal/slots"
)

// fakeStore is an in-memory Store. Book enforces the same uniqueness the pg
// partial index does (one booked slot per provider and start time) under a
// mutex, so concurrent bookings race the way they do against the database.
type fakeStore struct {
	mu        sync.Mutex
	providers map[string]model.Provider
	patients  map[string]model.Patient
	slots     map[string]model.Slot
	appts     map[string]model.Appointment
	events    []outbox.Event
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		providers: make(map[string]model.Provider),
		patients:  make(map[string]model.Patient),
		slots:     make(map[string]model.Slot),
		appts:     make(map[string]model.Appointment),
	}
}

func (f *fakeStore) ProviderByID(_ context.Context, id string) (model.Provider, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.providers[id]
	if !ok {
		return model.Provider{}, ErrProviderNotFound
	}
	return p, nil
}

func (f *fakeStore) ProviderByUserID(_ context.Context, userID string) (model.Provider, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.providers {
		if p.UserID == userID {
			return p, nil
		}
	}
	return model.Provider{}, ErrProviderNotFound
}

func (f *fakeStore) PatientByUserID(_ context.Context, userID string) (model.Patient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.patients[userID]
	if !ok {
		return model.Patient{}, ErrPatientNotFound
	}
	return p, nil
}

func (f *fakeStore) UpsertProvider(_ context.Context, p model.Provider) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.providers[p.ID] = p
	return nil
}

func (f *fakeStore) UpsertPatient(_ context.Context, p model.Patient) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.patients[p.UserID] = p
	return nil
}

func (f *fakeStore) SlotBooked(_ context.Context, providerID string, start time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bookedLocked(providerID, start), nil
}

func (f *fakeStore) bookedLocked(providerID string, start time.Time) bool {
	for _, s := range f.slots {
		if s.ProviderID == providerID && s.IsBooked && s.StartTime.Equal(start) {
			return true
		}
	}
	return false
}

func (f *fakeStore) BookedStarts(_ context.Context, providerID string, from, to time.Time) ([]time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []time.Time
	for _, s := range f.slots {
		if s.ProviderID == providerID && s.IsBooked && !s.StartTime.Before(from) && s.StartTime.Before(to) {
			out = append(out, s.StartTime)
		}
	}
	return out, nil
}

func (f *fakeStore) Book(_ context.Context, slot model.Slot, appt model.Appointment, evt outbox.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.bookedLocked(slot.ProviderID, slot.StartTime) {
		return ErrSlotTaken
	}
	f.slots[slot.ID] = slot
	f.appts[appt.ID] = appt
	f.events = append(f.events, evt)
	return nil
}

func (f *fakeStore) AppointmentByID(_ context.Context, id string) (model.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.appts[id]
	if !ok {
		return model.Appointment{}, ErrAppointmentNotFound
	}
	return a, nil
}

func (f *fakeStore) Cancel(_ context.Context, appointmentID, reason string, cancelledAt time.Time, evt outbox.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.appts[appointmentID]
	if !ok {
		return ErrAppointmentNotFound
	}
	if a.Status != model.StatusBooked {
		return ErrAlreadyCancelled
	}
	a.Status = model.StatusCancelled
	a.CancelReason = reason
	a.CancelledAt = &cancelledAt
	f.appts[appointmentID] = a

	s := f.slots[a.SlotID]
	s.IsBooked = false
	f.slots[a.SlotID] = s

	f.events = append(f.events, evt)
	return nil
}

func (f *fakeStore) ListForPatient(_ context.Context, patientID string, limit int) ([]model.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Appointment
	for _, a := range f.appts {
		if a.PatientID == patientID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) ListForProvider(_ context.Context, providerID string, limit int) ([]model.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Appointment
	for _, a := range f.appts {
		if a.ProviderID == providerID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) eventTypes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, e := range f.events {
		out = append(out, e.EventType)
	}
	return out
}

func newTestService(store *fakeStore, now time.Time) *Service {
	svc := New(store, nil, slots.DefaultGrid())
	svc.now = func() time.Time { return now }
	return svc
}

func seed(store *fakeStore) (model.Provider, model.Patient) {
	provider := model.Provider{
		ID:             "prov-1",
		UserID:         "user-prov-1",
		Name:           "Dr. Farid Kabir",
		Role:           "provider",
		Speciality:     "cardiology",
		AppointmentFee: "150",
	}
	patient := model.Patient{ID: "pat-1", UserID: "user-pat-1", Name: "Asha Rahman"}
	store.providers[provider.ID] = provider
	store.patients[patient.UserID] = patient
	return provider, patient
}

func TestBook_Success(t *testing.T) {
	store := newFakeStore()
	provider, patient := seed(store)
	now := time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC)
	svc := newTestService(store, now)

	appt, err := svc.Book(context.Background(), BookInput{
		UserID:     patient.UserID,
		ProviderID: provider.ID,
		StartTime:  "2026-03-10T10:00:00Z",
		Reason:     "chest pain follow-up",
	})
	if err != nil {
		t.Fatalf("Book: %v", err)
	}
	if appt.Status != model.StatusBooked {
		t.Fatalf("status = %q", appt.Status)
	}
	if !appt.EndTime.Equal(appt.StartTime.Add(30 * time.Minute)) {
		t.Fatalf("end time %s does not match slot length", appt.EndTime)
	}
	if appt.PatientID != patient.ID || appt.ProviderID != provider.ID {
		t.Fatalf("appointment keyed by %q/%q, want record ids", appt.PatientID, appt.ProviderID)
	}
	if appt.Reason != "chest pain follow-up" {
		t.Fatalf("reason = %q, want the booking reason stored", appt.Reason)
	}
	if stored := store.appts[appt.ID]; stored.Reason != "chest pain follow-up" {
		t.Fatalf("persisted reason = %q", stored.Reason)
	}
	if appt.ProviderName != provider.Name || appt.ProviderSpeciality != provider.Speciality || appt.AppointmentFee != provider.AppointmentFee {
		t.Fatalf("provider display fields not carried: %+v", appt)
	}

	types := store.eventTypes()
	if len(types) != 1 || types[0] != EventAppointmentBooked {
		t.Fatalf("events = %v", types)
	}
}

func TestBook_ValidationOrder(t *testing.T) {
	store := newFakeStore()
	provider, patient := seed(store)
	store.providers["prov-patient"] = model.Provider{ID: "prov-patient", Role: "patient"}
	now := time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC)
	svc := newTestService(store, now)
	ctx := context.Background()

	cases := []struct {
		name string
		in   BookInput
		want error
	}{
		{"unknown provider", BookInput{UserID: patient.UserID, ProviderID: "missing", StartTime: "2026-03-10T10:00:00Z"}, ErrProviderNotFound},
		{"wrong role", BookInput{UserID: patient.UserID, ProviderID: "prov-patient", StartTime: "2026-03-10T10:00:00Z"}, ErrNotAProvider},
		{"malformed time", BookInput{UserID: patient.UserID, ProviderID: provider.ID, StartTime: "tomorrow at ten"}, ErrMalformedTime},
		{"off grid", BookInput{UserID: patient.UserID, ProviderID: provider.ID, StartTime: "2026-03-10T10:15:00Z"}, ErrOffGrid},
		{"outside window", BookInput{UserID: patient.UserID, ProviderID: provider.ID, StartTime: "2026-03-10T21:00:00Z"}, ErrOffGrid},
		{"past start", BookInput{UserID: patient.UserID, ProviderID: provider.ID, StartTime: "2026-03-09T10:00:00Z"}, ErrPastSlot},
		{"unknown patient", BookInput{UserID: "user-missing", ProviderID: provider.ID, StartTime: "2026-03-10T10:00:00Z"}, ErrPatientNotFound},
		{"missing field", BookInput{UserID: patient.UserID, ProviderID: provider.ID}, ErrMissingField},
	}
	for _, tc := range cases {
		if _, err := svc.Book(ctx, tc.in); !errors.Is(err, tc.want) {
			t.Errorf("%s: err = %v, want %v", tc.name, err, tc.want)
		}
	}
}

func TestBook_SlotTaken(t *testing.T) {
	store := newFakeStore()
	provider, _ := seed(store)
	store.patients["user-pat-2"] = model.Patient{ID: "pat-2", UserID: "user-pat-2", Name: "Nadia Islam"}
	now := time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC)
	svc := newTestService(store, now)
	ctx := context.Background()

	in := BookInput{UserID: "user-pat-1", ProviderID: provider.ID, StartTime: "2026-03-10T14:30:00Z"}
	if _, err := svc.Book(ctx, in); err != nil {
		t.Fatalf("first Book: %v", err)
	}

	in.UserID = "user-pat-2"
	_, err := svc.Book(ctx, in)
	if !errors.Is(err, ErrSlotTaken) {
		t.Fatalf("second Book err = %v, want ErrSlotTaken", err)
	}
	if !IsConflict(err) {
		t.Fatalf("ErrSlotTaken must classify as conflict")
	}
}

func TestBook_ConcurrentSingleWinner(t *testing.T) {
	store := newFakeStore()
	provider, _ := seed(store)
	now := time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC)
	svc := newTestService(store, now)

	const racers = 8
	for i := 0; i < racers; i++ {
		store.patients[patientUser(i)] = model.Patient{ID: patientUser(i) + "-rec", UserID: patientUser(i)}
	}

	var wg sync.WaitGroup
	results := make([]error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = svc.Book(context.Background(), BookInput{
				UserID:     patientUser(i),
				ProviderID: provider.ID,
				StartTime:  "2026-03-10T11:00:00Z",
			})
		}(i)
	}
	wg.Wait()

	var wins, conflicts int
	for _, err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrSlotTaken):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 || conflicts != racers-1 {
		t.Fatalf("wins = %d, conflicts = %d", wins, conflicts)
	}
}

func patientUser(i int) string {
	return "user-racer-" + string(rune('a'+i))
}

func TestCancel_FlowAndRebook(t *testing.T) {
	store := newFakeStore()
	provider, patient := seed(store)
	store.patients["user-pat-2"] = model.Patient{ID: "pat-2", UserID: "user-pat-2"}
	now := time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC)
	svc := newTestService(store, now)
	ctx := context.Background()

	appt, err := svc.Book(ctx, BookInput{UserID: patient.UserID, ProviderID: provider.ID, StartTime: "2026-03-10T16:00:00Z"})
	if err != nil {
		t.Fatalf("Book: %v", err)
	}

	cancelled, err := svc.Cancel(ctx, CancelInput{UserID: patient.UserID, AppointmentID: appt.ID, Reason: "feeling better"})
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if cancelled.Status != model.StatusCancelled || cancelled.CancelledAt == nil {
		t.Fatalf("cancelled = %+v", cancelled)
	}
	if cancelled.CancelReason != "feeling better" {
		t.Fatalf("cancel reason = %q", cancelled.CancelReason)
	}

	if _, err := svc.Cancel(ctx, CancelInput{UserID: patient.UserID, AppointmentID: appt.ID}); !errors.Is(err, ErrAlreadyCancelled) {
		t.Fatalf("second Cancel err = %v, want ErrAlreadyCancelled", err)
	}

	// The freed time is bookable again, by anyone.
	rebooked, err := svc.Book(ctx, BookInput{UserID: "user-pat-2", ProviderID: provider.ID, StartTime: "2026-03-10T16:00:00Z"})
	if err != nil {
		t.Fatalf("rebook after cancel: %v", err)
	}
	if rebooked.SlotID == appt.SlotID {
		t.Fatalf("rebooking must create a fresh slot row")
	}

	types := store.eventTypes()
	want := []string{EventAppointmentBooked, EventAppointmentCancelled, EventAppointmentBooked}
	if len(types) != len(want) {
		t.Fatalf("events = %v", types)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("events = %v, want %v", types, want)
		}
	}
}

func TestCancel_Guards(t *testing.T) {
	store := newFakeStore()
	provider, patient := seed(store)
	store.patients["user-pat-2"] = model.Patient{ID: "pat-2", UserID: "user-pat-2"}
	now := time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC)
	svc := newTestService(store, now)
	ctx := context.Background()

	appt, err := svc.Book(ctx, BookInput{UserID: patient.UserID, ProviderID: provider.ID, StartTime: "2026-03-10T10:00:00Z"})
	if err != nil {
		t.Fatalf("Book: %v", err)
	}

	if _, err := svc.Cancel(ctx, CancelInput{UserID: patient.UserID, AppointmentID: "missing"}); !errors.Is(err, ErrAppointmentNotFound) {
		t.Fatalf("unknown id err = %v", err)
	}

	// Another patient's appointment looks like it does not exist.
	if _, err := svc.Cancel(ctx, CancelInput{UserID: "user-pat-2", AppointmentID: appt.ID}); !errors.Is(err, ErrAppointmentNotFound) {
		t.Fatalf("foreign appointment err = %v", err)
	}

	// Once the start time has passed the appointment can no longer be cancelled.
	late := newTestService(store, time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC))
	if _, err := late.Cancel(ctx, CancelInput{UserID: patient.UserID, AppointmentID: appt.ID}); !errors.Is(err, ErrPastAppointment) {
		t.Fatalf("past appointment err = %v", err)
	}
}

func TestCancel_PastWinsOverAlreadyCancelled(t *testing.T) {
	store := newFakeStore()
	provider, patient := seed(store)
	svc := newTestService(store, time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC))
	ctx := context.Background()

	appt, err := svc.Book(ctx, BookInput{UserID: patient.UserID, ProviderID: provider.ID, StartTime: "2026-03-10T10:00:00Z"})
	if err != nil {
		t.Fatalf("Book: %v", err)
	}
	if _, err := svc.Cancel(ctx, CancelInput{UserID: patient.UserID, AppointmentID: appt.ID}); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	// A cancelled appointment whose start has gone by reads as past, not as
	// already cancelled.
	late := newTestService(store, time.Date(2026, 3, 10, 11, 0, 0, 0, time.UTC))
	if _, err := late.Cancel(ctx, CancelInput{UserID: patient.UserID, AppointmentID: appt.ID}); !errors.Is(err, ErrPastAppointment) {
		t.Fatalf("cancelled+past err = %v, want ErrPastAppointment", err)
	}
}

func TestAvailability_ReflectsBookings(t *testing.T) {
	store := newFakeStore()
	provider, patient := seed(store)
	now := time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC)
	svc := newTestService(store, now)
	ctx := context.Background()
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	open, err := svc.Availability(ctx, provider.ID, day, 1)
	if err != nil {
		t.Fatalf("Availability: %v", err)
	}
	if len(open) != 22 {
		t.Fatalf("expected full day of 22 slots, got %d", len(open))
	}

	appt, err := svc.Book(ctx, BookInput{UserID: patient.UserID, ProviderID: provider.ID, StartTime: "2026-03-10T10:00:00Z"})
	if err != nil {
		t.Fatalf("Book: %v", err)
	}

	open, err = svc.Availability(ctx, provider.ID, day, 1)
	if err != nil {
		t.Fatalf("Availability: %v", err)
	}
	if len(open) != 21 {
		t.Fatalf("expected 21 slots after booking, got %d", len(open))
	}
	for _, c := range open {
		if c.Start.Equal(appt.StartTime) {
			t.Fatalf("booked slot still offered")
		}
	}

	if _, err := svc.Cancel(ctx, CancelInput{UserID: patient.UserID, AppointmentID: appt.ID}); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	open, err = svc.Availability(ctx, provider.ID, day, 1)
	if err != nil {
		t.Fatalf("Availability: %v", err)
	}
	if len(open) != 22 {
		t.Fatalf("expected freed slot back, got %d", len(open))
	}
}

func TestPatientAppointments_OwnOnly(t *testing.T) {
	store := newFakeStore()
	provider, patient := seed(store)
	store.patients["user-pat-2"] = model.Patient{ID: "pat-2", UserID: "user-pat-2"}
	now := time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC)
	svc := newTestService(store, now)
	// Each call sees a later clock, so creation order is observable.
	svc.now = func() time.Time {
		now = now.Add(time.Minute)
		return now
	}
	ctx := context.Background()

	// Book the later slot first: listing order follows booking time, not
	// slot time.
	if _, err := svc.Book(ctx, BookInput{UserID: patient.UserID, ProviderID: provider.ID, StartTime: "2026-03-11T12:30:00Z"}); err != nil {
		t.Fatalf("Book: %v", err)
	}
	if _, err := svc.Book(ctx, BookInput{UserID: patient.UserID, ProviderID: provider.ID, StartTime: "2026-03-10T10:00:00Z"}); err != nil {
		t.Fatalf("Book: %v", err)
	}
	if _, err := svc.Book(ctx, BookInput{UserID: "user-pat-2", ProviderID: provider.ID, StartTime: "2026-03-10T11:00:00Z"}); err != nil {
		t.Fatalf("Book: %v", err)
	}

	appts, err := svc.PatientAppointments(ctx, patient.UserID, 50)
	if err != nil {
		t.Fatalf("PatientAppointments: %v", err)
	}
	if len(appts) != 2 {
		t.Fatalf("expected 2 appointments, got %d", len(appts))
	}
	if !appts[0].CreatedAt.After(appts[1].CreatedAt) {
		t.Fatalf("expected most recently booked first")
	}
	if want := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC); !appts[0].StartTime.Equal(want) {
		t.Fatalf("first item starts %s, want the later booking's slot %s", appts[0].StartTime, want)
	}
	for _, a := range appts {
		if a.PatientID != patient.ID {
			t.Fatalf("foreign appointment in listing: %+v", a)
		}
	}
}
