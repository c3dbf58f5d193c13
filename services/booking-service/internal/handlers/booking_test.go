package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/docslot/docslot/services/booking-service/internal/booking"
	"github.com/docslot/docslot/services/booking-service/internal/model"
	"github.com/docslot/docslot/services/booking-service/internal/outbox"
	"github.com/docslot/docslot/services/booking-service/internal/slots"
)

type memStore struct {
	mu        sync.Mutex
	providers map[string]model.Provider
	patients  map[string]model.Patient
	slots     map[string]model.Slot
	appts     map[string]model.Appointment
}

func newMemStore() *memStore {
	return &memStore{
		providers: map[string]model.Provider{
			"prov-1": {ID: "prov-1", UserID: "user-prov-1", Name: "Dr. Farid Kabir", Role: "provider", Speciality: "cardiology", AppointmentFee: "150"},
		},
		patients: map[string]model.Patient{
			"user-pat-1": {ID: "pat-1", UserID: "user-pat-1", Name: "Asha Rahman"},
		},
		slots: make(map[string]model.Slot),
		appts: make(map[string]model.Appointment),
	}
}

func (m *memStore) ProviderByID(_ context.Context, id string) (model.Provider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.providers[id]
	if !ok {
		return model.Provider{}, booking.ErrProviderNotFound
	}
	return p, nil
}

func (m *memStore) ProviderByUserID(_ context.Context, userID string) (model.Provider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.providers {
		if p.UserID == userID {
			return p, nil
		}
	}
	return model.Provider{}, booking.ErrProviderNotFound
}

func (m *memStore) PatientByUserID(_ context.Context, userID string) (model.Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.patients[userID]
	if !ok {
		return model.Patient{}, booking.ErrPatientNotFound
	}
	return p, nil
}

func (m *memStore) UpsertProvider(_ context.Context, p model.Provider) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.providers[p.ID] = p
	return nil
}

func (m *memStore) UpsertPatient(_ context.Context, p model.Patient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.patients[p.UserID] = p
	return nil
}

func (m *memStore) SlotBooked(_ context.Context, providerID string, start time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.slots {
		if s.ProviderID == providerID && s.IsBooked && s.StartTime.Equal(start) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) BookedStarts(_ context.Context, providerID string, from, to time.Time) ([]time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []time.Time
	for _, s := range m.slots {
		if s.ProviderID == providerID && s.IsBooked && !s.StartTime.Before(from) && s.StartTime.Before(to) {
			out = append(out, s.StartTime)
		}
	}
	return out, nil
}

func (m *memStore) Book(_ context.Context, slot model.Slot, appt model.Appointment, _ outbox.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.slots {
		if s.ProviderID == slot.ProviderID && s.IsBooked && s.StartTime.Equal(slot.StartTime) {
			return booking.ErrSlotTaken
		}
	}
	m.slots[slot.ID] = slot
	m.appts[appt.ID] = appt
	return nil
}

func (m *memStore) AppointmentByID(_ context.Context, id string) (model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return model.Appointment{}, booking.ErrAppointmentNotFound
	}
	return a, nil
}

func (m *memStore) Cancel(_ context.Context, appointmentID, reason string, cancelledAt time.Time, _ outbox.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[appointmentID]
	if !ok {
		return booking.ErrAppointmentNotFound
	}
	if a.Status != model.StatusBooked {
		return booking.ErrAlreadyCancelled
	}
	a.Status = model.StatusCancelled
	a.CancelReason = reason
	a.CancelledAt = &cancelledAt
	m.appts[appointmentID] = a
	s := m.slots[a.SlotID]
	s.IsBooked = false
	m.slots[a.SlotID] = s
	return nil
}

func (m *memStore) ListForPatient(_ context.Context, patientID string, _ int) ([]model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Appointment
	for _, a := range m.appts {
		if a.PatientID == patientID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memStore) ListForProvider(_ context.Context, providerID string, _ int) ([]model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Appointment
	for _, a := range m.appts {
		if a.ProviderID == providerID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func newTestHandler() (*BookingHandler, *memStore) {
	store := newMemStore()
	svc := booking.New(store, nil, slots.DefaultGrid())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewBookingHandler(svc, logger), store
}

func futureStarts(t *testing.T) []string {
	t.Helper()
	g := slots.DefaultGrid()
	out := g.GenerateDay(time.Now().UTC().AddDate(0, 0, 2), time.Now().UTC())
	if len(out) < 2 {
		t.Fatal("no template slots generated")
	}
	starts := make([]string, 0, len(out))
	for _, c := range out {
		starts = append(starts, c.Start.Format(time.RFC3339))
	}
	return starts
}

func futureStart(t *testing.T) string {
	t.Helper()
	return futureStarts(t)[0]
}

func doBook(h *BookingHandler, userID, role, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/appointments/book", strings.NewReader(body))
	if userID != "" {
		req.Header.Set("X-User-Id", userID)
	}
	if role != "" {
		req.Header.Set("X-Role", role)
	}
	rec := httptest.NewRecorder()
	h.Book(rec, req)
	return rec
}

func TestBook_Created(t *testing.T) {
	h, _ := newTestHandler()
	body := `{"provider_id":"prov-1","start_time":"` + futureStart(t) + `","reason":"annual checkup"}`

	rec := doBook(h, "user-pat-1", "patient", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp bookResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response: %v", err)
	}
	if resp.AppointmentID == "" || resp.Status != model.StatusBooked {
		t.Fatalf("resp = %+v", resp)
	}
	if resp.ProviderName != "Dr. Farid Kabir" || resp.ProviderSpeciality != "cardiology" || resp.AppointmentFee != "150" {
		t.Fatalf("provider fields missing from response: %+v", resp)
	}
	if resp.Reason != "annual checkup" {
		t.Fatalf("reason = %q", resp.Reason)
	}
}

func TestList_NewestBookingFirst(t *testing.T) {
	h, _ := newTestHandler()
	starts := futureStarts(t)

	// Book the later slot first; the listing leads with the latest booking.
	for _, start := range []string{starts[1], starts[0]} {
		body := `{"provider_id":"prov-1","start_time":"` + start + `"}`
		if rec := doBook(h, "user-pat-1", "patient", body); rec.Code != http.StatusCreated {
			t.Fatalf("booking %s: status = %d", start, rec.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/appointments", nil)
	req.Header.Set("X-User-Id", "user-pat-1")
	req.Header.Set("X-Role", "patient")
	rec := httptest.NewRecorder()
	h.List(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var items []appointmentItem
	if err := json.Unmarshal(rec.Body.Bytes(), &items); err != nil {
		t.Fatalf("bad response: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].StartTime != starts[0] || items[1].StartTime != starts[1] {
		t.Fatalf("order = [%s, %s], want latest booking first", items[0].StartTime, items[1].StartTime)
	}
	for _, item := range items {
		if item.ProviderName != "Dr. Farid Kabir" || item.AppointmentFee != "150" {
			t.Fatalf("provider fields missing from item: %+v", item)
		}
	}
}

func TestBook_AuthHeaders(t *testing.T) {
	h, _ := newTestHandler()
	body := `{"provider_id":"prov-1","start_time":"` + futureStart(t) + `"}`

	if rec := doBook(h, "", "", body); rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing user: status = %d", rec.Code)
	}
	if rec := doBook(h, "user-prov-1", "provider", body); rec.Code != http.StatusForbidden {
		t.Fatalf("provider booking: status = %d", rec.Code)
	}
}

func TestBook_ErrorMapping(t *testing.T) {
	h, _ := newTestHandler()
	start := futureStart(t)

	cases := []struct {
		name string
		body string
		want int
	}{
		{"unknown provider", `{"provider_id":"missing","start_time":"` + start + `"}`, http.StatusNotFound},
		{"malformed time", `{"provider_id":"prov-1","start_time":"soon"}`, http.StatusBadRequest},
		{"missing fields", `{}`, http.StatusBadRequest},
		{"bad json", `{`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		if rec := doBook(h, "user-pat-1", "patient", tc.body); rec.Code != tc.want {
			t.Errorf("%s: status = %d, want %d", tc.name, rec.Code, tc.want)
		}
	}
}

func TestBook_Conflict(t *testing.T) {
	h, _ := newTestHandler()
	body := `{"provider_id":"prov-1","start_time":"` + futureStart(t) + `"}`

	if rec := doBook(h, "user-pat-1", "patient", body); rec.Code != http.StatusCreated {
		t.Fatalf("first booking: status = %d", rec.Code)
	}
	if rec := doBook(h, "user-pat-1", "patient", body); rec.Code != http.StatusConflict {
		t.Fatalf("second booking: status = %d", rec.Code)
	}
}

func TestCancel_NotFound(t *testing.T) {
	h, _ := newTestHandler()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/appointments/cancel", strings.NewReader(`{"appointment_id":"missing"}`))
	req.Header.Set("X-User-Id", "user-pat-1")
	req.Header.Set("X-Role", "patient")
	rec := httptest.NewRecorder()
	h.Cancel(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestSlots_Validation(t *testing.T) {
	h, _ := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/public/slots", nil)
	rec := httptest.NewRecorder()
	h.Slots(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing provider_id: status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/public/slots?provider_id=prov-1&date=next-tuesday", nil)
	rec = httptest.NewRecorder()
	h.Slots(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad date: status = %d", rec.Code)
	}

	tomorrow := time.Now().UTC().AddDate(0, 0, 1).Format("2006-01-02")
	req = httptest.NewRequest(http.MethodGet, "/api/v1/public/slots?provider_id=prov-1&date="+tomorrow, nil)
	rec = httptest.NewRecorder()
	h.Slots(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("slots: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var items []slotItem
	if err := json.Unmarshal(rec.Body.Bytes(), &items); err != nil {
		t.Fatalf("bad response: %v", err)
	}
	if len(items) != 22 {
		t.Fatalf("expected full day of 22 slots, got %d", len(items))
	}
}
