package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"

	"github.com/docslot/docslot/services/directory-service/internal/storage"
)

type fakeStore struct {
	providers map[string]storage.Provider
	patients  map[string]storage.Patient
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		providers: map[string]storage.Provider{},
		patients:  map[string]storage.Patient{},
	}
}

func (f *fakeStore) GetProvider(_ context.Context, id string) (storage.Provider, error) {
	p, ok := f.providers[id]
	if !ok {
		return storage.Provider{}, pgx.ErrNoRows
	}
	return p, nil
}

func (f *fakeStore) GetProviderByUserID(_ context.Context, userID string) (storage.Provider, error) {
	for _, p := range f.providers {
		if p.UserID == userID {
			return p, nil
		}
	}
	return storage.Provider{}, pgx.ErrNoRows
}

func (f *fakeStore) ListProviders(_ context.Context, speciality string, limit int) ([]storage.Provider, error) {
	var out []storage.Provider
	for _, p := range f.providers {
		if speciality != "" && p.Speciality != speciality {
			continue
		}
		out = append(out, p)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) GetPatientByUserID(_ context.Context, userID string) (storage.Patient, error) {
	for _, p := range f.patients {
		if p.UserID == userID {
			return p, nil
		}
	}
	return storage.Patient{}, pgx.ErrNoRows
}

func (f *fakeStore) UpdateProviderProfile(_ context.Context, userID, name, speciality, experience, appointmentFee string) error {
	for id, p := range f.providers {
		if p.UserID == userID {
			p.Name = name
			p.Speciality = speciality
			p.Experience = experience
			p.AppointmentFee = appointmentFee
			f.providers[id] = p
			return nil
		}
	}
	return pgx.ErrNoRows
}

func seed(f *fakeStore) {
	f.providers["prov-1"] = storage.Provider{
		ID:             "prov-1",
		UserID:         "user-prov-1",
		Name:           "Dr. Farid Kabir",
		Speciality:     "cardiology",
		Experience:     "12 years",
		AppointmentFee: "500",
	}
	f.providers["prov-2"] = storage.Provider{
		ID:             "prov-2",
		UserID:         "user-prov-2",
		Name:           "Dr. Nusrat Jahan",
		Speciality:     "dermatology",
		Experience:     "7 years",
		AppointmentFee: "350",
	}
	f.patients["pat-1"] = storage.Patient{
		ID:     "pat-1",
		UserID: "user-pat-1",
		Name:   "Asha Rahman",
	}
}

func TestProviders_ListAndFilter(t *testing.T) {
	store := newFakeStore()
	seed(store)
	h := New(store)

	rec := httptest.NewRecorder()
	h.Providers(rec, httptest.NewRequest(http.MethodGet, "/api/v1/public/providers", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "prov-1") || !strings.Contains(rec.Body.String(), "prov-2") {
		t.Fatalf("expected both providers, got %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.Providers(rec, httptest.NewRequest(http.MethodGet, "/api/v1/public/providers?speciality=cardiology", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "prov-1") || strings.Contains(rec.Body.String(), "prov-2") {
		t.Fatalf("speciality filter leaked, got %s", rec.Body.String())
	}
}

func TestProviders_Detail(t *testing.T) {
	store := newFakeStore()
	seed(store)
	h := New(store)

	rec := httptest.NewRecorder()
	h.Providers(rec, httptest.NewRequest(http.MethodGet, "/api/v1/public/providers?id=prov-1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Dr. Farid Kabir") {
		t.Fatalf("body = %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.Providers(rec, httptest.NewRequest(http.MethodGet, "/api/v1/public/providers?id=missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestProviders_InvalidLimit(t *testing.T) {
	h := New(newFakeStore())

	rec := httptest.NewRecorder()
	h.Providers(rec, httptest.NewRequest(http.MethodGet, "/api/v1/public/providers?limit=0", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestProfile_Get(t *testing.T) {
	store := newFakeStore()
	seed(store)
	h := New(store)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/directory/profile", nil)
	req.Header.Set("X-User-Id", "user-pat-1")
	req.Header.Set("X-Role", "patient")
	rec := httptest.NewRecorder()
	h.Profile(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "pat-1") {
		t.Fatalf("body = %s", rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/directory/profile", nil)
	req.Header.Set("X-User-Id", "user-prov-1")
	req.Header.Set("X-Role", "provider")
	rec = httptest.NewRecorder()
	h.Profile(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "cardiology") {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestProfile_MissingIdentity(t *testing.T) {
	h := New(newFakeStore())

	rec := httptest.NewRecorder()
	h.Profile(rec, httptest.NewRequest(http.MethodGet, "/api/v1/directory/profile", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestProfile_Update(t *testing.T) {
	store := newFakeStore()
	seed(store)
	h := New(store)

	body := `{"name":"Dr. Farid Kabir","speciality":"cardiology","experience":"13 years","appointment_fee":600}`
	req := httptest.NewRequest(http.MethodPut, "/api/v1/directory/profile", strings.NewReader(body))
	req.Header.Set("X-User-Id", "user-prov-1")
	req.Header.Set("X-Role", "provider")
	rec := httptest.NewRecorder()
	h.Profile(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204: %s", rec.Code, rec.Body.String())
	}
	if store.providers["prov-1"].AppointmentFee != "600" {
		t.Fatalf("fee = %s, want 600", store.providers["prov-1"].AppointmentFee)
	}
}

func TestProfile_UpdateGuards(t *testing.T) {
	store := newFakeStore()
	seed(store)
	h := New(store)

	cases := []struct {
		name string
		role string
		user string
		body string
		want int
	}{
		{"patient cannot update", "patient", "user-pat-1", `{"name":"x","speciality":"y","appointment_fee":100}`, http.StatusForbidden},
		{"fee below minimum", "provider", "user-prov-1", `{"name":"x","speciality":"y","appointment_fee":5}`, http.StatusBadRequest},
		{"fee above maximum", "provider", "user-prov-1", `{"name":"x","speciality":"y","appointment_fee":2000}`, http.StatusBadRequest},
		{"missing speciality", "provider", "user-prov-1", `{"name":"x","appointment_fee":100}`, http.StatusBadRequest},
		{"no provider row", "provider", "user-unknown", `{"name":"x","speciality":"y","appointment_fee":100}`, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPut, "/api/v1/directory/profile", strings.NewReader(tc.body))
			req.Header.Set("X-User-Id", tc.user)
			req.Header.Set("X-Role", tc.role)
			rec := httptest.NewRecorder()
			h.Profile(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tc.want, rec.Body.String())
			}
		})
	}
}
