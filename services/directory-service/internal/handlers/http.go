package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/docslot/docslot/services/directory-service/internal/storage"
)

const (
	minAppointmentFee = 10
	maxAppointmentFee = 1000
)

// Store is the subset of the repository the HTTP surface needs.
type Store interface {
	GetProvider(ctx context.Context, id string) (storage.Provider, error)
	GetProviderByUserID(ctx context.Context, userID string) (storage.Provider, error)
	ListProviders(ctx context.Context, speciality string, limit int) ([]storage.Provider, error)
	GetPatientByUserID(ctx context.Context, userID string) (storage.Patient, error)
	UpdateProviderProfile(ctx context.Context, userID, name, speciality, experience, appointmentFee string) error
}

type Handler struct {
	store Store
}

func New(store Store) *Handler {
	return &Handler{store: store}
}

func userFromHeader(r *http.Request) (userID, role string) {
	return strings.TrimSpace(r.Header.Get("X-User-Id")), strings.TrimSpace(r.Header.Get("X-Role"))
}

type providerItem struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Speciality     string `json:"speciality"`
	Experience     string `json:"experience"`
	AppointmentFee string `json:"appointment_fee"`
}

func toProviderItem(p storage.Provider) providerItem {
	return providerItem{
		ID:             p.ID,
		Name:           p.Name,
		Speciality:     p.Speciality,
		Experience:     p.Experience,
		AppointmentFee: p.AppointmentFee,
	}
}

// Providers serves the public doctor directory. With ?id= it returns one
// provider, otherwise a list optionally filtered by ?speciality=.
func (h *Handler) Providers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if id := strings.TrimSpace(r.URL.Query().Get("id")); id != "" {
		p, err := h.store.GetProvider(r.Context(), id)
		if err != nil {
			if storage.IsNotFound(err) {
				http.Error(w, "provider not found", http.StatusNotFound)
				return
			}
			http.Error(w, "failed to load provider", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, toProviderItem(p))
		return
	}

	speciality := strings.TrimSpace(r.URL.Query().Get("speciality"))
	limit := 100
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	providers, err := h.store.ListProviders(r.Context(), speciality, limit)
	if err != nil {
		http.Error(w, "failed to list providers", http.StatusInternalServerError)
		return
	}
	items := make([]providerItem, 0, len(providers))
	for _, p := range providers {
		items = append(items, toProviderItem(p))
	}
	writeJSON(w, http.StatusOK, items)
}

// Profile returns the caller's own directory record on GET and, for
// providers, updates it on PUT. Identity comes from the gateway headers.
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	userID, role := userFromHeader(r)
	if userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.getProfile(w, r, userID, role)
	case http.MethodPut:
		h.updateProfile(w, r, userID, role)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) getProfile(w http.ResponseWriter, r *http.Request, userID, role string) {
	switch role {
	case "provider":
		p, err := h.store.GetProviderByUserID(r.Context(), userID)
		if err != nil {
			if storage.IsNotFound(err) {
				http.Error(w, "profile not found", http.StatusNotFound)
				return
			}
			http.Error(w, "failed to load profile", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"provider_id":     p.ID,
			"name":            p.Name,
			"speciality":      p.Speciality,
			"experience":      p.Experience,
			"appointment_fee": p.AppointmentFee,
		})
	case "patient":
		p, err := h.store.GetPatientByUserID(r.Context(), userID)
		if err != nil {
			if storage.IsNotFound(err) {
				http.Error(w, "profile not found", http.StatusNotFound)
				return
			}
			http.Error(w, "failed to load profile", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"patient_id": p.ID,
			"name":       p.Name,
		})
	default:
		http.Error(w, "forbidden", http.StatusForbidden)
	}
}

func (h *Handler) updateProfile(w http.ResponseWriter, r *http.Request, userID, role string) {
	if role != "provider" {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	var req struct {
		Name           string  `json:"name"`
		Speciality     string  `json:"speciality"`
		Experience     string  `json:"experience"`
		AppointmentFee float64 `json:"appointment_fee"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Speciality = strings.TrimSpace(req.Speciality)
	req.Experience = strings.TrimSpace(req.Experience)
	if req.Name == "" || req.Speciality == "" {
		http.Error(w, "name and speciality are required", http.StatusBadRequest)
		return
	}
	if req.AppointmentFee < minAppointmentFee || req.AppointmentFee > maxAppointmentFee {
		http.Error(w, "appointment_fee out of range", http.StatusBadRequest)
		return
	}

	fee := strconv.FormatFloat(req.AppointmentFee, 'f', -1, 64)
	if err := h.store.UpdateProviderProfile(r.Context(), userID, req.Name, req.Speciality, req.Experience, fee); err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "profile not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to update profile", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
