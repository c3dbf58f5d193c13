package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/docslot/docslot/services/booking-service/internal/booking"
	"github.com/docslot/docslot/services/booking-service/internal/model"
)

type BookingHandler struct {
	svc    *booking.Service
	logger *slog.Logger
}

func NewBookingHandler(svc *booking.Service, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{svc: svc, logger: logger}
}

type bookRequest struct {
	ProviderID string `json:"provider_id"`
	StartTime  string `json:"start_time"`
	Reason     string `json:"reason"`
}

type bookResponse struct {
	AppointmentID      string `json:"appointment_id"`
	ProviderID         string `json:"provider_id"`
	ProviderName       string `json:"provider_name"`
	ProviderSpeciality string `json:"provider_speciality"`
	AppointmentFee     string `json:"appointment_fee"`
	StartTime          string `json:"start_time"`
	EndTime            string `json:"end_time"`
	Status             string `json:"status"`
	Reason             string `json:"reason,omitempty"`
}

type cancelRequest struct {
	AppointmentID string `json:"appointment_id"`
	Reason        string `json:"reason"`
}

type cancelResponse struct {
	AppointmentID string `json:"appointment_id"`
	Status        string `json:"status"`
	CancelledAt   string `json:"cancelled_at"`
}

type appointmentItem struct {
	AppointmentID      string `json:"appointment_id"`
	ProviderID         string `json:"provider_id"`
	ProviderName       string `json:"provider_name"`
	ProviderSpeciality string `json:"provider_speciality"`
	AppointmentFee     string `json:"appointment_fee"`
	PatientID          string `json:"patient_id"`
	StartTime          string `json:"start_time"`
	EndTime            string `json:"end_time"`
	Status             string `json:"status"`
	Reason             string `json:"reason,omitempty"`
	CancelReason       string `json:"cancellation_reason,omitempty"`
	CancelledAt        string `json:"cancelled_at,omitempty"`
	CreatedAt          string `json:"created_at"`
}

type slotItem struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// Book handles POST /api/v1/appointments/book. The gateway authenticates and
// injects X-User-Id and X-Role; only patients may book.
func (h *BookingHandler) Book(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	userID, ok := requireRole(w, r, "patient")
	if !ok {
		return
	}

	var req bookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	appt, err := h.svc.Book(r.Context(), booking.BookInput{
		UserID:     userID,
		ProviderID: req.ProviderID,
		StartTime:  req.StartTime,
		Reason:     req.Reason,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, bookResponse{
		AppointmentID:      appt.ID,
		ProviderID:         appt.ProviderID,
		ProviderName:       appt.ProviderName,
		ProviderSpeciality: appt.ProviderSpeciality,
		AppointmentFee:     appt.AppointmentFee,
		StartTime:          appt.StartTime.UTC().Format(time.RFC3339),
		EndTime:            appt.EndTime.UTC().Format(time.RFC3339),
		Status:             appt.Status,
		Reason:             appt.Reason,
	})
}

// Cancel handles POST /api/v1/appointments/cancel.
func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	userID, ok := requireRole(w, r, "patient")
	if !ok {
		return
	}

	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	appt, err := h.svc.Cancel(r.Context(), booking.CancelInput{
		UserID:        userID,
		AppointmentID: req.AppointmentID,
		Reason:        req.Reason,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, cancelResponse{
		AppointmentID: appt.ID,
		Status:        appt.Status,
		CancelledAt:   appt.CancelledAt.UTC().Format(time.RFC3339),
	})
}

// Slots handles GET /api/v1/public/slots?provider_id=...&date=YYYY-MM-DD.
// An optional days parameter widens the window up to the lookahead limit;
// omitted date means today.
func (h *BookingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	providerID := strings.TrimSpace(r.URL.Query().Get("provider_id"))
	if providerID == "" {
		http.Error(w, "provider_id required", http.StatusBadRequest)
		return
	}

	date := time.Now().UTC()
	if raw := strings.TrimSpace(r.URL.Query().Get("date")); raw != "" {
		parsed, err := time.ParseInLocation("2006-01-02", raw, time.UTC)
		if err != nil {
			http.Error(w, "invalid date", http.StatusBadRequest)
			return
		}
		date = parsed
	}

	days := 1
	if raw := strings.TrimSpace(r.URL.Query().Get("days")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > h.svc.Grid().LookaheadDays {
			http.Error(w, "invalid days", http.StatusBadRequest)
			return
		}
		days = n
	}

	open, err := h.svc.Availability(r.Context(), providerID, date, days)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	items := make([]slotItem, 0, len(open))
	for _, c := range open {
		items = append(items, slotItem{
			StartTime: c.Start.UTC().Format(time.RFC3339),
			EndTime:   c.End.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, items)
}

// List handles GET /api/v1/appointments: the calling patient's appointments.
func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	userID, ok := requireRole(w, r, "patient")
	if !ok {
		return
	}

	appts, err := h.svc.PatientAppointments(r.Context(), userID, parseLimit(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toItems(appts))
}

// Schedule handles GET /api/v1/schedule: the calling provider's appointments.
func (h *BookingHandler) Schedule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	userID, ok := requireRole(w, r, "provider")
	if !ok {
		return
	}

	appts, err := h.svc.ProviderSchedule(r.Context(), userID, parseLimit(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toItems(appts))
}

func (h *BookingHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case booking.IsInvalidInput(err), booking.IsInvalidState(err):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case booking.IsNotFound(err):
		http.Error(w, err.Error(), http.StatusNotFound)
	case booking.IsConflict(err):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		h.logger.Error("booking request failed", "err", err, "path", r.URL.Path)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func requireRole(w http.ResponseWriter, r *http.Request, role string) (string, bool) {
	userID := strings.TrimSpace(r.Header.Get("X-User-Id"))
	if userID == "" {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return "", false
	}
	if strings.TrimSpace(r.Header.Get("X-Role")) != role {
		http.Error(w, "forbidden", http.StatusForbidden)
		return "", false
	}
	return userID, true
}

func parseLimit(r *http.Request) int {
	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	return limit
}

func toItems(appts []model.Appointment) []appointmentItem {
	items := make([]appointmentItem, 0, len(appts))
	for _, a := range appts {
		item := appointmentItem{
			AppointmentID:      a.ID,
			ProviderID:         a.ProviderID,
			ProviderName:       a.ProviderName,
			ProviderSpeciality: a.ProviderSpeciality,
			AppointmentFee:     a.AppointmentFee,
			PatientID:          a.PatientID,
			StartTime:          a.StartTime.UTC().Format(time.RFC3339),
			EndTime:            a.EndTime.UTC().Format(time.RFC3339),
			Status:             a.Status,
			Reason:             a.Reason,
			CancelReason:       a.CancelReason,
			CreatedAt:          a.CreatedAt.UTC().Format(time.RFC3339),
		}
		if a.CancelledAt != nil {
			item.CancelledAt = a.CancelledAt.UTC().Format(time.RFC3339)
		}
		items = append(items, item)
	}
	return items
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
