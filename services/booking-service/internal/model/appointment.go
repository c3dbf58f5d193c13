package model

import "time"

// Slot is a fixed-length, grid-aligned interval owned by one provider.
// Slots are created only as part of a booking, never standalone. A cancelled
// booking frees the slot (IsBooked=false) but the row is never rebound to a
// new appointment; rebooking the same time creates a fresh row.
type Slot struct {
	ID         string
	ProviderID string
	StartTime  time.Time
	EndTime    time.Time
	IsBooked   bool
}

const (
	StatusBooked    = "booked"
	StatusCancelled = "cancelled"
)

type Appointment struct {
	ID           string
	ProviderID   string
	PatientID    string
	SlotID       string
	Status       string
	Reason       string
	CancelReason string
	CreatedAt    time.Time
	CancelledAt  *time.Time

	// Populated by list and lookup queries (joined from the slot and the
	// provider replica rows).
	StartTime          time.Time
	EndTime            time.Time
	ProviderName       string
	ProviderSpeciality string
	AppointmentFee     string
}

// Provider is the booking-local replica of a directory provider record,
// maintained from identity.user.registered.v1 events. ID is the Provider
// record id, UserID the linked account id; the two are never interchangeable.
type Provider struct {
	ID             string
	UserID         string
	Name           string
	Role           string
	Speciality     string
	Experience     string
	AppointmentFee string
}

// Patient is the booking-local replica of a directory patient record.
type Patient struct {
	ID     string
	UserID string
	Name   string
}
