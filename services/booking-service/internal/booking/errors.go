package booking

import "errors"

// Sentinel errors for the booking workflows. Handlers map them to HTTP
// statuses through the Is* helpers rather than matching individual values.
var (
	ErrMalformedTime = errors.New("malformed start time")
	ErrOffGrid       = errors.New("start time is not on the slot grid")
	ErrNotAProvider  = errors.New("account is not a provider")
	ErrMissingField  = errors.New("missing required field")

	ErrProviderNotFound    = errors.New("provider not found")
	ErrPatientNotFound     = errors.New("patient record not found")
	ErrAppointmentNotFound = errors.New("appointment not found")

	ErrPastSlot         = errors.New("slot start is in the past")
	ErrPastAppointment  = errors.New("appointment has already started")
	ErrAlreadyCancelled = errors.New("appointment is already cancelled")

	ErrSlotTaken = errors.New("slot is already booked")
)

// IsInvalidInput reports whether the request itself was malformed.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrMalformedTime) ||
		errors.Is(err, ErrOffGrid) ||
		errors.Is(err, ErrNotAProvider) ||
		errors.Is(err, ErrMissingField)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrProviderNotFound) ||
		errors.Is(err, ErrPatientNotFound) ||
		errors.Is(err, ErrAppointmentNotFound)
}

// IsInvalidState reports whether the request was well formed but the target
// is in a state that forbids the operation.
func IsInvalidState(err error) bool {
	return errors.Is(err, ErrPastSlot) ||
		errors.Is(err, ErrPastAppointment) ||
		errors.Is(err, ErrAlreadyCancelled)
}

// IsConflict reports a lost race against a concurrent booking.
func IsConflict(err error) bool {
	return errors.Is(err, ErrSlotTaken)
}
