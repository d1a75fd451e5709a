// Package nexhealth provides the client for the practice-management
// scheduling API: patient lookup and creation, appointment-type listing,
// slot search, time-bounded slot holds, and booking confirmation. The hold
// call is the single synchronization point for cross-call slot contention;
// its atomicity is the scheduling system's responsibility, not ours.
package nexhealth

import (
	"context"
	"time"
)

// API is the scheduling adapter surface consumed by the tool handlers.
type API interface {
	// FindPatient searches for an existing patient record. Returns nil when
	// no record matches.
	FindPatient(ctx context.Context, req PatientSearchRequest) (*Patient, error)

	// CreatePatient creates a new patient record.
	CreatePatient(ctx context.Context, req CreatePatientRequest) (*Patient, error)

	// ListAppointmentTypes returns the practice's bookable appointment types.
	ListAppointmentTypes(ctx context.Context, practiceID string) ([]AppointmentType, error)

	// SearchSlots returns open slots matching the request, unordered.
	SearchSlots(ctx context.Context, req SlotSearchRequest) ([]Slot, error)

	// HoldSlot places a time-bounded reservation on a slot. Exactly one
	// caller wins a contested slot; losers receive a conflict error.
	HoldSlot(ctx context.Context, req HoldRequest) (*Hold, error)

	// ConfirmBooking converts a live hold into a permanent appointment.
	ConfirmBooking(ctx context.Context, req ConfirmRequest) (*Booking, error)

	// ReleaseHold cancels a hold the caller no longer wants.
	ReleaseHold(ctx context.Context, holdID string) error
}

// PatientSearchRequest identifies a patient by demographics.
type PatientSearchRequest struct {
	PracticeID  string
	FirstName   string
	LastName    string
	DateOfBirth string // YYYY-MM-DD
	Phone       string // E.164
}

// CreatePatientRequest carries the fields collected during the call.
type CreatePatientRequest struct {
	PracticeID  string
	FirstName   string
	LastName    string
	DateOfBirth string
	Phone       string
	Email       string
}

// Patient is the scheduling system's patient record.
type Patient struct {
	ID          string `json:"id"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	DateOfBirth string `json:"date_of_birth"`
	Phone       string `json:"phone"`
	Email       string `json:"email,omitempty"`
	New         bool   `json:"new,omitempty"`
}

// AppointmentType is a bookable service as the scheduling system knows it.
type AppointmentType struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	DurationMinutes int    `json:"minutes"`
	Bookable        bool   `json:"bookable_online"`
}

// SlotSearchRequest scopes a slot search. Empty provider/operatory lists
// mean "any".
type SlotSearchRequest struct {
	PracticeID        string
	AppointmentTypeID string
	ProviderIDs       []string
	OperatoryIDs      []string
	StartDate         time.Time
	EndDate           time.Time
}

// Slot is one open appointment time.
type Slot struct {
	ID           string    `json:"id"`
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
	ProviderID   string    `json:"provider_id"`
	ProviderName string    `json:"provider_name,omitempty"`
	OperatoryID  string    `json:"operatory_id,omitempty"`
}

// HoldRequest asks the scheduling system to reserve a slot.
type HoldRequest struct {
	PracticeID string
	SlotID     string
	// ProviderID and StartTime restate the slot so the scheduling system can
	// verify the descriptor is still current.
	ProviderID string
	StartTime  time.Time
	// DurationMinutes is the appointment length the hold must cover.
	DurationMinutes int
}

// Hold is a time-bounded reservation.
type Hold struct {
	ID        string    `json:"id"`
	SlotID    string    `json:"slot_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ConfirmRequest converts a hold into an appointment.
type ConfirmRequest struct {
	PracticeID        string
	HoldID            string
	PatientID         string
	AppointmentTypeID string
	Note              string
}

// Booking is a confirmed appointment.
type Booking struct {
	AppointmentID string    `json:"appointment_id"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	ProviderName  string    `json:"provider_name,omitempty"`
}
