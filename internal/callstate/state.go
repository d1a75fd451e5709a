// Package callstate holds the durable per-call conversation state for the
// voice booking assistant: the coarse-grained stage of the conversation, the
// booking workflow sub-record, and the patient identification sub-record.
// State is read once and written once per tool-call turn.
package callstate

import "time"

// Stage is the coarse-grained phase of the booking conversation.
type Stage string

const (
	StageGreeting          Stage = "GREETING"
	StageApptTypeKnown     Stage = "APPOINTMENT_TYPE_KNOWN"
	StagePatientIdentified Stage = "PATIENT_IDENTIFIED"
	StageSlotsPresented    Stage = "SLOTS_PRESENTED"
	StageSlotHeld          Stage = "SLOT_HELD"
	StageBooked            Stage = "BOOKED"
	StageFailed            Stage = "FAILED"
)

// stageRank orders stages along the forward transition graph. FAILED is
// terminal and reachable from anywhere, so it carries no rank.
var stageRank = map[Stage]int{
	StageGreeting:          0,
	StageApptTypeKnown:     1,
	StagePatientIdentified: 2,
	StageSlotsPresented:    3,
	StageSlotHeld:          4,
	StageBooked:            5,
}

// CanTransition reports whether moving from one stage to another is allowed.
// Stages only move forward, with two exceptions: FAILED is reachable from any
// stage, and SLOT_HELD falls back to SLOTS_PRESENTED when a hold expires
// before the caller confirms.
func CanTransition(from, to Stage) bool {
	if from == to {
		return true
	}
	if to == StageFailed {
		return true
	}
	if from == StageFailed || from == StageBooked {
		return false
	}
	if from == StageSlotHeld && to == StageSlotsPresented {
		return true
	}
	fromRank, okFrom := stageRank[from]
	toRank, okTo := stageRank[to]
	return okFrom && okTo && toRank > fromRank
}

// PatientStatus tracks progress of patient identification within a call.
type PatientStatus string

const (
	PatientAwaitingIdentifier PatientStatus = "AWAITING_IDENTIFIER"
	PatientIdentified         PatientStatus = "IDENTIFIED"
	PatientCreationInProgress PatientStatus = "CREATION_IN_PROGRESS"
)

// Slot is one bookable appointment time presented to the caller.
type Slot struct {
	// ID is the scheduling system's slot descriptor.
	ID string `json:"id"`
	// StartTime and EndTime are in the practice's timezone.
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	// ProviderID and OperatoryID locate the slot in the practice.
	ProviderID   string `json:"provider_id"`
	ProviderName string `json:"provider_name,omitempty"`
	OperatoryID  string `json:"operatory_id,omitempty"`
	// Display is the spoken form, e.g. "Monday, March 2 at 2:00 PM".
	Display string `json:"display"`
}

// BookingState is the booking workflow sub-record.
type BookingState struct {
	AppointmentTypeID   string `json:"appointment_type_id,omitempty"`
	AppointmentTypeName string `json:"appointment_type_name,omitempty"`
	// SpokenName is the patient-facing name for the appointment type.
	SpokenName      string `json:"spoken_name,omitempty"`
	DurationMinutes int    `json:"duration_minutes,omitempty"`
	IsUrgent        bool   `json:"is_urgent,omitempty"`
	RequestedDate   string `json:"requested_date,omitempty"`
	// CandidateSlots is the ordered set offered this turn. Transient: each
	// search replaces it wholesale.
	CandidateSlots []Slot `json:"candidate_slots,omitempty"`
	SelectedSlot   *Slot  `json:"selected_slot,omitempty"`
	// HoldID references a time-bounded reservation in the scheduling system.
	HoldID        string     `json:"hold_id,omitempty"`
	HoldExpiresAt *time.Time `json:"hold_expires_at,omitempty"`
}

// PatientState is the patient identification sub-record.
type PatientState struct {
	Status PatientStatus `json:"status"`
	// ExternalPatientID is the scheduling system's patient record ID. Once
	// set it is never cleared within a call.
	ExternalPatientID string `json:"external_patient_id,omitempty"`
	// CollectedFields maps identity field name (first_name, last_name,
	// date_of_birth, phone, email) to the value collected so far.
	CollectedFields map[string]string `json:"collected_fields,omitempty"`
}

// CallState is the durable conversation state for one voice call, keyed by
// the platform's call identifier.
type CallState struct {
	CallID     string       `json:"call_id"`
	PracticeID string       `json:"practice_id"`
	Stage      Stage        `json:"stage"`
	Booking    BookingState `json:"booking"`
	Patient    PatientState `json:"patient"`
	// LastToolCallID is the most recent tool-call identifier applied to this
	// state, used for duplicate-delivery detection.
	LastToolCallID string `json:"last_tool_call_id,omitempty"`
	// Turn is a sequencing token incremented on every save. A save whose
	// loaded Turn no longer matches the stored one is rejected as stale.
	Turn      int       `json:"turn"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New creates a fresh state for a first-seen call at stage GREETING.
func New(callID, practiceID string, now time.Time) *CallState {
	return &CallState{
		CallID:     callID,
		PracticeID: practiceID,
		Stage:      StageGreeting,
		Patient: PatientState{
			Status:          PatientAwaitingIdentifier,
			CollectedFields: map[string]string{},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// requiredPatientFields is the fixed collection order for identity fields.
var requiredPatientFields = []string{"first_name", "last_name", "date_of_birth", "phone"}

// NextMissingPatientField returns the first required identity field not yet
// collected, or "" when identification can proceed.
func (p PatientState) NextMissingPatientField() string {
	for _, field := range requiredPatientFields {
		if p.CollectedFields[field] == "" {
			return field
		}
	}
	return ""
}

// HoldExpired reports whether the current hold has lapsed at the given time.
// A state without a hold is not considered expired.
func (b BookingState) HoldExpired(now time.Time) bool {
	return b.HoldID != "" && b.HoldExpiresAt != nil && now.After(*b.HoldExpiresAt)
}

// Clone returns a deep copy. Merge operates on clones so callers never see a
// partially updated state.
func (s *CallState) Clone() *CallState {
	next := *s
	if s.Booking.CandidateSlots != nil {
		next.Booking.CandidateSlots = append([]Slot(nil), s.Booking.CandidateSlots...)
	}
	if s.Booking.SelectedSlot != nil {
		slot := *s.Booking.SelectedSlot
		next.Booking.SelectedSlot = &slot
	}
	if s.Booking.HoldExpiresAt != nil {
		at := *s.Booking.HoldExpiresAt
		next.Booking.HoldExpiresAt = &at
	}
	if s.Patient.CollectedFields != nil {
		fields := make(map[string]string, len(s.Patient.CollectedFields))
		for k, v := range s.Patient.CollectedFields {
			fields[k] = v
		}
		next.Patient.CollectedFields = fields
	}
	return &next
}
