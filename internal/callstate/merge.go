package callstate

import "time"

// StatePatch is a partial update produced by a tool handler. Nil fields leave
// the prior value unchanged, so a handler can never null-out state by
// omission. Sub-records get their own tagged patch types instead of a generic
// structural merge: the replace-wholesale rule for collections and the
// never-clear rule for the patient ID are encoded here, not left implicit.
type StatePatch struct {
	Stage   *Stage
	Booking *BookingPatch
	Patient *PatientPatch
}

// BookingPatch is a partial update to the booking sub-record.
type BookingPatch struct {
	AppointmentTypeID   *string
	AppointmentTypeName *string
	SpokenName          *string
	DurationMinutes     *int
	IsUrgent            *bool
	RequestedDate       *string
	// CandidateSlots, when non-nil, replaces the stored collection wholesale.
	// Handlers always produce complete replacement lists; there is no
	// element-wise splicing. Point at an empty slice to clear.
	CandidateSlots *[]Slot
	SelectedSlot   *Slot
	HoldID         *string
	HoldExpiresAt  *time.Time
	// ClearSelection and ClearHold drop the transient selection/hold fields.
	// Explicit flags rather than nil-vs-zero sniffing on the pointers above.
	ClearSelection bool
	ClearHold      bool
}

// PatientPatch is a partial update to the patient sub-record.
type PatientPatch struct {
	Status            *PatientStatus
	ExternalPatientID *string
	// Fields are merged key-by-key. An empty value never overwrites a
	// previously collected one.
	Fields map[string]string
}

// Merge produces the next state from the current state and a partial update.
// It never mutates current, never panics, and applies the stage change only
// when the transition graph allows it. An invalid stage in a patch keeps the
// prior stage.
func Merge(current *CallState, patch StatePatch) *CallState {
	next := current.Clone()
	if patch.Stage != nil && CanTransition(next.Stage, *patch.Stage) {
		next.Stage = *patch.Stage
	}
	if patch.Booking != nil {
		mergeBooking(&next.Booking, patch.Booking)
	}
	if patch.Patient != nil {
		mergePatient(&next.Patient, patch.Patient)
	}
	return next
}

func mergeBooking(b *BookingState, patch *BookingPatch) {
	if patch.AppointmentTypeID != nil {
		b.AppointmentTypeID = *patch.AppointmentTypeID
	}
	if patch.AppointmentTypeName != nil {
		b.AppointmentTypeName = *patch.AppointmentTypeName
	}
	if patch.SpokenName != nil {
		b.SpokenName = *patch.SpokenName
	}
	if patch.DurationMinutes != nil {
		b.DurationMinutes = *patch.DurationMinutes
	}
	if patch.IsUrgent != nil {
		b.IsUrgent = *patch.IsUrgent
	}
	if patch.RequestedDate != nil {
		b.RequestedDate = *patch.RequestedDate
	}
	if patch.CandidateSlots != nil {
		b.CandidateSlots = append([]Slot(nil), (*patch.CandidateSlots)...)
	}
	if patch.SelectedSlot != nil {
		slot := *patch.SelectedSlot
		b.SelectedSlot = &slot
	}
	if patch.HoldID != nil {
		b.HoldID = *patch.HoldID
	}
	if patch.HoldExpiresAt != nil {
		at := *patch.HoldExpiresAt
		b.HoldExpiresAt = &at
	}
	if patch.ClearSelection {
		b.SelectedSlot = nil
	}
	if patch.ClearHold {
		b.HoldID = ""
		b.HoldExpiresAt = nil
	}
}

func mergePatient(p *PatientState, patch *PatientPatch) {
	if patch.Status != nil {
		p.Status = *patch.Status
	}
	// The external patient ID is write-once within a call.
	if patch.ExternalPatientID != nil && p.ExternalPatientID == "" {
		p.ExternalPatientID = *patch.ExternalPatientID
	}
	if len(patch.Fields) > 0 {
		if p.CollectedFields == nil {
			p.CollectedFields = make(map[string]string, len(patch.Fields))
		}
		for k, v := range patch.Fields {
			if v == "" && p.CollectedFields[k] != "" {
				continue
			}
			p.CollectedFields[k] = v
		}
	}
}

// Convenience pointer constructors for building patches.

func StrPtr(s string) *string { return &s }

func IntPtr(i int) *int { return &i }

func BoolPtr(b bool) *bool { return &b }

func StagePtr(s Stage) *Stage { return &s }

func StatusPtr(s PatientStatus) *PatientStatus { return &s }

func SlotsPtr(s []Slot) *[]Slot { return &s }

func TimePtr(t time.Time) *time.Time { return &t }
