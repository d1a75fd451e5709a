// Package voice is the booking orchestrator behind the voice assistant's
// webhook tool. It receives one tool-call event per conversational turn,
// reconstructs the call's durable state, dispatches to the matching
// handler, and drives the booking workflow from slot search through hold and confirmation.
package voice

// ToolKind is the closed set of capabilities the voice platform can
// invoke. Dispatch switches exhaustively over this enum, so adding a tool
// is a compile-checked change rather than a string-map registration.
type ToolKind int

const (
	ToolUnknown ToolKind = iota
	ToolFindAppointmentType
	ToolIdentifyPatient
	ToolCheckAvailableSlots
	ToolHoldSlot
	ToolConfirmBooking
)

const (
	toolNameFindAppointmentType = "find_appointment_type"
	toolNameIdentifyPatient     = "identify_patient"
	toolNameCheckAvailableSlots = "check_available_slots"
	toolNameHoldSlot            = "hold_slot"
	toolNameConfirmBooking      = "confirm_booking"
)

// ParseToolKind maps a platform tool name to its kind. Unrecognized names
// map to ToolUnknown, which the dispatcher turns into a terminal
// "unsupported request" response.
func ParseToolKind(name string) ToolKind {
	switch name {
	case toolNameFindAppointmentType:
		return ToolFindAppointmentType
	case toolNameIdentifyPatient:
		return ToolIdentifyPatient
	case toolNameCheckAvailableSlots:
		return ToolCheckAvailableSlots
	case toolNameHoldSlot:
		return ToolHoldSlot
	case toolNameConfirmBooking:
		return ToolConfirmBooking
	default:
		return ToolUnknown
	}
}

func (k ToolKind) String() string {
	switch k {
	case ToolFindAppointmentType:
		return toolNameFindAppointmentType
	case ToolIdentifyPatient:
		return toolNameIdentifyPatient
	case ToolCheckAvailableSlots:
		return toolNameCheckAvailableSlots
	case ToolHoldSlot:
		return toolNameHoldSlot
	case ToolConfirmBooking:
		return toolNameConfirmBooking
	default:
		return "unknown"
	}
}
