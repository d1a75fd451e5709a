package voice

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/haloweavedev/laine/internal/callstate"
	"github.com/haloweavedev/laine/internal/intent"
	"github.com/haloweavedev/laine/internal/nexhealth"
	"github.com/haloweavedev/laine/internal/notify"
	"github.com/haloweavedev/laine/internal/observability/metrics"
	"github.com/haloweavedev/laine/internal/practice"
	"github.com/haloweavedev/laine/pkg/logging"
)

// IntentMatcher resolves a caller's free-text request to one appointment
// type candidate, or none.
type IntentMatcher interface {
	Match(ctx context.Context, utterance string, candidates []intent.Candidate) (string, error)
}

// PracticeDirectory exposes the practice configuration the handlers need.
type PracticeDirectory interface {
	GetPractice(ctx context.Context, id string) (*practice.Practice, error)
	ListAppointmentTypes(ctx context.Context, practiceID string) ([]practice.AppointmentType, error)
	ListProviders(ctx context.Context, practiceID string) ([]practice.Provider, error)
	ListOperatories(ctx context.Context, practiceID string) ([]practice.Operatory, error)
}

// Orchestrator holds the dependencies the tool handlers share. Each
// handler is a pure function of (state, arguments): it returns a spoken
// response plus a state patch, and never mutates the loaded state itself.
type Orchestrator struct {
	adapter   nexhealth.API
	matcher   IntentMatcher
	practices PracticeDirectory
	email     notify.EmailSender
	metrics   *metrics.ToolCallMetrics
	logger    *logging.Logger

	maxSlotsPerTurn int
	slotSearchDays  int
	now             func() time.Time
}

// OrchestratorConfig configures the Orchestrator.
type OrchestratorConfig struct {
	Adapter         nexhealth.API
	Matcher         IntentMatcher
	Practices       PracticeDirectory
	Email           notify.EmailSender
	Metrics         *metrics.ToolCallMetrics
	Logger          *logging.Logger
	MaxSlotsPerTurn int
	SlotSearchDays  int

	// Now overrides the clock in tests.
	Now func() time.Time
}

func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.MaxSlotsPerTurn <= 0 {
		cfg.MaxSlotsPerTurn = 3
	}
	if cfg.SlotSearchDays <= 0 {
		cfg.SlotSearchDays = 14
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Orchestrator{
		adapter:         cfg.Adapter,
		matcher:         cfg.Matcher,
		practices:       cfg.Practices,
		email:           cfg.Email,
		metrics:         cfg.Metrics,
		logger:          cfg.Logger,
		maxSlotsPerTurn: cfg.MaxSlotsPerTurn,
		slotSearchDays:  cfg.SlotSearchDays,
		now:             cfg.Now,
	}
}

// turnResult is what one handler produces for one turn. A nil Patch means
// the handler left state untouched; the dispatcher still records the
// tool-call identifier. Err and Say are mutually exclusive: on error the
// category's spoken message is voiced instead.
type turnResult struct {
	Say      string
	Result   map[string]any
	Patch    *callstate.StatePatch
	FollowUp *FollowUp
	Err      *TurnError
}

func failTurn(err *TurnError) turnResult {
	return turnResult{Err: err}
}

// Dispatch routes one parsed event to its handler. The switch is
// exhaustive over ToolKind; ToolUnknown never reaches here.
func (o *Orchestrator) Dispatch(ctx context.Context, kind ToolKind, st *callstate.CallState, event *ToolCallEvent) turnResult {
	switch kind {
	case ToolFindAppointmentType:
		return o.findAppointmentType(ctx, st, event)
	case ToolIdentifyPatient:
		return o.identifyPatient(ctx, st, event)
	case ToolCheckAvailableSlots:
		return o.checkAvailableSlots(ctx, st, event)
	case ToolHoldSlot:
		return o.holdSlot(ctx, st, event)
	case ToolConfirmBooking:
		return o.confirmBooking(ctx, st, event)
	default:
		return failTurn(turnErrorf(CategoryTechnical, "voice: unroutable tool kind %d", kind))
	}
}

// ----- find_appointment_type -----

type findAppointmentTypeArgs struct {
	Request       string `json:"request"`
	PatientStatus string `json:"patient_status,omitempty"`
}

func (o *Orchestrator) findAppointmentType(ctx context.Context, st *callstate.CallState, event *ToolCallEvent) turnResult {
	var args findAppointmentTypeArgs
	if err := event.DecodeArguments(&args); err != nil {
		return failTurn(&TurnError{Category: CategoryValidation, Err: err})
	}
	if strings.TrimSpace(args.Request) == "" {
		return failTurn(turnErrorf(CategoryValidation, "voice: empty appointment request"))
	}

	types, err := o.practices.ListAppointmentTypes(ctx, st.PracticeID)
	if err != nil {
		return failTurn(Classify(fmt.Errorf("voice: load appointment types: %w", err)))
	}
	if len(types) == 0 {
		return failTurn(turnErrorf(CategoryConfiguration, "voice: practice %s has no bookable appointment types", st.PracticeID))
	}

	candidates := make([]intent.Candidate, 0, len(types))
	byID := make(map[string]practice.AppointmentType, len(types))
	for _, t := range types {
		candidates = append(candidates, intent.Candidate{ID: t.ID, Name: t.Name, Keywords: t.Keywords})
		byID[t.ID] = t
	}

	matchedID, err := o.matcher.Match(ctx, args.Request, candidates)
	if err != nil {
		return failTurn(Classify(fmt.Errorf("voice: classify request: %w", err)))
	}
	if matchedID == "" {
		// No confident match: ask for clarification, leave stage alone.
		return turnResult{
			Say:    "I want to make sure I book the right visit. Could you tell me a bit more about what you need?",
			Result: map[string]any{"matched": false},
		}
	}

	matched := byID[matchedID]
	stage := callstate.StageApptTypeKnown
	res := turnResult{
		Say: fmt.Sprintf("Got it, %s. Let's get you scheduled.", matched.Spoken()),
		Result: map[string]any{
			"matched":             true,
			"appointment_type_id": matched.ID,
			"spoken_name":         matched.Spoken(),
			"is_urgent":           matched.Urgent,
		},
		Patch: &callstate.StatePatch{
			Stage: &stage,
			Booking: &callstate.BookingPatch{
				AppointmentTypeID:   callstate.StrPtr(matched.ID),
				AppointmentTypeName: callstate.StrPtr(matched.Name),
				SpokenName:          callstate.StrPtr(matched.Spoken()),
				DurationMinutes:     callstate.IntPtr(matched.DurationMinutes),
				IsUrgent:            callstate.BoolPtr(matched.Urgent),
			},
		},
	}
	if matched.Urgent {
		// Urgent visits skip the "when works for you" question: chain the
		// slot search into this turn so availability is voiced immediately.
		res.Say = fmt.Sprintf("I'm sorry you're dealing with that. Let me check the soonest times for %s.", matched.Spoken())
		res.FollowUp = &FollowUp{Name: toolNameCheckAvailableSlots, Arguments: map[string]any{}}
	}
	return res
}

// ----- identify_patient -----

type identifyPatientArgs struct {
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	DateOfBirth string `json:"date_of_birth,omitempty"`
	Phone       string `json:"phone,omitempty"`
	Email       string `json:"email,omitempty"`
	// InfoConfirmed is set once the caller has heard their details read
	// back. A new chart is only created after that.
	InfoConfirmed *bool `json:"info_confirmed,omitempty"`
}

// missingFieldPrompts is what the assistant asks for each identity field.
var missingFieldPrompts = map[string]string{
	"first_name":    "Could I get your first name?",
	"last_name":     "And your last name?",
	"date_of_birth": "What's your date of birth?",
	"phone":         "What's the best phone number for you?",
}

func (o *Orchestrator) identifyPatient(ctx context.Context, st *callstate.CallState, event *ToolCallEvent) turnResult {
	var args identifyPatientArgs
	if err := event.DecodeArguments(&args); err != nil {
		return failTurn(&TurnError{Category: CategoryValidation, Err: err})
	}

	// Already identified: creation is a no-op that returns the existing
	// record rather than writing a duplicate.
	if st.Patient.ExternalPatientID != "" {
		return turnResult{
			Say: "I already have your details, you're all set.",
			Result: map[string]any{
				"patient_id": st.Patient.ExternalPatientID,
				"status":     string(callstate.PatientIdentified),
			},
		}
	}

	fields := map[string]string{
		"first_name":    strings.TrimSpace(args.FirstName),
		"last_name":     strings.TrimSpace(args.LastName),
		"date_of_birth": strings.TrimSpace(args.DateOfBirth),
		"phone":         strings.TrimSpace(args.Phone),
		"email":         strings.TrimSpace(args.Email),
	}

	// Project the post-merge fields without touching the loaded state; the
	// merge engine applies the same empty-never-overwrites rule on save.
	merged := make(map[string]string, len(st.Patient.CollectedFields)+len(fields))
	for k, v := range st.Patient.CollectedFields {
		merged[k] = v
	}
	for k, v := range fields {
		if v != "" {
			merged[k] = v
		}
	}

	projected := callstate.PatientState{CollectedFields: merged}
	if missing := projected.NextMissingPatientField(); missing != "" {
		return turnResult{
			Say:    missingFieldPrompts[missing],
			Result: map[string]any{"next_field": missing},
			Patch: &callstate.StatePatch{
				Patient: &callstate.PatientPatch{Fields: fields},
			},
		}
	}

	// All required fields collected: look for an existing record before
	// creating one.
	search := nexhealth.PatientSearchRequest{
		PracticeID:  st.PracticeID,
		FirstName:   merged["first_name"],
		LastName:    merged["last_name"],
		DateOfBirth: merged["date_of_birth"],
		Phone:       merged["phone"],
	}
	found, err := o.adapter.FindPatient(ctx, search)
	if err != nil {
		// The collected fields are safe to keep; identification retries
		// next turn.
		res := failTurn(Classify(fmt.Errorf("voice: find patient: %w", err)))
		res.Patch = &callstate.StatePatch{Patient: &callstate.PatientPatch{Fields: fields}}
		return res
	}

	var patientID string
	var isNew bool
	if found != nil {
		patientID = found.ID
	} else {
		if args.InfoConfirmed == nil || !*args.InfoConfirmed {
			say := fmt.Sprintf("I don't see you in our system yet, so I'll set you up. I have %s %s, date of birth %s, phone %s. Did I get that right?",
				merged["first_name"], merged["last_name"], merged["date_of_birth"], merged["phone"])
			return turnResult{
				Say:    say,
				Result: map[string]any{"status": string(callstate.PatientCreationInProgress)},
				Patch: &callstate.StatePatch{
					Patient: &callstate.PatientPatch{
						Status: callstate.StatusPtr(callstate.PatientCreationInProgress),
						Fields: fields,
					},
				},
			}
		}
		created, err := o.adapter.CreatePatient(ctx, nexhealth.CreatePatientRequest{
			PracticeID:  st.PracticeID,
			FirstName:   merged["first_name"],
			LastName:    merged["last_name"],
			DateOfBirth: merged["date_of_birth"],
			Phone:       merged["phone"],
			Email:       merged["email"],
		})
		if err != nil {
			res := failTurn(Classify(fmt.Errorf("voice: create patient: %w", err)))
			res.Patch = &callstate.StatePatch{Patient: &callstate.PatientPatch{Fields: fields}}
			return res
		}
		patientID = created.ID
		isNew = true
	}

	stage := callstate.StagePatientIdentified
	return turnResult{
		Say: fmt.Sprintf("Thanks %s, I've got you in our system.", merged["first_name"]),
		Result: map[string]any{
			"patient_id": patientID,
			"created":    isNew,
			"status":     string(callstate.PatientIdentified),
		},
		Patch: &callstate.StatePatch{
			Stage: &stage,
			Patient: &callstate.PatientPatch{
				Status:            callstate.StatusPtr(callstate.PatientIdentified),
				ExternalPatientID: callstate.StrPtr(patientID),
				Fields:            fields,
			},
		},
	}
}

// ----- check_available_slots -----

type checkAvailableSlotsArgs struct {
	RequestedDate string `json:"requested_date,omitempty"` // YYYY-MM-DD
}

func (o *Orchestrator) checkAvailableSlots(ctx context.Context, st *callstate.CallState, event *ToolCallEvent) turnResult {
	var args checkAvailableSlotsArgs
	if err := event.DecodeArguments(&args); err != nil {
		return failTurn(&TurnError{Category: CategoryValidation, Err: err})
	}
	if st.Booking.AppointmentTypeID == "" {
		return turnResult{
			Say:    "First, what kind of visit do you need? A cleaning, an exam, or something else?",
			Result: map[string]any{"needs": "appointment_type"},
		}
	}

	start := o.now()
	if args.RequestedDate != "" {
		parsed, err := time.Parse("2006-01-02", args.RequestedDate)
		if err != nil {
			return failTurn(turnErrorf(CategoryValidation, "voice: bad requested date %q: %v", args.RequestedDate, err))
		}
		if parsed.After(start) {
			start = parsed
		}
	}

	slots, terr := o.searchSlots(ctx, st, start)
	if terr != nil {
		return failTurn(terr)
	}

	if len(slots) == 0 {
		empty := []callstate.Slot{}
		return turnResult{
			Say:    fmt.Sprintf("I don't see any openings for %s in the next couple of weeks. Would another date work?", st.Booking.SpokenName),
			Result: map[string]any{"slot_count": 0},
			Patch: &callstate.StatePatch{
				Booking: &callstate.BookingPatch{
					RequestedDate:  callstate.StrPtr(args.RequestedDate),
					CandidateSlots: &empty,
					ClearSelection: true,
				},
			},
		}
	}

	stage := callstate.StageSlotsPresented
	return turnResult{
		Say:    fmt.Sprintf("I have %s. Which works best for you?", spokenSlotList(slots)),
		Result: map[string]any{"slot_count": len(slots), "slots": slots},
		Patch: &callstate.StatePatch{
			Stage: &stage,
			Booking: &callstate.BookingPatch{
				RequestedDate:  callstate.StrPtr(args.RequestedDate),
				CandidateSlots: &slots,
				ClearSelection: true,
			},
		},
	}
}

// searchSlots queries the adapter and shapes the result for presentation:
// chronological order, spread across days, capped per turn.
func (o *Orchestrator) searchSlots(ctx context.Context, st *callstate.CallState, start time.Time) ([]callstate.Slot, *TurnError) {
	loc := o.practiceLocation(ctx, st.PracticeID)

	var providerIDs, operatoryIDs []string
	if providers, err := o.practices.ListProviders(ctx, st.PracticeID); err == nil {
		for _, p := range providers {
			providerIDs = append(providerIDs, p.NexHealthID)
		}
	}
	if operatories, err := o.practices.ListOperatories(ctx, st.PracticeID); err == nil {
		for _, op := range operatories {
			operatoryIDs = append(operatoryIDs, op.NexHealthID)
		}
	}

	found, err := o.adapter.SearchSlots(ctx, nexhealth.SlotSearchRequest{
		PracticeID:        st.PracticeID,
		AppointmentTypeID: st.Booking.AppointmentTypeID,
		ProviderIDs:       providerIDs,
		OperatoryIDs:      operatoryIDs,
		StartDate:         start,
		EndDate:           start.AddDate(0, 0, o.slotSearchDays),
	})
	if err != nil {
		o.metrics.ObserveAdapterCall("search_slots", "error")
		return nil, Classify(fmt.Errorf("voice: search slots: %w", err))
	}
	o.metrics.ObserveAdapterCall("search_slots", "ok")

	slots := make([]callstate.Slot, 0, len(found))
	for _, s := range found {
		// Adapter timestamps arrive in the wire offset (usually UTC).
		// Selection matching, day spreading, and the spoken display all
		// read the clock fields, so shift everything to practice time.
		startLocal := s.StartTime.In(loc)
		slots = append(slots, callstate.Slot{
			ID:           s.ID,
			StartTime:    startLocal,
			EndTime:      s.EndTime.In(loc),
			ProviderID:   s.ProviderID,
			ProviderName: s.ProviderName,
			OperatoryID:  s.OperatoryID,
			Display:      formatSlotDisplay(startLocal, loc),
		})
	}
	sort.Slice(slots, func(i, j int) bool {
		return slots[i].StartTime.Before(slots[j].StartTime)
	})
	return spreadAcrossDays(slots, o.maxSlotsPerTurn, 2), nil
}

func (o *Orchestrator) practiceLocation(ctx context.Context, practiceID string) *time.Location {
	p, err := o.practices.GetPractice(ctx, practiceID)
	if err != nil || p == nil || p.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ----- hold_slot -----

type holdSlotArgs struct {
	Selection string `json:"selection"`
}

func (o *Orchestrator) holdSlot(ctx context.Context, st *callstate.CallState, event *ToolCallEvent) turnResult {
	var args holdSlotArgs
	if err := event.DecodeArguments(&args); err != nil {
		return failTurn(&TurnError{Category: CategoryValidation, Err: err})
	}
	if len(st.Booking.CandidateSlots) == 0 {
		return turnResult{
			Say:    "Let me check what's available first. When would you like to come in?",
			Result: map[string]any{"needs": "slot_search"},
		}
	}

	matches := MatchSelection(args.Selection, st.Booking.CandidateSlots)
	switch len(matches) {
	case 0:
		return turnResult{
			Say:    fmt.Sprintf("Sorry, which time did you want? I have %s.", spokenSlotList(st.Booking.CandidateSlots)),
			Result: map[string]any{"selected": false},
		}
	case 1:
		// fall through to place the hold
	default:
		// The description fits more than one slot: narrow the presented
		// set and ask again rather than guessing.
		return turnResult{
			Say:    fmt.Sprintf("I have a couple that match. Did you mean %s?", spokenSlotList(matches)),
			Result: map[string]any{"selected": false, "ambiguous": true},
			Patch: &callstate.StatePatch{
				Booking: &callstate.BookingPatch{CandidateSlots: &matches},
			},
		}
	}

	selected := matches[0]
	hold, err := o.adapter.HoldSlot(ctx, nexhealth.HoldRequest{
		PracticeID:      st.PracticeID,
		SlotID:          selected.ID,
		ProviderID:      selected.ProviderID,
		StartTime:       selected.StartTime,
		DurationMinutes: st.Booking.DurationMinutes,
	})
	if err != nil {
		o.metrics.ObserveAdapterCall("hold_slot", "error")
		terr := Classify(fmt.Errorf("voice: hold slot: %w", err))
		if terr.Category != CategoryConflict {
			return failTurn(terr)
		}
		// Someone else won the slot. Drop it from the candidates and offer
		// what's left.
		remaining := make([]callstate.Slot, 0, len(st.Booking.CandidateSlots))
		for _, s := range st.Booking.CandidateSlots {
			if s.ID != selected.ID {
				remaining = append(remaining, s)
			}
		}
		res := failTurn(terr)
		res.Patch = &callstate.StatePatch{
			Booking: &callstate.BookingPatch{CandidateSlots: &remaining, ClearSelection: true},
		}
		if len(remaining) > 0 {
			res.Say = fmt.Sprintf("I'm sorry, that time was just taken. I still have %s. Would one of those work?", spokenSlotList(remaining))
			res.Err = nil
			res.Result = map[string]any{"conflict": true, "slots": remaining}
		}
		return res
	}
	o.metrics.ObserveAdapterCall("hold_slot", "ok")

	stage := callstate.StageSlotHeld
	expires := hold.ExpiresAt
	return turnResult{
		Say: fmt.Sprintf("Great, I'm holding %s for you. Shall I go ahead and book it?", selected.Display),
		Result: map[string]any{
			"held":       true,
			"hold_id":    hold.ID,
			"expires_at": hold.ExpiresAt,
			"slot":       selected,
		},
		Patch: &callstate.StatePatch{
			Stage: &stage,
			Booking: &callstate.BookingPatch{
				SelectedSlot:  &selected,
				HoldID:        callstate.StrPtr(hold.ID),
				HoldExpiresAt: &expires,
			},
		},
	}
}

// ----- confirm_booking -----

type confirmBookingArgs struct {
	Confirmed *bool `json:"confirmed,omitempty"`
}

func (o *Orchestrator) confirmBooking(ctx context.Context, st *callstate.CallState, event *ToolCallEvent) turnResult {
	var args confirmBookingArgs
	if err := event.DecodeArguments(&args); err != nil {
		return failTurn(&TurnError{Category: CategoryValidation, Err: err})
	}
	if st.Booking.HoldID == "" || st.Booking.SelectedSlot == nil {
		return turnResult{
			Say:    "We haven't picked a time yet. Which of the times I mentioned works for you?",
			Result: map[string]any{"needs": "slot_hold"},
		}
	}

	// Caller declined: release the hold and fall back to the presented
	// slots.
	if args.Confirmed != nil && !*args.Confirmed {
		if err := o.adapter.ReleaseHold(ctx, st.Booking.HoldID); err != nil {
			o.logger.Warn("release hold failed", "hold_id", st.Booking.HoldID, "error", err.Error())
		}
		stage := callstate.StageSlotsPresented
		return turnResult{
			Say:    "No problem, we won't book that one. Would a different time work?",
			Result: map[string]any{"booked": false, "declined": true},
			Patch: &callstate.StatePatch{
				Stage: &stage,
				Booking: &callstate.BookingPatch{
					ClearSelection: true,
					ClearHold:      true,
				},
			},
		}
	}

	// Never trust a stale hold: an expired one means the slot may already
	// be gone, so re-search instead of confirming blind.
	if st.Booking.HoldExpired(o.now()) {
		return o.holdLapsed(ctx, st)
	}

	if st.Patient.ExternalPatientID == "" {
		return turnResult{
			Say:    "Before I book that, I just need a few details. " + missingFieldPrompts["first_name"],
			Result: map[string]any{"needs": "patient_identity"},
		}
	}

	booking, err := o.adapter.ConfirmBooking(ctx, nexhealth.ConfirmRequest{
		PracticeID:        st.PracticeID,
		HoldID:            st.Booking.HoldID,
		PatientID:         st.Patient.ExternalPatientID,
		AppointmentTypeID: st.Booking.AppointmentTypeID,
		Note:              "Booked by Laine voice assistant",
	})
	if err != nil {
		o.metrics.ObserveAdapterCall("confirm_booking", "error")
		terr := Classify(fmt.Errorf("voice: confirm booking: %w", err))
		if terr.Category == CategoryConflict {
			// The hold lapsed server-side before we converted it.
			return o.holdLapsed(ctx, st)
		}
		return failTurn(terr)
	}
	o.metrics.ObserveAdapterCall("confirm_booking", "ok")

	o.sendBookingEmail(ctx, st, booking)

	stage := callstate.StageBooked
	empty := []callstate.Slot{}
	display := st.Booking.SelectedSlot.Display
	return turnResult{
		Say: fmt.Sprintf("You're all set for %s on %s. We'll see you then!", st.Booking.SpokenName, display),
		Result: map[string]any{
			"booked":         true,
			"appointment_id": booking.AppointmentID,
		},
		Patch: &callstate.StatePatch{
			Stage: &stage,
			Booking: &callstate.BookingPatch{
				CandidateSlots: &empty,
				ClearSelection: true,
				ClearHold:      true,
			},
		},
	}
}

// holdLapsed handles an expired or conflicted hold: drop it, re-search,
// and put the caller back at slot selection.
func (o *Orchestrator) holdLapsed(ctx context.Context, st *callstate.CallState) turnResult {
	slots, terr := o.searchSlots(ctx, st, o.now())
	if terr != nil {
		res := failTurn(terr)
		stage := callstate.StageSlotsPresented
		res.Patch = &callstate.StatePatch{
			Stage:   &stage,
			Booking: &callstate.BookingPatch{ClearSelection: true, ClearHold: true},
		}
		return res
	}

	stage := callstate.StageSlotsPresented
	say := "I'm sorry, the hold on that time ran out and it's no longer available."
	if len(slots) > 0 {
		say += fmt.Sprintf(" I can offer %s instead. Would one of those work?", spokenSlotList(slots))
	} else {
		say += " I don't see other openings soon. Would a different date work?"
	}
	return turnResult{
		Say:    say,
		Result: map[string]any{"booked": false, "hold_expired": true, "slots": slots},
		Patch: &callstate.StatePatch{
			Stage: &stage,
			Booking: &callstate.BookingPatch{
				CandidateSlots: &slots,
				ClearSelection: true,
				ClearHold:      true,
			},
		},
	}
}

// sendBookingEmail notifies the front office. Best effort: a mail failure
// never fails the booking turn.
func (o *Orchestrator) sendBookingEmail(ctx context.Context, st *callstate.CallState, booking *nexhealth.Booking) {
	if o.email == nil {
		return
	}
	p, err := o.practices.GetPractice(ctx, st.PracticeID)
	if err != nil || p == nil || p.NotifyEmail == "" {
		return
	}

	name := strings.TrimSpace(st.Patient.CollectedFields["first_name"] + " " + st.Patient.CollectedFields["last_name"])
	msg := notify.ComposeBookingEmail(p.NotifyEmail, notify.BookingConfirmation{
		PracticeName:    p.Name,
		PatientName:     name,
		PatientPhone:    st.Patient.CollectedFields["phone"],
		AppointmentName: st.Booking.SpokenName,
		ProviderName:    booking.ProviderName,
		StartTime:       booking.StartTime,
		Timezone:        p.Timezone,
		AppointmentID:   booking.AppointmentID,
		BookedByVoice:   true,
	})
	if err := o.email.Send(ctx, msg); err != nil {
		o.logger.Warn("booking email failed", "practice_id", st.PracticeID, "error", err.Error())
	}
}
