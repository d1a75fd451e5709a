package voice

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/haloweavedev/laine/internal/callstate"
	"github.com/haloweavedev/laine/internal/intent"
	"github.com/haloweavedev/laine/internal/nexhealth"
	"github.com/haloweavedev/laine/internal/notify"
	"github.com/haloweavedev/laine/internal/practice"
	"github.com/haloweavedev/laine/pkg/logging"
)

// testNow is a fixed Monday morning so weekday-based selection is stable.
var testNow = time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)

// fakeAdapter implements nexhealth.API with overridable behaviors.
type fakeAdapter struct {
	findPatient  func(ctx context.Context, req nexhealth.PatientSearchRequest) (*nexhealth.Patient, error)
	createCalls  int
	create       func(ctx context.Context, req nexhealth.CreatePatientRequest) (*nexhealth.Patient, error)
	searchSlots  func(ctx context.Context, req nexhealth.SlotSearchRequest) ([]nexhealth.Slot, error)
	holdSlot     func(ctx context.Context, req nexhealth.HoldRequest) (*nexhealth.Hold, error)
	confirm      func(ctx context.Context, req nexhealth.ConfirmRequest) (*nexhealth.Booking, error)
	releasedIDs  []string
	releaseErr   error
	findCalls    int
	searchCalls  int
	holdCalls    int
	confirmCalls int
}

func (f *fakeAdapter) FindPatient(ctx context.Context, req nexhealth.PatientSearchRequest) (*nexhealth.Patient, error) {
	f.findCalls++
	if f.findPatient == nil {
		return nil, nil
	}
	return f.findPatient(ctx, req)
}

func (f *fakeAdapter) CreatePatient(ctx context.Context, req nexhealth.CreatePatientRequest) (*nexhealth.Patient, error) {
	f.createCalls++
	if f.create == nil {
		return &nexhealth.Patient{ID: "pat_new", FirstName: req.FirstName, LastName: req.LastName}, nil
	}
	return f.create(ctx, req)
}

func (f *fakeAdapter) ListAppointmentTypes(ctx context.Context, practiceID string) ([]nexhealth.AppointmentType, error) {
	return nil, nil
}

func (f *fakeAdapter) SearchSlots(ctx context.Context, req nexhealth.SlotSearchRequest) ([]nexhealth.Slot, error) {
	f.searchCalls++
	if f.searchSlots == nil {
		return nil, nil
	}
	return f.searchSlots(ctx, req)
}

func (f *fakeAdapter) HoldSlot(ctx context.Context, req nexhealth.HoldRequest) (*nexhealth.Hold, error) {
	f.holdCalls++
	if f.holdSlot == nil {
		return &nexhealth.Hold{ID: "hold_1", SlotID: req.SlotID, ExpiresAt: testNow.Add(5 * time.Minute)}, nil
	}
	return f.holdSlot(ctx, req)
}

func (f *fakeAdapter) ConfirmBooking(ctx context.Context, req nexhealth.ConfirmRequest) (*nexhealth.Booking, error) {
	f.confirmCalls++
	if f.confirm == nil {
		return &nexhealth.Booking{AppointmentID: "appt_1", StartTime: testNow.Add(24 * time.Hour), ProviderName: "Dr. Reyes"}, nil
	}
	return f.confirm(ctx, req)
}

func (f *fakeAdapter) ReleaseHold(ctx context.Context, holdID string) error {
	f.releasedIDs = append(f.releasedIDs, holdID)
	return f.releaseErr
}

// fakeMatcher returns a canned appointment type ID.
type fakeMatcher struct {
	id    string
	err   error
	calls int
}

func (f *fakeMatcher) Match(ctx context.Context, utterance string, candidates []intent.Candidate) (string, error) {
	f.calls++
	return f.id, f.err
}

// fakeDirectory serves canned practice configuration.
type fakeDirectory struct {
	practice *practice.Practice
	types    []practice.AppointmentType
	typesErr error
}

func (f *fakeDirectory) GetPractice(ctx context.Context, id string) (*practice.Practice, error) {
	if f.practice != nil {
		return f.practice, nil
	}
	return &practice.Practice{ID: id, Name: "Bright Smiles Dental", Timezone: "UTC", NotifyEmail: "front@brightsmiles.test"}, nil
}

func (f *fakeDirectory) ListAppointmentTypes(ctx context.Context, practiceID string) ([]practice.AppointmentType, error) {
	return f.types, f.typesErr
}

func (f *fakeDirectory) ListProviders(ctx context.Context, practiceID string) ([]practice.Provider, error) {
	return []practice.Provider{{NexHealthID: "prov_1"}}, nil
}

func (f *fakeDirectory) ListOperatories(ctx context.Context, practiceID string) ([]practice.Operatory, error) {
	return nil, nil
}

func testTypes() []practice.AppointmentType {
	return []practice.AppointmentType{
		{ID: "apt_cleaning", PracticeID: "prac_1", Name: "Adult Cleaning", SpokenName: "a cleaning", DurationMinutes: 60, Keywords: []string{"cleaning", "hygiene"}},
		{ID: "apt_emergency", PracticeID: "prac_1", Name: "Emergency Exam", SpokenName: "an emergency exam", DurationMinutes: 30, Keywords: []string{"pain", "broken"}, Urgent: true},
	}
}

type orchestratorDeps struct {
	adapter *fakeAdapter
	matcher *fakeMatcher
	dir     *fakeDirectory
	email   *notify.StubEmailSender
}

func newTestOrchestrator(deps *orchestratorDeps) *Orchestrator {
	if deps.adapter == nil {
		deps.adapter = &fakeAdapter{}
	}
	if deps.matcher == nil {
		deps.matcher = &fakeMatcher{}
	}
	if deps.dir == nil {
		deps.dir = &fakeDirectory{types: testTypes()}
	}
	if deps.email == nil {
		deps.email = notify.NewStubEmailSender(logging.NewWithWriter("error", io.Discard))
	}
	return NewOrchestrator(OrchestratorConfig{
		Adapter:         deps.adapter,
		Matcher:         deps.matcher,
		Practices:       deps.dir,
		Email:           deps.email,
		Logger:          logging.NewWithWriter("error", io.Discard),
		MaxSlotsPerTurn: 3,
		SlotSearchDays:  14,
		Now:             func() time.Time { return testNow },
	})
}

func newEvent(tool, args string) *ToolCallEvent {
	return &ToolCallEvent{
		CallID:     "call_1",
		ToolCallID: "tc_1",
		ToolName:   tool,
		PracticeID: "prac_1",
		Arguments:  json.RawMessage(args),
	}
}

func newState(stage callstate.Stage) *callstate.CallState {
	st := callstate.New("call_1", "prac_1", testNow)
	st.Stage = stage
	return st
}

func mustMergeResult(t *testing.T, st *callstate.CallState, res turnResult) *callstate.CallState {
	t.Helper()
	if res.Patch == nil {
		t.Fatalf("expected a state patch, got none")
	}
	return callstate.Merge(st, *res.Patch)
}

// ----- find_appointment_type -----

func TestFindAppointmentTypeMatch(t *testing.T) {
	matcher := &fakeMatcher{id: "apt_cleaning"}
	o := newTestOrchestrator(&orchestratorDeps{matcher: matcher})
	st := newState(callstate.StageGreeting)

	res := o.Dispatch(context.Background(), ToolFindAppointmentType, st, newEvent("find_appointment_type", `{"request":"I need a cleaning"}`))
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	next := mustMergeResult(t, st, res)
	if next.Stage != callstate.StageApptTypeKnown {
		t.Errorf("stage = %s, want %s", next.Stage, callstate.StageApptTypeKnown)
	}
	if next.Booking.AppointmentTypeID != "apt_cleaning" {
		t.Errorf("appointment type = %q, want apt_cleaning", next.Booking.AppointmentTypeID)
	}
	if next.Booking.SpokenName != "a cleaning" {
		t.Errorf("spoken name = %q", next.Booking.SpokenName)
	}
	if next.Booking.DurationMinutes != 60 {
		t.Errorf("duration = %d, want 60", next.Booking.DurationMinutes)
	}
	if res.FollowUp != nil {
		t.Errorf("non-urgent match should not chain a follow-up")
	}
}

func TestFindAppointmentTypeUrgentChainsSlotSearch(t *testing.T) {
	matcher := &fakeMatcher{id: "apt_emergency"}
	o := newTestOrchestrator(&orchestratorDeps{matcher: matcher})
	st := newState(callstate.StageGreeting)

	res := o.Dispatch(context.Background(), ToolFindAppointmentType, st, newEvent("find_appointment_type", `{"request":"my tooth is killing me"}`))
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if res.FollowUp == nil || res.FollowUp.Name != "check_available_slots" {
		t.Fatalf("urgent match must chain check_available_slots, got %+v", res.FollowUp)
	}
	next := mustMergeResult(t, st, res)
	if !next.Booking.IsUrgent {
		t.Errorf("IsUrgent not set")
	}
}

func TestFindAppointmentTypeNoMatchAsksForClarification(t *testing.T) {
	matcher := &fakeMatcher{id: ""}
	o := newTestOrchestrator(&orchestratorDeps{matcher: matcher})
	st := newState(callstate.StageGreeting)

	res := o.Dispatch(context.Background(), ToolFindAppointmentType, st, newEvent("find_appointment_type", `{"request":"ummm"}`))
	if res.Err != nil {
		t.Fatalf("no match is not an error: %v", res.Err)
	}
	if res.Patch != nil {
		t.Errorf("no match must not change state")
	}
	if res.Say == "" {
		t.Errorf("no match must ask a clarifying question")
	}
}

func TestFindAppointmentTypeNoConfiguredTypes(t *testing.T) {
	o := newTestOrchestrator(&orchestratorDeps{dir: &fakeDirectory{types: nil}})
	st := newState(callstate.StageGreeting)

	res := o.Dispatch(context.Background(), ToolFindAppointmentType, st, newEvent("find_appointment_type", `{"request":"a cleaning"}`))
	if res.Err == nil || res.Err.Category != CategoryConfiguration {
		t.Fatalf("expected CONFIGURATION error, got %+v", res.Err)
	}
}

func TestFindAppointmentTypeEmptyRequest(t *testing.T) {
	o := newTestOrchestrator(&orchestratorDeps{})
	st := newState(callstate.StageGreeting)

	res := o.Dispatch(context.Background(), ToolFindAppointmentType, st, newEvent("find_appointment_type", `{"request":"  "}`))
	if res.Err == nil || res.Err.Category != CategoryValidation {
		t.Fatalf("expected VALIDATION error, got %+v", res.Err)
	}
}

// ----- identify_patient -----

func TestIdentifyPatientPromptsForNextMissingField(t *testing.T) {
	adapter := &fakeAdapter{}
	o := newTestOrchestrator(&orchestratorDeps{adapter: adapter})
	st := newState(callstate.StageApptTypeKnown)

	res := o.Dispatch(context.Background(), ToolIdentifyPatient, st, newEvent("identify_patient", `{"first_name":"Maria","last_name":"Lopez"}`))
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if res.Result["next_field"] != "date_of_birth" {
		t.Errorf("next_field = %v, want date_of_birth", res.Result["next_field"])
	}
	if adapter.findCalls != 0 || adapter.createCalls != 0 {
		t.Errorf("incomplete identity must not hit the adapter")
	}
	next := mustMergeResult(t, st, res)
	if next.Patient.CollectedFields["first_name"] != "Maria" {
		t.Errorf("collected fields not persisted: %v", next.Patient.CollectedFields)
	}
	if next.Stage != callstate.StageApptTypeKnown {
		t.Errorf("stage must not advance on partial identity")
	}
}

func TestIdentifyPatientFieldsAccumulateAcrossTurns(t *testing.T) {
	o := newTestOrchestrator(&orchestratorDeps{})
	st := newState(callstate.StageApptTypeKnown)
	st.Patient.CollectedFields = map[string]string{"first_name": "Maria", "last_name": "Lopez"}

	res := o.Dispatch(context.Background(), ToolIdentifyPatient, st, newEvent("identify_patient", `{"date_of_birth":"1985-02-10"}`))
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if res.Result["next_field"] != "phone" {
		t.Errorf("next_field = %v, want phone", res.Result["next_field"])
	}
	next := mustMergeResult(t, st, res)
	if next.Patient.CollectedFields["first_name"] != "Maria" {
		t.Errorf("earlier fields lost on merge: %v", next.Patient.CollectedFields)
	}
}

func TestIdentifyPatientEmptyValueNeverOverwrites(t *testing.T) {
	o := newTestOrchestrator(&orchestratorDeps{})
	st := newState(callstate.StageApptTypeKnown)
	st.Patient.CollectedFields = map[string]string{"first_name": "Maria", "last_name": "Lopez", "date_of_birth": "1985-02-10"}

	res := o.Dispatch(context.Background(), ToolIdentifyPatient, st, newEvent("identify_patient", `{"first_name":"","phone":""}`))
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	next := mustMergeResult(t, st, res)
	if next.Patient.CollectedFields["first_name"] != "Maria" {
		t.Errorf("empty value overwrote first_name: %v", next.Patient.CollectedFields)
	}
}

func TestIdentifyPatientFindsExistingRecord(t *testing.T) {
	adapter := &fakeAdapter{
		findPatient: func(ctx context.Context, req nexhealth.PatientSearchRequest) (*nexhealth.Patient, error) {
			return &nexhealth.Patient{ID: "pat_77"}, nil
		},
	}
	o := newTestOrchestrator(&orchestratorDeps{adapter: adapter})
	st := newState(callstate.StageApptTypeKnown)

	res := o.Dispatch(context.Background(), ToolIdentifyPatient, st, newEvent("identify_patient",
		`{"first_name":"Maria","last_name":"Lopez","date_of_birth":"1985-02-10","phone":"+15551234567"}`))
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if adapter.createCalls != 0 {
		t.Errorf("existing patient must not be re-created")
	}
	next := mustMergeResult(t, st, res)
	if next.Patient.ExternalPatientID != "pat_77" {
		t.Errorf("ExternalPatientID = %q, want pat_77", next.Patient.ExternalPatientID)
	}
	if next.Stage != callstate.StagePatientIdentified {
		t.Errorf("stage = %s, want %s", next.Stage, callstate.StagePatientIdentified)
	}
}

func TestIdentifyPatientNewRecordReadsBackBeforeCreating(t *testing.T) {
	adapter := &fakeAdapter{}
	o := newTestOrchestrator(&orchestratorDeps{adapter: adapter})
	st := newState(callstate.StageApptTypeKnown)

	res := o.Dispatch(context.Background(), ToolIdentifyPatient, st, newEvent("identify_patient",
		`{"first_name":"Maria","last_name":"Lopez","date_of_birth":"1985-02-10","phone":"+15551234567"}`))
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if adapter.createCalls != 0 {
		t.Fatalf("chart created before the caller confirmed their details")
	}
	if !strings.Contains(res.Say, "Maria Lopez") {
		t.Errorf("read-back missing the caller's details: %q", res.Say)
	}
	next := mustMergeResult(t, st, res)
	if next.Patient.Status != callstate.PatientCreationInProgress {
		t.Errorf("status = %s, want %s", next.Patient.Status, callstate.PatientCreationInProgress)
	}
	if next.Patient.CollectedFields["phone"] != "+15551234567" {
		t.Errorf("fields must persist across the confirmation turn: %v", next.Patient.CollectedFields)
	}
}

func TestIdentifyPatientCreatesWhenNotFound(t *testing.T) {
	adapter := &fakeAdapter{}
	o := newTestOrchestrator(&orchestratorDeps{adapter: adapter})
	st := newState(callstate.StageApptTypeKnown)

	res := o.Dispatch(context.Background(), ToolIdentifyPatient, st, newEvent("identify_patient",
		`{"first_name":"Maria","last_name":"Lopez","date_of_birth":"1985-02-10","phone":"+15551234567","info_confirmed":true}`))
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if adapter.createCalls != 1 {
		t.Fatalf("createCalls = %d, want 1", adapter.createCalls)
	}
	if res.Result["created"] != true {
		t.Errorf("created flag not set: %v", res.Result)
	}
	next := mustMergeResult(t, st, res)
	if next.Patient.ExternalPatientID != "pat_new" {
		t.Errorf("ExternalPatientID = %q", next.Patient.ExternalPatientID)
	}
}

func TestIdentifyPatientAlreadyIdentifiedIsIdempotent(t *testing.T) {
	adapter := &fakeAdapter{}
	o := newTestOrchestrator(&orchestratorDeps{adapter: adapter})
	st := newState(callstate.StagePatientIdentified)
	st.Patient.ExternalPatientID = "pat_77"

	res := o.Dispatch(context.Background(), ToolIdentifyPatient, st, newEvent("identify_patient",
		`{"first_name":"Maria","last_name":"Lopez","date_of_birth":"1985-02-10","phone":"+15551234567"}`))
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if adapter.findCalls != 0 || adapter.createCalls != 0 {
		t.Errorf("identified patient must not hit the adapter again")
	}
	if res.Result["patient_id"] != "pat_77" {
		t.Errorf("patient_id = %v, want pat_77", res.Result["patient_id"])
	}
}

func TestIdentifyPatientAdapterFailureKeepsFields(t *testing.T) {
	adapter := &fakeAdapter{
		findPatient: func(ctx context.Context, req nexhealth.PatientSearchRequest) (*nexhealth.Patient, error) {
			return nil, &nexhealth.APIError{StatusCode: 500}
		},
	}
	o := newTestOrchestrator(&orchestratorDeps{adapter: adapter})
	st := newState(callstate.StageApptTypeKnown)

	res := o.Dispatch(context.Background(), ToolIdentifyPatient, st, newEvent("identify_patient",
		`{"first_name":"Maria","last_name":"Lopez","date_of_birth":"1985-02-10","phone":"+15551234567"}`))
	if res.Err == nil || res.Err.Category != CategoryTechnical {
		t.Fatalf("expected TECHNICAL error, got %+v", res.Err)
	}
	next := mustMergeResult(t, st, res)
	if next.Patient.CollectedFields["phone"] != "+15551234567" {
		t.Errorf("fields must survive an adapter failure: %v", next.Patient.CollectedFields)
	}
	if next.Patient.ExternalPatientID != "" {
		t.Errorf("failed identification must not set ExternalPatientID")
	}
}

// ----- check_available_slots -----

func remoteSlots() []nexhealth.Slot {
	day1 := time.Date(2026, time.March, 3, 14, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, time.March, 4, 10, 0, 0, 0, time.UTC)
	return []nexhealth.Slot{
		{ID: "slot_a", StartTime: day1, EndTime: day1.Add(time.Hour), ProviderID: "prov_1"},
		{ID: "slot_b", StartTime: day1.Add(30 * time.Minute), EndTime: day1.Add(90 * time.Minute), ProviderID: "prov_1"},
		{ID: "slot_c", StartTime: day1.Add(time.Hour), EndTime: day1.Add(2 * time.Hour), ProviderID: "prov_1"},
		{ID: "slot_d", StartTime: day2, EndTime: day2.Add(time.Hour), ProviderID: "prov_1"},
	}
}

func stateWithApptType() *callstate.CallState {
	st := newState(callstate.StageApptTypeKnown)
	st.Booking.AppointmentTypeID = "apt_cleaning"
	st.Booking.AppointmentTypeName = "Adult Cleaning"
	st.Booking.SpokenName = "a cleaning"
	st.Booking.DurationMinutes = 60
	return st
}

func TestCheckAvailableSlotsPresentsSpreadCandidates(t *testing.T) {
	adapter := &fakeAdapter{
		searchSlots: func(ctx context.Context, req nexhealth.SlotSearchRequest) ([]nexhealth.Slot, error) {
			return remoteSlots(), nil
		},
	}
	o := newTestOrchestrator(&orchestratorDeps{adapter: adapter})
	st := stateWithApptType()

	res := o.Dispatch(context.Background(), ToolCheckAvailableSlots, st, newEvent("check_available_slots", `{}`))
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	next := mustMergeResult(t, st, res)
	if next.Stage != callstate.StageSlotsPresented {
		t.Errorf("stage = %s, want %s", next.Stage, callstate.StageSlotsPresented)
	}
	got := next.Booking.CandidateSlots
	if len(got) != 3 {
		t.Fatalf("candidate count = %d, want 3", len(got))
	}
	// Four slots over two days must not all come from the first day.
	days := map[string]bool{}
	for _, s := range got {
		days[s.StartTime.Format("2006-01-02")] = true
	}
	if len(days) < 2 {
		t.Errorf("candidates not spread across days: %+v", got)
	}
	for i := 1; i < len(got); i++ {
		if got[i].StartTime.Before(got[i-1].StartTime) {
			t.Errorf("candidates out of chronological order")
		}
	}
	for _, s := range got {
		if s.Display == "" {
			t.Errorf("slot %s missing display text", s.ID)
		}
	}
}

func TestCheckAvailableSlotsNormalizesToPracticeTime(t *testing.T) {
	// 19:00 UTC is 2:00 PM Eastern; the caller hears and repeats the
	// Eastern clock, so matching has to run on the same clock.
	adapter := &fakeAdapter{
		searchSlots: func(ctx context.Context, req nexhealth.SlotSearchRequest) ([]nexhealth.Slot, error) {
			start := time.Date(2026, time.March, 2, 19, 0, 0, 0, time.UTC)
			return []nexhealth.Slot{{ID: "slot_utc", StartTime: start, EndTime: start.Add(time.Hour), ProviderID: "prov_1"}}, nil
		},
	}
	dir := &fakeDirectory{
		practice: &practice.Practice{ID: "prac_1", Name: "Bright Smiles Dental", Timezone: "America/New_York"},
		types:    testTypes(),
	}
	o := newTestOrchestrator(&orchestratorDeps{adapter: adapter, dir: dir})
	st := stateWithApptType()

	res := o.Dispatch(context.Background(), ToolCheckAvailableSlots, st, newEvent("check_available_slots", `{}`))
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	next := mustMergeResult(t, st, res)
	got := next.Booking.CandidateSlots
	if len(got) != 1 {
		t.Fatalf("candidate count = %d, want 1", len(got))
	}
	if got[0].StartTime.Hour() != 14 {
		t.Errorf("candidate hour = %d, want 14 (practice local)", got[0].StartTime.Hour())
	}
	if !strings.Contains(got[0].Display, "2:00 PM") {
		t.Errorf("display = %q, want the practice-local clock", got[0].Display)
	}
	matches := MatchSelection("the 2 pm one", got)
	if len(matches) != 1 || matches[0].ID != "slot_utc" {
		t.Errorf("matching the displayed time: got %+v, want slot_utc", matches)
	}
}

func TestCheckAvailableSlotsReplacesPriorCandidates(t *testing.T) {
	adapter := &fakeAdapter{
		searchSlots: func(ctx context.Context, req nexhealth.SlotSearchRequest) ([]nexhealth.Slot, error) {
			return remoteSlots()[:1], nil
		},
	}
	o := newTestOrchestrator(&orchestratorDeps{adapter: adapter})
	st := stateWithApptType()
	st.Stage = callstate.StageSlotsPresented
	st.Booking.CandidateSlots = []callstate.Slot{{ID: "stale_slot", StartTime: testNow}}

	res := o.Dispatch(context.Background(), ToolCheckAvailableSlots, st, newEvent("check_available_slots", `{}`))
	next := mustMergeResult(t, st, res)
	if len(next.Booking.CandidateSlots) != 1 || next.Booking.CandidateSlots[0].ID != "slot_a" {
		t.Errorf("candidates must be replaced wholesale, got %+v", next.Booking.CandidateSlots)
	}
}

func TestCheckAvailableSlotsWithoutApptTypePrompts(t *testing.T) {
	adapter := &fakeAdapter{}
	o := newTestOrchestrator(&orchestratorDeps{adapter: adapter})
	st := newState(callstate.StageGreeting)

	res := o.Dispatch(context.Background(), ToolCheckAvailableSlots, st, newEvent("check_available_slots", `{}`))
	if res.Err != nil {
		t.Fatalf("missing appointment type is a prompt, not an error: %v", res.Err)
	}
	if adapter.searchCalls != 0 {
		t.Errorf("must not search without an appointment type")
	}
	if res.Patch != nil {
		t.Errorf("prompt turn must not change state")
	}
}

func TestCheckAvailableSlotsNoOpenings(t *testing.T) {
	o := newTestOrchestrator(&orchestratorDeps{adapter: &fakeAdapter{}})
	st := stateWithApptType()

	res := o.Dispatch(context.Background(), ToolCheckAvailableSlots, st, newEvent("check_available_slots", `{"requested_date":"2026-03-10"}`))
	if res.Err != nil {
		t.Fatalf("zero slots is a spoken outcome, not an error: %v", res.Err)
	}
	next := mustMergeResult(t, st, res)
	if len(next.Booking.CandidateSlots) != 0 {
		t.Errorf("candidates should be cleared, got %+v", next.Booking.CandidateSlots)
	}
	if next.Stage != callstate.StageApptTypeKnown {
		t.Errorf("zero slots must not advance the stage")
	}
	if next.Booking.RequestedDate != "2026-03-10" {
		t.Errorf("requested date not recorded: %q", next.Booking.RequestedDate)
	}
}

func TestCheckAvailableSlotsRateLimited(t *testing.T) {
	adapter := &fakeAdapter{
		searchSlots: func(ctx context.Context, req nexhealth.SlotSearchRequest) ([]nexhealth.Slot, error) {
			return nil, &nexhealth.APIError{StatusCode: 429}
		},
	}
	o := newTestOrchestrator(&orchestratorDeps{adapter: adapter})
	st := stateWithApptType()

	res := o.Dispatch(context.Background(), ToolCheckAvailableSlots, st, newEvent("check_available_slots", `{}`))
	if res.Err == nil || res.Err.Category != CategoryRateLimit {
		t.Fatalf("expected RATE_LIMIT, got %+v", res.Err)
	}
}

func TestCheckAvailableSlotsBadDate(t *testing.T) {
	o := newTestOrchestrator(&orchestratorDeps{})
	st := stateWithApptType()

	res := o.Dispatch(context.Background(), ToolCheckAvailableSlots, st, newEvent("check_available_slots", `{"requested_date":"next tuesday"}`))
	if res.Err == nil || res.Err.Category != CategoryValidation {
		t.Fatalf("expected VALIDATION, got %+v", res.Err)
	}
}

// ----- hold_slot -----

func stateWithCandidates() *callstate.CallState {
	st := stateWithApptType()
	st.Stage = callstate.StageSlotsPresented
	tue := time.Date(2026, time.March, 3, 14, 0, 0, 0, time.UTC)
	wed := time.Date(2026, time.March, 4, 10, 0, 0, 0, time.UTC)
	st.Booking.CandidateSlots = []callstate.Slot{
		{ID: "slot_a", StartTime: tue, EndTime: tue.Add(time.Hour), ProviderID: "prov_1", Display: "Tuesday, March 3 at 2:00 PM"},
		{ID: "slot_d", StartTime: wed, EndTime: wed.Add(time.Hour), ProviderID: "prov_1", Display: "Wednesday, March 4 at 10:00 AM"},
	}
	return st
}

func TestHoldSlotSelectsAndHolds(t *testing.T) {
	adapter := &fakeAdapter{}
	o := newTestOrchestrator(&orchestratorDeps{adapter: adapter})
	st := stateWithCandidates()

	res := o.Dispatch(context.Background(), ToolHoldSlot, st, newEvent("hold_slot", `{"selection":"the 2pm on tuesday"}`))
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if adapter.holdCalls != 1 {
		t.Fatalf("holdCalls = %d, want 1", adapter.holdCalls)
	}
	next := mustMergeResult(t, st, res)
	if next.Stage != callstate.StageSlotHeld {
		t.Errorf("stage = %s, want %s", next.Stage, callstate.StageSlotHeld)
	}
	if next.Booking.SelectedSlot == nil || next.Booking.SelectedSlot.ID != "slot_a" {
		t.Errorf("selected slot = %+v", next.Booking.SelectedSlot)
	}
	if next.Booking.HoldID != "hold_1" {
		t.Errorf("hold id = %q", next.Booking.HoldID)
	}
	if next.Booking.HoldExpiresAt == nil {
		t.Errorf("hold expiry not recorded")
	}
}

func TestHoldSlotAmbiguousSelectionNarrowsInsteadOfGuessing(t *testing.T) {
	adapter := &fakeAdapter{}
	o := newTestOrchestrator(&orchestratorDeps{adapter: adapter})
	st := stateWithCandidates()
	// Both candidates start at the same clock time on different days.
	st.Booking.CandidateSlots[1].StartTime = time.Date(2026, time.March, 4, 14, 0, 0, 0, time.UTC)

	res := o.Dispatch(context.Background(), ToolHoldSlot, st, newEvent("hold_slot", `{"selection":"2 pm works"}`))
	if res.Err != nil {
		t.Fatalf("ambiguity is a re-prompt, not an error: %v", res.Err)
	}
	if adapter.holdCalls != 0 {
		t.Fatalf("ambiguous selection must not place a hold")
	}
	next := mustMergeResult(t, st, res)
	if len(next.Booking.CandidateSlots) != 2 {
		t.Errorf("narrowed set = %+v", next.Booking.CandidateSlots)
	}
	if next.Stage != callstate.StageSlotsPresented {
		t.Errorf("ambiguity must not advance the stage")
	}
}

func TestHoldSlotNoMatchReasks(t *testing.T) {
	adapter := &fakeAdapter{}
	o := newTestOrchestrator(&orchestratorDeps{adapter: adapter})
	st := stateWithCandidates()

	res := o.Dispatch(context.Background(), ToolHoldSlot, st, newEvent("hold_slot", `{"selection":"friday evening"}`))
	if res.Err != nil {
		t.Fatalf("no match is a re-ask, not an error: %v", res.Err)
	}
	if adapter.holdCalls != 0 {
		t.Errorf("no match must not place a hold")
	}
	if res.Patch != nil {
		t.Errorf("re-ask must not change state")
	}
}

func TestHoldSlotWithoutCandidatesPrompts(t *testing.T) {
	o := newTestOrchestrator(&orchestratorDeps{})
	st := stateWithApptType()

	res := o.Dispatch(context.Background(), ToolHoldSlot, st, newEvent("hold_slot", `{"selection":"the first one"}`))
	if res.Err != nil {
		t.Fatalf("missing candidates is a prompt, not an error: %v", res.Err)
	}
}

func TestHoldSlotConflictOffersRemainingSlots(t *testing.T) {
	adapter := &fakeAdapter{
		holdSlot: func(ctx context.Context, req nexhealth.HoldRequest) (*nexhealth.Hold, error) {
			return nil, &nexhealth.APIError{StatusCode: 409}
		},
	}
	o := newTestOrchestrator(&orchestratorDeps{adapter: adapter})
	st := stateWithCandidates()

	res := o.Dispatch(context.Background(), ToolHoldSlot, st, newEvent("hold_slot", `{"selection":"tuesday"}`))
	if res.Err != nil {
		t.Fatalf("conflict with alternatives re-presents, got error %+v", res.Err)
	}
	next := mustMergeResult(t, st, res)
	for _, s := range next.Booking.CandidateSlots {
		if s.ID == "slot_a" {
			t.Errorf("taken slot must be dropped from candidates")
		}
	}
	if len(next.Booking.CandidateSlots) != 1 {
		t.Errorf("remaining candidates = %+v", next.Booking.CandidateSlots)
	}
}

func TestHoldSlotConflictWithNoAlternatives(t *testing.T) {
	adapter := &fakeAdapter{
		holdSlot: func(ctx context.Context, req nexhealth.HoldRequest) (*nexhealth.Hold, error) {
			return nil, &nexhealth.APIError{StatusCode: 409}
		},
	}
	o := newTestOrchestrator(&orchestratorDeps{adapter: adapter})
	st := stateWithCandidates()
	st.Booking.CandidateSlots = st.Booking.CandidateSlots[:1]

	res := o.Dispatch(context.Background(), ToolHoldSlot, st, newEvent("hold_slot", `{"selection":"tuesday"}`))
	if res.Err == nil || res.Err.Category != CategoryConflict {
		t.Fatalf("expected CONFLICT, got %+v", res.Err)
	}
	next := mustMergeResult(t, st, res)
	if len(next.Booking.CandidateSlots) != 0 {
		t.Errorf("taken slot must still be dropped: %+v", next.Booking.CandidateSlots)
	}
}

// ----- confirm_booking -----

func stateWithHold() *callstate.CallState {
	st := stateWithCandidates()
	st.Stage = callstate.StageSlotHeld
	st.Patient.ExternalPatientID = "pat_77"
	st.Patient.CollectedFields = map[string]string{
		"first_name": "Maria", "last_name": "Lopez", "phone": "+15551234567",
	}
	slot := st.Booking.CandidateSlots[0]
	st.Booking.SelectedSlot = &slot
	st.Booking.HoldID = "hold_1"
	expiry := testNow.Add(5 * time.Minute)
	st.Booking.HoldExpiresAt = &expiry
	return st
}

func TestConfirmBookingBooksAndNotifies(t *testing.T) {
	adapter := &fakeAdapter{}
	email := notify.NewStubEmailSender(logging.NewWithWriter("error", io.Discard))
	o := newTestOrchestrator(&orchestratorDeps{adapter: adapter, email: email})
	st := stateWithHold()

	res := o.Dispatch(context.Background(), ToolConfirmBooking, st, newEvent("confirm_booking", `{"confirmed":true}`))
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if adapter.confirmCalls != 1 {
		t.Fatalf("confirmCalls = %d, want 1", adapter.confirmCalls)
	}
	next := mustMergeResult(t, st, res)
	if next.Stage != callstate.StageBooked {
		t.Errorf("stage = %s, want %s", next.Stage, callstate.StageBooked)
	}
	if next.Booking.HoldID != "" || next.Booking.SelectedSlot != nil {
		t.Errorf("transient hold state must be cleared after booking")
	}
	if len(email.Sent) != 1 {
		t.Fatalf("emails sent = %d, want 1", len(email.Sent))
	}
	if email.Sent[0].To != "front@brightsmiles.test" {
		t.Errorf("email to = %q", email.Sent[0].To)
	}
}

func TestConfirmBookingDeclineReleasesHold(t *testing.T) {
	adapter := &fakeAdapter{}
	o := newTestOrchestrator(&orchestratorDeps{adapter: adapter})
	st := stateWithHold()

	res := o.Dispatch(context.Background(), ToolConfirmBooking, st, newEvent("confirm_booking", `{"confirmed":false}`))
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if len(adapter.releasedIDs) != 1 || adapter.releasedIDs[0] != "hold_1" {
		t.Errorf("released holds = %v, want [hold_1]", adapter.releasedIDs)
	}
	next := mustMergeResult(t, st, res)
	if next.Stage != callstate.StageSlotsPresented {
		t.Errorf("decline must regress to %s, got %s", callstate.StageSlotsPresented, next.Stage)
	}
	if next.Booking.HoldID != "" {
		t.Errorf("hold must be cleared on decline")
	}
}

func TestConfirmBookingExpiredHoldResearches(t *testing.T) {
	adapter := &fakeAdapter{
		searchSlots: func(ctx context.Context, req nexhealth.SlotSearchRequest) ([]nexhealth.Slot, error) {
			return remoteSlots()[:1], nil
		},
	}
	o := newTestOrchestrator(&orchestratorDeps{adapter: adapter})
	st := stateWithHold()
	expired := testNow.Add(-time.Minute)
	st.Booking.HoldExpiresAt = &expired

	res := o.Dispatch(context.Background(), ToolConfirmBooking, st, newEvent("confirm_booking", `{"confirmed":true}`))
	if res.Err != nil {
		t.Fatalf("expired hold is a spoken recovery, not an error: %v", res.Err)
	}
	if adapter.confirmCalls != 0 {
		t.Fatalf("expired hold must never be confirmed")
	}
	if adapter.searchCalls != 1 {
		t.Fatalf("expired hold must trigger a fresh search")
	}
	next := mustMergeResult(t, st, res)
	if next.Stage != callstate.StageSlotsPresented {
		t.Errorf("stage = %s, want %s", next.Stage, callstate.StageSlotsPresented)
	}
	if next.Booking.HoldID != "" || next.Booking.SelectedSlot != nil {
		t.Errorf("expired hold state must be cleared")
	}
	if len(next.Booking.CandidateSlots) != 1 {
		t.Errorf("fresh candidates not stored: %+v", next.Booking.CandidateSlots)
	}
}

func TestConfirmBookingConflictResearches(t *testing.T) {
	adapter := &fakeAdapter{
		confirm: func(ctx context.Context, req nexhealth.ConfirmRequest) (*nexhealth.Booking, error) {
			return nil, &nexhealth.APIError{StatusCode: 410}
		},
	}
	o := newTestOrchestrator(&orchestratorDeps{adapter: adapter})
	st := stateWithHold()

	res := o.Dispatch(context.Background(), ToolConfirmBooking, st, newEvent("confirm_booking", `{"confirmed":true}`))
	if res.Err != nil {
		t.Fatalf("server-side lapse is a spoken recovery, not an error: %v", res.Err)
	}
	if adapter.searchCalls != 1 {
		t.Errorf("lapsed hold must trigger a fresh search")
	}
	next := mustMergeResult(t, st, res)
	if next.Stage != callstate.StageSlotsPresented {
		t.Errorf("stage = %s, want %s", next.Stage, callstate.StageSlotsPresented)
	}
}

func TestConfirmBookingWithoutHoldPrompts(t *testing.T) {
	adapter := &fakeAdapter{}
	o := newTestOrchestrator(&orchestratorDeps{adapter: adapter})
	st := stateWithCandidates()

	res := o.Dispatch(context.Background(), ToolConfirmBooking, st, newEvent("confirm_booking", `{"confirmed":true}`))
	if res.Err != nil {
		t.Fatalf("missing hold is a prompt, not an error: %v", res.Err)
	}
	if adapter.confirmCalls != 0 {
		t.Errorf("must not confirm without a hold")
	}
}

func TestConfirmBookingWithoutPatientPrompts(t *testing.T) {
	adapter := &fakeAdapter{}
	o := newTestOrchestrator(&orchestratorDeps{adapter: adapter})
	st := stateWithHold()
	st.Patient.ExternalPatientID = ""

	res := o.Dispatch(context.Background(), ToolConfirmBooking, st, newEvent("confirm_booking", `{"confirmed":true}`))
	if res.Err != nil {
		t.Fatalf("missing identity is a prompt, not an error: %v", res.Err)
	}
	if adapter.confirmCalls != 0 {
		t.Errorf("must not book an unidentified caller")
	}
}

func TestConfirmBookingEmailFailureDoesNotFailTurn(t *testing.T) {
	adapter := &fakeAdapter{}
	o := newTestOrchestrator(&orchestratorDeps{adapter: adapter, email: nil})
	o.email = failingEmailSender{}
	st := stateWithHold()

	res := o.Dispatch(context.Background(), ToolConfirmBooking, st, newEvent("confirm_booking", `{"confirmed":true}`))
	if res.Err != nil {
		t.Fatalf("email failure must not fail the booking: %v", res.Err)
	}
	next := mustMergeResult(t, st, res)
	if next.Stage != callstate.StageBooked {
		t.Errorf("stage = %s, want %s", next.Stage, callstate.StageBooked)
	}
}

type failingEmailSender struct{}

func (failingEmailSender) Send(ctx context.Context, msg notify.EmailMessage) error {
	return errors.New("smtp down")
}
