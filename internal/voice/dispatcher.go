package voice

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/haloweavedev/laine/internal/audit"
	"github.com/haloweavedev/laine/internal/callstate"
	"github.com/haloweavedev/laine/internal/observability/metrics"
	"github.com/haloweavedev/laine/pkg/logging"
)

// maxEventBytes bounds the inbound webhook body.
const maxEventBytes = 1 << 20

// StateStore is the durable conversation state the dispatcher needs.
// *callstate.Store satisfies it; tests substitute an in-memory fake.
type StateStore interface {
	Load(ctx context.Context, callID string) (*callstate.CallState, error)
	Save(ctx context.Context, state *callstate.CallState) error
	LookupReplay(ctx context.Context, toolCallID string) ([]byte, bool, error)
	StoreReplay(ctx context.Context, toolCallID string, envelope []byte) error
}

// AuditTrail records one row per processed turn. *audit.Service satisfies it.
type AuditTrail interface {
	Record(ctx context.Context, rec audit.ToolCallRecord) error
}

// Dispatcher is the webhook endpoint. It owns the per-turn lifecycle that
// surrounds a handler: replay detection, state load, merge, optimistic
// save, response caching, and audit.
type Dispatcher struct {
	orchestrator *Orchestrator
	store        StateStore
	audit        AuditTrail
	metrics      *metrics.ToolCallMetrics
	logger       *logging.Logger

	webhookSecret string
	turnTimeout   time.Duration
	now           func() time.Time
}

// DispatcherConfig configures the Dispatcher.
type DispatcherConfig struct {
	Orchestrator *Orchestrator
	Store        StateStore
	Audit        AuditTrail
	Metrics      *metrics.ToolCallMetrics
	Logger       *logging.Logger

	// WebhookSecret, when set, is required in the X-Laine-Webhook-Secret
	// header of every request.
	WebhookSecret string
	// TurnTimeout bounds one turn's handler work end to end.
	TurnTimeout time.Duration
	Now         func() time.Time
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.TurnTimeout <= 0 {
		cfg.TurnTimeout = 25 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Dispatcher{
		orchestrator:  cfg.Orchestrator,
		store:         cfg.Store,
		audit:         cfg.Audit,
		metrics:       cfg.Metrics,
		logger:        cfg.Logger,
		webhookSecret: cfg.WebhookSecret,
		turnTimeout:   cfg.TurnTimeout,
		now:           cfg.Now,
	}
}

// ServeHTTP handles POST /webhooks/voice/tool-call.
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if d.webhookSecret != "" && r.Header.Get("X-Laine-Webhook-Secret") != d.webhookSecret {
		writeClientError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxEventBytes))
	if err != nil {
		writeClientError(w, http.StatusBadRequest, "read body")
		return
	}

	var event ToolCallEvent
	if err := json.Unmarshal(body, &event); err != nil {
		writeClientError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if event.CallID == "" || event.ToolCallID == "" {
		writeClientError(w, http.StatusBadRequest, "callId and toolCallId are required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), d.turnTimeout)
	defer cancel()

	logger := d.logger.WithCall(event.CallID, event.ToolCallID)

	// Duplicate delivery: serve the cached envelope byte for byte, with no
	// handler work and no state change.
	if cached, ok, err := d.store.LookupReplay(ctx, event.ToolCallID); err == nil && ok {
		logger.Info("replaying cached tool response", "tool", event.ToolName)
		d.metrics.ObserveTurn(event.ToolName, "replay")
		d.recordAudit(ctx, &event, audit.OutcomeReplay, "", "", 0)
		writeRawJSON(w, cached)
		return
	}

	started := d.now()
	resp, stage, errCategory := d.processTurn(ctx, logger, &event)
	elapsed := d.now().Sub(started)

	envelope, err := json.Marshal(resp)
	if err != nil {
		logger.Error("marshal response", "error", err.Error())
		writeClientError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if err := d.store.StoreReplay(ctx, event.ToolCallID, envelope); err != nil {
		// The turn already happened; failing to cache only risks a
		// duplicate doing work again.
		logger.Warn("store replay envelope", "error", err.Error())
	}

	outcome := audit.OutcomeSuccess
	if resp.Error != "" {
		outcome = audit.OutcomeError
	}
	d.metrics.ObserveTurn(event.ToolName, outcome)
	d.metrics.ObserveTurnLatency(event.ToolName, elapsed.Seconds())
	d.recordAudit(ctx, &event, outcome, errCategory, stage, elapsed)

	writeRawJSON(w, envelope)
}

// processTurn runs one tool call against durable state and returns the
// response envelope, the stage after the turn, and the error category for
// failed turns.
func (d *Dispatcher) processTurn(ctx context.Context, logger *logging.Logger, event *ToolCallEvent) (*Response, string, string) {
	// Garbage arguments never touch state: no load, no save, no marker.
	if err := event.ValidateArguments(); err != nil {
		logger.Warn("malformed tool arguments", "tool", event.ToolName, "error", err.Error())
		return errorResponse(event, &TurnError{Category: CategoryValidation, Err: err}), "", string(CategoryValidation)
	}

	st, err := d.store.Load(ctx, event.CallID)
	if err != nil {
		logger.Error("load call state", "error", err.Error())
		return errorResponse(event, &TurnError{Category: CategoryTechnical, Err: err}), "", string(CategoryTechnical)
	}
	if st == nil {
		if event.PracticeID == "" {
			logger.Warn("first turn without practice id", "tool", event.ToolName)
			return errorResponse(event, turnErrorf(CategoryValidation, "voice: first event for call %s carries no practice id", event.CallID)), "", string(CategoryValidation)
		}
		st = callstate.New(event.CallID, event.PracticeID, d.now())
	}

	kind := ParseToolKind(event.ToolName)
	if kind == ToolUnknown {
		logger.Warn("unsupported tool", "tool", event.ToolName)
		next := st.Clone()
		next.LastToolCallID = event.ToolCallID
		if err := d.store.Save(ctx, next); err != nil && !errors.Is(err, callstate.ErrStaleState) {
			logger.Error("save call state", "error", err.Error())
		}
		return &Response{
			ToolCallID: event.ToolCallID,
			Error:      "unsupported tool: " + event.ToolName,
			Message:    assistantSays("I'm sorry, I can't help with that over the phone. Is there anything else about your appointment?"),
		}, string(next.Stage), string(CategoryValidation)
	}

	res := d.orchestrator.Dispatch(ctx, kind, st, event)

	// Failed turns persist only the tool-call marker, plus any patch the
	// handler explicitly attached (collected fields, dropped candidates).
	var next *callstate.CallState
	if res.Patch != nil {
		next = callstate.Merge(st, *res.Patch)
	} else {
		next = st.Clone()
	}
	next.LastToolCallID = event.ToolCallID

	if err := d.store.Save(ctx, next); err != nil {
		if errors.Is(err, callstate.ErrStaleState) {
			// A concurrent delivery of the same turn won the save; its
			// cached envelope is authoritative.
			if cached, ok, lerr := d.store.LookupReplay(ctx, event.ToolCallID); lerr == nil && ok {
				var dup Response
				if json.Unmarshal(cached, &dup) == nil {
					return &dup, string(next.Stage), ""
				}
			}
			logger.Warn("stale state with no cached envelope", "tool", event.ToolName)
			return errorResponse(event, &TurnError{Category: CategoryTechnical, Err: err}), string(st.Stage), string(CategoryTechnical)
		}
		logger.Error("save call state", "error", err.Error())
		return errorResponse(event, &TurnError{Category: CategoryTechnical, Err: err}), string(st.Stage), string(CategoryTechnical)
	}

	if res.Err != nil {
		logger.Warn("turn failed",
			"tool", event.ToolName,
			"category", string(res.Err.Category),
			"error", res.Err.Error())
		resp := errorResponse(event, res.Err)
		resp.Result = res.Result
		return resp, string(next.Stage), string(res.Err.Category)
	}

	logger.Info("turn complete", "tool", event.ToolName, "stage", string(next.Stage))
	return &Response{
		ToolCallID:       event.ToolCallID,
		Result:           res.Result,
		Message:          assistantSays(res.Say),
		FollowUpToolCall: res.FollowUp,
	}, string(next.Stage), ""
}

// errorResponse builds the envelope for a failed turn: the error string for
// the platform, the category's spoken line for the caller.
func errorResponse(event *ToolCallEvent, terr *TurnError) *Response {
	return &Response{
		ToolCallID: event.ToolCallID,
		Error:      terr.Error(),
		Message:    assistantSays(terr.Spoken()),
	}
}

func (d *Dispatcher) recordAudit(ctx context.Context, event *ToolCallEvent, outcome, errText, stage string, elapsed time.Duration) {
	if d.audit == nil {
		return
	}
	rec := audit.ToolCallRecord{
		CallID:        event.CallID,
		ToolCallID:    event.ToolCallID,
		PracticeID:    event.PracticeID,
		ToolName:      event.ToolName,
		Outcome:       outcome,
		ErrorCategory: errText,
		StageAfter:    stage,
		DurationMS:    elapsed.Milliseconds(),
	}
	if err := d.audit.Record(ctx, rec); err != nil {
		d.logger.Warn("audit record failed", "tool_call_id", event.ToolCallID, "error", err.Error())
	}
}

func writeRawJSON(w http.ResponseWriter, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func writeClientError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
