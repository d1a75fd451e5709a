package nexhealth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/haloweavedev/laine/pkg/logging"
)

const defaultTimeout = 10 * time.Second

// Client is the HTTP client for the scheduling API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *logging.Logger
	dryRun     bool
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client. Used by tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithDryRun makes ConfirmBooking log the request and fabricate a success
// without writing to the scheduling system.
func WithDryRun(dryRun bool) Option {
	return func(c *Client) {
		c.dryRun = dryRun
	}
}

// NewClient creates a scheduling API client.
func NewClient(baseURL, apiKey string, logger *logging.Logger, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, fmt.Errorf("nexhealth: base URL is required")
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("nexhealth: API key is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// apiResponse is the common envelope the scheduling API wraps payloads in.
type apiResponse struct {
	Code  bool            `json:"code"`
	Data  json.RawMessage `json:"data"`
	Error []string        `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("nexhealth: marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("nexhealth: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("nexhealth: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("nexhealth: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var envelope apiResponse
		if json.Unmarshal(raw, &envelope) == nil && len(envelope.Error) > 0 {
			apiErr.Message = envelope.Error[0]
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	var envelope apiResponse
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("nexhealth: decode response: %w", err)
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("nexhealth: decode payload: %w", err)
	}
	return nil
}

// FindPatient searches by phone plus name and date of birth. Returns nil
// when nothing matches; a 404 from the API is treated the same way.
func (c *Client) FindPatient(ctx context.Context, req PatientSearchRequest) (*Patient, error) {
	q := url.Values{}
	q.Set("practice_id", req.PracticeID)
	if req.Phone != "" {
		q.Set("phone_number", req.Phone)
	}
	if req.FirstName != "" {
		q.Set("first_name", req.FirstName)
	}
	if req.LastName != "" {
		q.Set("last_name", req.LastName)
	}
	if req.DateOfBirth != "" {
		q.Set("date_of_birth", req.DateOfBirth)
	}

	var payload struct {
		Patients []Patient `json:"patients"`
	}
	if err := c.do(ctx, http.MethodGet, "/patients", q, nil, &payload); err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	for i := range payload.Patients {
		p := payload.Patients[i]
		if strings.EqualFold(p.FirstName, req.FirstName) &&
			strings.EqualFold(p.LastName, req.LastName) &&
			(req.DateOfBirth == "" || p.DateOfBirth == req.DateOfBirth) {
			return &p, nil
		}
	}
	return nil, nil
}

// CreatePatient creates a patient record.
func (c *Client) CreatePatient(ctx context.Context, req CreatePatientRequest) (*Patient, error) {
	body := map[string]any{
		"practice_id": req.PracticeID,
		"patient": map[string]any{
			"first_name": req.FirstName,
			"last_name":  req.LastName,
			"bio": map[string]any{
				"date_of_birth": req.DateOfBirth,
				"phone_number":  req.Phone,
				"email":         req.Email,
			},
		},
	}

	var payload struct {
		Patient Patient `json:"user"`
	}
	if err := c.do(ctx, http.MethodPost, "/patients", nil, body, &payload); err != nil {
		return nil, err
	}
	return &payload.Patient, nil
}

// ListAppointmentTypes returns the practice's bookable appointment types.
func (c *Client) ListAppointmentTypes(ctx context.Context, practiceID string) ([]AppointmentType, error) {
	q := url.Values{}
	q.Set("practice_id", practiceID)

	var payload struct {
		AppointmentTypes []AppointmentType `json:"appointment_types"`
	}
	if err := c.do(ctx, http.MethodGet, "/appointment_types", q, nil, &payload); err != nil {
		return nil, err
	}
	return payload.AppointmentTypes, nil
}

// SearchSlots returns open slots for the appointment type in the date range.
func (c *Client) SearchSlots(ctx context.Context, req SlotSearchRequest) ([]Slot, error) {
	q := url.Values{}
	q.Set("practice_id", req.PracticeID)
	q.Set("appointment_type_id", req.AppointmentTypeID)
	q.Set("start_date", req.StartDate.Format("2006-01-02"))
	q.Set("end_date", req.EndDate.Format("2006-01-02"))
	for _, id := range req.ProviderIDs {
		q.Add("provider_ids[]", id)
	}
	for _, id := range req.OperatoryIDs {
		q.Add("operatory_ids[]", id)
	}

	var payload struct {
		Slots []Slot `json:"slots"`
	}
	if err := c.do(ctx, http.MethodGet, "/appointment_slots", q, nil, &payload); err != nil {
		return nil, err
	}
	return payload.Slots, nil
}

// HoldSlot places a time-bounded reservation on a slot. A 409 means another
// caller holds or booked the slot.
func (c *Client) HoldSlot(ctx context.Context, req HoldRequest) (*Hold, error) {
	body := map[string]any{
		"practice_id":      req.PracticeID,
		"slot_id":          req.SlotID,
		"provider_id":      req.ProviderID,
		"start_time":       req.StartTime.Format(time.RFC3339),
		"duration_minutes": req.DurationMinutes,
	}

	var hold Hold
	if err := c.do(ctx, http.MethodPost, "/slot_holds", nil, body, &hold); err != nil {
		return nil, err
	}
	return &hold, nil
}

// ConfirmBooking converts a hold into a permanent appointment.
func (c *Client) ConfirmBooking(ctx context.Context, req ConfirmRequest) (*Booking, error) {
	if c.dryRun {
		c.logger.Info("DRY RUN: would confirm booking",
			"practice_id", req.PracticeID,
			"hold_id", req.HoldID,
			"patient_id", req.PatientID,
		)
		return &Booking{AppointmentID: fmt.Sprintf("dry-run-%d", time.Now().UnixMilli())}, nil
	}

	body := map[string]any{
		"practice_id":         req.PracticeID,
		"hold_id":             req.HoldID,
		"patient_id":          req.PatientID,
		"appointment_type_id": req.AppointmentTypeID,
		"note":                req.Note,
	}

	var booking Booking
	if err := c.do(ctx, http.MethodPost, "/appointments", nil, body, &booking); err != nil {
		return nil, err
	}
	return &booking, nil
}

// ReleaseHold cancels a hold. A 404 or 410 is treated as already released.
func (c *Client) ReleaseHold(ctx context.Context, holdID string) error {
	err := c.do(ctx, http.MethodDelete, "/slot_holds/"+url.PathEscape(holdID), nil, nil, nil)
	if err != nil && (IsNotFound(err) || IsConflict(err)) {
		return nil
	}
	return err
}
