// Package audit persists an immutable record of every tool call turn.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ToolCallRecord is one orchestrator turn: the tool invoked, the outcome,
// and enough context to reconstruct what the assistant did for a call.
type ToolCallRecord struct {
	ID            string          `json:"id"`
	CallID        string          `json:"call_id"`
	ToolCallID    string          `json:"tool_call_id"`
	PracticeID    string          `json:"practice_id"`
	ToolName      string          `json:"tool_name"`
	Outcome       string          `json:"outcome"`
	ErrorCategory string          `json:"error_category,omitempty"`
	StageAfter    string          `json:"stage_after,omitempty"`
	DurationMS    int64           `json:"duration_ms"`
	Details       json.RawMessage `json:"details,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomeReplay  = "replay"
)

type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// Record writes one tool call record. IDs and timestamps are filled in
// when the caller leaves them empty.
func (s *Service) Record(ctx context.Context, rec ToolCallRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO tool_call_audit (
			id, call_id, tool_call_id, practice_id, tool_name,
			outcome, error_category, stage_after, duration_ms, details, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := s.db.ExecContext(ctx, query,
		rec.ID,
		rec.CallID,
		rec.ToolCallID,
		rec.PracticeID,
		rec.ToolName,
		rec.Outcome,
		nullString(rec.ErrorCategory),
		nullString(rec.StageAfter),
		rec.DurationMS,
		rec.Details,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("audit: failed to record tool call: %w", err)
	}

	return nil
}

// ListByCall returns a call's tool call records oldest first.
func (s *Service) ListByCall(ctx context.Context, callID string) ([]ToolCallRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, call_id, tool_call_id, practice_id, tool_name,
		       outcome, error_category, stage_after, duration_ms, details, created_at
		FROM tool_call_audit WHERE call_id = $1 ORDER BY created_at ASC`, callID)
	if err != nil {
		return nil, fmt.Errorf("audit: list tool calls: %w", err)
	}
	defer rows.Close()

	var out []ToolCallRecord
	for rows.Next() {
		var rec ToolCallRecord
		var category, stage sql.NullString
		var details []byte // details is nullable; most turns carry none
		if err := rows.Scan(&rec.ID, &rec.CallID, &rec.ToolCallID, &rec.PracticeID, &rec.ToolName,
			&rec.Outcome, &category, &stage, &rec.DurationMS, &details, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.ErrorCategory = category.String
		rec.StageAfter = stage.String
		if len(details) > 0 {
			rec.Details = json.RawMessage(details)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
