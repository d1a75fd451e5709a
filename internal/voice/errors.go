package voice

import (
	"context"
	"errors"
	"fmt"

	"github.com/haloweavedev/laine/internal/nexhealth"
)

// Category classifies a handler failure for the caller-facing voice layer.
type Category string

const (
	CategoryConfiguration Category = "CONFIGURATION"
	CategoryValidation    Category = "VALIDATION"
	CategoryNotFound      Category = "NOT_FOUND"
	CategoryConflict      Category = "CONFLICT"
	CategoryRateLimit     Category = "RATE_LIMIT"
	CategoryTimeout       Category = "TIMEOUT"
	CategoryTechnical     Category = "TECHNICAL"
)

// spokenMessages maps each category to its pre-authored spoken line. Raw
// error detail is logged, never spoken.
var spokenMessages = map[Category]string{
	CategoryConfiguration: "I'm sorry, I'm not able to help with scheduling right now. Let me have someone from the office call you back.",
	CategoryValidation:    "I'm sorry, I didn't quite catch that. Could you say it again?",
	CategoryNotFound:      "I couldn't find that in our system. Could we try something else?",
	CategoryConflict:      "It looks like that time was just taken. Let me check what else is open.",
	CategoryRateLimit:     "Our scheduling system is a little busy right now. Give me just a moment and ask again.",
	CategoryTimeout:       "That took longer than expected. Could you ask me one more time?",
	CategoryTechnical:     "I'm sorry, something went wrong on my end. Could you try that again?",
}

// Spoken returns the fixed caller-facing message for the category.
func (c Category) Spoken() string {
	if msg, ok := spokenMessages[c]; ok {
		return msg
	}
	return spokenMessages[CategoryTechnical]
}

// TurnError is a classified handler failure for one turn.
type TurnError struct {
	Category Category
	Err      error
}

func (e *TurnError) Error() string {
	if e.Err == nil {
		return string(e.Category)
	}
	return fmt.Sprintf("%s: %v", e.Category, e.Err)
}

func (e *TurnError) Unwrap() error { return e.Err }

// Spoken returns the message to voice for this failure. A handler can
// override the category default by classifying with a custom message.
func (e *TurnError) Spoken() string {
	return e.Category.Spoken()
}

func turnErrorf(cat Category, format string, args ...any) *TurnError {
	return &TurnError{Category: cat, Err: fmt.Errorf(format, args...)}
}

// Classify maps an adapter or infrastructure error to its category.
// Scheduling API statuses carry the classification; context deadline means
// the turn's time budget ran out.
func Classify(err error) *TurnError {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return &TurnError{Category: CategoryTimeout, Err: err}
	case nexhealth.IsRateLimit(err):
		return &TurnError{Category: CategoryRateLimit, Err: err}
	case nexhealth.IsConflict(err):
		return &TurnError{Category: CategoryConflict, Err: err}
	case nexhealth.IsNotFound(err):
		return &TurnError{Category: CategoryNotFound, Err: err}
	default:
		return &TurnError{Category: CategoryTechnical, Err: err}
	}
}
