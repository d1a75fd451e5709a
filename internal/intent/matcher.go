package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/haloweavedev/laine/pkg/logging"
)

// Candidate is one appointment type the matcher can choose from.
type Candidate struct {
	ID       string
	Name     string
	Keywords []string
}

const matcherPrompt = `You match a dental patient's stated reason for calling to ONE appointment type. Respond with JSON only.

Appointment types:
%s

Rules:
- Pick the single best match for the patient's words.
- If nothing fits, use "none". Never invent an id.
- Pain, swelling, or a broken tooth should match an emergency or urgent type when one exists.

Patient said: %s

Respond with: {"appointment_type_id": "<id or none>"}`

// Matcher maps a caller utterance to a configured appointment type.
// A keyword pass runs first so common phrasings never cost an LLM call.
type Matcher struct {
	client  LLMClient
	modelID string
	logger  *logging.Logger
}

func NewMatcher(client LLMClient, modelID string, logger *logging.Logger) *Matcher {
	if logger == nil {
		logger = logging.Default()
	}
	return &Matcher{client: client, modelID: modelID, logger: logger}
}

// Match returns the ID of the best-fitting candidate, or "" when no
// candidate fits the utterance.
func (m *Matcher) Match(ctx context.Context, utterance string, candidates []Candidate) (string, error) {
	utterance = strings.TrimSpace(utterance)
	if utterance == "" || len(candidates) == 0 {
		return "", nil
	}

	if id := matchByKeywords(utterance, candidates); id != "" {
		return id, nil
	}
	if m.client == nil {
		return "", nil
	}

	resp, err := m.client.Classify(ctx, ClassifyRequest{
		Model:     m.modelID,
		Prompt:    fmt.Sprintf(matcherPrompt, formatCandidates(candidates), utterance),
		MaxTokens: 64,
	})
	if err != nil {
		return "", fmt.Errorf("intent: match completion: %w", err)
	}

	var result struct {
		AppointmentTypeID string `json:"appointment_type_id"`
	}

	// The model can wrap the JSON in extra prose.
	content := strings.TrimSpace(resp.Text)
	startIdx := strings.Index(content, "{")
	endIdx := strings.LastIndex(content, "}")
	if startIdx < 0 || endIdx <= startIdx {
		m.logger.Warn("matcher response had no JSON object", "response", content)
		return "", nil
	}
	if err := json.Unmarshal([]byte(content[startIdx:endIdx+1]), &result); err != nil {
		m.logger.Warn("matcher response parse failed", "error", err.Error())
		return "", nil
	}

	id := strings.TrimSpace(result.AppointmentTypeID)
	if id == "" || strings.EqualFold(id, "none") {
		return "", nil
	}
	for _, c := range candidates {
		if c.ID == id {
			return id, nil
		}
	}
	m.logger.Warn("matcher returned unknown appointment type id", "id", id)
	return "", nil
}

// matchByKeywords returns a candidate ID only when exactly one candidate's
// keywords appear in the utterance. Ambiguous hits fall through to the LLM.
func matchByKeywords(utterance string, candidates []Candidate) string {
	normalized := " " + strings.ToLower(utterance) + " "

	var matched string
	for _, c := range candidates {
		for _, kw := range c.Keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw == "" {
				continue
			}
			if strings.Contains(normalized, " "+kw+" ") || strings.Contains(normalized, " "+kw+",") || strings.Contains(normalized, " "+kw+".") {
				if matched != "" && matched != c.ID {
					return ""
				}
				matched = c.ID
				break
			}
		}
	}
	return matched
}

func formatCandidates(candidates []Candidate) string {
	var b strings.Builder
	for _, c := range candidates {
		fmt.Fprintf(&b, "- id: %s, name: %s", c.ID, c.Name)
		if len(c.Keywords) > 0 {
			fmt.Fprintf(&b, " (typical phrases: %s)", strings.Join(c.Keywords, ", "))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
