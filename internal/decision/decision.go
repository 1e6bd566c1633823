// Package decision obtains exactly one validated action from the reasoning
// backend per call. The backend is treated as an unreliable input source:
// everything it returns passes schema validation before it can reach the
// orchestrator.
package decision

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cexll/agentsdk-go/pkg/model"

	"github.com/stellarlinkco/quizpilot/internal/session"
)

// FailureKind classifies decision failures for the orchestrator's policy.
type FailureKind string

const (
	// FailureTransport means the backend stayed unreachable after retries.
	FailureTransport FailureKind = "transport"
	// FailureValidation means the backend answered but never produced a
	// schema-valid action.
	FailureValidation FailureKind = "validation"
)

// Failure is a typed decision failure.
type Failure struct {
	Kind   FailureKind
	Detail string
}

func (f *Failure) Error() string {
	return fmt.Sprintf("decision %s failure: %s", f.Kind, f.Detail)
}

// Client turns a session transcript into one validated action.
type Client struct {
	backend           Backend
	keepRecent        int
	validationRetries int
}

// New builds a client. keepRecent bounds the transcript window presented to
// the backend; validationRetries is the number of in-call re-prompts after a
// schema-invalid response (0 leaves the feedback loop to the orchestrator).
func New(backend Backend, keepRecent, validationRetries int) *Client {
	if keepRecent <= 0 {
		keepRecent = 8
	}
	return &Client{backend: backend, keepRecent: keepRecent, validationRetries: validationRetries}
}

// Decide returns one validated action for the session's current transcript,
// or a *Failure.
func (c *Client) Decide(ctx context.Context, s *session.Session) (*session.Action, error) {
	messages := BuildMessages(s, c.keepRecent)

	var lastErr error
	for attempt := 0; attempt <= c.validationRetries; attempt++ {
		text, err := c.backend.Complete(ctx, systemPrompt, messages)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, &Failure{Kind: FailureTransport, Detail: err.Error()}
		}

		action, err := ParseAction(text)
		if err == nil {
			return action, nil
		}
		lastErr = err
		messages = append(messages,
			model.Message{Role: "assistant", Content: text},
			model.Message{Role: "user", Content: "Your response failed validation: " + err.Error() +
				"\nRespond with exactly one JSON action object and nothing else."},
		)
	}
	return nil, &Failure{Kind: FailureValidation, Detail: lastErr.Error()}
}

// ParseAction extracts and validates the single action object from raw model
// output. Code fences and surrounding prose are tolerated; the JSON itself is
// validated strictly (unknown fields rejected, exactly one case populated).
func ParseAction(text string) (*session.Action, error) {
	raw, err := extractJSON(text)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(strings.NewReader(raw))
	dec.DisallowUnknownFields()
	var action session.Action
	if err := dec.Decode(&action); err != nil {
		return nil, fmt.Errorf("decode action: %w", err)
	}
	if err := action.Validate(); err != nil {
		return nil, err
	}
	return &action, nil
}

// extractJSON locates the first balanced JSON object in text.
func extractJSON(text string) (string, error) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", fmt.Errorf("no JSON object in response")
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return text[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("unbalanced JSON object in response")
}
