// Package session holds the data model for one quiz-solving attempt: the
// session itself, its append-only transcript of turns, and the tagged action
// variant returned by the reasoning backend. Pure types, no I/O.
package session

import (
	"time"

	"github.com/google/uuid"
	"github.com/stellarlinkco/quizpilot/internal/artifact"
)

// Status is the lifecycle state of a session.
type Status string

const (
	StatusOpen      Status = "open"
	StatusSolved    Status = "solved"
	StatusFailed    Status = "failed"
	StatusAbandoned Status = "abandoned"
)

// TurnKind distinguishes transcript entries.
type TurnKind string

const (
	// TurnTask is the initial turn carrying the quiz statement and the
	// context blocks fetched from the quiz page. Never truncated away.
	TurnTask TurnKind = "task"
	// TurnAction records one dispatched action and its outcome.
	TurnAction TurnKind = "action"
	// TurnValidation is a synthetic turn describing a schema-validation
	// failure fed back to the reasoning backend. No action was dispatched.
	TurnValidation TurnKind = "validation"
)

// Turn is one loop iteration. Immutable once appended.
type Turn struct {
	Index   int                     `json:"index"`
	Kind    TurnKind                `json:"kind"`
	Action  *Action                 `json:"action,omitempty"`
	Blocks  []artifact.ContextBlock `json:"blocks,omitempty"`
	Outcome string                  `json:"outcome,omitempty"`
	At      time.Time               `json:"at"`
}

// Session is one end-to-end quiz attempt. Owned exclusively by the
// orchestrator for its lifetime; turns are append-only and strictly ordered.
type Session struct {
	ID        string            `json:"id"`
	URL       string            `json:"url"`
	Turns     []Turn            `json:"turns"`
	Budget    int               `json:"budget"`
	Status    Status            `json:"status"`
	Reason    string            `json:"reason,omitempty"`
	Params    map[string]string `json:"params,omitempty"`
	StartedAt time.Time         `json:"startedAt"`
	EndedAt   time.Time         `json:"endedAt,omitempty"`
}

// New creates an open session for url with the given turn budget.
func New(url string, budget int) *Session {
	return &Session{
		ID:        uuid.NewString(),
		URL:       url,
		Budget:    budget,
		Status:    StatusOpen,
		Params:    map[string]string{},
		StartedAt: time.Now().UTC(),
	}
}

// Append adds a turn to the transcript, assigning its index and timestamp.
func (s *Session) Append(t Turn) {
	t.Index = len(s.Turns)
	if t.At.IsZero() {
		t.At = time.Now().UTC()
	}
	s.Turns = append(s.Turns, t)
}

// Remaining reports how many action turns the budget still allows.
func (s *Session) Remaining() int {
	used := 0
	for _, t := range s.Turns {
		if t.Kind != TurnTask {
			used++
		}
	}
	if used >= s.Budget {
		return 0
	}
	return s.Budget - used
}

// Terminal reports whether the session has reached a final status.
func (s *Session) Terminal() bool {
	return s.Status != StatusOpen
}

func (s *Session) finish(status Status, reason string) {
	s.Status = status
	s.Reason = reason
	s.EndedAt = time.Now().UTC()
}

// Solve marks the session solved.
func (s *Session) Solve() { s.finish(StatusSolved, "") }

// Fail marks the session failed with a reason.
func (s *Session) Fail(reason string) { s.finish(StatusFailed, reason) }

// Abandon marks the session abandoned with a reason.
func (s *Session) Abandon(reason string) { s.finish(StatusAbandoned, reason) }

// Result is the upward-facing summary of a finished session.
type Result struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
	Status    Status `json:"status"`
	Reason    string `json:"reason,omitempty"`
	Correct   bool   `json:"correct"`
	Answer    string `json:"answer,omitempty"`
	NextURL   string `json:"nextUrl,omitempty"`
	Turns     int    `json:"turns"`
}
