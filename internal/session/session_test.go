package session

import (
	"strings"
	"testing"
)

func TestAppendAssignsIndexAndTimestamp(t *testing.T) {
	s := New("https://quiz.example/q1", 5)

	s.Append(Turn{Kind: TurnTask})
	s.Append(Turn{Kind: TurnAction})
	s.Append(Turn{Kind: TurnValidation})

	for i, turn := range s.Turns {
		if turn.Index != i {
			t.Errorf("turn %d has index %d", i, turn.Index)
		}
		if turn.At.IsZero() {
			t.Errorf("turn %d has zero timestamp", i)
		}
	}
}

func TestRemainingExcludesTaskTurn(t *testing.T) {
	s := New("https://quiz.example/q1", 3)
	s.Append(Turn{Kind: TurnTask})

	if got := s.Remaining(); got != 3 {
		t.Fatalf("Remaining after task turn = %d, want 3", got)
	}

	s.Append(Turn{Kind: TurnAction})
	s.Append(Turn{Kind: TurnValidation})
	if got := s.Remaining(); got != 1 {
		t.Fatalf("Remaining = %d, want 1", got)
	}

	s.Append(Turn{Kind: TurnAction})
	if got := s.Remaining(); got != 0 {
		t.Fatalf("Remaining = %d, want 0", got)
	}
}

func TestTerminalTransitions(t *testing.T) {
	tests := []struct {
		name   string
		finish func(*Session)
		status Status
		reason string
	}{
		{"solve", func(s *Session) { s.Solve() }, StatusSolved, ""},
		{"fail", func(s *Session) { s.Fail("nope") }, StatusFailed, "nope"},
		{"abandon", func(s *Session) { s.Abandon("gave up") }, StatusAbandoned, "gave up"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New("https://quiz.example/q1", 5)
			if s.Terminal() {
				t.Fatal("new session already terminal")
			}
			tt.finish(s)
			if !s.Terminal() {
				t.Fatal("session not terminal after finish")
			}
			if s.Status != tt.status {
				t.Errorf("status = %s, want %s", s.Status, tt.status)
			}
			if s.Reason != tt.reason {
				t.Errorf("reason = %q, want %q", s.Reason, tt.reason)
			}
			if s.EndedAt.IsZero() {
				t.Error("EndedAt not set")
			}
		})
	}
}

func TestActionValidate(t *testing.T) {
	tests := []struct {
		name    string
		action  Action
		wantErr string
	}{
		{"fetch ok", Action{Kind: ActionFetch, URL: "https://x"}, ""},
		{"fetch without url", Action{Kind: ActionFetch}, "requires url"},
		{"fetch with answer", Action{Kind: ActionFetch, URL: "https://x", Answer: "42"}, "another case"},
		{"execute ok", Action{Kind: ActionExecute, Code: "print(1)"}, ""},
		{"execute with inputs", Action{Kind: ActionExecute, Code: "print(x)", Inputs: map[string]string{"x": "data.csv"}}, ""},
		{"execute without code", Action{Kind: ActionExecute}, "requires code"},
		{"execute with url", Action{Kind: ActionExecute, Code: "print(1)", URL: "https://x"}, "another case"},
		{"submit ok", Action{Kind: ActionSubmit, Answer: "852"}, ""},
		{"submit without answer", Action{Kind: ActionSubmit}, "requires answer"},
		{"submit with code", Action{Kind: ActionSubmit, Answer: "852", Code: "x"}, "another case"},
		{"abort ok", Action{Kind: ActionAbort, Reason: "stuck"}, ""},
		{"abort without reason", Action{Kind: ActionAbort}, "requires reason"},
		{"missing kind", Action{}, "missing action kind"},
		{"unknown kind", Action{Kind: "dance"}, "unknown action kind"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.action.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}
