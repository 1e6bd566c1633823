package session

import "fmt"

// ActionKind names the variants of the action schema.
type ActionKind string

const (
	ActionFetch   ActionKind = "fetch"
	ActionExecute ActionKind = "execute"
	ActionSubmit  ActionKind = "submit"
	ActionAbort   ActionKind = "abort"
)

// Action is the tagged variant returned by the reasoning backend. Exactly one
// case is populated; Validate enforces that before any dispatch.
type Action struct {
	Kind   ActionKind        `json:"action"`
	URL    string            `json:"url,omitempty"`
	Code   string            `json:"code,omitempty"`
	Inputs map[string]string `json:"inputs,omitempty"`
	Answer string            `json:"answer,omitempty"`
	Reason string            `json:"reason,omitempty"`
}

// Validate checks the exactly-one-case-populated invariant: the kind must be
// known, its required field present, and no field belonging to another case
// may be set.
func (a *Action) Validate() error {
	switch a.Kind {
	case ActionFetch:
		if a.URL == "" {
			return fmt.Errorf("fetch action requires url")
		}
		if a.Code != "" || a.Answer != "" || a.Reason != "" || len(a.Inputs) > 0 {
			return fmt.Errorf("fetch action carries fields of another case")
		}
	case ActionExecute:
		if a.Code == "" {
			return fmt.Errorf("execute action requires code")
		}
		if a.URL != "" || a.Answer != "" || a.Reason != "" {
			return fmt.Errorf("execute action carries fields of another case")
		}
	case ActionSubmit:
		if a.Answer == "" {
			return fmt.Errorf("submit action requires answer")
		}
		if a.URL != "" || a.Code != "" || a.Reason != "" || len(a.Inputs) > 0 {
			return fmt.Errorf("submit action carries fields of another case")
		}
	case ActionAbort:
		if a.Reason == "" {
			return fmt.Errorf("abort action requires reason")
		}
		if a.URL != "" || a.Code != "" || a.Answer != "" || len(a.Inputs) > 0 {
			return fmt.Errorf("abort action carries fields of another case")
		}
	case "":
		return fmt.Errorf("missing action kind")
	default:
		return fmt.Errorf("unknown action kind %q", a.Kind)
	}
	return nil
}

// Describe renders a short human-readable form for logs and transcripts.
func (a *Action) Describe() string {
	switch a.Kind {
	case ActionFetch:
		return "fetch " + a.URL
	case ActionExecute:
		return fmt.Sprintf("execute (%d bytes of code, %d inputs)", len(a.Code), len(a.Inputs))
	case ActionSubmit:
		return "submit " + a.Answer
	case ActionAbort:
		return "abort: " + a.Reason
	}
	return string(a.Kind)
}
