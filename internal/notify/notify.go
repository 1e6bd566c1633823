// Package notify announces terminal session results on outbound channels.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/stellarlinkco/quizpilot/internal/session"
)

// Notifier announces one terminal result.
type Notifier interface {
	Notify(ctx context.Context, res *session.Result) error
}

// Multi fans a result out to several notifiers; the first error wins but all
// notifiers run.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, res *session.Result) error {
	var firstErr error
	for _, n := range m {
		if err := n.Notify(ctx, res); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Format renders a result as a short human-readable announcement.
func Format(res *session.Result) string {
	var sb strings.Builder
	switch res.Status {
	case session.StatusSolved:
		fmt.Fprintf(&sb, "✅ solved %s", res.URL)
		if res.Answer != "" {
			fmt.Fprintf(&sb, "\nanswer: %s", res.Answer)
		}
		if res.NextURL != "" {
			fmt.Fprintf(&sb, "\nnext: %s", res.NextURL)
		}
	case session.StatusFailed:
		fmt.Fprintf(&sb, "❌ failed %s\n%s", res.URL, res.Reason)
	case session.StatusAbandoned:
		fmt.Fprintf(&sb, "🚫 abandoned %s\n%s", res.URL, res.Reason)
	default:
		fmt.Fprintf(&sb, "session %s for %s: %s", res.SessionID, res.URL, res.Status)
	}
	fmt.Fprintf(&sb, "\n(%d turns)", res.Turns)
	return sb.String()
}
