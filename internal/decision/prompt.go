package decision

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cexll/agentsdk-go/pkg/model"

	"github.com/stellarlinkco/quizpilot/internal/artifact"
	"github.com/stellarlinkco/quizpilot/internal/session"
)

const systemPrompt = `You are a quiz-solving agent. You control actions; you never calculate, scrape or decode in your head.

Respond with EXACTLY ONE JSON object, no prose, no markdown fences. The four action forms:

{"action":"fetch","url":"<absolute or relative URL>"}
  Fetch another page or data file referenced by the quiz.

{"action":"execute","code":"<python>","inputs":{"<var>":"<artifact name or literal>"}}
  Run Python for ANY calculation, parsing or decoding. Each input becomes a
  string variable (name sanitized to a Python identifier) and a file under
  inputs/. Name a fetched artifact to receive its full raw content. Always
  print() the final result.

{"action":"submit","answer":"<exact raw value>"}
  Submit the final answer. The raw value only: no quotes, no JSON wrapper,
  no explanation, no trailing punctuation.

{"action":"abort","reason":"<why the quiz cannot be solved>"}
  Give up. Use only when no action can make progress.

Rules:
- Exactly one action per response. Fields of other actions must be absent.
- Use execute for ALL arithmetic and data processing, even trivial sums.
- Numbers are submitted bare: 852, not 852.00 and not "852".
- If an execution fails, read the error and decide again; do not repeat the
  identical code unchanged.`

// BuildMessages renders the transcript into chat messages. Truncation is
// deterministic: the task turn is always retained, plus the most recent
// keepRecent turns; anything between is replaced by a single omission note.
func BuildMessages(s *session.Session, keepRecent int) []model.Message {
	turns := s.Turns
	var messages []model.Message

	appendTurn := func(t session.Turn) {
		switch t.Kind {
		case session.TurnTask:
			messages = append(messages, model.Message{Role: "user", Content: renderTask(s, t)})
		case session.TurnAction:
			messages = append(messages,
				model.Message{Role: "assistant", Content: actionJSON(t.Action)},
				model.Message{Role: "user", Content: renderOutcome(t)},
			)
		case session.TurnValidation:
			messages = append(messages, model.Message{Role: "user", Content: t.Outcome})
		}
	}

	if len(turns) == 0 {
		return messages
	}

	appendTurn(turns[0])
	rest := turns[1:]
	if len(rest) > keepRecent {
		omitted := len(rest) - keepRecent
		messages = append(messages, model.Message{
			Role:    "user",
			Content: fmt.Sprintf("[%d earlier turns omitted]", omitted),
		})
		rest = rest[len(rest)-keepRecent:]
	}
	for _, t := range rest {
		appendTurn(t)
	}
	return messages
}

func renderTask(s *session.Session, t session.Turn) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "QUIZ URL: %s\n", s.URL)
	if len(s.Params) > 0 {
		fmt.Fprintf(&sb, "EXTRACTED PARAMS: %s\n", renderParams(s.Params))
	}
	sb.WriteString(renderBlocks(t.Blocks))
	return strings.TrimSpace(sb.String())
}

func renderOutcome(t session.Turn) string {
	var sb strings.Builder
	if t.Outcome != "" {
		sb.WriteString(t.Outcome)
		sb.WriteString("\n")
	}
	sb.WriteString(renderBlocks(t.Blocks))
	return strings.TrimSpace(sb.String())
}

func renderBlocks(blocks []artifact.ContextBlock) string {
	var sb strings.Builder
	for _, b := range blocks {
		if b.Name != "" {
			fmt.Fprintf(&sb, "[%s] %s:\n%s\n\n", b.Kind, b.Name, b.Content)
		} else {
			fmt.Fprintf(&sb, "[%s]\n%s\n\n", b.Kind, b.Content)
		}
	}
	return sb.String()
}

func renderParams(params map[string]string) string {
	data, err := json.Marshal(params)
	if err != nil {
		return ""
	}
	return string(data)
}

func actionJSON(a *session.Action) string {
	if a == nil {
		return "{}"
	}
	data, err := json.Marshal(a)
	if err != nil {
		return "{}"
	}
	return string(data)
}
