// Package solver runs the quiz-solving loop: fetch the quiz, ask the
// reasoning backend for one action at a time, dispatch it, and feed the
// outcome back until the session reaches a terminal status.
package solver

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"

	"github.com/stellarlinkco/quizpilot/internal/artifact"
	"github.com/stellarlinkco/quizpilot/internal/decision"
	"github.com/stellarlinkco/quizpilot/internal/fetch"
	"github.com/stellarlinkco/quizpilot/internal/sandbox"
	"github.com/stellarlinkco/quizpilot/internal/session"
	"github.com/stellarlinkco/quizpilot/internal/submit"
)

// Decider produces one validated action for the session's transcript.
type Decider interface {
	Decide(ctx context.Context, s *session.Session) (*session.Action, error)
}

// Runner executes one Python snippet with named inputs.
type Runner interface {
	Run(ctx context.Context, code string, inputs map[string]string) (sandbox.Result, error)
}

// Recorder persists finished sessions. Optional.
type Recorder interface {
	SaveSession(sess *session.Session, res *session.Result) error
}

// Notifier announces terminal results. Optional.
type Notifier interface {
	Notify(ctx context.Context, res *session.Result) error
}

// Options tune the loop. Zero values fall back to conservative defaults.
type Options struct {
	MaxTurns         int
	InvalidThreshold int
	RetryIncorrect   bool
	MaxFollow        int
}

func (o Options) withDefaults() Options {
	if o.MaxTurns <= 0 {
		o.MaxTurns = 12
	}
	if o.InvalidThreshold <= 0 {
		o.InvalidThreshold = 3
	}
	if o.MaxFollow <= 0 {
		o.MaxFollow = 10
	}
	return o
}

// Solver owns a session for its full lifetime. Actions are dispatched
// strictly one at a time; there is never a concurrent pair in flight.
type Solver struct {
	decider    Decider
	fetcher    fetch.Fetcher
	runner     Runner
	normalizer *artifact.Normalizer
	gateway    submit.Gateway
	recorder   Recorder
	notifier   Notifier
	opts       Options
}

// New wires the collaborators together. recorder and notifier may be nil.
func New(decider Decider, fetcher fetch.Fetcher, runner Runner, normalizer *artifact.Normalizer, gateway submit.Gateway, recorder Recorder, notifier Notifier, opts Options) *Solver {
	return &Solver{
		decider:    decider,
		fetcher:    fetcher,
		runner:     runner,
		normalizer: normalizer,
		gateway:    gateway,
		recorder:   recorder,
		notifier:   notifier,
		opts:       opts.withDefaults(),
	}
}

// Solve runs one session for quizURL to a terminal status. The returned
// Result is never nil when error is nil.
func (s *Solver) Solve(ctx context.Context, quizURL string) (*session.Result, error) {
	sess := session.New(quizURL, s.opts.MaxTurns)
	log.Printf("[solver] session %s started for %s (budget %d)", sess.ID, quizURL, sess.Budget)

	res := s.run(ctx, sess)
	res.SessionID = sess.ID
	res.URL = sess.URL
	res.Status = sess.Status
	res.Reason = sess.Reason
	res.Turns = len(sess.Turns)

	log.Printf("[solver] session %s finished: %s %s", sess.ID, sess.Status, sess.Reason)

	if s.recorder != nil {
		if err := s.recorder.SaveSession(sess, res); err != nil {
			log.Printf("[solver] persist session %s: %v", sess.ID, err)
		}
	}
	if s.notifier != nil {
		if err := s.notifier.Notify(ctx, res); err != nil {
			log.Printf("[solver] notify for session %s: %v", sess.ID, err)
		}
	}
	return res, nil
}

// SolveChain solves quizURL and follows any next-quiz URLs returned by
// correct submissions, up to the follow cap. Results are returned in order.
func (s *Solver) SolveChain(ctx context.Context, quizURL string) ([]*session.Result, error) {
	var results []*session.Result
	current := quizURL
	for i := 0; ; i++ {
		res, err := s.Solve(ctx, current)
		if err != nil {
			return results, err
		}
		results = append(results, res)
		if res.NextURL == "" || res.NextURL == current {
			return results, nil
		}
		if i+1 >= s.opts.MaxFollow {
			log.Printf("[solver] follow cap %d reached, stopping at %s", s.opts.MaxFollow, res.NextURL)
			return results, nil
		}
		current = res.NextURL
	}
}

// run drives the loop and returns the partially filled result (answer,
// correctness, next URL). Terminal status lives on the session.
func (s *Solver) run(ctx context.Context, sess *session.Session) *session.Result {
	res := &session.Result{}

	artifacts := map[string][]byte{}
	submitEndpoint := ""

	page, err := s.fetcher.Fetch(ctx, sess.URL)
	if err != nil {
		sess.Fail(fmt.Sprintf("fetch quiz page: %v", err))
		return res
	}
	submitEndpoint = page.SubmitURL
	mergeParams(sess, page.Params)
	registerArtifacts(artifacts, page.Artifacts)

	blocks := s.normalizer.Normalize(ctx, page.Artifacts)
	taskBlocks := append([]artifact.ContextBlock{{
		Kind:    artifact.KindText,
		Name:    "quiz page",
		Content: page.Text,
	}}, blocks...)
	sess.Append(session.Turn{Kind: session.TurnTask, Blocks: taskBlocks})

	consecutiveInvalid := 0
	submitRetried := false

	for sess.Remaining() > 0 {
		if err := ctx.Err(); err != nil {
			sess.Abandon(fmt.Sprintf("cancelled: %v", err))
			return res
		}

		action, err := s.decider.Decide(ctx, sess)
		if err != nil {
			var fail *decision.Failure
			if errors.As(err, &fail) && fail.Kind == decision.FailureValidation {
				consecutiveInvalid++
				log.Printf("[solver] invalid decision %d/%d: %s", consecutiveInvalid, s.opts.InvalidThreshold, fail.Detail)
				if consecutiveInvalid >= s.opts.InvalidThreshold {
					sess.Abandon(fmt.Sprintf("%d consecutive invalid decisions: %s", consecutiveInvalid, fail.Detail))
					return res
				}
				sess.Append(session.Turn{
					Kind:    session.TurnValidation,
					Outcome: "Your previous response was not a valid action: " + fail.Detail + "\nRespond with exactly one JSON action object.",
				})
				continue
			}
			if ctx.Err() != nil {
				sess.Abandon(fmt.Sprintf("cancelled: %v", ctx.Err()))
				return res
			}
			sess.Fail(fmt.Sprintf("decision backend unreachable: %v", err))
			return res
		}
		consecutiveInvalid = 0
		log.Printf("[solver] session %s turn %d: %s", sess.ID, len(sess.Turns), action.Describe())

		switch action.Kind {
		case session.ActionFetch:
			s.dispatchFetch(ctx, sess, action, artifacts, &submitEndpoint)

		case session.ActionExecute:
			result, err := s.runner.Run(ctx, action.Code, resolveInputs(action.Inputs, artifacts, sess.Params))
			if err != nil {
				if ctx.Err() != nil {
					sess.Abandon(fmt.Sprintf("cancelled: %v", err))
					return res
				}
				sess.Fail(fmt.Sprintf("executor error: %v", err))
				return res
			}
			sess.Append(session.Turn{Kind: session.TurnAction, Action: action, Outcome: result.Summary()})

		case session.ActionSubmit:
			verdict, err := s.gateway.Submit(ctx, sess.URL, submitEndpoint, action.Answer)
			if err != nil {
				if ctx.Err() != nil {
					sess.Abandon(fmt.Sprintf("cancelled: %v", ctx.Err()))
					return res
				}
				// An unreachable endpoint never judged the answer; the
				// attempt ends here rather than burning budget re-submitting.
				sess.Append(session.Turn{
					Kind:    session.TurnAction,
					Action:  action,
					Outcome: fmt.Sprintf("submission not judged: %v", err),
				})
				if errors.Is(err, submit.ErrUnreachable) {
					sess.Fail(fmt.Sprintf("submission endpoint unreachable: %v", err))
				} else {
					sess.Fail(fmt.Sprintf("submission failed: %v", err))
				}
				return res
			}
			res.Answer = action.Answer
			res.Correct = verdict.Correct
			res.NextURL = verdict.NextURL
			if verdict.Correct {
				sess.Append(session.Turn{Kind: session.TurnAction, Action: action, Outcome: "answer judged correct"})
				sess.Solve()
				return res
			}
			outcome := "answer judged incorrect"
			if verdict.Reason != "" {
				outcome += ": " + verdict.Reason
			}
			sess.Append(session.Turn{Kind: session.TurnAction, Action: action, Outcome: outcome})
			if s.opts.RetryIncorrect && !submitRetried {
				submitRetried = true
				continue
			}
			sess.Fail(outcome)
			return res

		case session.ActionAbort:
			sess.Append(session.Turn{Kind: session.TurnAction, Action: action, Outcome: "aborted"})
			sess.Abandon(action.Reason)
			return res
		}
	}

	sess.Fail(fmt.Sprintf("turn budget of %d exhausted", sess.Budget))
	return res
}

func (s *Solver) dispatchFetch(ctx context.Context, sess *session.Session, action *session.Action, artifacts map[string][]byte, submitEndpoint *string) {
	target := resolveURL(sess.URL, action.URL)
	page, err := s.fetcher.Fetch(ctx, target)
	if err != nil {
		sess.Append(session.Turn{
			Kind:    session.TurnAction,
			Action:  action,
			Outcome: fmt.Sprintf("fetch failed: %v", err),
		})
		return
	}
	mergeParams(sess, page.Params)
	registerArtifacts(artifacts, page.Artifacts)
	if page.SubmitURL != "" {
		*submitEndpoint = page.SubmitURL
	}

	blocks := s.normalizer.Normalize(ctx, page.Artifacts)
	if page.Text != "" {
		blocks = append([]artifact.ContextBlock{{
			Kind:    artifact.KindText,
			Name:    target,
			Content: page.Text,
		}}, blocks...)
	}
	sess.Append(session.Turn{
		Kind:    session.TurnAction,
		Action:  action,
		Outcome: fmt.Sprintf("fetched %s", target),
		Blocks:  blocks,
	})
}

// resolveInputs maps the action's declared inputs to concrete values: a name
// matching a fetched artifact yields its full raw content, anything else
// passes through as a literal. Extracted page params ride along so snippets
// can always reach them.
func resolveInputs(declared map[string]string, artifacts map[string][]byte, params map[string]string) map[string]string {
	inputs := make(map[string]string, len(declared)+len(params))
	for k, v := range params {
		inputs[k] = v
	}
	for name, ref := range declared {
		if data, ok := artifacts[ref]; ok {
			inputs[name] = string(data)
			continue
		}
		if data, ok := artifacts[name]; ok && ref == "" {
			inputs[name] = string(data)
			continue
		}
		inputs[name] = ref
	}
	return inputs
}

func registerArtifacts(registry map[string][]byte, arts []artifact.Artifact) {
	for _, a := range arts {
		if a.Name != "" {
			registry[a.Name] = a.Data
		}
		if a.URL != "" {
			registry[a.URL] = a.Data
		}
	}
}

func mergeParams(sess *session.Session, params map[string]string) {
	for k, v := range params {
		if _, exists := sess.Params[k]; !exists {
			sess.Params[k] = v
		}
	}
}

func resolveURL(base, ref string) string {
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}
