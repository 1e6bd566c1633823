// Package sandbox executes model-authored Python snippets in a subprocess
// with a wall-clock timeout, an output-size ceiling, and no access to the
// host environment beyond explicitly supplied inputs. This is the system's
// primary safety boundary: snippets come from an untrusted reasoning backend.
package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// Status classifies an execution outcome.
type Status string

const (
	StatusOK               Status = "ok"
	StatusTimeout          Status = "timeout"
	StatusRuntimeError     Status = "runtime_error"
	StatusResourceExceeded Status = "resource_exceeded"
)

// Result is the outcome of one execution. Failures are never fatal to a
// session; the orchestrator feeds them back as context for the next decision.
type Result struct {
	Status Status `json:"status"`
	Output string `json:"output,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// OK reports whether the execution captured a usable result.
func (r Result) OK() bool { return r.Status == StatusOK }

// Summary renders the result for a transcript turn.
func (r Result) Summary() string {
	if r.OK() {
		if r.Output == "" {
			return "execution succeeded with empty output"
		}
		return "execution output:\n" + r.Output
	}
	return fmt.Sprintf("execution failed (%s): %s", r.Status, r.Detail)
}

const (
	DefaultTimeout   = 20 * time.Second
	DefaultMaxOutput = 64 * 1024
)

// Executor runs snippets via a Python interpreter in isolated mode inside a
// throwaway scratch directory. Two runs of the same snippet are not
// guaranteed bit-identical if the snippet touches time or randomness; the
// executor isolates environment access, nothing more.
type Executor struct {
	Python    string
	Timeout   time.Duration
	MaxOutput int
}

// New returns an executor with defaults filled in.
func New(python string, timeout time.Duration, maxOutput int) *Executor {
	e := &Executor{Python: python, Timeout: timeout, MaxOutput: maxOutput}
	if e.Python == "" {
		e.Python = "python3"
	}
	if e.Timeout <= 0 {
		e.Timeout = DefaultTimeout
	}
	if e.MaxOutput <= 0 {
		e.MaxOutput = DefaultMaxOutput
	}
	return e
}

// prelude exposes the supplied inputs to the snippet: each input becomes a
// string variable (identifier-sanitized name) and a file under inputs/.
const prelude = `import json as _json
with open("inputs.json") as _f:
    inputs = _json.load(_f)
for _k in list(inputs):
    globals()[_k] = inputs[_k]
`

var identRe = regexp.MustCompile(`[^A-Za-z0-9_]`)

// Run executes code with the named inputs. The returned error is non-nil
// only when ctx is already cancelled; every execution-level failure is
// reported inside Result.
func (e *Executor) Run(ctx context.Context, code string, inputs map[string]string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	scratch, err := os.MkdirTemp("", "quizpilot-exec-")
	if err != nil {
		return Result{Status: StatusRuntimeError, Detail: fmt.Sprintf("create scratch dir: %v", err)}, nil
	}
	defer os.RemoveAll(scratch)

	if err := e.materialize(scratch, code, inputs); err != nil {
		return Result{Status: StatusRuntimeError, Detail: err.Error()}, nil
	}

	runCtx, cancel := context.WithTimeout(ctx, e.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, e.Python, "-I", "main.py")
	cmd.Dir = scratch
	// Scrubbed environment: interpreter lookup only, no credentials, no
	// proxy settings, HOME pinned inside the scratch dir.
	cmd.Env = []string{"PATH=" + os.Getenv("PATH"), "HOME=" + scratch}
	cmd.WaitDelay = time.Second

	stdout := &cappedBuffer{max: e.MaxOutput}
	stderr := &cappedBuffer{max: e.MaxOutput}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start).Round(time.Millisecond)

	switch {
	case runCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil:
		log.Printf("[sandbox] timeout after %s", elapsed)
		return Result{Status: StatusTimeout, Detail: fmt.Sprintf("wall-clock limit %s exceeded", e.Timeout)}, nil
	case ctx.Err() != nil:
		return Result{}, ctx.Err()
	case stdout.exceeded || stderr.exceeded:
		return Result{Status: StatusResourceExceeded, Detail: fmt.Sprintf("output exceeded %d bytes", e.MaxOutput)}, nil
	case runErr != nil:
		return Result{Status: StatusRuntimeError, Detail: tail(stderr.String(), 2048)}, nil
	}

	log.Printf("[sandbox] ok in %s (%d bytes of output)", elapsed, stdout.Len())
	return Result{Status: StatusOK, Output: strings.TrimSpace(stdout.String())}, nil
}

func (e *Executor) materialize(scratch, code string, inputs map[string]string) error {
	byIdent := make(map[string]string, len(inputs))
	identOwner := make(map[string]string, len(inputs))
	fileOwner := make(map[string]string, len(inputs))
	if len(inputs) > 0 {
		if err := os.MkdirAll(filepath.Join(scratch, "inputs"), 0o755); err != nil {
			return fmt.Errorf("create inputs dir: %w", err)
		}
	}
	for name, value := range inputs {
		ident := identifier(name)
		if prev, ok := identOwner[ident]; ok {
			return fmt.Errorf("inputs %q and %q collide on variable %s", prev, name, ident)
		}
		identOwner[ident] = name
		byIdent[ident] = value

		base := filepath.Base(name)
		if prev, ok := fileOwner[base]; ok {
			return fmt.Errorf("inputs %q and %q collide on file name %s", prev, name, base)
		}
		fileOwner[base] = name
		if err := os.WriteFile(filepath.Join(scratch, "inputs", base), []byte(value), 0o644); err != nil {
			return fmt.Errorf("write input %s: %w", name, err)
		}
	}

	manifest, err := json.Marshal(byIdent)
	if err != nil {
		return fmt.Errorf("marshal inputs: %w", err)
	}
	if err := os.WriteFile(filepath.Join(scratch, "inputs.json"), manifest, 0o644); err != nil {
		return fmt.Errorf("write inputs manifest: %w", err)
	}

	script := prelude + "\n" + code + "\n"
	if err := os.WriteFile(filepath.Join(scratch, "main.py"), []byte(script), 0o644); err != nil {
		return fmt.Errorf("write snippet: %w", err)
	}
	return nil
}

// identifier maps an input name to a valid Python identifier.
func identifier(name string) string {
	s := identRe.ReplaceAllString(name, "_")
	if s == "" || (s[0] >= '0' && s[0] <= '9') {
		s = "_" + s
	}
	return s
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}

// cappedBuffer accepts writes up to max bytes and flags overflow instead of
// failing, so the process finishes (or times out) and the violation is
// reported as resource_exceeded.
type cappedBuffer struct {
	buf      bytes.Buffer
	max      int
	exceeded bool
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	if b.exceeded {
		return len(p), nil
	}
	room := b.max - b.buf.Len()
	if len(p) > room {
		b.buf.Write(p[:room])
		b.exceeded = true
		return len(p), nil
	}
	return b.buf.Write(p)
}

func (b *cappedBuffer) String() string { return b.buf.String() }
func (b *cappedBuffer) Len() int       { return b.buf.Len() }
