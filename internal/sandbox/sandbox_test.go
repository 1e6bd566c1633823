package sandbox

import (
	"context"
	"os/exec"
	"strings"
	"testing"
	"time"
)

func requirePython(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not available")
	}
}

func TestRunCapturesOutput(t *testing.T) {
	requirePython(t)
	e := New("", 10*time.Second, 0)

	res, err := e.Run(context.Background(), `print(2 + 2)`, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.OK() {
		t.Fatalf("status = %s (%s)", res.Status, res.Detail)
	}
	if res.Output != "4" {
		t.Errorf("output = %q, want 4", res.Output)
	}
}

func TestRunExposesInputs(t *testing.T) {
	requirePython(t)
	e := New("", 10*time.Second, 0)

	res, err := e.Run(context.Background(), `print(data_csv.count("\n"))`, map[string]string{
		"data.csv": "a,b\n1,2\n3,4\n",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.OK() {
		t.Fatalf("status = %s (%s)", res.Status, res.Detail)
	}
	if res.Output != "3" {
		t.Errorf("output = %q, want 3", res.Output)
	}
}

func TestRunInputFilesMaterialized(t *testing.T) {
	requirePython(t)
	e := New("", 10*time.Second, 0)

	res, err := e.Run(context.Background(),
		`print(open("inputs/data.csv").read().strip())`,
		map[string]string{"data.csv": "x,y"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Output != "x,y" {
		t.Errorf("output = %q, want x,y", res.Output)
	}
}

func TestRunTimeout(t *testing.T) {
	requirePython(t)
	e := New("", 500*time.Millisecond, 0)

	res, err := e.Run(context.Background(), `import time; time.sleep(10)`, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Status != StatusTimeout {
		t.Fatalf("status = %s, want timeout", res.Status)
	}
}

func TestRunRuntimeError(t *testing.T) {
	requirePython(t)
	e := New("", 10*time.Second, 0)

	res, err := e.Run(context.Background(), `raise ValueError("boom")`, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Status != StatusRuntimeError {
		t.Fatalf("status = %s, want runtime_error", res.Status)
	}
	if !strings.Contains(res.Detail, "boom") {
		t.Errorf("detail = %q, want traceback tail", res.Detail)
	}
}

func TestRunOutputCeiling(t *testing.T) {
	requirePython(t)
	e := New("", 10*time.Second, 1024)

	res, err := e.Run(context.Background(), `print("x" * 100000)`, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Status != StatusResourceExceeded {
		t.Fatalf("status = %s, want resource_exceeded", res.Status)
	}
}

func TestRunCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := New("", time.Second, 0)
	_, err := e.Run(ctx, `print(1)`, nil)
	if err == nil {
		t.Fatal("Run with cancelled context returned nil error")
	}
}

func TestRunRejectsCollidingInputs(t *testing.T) {
	e := New("", time.Second, 0)

	// both names sanitize to the variable data_csv
	res, err := e.Run(context.Background(), `print(1)`, map[string]string{
		"data.csv": "a",
		"data csv": "b",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Status != StatusRuntimeError {
		t.Fatalf("status = %s, want runtime_error", res.Status)
	}
	if !strings.Contains(res.Detail, "collide") {
		t.Errorf("detail = %q", res.Detail)
	}

	// distinct variables, same base file name under inputs/
	res, err = e.Run(context.Background(), `print(1)`, map[string]string{
		"data.csv":     "a",
		"sub/data.csv": "b",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Status != StatusRuntimeError || !strings.Contains(res.Detail, "collide") {
		t.Fatalf("status = %s detail = %q, want file-name collision", res.Status, res.Detail)
	}
}

func TestIdentifier(t *testing.T) {
	tests := []struct{ in, want string }{
		{"data.csv", "data_csv"},
		{"weird name!", "weird_name_"},
		{"7zip", "_7zip"},
		{"plain", "plain"},
	}
	for _, tt := range tests {
		if got := identifier(tt.in); got != tt.want {
			t.Errorf("identifier(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestResultSummary(t *testing.T) {
	ok := Result{Status: StatusOK, Output: "42"}
	if got := ok.Summary(); !strings.Contains(got, "42") {
		t.Errorf("Summary() = %q", got)
	}
	failed := Result{Status: StatusTimeout, Detail: "wall-clock limit 20s exceeded"}
	if got := failed.Summary(); !strings.Contains(got, "timeout") {
		t.Errorf("Summary() = %q", got)
	}
}
