package submit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSubmitCorrect(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/submit" {
			t.Errorf("path = %s, want /submit", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"correct": true,
			"reason":  "",
			"url":     "https://quiz.example/q2",
		})
	}))
	defer srv.Close()

	g := NewHTTPGateway("bob@example.com", "hunter2")
	res, err := g.Submit(context.Background(), srv.URL+"/quiz", "", "852")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if !res.Correct {
		t.Error("judged incorrect")
	}
	if res.NextURL != "https://quiz.example/q2" {
		t.Errorf("next url = %q", res.NextURL)
	}
	if got["email"] != "bob@example.com" || got["secret"] != "hunter2" {
		t.Errorf("credentials not sent: %v", got)
	}
	if got["answer"] != "852" {
		t.Errorf("answer = %q", got["answer"])
	}
	if got["url"] != srv.URL+"/quiz" {
		t.Errorf("url = %q", got["url"])
	}
}

func TestSubmitIncorrectIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"correct": false, "reason": "too low"})
	}))
	defer srv.Close()

	g := NewHTTPGateway("a@b.c", "s")
	res, err := g.Submit(context.Background(), srv.URL+"/quiz", "", "1")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Correct {
		t.Error("judged correct")
	}
	if res.Reason != "too low" {
		t.Errorf("reason = %q", res.Reason)
	}
}

func TestSubmitUnreachable(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "oops", http.StatusInternalServerError)
		}},
		{"garbage body", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("<html>not json</html>"))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			g := NewHTTPGateway("a@b.c", "s")
			_, err := g.Submit(context.Background(), srv.URL+"/quiz", "", "1")
			if !errors.Is(err, ErrUnreachable) {
				t.Fatalf("err = %v, want ErrUnreachable", err)
			}
		})
	}
}

func TestSubmitConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // guaranteed-dead address

	g := NewHTTPGateway("a@b.c", "s")
	_, err := g.Submit(context.Background(), srv.URL+"/quiz", "", "1")
	if !errors.Is(err, ErrUnreachable) {
		t.Fatalf("err = %v, want ErrUnreachable", err)
	}
}

func TestResolveEndpoint(t *testing.T) {
	tests := []struct {
		quizURL  string
		endpoint string
		want     string
	}{
		{"https://quiz.example/q/7", "", "https://quiz.example/submit"},
		{"https://quiz.example/q/7", "/check", "https://quiz.example/check"},
		{"https://quiz.example/q/7", "check", "https://quiz.example/q/check"},
		{"https://quiz.example/q/7", "https://judge.example/submit", "https://judge.example/submit"},
	}
	for _, tt := range tests {
		got, err := resolveEndpoint(tt.quizURL, tt.endpoint)
		if err != nil {
			t.Errorf("resolveEndpoint(%q, %q): %v", tt.quizURL, tt.endpoint, err)
			continue
		}
		if got != tt.want {
			t.Errorf("resolveEndpoint(%q, %q) = %q, want %q", tt.quizURL, tt.endpoint, got, tt.want)
		}
	}
}
