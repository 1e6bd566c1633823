// Package submit delivers a final answer to the quiz endpoint and interprets
// the judgment. A transport failure is reported as ErrUnreachable and must
// never be confused with "submitted but judged incorrect".
package submit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrUnreachable marks submissions that never produced a judgment.
var ErrUnreachable = errors.New("submission endpoint unreachable")

// Result is the quiz endpoint's judgment.
type Result struct {
	Correct bool   `json:"correct"`
	Reason  string `json:"reason,omitempty"`
	NextURL string `json:"nextUrl,omitempty"`
}

// Gateway posts answers. The orchestrator depends on this interface so tests
// can judge answers locally.
type Gateway interface {
	Submit(ctx context.Context, quizURL, endpoint, answer string) (*Result, error)
}

const defaultEndpoint = "/submit"

// HTTPGateway is the production Gateway.
type HTTPGateway struct {
	Email  string
	Secret string
	Client *http.Client
}

// NewHTTPGateway builds a gateway with the credentials the quiz endpoint
// expects alongside every answer.
func NewHTTPGateway(email, secret string) *HTTPGateway {
	return &HTTPGateway{
		Email:  email,
		Secret: secret,
		Client: &http.Client{Timeout: 30 * time.Second},
	}
}

// Submit posts the answer. endpoint may be empty (defaults to /submit) or
// relative; either is resolved against quizURL.
func (g *HTTPGateway) Submit(ctx context.Context, quizURL, endpoint, answer string) (*Result, error) {
	target, err := resolveEndpoint(quizURL, endpoint)
	if err != nil {
		return nil, fmt.Errorf("resolve submit endpoint: %w", err)
	}

	payload, err := json.Marshal(map[string]string{
		"email":  g.Email,
		"secret": g.Secret,
		"url":    quizURL,
		"answer": answer,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal submission: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := g.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrUnreachable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: http %d: %s", ErrUnreachable, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded struct {
		Correct bool   `json:"correct"`
		Reason  string `json:"reason"`
		URL     string `json:"url"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrUnreachable, err)
	}

	log.Printf("[submit] %s -> correct=%v next=%q", target, decoded.Correct, decoded.URL)
	return &Result{Correct: decoded.Correct, Reason: decoded.Reason, NextURL: decoded.URL}, nil
}

func resolveEndpoint(quizURL, endpoint string) (string, error) {
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint, nil
	}
	base, err := url.Parse(quizURL)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}
