package decision

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/cexll/agentsdk-go/pkg/model"

	"github.com/stellarlinkco/quizpilot/internal/config"
)

// Backend is the raw transport to the reasoning backend: one prompt in, one
// text completion out. The structured-action contract lives above it.
type Backend interface {
	Complete(ctx context.Context, system string, messages []model.Message) (string, error)
}

type providerBackend struct {
	provider    model.Provider
	maxTokens   int
	temperature float64
	maxRetries  int
}

// NewBackend selects the model provider from config, anthropic by default.
func NewBackend(cfg *config.Config) Backend {
	var provider model.Provider
	switch cfg.Provider.Type {
	case "openai":
		provider = &model.OpenAIProvider{
			APIKey:    cfg.Provider.APIKey,
			BaseURL:   cfg.Provider.BaseURL,
			ModelName: cfg.Solver.Model,
			MaxTokens: cfg.Solver.MaxTokens,
		}
	default: // "anthropic" or empty
		provider = &model.AnthropicProvider{
			APIKey:    cfg.Provider.APIKey,
			BaseURL:   cfg.Provider.BaseURL,
			ModelName: cfg.Solver.Model,
			MaxTokens: cfg.Solver.MaxTokens,
		}
	}
	return &providerBackend{
		provider:    provider,
		maxTokens:   cfg.Solver.MaxTokens,
		temperature: cfg.Solver.Temperature,
		maxRetries:  cfg.Solver.DecisionRetries,
	}
}

func (b *providerBackend) Complete(ctx context.Context, system string, messages []model.Message) (string, error) {
	var content string
	err := b.doWithRetry(ctx, func(ctx context.Context) error {
		mdl, err := b.provider.Model(ctx)
		if err != nil {
			return fmt.Errorf("create model: %w", err)
		}
		temp := b.temperature
		resp, err := mdl.Complete(ctx, model.Request{
			System:      system,
			Messages:    messages,
			MaxTokens:   b.maxTokens,
			Temperature: &temp,
		})
		if err != nil {
			return err
		}
		content = strings.TrimSpace(resp.Message.Content)
		if content == "" {
			return fmt.Errorf("empty completion")
		}
		return nil
	})
	return content, err
}

// doWithRetry retries transient transport failures with quadratic backoff.
func (b *providerBackend) doWithRetry(ctx context.Context, fn func(context.Context) error) error {
	attempts := 0
	for {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempts >= b.maxRetries {
			return err
		}
		attempts++
		wait := time.Duration(attempts*attempts) * 100 * time.Millisecond
		log.Printf("[decision] transport error (attempt %d, retrying in %s): %v", attempts, wait, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}
