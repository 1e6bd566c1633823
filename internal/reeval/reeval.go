// Package reeval periodically re-solves quizzes that were solved before, to
// catch regressions when a quiz rotates its data or its judging changes.
package reeval

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	rcron "github.com/robfig/cron/v3"

	"github.com/stellarlinkco/quizpilot/internal/session"
)

// Source lists the URLs worth re-evaluating.
type Source interface {
	SolvedURLs(limit int) ([]string, error)
}

// Resolver runs one solve attempt. Implemented by the solver.
type Resolver interface {
	Solve(ctx context.Context, quizURL string) (*session.Result, error)
}

// Service schedules re-evaluation sweeps with a six-field cron expression
// (seconds included).
type Service struct {
	schedule string
	limit    int
	source   Source
	resolver Resolver

	mu      sync.Mutex
	cron    *rcron.Cron
	cancel  context.CancelFunc
	running bool
}

func NewService(schedule string, limit int, source Source, resolver Resolver) *Service {
	if limit <= 0 {
		limit = 50
	}
	return &Service{schedule: schedule, limit: limit, source: source, resolver: resolver}
}

func (s *Service) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)

	c := rcron.New(rcron.WithSeconds())
	if _, err := c.AddFunc(s.schedule, func() { s.Sweep(runCtx) }); err != nil {
		cancel()
		return fmt.Errorf("register reeval schedule %q: %w", s.schedule, err)
	}

	s.mu.Lock()
	s.cron = c
	s.cancel = cancel
	s.mu.Unlock()

	c.Start()
	log.Printf("[reeval] started on schedule %q", s.schedule)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

func (s *Service) Stop() {
	s.mu.Lock()
	c := s.cron
	cancel := s.cancel
	s.cron = nil
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if c != nil {
		stopCtx := c.Stop()
		select {
		case <-stopCtx.Done():
		case <-time.After(5 * time.Second):
			log.Printf("[reeval] stop timeout waiting for running sweep")
		}
	}
	log.Printf("[reeval] stopped")
}

// Sweep re-solves every stored solved URL once, sequentially. Sweeps never
// overlap; a sweep already in flight makes this call a no-op.
func (s *Service) Sweep(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		log.Printf("[reeval] sweep already running, skipping")
		return
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	urls, err := s.source.SolvedURLs(s.limit)
	if err != nil {
		log.Printf("[reeval] list solved urls: %v", err)
		return
	}
	log.Printf("[reeval] sweep started: %d urls", len(urls))

	solved, failed := 0, 0
	for _, url := range urls {
		if ctx.Err() != nil {
			log.Printf("[reeval] sweep cancelled")
			return
		}
		res, err := s.resolver.Solve(ctx, url)
		if err != nil {
			log.Printf("[reeval] %s: %v", url, err)
			failed++
			continue
		}
		if res.Status == session.StatusSolved {
			solved++
		} else {
			failed++
			log.Printf("[reeval] regression: %s now %s (%s)", url, res.Status, res.Reason)
		}
	}
	log.Printf("[reeval] sweep finished: %d solved, %d not solved", solved, failed)
}
