package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/stellarlinkco/quizpilot/internal/artifact"
	"github.com/stellarlinkco/quizpilot/internal/config"
	"github.com/stellarlinkco/quizpilot/internal/decision"
	"github.com/stellarlinkco/quizpilot/internal/fetch"
	"github.com/stellarlinkco/quizpilot/internal/notify"
	"github.com/stellarlinkco/quizpilot/internal/reeval"
	"github.com/stellarlinkco/quizpilot/internal/sandbox"
	"github.com/stellarlinkco/quizpilot/internal/session"
	"github.com/stellarlinkco/quizpilot/internal/solver"
	"github.com/stellarlinkco/quizpilot/internal/store"
	"github.com/stellarlinkco/quizpilot/internal/submit"
	"github.com/stellarlinkco/quizpilot/internal/transcribe"
)

var rootCmd = &cobra.Command{
	Use:   "quizpilot",
	Short: "quizpilot - autonomous quiz solver",
}

var solveCmd = &cobra.Command{
	Use:   "solve <url>",
	Short: "Solve one quiz (optionally following next-quiz links)",
	Args:  cobra.ExactArgs(1),
	RunE:  runSolve,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the re-evaluation scheduler until interrupted",
	RunE:  runServe,
}

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Initialize config",
	RunE:  runOnboard,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show quizpilot status",
	RunE:  runStatus,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent sessions",
	RunE:  runHistory,
}

var (
	followFlag bool
	budgetFlag int
	limitFlag  int
	jsonFlag   bool
	sweepFlag  bool
)

func init() {
	solveCmd.Flags().BoolVar(&followFlag, "follow", false, "Follow next-quiz URLs returned by correct submissions")
	solveCmd.Flags().IntVar(&budgetFlag, "budget", 0, "Override the turn budget for this run")
	solveCmd.Flags().BoolVar(&jsonFlag, "json", false, "Print results as JSON")
	historyCmd.Flags().IntVar(&limitFlag, "limit", 20, "Number of sessions to show")
	serveCmd.Flags().BoolVar(&sweepFlag, "sweep-now", false, "Run one sweep immediately on startup")
	rootCmd.AddCommand(solveCmd, serveCmd, onboardCmd, statusCmd, historyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// buildSolver wires the full collaborator graph from config. The returned
// store must be closed by the caller.
func buildSolver(cfg *config.Config) (*solver.Solver, *store.Store, error) {
	if cfg.Provider.APIKey == "" {
		return nil, nil, fmt.Errorf("API key not set. Run 'quizpilot onboard' or set QUIZPILOT_API_KEY / ANTHROPIC_API_KEY")
	}
	if cfg.Quiz.Email == "" || cfg.Quiz.Secret == "" {
		return nil, nil, fmt.Errorf("quiz credentials not set. Set quiz.email and quiz.secret in %s or QUIZPILOT_EMAIL / QUIZPILOT_SECRET", config.ConfigPath())
	}

	var transcriber artifact.Transcriber
	if cfg.Transcribe.APIKey != "" {
		transcriber = transcribe.NewClient(cfg.Transcribe.APIKey, cfg.Transcribe.BaseURL, cfg.Transcribe.Model)
	}

	backend := decision.NewBackend(cfg)
	// In-call re-prompting stays off; schema failures feed back through the
	// orchestrator's validation turns instead.
	decider := decision.New(backend, cfg.Solver.KeepRecentTurns, 0)

	executor := sandbox.New(cfg.Executor.Python,
		time.Duration(cfg.Executor.TimeoutSec)*time.Second,
		cfg.Executor.MaxOutputKB*1024)

	db, err := store.Open(cfg.Store.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open session store: %w", err)
	}

	var notifier solver.Notifier
	if cfg.Notify.Telegram.Enabled {
		tg, err := notify.NewTelegram(cfg.Notify.Telegram)
		if err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("configure telegram notifier: %w", err)
		}
		notifier = tg
	}

	s := solver.New(
		decider,
		fetch.NewHTTPFetcher(),
		executor,
		artifact.NewNormalizer(transcriber),
		submit.NewHTTPGateway(cfg.Quiz.Email, cfg.Quiz.Secret),
		db,
		notifier,
		solver.Options{
			MaxTurns:         cfg.Solver.MaxTurns,
			InvalidThreshold: cfg.Solver.InvalidThreshold,
			RetryIncorrect:   cfg.Solver.RetryIncorrect,
			MaxFollow:        cfg.Solver.MaxFollow,
		},
	)
	return s, db, nil
}

func runSolve(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if budgetFlag > 0 {
		cfg.Solver.MaxTurns = budgetFlag
	}

	s, db, err := buildSolver(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var results []*session.Result
	if followFlag {
		results, err = s.SolveChain(ctx, args[0])
	} else {
		var res *session.Result
		res, err = s.Solve(ctx, args[0])
		if res != nil {
			results = append(results, res)
		}
	}
	if err != nil {
		return err
	}

	if jsonFlag {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}
	for _, res := range results {
		fmt.Println(notify.Format(res))
		fmt.Println()
	}
	for _, res := range results {
		if res.Status != session.StatusSolved {
			os.Exit(1)
		}
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	s, db, err := buildSolver(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc := reeval.NewService(cfg.Reeval.Schedule, cfg.Reeval.Limit, db, s)
	if err := svc.Start(ctx); err != nil {
		return err
	}
	if sweepFlag {
		svc.Sweep(ctx)
	}

	fmt.Printf("quizpilot serving re-evaluations on schedule %q (ctrl-c to stop)\n", cfg.Reeval.Schedule)
	<-ctx.Done()
	svc.Stop()
	return nil
}

func runOnboard(cmd *cobra.Command, args []string) error {
	cfgPath := config.ConfigPath()
	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		if err := config.SaveConfig(config.DefaultConfig()); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Printf("Created config: %s\n", cfgPath)
	} else {
		fmt.Printf("Config already exists: %s\n", cfgPath)
	}

	fmt.Println("\nNext steps:")
	fmt.Printf("  1. Edit %s to set your API key and quiz credentials\n", cfgPath)
	fmt.Println("  2. Or set QUIZPILOT_API_KEY, QUIZPILOT_EMAIL and QUIZPILOT_SECRET")
	fmt.Println("  3. Run 'quizpilot solve <url>' to solve a quiz")
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Config: error (%v)\n", err)
		return nil
	}

	fmt.Printf("Config: %s\n", config.ConfigPath())
	fmt.Printf("Model: %s\n", cfg.Solver.Model)
	fmt.Printf("Provider: %s\n", providerDisplay(cfg.Provider.Type))
	fmt.Printf("API Key: %s\n", maskKey(cfg.Provider.APIKey))
	fmt.Printf("Quiz email: %s\n", orNotSet(cfg.Quiz.Email))
	fmt.Printf("Turn budget: %d\n", cfg.Solver.MaxTurns)
	fmt.Printf("Transcription: %v\n", cfg.Transcribe.APIKey != "")
	fmt.Printf("Telegram: enabled=%v\n", cfg.Notify.Telegram.Enabled)
	fmt.Printf("Reeval schedule: %s\n", cfg.Reeval.Schedule)
	fmt.Printf("Store: %s\n", cfg.Store.DBPath)
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := store.Open(cfg.Store.DBPath)
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}
	defer db.Close()

	records, err := db.History(limitFlag)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No sessions recorded yet.")
		return nil
	}
	for _, r := range records {
		when := r.StartedAt.Local().Format("2006-01-02 15:04")
		fmt.Printf("%s  %-9s  %2d turns  %s", when, r.Status, r.TurnCount, r.URL)
		if r.Answer != "" {
			fmt.Printf("  answer=%s", r.Answer)
		}
		if r.Reason != "" {
			fmt.Printf("  (%s)", r.Reason)
		}
		fmt.Println()
	}
	return nil
}

func providerDisplay(t string) string {
	if t == "" {
		return "anthropic (default)"
	}
	return t
}

func maskKey(key string) string {
	switch {
	case key == "":
		return "not set"
	case len(key) > 8:
		return key[:4] + "..." + key[len(key)-4:]
	default:
		return "set"
	}
}

func orNotSet(s string) string {
	if s == "" {
		return "not set"
	}
	return s
}
