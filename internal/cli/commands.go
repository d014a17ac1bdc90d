// Package cli provides the command-line interface for VerdictGo.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/verdictlab/verdictgo/internal/config"
	"github.com/verdictlab/verdictgo/internal/display"
	"github.com/verdictlab/verdictgo/internal/models"
	"github.com/verdictlab/verdictgo/internal/storage"
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	cfg := config.DefaultConfig()

	rootCmd := &cobra.Command{
		Use:   "verdictgo",
		Short: "VerdictGo - evidence-validated multi-agent trading decisions",
		Long: `VerdictGo runs a multi-agent decision pipeline for stock tickers.
Analyst agents produce claims grounded in collected evidence, every claim is
validated against that evidence before it can influence the outcome, and a
structured debate plus consensus resolution yields an auditable buy/sell/hold
decision.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if debug, _ := cmd.Flags().GetBool("debug"); debug {
				cfg.Debug = true
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			// Default behavior: prompt and run a single ticker.
			ticker, err := PromptForTicker()
			if err != nil {
				return err
			}
			runDate, err := PromptForRunDate()
			if err != nil {
				return err
			}
			mgr, err := newManager(cfg)
			if err != nil {
				return err
			}
			return executeRuns(mgr, cfg.Debug, newTickerQueue([]string{ticker}, nil), runDate, models.ModePaper)
		},
	}

	rootCmd.AddCommand(newRunCmd(cfg))
	rootCmd.AddCommand(newReplayCmd(cfg))
	rootCmd.AddCommand(newConfigCmd(cfg))
	rootCmd.AddCommand(newVersionCmd())

	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")

	return rootCmd
}

func newRunCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [TICKER...]",
		Short: "Run the decision pipeline for one or more tickers",
		Long: `Run the full pipeline for the given ticker symbols. With no
arguments the configured watchlist is used.
Example: verdictgo run AAPL MSFT --date=2024-03-15`,
		RunE: func(cmd *cobra.Command, args []string) error {
			dateStr, _ := cmd.Flags().GetString("date")
			modeStr, _ := cmd.Flags().GetString("mode")

			runDate, err := parseRunDate(dateStr)
			if err != nil {
				return err
			}
			mode, err := parseMode(modeStr)
			if err != nil {
				return err
			}

			mgr, err := newManager(cfg)
			if err != nil {
				return err
			}

			queue := newTickerQueue(args, nil)
			if len(args) == 0 {
				// Watchlist mode re-reads the config before every run, so
				// a live edit reshapes the rest of the batch.
				queue = newTickerQueue(nil, func() []string { return mgr.Get().Watchlist })
				if len(mgr.Get().Watchlist) == 0 {
					return fmt.Errorf("no tickers given and watchlist is empty")
				}
			}
			return executeRuns(mgr, cfg.Debug, queue, runDate, mode)
		},
	}

	cmd.Flags().String("date", "", "Run date in YYYY-MM-DD format (today if not provided)")
	cmd.Flags().String("mode", string(models.ModePaper), "Execution mode: paper or live")

	return cmd
}

func newReplayCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "replay RUN_ID",
		Short: "Reconstruct a past run from the audit trail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := newManager(cfg)
			if err != nil {
				return err
			}
			audit, err := storage.Open(mgr.Get().AuditDBPath)
			if err != nil {
				return fmt.Errorf("open audit store: %w", err)
			}
			defer audit.Close()

			replay, err := audit.Replay(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("replay %s: %w", args[0], err)
			}
			fmt.Print(display.RenderReplay(replay))
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("VerdictGo v1.0.0")
			fmt.Println("Evidence-validated multi-agent trading decisions")
		},
	}
}

func newConfigCmd(cfg *config.Config) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := newManager(cfg)
			if err != nil {
				return err
			}
			current := mgr.Get()
			fmt.Printf("Config File:           %s\n", mgr.Path())
			showConfig(&current)
			return nil
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration and credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := newManager(cfg)
			if err != nil {
				return err
			}
			current := mgr.Get()
			return validateConfig(&current)
		},
	})

	return configCmd
}

// newManager binds the CLI to the on-disk config file, seeding it from the
// environment-derived defaults the first time it is created.
func newManager(cfg *config.Config) (*config.Manager, error) {
	return config.NewManager(
		config.WithConfigDir(cfg.ProjectDir),
		config.WithInitialConfig(cfg),
	)
}

// executeRuns drives the pipeline for each queued ticker in order and
// renders every result. The config file is watched for the duration of
// the batch. The process exits non-zero unless all runs completed.
func executeRuns(mgr *config.Manager, debug bool, queue *tickerQueue, runDate time.Time, mode models.RunMode) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := mgr.Get()
	if debug {
		cfg.Debug = true
	}

	a, err := buildApp(ctx, &cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := mgr.Watch(ctx, func(next config.Config) {
		a.log.Info("configuration reloaded",
			zap.String("path", mgr.Path()),
			zap.Strings("watchlist", next.Watchlist))
	}); err != nil {
		a.log.Warn("config watch unavailable", zap.Error(err))
	}

	var failed []string
	total := 0
	for {
		ticker, ok := queue.Next()
		if !ok {
			break
		}
		total++

		fmt.Printf("Running %s for %s (%s)...\n", ticker, runDate.Format("2006-01-02"), mode)
		result, err := a.orch.Run(ctx, ticker, runDate, mode)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			fmt.Fprintf(os.Stderr, "run failed for %s: %v\n", ticker, err)
			failed = append(failed, ticker)
			continue
		}
		fmt.Print(display.RenderResult(result))
		if result.State != models.StateCompleted {
			failed = append(failed, ticker)
		}
	}

	if len(failed) > 0 {
		return fmt.Errorf("%d of %d run(s) did not complete: %s",
			len(failed), total, strings.Join(failed, ", "))
	}
	return nil
}

func parseRunDate(s string) (time.Time, error) {
	if s == "" {
		now := time.Now().UTC()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date format, use YYYY-MM-DD: %w", err)
	}
	return t, nil
}

func parseMode(s string) (models.RunMode, error) {
	switch models.RunMode(strings.ToLower(strings.TrimSpace(s))) {
	case models.ModePaper, "":
		return models.ModePaper, nil
	case models.ModeLive:
		// The live brokerage gateway is not wired yet; keep the mode in
		// the vocabulary so run keys stay distinct, but refuse to trade.
		return "", fmt.Errorf("live mode is not supported, use --mode=paper")
	default:
		return "", fmt.Errorf("unknown mode %q, use paper", s)
	}
}

func showConfig(cfg *config.Config) {
	fmt.Println("Current VerdictGo Configuration:")
	fmt.Println("═══════════════════════════════════════")
	fmt.Printf("Project Directory:     %s\n", cfg.ProjectDir)
	fmt.Printf("Results Directory:     %s\n", cfg.ResultsDir)
	fmt.Printf("Data Directory:        %s\n", cfg.DataDir)
	fmt.Printf("Cache Directory:       %s\n", cfg.DataCacheDir)
	fmt.Printf("Audit Database:        %s\n", cfg.AuditDBPath)
	fmt.Println()
	fmt.Printf("LLM Provider:          %s\n", cfg.LLMProvider)
	fmt.Printf("Deep Think Model:      %s\n", cfg.DeepThinkLLM)
	fmt.Printf("Quick Think Model:     %s\n", cfg.QuickThinkLLM)
	fmt.Println()
	fmt.Printf("Max Debate Rounds:     %d\n", cfg.MaxDebateRounds)
	fmt.Printf("Agent Timeout:         %ds\n", cfg.AgentTimeoutSec)
	fmt.Printf("Degraded Threshold:    %.2f\n", cfg.DegradedClaimFraction)
	fmt.Printf("Supermajority:         %.2f\n", cfg.SupermajorityThreshold)
	fmt.Printf("Min Confidence:        %.2f\n", cfg.MinDecisionConfidence)
	fmt.Println()
	fmt.Printf("Online Tools:          %t\n", cfg.OnlineTools)
	fmt.Printf("Cache Enabled:         %t\n", cfg.CacheEnabled)
	fmt.Printf("Debug Mode:            %t\n", cfg.Debug)
	fmt.Println()
	fmt.Printf("Watchlist:             %s\n", strings.Join(cfg.Watchlist, ", "))
	fmt.Printf("Paper Capital:         %.2f\n", cfg.PaperCapital)
	fmt.Printf("Slippage Pct:          %.2f\n", cfg.SlippagePct)
	fmt.Println()

	fmt.Println("API Configuration:")
	fmt.Println("─────────────────────")
	printKeyStatus("OpenAI API", cfg.OpenAIAPIKey != "")
	printKeyStatus("DeepSeek API", cfg.DeepSeekAPIKey != "")
	printKeyStatus("Finnhub API", cfg.FinnhubAPIKey != "")
	printKeyStatus("Longport API", cfg.LongportAppKey != "" && cfg.LongportAppSecret != "" && cfg.LongportAccessToken != "")
	fmt.Printf("Reddit User Agent:     %s\n", cfg.RedditUserAgent)
}

func printKeyStatus(name string, configured bool) {
	status := "not configured"
	if configured {
		status = "configured"
	}
	fmt.Printf("%-22s %s\n", name+":", status)
}

func validateConfig(cfg *config.Config) error {
	fmt.Println("Validating VerdictGo configuration...")

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration invalid: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("directory validation failed: %w", err)
	}

	var warnings []string
	switch cfg.LLMProvider {
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			warnings = append(warnings, "OPENAI_API_KEY not set; LLM analysts will be disabled")
		}
	case "deepseek":
		if cfg.DeepSeekAPIKey == "" {
			warnings = append(warnings, "DEEPSEEK_API_KEY not set; LLM analysts will be disabled")
		}
	}
	if cfg.FinnhubAPIKey == "" {
		warnings = append(warnings, "FINNHUB_API_KEY not set; news and fundamentals will rely on scraped sources")
	}

	for _, w := range warnings {
		fmt.Printf("  warning: %s\n", w)
	}
	fmt.Println("Configuration OK")
	return nil
}
