package cli

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/verdictlab/verdictgo/internal/agents"
	"github.com/verdictlab/verdictgo/internal/config"
	"github.com/verdictlab/verdictgo/internal/consensus"
	"github.com/verdictlab/verdictgo/internal/debate"
	"github.com/verdictlab/verdictgo/internal/evidence"
	"github.com/verdictlab/verdictgo/internal/evidence/providers"
	"github.com/verdictlab/verdictgo/internal/execution"
	"github.com/verdictlab/verdictgo/internal/logging"
	"github.com/verdictlab/verdictgo/internal/models"
	"github.com/verdictlab/verdictgo/internal/orchestrate"
	"github.com/verdictlab/verdictgo/internal/storage"
)

// app holds the wired pipeline for one CLI invocation.
type app struct {
	cfg   *config.Config
	log   *zap.Logger
	audit *storage.AuditStore
	orch  *orchestrate.Orchestrator
}

// buildApp assembles the full pipeline from configuration. Data sources
// and LLM analysts without credentials are skipped with a warning; the
// deterministic technical analyst always runs.
func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}

	log := logging.New(cfg.Debug)

	audit, err := storage.Open(cfg.AuditDBPath)
	if err != nil {
		return nil, fmt.Errorf("open audit store: %w", err)
	}

	store := evidence.NewStore()

	yahoo := providers.NewYahooProvider(cfg.DataCacheDir, cfg.CacheEnabled)
	sources := []providers.Provider{yahoo}

	if cfg.LongportAppKey != "" && cfg.LongportAppSecret != "" && cfg.LongportAccessToken != "" {
		lp, err := providers.NewLongportProvider(cfg.LongportAppKey, cfg.LongportAppSecret, cfg.LongportAccessToken)
		if err != nil {
			log.Warn("longport provider unavailable", zap.Error(err))
		} else {
			sources = append(sources, lp)
		}
	}
	if cfg.FinnhubAPIKey != "" {
		sources = append(sources,
			providers.NewFinnhubNewsProvider(cfg.FinnhubAPIKey, cfg.DataCacheDir, cfg.CacheEnabled),
			providers.NewFinnhubFundamentalsProvider(cfg.FinnhubAPIKey, cfg.DataCacheDir, cfg.CacheEnabled))
	}
	if cfg.OnlineTools {
		// Keyless sources; Google News also covers the case where no
		// Finnhub key is configured.
		sources = append(sources,
			providers.NewGoogleNewsProvider(cfg.DataCacheDir, cfg.CacheEnabled),
			providers.NewRedditProvider(cfg.RedditUserAgent, cfg.DataCacheDir, cfg.CacheEnabled))
	}

	ingestor := providers.NewIngestor(store, sources, log)

	analysts := []agents.Analyst{agents.NewTechnicalAnalyst()}
	var debaters map[models.DebateRole]debate.Debater

	chat, err := agents.NewChatModel(ctx, cfg, false)
	if err != nil {
		log.Warn("LLM analysts disabled", zap.Error(err))
	} else {
		analysts = append(analysts,
			agents.NewNewsAnalyst(chat),
			agents.NewSentimentAnalyst(chat),
			agents.NewFundamentalsAnalyst(chat))

		deep, err := agents.NewChatModel(ctx, cfg, true)
		if err != nil {
			log.Warn("deep-think model unavailable, debating with quick model", zap.Error(err))
			deep = chat
		}
		debaters = agents.LLMDebaters(deep)
	}

	harness := agents.NewHarness(analysts, cfg.AgentTimeout(), log)
	engine := debate.NewEngine(cfg.MaxDebateRounds, debaters, log)
	resolver := consensus.NewResolver(cfg.SupermajorityThreshold, log)
	gate := consensus.NewRiskGate(cfg.MinDecisionConfidence, log)

	gateway, err := execution.NewPaperGateway(cfg.DataDir, cfg.PaperCapital, cfg.SlippagePct, yahoo, log)
	if err != nil {
		audit.Close()
		return nil, fmt.Errorf("init paper gateway: %w", err)
	}

	runLog := orchestrate.NewRunLog(cfg.ResultsDir, log)

	orch := orchestrate.New(audit, store, ingestor, harness, engine, resolver, gate, gateway, runLog,
		orchestrate.Options{
			DegradedClaimFraction: cfg.DegradedClaimFraction,
			PersistRetries:        cfg.PersistRetries,
			PersistBackoff:        cfg.PersistBackoff(),
		}, log)

	return &app{cfg: cfg, log: log, audit: audit, orch: orch}, nil
}

func (a *app) Close() {
	if a.audit != nil {
		a.audit.Close()
	}
	if a.log != nil {
		_ = a.log.Sync()
	}
}
