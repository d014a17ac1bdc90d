package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ProjectDir   string `json:"project_dir"`
	ResultsDir   string `json:"results_dir"`
	DataDir      string `json:"data_dir"`
	DataCacheDir string `json:"data_cache_dir"`
	AuditDBPath  string `json:"audit_db_path"`

	LLMProvider   string `json:"llm_provider"`
	DeepThinkLLM  string `json:"deep_think_llm"`
	QuickThinkLLM string `json:"quick_think_llm"`
	BackendURL    string `json:"backend_url"`

	// Pipeline tuning
	MaxDebateRounds        int     `json:"max_debate_rounds"`
	AgentTimeoutSec        int     `json:"agent_timeout_sec"`
	DegradedClaimFraction  float64 `json:"degraded_claim_fraction"`
	SupermajorityThreshold float64 `json:"supermajority_threshold"`
	MinDecisionConfidence  float64 `json:"min_decision_confidence"`
	PersistRetries         int     `json:"persist_retries"`
	PersistBackoffMS       int     `json:"persist_backoff_ms"`

	OnlineTools  bool `json:"online_tools"`
	CacheEnabled bool `json:"cache_enabled"`
	Debug        bool `json:"debug"`

	// Execution
	Watchlist    []string `json:"watchlist"`
	PaperCapital float64  `json:"paper_capital"`
	SlippagePct  float64  `json:"slippage_pct"`

	// Longport API configuration
	LongportAppKey      string `json:"longport_app_key"`
	LongportAppSecret   string `json:"longport_app_secret"`
	LongportAccessToken string `json:"longport_access_token"`

	// AI model API keys
	OpenAIAPIKey   string `json:"openai_api_key"`
	DeepSeekAPIKey string `json:"deepseek_api_key"`

	// Market/news/social data API keys
	FinnhubAPIKey   string `json:"finnhub_api_key"`
	RedditClientID  string `json:"reddit_client_id"`
	RedditSecret    string `json:"reddit_secret"`
	RedditUserAgent string `json:"reddit_user_agent"`
}

func DefaultConfig() *Config {
	currentDir, _ := os.Getwd()
	return DefaultConfigWithRoot(currentDir)
}

func DefaultConfigWithRoot(root string) *Config {
	cfg := &Config{
		ProjectDir:   root,
		ResultsDir:   filepath.Join(root, "results"),
		DataDir:      filepath.Join(root, "data"),
		DataCacheDir: filepath.Join(root, "data", "cache"),
		AuditDBPath:  filepath.Join(root, "data", "audit.db"),

		LLMProvider:   "deepseek",
		DeepThinkLLM:  "deepseek-reasoner",
		QuickThinkLLM: "deepseek-chat",

		MaxDebateRounds:        3,
		AgentTimeoutSec:        120,
		DegradedClaimFraction:  0.5,
		SupermajorityThreshold: 0.75,
		MinDecisionConfidence:  0.35,
		PersistRetries:         3,
		PersistBackoffMS:       200,

		OnlineTools:  true,
		CacheEnabled: true,

		Watchlist:    []string{"AAPL", "MSFT", "NVDA"},
		PaperCapital: 100000,
		SlippagePct:  0.1,

		RedditUserAgent: "VerdictGo/1.0",
	}

	// Load environment variables from .env file
	_ = godotenv.Load()

	cfg.loadFromEnv()
	return cfg
}

func (c *Config) loadFromEnv() {
	setStr := func(key string, dst *string) {
		if val := os.Getenv(key); val != "" {
			*dst = val
		}
	}
	setStr("PROJECT_DIR", &c.ProjectDir)
	setStr("RESULTS_DIR", &c.ResultsDir)
	setStr("DATA_DIR", &c.DataDir)
	setStr("DATA_CACHE_DIR", &c.DataCacheDir)
	setStr("AUDIT_DB_PATH", &c.AuditDBPath)

	setStr("LLM_PROVIDER", &c.LLMProvider)
	setStr("DEEP_THINK_LLM", &c.DeepThinkLLM)
	setStr("QUICK_THINK_LLM", &c.QuickThinkLLM)
	setStr("BACKEND_URL", &c.BackendURL)

	if val := os.Getenv("MAX_DEBATE_ROUNDS"); val != "" {
		if v, err := strconv.Atoi(val); err == nil {
			c.MaxDebateRounds = v
		}
	}
	if val := os.Getenv("AGENT_TIMEOUT_SEC"); val != "" {
		if v, err := strconv.Atoi(val); err == nil {
			c.AgentTimeoutSec = v
		}
	}
	if val := os.Getenv("DEGRADED_CLAIM_FRACTION"); val != "" {
		if v, err := strconv.ParseFloat(val, 64); err == nil {
			c.DegradedClaimFraction = v
		}
	}
	if val := os.Getenv("SUPERMAJORITY_THRESHOLD"); val != "" {
		if v, err := strconv.ParseFloat(val, 64); err == nil {
			c.SupermajorityThreshold = v
		}
	}
	if val := os.Getenv("MIN_DECISION_CONFIDENCE"); val != "" {
		if v, err := strconv.ParseFloat(val, 64); err == nil {
			c.MinDecisionConfidence = v
		}
	}
	if val := os.Getenv("PAPER_CAPITAL"); val != "" {
		if v, err := strconv.ParseFloat(val, 64); err == nil {
			c.PaperCapital = v
		}
	}
	if val := os.Getenv("ONLINE_TOOLS"); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			c.OnlineTools = enabled
		}
	}
	if val := os.Getenv("CACHE_ENABLED"); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			c.CacheEnabled = enabled
		}
	}
	if val := os.Getenv("VERDICTGO_DEBUG"); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			c.Debug = enabled
		}
	}
	if val := os.Getenv("WATCHLIST"); val != "" {
		parts := strings.Split(val, ",")
		list := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				list = append(list, strings.ToUpper(p))
			}
		}
		if len(list) > 0 {
			c.Watchlist = list
		}
	}

	setStr("LONGPORT_APP_KEY", &c.LongportAppKey)
	setStr("LONGPORT_APP_SECRET", &c.LongportAppSecret)
	setStr("LONGPORT_ACCESS_TOKEN", &c.LongportAccessToken)
	setStr("OPENAI_API_KEY", &c.OpenAIAPIKey)
	setStr("DEEPSEEK_API_KEY", &c.DeepSeekAPIKey)
	setStr("FINNHUB_API_KEY", &c.FinnhubAPIKey)
	setStr("REDDIT_CLIENT_ID", &c.RedditClientID)
	setStr("REDDIT_SECRET", &c.RedditSecret)
	setStr("REDDIT_USER_AGENT", &c.RedditUserAgent)
}

// Validate rejects configurations that would break pipeline invariants.
func (c *Config) Validate() error {
	if c.MaxDebateRounds <= 0 {
		return fmt.Errorf("max_debate_rounds must be positive, got %d", c.MaxDebateRounds)
	}
	if c.DegradedClaimFraction < 0 || c.DegradedClaimFraction > 1 {
		return fmt.Errorf("degraded_claim_fraction must be in [0,1], got %g", c.DegradedClaimFraction)
	}
	if c.SupermajorityThreshold <= 0 || c.SupermajorityThreshold > 1 {
		return fmt.Errorf("supermajority_threshold must be in (0,1], got %g", c.SupermajorityThreshold)
	}
	if c.AgentTimeoutSec <= 0 {
		return fmt.Errorf("agent_timeout_sec must be positive, got %d", c.AgentTimeoutSec)
	}
	if c.PersistRetries < 0 {
		return fmt.Errorf("persist_retries must be non-negative, got %d", c.PersistRetries)
	}
	switch c.LLMProvider {
	case "openai", "deepseek", "":
	default:
		return fmt.Errorf("unknown llm_provider %q", c.LLMProvider)
	}
	return nil
}

// AgentTimeout returns the per-agent deadline as a duration.
func (c *Config) AgentTimeout() time.Duration {
	return time.Duration(c.AgentTimeoutSec) * time.Second
}

// PersistBackoff returns the initial persistence retry backoff.
func (c *Config) PersistBackoff() time.Duration {
	return time.Duration(c.PersistBackoffMS) * time.Millisecond
}

func (c *Config) EnsureDirectories() error {
	dirs := []string{c.ProjectDir, c.ResultsDir, c.DataDir, c.DataCacheDir}
	if c.AuditDBPath != "" {
		dirs = append(dirs, filepath.Dir(c.AuditDBPath))
	}
	for _, dir := range dirs {
		path := strings.TrimSpace(dir)
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", path, err)
		}
	}
	return nil
}
