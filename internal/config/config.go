package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultPort                 = "8080"
	defaultFrontendOrigin       = "https://brand.sanetomore.com"
	defaultDatabaseURL          = "file:brandhub.db"
	defaultOpenRouterBaseURL    = "https://openrouter.ai/api/v1"
	defaultResearchModel        = "anthropic/claude-sonnet-4"
	defaultBraveBaseURL         = "https://api.search.brave.com/res/v1"
	defaultBraveMinIntervalMS   = 1100
	defaultResearchTimeoutSecs  = 120
	defaultResearchMaxCostUSD   = 0.50
	defaultResultCacheTTLMins   = 60
	defaultArchivePrefix        = "research"
	defaultFailedSearchCostMode = "zero"
	defaultUploadMaxBytes       = 5 << 20
	defaultContextFetchSecs     = 10
)

type Config struct {
	Port                    string
	Environment             string
	LogLevel                string
	FrontendOrigin          string
	AllowedOrigins          []string
	TursoDatabaseURL        string
	TursoAuthToken          string
	OpenRouterAPIKey        string
	OpenRouterBaseURL       string
	ResearchModel           string
	ResearchReasoningEffort string
	BraveAPIKey             string
	BraveBaseURL            string
	BraveMinInterval        time.Duration
	ResearchConfigPath      string
	ResearchTimeoutSeconds  int
	ResearchMaxTotalCostUSD float64
	ResearchMaxRounds       int
	FailedSearchCostPolicy  string
	StreamSynthesisTokens   bool
	UploadMaxBytes          int64
	ContextFetchTimeout     time.Duration
	RedisURL                string
	ResultCacheTTL          time.Duration
	ArchiveGCSBucket        string
	ArchiveLocalDir         string
	ArchivePrefix           string
}

func (c Config) ListenAddress() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

func Load() (Config, error) {
	cfg := Config{
		Port:                    envOrDefault("PORT", defaultPort),
		Environment:             envOrDefault("APP_ENV", "development"),
		LogLevel:                envOrDefault("LOG_LEVEL", "info"),
		FrontendOrigin:          envOrDefault("FRONTEND_ORIGIN", defaultFrontendOrigin),
		TursoDatabaseURL:        envOrDefault("TURSO_DATABASE_URL", defaultDatabaseURL),
		TursoAuthToken:          strings.TrimSpace(os.Getenv("TURSO_AUTH_TOKEN")),
		OpenRouterAPIKey:        strings.TrimSpace(os.Getenv("OPENROUTER_API_KEY")),
		OpenRouterBaseURL:       envOrDefault("OPENROUTER_BASE_URL", defaultOpenRouterBaseURL),
		ResearchModel:           envOrDefault("RESEARCH_MODEL", defaultResearchModel),
		ResearchReasoningEffort: strings.ToLower(strings.TrimSpace(os.Getenv("RESEARCH_REASONING_EFFORT"))),
		BraveAPIKey:             strings.TrimSpace(os.Getenv("BRAVE_API_KEY")),
		BraveBaseURL:            envOrDefault("BRAVE_BASE_URL", defaultBraveBaseURL),
		ResearchConfigPath:      strings.TrimSpace(os.Getenv("RESEARCH_CONFIG_PATH")),
		ResearchTimeoutSeconds:  intOrDefault("RESEARCH_TIMEOUT_SECONDS", defaultResearchTimeoutSecs),
		ResearchMaxTotalCostUSD: floatOrDefault("RESEARCH_MAX_TOTAL_COST_USD", defaultResearchMaxCostUSD),
		ResearchMaxRounds:       intOrDefault("RESEARCH_MAX_ROUNDS", 0),
		FailedSearchCostPolicy:  strings.ToLower(envOrDefault("FAILED_SEARCH_COST_POLICY", defaultFailedSearchCostMode)),
		StreamSynthesisTokens:   boolOrDefault("RESEARCH_STREAM_TOKENS", true),
		RedisURL:                strings.TrimSpace(os.Getenv("REDIS_URL")),
		ArchiveGCSBucket:        strings.TrimSpace(os.Getenv("ARCHIVE_GCS_BUCKET")),
		ArchiveLocalDir:         strings.TrimSpace(os.Getenv("ARCHIVE_LOCAL_DIR")),
		ArchivePrefix:           envOrDefault("ARCHIVE_PREFIX", defaultArchivePrefix),
	}

	cfg.BraveMinInterval = time.Duration(intOrDefault("BRAVE_MIN_INTERVAL_MS", defaultBraveMinIntervalMS)) * time.Millisecond
	cfg.ResultCacheTTL = time.Duration(intOrDefault("RESULT_CACHE_TTL_MINUTES", defaultResultCacheTTLMins)) * time.Minute
	cfg.UploadMaxBytes = int64(intOrDefault("RESEARCH_UPLOAD_MAX_BYTES", defaultUploadMaxBytes))
	cfg.ContextFetchTimeout = time.Duration(intOrDefault("CONTEXT_FETCH_TIMEOUT_SECONDS", defaultContextFetchSecs)) * time.Second

	origins := parseList(envOrDefault("CORS_ALLOWED_ORIGINS", cfg.FrontendOrigin+",http://localhost:5173,http://localhost:4173"))
	if len(origins) == 0 {
		return Config{}, errors.New("CORS_ALLOWED_ORIGINS must include at least one origin")
	}
	cfg.AllowedOrigins = origins

	if strings.HasPrefix(cfg.TursoDatabaseURL, "libsql://") && cfg.TursoAuthToken == "" {
		return Config{}, errors.New("TURSO_AUTH_TOKEN is required for libsql:// URLs")
	}
	if cfg.ResearchTimeoutSeconds <= 0 {
		return Config{}, errors.New("RESEARCH_TIMEOUT_SECONDS must be > 0")
	}
	if cfg.ResearchMaxTotalCostUSD <= 0 {
		return Config{}, errors.New("RESEARCH_MAX_TOTAL_COST_USD must be > 0")
	}
	switch cfg.FailedSearchCostPolicy {
	case "zero", "full":
	default:
		return Config{}, fmt.Errorf("FAILED_SEARCH_COST_POLICY must be zero or full, got %q", cfg.FailedSearchCostPolicy)
	}
	if cfg.UploadMaxBytes <= 0 {
		return Config{}, errors.New("RESEARCH_UPLOAD_MAX_BYTES must be > 0")
	}
	if cfg.ResultCacheTTL < 0 {
		return Config{}, errors.New("RESULT_CACHE_TTL_MINUTES must be >= 0")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func boolOrDefault(key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

func intOrDefault(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

func floatOrDefault(key string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseList(raw string) []string {
	items := strings.Split(raw, ",")
	out := make([]string, 0, len(items))
	for _, item := range items {
		trimmed := strings.TrimSpace(item)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
