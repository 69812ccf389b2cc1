package research

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"brandhub/backend/internal/brave"
)

type FailedSearchCostPolicy string

const (
	// FailedSearchCostZero records failed search legs as free.
	FailedSearchCostZero FailedSearchCostPolicy = "zero"
	// FailedSearchCostFull charges failed legs the full per-query price.
	FailedSearchCostFull FailedSearchCostPolicy = "full"
)

const (
	defaultMaxRounds               = 2
	defaultMaxQueriesPerRound      = 5
	defaultParallelSearches        = 3
	defaultTimeout                 = 120 * time.Second
	defaultMaxTotalCost            = 0.50
	defaultMinConfidenceToComplete = 0.8
	defaultMaxGapsToAddress        = 3
	defaultMinResearchQueryLength  = 20
	defaultRound2Multiplier        = 1.5
	defaultResultsPerSearch        = 5
	defaultSearchLegTimeout        = 20 * time.Second

	defaultSearchStandardUSD     = 0.005
	defaultSearchProUSD          = 0.015
	defaultLLMInputPer1KUSD      = 0.003
	defaultLLMOutputPer1KUSD     = 0.015
	defaultPlanningInputTokens   = 800
	defaultPlanningOutputTokens  = 400
	defaultSynthesisInputTokens  = 6000
	defaultSynthesisOutputTokens = 1500
)

type Pricing struct {
	SearchStandardUSD     float64 `yaml:"search_standard_usd"`
	SearchProUSD          float64 `yaml:"search_pro_usd"`
	LLMInputPer1KUSD      float64 `yaml:"llm_input_per_1k_usd"`
	LLMOutputPer1KUSD     float64 `yaml:"llm_output_per_1k_usd"`
	PlanningInputTokens   int     `yaml:"planning_input_tokens"`
	PlanningOutputTokens  int     `yaml:"planning_output_tokens"`
	SynthesisInputTokens  int     `yaml:"synthesis_input_tokens"`
	SynthesisOutputTokens int     `yaml:"synthesis_output_tokens"`
}

// Keywords drive classification and the research pre-gate. Matching is a
// case-insensitive substring test.
type Keywords struct {
	Simple   []string `yaml:"simple"`
	Moderate []string `yaml:"moderate"`
	Complex  []string `yaml:"complex"`
	Trigger  []string `yaml:"trigger"`
}

type Config struct {
	MaxRounds               int                    `yaml:"max_rounds"`
	MaxQueriesPerRound      int                    `yaml:"max_queries_per_round"`
	ParallelSearches        int                    `yaml:"parallel_searches"`
	Timeout                 time.Duration          `yaml:"timeout"`
	MaxTotalCost            float64                `yaml:"max_total_cost_usd"`
	MinConfidenceToComplete float64                `yaml:"min_confidence_to_complete"`
	MaxGapsToAddress        int                    `yaml:"max_gaps_to_address"`
	MinResearchQueryLength  int                    `yaml:"min_research_query_length"`
	QueriesPerComplexity    map[Complexity]int     `yaml:"queries_per_complexity"`
	Round2Multiplier        float64                `yaml:"round2_multiplier"`
	ResultsPerSearch        int                    `yaml:"results_per_search"`
	SearchLegTimeout        time.Duration          `yaml:"search_leg_timeout"`
	FailedSearchCost        FailedSearchCostPolicy `yaml:"failed_search_cost"`
	Pricing                 Pricing                `yaml:"pricing"`
	Keywords                Keywords               `yaml:"keywords"`
}

func DefaultConfig() Config {
	return Config{
		MaxRounds:               defaultMaxRounds,
		MaxQueriesPerRound:      defaultMaxQueriesPerRound,
		ParallelSearches:        defaultParallelSearches,
		Timeout:                 defaultTimeout,
		MaxTotalCost:            defaultMaxTotalCost,
		MinConfidenceToComplete: defaultMinConfidenceToComplete,
		MaxGapsToAddress:        defaultMaxGapsToAddress,
		MinResearchQueryLength:  defaultMinResearchQueryLength,
		QueriesPerComplexity: map[Complexity]int{
			ComplexitySimple:   1,
			ComplexityModerate: 3,
			ComplexityComplex:  5,
		},
		Round2Multiplier: defaultRound2Multiplier,
		ResultsPerSearch: defaultResultsPerSearch,
		SearchLegTimeout: defaultSearchLegTimeout,
		FailedSearchCost: FailedSearchCostZero,
		Pricing: Pricing{
			SearchStandardUSD:     defaultSearchStandardUSD,
			SearchProUSD:          defaultSearchProUSD,
			LLMInputPer1KUSD:      defaultLLMInputPer1KUSD,
			LLMOutputPer1KUSD:     defaultLLMOutputPer1KUSD,
			PlanningInputTokens:   defaultPlanningInputTokens,
			PlanningOutputTokens:  defaultPlanningOutputTokens,
			SynthesisInputTokens:  defaultSynthesisInputTokens,
			SynthesisOutputTokens: defaultSynthesisOutputTokens,
		},
		Keywords: Keywords{
			Simple: []string{
				"what is", "who is", "when did", "where is", "define",
				"definition of", "how many", "capital of",
			},
			Moderate: []string{
				"how does", "why does", "explain", "difference between",
				"compare", "pros and cons", "how to",
			},
			Complex: []string{
				"comprehensive", "in-depth", "analyze", "analysis", "impact",
				"implications", "evaluate", "strategy", "trends", "landscape",
				"future of",
			},
			Trigger: []string{
				"research", "deep dive", "comprehensive analysis", "in-depth",
				"investigate", "thorough", "detailed analysis",
				"compare and contrast", "literature review", "market analysis",
			},
		},
	}
}

// ResolveConfig layers non-zero override fields on top of the defaults.
// Out-of-range values fall back to the default for that field.
func ResolveConfig(overrides Config) Config {
	resolved := DefaultConfig()

	if overrides.MaxRounds > 0 {
		resolved.MaxRounds = overrides.MaxRounds
	}
	if overrides.MaxQueriesPerRound > 0 {
		resolved.MaxQueriesPerRound = overrides.MaxQueriesPerRound
	}
	if overrides.ParallelSearches > 0 {
		resolved.ParallelSearches = overrides.ParallelSearches
	}
	if overrides.Timeout > 0 {
		resolved.Timeout = overrides.Timeout
	}
	if overrides.MaxTotalCost > 0 {
		resolved.MaxTotalCost = overrides.MaxTotalCost
	}
	if overrides.MinConfidenceToComplete > 0 && overrides.MinConfidenceToComplete <= 1 {
		resolved.MinConfidenceToComplete = overrides.MinConfidenceToComplete
	}
	if overrides.MaxGapsToAddress > 0 {
		resolved.MaxGapsToAddress = overrides.MaxGapsToAddress
	}
	if overrides.MinResearchQueryLength > 0 {
		resolved.MinResearchQueryLength = overrides.MinResearchQueryLength
	}
	for complexity, queries := range overrides.QueriesPerComplexity {
		if _, ok := ParseComplexity(string(complexity)); ok && queries > 0 {
			resolved.QueriesPerComplexity[complexity] = queries
		}
	}
	if overrides.Round2Multiplier >= 1 {
		resolved.Round2Multiplier = overrides.Round2Multiplier
	}
	if overrides.ResultsPerSearch > 0 {
		resolved.ResultsPerSearch = overrides.ResultsPerSearch
	}
	if overrides.SearchLegTimeout > 0 {
		resolved.SearchLegTimeout = overrides.SearchLegTimeout
	}
	switch FailedSearchCostPolicy(strings.ToLower(string(overrides.FailedSearchCost))) {
	case FailedSearchCostZero:
		resolved.FailedSearchCost = FailedSearchCostZero
	case FailedSearchCostFull:
		resolved.FailedSearchCost = FailedSearchCostFull
	}

	resolved.Pricing = resolvePricing(resolved.Pricing, overrides.Pricing)
	resolved.Keywords = resolveKeywords(resolved.Keywords, overrides.Keywords)

	if resolved.MaxGapsToAddress > resolved.MaxQueriesPerRound {
		resolved.MaxGapsToAddress = resolved.MaxQueriesPerRound
	}
	return resolved
}

func resolvePricing(base, overrides Pricing) Pricing {
	if overrides.SearchStandardUSD > 0 {
		base.SearchStandardUSD = overrides.SearchStandardUSD
	}
	if overrides.SearchProUSD > 0 {
		base.SearchProUSD = overrides.SearchProUSD
	}
	if overrides.LLMInputPer1KUSD > 0 {
		base.LLMInputPer1KUSD = overrides.LLMInputPer1KUSD
	}
	if overrides.LLMOutputPer1KUSD > 0 {
		base.LLMOutputPer1KUSD = overrides.LLMOutputPer1KUSD
	}
	if overrides.PlanningInputTokens > 0 {
		base.PlanningInputTokens = overrides.PlanningInputTokens
	}
	if overrides.PlanningOutputTokens > 0 {
		base.PlanningOutputTokens = overrides.PlanningOutputTokens
	}
	if overrides.SynthesisInputTokens > 0 {
		base.SynthesisInputTokens = overrides.SynthesisInputTokens
	}
	if overrides.SynthesisOutputTokens > 0 {
		base.SynthesisOutputTokens = overrides.SynthesisOutputTokens
	}
	return base
}

func resolveKeywords(base, overrides Keywords) Keywords {
	if list := normalizeKeywords(overrides.Simple); len(list) > 0 {
		base.Simple = list
	}
	if list := normalizeKeywords(overrides.Moderate); len(list) > 0 {
		base.Moderate = list
	}
	if list := normalizeKeywords(overrides.Complex); len(list) > 0 {
		base.Complex = list
	}
	if list := normalizeKeywords(overrides.Trigger); len(list) > 0 {
		base.Trigger = list
	}
	return base
}

func normalizeKeywords(raw []string) []string {
	if len(raw) == 0 {
		return nil
	}
	out := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, keyword := range raw {
		normalized := strings.ToLower(strings.Join(strings.Fields(keyword), " "))
		if normalized == "" {
			continue
		}
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	return out
}

// LoadConfigFile reads a YAML overlay and resolves it against the defaults.
func LoadConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read research config: %w", err)
	}
	var overrides Config
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return Config{}, fmt.Errorf("parse research config %s: %w", path, err)
	}
	if policy := overrides.FailedSearchCost; policy != "" {
		switch FailedSearchCostPolicy(strings.ToLower(string(policy))) {
		case FailedSearchCostZero, FailedSearchCostFull:
		default:
			return Config{}, fmt.Errorf("research config %s: failed_search_cost must be zero or full, got %q", path, policy)
		}
	}
	return ResolveConfig(overrides), nil
}

// WithLLMPricing returns a copy priced from a provider catalogue entry. Prices
// are micro-dollars per token; zero keeps the current value.
func (c Config) WithLLMPricing(promptMicrosPerToken, completionMicrosPerToken int) Config {
	next := c.clone()
	if promptMicrosPerToken > 0 {
		next.Pricing.LLMInputPer1KUSD = float64(promptMicrosPerToken) / 1000
	}
	if completionMicrosPerToken > 0 {
		next.Pricing.LLMOutputPer1KUSD = float64(completionMicrosPerToken) / 1000
	}
	return next
}

func (c Config) SearchPrice(tier brave.Tier) float64 {
	if tier == brave.TierPro {
		return c.Pricing.SearchProUSD
	}
	return c.Pricing.SearchStandardUSD
}

func (c Config) clone() Config {
	next := c
	next.QueriesPerComplexity = make(map[Complexity]int, len(c.QueriesPerComplexity))
	for key, value := range c.QueriesPerComplexity {
		next.QueriesPerComplexity[key] = value
	}
	next.Keywords = Keywords{
		Simple:   append([]string(nil), c.Keywords.Simple...),
		Moderate: append([]string(nil), c.Keywords.Moderate...),
		Complex:  append([]string(nil), c.Keywords.Complex...),
		Trigger:  append([]string(nil), c.Keywords.Trigger...),
	}
	return next
}
