package research

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brandhub/backend/internal/brave"
)

func TestDefaultConfigValues(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 2, cfg.MaxRounds)
	assert.Equal(t, 5, cfg.MaxQueriesPerRound)
	assert.Equal(t, 3, cfg.ParallelSearches)
	assert.Equal(t, 120*time.Second, cfg.Timeout)
	assert.InDelta(t, 0.50, cfg.MaxTotalCost, 1e-9)
	assert.InDelta(t, 0.8, cfg.MinConfidenceToComplete, 1e-9)
	assert.Equal(t, 3, cfg.MaxGapsToAddress)
	assert.Equal(t, 20, cfg.MinResearchQueryLength)
	assert.Equal(t, map[Complexity]int{ComplexitySimple: 1, ComplexityModerate: 3, ComplexityComplex: 5}, cfg.QueriesPerComplexity)
	assert.InDelta(t, 1.5, cfg.Round2Multiplier, 1e-9)
	assert.Equal(t, FailedSearchCostZero, cfg.FailedSearchCost)
}

func TestResolveConfigAppliesOverridesAndClamps(t *testing.T) {
	resolved := ResolveConfig(Config{
		MaxRounds:               -1,
		MaxQueriesPerRound:      0,
		Timeout:                 11 * time.Second,
		MaxTotalCost:            -3,
		MinConfidenceToComplete: 1.7,
		QueriesPerComplexity:    map[Complexity]int{ComplexityModerate: 2, "bogus": 9, ComplexityComplex: -1},
		Round2Multiplier:        0.5,
		FailedSearchCost:        "FULL",
		Pricing:                 Pricing{SearchProUSD: 0.02},
		Keywords:                Keywords{Trigger: []string{"  Brand   Audit ", "brand audit", ""}},
	})

	assert.Equal(t, 2, resolved.MaxRounds)
	assert.Equal(t, 5, resolved.MaxQueriesPerRound)
	assert.Equal(t, 11*time.Second, resolved.Timeout)
	assert.InDelta(t, 0.50, resolved.MaxTotalCost, 1e-9)
	assert.InDelta(t, 0.8, resolved.MinConfidenceToComplete, 1e-9)
	assert.Equal(t, 2, resolved.QueriesPerComplexity[ComplexityModerate])
	assert.Equal(t, 5, resolved.QueriesPerComplexity[ComplexityComplex])
	assert.NotContains(t, resolved.QueriesPerComplexity, Complexity("bogus"))
	assert.InDelta(t, 1.5, resolved.Round2Multiplier, 1e-9)
	assert.Equal(t, FailedSearchCostFull, resolved.FailedSearchCost)
	assert.InDelta(t, 0.02, resolved.Pricing.SearchProUSD, 1e-9)
	assert.InDelta(t, 0.005, resolved.Pricing.SearchStandardUSD, 1e-9)
	assert.Equal(t, []string{"brand audit"}, resolved.Keywords.Trigger)
	assert.Equal(t, DefaultConfig().Keywords.Complex, resolved.Keywords.Complex)
}

func TestResolveConfigDoesNotShareDefaultMaps(t *testing.T) {
	first := ResolveConfig(Config{})
	first.QueriesPerComplexity[ComplexitySimple] = 4

	assert.Equal(t, 1, ResolveConfig(Config{}).QueriesPerComplexity[ComplexitySimple])
}

func TestLoadConfigFileOverlaysYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "research.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
max_total_cost_usd: 0.25
timeout: 45s
search_leg_timeout: 5s
failed_search_cost: full
queries_per_complexity:
  moderate: 4
pricing:
  search_pro_usd: 0.02
keywords:
  trigger: ["brand audit", "competitor scan"]
`), 0o600))

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)

	assert.InDelta(t, 0.25, cfg.MaxTotalCost, 1e-9)
	assert.Equal(t, 45*time.Second, cfg.Timeout)
	assert.Equal(t, 5*time.Second, cfg.SearchLegTimeout)
	assert.Equal(t, FailedSearchCostFull, cfg.FailedSearchCost)
	assert.Equal(t, 4, cfg.QueriesPerComplexity[ComplexityModerate])
	assert.Equal(t, 1, cfg.QueriesPerComplexity[ComplexitySimple])
	assert.InDelta(t, 0.02, cfg.SearchPrice(brave.TierPro), 1e-9)
	assert.Equal(t, []string{"brand audit", "competitor scan"}, cfg.Keywords.Trigger)
}

func TestLoadConfigFileRejectsUnknownPolicy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "research.yaml")
	require.NoError(t, os.WriteFile(path, []byte("failed_search_cost: half\n"), 0o600))

	_, err := LoadConfigFile(path)
	require.Error(t, err)
}

func TestLoadConfigFileMissing(t *testing.T) {
	_, err := LoadConfigFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestWithLLMPricingReturnsCopy(t *testing.T) {
	base := DefaultConfig()
	priced := base.WithLLMPricing(2, 10)

	assert.InDelta(t, 0.002, priced.Pricing.LLMInputPer1KUSD, 1e-12)
	assert.InDelta(t, 0.010, priced.Pricing.LLMOutputPer1KUSD, 1e-12)
	assert.InDelta(t, 0.003, base.Pricing.LLMInputPer1KUSD, 1e-12)

	unchanged := base.WithLLMPricing(0, 0)
	assert.InDelta(t, 0.015, unchanged.Pricing.LLMOutputPer1KUSD, 1e-12)
}

func TestShippedConfigMatchesDefaults(t *testing.T) {
	cfg, err := LoadConfigFile(filepath.Join("..", "..", "config", "research.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}
