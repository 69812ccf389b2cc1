package research

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyIsDeterministic(t *testing.T) {
	classifier := NewClassifier(DefaultConfig())
	queries := []string{
		"What is the capital of France",
		"How does brand voice differ across regions",
		strings.Repeat("lorem ", 30),
		"",
		"Ünïcödé brand names in the Nordics",
	}
	for _, query := range queries {
		first := classifier.Classify(query)
		for i := 0; i < 5; i++ {
			assert.Equal(t, first, classifier.Classify(query), "query %q", query)
		}
	}
}

func TestClassifyKeywordPrecedence(t *testing.T) {
	classifier := NewClassifier(DefaultConfig())

	tests := []struct {
		name  string
		query string
		want  Complexity
	}{
		{name: "simple keyword", query: "What is the capital of France", want: ComplexitySimple},
		{name: "moderate keyword", query: "Explain kerning", want: ComplexityModerate},
		{name: "complex beats simple", query: "What is a comprehensive brand audit", want: ComplexityComplex},
		{name: "complex beats moderate", query: "Explain the impact of logo changes", want: ComplexityComplex},
		{name: "moderate beats simple", query: "What is the difference between serif and sans", want: ComplexityModerate},
		{name: "case insensitive", query: "COMPREHENSIVE overview", want: ComplexityComplex},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classifier.Classify(tt.query))
		})
	}
}

func TestClassifyLengthFallback(t *testing.T) {
	classifier := NewClassifier(DefaultConfig())

	assert.Equal(t, ComplexitySimple, classifier.Classify(strings.Repeat("x", 40)))
	assert.Equal(t, ComplexitySimple, classifier.Classify(strings.Repeat("x", 49)))
	assert.Equal(t, ComplexityModerate, classifier.Classify(strings.Repeat("x", 50)))
	assert.Equal(t, ComplexityModerate, classifier.Classify(strings.Repeat("x", 150)))
	assert.Equal(t, ComplexityComplex, classifier.Classify(strings.Repeat("x", 151)))
	assert.Equal(t, ComplexityComplex, classifier.Classify(strings.Repeat("word ", 40)))
}

func TestClassifyCountsRunesNotBytes(t *testing.T) {
	classifier := NewClassifier(DefaultConfig())

	// 45 runes, 90 bytes.
	assert.Equal(t, ComplexitySimple, classifier.Classify(strings.Repeat("é", 45)))
}

func TestClassifyScenarioQueries(t *testing.T) {
	classifier := NewClassifier(DefaultConfig())

	assert.Equal(t, ComplexitySimple, classifier.Classify("What is the capital of France"))
	assert.Equal(t, ComplexityComplex, classifier.Classify("Provide a comprehensive analysis of the impact of remote work on urban commercial real estate markets"))
}

func TestShouldTriggerResearch(t *testing.T) {
	classifier := NewClassifier(DefaultConfig())

	assert.True(t, classifier.ShouldTriggerResearch("Provide a comprehensive analysis of the impact of remote work on urban commercial real estate markets"))
	assert.True(t, classifier.ShouldTriggerResearch("Please RESEARCH competitor logo trends"))
	assert.False(t, classifier.ShouldTriggerResearch("research logos"), "below minimum length")
	assert.False(t, classifier.ShouldTriggerResearch("What is the capital of France"), "no trigger keyword")
	assert.False(t, classifier.ShouldTriggerResearch("   "))
}

func TestShouldTriggerResearchUsesConfiguredKeywords(t *testing.T) {
	cfg := ResolveConfig(Config{Keywords: Keywords{Trigger: []string{"Brand Audit"}}})
	classifier := NewClassifier(cfg)

	assert.True(t, classifier.ShouldTriggerResearch("run a brand audit for our spring line"))
	assert.False(t, classifier.ShouldTriggerResearch("please research our spring line options"))
}
