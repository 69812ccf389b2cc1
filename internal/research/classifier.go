package research

import (
	"strings"
	"unicode/utf8"
)

const (
	simpleLengthLimit  = 50
	complexLengthFloor = 150
)

// Classifier maps free-text queries to a complexity tier. It is pure: the
// same query always yields the same tier.
type Classifier struct {
	simple    []string
	moderate  []string
	complex   []string
	trigger   []string
	minLength int
}

func NewClassifier(cfg Config) Classifier {
	return Classifier{
		simple:    normalizeKeywords(cfg.Keywords.Simple),
		moderate:  normalizeKeywords(cfg.Keywords.Moderate),
		complex:   normalizeKeywords(cfg.Keywords.Complex),
		trigger:   normalizeKeywords(cfg.Keywords.Trigger),
		minLength: cfg.MinResearchQueryLength,
	}
}

func (c Classifier) Classify(query string) Complexity {
	lowered := strings.ToLower(query)
	switch {
	case containsAny(lowered, c.complex):
		return ComplexityComplex
	case containsAny(lowered, c.moderate):
		return ComplexityModerate
	case containsAny(lowered, c.simple):
		return ComplexitySimple
	}

	length := utf8.RuneCountInString(strings.TrimSpace(query))
	switch {
	case length < simpleLengthLimit:
		return ComplexitySimple
	case length <= complexLengthFloor:
		return ComplexityModerate
	default:
		return ComplexityComplex
	}
}

// ShouldTriggerResearch is the pre-gate in front of the pipeline.
func (c Classifier) ShouldTriggerResearch(query string) bool {
	trimmed := strings.TrimSpace(query)
	if utf8.RuneCountInString(trimmed) < c.minLength {
		return false
	}
	return containsAny(strings.ToLower(trimmed), c.trigger)
}

func containsAny(haystack string, needles []string) bool {
	for _, needle := range needles {
		if strings.Contains(haystack, needle) {
			return true
		}
	}
	return false
}
