package research

import (
	"fmt"
	"strings"
)

const maxContextRunesInPrompt = 6000

const plannerSystemPrompt = `You are a research planner. Break the user's question into focused sub-questions that can each be answered by a single web search.

Rules:
- Produce 3 to 5 sub-questions. Complex questions need at least 3.
- Each sub-question must be specific and searchable on its own.
- Do not repeat or overlap sub-questions.
- Order them by dependency: independent sub-questions first.
- dependsOn may only list ids of sub-questions that appear earlier.
- Tag each with priority high, medium or low.

Respond with JSON only, no prose:
{"subQuestions":[{"id":"q1","question":string,"reasoning":string,"priority":"high|medium|low","dependsOn":[string]}]}`

const synthesisSystemPrompt = `You are a research analyst. Write an answer to the user's question using only the numbered research notes provided.

Rules:
- Synthesize the findings into a coherent answer. Do not list the notes one by one.
- Use only facts that appear in the notes.
- Cite sources inline with [n], where n is the source number from the notes.
- Where the notes disagree or are thin, say so.

After the answer, append exactly one fenced block that starts with ` + "```json" + ` and contains your self-assessment:
{"confidence": number between 0 and 1, "gaps": [{"description": string, "suggestedQuery": string, "priority": "high|medium|low"}]}
List as gaps the missing information that a follow-up search could fill.`

func buildPlannerPrompt(query string, complexity Complexity, existingContext string, maxQuestions int) string {
	var b strings.Builder
	b.WriteString("Question:\n")
	b.WriteString(strings.TrimSpace(query))
	b.WriteString("\n\n")
	b.WriteString(fmt.Sprintf("Complexity: %s\n", complexity))
	minimum := 3
	if maxQuestions < minimum {
		minimum = maxQuestions
	}
	b.WriteString(fmt.Sprintf("Return between %d and %d sub-questions.\n", minimum, maxQuestions))
	if trimmed := strings.TrimSpace(existingContext); trimmed != "" {
		b.WriteString("\nWhat we already know (do not plan searches for facts stated here):\n")
		b.WriteString(trimToRunes(trimmed, maxContextRunesInPrompt))
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}

// numberedSources collects the distinct sources of all successful results in
// first-seen order. Their positions are the [n] citation numbers.
func numberedSources(results []SearchResult) []Source {
	sources := make([]Source, 0, len(results)*defaultResultsPerSearch)
	seen := make(map[string]struct{}, cap(sources))
	for _, result := range results {
		if result.Failed {
			continue
		}
		for _, source := range result.Sources {
			key := strings.TrimSpace(source.URL)
			if key == "" {
				continue
			}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			sources = append(sources, source)
		}
	}
	return sources
}

func buildSynthesisPrompt(query string, results []SearchResult, sources []Source) string {
	index := make(map[string]int, len(sources))
	for i, source := range sources {
		index[source.URL] = i + 1
	}

	var b strings.Builder
	b.WriteString("Question:\n")
	b.WriteString(strings.TrimSpace(query))
	b.WriteString("\n\nResearch notes:\n")
	note := 0
	for _, result := range results {
		if result.Failed {
			continue
		}
		note++
		b.WriteString(fmt.Sprintf("\nNote %d (%s):\n", note, strings.TrimSpace(result.Query)))
		if summary := strings.TrimSpace(result.Summary); summary != "" {
			b.WriteString(summary)
			b.WriteString("\n")
		}
		refs := make([]string, 0, len(result.Sources))
		for _, source := range result.Sources {
			if n, ok := index[source.URL]; ok {
				refs = append(refs, fmt.Sprintf("[%d]", n))
			}
		}
		if len(refs) > 0 {
			b.WriteString("Sources: ")
			b.WriteString(strings.Join(refs, " "))
			b.WriteString("\n")
		}
	}
	if note == 0 {
		b.WriteString("(no search returned results)\n")
	}

	b.WriteString("\nSources:\n")
	for i, source := range sources {
		b.WriteString(fmt.Sprintf("[%d] %s - %s\n", i+1, strings.TrimSpace(source.Title), source.URL))
	}
	return strings.TrimSpace(b.String())
}
