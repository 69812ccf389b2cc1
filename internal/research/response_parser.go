package research

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// synthesisJSONDelimiter opens the trailing self-assessment block of a
// synthesis reply. Everything before its last occurrence is prose, so the
// prose may carry fenced JSON examples of its own.
const synthesisJSONDelimiter = "```json"

const codeFence = "```"

type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err == nil {
		return "parse llm response: " + e.Reason
	}
	return fmt.Sprintf("parse llm response: %s: %v", e.Reason, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

type synthesisPayload struct {
	Confidence *float64     `json:"confidence"`
	Gaps       []gapPayload `json:"gaps"`
}

type gapPayload struct {
	Description    string `json:"description"`
	SuggestedQuery string `json:"suggestedQuery"`
	Priority       string `json:"priority"`
}

// ParseSynthesis splits a synthesis reply into prose and its trailing JSON
// block. Nothing is defaulted except an empty gap priority.
func ParseSynthesis(raw string) (Synthesis, error) {
	start := strings.LastIndex(raw, synthesisJSONDelimiter)
	if start < 0 {
		return Synthesis{}, &ParseError{Reason: "missing json block"}
	}

	prose := strings.TrimSpace(raw[:start])
	if prose == "" {
		return Synthesis{}, &ParseError{Reason: "empty answer text"}
	}

	block := raw[start+len(synthesisJSONDelimiter):]
	if end := strings.Index(block, codeFence); end >= 0 {
		block = block[:end]
	}
	block = strings.TrimSpace(block)
	if block == "" {
		return Synthesis{}, &ParseError{Reason: "empty json block"}
	}

	var payload synthesisPayload
	if err := json.Unmarshal([]byte(block), &payload); err != nil {
		return Synthesis{}, &ParseError{Reason: "invalid json block", Err: err}
	}
	if payload.Confidence == nil {
		return Synthesis{}, &ParseError{Reason: "missing confidence"}
	}
	confidence := *payload.Confidence
	if confidence < 0 || confidence > 1 {
		return Synthesis{}, &ParseError{Reason: fmt.Sprintf("confidence %v outside [0,1]", confidence)}
	}

	gaps := make([]Gap, 0, len(payload.Gaps))
	for i, item := range payload.Gaps {
		gap, err := normalizeGap(item)
		if err != nil {
			return Synthesis{}, &ParseError{Reason: fmt.Sprintf("gap %d", i+1), Err: err}
		}
		gaps = append(gaps, gap)
	}

	return Synthesis{
		AnswerText: prose,
		Confidence: confidence,
		Gaps:       gaps,
	}, nil
}

func normalizeGap(item gapPayload) (Gap, error) {
	description := strings.TrimSpace(item.Description)
	query := strings.TrimSpace(item.SuggestedQuery)
	if description == "" && query == "" {
		return Gap{}, errors.New("description and suggestedQuery are both empty")
	}
	if query == "" {
		query = description
	}
	if description == "" {
		description = query
	}
	priority, err := parsePriority(item.Priority, PriorityMedium)
	if err != nil {
		return Gap{}, err
	}
	return Gap{Description: description, SuggestedQuery: query, Priority: priority}, nil
}

func parsePriority(raw string, fallback Priority) (Priority, error) {
	normalized := Priority(strings.ToLower(strings.TrimSpace(raw)))
	switch normalized {
	case "":
		return fallback, nil
	case PriorityHigh, PriorityMedium, PriorityLow:
		return normalized, nil
	default:
		return "", fmt.Errorf("unknown priority %q", raw)
	}
}

type planPayload struct {
	SubQuestions []subQuestionPayload `json:"subQuestions"`
}

type subQuestionPayload struct {
	ID        string   `json:"id"`
	Question  string   `json:"question"`
	Reasoning string   `json:"reasoning"`
	Priority  string   `json:"priority"`
	DependsOn []string `json:"dependsOn"`
}

// ParsePlan decodes the JSON object of a planner reply. Shape validation is
// left to the planner.
func ParsePlan(raw string) ([]SubQuestion, error) {
	jsonRaw := extractJSONBlock(raw)
	if jsonRaw == "" {
		return nil, &ParseError{Reason: "planner response did not include json"}
	}
	var payload planPayload
	if err := json.Unmarshal([]byte(jsonRaw), &payload); err != nil {
		return nil, &ParseError{Reason: "invalid plan json", Err: err}
	}
	if len(payload.SubQuestions) == 0 {
		return nil, &ParseError{Reason: "plan has no sub-questions"}
	}
	out := make([]SubQuestion, 0, len(payload.SubQuestions))
	for _, item := range payload.SubQuestions {
		out = append(out, SubQuestion{
			ID:        strings.TrimSpace(item.ID),
			Question:  strings.Join(strings.Fields(item.Question), " "),
			Reasoning: strings.TrimSpace(item.Reasoning),
			Priority:  Priority(strings.ToLower(strings.TrimSpace(item.Priority))),
			DependsOn: item.DependsOn,
		})
	}
	return out, nil
}

func extractJSONBlock(raw string) string {
	value := strings.TrimSpace(raw)
	if strings.HasPrefix(value, "{") && strings.HasSuffix(value, "}") {
		return value
	}
	start := strings.Index(value, "{")
	end := strings.LastIndex(value, "}")
	if start == -1 || end == -1 || end <= start {
		return ""
	}
	return strings.TrimSpace(value[start : end+1])
}

// proseStreamer forwards streamed synthesis text without the trailing JSON
// block. Text from each JSON delimiter is held until its closing fence is
// followed by more prose; a block still held at Flush is the self-assessment
// and is dropped. A trailing fragment that could start the delimiter is held
// back too.
type proseStreamer struct {
	emit    func(string)
	pending string
	held    string
	holding bool
}

func newProseStreamer(emit func(string)) *proseStreamer {
	return &proseStreamer{emit: emit}
}

func (s *proseStreamer) Write(delta string) {
	if s == nil || s.emit == nil {
		return
	}
	if s.holding {
		s.held += delta
		s.releaseInlineBlock()
		return
	}
	text := s.pending + delta
	s.pending = ""
	if idx := strings.Index(text, synthesisJSONDelimiter); idx >= 0 {
		s.send(text[:idx])
		s.held = text[idx:]
		s.holding = true
		s.releaseInlineBlock()
		return
	}
	hold := partialDelimiterSuffix(text)
	s.send(text[:len(text)-hold])
	s.pending = text[len(text)-hold:]
}

// releaseInlineBlock emits the held block once prose follows its closing
// fence, then resumes streaming from that prose.
func (s *proseStreamer) releaseInlineBlock() {
	body := s.held[len(synthesisJSONDelimiter):]
	end := strings.Index(body, codeFence)
	if end < 0 {
		return
	}
	closeAt := len(synthesisJSONDelimiter) + end + len(codeFence)
	rest := s.held[closeAt:]
	if strings.TrimSpace(rest) == "" {
		return
	}
	block := s.held[:closeAt]
	s.held = ""
	s.holding = false
	s.send(block)
	s.Write(rest)
}

func (s *proseStreamer) Flush() {
	if s == nil || s.emit == nil {
		return
	}
	if !s.holding {
		s.send(s.pending)
	}
	s.pending = ""
	s.held = ""
	s.holding = false
}

func (s *proseStreamer) send(text string) {
	if text != "" {
		s.emit(text)
	}
}

func partialDelimiterSuffix(text string) int {
	longest := len(synthesisJSONDelimiter) - 1
	if longest > len(text) {
		longest = len(text)
	}
	for size := longest; size > 0; size-- {
		if strings.HasPrefix(synthesisJSONDelimiter, text[len(text)-size:]) {
			return size
		}
	}
	return 0
}
