package httpapi

import (
	"fmt"
	"strings"
	"sync"

	"brandhub/backend/internal/research"
)

const (
	researchTraceStatusRunning = "running"
	researchTraceStatusDone    = "done"
	researchTraceStatusStopped = "stopped"
	maxResearchTraceEntries    = 60
)

type researchTraceEntry struct {
	Phase       research.Phase            `json:"phase"`
	Title       string                    `json:"title"`
	Detail      string                    `json:"detail,omitempty"`
	IsQuickStep bool                      `json:"isQuickStep,omitempty"`
	Decision    research.ProgressDecision `json:"decision,omitempty"`
	Round       *int                      `json:"round,omitempty"`
	MaxRounds   *int                      `json:"maxRounds,omitempty"`
	Completed   *int                      `json:"completed,omitempty"`
	Total       *int                      `json:"total,omitempty"`
	Cost        float64                   `json:"cost"`
}

type researchTrace struct {
	Status  string               `json:"status"`
	Summary string               `json:"summary"`
	Entries []researchTraceEntry `json:"entries"`
}

// researchTraceCollector accumulates progress from the request goroutine and
// from concurrent search legs.
type researchTraceCollector struct {
	mu    sync.Mutex
	trace researchTrace
}

func newResearchTraceCollector() *researchTraceCollector {
	return &researchTraceCollector{
		trace: researchTrace{
			Status:  researchTraceStatusRunning,
			Summary: "Researching your question",
			Entries: make([]researchTraceEntry, 0, 16),
		},
	}
}

func (c *researchTraceCollector) AppendProgress(progress research.Progress) {
	if c == nil {
		return
	}

	title := strings.TrimSpace(progress.Title)
	if title == "" {
		title = strings.TrimSpace(progress.Message)
	}
	if title == "" {
		title = "Researching your question"
	}
	detail := strings.TrimSpace(progress.Detail)

	entry := researchTraceEntry{
		Phase:       progress.Phase,
		Title:       title,
		Detail:      detail,
		IsQuickStep: progress.IsQuickStep,
		Decision:    progress.Decision,
		Round:       optionalPositiveInt(progress.Round),
		MaxRounds:   optionalPositiveInt(progress.MaxRounds),
		Completed:   optionalPositiveInt(progress.Completed),
		Total:       optionalPositiveInt(progress.Total),
		Cost:        progress.Cost,
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.trace.Entries = append(c.trace.Entries, entry)
	if len(c.trace.Entries) > maxResearchTraceEntries {
		c.trace.Entries = c.trace.Entries[len(c.trace.Entries)-maxResearchTraceEntries:]
	}
	if detail != "" {
		c.trace.Summary = fmt.Sprintf("%s: %s", title, detail)
		return
	}
	c.trace.Summary = title
}

// Finish settles the trace from the session's terminal status. Completed
// sessions are done; partial and failed ones are stopped with the session
// message as summary.
func (c *researchTraceCollector) Finish(session *research.Session) {
	if c == nil || session == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if session.Status == research.StatusCompleted {
		c.trace.Status = researchTraceStatusDone
		if strings.TrimSpace(c.trace.Summary) == "" {
			c.trace.Summary = "Research complete"
		}
		return
	}
	c.trace.Status = researchTraceStatusStopped
	if message := strings.TrimSpace(session.Message); message != "" {
		c.trace.Summary = message
	}
}

func (c *researchTraceCollector) Snapshot() *researchTrace {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.trace.Entries) == 0 {
		return nil
	}
	entries := make([]researchTraceEntry, len(c.trace.Entries))
	copy(entries, c.trace.Entries)
	return &researchTrace{
		Status:  c.trace.Status,
		Summary: c.trace.Summary,
		Entries: entries,
	}
}

func optionalPositiveInt(value int) *int {
	if value <= 0 {
		return nil
	}
	v := value
	return &v
}
