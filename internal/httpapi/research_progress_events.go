package httpapi

import (
	"brandhub/backend/internal/research"
)

type progressEvent struct {
	Type string `json:"type"`
	research.Progress
}

type tokenEvent struct {
	Type  string `json:"type"`
	Delta string `json:"delta"`
}

type metadataEvent struct {
	Type             string              `json:"type"`
	Query            string              `json:"query"`
	Complexity       research.Complexity `json:"complexity"`
	UseProModel      bool                `json:"useProModel"`
	EstimatedCostUSD float64             `json:"estimatedCostUsd"`
	MaxTotalCostUSD  float64             `json:"maxTotalCostUsd"`
	MaxRounds        int                 `json:"maxRounds"`
	Cached           bool                `json:"cached"`
	HasContext       bool                `json:"hasContext"`
}

type warningEvent struct {
	Type    string `json:"type"`
	Scope   string `json:"scope"`
	Message string `json:"message"`
}

type resultEvent struct {
	Type string `json:"type"`
	researchResultPayload
}

// researchResultPayload is the final answer as clients consume it.
type researchResultPayload struct {
	SessionID       string              `json:"sessionId"`
	AnswerText      string              `json:"answerText"`
	Sources         []research.Source   `json:"sources"`
	Confidence      float64             `json:"confidence"`
	RoundsCompleted int                 `json:"roundsCompleted"`
	CostIncurred    float64             `json:"costIncurred"`
	Status          research.Status     `json:"status"`
	Code            research.ErrorCode  `json:"code,omitempty"`
	Message         string              `json:"message"`
	Complexity      research.Complexity `json:"complexity"`
	Warnings        []string            `json:"warnings,omitempty"`
	Cached          bool                `json:"cached,omitempty"`
	Trace           *researchTrace      `json:"trace,omitempty"`
}

func progressEventData(progress research.Progress) progressEvent {
	return progressEvent{Type: "progress", Progress: progress}
}

func resultPayload(session *research.Session, trace *researchTrace, cached bool) researchResultPayload {
	sources := session.Answer.Sources
	if sources == nil {
		sources = []research.Source{}
	}
	return researchResultPayload{
		SessionID:       session.ID,
		AnswerText:      session.Answer.AnswerText,
		Sources:         sources,
		Confidence:      session.Answer.Confidence,
		RoundsCompleted: session.Answer.RoundsCompleted,
		CostIncurred:    session.Answer.CostIncurred,
		Status:          session.Status,
		Code:            session.Code,
		Message:         session.Message,
		Complexity:      session.Complexity,
		Warnings:        session.Warnings,
		Cached:          cached,
		Trace:           trace,
	}
}
