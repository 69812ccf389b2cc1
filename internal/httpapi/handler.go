package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"brandhub/backend/internal/archive"
	"brandhub/backend/internal/cache"
	"brandhub/backend/internal/config"
	"brandhub/backend/internal/research"
	"brandhub/backend/internal/store"
)

type sessionStore interface {
	SaveSession(ctx context.Context, session *research.Session) error
	GetSession(ctx context.Context, id string) (*research.Session, error)
	ListSessions(ctx context.Context, limit int) ([]store.SessionSummary, error)
}

type contextFetcher interface {
	Fetch(ctx context.Context, rawURL string) (research.ContextDocument, error)
}

// Dependencies are the collaborators a Handler serves requests with. Sessions,
// Fetcher, Cache and Archiver are optional.
type Dependencies struct {
	Orchestrator *research.Orchestrator
	Fetcher      contextFetcher
	Sessions     sessionStore
	Cache        cache.ResultCache
	Archiver     *archive.Archiver
	Logger       *zap.Logger
}

type Handler struct {
	cfg          config.Config
	orchestrator *research.Orchestrator
	fetcher      contextFetcher
	sessions     sessionStore
	cache        cache.ResultCache
	archiver     *archive.Archiver
	logger       *zap.Logger
}

func NewHandler(cfg config.Config, deps Dependencies) Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	resultCache := deps.Cache
	if resultCache == nil {
		resultCache = cache.NewNoop()
	}
	return Handler{
		cfg:          cfg,
		orchestrator: deps.Orchestrator,
		fetcher:      deps.Fetcher,
		sessions:     deps.Sessions,
		cache:        resultCache,
		archiver:     deps.Archiver,
		logger:       logger,
	}
}

func (h Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"cache":   h.cache.Backend(),
		"archive": h.archiver.Backend(),
	})
}

type classifyRequest struct {
	Query string `json:"query"`
}

type classifyResponse struct {
	ShouldTrigger       bool                `json:"shouldTrigger"`
	Complexity          research.Complexity `json:"complexity"`
	EstimatedCostUSD    float64             `json:"estimatedCostUsd"`
	EstimatedCostProUSD float64             `json:"estimatedCostProUsd"`
}

func (h Handler) Classify(w http.ResponseWriter, r *http.Request) {
	var req classifyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "query is required")
		return
	}

	complexity := h.orchestrator.Classifier().Classify(query)
	estimator := h.orchestrator.Estimator()
	writeJSON(w, http.StatusOK, classifyResponse{
		ShouldTrigger:       h.orchestrator.Classifier().ShouldTriggerResearch(query),
		Complexity:          complexity,
		EstimatedCostUSD:    estimator.EstimateSessionCost(complexity, false),
		EstimatedCostProUSD: estimator.EstimateSessionCost(complexity, true),
	})
}

type estimateRequest struct {
	Complexity  string `json:"complexity"`
	UseProModel bool   `json:"useProModel"`
}

type estimateResponse struct {
	Complexity  research.Complexity `json:"complexity"`
	UseProModel bool                `json:"useProModel"`
	CostUSD     float64             `json:"costUsd"`
}

func (h Handler) Estimate(w http.ResponseWriter, r *http.Request) {
	var req estimateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	complexity, ok := research.ParseComplexity(strings.ToLower(strings.TrimSpace(req.Complexity)))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_request", "complexity must be simple, moderate or complex")
		return
	}
	writeJSON(w, http.StatusOK, estimateResponse{
		Complexity:  complexity,
		UseProModel: req.UseProModel,
		CostUSD:     h.orchestrator.Estimator().EstimateSessionCost(complexity, req.UseProModel),
	})
}

func (h Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	if h.sessions == nil {
		writeError(w, http.StatusServiceUnavailable, "history_unavailable", "session history is not configured")
		return
	}

	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	summaries, err := h.sessions.ListSessions(r.Context(), limit)
	if err != nil {
		h.logger.Error("list research sessions", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "db_error", "failed to list sessions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": summaries})
}

func (h Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	if h.sessions == nil {
		writeError(w, http.StatusServiceUnavailable, "history_unavailable", "session history is not configured")
		return
	}

	id := strings.TrimSpace(chi.URLParam(r, "sessionID"))
	session, err := h.sessions.GetSession(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "session not found")
		return
	}
	if err != nil {
		h.logger.Error("load research session", zap.String("session_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "db_error", "failed to load session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": session})
}
