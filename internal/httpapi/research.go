package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"brandhub/backend/internal/brave"
	"brandhub/backend/internal/metrics"
	"brandhub/backend/internal/research"
)

const (
	defaultUploadMaxBytes = 5 << 20
	maxInlineContextRunes = 16000
	persistTimeout        = 10 * time.Second
	uploadFileField       = "context"
)

type researchRequest struct {
	Query             string `json:"query"`
	ForceDeepResearch bool   `json:"forceDeepResearch"`
	UseProModel       bool   `json:"useProModel"`
	Context           string `json:"context"`
	ContextURL        string `json:"contextUrl"`
}

type researchInput struct {
	query           string
	useProModel     bool
	existingContext string
}

type errorEvent struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Research runs one deep research session and streams its progress as SSE.
func (h Handler) Research(w http.ResponseWriter, r *http.Request) {
	var req researchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	input, ok := h.admitQuery(w, req.Query, req.ForceDeepResearch)
	if !ok {
		return
	}
	input.useProModel = req.UseProModel

	contextParts := make([]string, 0, 2)
	if inline := trimRunes(strings.TrimSpace(req.Context), maxInlineContextRunes); inline != "" {
		contextParts = append(contextParts, inline)
	}
	if rawURL := strings.TrimSpace(req.ContextURL); rawURL != "" {
		if h.fetcher == nil {
			writeError(w, http.StatusServiceUnavailable, "context_fetch_unavailable", "context url fetching is not configured")
			return
		}
		doc, err := h.fetcher.Fetch(r.Context(), rawURL)
		if err != nil {
			h.writeContextError(w, err)
			return
		}
		contextParts = append(contextParts, doc.PlannerContext())
	}
	input.existingContext = strings.Join(contextParts, "\n\n")

	h.streamResearch(w, r, input)
}

// UploadResearch accepts a multipart form with a query and one context
// document, then streams the session like Research.
func (h Handler) UploadResearch(w http.ResponseWriter, r *http.Request) {
	limit := h.cfg.UploadMaxBytes
	if limit <= 0 {
		limit = defaultUploadMaxBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(limit); err != nil {
		if bodyTooLarge(err) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "upload exceeds the size limit")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_request", "expected a multipart form")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	force, _ := strconv.ParseBool(r.FormValue("forceDeepResearch"))
	useProModel, _ := strconv.ParseBool(r.FormValue("useProModel"))
	input, ok := h.admitQuery(w, r.FormValue("query"), force)
	if !ok {
		return
	}
	input.useProModel = useProModel

	file, header, err := r.FormFile(uploadFileField)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "a context file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "failed to read context file")
		return
	}
	doc, err := research.ExtractContext(header.Filename, header.Header.Get("Content-Type"), data)
	if err != nil {
		h.writeContextError(w, err)
		return
	}
	input.existingContext = doc.PlannerContext()

	h.streamResearch(w, r, input)
}

func (h Handler) admitQuery(w http.ResponseWriter, raw string, force bool) (researchInput, bool) {
	query := strings.TrimSpace(raw)
	if query == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "query is required")
		return researchInput{}, false
	}
	if !force && !h.orchestrator.Classifier().ShouldTriggerResearch(query) {
		writeError(w, http.StatusUnprocessableEntity, "research_not_triggered", "query does not call for deep research; set forceDeepResearch to run it anyway")
		return researchInput{}, false
	}
	return researchInput{query: query}, true
}

func (h Handler) writeContextError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, research.ErrUnsupportedDocument):
		writeError(w, http.StatusUnsupportedMediaType, "unsupported_document", err.Error())
	case errors.Is(err, research.ErrEmptyDocument):
		writeError(w, http.StatusUnprocessableEntity, "empty_document", err.Error())
	default:
		writeError(w, http.StatusUnprocessableEntity, "context_unavailable", err.Error())
	}
}

func (h Handler) streamResearch(w http.ResponseWriter, r *http.Request, input researchInput) {
	stream, ok := newSSEStream(w)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming_unsupported", "server does not support streaming")
		return
	}

	cfg := h.orchestrator.Config()
	complexity := h.orchestrator.Classifier().Classify(input.query)
	tier := research.TierFor(input.useProModel)
	metadata := metadataEvent{
		Type:             "metadata",
		Query:            input.query,
		Complexity:       complexity,
		UseProModel:      input.useProModel,
		EstimatedCostUSD: h.orchestrator.Estimator().EstimateSessionCost(complexity, input.useProModel),
		MaxTotalCostUSD:  cfg.MaxTotalCost,
		MaxRounds:        cfg.MaxRounds,
		HasContext:       input.existingContext != "",
	}

	// Answers grounded in caller-supplied context are never served from or
	// written to the shared cache.
	if !metadata.HasContext {
		if cached, hit := h.lookupCache(r.Context(), input.query, tier); hit {
			metadata.Cached = true
			_ = stream.Send(metadata)
			_ = stream.Send(resultEvent{Type: "result", researchResultPayload: resultPayload(cached, nil, true)})
			_ = stream.Send(map[string]string{"type": "done"})
			return
		}
	}

	metrics.SessionsStarted.WithLabelValues(string(complexity), string(tier)).Inc()
	_ = stream.Send(metadata)

	trace := newResearchTraceCollector()
	opts := research.Options{
		UseProModel:     input.useProModel,
		ExistingContext: input.existingContext,
		OnProgress: func(progress research.Progress) {
			trace.AppendProgress(progress)
			_ = stream.Send(progressEventData(progress))
		},
	}
	if h.cfg.StreamSynthesisTokens {
		opts.OnDelta = func(delta string) {
			_ = stream.Send(tokenEvent{Type: "token", Delta: delta})
		}
	}

	// a disconnected client stops receiving events; the session still
	// finishes within the orchestrator timeout and is persisted
	session, err := h.orchestrator.Run(context.WithoutCancel(r.Context()), input.query, opts)
	if err != nil {
		code := research.CodeOf(err)
		_ = stream.Send(errorEvent{Type: "error", Code: string(code), Message: research.Message(code)})
		_ = stream.Send(map[string]string{"type": "done"})
		return
	}

	trace.Finish(session)
	for _, warning := range session.Warnings {
		_ = stream.Send(warningEvent{Type: "warning", Scope: "research", Message: warning})
	}
	_ = stream.Send(resultEvent{Type: "result", researchResultPayload: resultPayload(session, trace.Snapshot(), false)})
	_ = stream.Send(map[string]string{"type": "done"})

	h.persist(r.Context(), session, !metadata.HasContext)
}

func (h Handler) lookupCache(ctx context.Context, query string, tier brave.Tier) (*research.Session, bool) {
	cached, hit, err := h.cache.Get(ctx, query, tier)
	switch {
	case err != nil:
		metrics.CacheLookups.WithLabelValues("error").Inc()
		h.logger.Warn("research cache lookup failed", zap.String("backend", h.cache.Backend()), zap.Error(err))
		return nil, false
	case !hit:
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return nil, false
	default:
		metrics.CacheLookups.WithLabelValues("hit").Inc()
		return cached, true
	}
}

// persist records the finished session in every configured sink. It runs
// after the response is written and survives client disconnects.
func (h Handler) persist(ctx context.Context, session *research.Session, cacheable bool) {
	metrics.RecordSession(session)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	logger := h.logger.With(zap.String("session_id", session.ID))

	if h.sessions != nil {
		if err := h.sessions.SaveSession(ctx, session); err != nil {
			metrics.PersistenceFailures.WithLabelValues("store").Inc()
			logger.Error("save research session", zap.Error(err))
		}
	}
	if objectPath, err := h.archiver.Put(ctx, session); err != nil {
		metrics.PersistenceFailures.WithLabelValues("archive").Inc()
		logger.Error("archive research session", zap.String("backend", h.archiver.Backend()), zap.Error(err))
	} else if objectPath != "" {
		logger.Debug("archived research session", zap.String("object_path", objectPath))
	}
	if cacheable {
		if err := h.cache.Set(ctx, session); err != nil {
			metrics.PersistenceFailures.WithLabelValues("cache").Inc()
			logger.Warn("cache research session", zap.String("backend", h.cache.Backend()), zap.Error(err))
		}
	}
}

// bodyTooLarge reports whether err came from the request size cap. The
// multipart reader does not always wrap the underlying error.
func bodyTooLarge(err error) bool {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return true
	}
	return strings.Contains(err.Error(), "request body too large")
}

func trimRunes(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit])
}
