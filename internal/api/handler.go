package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/opensource-finance/securescan/internal/bus"
	"github.com/opensource-finance/securescan/internal/cache"
	"github.com/opensource-finance/securescan/internal/domain"
	"github.com/opensource-finance/securescan/internal/model"
	"github.com/opensource-finance/securescan/internal/parser"
	"github.com/opensource-finance/securescan/internal/repository"
	"github.com/opensource-finance/securescan/internal/scoring"
)

// maxArtifactBytes bounds POST /models bodies.
const maxArtifactBytes = 4 << 20

// Handler holds dependencies for API handlers.
type Handler struct {
	repo    domain.Repository
	cache   domain.Cache
	memo    *cache.Verdicts
	bus     domain.EventBus
	engine  *scoring.Engine
	version string
}

// NewHandler creates a new API handler. repo, c and b may be nil.
func NewHandler(repo domain.Repository, c domain.Cache, cacheTTL time.Duration, b domain.EventBus, engine *scoring.Engine, version string) *Handler {
	return &Handler{
		repo:    repo,
		cache:   c,
		memo:    cache.NewVerdicts(c, cacheTTL),
		bus:     b,
		engine:  engine,
		version: version,
	}
}

// EvaluateResponse is the response for POST /evaluate.
type EvaluateResponse struct {
	EvaluationID string `json:"evaluationId"`
	*domain.ScoreResult
	Metadata ResponseMetadata `json:"metadata"`
}

// ResponseMetadata describes how a verdict was produced.
type ResponseMetadata struct {
	TraceID        string `json:"traceId"`
	Cached         bool   `json:"cached"`
	RuleGeneration uint64 `json:"ruleGeneration"`
	TotalMs        int64  `json:"totalMs"`
	Version        string `json:"version"`
}

// ErrorResponse is returned for rejected submissions. Probability is always 0.
type ErrorResponse struct {
	Error       string  `json:"error"`
	Field       string  `json:"field"`
	Probability float64 `json:"probability"`
}

// Evaluate handles POST /evaluate requests.
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	var raw domain.RawTransaction
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid JSON request body"})
		return
	}
	h.evaluate(w, r, raw)
}

func (h *Handler) evaluate(w http.ResponseWriter, r *http.Request, raw domain.RawTransaction) {
	start := time.Now()
	ctx := r.Context()

	tx, err := parser.Parse(raw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: err.Error(),
			Field: domain.ValidationField(err),
		})
		return
	}

	generation := h.engine.Generation()
	res, cached := h.memo.Get(ctx, tx, generation)
	if !cached {
		res, err = h.engine.EvaluateTransaction(ctx, tx)
		if err != nil {
			slog.ErrorContext(ctx, "evaluation failed", "error", err)
			writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "evaluation failed"})
			return
		}
		h.memo.Put(ctx, tx, generation, res)
	}

	resp := EvaluateResponse{
		EvaluationID: uuid.New().String(),
		ScoreResult:  res,
		Metadata: ResponseMetadata{
			TraceID:        GetTraceID(ctx),
			Cached:         cached,
			RuleGeneration: generation,
			TotalMs:        time.Since(start).Milliseconds(),
			Version:        h.version,
		},
	}

	event := &domain.VerdictEvent{
		EvaluationID: resp.EvaluationID,
		TraceID:      resp.Metadata.TraceID,
		Type:         tx.Type,
		Label:        res.Label,
		Probability:  res.Probability,
		Source:       res.Source,
		AppliedRules: res.AppliedRules,
		Timestamp:    time.Now().UTC(),
	}
	if err := bus.PublishVerdict(ctx, h.bus, event); err != nil {
		slog.WarnContext(ctx, "failed to publish verdict", "evaluation_id", event.EvaluationID, "error", err)
	}

	writeJSON(w, http.StatusOK, resp)
}

// ListExamples handles GET /examples.
func (h *Handler) ListExamples(w http.ResponseWriter, r *http.Request) {
	examples := domain.ExampleTransactions()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"examples": examples,
		"count":    len(examples),
	})
}

// EvaluateExample handles POST /examples/{n}/evaluate. n is 1-based.
func (h *Handler) EvaluateExample(w http.ResponseWriter, r *http.Request) {
	examples := domain.ExampleTransactions()

	n, err := strconv.Atoi(chi.URLParam(r, "n"))
	if err != nil || n < 1 || n > len(examples) {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "example not found",
		})
		return
	}

	h.evaluate(w, r, examples[n-1].Transaction)
}

// Health returns server health status. A missing model degrades the service
// but evaluation keeps working on the fallback rules.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status := "healthy"

	modelStatus := h.engine.ModelStatus(ctx)
	if !modelStatus.Available {
		status = "degraded"
	}

	checks := map[string]string{}
	ping := func(name string, fn func() error) {
		if err := fn(); err != nil {
			slog.WarnContext(ctx, "health check failed", "component", name, "error", err)
			checks[name] = "unavailable"
			status = "degraded"
			return
		}
		checks[name] = "ok"
	}
	if h.repo != nil {
		ping("repository", func() error { return h.repo.Ping(ctx) })
	}
	if h.cache != nil {
		ping("cache", func() error { return h.cache.Ping(ctx) })
	}
	if h.bus != nil {
		ping("eventBus", func() error { return h.bus.Ping(ctx) })
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  status,
		"version": h.version,
		"model":   modelStatus,
		"checks":  checks,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// ListRules returns both active rule lists.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"floor":      h.engine.Rules(domain.RuleKindFloor),
		"fallback":   h.engine.Rules(domain.RuleKindFallback),
		"generation": h.engine.Generation(),
	})
}

// CreateRuleRequest is the request body for creating a rule.
type CreateRuleRequest struct {
	ID          string          `json:"id"`
	Kind        domain.RuleKind `json:"kind"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Expression  string          `json:"expression"`
	Value       float64         `json:"value"`
	Position    int             `json:"position"`
	Enabled     bool            `json:"enabled"`
}

// CreateRule validates a rule and stores it. Stored rules take effect on
// POST /rules/reload.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	var req CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.ID == "" || req.Name == "" || req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id, name, and expression are required",
		})
		return
	}

	rule := &domain.RuleConfig{
		ID:          req.ID,
		Kind:        req.Kind,
		Name:        req.Name,
		Description: req.Description,
		Expression:  req.Expression,
		Value:       req.Value,
		Position:    req.Position,
		Enabled:     req.Enabled,
	}

	if err := h.engine.ValidateRule(rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid rule: " + err.Error(),
		})
		return
	}

	if err := h.repo.SaveRuleConfig(ctx, rule); err != nil {
		slog.ErrorContext(ctx, "failed to save rule config", "rule_id", rule.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save rule",
		})
		return
	}

	slog.InfoContext(ctx, "rule saved", "rule_id", rule.ID, "kind", rule.Kind)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"rule":    rule,
		"message": "Rule saved. Call POST /rules/reload to apply changes.",
	})
}

// DeleteRule disables a stored rule. The change takes effect on reload.
func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	kind := domain.RuleKind(chi.URLParam(r, "kind"))
	id := chi.URLParam(r, "id")

	if err := h.repo.DeleteRuleConfig(ctx, kind, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "rule not found",
			})
			return
		}
		slog.ErrorContext(ctx, "failed to delete rule config", "rule_id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to delete rule",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Rule disabled. Call POST /rules/reload to apply changes.",
	})
}

// ReloadRules swaps in the rule sets stored in the repository. Cached
// verdicts from the previous rule generation are no longer served.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	floors, fallbacks, err := h.engine.LoadStoredRules(ctx, h.repo)
	if err != nil {
		slog.ErrorContext(ctx, "failed to reload rules", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload rules: " + err.Error(),
		})
		return
	}

	slog.InfoContext(ctx, "rules reloaded from repository",
		"floor_rules", floors,
		"fallback_rules", fallbacks,
		"generation", h.engine.Generation(),
	)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":    "rules reloaded successfully",
		"floor":      floors,
		"fallback":   fallbacks,
		"generation": h.engine.Generation(),
	})
}

// GetModel handles GET /model.
func (h *Handler) GetModel(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.ModelStatus(r.Context()))
}

// UploadModel compiles a model artifact and stores it. The running process
// keeps its model; a server started with model.source=repository picks up
// the latest stored version.
func (h *Handler) UploadModel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxArtifactBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "failed to read request body",
		})
		return
	}

	artifact, err := model.ParseArtifact(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}
	if artifact.Version == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "model artifact version is required",
		})
		return
	}
	m, err := model.Compile(artifact)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid model: " + err.Error(),
		})
		return
	}

	stored := &domain.ModelArtifact{
		Name:      artifact.Name,
		Version:   artifact.Version,
		Format:    artifact.Format,
		Body:      body,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.repo.SaveModelArtifact(ctx, stored); err != nil {
		slog.ErrorContext(ctx, "failed to save model artifact", "name", stored.Name, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save model",
		})
		return
	}

	slog.InfoContext(ctx, "model artifact stored", "name", stored.Name, "version", stored.Version)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"name":         stored.Name,
		"version":      stored.Version,
		"capabilities": m.Capabilities(),
		"message":      "Model stored. It is loaded on the next start with model.source=repository.",
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}
