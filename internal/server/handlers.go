package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ashita-ai/keisoku/internal/auth"
	"github.com/ashita-ai/keisoku/internal/model"
	"github.com/ashita-ai/keisoku/internal/service/analytics"
	"github.com/ashita-ai/keisoku/internal/service/ingest"
)

// AgentStore is the credential lookup used for token issuance.
type AgentStore interface {
	GetAgentsByAgentIDGlobal(ctx context.Context, agentID string) ([]model.Agent, error)
}

// Pinger reports storage liveness for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	agents              AgentStore
	pinger              Pinger
	jwtMgr              *auth.JWTManager
	ingestSvc           *ingest.Service
	analyticsSvc        *analytics.Service
	logger              *slog.Logger
	version             string
	maxRequestBodyBytes int64
	startedAt           time.Time
}

// HandlersDeps holds the dependencies for creating Handlers.
type HandlersDeps struct {
	Agents              AgentStore
	Pinger              Pinger
	JWTMgr              *auth.JWTManager
	IngestSvc           *ingest.Service
	AnalyticsSvc        *analytics.Service
	Logger              *slog.Logger
	Version             string
	MaxRequestBodyBytes int64
}

// NewHandlers creates the handler set.
func NewHandlers(deps HandlersDeps) *Handlers {
	return &Handlers{
		agents:              deps.Agents,
		pinger:              deps.Pinger,
		jwtMgr:              deps.JWTMgr,
		ingestSvc:           deps.IngestSvc,
		analyticsSvc:        deps.AnalyticsSvc,
		logger:              deps.Logger,
		version:             deps.Version,
		maxRequestBodyBytes: deps.MaxRequestBodyBytes,
		startedAt:           time.Now(),
	}
}

// HandleAuthToken handles POST /auth/token. Exchanges an agent_id and API
// key for a JWT. Response timing is uniform for unknown agent ids.
func (h *Handlers) HandleAuthToken(w http.ResponseWriter, r *http.Request) {
	var req model.AuthTokenRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if req.AgentID == "" || req.APIKey == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "agent_id and api_key are required")
		return
	}

	agents, err := h.agents.GetAgentsByAgentIDGlobal(r.Context(), req.AgentID)
	if err != nil {
		auth.DummyVerify()
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "invalid credentials")
		return
	}

	var matched *model.Agent
	for i := range agents {
		valid, verr := auth.VerifyAPIKey(req.APIKey, agents[i].APIKeyHash)
		if verr != nil || !valid {
			continue
		}
		matched = &agents[i]
		break
	}
	if matched == nil {
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "invalid credentials")
		return
	}

	token, expiresAt, err := h.jwtMgr.IssueToken(*matched)
	if err != nil {
		h.writeInternalError(w, r, "failed to issue token", err)
		return
	}

	writeJSON(w, r, http.StatusOK, model.AuthTokenResponse{Token: token, ExpiresAt: expiresAt})
}

// HandleRecordTelemetry handles POST /v1/telemetry.
func (h *Handlers) HandleRecordTelemetry(w http.ResponseWriter, r *http.Request) {
	var req model.RecordTelemetryRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}

	id, err := h.ingestSvc.Record(r.Context(), identityFromContext(r.Context()), req)
	if err != nil {
		h.writeServiceError(w, r, "record telemetry", err)
		return
	}

	writeJSON(w, r, http.StatusCreated, model.RecordTelemetryResponse{ID: id})
}

// HandleListByTask handles GET /v1/telemetry/task/{task_id}.
func (h *Handlers) HandleListByTask(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	entries, applied, err := h.ingestSvc.ListByTask(r.Context(), identityFromContext(r.Context()), r.PathValue("task_id"), limit)
	if err != nil {
		h.writeServiceError(w, r, "list by task", err)
		return
	}
	if entries == nil {
		entries = []model.TelemetryRecord{}
	}

	writeJSON(w, r, http.StatusOK, model.EntriesResponse{Entries: entries, Limit: applied})
}

// HandleListByRun handles GET /v1/telemetry/run/{run_id}.
func (h *Handlers) HandleListByRun(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	entries, applied, err := h.ingestSvc.ListByRun(r.Context(), identityFromContext(r.Context()), r.PathValue("run_id"), limit)
	if err != nil {
		h.writeServiceError(w, r, "list by run", err)
		return
	}
	if entries == nil {
		entries = []model.TelemetryRecord{}
	}

	writeJSON(w, r, http.StatusOK, model.EntriesResponse{Entries: entries, Limit: applied})
}

// HandleAnalytics handles GET /v1/analytics.
func (h *Handlers) HandleAnalytics(w http.ResponseWriter, r *http.Request) {
	q, ok := parseAnalyticsQuery(w, r)
	if !ok {
		return
	}

	report, err := h.analyticsSvc.Report(r.Context(), identityFromContext(r.Context()), q)
	if err != nil {
		h.writeServiceError(w, r, "analytics report", err)
		return
	}

	writeJSON(w, r, http.StatusOK, report)
}

// HandleAnomalies handles GET /v1/analytics/anomalies.
func (h *Handlers) HandleAnomalies(w http.ResponseWriter, r *http.Request) {
	q, ok := parseAnalyticsQuery(w, r)
	if !ok {
		return
	}

	report, err := h.analyticsSvc.Anomalies(r.Context(), identityFromContext(r.Context()), q)
	if err != nil {
		h.writeServiceError(w, r, "anomaly report", err)
		return
	}

	writeJSON(w, r, http.StatusOK, report)
}

// HandleHealth handles GET /health. Reports degraded rather than failing
// outright when Postgres is unreachable.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := model.HealthResponse{
		Status:   "ok",
		Version:  h.version,
		Postgres: "ok",
		Uptime:   int64(time.Since(h.startedAt).Seconds()),
	}
	if err := h.pinger.Ping(ctx); err != nil {
		resp.Status = "degraded"
		resp.Postgres = "unreachable"
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, r, status, resp)
}

// parseLimit reads the optional limit query parameter. Nil means the
// parameter was absent and the service applies its default; an explicit
// value is passed through as-is, so limit=0 still reaches the service's
// non-positive rejection. Returns false after writing an error.
func parseLimit(w http.ResponseWriter, r *http.Request) (*int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return nil, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "limit must be an integer")
		return nil, false
	}
	return &limit, true
}

// parseAnalyticsQuery reads the shared analytics query parameters. Window
// defaults and granularity/categoryType validation live in the service;
// only syntactic parsing happens here. Returns false after writing an error.
func parseAnalyticsQuery(w http.ResponseWriter, r *http.Request) (analytics.Query, bool) {
	var q analytics.Query
	params := r.URL.Query()

	if raw := params.Get("startMs"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "startMs must be an integer")
			return analytics.Query{}, false
		}
		q.StartMs = &v
	}
	if raw := params.Get("endMs"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "endMs must be an integer")
			return analytics.Query{}, false
		}
		q.EndMs = &v
	}
	q.Granularity = model.Granularity(params.Get("granularity"))
	q.CategoryType = model.CategoryType(params.Get("categoryType"))

	return q, true
}

// writeServiceError maps service-layer errors to HTTP responses.
func (h *Handlers) writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var verr model.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, verr.Error())
	case errors.Is(err, model.ErrUnauthenticated):
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "authentication required")
	default:
		h.writeInternalError(w, r, op+" failed", err)
	}
}

// writeInternalError logs the underlying error and writes a generic 500.
func (h *Handlers) writeInternalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.logger.Error(msg,
		"error", err,
		"request_id", RequestIDFromContext(r.Context()),
	)
	writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "internal server error")
}
