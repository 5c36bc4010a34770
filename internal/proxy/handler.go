package proxy

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vnmchuo/llm-exec/internal/auth"
	"github.com/vnmchuo/llm-exec/internal/billing"
	"github.com/vnmchuo/llm-exec/internal/provider"
	"github.com/vnmchuo/llm-exec/internal/worker"
	"github.com/vnmchuo/llm-exec/pkg/ratelimit"
)

type Handler struct {
	router  *Router
	usage   *worker.UsageWorker
	billing billing.Store
	limiter *ratelimit.Limiter
	tracer  trace.Tracer
}

func NewHandler(router *Router, store billing.Store, usage *worker.UsageWorker, limiter *ratelimit.Limiter, tracer trace.Tracer) *Handler {
	return &Handler{
		router:  router,
		usage:   usage,
		billing: store,
		limiter: limiter,
		tracer:  tracer,
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// statusFor maps a typed provider error to an HTTP status.
func statusFor(err error) int {
	var pe *provider.Error
	if errors.As(err, &pe) {
		switch pe.Code {
		case provider.CodeRateLimited:
			return http.StatusTooManyRequests
		case provider.CodeCircuitOpen:
			return http.StatusServiceUnavailable
		case provider.CodeClient:
			return http.StatusBadRequest
		case provider.CodeNoChoice:
			return http.StatusBadGateway
		}
	}
	return http.StatusBadGateway
}

func (h *Handler) HandleComplete(w http.ResponseWriter, r *http.Request) {
	tenantID, requestID, req, selected, err := h.prepare(w, r)
	if err != nil {
		return
	}

	response, err := h.router.Execute(r.Context(), req, selected)
	if err != nil {
		writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
		return
	}

	h.logUsage(tenantID, requestID, response)

	respID := response.ID
	if respID == "" {
		respID = uuid.New().String()
	}

	body := map[string]any{
		"id":       respID,
		"object":   "chat.completion",
		"model":    response.Model,
		"provider": response.Provider,
		"cached":   response.Cached,
		"choices": []any{
			map[string]any{
				"index": 0,
				"message": map[string]string{
					"role":    "assistant",
					"content": response.Text,
				},
				"finish_reason": finishOrStop(response.FinishReason),
			},
		},
		"usage": map[string]any{
			"prompt_tokens":     response.Usage.PromptTokens,
			"completion_tokens": response.Usage.CompletionTokens,
			"total_tokens":      response.Usage.TotalTokens,
			"estimated":         response.Usage.Estimated,
		},
	}
	if response.Cost != nil {
		body["cost"] = response.Cost
	}
	writeJSON(w, http.StatusOK, body)
}

func finishOrStop(reason string) string {
	if reason == "" {
		return "stop"
	}
	return reason
}

func (h *Handler) HandleCompleteStream(w http.ResponseWriter, r *http.Request) {
	tenantID, requestID, req, selected, err := h.prepare(w, r)
	if err != nil {
		return
	}
	req.Stream = true

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	started := false
	onToken := func(delta string) error {
		started = true
		payload, err := json.Marshal(map[string]any{
			"choices": []any{
				map[string]any{
					"delta": map[string]string{"content": delta},
					"index": 0,
				},
			},
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "data: %s\n\n", payload)
		flusher.Flush()
		return nil
	}

	response, err := h.router.ExecuteStream(r.Context(), req, selected, onToken)
	if err != nil {
		if !started {
			writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
			return
		}
		payload, _ := json.Marshal(map[string]string{"error": err.Error()})
		fmt.Fprintf(w, "event: error\ndata: %s\n\n", payload)
		flusher.Flush()
		return
	}

	fmt.Fprintf(w, "data: [DONE]\n\n")
	flusher.Flush()

	h.logUsage(tenantID, requestID, response)
}

func (h *Handler) logUsage(tenantID, requestID string, resp *provider.Response) {
	if h.usage == nil {
		return
	}
	l := &billing.UsageLog{
		TenantID:       tenantID,
		RequestID:      requestID,
		Provider:       resp.Provider,
		Model:          resp.Model,
		InputTokens:    resp.Usage.PromptTokens,
		OutputTokens:   resp.Usage.CompletionTokens,
		CachedTokens:   resp.Usage.CachedTokens,
		Cached:         resp.Cached,
		EstimatedUsage: resp.Usage.Estimated,
		LatencyMs:      resp.LatencyMs,
	}
	if resp.Cost != nil {
		l.CostUSD = resp.Cost.TotalCost
	}
	h.usage.Enqueue(l)
}

func (h *Handler) prepare(w http.ResponseWriter, r *http.Request) (string, string, *provider.Request, provider.Provider, error) {
	ctx := r.Context()
	tenantID := auth.GetTenantID(ctx)
	if tenantID == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return "", "", nil, nil, fmt.Errorf("unauthorized")
	}

	requestID := auth.GetRequestID(ctx)
	if requestID == "" {
		requestID = uuid.New().String()
	}

	var req provider.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return "", "", nil, nil, err
	}
	req.TenantID = tenantID
	req.RequestID = requestID

	_, span := h.tracer.Start(ctx, "proxy.complete")
	defer span.End()
	span.SetAttributes(
		attribute.String("tenant_id", tenantID),
		attribute.String("request_id", requestID),
		attribute.String("model", req.Model),
	)

	estimatedTokens := req.MaxTokens
	if estimatedTokens <= 0 {
		estimatedTokens = 1000
	}

	allowed, err := h.limiter.Allow(ctx, tenantID, estimatedTokens)
	if err != nil || !allowed {
		w.Header().Set("Retry-After", "60s")
		writeJSON(w, http.StatusTooManyRequests, map[string]string{
			"error":       "rate limit exceeded",
			"retry_after": "60s",
		})
		return "", "", nil, nil, fmt.Errorf("rate limit exceeded")
	}

	selected, err := h.router.Route(ctx, &req)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return "", "", nil, nil, err
	}

	return tenantID, requestID, &req, selected, nil
}

func (h *Handler) HandleUsage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := auth.GetTenantID(ctx)
	if tenantID == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	now := time.Now()
	from, to := now.AddDate(0, 0, -30), now

	if s := r.URL.Query().Get("from"); s != "" {
		var err error
		if from, err = time.Parse(time.RFC3339, s); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid 'from' date format (use RFC3339)"})
			return
		}
	}
	if s := r.URL.Query().Get("to"); s != "" {
		var err error
		if to, err = time.Parse(time.RFC3339, s); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid 'to' date format (use RFC3339)"})
			return
		}
	}

	logs, err := h.billing.GetUsageByTenant(ctx, tenantID, from, to)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	totalCost, err := h.billing.GetTotalCostByTenant(ctx, tenantID, from, to)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"tenant_id":      tenantID,
		"total_requests": len(logs),
		"total_cost_usd": totalCost,
		"logs":           logs,
		"from":           from,
		"to":             to,
	})
}

// HandleCacheStats reports the shared response cache counters.
func (h *Handler) HandleCacheStats(w http.ResponseWriter, r *http.Request) {
	if auth.GetTenantID(r.Context()) == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}
	writeJSON(w, http.StatusOK, h.router.CacheMetrics(r.Context()))
}
