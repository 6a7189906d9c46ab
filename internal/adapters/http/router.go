package httpadapter

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/closedesk/closedesk-backend/internal/core/domain"
	"github.com/closedesk/closedesk-backend/internal/core/ports"
	"github.com/closedesk/closedesk-backend/internal/observability/metrics"
)

const serviceName = "closedesk-api"

// TrafficConfig bounds how much the API accepts before shedding load.
type TrafficConfig struct {
	RateLimitRPS     float64
	RateLimitBurst   int
	MaxConcurrent    int
	BackpressureWait time.Duration
}

type Router struct {
	evaluator    ports.ComplianceEvaluator
	roller       ports.StatusRoller
	retriever    ports.Retriever
	results      ports.ResultStore
	transactions ports.TransactionRepository
	documents    ports.DocumentRepository
	bus          ports.EventBus
	metrics      *metrics.HTTPServerMetrics
	traffic      TrafficConfig
}

func NewRouter(
	evaluator ports.ComplianceEvaluator,
	roller ports.StatusRoller,
	retriever ports.Retriever,
	results ports.ResultStore,
	transactions ports.TransactionRepository,
	documents ports.DocumentRepository,
	bus ports.EventBus,
	m *metrics.HTTPServerMetrics,
	traffic TrafficConfig,
) *Router {
	return &Router{
		evaluator:    evaluator,
		roller:       roller,
		retriever:    retriever,
		results:      results,
		transactions: transactions,
		documents:    documents,
		bus:          bus,
		metrics:      m,
		traffic:      traffic,
	}
}

// Handler assembles the route table and middleware chain. Health and
// metrics bypass the traffic gates so probes keep working under load.
func (rt *Router) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("/v1/transactions", rt.createTransaction)
	api.HandleFunc("/v1/transactions/", rt.transactionRoutes)
	api.HandleFunc("/v1/retrieval/search", rt.searchChunks)
	api.HandleFunc("/v1/documents", rt.createDocument)
	api.HandleFunc("/v1/documents/", rt.documentRoutes)

	var guarded http.Handler = api
	guarded = backpressureMiddleware(guarded, rt.traffic.MaxConcurrent, rt.traffic.BackpressureWait)
	guarded = rateLimitMiddleware(guarded, rt.traffic.RateLimitRPS, rt.traffic.RateLimitBurst)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}
	mux.Handle("/v1/", guarded)

	var handler http.Handler = mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	handler = accessLogMiddleware(handler)
	handler = requestIDMiddleware(handler)
	return handler
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// transactionRoutes dispatches /v1/transactions/{id}/{action}.
func (rt *Router) transactionRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/transactions/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "transaction id is required"})
		return
	}

	switch {
	case r.Method == http.MethodGet && action == "":
		rt.getTransaction(w, r, id)
	case r.Method == http.MethodPost && action == "parties":
		rt.addParty(w, r, id)
	case r.Method == http.MethodPost && action == "evaluate":
		rt.evaluateOne(w, r, id)
	case r.Method == http.MethodPost && action == "evaluate-all":
		rt.evaluateAll(w, r, id)
	case r.Method == http.MethodPost && action == "rollup":
		rt.rollup(w, r, id)
	case r.Method == http.MethodPost && action == "close":
		rt.transition(w, r, id, rt.roller.Close)
	case r.Method == http.MethodPost && action == "void":
		rt.transition(w, r, id, rt.roller.Void)
	case r.Method == http.MethodGet && action == "facts":
		rt.dealFacts(w, r, id)
	case r.Method == http.MethodGet && action == "checks":
		rt.latestChecks(w, r, id)
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown transaction operation"})
	}
}

func (rt *Router) evaluateOne(w http.ResponseWriter, r *http.Request, id string) {
	var req struct {
		CheckKey string `json:"check_key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.CheckKey) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "check_key is required"})
		return
	}

	result, err := rt.evaluator.Evaluate(r.Context(), id, req.CheckKey)
	if err != nil {
		writeError(w, err)
		return
	}
	rt.recordResult(result)
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) evaluateAll(w http.ResponseWriter, r *http.Request, id string) {
	results, err := rt.evaluator.EvaluateAll(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	for i := range results {
		rt.recordResult(&results[i])
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (rt *Router) rollup(w http.ResponseWriter, r *http.Request, id string) {
	row, err := rt.roller.Rollup(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordRollup(serviceName, string(row.Status))
	}
	writeJSON(w, http.StatusOK, row)
}

func (rt *Router) transition(
	w http.ResponseWriter,
	r *http.Request,
	id string,
	apply func(ctx context.Context, transactionID string) (*domain.TransactionStatusRow, error),
) {
	row, err := apply(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

func (rt *Router) dealFacts(w http.ResponseWriter, r *http.Request, id string) {
	facts, err := rt.retriever.DealFacts(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(facts))
}

func (rt *Router) latestChecks(w http.ResponseWriter, r *http.Request, id string) {
	results, err := rt.results.LatestPerCheck(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (rt *Router) searchChunks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		Embedding        []float32 `json:"embedding"`
		TopK             int       `json:"top_k"`
		MinContentLength int       `json:"min_content_length"`
		TransactionID    string    `json:"transaction_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	chunks, err := rt.retriever.SearchChunks(r.Context(), req.Embedding, req.TopK, req.MinContentLength,
		domain.ChunkFilter{TransactionID: req.TransactionID})
	if err != nil {
		writeError(w, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordSearch(serviceName, len(chunks))
	}
	writeJSON(w, http.StatusOK, map[string]any{"chunks": chunks})
}

// documentRoutes dispatches /v1/documents/{id}/{action}.
func (rt *Router) documentRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/documents/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "document id is required"})
		return
	}

	switch {
	case r.Method == http.MethodPost && action == "chunks":
		rt.indexDocumentChunks(w, r, id)
	case r.Method == http.MethodPost && action == "fields":
		rt.addDocField(w, r, id)
	case r.Method == http.MethodGet && action == "head":
		rt.headOfChain(w, r, id)
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown document operation"})
	}
}

func (rt *Router) indexDocumentChunks(w http.ResponseWriter, r *http.Request, id string) {
	var req struct {
		Chunks []domain.DocumentChunk `json:"chunks"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if len(req.Chunks) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "chunks are required"})
		return
	}

	if err := rt.retriever.IndexChunks(r.Context(), id, req.Chunks); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"indexed": len(req.Chunks)})
}

// headOfChain resolves the newest version in the supersedes chain that
// contains the given document, so callers can start from any version.
func (rt *Router) headOfChain(w http.ResponseWriter, r *http.Request, id string) {
	head, err := rt.documents.HeadOfChain(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, head)
}

func (rt *Router) recordResult(result *domain.CheckResult) {
	if rt.metrics == nil || result == nil {
		return
	}
	rt.metrics.RecordCheckResult(serviceName, result.CheckKey, string(result.Status))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
}
