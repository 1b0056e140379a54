package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/reelpipe/hindex/internal/async"
	hxerrors "github.com/reelpipe/hindex/internal/errors"
	"github.com/reelpipe/hindex/internal/search"
	"github.com/reelpipe/hindex/internal/telemetry"
	"github.com/reelpipe/hindex/internal/vector"
)

// maxTopK bounds client-requested result counts.
const maxTopK = 50

type queryRequest struct {
	Query   string            `json:"query"`
	TopK    int               `json:"top_k,omitempty"`
	Filters map[string]string `json:"filters,omitempty"`
}

type queryResponse struct {
	Results []search.Result `json:"results"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

type healthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
}

type statsResponse struct {
	Collection string             `json:"collection"`
	Points     uint64             `json:"points"`
	VectorSize int                `json:"vector_size"`
	Status     string             `json:"status"`
	Queries    telemetry.Snapshot `json:"queries"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "")
		return
	}
	if req.TopK > maxTopK {
		req.TopK = maxTopK
	}

	start := time.Now()
	results, err := s.engine.Query(r.Context(), req.Query, req.TopK, vector.Filter(req.Filters))
	if err != nil {
		status := statusForError(err)
		slog.Warn("query_failed",
			slog.String("error", err.Error()),
			slog.Int("status", status))
		writeError(w, status, err.Error(), codeOf(err))
		return
	}
	s.metrics.Record(req.Query, len(results), time.Since(start))

	if results == nil {
		results = []search.Result{}
	}
	writeJSON(w, http.StatusOK, queryResponse{Results: results})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	checks := map[string]string{"qdrant": "ok"}
	status := "healthy"
	httpStatus := http.StatusOK

	if _, err := s.store.Info(ctx); err != nil {
		slog.Warn("health_check_failed", slog.String("error", err.Error()))
		checks["qdrant"] = "error"
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, healthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	info, err := s.store.Info(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error(), codeOf(err))
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{
		Collection: s.collection,
		Points:     info.PointsCount,
		VectorSize: info.VectorSize,
		Status:     info.Status,
		Queries:    s.metrics.Snapshot(),
	})
}

// handleReindexStart kicks off one background re-index. The run binds to the
// server's lifetime context, not the request's: it has to survive the
// request that started it.
func (s *Server) handleReindexStart(w http.ResponseWriter, r *http.Request) {
	if err := s.reindexer.Trigger(s.lifetime, async.RunFunc(s.reindex)); err != nil {
		if errors.Is(err, async.ErrBusy) {
			writeError(w, http.StatusConflict, err.Error(), "")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error(), "")
		return
	}
	slog.Info("reindex_triggered", slog.String("remote_addr", r.RemoteAddr))
	writeJSON(w, http.StatusAccepted, s.reindexer.Status())
}

func (s *Server) handleReindexStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.reindexer.Status())
}

// codeOf extracts the error code anywhere in the chain, unlike GetCode which
// only looks at the top. Retry exhaustion wraps the last error, so the code
// has to be dug out for status mapping.
func codeOf(err error) string {
	var he *hxerrors.HindexError
	if errors.As(err, &he) {
		return he.Code
	}
	return ""
}

// statusForError maps error codes to HTTP status codes: client mistakes to
// 400, a dead store to 503, upstream embedding trouble to 502.
func statusForError(err error) int {
	switch codeOf(err) {
	case hxerrors.ErrCodeInvalidQuery, hxerrors.ErrCodeInvalidInput:
		return http.StatusBadRequest
	case hxerrors.ErrCodeStoreUnavailable, hxerrors.ErrCodeStoreQuery:
		return http.StatusServiceUnavailable
	case hxerrors.ErrCodeEmbeddingFailed, hxerrors.ErrCodeModelUnknown:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("response_encode_failed", slog.String("error", err.Error()))
	}
}

func writeError(w http.ResponseWriter, status int, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: message, Code: code})
}
