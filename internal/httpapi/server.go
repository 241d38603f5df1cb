package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"quantlab/internal/backtest"
	"quantlab/internal/domain"
	"quantlab/internal/engine"
	"quantlab/internal/portfolio"
	"quantlab/internal/store"
	"quantlab/internal/strategy"
	"quantlab/internal/util"
)

// DefaultMaxRuns bounds the runs kept in memory.
const DefaultMaxRuns = 100

// maxBodyBytes caps a POST /api/backtests body.
const maxBodyBytes = 1 << 20

// Server serves the backtest HTTP API. Completed runs live in memory; the
// oldest is evicted once MaxRuns is exceeded.
type Server struct {
	bt      *backtest.Backtester
	log     *slog.Logger
	maxRuns int

	mu    sync.RWMutex
	runs  map[string]*run
	order []string // run IDs, oldest first

	registry *prometheus.Registry
	runsTot  *prometheus.CounterVec
	tradeTot *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewServer creates a Server. maxRuns <= 0 uses DefaultMaxRuns.
func NewServer(bt *backtest.Backtester, maxRuns int, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	if maxRuns <= 0 {
		maxRuns = DefaultMaxRuns
	}
	s := &Server{
		bt:       bt,
		log:      log.With("component", "httpapi"),
		maxRuns:  maxRuns,
		runs:     make(map[string]*run),
		registry: prometheus.NewRegistry(),
		runsTot: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "quantlab_backtests_total", Help: "Backtest runs by strategy and outcome"},
			[]string{"strategy", "status"},
		),
		tradeTot: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "quantlab_trades_total", Help: "Trades executed across backtest runs"},
			[]string{"strategy"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Name: "quantlab_backtest_duration_seconds", Help: "Wall time of a backtest run"},
			[]string{"strategy"},
		),
	}
	s.registry.MustRegister(s.runsTot, s.tradeTot, s.duration)
	return s
}

// RegisterRoutes registers all API routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/strategies", s.handleStrategies)
	mux.HandleFunc("GET /api/backtests", s.handleListRuns)
	mux.HandleFunc("POST /api/backtests", s.handleCreateRun)
	mux.HandleFunc("GET /api/backtests/{id}", s.handleGetRun)
	mux.HandleFunc("GET /api/backtests/{id}/equity", s.handleEquity)
	mux.HandleFunc("GET /api/backtests/{id}/trades", s.handleTrades)
	mux.HandleFunc("DELETE /api/backtests/{id}", s.handleDeleteRun)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
}

// Handler returns an http.Handler with CORS middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps a run error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, strategy.ErrUnknownStrategy),
		errors.Is(err, backtest.ErrUnknownSource),
		errors.Is(err, strategy.ErrInvalidParam),
		errors.Is(err, portfolio.ErrInvalidCapital),
		errors.Is(err, portfolio.ErrInvalidCommission),
		errors.Is(err, util.ErrUnknownTimeframe):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrEmptySeries),
		errors.Is(err, domain.ErrMissingTimestamp),
		errors.Is(err, domain.ErrNoPrice),
		errors.Is(err, domain.ErrNonFinitePrice),
		errors.Is(err, engine.ErrSignalCount):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// ---------------------------------------------------------------------------
// Handlers
// ---------------------------------------------------------------------------

func (s *Server) handleStrategies(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, CatalogJSON{
		Strategies: s.bt.Registry().List(),
		Sources:    s.bt.Sources(),
	})
}

func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req backtest.Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("decoding request: %v", err))
		return
	}
	if req.Strategy == "" || req.Source == "" || req.Symbol == "" {
		writeError(w, http.StatusBadRequest, "strategy, source and symbol are required")
		return
	}

	started := time.Now()
	res, err := s.bt.Run(r.Context(), req)
	s.duration.WithLabelValues(req.Strategy).Observe(time.Since(started).Seconds())
	if err != nil {
		s.runsTot.WithLabelValues(req.Strategy, "error").Inc()
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			s.log.Error("backtest failed", "strategy", req.Strategy, "symbol", req.Symbol, "error", err)
		}
		writeError(w, status, err.Error())
		return
	}
	s.runsTot.WithLabelValues(req.Strategy, "ok").Inc()
	s.tradeTot.WithLabelValues(req.Strategy).Add(float64(len(res.Trades)))

	rn := &run{source: req.Source, results: res, createdAt: time.Now().UTC()}
	s.save(rn)
	s.log.Info("backtest stored", "run_id", res.RunID, "strategy", res.Strategy, "trades", len(res.Trades))

	w.Header().Set("Location", "/api/backtests/"+res.RunID)
	writeJSON(w, http.StatusCreated, rn.summary())
}

func (s *Server) handleListRuns(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	out := make([]RunSummaryJSON, 0, len(s.order))
	// Newest first.
	for i := len(s.order) - 1; i >= 0; i-- {
		out = append(out, s.runs[s.order[i]].summary())
	}
	s.mu.RUnlock()

	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	rn, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, rn.results)
}

func (s *Server) handleEquity(w http.ResponseWriter, r *http.Request) {
	rn, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, rn.results.EquityCurve)
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	rn, ok := s.lookup(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	if err := store.WriteTradesCSV(w, rn.results.Trades); err != nil {
		s.log.Error("writing trades CSV", "run_id", rn.results.RunID, "error", err)
	}
}

func (s *Server) handleDeleteRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.mu.Lock()
	_, ok := s.runs[id]
	if ok {
		delete(s.runs, id)
		for i, v := range s.order {
			if v == id {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
	}
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "run not found: "+id)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---------------------------------------------------------------------------
// Run storage
// ---------------------------------------------------------------------------

func (s *Server) save(rn *run) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[rn.results.RunID] = rn
	s.order = append(s.order, rn.results.RunID)
	for len(s.order) > s.maxRuns {
		delete(s.runs, s.order[0])
		s.order = s.order[1:]
	}
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*run, bool) {
	id := r.PathValue("id")
	s.mu.RLock()
	rn, ok := s.runs[id]
	s.mu.RUnlock()
	if !ok {
		writeError(w, http.StatusNotFound, "run not found: "+id)
	}
	return rn, ok
}
