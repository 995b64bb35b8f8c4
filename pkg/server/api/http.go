// Package api provides the HTTP and WebSocket read API over the feed accounts.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/Magicwander/OKX-submission-complete/pkg/feed"
	"github.com/Magicwander/OKX-submission-complete/pkg/feeder/keeper"
	"github.com/Magicwander/OKX-submission-complete/pkg/feeder/ledger"
	"github.com/Magicwander/OKX-submission-complete/pkg/logging"
	"github.com/Magicwander/OKX-submission-complete/pkg/metrics"
)

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = feed.MaxHistoryCapacity
)

// KeeperView is the keeper state the API exposes.
type KeeperView interface {
	State() keeper.State
	Snapshot() []keeper.PairState
}

// Options configures the HTTP server.
type Options struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server represents the HTTP API server.
type Server struct {
	opts     Options
	reader   ledger.AccountReader
	feeds    map[string]common.Address
	keeper   KeeperView
	ledger   *ledger.Handler
	wsServer *WebSocketServer
	server   *http.Server
	logger   *logging.Logger
	now      func() time.Time
}

// NewServer creates a new HTTP API server for feeds, keyed by pair id.
func NewServer(opts Options, reader ledger.AccountReader, feeds map[string]common.Address, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 30 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 30 * time.Second
	}
	return &Server{
		opts:   opts,
		reader: reader,
		feeds:  feeds,
		logger: logger.With("component", "api"),
		now:    time.Now,
	}
}

// SetKeeper exposes k on /v1/keeper and /health.
func (s *Server) SetKeeper(k KeeperView) {
	s.keeper = k
}

// SetLedger serves the ledger API next to the read API.
func (s *Server) SetLedger(h *ledger.Handler) {
	s.ledger = h
}

// SetWebSocketServer sets the WebSocket server for streaming updates.
func (s *Server) SetWebSocketServer(ws *WebSocketServer) {
	s.wsServer = ws
}

// Handler returns the routes of the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/v1/feeds", s.handleFeeds)
	mux.HandleFunc("/v1/feeds/price", s.handlePrice)
	mux.HandleFunc("/v1/feeds/history", s.handleHistory)
	mux.HandleFunc("/v1/feeds/stats", s.handleStats)
	mux.HandleFunc("/v1/feeds/validate", s.handleValidate)
	mux.HandleFunc("/v1/keeper", s.handleKeeper)
	mux.HandleFunc("/v1/prices", s.handlePrices)
	if s.wsServer != nil {
		mux.HandleFunc("/ws", s.wsServer.HandleWebSocket)
	}
	if s.ledger != nil {
		s.ledger.Register(mux)
	}
	return mux
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.opts.ReadTimeout,
		WriteTimeout:      s.opts.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}

	s.logger.Info("Starting HTTP server", "addr", s.opts.Addr, "feeds", len(s.feeds), "ledger", s.ledger != nil)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server error: %w", err)
	}
	return nil
}

// Stop gracefully stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		s.logger.Info("Stopping HTTP server")
		return s.server.Shutdown(ctx)
	}
	return nil
}

// apiError carries the HTTP status of a failed request.
type apiError struct {
	status int
	msg    string
}

func (e *apiError) Error() string { return e.msg }

func badRequest(format string, args ...interface{}) error {
	return &apiError{status: http.StatusBadRequest, msg: fmt.Sprintf(format, args...)}
}

func notFound(format string, args ...interface{}) error {
	return &apiError{status: http.StatusNotFound, msg: fmt.Sprintf(format, args...)}
}

// serve runs h and records the request metric under endpoint.
func (s *Server) serve(w http.ResponseWriter, r *http.Request, endpoint string, h func() (interface{}, error)) {
	start := time.Now()
	status := http.StatusOK
	defer func() {
		metrics.RecordHTTPRequest(endpoint, strconv.Itoa(status), time.Since(start))
	}()

	if r.Method != http.MethodGet {
		status = http.StatusMethodNotAllowed
		s.sendError(w, status, "method not allowed")
		return
	}

	body, err := h()
	if err != nil {
		status = http.StatusInternalServerError
		var ae *apiError
		if errors.As(err, &ae) {
			status = ae.status
		} else {
			s.logger.Error("Request failed", "endpoint", endpoint, "error", err)
		}
		s.sendError(w, status, err.Error())
		return
	}
	s.sendJSON(w, status, body)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.serve(w, r, "/health", func() (interface{}, error) {
		out := map[string]interface{}{"status": "ok", "feeds": len(s.feeds)}
		if s.keeper != nil {
			out["keeper"] = s.keeper.State()
		}
		return out, nil
	})
}

// FeedSummary describes one configured feed.
type FeedSummary struct {
	Pair        string             `json:"pair"`
	Account     common.Address     `json:"account"`
	Initialized bool               `json:"initialized"`
	Current     *feed.CurrentPrice `json:"current,omitempty"`
	Violations  []feed.Violation   `json:"violations,omitempty"`
	Stats       *feed.Statistics   `json:"stats,omitempty"`
	Reliability map[string]float64 `json:"reliability,omitempty"`
	Breaker     *feed.Breaker      `json:"breaker,omitempty"`
}

func (s *Server) handleFeeds(w http.ResponseWriter, r *http.Request) {
	s.serve(w, r, "/v1/feeds", func() (interface{}, error) {
		now := s.now()
		out := make([]FeedSummary, 0, len(s.feeds))
		for _, id := range s.pairIDs() {
			addr := s.feeds[id]
			summary := FeedSummary{Pair: id, Account: addr}
			acct, err := ledger.FetchAccount(r.Context(), s.reader, addr)
			switch {
			case errors.Is(err, ledger.ErrAccountNotFound):
				out = append(out, summary)
				continue
			case err != nil:
				return nil, err
			}
			summary.Initialized = acct.Initialized
			if cp, err := acct.CurrentPrice(now); err == nil {
				summary.Current = &cp
			}
			summary.Violations = acct.Validate(now)
			out = append(out, summary)
		}
		return out, nil
	})
}

func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	s.serve(w, r, "/v1/feeds/price", func() (interface{}, error) {
		id, acct, err := s.account(r)
		if err != nil {
			return nil, err
		}
		cp, err := acct.CurrentPrice(s.now())
		if err != nil {
			return nil, notFound("%s: %v", id, err)
		}
		return struct {
			Pair    string         `json:"pair"`
			Account common.Address `json:"account"`
			feed.CurrentPrice
		}{id, s.feeds[id], cp}, nil
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	s.serve(w, r, "/v1/feeds/history", func() (interface{}, error) {
		limit := defaultHistoryLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 || n > maxHistoryLimit {
				return nil, badRequest("limit must be in [1, %d]", maxHistoryLimit)
			}
			limit = n
		}
		id, acct, err := s.account(r)
		if err != nil {
			return nil, err
		}
		history, err := acct.RecentHistory(limit)
		if err != nil {
			return nil, notFound("%s: %v", id, err)
		}
		return history, nil
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.serve(w, r, "/v1/feeds/stats", func() (interface{}, error) {
		id, acct, err := s.account(r)
		if err != nil {
			return nil, err
		}
		return FeedSummary{
			Pair:        id,
			Account:     s.feeds[id],
			Initialized: acct.Initialized,
			Stats:       &acct.Stats,
			Reliability: acct.Reliability(),
			Breaker:     &acct.Breaker,
		}, nil
	})
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	s.serve(w, r, "/v1/feeds/validate", func() (interface{}, error) {
		id, acct, err := s.account(r)
		if err != nil {
			return nil, err
		}
		violations := acct.Validate(s.now())
		if violations == nil {
			violations = []feed.Violation{}
		}
		return map[string]interface{}{
			"pair":       id,
			"healthy":    len(violations) == 0,
			"violations": violations,
		}, nil
	})
}

func (s *Server) handleKeeper(w http.ResponseWriter, r *http.Request) {
	s.serve(w, r, "/v1/keeper", func() (interface{}, error) {
		if s.keeper == nil {
			return nil, notFound("keeper not running")
		}
		return map[string]interface{}{
			"state": s.keeper.State(),
			"pairs": s.keeper.Snapshot(),
		}, nil
	})
}

// PriceEntry is the /v1/prices format read by the priceserver source.
type PriceEntry struct {
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	Timestamp time.Time       `json:"timestamp"`
	Source    string          `json:"source"`
}

func (s *Server) handlePrices(w http.ResponseWriter, r *http.Request) {
	s.serve(w, r, "/v1/prices", func() (interface{}, error) {
		out := make([]PriceEntry, 0, len(s.feeds))
		for _, id := range s.pairIDs() {
			acct, err := ledger.FetchAccount(r.Context(), s.reader, s.feeds[id])
			if err != nil || !acct.Initialized || !acct.Current.Price.IsPositive() {
				continue
			}
			out = append(out, PriceEntry{
				Symbol:    acct.Pair.Symbol(),
				Price:     acct.Current.Price,
				Timestamp: acct.Current.Timestamp,
				Source:    "feed",
			})
		}
		if len(out) == 0 {
			return nil, &apiError{status: http.StatusServiceUnavailable, msg: "no prices available"}
		}
		return out, nil
	})
}

// account resolves the ?pair= query to its deserialized account.
func (s *Server) account(r *http.Request) (string, *feed.Account, error) {
	id := r.URL.Query().Get("pair")
	if id == "" {
		return "", nil, badRequest("pair query parameter is required")
	}
	addr, ok := s.feeds[id]
	if !ok {
		return "", nil, notFound("unknown pair %s", id)
	}
	acct, err := ledger.FetchAccount(r.Context(), s.reader, addr)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		return "", nil, notFound("feed %s not initialized", id)
	}
	if err != nil {
		return "", nil, err
	}
	return id, acct, nil
}

func (s *Server) pairIDs() []string {
	ids := make([]string, 0, len(s.feeds))
	for id := range s.feeds {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// sendJSON sends a JSON response.
func (s *Server) sendJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("Failed to encode JSON response", "error", err)
	}
}

func (s *Server) sendError(w http.ResponseWriter, status int, msg string) {
	s.sendJSON(w, status, map[string]string{"error": msg})
}
