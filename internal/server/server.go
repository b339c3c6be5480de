package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/tickstream/internal/model"
	"github.com/rickgao/tickstream/internal/reader"
	"github.com/rickgao/tickstream/internal/stream"
)

// Reader is the read side served over HTTP.
type Reader interface {
	Latest(ctx context.Context, instrumentID string) (int64, error)
	History(ctx context.Context, instrumentID string, start, end time.Time, limit int) (model.History, error)
	Instruments(ctx context.Context) ([]string, error)
	Tail(ctx context.Context, instrumentID string, sink func([]byte) error) error
}

// CheckFunc reports the health of one dependency.
type CheckFunc func(ctx context.Context) error

// Config configures the HTTP server.
type Config struct {
	Session      stream.SessionConfig
	CheckTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Session:      stream.DefaultSessionConfig(),
		CheckTimeout: 5 * time.Second,
	}
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithCheck adds a dependency to /health.
func WithCheck(name string, check CheckFunc) Option {
	return func(s *Server) {
		s.checks[name] = check
	}
}

// WithMetricsHandler serves h on /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// Server routes HTTP requests to a Reader.
type Server struct {
	cfg      Config
	reader   Reader
	logger   *slog.Logger
	checks   map[string]CheckFunc
	metrics  http.Handler
	upgrader websocket.Upgrader
}

// New creates a Server.
func New(r Reader, cfg Config, opts ...Option) *Server {
	s := &Server{
		cfg:    cfg,
		reader: r,
		logger: slog.Default(),
		checks: make(map[string]CheckFunc),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/stocks/tickers", s.handleTickers)
	mux.HandleFunc("GET /api/stocks/ws", s.handleTail)
	mux.HandleFunc("GET /api/stocks/{ticker}", s.handleHistory)
	mux.HandleFunc("GET /api/stocks/{ticker}/latest", s.handleLatest)
	mux.HandleFunc("GET /health", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
	return mux
}

type tickersResponse struct {
	Tickers []string `json:"tickers"`
}

type historyResponse struct {
	Ticker    string      `json:"ticker"`
	Prices    []int64     `json:"prices"`
	Datetimes []time.Time `json:"datetimes"`
}

type latestResponse struct {
	Ticker string `json:"ticker"`
	Price  int64  `json:"price"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleTickers(w http.ResponseWriter, r *http.Request) {
	ids, err := s.reader.Instruments(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tickersResponse{Tickers: ids})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	ticker := r.PathValue("ticker")
	q := r.URL.Query()

	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = n
	}
	start, err := parseTime(q.Get("start_dt"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "start_dt: " + err.Error()})
		return
	}
	end, err := parseTime(q.Get("end_dt"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "end_dt: " + err.Error()})
		return
	}

	h, err := s.reader.History(r.Context(), ticker, start, end, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, historyResponse{
		Ticker:    h.Ticker,
		Prices:    h.Prices,
		Datetimes: h.Timestamps,
	})
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	ticker := r.PathValue("ticker")

	price, err := s.reader.Latest(r.Context(), ticker)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, latestResponse{Ticker: ticker, Price: price})
}

func (s *Server) handleTail(w http.ResponseWriter, r *http.Request) {
	ticker := r.URL.Query().Get("ticker")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	sess := stream.NewSession(context.WithoutCancel(r.Context()), conn, s.cfg.Session, s.logger)
	s.logger.Info("tail opened", "session", sess.ID(), "ticker", ticker)

	code := websocket.CloseNormalClosure
	if err := s.reader.Tail(sess.Context(), ticker, sess.Send); err != nil && sess.Context().Err() == nil {
		s.logger.Warn("tail ended", "session", sess.ID(), "ticker", ticker, "error", err)
		code = websocket.CloseInternalServerErr
	}
	sess.Close(code, "")
	s.logger.Info("tail closed", "session", sess.ID(), "ticker", ticker)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.CheckTimeout)
	defer cancel()

	health := struct {
		Status     string         `json:"status"`
		Components map[string]any `json:"components"`
	}{
		Status:     "healthy",
		Components: make(map[string]any, len(s.checks)),
	}

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := s.checks[name](ctx); err != nil {
			health.Status = "unhealthy"
			health.Components[name] = map[string]string{
				"status": "disconnected",
				"error":  err.Error(),
			}
			continue
		}
		health.Components[name] = "connected"
	}

	status := http.StatusOK
	if health.Status == "unhealthy" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, health)
}

// writeError maps read errors to status codes.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, reader.ErrInstrumentUnknown):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, reader.ErrInvalidRange):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	default:
		s.logger.Error("request failed", "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "store unavailable"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// parseTime accepts RFC 3339 or a zone-less datetime, read as UTC.
func parseTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return t, nil
	}
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02 15:04:05", time.DateOnly} {
		if t, err := time.ParseInLocation(layout, v, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.New("expected RFC 3339 datetime")
}
