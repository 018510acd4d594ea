// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"github.com/ksaregtech/regtech-tui/internal/answer"
	"github.com/ksaregtech/regtech-tui/internal/logging"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// DefaultAddr is the listen address used by serve-stub.
	DefaultAddr = ":8000"

	// DefaultTokenDelay paces token records like the production service.
	DefaultTokenDelay = 30 * time.Millisecond
)

// ============================================================================
// SERVER STATS
// ============================================================================

// Stats tracks server usage.
type Stats struct {
	Requests  int64     `json:"requests"`
	Tokens    int64     `json:"tokens"`
	StartTime time.Time `json:"start_time"`
}

// ============================================================================
// SERVER
// ============================================================================

// Options configures a Server.
type Options struct {
	// Corpus supplies references; nil uses DefaultCorpus.
	Corpus *Corpus

	// Delay between token records; 0 streams without pacing.
	Delay time.Duration

	// TopK is the number of references per answer.
	TopK int

	Logger *logging.Logger
}

// Server is the stub answer service.
type Server struct {
	echo   *echo.Echo
	corpus *Corpus
	delay  time.Duration
	topK   int
	logger *logging.Logger

	requests atomic.Int64
	tokens   atomic.Int64
	started  time.Time
}

// New creates a Server with routes and middleware installed.
func New(opts Options) *Server {
	if opts.Corpus == nil {
		opts.Corpus = DefaultCorpus()
	}
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadHeaderTimeout = 10 * time.Second

	s := &Server{
		echo:    e,
		corpus:  opts.Corpus,
		delay:   opts.Delay,
		topK:    opts.TopK,
		logger:  opts.Logger.With("stub"),
		started: time.Now(),
	}
	s.useMiddleware()
	s.setupRoutes()
	return s
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Stats returns a snapshot of the counters.
func (s *Server) Stats() Stats {
	return Stats{
		Requests:  s.requests.Load(),
		Tokens:    s.tokens.Load(),
		StartTime: s.started,
	}
}

// ============================================================================
// ROUTES
// ============================================================================

func (s *Server) setupRoutes() {
	s.echo.POST("/api/chat", s.handleChat)
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/stats", s.handleStats)
}

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Message string `json:"message"`
}

// ErrorResponse is returned for rejected requests.
type ErrorResponse struct {
	Error string `json:"error"`
}

// handleChat handles POST /api/chat.
func (s *Server) handleChat(c echo.Context) error {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}
	query := strings.TrimSpace(req.Message)
	if query == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "message is required"})
	}
	s.requests.Add(1)

	docs := s.corpus.Search(query, s.topK)
	refs := References(docs)
	words := strings.Split(composeAnswer(docs), " ")

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)

	ctx := c.Request().Context()
	var limiter *rate.Limiter
	if s.delay > 0 {
		limiter = rate.NewLimiter(rate.Every(s.delay), 1)
	}

	for i, word := range words {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				s.logger.Debug("client went away after %d tokens", i)
				return nil
			}
		}
		fragment := word
		if i > 0 {
			fragment = " " + word
		}
		if err := writeEvent(res, answer.TokenEvent(fragment)); err != nil {
			s.logger.Debug("write token: %v", err)
			return nil
		}
		s.tokens.Add(1)
	}

	if err := writeEvent(res, answer.DoneEvent(refs)); err != nil {
		s.logger.Debug("write done: %v", err)
	}
	return nil
}

func writeEvent(res *echo.Response, ev answer.Event) error {
	record, err := answer.FormatRecord(ev)
	if err != nil {
		return err
	}
	if _, err := res.Write(record); err != nil {
		return err
	}
	res.Flush()
	return nil
}

// handleHealth handles GET /health.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// handleStats handles GET /stats.
func (s *Server) handleStats(c echo.Context) error {
	return c.JSON(http.StatusOK, s.Stats())
}

// ============================================================================
// SERVER LIFECYCLE
// ============================================================================

// Start listens on addr and serves until Shutdown.
func (s *Server) Start(addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}
	s.logger.Info("listening on %s (%d documents)", addr, s.corpus.Len())
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down")
	return s.echo.Shutdown(ctx)
}
