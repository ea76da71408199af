// Package server exposes the assistant over HTTP: question answering, health,
// prometheus metrics, cache control and the MCP JSON-RPC endpoint.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/crystaldolphin/metadolphin/internal/agent"
	"github.com/crystaldolphin/metadolphin/internal/bus"
	"github.com/crystaldolphin/metadolphin/internal/schema"
)

// Catalog is the part of the gateway the HTTP API reports on and controls.
type Catalog interface {
	Validated() bool
	ClearCache()
}

// Options carries the collaborators of a Server. Catalog and MCP may be nil,
// in which case /healthz reports the catalog as unauthenticated, DELETE
// /v1/cache is a no-op and /mcp is not routed.
type Options struct {
	Addr         string
	Answerer     agent.Answerer
	Tools        schema.Executor
	Catalog      Catalog
	MCP          http.Handler
	HistoryLimit int
}

// Server is the gin-backed HTTP API.
type Server struct {
	opts   Options
	engine *gin.Engine
}

// ErrorResponse is the body of every non-2xx JSON reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// AskRequest is the body of POST /v1/ask.
type AskRequest struct {
	Question string     `json:"question"`
	History  []bus.Turn `json:"history,omitempty"`
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status               string `json:"status"`
	CatalogAuthenticated bool   `json:"catalogAuthenticated"`
	Tools                int    `json:"tools"`
}

func New(opts Options) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{opts: opts, engine: gin.New()}
	s.engine.Use(gin.Recovery(), requestLogger())

	s.engine.GET("/healthz", s.handleHealth)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.engine.POST("/v1/ask", s.handleAsk)
	s.engine.DELETE("/v1/cache", s.handleClearCache)
	if opts.MCP != nil {
		s.engine.POST("/mcp", gin.WrapH(opts.MCP))
	}
	return s
}

// Handler returns the routed engine, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves on opts.Addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", s.opts.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("http server shutdown", "err", err)
		}
		return ctx.Err()
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	resp := HealthResponse{Status: "ok"}
	if s.opts.Catalog != nil {
		resp.CatalogAuthenticated = s.opts.Catalog.Validated()
	}
	if s.opts.Tools != nil {
		defs, err := s.opts.Tools.Definitions(c.Request.Context())
		if err != nil {
			slog.Warn("healthz: tool discovery failed", "err", err)
		}
		resp.Tools = len(defs)
	}
	c.JSON(http.StatusOK, resp)
}

// handleAsk handles POST /v1/ask.
//
// Response:
//
//	200 OK: agent.Response
//	400 Bad Request: malformed body or empty question
//	502 Bad Gateway: the model call failed; the body carries the apology
func (s *Server) handleAsk(c *gin.Context) {
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error()})
		return
	}
	question := strings.TrimSpace(req.Question)
	if question == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "question is required"})
		return
	}

	history := agent.FormatHistory(req.History, s.opts.HistoryLimit)
	resp, err := s.opts.Answerer.Answer(c.Request.Context(), question, history)
	if err != nil {
		slog.Error("ask failed", "err", err)
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: agent.ApologyMessage})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleClearCache(c *gin.Context) {
	if s.opts.Catalog != nil {
		s.opts.Catalog.ClearCache()
	}
	c.Status(http.StatusNoContent)
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", strconv.Itoa(c.Writer.Status()),
			"duration", time.Since(start))
	}
}
