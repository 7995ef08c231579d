// Package server exposes stageline operations over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"stageline.dev/stageline/internal/actions"
	"stageline.dev/stageline/internal/engine"
	slerrors "stageline.dev/stageline/internal/errors"
	"stageline.dev/stageline/internal/runtime"
)

// ServiceVersion is reported by /healthz
const ServiceVersion = "0.1.0"

// Request headers
const (
	HeaderRequestID  = "X-Request-ID"
	HeaderActorName  = "X-Stageline-Actor"
	HeaderActorEmail = "X-Stageline-Actor-Email"
)

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	// Error is the error message
	Error string `json:"error"`
	// Code is the error kind, e.g. StatusConflict
	Code string `json:"code,omitempty"`
}

// HealthResponse is the body of /healthz
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// Server serves the stageline HTTP API
type Server struct {
	rt     *runtime.Context
	router *gin.Engine
	logger *slog.Logger
}

// New creates a server over rt
func New(rt *runtime.Context) *Server {
	router := gin.New()
	router.Use(gin.Recovery())
	// branch names may contain slashes, sent as %2F
	router.UseRawPath = true
	router.UnescapePathValues = true

	s := &Server{rt: rt, router: router, logger: rt.Splog.Logger()}
	router.GET("/healthz", s.handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	RegisterRoutes(router.Group("/v1"), s)
	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is done, then shuts down gracefully
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("stageline server listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// RegisterRoutes registers the operation routes on rg
func RegisterRoutes(rg *gin.RouterGroup, s *Server) {
	rg.POST("/changes", s.handleImport)
	rg.GET("/changes/:number", s.handleGetChange)
	rg.POST("/changes/:number/stage", s.handleStage)
	rg.POST("/changes/:number/unstage", s.handleUnstage)
	rg.POST("/changes/:number/review", s.handleReview)
	rg.POST("/changes/:number/defer", s.handleDefer)
	rg.POST("/changes/:number/reopen", s.handleReopen)
	rg.POST("/changes/:number/abandon", s.handleAbandon)
	rg.POST("/changes/:number/status", s.handleChangeStatus)

	rg.POST("/branches/:branch/builds", s.handleNewBuild)
	rg.POST("/branches/:branch/staging/rebuild", s.handleRebuild)
	rg.GET("/staging", s.handleListStaging)

	rg.POST("/builds/:id/approve", s.handleApprove)
	rg.POST("/builds/:id/reject", s.handleReject)
}

// getOrCreateRequestID reuses the caller's request id or mints one
func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader(HeaderRequestID)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header(HeaderRequestID, requestID)
	return requestID
}

// newRequest builds the engine request for c. The actor headers override the configured actor.
func (s *Server) newRequest(c *gin.Context) *engine.Request {
	req := s.rt.NewRequest()
	req.ID = getOrCreateRequestID(c)
	if name := c.GetHeader(HeaderActorName); name != "" {
		req.Actor.Name = name
	}
	if email := c.GetHeader(HeaderActorEmail); email != "" {
		req.Actor.Email = email
	}
	return req
}

// execute runs op and writes the result or the mapped error
func (s *Server) execute(c *gin.Context, op actions.Operation) {
	req := s.newRequest(c)
	logger := s.logger.With("request_id", req.ID, "operation", op.Name())

	res, err := actions.ExecuteRequest(c.Request.Context(), s.rt, req, op)
	if err != nil {
		s.fail(c, logger, err)
		return
	}
	logger.Info("operation completed")
	c.JSON(http.StatusOK, res)
}

func (s *Server) fail(c *gin.Context, logger *slog.Logger, err error) {
	kind := slerrors.KindOf(err)
	status := StatusFor(kind)
	if status >= http.StatusInternalServerError {
		logger.Error("operation failed", "error", err)
	} else {
		logger.Info("operation refused", "kind", kind.String(), "error", err)
	}
	c.JSON(status, ErrorResponse{Error: err.Error(), Code: kind.String()})
}

// StatusFor maps an error kind to its HTTP status
func StatusFor(kind slerrors.Kind) int {
	switch kind {
	case slerrors.KindInvalidReference:
		return http.StatusNotFound
	case slerrors.KindStatusConflict, slerrors.KindMergeConflict,
		slerrors.KindConcurrentBranchMove, slerrors.KindPreconditionFailed:
		return http.StatusConflict
	case slerrors.KindInvalidInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
