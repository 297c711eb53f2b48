// SPDX-License-Identifier: MIT
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"emgrep/internal/analysis"
	"emgrep/internal/engine"
	"emgrep/internal/history"
	applog "emgrep/internal/log"
	"emgrep/internal/preset"

	"github.com/gin-gonic/gin"
	"github.com/inconshreveable/log15"
)

// Controller is the engine surface the API drives.
type Controller interface {
	Status() engine.Status
	StartSet(ctx context.Context) (string, error)
	StopSet(ctx context.Context) (history.SetSummary, error)
	Calibrate(ctx context.Context) (float64, error)
	ApplyPreset(ctx context.Context, id string) (preset.Preset, error)
	SetThresholds(ctx context.Context, th analysis.Thresholds) error
	History() []history.SetSummary
}

// Server is the HTTP control API.
type Server struct {
	ctrl   Controller
	router *gin.Engine
	logger log15.Logger
}

// HistoryEntry is a finished set with its duration judged against the
// preset it was recorded under.
type HistoryEntry struct {
	history.SetSummary
	Target preset.Target `json:"target,omitempty"`
}

type errorBody struct {
	Error   string              `json:"error"`
	Summary *history.SetSummary `json:"summary,omitempty"`
}

// New builds the router. When live is not nil it is mounted on /ws.
func New(ctrl Controller, live http.Handler, debug bool) *Server {
	if !debug {
		gin.SetMode(gin.ReleaseMode)
	}
	s := &Server{
		ctrl:   ctrl,
		router: gin.New(),
		logger: applog.New("component", "api"),
	}
	s.router.Use(gin.Recovery(), s.logRequests)

	s.router.GET("/status", s.status)
	s.router.POST("/sets/start", s.startSet)
	s.router.POST("/sets/stop", s.stopSet)
	s.router.POST("/calibrate", s.calibrate)
	s.router.GET("/presets", s.presets)
	s.router.PUT("/preset", s.applyPreset)
	s.router.PUT("/thresholds", s.setThresholds)
	s.router.GET("/history", s.history)
	if live != nil {
		s.router.GET("/ws", gin.WrapH(live))
	}
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves on addr until ctx is done.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.router, ReadHeaderTimeout: 5 * time.Second}
	errc := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

func (s *Server) logRequests(c *gin.Context) {
	start := time.Now()
	c.Next()
	s.logger.Debug("request", "method", c.Request.Method, "path", c.FullPath(),
		"status", c.Writer.Status(), "took", time.Since(start))
}

// statusFor maps engine errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrNotConnected),
		errors.Is(err, engine.ErrNotRecording),
		errors.Is(err, engine.ErrAlreadyRecording):
		return http.StatusConflict
	case errors.Is(err, preset.ErrUnknownPreset),
		errors.Is(err, analysis.ErrInvalidThresholds):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrEngineStopped),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	code := statusFor(err)
	if code >= 500 {
		s.logger.Error("request failed", "path", c.FullPath(), "err", err)
	}
	c.AbortWithStatusJSON(code, errorBody{Error: err.Error()})
}

func (s *Server) status(c *gin.Context) {
	c.JSON(http.StatusOK, s.ctrl.Status())
}

func (s *Server) startSet(c *gin.Context) {
	id, err := s.ctrl.StartSet(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (s *Server) stopSet(c *gin.Context) {
	summary, err := s.ctrl.StopSet(c.Request.Context())
	if errors.Is(err, history.ErrPersist) {
		// The set is finished and kept in memory; only the write failed.
		s.logger.Error("set not persisted", "set", summary.ID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorBody{Error: err.Error(), Summary: &summary})
		return
	}
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) calibrate(c *gin.Context) {
	mvc, err := s.ctrl.Calibrate(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"mvc": mvc})
}

func (s *Server) presets(c *gin.Context) {
	c.JSON(http.StatusOK, preset.All())
}

func (s *Server) applyPreset(c *gin.Context) {
	var req struct {
		ID string `json:"id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	p, err := s.ctrl.ApplyPreset(c.Request.Context(), req.ID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) setThresholds(c *gin.Context) {
	var th analysis.Thresholds
	if err := c.ShouldBindJSON(&th); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	if err := s.ctrl.SetThresholds(c.Request.Context(), th); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, th)
}

func (s *Server) history(c *gin.Context) {
	sets := s.ctrl.History()
	entries := make([]HistoryEntry, len(sets))
	for i, set := range sets {
		entries[i] = HistoryEntry{SetSummary: set}
		if p, err := preset.Lookup(set.PresetID); err == nil {
			entries[i].Target = p.Classify(set.DurationSeconds)
		}
	}
	c.JSON(http.StatusOK, entries)
}

var _ Controller = (*engine.Engine)(nil)
