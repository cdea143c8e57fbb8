package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/applyflow/jobcrawl/internal/domain"
	"github.com/applyflow/jobcrawl/internal/executor"
	"github.com/applyflow/jobcrawl/internal/registry"
	"github.com/applyflow/jobcrawl/internal/scheduler"
)

const (
	defaultHistoryLimit = 50
	defaultOffset       = 0
)

// startCrawlRequest is the POST /crawls payload.
type startCrawlRequest struct {
	Source       domain.Source       `json:"source" binding:"required"`
	SearchParams domain.SearchParams `json:"search_params"`
	Persist      *bool               `json:"persist"`
}

// handleStartCrawl launches a crawl run and returns it immediately; callers
// poll GET /crawls/:id for the outcome.
func (s *Server) handleStartCrawl(c *gin.Context) {
	var req startCrawlRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body: "+err.Error())
		return
	}

	if req.Source != domain.SourceAll && !req.Source.IsValid() {
		respondBadRequest(c, "unknown source: "+req.Source.String())
		return
	}

	persist := true
	if req.Persist != nil {
		persist = *req.Persist
	}

	run, err := s.executor.Start(c.Request.Context(), executor.RunRequest{
		Source:  req.Source,
		Params:  req.SearchParams,
		Persist: persist,
	})
	if err != nil {
		respondInternalError(c, "failed to start crawl: "+err.Error())
		return
	}

	c.JSON(http.StatusAccepted, run)
}

// handleGetCrawl returns the status of one run.
func (s *Server) handleGetCrawl(c *gin.Context) {
	run, err := s.registry.GetStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, registry.ErrRunNotFound) {
			respondNotFound(c, "crawl run")
			return
		}
		respondInternalError(c, err.Error())
		return
	}

	c.JSON(http.StatusOK, run)
}

// handleListActive returns all running crawls.
func (s *Server) handleListActive(c *gin.Context) {
	runs, err := s.registry.ListActive(c.Request.Context())
	if err != nil {
		respondInternalError(c, err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{"active": runs, "count": len(runs)})
}

// handleListHistory returns terminal runs, most recent first.
func (s *Server) handleListHistory(c *gin.Context) {
	limit, offset := parseLimitOffset(c, defaultHistoryLimit, defaultOffset)

	runs, err := s.registry.ListHistory(c.Request.Context(), limit, offset)
	if err != nil {
		respondInternalError(c, err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{"history": runs, "limit": limit, "offset": offset})
}

// handleStats returns persisted aggregates plus process counters.
func (s *Server) handleStats(c *gin.Context) {
	stats, err := s.registry.Stats(c.Request.Context())
	if err != nil {
		respondInternalError(c, err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"aggregates": stats,
		"process":    s.metrics.Snapshot(),
	})
}

// handleCreateSchedule creates a recurring crawl definition.
func (s *Server) handleCreateSchedule(c *gin.Context) {
	var req scheduler.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body: "+err.Error())
		return
	}

	sched, err := s.scheduler.Create(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, scheduler.ErrInvalidDefinition) {
			respondBadRequest(c, err.Error())
			return
		}
		respondInternalError(c, err.Error())
		return
	}

	c.JSON(http.StatusCreated, sched)
}

// handleListSchedules returns active and paused schedules by next run time.
func (s *Server) handleListSchedules(c *gin.Context) {
	scheds, err := s.scheduler.List(c.Request.Context())
	if err != nil {
		respondInternalError(c, err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{"schedules": scheds, "count": len(scheds)})
}

// handleCancelSchedule cancels a schedule. Cancelling an unknown or
// already-cancelled schedule reports cancelled=false rather than an error.
func (s *Server) handleCancelSchedule(c *gin.Context) {
	cancelled, err := s.scheduler.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondInternalError(c, err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{"schedule_id": c.Param("id"), "cancelled": cancelled})
}
