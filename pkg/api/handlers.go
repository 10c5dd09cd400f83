// Copyright 2026 Etlengine Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dataforge/etlengine/pkg/monitor"
	"github.com/dataforge/etlengine/pkg/optimizer"
	"github.com/dataforge/etlengine/pkg/orchestrator"
)

// Monitor is the subset of monitor.Monitor's API the API server depends
// on, so tests can substitute a fake, mirroring optimizer.Monitor.
type Monitor interface {
	Stats(transformationID string) (monitor.TransformationStats, bool)
}

// Recommender is the subset of optimizer.Optimizer's API the API server
// depends on.
type Recommender interface {
	Recommend(transformationID string) (optimizer.Recommendation, bool)
}

type executionHandlers struct {
	orchestrator *orchestrator.Orchestrator
	monitor      Monitor
	optimizer    Recommender
	logger       *zap.Logger
}

func (h *executionHandlers) registerRoutes(r *gin.Engine) {
	r.GET("/executions", h.listExecutions)
	r.GET("/executions/:id", h.getExecution)
	r.POST("/executions/:id/stop", h.stopExecution)
	r.GET("/pipelines/:name/stats", h.getPipelineStats)
}

// listExecutions handles GET /executions.
func (h *executionHandlers) listExecutions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"active":  h.orchestrator.Active(),
		"history": h.orchestrator.History(),
	})
}

// getExecution handles GET /executions/:id, checking active runs before
// falling back to history.
func (h *executionHandlers) getExecution(c *gin.Context) {
	id := c.Param("id")

	if handle, ok := h.orchestrator.ActiveByID(id); ok {
		c.JSON(http.StatusOK, handle)
		return
	}

	for _, handle := range h.orchestrator.History() {
		if handle.ExecutionID == id {
			c.JSON(http.StatusOK, handle)
			return
		}
	}

	c.JSON(http.StatusNotFound, gin.H{
		"error":   "execution not found",
		"details": id,
	})
}

// stopExecution handles POST /executions/:id/stop. The ?force=true query
// parameter requests immediate cancellation instead of the orchestrator's
// default grace period.
func (h *executionHandlers) stopExecution(c *gin.Context) {
	id := c.Param("id")

	force, _ := strconv.ParseBool(c.Query("force"))

	if !h.orchestrator.Stop(id, force) {
		h.logger.Debug("stop requested for unknown execution", zap.String("execution_id", id))
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "execution not found",
			"details": id,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"acknowledged": true,
		"execution_id": id,
		"force":        force,
	})
}

// getPipelineStats handles GET /pipelines/:name/stats, reporting merged
// monitor statistics and, when an optimizer is wired, its current
// recommendation.
func (h *executionHandlers) getPipelineStats(c *gin.Context) {
	name := c.Param("name")

	stats, ok := h.monitor.Stats(name)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "no statistics recorded for pipeline",
			"details": name,
		})
		return
	}

	response := gin.H{"stats": stats}

	if h.optimizer != nil {
		if rec, ok := h.optimizer.Recommend(name); ok {
			response["recommendation"] = rec
		}
	}

	c.JSON(http.StatusOK, response)
}
